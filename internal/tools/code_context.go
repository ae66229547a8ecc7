package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/HendryAvila/toolrelay/internal/workspace"
	"github.com/mark3labs/mcp-go/mcp"
)

// CodeContextTool handles the get_code_context MCP tool.
type CodeContextTool struct {
	searcher workspace.Searcher
	log      logging.Logger
}

// NewCodeContextTool creates a CodeContextTool. A nil searcher always
// yields the placeholder analysis.
func NewCodeContextTool(searcher workspace.Searcher, log logging.Logger) *CodeContextTool {
	if log == nil {
		log = logging.NewNop()
	}
	return &CodeContextTool{searcher: searcher, log: log}
}

// Definition returns the MCP tool definition for registration.
func (t *CodeContextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_code_context",
		mcp.WithDescription(
			"Get information about specific code files, components, or functions in the project. "+
				"Returns a line-numbered excerpt of the file and, when a query is given, "+
				"the first place in the source tree where it appears.",
		),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the file or component to analyze (e.g., 'client/src/pages/Home.tsx')"),
		),
		mcp.WithString("query",
			mcp.Description("Specific question about the code or what you're looking for"),
		),
	)
}

// excerptView is the JSON form of a workspace excerpt.
type excerptView struct {
	File       string `json:"file"`
	StartLine  int    `json:"start_line"`
	MatchLine  int    `json:"match_line,omitempty"`
	TotalLines int    `json:"total_lines"`
	Excerpt    string `json:"excerpt"`
}

func viewOf(ex *workspace.Excerpt) *excerptView {
	return &excerptView{
		File:       ex.Path,
		StartLine:  ex.StartLine,
		MatchLine:  ex.MatchLine,
		TotalLines: ex.TotalLines,
		Excerpt:    ex.String(),
	}
}

// Handle processes the get_code_context tool call.
func (t *CodeContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath := strings.TrimSpace(req.GetString("file_path", ""))
	if filePath == "" {
		return mcp.NewToolResultError("file_path is required"), nil
	}
	query := strings.TrimSpace(req.GetString("query", ""))

	if t.searcher == nil {
		return jsonResult(placeholder(filePath, query))
	}

	resp := map[string]any{
		"file":     filePath,
		"analysis": fmt.Sprintf("Code context for %s", filePath),
	}
	if query != "" {
		resp["query"] = query
	}

	found := false

	file, err := t.searcher.ReadFile(ctx, filePath)
	switch {
	case errors.Is(err, workspace.ErrOutsideRoot):
		return mcp.NewToolResultError(fmt.Sprintf("file_path %q is outside the source tree", filePath)), nil
	case err != nil:
		t.log.Debug("file not readable", logging.String("file", filePath), logging.String("error", err.Error()))
		resp["file_note"] = fmt.Sprintf("File could not be read: %v", err)
	default:
		found = true
		resp["content"] = viewOf(file)
	}

	if query != "" {
		match, err := t.searcher.Search(ctx, query)
		switch {
		case errors.Is(err, workspace.ErrNoMatch):
			resp["match_note"] = fmt.Sprintf("No occurrence of %q in the source tree", query)
		case err != nil:
			return nil, fmt.Errorf("searching for %q: %w", query, err)
		default:
			found = true
			resp["match"] = viewOf(match)
		}
	}

	if !found {
		return jsonResult(placeholder(filePath, query))
	}
	return jsonResult(resp)
}

func placeholder(filePath, query string) map[string]any {
	if query == "" {
		query = "General file information"
	}
	return map[string]any{
		"file":       filePath,
		"query":      query,
		"analysis":   fmt.Sprintf("Code context for %s", filePath),
		"note":       "This is a simplified response. The file was not found in the source tree and the query matched nothing.",
		"suggestion": "Use this tool to understand code structure before making changes.",
	}
}
