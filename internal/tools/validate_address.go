package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/toolrelay/internal/geocode"
	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/mark3labs/mcp-go/mcp"
)

// ValidateAddressTool handles the validate_address MCP tool.
type ValidateAddressTool struct {
	geocoder geocode.Geocoder
	log      logging.Logger
}

// NewValidateAddressTool creates a ValidateAddressTool.
func NewValidateAddressTool(g geocode.Geocoder, log logging.Logger) *ValidateAddressTool {
	if log == nil {
		log = logging.NewNop()
	}
	return &ValidateAddressTool{geocoder: g, log: log}
}

// Definition returns the MCP tool definition for registration.
func (t *ValidateAddressTool) Definition() mcp.Tool {
	return mcp.NewTool("validate_address",
		mcp.WithDescription(
			"Validate a free-text address with a geocoding service. Returns the "+
				"normalized address, coordinates and address type when it resolves.",
		),
		mcp.WithString("address",
			mcp.Required(),
			mcp.Description("The address to validate, e.g. '350 5th Ave, New York, NY'"),
		),
	)
}

// Handle processes the validate_address tool call.
func (t *ValidateAddressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := strings.TrimSpace(req.GetString("address", ""))
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	res, err := t.geocoder.Lookup(ctx, address)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		return jsonResult(map[string]any{
			"valid":   false,
			"address": address,
			"message": fmt.Sprintf("No match found for %q. Check the spelling or add a city and country.", address),
		})
	case err != nil:
		t.log.Warn("geocoder unavailable",
			logging.String("address", address),
			logging.String("error", err.Error()),
		)
		return mcp.NewToolResultText(fmt.Sprintf(
			"Address validation is temporarily unavailable (%v). The address %q was not checked; please try again later.",
			err, address,
		)), nil
	}

	return jsonResult(res)
}
