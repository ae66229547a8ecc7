package workspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Commit is one entry of the project's version control history.
type Commit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
}

// unit separator; never appears in commit subjects in practice.
const fieldSep = "\x1f"

// RecentCommits returns the last n commits of the git repository at dir,
// newest first.
func RecentCommits(ctx context.Context, r Runner, dir string, n int) ([]Commit, error) {
	out, err := r.Run(ctx, dir, "git", "log",
		"-n", strconv.Itoa(n),
		"--date=short",
		"--pretty=format:%h"+fieldSep+"%an"+fieldSep+"%ad"+fieldSep+"%s",
	)
	if err != nil {
		return nil, fmt.Errorf("reading git history: %w", err)
	}
	return parseLog(out), nil
}

func parseLog(out string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		commits = append(commits, Commit{
			Hash:    parts[0],
			Author:  parts[1],
			Date:    parts[2],
			Subject: parts[3],
		})
	}
	return commits
}
