package workspace

import (
	"os"
	"path/filepath"
)

// agentsMdCandidates is checked in order; the first existing file's
// content is returned verbatim.
var agentsMdCandidates = []string{
	"AGENTS.md",
	"CLAUDE.md",
	filepath.Join(".forge", "AGENTS.md"),
}

// LoadAgentsMd returns the content of the first existing candidate file
// under workspaceRoot, or "" if none exist.
func LoadAgentsMd(workspaceRoot string) (string, error) {
	for _, rel := range agentsMdCandidates {
		data, err := os.ReadFile(filepath.Join(workspaceRoot, rel))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", nil
}
