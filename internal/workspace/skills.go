// Package workspace implements pure filesystem readers scoped to a single
// workspace directory: skill discovery and AGENTS.md/CLAUDE.md loading.
// Neither consults the Store; their output is returned verbatim.
package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sk8tingusmc/forge/pkg/types"
)

// skillGlobs is relative to the workspace root; globalSkillGlob is
// relative to the user's home directory.
var skillGlobs = []string{
	".forge/skills/*/SKILL.md",
	".claude/skills/*/SKILL.md",
	".opencode/skills/*/SKILL.md",
}

const globalSkillGlob = ".forge/skills/*/SKILL.md"

var (
	frontMatterFence = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)
	skillNameLine    = regexp.MustCompile(`(?m)^name:\s*(.+)$`)
	skillDescLine    = regexp.MustCompile(`(?m)^description:\s*(.+)$`)
)

// ScanSkills discovers SKILL.md files under workspaceRoot's .forge/.claude/
// .opencode skill directories and the user's global ~/.forge/skills
// directory, extracting only the "name" and "description" frontmatter
// keys by line regex — this is deliberately not a general YAML parse.
func ScanSkills(workspaceRoot string) ([]types.Skill, error) {
	var skills []types.Skill

	for _, glob := range skillGlobs {
		found, err := scanGlob(workspaceRoot, glob)
		if err != nil {
			continue
		}
		skills = append(skills, found...)
	}

	if home, err := os.UserHomeDir(); err == nil {
		found, err := scanGlob(home, globalSkillGlob)
		if err == nil {
			skills = append(skills, found...)
		}
	}

	return skills, nil
}

func scanGlob(root, pattern string) ([]types.Skill, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(root, pattern))
	if err != nil {
		return nil, err
	}

	skills := make([]types.Skill, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		skill, ok := parseSkill(path, data)
		if ok {
			skills = append(skills, skill)
		}
	}
	return skills, nil
}

// parseSkill extracts name/description from a SKILL.md's frontmatter
// fence by line regex, leaving the body verbatim.
func parseSkill(path string, data []byte) (types.Skill, bool) {
	m := frontMatterFence.FindSubmatch(data)
	if m == nil {
		return types.Skill{}, false
	}

	frontMatter := string(m[1])
	body := string(data[len(m[0]):])

	name := firstMatch(skillNameLine, frontMatter)
	desc := firstMatch(skillDescLine, frontMatter)
	if name == "" {
		return types.Skill{}, false
	}

	return types.Skill{
		Name:        strings.Trim(strings.TrimSpace(name), `"'`),
		Description: strings.Trim(strings.TrimSpace(desc), `"'`),
		Path:        path,
		Body:        body,
	}, true
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}
