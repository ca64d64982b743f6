// Package router implements forge's pure task router: a function from a
// natural-language goal (and an optional preferred CLI) to an assistant
// identifier, category, rationale and confidence.
package router

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/sk8tingusmc/forge/pkg/types"
)

// Decision is the result of routing a goal to an assistant.
type Decision struct {
	CLI        string  `json:"cli"`
	Category   string  `json:"category"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// keyword pairs a compiled, case-insensitive regex with the weight it
// contributes to its rule when it matches.
type keyword struct {
	pattern *regexp.Regexp
	weight  float64
}

// rule maps a bundle of weighted keywords to a CLI/category/rationale. The
// winning rule is the one with the greatest absolute matched weight; ties
// go to whichever rule appears earlier in the fixed list.
type rule struct {
	keywords  []keyword
	cli       string
	category  string
	rationale string
}

func kw(pattern string, weight float64) keyword {
	return keyword{pattern: regexp.MustCompile(`(?i)` + pattern), weight: weight}
}

// rules is the fixed, ordered rule table. Order only matters for tie-breaks.
var rules = []rule{
	{
		cli:       "claude",
		category:  "deep",
		rationale: "architecture, planning, or root-cause reasoning",
		keywords: []keyword{
			kw(`\barchitect\w*`, 0.9),
			kw(`\brefactor\w*`, 0.9),
			kw(`\bsystem\s+design\b`, 0.9),
			kw(`\bdesign\s+system\b`, 0.9),
			kw(`\bhow\s+does\b`, 0.7),
			kw(`\bdebug\w*`, 0.7),
			kw(`\bplan\b`, 0.6),
			kw(`\bwhy\b`, 0.5),
		},
	},
	{
		cli:       "gemini",
		category:  "visual",
		rationale: "frontend, styling, or layout work",
		keywords: []keyword{
			kw(`\blayout\b`, 0.9),
			kw(`\btailwind\b`, 0.8),
			kw(`\bcss\b`, 0.8),
			kw(`\bfrontend\b`, 0.8),
			kw(`\breact\b`, 0.7),
			kw(`\bui\b`, 0.7),
			kw(`\bstyle\w*`, 0.6),
			kw(`\bdesign\b`, 0.4),
		},
	},
	{
		cli:       "codex",
		category:  "code",
		rationale: "boilerplate, scaffolding, or test generation",
		keywords: []keyword{
			kw(`\bboilerplate\b`, 0.8),
			kw(`\bscaffold\w*`, 0.8),
			kw(`\bcomplete\w*`, 0.6),
			kw(`\bsnippet\b`, 0.6),
			kw(`\btest(s|ing)?\b`, 0.6),
		},
	},
	{
		cli:       "copilot",
		category:  "git",
		rationale: "version control or pull-request workflow",
		keywords: []keyword{
			kw(`\bcommit\w*`, 0.8),
			kw(`\bgithub\b`, 0.8),
			kw(`\bmerge\b`, 0.7),
			kw(`\bpr\b`, 0.7),
			kw(`\bbranch\w*`, 0.6),
		},
	},
	{
		cli:       "llm",
		category:  "local",
		rationale: "privacy-sensitive or offline work",
		keywords: []keyword{
			kw(`\bconfidential\b`, 0.9),
			kw(`\bprivate\b`, 0.8),
			kw(`\boffline\b`, 0.8),
			kw(`\bsensitive\b`, 0.8),
		},
	},
	{
		cli:       "claude",
		category:  "research",
		rationale: "documentation lookup or conceptual explanation",
		keywords: []keyword{
			kw(`\bdocs?\b`, 0.6),
			kw(`\bexplain\w*`, 0.6),
			kw(`\bwhat\s+is\b`, 0.6),
		},
	},
}

// defaultDecision is returned when no rule matches.
var defaultDecision = Decision{CLI: "claude", Category: "deep", Rationale: "default", Confidence: 0.5}

// defaultCategoryForCLI returns the category assumed when a caller
// explicitly names a preferred CLI, bypassing keyword scoring.
func defaultCategoryForCLI(cli string) string {
	switch cli {
	case "gemini":
		return "visual"
	case "codex":
		return "code"
	case "copilot":
		return "git"
	case "llm":
		return "local"
	case "qwen":
		return "quick"
	default:
		return "deep"
	}
}

// RouteTask is a pure function from a goal (and optional preferred CLI) to
// a routing Decision. Equal inputs always yield equal outputs.
func RouteTask(goal string, preferredCLI string) Decision {
	if preferredCLI != "" {
		cli := normalizeCLI(preferredCLI)
		return Decision{
			CLI:        cli,
			Category:   defaultCategoryForCLI(cli),
			Rationale:  "preferred CLI",
			Confidence: 1.0,
		}
	}

	var (
		best        *rule
		bestWeight  float64
		bestRuleSum float64
	)

	for i := range rules {
		r := &rules[i]
		var matched, total float64
		for _, k := range r.keywords {
			total += k.weight
			if k.pattern.MatchString(goal) {
				matched += k.weight
			}
		}
		if matched > 0 && (best == nil || matched > bestWeight) {
			best = r
			bestWeight = matched
			bestRuleSum = total
		}
	}

	if best == nil {
		return defaultDecision
	}

	confidence := bestWeight / bestRuleSum
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Decision{
		CLI:        best.cli,
		Category:   best.category,
		Rationale:  best.rationale,
		Confidence: confidence,
	}
}

// normalizeCLI corrects small typos in a caller-supplied preferred CLI
// (edit distance <= 2 against the allow-list) before falling back to the
// literal string, so that a near-miss like "claud" still short-circuits to
// the CLI the caller meant rather than silently producing a nonsense CLI.
func normalizeCLI(cli string) string {
	cli = strings.ToLower(strings.TrimSpace(cli))
	if types.IsValidCLIType(cli) {
		return cli
	}

	best := cli
	bestDist := -1
	for _, c := range types.CLITypes {
		d := levenshtein.ComputeDistance(cli, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist >= 0 && bestDist <= 2 {
		return best
	}
	return cli
}
