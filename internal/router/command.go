package router

import (
	"regexp"
	"runtime"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// SpawnSpec describes an interactive process spawn: the binary, its
// arguments, and the working directory.
type SpawnSpec struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args"`
	Cwd  string   `json:"cwd"`
}

// resumeFlag returns the flag a CLI uses to resume a prior session, or ""
// if the CLI doesn't support resume. Only Claude implements resume in this
// core (spec §6).
func resumeFlag(cli string) string {
	if cli == "claude" {
		return "--resume"
	}
	return ""
}

// BuildOneShotCommand returns a shell-safe, single-quoted, single-line
// command invoking cli in print/non-interactive mode with goal as the
// prompt. Internal newlines in goal are collapsed to spaces so the result
// is always exactly one line.
func BuildOneShotCommand(cli string, goal string) string {
	collapsed := collapseNewlines(goal)
	quoted := QuoteForPlatform(collapsed)
	cmd := cli + " -p " + quoted

	if runtime.GOOS == "windows" {
		return cmd
	}

	// Defensive parse: a malformed quote job would otherwise silently
	// produce a broken command that only fails once it reaches the PTY.
	// Bash-specific, so only meaningful for the POSIX quoting above.
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := parser.Parse(strings.NewReader(cmd), ""); err != nil {
		// Fall back to a maximally defensive re-quote; this should be
		// unreachable given quotePOSIX's escaping, but a broken one-shot
		// command must never reach a live PTY.
		cmd = cli + " -p " + quotePOSIX(strings.ReplaceAll(collapsed, "'", ""))
	}
	return cmd
}

// BuildResumeCommand returns the one-line command to resume an existing
// session for cli, or "" if cli has no resume support.
func BuildResumeCommand(cli string, sessionID string) string {
	flag := resumeFlag(cli)
	if flag == "" || sessionID == "" {
		return ""
	}
	return cli + " " + flag + " " + QuoteForPlatform(sessionID)
}

// BuildSpawnSpec returns the spec for an interactive spawn of cli in cwd,
// selecting the platform's shell wrapper where one is required.
func BuildSpawnSpec(cli string, cwd string) SpawnSpec {
	if runtime.GOOS == "windows" {
		return SpawnSpec{Cmd: "cmd.exe", Args: []string{"/C", cli}, Cwd: cwd}
	}
	return SpawnSpec{Cmd: cli, Args: nil, Cwd: cwd}
}

// PlatformShellSpec returns the spec for opening a bare interactive shell
// in cwd (the shell.spawn "shell session" mode), independent of any
// assistant CLI.
func PlatformShellSpec(cwd string) SpawnSpec {
	if runtime.GOOS == "windows" {
		shell := "powershell.exe"
		return SpawnSpec{Cmd: shell, Args: nil, Cwd: cwd}
	}
	shell := "/bin/sh"
	return SpawnSpec{Cmd: shell, Args: nil, Cwd: cwd}
}

// collapseNewlines replaces any run of CR/LF with a single space so a
// one-shot command always fits on one line.
func collapseNewlines(s string) string {
	return newlineRun.ReplaceAllString(s, " ")
}

var newlineRun = regexp.MustCompile(`[\r\n]+`)

// quotePOSIX wraps s in single quotes, escaping embedded single quotes as
// '"'"' per POSIX shell rules.
func quotePOSIX(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// quoteWindows wraps s in single quotes for a PowerShell-style shell,
// escaping embedded single quotes by doubling them.
func quoteWindows(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteForPlatform quotes s for embedding in a one-line shell command on
// the current platform's interactive shell.
func QuoteForPlatform(s string) string {
	if runtime.GOOS == "windows" {
		return quoteWindows(s)
	}
	return quotePOSIX(s)
}
