package pty

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// DefaultShellFallbacks are tried in order when $SHELL is unset or not executable.
var DefaultShellFallbacks = []string{"/bin/zsh", "/bin/bash", "/bin/sh"}

// DefaultLocale is used when the parent has no LANG.
const DefaultLocale = "en_US.UTF-8"

// Processes started from a desktop launcher do not see the login shell's
// PATH, so common tool locations are put in front of the inherited one.
var (
	toolPaths   = []string{"/opt/homebrew/bin", "/opt/homebrew/sbin", "/usr/local/bin", "/usr/local/sbin"}
	homePaths   = []string{".local/bin", ".cargo/bin", "go/bin"}
	systemPaths = []string{"/usr/bin", "/bin", "/usr/sbin", "/sbin"}
)

// ResolveShell returns $SHELL when it names an executable, otherwise the
// first executable fallback. If nothing qualifies the first fallback is
// returned and spawning it will report the problem.
func ResolveShell(lookup LookupFunc, fallbacks []string) string {
	if sh, ok := lookup("SHELL"); ok && sh != "" && isExecutable(sh) {
		return sh
	}
	for _, f := range fallbacks {
		if isExecutable(f) {
			return f
		}
	}
	if len(fallbacks) > 0 {
		return fallbacks[0]
	}
	return "/bin/sh"
}

// ResolveHome returns $HOME, or "/" when it is unset.
func ResolveHome(lookup LookupFunc) string {
	if home, ok := lookup("HOME"); ok && home != "" {
		return home
	}
	return "/"
}

// BuildPath assembles the child's PATH: extra entries, tool locations,
// per-user bin directories, the inherited PATH, then the system directories.
// Duplicates keep their first position.
func BuildPath(home string, extra []string, inherited string) string {
	var entries []string
	entries = append(entries, extra...)
	entries = append(entries, toolPaths...)
	if home != "" && home != "/" {
		for _, p := range homePaths {
			entries = append(entries, filepath.Join(home, p))
		}
	}
	if inherited != "" {
		entries = append(entries, filepath.SplitList(inherited)...)
	}
	entries = append(entries, systemPaths...)

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return strings.Join(out, string(os.PathListSeparator))
}

// BuildEnv returns the child environment: base with the terminal, identity,
// locale and PATH variables replaced by curated values. base is not modified.
func BuildEnv(base []string, lookup LookupFunc, shell, home, locale string, extraPath []string) []string {
	inherited, _ := lookup("PATH")
	overrides := map[string]string{
		"TERM":      "xterm-256color",
		"COLORTERM": "truecolor",
		"HOME":      home,
		"SHELL":     shell,
		"PATH":      BuildPath(home, extraPath, inherited),
	}
	if user, ok := lookup("USER"); ok && user != "" {
		overrides["USER"] = user
	}
	if locale == "" {
		locale = DefaultLocale
	}
	overrides["LANG"] = locale
	if lang, ok := lookup("LANG"); ok && lang != "" {
		overrides["LANG"] = lang
	}
	if lcAll, ok := lookup("LC_ALL"); ok && lcAll != "" {
		overrides["LC_ALL"] = lcAll
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
