package hgcmd

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/sergeknystautas/hgrun/internal/runner"
)

// Default command line budgets in bytes.
const (
	MaxCommandLineWindows = 8000
	MaxCommandLineDarwin  = 64000
	MaxCommandLineUnix    = 128000

	// minCommandLineOverride is the smallest override that is honored.
	minCommandLineOverride = 1024

	// executableReserve is what an unresolved executable may grow to.
	executableReserve = 260
)

// executableCost is the size of the executable and its separator on a
// command line.
func executableCost(exe string) int {
	if exe == "" || exe == runner.ExecutablePlaceholder {
		return executableReserve + 1
	}
	return len(exe) + 1
}

// MaxCommandLine returns the command line budget for goos. An override of at
// least 1024 bytes replaces the OS default.
func MaxCommandLine(goos string, override int) int {
	if override >= minCommandLineOverride {
		return override
	}
	switch goos {
	case "windows":
		return MaxCommandLineWindows
	case "darwin":
		return MaxCommandLineDarwin
	default:
		return MaxCommandLineUnix
	}
}

// Groups splits files into groups whose estimated size, added to prefixSize,
// stays within budget. Each file costs its length plus one separator. A group
// always takes at least one file, so an oversized file gets a group of its own.
func Groups(prefixSize int, files []string, budget int) [][]string {
	var groups [][]string
	var current []string
	size := prefixSize
	for _, f := range files {
		cost := len(f) + 1
		if len(current) > 0 && size+cost > budget {
			groups = append(groups, current)
			current = nil
			size = prefixSize
		}
		current = append(current, f)
		size += cost
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// SplitFiles builds one Invocation per group of files. Paths are passed
// relative to root, and --cwd root is added when the prefix lacks it. With
// no files a single Invocation is returned.
func (b *Builder) SplitFiles(root string, files []string, budget int) []*Invocation {
	prefix := slices.Clone(b.args)
	if root != "" && !slices.Contains(prefix, OptCwd) {
		prefix = append(prefix, OptCwd, root)
	}
	if len(files) == 0 {
		return []*Invocation{b.build(prefix)}
	}

	rel := make([]string, len(files))
	for n, f := range files {
		rel[n] = RelativeTo(root, f)
	}

	prefixSize := executableCost(b.defaults.Executable) + len(b.subcommand) + 1
	for _, a := range prefix {
		prefixSize += len(a) + 1
	}

	var invs []*Invocation
	for _, g := range Groups(prefixSize, rel, budget) {
		invs = append(invs, b.build(append(slices.Clone(prefix), g...)))
	}
	return invs
}

// RelativeTo returns path relative to root when it lies inside it. The root
// itself becomes ".". Paths outside root are returned unchanged.
func RelativeTo(root, path string) string {
	if root == "" || !filepath.IsAbs(path) {
		return path
	}
	r, err := filepath.Rel(root, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return path
	}
	return r
}
