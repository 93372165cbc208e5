package credentials

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pathKeys are the [paths] entries that may point at a remote.
var pathKeys = []string{"default", "default-push", "default-pull"}

// SavePaths records remote (with the password removed) in the [paths]
// section of <repo>/.hg/hgrc. Entries among default, default-push and
// default-pull that point at the same remote are rewritten; when none does,
// default is set.
func SavePaths(repo, remote string) error {
	path := filepath.Join(repo, ".hg", "hgrc")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read hgrc: %w", err)
	}
	value := WithoutPassword(remote)
	out := rewritePaths(data, Key(remote), value)
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write hgrc: %w", err)
	}
	return nil
}

func rewritePaths(data []byte, key, value string) []byte {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	section := ""
	pathsEnd := -1
	defaultLine := -1
	replaced := false
	for n, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			if section == "paths" {
				pathsEnd = n + 1
			}
			continue
		}
		if section != "paths" {
			continue
		}
		if trimmed != "" {
			pathsEnd = n + 1
		}
		name, val, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "default" {
			defaultLine = n
		}
		for _, k := range pathKeys {
			if name == k && Key(strings.TrimSpace(val)) == key {
				lines[n] = k + " = " + value
				replaced = true
			}
		}
	}

	if !replaced {
		entry := "default = " + value
		if defaultLine >= 0 {
			lines[defaultLine] = entry
		} else if pathsEnd < 0 {
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
				lines = append(lines, "")
			}
			lines = append(lines, "[paths]", entry)
		} else {
			lines = append(lines[:pathsEnd], append([]string{entry}, lines[pathsEnd:]...)...)
		}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// RepoValue reads key from section of <repo>/.hg/hgrc. Later entries win,
// matching how hg itself resolves repeated keys.
func RepoValue(repo, section, key string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(repo, ".hg", "hgrc"))
	if err != nil {
		return "", false
	}
	current := ""
	value, found := "", false
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		trimmed := strings.TrimSpace(sc.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			continue
		}
		if current != section {
			continue
		}
		name, val, ok := strings.Cut(trimmed, "=")
		if ok && strings.TrimSpace(name) == key {
			value, found = strings.TrimSpace(val), true
		}
	}
	return value, found
}

// ScrubPaths removes passwords from the [paths] entries of
// <repo>/.hg/hgrc. hg clone records the source exactly as given, so a URL
// with embedded credentials would otherwise stay on disk. Nothing is
// written when no entry carries a password.
func ScrubPaths(repo string) error {
	path := filepath.Join(repo, ".hg", "hgrc")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read hgrc: %w", err)
	}
	out, changed := scrubPaths(data)
	if !changed {
		return nil
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write hgrc: %w", err)
	}
	return nil
}

func scrubPaths(data []byte) ([]byte, bool) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	section := ""
	changed := false
	for n, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			continue
		}
		if section != "paths" {
			continue
		}
		name, val, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if len(FromURL(val).Secret) == 0 {
			continue
		}
		lines[n] = strings.TrimSpace(name) + " = " + WithoutPassword(val)
		changed = true
	}
	return []byte(strings.Join(lines, "\n") + "\n"), changed
}
