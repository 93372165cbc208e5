package parse

import (
	"strings"

	"go.uber.org/zap"
)

// FileStatus is the state of one file as reported by hg status.
type FileStatus int

const (
	StatusUnknown FileStatus = iota
	StatusUpToDate
	StatusModified
	StatusAdded
	StatusRemoved
	StatusDeletedLocally
	StatusUntracked
	StatusIgnored
	StatusConflicted
	StatusUnmanaged
)

var fileStatusNames = [...]string{
	StatusUnknown:        "unknown",
	StatusUpToDate:       "up-to-date",
	StatusModified:       "modified",
	StatusAdded:          "added",
	StatusRemoved:        "removed",
	StatusDeletedLocally: "deleted-locally",
	StatusUntracked:      "untracked",
	StatusIgnored:        "ignored",
	StatusConflicted:     "conflicted",
	StatusUnmanaged:      "unmanaged",
}

func (s FileStatus) String() string {
	if int(s) < len(fileStatusNames) {
		return fileStatusNames[s]
	}
	return "unknown"
}

// Status codes are identified by the sum of their two characters. The code
// alphabet is small and the sums below are pairwise distinct.
const (
	codeModified   = 'M' + ' '
	codeAdded      = 'A' + ' '
	codeRemoved    = 'R' + ' '
	codeClean      = 'C' + ' '
	codeDeleted    = '!' + ' '
	codeUntracked  = '?' + ' '
	codeIgnored    = 'I' + ' '
	codeConflicted = 'U' + ' '
	// "ab" is the start of an "abort:" line: the file is not in a repository.
	codeAbort = 'a' + 'b'
)

// Decode maps the two-character code at the start of a status line. An
// empty line means the file is up to date.
func Decode(line string) FileStatus {
	if line == "" {
		return StatusUpToDate
	}
	if len(line) < 2 {
		return StatusUnknown
	}
	switch int(line[0]) + int(line[1]) {
	case codeModified:
		return StatusModified
	case codeAdded:
		return StatusAdded
	case codeRemoved:
		return StatusRemoved
	case codeClean:
		return StatusUpToDate
	case codeDeleted:
		return StatusDeletedLocally
	case codeUntracked:
		return StatusUntracked
	case codeIgnored:
		return StatusIgnored
	case codeConflicted:
		return StatusConflicted
	case codeAbort:
		return StatusUnmanaged
	}
	return StatusUnknown
}

// FileStatusEntry is one file of a status listing.
type FileStatusEntry struct {
	Path   string
	Status FileStatus
	// Origin is the copy or rename source, if any.
	Origin string
}

// StatusResult keeps entries in output order.
type StatusResult struct {
	Entries []FileStatusEntry
}

// Map indexes entries by path.
func (r StatusResult) Map() map[string]FileStatusEntry {
	m := make(map[string]FileStatusEntry, len(r.Entries))
	for _, e := range r.Entries {
		m[e.Path] = e
	}
	return m
}

// Filter returns the entries with one of the given statuses.
func (r StatusResult) Filter(statuses ...FileStatus) []FileStatusEntry {
	var out []FileStatusEntry
	for _, e := range r.Entries {
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// ParseStatus parses `hg status` output. A line starting with a space
// carries the copy source of the entry before it; with no entry before it
// the line is logged and dropped. Abort lines are not entries.
func ParseStatus(lines []string, log *zap.Logger) StatusResult {
	if log == nil {
		log = zap.NewNop()
	}
	var res StatusResult
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' {
			origin := strings.TrimSpace(line)
			if len(res.Entries) == 0 {
				log.Debug("dropping copy source without entry", zap.String("line", line))
				continue
			}
			res.Entries[len(res.Entries)-1].Origin = origin
			continue
		}
		status := Decode(line)
		if status == StatusUnmanaged {
			log.Debug("skipping abort line in status output", zap.String("line", line))
			continue
		}
		path := ""
		if len(line) > 2 {
			path = strings.TrimLeft(line[2:], " ")
		}
		if path == "" {
			log.Debug("dropping status line without path", zap.String("line", line))
			continue
		}
		res.Entries = append(res.Entries, FileStatusEntry{Path: path, Status: status})
	}
	return res
}

// ParseResolveList keeps the conflicted paths of `hg resolve -l`. Resolved
// entries share the "R" code with removed files, so everything else is
// dropped along with error lines.
func ParseResolveList(lines []string) []string {
	var out []string
	for _, line := range lines {
		if len(line) < 2 || Decode(line) != StatusConflicted {
			continue
		}
		out = append(out, strings.TrimLeft(line[2:], " "))
	}
	return out
}
