package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// listingRe splits "name   rev:shortid flags" lines of branches and tags.
var listingRe = regexp.MustCompile(`^(.+)(\b\d+):(\S+)(.*)$`)

// patchRe splits `qseries -v --summary` lines: "index A|U name: summary".
var patchRe = regexp.MustCompile(`^\s*(\b\d+)\s([AU])\s([^:]+?):\s?(.*)$`)

// statRe picks the file name out of a `diff --stat` line.
var statRe = regexp.MustCompile(`^ (.+)\s*\|.*?$`)

const queueActiveSuffix = "(active)"

// BranchInfo is a named branch with its head changeset.
type BranchInfo struct {
	Name      string
	Changeset ChangesetRecord
	Active    bool
	Closed    bool
}

// TagInfo is a tag with its changeset.
type TagInfo struct {
	Name      string
	Changeset ChangesetRecord
	Local     bool
	// Removable is false for the implicit "tip" tag.
	Removable bool
}

// PatchInfo is one entry of a patch queue.
type PatchInfo struct {
	Index   string
	Name    string
	Summary string
	Applied bool
	// Changeset is set for applied patches found among the given records.
	Changeset *ChangesetRecord
}

// QueueInfo is a named patch queue.
type QueueInfo struct {
	Name   string
	Active bool
}

type listingLine struct {
	name, rev, id, flags string
}

func splitListing(line string) (listingLine, bool) {
	m := listingRe.FindStringSubmatch(line)
	if m == nil {
		return listingLine{}, false
	}
	return listingLine{
		name:  strings.TrimSpace(m[1]),
		rev:   strings.TrimSpace(m[2]),
		id:    strings.TrimSpace(m[3]),
		flags: strings.ToLower(strings.TrimSpace(m[4])),
	}, true
}

// findRecord matches by revision number or short id. The last match wins.
func findRecord(records []ChangesetRecord, rev, id string) (ChangesetRecord, bool) {
	var found ChangesetRecord
	ok := false
	for _, r := range records {
		if r.Revision == rev || (id != "" && r.ID == id) {
			found, ok = r, true
		}
	}
	return found, ok
}

// ParseBranches reads `hg branches -v` output and pairs every branch with
// its head among records. Lines that do not parse or have no matching
// record are logged and dropped.
func ParseBranches(lines []string, records []ChangesetRecord, log *zap.Logger) []BranchInfo {
	if log == nil {
		log = zap.NewNop()
	}
	var out []BranchInfo
	for _, line := range lines {
		l, ok := splitListing(line)
		if !ok {
			log.Warn("unparsable branch line", zap.String("line", line))
			continue
		}
		rec, ok := findRecord(records, l.rev, l.id)
		if !ok {
			log.Warn("no changeset for branch", zap.String("branch", l.name), zap.String("rev", l.rev), zap.String("id", l.id))
			continue
		}
		b := BranchInfo{Name: l.name, Changeset: rec, Active: true}
		if strings.Contains(l.flags, "inactive") {
			b.Active = false
		} else if strings.Contains(l.flags, "closed") {
			b.Closed = true
		}
		out = append(out, b)
	}
	return out
}

// TagRevisions returns the revisions mentioned by `hg tags -v` output so
// their changesets can be fetched before ParseTags runs.
func TagRevisions(lines []string) []string {
	var revs []string
	for _, line := range lines {
		if l, ok := splitListing(line); ok {
			revs = append(revs, l.rev)
		}
	}
	return revs
}

// ParseTags reads `hg tags -v` output and pairs tags with records.
func ParseTags(lines []string, records []ChangesetRecord, log *zap.Logger) []TagInfo {
	if log == nil {
		log = zap.NewNop()
	}
	var out []TagInfo
	for _, line := range lines {
		l, ok := splitListing(line)
		if !ok {
			log.Warn("unparsable tag line", zap.String("line", line))
			continue
		}
		rec, ok := findRecord(records, l.rev, l.id)
		if !ok {
			log.Warn("no changeset for tag", zap.String("tag", l.name), zap.String("rev", l.rev), zap.String("id", l.id))
			continue
		}
		out = append(out, TagInfo{
			Name:      l.name,
			Changeset: rec,
			Local:     strings.Contains(l.flags, "local"),
			Removable: l.name != "tip",
		})
	}
	return out
}

// ParsePatches reads `hg qseries -v --summary` output. Applied patches are
// paired with the record carrying the patch name as a tag, when present.
func ParsePatches(lines []string, records []ChangesetRecord, log *zap.Logger) []PatchInfo {
	if log == nil {
		log = zap.NewNop()
	}
	var out []PatchInfo
	for _, line := range lines {
		m := patchRe.FindStringSubmatch(line)
		if m == nil {
			log.Debug("unparsable patch line", zap.String("line", line))
			continue
		}
		p := PatchInfo{Index: m[1], Applied: m[2] == "A", Name: m[3], Summary: m[4]}
		if p.Applied {
			for i := range records {
				if containsString(records[i].Tags, p.Name) {
					rec := records[i]
					p.Changeset = &rec
					break
				}
			}
		}
		out = append(out, p)
	}
	if len(out) == 0 && len(lines) > 0 {
		log.Info("no patches found in output", zap.Strings("lines", lines))
	}
	return out
}

// ParseQueues reads `hg qqueue --list` output.
func ParseQueues(lines []string) []QueueInfo {
	var out []QueueInfo
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		q := QueueInfo{Name: line}
		if strings.HasSuffix(line, queueActiveSuffix) {
			q.Active = true
			q.Name = strings.TrimSpace(strings.TrimSuffix(line, queueActiveSuffix))
		}
		out = append(out, q)
	}
	return out
}

// ParseChangedFiles reads the file names of `hg diff --stat` output.
func ParseChangedFiles(lines []string) []string {
	var out []string
	for _, line := range lines {
		m := statRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, strings.TrimRight(m[1], " "))
	}
	return out
}

// ParseHeads reads one revision per line, as printed by `--template={rev}\n`.
func ParseHeads(lines []string) []string {
	var out []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ParseVersion reads "Mercurial Distributed SCM (version 6.5.2)". Local
// build suffixes after "+" are dropped before parsing.
func ParseVersion(lines []string) (*semver.Version, string, error) {
	if len(lines) == 0 {
		return nil, "", fmt.Errorf("empty version output")
	}
	first := lines[0]
	open := strings.Index(first, "(")
	closing := strings.LastIndex(first, ")")
	if open < 0 || closing < open {
		return nil, "", fmt.Errorf("unexpected version output: %q", first)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(first[open+1:closing]), "version"))
	clean := raw
	if i := strings.IndexByte(clean, '+'); i >= 0 {
		clean = clean[:i]
	}
	v, err := semver.NewVersion(clean)
	if err != nil {
		return nil, raw, fmt.Errorf("failed to parse version %q: %w", raw, err)
	}
	return v, raw, nil
}

func containsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
