// Package parse turns engine output lines into domain records.
package parse

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Sentinel prefixes of the log template.
const (
	prefixRev       = "rev:"
	prefixAuthor    = "auth:"
	prefixUser      = "user:"
	prefixDesc      = "desc:"
	prefixDate      = "date:"
	prefixID        = "id:"
	prefixParents   = "parents:"
	prefixFileMods  = "file_mods:"
	prefixFileAdds  = "file_adds:"
	prefixFileDels  = "file_dels:"
	prefixFileCopys = "file_copies:"
	prefixBranches  = "branches:"
	prefixTags      = "tags:"
	prefixEnd       = "endCS:"
)

// fileSep separates entries of the file lists in the template output.
const fileSep = "\t"

const basicTemplate = `rev:{rev}\nauth:{author}\nuser:{author|user}\ndesc:{desc}\ndate:{date|hgdate}\nid:{node|short}\nparents:{parents}\nbranches:{branches}\ntags:{join(tags, '\t')}\n`

const filesTemplate = `file_mods:{join(file_mods, '\t')}\nfile_adds:{join(file_adds, '\t')}\nfile_dels:{join(file_dels, '\t')}\nfile_copies:{join(file_copies, '\t')}\n`

// LogTemplate returns the template that produces output for LogParser.
// File lists are only requested when withFiles is set since they are
// expensive for large histories.
func LogTemplate(withFiles bool) string {
	if withFiles {
		return basicTemplate + filesTemplate + prefixEnd + `\n`
	}
	return basicTemplate + prefixEnd + `\n`
}

// Parent is a revision/short id pair.
type Parent struct {
	Revision string
	ID       string
}

// Copy records a file copied or renamed from Source to Path.
type Copy struct {
	Path   string
	Source string
}

// ChangesetRecord is one parsed revision.
type ChangesetRecord struct {
	Revision    string
	ID          string
	Author      string
	User        string
	Description string
	Date        string
	Parents     []Parent
	Modified    []string
	Added       []string
	Deleted     []string
	Copies      []Copy
	Branches    []string
	Tags        []string
}

// Branch returns the branch name, "default" when none is recorded.
func (c ChangesetRecord) Branch() string {
	if len(c.Branches) == 0 || c.Branches[0] == "" {
		return "default"
	}
	return c.Branches[0]
}

// RevisionNumber returns the numeric revision, or -1.
func (c ChangesetRecord) RevisionNumber() int {
	n, err := strconv.Atoi(c.Revision)
	if err != nil {
		return -1
	}
	return n
}

// Time parses the hgdate ("unixtime offset") date field.
func (c ChangesetRecord) Time() (time.Time, error) {
	return ParseHgDate(c.Date)
}

// IsMerge reports whether the changeset has two parents.
func (c ChangesetRecord) IsMerge() bool { return len(c.Parents) > 1 }

// LogParser reconstructs records from template output one line at a time.
// A record is only emitted when its end marker arrives with a revision set;
// until then every field stays pending.
type LogParser struct {
	cur     ChangesetRecord
	inDesc  bool
	records []ChangesetRecord
}

// Feed consumes one output line.
func (p *LogParser) Feed(line string) {
	field, value, ok := splitSentinel(line)
	if !ok {
		if p.inDesc {
			p.cur.Description += "\n" + line
		}
		return
	}
	p.inDesc = false

	switch field {
	case prefixRev:
		p.cur.Revision = value
	case prefixAuthor:
		p.cur.Author = value
	case prefixUser:
		p.cur.User = value
	case prefixDesc:
		p.cur.Description = value
		p.inDesc = true
	case prefixDate:
		p.cur.Date = value
	case prefixID:
		p.cur.ID = value
	case prefixParents:
		p.cur.Parents = parseParents(value)
	case prefixFileMods:
		p.cur.Modified = splitList(value)
	case prefixFileAdds:
		p.cur.Added = splitList(value)
	case prefixFileDels:
		p.cur.Deleted = splitList(value)
	case prefixFileCopys:
		p.cur.Copies = parseCopies(value)
	case prefixBranches:
		p.cur.Branches = strings.Fields(value)
	case prefixTags:
		p.cur.Tags = splitList(value)
	case prefixEnd:
		if p.cur.Revision != "" {
			p.records = append(p.records, p.cur)
		}
		p.cur = ChangesetRecord{}
	}
}

// Records returns the records emitted so far, in input order.
func (p *LogParser) Records() []ChangesetRecord {
	return slices.Clone(p.records)
}

// ParseLog parses template output. With reverse set the result is returned
// newest last instead of in engine order.
func ParseLog(lines []string, reverse bool) []ChangesetRecord {
	var p LogParser
	for _, l := range lines {
		p.Feed(l)
	}
	recs := p.records
	if reverse {
		slices.Reverse(recs)
	}
	return recs
}

var sentinels = []string{
	prefixRev, prefixAuthor, prefixUser, prefixDesc, prefixDate, prefixID,
	prefixParents, prefixFileMods, prefixFileAdds, prefixFileDels,
	prefixFileCopys, prefixBranches, prefixTags, prefixEnd,
}

func splitSentinel(line string) (string, string, bool) {
	for _, s := range sentinels {
		if strings.HasPrefix(line, s) {
			return s, strings.TrimSpace(line[len(s):]), true
		}
	}
	return "", "", false
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(v, fileSep) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parseParents reads "rev:node rev:node".
func parseParents(v string) []Parent {
	var out []Parent
	for _, f := range strings.Fields(v) {
		rev, id, ok := strings.Cut(f, ":")
		if !ok {
			continue
		}
		out = append(out, Parent{Revision: rev, ID: id})
	}
	return out
}

var copyRe = regexp.MustCompile(`^(.*) \((.*)\)$`)

// parseCopies reads "new (old)" entries.
func parseCopies(v string) []Copy {
	var out []Copy
	for _, f := range splitList(v) {
		m := copyRe.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		out = append(out, Copy{Path: m[1], Source: m[2]})
	}
	return out
}

// ParseHgDate parses "unixtime offset" where offset is seconds west of UTC.
func ParseHgDate(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, strconv.ErrSyntax
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return time.Time{}, err
	}
	t := time.Unix(int64(secs), 0)
	if len(fields) > 1 {
		off, err := strconv.Atoi(fields[1])
		if err != nil {
			return time.Time{}, err
		}
		t = t.In(time.FixedZone("", -off))
	}
	return t, nil
}
