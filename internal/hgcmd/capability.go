package hgcmd

// Capability is a set of flags describing how a subcommand interacts with
// the repository.
type Capability uint8

const (
	// ModifiesParent marks commands that may move the working copy parent.
	ModifiesParent Capability = 1 << iota
	// ReadOnly marks commands that never change the working copy.
	ReadOnly
	// NoLog marks chatty queries that are not recorded for foreign repositories.
	NoLog
	// Remote marks commands that talk to another repository.
	Remote
)

// Has reports whether all flags in f are set.
func (c Capability) Has(f Capability) bool { return c&f == f }

var capabilities = map[string]Capability{
	"add":      0,
	"annotate": ReadOnly,
	"backout":  ModifiesParent,
	"branch":   ReadOnly | NoLog,
	"branches": ReadOnly | NoLog,
	"bundle":   ReadOnly,
	"cat":      ReadOnly | NoLog,
	"clone":    ModifiesParent | Remote,
	"commit":   ModifiesParent,
	"copy":     0,
	"diff":     ReadOnly | NoLog,
	"export":   ReadOnly,
	"fetch":    ModifiesParent | Remote,
	"heads":    ReadOnly | NoLog,
	"import":   ModifiesParent,
	"incoming": ReadOnly | Remote,
	"init":     ModifiesParent,
	"log":      ReadOnly,
	"merge":    ModifiesParent,
	"outgoing": ReadOnly | Remote,
	"out":      ReadOnly | Remote,
	"parents":  ReadOnly | NoLog,
	"paths":    ReadOnly | NoLog,
	"pull":     ModifiesParent | Remote,
	"purge":    0,
	"push":     ReadOnly | Remote,
	"qfinish":  ModifiesParent,
	"qgoto":    ModifiesParent,
	"qnew":     ModifiesParent,
	"qpop":     ModifiesParent,
	"qpush":    ModifiesParent,
	"qqueue":   ReadOnly,
	"qrefresh": ModifiesParent,
	"qseries":  ReadOnly,
	"rebase":   ModifiesParent,
	"remove":   0,
	"rename":   0,
	"resolve":  ReadOnly | NoLog,
	"revert":   0,
	"rollback": ModifiesParent,
	"status":   ReadOnly | NoLog,
	"strip":    ModifiesParent,
	"tag":      ModifiesParent,
	"tags":     ReadOnly | NoLog,
	"tip":      ReadOnly,
	"unbundle": ModifiesParent,
	"update":   ModifiesParent,
	"verify":   ReadOnly,
	"version":  ReadOnly | NoLog,
	"view":     ReadOnly,
}

// CapabilitiesOf returns the flags for a subcommand. Unknown commands have none.
func CapabilitiesOf(subcommand string) Capability {
	return capabilities[subcommand]
}
