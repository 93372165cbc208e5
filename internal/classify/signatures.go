package classify

// Category names a recognized engine condition.
type Category string

const (
	AuthFailed            Category = "auth-failed"
	AuthRequired          Category = "auth-required"
	ProxyMisconfigured    Category = "proxy-misconfigured"
	ArgumentListTooLong   Category = "argument-list-too-long"
	CommandNotFound       Category = "command-not-found"
	ViewUnavailable       Category = "view-unavailable"
	OptionNotRecognized   Category = "option-not-recognized"
	NoDefaultPush         Category = "no-default-push"
	NoDefault             Category = "no-default"
	NoRepository          Category = "no-repository"
	NoResponse            Category = "no-response"
	CommitAfterMerge      Category = "commit-after-merge"
	CannotReadCommitMsg   Category = "cannot-read-commit-message"
	NoFilesToCopy         Category = "no-files-to-copy"
	MergeInProgress       Category = "merge-in-progress"
	OutstandingChanges    Category = "outstanding-changes"
	LocalChanges          Category = "local-changes"
	BackoutMerge          Category = "backout-merge"
	BackoutNeedsMerge     Category = "backout-needs-merge"
	UpdateCrossesBranches Category = "update-crosses-branches"
	PushCreatesNewHeads   Category = "push-creates-new-heads"
	MultipleHeads         Category = "multiple-heads"
	MergeConflict         Category = "merge-conflict"
	UnknownRevision       Category = "unknown-revision"
	FollowNonexistentFile Category = "follow-nonexistent-file"
	NotFoundInManifest    Category = "not-found-in-manifest"
	NoSuchFile            Category = "no-such-file"
	NotTracked            Category = "not-tracked"
	NoRollback            Category = "no-rollback"
	NoChangeNeeded        Category = "no-change-needed"
	NoChangesFound        Category = "no-changes-found"
	NothingToCommit       Category = "nothing-to-commit"
	ZeroFilesUpdated      Category = "zero-files-updated"
	AlreadyTracked        Category = "already-tracked"
	PerformanceWarning    Category = "performance-warning"
	NewHeadCreated        Category = "new-head-created"
	MergeNeeded           Category = "merge-needed"
	NoWorkingCopy         Category = "no-working-copy"
	Adding                Category = "adding"
	Abort                 Category = "abort"
)

// Severity tells callers what a match means for the invocation.
type Severity int

const (
	// Fatal fails the invocation.
	Fatal Severity = iota
	// Benign looks like a failure but is a no-op success.
	Benign
	// Info is worth surfacing but changes nothing.
	Info
)

// MatchKind selects how Patterns are tested against a line.
type MatchKind int

const (
	Prefix MatchKind = iota
	Contains
	ContainsFold
	AllOf
	AnyOf
	AnyOfFold
)

// Signature is one row of the classification table.
type Signature struct {
	Category Category
	Severity Severity
	Kind     MatchKind
	Patterns []string
}

// DefaultSignatures is ordered by precedence: the first matching row wins.
// Specific aborts come before the generic "abort: " row. The default-path
// rows come before the repository-not-found rows because both mention a
// missing repository. Authentication is tested first since its message is
// itself an abort.
var DefaultSignatures = []Signature{
	{AuthFailed, Fatal, ContainsFold, []string{"authorization failed"}},
	{AuthRequired, Fatal, ContainsFold, []string{"authorization required"}},
	{ProxyMisconfigured, Fatal, Contains, []string{"abort: error: node name or service name not known"}},
	{ArgumentListTooLong, Fatal, AnyOf, []string{"Arg list too long", "Argument list too long"}},
	{CommandNotFound, Fatal, AnyOf, []string{"hg: not found", "Cannot run program", "is not recognized as an internal or external command"}},
	{ViewUnavailable, Fatal, AnyOf, []string{"hg: unknown command 'view'", "sh: hgk: not found"}},
	{OptionNotRecognized, Fatal, AllOf, []string{": option --", " not recognized"}},
	{NoDefaultPush, Fatal, Contains, []string{"abort: repository default-push not found!"}},
	{NoDefault, Fatal, Contains, []string{"abort: repository default not found!"}},
	{NoRepository, Fatal, AnyOf, []string{"There is no Mercurial repository here", "does not appear to be an hg repository", "abort: no repository found"}},
	{NoRepository, Fatal, AllOf, []string{"repository", "not found!"}},
	{NoResponse, Fatal, Contains, []string{"no suitable response from remote hg!"}},
	{CommitAfterMerge, Fatal, Contains, []string{"abort: cannot partially commit a merge (do not specify files or patterns)"}},
	{CannotReadCommitMsg, Fatal, Prefix, []string{"abort: can't read commit message"}},
	{NoFilesToCopy, Fatal, Prefix, []string{"abort: no files to copy"}},
	{MergeInProgress, Fatal, Prefix, []string{"abort: outstanding uncommitted merges"}},
	{OutstandingChanges, Fatal, Prefix, []string{"abort: outstanding uncommitted changes"}},
	{LocalChanges, Fatal, Prefix, []string{"abort: local changes found"}},
	{BackoutMerge, Fatal, Prefix, []string{"abort: cannot back out a merge changeset without --parent"}},
	{BackoutNeedsMerge, Info, Contains, []string{`(use "backout --merge" if you want to auto-merge)`}},
	{UpdateCrossesBranches, Fatal, AnyOf, []string{"abort: update spans branches", "abort: crosses branches"}},
	{PushCreatesNewHeads, Fatal, Prefix, []string{"abort: push creates new remote "}},
	{MultipleHeads, Fatal, Prefix, []string{"abort: repo has "}},
	{MergeConflict, Fatal, Contains, []string{"conflicts detected in "}},
	{MergeConflict, Fatal, AllOf, []string{"merging", "failed!"}},
	{MergeConflict, Fatal, AllOf, []string{"merging", "incomplete!"}},
	{UnknownRevision, Fatal, Prefix, []string{"abort: unknown revision"}},
	{FollowNonexistentFile, Fatal, AnyOfFold, []string{"cannot follow nonexistent file", "cannot follow file not in parent revision"}},
	{NotFoundInManifest, Fatal, ContainsFold, []string{"not found in manifest"}},
	{NoSuchFile, Fatal, ContainsFold, []string{"no such file"}},
	{NotTracked, Fatal, AnyOf, []string{" not tracked!", " no tracked!"}},
	{NoRollback, Benign, Contains, []string{"no rollback information available"}},
	{NoChangeNeeded, Benign, Contains, []string{"no change needed"}},
	{NoChangesFound, Benign, Contains, []string{"no changes found"}},
	{NothingToCommit, Benign, AnyOf, []string{"nothing changed", "nothing to commit"}},
	{ZeroFilesUpdated, Benign, Contains, []string{"0 files updated, 0 files merged, 0 files removed, 0 files unresolved"}},
	{AlreadyTracked, Benign, Contains, []string{" already tracked!"}},
	{PerformanceWarning, Benign, AllOf, []string{": files over", "cause memory and performance problems"}},
	{NewHeadCreated, Info, Contains, []string{"(+1 heads)"}},
	{MergeNeeded, Info, AllOf, []string{"run", "hg heads", "to see heads", "hg merge", "to merge"}},
	{NoWorkingCopy, Info, Contains, []string{"(run 'hg update' to get a working copy)"}},
	{Adding, Info, Prefix, []string{"adding "}},
	{Abort, Fatal, Prefix, []string{"abort: "}},
}
