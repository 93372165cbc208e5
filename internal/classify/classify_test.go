package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

func TestClassify_Samples(t *testing.T) {
	tests := []struct {
		line string
		want Category
	}{
		{"abort: http authorization required", AuthRequired},
		{"abort: HTTP Error 401: Authorization Failed", AuthFailed},
		{"abort: error: node name or service name not known", ProxyMisconfigured},
		{"/bin/sh: Argument list too long", ArgumentListTooLong},
		{"sh: hg: not found", CommandNotFound},
		{"'hg' is not recognized as an internal or external command,", CommandNotFound},
		{"hg: unknown command 'view'", ViewUnavailable},
		{"hg heads: option --topo not recognized", OptionNotRecognized},
		{"abort: repository default-push not found!", NoDefaultPush},
		{"abort: repository default not found!", NoDefault},
		{"abort: There is no Mercurial repository here (.hg not found)!", NoRepository},
		{"abort: no repository found in '/tmp/x' (.hg not found)!", NoRepository},
		{"abort: repository /tmp/other not found!", NoRepository},
		{"abort: 'https://x' does not appear to be an hg repository:", NoRepository},
		{"abort: no suitable response from remote hg!", NoResponse},
		{"abort: cannot partially commit a merge (do not specify files or patterns)", CommitAfterMerge},
		{"abort: can't read commit message '/tmp/m': No such file", CannotReadCommitMsg},
		{"abort: no files to copy", NoFilesToCopy},
		{"abort: outstanding uncommitted merges", MergeInProgress},
		{"abort: outstanding uncommitted changes", OutstandingChanges},
		{"abort: local changes found", LocalChanges},
		{"abort: cannot back out a merge changeset without --parent", BackoutMerge},
		{`(use "backout --merge" if you want to auto-merge)`, BackoutNeedsMerge},
		{"abort: update spans branches, use 'hg merge' or 'hg update -C'", UpdateCrossesBranches},
		{"abort: crosses branches (merge branches or use --clean to discard changes)", UpdateCrossesBranches},
		{"abort: push creates new remote heads on branch 'default'!", PushCreatesNewHeads},
		{"abort: repo has 2 heads - please merge with an explicit rev", MultipleHeads},
		{"warning: conflicts detected in a.txt", MergeConflict},
		{"merging a.txt failed!", MergeConflict},
		{"merging a.txt incomplete! (edit conflicts, then use 'hg resolve --mark')", MergeConflict},
		{"abort: unknown revision '99'!", UnknownRevision},
		{"abort: Cannot follow nonexistent file: \"x\"", FollowNonexistentFile},
		{"abort: cannot follow file not in parent revision: \"x\"", FollowNonexistentFile},
		{"x.txt: Not found in manifest", NotFoundInManifest},
		{"x.txt: No such file in rev 0123", NoSuchFile},
		{"abort: b.txt not tracked!", NotTracked},
		{"no rollback information available", NoRollback},
		{"no change needed", NoChangeNeeded},
		{"no changes found", NoChangesFound},
		{"nothing changed", NothingToCommit},
		{"0 files updated, 0 files merged, 0 files removed, 0 files unresolved", ZeroFilesUpdated},
		{"a.txt already tracked!", AlreadyTracked},
		{"big.bin: files over 10MB may cause memory and performance problems", PerformanceWarning},
		{"added 1 changesets with 1 changes to 1 files (+1 heads)", NewHeadCreated},
		{"(run 'hg heads' to see heads, 'hg merge' to merge)", MergeNeeded},
		{"(run 'hg update' to get a working copy)", NoWorkingCopy},
		{"adding src/a.txt", Adding},
		{"abort: something unexpected", Abort},
	}

	c := Default()
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			got, ok := c.Classify(tt.line)
			require.True(t, ok, "no signature for %q", tt.line)
			assert.Equal(t, tt.want, got.Category, "line %q", tt.line)
		})
	}
}

func TestClassify_EveryCategoryHasASample(t *testing.T) {
	// Keep the table and the samples above in step.
	seen := map[Category]bool{}
	for _, s := range DefaultSignatures {
		seen[s.Category] = true
	}
	assert.Len(t, seen, 40)
}

func TestClassify_UnrecognizedLine(t *testing.T) {
	_, ok := Default().Classify("pulling from https://example.com/repo")
	assert.False(t, ok)
	_, ok = Default().Classify("")
	assert.False(t, ok)
}

func TestFailure_FirstAndLastLines(t *testing.T) {
	c := Default()

	err := c.Failure("update", []string{"abort: outstanding uncommitted merges"})
	require.Error(t, err)
	assert.ErrorIs(t, err, hgerr.ErrEngineReportedAbort)
	assert.Equal(t, string(MergeInProgress), hgerr.ReasonOf(err))

	err = c.Failure("pull", []string{"pulling from x", "searching for changes", "abort: http authorization required"})
	assert.ErrorIs(t, err, hgerr.ErrAuthenticationRequired)

	// Middle lines are not inspected.
	assert.NoError(t, c.Failure("log", []string{"rev:1", "desc: abort: not really", "endCS:"}))

	assert.NoError(t, c.Failure("incoming", []string{"comparing with x", "searching for changes", "no changes found"}))
	assert.NoError(t, c.Failure("status", nil))
}

func TestFailure_KeepsRawOutput(t *testing.T) {
	lines := []string{"abort: something odd happened"}
	err := Default().Failure("merge", lines)
	var he *hgerr.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, lines, he.Output)
	assert.Equal(t, "merge", he.Op)
	assert.Equal(t, string(Abort), he.Reason)
}

func TestBenign(t *testing.T) {
	c := Default()
	cat, ok := c.Benign([]string{"comparing with x", "no changes found"})
	assert.True(t, ok)
	assert.Equal(t, NoChangesFound, cat)

	_, ok = c.Benign([]string{"abort: unknown revision 'x'"})
	assert.False(t, ok)
}

func TestIs_IgnoresPrecedence(t *testing.T) {
	c := Default()
	line := "abort: repository default not found!"
	assert.True(t, c.Is(line, NoDefault))
	assert.True(t, c.Is(line, Abort))
	assert.True(t, c.Is(line, NoRepository))

	got, _ := c.Classify(line)
	assert.Equal(t, NoDefault, got.Category)
}

func TestErrorFor_Kinds(t *testing.T) {
	assert.Equal(t, hgerr.AuthenticationFailed, ErrorFor("push", nil, AuthFailed).Kind)
	assert.Equal(t, hgerr.ProxyPossiblyMisconfigured, ErrorFor("pull", nil, ProxyMisconfigured).Kind)
	assert.Equal(t, hgerr.ArgumentListTooLong, ErrorFor("add", nil, ArgumentListTooLong).Kind)
	assert.Equal(t, hgerr.Unavailable, ErrorFor("view", nil, ViewUnavailable).Kind)
	assert.Equal(t, hgerr.EngineReportedAbort, ErrorFor("merge", nil, MergeConflict).Kind)
	assert.Equal(t, hgerr.CommandFailed, Unrecognized("x", []string{"?"}).Kind)
}

func TestFirstLast(t *testing.T) {
	assert.Equal(t, "", First(nil))
	assert.Equal(t, "", Last(nil))
	assert.Equal(t, "a", First([]string{"a", "b"}))
	assert.Equal(t, "b", Last([]string{"a", "b"}))
}
