package hg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeknystautas/hgrun/internal/hgerr"
	"github.com/sergeknystautas/hgrun/internal/parse"
	"github.com/sergeknystautas/hgrun/internal/runner"
)

func longNames(root string, n int) ([]string, []string) {
	var abs, rel []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("dir/%02d-%s.txt", i, strings.Repeat("x", 60))
		abs = append(abs, filepath.Join(root, name))
		rel = append(rel, name)
	}
	return abs, rel
}

func TestAdd_SplitsLongFileLists(t *testing.T) {
	c, fake, rec := newTestClient(t, func(o *Options) { o.MaxCommandLine = 1024 })
	abs, rel := longNames("/repo", 40)

	require.NoError(t, c.Add(context.Background(), "/repo", abs))

	calls := fake.CallsFor("add")
	require.Greater(t, len(calls), 1)
	var got []string
	for _, call := range calls {
		assert.Equal(t, "/repo", argAfter(call.Args, "--cwd"))
		assert.Equal(t, "/repo", argAfter(call.Args, "--repository"))
		length := len(runner.ExecutablePlaceholder) + 1
		for _, a := range call.Args {
			length += len(a) + 1
		}
		assert.LessOrEqual(t, length, 1024)
		for _, a := range call.Args {
			if strings.HasPrefix(a, "dir/") {
				got = append(got, a)
			}
		}
	}
	assert.Equal(t, rel, got)
	assert.Empty(t, rec.changes())
}

func TestAdd_Output(t *testing.T) {
	tests := []struct {
		name    string
		output  []string
		wantErr string
	}{
		{name: "silent"},
		{name: "already tracked", output: []string{"a.txt already tracked!"}},
		{name: "adding", output: []string{"adding b.txt"}},
		{name: "large file", output: []string{"big.bin: files over 10MB may cause memory and performance problems"}},
		{name: "missing", output: []string{"gone.txt: No such file or directory"}, wantErr: "no-such-file"},
		{name: "abort", output: []string{"abort: something broke"}, wantErr: "abort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, _ := newTestClient(t)
			fake.StubLines("add", tt.output...)

			err := c.Add(context.Background(), "/repo", []string{"/repo/a.txt"})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, hgerr.ReasonOf(err))
		})
	}
}

func TestAdd_NoFilesIsNoop(t *testing.T) {
	c, fake, _ := newTestClient(t)
	require.NoError(t, c.Add(context.Background(), "/repo", nil))
	assert.Empty(t, fake.Calls())
}

func TestRemove_UnrecognizedOutputFails(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.StubLines("remove", "not removing a.txt: file is untracked")

	err := c.Remove(context.Background(), "/repo", []string{"a.txt"})
	assert.ErrorIs(t, err, hgerr.ErrCommandFailed)
}

func TestStatus(t *testing.T) {
	c, fake, rec := newTestClient(t)
	fake.StubLines("status",
		"M a.txt",
		"A b.txt",
		"  a.txt",
		"? new.txt",
	)

	res, err := c.Status(context.Background(), "/repo", StatusOptions{Copies: true, RevFrom: "3"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, parse.FileStatusEntry{Path: "b.txt", Status: parse.StatusAdded, Origin: "a.txt"}, res.Entries[1])
	assert.Equal(t, parse.StatusUntracked, res.Map()["new.txt"].Status)

	args := fake.CallsFor("status")[0].Args
	assert.Equal(t, "-marduC", args[1])
	assert.Equal(t, "3", argAfter(args, "--rev"))
	assert.Empty(t, rec.changes())
}

func TestStatus_NotARepository(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.StubLines("status", "abort: There is no Mercurial repository here (.hg not found)!")

	_, err := c.Status(context.Background(), "/nowhere", StatusOptions{})
	assert.Equal(t, "no-repository", hgerr.ReasonOf(err))
}

func TestCommit(t *testing.T) {
	repo := newRepoDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".hg", "hgrc"), []byte("[ui]\nusername = Repo User <repo@example.com>\n"), 0644))
	c, fake, rec := newTestClient(t)

	var message, logfile string
	fake.StubFunc(func(req runner.Request) bool {
		if req.Subcommand() != "commit" {
			return false
		}
		logfile = argAfter(req.Args, "--logfile")
		data, err := os.ReadFile(logfile)
		require.NoError(t, err)
		message = string(data)
		return true
	})

	err := c.Commit(context.Background(), repo, CommitOptions{
		Files:   []string{filepath.Join(repo, "src", "a.txt")},
		Message: "Fix \"quoted\" things\n\nbody",
	})
	require.NoError(t, err)

	assert.Equal(t, "Fix \"quoted\" things\n\nbody", message)
	_, statErr := os.Stat(logfile)
	assert.True(t, os.IsNotExist(statErr))

	args := fake.CallsFor("commit")[0].Args
	assert.Equal(t, "Repo User <repo@example.com>", argAfter(args, "--user"))
	assert.Equal(t, repo, argAfter(args, "--cwd"))
	assert.Equal(t, filepath.Join("src", "a.txt"), args[len(args)-1])
	assert.Equal(t, []string{repo}, rec.changes())
}

func TestCommit_UserPrecedence(t *testing.T) {
	repo := newRepoDir(t)
	c, fake, _ := newTestClient(t, func(o *Options) { o.Username = "Configured <c@example.com>" })
	ctx := context.Background()

	require.NoError(t, c.Commit(ctx, repo, CommitOptions{User: "Explicit <e@example.com>"}))
	require.NoError(t, c.Commit(ctx, repo, CommitOptions{}))

	calls := fake.CallsFor("commit")
	require.Len(t, calls, 2)
	assert.Equal(t, "Explicit <e@example.com>", argAfter(calls[0].Args, "--user"))
	assert.Equal(t, "Configured <c@example.com>", argAfter(calls[1].Args, "--user"))
}

func TestCommit_DefaultMessage(t *testing.T) {
	c, fake, _ := newTestClient(t)
	var message string
	fake.StubFunc(func(req runner.Request) bool {
		data, err := os.ReadFile(argAfter(req.Args, "--logfile"))
		require.NoError(t, err)
		message = string(data)
		return true
	})

	require.NoError(t, c.Commit(context.Background(), t.TempDir(), CommitOptions{}))
	assert.Equal(t, DefaultCommitMessage, message)
}

func TestCommit_TooLong(t *testing.T) {
	c, fake, rec := newTestClient(t, func(o *Options) { o.MaxCommandLine = 1024 })
	abs, _ := longNames("/repo", 40)

	err := c.Commit(context.Background(), "/repo", CommitOptions{Files: abs, Message: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, hgerr.ErrArgumentListTooLong)
	assert.Contains(t, err.Error(), "1024")
	assert.Empty(t, fake.Calls())
	assert.Empty(t, rec.changes())
}

func TestCommit_Failures(t *testing.T) {
	tests := []struct {
		name   string
		output []string
		reason string
	}{
		{"partial merge", []string{"abort: cannot partially commit a merge (do not specify files or patterns)"}, "commit-after-merge"},
		{"untracked", []string{"x.txt: not tracked!", "abort: x.txt: file not tracked!"}, "not-tracked"},
		{"unreadable message", []string{"abort: can't read commit message '/tmp/m': No such file"}, "cannot-read-commit-message"},
		{"generic", []string{"abort: something else"}, "abort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, rec := newTestClient(t)
			fake.StubLines("commit", tt.output...)

			err := c.Commit(context.Background(), t.TempDir(), CommitOptions{Message: "m"})
			require.Error(t, err)
			assert.Equal(t, tt.reason, hgerr.ReasonOf(err))
			assert.Empty(t, rec.changes())
		})
	}
}

func TestCommit_NothingChangedIsSuccess(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.StubLines("commit", "nothing changed")

	assert.NoError(t, c.Commit(context.Background(), t.TempDir(), CommitOptions{Message: "m"}))
}

func TestRename(t *testing.T) {
	c, fake, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Rename(ctx, "/repo", "/repo/old.txt", "/repo/new.txt", false))
	assert.Equal(t, []string{"rename --repository /repo --cwd /repo old.txt new.txt"}, fake.CommandLines())

	fake.StubLines("rename", "abort: no files to copy")
	assert.NoError(t, c.Rename(ctx, "/repo", "/repo/old.txt", "/repo/new.txt", true))

	err := c.Rename(ctx, "/repo", "/repo/old.txt", "/repo/new.txt", false)
	assert.Equal(t, "no-files-to-copy", hgerr.ReasonOf(err))
}

func TestCopy(t *testing.T) {
	tests := []struct {
		name    string
		after   bool
		output  []string
		want    string
		wantErr string
	}{
		{name: "copy", want: "copy --repository /repo --cwd /repo a.txt sub/b.txt"},
		{name: "record after the fact", after: true, want: "copy -A --repository /repo --cwd /repo a.txt sub/b.txt"},
		{name: "already recorded", after: true, output: []string{"abort: no files to copy"}, want: "copy -A --repository /repo --cwd /repo a.txt sub/b.txt"},
		{name: "missing source", output: []string{"abort: no files to copy"}, want: "copy --repository /repo --cwd /repo a.txt sub/b.txt", wantErr: "no-files-to-copy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, rec := newTestClient(t)
			fake.StubLines("copy", tt.output...)

			err := c.Copy(context.Background(), "/repo", "/repo/a.txt", "/repo/sub/b.txt", tt.after)
			assert.Equal(t, []string{tt.want}, fake.CommandLines())
			assert.Empty(t, rec.changes())
			if tt.wantErr != "" {
				assert.ErrorIs(t, err, hgerr.ErrEngineReportedAbort)
				assert.Equal(t, tt.wantErr, hgerr.ReasonOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRevert_NoBackup(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.StubLines("revert", "reverting a.txt")

	require.NoError(t, c.Revert(context.Background(), "/repo", []string{"/repo/a.txt"}, "5", true))
	args := fake.CallsFor("revert")[0].Args
	assert.Contains(t, args, "--no-backup")
	assert.Equal(t, "5", argAfter(args, "-r"))
	assert.Equal(t, "a.txt", args[len(args)-1])
}

func TestPurge_Excludes(t *testing.T) {
	c, fake, _ := newTestClient(t)

	require.NoError(t, c.Purge(context.Background(), "/repo", nil, []string{"*.keep"}))
	args := fake.CallsFor("purge")[0].Args
	assert.Contains(t, args, "extensions.purge=")
	assert.Equal(t, "*.keep", argAfter(args, "--exclude"))
}

func TestUnresolvedFiles(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.StubLines("resolve", "U a.txt", "R b.txt", "U dir/c.txt")

	files, err := c.UnresolvedFiles(context.Background(), "/repo", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dir/c.txt"}, files)
}
