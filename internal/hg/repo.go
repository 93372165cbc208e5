package hg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/credentials"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
	"github.com/sergeknystautas/hgrun/internal/parse"
)

// ErrNotRepository is returned by RepoRoot outside any repository.
var ErrNotRepository = errors.New("not inside a mercurial repository")

// Engine versions that introduced flags used here.
var (
	topoVersion      = semver.MustParse("1.5.0")
	newBranchVersion = semver.MustParse("1.6.0")
)

// RepoRoot returns the closest directory at or above path that contains a
// .hg directory.
func RepoRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".hg")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, abs)
		}
		dir = parent
	}
}

// rootOf is RepoRoot that keeps path as given outside a repository.
func rootOf(path string) string {
	if path == "" {
		return ""
	}
	root, err := RepoRoot(path)
	if err != nil {
		return path
	}
	return root
}

// Init creates a repository at root. hg init is silent on success.
func (c *Client) Init(ctx context.Context, root string) error {
	inv := c.cmd("init").Args(root).Build()
	_, err := c.runAll(ctx, root, []*hgcmd.Invocation{inv}, func(lines []string) error {
		if len(lines) == 0 {
			return nil
		}
		if err := c.classifier.Failure("init", lines); err != nil {
			return err
		}
		return classify.Unrecognized("init", lines)
	})
	return err
}

// Clone copies source into target, creating the parent of target first.
// Passwords embedded in the source URL are removed from the new
// repository's hgrc.
func (c *Client) Clone(ctx context.Context, source, target string) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, hgerr.New(hgerr.IOFailure, "clone", nil, fmt.Errorf("failed to create parent directory: %w", err))
	}
	build := func(src string) *hgcmd.Invocation {
		return c.cmd("clone").Verbose().Args(src, target).Build()
	}
	lines, err := c.remote(ctx, "clone", target, source, build, func(lines []string) error {
		if c.classifier.FirstIs(lines, classify.NoRepository) {
			return classify.ErrorFor("clone", lines, classify.NoRepository)
		}
		if c.classifier.LastIs(lines, classify.NoResponse) {
			return classify.ErrorFor("clone", lines, classify.NoResponse)
		}
		return c.abortLast("clone")(lines)
	})
	if err != nil {
		return lines, err
	}
	if credentials.IsRemoteURL(source) {
		if err := credentials.ScrubPaths(target); err != nil {
			c.logger.Warn("failed to scrub cloned paths", zap.String("repo", target), zap.Error(err))
		}
	}
	return lines, nil
}

// Verify checks the integrity of repo.
func (c *Client) Verify(ctx context.Context, repo string) ([]string, error) {
	inv := c.cmd("verify").Repository(repo).Build()
	return c.run(ctx, inv, nonEmpty("verify", c.abortLast("verify")))
}

// Version returns the engine version. The first answer, success or
// failure, is cached for the life of the Client.
func (c *Client) Version(ctx context.Context) (*semver.Version, error) {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()
	if c.versionSet {
		return c.version, c.versionErr
	}
	lines, err := c.run(ctx, c.cmd("version").Build(), nil)
	if err != nil {
		if hgerr.IsCanceled(err) {
			return nil, err
		}
		c.version, c.versionErr, c.versionSet = nil, err, true
		return nil, err
	}
	v, raw, err := parse.ParseVersion(lines)
	if err != nil {
		c.logger.Info("unrecognized engine version", zap.String("version", raw), zap.Error(err))
		err = &hgerr.Error{Kind: hgerr.CommandFailed, Op: "version", Reason: "unrecognized version", Output: lines, Err: err}
	}
	c.version, c.versionErr, c.versionSet = v, err, true
	return v, err
}

// supports reports whether the engine is at least want. An unknown version
// is assumed to be recent.
func (c *Client) supports(ctx context.Context, want *semver.Version) bool {
	v, err := c.Version(ctx)
	if err != nil || v == nil {
		return true
	}
	return !v.LessThan(want)
}

// defaultPath asks hg for the path named name in repo. It returns "" when
// the path is not configured.
func (c *Client) defaultPath(ctx context.Context, repo, name string) string {
	inv := c.cmd("paths").Repository(repo).Args(name).Build()
	lines, err := c.run(ctx, inv, c.fatal("paths"))
	if err != nil || len(lines) == 0 {
		return ""
	}
	p := strings.TrimSpace(lines[0])
	if strings.HasPrefix(p, "not found") {
		return ""
	}
	return p
}
