package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeknystautas/hgrun/internal/notify"
)

func makeRepo(t *testing.T) (root, hgDir string) {
	t.Helper()
	root = t.TempDir()
	hgDir = filepath.Join(root, ".hg")
	require.NoError(t, os.Mkdir(hgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hgDir, "dirstate"), []byte("0"), 0644))
	return root, hgDir
}

func counter(count *atomic.Int32, repo *atomic.Value) notify.Notifier {
	return notify.Func(func(r string) {
		repo.Store(r)
		count.Add(1)
	})
}

func TestDebounceCollapse(t *testing.T) {
	root, hgDir := makeRepo(t)
	var count atomic.Int32
	var repo atomic.Value

	dw, err := New(counter(&count, &repo), 200*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, dw.Add(root))
	dw.Start()
	defer dw.Stop()

	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(hgDir, "dirstate"), []byte{byte('a' + i)}, 0644)
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return count.Load() > 0 }, 2*time.Second, 50*time.Millisecond)
	assert.LessOrEqual(t, count.Load(), int32(2))
	assert.Equal(t, root, repo.Load())
}

func TestIgnoresUnrelatedFiles(t *testing.T) {
	root, hgDir := makeRepo(t)
	var count atomic.Int32
	var repo atomic.Value

	dw, err := New(counter(&count, &repo), 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, dw.Add(root))
	dw.Start()
	defer dw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(hgDir, "wlock.tmp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestBranchWriteNotifies(t *testing.T) {
	root, hgDir := makeRepo(t)
	var count atomic.Int32
	var repo atomic.Value

	dw, err := New(counter(&count, &repo), 20*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, dw.Add(root))
	dw.Start()
	defer dw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(hgDir, "branch"), []byte("stable\n"), 0644))
	require.Eventually(t, func() bool { return count.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestAddRemove(t *testing.T) {
	root, hgDir := makeRepo(t)
	var count atomic.Int32
	var repo atomic.Value

	dw, err := New(counter(&count, &repo), 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer dw.Stop()

	require.NoError(t, dw.Add(root))
	require.NoError(t, dw.Add(root))
	assert.Equal(t, []string{root}, dw.Watched())

	dw.Remove(root)
	assert.Empty(t, dw.Watched())
	dw.Start()

	require.NoError(t, os.WriteFile(filepath.Join(hgDir, "dirstate"), []byte("y"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestAdd_NotARepository(t *testing.T) {
	dw, err := New(notify.Nop{}, time.Millisecond, nil)
	require.NoError(t, err)
	defer dw.Stop()
	assert.Error(t, dw.Add(t.TempDir()))
}

func TestStopIdempotent(t *testing.T) {
	dw, err := New(notify.Nop{}, time.Millisecond, nil)
	require.NoError(t, err)
	dw.Start()
	dw.Stop()
	dw.Stop()
}
