package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devroom/internal/filetree"
)

func TestMountWritesTree(t *testing.T) {
	m, err := NewDirMounter(filepath.Join(t.TempDir(), "box"))
	require.NoError(t, err)

	tree := filetree.Tree{
		"app.js":        filetree.NewFragment("console.log(1)"),
		"routes/api.js": filetree.NewFragment("module.exports = {}"),
	}
	require.NoError(t, m.Mount(context.Background(), tree))

	data, err := os.ReadFile(filepath.Join(m.Root(), "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))

	data, err = os.ReadFile(filepath.Join(m.Root(), "routes", "api.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {}", string(data))
}

func TestMountIsFullReplace(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Mount(ctx, filetree.Tree{
		"keep.js": filetree.NewFragment("1"),
		"drop.js": filetree.NewFragment("2"),
	}))
	require.NoError(t, m.Mount(ctx, filetree.Tree{
		"keep.js": filetree.NewFragment("1 updated"),
	}))

	data, err := os.ReadFile(filepath.Join(m.Root(), "keep.js"))
	require.NoError(t, err)
	assert.Equal(t, "1 updated", string(data))

	_, err = os.Stat(filepath.Join(m.Root(), "drop.js"))
	assert.True(t, os.IsNotExist(err), "files absent from the snapshot must be removed")
}

func TestMountIsIdempotent(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	tree := filetree.Tree{"a.js": filetree.NewFragment("1")}

	require.NoError(t, m.Mount(ctx, tree))
	require.NoError(t, m.Mount(ctx, tree))

	data, err := os.ReadFile(filepath.Join(m.Root(), "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestMountLeavesRuntimeFilesAlone(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Mount(ctx, filetree.Tree{"a.js": filetree.NewFragment("1")}))

	// The runtime drops its own files into the box.
	private := filepath.Join(m.Root(), "node_modules_stub.txt")
	require.NoError(t, os.WriteFile(private, []byte("installed"), 0644))

	require.NoError(t, m.Mount(ctx, filetree.Tree{"a.js": filetree.NewFragment("2")}))

	_, err = os.Stat(private)
	assert.NoError(t, err, "runtime-created files must survive a remount")
}

func TestMountSkipsUnsafePaths(t *testing.T) {
	root := t.TempDir()
	m, err := NewDirMounter(filepath.Join(root, "box"))
	require.NoError(t, err)

	require.NoError(t, m.Mount(context.Background(), filetree.Tree{
		"../escape.txt": filetree.NewFragment("nope"),
		"/abs.txt":      filetree.NewFragment("nope"),
		"ok.txt":        filetree.NewFragment("fine"),
	}))

	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(m.Root(), "ok.txt"))
	assert.NoError(t, err)
}

func TestMountHonorsCancelledContext(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = m.Mount(ctx, filetree.Tree{"a.js": filetree.NewFragment("1")})
	assert.ErrorIs(t, err, context.Canceled)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestWatchReportsOutOfBandEdits(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	changed := make(chan struct{}, 4)
	var gotPath, gotContents string
	m.OnFileChanged(func(path, contents string) {
		gotPath, gotContents = path, contents
		changed <- struct{}{}
	})

	require.NoError(t, m.Mount(context.Background(), filetree.Tree{
		"a.js": filetree.NewFragment("original"),
	}))
	require.NoError(t, m.Watch())

	// Simulate the runtime rewriting a mounted file.
	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "a.js"), []byte("patched"), 0644))

	waitFor(t, changed, "out-of-band edit")
	assert.Equal(t, "a.js", gotPath)
	assert.Equal(t, "patched", gotContents)
}

func TestWatchIgnoresRuntimePrivateFiles(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	changed := make(chan struct{}, 4)
	m.OnFileChanged(func(string, string) { changed <- struct{}{} })

	require.NoError(t, m.Watch())
	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "private.log"), []byte("x"), 0644))

	select {
	case <-changed:
		t.Fatal("unmounted file change should not be reported")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatchFiresServerReady(t *testing.T) {
	m, err := NewDirMounter(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	ready := make(chan ServerReady, 1)
	m.OnServerReady(func(r ServerReady) { ready <- r })

	require.NoError(t, m.Watch())
	require.NoError(t, os.WriteFile(
		filepath.Join(m.Root(), ReadyFileName),
		[]byte(`{"port":3000,"url":"http://localhost:3000"}`), 0644))

	select {
	case r := <-ready:
		assert.Equal(t, 3000, r.Port)
		assert.Equal(t, "http://localhost:3000", r.URL)
	case <-time.After(5 * time.Second):
		t.Fatal("server-ready never fired")
	}
}
