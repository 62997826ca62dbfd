package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"devroom/internal/filetree"
	"devroom/internal/logger"
)

// ReadyFileName is the control file the sandbox runtime writes once its
// server is listening. Its JSON body carries the port and preview URL.
const ReadyFileName = ".server-ready.json"

// DirMounter projects the mounted tree into a directory on the local
// filesystem and watches that directory for activity originating inside the
// sandbox: runtime edits to project files and the server-ready control file.
type DirMounter struct {
	root string
	log  *logger.Logger

	mu          sync.Mutex
	lastMounted map[string]string
	onReady     []func(ServerReady)
	onChange    []func(path, contents string)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewDirMounter creates a mounter rooted at dir, creating it if needed.
func NewDirMounter(dir string) (*DirMounter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sandbox: failed to create mount root: %w", err)
	}
	return &DirMounter{
		root:        dir,
		log:         logger.Global().WithPrefix("sandbox"),
		lastMounted: make(map[string]string),
	}, nil
}

// Root returns the mount root directory.
func (m *DirMounter) Root() string {
	return m.root
}

// OnServerReady registers a callback for the runtime's ready signal.
func (m *DirMounter) OnServerReady(fn func(ServerReady)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = append(m.onReady, fn)
}

// OnFileChanged registers a callback for files modified inside the sandbox
// by something other than Mount. The path uses the tree's flat key form.
func (m *DirMounter) OnFileChanged(fn func(path, contents string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// safeRelPath converts a flat tree key into a relative filesystem path,
// rejecting anything that would escape the mount root.
func safeRelPath(key string) (string, bool) {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return "", false
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	if filepath.IsAbs(clean) {
		return "", false
	}
	return clean, true
}

// Mount reconciles the snapshot into the root directory: every snapshot file
// is written, every previously mounted file absent from the snapshot is
// removed. Files the runtime created on its own (dependencies, build output,
// dotfiles) are left alone.
func (m *DirMounter) Mount(ctx context.Context, tree filetree.Tree) error {
	m.mu.Lock()
	previous := m.lastMounted
	m.mu.Unlock()

	next := make(map[string]string, len(tree))

	for key, frag := range tree {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, ok := safeRelPath(key)
		if !ok {
			m.log.Warn("skipping unsafe path %q", key)
			continue
		}

		next[key] = frag.Contents()

		if prev, had := previous[key]; had && prev == frag.Contents() {
			continue
		}

		abs := filepath.Join(m.root, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return fmt.Errorf("sandbox: failed to create %s: %w", filepath.Dir(abs), err)
		}
		if err := writeFileAtomic(abs, []byte(frag.Contents())); err != nil {
			return fmt.Errorf("sandbox: failed to write %s: %w", rel, err)
		}
	}

	// Remove files that fell out of the snapshot.
	for key := range previous {
		if _, keep := next[key]; keep {
			continue
		}
		rel, ok := safeRelPath(key)
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(m.root, rel)); err != nil && !os.IsNotExist(err) {
			m.log.Warn("failed to remove stale file %s: %v", rel, err)
		}
	}

	m.mu.Lock()
	m.lastMounted = next
	m.mu.Unlock()

	m.log.Debug("mounted %d files", len(next))
	return nil
}

// writeFileAtomic writes via a temp file and rename so the runtime never
// observes a half-written file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Watch starts observing the mount root. It returns immediately; events are
// delivered on a background goroutine until Close.
func (m *DirMounter) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sandbox: failed to create watcher: %w", err)
	}
	m.watcher = watcher

	// Watch the root and any existing subdirectories.
	err = filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := watcher.Add(path); addErr != nil {
				m.log.Warn("failed to watch %s: %v", path, addErr)
			}
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("sandbox: failed to walk mount root: %w", err)
	}

	m.wg.Add(1)
	go m.watchLoop(watcher)
	return nil
}

func (m *DirMounter) watchLoop(watcher *fsnotify.Watcher) {
	defer m.wg.Done()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("watch error: %v", err)
		}
	}
}

func (m *DirMounter) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// New directories need their own watch for recursive coverage.
		if event.Has(fsnotify.Create) {
			if err := watcher.Add(event.Name); err != nil {
				m.log.Warn("failed to watch new dir %s: %v", event.Name, err)
			}
		}
		return
	}

	rel, err := filepath.Rel(m.root, event.Name)
	if err != nil {
		return
	}
	key := filepath.ToSlash(rel)

	if key == ReadyFileName {
		m.fireServerReady(event.Name)
		return
	}
	if strings.HasSuffix(key, ".tmp") || strings.HasPrefix(filepath.Base(key), ".") {
		return
	}

	data, err := os.ReadFile(event.Name)
	if err != nil {
		return
	}
	contents := string(data)

	m.mu.Lock()
	prev, mounted := m.lastMounted[key]
	suppress := !mounted || prev == contents
	if mounted {
		m.lastMounted[key] = contents
	}
	handlers := append([]func(string, string){}, m.onChange...)
	m.mu.Unlock()

	// Our own Mount writes come back through the watcher, and the runtime
	// creates plenty of private files (dependencies, build output). Only
	// genuine out-of-band changes to mounted files are reported.
	if suppress {
		return
	}

	m.log.Debug("out-of-band change to %s", key)
	for _, h := range handlers {
		h(key, contents)
	}
}

func (m *DirMounter) fireServerReady(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var ready ServerReady
	if err := json.Unmarshal(data, &ready); err != nil {
		m.log.Warn("unparseable ready file: %v", err)
		return
	}

	m.mu.Lock()
	handlers := append([]func(ServerReady){}, m.onReady...)
	m.mu.Unlock()

	m.log.Info("sandbox server ready on port %d: %s", ready.Port, ready.URL)
	for _, h := range handlers {
		h(ready)
	}
}

// Close stops the watcher.
func (m *DirMounter) Close() error {
	if m.watcher != nil {
		err := m.watcher.Close()
		m.wg.Wait()
		return err
	}
	return nil
}
