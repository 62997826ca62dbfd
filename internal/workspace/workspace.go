// Package workspace is the orchestrator of one project session. It owns the
// chat reducer, the file registry and the open-file set, and wires them to
// the channel, the sandbox mounter, the local store and the upstream API.
//
// All state lives behind a single event loop goroutine. Public methods post
// closures onto the loop and wait for them; nothing else ever touches the
// reducer or the registry, which is why neither carries its own locking.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"devroom/internal/channel"
	"devroom/internal/chat"
	"devroom/internal/filetree"
	"devroom/internal/logger"
	"devroom/internal/project"
	"devroom/internal/store"
)

const defaultMountTimeout = 30 * time.Second

var (
	// ErrClosed is returned for operations posted after Close.
	ErrClosed = errors.New("workspace: closed")
	// ErrUnknownPath is returned when opening a file no collection knows.
	ErrUnknownPath = errors.New("workspace: unknown file path")
)

// Store is the slice of the persistence layer the workspace uses. Every save
// is a full overwrite; failures are logged and never fail the operation that
// triggered them.
type Store interface {
	Load(projectID string) (*store.PersistedSession, error)
	SaveChat(projectID string, events []chat.Event) error
	SaveArchive(projectID string, tree filetree.Tree) error
	ClearChat(projectID string) error
}

// Channel is the realtime transport slice the workspace speaks.
type Channel interface {
	Send(event string, payload interface{}) error
	Subscribe(event string, h channel.Handler)
}

// Mounter materializes a mounted tree snapshot into the sandbox.
type Mounter interface {
	Mount(ctx context.Context, tree filetree.Tree) error
}

// Upstream is the slice of the project API the workspace pushes tree
// updates to.
type Upstream interface {
	GetProject(ctx context.Context, id string) (*project.Project, error)
	UpdateFileTree(ctx context.Context, projectID string, tree filetree.Tree) error
}

// Options configures a workspace. Store, Mounter and Upstream may be nil;
// the workspace then runs without persistence, without a sandbox, or without
// pushing tree updates, respectively.
type Options struct {
	ProjectID    string
	User         chat.UserRef
	Store        Store
	Channel      Channel
	Mounter      Mounter
	Upstream     Upstream
	MountTimeout time.Duration
}

// Workspace is one project session.
type Workspace struct {
	projectID string
	user      chat.UserRef
	log       *logger.Logger

	registry  *filetree.Registry
	reducer   *chat.Reducer
	openFiles *filetree.OpenFiles

	store    Store
	ch       Channel
	mounter  Mounter
	upstream Upstream

	mountTimeout time.Duration

	ops  chan func()
	done chan struct{}
	stop func()

	mountMu      sync.Mutex
	pendingMount filetree.Tree
	mountKick    chan struct{}
}

// New creates a workspace. Call Start before any operation.
func New(opts Options) *Workspace {
	registry := filetree.NewRegistry()

	w := &Workspace{
		projectID:    opts.ProjectID,
		user:         opts.User,
		log:          logger.Global().WithPrefix("workspace"),
		registry:     registry,
		reducer:      chat.NewReducer(registry),
		openFiles:    filetree.NewOpenFiles(),
		store:        opts.Store,
		ch:           opts.Channel,
		mounter:      opts.Mounter,
		upstream:     opts.Upstream,
		mountTimeout: opts.MountTimeout,
		ops:          make(chan func(), 64),
		done:         make(chan struct{}),
		mountKick:    make(chan struct{}, 1),
	}
	if w.mountTimeout <= 0 {
		w.mountTimeout = defaultMountTimeout
	}

	var once sync.Once
	w.stop = func() { once.Do(func() { close(w.done) }) }
	return w
}

// Start launches the event loop, hydrates state from the store and the
// upstream project record, mounts the initial tree and subscribes to the
// project channel. Persistence and upstream failures degrade to warnings;
// only a nil channel send path is considered fatal downstream.
func (w *Workspace) Start(ctx context.Context) error {
	go w.run()
	go w.mountLoop()

	err := w.do(func() {
		w.hydrate(ctx)

		if tree := w.registry.MountedSnapshot(); len(tree) > 0 {
			w.mount(tree)
		}
	})
	if err != nil {
		return err
	}

	if w.ch != nil {
		w.ch.Subscribe(chat.EventProjectMessage, w.onChannelMessage)
	}
	return nil
}

// Close stops the event loop. Pending posted operations may be dropped.
func (w *Workspace) Close() {
	w.stop()
}

func (w *Workspace) run() {
	for {
		select {
		case op := <-w.ops:
			w.runOp(op)
		case <-w.done:
			return
		}
	}
}

// runOp isolates one operation; a panic is logged and the loop survives, so
// one malformed event cannot take the whole session down.
func (w *Workspace) runOp(op func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("operation panicked: %v", r)
		}
	}()
	op()
}

// do posts an operation and waits for it to finish.
func (w *Workspace) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case w.ops <- func() { defer close(finished); fn() }:
	case <-w.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-w.done:
		return ErrClosed
	}
}

// doAsync posts an operation without waiting. Used from channel callbacks,
// which must never block the transport's read loop on the workspace.
func (w *Workspace) doAsync(fn func()) {
	select {
	case w.ops <- fn:
	case <-w.done:
	}
}

// hydrate rebuilds state for the project: the locally persisted chat log and
// archive first, then the server's mounted tree on top. Server fragments win
// for paths both sides know; archive-only paths stay archived and unmounted.
func (w *Workspace) hydrate(ctx context.Context) {
	if w.store != nil {
		persisted, err := w.store.Load(w.projectID)
		switch {
		case err == nil:
			w.reducer.Hydrate(persisted.ChatLog)
			w.registry.SeedArchive(persisted.Archive)
			w.log.Info("restored %d chat events and %d archived files for project %s",
				len(persisted.ChatLog), len(persisted.Archive), w.projectID)
		case errors.Is(err, store.ErrNotFound):
			// First visit, nothing to restore.
		default:
			w.log.Warn("treating persisted session as absent: %v", err)
		}
	}

	if w.upstream != nil {
		p, err := w.upstream.GetProject(ctx, w.projectID)
		if err != nil {
			w.log.Warn("failed to fetch project %s, entering with local state only: %v", w.projectID, err)
			return
		}
		w.registry.SeedMounted(p.FileTree)
	}
}

// onChannelMessage receives raw project-message frames from the transport.
func (w *Workspace) onChannelMessage(data json.RawMessage) {
	var pm chat.ProjectMessage
	if err := json.Unmarshal(data, &pm); err != nil {
		w.log.Warn("dropping undecodable project message: %v", err)
		return
	}
	w.doAsync(func() { w.applyInbound(pm) })
}

func (w *Workspace) applyInbound(pm chat.ProjectMessage) {
	merged := w.reducer.HandleInbound(pm)
	w.persistChat()

	if merged == nil {
		return
	}
	w.mount(merged)
	w.persistArchive()
}

// SendMessage applies the local-send rules and, when the message qualifies,
// transmits it on the project channel. The result tells the caller whether
// anything was appended or sent.
func (w *Workspace) SendMessage(text string) (chat.SendResult, error) {
	var result chat.SendResult
	var sendErr error

	err := w.do(func() {
		var wire string
		result, wire = w.reducer.SendLocal(w.user, text)

		switch result {
		case chat.SendIgnored:
			return
		case chat.SendRejected:
			w.persistChat()
			return
		}

		if w.ch != nil {
			pm := chat.ProjectMessage{Message: wire, Sender: w.user}
			if err := w.ch.Send(chat.EventProjectMessage, pm); err != nil {
				sendErr = err
			}
		}
		w.persistChat()
	})
	if err != nil {
		return chat.SendIgnored, err
	}
	return result, sendErr
}

// EditFile applies a local edit to a file, remounts the sandbox and pushes
// the new mounted tree upstream. Editing a path with unchanged contents is a
// no-op, which also keeps sandbox watch notifications from looping back.
func (w *Workspace) EditFile(path, contents string) error {
	return w.do(func() {
		if frag, ok := w.registry.Resolve(path); ok && w.registry.IsMounted(path) && frag.Contents() == contents {
			return
		}

		snapshot := w.registry.Edit(path, contents)
		w.mount(snapshot)
		w.persistArchive()
		w.pushTreeUpstream(snapshot)
	})
}

// OpenFile focuses a file and returns its fragment. Opening an archive-only
// file promotes it into the mounted tree, with the same mount, persistence
// and upstream propagation as an edit.
func (w *Workspace) OpenFile(path string) (filetree.Fragment, error) {
	var frag filetree.Fragment
	var known bool

	err := w.do(func() {
		frag, known = w.registry.Resolve(path)
		if !known {
			return
		}

		if snapshot, changed := w.registry.Promote(path); changed {
			w.mount(snapshot)
			w.persistArchive()
			w.pushTreeUpstream(snapshot)
		}
		w.openFiles.Open(path)
	})
	if err != nil {
		return filetree.Fragment{}, err
	}
	if !known {
		return filetree.Fragment{}, ErrUnknownPath
	}
	return frag, nil
}

// CloseFile removes a path from the open set. Its file state is untouched.
func (w *Workspace) CloseFile(path string) error {
	return w.do(func() { w.openFiles.Close(path) })
}

// ResetConversation clears the chat log, locally and in the store. File
// state survives; only a session teardown removes files.
func (w *Workspace) ResetConversation() error {
	return w.do(func() {
		w.reducer.Reset()
		if w.store != nil {
			if err := w.store.ClearChat(w.projectID); err != nil {
				w.log.Warn("failed to clear persisted chat: %v", err)
			}
		}
	})
}

// ApplySandboxEdit folds a file change made inside the sandbox back into the
// registry, as if the user had edited it. Changes that match the registry's
// view are dropped; those are the echoes of our own mounts.
func (w *Workspace) ApplySandboxEdit(path, contents string) {
	w.doAsync(func() {
		if frag, ok := w.registry.Resolve(path); ok && w.registry.IsMounted(path) && frag.Contents() == contents {
			return
		}
		snapshot := w.registry.Edit(path, contents)
		w.persistArchive()
		w.pushTreeUpstream(snapshot)
	})
}

// mount hands a snapshot to the mount worker. The event loop never waits on
// the sandbox; the in-memory tree stays the source of truth and a slow or
// failing mount only delays the projection. Snapshots coalesce: mounts are
// full replaces, so only the newest pending snapshot matters.
func (w *Workspace) mount(tree filetree.Tree) {
	if w.mounter == nil {
		return
	}
	w.mountMu.Lock()
	w.pendingMount = tree
	w.mountMu.Unlock()

	select {
	case w.mountKick <- struct{}{}:
	default:
	}
}

func (w *Workspace) mountLoop() {
	for {
		select {
		case <-w.mountKick:
		case <-w.done:
			return
		}

		w.mountMu.Lock()
		tree := w.pendingMount
		w.pendingMount = nil
		w.mountMu.Unlock()
		if tree == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.mountTimeout)
		if err := w.mounter.Mount(ctx, tree); err != nil {
			w.log.Error("failed to mount %d files: %v", len(tree), err)
		}
		cancel()
	}
}

func (w *Workspace) persistChat() {
	if w.store == nil {
		return
	}
	if err := w.store.SaveChat(w.projectID, w.reducer.Events()); err != nil {
		w.log.Warn("failed to persist chat log: %v", err)
	}
}

func (w *Workspace) persistArchive() {
	if w.store == nil {
		return
	}
	if err := w.store.SaveArchive(w.projectID, w.registry.ArchiveSnapshot()); err != nil {
		w.log.Warn("failed to persist archive: %v", err)
	}
}

func (w *Workspace) pushTreeUpstream(tree filetree.Tree) {
	if w.upstream == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.mountTimeout)
	defer cancel()
	if err := w.upstream.UpdateFileTree(ctx, w.projectID, tree); err != nil {
		w.log.Warn("failed to push file tree upstream: %v", err)
	}
}

// Events returns the chat log in append order.
func (w *Workspace) Events() []chat.Event {
	var events []chat.Event
	_ = w.do(func() { events = w.reducer.Events() })
	return events
}

// AIPending reports whether an AI reply is outstanding.
func (w *Workspace) AIPending() bool {
	var pending bool
	_ = w.do(func() { pending = w.reducer.AIPending() })
	return pending
}

// AIPendingSince returns when the outstanding AI request was sent, if any.
func (w *Workspace) AIPendingSince() (time.Time, bool) {
	var since time.Time
	var ok bool
	_ = w.do(func() { since, ok = w.reducer.AIPendingSince() })
	return since, ok
}

// MountedTree returns a copy of the current mounted tree.
func (w *Workspace) MountedTree() filetree.Tree {
	var tree filetree.Tree
	_ = w.do(func() { tree = w.registry.MountedSnapshot() })
	return tree
}

// ArchiveTree returns a copy of the full archive.
func (w *Workspace) ArchiveTree() filetree.Tree {
	var tree filetree.Tree
	_ = w.do(func() { tree = w.registry.ArchiveSnapshot() })
	return tree
}

// UnmountedPaths lists archive-only paths in sorted order.
func (w *Workspace) UnmountedPaths() []string {
	var paths []string
	_ = w.do(func() { paths = w.registry.UnmountedPaths() })
	return paths
}

// OpenFileList returns the open paths in insertion order.
func (w *Workspace) OpenFileList() []string {
	var paths []string
	_ = w.do(func() { paths = w.openFiles.List() })
	return paths
}

// CurrentFile returns the focused path, or "" when nothing is open.
func (w *Workspace) CurrentFile() string {
	var current string
	_ = w.do(func() { current = w.openFiles.Current() })
	return current
}
