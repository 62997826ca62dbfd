package filetree

import "sort"

// Registry owns the two overlapping file collections of a workspace. The
// archive accumulates every fragment ever seen; mounted is tracked as a key
// set over the archive, so mounted is a subset of the archive by
// construction rather than by convention.
//
// The registry is not internally synchronized. All mutation entry points are
// expected to run on the workspace event loop, which serializes them.
type Registry struct {
	archive Tree
	mounted map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		archive: make(Tree),
		mounted: make(map[string]struct{}),
	}
}

// SeedMounted loads the server-persisted mounted tree during hydration. Every
// seeded path becomes both archived and mounted.
func (r *Registry) SeedMounted(tree Tree) {
	for path, frag := range tree {
		r.archive[path] = frag
		r.mounted[path] = struct{}{}
	}
}

// SeedArchive loads persisted archive entries during hydration without
// mounting them. Paths already mounted keep their mounted fragment.
func (r *Registry) SeedArchive(tree Tree) {
	for path, frag := range tree {
		if _, ok := r.archive[path]; ok {
			continue
		}
		r.archive[path] = frag
	}
}

// Merge writes an AI-produced fragment into the archive and mounts it.
// A later fragment for the same path fully replaces the earlier one. Returns
// the new mounted snapshot for propagation to the sandbox and persistence.
func (r *Registry) Merge(path string, frag Fragment) Tree {
	r.archive[path] = frag
	r.mounted[path] = struct{}{}
	return r.MountedSnapshot()
}

// MergeAll merges every fragment of an AI file tree. Returns the mounted
// snapshot after all writes, or nil when the tree is empty.
func (r *Registry) MergeAll(tree Tree) Tree {
	if len(tree) == 0 {
		return nil
	}
	for path, frag := range tree {
		r.archive[path] = frag
		r.mounted[path] = struct{}{}
	}
	return r.MountedSnapshot()
}

// Promote copies an archive-only path into the mounted set, used when the
// user opens a file that exists only in the archive. It is a no-op if the
// path is already mounted or unknown. The boolean reports whether the
// mounted set changed.
func (r *Registry) Promote(path string) (Tree, bool) {
	if _, ok := r.archive[path]; !ok {
		return r.MountedSnapshot(), false
	}
	if _, ok := r.mounted[path]; ok {
		return r.MountedSnapshot(), false
	}
	r.mounted[path] = struct{}{}
	return r.MountedSnapshot(), true
}

// Edit applies a local user edit. The fresh fragment lands in both
// collections unconditionally, even if the path was only ever archived.
func (r *Registry) Edit(path, contents string) Tree {
	r.archive[path] = NewFragment(contents)
	r.mounted[path] = struct{}{}
	return r.MountedSnapshot()
}

// Resolve looks up a fragment, preferring the mounted view and falling back
// to the archive. Absence is signalled explicitly, never by panic.
func (r *Registry) Resolve(path string) (Fragment, bool) {
	frag, ok := r.archive[path]
	return frag, ok
}

// IsMounted reports whether a path is currently mounted.
func (r *Registry) IsMounted(path string) bool {
	_, ok := r.mounted[path]
	return ok
}

// MountedSnapshot returns a copy of the full mounted tree.
func (r *Registry) MountedSnapshot() Tree {
	out := make(Tree, len(r.mounted))
	for path := range r.mounted {
		out[path] = r.archive[path]
	}
	return out
}

// ArchiveSnapshot returns a copy of the full archive.
func (r *Registry) ArchiveSnapshot() Tree {
	return r.archive.Clone()
}

// UnmountedPaths lists archive-only paths in sorted order, for the
// "all generated files" view.
func (r *Registry) UnmountedPaths() []string {
	var out []string
	for path := range r.archive {
		if _, ok := r.mounted[path]; !ok {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Counts returns the mounted and archive sizes.
func (r *Registry) Counts() (mounted, archive int) {
	return len(r.mounted), len(r.archive)
}

// Reset drops all file state. Only an explicit session teardown calls this;
// a conversation reset leaves files untouched.
func (r *Registry) Reset() {
	r.archive = make(Tree)
	r.mounted = make(map[string]struct{})
}
