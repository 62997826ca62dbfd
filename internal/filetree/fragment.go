// Package filetree owns the file state of a project workspace: every
// fragment the AI collaborator has ever produced, and the subset of paths
// currently mounted into the sandbox.
package filetree

// FileData holds the contents of a single file.
type FileData struct {
	Contents string `json:"contents"`
}

// Fragment is the content payload for one file path. The wire shape mirrors
// the sandbox mount contract: {"file": {"contents": "..."}}.
type Fragment struct {
	File FileData `json:"file"`
}

// NewFragment wraps raw contents in a Fragment.
func NewFragment(contents string) Fragment {
	return Fragment{File: FileData{Contents: contents}}
}

// Contents returns the file contents.
func (f Fragment) Contents() string {
	return f.File.Contents
}

// Tree is a flat path-to-fragment mapping. Paths are plain keys; a path may
// contain separator characters but the tree has no directory nodes.
type Tree map[string]Fragment

// Clone returns a shallow copy of the tree. Fragments are value types, so the
// copy shares no mutable state with the original.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for path, frag := range t {
		out[path] = frag
	}
	return out
}
