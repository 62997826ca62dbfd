// Package sandbox is the boundary to the execution environment that runs the
// project's files. The core only ever pushes whole-tree snapshots through the
// Mounter contract; everything the runtime does with them (process spawning,
// port forwarding, previews) is outside this module.
package sandbox

import (
	"context"

	"devroom/internal/filetree"
)

// ServerReady announces that the runtime inside the sandbox started an HTTP
// server.
type ServerReady struct {
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// Mounter reconciles a full mounted-tree snapshot into the sandbox
// filesystem. Mount is an idempotent full replace: the sandbox ends up with
// exactly the files in the snapshot, never a diff of them. Implementations
// may be slow or fail; callers treat the in-memory tree as the source of
// truth and the mount as a best-effort projection.
type Mounter interface {
	Mount(ctx context.Context, tree filetree.Tree) error
	OnServerReady(fn func(ServerReady))
}
