package artifact

import "context"

// ListOptions scopes an enumeration call.
type ListOptions struct {
	// Offset and Limit paginate the enumeration (0 limit means the
	// helper's default page size).
	Offset int
	Limit  int

	// Path restricts enumeration to items whose path starts with the
	// prefix. Only honored by path-based helpers.
	Path string
}

// PullOptions tunes a single fetch-one transfer.
type PullOptions struct {
	// IgnoreTimestamps forces the transfer even when the hashes store
	// reports the item unchanged.
	IgnoreTimestamps bool
}

// PushOptions tunes a single push-one transfer.
type PushOptions struct {
	IgnoreTimestamps bool

	// CreateOnly disables the update path: existing remote items are
	// left untouched instead of being overwritten.
	CreateOnly bool
}

// Helper is the uniform capability set every artifact type exposes.
// The orchestrator depends only on this contract; the per-type REST and
// filesystem details live behind it.
//
// Every method that can touch the network or the filesystem takes a
// context.Context and returns an explicit error. Helpers may emit
// lifecycle events on the operation emitter before returning; the
// orchestrator emits the terminal pulled/pushed and error events itself.
type Helper interface {
	// Name is the registered artifact type name (e.g. "assets").
	Name() string

	// ArtifactName is the singular display noun (e.g. "asset").
	ArtifactName() string

	// Extension is the local file extension for items of this type.
	Extension() string

	// GetEventEmitter returns the emitter for the given operation
	// context. Helpers emit warnings and advisory events through it.
	GetEventEmitter(actx *Context) *Emitter

	// ListRemoteItems enumerates every remote item of this type.
	ListRemoteItems(ctx context.Context, actx *Context, opts ListOptions) ([]Item, error)

	// ListRemoteModifiedItems enumerates remote items whose server
	// modification marker is newer than the last recorded pull.
	ListRemoteModifiedItems(ctx context.Context, actx *Context, opts ListOptions) ([]Item, error)

	// ListLocalItems enumerates every local item of this type.
	ListLocalItems(ctx context.Context, actx *Context, opts ListOptions) ([]Item, error)

	// ListLocalModifiedItems enumerates local items changed since the
	// last recorded push.
	ListLocalModifiedItems(ctx context.Context, actx *Context, opts ListOptions) ([]Item, error)

	// ListNames lists the display names of local items, for `list`.
	ListNames(ctx context.Context, actx *Context, opts ListOptions) ([]string, error)

	// SearchRemote queries remote items by name, returning matches with
	// their references populated.
	SearchRemote(ctx context.Context, actx *Context, query string) ([]Item, error)

	// PullItem fetches one remote item and writes its local
	// representation, returning the item as stored.
	PullItem(ctx context.Context, actx *Context, item Item, opts PullOptions) (Item, error)

	// PushItem sends one local item to the remote service, returning the
	// item with its remote-assigned ID. The returned Modified marker and
	// MD5 must describe the local document as it exists after the push,
	// since the orchestrator records them in the change store.
	PushItem(ctx context.Context, actx *Context, item Item, opts PushOptions) (Item, error)

	// DeleteLocalItem removes the local representation of an item.
	DeleteLocalItem(ctx context.Context, actx *Context, item Item) error

	// DeleteLocalResource removes the binary resource backing a
	// content-bearing item. No-op for metadata-only types.
	DeleteLocalResource(ctx context.Context, actx *Context, item Item) error

	// CompareItem structurally compares the payloads of two pairings of
	// the same item, returning the changed/added/removed node paths.
	CompareItem(ctx context.Context, actx *Context, source, target Item) ([]string, error)

	// DoesDirectoryExist reports whether the local directory for this
	// type exists. Push operations on a missing directory are fatal
	// batch-level errors.
	DoesDirectoryExist(actx *Context) bool

	// IsPathBased reports whether items of this type are addressed by
	// path, which enables the --path prefix filter.
	IsPathBased() bool

	// IsSiteScoped reports whether this type is scoped per site and
	// must fan out over the context's site list.
	IsSiteScoped() bool
}
