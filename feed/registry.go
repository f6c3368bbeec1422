package feed

import (
	"context"
	"sync"

	"github.com/jacentio/plume/store"
)

// Kind describes one feed table: a per-audience materialization sharing the
// common feed-row schema. Kinds double as the endpoint tags of the relation
// graph, so a relation edge can only point at a registered kind.
type Kind struct {
	// Name is the feed table name (e.g. "home_feed") and the kind tag used
	// in relation edges.
	Name string

	// RecipientType is the column type of the recipient id.
	// Default: bigint.
	RecipientType store.ColumnType

	// PostProcess, when set, runs over the activities of each page read
	// through Feed.Feeds before they are returned. Kinds that store an
	// encoded content payload decode it here.
	PostProcess func(ctx context.Context, acts []*Activity) error
}

// Table returns the table descriptor for this kind. All feed tables share
// one shape: the recipient id partitions the table and the activity id
// sorts it, with the activity snapshot denormalized alongside.
func (k Kind) Table() store.Table {
	recipientType := k.RecipientType
	if recipientType == "" {
		recipientType = store.TypeBigInt
	}
	return store.Table{
		Name: k.Name,
		Schema: store.Schema{
			"id":               recipientType,
			"activity_id":      store.TypeUUID,
			"activity_content": store.TypeText,
			"activity_object":  store.TypeText,
			"activity_time":    store.TypeTimestamp,
		},
		PartitionKey: "id",
		SortKey:      "activity_id",
	}
}

// Registry is the process-wide catalog of feed kinds. Every registered kind
// is consulted on fan-out and on delete repair, so membership decides which
// tables the engine keeps consistent. Membership is mutable at runtime.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
	order []string
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Kind),
	}
}

// Register adds a kind to the registry. Registering a name twice replaces
// the earlier descriptor.
func (r *Registry) Register(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[kind.Name]; !ok {
		r.order = append(r.order, kind.Name)
	}
	r.kinds[kind.Name] = kind
}

// Deregister removes a kind by name. Removing an unknown name is a no-op.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[name]; !ok {
		return
	}
	delete(r.kinds, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Kind looks up a registered kind by name.
func (r *Registry) Kind(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[name]
	return kind, ok
}

// Has reports whether a kind is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Kind(name)
	return ok
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.order))
	for _, name := range r.order {
		kinds = append(kinds, r.kinds[name])
	}
	return kinds
}
