package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jacentio/plume/internal/shard"
	"github.com/jacentio/plume/store"
)

// Endpoint identifies one end of a relation edge: a feed kind tag plus an
// opaque recipient id.
type Endpoint struct {
	Kind string
	ID   string
}

// Ref returns the type-qualified reference (e.g. "home_feed#42").
func (e Endpoint) Ref() string {
	return e.Kind + "#" + e.ID
}

// Side selects which directions of an edge an operation touches.
type Side string

// SideBoth mirrors the operation onto the reverse edge (to -> from) as a
// second, independent edge.
const SideBoth Side = "both"

// RelationOptions configures relation mutations.
type RelationOptions struct {
	Side Side
}

// Relations is the directed relation graph. Edges are stored twice: a
// canonical table keyed by a generated edge id, and an index keyed by the
// sharded from-ref with the to-ref as sort key, supporting both enumeration
// of "related of X" and point existence checks.
type Relations struct {
	store    *store.Store
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

// NewRelations creates a relation graph. A nil logger falls back to
// slog.Default().
func NewRelations(st *store.Store, cfg Config, registry *Registry, logger *slog.Logger) *Relations {
	cfg.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Relations{
		store:    st,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// edgeColumns returns the shared edge columns for one directed edge.
func edgeColumns(id string, from, to Endpoint) map[string]any {
	return map[string]any{
		"id":        id,
		"from_kind": from.Kind,
		"from_id":   from.ID,
		"to_kind":   to.Kind,
		"to_id":     to.ID,
	}
}

// Create adds a directed edge from -> to. The canonical row is written
// first; an index-write failure rolls it back with a compensating delete.
// With SideBoth the mirror edge is created as well, and a mirror failure
// removes the just-created forward edge.
func (r *Relations) Create(ctx context.Context, from, to Endpoint, opts RelationOptions) error {
	id := uuid.Must(uuid.NewV7()).String()
	row := edgeColumns(id, from, to)

	if err := r.store.Put(ctx, r.cfg.relationTable(), row); err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}

	idx := edgeColumns(id, from, to)
	idx["pk"] = shard.EdgePK(from.Ref(), to.Ref(), r.cfg.NumShards)
	idx["to_ref"] = to.Ref()
	if err := r.store.Put(ctx, r.cfg.relationIndexTable(), idx); err != nil {
		if derr := r.store.Delete(ctx, r.cfg.relationTable(), map[string]any{"id": id}); derr != nil {
			r.logger.Error("failed to roll back relation insert",
				"edgeID", id,
				"error", derr,
			)
		}
		return fmt.Errorf("index relation: %w", err)
	}

	if opts.Side == SideBoth {
		if err := r.Create(ctx, to, from, RelationOptions{}); err != nil {
			if derr := r.Delete(ctx, from, to, RelationOptions{}); derr != nil {
				r.logger.Error("failed to roll back forward edge",
					"from", from.Ref(),
					"to", to.Ref(),
					"error", derr,
				)
			}
			return fmt.Errorf("mirror relation: %w", err)
		}
	}
	return nil
}

// Delete removes the edge from -> to. Deleting a nonexistent edge succeeds.
// With SideBoth the mirror edge is deleted as well.
func (r *Relations) Delete(ctx context.Context, from, to Endpoint, opts RelationOptions) error {
	pk := shard.EdgePK(from.Ref(), to.Ref(), r.cfg.NumShards)
	pred := map[string]any{"pk": pk, "to_ref": to.Ref()}

	rows, err := r.store.Get(r.cfg.relationIndexTable(), pred, store.GetOptions{PageSize: 1})
	if err != nil {
		return err
	}
	row, err := rows.First(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Nothing to delete.
	case err != nil:
		return err
	default:
		if err := r.store.Delete(ctx, r.cfg.relationTable(), map[string]any{"id": row.String("id")}); err != nil {
			return fmt.Errorf("delete relation: %w", err)
		}
		if err := r.store.Delete(ctx, r.cfg.relationIndexTable(), pred); err != nil {
			return fmt.Errorf("delete relation index: %w", err)
		}
	}

	if opts.Side == SideBoth {
		return r.Delete(ctx, to, from, RelationOptions{})
	}
	return nil
}

// RelatedOf enumerates every endpoint the from endpoint relates to,
// skipping edges whose kind tag is not registered.
func (r *Relations) RelatedOf(ctx context.Context, from Endpoint) ([]Endpoint, error) {
	numShards := r.cfg.NumShards

	// Fast path for single shard (default)
	if numShards <= 1 {
		return r.relatedOfShard(ctx, shard.EdgePKForShard(from.Ref(), 0))
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	var all []Endpoint
	var wg sync.WaitGroup
	errs := make(chan error, numShards)

	for shardNum := 0; shardNum < numShards; shardNum++ {
		wg.Add(1)
		go func(shardNum int) {
			defer wg.Done()

			endpoints, err := r.relatedOfShard(ctx, shard.EdgePKForShard(from.Ref(), shardNum))
			if err != nil {
				errs <- fmt.Errorf("shard %02x: %w", shardNum, err)
				return
			}
			mu.Lock()
			all = append(all, endpoints...)
			mu.Unlock()
		}(shardNum)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return all, nil
}

// relatedOfShard enumerates outgoing edges on one index partition.
func (r *Relations) relatedOfShard(ctx context.Context, pk string) ([]Endpoint, error) {
	rows, err := r.store.Get(r.cfg.relationIndexTable(), map[string]any{"pk": pk}, store.GetOptions{})
	if err != nil {
		return nil, err
	}
	all, err := rows.All(ctx)
	if err != nil {
		return nil, err
	}

	var endpoints []Endpoint
	for _, row := range all {
		kind := row.String("to_kind")
		if !r.registry.Has(kind) {
			r.logger.Debug("skipping edge to unregistered kind",
				"kind", kind,
				"toID", row.String("to_id"),
			)
			continue
		}
		endpoints = append(endpoints, Endpoint{Kind: kind, ID: row.String("to_id")})
	}
	return endpoints, nil
}

// IsRelated reports whether an edge from -> to exists. The edge counts only
// when the index row and the canonical row under its recorded id agree,
// guarding against half-applied writes.
func (r *Relations) IsRelated(ctx context.Context, from, to Endpoint) (bool, error) {
	pk := shard.EdgePK(from.Ref(), to.Ref(), r.cfg.NumShards)
	rows, err := r.store.Get(r.cfg.relationIndexTable(), map[string]any{"pk": pk, "to_ref": to.Ref()}, store.GetOptions{PageSize: 1})
	if err != nil {
		return false, err
	}
	row, err := rows.First(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	canonical, err := r.store.Get(r.cfg.relationTable(), map[string]any{"id": row.String("id")}, store.GetOptions{PageSize: 1})
	if err != nil {
		return false, err
	}
	if _, err := canonical.First(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
