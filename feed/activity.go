package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"

	"github.com/jacentio/plume/store"
)

// Activity is a single timestamped content event. Activities sharing a
// non-empty Object are the same logical subject; any feed shows at most one
// of them at a time.
type Activity struct {
	// ID is the activity's globally unique, time-orderable identifier.
	ID string

	// Content is the producer-defined payload.
	Content string

	// Object is the optional grouping key.
	Object string

	// Time is the creation timestamp.
	Time time.Time

	newRecord bool
}

// NewActivity creates an unsaved activity with a fresh time-ordered id and
// the current time. Time is truncated to seconds, the granularity the store
// persists.
func NewActivity(content, object string) *Activity {
	return &Activity{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Content:   content,
		Object:    object,
		Time:      time.Now().UTC().Truncate(time.Second),
		newRecord: true,
	}
}

// IsNew reports whether the activity has not been persisted yet.
func (a *Activity) IsNew() bool {
	return a.newRecord
}

// columns returns the activity's column-value map for the canonical and
// index tables.
func (a *Activity) columns() map[string]any {
	return map[string]any{
		"id":      a.ID,
		"content": a.Content,
		"object":  a.Object,
		"time":    a.Time,
	}
}

// activityRow is the persisted shape of a canonical or index row.
type activityRow struct {
	ID      string `dynamodbav:"id"`
	Content string `dynamodbav:"content"`
	Object  string `dynamodbav:"object"`
	Time    string `dynamodbav:"time"`
}

// activityFromRow rebuilds a persisted Activity from a store row.
func activityFromRow(row store.Row) (*Activity, error) {
	var r activityRow
	if err := attributevalue.UnmarshalMap(row, &r); err != nil {
		return nil, fmt.Errorf("unmarshal activity row: %w", err)
	}
	act := &Activity{
		ID:      r.ID,
		Content: r.Content,
		Object:  r.Object,
	}
	if r.Time != "" {
		ts, err := time.Parse(time.RFC3339, r.Time)
		if err != nil {
			return nil, fmt.Errorf("parse activity time: %w", err)
		}
		act.Time = ts
	}
	return act, nil
}

// Activities is the canonical activity store. It owns the activity table,
// the object-keyed index, and the delete-time repair of every registered
// feed table.
type Activities struct {
	store    *store.Store
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

// NewActivities creates an activity store. A nil logger falls back to
// slog.Default().
func NewActivities(st *store.Store, cfg Config, registry *Registry, logger *slog.Logger) *Activities {
	cfg.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:    st,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Find looks up an activity by id, returning ErrNotFound when absent.
func (s *Activities) Find(ctx context.Context, id string) (*Activity, error) {
	rows, err := s.store.Get(s.cfg.activityTable(), map[string]any{"id": id}, store.GetOptions{PageSize: 1})
	if err != nil {
		return nil, err
	}
	row, err := rows.First(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return activityFromRow(row)
}

// Save inserts a new activity or updates a persisted one.
func (s *Activities) Save(ctx context.Context, a *Activity) error {
	if a.newRecord {
		return s.Insert(ctx, a)
	}
	return s.Update(ctx, a)
}

// Insert persists the activity to the canonical table and, when it carries
// an object, to the index table. Insertion is all-or-nothing from the
// caller's perspective: an index-write failure rolls the canonical row back
// with a compensating delete.
func (s *Activities) Insert(ctx context.Context, a *Activity) error {
	if err := s.store.Put(ctx, s.cfg.activityTable(), a.columns()); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	if a.Object != "" {
		if err := s.store.Put(ctx, s.cfg.activityIndexTable(), a.columns()); err != nil {
			if derr := s.store.Delete(ctx, s.cfg.activityTable(), map[string]any{"id": a.ID}); derr != nil {
				s.logger.Error("failed to roll back activity insert",
					"activityID", a.ID,
					"error", derr,
				)
			}
			return fmt.Errorf("index activity: %w", err)
		}
	}
	a.newRecord = false
	return nil
}

// Update rewrites the canonical row of a persisted activity. Feed rows are
// snapshots and do not pick the change up unless the activity is fanned out
// again.
func (s *Activities) Update(ctx context.Context, a *Activity) error {
	if a.newRecord {
		return ErrNewRecord
	}
	return s.store.Update(ctx, s.cfg.activityTable(), map[string]any{"id": a.ID}, a.columns())
}

// Delete removes the activity from the canonical table, the index, and
// every registered feed table. With showLast, feed rows referencing the
// deleted activity are replaced by the newest remaining activity of the
// same object; without it they are removed.
func (s *Activities) Delete(ctx context.Context, a *Activity, showLast bool) error {
	if a.newRecord {
		return ErrNewRecord
	}
	if err := s.store.Delete(ctx, s.cfg.activityTable(), map[string]any{"id": a.ID}); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}

	var last *Activity
	if a.Object != "" {
		if err := s.store.Delete(ctx, s.cfg.activityIndexTable(), map[string]any{"object": a.Object, "id": a.ID}); err != nil {
			return fmt.Errorf("delete activity index: %w", err)
		}
		if showLast {
			l, err := s.LatestOf(ctx, a.Object, a.ID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			last = l
		}
	}

	return s.RepairFeeds(ctx, a.ID, last)
}

// DeleteByID finds and deletes an activity, repairing feeds with the newest
// remaining activity of its object. Deleting a missing id is a no-op.
func (s *Activities) DeleteByID(ctx context.Context, id string) error {
	a, err := s.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Delete(ctx, a, true)
}

// HideAllOf purges a whole logical subject: every activity indexed under
// the object is deleted and its feed rows removed without replacement.
func (s *Activities) HideAllOf(ctx context.Context, object string) error {
	if object == "" {
		return nil
	}
	rows, err := s.store.Get(s.cfg.activityIndexTable(), map[string]any{"object": object}, store.GetOptions{})
	if err != nil {
		return err
	}
	all, err := rows.All(ctx)
	if err != nil {
		return err
	}
	for _, row := range all {
		id := row.String("id")
		if err := s.store.Delete(ctx, s.cfg.activityTable(), map[string]any{"id": id}); err != nil {
			return fmt.Errorf("delete activity %s: %w", id, err)
		}
		if err := s.store.Delete(ctx, s.cfg.activityIndexTable(), map[string]any{"object": object, "id": id}); err != nil {
			return fmt.Errorf("delete activity index %s: %w", id, err)
		}
		if err := s.RepairFeeds(ctx, id, nil); err != nil {
			return err
		}
	}
	return nil
}

// LatestOf returns the newest activity indexed under the object, excluding
// excludingID. Ties on time break by id; v7 activity ids are time-ordered,
// so the winner is deterministic regardless of index iteration order.
// Returns ErrNotFound when no activity remains.
func (s *Activities) LatestOf(ctx context.Context, object, excludingID string) (*Activity, error) {
	rows, err := s.store.Get(s.cfg.activityIndexTable(), map[string]any{"object": object}, store.GetOptions{})
	if err != nil {
		return nil, err
	}
	all, err := rows.All(ctx)
	if err != nil {
		return nil, err
	}

	var latest *Activity
	for _, row := range all {
		if row.String("id") == excludingID {
			continue
		}
		act, err := activityFromRow(row)
		if err != nil {
			return nil, err
		}
		if newerThan(act, latest) {
			latest = act
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// newerThan reports whether a should supersede b as "latest". A nil b
// always loses.
func newerThan(a, b *Activity) bool {
	if b == nil {
		return true
	}
	if !a.Time.Equal(b.Time) {
		return a.Time.After(b.Time)
	}
	return a.ID > b.ID
}

// RepairFeeds removes every feed row referencing the deleted activity from
// every registered feed table. When last is non-nil the removed rows are
// replaced in place by a snapshot of last for the same recipients. All
// statements across all tables go out as one deduplicated batch.
func (s *Activities) RepairFeeds(ctx context.Context, id string, last *Activity) error {
	var stmts []store.Statement
	for _, kind := range s.registry.Kinds() {
		table := kind.Table()
		rows, err := s.store.Get(table, map[string]any{"activity_id": id}, store.GetOptions{Filtering: true})
		if err != nil {
			return err
		}
		matches, err := rows.All(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", table.Name, err)
		}
		for _, row := range matches {
			recipient := row.Value("id")
			del, err := store.NewDeleteStatement(table, map[string]any{"id": recipient, "activity_id": id})
			if err != nil {
				return err
			}
			stmts = append(stmts, del)
			if last != nil {
				put, err := store.NewPutStatement(table, feedRow(recipient, last))
				if err != nil {
					return err
				}
				stmts = append(stmts, put)
			}
		}
	}
	if len(stmts) == 0 {
		return nil
	}
	s.logger.Debug("repairing feeds",
		"activityID", id,
		"replaced", last != nil,
		"statements", len(stmts),
	)
	return s.store.Batch(ctx, stmts)
}
