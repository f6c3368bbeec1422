package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/plume/store"
)

// InsertOptions configures feed fan-out.
type InsertOptions struct {
	// Related fans the activity out to every endpoint the recipient
	// relates to.
	Related bool

	// HideOld removes earlier activities sharing the new activity's object
	// from every touched feed, leaving exactly one live row per object.
	HideOld bool
}

// DefaultInsertOptions enables both fan-out and object dedup.
func DefaultInsertOptions() InsertOptions {
	return InsertOptions{Related: true, HideOld: true}
}

// Feed is the fan-out orchestrator for one registered kind. All recipients
// of the kind share one feed table; the recipient id selects the partition.
type Feed struct {
	kind       Kind
	store      *store.Store
	registry   *Registry
	activities *Activities
	relations  *Relations
	cfg        Config
	logger     *slog.Logger
}

// Kind returns the kind this feed serves.
func (f *Feed) Kind() Kind {
	return f.kind
}

// endpoint builds the relation-graph identity of one recipient of this feed.
func (f *Feed) endpoint(recipientID string) Endpoint {
	return Endpoint{Kind: f.kind.Name, ID: recipientID}
}

// feedRow builds the denormalized feed-row snapshot of an activity.
func feedRow(recipientID string, act *Activity) map[string]any {
	return map[string]any{
		"id":               recipientID,
		"activity_id":      act.ID,
		"activity_content": act.Content,
		"activity_object":  act.Object,
		"activity_time":    act.Time,
	}
}

// activityFromFeedRow rebuilds an activity from its denormalized snapshot.
func activityFromFeedRow(row store.Row) *Activity {
	return &Activity{
		ID:      row.String("activity_id"),
		Content: row.String("activity_content"),
		Object:  row.String("activity_object"),
		Time:    row.Time("activity_time"),
	}
}

// Insert writes the activity into the recipient's feed and fans it out.
// The recipient's own row is written immediately and its failure aborts the
// operation; everything else - rows for related endpoints and the dedup
// deletes hiding older activities of the same object - is deferred into one
// deduplicated batch. A batch failure leaves the first row in place: the
// operation may be partially applied and should be retried idempotently.
func (f *Feed) Insert(ctx context.Context, recipientID string, act *Activity, opts InsertOptions) error {
	if err := f.store.Put(ctx, f.kind.Table(), feedRow(recipientID, act)); err != nil {
		return fmt.Errorf("write feed row: %w", err)
	}

	var stmts []store.Statement
	affected := []Endpoint{f.endpoint(recipientID)}

	if opts.Related {
		related, err := f.relations.RelatedOf(ctx, f.endpoint(recipientID))
		if err != nil {
			return fmt.Errorf("resolve recipients: %w", err)
		}
		for _, ep := range related {
			kind, ok := f.registry.Kind(ep.Kind)
			if !ok {
				continue
			}
			put, err := store.NewPutStatement(kind.Table(), feedRow(ep.ID, act))
			if err != nil {
				return err
			}
			stmts = append(stmts, put)
			if opts.HideOld {
				affected = append(affected, ep)
			}
		}
	}

	if opts.HideOld && act.Object != "" {
		hide, err := f.hideOldStatements(ctx, act, affected)
		if err != nil {
			return err
		}
		stmts = append(stmts, hide...)
	}

	if len(stmts) == 0 {
		return nil
	}
	f.logger.Debug("fanning out activity",
		"kind", f.kind.Name,
		"recipientID", recipientID,
		"activityID", act.ID,
		"statements", len(stmts),
	)
	return f.store.Batch(ctx, stmts)
}

// hideOldStatements queues one feed-row delete per (older activity of the
// object, affected endpoint) pair. After the batch lands, each touched feed
// holds exactly one live row for the object: the new activity's.
func (f *Feed) hideOldStatements(ctx context.Context, act *Activity, affected []Endpoint) ([]store.Statement, error) {
	rows, err := f.store.Get(f.cfg.activityIndexTable(), map[string]any{"object": act.Object}, store.GetOptions{})
	if err != nil {
		return nil, err
	}
	all, err := rows.All(ctx)
	if err != nil {
		return nil, err
	}

	var stmts []store.Statement
	for _, row := range all {
		id := row.String("id")
		if id == act.ID {
			continue
		}
		for _, ep := range affected {
			kind, ok := f.registry.Kind(ep.Kind)
			if !ok {
				continue
			}
			del, err := store.NewDeleteStatement(kind.Table(), map[string]any{"id": ep.ID, "activity_id": id})
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, del)
		}
	}
	return stmts, nil
}

// Delete removes an activity from this recipient's feed. With related, the
// activity is deleted everywhere it fans out via the activity store's
// cascading delete; otherwise only this recipient's single row goes.
func (f *Feed) Delete(ctx context.Context, recipientID, activityID string, related bool) error {
	if related {
		return f.activities.DeleteByID(ctx, activityID)
	}
	return f.store.Delete(ctx, f.kind.Table(), map[string]any{"id": recipientID, "activity_id": activityID})
}

// Clear empties a recipient's feed. With related, every referenced activity
// is cascade-deleted everywhere; otherwise only this feed's rows are
// removed, in one batch.
func (f *Feed) Clear(ctx context.Context, recipientID string, related bool) error {
	rows, err := f.store.Get(f.kind.Table(), map[string]any{"id": recipientID}, store.GetOptions{})
	if err != nil {
		return err
	}
	all, err := rows.All(ctx)
	if err != nil {
		return err
	}

	var stmts []store.Statement
	for _, row := range all {
		activityID := row.String("activity_id")
		if related {
			if err := f.activities.DeleteByID(ctx, activityID); err != nil {
				return err
			}
			continue
		}
		del, err := store.NewDeleteStatement(f.kind.Table(), map[string]any{"id": recipientID, "activity_id": activityID})
		if err != nil {
			return err
		}
		stmts = append(stmts, del)
	}
	if len(stmts) == 0 {
		return nil
	}
	return f.store.Batch(ctx, stmts)
}

// Feeds reads one page of the recipient's feed, newest first. The cursor resumes a
// previous read; an empty next cursor means the feed is exhausted. The
// kind's PostProcess hook, when set, runs over the page before it is
// returned.
func (f *Feed) Feeds(ctx context.Context, recipientID string, pageSize int32, cursor string) ([]*Activity, string, error) {
	token, err := decodeCursor(cursor, f.cfg.CursorSecret)
	if err != nil {
		return nil, "", err
	}

	rows, err := f.store.Get(f.kind.Table(), map[string]any{"id": recipientID}, store.GetOptions{
		PageSize:   pageSize,
		PageToken:  token,
		Descending: true,
	})
	if err != nil {
		return nil, "", err
	}
	page, err := rows.NextPage(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read feed page: %w", err)
	}

	acts := make([]*Activity, 0, len(page))
	for _, row := range page {
		acts = append(acts, activityFromFeedRow(row))
	}

	next := ""
	if rows.HasMorePages() {
		next = encodeCursor(rows.PageToken(), f.cfg.CursorSecret)
	}

	if f.kind.PostProcess != nil {
		if err := f.kind.PostProcess(ctx, acts); err != nil {
			return nil, "", fmt.Errorf("post-process feed page: %w", err)
		}
	}
	return acts, next, nil
}

// Register relates this recipient to another endpoint.
func (f *Feed) Register(ctx context.Context, recipientID string, to Endpoint, opts RelationOptions) error {
	return f.relations.Create(ctx, f.endpoint(recipientID), to, opts)
}

// Deregister removes the relation to another endpoint.
func (f *Feed) Deregister(ctx context.Context, recipientID string, to Endpoint, opts RelationOptions) error {
	return f.relations.Delete(ctx, f.endpoint(recipientID), to, opts)
}

// IsRegistered reports whether this recipient relates to another endpoint.
func (f *Feed) IsRegistered(ctx context.Context, recipientID string, to Endpoint) (bool, error) {
	return f.relations.IsRelated(ctx, f.endpoint(recipientID), to)
}
