// Package stream provides a DynamoDB Streams handler that re-runs feed
// repair for deleted activities.
//
// Synchronous repair can fail after the canonical activity row is already
// gone, which fails the delete operation without retrying and leaves feed
// tables referencing a vanished activity. Attaching this handler to the
// activity table's stream gives every deletion a second, at-least-once
// corrective pass. Repair is idempotent - it deletes rows that are already
// gone and reinserts the same replacement - so duplicate stream delivery is
// harmless.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/plume/feed"
)

// Handler processes DynamoDB stream events for feed repair.
type Handler struct {
	activities *feed.Activities
	logger     *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(activities *feed.Activities, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		activities: activities,
		logger:     logger,
	}
}

// HandleActivityRemove processes stream events from the canonical activity
// table, repairing every registered feed table for each removed activity.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleActivityRemove(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord repairs feeds for a single removal record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	id := getStringAttr(record.Change.OldImage, "id")
	if id == "" {
		return nil
	}
	object := getStringAttr(record.Change.OldImage, "object")

	// The replacement is recomputed here rather than taken from the
	// deletion path: by the time the stream record arrives, a newer
	// activity may have claimed the object.
	var last *feed.Activity
	if object != "" {
		l, err := h.activities.LatestOf(ctx, object, id)
		if err != nil && !errors.Is(err, feed.ErrNotFound) {
			return fmt.Errorf("latest of %q: %w", object, err)
		}
		last = l
	}

	h.logger.Info("repairing feeds for removed activity",
		"activityID", id,
		"object", object,
		"replaced", last != nil,
	)

	if err := h.activities.RepairFeeds(ctx, id, last); err != nil {
		return fmt.Errorf("repair feeds: %w", err)
	}
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
