package feed_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jacentio/plume/feed"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestNewActivity(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Second)
	act := feed.NewActivity("user 1 post photo 1", "photo 1")
	after := time.Now().UTC()

	if !uuidPattern.MatchString(act.ID) {
		t.Errorf("expected generated uuid, got %q", act.ID)
	}
	if act.Content != "user 1 post photo 1" {
		t.Errorf("unexpected content %q", act.Content)
	}
	if act.Object != "photo 1" {
		t.Errorf("unexpected object %q", act.Object)
	}
	if act.Time.Before(before) || act.Time.After(after) {
		t.Errorf("expected time between %v and %v, got %v", before, after, act.Time)
	}
	if !act.Time.Equal(act.Time.Truncate(time.Second)) {
		t.Errorf("expected second granularity, got %v", act.Time)
	}
	if !act.IsNew() {
		t.Error("expected new activity to report IsNew")
	}
}

func TestNewActivity_WithoutObject(t *testing.T) {
	act := feed.NewActivity("user 1 posted", "")
	if act.Object != "" {
		t.Errorf("expected empty object, got %q", act.Object)
	}
}

func TestNewActivity_IDsAreOrdered(t *testing.T) {
	// v7 ids are time-ordered; two ids generated in sequence must sort in
	// generation order, which the delete-repair tie-break relies on.
	a := feed.NewActivity("first", "")
	b := feed.NewActivity("second", "")
	if !(a.ID < b.ID) {
		t.Errorf("expected %q < %q", a.ID, b.ID)
	}
}

func TestActivities_UpdateNewRecord(t *testing.T) {
	s := feed.NewActivities(nil, feed.DefaultConfig(), feed.NewRegistry(), nil)

	err := s.Update(context.Background(), feed.NewActivity("c", ""))
	if !errors.Is(err, feed.ErrNewRecord) {
		t.Errorf("expected ErrNewRecord, got %v", err)
	}
}

func TestActivities_DeleteNewRecord(t *testing.T) {
	s := feed.NewActivities(nil, feed.DefaultConfig(), feed.NewRegistry(), nil)

	err := s.Delete(context.Background(), feed.NewActivity("c", "o"), true)
	if !errors.Is(err, feed.ErrNewRecord) {
		t.Errorf("expected ErrNewRecord, got %v", err)
	}
}

func TestActivities_HideAllOfEmptyObject(t *testing.T) {
	s := feed.NewActivities(nil, feed.DefaultConfig(), feed.NewRegistry(), nil)

	// An empty object names no subject; nothing to do, no store access.
	if err := s.HideAllOf(context.Background(), ""); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
