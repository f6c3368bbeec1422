//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/plume/feed"
)

// Test configuration
const (
	awsProfile = "jacent-alpha-cp"

	// Table names - unique per test run to avoid conflicts
	tablePrefix = "plume-e2e-test"
)

var (
	testID             string
	activityTable      string
	activityIndexTable string
	relationTable      string
	relationIndexTable string
	homeFeedTable      string
	profileFeedTable   string

	ddbClient *dynamodb.Client
	newsfeed  *feed.Newsfeed
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	// Generate unique test ID
	testID = uuid.New().String()[:8]
	activityTable = fmt.Sprintf("%s-%s-activity", tablePrefix, testID)
	activityIndexTable = fmt.Sprintf("%s-%s-activity-index", tablePrefix, testID)
	relationTable = fmt.Sprintf("%s-%s-relation", tablePrefix, testID)
	relationIndexTable = fmt.Sprintf("%s-%s-relation-index", tablePrefix, testID)
	homeFeedTable = fmt.Sprintf("%s-%s-home-feed", tablePrefix, testID)
	profileFeedTable = fmt.Sprintf("%s-%s-profile-feed", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Tables:\n")
	fmt.Printf("  - Activity: %s\n", activityTable)
	fmt.Printf("  - ActivityIndex: %s\n", activityIndexTable)
	fmt.Printf("  - Relation: %s\n", relationTable)
	fmt.Printf("  - RelationIndex: %s\n", relationIndexTable)
	fmt.Printf("  - HomeFeed: %s\n", homeFeedTable)
	fmt.Printf("  - ProfileFeed: %s\n", profileFeedTable)

	// Initialize AWS client (uses region from profile config)
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(awsProfile),
	)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg)

	// Create tables
	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}

	// Initialize engine
	newsfeed = feed.New(ddbClient, feed.Config{
		ActivityTable:      activityTable,
		ActivityIndexTable: activityIndexTable,
		RelationTable:      relationTable,
		RelationIndexTable: relationIndexTable,
		NumShards:          4,
	})
	newsfeed.Registry.Register(feed.Kind{Name: homeFeedTable})
	newsfeed.Registry.Register(feed.Kind{Name: profileFeedTable})

	// Run tests
	code := m.Run()

	// Cleanup tables
	if err := deleteTables(ctx); err != nil {
		fmt.Printf("Failed to delete tables: %v\n", err)
	}

	os.Exit(code)
}

func createTables(ctx context.Context) error {
	fmt.Println("Creating test tables...")

	// Tables keyed by a single string id (activity, relation)
	for _, tableName := range []string{activityTable, relationTable} {
		_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create table %s: %w", tableName, err)
		}
	}

	// Activity index (object, id)
	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(activityIndexTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("object"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("object"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create activity index table: %w", err)
	}

	// Relation index (pk, to_ref)
	_, err = ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(relationIndexTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("to_ref"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("to_ref"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create relation index table: %w", err)
	}

	// Feed tables (id numeric, activity_id)
	for _, tableName := range []string{homeFeedTable, profileFeedTable} {
		_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("activity_id"), KeyType: types.KeyTypeRange},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeN},
				{AttributeName: aws.String("activity_id"), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create feed table %s: %w", tableName, err)
		}
	}

	// Wait for all tables to be active
	allTables := []string{
		activityTable, activityIndexTable,
		relationTable, relationIndexTable,
		homeFeedTable, profileFeedTable,
	}
	for _, tableName := range allTables {
		waiter := dynamodb.NewTableExistsWaiter(ddbClient)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", tableName, err)
		}
	}

	fmt.Println("All tables created and active")
	return nil
}

func deleteTables(ctx context.Context) error {
	fmt.Println("Deleting test tables...")

	tables := []string{
		activityTable, activityIndexTable,
		relationTable, relationIndexTable,
		homeFeedTable, profileFeedTable,
	}
	for _, tableName := range tables {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
		}
	}

	fmt.Println("Tables deleted")
	return nil
}

// collectFeed walks a feed to exhaustion through the cursor protocol.
func collectFeed(t *testing.T, f *feed.Feed, recipientID string, pageSize int32) []*feed.Activity {
	t.Helper()

	var all []*feed.Activity
	cursor := ""
	for {
		page, next, err := f.Feeds(context.Background(), recipientID, pageSize, cursor)
		if err != nil {
			t.Fatalf("Feeds failed: %v", err)
		}
		all = append(all, page...)
		if next == "" {
			return all
		}
		cursor = next
	}
}

// --- Activity Store Tests ---

func TestActivity_RoundTrip(t *testing.T) {
	ctx := context.Background()

	act := feed.NewActivity("alice posted", "post#"+uuid.New().String())
	if err := newsfeed.Activities.Save(ctx, act); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := newsfeed.Activities.Find(ctx, act.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Content != act.Content {
		t.Errorf("expected content %q, got %q", act.Content, got.Content)
	}
	if got.Object != act.Object {
		t.Errorf("expected object %q, got %q", act.Object, got.Object)
	}
	if !got.Time.Equal(act.Time) {
		t.Errorf("expected time %v, got %v", act.Time, got.Time)
	}
	if got.IsNew() {
		t.Error("expected a loaded activity to not be new")
	}

	// Update through Save on the loaded record
	got.Content = "alice edited her post"
	if err := newsfeed.Activities.Save(ctx, got); err != nil {
		t.Fatalf("Save (update) failed: %v", err)
	}
	got2, err := newsfeed.Activities.Find(ctx, act.ID)
	if err != nil {
		t.Fatalf("Find after update failed: %v", err)
	}
	if got2.Content != "alice edited her post" {
		t.Errorf("expected updated content, got %q", got2.Content)
	}

	// Delete and verify the tombstone
	if err := newsfeed.Activities.DeleteByID(ctx, act.ID); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if _, err := newsfeed.Activities.Find(ctx, act.ID); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestActivity_DeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()

	if err := newsfeed.Activities.DeleteByID(ctx, uuid.New().String()); err != nil {
		t.Errorf("expected deleting a missing activity to be a no-op, got %v", err)
	}
}

func TestActivity_LatestOf(t *testing.T) {
	ctx := context.Background()
	object := "photo#" + uuid.New().String()

	first := feed.NewActivity("uploaded v1", object)
	if err := newsfeed.Activities.Save(ctx, first); err != nil {
		t.Fatalf("Save first failed: %v", err)
	}
	second := feed.NewActivity("uploaded v2", object)
	if err := newsfeed.Activities.Save(ctx, second); err != nil {
		t.Fatalf("Save second failed: %v", err)
	}

	latest, err := newsfeed.Activities.LatestOf(ctx, object, "")
	if err != nil {
		t.Fatalf("LatestOf failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("expected latest %s, got %s", second.ID, latest.ID)
	}

	// Excluding the newest falls back to its predecessor
	latest, err = newsfeed.Activities.LatestOf(ctx, object, second.ID)
	if err != nil {
		t.Fatalf("LatestOf excluding failed: %v", err)
	}
	if latest.ID != first.ID {
		t.Errorf("expected latest %s, got %s", first.ID, latest.ID)
	}
}

func TestActivity_HideAllOf(t *testing.T) {
	ctx := context.Background()
	object := "photo#" + uuid.New().String()

	f, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		act := feed.NewActivity(fmt.Sprintf("revision %d", i), object)
		if err := newsfeed.Activities.Save(ctx, act); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := f.Insert(ctx, "3001", act, feed.InsertOptions{}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, act.ID)
	}

	if err := newsfeed.Activities.HideAllOf(ctx, object); err != nil {
		t.Fatalf("HideAllOf failed: %v", err)
	}

	for _, id := range ids {
		if _, err := newsfeed.Activities.Find(ctx, id); !errors.Is(err, feed.ErrNotFound) {
			t.Errorf("expected activity %s gone, got %v", id, err)
		}
	}
	if _, err := newsfeed.Activities.LatestOf(ctx, object, ""); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("expected empty index for object, got %v", err)
	}
	if got := collectFeed(t, f, "3001", 10); len(got) != 0 {
		t.Errorf("expected empty feed after purge, got %d rows", len(got))
	}
}

// --- Relation Graph Tests ---

func TestRelation_SymmetricLifecycle(t *testing.T) {
	ctx := context.Background()

	alice := feed.Endpoint{Kind: homeFeedTable, ID: "4001"}
	bob := feed.Endpoint{Kind: homeFeedTable, ID: "4002"}

	err := newsfeed.Relations.Create(ctx, alice, bob, feed.RelationOptions{Side: feed.SideBoth})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, pair := range [][2]feed.Endpoint{{alice, bob}, {bob, alice}} {
		ok, err := newsfeed.Relations.IsRelated(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("IsRelated failed: %v", err)
		}
		if !ok {
			t.Errorf("expected %s related to %s", pair[0].Ref(), pair[1].Ref())
		}
	}

	related, err := newsfeed.Relations.RelatedOf(ctx, alice)
	if err != nil {
		t.Fatalf("RelatedOf failed: %v", err)
	}
	if len(related) != 1 || related[0] != bob {
		t.Errorf("expected related of alice to be [bob], got %v", related)
	}

	err = newsfeed.Relations.Delete(ctx, alice, bob, feed.RelationOptions{Side: feed.SideBoth})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	for _, pair := range [][2]feed.Endpoint{{alice, bob}, {bob, alice}} {
		ok, err := newsfeed.Relations.IsRelated(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("IsRelated after delete failed: %v", err)
		}
		if ok {
			t.Errorf("expected %s no longer related to %s", pair[0].Ref(), pair[1].Ref())
		}
	}
}

func TestRelation_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()

	from := feed.Endpoint{Kind: homeFeedTable, ID: "4101"}
	to := feed.Endpoint{Kind: homeFeedTable, ID: "4102"}

	if err := newsfeed.Relations.Create(ctx, from, to, feed.RelationOptions{}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := newsfeed.Relations.Delete(ctx, from, to, feed.RelationOptions{}); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := newsfeed.Relations.Delete(ctx, from, to, feed.RelationOptions{}); err != nil {
		t.Errorf("expected repeated Delete to be a no-op, got %v", err)
	}
}

func TestRelation_FanInAcrossShards(t *testing.T) {
	ctx := context.Background()

	hub := feed.Endpoint{Kind: homeFeedTable, ID: "4200"}
	want := map[string]bool{}
	for i := 0; i < 12; i++ {
		spoke := feed.Endpoint{Kind: homeFeedTable, ID: fmt.Sprintf("42%02d", i+1)}
		if err := newsfeed.Relations.Create(ctx, hub, spoke, feed.RelationOptions{}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		want[spoke.Ref()] = true
	}

	related, err := newsfeed.Relations.RelatedOf(ctx, hub)
	if err != nil {
		t.Fatalf("RelatedOf failed: %v", err)
	}
	if len(related) != len(want) {
		t.Fatalf("expected %d related endpoints, got %d", len(want), len(related))
	}
	for _, ep := range related {
		if !want[ep.Ref()] {
			t.Errorf("unexpected endpoint %s", ep.Ref())
		}
	}
}

// --- Feed Model Tests ---

func TestFeed_FanOutToRelated(t *testing.T) {
	ctx := context.Background()

	hf, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// 5001 fans out to a home-feed follower and to a profile feed
	follower := feed.Endpoint{Kind: homeFeedTable, ID: "5002"}
	profile := feed.Endpoint{Kind: profileFeedTable, ID: "5001"}
	if err := hf.Register(ctx, "5001", follower, feed.RelationOptions{}); err != nil {
		t.Fatalf("Register follower failed: %v", err)
	}
	if err := hf.Register(ctx, "5001", profile, feed.RelationOptions{}); err != nil {
		t.Fatalf("Register profile failed: %v", err)
	}

	act := feed.NewActivity("posted a status", "")
	if err := newsfeed.Activities.Save(ctx, act); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := hf.Insert(ctx, "5001", act, feed.DefaultInsertOptions()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	own := collectFeed(t, hf, "5001", 10)
	if len(own) != 1 || own[0].ID != act.ID {
		t.Errorf("expected [%s] in own feed, got %v", act.ID, own)
	}
	theirs := collectFeed(t, hf, "5002", 10)
	if len(theirs) != 1 || theirs[0].ID != act.ID {
		t.Errorf("expected [%s] in follower feed, got %v", act.ID, theirs)
	}

	pf, err := newsfeed.Feed(profileFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	onProfile := collectFeed(t, pf, "5001", 10)
	if len(onProfile) != 1 || onProfile[0].ID != act.ID {
		t.Errorf("expected [%s] on profile feed, got %v", act.ID, onProfile)
	}

	// Snapshot columns survive the fan-out
	if own[0].Content != act.Content {
		t.Errorf("expected content %q, got %q", act.Content, own[0].Content)
	}
	if !own[0].Time.Equal(act.Time) {
		t.Errorf("expected time %v, got %v", act.Time, own[0].Time)
	}
}

func TestFeed_ObjectDedup(t *testing.T) {
	ctx := context.Background()
	object := "photo#" + uuid.New().String()

	hf, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	var last *feed.Activity
	for i := 0; i < 3; i++ {
		last = feed.NewActivity(fmt.Sprintf("revision %d", i), object)
		if err := newsfeed.Activities.Save(ctx, last); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := hf.Insert(ctx, "5101", last, feed.DefaultInsertOptions()); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got := collectFeed(t, hf, "5101", 10)
	if len(got) != 1 {
		t.Fatalf("expected one visible row for the object, got %d", len(got))
	}
	if got[0].ID != last.ID {
		t.Errorf("expected the newest activity %s, got %s", last.ID, got[0].ID)
	}
}

func TestFeed_DeleteRepairShowsPredecessor(t *testing.T) {
	ctx := context.Background()
	object := "photo#" + uuid.New().String()

	hf, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	a1 := feed.NewActivity("uploaded photo", object)
	if err := newsfeed.Activities.Save(ctx, a1); err != nil {
		t.Fatalf("Save a1 failed: %v", err)
	}
	if err := hf.Insert(ctx, "5201", a1, feed.DefaultInsertOptions()); err != nil {
		t.Fatalf("Insert a1 failed: %v", err)
	}

	a2 := feed.NewActivity("replaced photo", object)
	if err := newsfeed.Activities.Save(ctx, a2); err != nil {
		t.Fatalf("Save a2 failed: %v", err)
	}
	if err := hf.Insert(ctx, "5201", a2, feed.DefaultInsertOptions()); err != nil {
		t.Fatalf("Insert a2 failed: %v", err)
	}

	// Only a2 is visible while both exist
	got := collectFeed(t, hf, "5201", 10)
	if len(got) != 1 || got[0].ID != a2.ID {
		t.Fatalf("expected only %s visible, got %v", a2.ID, got)
	}

	// Deleting a2 repairs the feed back to a1
	if err := newsfeed.Activities.DeleteByID(ctx, a2.ID); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	got = collectFeed(t, hf, "5201", 10)
	if len(got) != 1 || got[0].ID != a1.ID {
		t.Fatalf("expected repair to restore %s, got %v", a1.ID, got)
	}

	// Deleting the last activity leaves the feed empty
	if err := newsfeed.Activities.DeleteByID(ctx, a1.ID); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if got := collectFeed(t, hf, "5201", 10); len(got) != 0 {
		t.Errorf("expected empty feed, got %v", got)
	}
}

func TestFeed_PaginationTerminates(t *testing.T) {
	ctx := context.Background()

	hf, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	var inserted []string
	for i := 0; i < 7; i++ {
		act := feed.NewActivity(fmt.Sprintf("item %d", i), "")
		if err := newsfeed.Activities.Save(ctx, act); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := hf.Insert(ctx, "5301", act, feed.InsertOptions{}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		inserted = append(inserted, act.ID)
	}

	got := collectFeed(t, hf, "5301", 3)
	if len(got) != len(inserted) {
		t.Fatalf("expected %d activities across pages, got %d", len(inserted), len(got))
	}
	// Newest first: v7 ids sort with creation order
	for i := 1; i < len(got); i++ {
		if got[i-1].ID <= got[i].ID {
			t.Errorf("expected descending ids, got %s before %s", got[i-1].ID, got[i].ID)
		}
	}

	// An empty feed yields one empty page and no cursor
	page, next, err := hf.Feeds(ctx, "5399", 3, "")
	if err != nil {
		t.Fatalf("Feeds failed: %v", err)
	}
	if len(page) != 0 || next != "" {
		t.Errorf("expected empty page and cursor, got %d rows, cursor %q", len(page), next)
	}
}

func TestFeed_RejectsForeignCursor(t *testing.T) {
	ctx := context.Background()

	hf, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	_, _, err = hf.Feeds(ctx, "5301", 3, "bm90LWEtcmVhbC1jdXJzb3I=")
	if !errors.Is(err, feed.ErrBadCursor) {
		t.Errorf("expected ErrBadCursor, got %v", err)
	}
}

func TestFeed_Clear(t *testing.T) {
	ctx := context.Background()

	hf, err := newsfeed.Feed(homeFeedTable)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		act := feed.NewActivity(fmt.Sprintf("clearable %d", i), "")
		if err := newsfeed.Activities.Save(ctx, act); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := hf.Insert(ctx, "5401", act, feed.InsertOptions{}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, act.ID)
	}

	if err := hf.Clear(ctx, "5401", false); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := collectFeed(t, hf, "5401", 10); len(got) != 0 {
		t.Errorf("expected empty feed after clear, got %d rows", len(got))
	}

	// Without related, the canonical activities survive
	for _, id := range ids {
		if _, err := newsfeed.Activities.Find(ctx, id); err != nil {
			t.Errorf("expected activity %s to survive clear, got %v", id, err)
		}
	}
}
