package feed

import "github.com/jacentio/plume/store"

// Config holds configuration for the newsfeed engine.
type Config struct {
	// ActivityTable is the name of the canonical activity table.
	// Default: "activity"
	ActivityTable string

	// ActivityIndexTable is the name of the object-keyed activity index.
	// Default: ActivityTable + "_index"
	ActivityIndexTable string

	// RelationTable is the name of the canonical relation table.
	// Default: "relation"
	RelationTable string

	// RelationIndexTable is the name of the (from, to) relation index.
	// Default: RelationTable + "_index"
	RelationIndexTable string

	// NumShards is the number of shards for the relation index.
	// Higher values spread hot "from" partitions (actors with many related
	// recipients) across partitions at the cost of fanning RelatedOf out
	// over more parallel queries.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// CursorSecret is appended to feed cursors before encoding. It rejects
	// accidentally mangled cursors; it is not a tamper-protection boundary.
	CursorSecret string
}

// DefaultConfig returns sensible defaults for small deployments.
func DefaultConfig() Config {
	return Config{
		ActivityTable: "activity",
		RelationTable: "relation",
		NumShards:     1,
		CursorSecret:  defaultCursorSecret,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ActivityTable == "" {
		c.ActivityTable = "activity"
	}
	if c.ActivityIndexTable == "" {
		c.ActivityIndexTable = c.ActivityTable + "_index"
	}
	if c.RelationTable == "" {
		c.RelationTable = "relation"
	}
	if c.RelationIndexTable == "" {
		c.RelationIndexTable = c.RelationTable + "_index"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.CursorSecret == "" {
		c.CursorSecret = defaultCursorSecret
	}
}

// activitySchema is shared by the canonical activity table and its index.
var activitySchema = store.Schema{
	"id":      store.TypeUUID,
	"content": store.TypeText,
	"object":  store.TypeText,
	"time":    store.TypeTimestamp,
}

// relationColumns describe one directed edge.
var relationSchema = store.Schema{
	"id":        store.TypeUUID,
	"from_kind": store.TypeText,
	"from_id":   store.TypeText,
	"to_kind":   store.TypeText,
	"to_id":     store.TypeText,
}

// relationIndexSchema adds the computed partition key and the to-ref sort
// key on top of the edge columns.
var relationIndexSchema = store.Schema{
	"pk":        store.TypeText,
	"to_ref":    store.TypeText,
	"id":        store.TypeUUID,
	"from_kind": store.TypeText,
	"from_id":   store.TypeText,
	"to_kind":   store.TypeText,
	"to_id":     store.TypeText,
}

func (c Config) activityTable() store.Table {
	return store.Table{
		Name:         c.ActivityTable,
		Schema:       activitySchema,
		PartitionKey: "id",
	}
}

func (c Config) activityIndexTable() store.Table {
	return store.Table{
		Name:         c.ActivityIndexTable,
		Schema:       activitySchema,
		PartitionKey: "object",
		SortKey:      "id",
	}
}

func (c Config) relationTable() store.Table {
	return store.Table{
		Name:         c.RelationTable,
		Schema:       relationSchema,
		PartitionKey: "id",
	}
}

func (c Config) relationIndexTable() store.Table {
	return store.Table{
		Name:         c.RelationIndexTable,
		Schema:       relationIndexSchema,
		PartitionKey: "pk",
		SortKey:      "to_ref",
	}
}
