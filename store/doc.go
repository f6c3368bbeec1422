// Package store provides a schema-driven DynamoDB access layer for the
// newsfeed engine.
//
// Plume keeps several denormalized tables mutually consistent (a canonical
// activity table, an object index, a relation graph and any number of feed
// tables). The feed packages never build requests themselves; they describe
// tables with a [Table] descriptor and an explicit column type map, and this
// package translates equality predicates and column-value maps into typed
// DynamoDB requests.
//
// # Tables and Schemas
//
// A [Table] names a DynamoDB table, declares its partition (and optional
// sort) key, and carries a [Schema] mapping each column to a [ColumnType].
// Values are coerced through a single typed encoder: string-shaped columns
// (uuid, text, varchar, ascii, timestamp) become S attributes, numeric
// columns (int, bigint, float, double) become N attributes.
//
// # Reads
//
// [Store.Get] takes an equality-conjunction predicate. When the predicate
// covers the table's partition key a Query is issued; otherwise the caller
// must opt into an unindexed Scan with [GetOptions].Filtering. Results come
// back as a lazy [Rows] paginator carrying an opaque continuation token
// ([Rows.PageToken]) that can be fed back through [GetOptions].PageToken.
//
// # Writes
//
// [Store.Put], [Store.Delete] and [Store.Update] are point operations.
// Multi-row operations produce deferred [Statement] values (see
// [NewPutStatement] and [NewDeleteStatement]) and submit them together with
// [Store.Batch], which deduplicates statements and chunks them to the
// BatchWriteItem request limit. A batch is one submission, not a
// transaction: execution order across tables is not guaranteed.
//
// # Errors
//
//   - [ErrNotFound] - no row matched a single-row lookup
//   - [ErrMissingKey] - predicate does not cover the table key
//   - [ErrBadPageToken] - continuation token could not be decoded
package store
