// Package feed implements a write-time fan-out newsfeed engine.
//
// An [Activity] is a timestamped content event, optionally tagged with an
// object key grouping it with other activities about the same subject. The
// engine keeps a canonical activity table, an object-keyed index, a directed
// relation graph, and any number of per-audience feed tables mutually
// consistent under insert and delete.
//
// # Components
//
//   - [Activities] - the canonical activity store: find, insert with an
//     index write, cascading delete with feed repair, and bulk hiding of a
//     whole object.
//   - [Relations] - the directed relation graph deciding who an activity
//     fans out to, stored canonically by edge id and indexed by (from, to).
//   - [Registry] - the runtime-mutable catalog of feed [Kind]s; every
//     registered kind participates in fan-out dedup and delete repair.
//   - [Feed] - the per-kind orchestrator: fan-out insert, delete, and
//     cursor-paginated reads.
//
// # Consistency
//
// Multi-table operations group their secondary writes into one deduplicated
// batch submission. That bounds, but does not eliminate, the window in which
// a reader can observe a half-applied operation: there are no cross-table
// transactions here, only compensating deletes on the insert paths and an
// idempotent repair pass on the delete paths. Concurrent writers to the same
// object can race; the engine is eventually, not strictly, consistent.
//
// Everything is wired by explicit construction: [New] takes the DynamoDB
// client handle and a [Config], and hands out the component handles.
package feed
