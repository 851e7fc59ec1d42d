// Package store provides the bitemporal correction ledger.
//
// The ledger is append-only:
//   - entities: one row per entity the engine has committed for, holding the
//     optimistic-lock version and the last transaction time
//   - correction_events: one row per field change, never updated or deleted
//
// # Consistency
//
// AppendBatch is the only write path and the sole serialization point of the
// system. Within one transaction it registers an unknown entity at its
// baseline version, compares the stored version with the caller's expected
// version, inserts every event and bumps the version by exactly one.
//
// # Ordering
//
//   - Reads order by transaction_time ASC, seq ASC
//   - Transaction time is strictly increasing per entity; the store raises a
//     proposed commit instant past the entity's previous one if needed
//   - Valid time never influences ordering or the current value
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - Triggers reject UPDATE and DELETE on correction_events
//
// The PostgreSQL implementation lives in the postgres subpackage and shares
// the types and helpers declared here.
package store
