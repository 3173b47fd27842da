// Package storage persists subscribers and the content ledger.
//
// Both collections are unique-keyed sets: a subscriber is identified by its
// contact address, a ledger entry by the content identifier. Every mutation is a
// single statement against that key, so concurrent webhook deliveries or
// overlapping broadcast cycles converge without cross-call locking:
//
//   - Insert / RecordContent report created=false when the key already exists
//   - Delete reports removed=false when the key is absent
//
// Drivers: "sqlite" (default), "postgres", "file" (JSON-lines journal +
// snapshot), "memory".
package storage
