// Package reassembler turns tagged fragments back into complete frame payloads.
//
// State machine per frame id:
//
//	┌─────────┐
//	│  Start  │
//	└────┬────┘
//	     │ first fragment (TotalParts fixed here)
//	     ▼
//	┌──────────┐
//	│ Pending  │ ◄──┐
//	└──┬────┬──┘    │ more parts (duplicates overwrite)
//	   │    │       │
//	   │    └───────┘
//	   │ all slots filled          now - firstSeen > timeout
//	   ▼                           ▼
//	┌──────────┐             ┌──────────┐
//	│ Complete │             │ Expired  │
//	└──────────┘             └──────────┘
//
// Both terminal states remove the entry, so the id can be reused by the
// sender. Expiry is evaluated at the start of every Submit against the
// caller-supplied time; Expire may also be called from a periodic tick when
// notifications stop arriving.
//
// A Reassembler is not safe for concurrent use.
package reassembler
