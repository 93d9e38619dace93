// Package devices keeps the set of peripherals seen during discovery.
//
// Scan results arrive repeatedly and incompletely: an advertisement may carry
// no name, and the sensor service may only show up in a later scan response.
// Registry merges these into one Device per address.
//
// Registry provides command-query separation:
//
// Queries (read-only):
//   - Get(address) - Retrieve one device
//   - List() - All devices sorted by address
//   - FirstWithService() - First device advertising the sensor service
//
// Commands (mutations):
//   - Observe(desc, now) - Merge a scan result
//   - Prune(now, ttl) - Remove devices not seen for ttl
//
// Thread-safe with RWMutex for concurrent access.
//
// Scanner repeats discovery passes into a Registry and prunes devices not
// seen for DefaultTTL between passes. Find scans until a Match accepts one.
package devices
