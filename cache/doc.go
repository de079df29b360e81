// Package cache provides a deduplicating response cache for API requests.
//
// A RequestCache sits between call sites and a caller-supplied Transport.
// Concurrent identical requests collapse into one transport call, successful
// responses are stored with per-endpoint TTLs from a Policy, and related
// entries can be dropped by substring or regular expression. A background
// Janitor sweeps entries that expired without being read again.
//
// Keys have the form METHOD:path:params, where params is canonical JSON with
// sorted keys, so the same logical request always maps to the same key.
package cache
