// Package imgcache implements a two-tier key/value store used to remember
// resolved image references between requests and across restarts.
//
// Tiers:
//   - fast: in-process map, authoritative once populated.
//   - durable: a provider.Provider (Redis, S3, a local directory, BigCache, Ristretto).
//     Consulted only on a fast miss; a durable hit is copied back into the fast tier.
//
// Entries carry an optional TTL and an optional version tag. TTL governs expiry on read
// (lazy) and in ClearExpired (explicit sweep). The version tag only matters for
// GetVersion and InvalidateVersion, so a new deployment can drop stale entries without
// enumerating them.
//
// Keys:
//
//	<prefix><key>  - durable records (prefix defaults to "imgcache:")
//
// The store never returns storage faults from Get/Set/Delete and the sweeps. Faults are
// reported through Logger and Hooks and the affected operation degrades to a miss or no-op.
package imgcache
