package imgcache

import "time"

// Entry is one cached value with its bookkeeping.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
	TTL      time.Duration // 0 => no expiry
	Version  string        // "" => unversioned
}

// Expired reports whether the entry's TTL elapsed at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return expired(e.StoredAt, e.TTL, now)
}

func expired(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(storedAt) > ttl
}

// staleVersion reports whether a stored version should be dropped for current.
func staleVersion(stored, current string) bool {
	return stored != "" && stored != current
}
