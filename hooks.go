package imgcache

// Tier names the tier an event happened in.
type Tier string

const (
	TierFast    Tier = "fast"
	TierDurable Tier = "durable"
)

// Hooks lightweight callbacks for high-signal store events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths.
type Hooks interface {
	// A durable hit was copied into the fast tier.
	Hydrated(key string)

	// An entry was found expired on read and removed from tier.
	Expired(key string, tier Tier)

	// A read was rejected because the stored version differs from the expected one.
	// The entry is kept.
	VersionMismatch(key, want, got string)

	// A durable record was deleted on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(key, reason string)

	// A durable-tier operation failed and was swallowed.
	DurableFailure(err *DurableError)

	// A bulk operation finished.
	// op ∈ {"prefix", "expired", "version"}; removed counts entries across both tiers.
	Swept(op string, removed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hydrated(string)                {}
func (NopHooks) Expired(string, Tier)           {}
func (NopHooks) VersionMismatch(_, _, _ string) {}
func (NopHooks) SelfHeal(string, string)        {}
func (NopHooks) DurableFailure(*DurableError)   {}
func (NopHooks) Swept(string, int)              {}
