package resolve

// Materialization stages passed to Hooks.Materialized and recorded in Resource.Attempted.
const (
	MarkerEarly = "materialize:early"
	MarkerFinal = "materialize:final"
)

// Hooks observe resolution. Implementations MUST be cheap and non-blocking.
type Hooks interface {
	// A candidate failed or timed out. err is context.DeadlineExceeded on timeout.
	ProbeFailed(id, url string, err error)

	// A materialization attempt finished; err is nil on success.
	// stage ∈ {MarkerEarly, MarkerFinal}
	Materialized(id, stage string, err error)

	// An identifier was resolved after attempts entries in Resource.Attempted.
	Resolved(id string, kind SourceKind, attempts int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ProbeFailed(string, string, error)  {}
func (NopHooks) Materialized(string, string, error) {}
func (NopHooks) Resolved(string, SourceKind, int)   {}
