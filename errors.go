package imgcache

import (
	"errors"
	"fmt"
)

// ErrRejected is reported when the durable provider refused a write (admission/pressure).
var ErrRejected = errors.New("imgcache: durable write rejected")

// DurableError describes a swallowed durable-tier failure. It is only ever
// handed to Hooks and Logger; Store methods do not return it.
type DurableError struct {
	Op  string // "get", "set", "del", "keys", "encode"
	Key string
	Err error
}

func (e *DurableError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("imgcache: durable %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("imgcache: durable %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *DurableError) Unwrap() error { return e.Err }
