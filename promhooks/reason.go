package promhooks

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/imgcache/resolve"
)

// probeReason buckets probe errors into a bounded label set.
func probeReason(err error) string {
	var se *resolve.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, resolve.ErrNotImage):
		return "not_image"
	default:
		return "other"
	}
}
