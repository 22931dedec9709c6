package imgcache

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/imgcache/versionstore"
)

// Bootstrap is the startup routine for a store: when the recorded build marker differs
// from current (or none is recorded) it drops entries tagged with other versions, then it
// sweeps expired entries and records current.
//
// Sweeps never fail. The returned error only reports a marker that could not be saved;
// the next boot will sweep again. A marker that cannot be loaded counts as changed.
func Bootstrap[V any](ctx context.Context, s Store[V], marks versionstore.Store, current string) (invalidated bool, err error) {
	last, ok, lerr := marks.Load(ctx)
	if lerr != nil || !ok || last != current {
		s.InvalidateVersion(ctx, current)
		invalidated = true
	}
	s.ClearExpired(ctx)

	if !invalidated {
		return false, nil
	}
	if err := marks.Save(ctx, current); err != nil {
		return true, fmt.Errorf("imgcache: save build marker %q: %w", current, err)
	}
	return true, nil
}
