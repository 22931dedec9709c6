package imgcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/imgcache/versionstore"
)

type brokenMarks struct {
	loadErr, saveErr error
	saved            []string
}

func (b *brokenMarks) Load(context.Context) (string, bool, error) { return "", false, b.loadErr }
func (b *brokenMarks) Save(_ context.Context, v string) error {
	b.saved = append(b.saved, v)
	return b.saveErr
}
func (b *brokenMarks) Close(context.Context) error { return nil }

func TestBootstrapInvalidatesOnNewBuild(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	mp := newMemProvider()
	st := newTestStore(t, mp, clk, nil)
	marks := versionstore.NewLocal()
	_ = marks.Save(ctx, "build-1")

	st.Set(ctx, "old", imgMeta{}, SetOptions{Version: "build-1", Persist: true})
	st.Set(ctx, "expiring", imgMeta{}, SetOptions{TTL: time.Second, Version: "build-2", Persist: true})
	clk.Advance(2 * time.Second)

	invalidated, err := Bootstrap[imgMeta](ctx, st, marks, "build-2")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !invalidated {
		t.Fatalf("expected invalidation on a new build marker")
	}
	if mp.has(DefaultPrefix+"old") || mp.has(DefaultPrefix+"expiring") {
		t.Fatalf("stale and expired records should be gone")
	}
	if v, _, _ := marks.Load(ctx); v != "build-2" {
		t.Fatalf("marker=%q want build-2", v)
	}
}

func TestBootstrapSameBuildOnlySweepsExpired(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	st := newTestStore(t, newMemProvider(), clk, nil)
	marks := versionstore.NewLocal()
	_ = marks.Save(ctx, "build-2")

	// written by another version, but the marker says this build already swept
	st.Set(ctx, "foreign", imgMeta{}, SetOptions{Version: "build-3", Persist: true})
	st.Set(ctx, "expiring", imgMeta{}, SetOptions{TTL: time.Second})
	clk.Advance(2 * time.Second)

	invalidated, err := Bootstrap[imgMeta](ctx, st, marks, "build-2")
	if err != nil || invalidated {
		t.Fatalf("invalidated=%v err=%v want false,nil", invalidated, err)
	}
	if !st.fastHas("foreign") {
		t.Fatalf("version sweep should be skipped for an unchanged marker")
	}
	if st.fastHas("expiring") {
		t.Fatalf("expired entries are swept on every boot")
	}
}

func TestBootstrapMarkerFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, newMemProvider(), newFakeClock(), nil)
	st.Set(ctx, "old", imgMeta{}, SetOptions{Version: "v1"})

	saveErr := errors.New("save failed")
	marks := &brokenMarks{loadErr: errors.New("load failed"), saveErr: saveErr}

	invalidated, err := Bootstrap[imgMeta](ctx, st, marks, "v2")
	if !invalidated {
		t.Fatalf("an unreadable marker counts as changed")
	}
	if !errors.Is(err, saveErr) {
		t.Fatalf("err=%v want wrapped save error", err)
	}
	if st.fastHas("old") {
		t.Fatalf("sweep must run even when the marker cannot be saved")
	}
	if len(marks.saved) != 1 || marks.saved[0] != "v2" {
		t.Fatalf("saved=%v", marks.saved)
	}
}
