package versionstore

import (
	"context"
	"testing"
)

func TestLocalLoadBeforeSave(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()
	t.Cleanup(func() { _ = s.Close(ctx) })

	v, ok, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok || v != "" {
		t.Fatalf("expected nothing recorded, got %q ok=%v", v, ok)
	}
	if !s.SavedAt().IsZero() {
		t.Fatalf("SavedAt should be zero before Save")
	}
}

func TestLocalSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	if err := s.Save(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "v2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Load(ctx)
	if err != nil || !ok || v != "v2" {
		t.Fatalf("got %q ok=%v err=%v want v2", v, ok, err)
	}
	if s.SavedAt().IsZero() {
		t.Fatalf("SavedAt should be set after Save")
	}
}

func TestLocalEmptyMarkerIsRecorded(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()
	if err := s.Save(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx); !ok {
		t.Fatalf("an empty marker is still a recorded marker")
	}
}
