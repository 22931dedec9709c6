// Package versionstore remembers the last build marker applied to a cache, so a
// restart with the same build skips the version sweep.
//
// Use Local for single-process setups (the marker is lost on restart, so every boot
// sweeps) or Redis when the durable tier is shared by replicas.
package versionstore

import "context"

type Store interface {
	// Load returns the recorded marker; ok=false when none was recorded yet.
	Load(ctx context.Context) (version string, ok bool, err error)
	// Save records version as the applied marker.
	Save(ctx context.Context, version string) error
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
