package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/imgcache"
)

func TestLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Warn("durable failure", imgcache.Fields{"key": "k", "err": errors.New("boom")})
	l.Debug("no fields", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel || ctx["key"] != "k" || ctx["err"] != "boom" {
		t.Fatalf("unexpected entry: %v %v", entries[0].Level, ctx)
	}
}
