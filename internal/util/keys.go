package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Token returns a short deterministic hex digest of parts (32 hex chars).
// Parts are length-delimited, so ("ab","c") and ("a","bc") differ.
func Token(parts ...string) string {
	h := sha256.New()
	var n [4]byte
	for _, p := range parts {
		l := len(p)
		n[0], n[1], n[2], n[3] = byte(l>>24), byte(l>>16), byte(l>>8), byte(l)
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// ResourceKey is the cache key for a resolved identifier: "resolve:<group>:<id>".
// An empty group is kept as is, so keys of ungrouped lookups share one namespace.
func ResourceKey(group, id string) string {
	var b strings.Builder
	b.Grow(len("resolve:") + len(group) + 1 + len(id))
	b.WriteString("resolve:")
	b.WriteString(group)
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

// GroupPrefix is the key prefix shared by all ResourceKeys of group.
func GroupPrefix(group string) string {
	return "resolve:" + group + ":"
}
