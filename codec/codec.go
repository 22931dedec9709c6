// Package codec turns cached values into the payload bytes stored in the durable tier.
//
// The fast tier keeps values as-is; only persisted entries go through a Codec.
// Pick one whose round trip preserves every field of V you care about: JSON drops
// unexported fields, msgpack and CBOR follow their own struct tags.
package codec

// Codec encodes/decodes values V to []byte for durable storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
