package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes cache payloads with vmihailenco/msgpack/v5. The zero
// value is ready to use.
//
// Field names follow `msgpack` struct tags, which are independent of `json`
// tags; set both when a record type is cached under either codec.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
