package codec

import jsoniter "github.com/json-iterator/go"

// JSON is a Codec backed by json-iterator in std-compatible mode: same wire
// shape as encoding/json, faster on the record-list payloads the cache
// stores. The zero value is ready to use.
type JSON[V any] struct{}

var js = jsoniter.ConfigCompatibleWithStandardLibrary

func (JSON[V]) Encode(v V) ([]byte, error) { return js.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := js.Unmarshal(b, &v)
	return v, err
}
