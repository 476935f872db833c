package codec

import "encoding/json"

const NameJSON = "json"

// JSON is the default codec: text payloads other tools can read straight
// from a shared store.
type JSON[V any] struct{}

var (
	_ Codec[struct{}] = JSON[struct{}]{}
	_ Named           = JSON[struct{}]{}
)

func (JSON[V]) Name() string { return NameJSON }

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
