package codec

import "github.com/vmihailenco/msgpack/v5"

const NameMsgpack = "msgpack"

// Msgpack trades readability for size. Struct fields use their msgpack tags,
// falling back to field names.
type Msgpack[V any] struct{}

var (
	_ Codec[struct{}] = Msgpack[struct{}]{}
	_ Named           = Msgpack[struct{}]{}
)

func (Msgpack[V]) Name() string { return NameMsgpack }

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
