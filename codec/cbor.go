package codec

import "github.com/fxamacker/cbor/v2"

const NameCBOR = "cbor"

// CBOR encodes with fxamacker/cbor. Build it with NewCBOR; the zero value
// has no modes and panics on use.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var (
	_ Codec[struct{}] = CBOR[struct{}]{}
	_ Named           = CBOR[struct{}]{}
)

// NewCBOR uses core deterministic encoding when deterministic is set and
// preferred unsorted encoding otherwise. Times are RFC 3339 strings with
// nanoseconds either way.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics where NewCBOR would fail.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	cd, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return cd
}

func (CBOR[V]) Name() string { return NameCBOR }

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if err := c.dec.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
