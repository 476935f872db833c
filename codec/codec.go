// Package codec turns typed cache values into the bytes a store keeps.
//
// Decode(Encode(v)) must give back an equal value. Each codec reports a
// Name, which is what the configuration's codec setting refers to.
package codec

import (
	"errors"
	"fmt"
)

// ErrUnknown is returned by ByName for names no codec answers to.
var ErrUnknown = errors.New("codec: unknown name")

type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Named is implemented by codecs selectable from configuration.
type Named interface {
	Name() string
}

// Names lists the codecs ByName understands, default first.
func Names() []string { return []string{NameJSON, NameMsgpack, NameCBOR} }

// ByName builds the codec for a configuration value. "" selects JSON.
// CBOR is built with deterministic encoding so equal values give equal bytes.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", NameJSON:
		return JSON[V]{}, nil
	case NameMsgpack:
		return Msgpack[V]{}, nil
	case NameCBOR:
		return NewCBOR[V](true)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
}
