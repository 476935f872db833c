package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores proto messages in wire format. It is not selectable by
// name since the message constructor has to come from code; tagcache.ForProto
// wires it up.
type Protobuf[T proto.Message] struct {
	ctor func() T
}

// NewProtobuf takes a constructor returning a fresh non-nil message,
// e.g. func() *pb.Product { return new(pb.Product) }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

func (Protobuf[T]) Encode(v T) ([]byte, error) { return proto.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.ctor()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
