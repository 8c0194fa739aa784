// Package codec provides the serializers used to turn entities into the
// strings stored in Redis hashes and sets.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// ErrNotProto is returned by Proto when the value is not a proto.Message.
var ErrNotProto = errors.New("value is not a proto.Message")

// Serializer encodes entities for storage. Implementations must be
// deterministic: the same entity always yields the same bytes, because
// payload indexes remove set members by their exact encoding.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON serializes with encoding/json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

// Proto serializes protobuf messages in the binary wire format.
// Values (and Unmarshal targets) must implement proto.Message.
type Proto struct{}

var protoMarshal = proto.MarshalOptions{Deterministic: true}

func (Proto) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("proto marshal %T: %w", v, ErrNotProto)
	}
	data, err := protoMarshal.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("proto marshal: %w", err)
	}
	return data, nil
}

func (Proto) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("proto unmarshal %T: %w", v, ErrNotProto)
	}
	if err := proto.Unmarshal(data, m); err != nil {
		return fmt.Errorf("proto unmarshal: %w", err)
	}
	return nil
}

// Decode unmarshals data into a fresh T. Pointer types such as generated
// protobuf messages get an allocated target instead of a nil pointer.
func Decode[T any](s Serializer, data []byte) (T, error) {
	var v T
	if t := reflect.TypeOf((*T)(nil)).Elem(); t.Kind() == reflect.Pointer {
		v = reflect.New(t.Elem()).Interface().(T)
		return v, s.Unmarshal(data, v)
	}
	err := s.Unmarshal(data, &v)
	return v, err
}
