// Package codec converts typed values to and from the byte form kept in shared stores.
//
// Every value is described by a type descriptor, a short name registered in a
// Registry. Stored values are wrapped in an envelope carrying that descriptor so
// they can be decoded without knowing their type up front. Preset values arrive
// the other way around: a descriptor and a serialized payload, decoded with
// DecodeString.
//
// Payloads are JSON unless the type implements Item, in which case its own
// Marshal/Unmarshal methods are used.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

var (
	// ErrUnknownType indicates a descriptor or Go type that is not registered.
	ErrUnknownType = errors.New("unknown type")
	// ErrMalformed indicates a payload that cannot be decoded into its declared type.
	ErrMalformed = errors.New("malformed payload")
	// ErrDuplicate indicates a descriptor already registered for a different type.
	ErrDuplicate = errors.New("duplicate type descriptor")
)

// Item is implemented by values that serialize themselves.
//
// Unmarshal is normally declared on the pointer receiver; the registry allocates
// a fresh value before calling it.
type Item interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

type marshaler interface {
	Marshal() ([]byte, error)
}

// envelope is the stored form of an encoded value.
type envelope struct {
	Type    string `json:"t"`
	Payload []byte `json:"v"`
}

// Registry maps type descriptors to Go types. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewRegistry returns a registry with the builtin descriptors for strings,
// booleans, the sized integer and float types ("int", "int32", "uint64",
// "float32", ...), bytes ([]byte), time, duration, map (map[string]any),
// list ([]any), strings ([]string), stringmap (map[string]string) and json
// (any). Every other type must be registered before it can be written to a
// backing store.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}

	MustRegister[string](r, "string")
	MustRegister[bool](r, "bool")
	MustRegister[int](r, "int")
	MustRegister[int8](r, "int8")
	MustRegister[int16](r, "int16")
	MustRegister[int32](r, "int32")
	MustRegister[int64](r, "int64")
	MustRegister[uint](r, "uint")
	MustRegister[uint8](r, "uint8")
	MustRegister[uint16](r, "uint16")
	MustRegister[uint32](r, "uint32")
	MustRegister[uint64](r, "uint64")
	MustRegister[float32](r, "float32")
	MustRegister[float64](r, "float64")
	MustRegister[[]byte](r, "bytes")
	MustRegister[time.Time](r, "time")
	MustRegister[time.Duration](r, "duration")
	MustRegister[map[string]any](r, "map")
	MustRegister[[]any](r, "list")
	MustRegister[[]string](r, "strings")
	MustRegister[map[string]string](r, "stringmap")
	MustRegister[any](r, "json")

	return r
}

// Register binds name to the type T.
//
// Registering the same pair twice is allowed; binding a name to a second type is not.
func Register[T any](r *Registry, name string) error {
	t := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %q is bound to %s", ErrDuplicate, name, existing)
	}

	r.byName[name] = t
	if _, ok := r.byType[t]; !ok {
		r.byType[t] = name
	}

	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](r *Registry, name string) {
	if err := Register[T](r, name); err != nil {
		panic(err)
	}
}

// Descriptor returns the registered name for the dynamic type of v.
func (r *Registry) Descriptor(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: nil value", ErrUnknownType)
	}

	t := reflect.TypeOf(v)

	r.mu.RLock()
	name, ok := r.byType[t]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s is not registered", ErrUnknownType, t)
	}

	return name, nil
}

// Encode serializes v into a self-describing envelope.
func (r *Registry) Encode(v any) ([]byte, error) {
	name, err := r.Descriptor(v)
	if err != nil {
		return nil, err
	}

	payload, err := marshalPayload(v)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal %s value: %w", ErrMalformed, name, err)
	}

	data, err := json.Marshal(envelope{Type: name, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

// Decode restores a value produced by Encode.
func (r *Registry) Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %w", ErrMalformed, err)
	}

	return r.decode(env.Type, env.Payload)
}

// DecodeString decodes a serialized payload declared with the given descriptor.
//
// For the "string" descriptor a payload that is not a JSON string is taken verbatim.
func (r *Registry) DecodeString(descriptor, payload string) (any, error) {
	v, err := r.decode(descriptor, []byte(payload))
	if err != nil && descriptor == "string" && errors.Is(err, ErrMalformed) {
		return payload, nil
	}

	return v, err
}

func (r *Registry) decode(descriptor string, payload []byte) (any, error) {
	r.mu.RLock()
	t, ok := r.byName[descriptor]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: descriptor %q", ErrUnknownType, descriptor)
	}

	v, err := newValue(t)
	if err != nil {
		return nil, err
	}

	if err := unmarshalPayload(v.Interface(), payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, descriptor, err)
	}

	if t.Kind() == reflect.Pointer {
		return v.Interface(), nil
	}

	return v.Elem().Interface(), nil
}

// newValue allocates a pointer to be decoded into. For pointer types the pointer
// itself is the result; for other types the caller dereferences it.
func newValue(t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.Pointer {
		if t.Elem().Kind() == reflect.Pointer {
			return reflect.Value{}, fmt.Errorf("%w: %s cannot be allocated", ErrUnknownType, t)
		}
		return reflect.New(t.Elem()), nil
	}

	return reflect.New(t), nil
}

func marshalPayload(v any) ([]byte, error) {
	if m, ok := v.(marshaler); ok {
		return m.Marshal()
	}

	return json.Marshal(v)
}

func unmarshalPayload(target any, payload []byte) error {
	if it, ok := target.(Item); ok {
		return it.Unmarshal(payload)
	}

	return json.Unmarshal(payload, target)
}
