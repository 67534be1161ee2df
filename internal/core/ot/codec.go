package ot

import (
	"bytes"
	"encoding/json"
)

// Envelope is the wire form of one operation: {"type": tag, "value": ...}.
type Envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Codec converts a domain's operations to and from envelopes.
type Codec[O any] interface {
	Encode(op O) (Envelope, error)
	Decode(env Envelope) (O, error)
}

// Wrap marshals value under tag.
func Wrap(tag string, value any) (Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Envelope{}, serializationError("encode %s: %v", tag, err)
	}
	return Envelope{Type: tag, Value: raw}, nil
}

// Unwrap strictly decodes an envelope's value into T. Unknown fields and
// missing values are serialization errors.
func Unwrap[T any](env Envelope) (T, error) {
	var v T
	if len(bytes.TrimSpace(env.Value)) == 0 {
		return v, serializationError("%s: missing value", env.Type)
	}
	dec := json.NewDecoder(bytes.NewReader(env.Value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, serializationError("%s: %v", env.Type, err)
	}
	return v, nil
}

// UnknownType is the error codecs return for an unrecognised tag.
func UnknownType(tag string) error {
	return serializationError("unknown operation type %q", tag)
}

// EncodeAll encodes a sequence, stopping at the first failure.
func EncodeAll[O any](codec Codec[O], ops []O) ([]Envelope, error) {
	out := make([]Envelope, 0, len(ops))
	for _, op := range ops {
		env, err := codec.Encode(op)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// DecodeAll decodes a sequence, stopping at the first failure.
func DecodeAll[O any](codec Codec[O], envs []Envelope) ([]O, error) {
	out := make([]O, 0, len(envs))
	for _, env := range envs {
		op, err := codec.Decode(env)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}
