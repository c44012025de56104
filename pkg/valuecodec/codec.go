// Package valuecodec turns field values into the storage-safe JSON stored in
// the old/new value columns of field logs, and back.
//
// The default JSONCodec is deliberately lossy for two kinds of values:
// fixed-point decimals are stored as floating point numbers, and byte buffers
// are stored as text, which assumes UTF-8 payloads. Entities are stored by
// surrogate identity only.
package valuecodec

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"time"
	"unicode/utf8"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/fieldlog/internal/domain"
)

// Codec encodes field values for storage and decodes them back.
type Codec interface {
	Encode(value any) (json.RawMessage, error)
	Decode(raw json.RawMessage) (any, error)
}

// Null is the encoded form of an absent value.
var Null = json.RawMessage("null")

// JSONCodec is the default Codec.
type JSONCodec struct {
	// StrictBinary rejects byte buffers that are not valid UTF-8 instead of
	// storing them with replacement characters.
	StrictBinary bool
}

// NewJSONCodec returns the default codec.
func NewJSONCodec() JSONCodec {
	return JSONCodec{}
}

// Encode implements Codec.
func (c JSONCodec) Encode(value any) (json.RawMessage, error) {
	normalized, err := c.normalize(value)
	if err != nil {
		return nil, err
	}
	if normalized == nil {
		return Null, nil
	}
	encoded, err := gojson.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", value, err)
	}
	return encoded, nil
}

// Decode implements Codec. Temporal values come back as their RFC 3339 text
// and references as identity strings; callers that need typed values parse
// them against the field definition.
func (c JSONCodec) Decode(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := gojson.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return value, nil
}

func (c JSONCodec) normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.Format(time.RFC3339Nano), nil
	case time.Duration:
		return v.Seconds(), nil
	case pgtype.Numeric:
		if !v.Valid {
			return nil, nil
		}
		f, err := v.Float64Value()
		if err != nil {
			return nil, fmt.Errorf("encode decimal: %w", err)
		}
		return f.Float64, nil
	case *big.Rat:
		if v == nil {
			return nil, nil
		}
		f, _ := v.Float64()
		return f, nil
	case []byte:
		if v == nil {
			return nil, nil
		}
		if c.StrictBinary && !utf8.Valid(v) {
			return nil, fmt.Errorf("encode binary: payload is not valid UTF-8")
		}
		return string(v), nil
	case uuid.UUID:
		return v.String(), nil
	case domain.EntityRef:
		return v.ID.String(), nil
	case domain.Entity:
		return v.ID.String(), nil
	case []domain.EntityRef:
		ids := make([]string, len(v))
		for i, ref := range v {
			ids[i] = ref.ID.String()
		}
		return ids, nil
	case []domain.Entity:
		ids := make([]string, len(v))
		for i, entity := range v {
			ids[i] = entity.ID.String()
		}
		return ids, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			normalized, err := c.normalize(item)
			if err != nil {
				return nil, err
			}
			out[key] = normalized
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := c.normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			normalized, err := c.normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	}
	return value, nil
}

var builtin = map[string]Codec{
	"":            NewJSONCodec(),
	"json":        NewJSONCodec(),
	"json-strict": JSONCodec{StrictBinary: true},
}

// Lookup returns a built-in codec by name. The empty name selects the default.
func Lookup(name string) (Codec, error) {
	codec, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("unknown value codec %q", name)
	}
	return codec, nil
}
