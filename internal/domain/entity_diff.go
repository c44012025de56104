package domain

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Snapshot is the point-in-time copy of an entity's tracked field values
// taken right before a mutation is applied. It is never persisted.
type Snapshot struct {
	EntityID   uuid.UUID
	EntityType string
	Version    int64
	Properties map[string]any
}

// NewSnapshot copies the given fields of the entity. A nil field list copies
// every property.
func NewSnapshot(entity Entity, fields []string) *Snapshot {
	snapshot := &Snapshot{
		EntityID:   entity.ID,
		EntityType: entity.EntityType,
		Version:    entity.Version,
	}
	if fields == nil {
		snapshot.Properties = copyProperties(entity.Properties)
		return snapshot
	}
	snapshot.Properties = make(map[string]any, len(fields))
	for _, field := range fields {
		if value, ok := entity.Properties[field]; ok {
			snapshot.Properties[field] = value
		}
	}
	return snapshot
}

// Value returns the pre-mutation value of a field. A nil snapshot yields nil.
func (s *Snapshot) Value(field string) any {
	if s == nil {
		return nil
	}
	return s.Properties[field]
}

// ValuesEqual compares two field values by meaning rather than by
// representation: numbers compare by exact value regardless of Go type,
// timestamps by instant, byte buffers by content and entity references by
// identity.
func ValuesEqual(a, b any) bool {
	return reflect.DeepEqual(canonicalize(a), canonicalize(b))
}

type (
	canonicalNumber string
	canonicalTime   string
	canonicalBytes  string
	canonicalRef    string
)

func canonicalize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool:
		return v
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		rat, _ := new(big.Rat).SetString(fmt.Sprintf("%d", v))
		return canonicalNumber(rat.RatString())
	case float32:
		return canonicalFloat(float64(v))
	case float64:
		return canonicalFloat(v)
	case *big.Rat:
		if v == nil {
			return nil
		}
		return canonicalNumber(v.RatString())
	case pgtype.Numeric:
		return canonicalNumeric(v)
	case time.Time:
		return canonicalTime(v.UTC().Format(time.RFC3339Nano))
	case *time.Time:
		if v == nil {
			return nil
		}
		return canonicalize(*v)
	case time.Duration:
		return canonicalNumber(new(big.Rat).SetFrac64(int64(v), int64(time.Second)).RatString())
	case []byte:
		if v == nil {
			return nil
		}
		return canonicalBytes(v)
	case uuid.UUID:
		return canonicalRef(v.String())
	case EntityRef:
		return canonicalRef(v.ID.String())
	case Entity:
		return canonicalRef(v.ID.String())
	case []EntityRef:
		refs := make([]any, len(v))
		for i, ref := range v {
			refs[i] = canonicalRef(ref.ID.String())
		}
		return refs
	case []Entity:
		refs := make([]any, len(v))
		for i, entity := range v {
			refs[i] = canonicalRef(entity.ID.String())
		}
		return refs
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = canonicalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = canonicalize(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = canonicalize(rv.Index(i).Interface())
		}
		return out
	}
	return value
}

func canonicalFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return canonicalNumber(strconv.FormatFloat(f, 'g', -1, 64))
	}
	// Shortest round-trip text, so 3.14 compares equal to the decimal 3.14.
	rat, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return canonicalNumber(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return canonicalNumber(rat.RatString())
}

func canonicalNumeric(n pgtype.Numeric) any {
	if !n.Valid {
		return nil
	}
	if n.NaN {
		return canonicalNumber("NaN")
	}
	if n.InfinityModifier != pgtype.Finite {
		return canonicalNumber(strings.ToLower(n.InfinityModifier.String()))
	}
	if n.Int == nil {
		return canonicalNumber("0")
	}
	rat := new(big.Rat).SetInt(n.Int)
	if n.Exp != 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(n.Exp))), nil)
		if n.Exp > 0 {
			rat.Mul(rat, new(big.Rat).SetInt(scale))
		} else {
			rat.Quo(rat, new(big.Rat).SetInt(scale))
		}
	}
	return canonicalNumber(rat.RatString())
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
