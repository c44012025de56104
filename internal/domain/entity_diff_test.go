package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestSnapshotScopesFields(t *testing.T) {
	entity := NewEntity("Example", map[string]any{"a": 1, "b": "x"})
	snapshot := NewSnapshot(entity, []string{"a"})

	if _, ok := snapshot.Properties["b"]; ok {
		t.Fatalf("snapshot should not carry untracked field b")
	}
	if snapshot.Value("a") != 1 {
		t.Fatalf("expected a=1, got %v", snapshot.Value("a"))
	}

	var absent *Snapshot
	if absent.Value("a") != nil {
		t.Fatalf("nil snapshot must yield nil values")
	}
}

func TestValuesEqual(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	berlin := time.FixedZone("CEST", 2*60*60)
	id := uuid.New()

	cases := []struct {
		name  string
		a, b  any
		equal bool
	}{
		{"int and float", 1, float64(1), true},
		{"int mismatch", 1, 2, false},
		{"string vs number", "1", 1, false},
		{"nil and nil", nil, nil, true},
		{"nil and zero", nil, 0, false},
		{"same instant other zone", now, now.In(berlin), true},
		{"different instant", now, now.Add(time.Second), false},
		{"bytes by content", []byte("test"), []byte("test"), true},
		{"bytes differ", []byte("test"), []byte("test2"), false},
		{"decimal vs float", pgtype.Numeric{Int: big.NewInt(314), Exp: -2, Valid: true}, 3.14, true},
		{"decimal non canonical", pgtype.Numeric{Int: big.NewInt(3140), Exp: -3, Valid: true}, pgtype.Numeric{Int: big.NewInt(314), Exp: -2, Valid: true}, true},
		{"reference by identity", EntityRef{ID: id, EntityType: "A"}, Entity{ID: id, EntityType: "A", Properties: map[string]any{"x": 1}}, true},
		{"uuid vs ref", id, EntityRef{ID: id}, true},
		{"nested json", map[string]any{"test": "test"}, map[string]any{"test": "test"}, true},
		{"nested json differs", map[string]any{"test": "test"}, map[string]any{"test": "test2"}, false},
		{"string list vs any list", []string{"a", "b"}, []any{"a", "b"}, true},
		{"duration", time.Hour, 3600, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValuesEqual(tc.a, tc.b); got != tc.equal {
				t.Fatalf("ValuesEqual(%#v, %#v) = %v, want %v", tc.a, tc.b, got, tc.equal)
			}
		})
	}
}
