package domain

import "strings"

// PathSeparator joins relation segments and the leaf field in log field names.
const PathSeparator = "."

// RelationSegment is one hop of a relation path: the reference field Field
// declared on OwnerType points at TargetType.
type RelationSegment struct {
	Field      string
	OwnerType  string
	TargetType string
	Many       bool
}

// RelationPath is an ordered list of relation hops, resolved once when the
// configuration is merged.
type RelationPath []RelationSegment

// IsEmpty reports whether the path denotes the entity itself.
func (p RelationPath) IsEmpty() bool {
	return len(p) == 0
}

// String renders the path in dotted form ("site.owner").
func (p RelationPath) String() string {
	names := make([]string, len(p))
	for i, segment := range p {
		names[i] = segment.Field
	}
	return strings.Join(names, PathSeparator)
}

// Target returns the entity type reached at the end of the path, or
// fallback when the path is empty.
func (p RelationPath) Target(fallback string) string {
	if len(p) == 0 {
		return fallback
	}
	return p[len(p)-1].TargetType
}

// TrackedField identifies one monitored field for one owner entity type.
// A non-empty Path means the field lives on TargetType and changes to it are
// attributed to every OwnerType entity that reaches it through Path.
type TrackedField struct {
	OwnerType  string
	Path       RelationPath
	Field      string
	TargetType string
}

// DirectField builds the spec for a field declared on the owner type itself.
func DirectField(ownerType, field string) TrackedField {
	return TrackedField{OwnerType: ownerType, Field: field, TargetType: ownerType}
}

// Related reports whether the field arrives through a relation.
func (f TrackedField) Related() bool {
	return !f.Path.IsEmpty()
}

// LogField is the field name recorded in the log: the dotted relation path
// followed by the leaf field.
func (f TrackedField) LogField() string {
	if f.Path.IsEmpty() {
		return f.Field
	}
	return f.Path.String() + PathSeparator + f.Field
}

// Key is unique per (owner type, relation path, field).
func (f TrackedField) Key() string {
	return f.OwnerType + "|" + f.LogField()
}
