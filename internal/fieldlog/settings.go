package fieldlog

// AllFields selects every field declared by the entity type.
const AllFields = "ALL"

// ScopeSettings are the options recognized at every configuration scope.
// Nil flags default to true.
type ScopeSettings struct {
	Enabled      *bool          `mapstructure:"enabled"`
	FailSilently *bool          `mapstructure:"failSilently"`
	Callbacks    []string       `mapstructure:"callbacks"`
	ExtraData    map[string]any `mapstructure:"extraData"`

	// CallbackFuncs are appended after the named callbacks of the same scope.
	CallbackFuncs []NamedCallback `mapstructure:"-"`
}

// Settings is the raw configuration tree handed to Resolve.
type Settings struct {
	ScopeSettings `mapstructure:",squash"`

	// Encoder names the value codec; empty selects the default JSON codec.
	Encoder string          `mapstructure:"encoder"`
	Groups  []GroupSettings `mapstructure:"groups"`
}

// GroupSettings groups entity types that share options.
type GroupSettings struct {
	ScopeSettings `mapstructure:",squash"`

	Name        string               `mapstructure:"name"`
	EntityTypes []EntityTypeSettings `mapstructure:"entityTypes"`
}

// EntityTypeSettings declares what is tracked for one entity type.
type EntityTypeSettings struct {
	ScopeSettings `mapstructure:",squash"`

	Name string `mapstructure:"name"`
	// Fields is an explicit list or the single entry AllFields. An empty list
	// with ExcludeFields set means every field but the excluded ones.
	Fields        []string `mapstructure:"fields"`
	ExcludeFields []string `mapstructure:"excludeFields"`
	// RelatedFields are dotted paths from this type to a field of a related
	// type ("site.name").
	RelatedFields []string `mapstructure:"relatedFields"`
}

// Bool returns a pointer to b, for building settings in code.
func Bool(b bool) *bool {
	return &b
}

func flag(value *bool) bool {
	return value == nil || *value
}
