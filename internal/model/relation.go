package model

// RelationType enumerates the kinds of edges between entities.
type RelationType string

const (
	RelationContains RelationType = "contains"
	RelationInherits  RelationType = "inherits"
	RelationImports   RelationType = "imports"
	RelationCalls     RelationType = "calls"
)

// Relation is a directed edge between two entities, identified by name
// (entities are resolved to their names, not pointers — see DESIGN.md's
// "flat value semantics, no persistent graph" note).
type Relation struct {
	FromEntity   string
	ToEntity     string
	RelationType RelationType
	Context      string
	Confidence   float64 // default 1.0 when unset by caller
	Metadata     map[string]any
}

// ImportType returns the metadata "import_type" tag carried by file-operation
// import relations (e.g. "json_load", "path_open"), or "" if absent.
func (r Relation) ImportType() string {
	if r.Metadata == nil {
		return ""
	}
	if v, ok := r.Metadata["import_type"].(string); ok {
		return v
	}
	return ""
}

// WithDefaultConfidence returns a copy of r with Confidence set to 1.0 if it
// was left at its zero value.
func (r Relation) WithDefaultConfidence() Relation {
	if r.Confidence == 0 {
		r.Confidence = 1.0
	}
	return r
}
