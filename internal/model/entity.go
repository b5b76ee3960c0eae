// Package model defines the entity/relation/chunk data model shared by the
// parser registry, content processor, and vector store. Types here are flat
// value records — no cyclic pointers, no persistent in-memory graph. The
// vector store is the graph; this package only shapes what goes into it.
package model

// EntityType enumerates the kinds of entities the indexer can produce.
type EntityType string

const (
	EntityTypeFile          EntityType = "file"
	EntityTypeFunction      EntityType = "function"
	EntityTypeClass         EntityType = "class"
	EntityTypeVariable      EntityType = "variable"
	EntityTypeImport        EntityType = "import"
	EntityTypeDocumentation EntityType = "documentation"
	EntityTypeTextChunk     EntityType = "text_chunk"
)

// Entity is a named, typed unit discovered during parsing. Identity is the
// triple (FilePath, Name, Type); two entities with the same triple refer to
// the same logical thing even if observed across separate parser runs.
type Entity struct {
	FilePath        string
	Name            string
	Type            EntityType
	Observations    []string
	LineNumber      int // optional, 0 if not applicable
	EndLineNumber   int // optional, 0 if not applicable
	Docstring       string
	Signature       string
	Metadata        map[string]any
}

// Key returns the identity triple used for entity equality/lookup.
func (e Entity) Key() EntityKey {
	return EntityKey{FilePath: e.FilePath, Name: e.Name, Type: e.Type}
}

// EntityKey is the (file_path, name, entity_type) identity of an Entity.
type EntityKey struct {
	FilePath string
	Name     string
	Type     EntityType
}

// IsFile reports whether this entity represents a file itself.
func (e Entity) IsFile() bool {
	return e.Type == EntityTypeFile
}
