package model

// Payload is the wire schema attached to every vector-store point, matching
// §6's chunk-shape contract (the spec standardizes on this shape; the
// legacy relation shape is never emitted — see DESIGN.md Open Question 4).
type Payload struct {
	Type       string `json:"type"` // always "chunk"
	ChunkType  string `json:"chunk_type"`
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type"`
	Content    string `json:"content"`
	ContentHash string `json:"content_hash"`
	Collection string `json:"collection"`

	// Code-entity metadata (entity chunks only).
	FilePath          string `json:"file_path,omitempty"`
	LineNumber        int    `json:"line_number,omitempty"`
	HasImplementation *bool  `json:"has_implementation,omitempty"`

	// Relation point fields.
	RelationTarget string  `json:"relation_target,omitempty"`
	RelationType   string  `json:"relation_type,omitempty"`
	ImportType     string  `json:"import_type,omitempty"`
	Context        string  `json:"context,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// Point is a fully-formed vector-store write: identity, dense/sparse
// vectors, and the payload above. Sparse is nil for implementation-only
// points (spec's C4 only fits/embeds sparse vectors during the entity
// metadata discovery phase).
type Point struct {
	ID      uint64
	Dense   []float32
	Sparse  map[uint32]float32
	Payload Payload
}

// IsHybrid reports whether this point carries both a dense and a sparse
// vector (as opposed to dense-only).
func (p Point) IsHybrid() bool {
	return len(p.Dense) > 0 && len(p.Sparse) > 0
}

// EntityChunkPayload builds the wire payload for an EntityChunk.
func EntityChunkPayload(collection string, c EntityChunk, contentHash string) Payload {
	p := Payload{
		Type:        "chunk",
		ChunkType:   string(c.ChunkType),
		EntityName:  c.EntityName,
		EntityType:  string(c.EntityType),
		Content:     c.Content,
		ContentHash: contentHash,
		Collection:  collection,
		FilePath:    c.FilePath,
		LineNumber:  c.StartLine,
	}
	if c.ChunkType == ChunkTypeMetadata {
		has := c.HasImplementation
		p.HasImplementation = &has
	}
	return p
}

// RelationChunkPayload builds the wire payload for a RelationChunk.
func RelationChunkPayload(collection string, c RelationChunk, contentHash string, confidence float64) Payload {
	return Payload{
		Type:           "chunk",
		ChunkType:      string(ChunkTypeRelation),
		EntityName:     c.EntityName,
		Content:        c.Content,
		ContentHash:    contentHash,
		Collection:     collection,
		RelationTarget: c.RelationTarget,
		RelationType:   string(c.RelationType),
		ImportType:     c.ImportType,
		Confidence:     confidence,
	}
}
