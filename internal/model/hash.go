package model

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ContentHash returns the SHA-256 hex digest of canonical chunk content.
// Stored verbatim as a chunk's content_hash and used by the dedup gate.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EntityChunkID builds the canonical ID string for an entity chunk.
//
// Base form: "{file_path}::{entity_type}::{entity_name}::{chunk_type}".
// Implementation chunks derived from a code range additionally carry an
// 8-hex-char MD5 suffix over "file_path::entity_name::entity_type::start_line::end_line"
// to disambiguate chunks that would otherwise collide (e.g. a split symbol
// re-chunked across runs).
func EntityChunkID(filePath, entityName string, entityType EntityType, chunkType ChunkType, startLine, endLine int) string {
	base := fmt.Sprintf("%s::%s::%s::%s", filePath, entityType, entityName, chunkType)
	if chunkType == ChunkTypeImplementation && (startLine != 0 || endLine != 0) {
		suffix := fmt.Sprintf("%s::%s::%s::%d::%d", filePath, entityName, entityType, startLine, endLine)
		sum := md5.Sum([]byte(suffix))
		return base + "::" + hex.EncodeToString(sum[:])[:8]
	}
	return base
}

// RelationChunkID builds the canonical ID string for a relation chunk.
//
// Base form: "{from_entity}::{relation_type}::{to_entity}", with an
// "::{import_type}" suffix when importType is non-empty — this is what lets
// two imports relations differing only by import_type coexist as distinct
// points (§8 boundary behavior).
func RelationChunkID(fromEntity string, relationType RelationType, toEntity, importType string) string {
	id := fmt.Sprintf("%s::%s::%s", fromEntity, relationType, toEntity)
	if importType != "" {
		id += "::" + importType
	}
	return id
}

// PointID derives the 64-bit vector-store point identifier from a canonical
// chunk ID: the first 16 hex characters of SHA-256(id), parsed as a hex
// integer. Deterministic — the same logical chunk always maps to the same
// point, which is what makes upserts idempotent.
func PointID(id string) (uint64, error) {
	sum := sha256.Sum256([]byte(id))
	hexStr := hex.EncodeToString(sum[:])[:16]
	return strconv.ParseUint(hexStr, 16, 64)
}

// MustPointID panics if id cannot be converted; used only where the input is
// a freshly-hashed string and failure would indicate a hashing bug.
func MustPointID(id string) uint64 {
	pid, err := PointID(id)
	if err != nil {
		panic(fmt.Sprintf("model: point id derivation failed for %q: %v", id, err))
	}
	return pid
}

// ID returns the canonical ID string and point ID for an EntityChunk.
func (c EntityChunk) ID() (string, uint64) {
	id := EntityChunkID(c.FilePath, c.EntityName, c.EntityType, c.ChunkType, c.StartLine, c.EndLine)
	return id, MustPointID(id)
}

// ID returns the canonical ID string and point ID for a RelationChunk.
func (c RelationChunk) ID() (string, uint64) {
	id := RelationChunkID(c.EntityName, c.RelationType, c.RelationTarget, c.ImportType)
	return id, MustPointID(id)
}
