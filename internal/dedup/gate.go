// Package dedup implements the content-hash dedup gate (C3): before any
// chunk is embedded and stored, its canonical content hash is checked
// against the collection. If a point with that hash already exists anywhere
// in the collection, the chunk is skipped — embedding and storage are
// expensive, content hashing is not.
package dedup

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// HashChecker is satisfied by any store that can answer "does this
// content_hash already exist in this collection" — the capability trait the
// dedup gate depends on (SupportsContentHashCheck in spec terms), rather
// than reaching into store internals.
type HashChecker interface {
	HasContentHash(ctx context.Context, collection, contentHash string) bool
}

// Gate decides, per chunk, whether embedding+storage can be skipped.
type Gate struct {
	store HashChecker
}

// New creates a dedup Gate backed by store.
func New(store HashChecker) *Gate {
	return &Gate{store: store}
}

// Decision is the gate's verdict for a single piece of content.
type Decision struct {
	ContentHash string
	ToEmbed     bool // false means: already present, skip
}

// Check hashes content and decides whether it needs (re-)embedding.
func (g *Gate) Check(ctx context.Context, collection, content string) Decision {
	hash := model.ContentHash(content)
	if g.store.HasContentHash(ctx, collection, hash) {
		return Decision{ContentHash: hash, ToEmbed: false}
	}
	return Decision{ContentHash: hash, ToEmbed: true}
}

// Filter applies Check to every item in contents (in order) and returns the
// indices that still need embedding, alongside the full set of computed
// hashes (index-aligned with contents) for downstream payload construction.
func (g *Gate) Filter(ctx context.Context, collection string, contents []string) (toEmbed []int, hashes []string) {
	hashes = make([]string, len(contents))
	for i, content := range contents {
		d := g.Check(ctx, collection, content)
		hashes[i] = d.ContentHash
		if d.ToEmbed {
			toEmbed = append(toEmbed, i)
		}
	}
	return toEmbed, hashes
}
