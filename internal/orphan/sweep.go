// Package orphan implements the orphan-relation cleanup pass (C10): after an
// indexing run, any relation whose endpoints no longer resolve to a known
// entity (and aren't an allowed external file reference) is deleted.
package orphan

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// DefaultCooldown is how long Sweeper waits between sweeps of the same
// collection, so that every processor run doesn't pay for a full scroll.
const DefaultCooldown = 5 * time.Minute

// Scroller is the capability a store must expose for Sweep to run — a
// bounded, offset-tracking page reader and a batch point deleter.
type Scroller interface {
	Scroll(ctx context.Context, collection string, filter *store.Filter, pageSize int, offset string) (*store.ScrollPage, error)
	DeletePoints(ctx context.Context, collection string, ids []uint64) error
}

// Result reports what a sweep found and removed.
type Result struct {
	EntityCount        int
	RelationCount      int
	OrphansRemoved     int
	Skipped            bool // cooldown not yet elapsed
}

// Sweeper runs orphan cleanup with a per-collection cooldown.
type Sweeper struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastRun  map[string]time.Time
	now      func() time.Time
}

// New creates a Sweeper with the given cooldown (DefaultCooldown if zero).
func New(cooldown time.Duration) *Sweeper {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Sweeper{
		cooldown: cooldown,
		lastRun:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Due reports whether collection's cooldown has elapsed.
func (s *Sweeper) Due(collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[collection]
	if !ok {
		return true
	}
	return s.now().Sub(last) >= s.cooldown
}

// Sweep performs a single atomic scroll pass over collection: it collects
// every known entity name (from non-relation points) and every relation
// point, then deletes relation points whose endpoints don't resolve to a
// known entity and aren't an allowed external file reference. It always
// records the sweep time, even if nothing was deleted, once it actually ran.
func (s *Sweeper) Sweep(ctx context.Context, scroller Scroller, collection string) (*Result, error) {
	if !s.Due(collection) {
		return &Result{Skipped: true}, nil
	}

	entityNames := make(map[string]struct{})
	var relations []store.PointRecord

	const pageSize = 500
	offset := ""
	for {
		page, err := scroller.Scroll(ctx, collection, nil, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			if p.Payload.ChunkType == string(model.ChunkTypeRelation) {
				relations = append(relations, p)
			} else if p.Payload.EntityName != "" {
				entityNames[p.Payload.EntityName] = struct{}{}
			}
		}
		if page.NextOffset == "" || len(page.Points) == 0 {
			break
		}
		offset = page.NextOffset
	}

	var orphanIDs []uint64
	for _, rp := range relations {
		from := rp.Payload.EntityName
		to := rp.Payload.RelationTarget
		if !resolves(from, entityNames) {
			orphanIDs = append(orphanIDs, rp.ID)
			continue
		}
		if !resolves(to, entityNames) && !model.IsExternalFileReference(to) {
			orphanIDs = append(orphanIDs, rp.ID)
		}
	}

	if len(orphanIDs) > 0 {
		if err := scroller.DeletePoints(ctx, collection, orphanIDs); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.lastRun[collection] = s.now()
	s.mu.Unlock()

	return &Result{
		EntityCount:    len(entityNames),
		RelationCount:  len(relations),
		OrphansRemoved: len(orphanIDs),
	}, nil
}

func resolves(name string, knownNames map[string]struct{}) bool {
	if _, ok := knownNames[name]; ok {
		return true
	}
	return model.ResolveModuleName(name, knownNames)
}
