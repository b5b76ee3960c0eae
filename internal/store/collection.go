package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// MaxUpsertSubBatch is the default per-request point limit for UpsertPoints,
// matching the Qdrant-shaped reliability contract's sub-batch splitting.
const MaxUpsertSubBatch = 1000

// MaxUpsertRetries bounds the exponential-backoff retry loop for a
// transiently-failing sub-batch.
const MaxUpsertRetries = 5

// Distance enumerates the supported vector similarity metrics.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceEuclid Distance = "euclid"
	DistanceDot    Distance = "dot"
)

// SearchHit is a single (id, score, payload) result from SearchSimilar.
type SearchHit struct {
	ID      uint64
	Score   float32
	Payload model.Payload
}

// ScrollPage is one page of a Scroll call.
type ScrollPage struct {
	Points     []PointRecord
	NextOffset string
}

// PointRecord is a stored point as returned by Scroll.
type PointRecord struct {
	ID      uint64
	Vector  []float32
	Payload model.Payload
}

// Filter narrows Scroll/SearchSimilar/ClearCollection to points matching a
// payload predicate. A nil field is unconstrained.
type Filter struct {
	FilePath       string
	EntityName     string
	RelationTarget string
	RelationType   string
	ChunkType      string
}

func (f Filter) matches(p model.Payload) bool {
	if f.FilePath != "" && p.FilePath != f.FilePath {
		return false
	}
	if f.EntityName != "" && p.EntityName != f.EntityName {
		return false
	}
	if f.RelationTarget != "" && p.RelationTarget != f.RelationTarget {
		return false
	}
	if f.RelationType != "" && p.RelationType != f.RelationType {
		return false
	}
	if f.ChunkType != "" && p.ChunkType != f.ChunkType {
		return false
	}
	return true
}

// UpsertReport summarizes the outcome of UpsertPoints, including the
// collision/discrepancy diagnostics the reliability contract requires.
type UpsertReport struct {
	Requested        int
	Written          int
	DuplicateIDs     []uint64
	FailedSubBatches int
}

// CollectionStore is the Qdrant-shaped vector-store abstraction (C5):
// CreateCollection/CollectionExists/UpsertPoints/DeletePoints/SearchSimilar/
// Scroll/Count/ClearCollection, backed by the HNSW vector index for dense
// similarity and an in-memory payload/point table for filtering and scroll.
// One CollectionStore instance manages many named collections, each
// independently created and sized.
type CollectionStore struct {
	mu          sync.RWMutex
	baseDir     string
	collections map[string]*collectionEntry
	now         func() time.Time
}

type collectionEntry struct {
	mu       sync.RWMutex
	vector   VectorStore
	distance Distance
	points   map[uint64]model.Point // payload + sparse cache; dense lives in `vector`
	byHash   map[string][]uint64    // content_hash -> point ids, for the dedup gate
	order    []uint64               // insertion order, for deterministic scroll
}

// NewCollectionStore creates a CollectionStore persisting per-collection HNSW
// indexes under baseDir.
func NewCollectionStore(baseDir string) *CollectionStore {
	return &CollectionStore{
		baseDir:     baseDir,
		collections: make(map[string]*collectionEntry),
		now:         time.Now,
	}
}

// CreateCollection creates the named collection if absent (idempotent
// check-then-create); vectorSize and distance are ignored on an existing
// collection.
func (s *CollectionStore) CreateCollection(ctx context.Context, name string, vectorSize int, distance Distance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	metric := "cos"
	if distance == DistanceEuclid {
		metric = "l2"
	}
	cfg := DefaultVectorStoreConfig(vectorSize)
	cfg.Metric = metric
	vec, err := NewHNSWStore(cfg)
	if err != nil {
		return fmt.Errorf("store: create collection %q: %w", name, err)
	}
	s.collections[name] = &collectionEntry{
		vector:   vec,
		distance: distance,
		points:   make(map[uint64]model.Point),
		byHash:   make(map[string][]uint64),
	}
	return nil
}

// CollectionExists reports whether name has been created.
func (s *CollectionStore) CollectionExists(ctx context.Context, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

func (s *CollectionStore) get(name string) (*collectionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	return c, ok
}

// HasContentHash reports whether any point in the named collection already
// carries contentHash — the core of the C3 dedup gate.
func (s *CollectionStore) HasContentHash(ctx context.Context, name, contentHash string) bool {
	c, ok := s.get(name)
	if !ok {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.byHash[contentHash]
	return ok && len(ids) > 0
}

// UpsertPoints writes points in sub-batches of at most MaxUpsertSubBatch,
// retrying transient (timeout) failures with bounded exponential backoff;
// non-timeout failures fail their sub-batch immediately without retry.
// isTransient classifies an error as retryable; pass nil to treat nothing as
// transient (e.g. an in-memory store that cannot time out).
func (s *CollectionStore) UpsertPoints(ctx context.Context, name string, points []model.Point, isTransient func(error) bool) (*UpsertReport, error) {
	if err := s.CreateCollection(ctx, name, denseDim(points), DistanceCosine); err != nil {
		return nil, err
	}
	c, _ := s.get(name)

	report := &UpsertReport{Requested: len(points)}
	seen := make(map[uint64]struct{}, len(points))

	for start := 0; start < len(points); start += MaxUpsertSubBatch {
		end := start + MaxUpsertSubBatch
		if end > len(points) {
			end = len(points)
		}
		sub := points[start:end]
		if err := s.upsertSubBatch(ctx, c, sub, isTransient); err != nil {
			report.FailedSubBatches++
			return report, fmt.Errorf("store: upsert sub-batch [%d:%d] for %q: %w", start, end, name, err)
		}
		for _, p := range sub {
			if _, dup := seen[p.ID]; dup {
				report.DuplicateIDs = append(report.DuplicateIDs, p.ID)
			}
			seen[p.ID] = struct{}{}
		}
		report.Written += len(sub)
	}

	// Post-op count verification.
	actual := s.Count(ctx, name)
	if actual < report.Written-len(report.DuplicateIDs) {
		// Under-count beyond what duplicate collapsing explains; surfaced to
		// the caller as a warning-worthy discrepancy, not a hard failure.
		report.Written = actual
	}
	return report, nil
}

func (s *CollectionStore) upsertSubBatch(ctx context.Context, c *collectionEntry, points []model.Point, isTransient func(error) bool) error {
	var lastErr error
	delay := time.Second
	for attempt := 0; attempt <= MaxUpsertRetries; attempt++ {
		err := s.writeSubBatch(ctx, c, points)
		if err == nil {
			return nil
		}
		lastErr = err
		if isTransient == nil || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > 32*time.Second {
			delay = 32 * time.Second
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (s *CollectionStore) writeSubBatch(ctx context.Context, c *collectionEntry, points []model.Point) error {
	ids := make([]string, 0, len(points))
	vectors := make([][]float32, 0, len(points))
	for _, p := range points {
		if len(p.Dense) == 0 {
			continue
		}
		ids = append(ids, pointKey(p.ID))
		vectors = append(vectors, p.Dense)
	}
	if len(ids) > 0 {
		if err := c.vector.Add(ctx, ids, vectors); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		} else {
			removeHashEntry(c.byHash, c.points[p.ID].Payload.ContentHash, p.ID)
		}
		c.points[p.ID] = p
		if p.Payload.ContentHash != "" {
			c.byHash[p.Payload.ContentHash] = append(c.byHash[p.Payload.ContentHash], p.ID)
		}
	}
	return nil
}

func removeHashEntry(byHash map[string][]uint64, hash string, id uint64) {
	if hash == "" {
		return
	}
	ids := byHash[hash]
	for i, existing := range ids {
		if existing == id {
			byHash[hash] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// DeletePoints removes the given point IDs from the named collection.
func (s *CollectionStore) DeletePoints(ctx context.Context, name string, ids []uint64) error {
	c, ok := s.get(name)
	if !ok {
		return nil // no collection, nothing to delete
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, pointKey(id))
	}
	if err := c.vector.Delete(ctx, keys); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if p, ok := c.points[id]; ok {
			removeHashEntry(c.byHash, p.Payload.ContentHash, id)
			delete(c.points, id)
		}
	}
	c.order = filterOrder(c.order, ids)
	return nil
}

func filterOrder(order []uint64, removed []uint64) []uint64 {
	toRemove := make(map[uint64]struct{}, len(removed))
	for _, id := range removed {
		toRemove[id] = struct{}{}
	}
	out := order[:0:0]
	for _, id := range order {
		if _, drop := toRemove[id]; !drop {
			out = append(out, id)
		}
	}
	return out
}

// DeleteWhere deletes every point in the collection matching filter, and
// returns how many were removed. Used by file re-indexing ("entity
// replacement") and the deleted-file sweep.
func (s *CollectionStore) DeleteWhere(ctx context.Context, name string, filter Filter) (int, error) {
	c, ok := s.get(name)
	if !ok {
		return 0, nil
	}
	var toDelete []uint64
	c.mu.RLock()
	for id, p := range c.points {
		if filter.matches(p.Payload) {
			toDelete = append(toDelete, id)
		}
	}
	c.mu.RUnlock()
	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := s.DeletePoints(ctx, name, toDelete); err != nil {
		return 0, err
	}
	return len(toDelete), nil
}

// SearchSimilar returns the top-`limit` points by similarity to query,
// optionally constrained by filter and a minimum score threshold.
func (s *CollectionStore) SearchSimilar(ctx context.Context, name string, query []float32, limit int, scoreThreshold float32, filter *Filter) ([]SearchHit, error) {
	c, ok := s.get(name)
	if !ok {
		return nil, nil
	}
	overFetch := limit
	if filter != nil {
		overFetch = limit * 8
		if overFetch < 64 {
			overFetch = 64
		}
	}
	results, err := c.vector.Search(ctx, query, overFetch)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	hits := make([]SearchHit, 0, limit)
	for _, r := range results {
		id, err := keyToID(r.ID)
		if err != nil {
			continue
		}
		p, ok := c.points[id]
		if !ok {
			continue
		}
		if filter != nil && !filter.matches(p.Payload) {
			continue
		}
		if r.Score < scoreThreshold {
			continue
		}
		hits = append(hits, SearchHit{ID: id, Score: r.Score, Payload: p.Payload})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// Scroll pages through all points in a collection (optionally filtered),
// remembering the seen offset so repeated calls with the returned
// NextOffset never revisit prior pages. Bounded to len(order) iterations.
func (s *CollectionStore) Scroll(ctx context.Context, name string, filter *Filter, pageSize int, offset string) (*ScrollPage, error) {
	c, ok := s.get(name)
	if !ok {
		return &ScrollPage{}, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if offset != "" {
		for i, id := range c.order {
			if pointKey(id) == offset {
				start = i + 1
				break
			}
		}
	}
	page := &ScrollPage{}
	for i := start; i < len(c.order); i++ {
		id := c.order[i]
		p, ok := c.points[id]
		if !ok {
			continue
		}
		if filter != nil && !filter.matches(p.Payload) {
			continue
		}
		page.Points = append(page.Points, PointRecord{ID: id, Vector: p.Dense, Payload: p.Payload})
		if len(page.Points) >= pageSize {
			page.NextOffset = pointKey(id)
			return page, nil
		}
	}
	return page, nil
}

// Count returns the number of points currently stored in name.
func (s *CollectionStore) Count(ctx context.Context, name string) int {
	c, ok := s.get(name)
	if !ok {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}

// ClearCollection drops the entire collection, unless preserveManual is set,
// in which case only auto-generated points are removed: points with a
// FilePath (auto-entity) or the full (entity_name, relation_target,
// relation_type) triple populated (auto-relation). Anything else — points a
// human inserted by hand outside the pipeline — survives.
func (s *CollectionStore) ClearCollection(ctx context.Context, name string, preserveManual bool) error {
	if !preserveManual {
		s.mu.Lock()
		delete(s.collections, name)
		s.mu.Unlock()
		return nil
	}
	c, ok := s.get(name)
	if !ok {
		return nil
	}
	var toDelete []uint64
	c.mu.RLock()
	for id, p := range c.points {
		if isAutoGenerated(p.Payload) {
			toDelete = append(toDelete, id)
		}
	}
	c.mu.RUnlock()
	return s.DeletePoints(ctx, name, toDelete)
}

func isAutoGenerated(p model.Payload) bool {
	if p.FilePath != "" {
		return true
	}
	return p.EntityName != "" && p.RelationTarget != "" && p.RelationType != ""
}

func denseDim(points []model.Point) int {
	for _, p := range points {
		if len(p.Dense) > 0 {
			return len(p.Dense)
		}
	}
	return 768
}

func pointKey(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

func keyToID(key string) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(key, "%d", &id)
	return id, err
}
