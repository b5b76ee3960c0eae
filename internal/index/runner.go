// Package index provides the indexing pipeline: the unified content
// processor (entity/relation/implementation embedding) and the run
// orchestrator (discovery, diffing, per-file processing, state persistence)
// that together turn parsed source into vector-store writes.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/chunk"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/dedup"
	amanerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/orphan"
	"github.com/Aman-CERP/amanmcp/internal/scanner"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/ui"

	"log/slog"
)

// RunnerDependencies are the collaborators a Runner needs. Dense and Sparse
// are the two halves of the embedding stack (neural + BM25-style); Store is
// the sole destination for every point the pipeline writes.
type RunnerDependencies struct {
	Renderer ui.Renderer
	Config   *config.Config
	Store    *store.CollectionStore
	Registry *chunk.Registry
	Dense    DenseEmbedder
	Sparse   *store.SparseEmbedder
	Scanner  *scanner.Scanner
}

// DenseEmbedder produces dense vectors for a batch of texts, preserving
// input order; partial per-item failures are reported in-band rather than
// failing the whole batch, so one bad chunk never drops its siblings.
type DenseEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]EmbeddingResult, error)
	Dimensions() int
	ModelName() string
}

// EmbeddingResult mirrors the per-text embedding contract: vector, token
// count, cost estimate, and an optional per-item error.
type EmbeddingResult struct {
	Vector       []float32
	TokenCount   int
	CostEstimate float64
	Err          error
}

// RunnerConfig configures a single collection's indexing run.
type RunnerConfig struct {
	RootDir         string
	DataDir         string // state directory, defaults to "<RootDir>/.claude-indexer"
	Collection      string
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64 // bytes, default 1 MiB
	InterBatchDelay time.Duration
}

// RunnerResult aggregates the outcome of one Run call.
type RunnerResult struct {
	Mode                  string // "full" or "incremental"
	Files                 int
	FilesDeleted          int
	FilesFailed           []string
	EntityChunksWritten   int
	RelationChunksWritten int
	ImplChunksWritten     int
	PointsWritten         int
	TokensUsed            int
	EmbeddingCost         float64
	OrphansRemoved        int
	Duration              time.Duration
	Errors                []string
}

// Runner drives a single collection's indexing pipeline: discovery and
// diffing against persisted state, per-file parse + embed + store, deleted
// file cleanup, and the orphan-relation sweep.
type Runner struct {
	deps    RunnerDependencies
	gate    *dedup.Gate
	sweeper *orphan.Sweeper
}

// NewRunner validates deps and builds a Runner. The dedup gate and orphan
// sweeper are internal collaborators built from Store, not supplied by the
// caller — every spec pipeline shares the same dedup/sweep policy.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Store == nil {
		return nil, amanerrors.New(amanerrors.ErrCodeCollectionMissing, "runner: Store is required", nil)
	}
	if deps.Registry == nil {
		deps.Registry = chunk.NewRegistry()
	}
	if deps.Dense == nil {
		return nil, amanerrors.New(amanerrors.ErrCodeInternal, "runner: Dense embedder is required", nil)
	}
	if deps.Renderer == nil {
		return nil, amanerrors.New(amanerrors.ErrCodeInternal, "runner: Renderer is required", nil)
	}
	return &Runner{
		deps:    deps,
		gate:    dedup.New(deps.Store),
		sweeper: orphan.New(orphan.DefaultCooldown),
	}, nil
}

// Run performs one indexing pass over cfg.RootDir: full if no state file
// exists yet for cfg.Collection, incremental otherwise. It discovers files
// via the gitignore-aware scanner, diffs against the last run's captured
// file state, processes every modified/added file through the embedding
// pipeline, removes points for deleted files, and atomically persists the
// new state.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	cfg = applyRunnerDefaults(cfg)

	if err := r.deps.Renderer.Start(ctx); err != nil {
		return nil, fmt.Errorf("runner: start renderer: %w", err)
	}
	defer r.deps.Renderer.Stop()

	statePath := StatePath(cfg.DataDir, cfg.Collection)
	incremental := Exists(statePath)
	prevState, err := LoadState(statePath)
	if err != nil {
		return nil, amanerrors.Wrap(amanerrors.ErrCodeStateFileRead, err)
	}

	mode := "full"
	if incremental {
		mode = "incremental"
	}
	result := &RunnerResult{Mode: mode}

	r.deps.Renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "discovering files"})
	discovered, err := r.discover(ctx, cfg)
	if err != nil {
		return result, fmt.Errorf("runner: discover: %w", err)
	}
	slog.Info("index_scan_complete", slog.Int("files", len(discovered)), slog.String("mode", mode))

	snapshot := make(map[string]FileState, len(discovered))
	for _, rel := range discovered {
		fs, err := captureFileState(filepath.Join(cfg.RootDir, rel))
		if err != nil {
			continue // vanished between discovery and snapshot; deferred to next run
		}
		snapshot[rel] = fs
	}

	modified, deleted, added := diffFileStates(prevState.Files, snapshot)
	toProcess := append(append([]string{}, modified...), added...)

	knownNames := r.loadKnownNames(ctx, cfg.Collection)

	r.deps.Renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: len(toProcess)})
	for i, rel := range toProcess {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r.deps.Renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: i + 1, Total: len(toProcess), CurrentFile: rel})

		fr, err := r.IndexFile(ctx, cfg.Collection, cfg.RootDir, rel, knownNames)
		if err != nil {
			result.FilesFailed = append(result.FilesFailed, rel)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			r.deps.Renderer.AddError(ui.ErrorEvent{File: rel, Err: err})
			continue
		}
		accumulate(result, fr)
		prevState.Files[rel] = snapshot[rel]
		result.Files++
	}

	for _, rel := range deleted {
		if err := r.RemoveFile(ctx, cfg.Collection, rel); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", rel, err))
			continue
		}
		delete(prevState.Files, rel)
		result.FilesDeleted++
	}

	prevState.GitignoreHash, err = ComputeGitignoreHash(cfg.RootDir)
	if err != nil {
		slog.Warn("failed to compute gitignore hash", slog.String("error", err.Error()))
	}
	if err := prevState.Save(statePath); err != nil {
		return result, amanerrors.Wrap(amanerrors.ErrCodeStateFileWrite, err)
	}

	result.Duration = time.Since(start)
	r.deps.Renderer.Complete(ui.CompletionStats{
		Files:    result.Files,
		Chunks:   result.PointsWritten,
		Duration: result.Duration,
		Errors:   len(result.Errors),
		Embedder: ui.EmbedderInfo{Model: r.deps.Dense.ModelName(), Dimensions: r.deps.Dense.Dimensions()},
	})

	slog.Info("index_complete",
		slog.String("mode", mode),
		slog.Int("files", result.Files),
		slog.Int("deleted", result.FilesDeleted),
		slog.Int("points", result.PointsWritten),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))

	return result, nil
}

func applyRunnerDefaults(cfg RunnerConfig) RunnerConfig {
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.RootDir, ".claude-indexer")
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if cfg.Collection == "" {
		cfg.Collection = filepath.Base(cfg.RootDir)
	}
	return cfg
}

func (r *Runner) discover(ctx context.Context, cfg RunnerConfig) ([]string, error) {
	results, err := r.deps.Scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          cfg.RootDir,
		IncludePatterns:  cfg.IncludePatterns,
		ExcludePatterns:  cfg.ExcludePatterns,
		RespectGitignore: true,
		MaxFileSize:      cfg.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for res := range results {
		if res.Error != nil {
			continue
		}
		if r.deps.Registry.ParserFor(res.File.Path) == nil {
			continue
		}
		out = append(out, filepath.ToSlash(res.File.Path))
	}
	return out, nil
}

func captureFileState(absPath string) (FileState, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return FileState{}, err
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return FileState{}, err
	}
	return FileState{
		Hash:  model.ContentHash(string(content)),
		Size:  info.Size(),
		MTime: info.ModTime(),
	}, nil
}

func accumulate(result *RunnerResult, fr *fileResult) {
	result.EntityChunksWritten += fr.EntityChunksWritten
	result.RelationChunksWritten += fr.RelationChunksWritten
	result.ImplChunksWritten += fr.ImplChunksWritten
	result.PointsWritten += fr.PointsWritten
	result.TokensUsed += fr.TokensUsed
	result.EmbeddingCost += fr.EmbeddingCost
	result.OrphansRemoved += fr.OrphansRemoved
}

// fileResult is what a single IndexFile call produced, aggregated by Run
// into the overall RunnerResult.
type fileResult struct {
	EntityChunksWritten   int
	RelationChunksWritten int
	ImplChunksWritten     int
	PointsWritten         int
	TokensUsed            int
	EmbeddingCost         float64
	OrphansRemoved        int
	Errors                []string
}

// IndexFile parses, embeds, and stores a single file's entities, relations,
// and implementation chunks. It is exported so the watcher-driven
// coordinator can reuse it directly instead of re-implementing the
// embedding pipeline for the event-driven path.
func (r *Runner) IndexFile(ctx context.Context, collection, rootDir, relPath string, knownNames map[string]struct{}) (*fileResult, error) {
	content, err := os.ReadFile(filepath.Join(rootDir, relPath))
	if err != nil {
		return nil, amanerrors.Wrap(amanerrors.ErrCodeFileNotFound, err)
	}
	file := &chunk.FileInput{Path: relPath, Content: content}

	// Entity replacement: drop this file's existing points before
	// re-processing it, so stale entities from a shrunk file don't linger.
	if _, err := r.deps.Store.DeleteWhere(ctx, collection, store.Filter{FilePath: relPath}); err != nil {
		return nil, amanerrors.Wrap(amanerrors.ErrCodeStorageFailed, err)
	}

	parsed, err := r.deps.Registry.Parse(ctx, file, knownNames)
	if err != nil {
		return nil, amanerrors.Wrap(amanerrors.ErrCodeParseFailed, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, amanerrors.New(amanerrors.ErrCodeParseFailed, strings.Join(parsed.Errors, "; "), nil)
	}

	return r.processAllContent(ctx, collection, parsed.Entities, parsed.Relations, parsed.ImplChunks)
}

// RemoveFile deletes every point (entity and relation) associated with
// relPath from collection.
func (r *Runner) RemoveFile(ctx context.Context, collection, relPath string) error {
	if _, err := r.deps.Store.DeleteWhere(ctx, collection, store.Filter{FilePath: relPath}); err != nil {
		return amanerrors.Wrap(amanerrors.ErrCodeStorageFailed, err)
	}
	_, err := r.deps.Store.DeleteWhere(ctx, collection, store.Filter{EntityName: relPath})
	if err != nil {
		return amanerrors.Wrap(amanerrors.ErrCodeStorageFailed, err)
	}
	return nil
}

// processAllContent runs the three embedding phases (entity metadata,
// relation, implementation), batch-stores every resulting point, and runs
// the orphan sweep when its cooldown has elapsed.
func (r *Runner) processAllContent(
	ctx context.Context,
	collection string,
	entities []model.Entity,
	relations []model.Relation,
	implChunks []model.EntityChunk,
) (*fileResult, error) {
	result := &fileResult{}
	changedEntityIDs := make(map[string]struct{})

	implByEntity := make(map[string]struct{}, len(implChunks))
	for _, c := range implChunks {
		implByEntity[c.EntityName] = struct{}{}
	}

	entityPoints, err := r.entityMetadataPhase(ctx, collection, entities, implByEntity, changedEntityIDs, result)
	if err != nil {
		return result, fmt.Errorf("entity metadata phase: %w", err)
	}

	relationPoints, err := r.relationPhase(ctx, collection, relations, changedEntityIDs, result)
	if err != nil {
		return result, fmt.Errorf("relation phase: %w", err)
	}

	implPoints, err := r.implementationPhase(ctx, collection, implChunks, result)
	if err != nil {
		return result, fmt.Errorf("implementation phase: %w", err)
	}

	all := make([]model.Point, 0, len(entityPoints)+len(relationPoints)+len(implPoints))
	all = append(all, entityPoints...)
	all = append(all, relationPoints...)
	all = append(all, implPoints...)

	if len(all) > 0 {
		report, err := r.deps.Store.UpsertPoints(ctx, collection, all, isTimeoutError)
		if err != nil {
			return result, amanerrors.Wrap(amanerrors.ErrCodeStorageFailed, err)
		}
		result.PointsWritten = report.Written
	}

	if r.sweeper.Due(collection) {
		sweep, err := r.sweeper.Sweep(ctx, r.deps.Store, collection)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("orphan sweep: %v", err))
		} else if sweep != nil {
			result.OrphansRemoved = sweep.OrphansRemoved
		}
	}

	return result, nil
}

func (r *Runner) entityMetadataPhase(
	ctx context.Context,
	collection string,
	entities []model.Entity,
	implByEntity map[string]struct{},
	changedEntityIDs map[string]struct{},
	result *fileResult,
) ([]model.Point, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	chunks := make([]model.EntityChunk, 0, len(entities))
	for _, e := range entities {
		_, hasImpl := implByEntity[e.Name]
		chunks = append(chunks, model.EntityChunk{
			FilePath:          e.FilePath,
			EntityName:        e.Name,
			EntityType:        e.Type,
			ChunkType:         model.ChunkTypeMetadata,
			Content:           metadataContent(e),
			HasImplementation: hasImpl,
			Metadata:          e.Metadata,
		})
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	toEmbed, hashes := r.gate.Filter(ctx, collection, contents)
	if len(toEmbed) == 0 {
		return nil, nil
	}

	texts := make([]string, len(toEmbed))
	for i, idx := range toEmbed {
		texts[i] = contents[idx]
	}

	denseResults, err := r.deps.Dense.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	var sparseVecs []map[uint32]float32
	if r.deps.Sparse != nil {
		sparseVecs, _ = r.deps.Sparse.EmbedBatch(texts)
	}

	points := make([]model.Point, 0, len(toEmbed))
	for i, idx := range toEmbed {
		dr := denseResults[i]
		if dr.Err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embed entity %q: %v", chunks[idx].EntityName, dr.Err))
			continue
		}
		c := chunks[idx]
		_, pointID := c.ID()
		payload := model.EntityChunkPayload(collection, c, hashes[idx])
		pt := model.Point{ID: pointID, Dense: dr.Vector, Payload: payload}
		if sparseVecs != nil {
			pt.Sparse = sparseVecs[i]
		}
		points = append(points, pt)
		changedEntityIDs[c.FilePath+"::"+c.EntityName] = struct{}{}
		result.TokensUsed += dr.TokenCount
		result.EmbeddingCost += dr.CostEstimate
	}
	result.EntityChunksWritten = len(points)
	return points, nil
}

func (r *Runner) relationPhase(
	ctx context.Context,
	collection string,
	relations []model.Relation,
	changedEntityIDs map[string]struct{},
	result *fileResult,
) ([]model.Point, error) {
	if len(relations) == 0 || len(changedEntityIDs) == 0 {
		return nil, nil
	}

	filtered := make([]model.Relation, 0, len(relations))
	for _, rel := range relations {
		if touchesChanged(rel, changedEntityIDs) {
			filtered = append(filtered, rel.WithDefaultConfidence())
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(filtered))
	chunks := make([]model.RelationChunk, 0, len(filtered))
	for _, rel := range filtered {
		c := model.RelationChunk{
			EntityName:     rel.FromEntity,
			RelationTarget: rel.ToEntity,
			RelationType:   rel.RelationType,
			ImportType:     rel.ImportType(),
			Content:        relationContent(rel),
			Metadata:       rel.Metadata,
		}
		id, _ := c.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		chunks = append(chunks, c)
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	toEmbed, hashes := r.gate.Filter(ctx, collection, contents)
	if len(toEmbed) == 0 {
		return nil, nil
	}

	texts := make([]string, len(toEmbed))
	for i, idx := range toEmbed {
		texts[i] = contents[idx]
	}
	denseResults, err := r.deps.Dense.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	points := make([]model.Point, 0, len(toEmbed))
	for i, idx := range toEmbed {
		dr := denseResults[i]
		if dr.Err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embed relation %q: %v", chunks[idx].EntityName, dr.Err))
			continue
		}
		c := chunks[idx]
		_, pointID := c.ID()
		payload := model.RelationChunkPayload(collection, c, hashes[idx], 1.0)
		points = append(points, model.Point{ID: pointID, Dense: dr.Vector, Payload: payload})
		result.TokensUsed += dr.TokenCount
		result.EmbeddingCost += dr.CostEstimate
	}
	result.RelationChunksWritten = len(points)
	return points, nil
}

func (r *Runner) implementationPhase(ctx context.Context, collection string, chunks []model.EntityChunk, result *fileResult) ([]model.Point, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	toEmbed, hashes := r.gate.Filter(ctx, collection, contents)
	if len(toEmbed) == 0 {
		return nil, nil
	}
	texts := make([]string, len(toEmbed))
	for i, idx := range toEmbed {
		texts[i] = contents[idx]
	}
	denseResults, err := r.deps.Dense.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	points := make([]model.Point, 0, len(toEmbed))
	for i, idx := range toEmbed {
		dr := denseResults[i]
		if dr.Err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embed impl chunk %q: %v", chunks[idx].EntityName, dr.Err))
			continue
		}
		c := chunks[idx]
		c.ChunkType = model.ChunkTypeImplementation
		_, pointID := c.ID()
		payload := model.EntityChunkPayload(collection, c, hashes[idx])
		points = append(points, model.Point{ID: pointID, Dense: dr.Vector, Payload: payload})
		result.TokensUsed += dr.TokenCount
		result.EmbeddingCost += dr.CostEstimate
	}
	result.ImplChunksWritten = len(points)
	return points, nil
}

func (r *Runner) loadKnownNames(ctx context.Context, collection string) map[string]struct{} {
	names := make(map[string]struct{})
	offset := ""
	const pageSize = 500
	for {
		page, err := r.deps.Store.Scroll(ctx, collection, nil, pageSize, offset)
		if err != nil || page == nil {
			return names
		}
		for _, pt := range page.Points {
			if pt.Payload.ChunkType != string(model.ChunkTypeRelation) && pt.Payload.EntityName != "" {
				names[pt.Payload.EntityName] = struct{}{}
			}
		}
		if page.NextOffset == "" || len(page.Points) == 0 {
			return names
		}
		offset = page.NextOffset
	}
}

func metadataContent(e model.Entity) string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteByte(' ')
	b.WriteString(e.Name)
	if e.Signature != "" {
		b.WriteString("\n")
		b.WriteString(e.Signature)
	}
	if e.Docstring != "" {
		b.WriteString("\n")
		b.WriteString(e.Docstring)
	}
	for _, o := range e.Observations {
		b.WriteString("\n- ")
		b.WriteString(o)
	}
	return b.String()
}

func relationContent(rel model.Relation) string {
	s := fmt.Sprintf("%s %s %s", rel.FromEntity, rel.RelationType, rel.ToEntity)
	if rel.Context != "" {
		s += "\n" + rel.Context
	}
	return s
}

func touchesChanged(rel model.Relation, changed map[string]struct{}) bool {
	for key := range changed {
		if strings.HasSuffix(key, "::"+rel.FromEntity) || strings.HasSuffix(key, "::"+rel.ToEntity) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
