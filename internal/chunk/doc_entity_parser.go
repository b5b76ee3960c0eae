package chunk

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// DocumentationEntityParser adapts MarkdownChunker into the Entity model:
// a File entity (content_type=documentation) plus one entity per level-1/2
// header. Deeper headers produce no entity and no implementation chunk, and
// their text is not added to the enclosing level-1/2 section's chunk, which
// ends at the next header of any level. MarkdownChunker itself tracks the
// full h1-h6 hierarchy for header_path breadcrumbs.
type DocumentationEntityParser struct {
	chunker *MarkdownChunker
}

// NewDocumentationEntityParser creates a documentation parser.
func NewDocumentationEntityParser() *DocumentationEntityParser {
	return &DocumentationEntityParser{chunker: NewMarkdownChunker()}
}

func (p *DocumentationEntityParser) SupportedExtensions() []string {
	return p.chunker.SupportedExtensions()
}

func (p *DocumentationEntityParser) CanParse(path string) bool {
	for _, ext := range p.SupportedExtensions() {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (p *DocumentationEntityParser) Parse(ctx context.Context, file *FileInput, knownNames map[string]struct{}) (*EntityParserResult, error) {
	start := time.Now()
	result := &EntityParserResult{FilePath: file.Path, ContentHash: model.ContentHash(string(file.Content))}

	chunks, err := p.chunker.Chunk(ctx, file)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result, nil
	}

	fileEntity := model.Entity{
		FilePath: file.Path,
		Name:     file.Path,
		Type:     model.EntityTypeFile,
		Metadata: map[string]any{"content_type": "documentation"},
	}
	result.Entities = append(result.Entities, fileEntity)

	seen := make(map[string]struct{})
	for _, c := range chunks {
		levelStr := c.Metadata["header_level"]
		title := c.Metadata["section_title"]
		if levelStr == "" || title == "" {
			continue // frontmatter or headerless preamble — not an entity
		}
		level, _ := strconv.Atoi(levelStr)
		if level > 2 {
			continue // deeper headers dropped per spec
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}

		result.Entities = append(result.Entities, model.Entity{
			FilePath:      file.Path,
			Name:          title,
			Type:          model.EntityTypeDocumentation,
			LineNumber:    c.StartLine,
			EndLineNumber: c.EndLine,
		})
		result.Relations = append(result.Relations, model.Relation{
			FromEntity:   file.Path,
			ToEntity:     title,
			RelationType: model.RelationContains,
			Confidence:   1.0,
		})

		wordCount := len(strings.Fields(c.Content))
		lineCount := c.EndLine - c.StartLine + 1
		result.ImplChunks = append(result.ImplChunks, model.EntityChunk{
			FilePath:   file.Path,
			EntityName: title,
			EntityType: model.EntityTypeDocumentation,
			ChunkType:  model.ChunkTypeImplementation,
			Content:    c.Content,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Metadata: map[string]any{
				"word_count": wordCount,
				"line_count": lineCount,
			},
		})
	}

	result.Duration = time.Since(start)
	return result, nil
}
