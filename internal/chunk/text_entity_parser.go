package chunk

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// DefaultLineWindow is the default window size for text/log line-oriented
// chunking.
const DefaultLineWindow = 50

// MaxLineWindowChars truncates an over-long line window chunk.
const MaxLineWindowChars = 1000

// TextEntityParser handles the line-oriented and tabular formats (4.1.3):
// plain text/log files (fixed-size line-window chunks), CSV (one entity per
// column header), and INI/CONF/CFG (one entity per section and per key).
// This is new code — the teacher has no equivalent parser — grounded in
// CodeChunker's chunkByLines fallback for the windowing style.
type TextEntityParser struct {
	lineWindow int
}

// NewTextEntityParser creates the catch-all line-oriented/tabular parser.
func NewTextEntityParser() *TextEntityParser {
	return &TextEntityParser{lineWindow: DefaultLineWindow}
}

func (p *TextEntityParser) SupportedExtensions() []string {
	return []string{".txt", ".log", ".csv", ".ini", ".conf", ".cfg"}
}

func (p *TextEntityParser) CanParse(path string) bool {
	return true // catch-all; must be registered last
}

func (p *TextEntityParser) Parse(ctx context.Context, file *FileInput, knownNames map[string]struct{}) (*EntityParserResult, error) {
	start := time.Now()
	result := &EntityParserResult{FilePath: file.Path, ContentHash: model.ContentHash(string(file.Content))}
	result.Entities = append(result.Entities, model.Entity{FilePath: file.Path, Name: file.Path, Type: model.EntityTypeFile})

	ext := strings.ToLower(filepath.Ext(file.Path))
	switch ext {
	case ".csv":
		p.parseCSV(file, result)
	case ".ini", ".conf", ".cfg":
		p.parseINI(file, result)
	default:
		p.parseLineWindows(file, result)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *TextEntityParser) parseLineWindows(file *FileInput, result *EntityParserResult) {
	lines := strings.Split(string(file.Content), "\n")
	for start := 0; start < len(lines); start += p.lineWindow {
		end := start + p.lineWindow
		if end > len(lines) {
			end = len(lines)
		}
		windowLines := lines[start:end]
		content := strings.Join(windowLines, "\n")
		if len(content) > MaxLineWindowChars {
			content = content[:MaxLineWindowChars]
		}
		name := fmt.Sprintf("%s::lines_%d_%d", file.Path, start+1, end)
		result.Entities = append(result.Entities, model.Entity{
			FilePath:      file.Path,
			Name:          name,
			Type:          model.EntityTypeTextChunk,
			LineNumber:    start + 1,
			EndLineNumber: end,
		})
		result.Relations = append(result.Relations, model.Relation{
			FromEntity:   file.Path,
			ToEntity:     name,
			RelationType: model.RelationContains,
			Confidence:   1.0,
		})
		result.ImplChunks = append(result.ImplChunks, model.EntityChunk{
			FilePath:   file.Path,
			EntityName: name,
			EntityType: model.EntityTypeTextChunk,
			ChunkType:  model.ChunkTypeImplementation,
			Content:    content,
			StartLine:  start + 1,
			EndLine:    end,
			Metadata:   map[string]any{"preview": previewOf(content)},
		})
	}
}

func previewOf(content string) string {
	if len(content) <= 200 {
		return content
	}
	return content[:200]
}

func (p *TextEntityParser) parseCSV(file *FileInput, result *EntityParserResult) {
	scanner := bufio.NewScanner(strings.NewReader(string(file.Content)))
	if !scanner.Scan() {
		return
	}
	header := scanner.Text()
	columns := strings.Split(header, ",")
	rowCount := 0
	for scanner.Scan() {
		rowCount++
	}
	for i, col := range columns {
		name := strings.TrimSpace(col)
		if name == "" {
			continue
		}
		result.Entities = append(result.Entities, model.Entity{
			FilePath: file.Path,
			Name:     name,
			Type:     model.EntityTypeVariable,
			Metadata: map[string]any{"position": i, "row_count": rowCount},
		})
		result.Relations = append(result.Relations, model.Relation{
			FromEntity:   file.Path,
			ToEntity:     name,
			RelationType: model.RelationContains,
			Confidence:   1.0,
		})
	}
}

func (p *TextEntityParser) parseINI(file *FileInput, result *EntityParserResult) {
	lines := strings.Split(string(file.Content), "\n")
	currentSection := ""
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			result.Entities = append(result.Entities, model.Entity{
				FilePath:   file.Path,
				Name:       currentSection,
				Type:       model.EntityTypeClass,
				LineNumber: lineNo + 1,
			})
			result.Relations = append(result.Relations, model.Relation{
				FromEntity:   file.Path,
				ToEntity:     currentSection,
				RelationType: model.RelationContains,
				Confidence:   1.0,
			})
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 || currentSection == "" {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		qualified := currentSection + "." + key
		result.Entities = append(result.Entities, model.Entity{
			FilePath:   file.Path,
			Name:       qualified,
			Type:       model.EntityTypeVariable,
			LineNumber: lineNo + 1,
		})
		result.Relations = append(result.Relations, model.Relation{
			FromEntity:   currentSection,
			ToEntity:     qualified,
			RelationType: model.RelationContains,
			Confidence:   1.0,
		})
	}
}
