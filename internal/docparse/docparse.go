// Package docparse derives Document and Chunk records from raw markdown
// bytes: frontmatter extraction, schema validation, link extraction,
// heading-bounded chunking, and content hashing.
package docparse

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/schema"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// ChunkThreshold is the body line count above which a document is split
// into heading-bounded chunks.
const ChunkThreshold = 500

var (
	frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)
	headerPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	linkPattern        = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
)

// Document is the parsed, not-yet-embedded record for one docs-root file.
type Document struct {
	ID             string
	TenantKey      tenant.Key
	RelativePath   string
	DocType        string
	Title          string
	Summary        string
	Body           string
	CharCount      int
	ContentHash    string
	Frontmatter    map[string]any
	PromotionLevel string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Chunk is one heading-bounded slice of a Document's body.
type Chunk struct {
	ID             string
	DocumentID     string
	TenantKey      tenant.Key
	ChunkIndex     int
	HeaderPath     string
	Text           string
	PromotionLevel string
}

// LinkEdge is one markdown link from the document body that resolves to
// a path under the docs root.
type LinkEdge struct {
	FromRelativePath string
	ToRelativePath   string
}

// Parse runs the five-step pipeline against raw file bytes. docsRoot must
// already be resolved and relativePath must be forward-slash-normalized
// and relative to it.
func Parse(key tenant.Key, docsRoot, relativePath string, raw []byte, registry *schema.Registry, logger *slog.Logger) (*Document, []*Chunk, []*LinkEdge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	frontmatter, body := extractFrontmatter(raw, relativePath, logger)

	docType, _ := frontmatter["doc_type"].(string)
	if errs := registry.Validate(docType, frontmatter); len(errs) > 0 {
		details := make(map[string]any, len(errs))
		for _, e := range errs {
			details[e.Field] = e.Message
		}
		return nil, nil, nil, errors.New(errors.TagSchemaValidationFail, "frontmatter failed schema validation").WithDetail("errors", details)
	}

	promotionLevel, _ := frontmatter[schema.PromotionLevelField].(string)
	if promotionLevel == "" {
		promotionLevel = "standard"
	}

	title, _ := frontmatter["title"].(string)
	summary, _ := frontmatter["summary"].(string)

	docID := hashID(key.String(), relativePath)
	doc := &Document{
		ID:             docID,
		TenantKey:      key,
		RelativePath:   relativePath,
		DocType:        docType,
		Title:          title,
		Summary:        summary,
		Body:           strings.TrimSpace(body),
		CharCount:      utf8.RuneCountInString(body),
		ContentHash:    hashBytes(raw),
		Frontmatter:    frontmatter,
		PromotionLevel: promotionLevel,
	}

	links := extractLinks(relativePath, body)
	chunks := chunkBody(docID, key, relativePath, body, promotionLevel)

	return doc, chunks, links, nil
}

func extractFrontmatter(raw []byte, relativePath string, logger *slog.Logger) (map[string]any, string) {
	content := string(raw)

	match := frontmatterPattern.FindStringSubmatch(content)
	if match == nil {
		return map[string]any{}, content
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(match[1]), &fm); err != nil {
		logger.Warn("malformed frontmatter, treating as absent", "path", relativePath, "error", err)
		return map[string]any{}, content[len(match[0]):]
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, content[len(match[0]):]
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashContent exposes the document content-hash function so callers (the
// Indexer's idempotence check) can compare a freshly-read file against a
// stored ContentHash without running the full parse pipeline.
func HashContent(raw []byte) string {
	return hashBytes(raw)
}

func hashID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "/")))
	return hex.EncodeToString(sum[:])[:16]
}

// extractLinks scans body for markdown links and keeps only those whose
// target, resolved relative to fromPath's directory, stays under the
// docs root.
func extractLinks(fromPath, body string) []*LinkEdge {
	var edges []*LinkEdge
	dir := path.Dir(fromPath)

	for _, m := range linkPattern.FindAllStringSubmatch(body, -1) {
		target := m[2]
		if target == "" || strings.HasPrefix(target, "#") {
			continue
		}
		if isExternalTarget(target) {
			continue
		}

		target = strings.SplitN(target, "#", 2)[0]
		if target == "" {
			continue
		}

		resolved := path.Clean(path.Join(dir, target))
		if resolved == "." || strings.HasPrefix(resolved, "../") || resolved == ".." {
			continue
		}

		edges = append(edges, &LinkEdge{FromRelativePath: fromPath, ToRelativePath: resolved})
	}

	return edges
}

func isExternalTarget(target string) bool {
	for _, scheme := range []string{"http://", "https://", "mailto:", "//"} {
		if strings.HasPrefix(target, scheme) {
			return true
		}
	}
	return false
}

// chunkBody splits body into heading-bounded chunks when its line count
// exceeds ChunkThreshold; otherwise it returns no chunks.
func chunkBody(documentID string, key tenant.Key, relativePath, body, promotionLevel string) []*Chunk {
	if lineCount(body) <= ChunkThreshold {
		return nil
	}

	sections := splitSections(body)
	var texts []string
	var headerPaths []string

	for _, sec := range sections {
		if lineCount(sec.content) <= ChunkThreshold {
			if strings.TrimSpace(sec.content) == "" {
				continue
			}
			texts = append(texts, strings.TrimSpace(sec.content))
			headerPaths = append(headerPaths, sec.headerPath)
			continue
		}
		for _, part := range splitByLineBudget(sec.content, ChunkThreshold) {
			if strings.TrimSpace(part) == "" {
				continue
			}
			texts = append(texts, strings.TrimSpace(part))
			headerPaths = append(headerPaths, sec.headerPath)
		}
	}

	chunks := make([]*Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &Chunk{
			ID:             hashID(documentID, strconv.Itoa(i)),
			DocumentID:     documentID,
			TenantKey:      key,
			ChunkIndex:     i,
			HeaderPath:     headerPaths[i],
			Text:           text,
			PromotionLevel: promotionLevel,
		})
	}
	return chunks
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

type section struct {
	headerPath string
	content    string
}

// splitSections partitions body into sections bounded by markdown
// headings, building each section's header_path from the stack of
// ancestor headings (e.g. "## A > ### B"). Content preceding the first
// heading forms a section with an empty header_path.
func splitSections(body string) []*section {
	lines := strings.Split(body, "\n")
	headerStack := make([]string, 6)

	var sections []*section
	var current *section
	var builder strings.Builder

	flush := func() {
		if current != nil {
			current.content = builder.String()
			sections = append(sections, current)
			builder.Reset()
		}
	}

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()

			level := len(match[1])
			title := strings.TrimSpace(match[2])
			headerStack[level-1] = match[1] + " " + title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var parts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					parts = append(parts, headerStack[i])
				}
			}

			current = &section{headerPath: strings.Join(parts, " > ")}
			builder.WriteString(line)
			builder.WriteString("\n")
			continue
		}

		if current == nil {
			current = &section{}
		}
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	flush()

	return sections
}

// splitByLineBudget splits an oversized section into line-budget-sized
// pieces on paragraph (blank-line) boundaries where possible.
func splitByLineBudget(content string, budget int) []string {
	paragraphs := strings.Split(content, "\n\n")

	var parts []string
	var current strings.Builder
	currentLines := 0

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
			currentLines = 0
		}
	}

	for _, para := range paragraphs {
		paraLines := lineCount(para)
		if currentLines > 0 && currentLines+paraLines > budget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentLines += paraLines
	}
	flush()

	return parts
}
