package docparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/schema"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

func testKey() tenant.Key {
	return tenant.Key{ProjectName: "widgets", BranchName: "main", PathHash: "abc123"}
}

func TestParse_MinimalValidDocument(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: connection pool exhaustion\n---\nBody text here.\n")
	doc, chunks, links, err := Parse(testKey(), "/docs", "problems/pool.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	assert.Equal(t, "problem", doc.DocType)
	assert.Equal(t, "connection pool exhaustion", doc.Title)
	assert.Equal(t, "standard", doc.PromotionLevel)
	assert.NotEmpty(t, doc.ID)
	assert.NotEmpty(t, doc.ContentHash)
	assert.Empty(t, chunks)
	assert.Empty(t, links)
}

func TestParse_NoFrontmatter_TreatsWholeFileAsBody(t *testing.T) {
	raw := []byte("Just a plain body, no frontmatter.\n")
	_, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))
}

func TestParse_MalformedYAML_TreatedAsAbsentFrontmatter(t *testing.T) {
	raw := []byte("---\ndoc_type: [unterminated\n---\nBody.\n")
	_, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))
}

func TestParse_MissingRequiredField_ReturnsSchemaValidationFailed(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\n---\nBody.\n")
	_, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))
	de, ok := err.(*errors.DocError)
	require.True(t, ok)
	details, ok := de.Details["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "title")
}

func TestParse_UnregisteredDocType_ReturnsSchemaValidationFailed(t *testing.T) {
	raw := []byte("---\ndoc_type: mystery\ntitle: x\n---\nBody.\n")
	_, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))
}

func TestParse_InvalidPromotionLevel_ReturnsSchemaValidationFailed(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\npromotion_level: urgent\n---\nBody.\n")
	_, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))
}

func TestParse_PromotionLevelFromFrontmatter(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\npromotion_level: critical\n---\nBody.\n")
	doc, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	assert.Equal(t, "critical", doc.PromotionLevel)
}

func TestParse_ContentHashStableForSameBytes(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\nBody.\n")
	doc1, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)
	require.NoError(t, err)
	doc2, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)
	require.NoError(t, err)

	assert.Equal(t, doc1.ContentHash, doc2.ContentHash)
}

func TestParse_IDStableForSameTenantAndPath(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\nBody.\n")
	doc1, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)
	require.NoError(t, err)
	doc2, _, _, err := Parse(testKey(), "/docs", "notes.md", []byte("---\ndoc_type: problem\ntitle: y\n---\nOther body.\n"), schema.NewRegistry(), nil)
	require.NoError(t, err)

	assert.Equal(t, doc1.ID, doc2.ID)
}

func TestParse_LinkExtraction_KeepsOnlyInternalLinks(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\n" +
		"See [related](other.md) and [external](https://example.com/x) " +
		"and [anchor only](#section) and [escape](../../etc/passwd).\n")
	_, _, links, err := Parse(testKey(), "/docs", "sub/notes.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "sub/notes.md", links[0].FromRelativePath)
	assert.Equal(t, "sub/other.md", links[0].ToRelativePath)
}

func TestParse_LinkExtraction_StripsAnchorFragment(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\nSee [target](other.md#heading).\n")
	_, _, links, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "other.md", links[0].ToRelativePath)
}

func TestParse_ShortBody_ProducesNoChunks(t *testing.T) {
	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\nShort body.\n")
	_, chunks, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestParse_LongBody_ProducesContiguousChunks(t *testing.T) {
	var body strings.Builder
	body.WriteString("## Section One\n")
	for i := 0; i < 300; i++ {
		body.WriteString("line of body text\n")
	}
	body.WriteString("## Section Two\n")
	for i := 0; i < 300; i++ {
		body.WriteString("more body text\n")
	}

	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\n" + body.String())
	doc, chunks, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, doc.PromotionLevel, c.PromotionLevel)
		assert.NotEmpty(t, c.HeaderPath)
	}
}

func TestParse_HeaderPathJoinsAncestors(t *testing.T) {
	var body strings.Builder
	body.WriteString("# Top\n")
	for i := 0; i < 200; i++ {
		body.WriteString("x\n")
	}
	body.WriteString("## Child\n")
	for i := 0; i < 200; i++ {
		body.WriteString("y\n")
	}
	body.WriteString("### Grandchild\n")
	for i := 0; i < 200; i++ {
		body.WriteString("z\n")
	}

	raw := []byte("---\ndoc_type: problem\ntitle: x\n---\n" + body.String())
	_, chunks, _, err := Parse(testKey(), "/docs", "notes.md", raw, schema.NewRegistry(), nil)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var sawGrandchild bool
	for _, c := range chunks {
		if strings.Contains(c.HeaderPath, "Grandchild") {
			sawGrandchild = true
			assert.Contains(t, c.HeaderPath, "# Top")
			assert.Contains(t, c.HeaderPath, "## Child")
			assert.Contains(t, c.HeaderPath, "### Grandchild")
		}
	}
	assert.True(t, sawGrandchild)
}

func TestParse_CustomDocType_Validates(t *testing.T) {
	reg := schema.NewRegistry()
	reg.RegisterCustom(config.CustomDocType{
		Name:           "runbook",
		Folder:         "runbooks",
		RequiredFields: []string{"owner"},
	})

	raw := []byte("---\ndoc_type: runbook\ntitle: x\n---\nBody.\n")
	_, _, _, err := Parse(testKey(), "/docs", "notes.md", raw, reg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))

	raw = []byte("---\ndoc_type: runbook\ntitle: x\nowner: platform-team\n---\nBody.\n")
	_, _, _, err = Parse(testKey(), "/docs", "notes.md", raw, reg, nil)
	require.NoError(t, err)
}
