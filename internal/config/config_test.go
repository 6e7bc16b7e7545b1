package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/errors"
)

// =============================================================================
// Default configuration
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 0.5, cfg.Thresholds.MinRelevanceScore)
	assert.Equal(t, 3, cfg.Thresholds.MaxSources)
	assert.Equal(t, 5, cfg.Thresholds.MaxLinkedDocs)
	assert.Equal(t, 2, cfg.Thresholds.MaxLinkDepth)
	assert.Equal(t, 3, cfg.Thresholds.MaxTraversalDepth)

	assert.Equal(t, "info", cfg.Runtime.LogLevel)
	assert.Equal(t, "http://localhost:11434", cfg.Runtime.EmbeddingEndpoint)

	assert.Empty(t, cfg.ProjectName)
	assert.Nil(t, cfg.ExternalDocs)
	assert.Empty(t, cfg.CustomDocTypes)
}

func TestConfig_Validate_RequiresProjectName(t *testing.T) {
	cfg := NewConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.TagConfigInvalid, errors.GetTag(err))
}

// =============================================================================
// Load: file + precedence
// =============================================================================

func writeConfigFile(t *testing.T, rootPath string, contents string) {
	t.Helper()
	dir := ConfigDir(rootPath)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(ConfigPath(rootPath), []byte(contents), 0o644))
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{"project_name": "widgets"}`)

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "widgets", cfg.ProjectName)
	assert.Equal(t, 0.5, cfg.Thresholds.MinRelevanceScore)
	assert.Equal(t, root, cfg.RootPath)
}

func TestLoad_MissingFile_ReturnsConfigInvalid(t *testing.T) {
	root := t.TempDir()

	_, err := Load(root, nil)
	require.Error(t, err)
	assert.Equal(t, errors.TagConfigInvalid, errors.GetTag(err))
}

func TestLoad_MissingProjectName_ReturnsConfigInvalid(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{"thresholds": {"max_sources": 5}}`)

	_, err := Load(root, nil)
	require.Error(t, err)
	assert.Equal(t, errors.TagConfigInvalid, errors.GetTag(err))
}

func TestLoad_MalformedJSON_ReturnsConfigInvalid(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{"project_name": `)

	_, err := Load(root, nil)
	require.Error(t, err)
	assert.Equal(t, errors.TagConfigInvalid, errors.GetTag(err))
}

func TestLoad_ExternalDocsAndCustomDocTypes(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{
		"project_name": "widgets",
		"external_docs": {"path": "../external-docs"},
		"custom_doc_types": [
			{"name": "runbook", "folder": "runbooks", "required_fields": ["owner"]}
		]
	}`)

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg.ExternalDocs)
	assert.Equal(t, "../external-docs", cfg.ExternalDocs.Path)
	require.Len(t, cfg.CustomDocTypes, 1)
	assert.Equal(t, "runbook", cfg.CustomDocTypes[0].Name)
	assert.Equal(t, []string{"owner"}, cfg.CustomDocTypes[0].RequiredFields)
}

func TestLoad_ThresholdsOverrideDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{
		"project_name": "widgets",
		"thresholds": {"min_relevance_score": 0.8, "max_sources": 7}
	}`)

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Thresholds.MinRelevanceScore)
	assert.Equal(t, 7, cfg.Thresholds.MaxSources)
	// Fields not set in the file keep their defaults.
	assert.Equal(t, 5, cfg.Thresholds.MaxLinkedDocs)
}

func TestLoad_UnknownFieldsIgnored(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{"project_name": "widgets", "totally_unknown": true}`)

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "widgets", cfg.ProjectName)
}

func TestLoad_InvalidCustomDocType_ReturnsConfigInvalid(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{
		"project_name": "widgets",
		"custom_doc_types": [{"name": "", "folder": "runbooks"}]
	}`)

	_, err := Load(root, nil)
	require.Error(t, err)
	assert.Equal(t, errors.TagConfigInvalid, errors.GetTag(err))
}

// =============================================================================
// Environment variable overrides
// =============================================================================

func TestLoad_EnvOverridesTakeHighestPrecedence(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{"project_name": "widgets", "thresholds": {"max_sources": 3}}`)

	t.Setenv("DOCSERVER_MAX_SOURCES", "9")
	t.Setenv("DOCSERVER_LOG_LEVEL", "debug")
	t.Setenv("DOCSERVER_EMBEDDING_ENDPOINT", "http://localhost:9999")

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Thresholds.MaxSources)
	assert.Equal(t, "debug", cfg.Runtime.LogLevel)
	assert.Equal(t, "http://localhost:9999", cfg.Runtime.EmbeddingEndpoint)
}

func TestLoad_EnvProjectNameOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, `{"project_name": "widgets"}`)

	t.Setenv("DOCSERVER_PROJECT_NAME", "gadgets")

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "gadgets", cfg.ProjectName)
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate_RejectsOutOfRangeMinRelevanceScore(t *testing.T) {
	cfg := NewConfig()
	cfg.ProjectName = "widgets"
	cfg.Thresholds.MinRelevanceScore = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.TagConfigInvalid, errors.GetTag(err))
}

func TestValidate_RejectsNonPositiveMaxSources(t *testing.T) {
	cfg := NewConfig()
	cfg.ProjectName = "widgets"
	cfg.Thresholds.MaxSources = 0

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsEmptyExternalDocsPath(t *testing.T) {
	cfg := NewConfig()
	cfg.ProjectName = "widgets"
	cfg.ExternalDocs = &ExternalDocs{Path: "  "}

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.ProjectName = "widgets"
	cfg.CustomDocTypes = []CustomDocType{{Name: "runbook", Folder: "runbooks"}}

	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// WriteJSON / Summary
// =============================================================================

func TestWriteJSON_RoundTrips(t *testing.T) {
	root := t.TempDir()
	cfg := NewConfig()
	cfg.ProjectName = "widgets"
	cfg.Thresholds.MaxSources = 4

	path := ConfigPath(root)
	require.NoError(t, cfg.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed fileConfig
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "widgets", parsed.ProjectName)
	require.NotNil(t, parsed.Thresholds)
	assert.Equal(t, 4, parsed.Thresholds.MaxSources)
}

func TestWriteJSON_CreatesConfigDir(t *testing.T) {
	root := t.TempDir()
	cfg := NewConfig()
	cfg.ProjectName = "widgets"

	path := ConfigPath(root)
	require.NoError(t, cfg.WriteJSON(path))

	assert.DirExists(t, filepath.Dir(path))
}

func TestSummary_IncludesCustomDocTypeNames(t *testing.T) {
	cfg := NewConfig()
	cfg.ProjectName = "widgets"
	cfg.CustomDocTypes = []CustomDocType{{Name: "runbook", Folder: "runbooks"}, {Name: "faq", Folder: "faqs"}}
	cfg.ExternalDocs = &ExternalDocs{Path: "../external"}

	summary := cfg.Summary()
	assert.Equal(t, "widgets", summary.ProjectName)
	assert.Equal(t, []string{"runbook", "faq"}, summary.CustomDocTypes)
	assert.Equal(t, "../external", summary.ExternalDocsPath)
}

func TestConfigPath_JoinsDirAndRoot(t *testing.T) {
	root := "/tmp/project"
	assert.Equal(t, filepath.Join(root, ConfigDirName, ConfigFileName), ConfigPath(root))
}
