// Package config loads and validates the per-project configuration that
// activate_project reads from disk, plus the ambient runtime settings
// (log level, embedding endpoint, storage paths) that come from the
// environment rather than the project itself.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/errors"
)

// ConfigDirName is the per-project directory holding config.json.
const ConfigDirName = ".csharp-compounding-docs"

// ConfigFileName is the config file's name within ConfigDirName.
const ConfigFileName = "config.json"

// Config is the resolved configuration for an activated project: the
// fields parsed from config.json, plus Runtime settings sourced from
// DOCSERVER_* environment variables and defaults.
type Config struct {
	ProjectName    string          `json:"project_name"`
	ExternalDocs   *ExternalDocs   `json:"external_docs,omitempty"`
	CustomDocTypes []CustomDocType `json:"custom_doc_types,omitempty"`
	Thresholds     Thresholds      `json:"thresholds"`

	// Runtime is never read from config.json; it is ambient.
	Runtime Runtime `json:"-"`
	// RootPath is the activated project's root directory.
	RootPath string `json:"-"`
}

// ExternalDocs points at a separately indexed external-docs collection.
type ExternalDocs struct {
	Path string `json:"path"`
}

// CustomDocType registers a user-defined doc-type and the schema the
// document parser validates frontmatter against.
type CustomDocType struct {
	Name           string              `json:"name"`
	Folder         string              `json:"folder"`
	RequiredFields []string            `json:"required_fields,omitempty"`
	OptionalFields []string            `json:"optional_fields,omitempty"`
	EnumFields     map[string][]string `json:"enum_fields,omitempty"`
	FieldTypes     map[string]string   `json:"field_types,omitempty"`
}

// Thresholds bound search, retrieval, and traversal behavior.
type Thresholds struct {
	MinRelevanceScore float64 `json:"min_relevance_score"`
	MaxSources        int     `json:"max_sources"`
	MaxLinkedDocs     int     `json:"max_linked_docs"`
	MaxLinkDepth      int     `json:"max_link_depth"`
	MaxTraversalDepth int     `json:"max_traversal_depth"`
}

// Runtime holds ambient settings with no home in config.json.
type Runtime struct {
	LogLevel          string
	EmbeddingEndpoint string
	SQLiteDir         string
	ServerPort        int
}

// fileConfig mirrors the JSON-serialized subset of Config.
type fileConfig struct {
	ProjectName    string          `json:"project_name"`
	ExternalDocs   *ExternalDocs   `json:"external_docs"`
	CustomDocTypes []CustomDocType `json:"custom_doc_types"`
	Thresholds     *Thresholds     `json:"thresholds"`
}

var knownTopLevelFields = map[string]bool{
	"project_name":     true,
	"external_docs":    true,
	"custom_doc_types": true,
	"thresholds":       true,
}

func defaultThresholds() Thresholds {
	return Thresholds{
		MinRelevanceScore: 0.5,
		MaxSources:        3,
		MaxLinkedDocs:     5,
		MaxLinkDepth:      2,
		MaxTraversalDepth: 3,
	}
}

func defaultRuntime() Runtime {
	return Runtime{
		LogLevel:          "info",
		EmbeddingEndpoint: "http://localhost:11434",
	}
}

// NewConfig returns a Config populated with defaults and no project name
// (callers must Load or set ProjectName before Validate will pass).
func NewConfig() *Config {
	return &Config{
		Thresholds: defaultThresholds(),
		Runtime:    defaultRuntime(),
	}
}

// ConfigDir returns the per-project config directory under rootPath.
func ConfigDir(rootPath string) string {
	return filepath.Join(rootPath, ConfigDirName)
}

// ConfigPath returns the config.json path under rootPath.
func ConfigPath(rootPath string) string {
	return filepath.Join(ConfigDir(rootPath), ConfigFileName)
}

// Load reads and parses config.json under rootPath, applies DOCSERVER_*
// environment overrides, then validates the result. logger receives a warning
// per unrecognized top-level field; pass nil to use slog.Default().
func Load(rootPath string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := NewConfig()
	cfg.RootPath = rootPath

	path := ConfigPath(rootPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.TagConfigInvalid, fmt.Sprintf("config file not found at %s", path))
		}
		return nil, errors.Wrap(errors.TagConfigInvalid, "failed to read config file", err)
	}

	warnUnknownFields(data, logger, path)

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(errors.TagConfigInvalid, "failed to parse config.json", err)
	}
	cfg.applyFile(&parsed)
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func warnUnknownFields(data []byte, logger *slog.Logger, path string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	for key := range raw {
		if !knownTopLevelFields[key] {
			logger.Warn("ignoring unknown config field", "field", key, "path", path)
		}
	}
}

// applyFile copies parsed file fields onto cfg, merging thresholds over
// the defaults already present (a threshold of zero means "not set").
func (c *Config) applyFile(f *fileConfig) {
	c.ProjectName = f.ProjectName
	c.ExternalDocs = f.ExternalDocs
	c.CustomDocTypes = f.CustomDocTypes

	if f.Thresholds == nil {
		return
	}
	if f.Thresholds.MinRelevanceScore != 0 {
		c.Thresholds.MinRelevanceScore = f.Thresholds.MinRelevanceScore
	}
	if f.Thresholds.MaxSources != 0 {
		c.Thresholds.MaxSources = f.Thresholds.MaxSources
	}
	if f.Thresholds.MaxLinkedDocs != 0 {
		c.Thresholds.MaxLinkedDocs = f.Thresholds.MaxLinkedDocs
	}
	if f.Thresholds.MaxLinkDepth != 0 {
		c.Thresholds.MaxLinkDepth = f.Thresholds.MaxLinkDepth
	}
	if f.Thresholds.MaxTraversalDepth != 0 {
		c.Thresholds.MaxTraversalDepth = f.Thresholds.MaxTraversalDepth
	}
}

// applyEnvOverrides applies DOCSERVER_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSERVER_PROJECT_NAME"); v != "" {
		c.ProjectName = v
	}
	if v := os.Getenv("DOCSERVER_EXTERNAL_DOCS_PATH"); v != "" {
		if c.ExternalDocs == nil {
			c.ExternalDocs = &ExternalDocs{}
		}
		c.ExternalDocs.Path = v
	}
	if v := os.Getenv("DOCSERVER_MIN_RELEVANCE_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Thresholds.MinRelevanceScore = f
		}
	}
	if v := os.Getenv("DOCSERVER_MAX_SOURCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Thresholds.MaxSources = n
		}
	}
	if v := os.Getenv("DOCSERVER_MAX_LINKED_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Thresholds.MaxLinkedDocs = n
		}
	}
	if v := os.Getenv("DOCSERVER_MAX_LINK_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Thresholds.MaxLinkDepth = n
		}
	}
	if v := os.Getenv("DOCSERVER_MAX_TRAVERSAL_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Thresholds.MaxTraversalDepth = n
		}
	}

	if v := os.Getenv("DOCSERVER_LOG_LEVEL"); v != "" {
		c.Runtime.LogLevel = v
	}
	if v := os.Getenv("DOCSERVER_EMBEDDING_ENDPOINT"); v != "" {
		c.Runtime.EmbeddingEndpoint = v
	}
	if v := os.Getenv("DOCSERVER_SQLITE_DIR"); v != "" {
		c.Runtime.SQLiteDir = v
	}
	if v := os.Getenv("DOCSERVER_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Runtime.ServerPort = n
		}
	}
}

// Validate reports ConfigInvalid for any missing required field or
// out-of-range threshold.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectName) == "" {
		return errors.New(errors.TagConfigInvalid, "project_name is required")
	}
	if c.ExternalDocs != nil && strings.TrimSpace(c.ExternalDocs.Path) == "" {
		return errors.New(errors.TagConfigInvalid, "external_docs.path must not be empty when external_docs is set")
	}
	for i, dt := range c.CustomDocTypes {
		if strings.TrimSpace(dt.Name) == "" {
			return errors.New(errors.TagConfigInvalid, fmt.Sprintf("custom_doc_types[%d].name is required", i))
		}
		if strings.TrimSpace(dt.Folder) == "" {
			return errors.New(errors.TagConfigInvalid, fmt.Sprintf("custom_doc_types[%d].folder is required", i))
		}
	}
	if c.Thresholds.MinRelevanceScore < 0 || c.Thresholds.MinRelevanceScore > 1 {
		return errors.New(errors.TagConfigInvalid, fmt.Sprintf("min_relevance_score must be between 0 and 1, got %f", c.Thresholds.MinRelevanceScore))
	}
	if c.Thresholds.MaxSources <= 0 {
		return errors.New(errors.TagConfigInvalid, fmt.Sprintf("max_sources must be positive, got %d", c.Thresholds.MaxSources))
	}
	if c.Thresholds.MaxLinkedDocs <= 0 {
		return errors.New(errors.TagConfigInvalid, fmt.Sprintf("max_linked_docs must be positive, got %d", c.Thresholds.MaxLinkedDocs))
	}
	if c.Thresholds.MaxLinkDepth <= 0 {
		return errors.New(errors.TagConfigInvalid, fmt.Sprintf("max_link_depth must be positive, got %d", c.Thresholds.MaxLinkDepth))
	}
	if c.Thresholds.MaxTraversalDepth <= 0 {
		return errors.New(errors.TagConfigInvalid, fmt.Sprintf("max_traversal_depth must be positive, got %d", c.Thresholds.MaxTraversalDepth))
	}
	return nil
}

// WriteJSON writes the file-backed portion of c to path as indented JSON.
func (c *Config) WriteJSON(path string) error {
	out := fileConfig{
		ProjectName:    c.ProjectName,
		ExternalDocs:   c.ExternalDocs,
		CustomDocTypes: c.CustomDocTypes,
		Thresholds:     &c.Thresholds,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(errors.TagInternal, "failed to marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.TagInternal, "failed to create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.TagInternal, "failed to write config file", err)
	}
	return nil
}

// Summary is the resolved-config payload returned by activate_project.
type Summary struct {
	ProjectName       string   `json:"project_name"`
	ExternalDocsPath  string   `json:"external_docs_path,omitempty"`
	CustomDocTypes    []string `json:"custom_doc_types,omitempty"`
	MinRelevanceScore float64  `json:"min_relevance_score"`
	MaxSources        int      `json:"max_sources"`
	MaxLinkedDocs     int      `json:"max_linked_docs"`
	MaxLinkDepth      int      `json:"max_link_depth"`
	MaxTraversalDepth int      `json:"max_traversal_depth"`
}

// Summary builds the activate_project response payload.
func (c *Config) Summary() Summary {
	names := make([]string, 0, len(c.CustomDocTypes))
	for _, dt := range c.CustomDocTypes {
		names = append(names, dt.Name)
	}
	s := Summary{
		ProjectName:       c.ProjectName,
		CustomDocTypes:    names,
		MinRelevanceScore: c.Thresholds.MinRelevanceScore,
		MaxSources:        c.Thresholds.MaxSources,
		MaxLinkedDocs:     c.Thresholds.MaxLinkedDocs,
		MaxLinkDepth:      c.Thresholds.MaxLinkDepth,
		MaxTraversalDepth: c.Thresholds.MaxTraversalDepth,
	}
	if c.ExternalDocs != nil {
		s.ExternalDocsPath = c.ExternalDocs.Path
	}
	return s
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
