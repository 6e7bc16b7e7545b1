package mcp

// Input and output types for the nine MCP tools described in spec.md §6.
// Field tags follow the go-sdk/mcp convention: `json` drives wire encoding,
// `jsonschema` descriptions surface in the tool's advertised schema.

// ActivateProjectInput is activate_project's argument: the absolute path to
// the project root containing .csharp-compounding-docs/config.json.
type ActivateProjectInput struct {
	RootPath string `json:"root_path" jsonschema:"Absolute path to the project root"`
}

// ActivateProjectOutput reports what got wired up.
type ActivateProjectOutput struct {
	ProjectName    string   `json:"project_name"`
	BranchName     string   `json:"branch_name"`
	DocTypes       []string `json:"doc_types"`
	ExternalDocs   bool     `json:"external_docs"`
	WatcherStarted bool     `json:"watcher_started"`
}

// IndexDocumentInput is index_document's argument.
type IndexDocumentInput struct {
	RelativePath string `json:"relative_path" jsonschema:"Path to the document, relative to the project root"`
}

// IndexDocumentOutput reports the outcome of a single index pass.
type IndexDocumentOutput struct {
	RelativePath   string `json:"relative_path"`
	DocType        string `json:"doc_type"`
	ChunkCount     int    `json:"chunk_count"`
	PromotionLevel string `json:"promotion_level"`
	Reindexed      bool   `json:"reindexed"`
}

// SemanticSearchInput is semantic_search's argument set, spec.md §4.6.
type SemanticSearchInput struct {
	Query             string   `json:"query" jsonschema:"Natural language search query"`
	DocTypes          []string `json:"doc_types,omitempty" jsonschema:"Restrict results to these doc types"`
	Limit             *int     `json:"limit,omitempty" jsonschema:"Maximum number of hits, default 10. An explicit 0 returns no hits"`
	MinRelevanceScore float64  `json:"min_relevance_score,omitempty" jsonschema:"Minimum cosine similarity score, default 0.5"`
	PromotionLevels   []string `json:"promotion_levels,omitempty" jsonschema:"Restrict results to these promotion levels"`
}

// SearchHitOutput is one row of a semantic_search result.
type SearchHitOutput struct {
	Kind           string  `json:"kind"` // "document" or "chunk"
	RelativePath   string  `json:"relative_path"`
	Title          string  `json:"title"`
	DocType        string  `json:"doc_type"`
	PromotionLevel string  `json:"promotion_level"`
	HeaderPath     string  `json:"header_path,omitempty"`
	Text           string  `json:"text"`
	Score          float64 `json:"score"`
}

// SemanticSearchOutput wraps the ranked hit list.
type SemanticSearchOutput struct {
	Hits []SearchHitOutput `json:"hits"`
}

// RAGQueryInput is rag_query's argument set, spec.md §4.7.
type RAGQueryInput struct {
	Query             string   `json:"query" jsonschema:"Natural language question"`
	DocTypes          []string `json:"doc_types,omitempty"`
	MaxSources        int      `json:"max_sources,omitempty" jsonschema:"Maximum number of context sources, default 3"`
	MinRelevanceScore float64  `json:"min_relevance_score,omitempty" jsonschema:"Minimum relevance score, default 0.7"`
	MinPromotionLevel string   `json:"min_promotion_level,omitempty" jsonschema:"Lowest promotion level to include, default standard"`
	IncludeCritical   bool     `json:"include_critical,omitempty" jsonschema:"Prepend critical documents when true; an omitted value is false"`
}

// RAGSourceOutput is one entry of the assembled context set.
type RAGSourceOutput struct {
	Kind           string  `json:"kind"`
	RelativePath   string  `json:"relative_path"`
	Title          string  `json:"title"`
	Text           string  `json:"text"`
	PromotionLevel string  `json:"promotion_level"`
	HeaderPath     string  `json:"header_path,omitempty"`
	Score          float64 `json:"score"`
	Critical       bool    `json:"critical"`
	LinkedFrom     string  `json:"linked_from,omitempty"`
}

// RAGQueryOutput wraps the ordered context set.
type RAGQueryOutput struct {
	Sources []RAGSourceOutput `json:"sources"`
}

// SearchExternalDocsInput mirrors SemanticSearchInput, minus promotion
// levels: the external-docs collection carries no promotion levels
// (spec.md §4.11).
type SearchExternalDocsInput struct {
	Query             string   `json:"query"`
	DocTypes          []string `json:"doc_types,omitempty"`
	Limit             *int     `json:"limit,omitempty" jsonschema:"Maximum number of hits, default 10. An explicit 0 returns no hits"`
	MinRelevanceScore float64  `json:"min_relevance_score,omitempty"`
}

// SearchExternalDocsOutput mirrors SemanticSearchOutput.
type SearchExternalDocsOutput struct {
	Hits []SearchHitOutput `json:"hits"`
}

// RAGQueryExternalInput mirrors RAGQueryInput, minus promotion level.
type RAGQueryExternalInput struct {
	Query             string   `json:"query"`
	DocTypes          []string `json:"doc_types,omitempty"`
	MaxSources        int      `json:"max_sources,omitempty"`
	MinRelevanceScore float64  `json:"min_relevance_score,omitempty"`
	IncludeCritical   bool     `json:"include_critical,omitempty"`
}

// RAGQueryExternalOutput mirrors RAGQueryOutput.
type RAGQueryExternalOutput struct {
	Sources []RAGSourceOutput `json:"sources"`
}

// ListDocTypesInput takes no arguments.
type ListDocTypesInput struct{}

// DocTypeOutput describes one registered doc type.
type DocTypeOutput struct {
	Name          string `json:"name"`
	Folder        string `json:"folder"`
	HasSchema     bool   `json:"has_schema"`
	DocumentCount int    `json:"document_count"`
}

// ListDocTypesOutput wraps the registry summary.
type ListDocTypesOutput struct {
	DocTypes []DocTypeOutput `json:"doc_types"`
}

// DeleteDocumentsInput is delete_documents' argument: a batch of relative
// paths to remove in one call.
type DeleteDocumentsInput struct {
	Paths []string `json:"paths" jsonschema:"Relative paths of documents to delete"`
}

// DeleteDocumentsOutput reports per-path outcome so a partial failure in
// the batch is visible to the caller rather than silently swallowed.
type DeleteDocumentsOutput struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// UpdatePromotionLevelInput is update_promotion_level's argument.
type UpdatePromotionLevelInput struct {
	Path  string `json:"path" jsonschema:"Relative path of the document to update"`
	Level string `json:"level" jsonschema:"New promotion level"`
}

// UpdatePromotionLevelOutput confirms the mutation.
type UpdatePromotionLevelOutput struct {
	Path  string `json:"path"`
	Level string `json:"level"`
}
