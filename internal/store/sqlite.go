package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	tenant_project   TEXT NOT NULL,
	tenant_branch    TEXT NOT NULL,
	tenant_path_hash TEXT NOT NULL,
	relative_path    TEXT NOT NULL,
	doc_type         TEXT NOT NULL,
	title            TEXT NOT NULL,
	summary          TEXT NOT NULL,
	content_hash     TEXT NOT NULL,
	promotion_level  TEXT NOT NULL,
	char_count       INTEGER NOT NULL,
	frontmatter      TEXT NOT NULL,
	embedding        BLOB,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_tenant_path
	ON documents(tenant_project, tenant_branch, tenant_path_hash, relative_path);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_doctype
	ON documents(tenant_project, tenant_branch, tenant_path_hash, doc_type);

CREATE TABLE IF NOT EXISTS chunks (
	id               TEXT PRIMARY KEY,
	document_id      TEXT NOT NULL,
	tenant_project   TEXT NOT NULL,
	tenant_branch    TEXT NOT NULL,
	tenant_path_hash TEXT NOT NULL,
	header_path      TEXT NOT NULL,
	text             TEXT NOT NULL,
	promotion_level  TEXT NOT NULL,
	chunk_index      INTEGER NOT NULL,
	embedding        BLOB
);

CREATE INDEX IF NOT EXISTS idx_chunks_document
	ON chunks(document_id);

CREATE INDEX IF NOT EXISTS idx_chunks_tenant
	ON chunks(tenant_project, tenant_branch, tenant_path_hash);
`

// SQLiteMetadataStore implements MetadataStore over a pure-Go SQLite
// database, one file per activated project. It is the durable record for
// Documents, Chunks, and their embeddings; the in-memory HNSW graphs in
// HNSWVectorStore are rebuilt from here on activation (GetAllEmbeddings).
type SQLiteMetadataStore struct {
	mu sync.Mutex
	db *sql.DB
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (creating if necessary) a SQLite database at
// path and applies the schema.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.TagFileSystemError, "failed to create metadata directory", err)
		}
	}

	db, err := sql.Open(sqlDriverName, path+sqlDSNSuffix)
	if err != nil {
		return nil, errors.Wrap(errors.TagFileSystemError, "failed to open metadata database", err)
	}
	db.SetMaxOpenConns(1) // one pooled connection: reads and writes are serialized

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.TagFileSystemError, "failed to apply metadata schema", err)
	}

	return &SQLiteMetadataStore{db: db}, nil
}

func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

// UpsertDocument replaces doc's chunk set and the document row itself,
// along with their embeddings, inside a single transaction.
func (s *SQLiteMetadataStore) UpsertDocument(ctx context.Context, doc *docparse.Document, docVector []float32, chunks []*docparse.Chunk, chunkVectors [][]float32) error {
	if len(chunks) != len(chunkVectors) {
		return errors.New(errors.TagInternal, "chunk and chunk-vector counts differ")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	frontmatterJSON, err := json.Marshal(doc.Frontmatter)
	if err != nil {
		return errors.Wrap(errors.TagInternal, "failed to marshal frontmatter", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_project, tenant_branch, tenant_path_hash, relative_path,
			doc_type, title, summary, content_hash, promotion_level, char_count, frontmatter,
			embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			relative_path=excluded.relative_path, doc_type=excluded.doc_type, title=excluded.title,
			summary=excluded.summary, content_hash=excluded.content_hash,
			promotion_level=excluded.promotion_level, char_count=excluded.char_count,
			frontmatter=excluded.frontmatter, embedding=excluded.embedding,
			updated_at=excluded.updated_at`,
		doc.ID, doc.TenantKey.ProjectName, doc.TenantKey.BranchName, doc.TenantKey.PathHash, doc.RelativePath,
		doc.DocType, doc.Title, doc.Summary, doc.ContentHash, doc.PromotionLevel, doc.CharCount, string(frontmatterJSON),
		vectorToBytes(docVector), doc.CreatedAt.UTC().Format(time.RFC3339Nano), doc.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to upsert document", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to clear old chunks", err)
	}

	for i, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, tenant_project, tenant_branch, tenant_path_hash,
				header_path, text, promotion_level, chunk_index, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.TenantKey.ProjectName, c.TenantKey.BranchName, c.TenantKey.PathHash,
			c.HeaderPath, c.Text, c.PromotionLevel, c.ChunkIndex, vectorToBytes(chunkVectors[i]))
		if err != nil {
			return errors.Wrap(errors.TagVectorStoreError, "failed to insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to commit upsert", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) GetDocument(ctx context.Context, key tenant.Key, relativePath string) (*docparse.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_project, tenant_branch, tenant_path_hash, relative_path, doc_type, title,
			summary, content_hash, promotion_level, char_count, frontmatter, created_at, updated_at
		FROM documents
		WHERE tenant_project = ? AND tenant_branch = ? AND tenant_path_hash = ? AND relative_path = ?`,
		key.ProjectName, key.BranchName, key.PathHash, relativePath)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.TagDocumentNotFound, fmt.Sprintf("document not found: %s", relativePath))
	}
	if err != nil {
		return nil, errors.Wrap(errors.TagVectorStoreError, "failed to read document", err)
	}
	return doc, nil
}

func (s *SQLiteMetadataStore) DeleteDocument(ctx context.Context, key tenant.Key, relativePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM documents
		WHERE tenant_project = ? AND tenant_branch = ? AND tenant_path_hash = ? AND relative_path = ?`,
		key.ProjectName, key.BranchName, key.PathHash, relativePath).Scan(&id)
	if err == sql.ErrNoRows {
		return errors.New(errors.TagDocumentNotFound, fmt.Sprintf("document not found: %s", relativePath))
	}
	if err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to look up document", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to delete document", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to commit delete", err)
	}
	return nil
}

// UpdatePromotionLevel changes a document's promotion level, and its
// chunks' inherited copy, without touching content, embeddings, or
// content_hash. This is the direct-mutation path update_promotion_level
// uses to bypass re-indexing entirely.
func (s *SQLiteMetadataStore) UpdatePromotionLevel(ctx context.Context, key tenant.Key, relativePath, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM documents
		WHERE tenant_project = ? AND tenant_branch = ? AND tenant_path_hash = ? AND relative_path = ?`,
		key.ProjectName, key.BranchName, key.PathHash, relativePath).Scan(&id)
	if err == sql.ErrNoRows {
		return errors.New(errors.TagDocumentNotFound, fmt.Sprintf("document not found: %s", relativePath))
	}
	if err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to look up document", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET promotion_level = ?, updated_at = ? WHERE id = ?`,
		level, time.Now().UTC().Format(time.RFC3339), id); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to update document promotion level", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chunks SET promotion_level = ? WHERE document_id = ?`, level, id); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to update chunk promotion level", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to commit promotion level update", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) GetChunksByDocumentID(ctx context.Context, documentID string) ([]*docparse.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tenant_project, tenant_branch, tenant_path_hash, header_path, text,
			promotion_level, chunk_index
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, errors.Wrap(errors.TagVectorStoreError, "failed to query chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) GetDocumentsByIDs(ctx context.Context, ids []string) ([]*docparse.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(`
		SELECT id, tenant_project, tenant_branch, tenant_path_hash, relative_path, doc_type, title,
			summary, content_hash, promotion_level, char_count, frontmatter, created_at, updated_at
		FROM documents WHERE id IN (%s)`, ids)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.TagVectorStoreError, "failed to query documents", err)
	}
	defer rows.Close()

	byID := make(map[string]*docparse.Document)
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, errors.Wrap(errors.TagVectorStoreError, "failed to scan document", err)
		}
		byID[doc.ID] = doc
	}

	result := make([]*docparse.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			result = append(result, doc)
		}
	}
	return result, nil
}

func (s *SQLiteMetadataStore) GetChunksByIDs(ctx context.Context, ids []string) ([]*docparse.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(`
		SELECT id, document_id, tenant_project, tenant_branch, tenant_path_hash, header_path, text,
			promotion_level, chunk_index
		FROM chunks WHERE id IN (%s)`, ids)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.TagVectorStoreError, "failed to query chunks", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*docparse.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	result := make([]*docparse.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *SQLiteMetadataStore) CountByDocType(ctx context.Context, key tenant.Key, docType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE tenant_project = ? AND tenant_branch = ? AND tenant_path_hash = ? AND doc_type = ?`,
		key.ProjectName, key.BranchName, key.PathHash, docType).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.TagVectorStoreError, "failed to count documents", err)
	}
	return count, nil
}

func (s *SQLiteMetadataStore) List(ctx context.Context, key tenant.Key) ([]ListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relative_path, content_hash, updated_at FROM documents
		WHERE tenant_project = ? AND tenant_branch = ? AND tenant_path_hash = ?`,
		key.ProjectName, key.BranchName, key.PathHash)
	if err != nil {
		return nil, errors.Wrap(errors.TagVectorStoreError, "failed to list documents", err)
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		var e ListEntry
		var updatedAt string
		if err := rows.Scan(&e.RelativePath, &e.ContentHash, &updatedAt); err != nil {
			return nil, errors.Wrap(errors.TagVectorStoreError, "failed to scan list entry", err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *SQLiteMetadataStore) GetAllEmbeddings(ctx context.Context, key tenant.Key, collection Collection) (map[string][]float32, error) {
	table := "documents"
	if collection == CollectionChunks {
		table = "chunks"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, embedding FROM %s
		WHERE tenant_project = ? AND tenant_branch = ? AND tenant_path_hash = ? AND embedding IS NOT NULL`, table),
		key.ProjectName, key.BranchName, key.PathHash)
	if err != nil {
		return nil, errors.Wrap(errors.TagVectorStoreError, "failed to query embeddings", err)
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(errors.TagVectorStoreError, "failed to scan embedding", err)
		}
		result[id] = bytesToVector(raw)
	}
	return result, nil
}

func scanDocument(row *sql.Row) (*docparse.Document, error) {
	var doc docparse.Document
	var frontmatterJSON, createdAt, updatedAt string
	err := row.Scan(&doc.ID, &doc.TenantKey.ProjectName, &doc.TenantKey.BranchName, &doc.TenantKey.PathHash,
		&doc.RelativePath, &doc.DocType, &doc.Title, &doc.Summary, &doc.ContentHash, &doc.PromotionLevel,
		&doc.CharCount, &frontmatterJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return finishDocument(&doc, frontmatterJSON, createdAt, updatedAt)
}

func scanDocumentRows(rows *sql.Rows) (*docparse.Document, error) {
	var doc docparse.Document
	var frontmatterJSON, createdAt, updatedAt string
	err := rows.Scan(&doc.ID, &doc.TenantKey.ProjectName, &doc.TenantKey.BranchName, &doc.TenantKey.PathHash,
		&doc.RelativePath, &doc.DocType, &doc.Title, &doc.Summary, &doc.ContentHash, &doc.PromotionLevel,
		&doc.CharCount, &frontmatterJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return finishDocument(&doc, frontmatterJSON, createdAt, updatedAt)
}

func finishDocument(doc *docparse.Document, frontmatterJSON, createdAt, updatedAt string) (*docparse.Document, error) {
	if err := json.Unmarshal([]byte(frontmatterJSON), &doc.Frontmatter); err != nil {
		return nil, err
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return doc, nil
}

func scanChunks(rows *sql.Rows) ([]*docparse.Chunk, error) {
	var chunks []*docparse.Chunk
	for rows.Next() {
		var c docparse.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantKey.ProjectName, &c.TenantKey.BranchName,
			&c.TenantKey.PathHash, &c.HeaderPath, &c.Text, &c.PromotionLevel, &c.ChunkIndex); err != nil {
			return nil, errors.Wrap(errors.TagVectorStoreError, "failed to scan chunk", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, nil
}

// inClauseQuery builds a `col IN (?, ?, ...)` query for ids, substituted
// into the %s placeholder in template.
func inClauseQuery(template string, ids []string) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return fmt.Sprintf(template, string(placeholders)), args
}

func vectorToBytes(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
