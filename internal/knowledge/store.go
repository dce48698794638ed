// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge persists versioned, confidence-scored knowledge items
// and serves search, validation, evolution, and recommendation queries.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "knowledge.db"

	// defaultInitialConfidence is used when a draft supplies no quality
	// score to derive the creation-time confidence from.
	defaultInitialConfidence = 0.5
)

// Sentinel errors for the store's failure taxonomy.
var (
	// ErrInvalidKnowledge rejects structurally malformed drafts. Invalid
	// input is never silently repaired; a null-content item would corrupt
	// downstream search.
	ErrInvalidKnowledge = errors.New("invalid knowledge item")

	// ErrNotFound is returned for operations addressing an unknown id.
	ErrNotFound = errors.New("knowledge item not found")

	// ErrUnknownField rejects evolutions naming a field that does not
	// resolve on the item schema.
	ErrUnknownField = errors.New("unknown field")

	// ErrConflict is returned when an evolution's expected version is
	// stale. Callers re-read the item and retry.
	ErrConflict = errors.New("concurrent modification conflict")
)

// Store manages the knowledge SQLite database.
type Store struct {
	db         *sql.DB
	dataDir    string
	maxResults int
}

// New opens or creates the knowledge database at cfg.DataDir/index/knowledge.db,
// creating the schema if it does not exist.
func New(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	// _txlock=immediate makes transactions take the write lock up front, so
	// concurrent evolutions queue on the busy timeout instead of failing
	// mid-transaction when a deferred read lock cannot upgrade.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, dataDir: cfg.DataDir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			source_urls TEXT,
			context TEXT,
			domain TEXT,
			technologies TEXT,
			complexity TEXT,
			quality_score REAL NOT NULL,
			impact_score REAL NOT NULL,
			payload TEXT,
			confidence REAL NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_type ON items(type)`,
		`CREATE INDEX IF NOT EXISTS idx_items_domain ON items(domain)`,
		`CREATE TABLE IF NOT EXISTS evolutions (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES items(id),
			evolution_type TEXT,
			description TEXT,
			changes TEXT NOT NULL,
			trigger_info TEXT,
			impact_assessment TEXT,
			previous_version INTEGER NOT NULL,
			new_version INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evolutions_item ON evolutions(item_id)`,
		`CREATE TABLE IF NOT EXISTS validations (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES items(id),
			kind TEXT NOT NULL,
			validator_id TEXT,
			score REAL NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validations_item ON validations(item_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table over title+content with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='items_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE items_fts USING fts5(title, content, content=items, content_rowid=rowid)`,
			`CREATE TRIGGER items_ai AFTER INSERT ON items BEGIN
				INSERT INTO items_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
			END`,
			`CREATE TRIGGER items_ad AFTER DELETE ON items BEGIN
				INSERT INTO items_fts(items_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
			END`,
			`CREATE TRIGGER items_au AFTER UPDATE ON items BEGIN
				INSERT INTO items_fts(items_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
				INSERT INTO items_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// StoreKnowledge validates a draft and persists it as a new item with
// version 1. The initial confidence derives from the draft's quality
// score, or defaults to 0.5 when absent. Malformed drafts are rejected
// outright; nothing partial is stored.
func (s *Store) StoreKnowledge(ctx context.Context, draft types.KnowledgeDraft) (string, error) {
	if draft.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrInvalidKnowledge)
	}
	if !types.ValidItemTypes[draft.Type] {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidKnowledge, draft.Type)
	}
	if draft.Content == "" {
		return "", fmt.Errorf("%w: missing content", ErrInvalidKnowledge)
	}

	now := time.Now().UTC()
	item := types.KnowledgeItem{
		ID:         uuid.NewString(),
		Type:       draft.Type,
		Title:      draft.Title,
		Content:    draft.Content,
		SourceURLs: draft.SourceURLs,
		Context:    draft.Context,
		Metadata:   draft.Metadata,
		Solution:   draft.Solution,
		Pattern:    draft.Pattern,
		Error:      draft.Error,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	item.Metadata.QualityScore = clamp01(item.Metadata.QualityScore)
	item.Metadata.ImpactScore = clamp01(item.Metadata.ImpactScore)

	if draft.Metadata.QualityScore > 0 {
		item.Confidence = item.Metadata.QualityScore
	} else {
		item.Confidence = defaultInitialConfidence
	}

	if err := s.insertItem(ctx, s.db, item); err != nil {
		return "", err
	}
	return item.ID, nil
}

// execer abstracts *sql.DB and *sql.Tx for item writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertItem(ctx context.Context, ex execer, item types.KnowledgeItem) error {
	sourceURLs, _ := json.Marshal(item.SourceURLs)
	itemContext, _ := json.Marshal(item.Context)
	technologies, _ := json.Marshal(item.Metadata.Technologies)
	payload, err := marshalPayload(item)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO items (id, type, title, content, source_urls, context, domain,
			technologies, complexity, quality_score, impact_score, payload,
			confidence, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Type), item.Title, item.Content,
		string(sourceURLs), string(itemContext), item.Metadata.Domain,
		string(technologies), string(item.Metadata.Complexity),
		item.Metadata.QualityScore, item.Metadata.ImpactScore, string(payload),
		item.Confidence, item.Version,
		item.CreatedAt.Format(time.RFC3339Nano), item.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) updateItem(ctx context.Context, ex execer, item types.KnowledgeItem) error {
	sourceURLs, _ := json.Marshal(item.SourceURLs)
	itemContext, _ := json.Marshal(item.Context)
	technologies, _ := json.Marshal(item.Metadata.Technologies)
	payload, err := marshalPayload(item)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx,
		`UPDATE items SET title = ?, content = ?, source_urls = ?, context = ?,
			domain = ?, technologies = ?, complexity = ?, quality_score = ?,
			impact_score = ?, payload = ?, confidence = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		item.Title, item.Content, string(sourceURLs), string(itemContext),
		item.Metadata.Domain, string(technologies), string(item.Metadata.Complexity),
		item.Metadata.QualityScore, item.Metadata.ImpactScore, string(payload),
		item.Confidence, item.Version, item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", item.ID, err)
	}
	return nil
}

// payloadEnvelope is the JSON shape of the payload column.
type payloadEnvelope struct {
	Solution *types.SolutionPayload `json:"solution,omitempty"`
	Pattern  *types.PatternPayload  `json:"pattern,omitempty"`
	Error    *types.ErrorPayload    `json:"error,omitempty"`
}

func marshalPayload(item types.KnowledgeItem) ([]byte, error) {
	env := payloadEnvelope{Solution: item.Solution, Pattern: item.Pattern, Error: item.Error}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload for %s: %w", item.ID, err)
	}
	return data, nil
}

// GetKnowledge returns the item with its evolution history and validation
// events, or ErrNotFound.
func (s *Store) GetKnowledge(ctx context.Context, id string) (types.KnowledgeItem, error) {
	item, err := s.loadItem(ctx, s.db, id)
	if err != nil {
		return types.KnowledgeItem{}, err
	}

	history, err := s.loadHistory(ctx, id)
	if err != nil {
		return types.KnowledgeItem{}, err
	}
	item.History = history

	validations, err := s.loadValidations(ctx, id)
	if err != nil {
		return types.KnowledgeItem{}, err
	}
	item.Validations = validations

	return item, nil
}

// querier abstracts *sql.DB and *sql.Tx for item reads.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const itemColumns = `id, type, title, content, source_urls, context, domain,
	technologies, complexity, quality_score, impact_score, payload,
	confidence, version, created_at, updated_at`

func (s *Store) loadItem(ctx context.Context, q querier, id string) (types.KnowledgeItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.KnowledgeItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return types.KnowledgeItem{}, fmt.Errorf("loading item %s: %w", id, err)
	}
	return item, nil
}

// scanItem decodes one items row. The scan argument lets it serve both
// sql.Row and sql.Rows.
func scanItem(scan func(...any) error) (types.KnowledgeItem, error) {
	var (
		item                                 types.KnowledgeItem
		itemType, complexity                 string
		sourceURLs, itemContext, techs, payl sql.NullString
		createdAt, updatedAt                 string
	)

	err := scan(
		&item.ID, &itemType, &item.Title, &item.Content,
		&sourceURLs, &itemContext, &item.Metadata.Domain,
		&techs, &complexity, &item.Metadata.QualityScore,
		&item.Metadata.ImpactScore, &payl,
		&item.Confidence, &item.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return item, err
	}

	item.Type = types.ItemType(itemType)
	item.Metadata.Complexity = types.Complexity(complexity)
	if sourceURLs.Valid {
		json.Unmarshal([]byte(sourceURLs.String), &item.SourceURLs)
	}
	if itemContext.Valid {
		json.Unmarshal([]byte(itemContext.String), &item.Context)
	}
	if techs.Valid {
		json.Unmarshal([]byte(techs.String), &item.Metadata.Technologies)
	}
	if payl.Valid {
		var env payloadEnvelope
		if json.Unmarshal([]byte(payl.String), &env) == nil {
			item.Solution = env.Solution
			item.Pattern = env.Pattern
			item.Error = env.Error
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		item.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		item.UpdatedAt = t
	}
	return item, nil
}

func (s *Store) loadHistory(ctx context.Context, itemID string) ([]types.EvolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, evolution_type, description, changes, trigger_info,
			impact_assessment, previous_version, new_version, created_at
		 FROM evolutions WHERE item_id = ? ORDER BY new_version`, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", itemID, err)
	}
	defer rows.Close()

	var records []types.EvolutionRecord
	for rows.Next() {
		var (
			rec              types.EvolutionRecord
			changes, trigger sql.NullString
			createdAt        string
		)
		if err := rows.Scan(
			&rec.ID, &rec.ItemID, &rec.Type, &rec.Description, &changes,
			&trigger, &rec.ImpactAssessment, &rec.PreviousVersion,
			&rec.NewVersion, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning evolution row: %w", err)
		}
		if changes.Valid {
			json.Unmarshal([]byte(changes.String), &rec.Changes)
		}
		if trigger.Valid {
			json.Unmarshal([]byte(trigger.String), &rec.Trigger)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) loadValidations(ctx context.Context, itemID string) ([]types.ValidationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, kind, validator_id, score, created_at
		 FROM validations WHERE item_id = ? ORDER BY created_at`, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading validations for %s: %w", itemID, err)
	}
	defer rows.Close()

	var events []types.ValidationEvent
	for rows.Next() {
		var (
			ev        types.ValidationEvent
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.ItemID, &ev.Kind, &ev.ValidatorID, &ev.Score, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning validation row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ev.CreatedAt = t
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
