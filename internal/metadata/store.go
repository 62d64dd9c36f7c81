// Package metadata implements the relational metadata store over SQLite.
//
// It exclusively owns persisted Note, Tag, Relation, LearningPattern,
// FeedbackEvent, and processing-log records. SQLite serializes writers;
// readers run concurrently.
package metadata

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
)

//go:embed schema.sql
var schema string

// Store errors.
var (
	// ErrDuplicateTag indicates an exact (note, value, type) duplicate.
	ErrDuplicateTag = errors.New("duplicate tag")

	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
)

// TagEntry is a flattened (tag value, note) row used to build tag indexes.
type TagEntry struct {
	Value       string
	NoteID      string
	NoteTitle   string
	ContentType knowledge.ContentType
}

// LogEntry is one processing-log row.
type LogEntry struct {
	ID         string
	NoteID     string
	SourceType knowledge.SourceType
	Decision   string
	Confidence float64
	Reason     string
	CreatedAt  time.Time
}

// Store handles all metadata persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// churn under the worker pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveNote inserts a note with its tags and relations in one transaction.
// Exact duplicate tags fail the whole transaction with ErrDuplicateTag.
func (s *Store) SaveNote(ctx context.Context, note *knowledge.Note, tags []knowledge.Tag, relations []knowledge.Relation) error {
	if err := note.Validate(); err != nil {
		return fmt.Errorf("invalid note: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (id, title, content_type, primary_domain, body, path, confidence_score, source_type, content_hash, fingerprint, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.Title, note.ContentType, note.PrimaryDomain, note.Body, note.Path,
		note.ConfidenceScore, note.SourceType, note.ContentHash, note.Fingerprint, note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	for _, tag := range tags {
		if err := insertTag(ctx, tx, note.ID, tag); err != nil {
			return err
		}
	}

	for _, rel := range relations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO relations (source_note_id, target_note_id, target_label, relationship_type, confidence, source)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			note.ID, nullable(rel.TargetNoteID), nullable(rel.TargetLabel), rel.Type, rel.Confidence, rel.Source,
		)
		if err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit note: %w", err)
	}
	return nil
}

func insertTag(ctx context.Context, tx *sql.Tx, noteID string, tag knowledge.Tag) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tags (note_id, value, tag_type, confidence, source) VALUES (?, ?, ?, ?, ?)`,
		noteID, tag.Value, tag.TagType, tag.Confidence, tag.Source,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %s/%s on note %s", ErrDuplicateTag, tag.Value, tag.TagType, noteID)
		}
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// DeleteNote removes a note and its tags and relations. This exists only
// as the compensating action for a failed filing; the pipeline never
// hard-deletes accepted notes.
func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM relations WHERE source_note_id = ?`,
		`DELETE FROM tags WHERE note_id = ?`,
		`DELETE FROM notes WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, noteID); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
	}
	return tx.Commit()
}

// GetNote retrieves a note by id.
func (s *Store) GetNote(ctx context.Context, id string) (*knowledge.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content_type, primary_domain, body, path, confidence_score, source_type, content_hash, fingerprint, created_at, updated_at
		 FROM notes WHERE id = ?`, id)
	return scanNote(row)
}

// NoteExists reports whether a note id is present.
func (s *Store) NoteExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("note exists: %w", err)
	}
	return true, nil
}

// UpdateNotePath records a destination correction.
func (s *Store) UpdateNotePath(ctx context.Context, noteID, path string) error {
	return s.updateNote(ctx, noteID, `UPDATE notes SET path = ?, updated_at = ? WHERE id = ?`, path)
}

// UpdateNoteBody records a content edit, refreshing the content hash.
func (s *Store) UpdateNoteBody(ctx context.Context, noteID, body string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET body = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
		body, knowledge.HashContent(body), time.Now(), noteID)
	if err != nil {
		return fmt.Errorf("update note body: %w", err)
	}
	return requireRow(res)
}

func (s *Store) updateNote(ctx context.Context, noteID, query string, value any) error {
	res, err := s.db.ExecContext(ctx, query, value, time.Now(), noteID)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return requireRow(res)
}

// NotesByDomain returns notes whose primary domain matches.
func (s *Store) NotesByDomain(ctx context.Context, domain string, limit int) ([]*knowledge.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content_type, primary_domain, body, path, confidence_score, source_type, content_hash, fingerprint, created_at, updated_at
		 FROM notes WHERE primary_domain = ? ORDER BY created_at DESC LIMIT ?`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("notes by domain: %w", err)
	}
	return collectNotes(rows)
}

// NotesByTag returns notes carrying the given tag value.
func (s *Store) NotesByTag(ctx context.Context, value string, limit int) ([]*knowledge.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.title, n.content_type, n.primary_domain, n.body, n.path, n.confidence_score, n.source_type, n.content_hash, n.fingerprint, n.created_at, n.updated_at
		 FROM notes n JOIN tags t ON t.note_id = n.id
		 WHERE t.value = ? ORDER BY n.created_at DESC LIMIT ?`, value, limit)
	if err != nil {
		return nil, fmt.Errorf("notes by tag: %w", err)
	}
	return collectNotes(rows)
}

// NotesByTimeRange returns notes created in [from, to).
func (s *Store) NotesByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*knowledge.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content_type, primary_domain, body, path, confidence_score, source_type, content_hash, fingerprint, created_at, updated_at
		 FROM notes WHERE created_at >= ? AND created_at < ? ORDER BY created_at DESC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("notes by time range: %w", err)
	}
	return collectNotes(rows)
}

// TagsForNote returns all tags on a note.
func (s *Store) TagsForNote(ctx context.Context, noteID string) ([]knowledge.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id, value, tag_type, confidence, source FROM tags WHERE note_id = ?`, noteID)
	if err != nil {
		return nil, fmt.Errorf("tags for note: %w", err)
	}
	defer rows.Close()

	var tags []knowledge.Tag
	for rows.Next() {
		var t knowledge.Tag
		if err := rows.Scan(&t.NoteID, &t.Value, &t.TagType, &t.Confidence, &t.Source); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ReplaceTag swaps a tag value on a note, keeping the tag type.
func (s *Store) ReplaceTag(ctx context.Context, noteID, original, corrected string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE OR REPLACE tags SET value = ?, source = ? WHERE note_id = ? AND value = ?`,
		corrected, knowledge.TagSourceManual, noteID, original)
	if err != nil {
		return fmt.Errorf("replace tag: %w", err)
	}
	return nil
}

// TagIndexEntries returns recent (tag value, note) pairs for building the
// classifier's relation-inference index.
func (s *Store) TagIndexEntries(ctx context.Context, limit int) ([]TagEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.value, n.id, n.title, n.content_type
		 FROM tags t JOIN notes n ON n.id = t.note_id
		 ORDER BY n.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("tag index entries: %w", err)
	}
	defer rows.Close()

	var entries []TagEntry
	for rows.Next() {
		var e TagEntry
		if err := rows.Scan(&e.Value, &e.NoteID, &e.NoteTitle, &e.ContentType); err != nil {
			return nil, fmt.Errorf("scan tag entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RelationsForNote returns outgoing relations of a note.
func (s *Store) RelationsForNote(ctx context.Context, noteID string) ([]knowledge.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_note_id, COALESCE(target_note_id, ''), COALESCE(target_label, ''), relationship_type, confidence, source
		 FROM relations WHERE source_note_id = ?`, noteID)
	if err != nil {
		return nil, fmt.Errorf("relations for note: %w", err)
	}
	defer rows.Close()

	var rels []knowledge.Relation
	for rows.Next() {
		var r knowledge.Relation
		if err := rows.Scan(&r.SourceNoteID, &r.TargetNoteID, &r.TargetLabel, &r.Type, &r.Confidence, &r.Source); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// AddRelation appends a relation row.
func (s *Store) AddRelation(ctx context.Context, rel knowledge.Relation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (source_note_id, target_note_id, target_label, relationship_type, confidence, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rel.SourceNoteID, nullable(rel.TargetNoteID), nullable(rel.TargetLabel), rel.Type, rel.Confidence, rel.Source)
	if err != nil {
		return fmt.Errorf("add relation: %w", err)
	}
	return nil
}

// RemoveRelation deletes relations matching source, target, and type.
func (s *Store) RemoveRelation(ctx context.Context, sourceID, target string, relType knowledge.RelationType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM relations WHERE source_note_id = ? AND (target_note_id = ? OR target_label = ?) AND relationship_type = ?`,
		sourceID, target, target, relType)
	if err != nil {
		return fmt.Errorf("remove relation: %w", err)
	}
	return nil
}

// GetPattern fetches a learning pattern by its (type, fingerprint) key.
// Returns ErrNotFound when no such pattern exists.
func (s *Store) GetPattern(ctx context.Context, patternType knowledge.PatternType, fingerprint string) (*knowledge.LearningPattern, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pattern_type, fingerprint, pattern_data, confidence, usage_count, success_rate, created_at, updated_at
		 FROM learning_patterns WHERE pattern_type = ? AND fingerprint = ?`, patternType, fingerprint)
	return scanPattern(row)
}

// UpsertPattern inserts or replaces a learning pattern by its key.
func (s *Store) UpsertPattern(ctx context.Context, p *knowledge.LearningPattern) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("marshal pattern data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO learning_patterns (id, pattern_type, fingerprint, pattern_data, confidence, usage_count, success_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (pattern_type, fingerprint) DO UPDATE SET
		   pattern_data = excluded.pattern_data,
		   confidence   = excluded.confidence,
		   usage_count  = excluded.usage_count,
		   success_rate = excluded.success_rate,
		   updated_at   = excluded.updated_at`,
		p.ID, p.PatternType, p.Fingerprint, string(data), p.Confidence, p.UsageCount, p.SuccessRate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// ListPatterns returns all learning patterns.
func (s *Store) ListPatterns(ctx context.Context) ([]*knowledge.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern_type, fingerprint, pattern_data, confidence, usage_count, success_rate, created_at, updated_at
		 FROM learning_patterns ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*knowledge.LearningPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// InsertFeedback appends a feedback event.
func (s *Store) InsertFeedback(ctx context.Context, e *knowledge.FeedbackEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_events (id, note_id, action_type, original_value, corrected_value, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.NoteID, e.ActionType, e.OriginalValue, e.CorrectedValue, boolToInt(e.Processed), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// MarkFeedbackProcessed flags an event as consumed by the learner.
func (s *Store) MarkFeedbackProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feedback_events SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark feedback processed: %w", err)
	}
	return requireRow(res)
}

// UnprocessedFeedback returns events not yet consumed, oldest first.
func (s *Store) UnprocessedFeedback(ctx context.Context, limit int) ([]*knowledge.FeedbackEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note_id, action_type, original_value, corrected_value, processed, created_at
		 FROM feedback_events WHERE processed = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("unprocessed feedback: %w", err)
	}
	defer rows.Close()

	var events []*knowledge.FeedbackEvent
	for rows.Next() {
		var e knowledge.FeedbackEvent
		var processed int
		if err := rows.Scan(&e.ID, &e.NoteID, &e.ActionType, &e.OriginalValue, &e.CorrectedValue, &processed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		e.Processed = processed != 0
		events = append(events, &e)
	}
	return events, rows.Err()
}

// AppendLog records one pipeline run.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_log (id, note_id, source_type, decision, confidence, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullable(entry.NoteID), entry.SourceType, entry.Decision, entry.Confidence, entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// AutoFileStats returns, for one source type since a cutoff, the number
// of auto-filed notes and how many of those later received feedback.
// The difference is the implicit-approval count used in retuning.
func (s *Store) AutoFileStats(ctx context.Context, source knowledge.SourceType, since time.Time) (autoFiled, corrected int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processing_log
		 WHERE source_type = ? AND decision = 'auto_file' AND created_at >= ? AND note_id IS NOT NULL`,
		source, since).Scan(&autoFiled)
	if err != nil {
		return 0, 0, fmt.Errorf("count auto-filed: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT l.note_id) FROM processing_log l
		 JOIN feedback_events f ON f.note_id = l.note_id
		 WHERE l.source_type = ? AND l.decision = 'auto_file' AND l.created_at >= ?`,
		source, since).Scan(&corrected)
	if err != nil {
		return 0, 0, fmt.Errorf("count corrected: %w", err)
	}
	return autoFiled, corrected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*knowledge.Note, error) {
	var n knowledge.Note
	err := row.Scan(&n.ID, &n.Title, &n.ContentType, &n.PrimaryDomain, &n.Body, &n.Path,
		&n.ConfidenceScore, &n.SourceType, &n.ContentHash, &n.Fingerprint, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]*knowledge.Note, error) {
	defer rows.Close()
	var notes []*knowledge.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanPattern(row rowScanner) (*knowledge.LearningPattern, error) {
	var p knowledge.LearningPattern
	var data string
	err := row.Scan(&p.ID, &p.PatternType, &p.Fingerprint, &data, &p.Confidence, &p.UsageCount, &p.SuccessRate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pattern: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &p.Data); err != nil {
		return nil, fmt.Errorf("unmarshal pattern data: %w", err)
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
