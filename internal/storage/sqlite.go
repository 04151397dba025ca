// Package storage persists computed embeddings in SQLite so they survive worker
// and host restarts.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// maxParams keeps IN lists under SQLite's default host parameter limit.
const maxParams = 500

// SQLiteStore stores embeddings keyed by a hash of the sentence.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		sentence TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_created_at ON embeddings(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SentenceKey returns the stable storage key for a sentence.
func SentenceKey(sentence string) string {
	hash := sha256.Sum256([]byte(sentence))
	return "sent:" + hex.EncodeToString(hash[:])
}

// GetEmbeddings returns the stored embeddings for the given sentences. Sentences
// without a stored embedding are absent from the result.
func (s *SQLiteStore) GetEmbeddings(ctx context.Context, sentences []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(sentences))
	for start := 0; start < len(sentences); start += maxParams {
		end := min(start+maxParams, len(sentences))
		chunk := sentences[start:end]

		args := make([]interface{}, len(chunk))
		for i, sentence := range chunk {
			args[i] = SentenceKey(sentence)
		}
		query := `SELECT sentence, dimensions, vector FROM embeddings WHERE key IN (?` +
			strings.Repeat(",?", len(chunk)-1) + `)`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var sentence string
			var dims int
			var blob []byte
			if err := rows.Scan(&sentence, &dims, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			vec, err := decodeVector(blob, dims)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("embedding for %q: %w", sentence, err)
			}
			out[sentence] = vec
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// PutEmbeddings inserts or replaces embeddings in one transaction.
func (s *SQLiteStore) PutEmbeddings(ctx context.Context, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (key, sentence, dimensions, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for sentence, vec := range embeddings {
		if _, err := stmt.ExecContext(ctx, SentenceKey(sentence), sentence, len(vec), encodeVector(vec), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of stored embeddings.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n)
	return n, err
}

// Clear deletes every stored embedding.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM embeddings")
	return err
}

// DiskUsage returns the bytes used by the database files.
func (s *SQLiteStore) DiskUsage() (int64, error) {
	return DatabaseBytes(s.path)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(blob), 4*dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
