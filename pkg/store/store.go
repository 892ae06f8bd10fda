// Package store persists uploaded file attachments as an opaque byte-blob
// store keyed by an integer descriptor.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
	_ "modernc.org/sqlite"
)

// CompressionThreshold is the minimum blob size to consider LZ4 compression
// at rest (512 bytes).
const CompressionThreshold = 512

var (
	// ErrBlobNotFound indicates the descriptor names no stored blob.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrEmptyBlob indicates the descriptor was reserved but never filled.
	ErrEmptyBlob = errors.New("blob has no data")
	// ErrCorruptBlob indicates the stored compressed data failed to expand.
	ErrCorruptBlob = errors.New("stored blob is corrupt")
)

const schema = `
CREATE TABLE IF NOT EXISTS attachments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	token      BLOB NOT NULL,
	filename   TEXT NOT NULL,
	sender     TEXT NOT NULL,
	data       BLOB,
	compressed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
`

// BlobStore is a SQLite-backed attachment store. Descriptors are the
// auto-increment row IDs; each row additionally carries the random 128-bit
// token announced to clients.
type BlobStore struct {
	conn *sql.DB
}

// Open opens (creating if needed) the attachment store at the given path.
// Pass ":memory:" for an ephemeral store.
func Open(path string) (*BlobStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment store: %w", err)
	}

	// Single writer; the control loop is the only caller.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &BlobStore{conn: conn}, nil
}

// Close closes the underlying database.
func (s *BlobStore) Close() error {
	return s.conn.Close()
}

// Put stores a blob and returns its descriptor and minted 128-bit token.
func (s *BlobStore) Put(filename, sender string, data []byte) (int64, [16]byte, error) {
	var token [16]byte
	if _, err := io.ReadFull(rand.Reader, token[:]); err != nil {
		return 0, token, fmt.Errorf("failed to mint attachment token: %w", err)
	}

	stored, compressed := compress(data)

	res, err := s.conn.Exec(
		`INSERT INTO attachments (token, filename, sender, data, compressed, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		token[:], filename, sender, stored, compressed, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, token, fmt.Errorf("failed to store blob: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, token, err
	}
	return id, token, nil
}

// Reserve mints a descriptor and token without blob data, for announcements
// whose bytes arrive in a later frame (or never, for legacy inline file
// references).
func (s *BlobStore) Reserve(filename, sender string) (int64, [16]byte, error) {
	var token [16]byte
	if _, err := io.ReadFull(rand.Reader, token[:]); err != nil {
		return 0, token, fmt.Errorf("failed to mint attachment token: %w", err)
	}

	res, err := s.conn.Exec(
		`INSERT INTO attachments (token, filename, sender, data, compressed, created_at) VALUES (?, ?, ?, NULL, 0, ?)`,
		token[:], filename, sender, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, token, fmt.Errorf("failed to reserve descriptor: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, token, err
	}
	return id, token, nil
}

// Fill attaches blob data to a previously reserved descriptor.
func (s *BlobStore) Fill(descriptor int64, data []byte) error {
	stored, compressed := compress(data)

	res, err := s.conn.Exec(
		`UPDATE attachments SET data = ?, compressed = ? WHERE id = ?`,
		stored, compressed, descriptor,
	)
	if err != nil {
		return fmt.Errorf("failed to fill blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBlobNotFound
	}
	return nil
}

// Get returns the blob stored under the descriptor, decompressing if needed.
func (s *BlobStore) Get(descriptor int64) ([]byte, error) {
	var data []byte
	var compressed bool
	err := s.conn.QueryRow(
		`SELECT data, compressed FROM attachments WHERE id = ?`, descriptor,
	).Scan(&data, &compressed)
	if err == sql.ErrNoRows {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrEmptyBlob
	}
	if !compressed {
		return data, nil
	}
	return decompress(data)
}

// Filename returns the filename recorded for the descriptor.
func (s *BlobStore) Filename(descriptor int64) (string, error) {
	var filename string
	err := s.conn.QueryRow(
		`SELECT filename FROM attachments WHERE id = ?`, descriptor,
	).Scan(&filename)
	if err == sql.ErrNoRows {
		return "", ErrBlobNotFound
	}
	return filename, err
}

// Count returns the number of stored attachments.
func (s *BlobStore) Count() (int64, error) {
	var n int64
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM attachments`).Scan(&n)
	return n, err
}

// compress LZ4-compresses data with a 4-byte uncompressed-size prefix when
// the blob is large enough and compression actually saves space. Returns the
// bytes to store and whether they are compressed.
func compress(data []byte) ([]byte, bool) {
	if len(data) < CompressionThreshold {
		return data, false
	}

	bound := lz4.CompressBlockBound(len(data))
	buf := make([]byte, 4+bound)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))

	n, err := lz4.CompressBlock(data, buf[4:], nil)
	if err != nil || n == 0 || 4+n >= len(data) {
		return data, false
	}
	return buf[:4+n], true
}

func decompress(stored []byte) ([]byte, error) {
	if len(stored) < 4 {
		return nil, ErrCorruptBlob
	}
	size := binary.BigEndian.Uint32(stored[:4])
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(stored[4:], out)
	if err != nil || n != int(size) {
		return nil, ErrCorruptBlob
	}
	return out, nil
}
