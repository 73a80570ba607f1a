package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/arcx/arcx/content"
	"github.com/ZanzyTHEbar/arcx/arcx/report"

	_ "github.com/tursodatabase/go-libsql"
)

// AttrFileTypeSig is the attribute name holding a detected content type
const AttrFileTypeSig = "TSK_FILE_TYPE_SIG"

// ConnectToDB opens a libsql database. Plain filesystem paths are turned into
// file: DSNs; libsql:// and http(s):// URLs are passed through.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn cannot be empty")
	}
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "://") {
		dsn = "file:" + dsn
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", dsn, err)
	}
	return db, nil
}

// ResolveDSN anchors a relative file DSN under caseDir. URLs, absolute
// paths and in-memory databases are returned unchanged.
func ResolveDSN(dsn, caseDir string) string {
	if dsn == "" || caseDir == "" || strings.Contains(dsn, "://") {
		return dsn
	}
	path, prefixed := strings.CutPrefix(dsn, "file:")
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "/") || filepath.IsAbs(path) {
		return dsn
	}
	resolved := filepath.Join(caseDir, path)
	if prefixed {
		return "file:" + resolved
	}
	return resolved
}

// ContentDB is the libsql-backed case content store
type ContentDB struct {
	db      *sql.DB
	caseDir string
}

// NewContentDB opens or initializes the case database. caseDir anchors the
// relative local paths of derived content.
func NewContentDB(dsn, caseDir string) (*ContentDB, error) {
	db, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}

	store := &ContentDB{db: db, caseDir: caseDir}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Content database ready", "dsn", dsn, "case_dir", caseDir)
	return store, nil
}

// init sets up the case tables
func (c *ContentDB) init() error {
	createTables := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			type INTEGER NOT NULL,
			known INTEGER NOT NULL DEFAULT 0,
			is_file INTEGER NOT NULL,
			allocated INTEGER NOT NULL DEFAULT 1,
			size INTEGER NOT NULL DEFAULT 0,
			local_path TEXT,
			unique_path TEXT,
			ctime INTEGER NOT NULL DEFAULT 0,
			crtime INTEGER NOT NULL DEFAULT 0,
			atime INTEGER NOT NULL DEFAULT 0,
			mtime INTEGER NOT NULL DEFAULT 0,
			module TEXT,
			digest TEXT,
			time_stamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS files_parent_idx ON files (parent_id)`,
		`CREATE TABLE IF NOT EXISTS attributes (
			item_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (item_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			module TEXT,
			value TEXT,
			time_stamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, query := range createTables {
		if _, err := c.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize content schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (c *ContentDB) Close() error {
	return c.db.Close()
}

// CaseDir returns the directory derived local paths are relative to
func (c *ContentDB) CaseDir() string {
	return c.caseDir
}

// AddLocalFile registers an evidence file from the local filesystem as a root
// item. Adding a path that is already a root returns the existing item.
func (c *ContentDB) AddLocalFile(ctx context.Context, absPath string) (content.Item, error) {
	absPath, err := filepath.Abs(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", absPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat evidence file %s: %w", absPath, err)
	}

	existing, err := c.scanFile(c.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE parent_id = 0 AND local_path = ? ORDER BY id ASC LIMIT 1", absPath))
	switch {
	case err == nil:
		slog.Debug("Evidence file already in case", "id", existing.ID(), "path", absPath)
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to look up local file %s: %w", absPath, err)
	}

	name := filepath.Base(absPath)
	uniquePath := "/" + name
	var id int64
	err = c.db.QueryRowContext(ctx,
		`INSERT INTO files (parent_id, name, type, is_file, allocated, size, local_path, unique_path, mtime)
		 VALUES (0, ?, ?, ?, 1, ?, ?, ?, ?) RETURNING id`,
		name, int(content.FileTypeLocal), boolToInt(!info.IsDir()), info.Size(), absPath, uniquePath, info.ModTime().Unix(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert local file %s: %w", absPath, err)
	}

	slog.Debug("Added local evidence file", "id", id, "path", absPath)
	return NewFile(FileOptions{
		ID:         id,
		Name:       name,
		Size:       info.Size(),
		Type:       content.FileTypeLocal,
		IsFile:     !info.IsDir(),
		Allocated:  true,
		UniquePath: uniquePath,
		LocalPath:  absPath,
		CaseDir:    c.caseDir,
	}), nil
}

// AddDerivedContent implements ContentStore.AddDerivedContent
func (c *ContentDB) AddDerivedContent(ctx context.Context, d DerivedContent) (content.Item, error) {
	if d.Name == "" {
		return nil, ErrEmptyName
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	var parentUnique string
	err = tx.QueryRowContext(ctx, "SELECT unique_path FROM files WHERE id = ?", d.ParentID).Scan(&parentUnique)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParent, d.ParentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up parent %d: %w", d.ParentID, err)
	}

	uniquePath := strings.TrimSuffix(parentUnique, "/") + "/" + d.Name
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO files (parent_id, name, type, is_file, allocated, size, local_path, unique_path,
			ctime, crtime, atime, mtime, module, digest)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		d.ParentID, d.Name, int(content.FileTypeDerived), boolToInt(d.IsFile), d.Size, d.LocalRelPath, uniquePath,
		d.Ctime, d.Crtime, d.Atime, d.Mtime, d.Module, d.Digest,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert derived content %s: %w", d.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	f := NewFile(FileOptions{
		ID:         id,
		Name:       d.Name,
		ParentID:   d.ParentID,
		Size:       d.Size,
		Type:       content.FileTypeDerived,
		IsFile:     d.IsFile,
		Allocated:  true,
		UniquePath: uniquePath,
		LocalPath:  d.LocalRelPath,
		CaseDir:    c.caseDir,
	})
	f.Digest = d.Digest
	return f, nil
}

// HasChildren implements ContentStore.HasChildren
func (c *ContentDB) HasChildren(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM files WHERE parent_id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check children of %d: %w", id, err)
	}
	return exists, nil
}

// FileTypeSignature implements ContentStore.FileTypeSignature
func (c *ContentDB) FileTypeSignature(ctx context.Context, id int64) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM attributes WHERE item_id = ? AND name = ?", id, AttrFileTypeSig).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read file type of %d: %w", id, err)
	}
	return value, true, nil
}

// SetFileTypeSignature records a detected content type for an item
func (c *ContentDB) SetFileTypeSignature(ctx context.Context, id int64, mimeType string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO attributes (item_id, name, value) VALUES (?, ?, ?)
		 ON CONFLICT (item_id, name) DO UPDATE SET value = excluded.value`,
		id, AttrFileTypeSig, mimeType)
	if err != nil {
		return fmt.Errorf("failed to set file type of %d: %w", id, err)
	}
	return nil
}

// AddArtifact implements ContentStore.AddArtifact
func (c *ContentDB) AddArtifact(ctx context.Context, a report.Artifact) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO artifacts (item_id, type, module, value) VALUES (?, ?, ?, ?)",
		a.ItemID, string(a.Type), a.Module, a.Value)
	if err != nil {
		return fmt.Errorf("failed to insert artifact for %d: %w", a.ItemID, err)
	}
	return nil
}

// Artifacts returns every artifact attached to an item
func (c *ContentDB) Artifacts(ctx context.Context, itemID int64) ([]report.Artifact, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT item_id, type, module, value FROM artifacts WHERE item_id = ? ORDER BY id ASC", itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []report.Artifact
	for rows.Next() {
		var a report.Artifact
		var artifactType string
		if err := rows.Scan(&a.ItemID, &artifactType, &a.Module, &a.Value); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Type = report.ArtifactType(artifactType)
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("artifact iteration error: %w", err)
	}
	return artifacts, nil
}

const fileColumns = `id, parent_id, name, type, known, is_file, allocated, size,
	COALESCE(local_path, ''), COALESCE(unique_path, ''), COALESCE(digest, '')`

// Children returns the direct children of an item in insertion order
func (c *ContentDB) Children(ctx context.Context, parentID int64) ([]*File, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE parent_id = ? ORDER BY id ASC", parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children of %d: %w", parentID, err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := c.scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

// SetKnown records a hash-set verdict for an item
func (c *ContentDB) SetKnown(ctx context.Context, id int64, known content.KnownStatus) error {
	_, err := c.db.ExecContext(ctx, "UPDATE files SET known = ? WHERE id = ?", int(known), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *ContentDB) scanFile(row rowScanner) (*File, error) {
	var (
		o         FileOptions
		fileType  int
		known     int
		isFile    bool
		allocated bool
		digest    string
	)
	if err := row.Scan(&o.ID, &o.ParentID, &o.Name, &fileType, &known, &isFile, &allocated, &o.Size,
		&o.LocalPath, &o.UniquePath, &digest); err != nil {
		return nil, err
	}
	o.Type = content.FileType(fileType)
	o.Known = content.KnownStatus(known)
	o.IsFile = isFile
	o.Allocated = allocated
	o.CaseDir = c.caseDir

	f := NewFile(o)
	f.Digest = digest
	return f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
