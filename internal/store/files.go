package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var fileColumnNames = []string{
	"id", "capture_id", "sub_id", "format", "processing_method", "source_path", "storage_path",
	"radiometric_measure", "atmospheric_reference_level", "status", "created_at", "updated_at",
}

var fileColumns = strings.Join(fileColumnNames, ", ")

func fileColumnsWith(alias string) string {
	cols := make([]string, len(fileColumnNames))
	for i, name := range fileColumnNames {
		cols[i] = alias + "." + name
	}
	return strings.Join(cols, ", ")
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (*File, error) {
	var (
		f           File
		method      string
		storagePath sql.NullString
		measure     sql.NullString
		level       sql.NullString
		status      string
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&f.ID,
		&f.CaptureID,
		&f.SubID,
		&f.Format,
		&method,
		&f.SourcePath,
		&storagePath,
		&measure,
		&level,
		&status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	f.Method = ProcessingMethod(method)
	f.StoragePath = storagePath.String
	f.RadiometricMeasure = RadiometricMeasure(measure.String)
	f.AtmosphericLevel = AtmosphericLevel(level.String)
	f.Status = FileStatus(status)
	f.CreatedAt = parseNullTime(createdRaw)
	f.UpdatedAt = parseNullTime(updatedRaw)
	return &f, nil
}

func collectFiles(rows *sql.Rows) ([]*File, error) {
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// InsertFile stores a file record and one lineage edge per source ID. A TRACK
// file that collides with an existing (capture, sub_id) pair is not inserted
// and InsertFile reports false. Call it inside WithTx so the file and its
// edges land together.
func (s *Session) InsertFile(ctx context.Context, f *File, sourceIDs ...string) (bool, error) {
	if f == nil {
		return false, errors.New("file is nil")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = FileFound
	}
	for _, sourceID := range sourceIDs {
		if sourceID == f.ID {
			return false, fmt.Errorf("file %s cannot derive from itself", f.ID)
		}
	}
	timestamp := now()
	res, err := s.exec(
		ctx,
		`INSERT INTO files (`+fileColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT DO NOTHING`,
		f.ID,
		f.CaptureID,
		f.SubID,
		f.Format,
		f.Method,
		f.SourcePath,
		nullableString(f.StoragePath),
		nullableString(string(f.RadiometricMeasure)),
		nullableString(string(f.AtmosphericLevel)),
		f.Status,
		timestamp,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert file %s/%s: %w", f.CaptureID, f.SubID, err)
	}
	if rowsAffected(res) == 0 {
		return false, nil
	}
	for _, sourceID := range sourceIDs {
		if err := s.AddFileSource(ctx, f.ID, sourceID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AddFileSource records that fileID was derived from sourceID.
func (s *Session) AddFileSource(ctx context.Context, fileID, sourceID string) error {
	if fileID == sourceID {
		return fmt.Errorf("file %s cannot derive from itself", fileID)
	}
	if _, err := s.exec(
		ctx,
		`INSERT INTO file_sources (file_id, source_file_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		fileID, sourceID,
	); err != nil {
		return fmt.Errorf("insert file source %s -> %s: %w", fileID, sourceID, err)
	}
	return nil
}

// GetFile fetches a file by ID. It returns nil when absent.
func (s *Session) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.queryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// FileFilter narrows ListFiles. Zero values match everything.
type FileFilter struct {
	CaptureID   string
	Methods     []ProcessingMethod
	SubID       string
	StoragePath string
	Statuses    []FileStatus
}

// ListFiles returns files ordered by capture and sub ID.
func (s *Session) ListFiles(ctx context.Context, filter FileFilter) ([]*File, error) {
	var (
		where []string
		args  []any
	)
	if filter.CaptureID != "" {
		where = append(where, "capture_id = ?")
		args = append(args, filter.CaptureID)
	}
	if len(filter.Methods) > 0 {
		where = append(where, "processing_method IN ("+makePlaceholders(len(filter.Methods))+")")
		for _, method := range filter.Methods {
			args = append(args, method)
		}
	}
	if filter.SubID != "" {
		where = append(where, "sub_id = ?")
		args = append(args, filter.SubID)
	}
	if filter.StoragePath != "" {
		where = append(where, "storage_path = ?")
		args = append(args, filter.StoragePath)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query := `SELECT ` + fileColumns + ` FROM files`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY capture_id, sub_id, processing_method, created_at"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return collectFiles(rows)
}

// CountFiles returns the number of files of one processing method for a capture.
func (s *Session) CountFiles(ctx context.Context, captureID string, method ProcessingMethod) (int, error) {
	var count int
	if err := s.queryRow(
		ctx,
		`SELECT COUNT(1) FROM files WHERE capture_id = ? AND processing_method = ?`,
		captureID, method,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

// DeleteFile removes a file. Lineage edges touching it are removed with it.
func (s *Session) DeleteFile(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// UpdateFileStatus sets a file's status. A non-empty storagePath replaces the
// stored one.
func (s *Session) UpdateFileStatus(ctx context.Context, id string, status FileStatus, storagePath string) error {
	if _, err := s.exec(
		ctx,
		`UPDATE files SET status = ?, storage_path = COALESCE(?, storage_path), updated_at = ? WHERE id = ?`,
		status, nullableString(storagePath), now(), id,
	); err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}

// DerivedFiles returns files of the given method that list sourceID as a source.
func (s *Session) DerivedFiles(ctx context.Context, sourceID string, method ProcessingMethod) ([]*File, error) {
	rows, err := s.query(
		ctx,
		`SELECT `+fileColumnsWith("f")+` FROM files f
         JOIN file_sources e ON e.file_id = f.id
         WHERE e.source_file_id = ? AND f.processing_method = ?
         ORDER BY f.created_at`,
		sourceID, method,
	)
	if err != nil {
		return nil, fmt.Errorf("derived files: %w", err)
	}
	return collectFiles(rows)
}

// SourceFiles returns the files fileID was derived from.
func (s *Session) SourceFiles(ctx context.Context, fileID string) ([]*File, error) {
	rows, err := s.query(
		ctx,
		`SELECT `+fileColumnsWith("f")+` FROM files f
         JOIN file_sources e ON e.source_file_id = f.id
         WHERE e.file_id = ?
         ORDER BY f.sub_id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("source files: %w", err)
	}
	return collectFiles(rows)
}

// OrphanedFiles returns derived files of a capture that have lost every
// lineage edge, which happens when their source was force re-tracked.
func (s *Session) OrphanedFiles(ctx context.Context, captureID, subID string, method ProcessingMethod) ([]*File, error) {
	rows, err := s.query(
		ctx,
		`SELECT `+fileColumnsWith("f")+` FROM files f
         WHERE f.capture_id = ? AND f.sub_id = ? AND f.processing_method = ?
           AND NOT EXISTS (SELECT 1 FROM file_sources e WHERE e.file_id = f.id)
         ORDER BY f.created_at`,
		captureID, subID, method,
	)
	if err != nil {
		return nil, fmt.Errorf("orphaned files: %w", err)
	}
	return collectFiles(rows)
}
