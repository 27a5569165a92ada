package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const captureColumns = "main_id, secondary_id, mission_id, platform, sensing_time, north_lat, south_lat, west_lon, east_lon, cloud_cover, base_url, mgrs_tile, wrs_path, wrs_row, data_type, status, error_kind, error_message, created_at, updated_at"

func scanCapture(scanner interface{ Scan(dest ...any) error }) (*Capture, error) {
	var (
		c            Capture
		secondaryID  sql.NullString
		missionID    sql.NullString
		sensingRaw   sql.NullString
		cloudCover   sql.NullFloat64
		mgrsTile     sql.NullString
		wrsPath      sql.NullString
		wrsRow       sql.NullString
		dataType     sql.NullString
		statusStr    string
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&c.MainID,
		&secondaryID,
		&missionID,
		&c.Platform,
		&sensingRaw,
		&c.NorthLat,
		&c.SouthLat,
		&c.WestLon,
		&c.EastLon,
		&cloudCover,
		&c.BaseURL,
		&mgrsTile,
		&wrsPath,
		&wrsRow,
		&dataType,
		&statusStr,
		&errorKind,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	c.SecondaryID = secondaryID.String
	c.MissionID = missionID.String
	c.SensingTime = parseNullTime(sensingRaw)
	if cloudCover.Valid {
		value := cloudCover.Float64
		c.CloudCover = &value
	}
	c.MGRSTile = mgrsTile.String
	c.WRSPath = wrsPath.String
	c.WRSRow = wrsRow.String
	c.DataType = dataType.String
	c.Status = CaptureStatus(statusStr)
	c.ErrorKind = errorKind.String
	c.ErrorMessage = errorMessage.String
	c.CreatedAt = parseNullTime(createdRaw)
	c.UpdatedAt = parseNullTime(updatedRaw)
	return &c, nil
}

// InsertCapture stores a capture unless one with the same main ID already
// exists. It reports whether a row was inserted.
func (s *Session) InsertCapture(ctx context.Context, c *Capture) (bool, error) {
	if c == nil {
		return false, errors.New("capture is nil")
	}
	if strings.TrimSpace(c.MainID) == "" {
		return false, errors.New("capture main_id is required")
	}
	if c.Status == "" {
		c.Status = CaptureCatalogImported
	}
	timestamp := now()
	res, err := s.exec(
		ctx,
		`INSERT INTO captures (`+captureColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (main_id) DO NOTHING`,
		c.MainID,
		nullableString(c.SecondaryID),
		nullableString(c.MissionID),
		c.Platform,
		formatTime(c.SensingTime),
		c.NorthLat,
		c.SouthLat,
		c.WestLon,
		c.EastLon,
		nullableFloat(c.CloudCover),
		c.BaseURL,
		nullableString(c.MGRSTile),
		nullableString(c.WRSPath),
		nullableString(c.WRSRow),
		nullableString(c.DataType),
		c.Status,
		nullableString(c.ErrorKind),
		nullableString(c.ErrorMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert capture %s: %w", c.MainID, err)
	}
	return rowsAffected(res) > 0, nil
}

// GetCapture fetches a capture by main ID. It returns nil when absent.
func (s *Session) GetCapture(ctx context.Context, mainID string) (*Capture, error) {
	row := s.queryRow(ctx, `SELECT `+captureColumns+` FROM captures WHERE main_id = ?`, mainID)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get capture: %w", err)
	}
	return c, nil
}

// CaptureExists reports whether a capture with the main ID is stored.
func (s *Session) CaptureExists(ctx context.Context, mainID string) (bool, error) {
	var count int
	if err := s.queryRow(ctx, `SELECT COUNT(1) FROM captures WHERE main_id = ?`, mainID).Scan(&count); err != nil {
		return false, fmt.Errorf("check capture: %w", err)
	}
	return count > 0, nil
}

// CaptureFilter narrows ListCaptures. Zero values match everything.
type CaptureFilter struct {
	Statuses   []CaptureStatus
	Platform   string
	MainIDs    []string
	SensedFrom time.Time
	SensedTo   time.Time
	Limit      int
}

// ListCaptures returns captures ordered by sensing time.
func (s *Session) ListCaptures(ctx context.Context, filter CaptureFilter) ([]*Capture, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, filter.Platform)
	}
	if len(filter.MainIDs) > 0 {
		where = append(where, "main_id IN ("+makePlaceholders(len(filter.MainIDs))+")")
		for _, id := range filter.MainIDs {
			args = append(args, id)
		}
	}
	if !filter.SensedFrom.IsZero() {
		where = append(where, "sensing_time >= ?")
		args = append(args, formatTime(filter.SensedFrom))
	}
	if !filter.SensedTo.IsZero() {
		where = append(where, "sensing_time <= ?")
		args = append(args, formatTime(filter.SensedTo))
	}

	query := `SELECT ` + captureColumns + ` FROM captures`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sensing_time, main_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// LatestSensingTime returns the most recent sensing time stored for the
// platform among captures whose footprint contains the point.
func (s *Session) LatestSensingTime(ctx context.Context, platform string, lat, lon float64) (time.Time, bool, error) {
	var latest sql.NullString
	err := s.queryRow(
		ctx,
		`SELECT MAX(sensing_time) FROM captures
         WHERE platform = ? AND north_lat >= ? AND south_lat <= ? AND west_lon <= ? AND east_lon >= ?`,
		platform, lat, lat, lon, lon,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest sensing time: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, false, nil
	}
	t, err := parseTimeString(latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse sensing time %q: %w", latest.String, err)
	}
	return t, true, nil
}

// SetCaptureStatus moves a capture to status and clears any recorded error.
func (s *Session) SetCaptureStatus(ctx context.Context, mainID string, status CaptureStatus) error {
	if _, err := s.exec(
		ctx,
		`UPDATE captures SET status = ?, error_kind = NULL, error_message = NULL, updated_at = ? WHERE main_id = ?`,
		status, now(), mainID,
	); err != nil {
		return fmt.Errorf("update capture status: %w", err)
	}
	return nil
}

// TransitionCapture moves a capture to status only when its current status is
// one of from. It reports whether the transition happened.
func (s *Session) TransitionCapture(ctx context.Context, mainID string, to CaptureStatus, from ...CaptureStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition requires at least one source status")
	}
	args := []any{to, now(), mainID}
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.exec(
		ctx,
		`UPDATE captures SET status = ?, error_kind = NULL, error_message = NULL, updated_at = ?
         WHERE main_id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition capture: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// FailCapture moves a capture to an error status with diagnostic detail.
func (s *Session) FailCapture(ctx context.Context, mainID string, status CaptureStatus, kind, message string) error {
	if !status.IsError() {
		return fmt.Errorf("status %q is not an error status", status)
	}
	if _, err := s.exec(
		ctx,
		`UPDATE captures SET status = ?, error_kind = ?, error_message = ?, updated_at = ? WHERE main_id = ?`,
		status, nullableString(kind), nullableString(message), now(), mainID,
	); err != nil {
		return fmt.Errorf("fail capture: %w", err)
	}
	return nil
}

// CaptureStatusCounts returns the number of captures per status.
func (s *Session) CaptureStatusCounts(ctx context.Context) (map[CaptureStatus]int, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(1) FROM captures GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count captures: %w", err)
	}
	defer rows.Close()

	counts := make(map[CaptureStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan capture count: %w", err)
		}
		counts[CaptureStatus(status)] = count
	}
	return counts, rows.Err()
}
