package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"earthgazer/internal/services"
)

// Default monitoring window applied when a location omits one.
var (
	DefaultMonitoringStart = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultMonitoringEnd   = time.Date(2050, 12, 31, 0, 0, 0, 0, time.UTC)
)

const locationColumns = "id, name, description, latitude, longitude, active, monitoring_start, monitoring_end, created_at, updated_at"

func scanLocation(scanner interface{ Scan(dest ...any) error }) (*Location, error) {
	var (
		loc         Location
		description sql.NullString
		active      int64
		startRaw    sql.NullString
		endRaw      sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&loc.ID,
		&loc.Name,
		&description,
		&loc.Latitude,
		&loc.Longitude,
		&active,
		&startRaw,
		&endRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	loc.Description = description.String
	loc.Active = active != 0
	loc.MonitoringStart = parseNullTime(startRaw)
	loc.MonitoringEnd = parseNullTime(endRaw)
	loc.CreatedAt = parseNullTime(createdRaw)
	loc.UpdatedAt = parseNullTime(updatedRaw)
	return &loc, nil
}

// InsertLocation stores a new monitored location and assigns its ID.
func (s *Session) InsertLocation(ctx context.Context, loc *Location) error {
	if loc == nil {
		return errors.New("location is nil")
	}
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Name == "" {
		return services.Wrap(services.ErrValidation, "store", "insert location", "name is required", nil)
	}
	if loc.MonitoringStart.IsZero() {
		loc.MonitoringStart = DefaultMonitoringStart
	}
	if loc.MonitoringEnd.IsZero() {
		loc.MonitoringEnd = DefaultMonitoringEnd
	}
	if loc.MonitoringEnd.Before(loc.MonitoringStart) {
		return services.Wrap(services.ErrValidation, "store", "insert location", "monitoring window ends before it starts", nil)
	}
	timestamp := now()
	err := s.withRetry(ctx, func() error {
		return s.queryRow(
			ctx,
			`INSERT INTO locations (
                name, description, latitude, longitude, active,
                monitoring_start, monitoring_end, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			loc.Name,
			nullableString(loc.Description),
			loc.Latitude,
			loc.Longitude,
			boolToInt(loc.Active),
			formatTime(loc.MonitoringStart),
			formatTime(loc.MonitoringEnd),
			timestamp,
			timestamp,
		).Scan(&loc.ID)
	})
	if err != nil {
		return fmt.Errorf("insert location %q: %w", loc.Name, err)
	}
	loc.CreatedAt, _ = parseTimeString(timestamp)
	loc.UpdatedAt = loc.CreatedAt
	return nil
}

// GetLocation fetches a location by name. It returns nil when absent.
func (s *Session) GetLocation(ctx context.Context, name string) (*Location, error) {
	row := s.queryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE name = ?`, strings.TrimSpace(name))
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return loc, nil
}

// ListLocations returns locations ordered by name, optionally only active ones.
func (s *Session) ListLocations(ctx context.Context, activeOnly bool) ([]*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// SetLocationActive toggles whether a location participates in ingestion.
func (s *Session) SetLocationActive(ctx context.Context, name string, active bool) error {
	res, err := s.exec(
		ctx,
		`UPDATE locations SET active = ?, updated_at = ? WHERE name = ?`,
		boolToInt(active),
		now(),
		strings.TrimSpace(name),
	)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if rowsAffected(res) == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update location", name, nil)
	}
	return nil
}

// DeleteLocation removes a location. Captures ingested for it are kept.
func (s *Session) DeleteLocation(ctx context.Context, name string) error {
	res, err := s.exec(ctx, `DELETE FROM locations WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if rowsAffected(res) == 0 {
		return services.Wrap(services.ErrNotFound, "store", "delete location", name, nil)
	}
	return nil
}
