package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"earthgazer/internal/catalog"
	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

func rowString(row catalog.Row, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func rowFloat(row catalog.Row, key string) (float64, bool, error) {
	switch v := row[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func rowTime(row catalog.Row, key string) (time.Time, error) {
	switch v := row[key].(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999 MST", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%s: unrecognized timestamp %q", key, v)
	case nil:
		return time.Time{}, fmt.Errorf("%s is missing", key)
	default:
		return time.Time{}, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// captureFromRow maps one catalog row onto a new capture for platformName.
func captureFromRow(platformName string, row catalog.Row) (*store.Capture, error) {
	c := &store.Capture{
		MainID:      rowString(row, "main_id"),
		SecondaryID: rowString(row, "secondary_id"),
		MissionID:   rowString(row, "mission_id"),
		Platform:    platformName,
		BaseURL:     strings.TrimRight(rowString(row, "base_url"), "/"),
		MGRSTile:    rowString(row, "mgrs_tile"),
		WRSPath:     rowString(row, "wrs_path"),
		WRSRow:      rowString(row, "wrs_row"),
		DataType:    rowString(row, "data_type"),
		Status:      store.CaptureCatalogImported,
	}
	if c.MainID == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "map row", "main_id is missing", nil)
	}
	if c.BaseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "map row", c.MainID+" has no base_url", nil)
	}
	sensed, err := rowTime(row, "sensing_time")
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "map row", c.MainID, err)
	}
	c.SensingTime = sensed

	bounds := []struct {
		key  string
		dest *float64
	}{
		{"north_lat", &c.NorthLat},
		{"south_lat", &c.SouthLat},
		{"west_lon", &c.WestLon},
		{"east_lon", &c.EastLon},
	}
	for _, b := range bounds {
		value, ok, err := rowFloat(row, b.key)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "map row", c.MainID, err)
		}
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "ingest", "map row", fmt.Sprintf("%s has no %s", c.MainID, b.key), nil)
		}
		*b.dest = value
	}

	cloud, ok, err := rowFloat(row, "cloud_cover")
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "map row", c.MainID, err)
	}
	if ok {
		c.CloudCover = &cloud
	}
	return c, nil
}
