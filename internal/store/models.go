package store

import "time"

// CaptureStatus represents the lifecycle of a capture through the pipeline.
type CaptureStatus string

const (
	CaptureCatalogImported    CaptureStatus = "catalog_imported"
	CaptureTracking           CaptureStatus = "tracking"
	CaptureTracked            CaptureStatus = "tracked"
	CaptureTransferring       CaptureStatus = "transferring"
	CaptureBackedUp           CaptureStatus = "backed_up"
	CaptureAssembling         CaptureStatus = "assembling"
	CaptureCompositeGenerated CaptureStatus = "composite_generated"
	CaptureTrackingError      CaptureStatus = "tracking_error"
	CaptureTransferError      CaptureStatus = "transfer_error"
	CaptureCompositeError     CaptureStatus = "composite_generation_error"
)

var allCaptureStatuses = []CaptureStatus{
	CaptureCatalogImported,
	CaptureTracking,
	CaptureTracked,
	CaptureTransferring,
	CaptureBackedUp,
	CaptureAssembling,
	CaptureCompositeGenerated,
	CaptureTrackingError,
	CaptureTransferError,
	CaptureCompositeError,
}

// CaptureStatuses returns every known capture status in lifecycle order.
func CaptureStatuses() []CaptureStatus {
	return append([]CaptureStatus(nil), allCaptureStatuses...)
}

// ParseCaptureStatus validates a user-supplied status name.
func ParseCaptureStatus(value string) (CaptureStatus, bool) {
	for _, status := range allCaptureStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// IsError reports whether the status is a terminal error state.
func (s CaptureStatus) IsError() bool {
	switch s {
	case CaptureTrackingError, CaptureTransferError, CaptureCompositeError:
		return true
	default:
		return false
	}
}

// FileStatus represents the transfer state of a file record.
type FileStatus string

const (
	FileFound         FileStatus = "found"
	FileStoring       FileStatus = "storing"
	FileStored        FileStatus = "stored"
	FileStorageFailed FileStatus = "storage_failed"
)

// ProcessingMethod records how a file came to exist.
type ProcessingMethod string

const (
	MethodTrack         ProcessingMethod = "TRACK"
	MethodBackup        ProcessingMethod = "BACKUP"
	MethodComposite     ProcessingMethod = "COMPOSITE"
	MethodConversion    ProcessingMethod = "CONVERSION"
	MethodNormalization ProcessingMethod = "NORMALIZATION"
)

// RadiometricMeasure describes what a band's pixel values quantify.
type RadiometricMeasure string

const (
	MeasureRadiance    RadiometricMeasure = "RADIANCE"
	MeasureReflectance RadiometricMeasure = "REFLECTANCE"
	MeasureDN          RadiometricMeasure = "DN"
)

// AtmosphericLevel describes the atmospheric reference of a band.
type AtmosphericLevel string

const (
	LevelTOA AtmosphericLevel = "TOA"
	LevelBOA AtmosphericLevel = "BOA"
)

// Location is a monitored geographic point with its observation window.
type Location struct {
	ID              int64
	Name            string
	Description     string
	Latitude        float64
	Longitude       float64
	Active          bool
	MonitoringStart time.Time
	MonitoringEnd   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Capture is one satellite scene as reported by the catalog.
type Capture struct {
	MainID       string
	SecondaryID  string
	MissionID    string
	Platform     string
	SensingTime  time.Time
	NorthLat     float64
	SouthLat     float64
	WestLon      float64
	EastLon      float64
	CloudCover   *float64
	BaseURL      string
	MGRSTile     string
	WRSPath      string
	WRSRow       string
	DataType     string
	Status       CaptureStatus
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contains reports whether the capture footprint covers the point.
func (c *Capture) Contains(lat, lon float64) bool {
	return lat <= c.NorthLat && lat >= c.SouthLat && lon >= c.WestLon && lon <= c.EastLon
}

// File is one per-band asset or a product derived from other files.
type File struct {
	ID                 string
	CaptureID          string
	SubID              string
	Format             string
	Method             ProcessingMethod
	SourcePath         string
	StoragePath        string
	RadiometricMeasure RadiometricMeasure
	AtmosphericLevel   AtmosphericLevel
	Status             FileStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
