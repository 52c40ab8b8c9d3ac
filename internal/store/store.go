// Package store keeps a history of growth analyses and the alerts raised
// from them in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an analysis or alert id is unknown.
var ErrNotFound = errors.New("not found")

// Analysis kinds.
const (
	KindNDWIScan    = "ndwi_scan"
	KindModelGrowth = "model_growth"
	KindGrowthMask  = "growth_mask"
)

// Alert states.
const (
	StatusOpen         = "open"
	StatusAcknowledged = "acknowledged"
)

// Analysis is one recorded growth measurement.
type Analysis struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
	EarlierSource string    `json:"earlier_source"`
	LaterSource   string    `json:"later_source"`
	// Threshold is the NDWI threshold selected by a scan, nil for model masks.
	Threshold     *float64 `json:"threshold,omitempty"`
	GrowthPixels  int      `json:"growth_pixels"`
	GrowthKm2     float64  `json:"growth_km2"`
	PixelAreaKm2  float64  `json:"pixel_area_km2"`
	EarlierPixels int      `json:"earlier_pixels"`
	LaterPixels   int      `json:"later_pixels"`
	OutputPath    string   `json:"output_path,omitempty"`
}

// Alert flags an analysis whose growth reached the configured threshold.
type Alert struct {
	ID             string     `json:"id"`
	AnalysisID     string     `json:"analysis_id"`
	CreatedAt      time.Time  `json:"created_at"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	GrowthKm2      float64    `json:"growth_km2"`
	Status         string     `json:"status"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// Severity grades growth against the alert threshold: "critical" at twice
// the threshold or more, "warning" otherwise.
func Severity(growthKm2, thresholdKm2 float64) string {
	if thresholdKm2 > 0 && growthKm2 >= 2*thresholdKm2 {
		return "critical"
	}
	return "warning"
}

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	earlier_source TEXT NOT NULL DEFAULT '',
	later_source   TEXT NOT NULL DEFAULT '',
	threshold      REAL,
	growth_pixels  INTEGER NOT NULL,
	growth_km2     REAL NOT NULL,
	pixel_area_km2 REAL NOT NULL,
	earlier_pixels INTEGER NOT NULL,
	later_pixels   INTEGER NOT NULL,
	output_path    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS analyses_created_at ON analyses (created_at);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	analysis_id     TEXT NOT NULL REFERENCES analyses (id),
	created_at      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	growth_km2      REAL NOT NULL,
	status          TEXT NOT NULL,
	acknowledged_at TEXT
);
CREATE INDEX IF NOT EXISTS alerts_status ON alerts (status);
`

// Store is a handle on the history database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection: SQLite serializes writers, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAnalysis inserts a. An empty ID or zero CreatedAt is filled in.
func (s *Store) RecordAnalysis(ctx context.Context, a *Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var threshold sql.NullFloat64
	if a.Threshold != nil {
		threshold = sql.NullFloat64{Float64: *a.Threshold, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, kind, created_at, earlier_source, later_source, threshold,
		                      growth_pixels, growth_km2, pixel_area_km2, earlier_pixels,
		                      later_pixels, output_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, formatTime(a.CreatedAt), a.EarlierSource, a.LaterSource, threshold,
		a.GrowthPixels, a.GrowthKm2, a.PixelAreaKm2, a.EarlierPixels, a.LaterPixels, a.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

const analysisColumns = `id, kind, created_at, earlier_source, later_source, threshold,
	growth_pixels, growth_km2, pixel_area_km2, earlier_pixels, later_pixels, output_path`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*Analysis, error) {
	var a Analysis
	var created string
	var threshold sql.NullFloat64
	err := row.Scan(&a.ID, &a.Kind, &created, &a.EarlierSource, &a.LaterSource, &threshold,
		&a.GrowthPixels, &a.GrowthKm2, &a.PixelAreaKm2, &a.EarlierPixels, &a.LaterPixels, &a.OutputPath)
	if err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if threshold.Valid {
		t := threshold.Float64
		a.Threshold = &t
	}
	return &a, nil
}

// GetAnalysis returns the analysis with id.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	return a, nil
}

// ListAnalyses returns up to limit analyses, newest first. limit <= 0 means 50.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	out := make([]Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateAlert inserts an open alert. An empty ID or zero CreatedAt is filled in.
func (s *Store) CreateAlert(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = StatusOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, analysis_id, created_at, severity, message, growth_km2, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AnalysisID, formatTime(a.CreatedAt), a.Severity, a.Message, a.GrowthKm2, a.Status)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

const alertColumns = `id, analysis_id, created_at, severity, message, growth_km2, status, acknowledged_at`

func scanAlert(row scanner) (*Alert, error) {
	var a Alert
	var created string
	var acked sql.NullString
	err := row.Scan(&a.ID, &a.AnalysisID, &created, &a.Severity, &a.Message, &a.GrowthKm2, &a.Status, &acked)
	if err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if acked.Valid {
		t, err := parseTime(acked.String)
		if err != nil {
			return nil, err
		}
		a.AcknowledgedAt = &t
	}
	return &a, nil
}

// ListAlerts returns alerts newest first, filtered by status when it is not
// empty.
func (s *Store) ListAlerts(ctx context.Context, status string) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	out := make([]Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AcknowledgeAlert marks the alert acknowledged and returns it. Acknowledging
// twice keeps the first timestamp.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string) (*Alert, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, acknowledged_at = ?
		WHERE id = ? AND status != ?`,
		StatusAcknowledged, formatTime(time.Now().UTC()), id, StatusAcknowledged)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return a, nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts timestamps written without the fixed-width fraction.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
