package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"medilens.app/analysis-server/internal/report"
)

// SQLiteStore keeps analysis records in one local SQLite table keyed by
// record id. Nested structures travel as JSON columns.
type SQLiteStore struct {
	db *sql.DB

	mu          sync.Mutex
	initialized bool
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Initialize creates the schema. Safe to call more than once; it is a no-op
// after the first success.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	schema := `
    CREATE TABLE IF NOT EXISTS analysis_reports (
        id TEXT PRIMARY KEY, -- UUID
        created_at DATETIME NOT NULL,
        kind TEXT NOT NULL CHECK (kind IN ('prescription', 'scan')),
        status TEXT NOT NULL CHECK (status IN ('completed', 'degraded')),
        risk_level TEXT NOT NULL,
        safety_score INTEGER NOT NULL CHECK (safety_score BETWEEN 0 AND 100),
        source_file_json TEXT NOT NULL,
        subject_json TEXT NOT NULL,
        medications_json TEXT,
        findings_json TEXT,
        summary TEXT NOT NULL,
        patient_summary TEXT NOT NULL,
        heatmap_overlay TEXT,
        heatmap_url TEXT
    );
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.initialized = true
	return nil
}

func (s *SQLiteStore) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Put inserts or replaces one record by id.
func (s *SQLiteStore) Put(ctx context.Context, rec *report.AnalysisRecord) error {
	if !s.ready() {
		return ErrStoreUnavailable
	}

	sourceJSON, err := json.Marshal(rec.SourceFile)
	if err != nil {
		return fmt.Errorf("failed to marshal source file: %w", err)
	}
	subjectJSON, err := json.Marshal(rec.Subject)
	if err != nil {
		return fmt.Errorf("failed to marshal subject: %w", err)
	}
	var medicationsJSON, findingsJSON []byte
	if rec.Medications != nil {
		if medicationsJSON, err = json.Marshal(rec.Medications); err != nil {
			return fmt.Errorf("failed to marshal medications: %w", err)
		}
	}
	if rec.Findings != nil {
		if findingsJSON, err = json.Marshal(rec.Findings); err != nil {
			return fmt.Errorf("failed to marshal findings: %w", err)
		}
	}

	stmt, err := s.db.PrepareContext(ctx, `
        INSERT OR REPLACE INTO analysis_reports
        (id, created_at, kind, status, risk_level, safety_score,
         source_file_json, subject_json, medications_json, findings_json,
         summary, patient_summary, heatmap_overlay, heatmap_url)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare report insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), string(rec.Kind), string(rec.Status),
		string(rec.RiskLevel), rec.SafetyScore,
		string(sourceJSON), string(subjectJSON), nullableString(medicationsJSON), nullableString(findingsJSON),
		rec.Summary, rec.PatientSummary, rec.HeatmapOverlay, rec.HeatmapURL,
	)
	if err != nil {
		return fmt.Errorf("failed to execute report insert: %w", err)
	}
	return nil
}

// GetAll returns every stored record. An uninitialized store degrades to an
// empty collection so the application can still render.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]report.AnalysisRecord, error) {
	if !s.ready() {
		return []report.AnalysisRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, created_at, kind, status, risk_level, safety_score,
               source_file_json, subject_json, medications_json, findings_json,
               summary, patient_summary, heatmap_overlay, heatmap_url
        FROM analysis_reports`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var records []report.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	if records == nil {
		records = []report.AnalysisRecord{}
	}
	return records, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if !s.ready() {
		return ErrStoreUnavailable
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM analysis_reports"); err != nil {
		return fmt.Errorf("failed to clear reports: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*report.AnalysisRecord, error) {
	var rec report.AnalysisRecord
	var createdAt, kind, status, riskLevel string
	var sourceJSON, subjectJSON string
	var medicationsJSON, findingsJSON, heatmapOverlay, heatmapURL sql.NullString

	if err := rows.Scan(&rec.ID, &createdAt, &kind, &status, &riskLevel, &rec.SafetyScore,
		&sourceJSON, &subjectJSON, &medicationsJSON, &findingsJSON,
		&rec.Summary, &rec.PatientSummary, &heatmapOverlay, &heatmapURL); err != nil {
		return nil, fmt.Errorf("failed to scan report row: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for report %s: %w", rec.ID, err)
	}
	rec.CreatedAt = ts
	rec.Kind = report.Kind(kind)
	rec.Status = report.Status(status)
	rec.RiskLevel = report.RiskLevel(riskLevel)

	if err := json.Unmarshal([]byte(sourceJSON), &rec.SourceFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source file for report %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(subjectJSON), &rec.Subject); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subject for report %s: %w", rec.ID, err)
	}
	if medicationsJSON.Valid && medicationsJSON.String != "" {
		if err := json.Unmarshal([]byte(medicationsJSON.String), &rec.Medications); err != nil {
			return nil, fmt.Errorf("failed to unmarshal medications for report %s: %w", rec.ID, err)
		}
	}
	if findingsJSON.Valid && findingsJSON.String != "" {
		if err := json.Unmarshal([]byte(findingsJSON.String), &rec.Findings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal findings for report %s: %w", rec.ID, err)
		}
	}
	if heatmapOverlay.Valid {
		rec.HeatmapOverlay = heatmapOverlay.String
	}
	if heatmapURL.Valid {
		rec.HeatmapURL = heatmapURL.String
	}
	return &rec, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
