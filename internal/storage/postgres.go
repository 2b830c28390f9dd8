/**
 * PostgreSQL Client for the OCR worker
 *
 * Persists recognition jobs: status, the source image URI, the detector
 * type, and the normalized OCR document as JSONB once a job completes.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/ocr"
	"github.com/lib/pq"
)

// Job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrJobNotFound is returned when no job exists for an ID
var ErrJobNotFound = stderrors.New("job not found")

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	ImageURI         string
	DetectorType     string
	Document         *ocr.Document
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// Job is the stored view of a recognition job
type Job struct {
	ID               string                 `json:"id"`
	Status           string                 `json:"status"`
	ImageURI         string                 `json:"imageUri"`
	DetectorType     string                 `json:"detectorType"`
	Document         *ocr.Document          `json:"document,omitempty"`
	ProcessingTimeMs int64                  `json:"processingTimeMs,omitempty"`
	ErrorCode        string                 `json:"errorCode,omitempty"`
	ErrorMessage     string                 `json:"errorMessage,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// JobStore persists recognition jobs
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
	GetJobByID(ctx context.Context, jobID string) (*Job, error)
}

// Validate checks the fields every update must carry
func (u *JobUpdate) Validate() error {
	if u == nil {
		return fmt.Errorf("update is required")
	}
	if u.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	switch u.Status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return nil
	case "":
		return fmt.Errorf("status is required")
	default:
		return fmt.Errorf("unknown job status: %s", u.Status)
	}
}

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS ocr;
	CREATE TABLE IF NOT EXISTS ocr.recognition_jobs (
		id                 TEXT PRIMARY KEY,
		status             TEXT NOT NULL,
		image_uri          TEXT,
		detector_type      TEXT,
		document           JSONB,
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS recognition_jobs_status_idx ON ocr.recognition_jobs (status);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a new PostgreSQL client and ensures the schema
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	connector, err := pq.NewConnector(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts a job row. Fields left empty in the update keep
// their stored values.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	var err error
	var metadataJSON []byte
	if len(update.Metadata) > 0 {
		metadataJSON, err = json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	var documentJSON []byte
	if update.Document != nil {
		documentJSON, err = json.Marshal(update.Document)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		documentJSON = sanitizeJSONForPostgres(documentJSON)
	}

	query := `
		INSERT INTO ocr.recognition_jobs (
			id, status, image_uri, detector_type, document,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb,
			NULLIF($6, 0), NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			image_uri = COALESCE(EXCLUDED.image_uri, ocr.recognition_jobs.image_uri),
			detector_type = COALESCE(EXCLUDED.detector_type, ocr.recognition_jobs.detector_type),
			document = COALESCE(EXCLUDED.document, ocr.recognition_jobs.document),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocr.recognition_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = ocr.recognition_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,               // $1
		update.Status,              // $2
		update.ImageURI,            // $3
		update.DetectorType,        // $4
		nullableJSON(documentJSON), // $5
		update.ProcessingTimeMs,    // $6
		update.ErrorCode,           // $7
		update.ErrorMessage,        // $8
		nullableJSON(metadataJSON), // $9
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, status, image_uri, detector_type, document,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		FROM ocr.recognition_jobs
		WHERE id = $1
	`

	var (
		job                        Job
		imageURI, detectorType     sql.NullString
		errorCode, errorMessage    sql.NullString
		processingTimeMs           sql.NullInt64
		documentJSON, metadataJSON []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &imageURI, &detectorType, &documentJSON,
		&processingTimeMs, &errorCode, &errorMessage, &metadataJSON,
		&job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.ImageURI = imageURI.String
	job.DetectorType = detectorType.String
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	job.ProcessingTimeMs = processingTimeMs.Int64

	if len(documentJSON) > 0 {
		var doc ocr.Document
		if err := json.Unmarshal(documentJSON, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
		job.Document = &doc
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
