package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corebank/ledger/pkg/eventsourcing"
)

// ProjectionStatusStore implements eventsourcing.ProjectionStatusStore.
type ProjectionStatusStore struct {
	db *sql.DB
}

// NewProjectionStatusStore creates a SQLite-based projection status store.
func NewProjectionStatusStore(db *sql.DB) (*ProjectionStatusStore, error) {
	store := &ProjectionStatusStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *ProjectionStatusStore) ensureTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projection_status (
			projection_name TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			message TEXT,
			updated_at INTEGER NOT NULL,
			progress_json TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create projection_status table: %w", err)
	}
	return nil
}

// Save saves the projection status.
func (s *ProjectionStatusStore) Save(state *eventsourcing.ProjectionState) error {
	var progressJSON sql.NullString
	if state.Progress != nil {
		data, err := json.Marshal(state.Progress)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		progressJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO projection_status (projection_name, status, message, updated_at, progress_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(projection_name) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			updated_at = excluded.updated_at,
			progress_json = excluded.progress_json`,
		state.ProjectionName, string(state.Status), state.Message, state.UpdatedAt.UnixNano(), progressJSON,
	)
	if err != nil {
		return fmt.Errorf("save projection status: %w", err)
	}
	return nil
}

// Load loads the projection status, defaulting to READY when none recorded.
func (s *ProjectionStatusStore) Load(projectionName string) (*eventsourcing.ProjectionState, error) {
	var (
		status       string
		message      sql.NullString
		updatedAt    int64
		progressJSON sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT status, message, updated_at, progress_json
		FROM projection_status
		WHERE projection_name = ?`,
		projectionName,
	).Scan(&status, &message, &updatedAt, &progressJSON)

	if err == sql.ErrNoRows {
		return &eventsourcing.ProjectionState{
			ProjectionName: projectionName,
			Status:         eventsourcing.ProjectionStatusReady,
			UpdatedAt:      eventsourcing.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load projection status: %w", err)
	}

	state := &eventsourcing.ProjectionState{
		ProjectionName: projectionName,
		Status:         eventsourcing.ProjectionStatus(status),
		UpdatedAt:      time.Unix(0, updatedAt).UTC(),
	}
	if message.Valid {
		state.Message = message.String
	}
	if progressJSON.Valid && progressJSON.String != "" {
		var progress eventsourcing.RebuildProgress
		if err := json.Unmarshal([]byte(progressJSON.String), &progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
		state.Progress = &progress
	}
	return state, nil
}
