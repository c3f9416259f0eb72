package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/serisow/craftvid/db"
	"github.com/serisow/craftvid/script_type"
)

// PostgresStore keeps status records in the generation_status table.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Get(ctx context.Context, sceneID string, component script_type.Component) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT state, error, task_id, updated_at, version
		FROM generation_status
		WHERE scene_id = $1 AND component = $2`, sceneID, string(component))

	rec := Record{SceneID: sceneID, Component: component}
	var errJSON []byte
	err := row.Scan(&rec.State, &errJSON, &rec.TaskID, &rec.UpdatedAt, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		rec.State = StatePending
		return rec, nil
	}
	if err != nil {
		return Record{}, err
	}
	if rec.Error, err = decodeError(errJSON); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, sceneIDs []string) ([]Record, error) {
	if len(sceneIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT scene_id, component, state, error, task_id, updated_at, version
		FROM generation_status
		WHERE scene_id = ANY($1)`, sceneIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var errJSON []byte
		if err := rows.Scan(&rec.SceneID, &rec.Component, &rec.State, &errJSON, &rec.TaskID, &rec.UpdatedAt, &rec.Version); err != nil {
			return nil, err
		}
		if rec.Error, err = decodeError(errJSON); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, rec Record, expected int64) (bool, error) {
	var errJSON []byte
	if rec.Error != nil {
		var err error
		if errJSON, err = json.Marshal(rec.Error); err != nil {
			return false, fmt.Errorf("failed to encode status error: %w", err)
		}
	}

	if expected == 0 {
		tag, err := s.db.Exec(ctx, `
			INSERT INTO generation_status (scene_id, component, state, error, task_id, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, 1)
			ON CONFLICT (scene_id, component) DO NOTHING`,
			rec.SceneID, string(rec.Component), string(rec.State), errJSON, rec.TaskID, rec.UpdatedAt)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() == 1, nil
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE generation_status
		SET state = $3, error = $4, task_id = $5, updated_at = $6, version = version + 1
		WHERE scene_id = $1 AND component = $2 AND version = $7`,
		rec.SceneID, string(rec.Component), string(rec.State), errJSON, rec.TaskID, rec.UpdatedAt, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func decodeError(raw []byte) (*ErrorInfo, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var info ErrorInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode status error: %w", err)
	}
	return &info, nil
}
