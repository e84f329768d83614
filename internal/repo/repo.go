package repo

import (
	"context"
	"database/sql"
	"errors"

	"stratline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// SaveSnapshot upserts a serialized store under id, preserving created_at
// on overwrite.
func (r Repo) SaveSnapshot(ctx context.Context, id, data, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO snapshots(id,data_json,created_at,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET data_json=excluded.data_json, updated_at=excluded.updated_at`,
		id, data, now, now)
	return err
}

func (r Repo) GetSnapshot(ctx context.Context, id string) (domain.Snapshot, error) {
	var s domain.Snapshot
	err := r.DB.QueryRowContext(ctx, `SELECT id,data_json,created_at,updated_at FROM snapshots WHERE id=?`, id).
		Scan(&s.ID, &s.Data, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM snapshots WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListSnapshots(ctx context.Context) ([]domain.SnapshotInfo, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,LENGTH(data_json),created_at,updated_at FROM snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SnapshotInfo
	for rows.Next() {
		var s domain.SnapshotInfo
		if err := rows.Scan(&s.ID, &s.Bytes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// LatestEvents returns up to n most recent events, optionally filtered by
// type, entity kind, and entity id. Empty filters match everything.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
