package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

// ErrPlayerNotFound is returned when no data is stored for a player.
var ErrPlayerNotFound = errors.New("player data not found")

// Keys RecordJoin maintains in PlayerData.Data.
const (
	KeyFirstJoin = "first_join"
	KeyJoins     = "joins"
)

// PlayerData is the flat data kept for one player.
type PlayerData struct {
	ID        uuid.UUID
	Name      string
	Data      map[string]any
	UpdatedAt time.Time
}

// PlayerDataRepository persists PlayerData. Data is stored as a YAML
// document so it reads the same as the plugin's data.yml.
type PlayerDataRepository struct {
	db *pgxpool.Pool
}

// NewPlayerDataRepository creates a PlayerDataRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerDataRepository(db *pgxpool.Pool) *PlayerDataRepository {
	return &PlayerDataRepository{db: db}
}

// Upsert stores d, replacing any data already kept for d.ID.
//
// Precondition: d.ID must not be uuid.Nil; d.Name must be non-empty.
// Postcondition: Returns d with UpdatedAt set by the database.
func (r *PlayerDataRepository) Upsert(ctx context.Context, d PlayerData) (PlayerData, error) {
	if d.ID == uuid.Nil {
		return PlayerData{}, errors.New("player id must not be nil")
	}
	return upsert(ctx, r.db, d)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsert(ctx context.Context, q querier, d PlayerData) (PlayerData, error) {
	doc, err := encodeData(d.Data)
	if err != nil {
		return PlayerData{}, err
	}
	err = q.QueryRow(ctx,
		`INSERT INTO player_data (id, name, data, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, data = EXCLUDED.data, updated_at = NOW()
		 RETURNING updated_at`,
		d.ID, d.Name, doc,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return PlayerData{}, fmt.Errorf("upserting player data: %w", err)
	}
	return d, nil
}

// Load returns the data stored for id.
//
// Postcondition: Returns ErrPlayerNotFound when nothing is stored; Data is
// never nil on success.
func (r *PlayerDataRepository) Load(ctx context.Context, id uuid.UUID) (PlayerData, error) {
	return load(ctx, r.db,
		`SELECT id, name, data, updated_at FROM player_data WHERE id = $1`, id)
}

// LoadByName returns the data of the most recently seen player called name,
// compared case-insensitively.
//
// Postcondition: Returns ErrPlayerNotFound when nothing is stored.
func (r *PlayerDataRepository) LoadByName(ctx context.Context, name string) (PlayerData, error) {
	return load(ctx, r.db,
		`SELECT id, name, data, updated_at FROM player_data
		 WHERE LOWER(name) = LOWER($1)
		 ORDER BY updated_at DESC LIMIT 1`, name)
}

func load(ctx context.Context, q querier, sql string, arg any) (PlayerData, error) {
	var (
		d   PlayerData
		doc string
	)
	err := q.QueryRow(ctx, sql, arg).Scan(&d.ID, &d.Name, &doc, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlayerData{}, ErrPlayerNotFound
		}
		return PlayerData{}, fmt.Errorf("querying player data: %w", err)
	}
	if d.Data, err = decodeData(doc); err != nil {
		return PlayerData{}, fmt.Errorf("player %s: %w", d.ID, err)
	}
	return d, nil
}

// RecordJoin notes that a player joined: the name is refreshed, the join
// counter incremented and the first join time kept.
//
// Precondition: id must not be uuid.Nil.
// Postcondition: Returns the stored data after the update.
func (r *PlayerDataRepository) RecordJoin(ctx context.Context, id uuid.UUID, name string) (PlayerData, error) {
	var out PlayerData
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		d, err := load(ctx, tx,
			`SELECT id, name, data, updated_at FROM player_data WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, ErrPlayerNotFound) {
			d = PlayerData{ID: id, Data: map[string]any{
				KeyFirstJoin: time.Now().UTC().Format(time.RFC3339),
			}}
		} else if err != nil {
			return err
		}
		d.Name = name
		d.Data[KeyJoins] = joins(d.Data[KeyJoins]) + 1
		out, err = upsert(ctx, tx, d)
		return err
	})
	if err != nil {
		return PlayerData{}, fmt.Errorf("recording join of %s: %w", name, err)
	}
	return out, nil
}

func joins(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Touch refreshes the updated_at of id so Purge keeps it.
//
// Postcondition: Returns ErrPlayerNotFound when nothing is stored.
func (r *PlayerDataRepository) Touch(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE player_data SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching player data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// Delete removes the data stored for id.
//
// Postcondition: Returns ErrPlayerNotFound when nothing was stored.
func (r *PlayerDataRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM player_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting player data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// Purge removes data not updated within olderThan.
//
// Precondition: olderThan must be positive.
// Postcondition: Returns the number of players removed.
func (r *PlayerDataRepository) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("purge age must be positive, got %s", olderThan)
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM player_data WHERE updated_at < NOW() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging player data: %w", err)
	}
	return tag.RowsAffected(), nil
}

func encodeData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding player data: %w", err)
	}
	return string(out), nil
}

func decodeData(doc string) (map[string]any, error) {
	data := map[string]any{}
	if doc == "" {
		return data, nil
	}
	if err := yaml.Unmarshal([]byte(doc), &data); err != nil {
		return nil, fmt.Errorf("decoding player data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
