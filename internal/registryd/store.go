// Package registryd is the mountpoint registry service: a small CRUD surface
// over a sqlite-backed record store, one active mountpoint per room.
package registryd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mivora/roomcast/internal/domain"
)

var ErrRoomTaken = errors.New("room already has a mountpoint")

const schema = `
CREATE TABLE IF NOT EXISTS mountpoints (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL,
	room_id     INTEGER NOT NULL UNIQUE,
	feed_id     INTEGER,
	created_at  TIMESTAMP NOT NULL
);`

type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, room domain.RoomID, description string) (*domain.Mountpoint, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mountpoints (description, room_id, created_at) VALUES (?, ?, ?)`,
		description, int64(room), now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrRoomTaken
		}
		return nil, fmt.Errorf("create mountpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Mountpoint{
		ID:          id,
		Description: description,
		RoomID:      room,
		CreatedAt:   now,
	}, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Mountpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, room_id, feed_id, created_at FROM mountpoints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list mountpoints: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Mountpoint, 0)
	for rows.Next() {
		var mp domain.Mountpoint
		var feed sql.NullInt64
		if err := rows.Scan(&mp.ID, &mp.Description, &mp.RoomID, &feed, &mp.CreatedAt); err != nil {
			return nil, err
		}
		if feed.Valid {
			f := domain.FeedID(feed.Int64)
			mp.FeedID = &f
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

// AssociatePublisher records the publisher feed on the room's mountpoint.
// Reports whether a record existed.
func (s *Store) AssociatePublisher(ctx context.Context, room domain.RoomID, feed domain.FeedID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mountpoints SET feed_id = ? WHERE room_id = ?`,
		int64(feed), int64(room),
	)
	if err != nil {
		return false, fmt.Errorf("associate publisher: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteByRoom removes the room's mountpoint, reporting whether one existed.
func (s *Store) DeleteByRoom(ctx context.Context, room domain.RoomID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mountpoints WHERE room_id = ?`, int64(room))
	if err != nil {
		return false, fmt.Errorf("delete mountpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
