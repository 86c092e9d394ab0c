// Package sqlite stores a document in a SQLite database file. Rules are kept
// as opaque JSON blobs.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/mo"

	"agenda/internal/model"
	"agenda/internal/rule"
	"agenda/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Document implements store.Document on top of one database file.
type Document struct {
	id string
	db *sql.DB
}

var _ store.Document = (*Document)(nil)

// Open creates or opens the database at path. A new database gets a fresh
// document ID.
func Open(ctx context.Context, path string) (*Document, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	id, err := documentID(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Document{id: id, db: db}, nil
}

func documentID(ctx context.Context, db *sql.DB) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read document id: %w", err)
	}
	id = uuid.NewString()
	if _, err := db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('id', ?)`, id); err != nil {
		return "", fmt.Errorf("store document id: %w", err)
	}
	return id, nil
}

func (d *Document) ID() string { return d.id }

func (d *Document) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Document) Items(ctx context.Context) ([]store.Item, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, text, rules FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []store.Item
	for rows.Next() {
		var (
			it   store.Item
			blob []byte
		)
		if err := rows.Scan(&it.ID, &it.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal(blob, &it.Rules); err != nil {
			return nil, fmt.Errorf("item %s rules: %w", it.ID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (d *Document) PutItem(ctx context.Context, it store.Item) (string, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	rules := it.Rules
	if rules == nil {
		rules = []rule.Rule{}
	}
	blob, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO items (id, text, rules) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, rules = excluded.rules`,
		it.ID, it.Text, blob)
	if err != nil {
		return "", fmt.Errorf("put item %s: %w", it.ID, err)
	}
	return it.ID, nil
}

func (d *Document) DeleteItem(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (d *Document) ActivateAlarms(ctx context.Context, due []model.Occurrence, at time.Time) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, o := range due {
		if o.ContainerID != d.id {
			continue
		}
		k := o.Key()
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO active_alarms
				(item_id, start_ns, has_end, end_ns, has_alarm, alarm_ns, activated_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			k.ItemID, k.Start, k.HasEnd, k.End, k.HasAlarm, k.Alarm, at.UnixNano())
		if err != nil {
			return fmt.Errorf("activate alarm of %s: %w", k.ItemID, err)
		}
	}
	return tx.Commit()
}

func (d *Document) ActiveAlarms(ctx context.Context) ([]model.ActiveAlarm, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT item_id, start_ns, has_end, end_ns, has_alarm, alarm_ns, activated_ns
		FROM active_alarms ORDER BY start_ns, item_id`)
	if err != nil {
		return nil, fmt.Errorf("query alarms: %w", err)
	}
	defer rows.Close()

	var out []model.ActiveAlarm
	for rows.Next() {
		var (
			k         model.Key
			activated int64
		)
		if err := rows.Scan(&k.ItemID, &k.Start, &k.HasEnd, &k.End, &k.HasAlarm, &k.Alarm, &activated); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		a := model.ActiveAlarm{
			Occurrence: model.Occurrence{
				ContainerID: d.id,
				ItemID:      k.ItemID,
				Start:       time.Unix(0, k.Start).UTC(),
			},
			ActivatedAt: time.Unix(0, activated).UTC(),
		}
		if k.HasEnd {
			a.End = mo.Some(time.Unix(0, k.End).UTC())
		}
		if k.HasAlarm {
			a.Alarm = mo.Some(time.Unix(0, k.Alarm).UTC())
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *Document) DismissAlarm(ctx context.Context, itemID string, start time.Time) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM active_alarms WHERE item_id = ? AND start_ns = ?`, itemID, start.UnixNano())
	if err != nil {
		return fmt.Errorf("dismiss alarm of %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alarm %s@%s: %w", itemID, start.Format(time.RFC3339), store.ErrNotFound)
	}
	return nil
}
