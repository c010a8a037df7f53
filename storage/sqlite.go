package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultSqliteFile = "database.sqlite3"

type Sqlite struct {
	*sql.DB
	mu sync.Mutex
}

func OpenSqlite(dbFile string) (*Sqlite, error) {
	if dbFile == "" {
		dbFile = defaultSqliteFile
	}

	freshlyCreated := false
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		freshlyCreated = true
		if dir := filepath.Dir(dbFile); dir != "." {
			if err = os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "create directory for %v", dbFile)
			}
		}
		f, err := os.Create(dbFile)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create file %v", dbFile)
		}
		f.Close()
	}

	sqlite3Db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}

	db := &Sqlite{DB: sqlite3Db}

	if freshlyCreated {
		logrus.WithField("module", "storage").Infof("initializing fresh sqlite database %v", dbFile)
	}
	if err = db.initDatabase(); err != nil {
		sqlite3Db.Close()
		return nil, err
	}

	return db, nil
}

func (db *Sqlite) initDatabase() error {
	q := "CREATE TABLE IF NOT EXISTS kv (key varchar(255) PRIMARY KEY, value BLOB NOT NULL)"
	if _, err := db.Exec(q); err != nil {
		return errors.Wrap(err, "could not create kv table")
	}
	return nil
}

func (db *Sqlite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	q := `SELECT value FROM kv WHERE key = ?`
	res, err := db.QueryContext(ctx, q, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "query key %v", key)
	}
	defer res.Close()

	if !res.Next() {
		return nil, false, res.Err()
	}

	var value []byte
	if err = res.Scan(&value); err != nil {
		return nil, false, errors.Wrapf(err, "scan key %v", key)
	}

	return value, true, nil
}

const upsertKV = `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`

func (db *Sqlite) Set(ctx context.Context, key string, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.ExecContext(ctx, upsertKV, key, value); err != nil {
		return errors.Wrapf(err, "update key %v", key)
	}
	return nil
}

func (db *Sqlite) SetMany(ctx context.Context, entries []Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction failed")
	}

	for _, e := range entries {
		if _, err = tx.ExecContext(ctx, upsertKV, e.Key, e.Value); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "update key %v", e.Key)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction failed")
	}
	return nil
}
