// Package sql implements an alternate storage.RawStore backend on top of a
// relational engine via jmoiron/sqlx, grounded on the teacher's
// db/sql/sql.go. Unlike the teacher, which targets a live Postgres server
// through jackc/pgx, this backend targets embedded sqlite3 (mattn/go-sqlite3)
// so the same conformance suite can run without an external service.
package sql

import (
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dashpay/grovedb-sub006/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS grove_kv (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
);`

// Store wraps a *sqlx.DB backed by a single grove_kv table, mirroring the
// teacher's one-table-per-tree design collapsed into one table since
// namespace/prefix separation already lives in the key bytes.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open opens (creating if absent) a sqlite3-backed store at path ("file::memory:?cache=shared" works for in-process use).
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RawGet(key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.Get(&value, `SELECT value FROM grove_kv WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) RawPut(key, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO grove_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) RawDelete(key []byte) error {
	_, err := s.db.Exec(`DELETE FROM grove_kv WHERE key = ?`, key)
	return err
}

func (s *Store) RawBatch(ops []storage.RawOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sqlTx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.Value == nil {
			if _, err := sqlTx.Exec(`DELETE FROM grove_kv WHERE key = ?`, op.Key); err != nil {
				sqlTx.Rollback()
				return err
			}
			continue
		}
		if _, err := sqlTx.Exec(`INSERT INTO grove_kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, op.Key, op.Value); err != nil {
			sqlTx.Rollback()
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) RawIterator(prefix []byte) storage.RawIterator {
	upper := append(append([]byte(nil), prefix...), 0xff)
	rows, err := s.db.Query(`SELECT key, value FROM grove_kv WHERE key >= ? AND key <= ? ORDER BY key`, prefix, upper)
	if err != nil {
		return &errIterator{}
	}
	defer rows.Close()

	var keys [][]byte
	values := map[string][]byte{}
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return &errIterator{}
		}
		keys = append(keys, k)
		values[string(k)] = v
	}
	sort.Slice(keys, func(i, j int) bool { return strings.Compare(string(keys[i]), string(keys[j])) < 0 })
	return &iterator{keys: keys, values: values, pos: -1}
}

// BeginTx wraps a native *sqlx.Tx, which gives the isolation and
// all-or-nothing commit semantics spec.md 5 requires.
func (s *Store) BeginTx() (storage.RawTx, error) {
	sqlTx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	return &tx{tx: sqlTx}, nil
}

type iterator struct {
	keys   [][]byte
	values map[string][]byte
	pos    int
}

func (it *iterator) SeekToFirst() { it.pos = 0 }
func (it *iterator) SeekToLast()  { it.pos = len(it.keys) - 1 }
func (it *iterator) Seek(key []byte) {
	it.pos = sort.Search(len(it.keys), func(i int) bool {
		return strings.Compare(string(it.keys[i]), string(key)) >= 0
	})
}
func (it *iterator) SeekForPrev(key []byte) {
	it.Seek(key)
	if it.pos >= len(it.keys) || string(it.keys[it.pos]) != string(key) {
		it.pos--
	}
}
func (it *iterator) Next() { it.pos++ }
func (it *iterator) Prev() { it.pos-- }
func (it *iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}
func (it *iterator) Key() []byte   { return it.keys[it.pos] }
func (it *iterator) Value() []byte { return it.values[string(it.keys[it.pos])] }
func (it *iterator) Close()        {}

type errIterator struct{}

func (e *errIterator) SeekToFirst()       {}
func (e *errIterator) SeekToLast()        {}
func (e *errIterator) Seek(key []byte)    {}
func (e *errIterator) SeekForPrev([]byte) {}
func (e *errIterator) Next()              {}
func (e *errIterator) Prev()              {}
func (e *errIterator) Valid() bool        { return false }
func (e *errIterator) Key() []byte        { return nil }
func (e *errIterator) Value() []byte      { return nil }
func (e *errIterator) Close()             {}

type tx struct {
	tx *sqlx.Tx
}

func (t *tx) RawGet(key []byte) ([]byte, bool, error) {
	var value []byte
	err := t.tx.Get(&value, `SELECT value FROM grove_kv WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *tx) RawPut(key, value []byte) error {
	_, err := t.tx.Exec(`INSERT INTO grove_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (t *tx) RawDelete(key []byte) error {
	_, err := t.tx.Exec(`DELETE FROM grove_kv WHERE key = ?`, key)
	return err
}

func (t *tx) RawIterator(prefix []byte) storage.RawIterator {
	upper := append(append([]byte(nil), prefix...), 0xff)
	rows, err := t.tx.Query(`SELECT key, value FROM grove_kv WHERE key >= ? AND key <= ? ORDER BY key`, prefix, upper)
	if err != nil {
		return &errIterator{}
	}
	defer rows.Close()

	var keys [][]byte
	values := map[string][]byte{}
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return &errIterator{}
		}
		keys = append(keys, k)
		values[string(k)] = v
	}
	sort.Slice(keys, func(i, j int) bool { return strings.Compare(string(keys[i]), string(keys[j])) < 0 })
	return &iterator{keys: keys, values: values, pos: -1}
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }
