//go:build !nosqlite3

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
)

// SQLiteStore persists the known replica list in a SQLite table, for
// embedding a driver's address cache into a larger application's own
// database file instead of a standalone YAML file.
type SQLiteStore struct {
	db     *sql.DB
	schema string
	table  string
}

// Open creates filename if needed, creates the servers table if it
// doesn't exist, and returns a store backed by it. If filename ends in
// ".yaml" it delegates to NewYamlStore instead, matching the convention
// the config layer uses to pick a store implementation from one flag.
func Open(filename string) (protocol.NodeStore, error) {
	if strings.HasSuffix(filename, ".yaml") {
		return NewYamlStore(filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite's default build is single-threaded; cap the pool at one
	// connection so concurrent Get/Set calls don't hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS servers (address TEXT, role INTEGER, term INTEGER, UNIQUE(address))"); err != nil {
		return nil, fmt.Errorf("store: create servers table: %w", err)
	}

	return NewSQLiteStore(db, "main", "servers"), nil
}

func NewSQLiteStore(db *sql.DB, schema, table string) *SQLiteStore {
	return &SQLiteStore{db: db, schema: schema, table: table}
}

func (s *SQLiteStore) Get(ctx context.Context) ([]protocol.NodeInfo, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT address, role FROM %s.%s", s.schema, s.table)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query servers table: %w", err)
	}
	defer rows.Close()

	servers := make([]protocol.NodeInfo, 0)
	for rows.Next() {
		var address string
		var role int
		if err := rows.Scan(&address, &role); err != nil {
			return nil, fmt.Errorf("store: scan server row: %w", err)
		}
		servers = append(servers, protocol.NodeInfo{Address: address, Role: protocol.NodeRole(role)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate result set: %w", err)
	}
	return servers, nil
}

func (s *SQLiteStore) Set(ctx context.Context, servers []protocol.NodeInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s.%s", s.schema, s.table)); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: delete existing rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s.%s(address, role) VALUES (?, ?)", s.schema, s.table))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, server := range servers {
		if _, err := stmt.ExecContext(ctx, server.Address, int(server.Role)); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert server %s: %w", server.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

var _ protocol.NodeStore = (*SQLiteStore)(nil)
