// Copyright 2024 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/seifane/aurbuild/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies all pending migrations against the SQLite database
// at path.
func RunMigrations(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// SQLiteStore is the embedded SQL persistence implementation. The
// connection is held exclusively behind writeMu so writes are serialized,
// per the single-writer requirement of the core.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteStore opens path (migrations must already have been applied via
// RunMigrations) and returns a ready store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanPackage(row interface {
	Scan(dest ...any) error
}) (*types.Package, error) {
	var (
		p         types.Package
		runBefore sql.NullString
		lastBuilt sql.NullInt64
		lastVer   sql.NullString
		lastErr   sql.NullString
		filesJSON string
	)
	if err := row.Scan(&p.ID, &p.Name, &runBefore, &p.Status, &lastBuilt, &lastVer, &filesJSON, &lastErr); err != nil {
		return nil, err
	}
	if runBefore.Valid {
		p.RunBefore = runBefore.String
	}
	if lastBuilt.Valid {
		t := time.Unix(lastBuilt.Int64, 0).UTC()
		p.LastBuilt = &t
	}
	if lastVer.Valid {
		v := lastVer.String
		p.LastBuiltVersion = &v
	}
	if lastErr.Valid {
		e := lastErr.String
		p.LastError = &e
	}
	var files []string
	if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
		return nil, fmt.Errorf("decoding files column: %w", err)
	}
	p.Files = files
	return &p, nil
}

const packageColumns = "id, name, run_before, status, last_built, last_built_version, files, last_error"

func (s *SQLiteStore) CreatePackage(ctx context.Context, def types.PackageDefinition) (*types.Package, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO packages (name, run_before, status, files) VALUES (?, ?, ?, '[]')`,
		def.Name, nullableString(def.RunBefore), types.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("creating package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted id: %w", err)
	}
	return s.GetPackage(ctx, id)
}

func (s *SQLiteStore) UpdatePackage(ctx context.Context, id int64, def types.PackageDefinition) (*types.Package, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE packages SET run_before = ? WHERE id = ?`,
		nullableString(def.RunBefore), id)
	if err != nil {
		return nil, fmt.Errorf("updating package: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetPackage(ctx, id)
}

func (s *SQLiteStore) UpdatePackageStatus(ctx context.Context, id int64, status types.PackageStatus) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE packages SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating package status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeletePackage(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting package: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetPackage(ctx context.Context, id int64) (*types.Package, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = ?`, id)
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading package: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetPackageByName(ctx context.Context, name string) (*types.Package, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE name = ?`, name)
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading package: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) queryPackages(ctx context.Context, query string, args ...any) ([]*types.Package, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying packages: %w", err)
	}
	defer rows.Close()

	var out []*types.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning package: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchPackagesByName(ctx context.Context, search string) ([]*types.Package, error) {
	return s.queryPackages(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE name LIKE ? ORDER BY id ASC`,
		"%"+search+"%")
}

func (s *SQLiteStore) GetPackages(ctx context.Context) ([]*types.Package, error) {
	return s.queryPackages(ctx, `SELECT `+packageColumns+` FROM packages ORDER BY id ASC`)
}

func (s *SQLiteStore) GetNextPendingPackage(ctx context.Context) (*types.Package, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE status = ? ORDER BY id ASC LIMIT 1`,
		types.StatusPending)
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading next pending package: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) SetPackagesPending(ctx context.Context, ids []int64, force bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		query string
		args  []any
	)
	switch {
	case force && ids == nil:
		query = `UPDATE packages SET status = ?, last_built_version = NULL`
		args = []any{types.StatusPending}
	case force && ids != nil:
		query = `UPDATE packages SET status = ?, last_built_version = NULL WHERE id IN (` + placeholders(len(ids)) + `)`
		args = append([]any{types.StatusPending}, int64sToAny(ids)...)
	case !force && ids == nil:
		query = `UPDATE packages SET status = ? WHERE status != ?`
		args = []any{types.StatusPending, types.StatusBuilding}
	default: // !force && ids != nil
		query = `UPDATE packages SET status = ? WHERE status != ? AND id IN (` + placeholders(len(ids)) + `)`
		args = append([]any{types.StatusPending, types.StatusBuilding}, int64sToAny(ids)...)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("setting packages pending: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetPackagesRebuild(ctx context.Context, interval int64) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := time.Now().Add(-time.Duration(interval) * time.Second).Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE packages SET status = ? WHERE status IN (?, ?) AND last_built IS NOT NULL AND last_built < ?`,
		types.StatusPending, types.StatusBuilt, types.StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("setting packages rebuild: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) RecordBuildResult(ctx context.Context, id int64, result BuildResult) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if result.Error != nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE packages SET status = ?, last_error = ? WHERE id = ?`,
			types.StatusFailed, *result.Error, id)
		if err != nil {
			return fmt.Errorf("recording failed build: %w", err)
		}
		return nil
	}

	filesJSON, err := json.Marshal(result.Files)
	if err != nil {
		return fmt.Errorf("encoding files: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE packages SET status = ?, last_error = NULL, last_built = ?, last_built_version = ?, files = ? WHERE id = ?`,
		types.StatusBuilt, time.Now().Unix(), result.Version, string(filesJSON), id)
	if err != nil {
		return fmt.Errorf("recording successful build: %w", err)
	}
	return nil
}

func scanPatch(row interface{ Scan(dest ...any) error }) (*types.PackagePatch, error) {
	var (
		p      types.PackagePatch
		sha512 sql.NullString
	)
	if err := row.Scan(&p.ID, &p.PackageID, &p.URL, &sha512); err != nil {
		return nil, err
	}
	if sha512.Valid {
		s := sha512.String
		p.SHA512 = &s
	}
	return &p, nil
}

func (s *SQLiteStore) CreatePatch(ctx context.Context, packageID int64, url string, sha512 *string) (*types.PackagePatch, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO package_patches (package_id, url, sha_512) VALUES (?, ?, ?)`,
		packageID, url, sha512)
	if err != nil {
		return nil, fmt.Errorf("creating patch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted patch id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, package_id, url, sha_512 FROM package_patches WHERE id = ?`, id)
	return scanPatch(row)
}

func (s *SQLiteStore) GetPatchesForPackage(ctx context.Context, packageID int64) ([]*types.PackagePatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, package_id, url, sha_512 FROM package_patches WHERE package_id = ? ORDER BY id ASC`, packageID)
	if err != nil {
		return nil, fmt.Errorf("querying patches: %w", err)
	}
	defer rows.Close()

	var out []*types.PackagePatch
	for rows.Next() {
		p, err := scanPatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patch: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdatePatch(ctx context.Context, id int64, url string, sha512 *string) (*types.PackagePatch, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE package_patches SET url = ?, sha_512 = ? WHERE id = ?`, url, sha512, id)
	if err != nil {
		return nil, fmt.Errorf("updating patch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, package_id, url, sha_512 FROM package_patches WHERE id = ?`, id)
	return scanPatch(row)
}

func (s *SQLiteStore) DeletePatch(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM package_patches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting patch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}

func int64sToAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
