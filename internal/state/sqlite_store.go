package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/util/sets"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS installed_versions (
	hash TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version INTEGER NOT NULL,
	hardware_ids TEXT NOT NULL,
	tags TEXT NOT NULL,
	installed_at TEXT NOT NULL,
	finalized INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore implements InstalledVersionsStore atop a pure-Go sqlite
// driver, the persistent alternative to JSONStore when the device's
// update history is large enough to want indexed queries.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a sqlite-backed store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create installed_versions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, v InstalledVersion) error {
	hwids, err := json.Marshal(v.Target.HardwareIDs)
	if err != nil {
		return fmt.Errorf("marshal hardware ids: %w", err)
	}
	tagList := make([]string, 0, len(v.Target.Tags))
	for tag := range v.Target.Tags {
		tagList = append(tagList, tag)
	}
	tags, err := json.Marshal(tagList)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO installed_versions
			(hash, name, version, hardware_ids, tags, installed_at, finalized)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Target.Hash, v.Target.Name, v.Target.Version, string(hwids), string(tags),
		v.InstalledAt.UTC().Format(time.RFC3339Nano), boolToInt(v.Finalized),
	)
	if err != nil {
		return fmt.Errorf("insert installed version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkFinalized(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE installed_versions SET finalized = 1 WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]InstalledVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, name, version, hardware_ids, tags, installed_at, finalized
		 FROM installed_versions ORDER BY installed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query installed versions: %w", err)
	}
	defer rows.Close()

	var out []InstalledVersion
	for rows.Next() {
		v, err := scanInstalledVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RollbackCandidate(ctx context.Context, olderThanVersion int64) (model.Target, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, name, version, hardware_ids, tags, installed_at, finalized
		 FROM installed_versions WHERE version < ? ORDER BY installed_at DESC LIMIT 1`,
		olderThanVersion)

	v, err := scanInstalledVersion(row)
	if err == sql.ErrNoRows {
		return model.Target{}, false, nil
	}
	if err != nil {
		return model.Target{}, false, fmt.Errorf("query rollback candidate: %w", err)
	}
	return v.Target, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInstalledVersion(row scannable) (InstalledVersion, error) {
	var (
		hash, name, hwidsJSON, tagsJSON, installedAtStr string
		version                                         int64
		finalized                                       int
	)
	if err := row.Scan(&hash, &name, &version, &hwidsJSON, &tagsJSON, &installedAtStr, &finalized); err != nil {
		return InstalledVersion{}, err
	}

	var hwids []string
	if err := json.Unmarshal([]byte(hwidsJSON), &hwids); err != nil {
		return InstalledVersion{}, fmt.Errorf("unmarshal hardware ids: %w", err)
	}
	var tagList []string
	if err := json.Unmarshal([]byte(tagsJSON), &tagList); err != nil {
		return InstalledVersion{}, fmt.Errorf("unmarshal tags: %w", err)
	}

	installedAt, err := time.Parse(time.RFC3339Nano, installedAtStr)
	if err != nil {
		return InstalledVersion{}, fmt.Errorf("parse installed_at: %w", err)
	}

	tags := sets.New(tagList...)

	return InstalledVersion{
		Target: model.Target{
			Name:        name,
			Hash:        hash,
			Version:     version,
			HardwareIDs: hwids,
			Tags:        tags,
		},
		InstalledAt: installedAt,
		Finalized:   finalized != 0,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
