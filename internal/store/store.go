package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // Import for registration side-effect.
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS vns(
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS hooks(
	id INTEGER PRIMARY KEY,
	vn_id INTEGER NOT NULL,
	version TEXT NOT NULL,
	code TEXT NOT NULL,
	FOREIGN KEY(vn_id) REFERENCES vns(id) ON DELETE CASCADE
);
`

// Store wraps a single sqlite handle. It is not safe for concurrent use;
// the Pool gives every worker its own Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Foreign keys are enabled per connection so that deleting
// a VN cascades to its hooks.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// database/sql would otherwise open concurrent connections behind
	// one handle; a Store is a single worker's private connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetVN returns the VN with the given id, or nil if absent.
func (s *Store) GetVN(id uint64) (*VN, error) {
	var vn VN
	err := s.db.QueryRow(`SELECT id, title FROM vns WHERE id = ?`, id).Scan(&vn.ID, &vn.Title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vn: %w", err)
	}
	return &vn, nil
}

// GetHooks returns all hooks for the VN, oldest first.
func (s *Store) GetHooks(vn VN) ([]Hook, error) {
	rows, err := s.db.Query(`SELECT vn_id, version, code FROM hooks WHERE vn_id = ? ORDER BY id`, vn.ID)
	if err != nil {
		return nil, fmt.Errorf("get hooks: %w", err)
	}
	defer rows.Close()

	var hooks []Hook
	for rows.Next() {
		var h Hook
		if err := rows.Scan(&h.VNID, &h.Version, &h.Code); err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		hooks = append(hooks, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hooks: %w", err)
	}
	return hooks, nil
}

// GetVNData returns the VN together with its hooks, or nil if the VN is
// not tracked.
func (s *Store) GetVNData(id uint64) (*VNData, error) {
	vn, err := s.GetVN(id)
	if err != nil {
		return nil, err
	}
	if vn == nil {
		return nil, nil
	}
	hooks, err := s.GetHooks(*vn)
	if err != nil {
		return nil, err
	}
	return &VNData{VN: *vn, Hooks: hooks}, nil
}

// SearchVN returns VNs whose title contains the substring, matched
// case-insensitively.
func (s *Store) SearchVN(title string) ([]VN, error) {
	rows, err := s.db.Query(`SELECT id, title FROM vns WHERE title LIKE ?`, "%"+title+"%")
	if err != nil {
		return nil, fmt.Errorf("search vn: %w", err)
	}
	defer rows.Close()

	var vns []VN
	for rows.Next() {
		var vn VN
		if err := rows.Scan(&vn.ID, &vn.Title); err != nil {
			return nil, fmt.Errorf("scan vn: %w", err)
		}
		vns = append(vns, vn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vns: %w", err)
	}
	return vns, nil
}

// PutVN inserts the VN if it is missing and returns the stored row.
// An existing row wins: the title is never overwritten.
func (s *Store) PutVN(id uint64, title string) (VN, error) {
	existing, err := s.GetVN(id)
	if err != nil {
		return VN{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	vn := VN{ID: id, Title: title}
	log.Debug().Uint64("id", id).Str("title", title).Msg("store: insert vn")
	if _, err := s.db.Exec(`INSERT INTO vns(id, title) VALUES(?, ?)`, vn.ID, vn.Title); err != nil {
		return VN{}, fmt.Errorf("put vn: %w", err)
	}
	return vn, nil
}

// PutHook replaces the code of the hook keyed by (vn.ID, version), or
// inserts a new row if none exists. The resulting row is returned.
func (s *Store) PutHook(vn VN, version, code string) (Hook, error) {
	var hookID int64
	var existing Hook
	err := s.db.QueryRow(
		`SELECT id, vn_id, version, code FROM hooks WHERE vn_id = ? AND version LIKE ?`,
		vn.ID, version,
	).Scan(&hookID, &existing.VNID, &existing.Version, &existing.Code)

	switch {
	case err == sql.ErrNoRows:
		hook := Hook{VNID: vn.ID, Version: version, Code: code}
		log.Debug().Uint64("vn", vn.ID).Str("version", version).Msg("store: insert hook")
		if _, err := s.db.Exec(
			`INSERT INTO hooks(vn_id, version, code) VALUES(?, ?, ?)`,
			hook.VNID, hook.Version, hook.Code,
		); err != nil {
			return Hook{}, fmt.Errorf("put hook: %w", err)
		}
		return hook, nil
	case err != nil:
		return Hook{}, fmt.Errorf("put hook: %w", err)
	default:
		log.Debug().Uint64("vn", vn.ID).Str("version", existing.Version).Msg("store: update hook")
		if _, err := s.db.Exec(`UPDATE hooks SET code = ? WHERE id = ?`, code, hookID); err != nil {
			return Hook{}, fmt.Errorf("put hook: %w", err)
		}
		existing.Code = code
		return existing, nil
	}
}

// DeleteVN removes the VN and, via the cascade, all of its hooks.
// Returns the number of VN rows removed.
func (s *Store) DeleteVN(id uint64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM vns WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete vn: %w", err)
	}
	return res.RowsAffected()
}

// DeleteHook removes the hook keyed by (vn.ID, version). Returns the
// number of rows removed.
func (s *Store) DeleteHook(vn VN, version string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM hooks WHERE vn_id = ? AND version LIKE ?`, vn.ID, version)
	if err != nil {
		return 0, fmt.Errorf("delete hook: %w", err)
	}
	return res.RowsAffected()
}

// CountVNs returns the number of tracked VNs.
func (s *Store) CountVNs() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vns: %w", err)
	}
	return n, nil
}

// CountHooks returns the number of stored hooks.
func (s *Store) CountHooks() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM hooks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count hooks: %w", err)
	}
	return n, nil
}
