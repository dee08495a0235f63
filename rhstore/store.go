// Package rhstore persists hammering sessions - configs, experiments,
// tests, and the bit flips they produced - to a SQLite database.
package rhstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	// registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/fault-injection-lab/dramhammer/dram"
	"github.com/fault-injection-lab/dramhammer/hammer"
)

const schemaVersion = 1

// Store is a SQLite-backed implementation of hammer.Store, plus the
// experiment/config bookkeeping the hammer package itself has no
// reason to know about.
type Store struct {
	db *sql.DB

	tx *sql.Tx

	configID     int64
	experimentID int64
	testID       int64
}

// OpenOrExit is the fatal-on-error counterpart of Open.
func OpenOrExit(path string) *Store {
	s, err := Open(path)
	if err != nil {
		exitFn(fmt.Errorf("failed to open store %q - %w", path, err))
	}
	return s
}

// Open opens (and if necessary creates) the database at path and
// ensures its schema is current.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database - %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hostname TEXT NOT NULL,
			dimms_json TEXT NOT NULL,
			bios_settings_json TEXT NOT NULL,
			dram_layout_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS experiments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL REFERENCES configs(id),
			aggressor_rows INTEGER NOT NULL,
			hammer_count INTEGER NOT NULL,
			target_temp INTEGER NOT NULL,
			comment TEXT NOT NULL,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			experiment_id INTEGER NOT NULL REFERENCES experiments(id),
			victim_init INTEGER NOT NULL,
			aggressor_init INTEGER NOT NULL,
			num_flips INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bitflips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_id INTEGER NOT NULL REFERENCES tests(id),
			victim_phys INTEGER NOT NULL,
			victim_bank INTEGER NOT NULL,
			victim_row INTEGER NOT NULL,
			victim_col INTEGER NOT NULL,
			byte_offset INTEGER NOT NULL,
			bit_index INTEGER NOT NULL,
			direction TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement - %w", err)
		}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check schema_meta - %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to stamp schema version - %w", err)
		}
	}

	return nil
}

// LoadOrInsertConfig finds a config row matching hostname/dram layout,
// inserting one if none exists, and remembers its id for subsequent
// StartExperiment calls.
func (s *Store) LoadOrInsertConfig(hostname string, dimms []string, biosSettings map[string]string, layout dram.Layout) error {
	dimmsJSON, err := json.Marshal(dimms)
	if err != nil {
		return fmt.Errorf("failed to marshal dimms - %w", err)
	}
	biosJSON, err := json.Marshal(biosSettings)
	if err != nil {
		return fmt.Errorf("failed to marshal bios settings - %w", err)
	}
	layoutJSON, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("failed to marshal dram layout - %w", err)
	}

	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM configs WHERE hostname = ? AND dram_layout_json = ?`,
		hostname, string(layoutJSON),
	).Scan(&id)

	if err == sql.ErrNoRows {
		res, err := s.db.Exec(
			`INSERT INTO configs (hostname, dimms_json, bios_settings_json, dram_layout_json) VALUES (?, ?, ?, ?)`,
			hostname, string(dimmsJSON), string(biosJSON), string(layoutJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert config - %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted config id - %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to query config - %w", err)
	}

	s.configID = id
	return nil
}

// StartExperiment records the beginning of one experiment run.
func (s *Store) StartExperiment(aggressorRows, hammerCount uint64, targetTemp int64, comment string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO experiments (config_id, aggressor_rows, hammer_count, target_temp, comment) VALUES (?, ?, ?, ?, ?)`,
		s.configID, aggressorRows, hammerCount, targetTemp, comment,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start experiment - %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted experiment id - %w", err)
	}

	s.experimentID = id
	return id, nil
}

// EndExperiment stamps the current experiment's end time.
func (s *Store) EndExperiment() error {
	_, err := s.db.Exec(`UPDATE experiments SET ended_at = CURRENT_TIMESTAMP WHERE id = ?`, s.experimentID)
	if err != nil {
		return fmt.Errorf("failed to end experiment - %w", err)
	}
	return nil
}

// BeginTransaction implements hammer.Store.
func (s *Store) BeginTransaction() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction - %w", err)
	}
	s.tx = tx
	return nil
}

// Commit implements hammer.Store.
func (s *Store) Commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction - %w", err)
	}
	return nil
}

func (s *Store) execer() interface {
	Exec(query string, args ...any) (sql.Result, error)
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// InsertTest implements hammer.Store.
func (s *Store) InsertTest(row hammer.TestRow) error {
	res, err := s.execer().Exec(
		`INSERT INTO tests (experiment_id, victim_init, aggressor_init, num_flips) VALUES (?, ?, ?, ?)`,
		s.experimentID, row.VictimInit, row.AggressorInit, row.NumFlips,
	)
	if err != nil {
		return fmt.Errorf("failed to insert test row - %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted test id - %w", err)
	}

	s.testID = id
	return nil
}

// InsertBitFlip implements hammer.Store.
func (s *Store) InsertBitFlip(flip hammer.BitFlip) error {
	_, err := s.execer().Exec(
		`INSERT INTO bitflips (test_id, victim_phys, victim_bank, victim_row, victim_col, byte_offset, bit_index, direction)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.testID, flip.VictimPhys, flip.VictimBank, flip.VictimRow, flip.VictimCol,
		flip.ByteOffset, flip.BitIndex, flip.Direction.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bit flip - %w", err)
	}
	return nil
}
