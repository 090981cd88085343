package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"car_scrooper/models"
)

// SQLiteStore holds operational data: manual commands, run history and
// operational logs. Listing data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS monitor_runs (
		id INTEGER PRIMARY KEY,
		filter_name TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS check_runs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		checked INTEGER DEFAULT 0,
		price_changes INTEGER DEFAULT 0,
		description_changes INTEGER DEFAULT 0,
		unavailable INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS op_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_monitor_runs_started ON monitor_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_check_runs_started ON check_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_op_logs_run ON op_logs(run_id, timestamp);`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var paramsJSON []byte
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}

	_, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`,
		string(cmd), paramsJSON)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, '{}'), created_at
		FROM commands
		WHERE processed_at IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(&cmd.ID, &cmd.Command, &cmd.Params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, err
	}
	return params, nil
}

// =============================================================================
// Run history
// =============================================================================

func (s *SQLiteStore) CreateMonitorRun(run *models.MonitorRun) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO monitor_runs (filter_name, started_at, status)
		VALUES (?, ?, ?)`,
		run.FilterName, run.StartedAt, string(run.Status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateMonitorRun(run *models.MonitorRun) error {
	_, err := s.db.Exec(`
		UPDATE monitor_runs SET
			finished_at = ?, status = ?, listings_found = ?, listings_new = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, string(run.Status), run.ListingsFound, run.ListingsNew, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) CreateCheckRun(run *models.CheckRun) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO check_runs (run_id, started_at, status)
		VALUES (?, ?, ?)`,
		run.RunID, run.StartedAt, string(run.Status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateCheckRun(run *models.CheckRun) error {
	_, err := s.db.Exec(`
		UPDATE check_runs SET
			finished_at = ?, status = ?, checked = ?, price_changes = ?,
			description_changes = ?, unavailable = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, string(run.Status), run.Checked, run.PriceChanges,
		run.DescriptionChanges, run.Unavailable, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) LastMonitorRunTime() (time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(started_at) FROM monitor_runs`).Scan(&last)
	if err != nil {
		return time.Time{}, err
	}
	return last.Time, nil
}

// =============================================================================
// Operational logs
// =============================================================================

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, source string) error {
	_, err := s.db.Exec(`
		INSERT INTO op_logs (run_id, timestamp, level, message, source)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), string(level), message, source)
	return err
}

func (s *SQLiteStore) RecentLogs(limit int) ([]models.OpLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, COALESCE(source, '')
		FROM op_logs
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.OpLog
	for rows.Next() {
		var l models.OpLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.Source); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
