package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

type Client struct {
	pg     *pgxpool.Pool
	sqlite *sql.DB // Commands and run history live here (daemon reads from there)
	ctx    context.Context
}

type Totals struct {
	Cars           int
	Available      int
	Gone           int
	PendingNotify  int
	PriceChanges7d int
	DescChanges7d  int
	NeverChecked   int
}

type FilterStats struct {
	FilterName string
	Cars       int
	Available  int
	LastSeenAt *time.Time
}

type Car struct {
	ID            int64
	Title         string
	Link          string
	Price         string
	PreviousPrice *string
	Year          int
	Mileage       int
	Place         string
	FilterName    string
	Available     bool
	PriceChanges  int
	LastCheckedAt *time.Time
}

type MonitorRun struct {
	ID            int64
	FilterName    string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string
	ListingsFound int
	ListingsNew   int
	ErrorsCount   int
}

type CheckRun struct {
	ID                 int64
	StartedAt          time.Time
	FinishedAt         *time.Time
	Status             string
	Checked            int
	PriceChanges       int
	DescriptionChanges int
	Unavailable        int
	ErrorsCount        int
}

type OpLog struct {
	ID        int64
	RunID     *int64
	Timestamp time.Time
	Level     string
	Message   string
	Source    *string
}

func New(postgresURL, sqlitePath string) (*Client, error) {
	ctx := context.Background()

	pgPool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, err
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		pgPool.Close()
		return nil, err
	}

	return &Client{
		pg:     pgPool,
		sqlite: sqliteDB,
		ctx:    ctx,
	}, nil
}

func (c *Client) Close() error {
	c.pg.Close()
	return c.sqlite.Close()
}

func (c *Client) GetTotals() (*Totals, error) {
	var t Totals
	err := c.pg.QueryRow(c.ctx, `
		SELECT
			COUNT(*)::int,
			COUNT(*) FILTER (WHERE is_available)::int,
			COUNT(*) FILTER (WHERE NOT is_available)::int,
			COUNT(*) FILTER (WHERE NOT is_notified)::int,
			COUNT(*) FILTER (WHERE price_changed_at > NOW() - INTERVAL '7 days')::int,
			COUNT(*) FILTER (WHERE description_changed_at > NOW() - INTERVAL '7 days')::int,
			COUNT(*) FILTER (WHERE last_checked_at IS NULL AND eligible_for_recheck)::int
		FROM cars
	`).Scan(&t.Cars, &t.Available, &t.Gone, &t.PendingNotify,
		&t.PriceChanges7d, &t.DescChanges7d, &t.NeverChecked)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) GetFilterStats() ([]FilterStats, error) {
	rows, err := c.pg.Query(c.ctx, `
		SELECT
			filter_name,
			COUNT(*)::int,
			COUNT(*) FILTER (WHERE is_available)::int,
			MAX(created_at)
		FROM cars
		GROUP BY filter_name
		ORDER BY filter_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []FilterStats
	for rows.Next() {
		var s FilterStats
		if err := rows.Scan(&s.FilterName, &s.Cars, &s.Available, &s.LastSeenAt); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (c *Client) GetCars(limit, offset int, availableOnly bool) ([]Car, error) {
	query := `
		SELECT
			id,
			title,
			link,
			price,
			previous_price,
			COALESCE(year, 0),
			COALESCE(mileage, 0),
			COALESCE(place, ''),
			filter_name,
			is_available,
			price_changes_count,
			last_checked_at
		FROM cars
	`
	if availableOnly {
		query += ` WHERE is_available`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := c.pg.Query(c.ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cars []Car
	for rows.Next() {
		var car Car
		err := rows.Scan(&car.ID, &car.Title, &car.Link, &car.Price, &car.PreviousPrice,
			&car.Year, &car.Mileage, &car.Place, &car.FilterName,
			&car.Available, &car.PriceChanges, &car.LastCheckedAt)
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}
	return cars, nil
}

func (c *Client) GetCarCount(availableOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM cars`
	if availableOnly {
		query += ` WHERE is_available`
	}
	var count int
	err := c.pg.QueryRow(c.ctx, query).Scan(&count)
	return count, err
}

func (c *Client) GetRecentMonitorRuns(limit int) ([]MonitorRun, error) {
	rows, err := c.sqlite.Query(`
		SELECT id, filter_name, started_at, finished_at, status,
			COALESCE(listings_found, 0), COALESCE(listings_new, 0), COALESCE(errors_count, 0)
		FROM monitor_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []MonitorRun
	for rows.Next() {
		var r MonitorRun
		var started string
		var finished *string
		if err := rows.Scan(&r.ID, &r.FilterName, &started, &finished, &r.Status,
			&r.ListingsFound, &r.ListingsNew, &r.ErrorsCount); err != nil {
			return nil, err
		}
		r.StartedAt = parseSQLiteTime(started)
		if finished != nil {
			t := parseSQLiteTime(*finished)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (c *Client) GetRecentCheckRuns(limit int) ([]CheckRun, error) {
	rows, err := c.sqlite.Query(`
		SELECT id, started_at, finished_at, status,
			COALESCE(checked, 0), COALESCE(price_changes, 0),
			COALESCE(description_changes, 0), COALESCE(unavailable, 0), COALESCE(errors_count, 0)
		FROM check_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CheckRun
	for rows.Next() {
		var r CheckRun
		var started string
		var finished *string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Checked,
			&r.PriceChanges, &r.DescriptionChanges, &r.Unavailable, &r.ErrorsCount); err != nil {
			return nil, err
		}
		r.StartedAt = parseSQLiteTime(started)
		if finished != nil {
			t := parseSQLiteTime(*finished)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (c *Client) GetRecentLogs(limit int, level *string) ([]OpLog, error) {
	var rows *sql.Rows
	var err error

	if level != nil && *level != "ALL" {
		rows, err = c.sqlite.Query(`
			SELECT id, run_id, timestamp, level, message, source
			FROM op_logs
			WHERE UPPER(level) = UPPER(?)
			ORDER BY timestamp DESC
			LIMIT ?
		`, *level, limit)
	} else {
		rows, err = c.sqlite.Query(`
			SELECT id, run_id, timestamp, level, message, source
			FROM op_logs
			ORDER BY timestamp DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []OpLog
	for rows.Next() {
		var l OpLog
		var ts string
		if err := rows.Scan(&l.ID, &l.RunID, &ts, &l.Level, &l.Message, &l.Source); err != nil {
			return nil, err
		}
		l.Timestamp = parseSQLiteTime(ts)
		logs = append(logs, l)
	}
	return logs, nil
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Commands go through SQLite (daemon polls from there)
func (c *Client) SendCommand(command string, params map[string]interface{}) error {
	paramsJSON := []byte("{}")
	if len(params) > 0 {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}

	_, err := c.sqlite.Exec(`
		INSERT INTO commands (command, params, created_at)
		VALUES (?, ?, datetime('now'))
	`, command, string(paramsJSON))
	return err
}

func (c *Client) MonitorNow() error {
	return c.SendCommand("monitor_now", nil)
}

func (c *Client) CheckNow() error {
	return c.SendCommand("check_now", nil)
}

func (c *Client) DropsAlert() error {
	return c.SendCommand("drops_alert", nil)
}

func (c *Client) Pause() error {
	return c.SendCommand("pause", nil)
}

func (c *Client) Resume() error {
	return c.SendCommand("resume", nil)
}
