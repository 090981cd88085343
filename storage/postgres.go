package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"car_scrooper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate ensures the cars table and its indexes exist. The uniqueness
// constraint on link is the last-resort duplicate rejection; dedup itself
// happens in the ingestion service.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cars (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		link TEXT NOT NULL UNIQUE,
		price TEXT NOT NULL DEFAULT '',
		previous_price TEXT,
		brand TEXT NOT NULL DEFAULT '',
		year INT,
		mileage INT,
		features TEXT NOT NULL DEFAULT '',
		description TEXT,
		previous_description TEXT,
		date_posted TEXT NOT NULL DEFAULT '',
		place TEXT NOT NULL DEFAULT '',
		filter_name TEXT NOT NULL DEFAULT '',
		is_notified BOOLEAN NOT NULL DEFAULT FALSE,
		eligible_for_recheck BOOLEAN NOT NULL DEFAULT FALSE,
		price_changed_at TIMESTAMPTZ,
		description_changed_at TIMESTAMPTZ,
		price_changes_count INT NOT NULL DEFAULT 0,
		description_changes_count INT NOT NULL DEFAULT 0,
		last_checked_at TIMESTAMPTZ,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		unavailable_since TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_cars_brand ON cars(brand);
	CREATE INDEX IF NOT EXISTS idx_cars_filter_name ON cars(filter_name);
	CREATE INDEX IF NOT EXISTS idx_cars_year ON cars(year);
	CREATE INDEX IF NOT EXISTS idx_cars_mileage ON cars(mileage);
	CREATE INDEX IF NOT EXISTS idx_cars_price_changed_at ON cars(price_changed_at);
	CREATE INDEX IF NOT EXISTS idx_cars_description_changed_at ON cars(description_changed_at);
	CREATE INDEX IF NOT EXISTS idx_cars_last_checked_at ON cars(last_checked_at NULLS FIRST);`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

const carColumns = `id, title, link, price, previous_price, brand, year, mileage,
	features, description, previous_description, date_posted, place, filter_name,
	is_notified, eligible_for_recheck, price_changed_at, description_changed_at,
	price_changes_count, description_changes_count, last_checked_at,
	is_available, unavailable_since, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCar(row rowScanner) (*models.Car, error) {
	var c models.Car
	var price string
	err := row.Scan(
		&c.ID, &c.Title, &c.Link, &price, &c.PreviousPrice, &c.Brand, &c.Year, &c.Mileage,
		&c.Features, &c.Description, &c.PreviousDescription, &c.DatePosted, &c.Place, &c.FilterName,
		&c.Notified, &c.EligibleForRecheck, &c.PriceChangedAt, &c.DescriptionChangedAt,
		&c.PriceChanges, &c.DescriptionChanges, &c.LastCheckedAt,
		&c.Available, &c.UnavailableSince, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Price = models.NewPrice(price)
	return &c, nil
}

func (s *PostgresStore) collectCars(ctx context.Context, query string, args ...any) ([]*models.Car, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cars []*models.Car
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}
	return cars, rows.Err()
}

// =============================================================================
// Dedup / ingestion
// =============================================================================

func (s *PostgresStore) ExistsByLink(ctx context.Context, link string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cars WHERE link = $1)`, link).Scan(&exists)
	return exists, err
}

// ExistingLinks returns every canonical link already stored for a filter.
// The ingestion service passes this to the scraper so per-ad enrichment is
// skipped for known listings.
func (s *PostgresStore) ExistingLinks(ctx context.Context, filterName string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT link FROM cars WHERE filter_name = $1`, filterName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make(map[string]bool)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		links[link] = true
	}
	return links, rows.Err()
}

// InsertCar inserts a scraped candidate. A duplicate link is treated as
// success: the already-stored row is returned with inserted=false.
func (s *PostgresStore) InsertCar(ctx context.Context, raw *models.RawCar, filterName string) (*models.Car, bool, error) {
	query := `
		INSERT INTO cars (title, link, price, brand, year, mileage, features,
			description, date_posted, place, filter_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (link) DO NOTHING
		RETURNING ` + carColumns

	car, err := scanCar(s.pool.QueryRow(ctx, query,
		raw.Title, raw.Link, raw.Price, raw.Brand, raw.Year, raw.Mileage, raw.Features,
		raw.Description, raw.DatePosted, raw.Place, filterName,
	))
	if err == nil {
		return car, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	// Lost the race to a concurrent run; the stored row wins.
	existing, err := s.GetCarByLink(ctx, raw.Link)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) GetCarByLink(ctx context.Context, link string) (*models.Car, error) {
	car, err := scanCar(s.pool.QueryRow(ctx,
		`SELECT `+carColumns+` FROM cars WHERE link = $1`, link))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return car, nil
}

func (s *PostgresStore) GetCarByID(ctx context.Context, id int64) (*models.Car, error) {
	car, err := scanCar(s.pool.QueryRow(ctx,
		`SELECT `+carColumns+` FROM cars WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return car, nil
}

func (s *PostgresStore) GetCarsByIDs(ctx context.Context, ids []int64) ([]*models.Car, error) {
	return s.collectCars(ctx, `SELECT `+carColumns+` FROM cars WHERE id = ANY($1) ORDER BY id`, ids)
}

// MarkNotified flips both lifecycle flags: the car has been announced and
// from now on participates in change detection.
func (s *PostgresStore) MarkNotified(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cars SET is_notified = TRUE, eligible_for_recheck = TRUE, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) UnnotifiedCars(ctx context.Context) ([]*models.Car, error) {
	return s.collectCars(ctx,
		`SELECT `+carColumns+` FROM cars WHERE NOT is_notified ORDER BY created_at`)
}

// =============================================================================
// Change detection
// =============================================================================

// CarsNeedingRecheck selects listings due for a freshness check: never
// checked first, then oldest-checked. Cars unavailable for longer than the
// expiry are dropped from the rotation; a zero expiry keeps them forever.
// A non-positive limit returns the full eligible set.
func (s *PostgresStore) CarsNeedingRecheck(ctx context.Context, cutoff time.Time, unavailableExpiry time.Duration, limit int) ([]*models.Car, error) {
	var expiryCutoff *time.Time
	if unavailableExpiry > 0 {
		t := time.Now().Add(-unavailableExpiry)
		expiryCutoff = &t
	}

	query := `
		SELECT ` + carColumns + `
		FROM cars
		WHERE eligible_for_recheck
		  AND (last_checked_at IS NULL OR last_checked_at < $1)
		  AND (is_available OR $2::timestamptz IS NULL
		       OR unavailable_since IS NULL OR unavailable_since > $2)
		ORDER BY last_checked_at ASC NULLS FIRST`

	if limit > 0 {
		query += `
		LIMIT $3`
		return s.collectCars(ctx, query, cutoff, expiryCutoff, limit)
	}
	return s.collectCars(ctx, query, cutoff, expiryCutoff)
}

func (s *PostgresStore) RecordPriceChange(ctx context.Context, id int64, oldPrice, newPrice string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cars SET
			previous_price = $2,
			price = $3,
			price_changed_at = NOW(),
			price_changes_count = price_changes_count + 1,
			updated_at = NOW()
		WHERE id = $1`, id, oldPrice, newPrice)
	return err
}

func (s *PostgresStore) RecordDescriptionChange(ctx context.Context, id int64, oldDescription, newDescription string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cars SET
			previous_description = $2,
			description = $3,
			description_changed_at = NOW(),
			description_changes_count = description_changes_count + 1,
			updated_at = NOW()
		WHERE id = $1`, id, oldDescription, newDescription)
	return err
}

func (s *PostgresStore) TouchLastChecked(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cars SET last_checked_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

// MarkUnavailable soft-marks a listing the source no longer serves. History
// fields are left untouched so price/description timelines survive.
func (s *PostgresStore) MarkUnavailable(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cars SET
			is_available = FALSE,
			unavailable_since = COALESCE(unavailable_since, NOW()),
			updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

// =============================================================================
// Reporting
// =============================================================================

func (s *PostgresStore) RecentPriceChanges(ctx context.Context, since time.Time) ([]*models.Car, error) {
	return s.collectCars(ctx, `
		SELECT `+carColumns+` FROM cars
		WHERE price_changed_at > $1
		ORDER BY price_changed_at DESC`, since)
}

func (s *PostgresStore) RecentDescriptionChanges(ctx context.Context, since time.Time) ([]*models.Car, error) {
	return s.collectCars(ctx, `
		SELECT `+carColumns+` FROM cars
		WHERE description_changed_at > $1
		ORDER BY description_changed_at DESC`, since)
}

// CarsWithRecentPriceChange feeds the significant-drop analysis; numeric
// filtering happens in the analysis service because prices are stored as
// display strings.
func (s *PostgresStore) CarsWithRecentPriceChange(ctx context.Context, since time.Time) ([]*models.Car, error) {
	return s.collectCars(ctx, `
		SELECT `+carColumns+` FROM cars
		WHERE price_changed_at > $1 AND previous_price IS NOT NULL
		ORDER BY price_changed_at DESC`, since)
}

func (s *PostgresStore) NeverCheckedCars(ctx context.Context, limit int) ([]*models.Car, error) {
	return s.collectCars(ctx, `
		SELECT `+carColumns+` FROM cars
		WHERE last_checked_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
}

func (s *PostgresStore) CarsByFilter(ctx context.Context, filterName string, limit int) ([]*models.Car, error) {
	return s.collectCars(ctx, `
		SELECT `+carColumns+` FROM cars
		WHERE filter_name = $1
		ORDER BY created_at DESC
		LIMIT $2`, filterName, limit)
}

func (s *PostgresStore) ChangesSummary(ctx context.Context, since time.Time) (*models.ChangesSummary, error) {
	var summary models.ChangesSummary
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE price_changed_at > $1),
			COUNT(*) FILTER (WHERE description_changed_at > $1),
			COUNT(*) FILTER (WHERE NOT is_available AND unavailable_since > $1)
		FROM cars`, since).Scan(
		&summary.PriceChanges, &summary.DescriptionChanges, &summary.Unavailable)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
