package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linchuan/factorhub/internal/frame"
)

// Repository reads the persisted field tables. The schema is one table per
// (field, frequency) pair under the data schema, each row being
// (security, period_end, value, disclosed_on), with SQL NULL as the
// unambiguous missing marker. Writing those tables is the ingestion
// collaborator's job; this side only loads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over an open connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// tableName addresses the table of one (field, frequency) pair.
func tableName(spec FieldSpec) (string, error) {
	if !tableNameRe.MatchString(spec.Name) {
		return "", fmt.Errorf("repository: field name %q is not table-addressable", spec.Name)
	}
	return fmt.Sprintf("data.field_%s_%s", spec.Name, spec.Frequency), nil
}

// LoadField reads every native observation of one field.
func (r *Repository) LoadField(ctx context.Context, spec FieldSpec) ([]Observation, error) {
	table, err := tableName(spec)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT security, period_end, value, disclosed_on
		FROM %s
		WHERE value IS NOT NULL
		ORDER BY period_end ASC, security ASC
	`, table)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: load field %q: %w", spec.Name, err)
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var (
			o           Observation
			disclosedOn *time.Time
		)
		if err := rows.Scan(&o.Security, &o.PeriodEnd, &o.Value, &disclosedOn); err != nil {
			return nil, fmt.Errorf("repository: scan field %q: %w", spec.Name, err)
		}
		o.DisclosedOn = disclosedOn
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// LoadCalendar reads the registered trading-day calendar.
func (r *Repository) LoadCalendar(ctx context.Context) ([]time.Time, error) {
	query := `
		SELECT trading_day
		FROM data.trading_calendar
		ORDER BY trading_day ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: load calendar: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("repository: scan calendar: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// LoadUniverse reads the active universe snapshot: securities not delisted
// as of the snapshot date. Identifiers are never reused, so a delisted
// security simply drops out of later snapshots.
func (r *Repository) LoadUniverse(ctx context.Context, asOf time.Time) ([]string, error) {
	query := `
		SELECT security
		FROM data.securities
		WHERE listed_on <= $1
		  AND (delisted_on IS NULL OR delisted_on > $1)
		ORDER BY security ASC
	`

	rows, err := r.pool.Query(ctx, query, dateOnly(asOf))
	if err != nil {
		return nil, fmt.Errorf("repository: load universe: %w", err)
	}
	defer rows.Close()

	var securities []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("repository: scan universe: %w", err)
		}
		securities = append(securities, s)
	}
	return securities, rows.Err()
}

// LoadFieldCatalog reads the registered field specs from the catalog table.
func (r *Repository) LoadFieldCatalog(ctx context.Context) ([]FieldSpec, error) {
	query := `
		SELECT name, frequency, lag_days, staleness_days
		FROM data.fields
		ORDER BY name ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: load field catalog: %w", err)
	}
	defer rows.Close()

	var specs []FieldSpec
	for rows.Next() {
		var spec FieldSpec
		if err := rows.Scan(&spec.Name, &spec.Frequency, &spec.LagDays, &spec.StalenessDays); err != nil {
			return nil, fmt.Errorf("repository: scan field catalog: %w", err)
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("repository: field catalog: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// LoadStore performs the front-loaded data load: calendar, universe, then
// every registered field, returning a frozen store. The caller owns the
// pool and closes it once this returns, on every exit path.
func LoadStore(ctx context.Context, repo *Repository, asOf time.Time, specs []FieldSpec) (*Store, error) {
	days, err := repo.LoadCalendar(ctx)
	if err != nil {
		return nil, err
	}
	calendar, err := frame.NewCalendar(days)
	if err != nil {
		return nil, err
	}

	universe, err := repo.LoadUniverse(ctx, asOf)
	if err != nil {
		return nil, err
	}

	s, err := New(calendar, universe)
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := s.RegisterField(spec); err != nil {
			return nil, err
		}
		obs, err := repo.LoadField(ctx, spec)
		if err != nil {
			return nil, err
		}
		if err := s.Append(spec.Name, obs); err != nil {
			return nil, err
		}
	}

	s.Freeze()
	return s, nil
}
