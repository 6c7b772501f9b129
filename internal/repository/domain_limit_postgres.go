package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Notifuse/outreach/internal/domain"
)

// conflict retries back off from conflictBackoffBase up to conflictBackoffMax, with jitter
const (
	conflictBackoffBase = 5 * time.Millisecond
	conflictBackoffMax  = 250 * time.Millisecond
)

var domainLimitColumns = []string{
	"domain", "hourly_count", "hourly_window_start", "daily_count", "daily_window_start", "updated_at",
}

// DomainLimitRepository stores per-domain counters in Postgres, one row per domain
type DomainLimitRepository struct {
	db      *sql.DB
	backoff func(attempt int) time.Duration
}

func NewDomainLimitRepository(db *sql.DB) domain.DomainLimitRepository {
	return &DomainLimitRepository{db: db, backoff: conflictBackoff}
}

func (r *DomainLimitRepository) GetCounters(ctx context.Context, domains []string) (map[string]*domain.DomainLimitCounter, error) {
	counters := make(map[string]*domain.DomainLimitCounter, len(domains))
	if len(domains) == 0 {
		return counters, nil
	}

	query, args, err := psql.Select(domainLimitColumns...).
		From("domain_limits").
		Where("domain = ANY(?)", pq.Array(domains)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query domain limits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanDomainLimit(rows)
		if err != nil {
			return nil, err
		}
		counters[c.Domain] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counters, nil
}

// Increment runs read-modify-write on the domain row under a row lock. Serialization
// failures and deadlocks restart the whole transaction until ctx is done.
func (r *DomainLimitRepository) Increment(ctx context.Context, domainName string, count int, now time.Time, policy domain.DeliveryPolicy) (*domain.DomainLimitCounter, int, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		counter, granted, err := r.incrementOnce(ctx, domainName, count, now, policy)
		if err == nil {
			return counter, granted, nil
		}
		if !isRetryableTxError(err) {
			return nil, 0, err
		}
		if err := sleepContext(ctx, r.backoff(attempt)); err != nil {
			return nil, 0, fmt.Errorf("failed to increment domain %s: %w", domainName, err)
		}
	}
}

// conflictBackoff doubles per attempt and picks a random delay in the upper half
func conflictBackoff(attempt int) time.Duration {
	d := conflictBackoffMax
	if attempt < 6 {
		d = conflictBackoffBase << attempt
		if d > conflictBackoffMax {
			d = conflictBackoffMax
		}
	}
	return d/2 + rand.N(d/2+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *DomainLimitRepository) incrementOnce(ctx context.Context, domainName string, count int, now time.Time, policy domain.DeliveryPolicy) (*domain.DomainLimitCounter, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert, args, err := psql.Insert("domain_limits").
		Columns(domainLimitColumns...).
		Values(domainName, 0, now, 0, now, now).
		Suffix("ON CONFLICT (domain) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to create domain counter: %w", err)
	}

	query, args, err := psql.Select(domainLimitColumns...).
		From("domain_limits").
		Where(sq.Eq{"domain": domainName}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}
	counter, err := scanDomainLimit(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, 0, err
	}

	granted := counter.ApplyIncrement(count, now, policy)

	update, args, err := psql.Update("domain_limits").
		Set("hourly_count", counter.HourlyCount).
		Set("hourly_window_start", counter.HourlyWindowStart).
		Set("daily_count", counter.DailyCount).
		Set("daily_window_start", counter.DailyWindowStart).
		Set("updated_at", counter.UpdatedAt).
		Where(sq.Eq{"domain": domainName}).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to update domain counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return counter, granted, nil
}

// isRetryableTxError matches serialization_failure and deadlock_detected
func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func scanDomainLimit(row interface{ Scan(dest ...interface{}) error }) (*domain.DomainLimitCounter, error) {
	var c domain.DomainLimitCounter
	err := row.Scan(&c.Domain, &c.HourlyCount, &c.HourlyWindowStart, &c.DailyCount, &c.DailyWindowStart, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan domain limit: %w", err)
	}
	return &c, nil
}
