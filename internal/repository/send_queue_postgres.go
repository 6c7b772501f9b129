package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Notifuse/outreach/internal/domain"
)

// psql is a Squirrel StatementBuilder configured for PostgreSQL
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sendQueueColumns = []string{
	"id", "campaign_id", "contact_ids", "subject", "from_email", "reply_to",
	"html_content", "text_content", "run_after", "status", "attempts", "stats",
	"last_error", "lease_owner", "lease_expires_at",
	"created_at", "updated_at", "started_at", "completed_at",
}

// SendQueueRepository implements domain.SendQueueRepository on Postgres
type SendQueueRepository struct {
	db     *sql.DB
	policy domain.DeliveryPolicy
	now    func() time.Time
}

// NewSendQueueRepository creates a send queue store. The policy provides the retry
// schedule applied by FailItem and ReapExpired.
func NewSendQueueRepository(db *sql.DB, policy domain.DeliveryPolicy) domain.SendQueueRepository {
	return &SendQueueRepository{
		db:     db,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue inserts all items in one transaction
func (r *SendQueueRepository) Enqueue(ctx context.Context, items []*domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}

	now := r.now()
	insert := psql.Insert("send_queue").Columns(
		"id", "campaign_id", "contact_ids", "subject", "from_email", "reply_to",
		"html_content", "text_content", "run_after", "status", "attempts",
		"created_at", "updated_at",
	)
	for _, item := range items {
		if err := item.Validate(r.policy.MaxBatchSize); err != nil {
			return domain.NewValidationError(err.Error())
		}
		item.CreatedAt = now
		item.UpdatedAt = now
		insert = insert.Values(
			item.ID, item.CampaignID, pq.Array(item.ContactIDs), item.Subject, item.FromEmail, item.ReplyTo,
			item.HTMLContent, item.TextContent, item.RunAfter, item.Status, item.Attempts,
			item.CreatedAt, item.UpdatedAt,
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert queue items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ClaimDue selects due candidates, then claims each one in its own transaction that
// re-reads the row under lock. Rows locked or already moved on by another worker are
// skipped without error.
func (r *SendQueueRepository) ClaimDue(ctx context.Context, limit int, owner string) ([]*domain.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := r.now()

	query, args, err := psql.Select("id").
		From("send_queue").
		Where(sq.Eq{"status": domain.QueueItemStatusPending}).
		Where(sq.LtOrEq{"run_after": now}).
		OrderBy("run_after ASC", "created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due items: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan queue item id: %w", err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	claimed := make([]*domain.QueueItem, 0, len(candidates))
	for _, id := range candidates {
		item, err := r.claimOne(ctx, id, owner, now)
		if err != nil {
			return claimed, err
		}
		if item != nil {
			claimed = append(claimed, item)
		}
	}
	return claimed, nil
}

func (r *SendQueueRepository) claimOne(ctx context.Context, id, owner string, now time.Time) (*domain.QueueItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := psql.Select(sendQueueColumns...).
		From("send_queue").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	item, err := scanQueueItem(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if item.Status != domain.QueueItemStatusPending || item.RunAfter.After(now) {
		return nil, nil
	}

	leaseExpires := now.Add(r.policy.LeaseTimeout)
	update, args, err := psql.Update("send_queue").
		Set("status", domain.QueueItemStatusProcessing).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("started_at", now).
		Set("lease_owner", owner).
		Set("lease_expires_at", leaseExpires).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": domain.QueueItemStatusPending}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	result, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue item %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	item.Status = domain.QueueItemStatusProcessing
	item.Attempts++
	item.StartedAt = &now
	item.LeaseOwner = &owner
	item.LeaseExpiresAt = &leaseExpires
	item.UpdatedAt = now
	return item, nil
}

// CompleteItem records the final stats of a claimed item
func (r *SendQueueRepository) CompleteItem(ctx context.Context, id, owner string, stats domain.QueueItemStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	now := r.now()

	query, args, err := psql.Update("send_queue").
		Set("status", domain.QueueItemStatusCompleted).
		Set("stats", statsJSON).
		Set("last_error", nil).
		Set("lease_owner", nil).
		Set("lease_expires_at", nil).
		Set("completed_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": domain.QueueItemStatusProcessing, "lease_owner": owner}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	return r.execGuarded(ctx, query, args, "complete")
}

// FailItem applies the retry policy to a claimed item
func (r *SendQueueRepository) FailItem(ctx context.Context, id, owner string, attempts int, errMsg string) (domain.QueueItemStatus, error) {
	now := r.now()
	update := psql.Update("send_queue").
		Set("last_error", errMsg).
		Set("lease_owner", nil).
		Set("lease_expires_at", nil).
		Set("updated_at", now)

	status := domain.QueueItemStatusPending
	if r.policy.IsTerminalAttempt(attempts) {
		status = domain.QueueItemStatusFailed
		update = update.Set("status", status).Set("completed_at", now)
	} else {
		update = update.Set("status", status).Set("run_after", now.Add(r.policy.BackoffDelay(attempts)))
	}

	query, args, err := update.
		Where(sq.Eq{"id": id, "status": domain.QueueItemStatusProcessing, "lease_owner": owner}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build query: %w", err)
	}

	if err := r.execGuarded(ctx, query, args, "fail"); err != nil {
		return "", err
	}
	return status, nil
}

func (r *SendQueueRepository) execGuarded(ctx context.Context, query string, args []interface{}, op string) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s queue item: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// ReapExpired sends items whose lease lapsed back to pending, or to failed once their
// attempts are exhausted. Each row is updated only if it is still expired.
func (r *SendQueueRepository) ReapExpired(ctx context.Context, limit int) (*domain.ReapResult, error) {
	result := &domain.ReapResult{}
	if limit <= 0 {
		return result, nil
	}
	now := r.now()

	query, args, err := psql.Select("id", "attempts").
		From("send_queue").
		Where(sq.Eq{"status": domain.QueueItemStatusProcessing}).
		Where(sq.Lt{"lease_expires_at": now}).
		OrderBy("lease_expires_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired leases: %w", err)
	}
	type expired struct {
		id       string
		attempts int
	}
	var items []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired item: %w", err)
		}
		items = append(items, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for _, e := range items {
		update := psql.Update("send_queue").
			Set("last_error", domain.LeaseExpiredError).
			Set("lease_owner", nil).
			Set("lease_expires_at", nil).
			Set("updated_at", now)
		terminal := r.policy.IsTerminalAttempt(e.attempts)
		if terminal {
			update = update.Set("status", domain.QueueItemStatusFailed).Set("completed_at", now)
		} else {
			update = update.Set("status", domain.QueueItemStatusPending).
				Set("run_after", now.Add(r.policy.BackoffDelay(e.attempts)))
		}

		q, a, err := update.
			Where(sq.Eq{"id": e.id, "status": domain.QueueItemStatusProcessing}).
			Where(sq.Lt{"lease_expires_at": now}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}
		res, err := r.db.ExecContext(ctx, q, a...)
		if err != nil {
			return result, fmt.Errorf("failed to reap queue item %s: %w", e.id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if terminal {
			result.Failed++
		} else {
			result.Requeued++
		}
	}
	return result, nil
}

func (r *SendQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	query, args, err := psql.Select(sendQueueColumns...).
		From("send_queue").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Entity: "queue item", ID: id}
	}
	return item, err
}

// GetStats counts items per status and sums recorded recipient outcomes
func (r *SendQueueRepository) GetStats(ctx context.Context, campaignID string) (*domain.QueueStats, error) {
	builder := psql.Select(
		"COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM((stats->>'sent')::int), 0)",
		"COALESCE(SUM((stats->>'failed')::int), 0)",
	).From("send_queue")
	if campaignID != "" {
		builder = builder.Where(sq.Eq{"campaign_id": campaignID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var stats domain.QueueStats
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed,
		&stats.Sent, &stats.SendFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &stats, nil
}

func (r *SendQueueRepository) EnqueuedContactIDs(ctx context.Context, campaignID string) ([]string, error) {
	query, args, err := psql.Select("DISTINCT unnest(contact_ids)").
		From("send_queue").
		Where(sq.Eq{"campaign_id": campaignID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enqueued contacts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SendQueueRepository) DeletePendingByCampaign(ctx context.Context, campaignID string) (int64, error) {
	query, args, err := psql.Delete("send_queue").
		Where(sq.Eq{"campaign_id": campaignID, "status": domain.QueueItemStatusPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending items: %w", err)
	}
	return result.RowsAffected()
}

func scanQueueItem(row interface{ Scan(dest ...interface{}) error }) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var contactIDs pq.StringArray
	var replyTo, textContent sql.NullString
	var statsJSON []byte
	var lastError, leaseOwner sql.NullString
	var leaseExpiresAt, startedAt, completedAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.CampaignID, &contactIDs, &item.Subject, &item.FromEmail, &replyTo,
		&item.HTMLContent, &textContent, &item.RunAfter, &item.Status, &item.Attempts, &statsJSON,
		&lastError, &leaseOwner, &leaseExpiresAt,
		&item.CreatedAt, &item.UpdatedAt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	item.ContactIDs = []string(contactIDs)
	item.ReplyTo = replyTo.String
	item.TextContent = textContent.String
	if len(statsJSON) > 0 {
		var stats domain.QueueItemStats
		if err := json.Unmarshal(statsJSON, &stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
		}
		item.Stats = &stats
	}
	if lastError.Valid {
		item.LastError = &lastError.String
	}
	if leaseOwner.Valid {
		item.LeaseOwner = &leaseOwner.String
	}
	if leaseExpiresAt.Valid {
		item.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	if startedAt.Valid {
		item.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	return &item, nil
}
