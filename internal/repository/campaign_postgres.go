package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Notifuse/outreach/internal/domain"
)

var campaignColumns = []string{
	"id", "name", "subject", "from_email", "reply_to", "html_content", "text_content",
	"criteria", "is_active", "target_duration_hours", "metrics",
	"total_contacts", "enqueued_contacts", "started_at", "created_at", "updated_at",
}

// CampaignRepository implements domain.CampaignRepository
type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) domain.CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	criteria, metrics, err := marshalCampaignJSON(c)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert("campaigns").
		Columns(campaignColumns...).
		Values(
			c.ID, c.Name, c.Subject, c.FromEmail, c.ReplyTo, c.HTMLContent, c.TextContent,
			criteria, c.IsActive, c.TargetDurationHours, metrics,
			c.TotalContacts, c.EnqueuedContacts, c.StartedAt, c.CreatedAt, c.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query, args, err := psql.Select(campaignColumns...).
		From("campaigns").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Entity: "campaign", ID: id}
	}
	return c, err
}

func (r *CampaignRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Campaign, error) {
	builder := psql.Select(campaignColumns...).From("campaigns").OrderBy("created_at ASC")
	if activeOnly {
		builder = builder.Where(sq.Eq{"is_active": true})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	criteria, metrics, err := marshalCampaignJSON(c)
	if err != nil {
		return err
	}

	query, args, err := psql.Update("campaigns").
		Set("name", c.Name).
		Set("subject", c.Subject).
		Set("from_email", c.FromEmail).
		Set("reply_to", c.ReplyTo).
		Set("html_content", c.HTMLContent).
		Set("text_content", c.TextContent).
		Set("criteria", criteria).
		Set("is_active", c.IsActive).
		Set("target_duration_hours", c.TargetDurationHours).
		Set("metrics", metrics).
		Set("total_contacts", c.TotalContacts).
		Set("enqueued_contacts", c.EnqueuedContacts).
		Set("started_at", c.StartedAt).
		Set("updated_at", c.UpdatedAt).
		Where(sq.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &domain.ErrNotFound{Entity: "campaign", ID: c.ID}
	}
	return nil
}

// marshalCampaignJSON returns the criteria document and the metrics document, nil when unset
func marshalCampaignJSON(c *domain.Campaign) ([]byte, interface{}, error) {
	criteria, err := json.Marshal(c.Criteria)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal criteria: %w", err)
	}
	if c.Metrics == nil {
		return criteria, nil, nil
	}
	metrics, err := json.Marshal(c.Metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return criteria, metrics, nil
}

func scanCampaign(row interface{ Scan(dest ...interface{}) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	var replyTo, textContent sql.NullString
	var criteria, metrics []byte
	var target sql.NullFloat64
	var startedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.FromEmail, &replyTo, &c.HTMLContent, &textContent,
		&criteria, &c.IsActive, &target, &metrics,
		&c.TotalContacts, &c.EnqueuedContacts, &startedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaign: %w", err)
	}

	c.ReplyTo = replyTo.String
	c.TextContent = textContent.String
	if err := json.Unmarshal(criteria, &c.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if len(metrics) > 0 {
		var m domain.WarmupMetrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		c.Metrics = &m
	}
	if target.Valid {
		c.TargetDurationHours = &target.Float64
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	return &c, nil
}
