package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Notifuse/outreach/internal/domain"
)

var contactColumns = []string{
	"id", "email", "status", "engagement_score", "attributes", "last_sent_at", "created_at", "updated_at",
}

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new PostgreSQL contact repository
func NewContactRepository(db *sql.DB) domain.ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := psql.Select(contactColumns...).
		From("contacts").
		Where("id = ANY(?)", pq.Array(ids)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	return r.query(ctx, query, args)
}

// ListEligible pages in id order so that successive pages are stable
func (r *contactRepository) ListEligible(ctx context.Context, filter domain.ContactFilter) ([]*domain.Contact, error) {
	builder := psql.Select(contactColumns...).
		From("contacts").
		Where(sq.Eq{"status": []string{
			string(domain.ContactStatusVerified),
			string(domain.ContactStatusVerifiedGeneric),
		}}).
		Where("TRIM(email) <> ''").
		OrderBy("id ASC")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	return r.query(ctx, query, args)
}

func (r *contactRepository) UpdateLastSentAt(ctx context.Context, ids []string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := psql.Update("contacts").
		Set("last_sent_at", sentAt).
		Set("updated_at", sentAt).
		Where("id = ANY(?)", pq.Array(ids)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update last_sent_at: %w", err)
	}
	return nil
}

func (r *contactRepository) query(ctx context.Context, query string, args []interface{}) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*domain.Contact
	for rows.Next() {
		var c domain.Contact
		var attributes []byte
		var lastSentAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Email, &c.Status, &c.EngagementScore, &attributes, &lastSentAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		if len(attributes) > 0 {
			if err := json.Unmarshal(attributes, &c.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attributes of contact %s: %w", c.ID, err)
			}
		}
		if lastSentAt.Valid {
			c.LastSentAt = &lastSentAt.Time
		}
		c.EngagementScore = domain.ClampEngagementScore(c.EngagementScore)
		contacts = append(contacts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return contacts, nil
}
