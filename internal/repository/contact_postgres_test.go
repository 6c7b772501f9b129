package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/internal/repository/testutil"
)

func TestContactRepository_ListEligible(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewContactRepository(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery(`FROM contacts WHERE status IN \(\$1,\$2\) AND TRIM\(email\) <> '' ORDER BY id ASC LIMIT 100 OFFSET 200`).
		WithArgs("verified", "verified_generic").
		WillReturnRows(sqlmock.NewRows(contactColumns).
			AddRow("c1", "ana@a.com", "verified", 14, []byte(`{"plan":"pro","tags":["vip"]}`), nil, now, now).
			AddRow("c2", "bo@b.com", "verified_generic", 3, nil, now, now, now))

	contacts, err := repo.ListEligible(context.Background(), domain.ContactFilter{Limit: 100, Offset: 200})
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	assert.Equal(t, "pro", contacts[0].Attributes["plan"])
	assert.Equal(t, 10, contacts[0].EngagementScore)
	assert.Nil(t, contacts[0].LastSentAt)
	require.NotNil(t, contacts[1].LastSentAt)
	assert.Equal(t, now, *contacts[1].LastSentAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_GetByIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("no ids", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		contacts, err := NewContactRepository(db).GetByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, contacts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		mock.ExpectQuery(`FROM contacts WHERE id = ANY\(\$1\)`).WillReturnError(errors.New("timeout"))

		_, err := NewContactRepository(db).GetByIDs(ctx, []string{"c1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query contacts")
	})

	t.Run("malformed attributes", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()
		now := time.Now().UTC()

		mock.ExpectQuery(`FROM contacts WHERE id = ANY\(\$1\)`).
			WillReturnRows(sqlmock.NewRows(contactColumns).
				AddRow("c1", "ana@a.com", "verified", 1, []byte(`{`), nil, now, now))

		_, err := NewContactRepository(db).GetByIDs(ctx, []string{"c1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal attributes")
	})
}

func TestContactRepository_UpdateLastSentAt(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()
	sentAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE contacts SET last_sent_at = \$1, updated_at = \$2 WHERE id = ANY\(\$3\)`).
		WithArgs(sentAt, sentAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := NewContactRepository(db).UpdateLastSentAt(context.Background(), []string{"c1", "c2"}, sentAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, NewContactRepository(db).UpdateLastSentAt(context.Background(), nil, sentAt))
}
