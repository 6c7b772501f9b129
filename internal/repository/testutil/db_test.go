package testutil

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMockDB(t *testing.T) {
	db, mock, cleanup := SetupMockDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT count\(\*\) FROM send_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM send_queue").Scan(&n))
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupMockDB_CleanupClosesDB(t *testing.T) {
	db, mock, cleanup := SetupMockDB(t)
	mock.ExpectClose()

	cleanup()

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Error(t, db.Ping())
}
