package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/database"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/testutil"
)

func newMockRepo(t *testing.T) (*repository.ItemRepository, *testutil.MockDB) {
	mock := testutil.NewMockDB(t)
	db := database.NewFromSqlx(mock.DB, logger.New("test", "test"))
	return repository.NewItemRepository(db), mock
}

func TestItemCreate_AssignsIDAndTimestamps(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO items").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	item := &repository.ItemDefinition{
		Code:       "GLV-001",
		Name:       "Nitrile gloves",
		Category:   "consumables",
		Department: "microbiology",
		Unit:       "box",
		MinStock:   decimal.RequireFromString("10"),
	}

	err := repo.Create(context.Background(), item)
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID, "ID is assigned before insert")
	assert.Equal(t, now, item.CreatedAt)
	mock.ExpectationsWereMet(t)
}

func TestItemGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT * FROM items WHERE id = $1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)
	mock.ExpectationsWereMet(t)
}

func TestItemUpdate_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE items SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	item := &repository.ItemDefinition{
		ID:         "missing-id",
		Code:       "GLV-001",
		Name:       "Nitrile gloves",
		Category:   "consumables",
		Department: "microbiology",
		Unit:       "box",
	}

	err := repo.Update(context.Background(), item)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mock.ExpectationsWereMet(t)
}

func TestItemDelete_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM items WHERE id = $1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mock.ExpectationsWereMet(t)
}
