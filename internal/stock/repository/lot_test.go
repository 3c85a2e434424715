package repository_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/labstock/labstock-backend/internal/stock/repository"
)

func TestLotIsExpired(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	assert.True(t, (&repository.Lot{ExpiryDate: &past}).IsExpired(now))
	assert.False(t, (&repository.Lot{ExpiryDate: &future}).IsExpired(now))
	assert.False(t, (&repository.Lot{}).IsExpired(now), "undated lots never expire")
}

func TestValidWasteType(t *testing.T) {
	assert.True(t, repository.ValidWasteType(repository.WasteTypeExpired))
	assert.True(t, repository.ValidWasteType(repository.WasteTypeRecalled))
	assert.False(t, repository.ValidWasteType("LOST"))
	assert.False(t, repository.ValidWasteType("expired"), "waste types are case sensitive")
}
