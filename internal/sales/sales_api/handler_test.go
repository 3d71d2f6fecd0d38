package sales_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSales struct {
	err error
}

func (s stubSales) Summary(ctx context.Context, questID string) (*models.SalesSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SalesSummary{
		QuestID:      questID,
		TicketsSold:  3,
		TotalRevenue: 7500,
		Daily:        []models.QuestSales{{QuestID: questID, SaleDate: "2026-06-01", Tickets: 3, Revenue: 7500}},
	}, nil
}

func TestGetQuestSales(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubSales{}, logger.NewWithWriter(nil)).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quests/q1/sales", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var s models.SalesSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "q1", s.QuestID)
	assert.Equal(t, int64(3), s.TicketsSold)
	assert.Len(t, s.Daily, 1)
}

func TestGetQuestSales_StoreError(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubSales{err: errors.New("db down")}, logger.NewWithWriter(nil)).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quests/q1/sales", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
