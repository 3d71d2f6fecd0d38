package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-questbooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

func TestRemoteCatalog_GetQuest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/internal/v1/quests/q1":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"q1","title":"Catacombs","tickets_available":12,"price_per_ticket":2500}`)
		case "/internal/v1/quests/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewRemote(srv.URL, srv.Client(), staticToken("svc-token"), nil)
	ctx := context.Background()

	q, err := c.GetQuest(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "Catacombs", q.Title)
	assert.Equal(t, int64(12), q.TicketsAvailable)
	assert.Equal(t, int64(2500), q.PricePerTicket)

	_, err = c.GetQuest(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrQuestNotFound)

	_, err = c.GetQuest(ctx, "broken")
	assert.ErrorIs(t, err, models.ErrTransient)
}
