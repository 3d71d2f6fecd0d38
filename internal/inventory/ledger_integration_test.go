//go:build integration

package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestLedgerRedis_NoOversellUnderContention(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	l := NewLedger(client, logger.NewWithWriter(nil), Options{KeyPrefix: "it:"})
	_, err = l.EnsureQuest(ctx, "q1", 25)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var holds []*models.Hold
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.Hold(ctx, "q1", 1, time.Minute)
			if err != nil {
				assert.ErrorIs(t, err, models.ErrInsufficientInventory)
				return
			}
			mu.Lock()
			holds = append(holds, h)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, holds, 25)

	// commit and release the same holds from competing goroutines
	for i, h := range holds {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_, _ = l.Commit(ctx, id)
		}(h.ID)
		go func(id string, i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = l.Release(ctx, id)
			}
		}(h.ID, i)
	}
	wg.Wait()

	snap, err := l.Snapshot(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Held)
	assert.GreaterOrEqual(t, snap.Available, int64(0))

	committed := 0
	for _, h := range holds {
		info, err := l.Inspect(ctx, h.ID)
		require.NoError(t, err)
		if info.State == models.HoldStateCommitted {
			committed++
		}
	}
	assert.Equal(t, int64(25-committed), snap.Available)
}
