package timerstore

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type store interface {
	Get(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error)
	Set(ctx context.Context, state domain.TimerState) error
	Delete(ctx context.Context, boardId domain.BoardId) error
}

func exercise(t *testing.T, s store) {
	ctx := context.Background()
	remaining := int64(190)

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)

	running := domain.TimerState{Id: "t1", BoardId: "b1", Duration: 300, StartTime: 1_700_000_000_000, IsActive: true, CreatedBy: "owner@x.com"}
	require.NoError(t, s.Set(ctx, running))
	got, err = s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, &running, got)

	paused := running
	paused.IsPaused = true
	paused.RemainingTime = &remaining
	require.NoError(t, s.Set(ctx, paused))
	got, err = s.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.RemainingTime)
	assert.Equal(t, int64(190), *got.RemainingTime)

	// returned state is a copy
	*got.RemainingTime = 1
	again, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(190), *again.RemainingTime)

	require.NoError(t, s.Delete(ctx, "b1"))
	require.NoError(t, s.Delete(ctx, "b1"))
	got, err = s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	exercise(t, NewRedis(client, "retro-test:"))
}
