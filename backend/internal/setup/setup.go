package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/itchan-dev/retroboard/backend/internal/handler"
	"github.com/itchan-dev/retroboard/backend/internal/presence"
	"github.com/itchan-dev/retroboard/backend/internal/realtime"
	"github.com/itchan-dev/retroboard/backend/internal/service"
	"github.com/itchan-dev/retroboard/backend/internal/service/utils"
	"github.com/itchan-dev/retroboard/backend/internal/storage/pg"
	"github.com/itchan-dev/retroboard/backend/internal/storage/timerstore"
	"github.com/itchan-dev/retroboard/shared/config"
	"github.com/itchan-dev/retroboard/shared/jwt"
	"github.com/itchan-dev/retroboard/shared/logger"
	mw "github.com/itchan-dev/retroboard/shared/middleware"
)

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Storage        *pg.Storage
	Broker         realtime.Broker
	Presence       *presence.Registry
	Handler        *handler.Handler
	AuthMiddleware *mw.Auth
	Config         *config.Config
}

// SetupDependencies initializes all dependencies required for the application.
func SetupDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	var (
		broker realtime.Broker
		timers service.TimerStore
	)
	switch cfg.Public.Realtime.Broker {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Public.Redis.Addr,
			Password: cfg.Private.RedisPassword,
			DB:       cfg.Public.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			storage.Cleanup()
			redisClient.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		broker = realtime.NewRedisBroker(redisClient, cfg.Public.Redis.KeyPrefix)
		timers = timerstore.NewRedis(redisClient, cfg.Public.Redis.KeyPrefix)
	default:
		broker = realtime.NewMemoryBroker()
		timers = timerstore.NewMemory()
	}
	logger.Log.Info("realtime broker ready", "broker", cfg.Public.Realtime.Broker, "instance", cfg.Instance())

	hub := realtime.NewHub(broker)
	registry := presence.New(storage, storage, hub, presence.WithInstance(cfg.Instance()))
	text := utils.NewTextRenderer()

	timer := service.NewTimer(timers, storage, hub)
	board := service.NewBoard(storage, timer)
	sticker := service.NewSticker(storage, text, hub)
	vote := service.NewVote(storage, hub)
	comment := service.NewComment(storage, text, hub)

	gateway := realtime.NewGateway(hub, registry, timer)
	h := handler.New(board, sticker, vote, comment, gateway, storage, cfg)

	return &Dependencies{
		Storage:        storage,
		Broker:         broker,
		Presence:       registry,
		Handler:        h,
		AuthMiddleware: mw.NewAuth(jwt.New(cfg.JwtKey(), cfg.JwtTTL())),
		Config:         cfg,
	}, nil
}

// Cleanup releases resources in reverse order of creation.
// The redis broker owns the redis client and closes it.
func (d *Dependencies) Cleanup() error {
	d.Handler.Stop()
	return errors.Join(d.Broker.Close(), d.Storage.Cleanup())
}
