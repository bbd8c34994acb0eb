package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/feelwell/feelwell/internal/config"
	"github.com/feelwell/feelwell/internal/domain/chat"
	"github.com/feelwell/feelwell/internal/domain/identity"
	"github.com/feelwell/feelwell/internal/domain/messaging"
	"github.com/feelwell/feelwell/internal/domain/scheduling"
	"github.com/feelwell/feelwell/internal/platform/db"
	"github.com/feelwell/feelwell/internal/platform/mongodb"
)

// repositories groups the storage for every domain, backed by one driver.
type repositories struct {
	users         identity.UserRepository
	appointments  scheduling.AppointmentRepository
	conversations chat.ConversationRepository
	messages      messaging.DirectMessageRepository
	checker       db.Checker
	close         func()
}

// openRepositories connects to the store selected by STORE_DRIVER.
func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("store", "postgres").Msg("connected to database")
		return &repositories{
			users:         identity.NewUserRepoPG(pool),
			appointments:  scheduling.NewAppointmentRepoPG(pool),
			conversations: chat.NewConversationRepoPG(pool),
			messages:      messaging.NewDirectMessageRepoPG(pool),
			checker:       db.PoolChecker(pool),
			close:         pool.Close,
		}, nil

	case "mongo":
		store, err := mongodb.Connect(ctx, cfg.MongoConnectionURI(), cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		logger.Info().Str("store", "mongodb").Str("database", cfg.MongoDatabase).Msg("connected to database")
		return &repositories{
			users:         identity.NewUserRepoMongo(store),
			appointments:  scheduling.NewAppointmentRepoMongo(store),
			conversations: chat.NewConversationRepoMongo(store),
			messages:      messaging.NewDirectMessageRepoMongo(store),
			checker:       store,
			close: func() {
				if err := store.Close(context.Background()); err != nil {
					logger.Warn().Err(err).Msg("mongodb disconnect failed")
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
