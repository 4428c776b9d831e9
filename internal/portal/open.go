package portal

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/auth"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/config"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/database"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/ids"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"go.uber.org/zap"
)

// Open builds a portal backed by the SQLite database named in appConfig.
// The returned close function releases the database handle.
func Open(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*Portal, func() error, error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewGormStore(db, time.Now)
	if err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, nil, err
	}
	tokens, err := auth.NewSessionTokens(auth.SessionTokenConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TTL:           appConfig.SessionTTL,
	})
	if err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, nil, err
	}

	assembled, err := New(ctx, Config{
		Store:              store,
		Tokens:             tokens,
		IDProvider:         ids.NewUUIDProvider(),
		Clock:              time.Now,
		AdminLink:          appConfig.AdminDashboardLink,
		SearchRetention:    appConfig.SearchRetention,
		RetentionSchedule:  appConfig.RetentionSchedule,
		ChangeFeedSchedule: appConfig.ChangeFeedSchedule,
		Logger:             logger,
	})
	if err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, nil, err
	}
	return assembled, sqlDB.Close, nil
}
