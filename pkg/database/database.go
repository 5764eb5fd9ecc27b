package database

import (
	"b3pov/config"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDBConnection opens the postgres database used for bug records. It
// returns a nil handle when DATABASE_URL is unset.
func NewDBConnection(appConfig *config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	if appConfig.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, bug records will not be stored")
		return nil, nil
	}
	db, err := gorm.Open(postgres.Open(appConfig.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Error("failed to connect database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	logger.Debug("connected to database")
	return db, nil
}
