// Package db contains the database connection and query layer
package db

import (
	"fmt"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New opens the configured database and migrates the schema. Postgres is
// used when db.dsn is set, otherwise a local SQLite file.
func New() (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	if dsn := viper.GetString("db.dsn"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres, %w", err)
		}
	} else {
		db, err = gorm.Open(sqlite.Open(viper.GetString("db.path")))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite database, %w", err)
		}
	}

	err = db.AutoMigrate(model.User{}, model.AudioFile{}, model.ProcessingJob{}, model.SeparatedStem{}, model.UserUsage{})
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}
