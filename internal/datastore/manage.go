package datastore

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jkarvon/vikinglab/internal/logging"
)

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	log := getLogger().With("db_type", dbType)

	tableMappings := []struct {
		model any
		name  string
	}{
		{&Patient{}, "patients"},
		{&Session{}, "sessions"},
		{&Channel{}, "channels"},
		{&Label{}, "labels"},
		{&Annotation{}, "annotations"},
	}

	for _, table := range tableMappings {
		tableStart := time.Now()
		tableExists := db.Migrator().HasTable(table.model)

		if err := db.AutoMigrate(table.model); err != nil {
			enhancedErr := criticalError(err, "auto_migrate_table", "schema_migration_failed",
				"db_type", dbType,
				"table", table.name,
				"action", "database_schema_setup")

			log.Error("Table migration failed",
				"table", table.name,
				"error", enhancedErr)
			return enhancedErr
		}

		if debug {
			action := "updated"
			if !tableExists {
				action = "created"
			}
			log.Debug("Table migration completed",
				"table", table.name,
				"action", action,
				"duration", time.Since(tableStart))
		}
	}

	if debug {
		log.Debug("Database migration completed",
			"connection", connectionInfo,
			"total_duration", time.Since(migrationStart),
			"tables_migrated", len(tableMappings))
	}

	return nil
}

// getLogger returns the datastore service logger, falling back to the
// default logger before logging.Init has run (tests).
func getLogger() *slog.Logger {
	if l := logging.ForService("datastore"); l != nil {
		return l
	}
	return slog.Default()
}
