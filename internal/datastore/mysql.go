package datastore

import (
	"fmt"
	"net"

	godriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/jkarvon/vikinglab/internal/conf"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	mysqlConf := &settings.Output.MySQL
	if mysqlConf.Host == "" || mysqlConf.Port == "" {
		return fmt.Errorf("mysql host and port must be configured")
	}
	if mysqlConf.Database == "" {
		return fmt.Errorf("mysql database name must be configured")
	}
	return nil
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	dsnConf := godriver.NewConfig()
	dsnConf.User = store.Settings.Output.MySQL.Username
	dsnConf.Passwd = store.Settings.Output.MySQL.Password
	dsnConf.Net = "tcp"
	dsnConf.Addr = net.JoinHostPort(store.Settings.Output.MySQL.Host, store.Settings.Output.MySQL.Port)
	dsnConf.DBName = store.Settings.Output.MySQL.Database
	dsnConf.ParseTime = true
	dsnConf.Params = map[string]string{"charset": "utf8mb4"}
	dsn := dsnConf.FormatDSN()

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", dsnConf.Addr)
}

// Close MySQL database connections
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
