package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/wagate/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func getDatabase(cfg config.DBConfig, workdir string) (*gorm.DB, error) {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		db, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	case "sqlite", "":
		path := filepath.Join(workdir, cfg.Name+".db")
		db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), gormCfg)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		return db, nil
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}
}

// protocolStoreDSN places the whatsmeow device store next to the
// application database. It is always sqlite: the protocol library manages
// its own schema and the data is local to one gateway process.
func protocolStoreDSN(workdir string) string {
	return "file:" + filepath.Join(workdir, "wameow.db") + "?_foreign_keys=on"
}
