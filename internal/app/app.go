package app

import (
	"context"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/credstore"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/eventhub"
	"github.com/talkincode/wagate/internal/session"
	"github.com/talkincode/wagate/internal/wameow"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	hub       *eventhub.Hub
	creds     credstore.Store
	boltStore *credstore.BoltStore
	factory   *wameow.Factory
	registry  *session.Registry
}

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

func (a *Application) Hub() *eventhub.Hub {
	return a.hub
}

func (a *Application) Registry() *session.Registry {
	return a.registry
}

func (a *Application) Creds() credstore.Store {
	return a.creds
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Init(cfg *config.AppConfig) error {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	a.initLogger(cfg)

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	a.gormDB, err = getDatabase(cfg.Database, cfg.System.Workdir)
	if err != nil {
		return err
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.creds, err = a.initCredStore(cfg)
	if err != nil {
		return err
	}

	a.factory, err = wameow.NewFactory(context.Background(),
		"sqlite3", protocolStoreDSN(cfg.System.Workdir), cfg.WhatsApp.DeviceName)
	if err != nil {
		return err
	}

	a.hub = eventhub.New()
	a.registry = session.NewRegistry(session.Deps{
		Factory:     a.factory,
		Creds:       a.creds,
		Hub:         a.hub,
		Policy:      session.NewBackoffPolicy(cfg.Reconnect.MinDelay, cfg.Reconnect.MaxDelay),
		Records:     NewGormRecordStore(a.gormDB),
		CountryCode: cfg.WhatsApp.CountryCode,
	})

	a.initJob()
	return nil
}

func (a *Application) initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

func (a *Application) initCredStore(cfg *config.AppConfig) (credstore.Store, error) {
	switch cfg.Credential.Backend {
	case "gorm", "database":
		return credstore.NewGormStore(a.gormDB), nil
	default:
		bolt, err := credstore.NewBoltStore(cfg.Credential.BoltFile)
		if err != nil {
			return nil, err
		}
		a.boltStore = bolt
		return bolt, nil
	}
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			err2, is := err1.(error)
			if is {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
	}
}

// ResumeSessions reconnects sessions the previous process left live.
// Rows stuck in a transient linking state are reset to disconnected; rows
// that were connected get an automatic reconnect attempt with the stored
// credentials.
func (a *Application) ResumeSessions(ctx context.Context) {
	var recs []domain.WaSession
	if err := a.gormDB.Where("state <> ?", string(session.StateDisconnected)).Find(&recs).Error; err != nil {
		zap.L().Warn("resume: query failed", zap.Error(err))
		return
	}
	for _, rec := range recs {
		if rec.State != string(session.StateConnected) {
			a.gormDB.Model(&domain.WaSession{}).Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"state":      string(session.StateDisconnected),
					"updated_at": time.Now(),
				})
			continue
		}
		ds := a.registry.GetOrCreate(rec.ID)
		if err := ds.Connect(ctx, session.ConnectOpts{Method: session.LinkQR}); err != nil {
			zap.L().Warn("resume: reconnect failed",
				zap.String("session_id", rec.ID), zap.Error(err))
		} else {
			zap.L().Info("resume: reconnecting session", zap.String("session_id", rec.ID))
		}
	}
}

func (a *Application) StartBackgroundJobs(ctx context.Context) {
	if a.sched != nil {
		a.sched.Start()
	}
}

// Release releases application resources.
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.registry != nil {
		a.registry.Shutdown()
	}
	if a.boltStore != nil {
		_ = a.boltStore.Close()
	}
	_ = zap.L().Sync()
}
