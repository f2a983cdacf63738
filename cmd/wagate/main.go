package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/adminapi"
	"github.com/talkincode/wagate/internal/app"
	"github.com/talkincode/wagate/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cfile    = flag.String("c", "wagate.yml", "config file")
	showVer  = flag.Bool("v", false, "print version and exit")
	initDB   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	buildVer = "dev"
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println("wagate", buildVer)
		return
	}

	cfg := config.LoadConfig(*cfile)
	if err := os.MkdirAll(cfg.System.Workdir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "workdir:", err)
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	if err := application.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	defer application.Release()

	if *initDB {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	webserver.Init(cfg, application.DB())
	adminapi.Init(cfg, application.Registry(), application.Hub())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.StartBackgroundJobs(ctx)
	application.ResumeSessions(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webserver.Listen()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return webserver.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("wagate exited with error", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("wagate stopped")
}
