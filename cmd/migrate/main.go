package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

const usage = "up|down|status|version|create|validate"

func main() {
	cmd := flag.String("cmd", "up", "migration command: "+usage)
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	// create and validate work on files only and need no config.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.Create(target, *name, time.Now())
		exitOn(logg, "create migration", err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(logg, "validate migrations", migrate.Validate(source(*dir)))
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	exitOn(logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"driver": cfg.DB.Driver,
	})

	if cfg.Storage.UsesMongo() {
		exitOn(logg, "migrate", fmt.Errorf("mongo storage has no sql schema; indexes are ensured at startup"))
	}

	client, err := db.New(ctx, cfg.DB, logg)
	exitOn(logg, "connect database", err)
	defer client.Close()

	if client.IsSQLite() {
		if *cmd != "up" {
			exitOn(logg, "migrate", fmt.Errorf("-cmd=%s is not supported on sqlite", *cmd))
		}
		exitOn(logg, "sqlite auto-migrate", migrate.AutoMigrate(ctx, client.DB()))
		logg.Info(ctx, "sqlite schema migrated")
		return
	}

	sqlDB, err := client.DB().DB()
	exitOn(logg, "extract sql.DB", err)
	runner, err := migrate.NewRunner(sqlDB, source(*dir), logg)
	exitOn(logg, "build runner", err)

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = runner.Status(ctx)
	case "version":
		var target int64
		target, err = strconv.ParseInt(*version, 10, 64)
		if err != nil {
			err = fmt.Errorf("-version %q: want YYYYMMDDHHMMSS", *version)
			break
		}
		err = runner.To(ctx, target)
	default:
		err = fmt.Errorf("unknown -cmd %q, want %s", *cmd, usage)
	}
	exitOn(logg, *cmd, err)
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func exitOn(logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), step+" failed", err)
	os.Exit(1)
}
