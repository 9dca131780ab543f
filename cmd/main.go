package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Formula-SAE/taskbot/internal/bots/discord"
	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/db"
	"github.com/Formula-SAE/taskbot/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default $CONFIG_PATH or config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Info().Int("categories", len(cfg.Categories)).Msg("=== Starting task bot ===")

	var DB *db.DB
	if cfg.Database.URL != "" {
		logger.Info().Msg("Initializing database connection...")
		gormDB, err := gorm.Open(sqlite.New(sqlite.Config{
			DriverName: "libsql",
			DSN:        cfg.Database.URL,
		}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err != nil {
			logger.Fatalf("Failed to create database connection: %v", err)
		}

		if err := db.Migrate(gormDB); err != nil {
			logger.Fatalf("Failed to run database migrations: %v", err)
		}
		DB = db.NewDB(gormDB)
		logger.Info().Msg("Task journal enabled")
	} else {
		logger.Info().Msg("DB_URL not set, task journal disabled")
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatalf("Failed to create Discord session: %v", err)
	}

	discordBot := discord.NewDiscordBot(session, cfg, DB)

	logger.Info().Msg("Starting Discord bot...")
	close, err := discordBot.Start()
	if err != nil {
		logger.Fatalf("Failed to start Discord bot: %v", err)
	}
	defer close()
	logger.Info().Msg("Bot is running. Press Ctrl+C to stop.")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Received shutdown signal, stopping bot...")
}
