package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/triviabot/bot"
	"github.com/korjavin/triviabot/config"
	"github.com/korjavin/triviabot/database"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	for _, dir := range []string{filepath.Dir(cfg.DatabasePath), cfg.QuestionsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	b, err := bot.New(cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize bot")
	}

	logger.Info().Msg("starting trivia bot")
	b.Start()
}
