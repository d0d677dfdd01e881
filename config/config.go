package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the static process configuration. Round settings (max score,
// timers, bot plays) live in the database instead, because admins change them
// at runtime.
type Config struct {
	BotToken     string `env:"BOT_TOKEN,required"`
	DatabasePath string `env:"DB_PATH" envDefault:"./data/trivia.db"`
	QuestionsDir string `env:"QUESTIONS_DIR" envDefault:"./data/questions"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment, after loading a local
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
