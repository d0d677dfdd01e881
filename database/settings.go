package database

import (
	"context"
	"strconv"
	"time"

	"github.com/korjavin/triviabot/models"
)

const (
	settingMaxScore          = "max_score"
	settingAnswerDelay       = "answer_delay_seconds"
	settingInactivityTimeout = "inactivity_timeout_seconds"
	settingBotPlays          = "bot_plays"
)

// Settings loads the round settings, falling back to defaults for keys that
// were never saved.
func (db *DB) Settings(ctx context.Context) (models.Settings, error) {
	s := models.DefaultSettings()

	rows, err := db.conn.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return s, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return s, err
		}
		switch key {
		case settingMaxScore:
			if n, err := strconv.Atoi(value); err == nil {
				s.MaxScore = n
			}
		case settingAnswerDelay:
			if n, err := strconv.Atoi(value); err == nil {
				s.AnswerDelay = time.Duration(n) * time.Second
			}
		case settingInactivityTimeout:
			if n, err := strconv.Atoi(value); err == nil {
				s.InactivityTimeout = time.Duration(n) * time.Second
			}
		case settingBotPlays:
			s.BotPlays = value == "true"
		}
	}
	return s, rows.Err()
}

// SaveSettings persists the round settings.
func (db *DB) SaveSettings(ctx context.Context, s models.Settings) error {
	values := map[string]string{
		settingMaxScore:          strconv.Itoa(s.MaxScore),
		settingAnswerDelay:       strconv.Itoa(int(s.AnswerDelay / time.Second)),
		settingInactivityTimeout: strconv.Itoa(int(s.InactivityTimeout / time.Second)),
		settingBotPlays:          strconv.FormatBool(s.BotPlays),
	}

	for key, value := range values {
		_, err := db.conn.ExecContext(ctx,
			"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
		if err != nil {
			return err
		}
	}
	return nil
}
