package models

import "time"

// Theme is a named trivia category.
type Theme struct {
	ID   int64
	Name string
}

// Question belongs to exactly one theme. Immutable once imported.
type Question struct {
	ID      int64
	ThemeID int64
	Text    string
	Answer  string
	Asked   bool
}

// NewQuestion is a question parsed from an import file, before it gets an ID.
type NewQuestion struct {
	Text   string
	Answer string
}

// Player identifies a chat participant inside a round.
type Player struct {
	ID   int64
	Name string
}

// Rating is a cumulative per-chat, per-player stats row.
type Rating struct {
	ChatID       int64
	UserID       int64
	Username     string
	TotalGames   int
	Wins         int
	RightAnswers int
}

// Settings are the runtime-tunable round parameters. They are persisted by the
// settings store and snapshotted by each session at start, so changing them
// never affects a round already in flight.
type Settings struct {
	MaxScore          int
	AnswerDelay       time.Duration
	InactivityTimeout time.Duration
	BotPlays          bool
}

// DefaultSettings returns the values used until an admin changes them.
func DefaultSettings() Settings {
	return Settings{
		MaxScore:          10,
		AnswerDelay:       10 * time.Second,
		InactivityTimeout: 120 * time.Second,
		BotPlays:          false,
	}
}
