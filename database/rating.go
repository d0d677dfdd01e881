package database

import (
	"context"
	"fmt"

	"github.com/korjavin/triviabot/models"
)

// Rating increments are strictly additive: the row is created on first use
// and every call applies a +1, never an overwrite.

// AddGamePlayed counts one more game for a player in a chat.
func (db *DB) AddGamePlayed(ctx context.Context, chatID int64, player models.Player) error {
	return db.addRating(ctx, chatID, player, 1, 0, 0)
}

// AddCorrectAnswer counts one more correct answer for a player in a chat.
func (db *DB) AddCorrectAnswer(ctx context.Context, chatID int64, player models.Player) error {
	return db.addRating(ctx, chatID, player, 0, 0, 1)
}

// AddWin counts one more round win for a player in a chat.
func (db *DB) AddWin(ctx context.Context, chatID int64, player models.Player) error {
	return db.addRating(ctx, chatID, player, 0, 1, 0)
}

func (db *DB) addRating(ctx context.Context, chatID int64, player models.Player, games, wins, answers int) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO rating (chat_id, user_id, username, total_games, wins, right_answers)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			username = excluded.username,
			total_games = total_games + excluded.total_games,
			wins = wins + excluded.wins,
			right_answers = right_answers + excluded.right_answers
	`, chatID, player.ID, player.Name, games, wins, answers)
	if err != nil {
		return fmt.Errorf("failed to update rating of %q in chat %d: %w", player.Name, chatID, err)
	}
	return nil
}

// Top returns the leaderboard of a chat ordered by one of "games", "wins" or
// "answers" (the default), descending.
func (db *DB) Top(ctx context.Context, chatID int64, orderBy string, limit int) ([]models.Rating, error) {
	column := "right_answers"
	switch orderBy {
	case "games":
		column = "total_games"
	case "wins":
		column = "wins"
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT chat_id, user_id, username, total_games, wins, right_answers
		FROM rating WHERE chat_id = ?
		ORDER BY `+column+` DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var top []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ChatID, &r.UserID, &r.Username, &r.TotalGames, &r.Wins, &r.RightAnswers); err != nil {
			return nil, err
		}
		top = append(top, r)
	}
	return top, rows.Err()
}
