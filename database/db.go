package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/korjavin/triviabot/models"
)

// ErrThemeExists is returned by ImportTheme when the theme was imported before
// and force was not requested.
var ErrThemeExists = errors.New("theme already imported")

// DB handles all database operations
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err = createTables(db); err != nil {
		return nil, err
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS theme (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(255) UNIQUE
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS question (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			theme_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			answer TEXT NOT NULL,
			asked BOOLEAN NOT NULL DEFAULT 0,
			FOREIGN KEY (theme_id) REFERENCES theme (id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rating (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			username VARCHAR(255),
			total_games INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			right_answers INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, user_id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// Themes returns all themes, including ones without questions.
func (db *DB) Themes(ctx context.Context) ([]models.Theme, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM theme ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var themes []models.Theme
	for rows.Next() {
		var t models.Theme
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

// ThemeByName returns the theme with the given name, or nil if absent.
func (db *DB) ThemeByName(ctx context.Context, name string) (*models.Theme, error) {
	var t models.Theme
	err := db.conn.QueryRowContext(ctx, "SELECT id, name FROM theme WHERE name = ?", name).
		Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTheme inserts a new theme and returns it.
func (db *DB) CreateTheme(ctx context.Context, name string) (*models.Theme, error) {
	res, err := db.conn.ExecContext(ctx, "INSERT INTO theme (name) VALUES (?)", name)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Theme{ID: id, Name: name}, nil
}

// InsertQuestion adds a question to a theme.
func (db *DB) InsertQuestion(ctx context.Context, themeID int64, text, answer string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO question (theme_id, text, answer) VALUES (?, ?, ?)",
		themeID, text, answer)
	return err
}

// Question returns a question by ID.
func (db *DB) Question(ctx context.Context, id int64) (*models.Question, error) {
	var q models.Question
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, theme_id, text, answer, asked FROM question WHERE id = ?", id).
		Scan(&q.ID, &q.ThemeID, &q.Text, &q.Answer, &q.Asked)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch question %d: %w", id, err)
	}
	return &q, nil
}

// ThemeQuestionIDs returns the IDs of every question of a theme.
func (db *DB) ThemeQuestionIDs(ctx context.Context, themeID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id FROM question WHERE theme_id = ?", themeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ImportTheme replaces (with force) or creates a theme's questions inside a
// single transaction, so a failed import leaves the old set intact.
func (db *DB) ImportTheme(ctx context.Context, name string, force bool, questions []models.NewQuestion) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var themeID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM theme WHERE name = ?", name).Scan(&themeID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, "INSERT INTO theme (name) VALUES (?)", name)
		if err != nil {
			return err
		}
		if themeID, err = res.LastInsertId(); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if !force {
			return ErrThemeExists
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM question WHERE theme_id = ?", themeID); err != nil {
			return err
		}
	}

	for _, q := range questions {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO question (theme_id, text, answer) VALUES (?, ?, ?)",
			themeID, q.Text, q.Answer)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
