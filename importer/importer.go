// Package importer loads question files into the database. A question file is
// a plain text file, one question per line, with a backtick separating the
// question from its answer. Files come in whatever encoding people saved them
// in, so the encoding is detected before parsing.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/korjavin/triviabot/database"
	"github.com/korjavin/triviabot/models"
)

// Importer reads question files from a directory and loads them into the
// database, one theme per file (file stem = theme name).
type Importer struct {
	db  *database.DB
	dir string
	log zerolog.Logger
}

// New creates an importer reading files from dir.
func New(db *database.DB, dir string, log zerolog.Logger) *Importer {
	return &Importer{db: db, dir: dir, log: log}
}

// Available lists the theme names that have a question file on disk.
func (im *Importer) Available() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(im.dir, "*.txt"))
	if err != nil {
		return nil, err
	}

	themes := make([]string, 0, len(files))
	for _, f := range files {
		themes = append(themes, strings.TrimSuffix(filepath.Base(f), ".txt"))
	}
	return themes, nil
}

// ImportTheme loads the file of a named theme. Returns the number of imported
// questions, or database.ErrThemeExists when the theme was imported before
// and force is false.
func (im *Importer) ImportTheme(ctx context.Context, theme string, force bool) (int, error) {
	path := filepath.Join(im.dir, theme+".txt")
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read question file for theme %q: %w", theme, err)
	}

	text, err := decode(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to decode question file for theme %q: %w", theme, err)
	}

	questions := parseQuestions(text)
	if len(questions) == 0 {
		return 0, fmt.Errorf("no questions found in %s", path)
	}

	if err := im.db.ImportTheme(ctx, theme, force, questions); err != nil {
		return 0, err
	}

	im.log.Info().Str("theme", theme).Int("questions", len(questions)).Msg("theme imported")
	return len(questions), nil
}

// ImportAll loads every question file in the directory, skipping themes that
// already exist when force is false. Returns imported counts per theme.
func (im *Importer) ImportAll(ctx context.Context, force bool) (map[string]int, error) {
	themes, err := im.Available()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(themes))
	for _, theme := range themes {
		n, err := im.ImportTheme(ctx, theme, force)
		if errors.Is(err, database.ErrThemeExists) {
			im.log.Info().Str("theme", theme).Msg("theme already imported, skipping")
			continue
		}
		if err != nil {
			im.log.Error().Err(err).Str("theme", theme).Msg("failed to import theme")
			continue
		}
		counts[theme] = n
	}
	return counts, nil
}

// decode guesses the encoding of a question file and converts it to UTF-8.
// Unknown or undetectable encodings fall back to ISO-8859-1, which decodes
// any byte sequence.
func decode(raw []byte) (string, error) {
	enc := charmap.ISO8859_1
	if result, err := chardet.NewTextDetector().DetectBest(raw); err == nil {
		if detected, err := htmlindex.Get(strings.ToLower(result.Charset)); err == nil {
			decoded, err := detected.NewDecoder().Bytes(raw)
			if err == nil {
				return string(decoded), nil
			}
		}
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// parseQuestions extracts question/answer pairs from the decoded file. Lines
// without a backtick separator or shorter than 5 characters are skipped.
func parseQuestions(text string) []models.NewQuestion {
	var questions []models.NewQuestion
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) <= 4 || !strings.Contains(line, "`") {
			continue
		}
		parts := strings.SplitN(line, "`", 3)
		question := strings.TrimSpace(parts[0])
		answer := strings.TrimSpace(parts[1])
		if question == "" || answer == "" {
			continue
		}
		questions = append(questions, models.NewQuestion{Text: question, Answer: answer})
	}
	return questions
}
