package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/korjavin/triviabot/database"
	"github.com/korjavin/triviabot/models"
	"github.com/korjavin/triviabot/trivia"
)

const topLimit = 10

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	topic := strings.TrimSpace(msg.CommandArguments())
	if topic == "" {
		b.Announce(msg.Chat.ID, "Usage: /trivia <topic>. See /topics for what I know.")
		return
	}

	_, err := b.registry.Start(msg.Chat.ID, topic, b.currentSettings())
	switch {
	case errors.Is(err, trivia.ErrAlreadyActive):
		b.Announce(msg.Chat.ID, "A trivia session is already ongoing in this chat.")
	case errors.Is(err, trivia.ErrEmptyTopic):
		b.Announce(msg.Chat.ID, fmt.Sprintf("I have no questions for %q. See /topics.", topic))
	case err != nil:
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to start session")
		b.Announce(msg.Chat.ID, "Something went wrong, the session was not started.")
	}
}

func (b *Bot) handleStop(msg *tgbotapi.Message) {
	if err := b.registry.Stop(msg.Chat.ID); errors.Is(err, trivia.ErrNotActive) {
		b.Announce(msg.Chat.ID, "There's no trivia session ongoing in this chat.")
		return
	}
	b.Announce(msg.Chat.ID, "Trivia stopped.")
}

func (b *Bot) handleTopics(msg *tgbotapi.Message) {
	topics := b.cache.Topics()
	if len(topics) == 0 {
		b.Announce(msg.Chat.ID, "There are no topics loaded yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Available topics:\n")
	for i, topic := range topics {
		sb.WriteString(topic)
		if (i+1)%4 == 0 {
			sb.WriteString("\n")
		} else {
			sb.WriteString("\t")
		}
	}
	b.Announce(msg.Chat.ID, strings.TrimRight(sb.String(), "\t\n"))
}

func (b *Bot) handleTop(msg *tgbotapi.Message) {
	order := strings.TrimSpace(msg.CommandArguments())
	switch order {
	case "", "games", "wins", "answers":
	default:
		b.Announce(msg.Chat.ID, "Usage: /top [games|wins|answers]")
		return
	}

	top, err := b.db.Top(context.Background(), msg.Chat.ID, order, topLimit)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to load leaderboard")
		b.Announce(msg.Chat.ID, "Sorry, I couldn't load the leaderboard.")
		return
	}
	if len(top) == 0 {
		b.Announce(msg.Chat.ID, "Nobody has played in this chat yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Player ratings:\n")
	fmt.Fprintf(&sb, "%3s  %-16s %6s %6s %8s\n", "#", "Name", "Games", "Wins", "Answers")
	for i, r := range top {
		fmt.Fprintf(&sb, "%3d  %-16s %6d %6d %8d\n", i+1, r.Username, r.TotalGames, r.Wins, r.RightAnswers)
	}
	b.Announce(msg.Chat.ID, sb.String())
}

func (b *Bot) handleLoad(msg *tgbotapi.Message) {
	if !b.isAdmin(msg) {
		b.Announce(msg.Chat.ID, "Only chat admins can load topics.")
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.Announce(msg.Chat.ID, "Usage: /load <topic> [force]")
		return
	}
	topic := args[0]
	force := len(args) > 1 && args[1] == "force"

	ctx := context.Background()
	n, err := b.importer.ImportTheme(ctx, topic, force)
	if errors.Is(err, database.ErrThemeExists) {
		b.Announce(msg.Chat.ID, fmt.Sprintf("Topic %q was already imported. Use /load %s force to replace it.", topic, topic))
		return
	}
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("import failed")
		b.Announce(msg.Chat.ID, fmt.Sprintf("Failed to import topic %q.", topic))
		return
	}

	if err := b.cache.RebuildTopic(ctx, topic); err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("cache rebuild failed")
	}
	b.Announce(msg.Chat.ID, fmt.Sprintf("Topic %q loaded: %d questions.", topic, n))
}

func (b *Bot) handleLoadAll(msg *tgbotapi.Message) {
	if !b.isAdmin(msg) {
		b.Announce(msg.Chat.ID, "Only chat admins can load topics.")
		return
	}
	force := strings.TrimSpace(msg.CommandArguments()) == "force"

	ctx := context.Background()
	counts, err := b.importer.ImportAll(ctx, force)
	if err != nil {
		b.log.Error().Err(err).Msg("bulk import failed")
		b.Announce(msg.Chat.ID, "Failed to import topics.")
		return
	}

	if err := b.cache.Rebuild(ctx); err != nil {
		b.log.Error().Err(err).Msg("cache rebuild failed")
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	b.Announce(msg.Chat.ID, fmt.Sprintf("Imported %d topics (%d questions).", len(counts), total))
}

func (b *Bot) handleSettings(msg *tgbotapi.Message) {
	s := b.currentSettings()
	text := fmt.Sprintf(
		"Round settings:\nmax score: %d (/maxscore)\nseconds per hint: %d (/timelimit)\ninactivity timeout: %ds (/timeout)\nbot plays: %v (/botplays)",
		s.MaxScore, int(s.AnswerDelay/time.Second), int(s.InactivityTimeout/time.Second), s.BotPlays)
	b.Announce(msg.Chat.ID, text)
}

func (b *Bot) handleSetting(msg *tgbotapi.Message) {
	if !b.isAdmin(msg) {
		b.Announce(msg.Chat.ID, "Only chat admins can change settings.")
		return
	}

	if msg.Command() == cmdBotPlays {
		s := b.updateSettings(func(s *models.Settings) { s.BotPlays = !s.BotPlays })
		if s.BotPlays {
			b.Announce(msg.Chat.ID, "I'll gain a point every time you don't answer in time.")
		} else {
			b.Announce(msg.Chat.ID, "Alright, I won't embarrass you at trivia anymore.")
		}
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		b.Announce(msg.Chat.ID, fmt.Sprintf("Usage: /%s <number>", msg.Command()))
		return
	}
	if err := validateSetting(msg.Command(), n); err != nil {
		b.Announce(msg.Chat.ID, err.Error())
		return
	}

	switch msg.Command() {
	case cmdMaxScore:
		b.updateSettings(func(s *models.Settings) { s.MaxScore = n })
		b.Announce(msg.Chat.ID, fmt.Sprintf("Points required to win set to %d.", n))
	case cmdTimeLimit:
		b.updateSettings(func(s *models.Settings) { s.AnswerDelay = time.Duration(n) * time.Second })
		b.Announce(msg.Chat.ID, fmt.Sprintf("Maximum seconds to answer set to %d.", n))
	case cmdTimeout:
		b.updateSettings(func(s *models.Settings) { s.InactivityTimeout = time.Duration(n) * time.Second })
		b.Announce(msg.Chat.ID, fmt.Sprintf("Inactivity timeout set to %d seconds.", n))
	}
}

// validateSetting checks the bounds for a numeric settings command. The error
// text is announced to the chat as-is.
func validateSetting(cmd string, n int) error {
	switch cmd {
	case cmdMaxScore:
		if n <= 0 {
			return errors.New("Score must be superior to 0.")
		}
	case cmdTimeLimit:
		if n < 5 {
			return errors.New("Seconds must be at least 5.")
		}
	case cmdTimeout:
		if n <= 0 {
			return errors.New("Seconds must be superior to 0.")
		}
	}
	return nil
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	b.Announce(msg.Chat.ID, `Trivia bot commands:
/trivia <topic> - start a round
/triviastop - stop the current round
/topics - list available topics
/top [games|wins|answers] - player ratings
/load <topic> [force] - import a topic file (admins)
/loadall [force] - import every topic file (admins)
/settings - show round settings (admins change them with /maxscore, /timelimit, /timeout, /botplays)`)
}
