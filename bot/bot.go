package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/korjavin/triviabot/config"
	"github.com/korjavin/triviabot/database"
	"github.com/korjavin/triviabot/importer"
	"github.com/korjavin/triviabot/models"
	"github.com/korjavin/triviabot/trivia"
)

const (
	cmdTrivia    = "trivia"
	cmdStop      = "triviastop"
	cmdTopics    = "topics"
	cmdTop       = "top"
	cmdLoad      = "load"
	cmdLoadAll   = "loadall"
	cmdSettings  = "settings"
	cmdMaxScore  = "maxscore"
	cmdTimeLimit = "timelimit"
	cmdTimeout   = "timeout"
	cmdBotPlays  = "botplays"
	cmdHelp      = "help"
)

// One retry after a fixed backoff; a second failure drops the message.
const sendRetryBackoff = 500 * time.Millisecond

// Bot wires the Telegram API to the trivia engine.
type Bot struct {
	api      *tgbotapi.BotAPI
	db       *database.DB
	cache    *trivia.Cache
	registry *trivia.Registry
	importer *importer.Importer
	log      zerolog.Logger

	mu       sync.Mutex
	settings models.Settings
}

// New creates a bot, builds the question cache and loads the round settings.
func New(cfg *config.Config, db *database.DB, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	ctx := context.Background()

	cache := trivia.NewCache(db)
	if err := cache.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("failed to build question cache: %w", err)
	}

	settings, err := db.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	b := &Bot{
		api:      api,
		db:       db,
		cache:    cache,
		log:      log,
		settings: settings,
	}
	botPlayer := models.Player{ID: api.Self.ID, Name: api.Self.UserName}
	b.registry = trivia.NewRegistry(cache, db, db, b, botPlayer, log.With().Str("component", "registry").Logger())
	b.importer = importer.New(db, cfg.QuestionsDir, log.With().Str("component", "importer").Logger())

	log.Info().Str("username", api.Self.UserName).Int("topics", len(cache.Topics())).Msg("bot ready")
	return b, nil
}

// Start runs the long-polling update loop until the updates channel closes.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for update := range updates {
		if update.Message == nil {
			continue
		}
		b.handleMessage(update.Message)
	}

	b.registry.Shutdown()
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID == b.api.Self.ID {
		return
	}

	if !msg.IsCommand() {
		// Any plain message is a candidate answer for the chat's session.
		b.registry.Dispatch(msg.Chat.ID, playerFrom(msg.From), msg.Text)
		return
	}

	switch msg.Command() {
	case cmdTrivia:
		b.handleStart(msg)
	case cmdStop:
		b.handleStop(msg)
	case cmdTopics:
		b.handleTopics(msg)
	case cmdTop:
		b.handleTop(msg)
	case cmdLoad:
		b.handleLoad(msg)
	case cmdLoadAll:
		b.handleLoadAll(msg)
	case cmdSettings:
		b.handleSettings(msg)
	case cmdMaxScore, cmdTimeLimit, cmdTimeout, cmdBotPlays:
		b.handleSetting(msg)
	case cmdHelp:
		b.handleHelp(msg)
	}
}

// Announce sends a text message to a chat with a single bounded retry. A
// failed retry is logged as a dropped announcement, never silently swallowed.
func (b *Bot) Announce(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed, retrying once")

	time.Sleep(sendRetryBackoff)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("announcement dropped after retry")
	}
}

// currentSettings returns a snapshot of the round settings.
func (b *Bot) currentSettings() models.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings
}

func (b *Bot) updateSettings(change func(*models.Settings)) models.Settings {
	b.mu.Lock()
	change(&b.settings)
	s := b.settings
	b.mu.Unlock()

	if err := b.db.SaveSettings(context.Background(), s); err != nil {
		b.log.Error().Err(err).Msg("failed to persist settings")
	}
	return s
}

// isAdmin reports whether the user may run maintenance commands. Private
// chats have no admins, so everything is allowed there.
func (b *Bot) isAdmin(msg *tgbotapi.Message) bool {
	if msg.Chat.IsPrivate() {
		return true
	}

	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: msg.Chat.ID,
			UserID: msg.From.ID,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Int64("user_id", msg.From.ID).
			Msg("failed to check chat member status")
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func playerFrom(user *tgbotapi.User) models.Player {
	name := user.UserName
	if name == "" {
		name = user.FirstName
	}
	return models.Player{ID: user.ID, Name: name}
}
