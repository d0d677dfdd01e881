package trivia

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/triviabot/models"
)

// Registry owns the set of live sessions and enforces at most one session per
// chat. It is the single source of truth for that invariant: sessions are
// inserted under its lock and remove themselves on termination.
type Registry struct {
	cache     *Cache
	source    QuestionSource
	ratings   RatingReporter
	announcer Announcer
	bot       models.Player
	log       zerolog.Logger

	// settleDelay overrides the between-question pause; zero means default.
	settleDelay time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewRegistry creates an empty registry sharing the given collaborators with
// every session it starts.
func NewRegistry(cache *Cache, source QuestionSource, ratings RatingReporter, announcer Announcer, bot models.Player, log zerolog.Logger) *Registry {
	return &Registry{
		cache:     cache,
		source:    source,
		ratings:   ratings,
		announcer: announcer,
		bot:       bot,
		log:       log,
		sessions:  make(map[int64]*Session),
	}
}

// Start launches a new session for the chat, drawing a private snapshot of
// the topic's shuffled question IDs. Returns ErrAlreadyActive if the chat has
// a live session, ErrEmptyTopic if the topic has no cached questions.
func (r *Registry) Start(chatID int64, topic string, settings models.Settings) (*Session, error) {
	r.mu.Lock()
	if _, exists := r.sessions[chatID]; exists {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}

	queue, ok := r.cache.Snapshot(topic)
	if !ok {
		r.mu.Unlock()
		return nil, ErrEmptyTopic
	}

	s := newSession(sessionConfig{
		chatID:      chatID,
		topic:       topic,
		queue:       queue,
		settings:    settings,
		settleDelay: r.settleDelay,
		source:      r.source,
		ratings:     r.ratings,
		announcer:   r.announcer,
		registry:    r,
		bot:         r.bot,
		log:         r.log.With().Int64("chat_id", chatID).Str("topic", topic).Logger(),
	})
	r.sessions[chatID] = s
	r.mu.Unlock()

	go s.Run()
	r.log.Info().Int64("chat_id", chatID).Str("topic", topic).Int("questions", len(queue)).Msg("trivia session started")
	return s, nil
}

// Find returns the live session for a chat, if any.
func (r *Registry) Find(chatID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

// Dispatch routes an inbound chat message to the matching session. Messages
// for chats without a session are silently ignored.
func (r *Registry) Dispatch(chatID int64, player models.Player, text string) {
	if s, ok := r.Find(chatID); ok {
		s.HandleMessage(player, text)
	}
}

// Stop terminates the session of a chat. The session is removed immediately
// and no winner is computed.
func (r *Registry) Stop(chatID int64) error {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	if ok {
		delete(r.sessions, chatID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotActive
	}
	s.Stop()
	r.log.Info().Int64("chat_id", chatID).Msg("trivia session stopped")
	return nil
}

// Shutdown stops every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[int64]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}

// remove is called by a session on its own termination. It only removes the
// exact session instance, so a newer session for the same chat is untouched.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.chatID]; ok && cur == s {
		delete(r.sessions, s.chatID)
	}
	r.mu.Unlock()
}
