package trivia

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/triviabot/models"
)

// RatingReporter receives additive score increments from running sessions.
// Every operation applies a +1 to the matching counter, creating the row on
// first use.
type RatingReporter interface {
	AddGamePlayed(ctx context.Context, chatID int64, player models.Player) error
	AddCorrectAnswer(ctx context.Context, chatID int64, player models.Player) error
	AddWin(ctx context.Context, chatID int64, player models.Player) error
}

// Announcer delivers session announcements to a chat. Delivery failures are
// the announcer's problem; the session never blocks a round on them.
type Announcer interface {
	Announce(chatID int64, text string)
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusAwaitingAnswer Status = "awaiting answer"
	StatusCorrect        Status = "correct answer"
	StatusTimeout        Status = "no answer"
	StatusEnded          Status = "ended"
	StatusStopped        Status = "stopped"
)

const defaultSettleDelay = 3 * time.Second

// maskGlyph hides answer letters; spaces, hyphens and parentheses stay visible.
const maskGlyph = '*'

type outcome int

const (
	outcomeStopped outcome = iota
	outcomeCorrect
	outcomeTimeout
	outcomeInactive
)

type message struct {
	player models.Player
	text   string
}

type sessionConfig struct {
	chatID      int64
	topic       string
	queue       []int64
	settings    models.Settings
	settleDelay time.Duration
	source      QuestionSource
	ratings     RatingReporter
	announcer   Announcer
	registry    *Registry
	bot         models.Player
	log         zerolog.Logger
}

// Session is one trivia round bound to one chat. All round state is owned by
// the Run goroutine; inbound answers arrive through a channel, so a hint tick
// and a candidate answer can never resolve the same question twice. The
// current answer cleared to "" is the resolve-once guard: an empty stored
// answer never matches anything.
type Session struct {
	chatID      int64
	topic       string
	settings    models.Settings
	settleDelay time.Duration

	source    QuestionSource
	ratings   RatingReporter
	announcer Announcer
	registry  *Registry
	bot       models.Player
	log       zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	messages chan message
	rng      *rand.Rand

	mu     sync.Mutex
	status Status

	// Round state below is touched only by the Run goroutine.
	queue        []int64
	answer       string
	masked       []rune
	hints        int
	count        int
	scores       map[int64]int
	order        []models.Player
	leader       models.Player
	leaderScore  int
	lastActivity time.Time

	gaveAnswer []string
}

func newSession(cfg sessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.settleDelay <= 0 {
		cfg.settleDelay = defaultSettleDelay
	}
	return &Session{
		chatID:      cfg.chatID,
		topic:       cfg.topic,
		settings:    cfg.settings,
		settleDelay: cfg.settleDelay,
		source:      cfg.source,
		ratings:     cfg.ratings,
		announcer:   cfg.announcer,
		registry:    cfg.registry,
		bot:         cfg.bot,
		log:         cfg.log,
		ctx:         ctx,
		cancel:      cancel,
		messages:    make(chan message, 16),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		status:      StatusAwaitingAnswer,
		queue:       cfg.queue,
		scores:      make(map[int64]int),
		gaveAnswer: []string{
			"I know this one! %s!",
			"Easy: %s.",
			"Oh really? It's %s of course.",
		},
	}
}

// ChatID returns the chat this session is bound to.
func (s *Session) ChatID() int64 { return s.chatID }

// Topic returns the topic this session draws questions from.
func (s *Session) Topic() string { return s.topic }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Stop requests termination. It takes effect before the next state
// transition; the run loop checks it at every resume point.
func (s *Session) Stop() {
	s.cancel()
}

// HandleMessage feeds an inbound chat message into the session for answer
// arbitration. Safe to call from any goroutine; returns once the session has
// queued the message or is gone.
func (s *Session) HandleMessage(player models.Player, text string) {
	select {
	case s.messages <- message{player: player, text: text}:
	case <-s.ctx.Done():
	}
}

// Run executes the session state machine until the round ends or is stopped.
func (s *Session) Run() {
	defer func() {
		s.cancel()
		if s.registry != nil {
			s.registry.remove(s)
		}
	}()

	for {
		if !s.nextQuestion() {
			return
		}
		s.setStatus(StatusAwaitingAnswer)

		switch s.awaitAnswer() {
		case outcomeStopped:
			s.setStatus(StatusStopped)
			return
		case outcomeInactive:
			s.log.Info().Int64("chat_id", s.chatID).Msg("session stopped by inactivity safeguard")
			s.announcer.Announce(s.chatID, "Guys...? Well, I guess I'll stop then.")
			s.setStatus(StatusStopped)
			return
		case outcomeCorrect:
			s.setStatus(StatusCorrect)
		case outcomeTimeout:
			s.setStatus(StatusTimeout)
			s.revealAnswer()
		}

		if !s.settle() {
			s.setStatus(StatusStopped)
			return
		}
	}
}

// nextQuestion checks the win condition, draws the next question and
// announces it. Returns false when the round is over.
func (s *Session) nextQuestion() bool {
	if s.leaderScore > 0 && s.leaderScore >= s.settings.MaxScore {
		s.endGame()
		return false
	}
	if len(s.queue) == 0 {
		s.endGame()
		return false
	}

	id := s.queue[len(s.queue)-1]
	s.queue = s.queue[:len(s.queue)-1]

	q, err := s.source.Question(s.ctx, id)
	if err != nil {
		s.log.Error().Err(err).Int64("question_id", id).Msg("failed to fetch question, stopping session")
		s.setStatus(StatusStopped)
		s.announcer.Announce(s.chatID, "Something went wrong with the question store. Stopping the round.")
		return false
	}

	s.answer = q.Answer
	s.masked = maskAnswer(q.Answer)
	s.hints = 0
	s.count++

	s.announcer.Announce(s.chatID, fmt.Sprintf("Question #%d!\n\n%s\nLetters: %d.",
		s.count, q.Text, len([]rune(q.Answer))))
	return true
}

// awaitAnswer waits for whichever comes first: a matching answer, enough hint
// ticks to exhaust the mask, the inactivity safeguard, or a stop.
func (s *Session) awaitAnswer() outcome {
	hint := time.NewTimer(s.settings.AnswerDelay)
	defer hint.Stop()

	// The inactivity safeguard arms only once the first message of the
	// session has been seen.
	var inactivity *time.Timer
	var inactC <-chan time.Time
	arm := func() {
		left := s.settings.InactivityTimeout - time.Since(s.lastActivity)
		if left < 0 {
			left = 0
		}
		if inactivity == nil {
			inactivity = time.NewTimer(left)
			inactC = inactivity.C
			return
		}
		if !inactivity.Stop() {
			select {
			case <-inactivity.C:
			default:
			}
		}
		inactivity.Reset(left)
	}
	if s.settings.InactivityTimeout > 0 && !s.lastActivity.IsZero() {
		arm()
	}
	defer func() {
		if inactivity != nil {
			inactivity.Stop()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return outcomeStopped
		case m := <-s.messages:
			s.lastActivity = time.Now()
			if s.settings.InactivityTimeout > 0 {
				arm()
			}
			if s.tryAnswer(m) {
				return outcomeCorrect
			}
		case <-hint.C:
			if s.maskedCount() > 2 {
				s.showHint()
				hint.Reset(s.settings.AnswerDelay)
			} else {
				return outcomeTimeout
			}
		case <-inactC:
			return outcomeInactive
		}
	}
}

// tryAnswer resolves the current question if the message contains the answer.
// A cleared (empty) answer matches nothing, which makes resolution happen at
// most once per question.
func (s *Session) tryAnswer(m message) bool {
	if s.answer == "" {
		return false
	}
	if !strings.Contains(strings.ToLower(m.text), strings.ToLower(s.answer)) {
		return false
	}

	s.answer = ""
	s.addPoint(m.player)
	s.announcer.Announce(s.chatID, fmt.Sprintf("You got it, %s! +1 to you!", m.player.Name))
	return true
}

// addPoint increments a player's tally and reports the rating increments. The
// first point of a player in this round also counts a played game.
func (s *Session) addPoint(p models.Player) {
	if _, seen := s.scores[p.ID]; !seen {
		s.order = append(s.order, p)
		s.report("game", p, s.ratings.AddGamePlayed)
	}
	s.scores[p.ID]++
	s.report("right answer", p, s.ratings.AddCorrectAnswer)

	// First player to reach a new maximum stays the leader on ties.
	if s.scores[p.ID] > s.leaderScore {
		s.leaderScore = s.scores[p.ID]
		s.leader = p
	}
}

func (s *Session) report(kind string, p models.Player, add func(context.Context, int64, models.Player) error) {
	if err := add(s.ctx, s.chatID, p); err != nil {
		s.log.Warn().Err(err).Str("increment", kind).Str("player", p.Name).
			Int64("chat_id", s.chatID).Msg("failed to report rating increment")
	}
}

// showHint reveals ceil(masked/5) more letters at random positions.
func (s *Session) showHint() {
	s.hints++
	answer := []rune(s.answer)

	var positions []int
	for i, r := range s.masked {
		if r == maskGlyph {
			positions = append(positions, i)
		}
	}

	batch := (len(positions) + 4) / 5
	for i := 0; i < batch && len(positions) > 0; i++ {
		j := s.rng.Intn(len(positions))
		pos := positions[j]
		positions = append(positions[:j], positions[j+1:]...)
		s.masked[pos] = answer[pos]
	}

	s.announcer.Announce(s.chatID, fmt.Sprintf("Hint #%d: %s", s.hints, string(s.masked)))
}

// revealAnswer announces the answer after a timeout, optionally crediting the
// bot itself, and clears the question.
func (s *Session) revealAnswer() {
	msg := fmt.Sprintf(s.gaveAnswer[s.rng.Intn(len(s.gaveAnswer))], s.answer)
	if s.settings.BotPlays {
		msg += " +1 for me!"
		s.addPoint(s.bot)
	}
	s.answer = ""
	s.announcer.Announce(s.chatID, msg)
}

// settle pauses between questions while still absorbing chat traffic, so the
// inactivity clock keeps moving. Returns false when stopped meanwhile.
func (s *Session) settle() bool {
	t := time.NewTimer(s.settleDelay)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return false
		case <-s.messages:
			s.lastActivity = time.Now()
		case <-t.C:
			return true
		}
	}
}

// endGame reports the winner (if anyone scored) and announces the final
// table. The terminal status is set last, once all end-of-round effects are
// visible.
func (s *Session) endGame() {
	defer s.setStatus(StatusEnded)
	if len(s.order) == 0 {
		s.log.Info().Int64("chat_id", s.chatID).Msg("round ended with no answers")
		return
	}

	s.report("win", s.leader, s.ratings.AddWin)

	rows := make([]models.Player, len(s.order))
	copy(rows, s.order)
	sort.SliceStable(rows, func(i, j int) bool {
		return s.scores[rows[i].ID] > s.scores[rows[j].ID]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s wins!\n\nScores:\n", s.leader.Name)
	for _, p := range rows {
		fmt.Fprintf(&b, "@%s\t%d\n", p.Name, s.scores[p.ID])
	}
	s.announcer.Announce(s.chatID, b.String())
}

func (s *Session) maskedCount() int {
	n := 0
	for _, r := range s.masked {
		if r == maskGlyph {
			n++
		}
	}
	return n
}

// maskAnswer hides every character except spaces, hyphens and parentheses.
func maskAnswer(answer string) []rune {
	masked := []rune(answer)
	for i, r := range masked {
		switch r {
		case ' ', '-', '(', ')':
		default:
			masked[i] = maskGlyph
		}
	}
	return masked
}
