package trivia

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korjavin/triviabot/models"
)

type stubSource struct {
	questions map[int64]*models.Question
}

func (s *stubSource) Themes(ctx context.Context) ([]models.Theme, error) { return nil, nil }
func (s *stubSource) ThemeByName(ctx context.Context, name string) (*models.Theme, error) {
	return nil, nil
}
func (s *stubSource) ThemeQuestionIDs(ctx context.Context, themeID int64) ([]int64, error) {
	return nil, nil
}
func (s *stubSource) Question(ctx context.Context, id int64) (*models.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("no question %d", id)
	}
	return q, nil
}

type fakeAnnouncer struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeAnnouncer) Announce(chatID int64, text string) {
	f.mu.Lock()
	f.msgs = append(f.msgs, text)
	f.mu.Unlock()
}

func (f *fakeAnnouncer) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeAnnouncer) count(substr string) int {
	n := 0
	for _, m := range f.all() {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type fakeRatings struct {
	mu      sync.Mutex
	games   map[int64]int
	answers map[int64]int
	wins    map[int64]int
}

func newFakeRatings() *fakeRatings {
	return &fakeRatings{
		games:   make(map[int64]int),
		answers: make(map[int64]int),
		wins:    make(map[int64]int),
	}
}

func (f *fakeRatings) AddGamePlayed(ctx context.Context, chatID int64, p models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[p.ID]++
	return nil
}

func (f *fakeRatings) AddCorrectAnswer(ctx context.Context, chatID int64, p models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[p.ID]++
	return nil
}

func (f *fakeRatings) AddWin(ctx context.Context, chatID int64, p models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wins[p.ID]++
	return nil
}

func (f *fakeRatings) snapshot() (games, answers, wins map[int64]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	games = make(map[int64]int, len(f.games))
	answers = make(map[int64]int, len(f.answers))
	wins = make(map[int64]int, len(f.wins))
	for k, v := range f.games {
		games[k] = v
	}
	for k, v := range f.answers {
		answers[k] = v
	}
	for k, v := range f.wins {
		wins[k] = v
	}
	return games, answers, wins
}

func newTestSession(queue []int64, src QuestionSource, settings models.Settings, fr *fakeRatings, fa *fakeAnnouncer) *Session {
	return newSession(sessionConfig{
		chatID:      42,
		topic:       "test",
		queue:       queue,
		settings:    settings,
		settleDelay: 10 * time.Millisecond,
		source:      src,
		ratings:     fr,
		announcer:   fa,
		bot:         models.Player{ID: 999, Name: "triviabot"},
		log:         zerolog.New(io.Discard),
	})
}

func waitForStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Status() == want
	}, 3*time.Second, 5*time.Millisecond, "session never reached status %q", want)
}

func TestMaskAnswer(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{answer: "New York", want: "*** ****"},
		{answer: "Spider-Man", want: "******-***"},
		{answer: "Guns (N) Roses", want: "**** (*) *****"},
		{answer: "a", want: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			assert.Equal(t, tt.want, string(maskAnswer(tt.answer)))
		})
	}
}

func TestShowHint_Batching(t *testing.T) {
	fa := &fakeAnnouncer{}
	s := newTestSession(nil, &stubSource{}, models.DefaultSettings(), newFakeRatings(), fa)
	s.answer = "abcdefghij"
	s.masked = maskAnswer(s.answer)

	// ceil(masked/5) per tick: 10 -> 8 -> 6 -> 4 -> 3 -> 2.
	wantCounts := []int{8, 6, 4, 3, 2}
	for i, want := range wantCounts {
		s.showHint()
		assert.Equal(t, want, s.maskedCount(), "after hint %d", i+1)
		assert.Equal(t, i+1, s.hints)
	}

	// Revealed positions always show the real letter, never a reshuffle.
	for i, r := range s.masked {
		if r != maskGlyph {
			assert.Equal(t, rune(s.answer[i]), r)
		}
	}
	assert.Equal(t, 1, fa.count("Hint #5"))
}

func TestTryAnswer_CaseInsensitiveSubstring(t *testing.T) {
	fr := newFakeRatings()
	s := newTestSession(nil, &stubSource{}, models.DefaultSettings(), fr, &fakeAnnouncer{})
	s.answer = "Paris"

	alice := models.Player{ID: 1, Name: "alice"}
	require.True(t, s.tryAnswer(message{player: alice, text: "i think it's PARIS!"}))
	assert.Equal(t, "", s.answer)
	assert.Equal(t, 1, s.scores[alice.ID])

	// The question is resolved exactly once: a second match is a no-op.
	bob := models.Player{ID: 2, Name: "bob"}
	assert.False(t, s.tryAnswer(message{player: bob, text: "paris"}))
	assert.Zero(t, s.scores[bob.ID])

	games, answers, _ := fr.snapshot()
	assert.Equal(t, 1, games[alice.ID])
	assert.Equal(t, 1, answers[alice.ID])
}

func TestTryAnswer_EmptyAnswerNeverMatches(t *testing.T) {
	s := newTestSession(nil, &stubSource{}, models.DefaultSettings(), newFakeRatings(), &fakeAnnouncer{})
	s.answer = ""

	assert.False(t, s.tryAnswer(message{player: models.Player{ID: 1}, text: ""}))
	assert.False(t, s.tryAnswer(message{player: models.Player{ID: 1}, text: "anything at all"}))
}

func TestSession_AtMostOneResolution(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "Capital of France?", Answer: "paris"},
	}}
	fr := newFakeRatings()
	fa := &fakeAnnouncer{}
	settings := models.Settings{MaxScore: 5, AnswerDelay: time.Hour}

	s := newTestSession([]int64{1}, src, settings, fr, fa)
	go s.Run()

	s.HandleMessage(models.Player{ID: 1, Name: "alice"}, "paris")
	s.HandleMessage(models.Player{ID: 2, Name: "bob"}, "i think paris")
	waitForStatus(t, s, StatusEnded)

	games, answers, wins := fr.snapshot()
	assert.Equal(t, 1, games[1]+games[2], "exactly one player credited a game")
	assert.Equal(t, 1, answers[1]+answers[2], "exactly one player credited an answer")
	assert.Equal(t, 1, wins[1]+wins[2], "exactly one winner")
	assert.Equal(t, 1, fa.count("You got it"))
}

func TestSession_WinEndsBeforeNextDraw(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "q1", Answer: "one"},
		2: {ID: 2, Text: "q2", Answer: "two"},
		3: {ID: 3, Text: "q3", Answer: "three"},
	}}
	fr := newFakeRatings()
	fa := &fakeAnnouncer{}
	settings := models.Settings{MaxScore: 1, AnswerDelay: time.Hour}

	s := newTestSession([]int64{1, 2, 3}, src, settings, fr, fa)
	go s.Run()

	require.Eventually(t, func() bool { return fa.count("Question #1") == 1 },
		3*time.Second, 5*time.Millisecond)
	s.HandleMessage(models.Player{ID: 7, Name: "carol"}, "three") // queue drawn back-to-front
	waitForStatus(t, s, StatusEnded)

	assert.Equal(t, 1, fa.count("Question #"), "no further question after the win")
	_, _, wins := fr.snapshot()
	assert.Equal(t, 1, wins[7])
	assert.Equal(t, 1, fa.count("carol wins!"))
}

func TestSession_TwoCorrectAnswersOneGameIncrement(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "q1", Answer: "alpha"},
		2: {ID: 2, Text: "q2", Answer: "beta"},
	}}
	fr := newFakeRatings()
	fa := &fakeAnnouncer{}
	settings := models.Settings{MaxScore: 2, AnswerDelay: time.Hour}

	s := newTestSession([]int64{1, 2}, src, settings, fr, fa)
	go s.Run()

	player := models.Player{ID: 5, Name: "dave"}
	require.Eventually(t, func() bool { return fa.count("Question #1") == 1 },
		3*time.Second, 5*time.Millisecond)
	s.HandleMessage(player, "beta")
	require.Eventually(t, func() bool { return fa.count("Question #2") == 1 },
		3*time.Second, 5*time.Millisecond)
	s.HandleMessage(player, "alpha")
	waitForStatus(t, s, StatusEnded)

	games, answers, wins := fr.snapshot()
	assert.Equal(t, 1, games[5], "total_games incremented only on the first answer")
	assert.Equal(t, 2, answers[5])
	assert.Equal(t, 1, wins[5])
}

func TestSession_TimeoutRevealsAndBotScores(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "short one", Answer: "abc"},
	}}
	fr := newFakeRatings()
	fa := &fakeAnnouncer{}
	settings := models.Settings{MaxScore: 5, AnswerDelay: 30 * time.Millisecond, BotPlays: true}

	s := newTestSession([]int64{1}, src, settings, fr, fa)
	go s.Run()
	waitForStatus(t, s, StatusEnded)

	// 3 masked letters: one hint tick reveals ceil(3/5)=1, the next times out.
	assert.Equal(t, 1, fa.count("Hint #1"))
	assert.Equal(t, 0, fa.count("Hint #2"))
	assert.Equal(t, 1, fa.count("+1 for me!"))

	games, answers, wins := fr.snapshot()
	assert.Equal(t, 1, games[999])
	assert.Equal(t, 1, answers[999])
	assert.Equal(t, 1, wins[999])
}

func TestSession_TimeoutWithoutBotPlays(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "short one", Answer: "ab"},
	}}
	fr := newFakeRatings()
	fa := &fakeAnnouncer{}
	settings := models.Settings{MaxScore: 5, AnswerDelay: 20 * time.Millisecond}

	s := newTestSession([]int64{1}, src, settings, fr, fa)
	go s.Run()
	waitForStatus(t, s, StatusEnded)

	// 2 masked letters: the very first tick times out, no hint possible.
	assert.Equal(t, 0, fa.count("Hint #"))
	games, answers, wins := fr.snapshot()
	assert.Empty(t, games)
	assert.Empty(t, answers)
	assert.Empty(t, wins)
}

func TestSession_InactivitySafeguard(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "q", Answer: "unguessable"},
	}}
	fa := &fakeAnnouncer{}
	settings := models.Settings{
		MaxScore:          5,
		AnswerDelay:       time.Hour,
		InactivityTimeout: 40 * time.Millisecond,
	}

	s := newTestSession([]int64{1}, src, settings, newFakeRatings(), fa)
	go s.Run()

	// The safeguard arms only after the first message of the session.
	s.HandleMessage(models.Player{ID: 1, Name: "alice"}, "wrong guess")
	waitForStatus(t, s, StatusStopped)
	assert.Equal(t, 1, fa.count("I guess I'll stop"))
}

func TestSession_FirstToReachMaxWinsTies(t *testing.T) {
	src := &stubSource{questions: map[int64]*models.Question{
		1: {ID: 1, Text: "q1", Answer: "one"},
		2: {ID: 2, Text: "q2", Answer: "two"},
	}}
	fr := newFakeRatings()
	fa := &fakeAnnouncer{}
	settings := models.Settings{MaxScore: 5, AnswerDelay: time.Hour}

	s := newTestSession([]int64{1, 2}, src, settings, fr, fa)
	go s.Run()

	require.Eventually(t, func() bool { return fa.count("Question #1") == 1 },
		3*time.Second, 5*time.Millisecond)
	s.HandleMessage(models.Player{ID: 1, Name: "alice"}, "two")
	require.Eventually(t, func() bool { return fa.count("Question #2") == 1 },
		3*time.Second, 5*time.Millisecond)
	s.HandleMessage(models.Player{ID: 2, Name: "bob"}, "one")
	waitForStatus(t, s, StatusEnded)

	// Both at 1 point: alice reached it first.
	_, _, wins := fr.snapshot()
	assert.Equal(t, 1, wins[1])
	assert.Zero(t, wins[2])
	assert.Equal(t, 1, fa.count("alice wins!"))
}
