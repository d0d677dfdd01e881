package trivia

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/korjavin/triviabot/models"
)

// QuestionSource is the slice of the question store the trivia engine consumes.
type QuestionSource interface {
	Themes(ctx context.Context) ([]models.Theme, error)
	ThemeByName(ctx context.Context, name string) (*models.Theme, error)
	ThemeQuestionIDs(ctx context.Context, themeID int64) ([]int64, error)
	Question(ctx context.Context, id int64) (*models.Question, error)
}

// Cache holds a shuffled list of question IDs per topic. Sessions take a
// private copy of a topic's list at start, so a rebuild never disturbs a
// round already in flight.
type Cache struct {
	source QuestionSource

	mu     sync.RWMutex
	topics map[string][]int64
}

// NewCache creates an empty cache. Call Rebuild before serving sessions.
func NewCache(source QuestionSource) *Cache {
	return &Cache{
		source: source,
		topics: make(map[string][]int64),
	}
}

// Rebuild re-reads every theme from the question store and replaces the whole
// cache with freshly shuffled lists. Topics with no questions are dropped.
// Readers see either the old or the new state, never a partial one.
func (c *Cache) Rebuild(ctx context.Context) error {
	themes, err := c.source.Themes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list themes: %w", err)
	}

	fresh := make(map[string][]int64, len(themes))
	for _, theme := range themes {
		ids, err := c.source.ThemeQuestionIDs(ctx, theme.ID)
		if err != nil {
			return fmt.Errorf("failed to list questions of theme %q: %w", theme.Name, err)
		}
		if len(ids) == 0 {
			continue
		}
		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
		fresh[theme.Name] = ids
	}

	c.mu.Lock()
	c.topics = fresh
	c.mu.Unlock()
	return nil
}

// RebuildTopic refreshes the list of a single named topic, removing it if the
// theme is gone or has no questions left.
func (c *Cache) RebuildTopic(ctx context.Context, name string) error {
	theme, err := c.source.ThemeByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up theme %q: %w", name, err)
	}

	var ids []int64
	if theme != nil {
		ids, err = c.source.ThemeQuestionIDs(ctx, theme.ID)
		if err != nil {
			return fmt.Errorf("failed to list questions of theme %q: %w", name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		delete(c.topics, name)
		return nil
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	c.topics[name] = ids
	return nil
}

// Topics returns the sorted names of all non-empty cached topics.
func (c *Cache) Topics() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.topics))
	for name := range c.topics {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot returns a private copy of a topic's question IDs, or false if the
// topic is absent.
func (c *Cache) Snapshot(topic string) ([]int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, ok := c.topics[topic]
	if !ok {
		return nil, false
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, true
}
