package trivia

import "errors"

var (
	// ErrAlreadyActive is returned when a start is requested for a chat that
	// already has a live session.
	ErrAlreadyActive = errors.New("a trivia session is already active in this chat")

	// ErrNotActive is returned when a stop is requested for a chat with no
	// live session. Answer routing for such chats is silently ignored instead.
	ErrNotActive = errors.New("no trivia session is active in this chat")

	// ErrEmptyTopic is returned when a start is requested for a topic with no
	// cached questions.
	ErrEmptyTopic = errors.New("topic has no questions")
)
