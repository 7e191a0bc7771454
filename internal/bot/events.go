// Package bot maps chat events onto stats operations and localized replies.
package bot

import (
	"context"

	"github.com/m3rciful/chatstats/internal/stats"
)

// Kind classifies an inbound event.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindText
	KindButton
	KindMembersJoined
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindButton:
		return "button"
	case KindMembersJoined:
		return "members_joined"
	}
	return "unknown"
}

// Member is one user added to a chat.
type Member struct {
	UserID int64
	Name   string
	IsBot  bool
}

// Event is a transport-neutral inbound update.
type Event struct {
	Kind       Kind
	UserID     int64
	ChatID     int64
	SenderName string
	// Command is lowercase without the leading slash or @bot suffix.
	Command string
	Args    string
	// Button is the callback id; Payload its argument.
	Button  string
	Payload string
	Text    string
	Members []Member
}

// Key returns the stats key of the event sender.
func (e Event) Key() stats.Key {
	return stats.Key{UserID: e.UserID, ChatID: e.ChatID}
}

// Button is one inline button of a reply.
type Button struct {
	Text    string
	ID      string
	Payload string
}

// Reply is an outbound text message with an optional inline keyboard.
type Reply struct {
	ChatID  int64
	Text    string
	Buttons [][]Button
}

// MessageRef addresses a delivered message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Sink delivers replies.
type Sink interface {
	// Reply is best effort and may be queued.
	Reply(ctx context.Context, r Reply) error
	// SendTracked sends synchronously and returns the delivered message.
	SendTracked(ctx context.Context, r Reply) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
}

// Store is the subset of the stats store used by the dispatcher.
type Store interface {
	Ensure(ctx context.Context, key stats.Key) error
	Get(ctx context.Context, key stats.Key) (stats.Record, bool, error)
	IncrementCount(ctx context.Context, key stats.Key) error
	SetField(ctx context.Context, key stats.Key, field stats.Field, value string) error
	ClearField(ctx context.Context, key stats.Key, field stats.Field) error
	Top(ctx context.Context, chatID int64, limit int) ([]stats.Record, error)
	All(ctx context.Context) ([]stats.Record, error)
}
