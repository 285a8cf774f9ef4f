package conversation

import (
	"context"
	"time"

	"github.com/etf-team/tariffbot/internal/tariff"
)

// EventKind tells what the user did.
type EventKind string

const (
	EventText        EventKind = "text"
	EventDocument    EventKind = "document"
	EventChoice      EventKind = "choice"
	EventStartManual EventKind = "start_manual"
	EventCancel      EventKind = "cancel"
)

// fromButton reports whether the event comes from a button press that
// expects an acknowledgment.
func (k EventKind) fromButton() bool {
	return k == EventChoice || k == EventStartManual || k == EventCancel
}

// Choice is a button press: Key is the button family, Value the selected token.
type Choice struct {
	Key   string
	Value string
}

// Document is an uploaded file. Fetch downloads its bytes.
type Document struct {
	Name  string
	Size  int64
	Fetch func(ctx context.Context) ([]byte, error)
}

// Event is one inbound user action.
type Event struct {
	Kind     EventKind
	UserID   int64
	Text     string
	Choice   Choice
	Document *Document
}

// ReplyKind tells the transport how to present a reply.
type ReplyKind string

const (
	ReplyPrompt   ReplyKind = "prompt"
	ReplyRetry    ReplyKind = "retry"
	ReplyProgress ReplyKind = "progress"
	ReplyResult   ReplyKind = "result"
	ReplyError    ReplyKind = "error"
	ReplyNotice   ReplyKind = "notice"
)

// Reply is one outbound message. Options are rendered as buttons under ChoiceKey.
type Reply struct {
	Kind       ReplyKind
	Text       string
	ChoiceKey  string
	Options    []Option
	Cancelable bool
}

// Replier delivers replies for a single event.
type Replier interface {
	Reply(ctx context.Context, r Reply) error
	// Ack answers a button press without sending a message.
	Ack(ctx context.Context) error
}

// Submitter sends an assembled request to the tariff service.
type Submitter interface {
	Submit(ctx context.Context, req tariff.Request) ([]byte, error)
}

// Observer receives conversation statistics.
type Observer interface {
	StepAccepted(flow, state string)
	InputRejected(flow, state string)
	Submitted(flow, outcome string, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) StepAccepted(string, string)             {}
func (nopObserver) InputRejected(string, string)            {}
func (nopObserver) Submitted(string, string, time.Duration) {}
