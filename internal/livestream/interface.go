package livestream

import (
	"context"
	"errors"
	"fmt"

	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
)

var (
	ErrAlreadyConnected = errors.New("adapter already connected")
	ErrNotConnected     = errors.New("adapter not connected")
	ErrAlreadyRunning   = errors.New("adapter already running")
	ErrStopped          = errors.New("adapter stopped")
)

// EventHandler consumes translated domain events. Implementations must
// not block: all handlers for one adapter run on its dispatch goroutine.
// A panicking handler is recovered and logged; dispatch continues with
// the remaining handlers.
type EventHandler interface {
	// OnChat is called for every chat message.
	OnChat(domain.ChatMessage)

	// OnGift is called for every gift.
	OnGift(domain.GiftEvent)

	// OnSuperChat is called for every super chat.
	OnSuperChat(domain.SuperChatEvent)

	// OnGuardPurchase is called for every guard membership purchase.
	OnGuardPurchase(domain.GuardPurchaseEvent)
}

// ConnectionErrorNotifier is optionally implemented by handlers that
// want to be told about fatal transport failures.
type ConnectionErrorNotifier interface {
	OnConnectionError(error)
}

// Adapter connects to one live room and feeds registered handlers.
type Adapter interface {
	// Connect establishes the upstream connection. Valid only from the
	// idle state; a second call returns ErrAlreadyConnected.
	Connect(ctx context.Context, roomID string) error

	// AddHandler registers a handler. Adding the same handler twice
	// keeps a single registration. Dispatch order is registration order.
	AddHandler(EventHandler)

	// RemoveHandler unregisters a handler. Removing an unregistered
	// handler is a no-op.
	RemoveHandler(EventHandler)

	// Start runs the receive loop and blocks until Stop is called or a
	// fatal transport error occurs. Valid only after Connect.
	Start(ctx context.Context) error

	// Stop shuts the adapter down. Safe to call from any goroutine;
	// when it returns no further events are dispatched.
	Stop() error

	// IsConnected reports whether the upstream connection is alive.
	IsConnected() bool
}

// State is the adapter lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateStopping
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConnectionError wraps a transport-level failure with the operation
// and room it happened on.
type ConnectionError struct {
	Op     string
	RoomID string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s room %s: %v", e.Op, e.RoomID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
