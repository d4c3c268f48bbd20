package bilibili

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timchenkailiang/bilibili-live-bot/internal/dedup"
	"github.com/timchenkailiang/bilibili-live-bot/internal/domain"
	"github.com/timchenkailiang/bilibili-live-bot/internal/livestream"
	"github.com/timchenkailiang/bilibili-live-bot/pkg/blive"
	"github.com/timchenkailiang/bilibili-live-bot/pkg/log"
)

// Transport is the narrow surface of the native protocol client the
// adapter consumes. *blive.Client implements it.
type Transport interface {
	Connect(ctx context.Context, roomID int64) error
	OnCommand(fn func(blive.Command))
	Run(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Config holds adapter tuning.
type Config struct {
	// DedupWindow is how long an identical event is considered a
	// replay. Zero disables dedup entirely.
	DedupWindow time.Duration

	// CoinRates maps a coin type to how many coins make one CNY.
	// Coin types absent from the table are worth nothing.
	CoinRates map[string]int64
}

// DefaultCoinRates returns the standard conversion table.
func DefaultCoinRates() map[string]int64 {
	return map[string]int64{string(domain.CoinGold): 1000}
}

// Adapter translates native live-room traffic into domain events and
// fans them out synchronously to registered handlers, in registration
// order, on the single receive goroutine.
type Adapter struct {
	transport Transport
	cfg       Config
	deduper   dedup.Deduper
	logger    zerolog.Logger

	mu       sync.Mutex
	state    livestream.State
	roomID   string
	handlers []livestream.EventHandler
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ livestream.Adapter = (*Adapter)(nil)

// New creates an adapter over the given transport. A nil deduper with
// a positive Config.DedupWindow gets an in-memory window; a nil
// deduper with a zero window disables dedup.
func New(transport Transport, deduper dedup.Deduper, cfg Config) *Adapter {
	if cfg.CoinRates == nil {
		cfg.CoinRates = DefaultCoinRates()
	}
	if deduper == nil && cfg.DedupWindow > 0 {
		deduper = dedup.NewWindow(cfg.DedupWindow)
	}

	a := &Adapter{
		transport: transport,
		cfg:       cfg,
		deduper:   deduper,
		logger:    log.L(),
	}
	transport.OnCommand(a.handleCommand)
	return a
}

// Connect establishes the upstream connection. Valid only from idle.
func (a *Adapter) Connect(ctx context.Context, roomID string) error {
	a.mu.Lock()
	if a.state != livestream.StateIdle {
		a.mu.Unlock()
		return livestream.ErrAlreadyConnected
	}
	a.state = livestream.StateConnecting
	a.roomID = roomID
	a.logger = log.L().With().Str(log.FieldRoomID, roomID).Logger()
	a.mu.Unlock()

	id, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		a.setState(livestream.StateErrored)
		return &livestream.ConnectionError{Op: "connect", RoomID: roomID,
			Err: fmt.Errorf("room id must be numeric: %w", err)}
	}

	err = a.transport.Connect(ctx, id)

	a.mu.Lock()
	if a.state == livestream.StateStopping || a.state == livestream.StateStopped {
		a.state = livestream.StateStopped
		a.mu.Unlock()
		return livestream.ErrStopped
	}
	if err != nil {
		a.state = livestream.StateErrored
		a.mu.Unlock()
		cerr := &livestream.ConnectionError{Op: "connect", RoomID: roomID, Err: err}
		a.notifyConnectionError(cerr)
		return cerr
	}
	a.state = livestream.StateConnected
	a.mu.Unlock()

	a.logger.Info().Msg("adapter connected")
	return nil
}

// AddHandler registers a handler. Adding a registered handler again is
// a no-op; dispatch order is registration order.
func (a *Adapter) AddHandler(h livestream.EventHandler) {
	if h == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.handlers {
		if existing == h {
			return
		}
	}
	a.handlers = append(a.handlers, h)
}

// RemoveHandler unregisters a handler. Unknown handlers are ignored.
func (a *Adapter) RemoveHandler(h livestream.EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.handlers {
		if existing == h {
			a.handlers = append(a.handlers[:i], a.handlers[i+1:]...)
			return
		}
	}
}

// Start blocks on the receive loop until Stop is called, the context
// is cancelled, or the transport fails.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case livestream.StateConnected:
	case livestream.StateRunning:
		a.mu.Unlock()
		return livestream.ErrAlreadyRunning
	case livestream.StateStopping, livestream.StateStopped:
		a.mu.Unlock()
		return livestream.ErrStopped
	default:
		a.mu.Unlock()
		return livestream.ErrNotConnected
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.state = livestream.StateRunning
	roomID := a.roomID
	a.mu.Unlock()

	a.logger.Info().Msg("adapter running")

	defer cancel()
	defer close(done)

	err := a.transport.Run(runCtx)

	a.mu.Lock()
	stopping := a.state == livestream.StateStopping
	if err != nil && !stopping {
		a.state = livestream.StateErrored
		a.mu.Unlock()
		a.transport.Close()
		cerr := &livestream.ConnectionError{Op: "run", RoomID: roomID, Err: err}
		a.logger.Error().Err(err).Msg("receive loop failed")
		a.notifyConnectionError(cerr)
		return cerr
	}
	a.state = livestream.StateStopped
	a.mu.Unlock()

	a.logger.Info().Msg("adapter stopped")
	return nil
}

// Stop shuts the adapter down and waits for the receive loop to drain.
// Safe to call from any goroutine except an event handler; once it
// returns no further events are dispatched. Stopping an already
// stopped adapter is a no-op.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	switch a.state {
	case livestream.StateIdle:
		a.mu.Unlock()
		return livestream.ErrNotConnected
	case livestream.StateStopping, livestream.StateStopped, livestream.StateErrored:
		a.mu.Unlock()
		return nil
	}
	a.state = livestream.StateStopping
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.transport.Close()
	if done != nil {
		<-done
	}

	a.mu.Lock()
	a.state = livestream.StateStopped
	a.mu.Unlock()
	return nil
}

// IsConnected reports whether the upstream connection is alive.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()
	switch state {
	case livestream.StateConnected, livestream.StateRunning:
		return a.transport.IsConnected()
	default:
		return false
	}
}

// State reports the lifecycle state.
func (a *Adapter) State() livestream.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// handleCommand runs on the transport's read goroutine, which makes it
// the single dispatch loop: translate, dedup, fan out.
func (a *Adapter) handleCommand(cmd blive.Command) {
	a.mu.Lock()
	running := a.state == livestream.StateRunning
	roomID := a.roomID
	a.mu.Unlock()
	if !running {
		return
	}

	// Danmaku commands sometimes arrive suffixed, e.g. DANMU_MSG:4:0:2:2:2:0.
	kind := cmd.Cmd
	if i := strings.IndexByte(kind, ':'); i > 0 {
		kind = kind[:i]
	}

	switch kind {
	case cmdDanmaku:
		msg, err := translateChat(roomID, cmd.Info)
		if err != nil {
			a.warnDrop(cmd.Cmd, err)
			return
		}
		if a.isReplay(chatKey(msg)) {
			return
		}
		a.dispatch(func(h livestream.EventHandler) { h.OnChat(msg) })

	case cmdSendGift:
		e, err := translateGift(roomID, cmd.Data, a.cfg.CoinRates)
		if err != nil {
			a.warnDrop(cmd.Cmd, err)
			return
		}
		if a.isReplay(giftKey(e)) {
			return
		}
		a.dispatch(func(h livestream.EventHandler) { h.OnGift(e) })

	case cmdSuperChat:
		e, err := translateSuperChat(roomID, cmd.Data)
		if err != nil {
			a.warnDrop(cmd.Cmd, err)
			return
		}
		if a.isReplay(superChatKey(e)) {
			return
		}
		a.dispatch(func(h livestream.EventHandler) { h.OnSuperChat(e) })

	case cmdGuardBuy:
		e, err := translateGuard(roomID, cmd.Data, a.cfg.CoinRates)
		if err != nil {
			a.warnDrop(cmd.Cmd, err)
			return
		}
		if a.isReplay(guardKey(e)) {
			return
		}
		a.dispatch(func(h livestream.EventHandler) { h.OnGuardPurchase(e) })

	default:
		a.logger.Debug().Str(log.FieldCmd, cmd.Cmd).Msg("unhandled command")
	}
}

func (a *Adapter) warnDrop(cmd string, err error) {
	a.logger.Warn().Err(err).Str(log.FieldCmd, cmd).Msg("untranslatable message dropped")
}

func (a *Adapter) isReplay(key string) bool {
	if a.deduper == nil {
		return false
	}
	if a.deduper.Seen(context.Background(), key) {
		a.logger.Debug().Str("dedup_key", key).Msg("duplicate event discarded")
		return true
	}
	return false
}

// dispatch invokes fn for every registered handler on a snapshot of
// the registry. A panicking handler is recovered and logged; the
// remaining handlers still run.
func (a *Adapter) dispatch(fn func(livestream.EventHandler)) {
	for _, h := range a.snapshotHandlers() {
		a.safeCall(h, fn)
	}
}

func (a *Adapter) safeCall(h livestream.EventHandler, fn func(livestream.EventHandler)) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Interface("panic", r).
				Str("handler", fmt.Sprintf("%T", h)).
				Msg("handler panicked, continuing")
		}
	}()
	fn(h)
}

func (a *Adapter) notifyConnectionError(err error) {
	for _, h := range a.snapshotHandlers() {
		n, ok := h.(livestream.ConnectionErrorNotifier)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error().Interface("panic", r).Msg("connection error handler panicked")
				}
			}()
			n.OnConnectionError(err)
		}()
	}
}

func (a *Adapter) snapshotHandlers() []livestream.EventHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]livestream.EventHandler, len(a.handlers))
	copy(out, a.handlers)
	return out
}

func (a *Adapter) setState(s livestream.State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}
