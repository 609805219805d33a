package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-uci/pkg/enginedto"
)

type FeedState int

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedConnected
	FeedReconnecting
	FeedFailed
)

func (s FeedState) String() string {
	switch s {
	case FeedConnecting:
		return "connecting"
	case FeedConnected:
		return "connected"
	case FeedReconnecting:
		return "reconnecting"
	case FeedFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

var ErrFeedNotConnected = errors.New("relay feed not connected")

type MoveCallback func(rm enginedto.RemoteMove)

type StateCallback func(state FeedState)

// Feed is a websocket link to a remote UI. It receives player moves and can
// carry game events back.
type Feed struct {
	wsURL  string
	logger *zap.Logger

	connM sync.Mutex
	conn  *websocket.Conn
	// writeM serializes frames; wsjson.Write is not safe for concurrent use.
	writeM sync.Mutex

	state  FeedState
	stateM sync.RWMutex

	moveCbs  []MoveCallback
	stateCbs []StateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration
	headerProvider       HeaderProvider

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type FeedOption func(*Feed)

func WithFeedLogger(l *zap.Logger) FeedOption {
	return func(f *Feed) { f.logger = l }
}

func WithReconnectAttempts(n int) FeedOption {
	return func(f *Feed) { f.maxReconnectAttempts = n }
}

func WithPingInterval(d time.Duration) FeedOption {
	return func(f *Feed) { f.pingInterval = d }
}

func WithFeedHeaders(h HeaderProvider) FeedOption {
	return func(f *Feed) { f.headerProvider = h }
}

func NewFeed(wsURL string, opts ...FeedOption) *Feed {
	f := &Feed{
		wsURL:                strings.TrimSpace(wsURL),
		logger:               zap.NewNop(),
		state:                FeedDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	return f
}

func (f *Feed) Connect(ctx context.Context) error {
	switch f.State() {
	case FeedConnected, FeedConnecting:
		return nil
	}
	f.setState(FeedConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := f.dial(dialCtx)
	if err != nil {
		f.setState(FeedFailed)
		f.scheduleReconnect()
		return err
	}
	f.attach(conn)
	return nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	return conn, err
}

func (f *Feed) attach(conn *websocket.Conn) {
	f.connM.Lock()
	f.conn = conn
	f.connM.Unlock()
	f.setState(FeedConnected)
	f.logger.Info("relay feed connected", zap.String("url", f.wsURL))

	f.wg.Add(2)
	go f.listen(conn)
	go f.pingLoop(conn)
}

func (f *Feed) listen(conn *websocket.Conn) {
	defer f.wg.Done()
	for {
		var rm enginedto.RemoteMove
		if err := wsjson.Read(f.rootCtx, conn, &rm); err != nil {
			if f.isStopping() {
				return
			}
			f.logger.Warn("relay feed read failed", zap.Error(err))
			f.drop(conn, websocket.StatusGoingAway, "reconnect")
			return
		}
		rm.GameID = strings.TrimSpace(rm.GameID)
		rm.UCI = strings.TrimSpace(rm.UCI)
		if rm.GameID == "" || rm.UCI == "" {
			f.logger.Debug("relay feed: incomplete move skipped")
			continue
		}

		f.cbM.RLock()
		callbacks := append([]MoveCallback(nil), f.moveCbs...)
		f.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(rm)
		}
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn) {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			if f.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if f.isStopping() {
					return
				}
				f.drop(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// drop closes conn once and starts reconnecting if it is still current.
func (f *Feed) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	f.connM.Lock()
	current := f.conn == conn
	if current {
		f.conn = nil
	}
	f.connM.Unlock()
	_ = conn.Close(code, reason)
	if current && !f.isStopping() {
		f.setState(FeedDisconnected)
		f.scheduleReconnect()
	}
}

func (f *Feed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 {
		return
	}
	f.setState(FeedReconnecting)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			dialCtx, cancel := context.WithTimeout(f.rootCtx, 10*time.Second)
			conn, err := f.dial(dialCtx)
			cancel()
			if err != nil {
				f.logger.Debug("relay feed reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if f.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			f.attach(conn)
			return
		}
		f.setState(FeedFailed)
	}()
}

// Publish writes ev as one JSON frame.
func (f *Feed) Publish(ctx context.Context, ev enginedto.Event) error {
	conn := f.current()
	if conn == nil || f.State() != FeedConnected {
		return ErrFeedNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	f.writeM.Lock()
	defer f.writeM.Unlock()
	return wsjson.Write(ctx, conn, ev)
}

func (f *Feed) OnMove(cb MoveCallback) {
	f.cbM.Lock()
	f.moveCbs = append(f.moveCbs, cb)
	f.cbM.Unlock()
}

func (f *Feed) OnStateChange(cb StateCallback) {
	f.cbM.Lock()
	f.stateCbs = append(f.stateCbs, cb)
	f.cbM.Unlock()
}

func (f *Feed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

func (f *Feed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := append([]StateCallback(nil), f.stateCbs...)
	f.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (f *Feed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.connM.Lock()
	conn := f.conn
	f.conn = nil
	f.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	f.rootCancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		f.setState(FeedDisconnected)
		return nil
	}
}

func (f *Feed) current() *websocket.Conn {
	f.connM.Lock()
	defer f.connM.Unlock()
	return f.conn
}

func (f *Feed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *Feed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.headerProvider == nil {
		return hdr
	}
	for k, v := range f.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
