package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrWSClosed is returned when subscribing on a closed client.
var ErrWSClosed = errors.New("websocket client closed")

var errReconnected = errors.New("connection replaced before subscription was confirmed")

type wsConfig struct {
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pingInterval      time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	subscribeTimeout  time.Duration
	streamBuffer      int
	logger            *zap.Logger
}

// WSOption configures a ProgramSubscriber.
type WSOption func(*wsConfig)

// WithReconnectDelay sets the initial and maximum redial backoff.
func WithReconnectDelay(initial, max time.Duration) WSOption {
	return func(c *wsConfig) {
		c.reconnectDelay = initial
		c.maxReconnectDelay = max
	}
}

// WithPingInterval sets how often keepalive pings are sent.
func WithPingInterval(d time.Duration) WSOption {
	return func(c *wsConfig) { c.pingInterval = d }
}

// WithReadTimeout sets how long the connection may stay silent, pongs
// included, before it is redialed.
func WithReadTimeout(d time.Duration) WSOption {
	return func(c *wsConfig) { c.readTimeout = d }
}

// WithSubscribeTimeout bounds the wait for a subscription confirmation.
func WithSubscribeTimeout(d time.Duration) WSOption {
	return func(c *wsConfig) { c.subscribeTimeout = d }
}

// WithWSLogger sets the logger for connection events.
func WithWSLogger(l *zap.Logger) WSOption {
	return func(c *wsConfig) { c.logger = l }
}

// Compile-time interface check.
var _ WSClient = (*ProgramSubscriber)(nil)

// ProgramSubscriber streams programSubscribe notifications over one
// websocket. A dropped connection is redialed with backoff and every stream
// is subscribed again; streams only close on Close.
type ProgramSubscriber struct {
	endpoint string
	cfg      wsConfig

	conn    atomic.Pointer[websocket.Conn]
	writeMu sync.Mutex // one writer at a time per connection

	mu      sync.Mutex
	streams []*programStream
	routes  map[int64]*programStream // server subscription id
	pending map[uint64]*pendingSub   // request id
	nextID  uint64
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

type programStream struct {
	filter ProgramFilter
	out    chan AccountNotification
	kept   bool // in streams, guarded by mu
}

type pendingSub struct {
	stream *programStream
	reply  chan error
}

// NewWSClient dials endpoint and starts reading. The connection is kept
// until Close.
func NewWSClient(ctx context.Context, endpoint string, opts ...WSOption) (*ProgramSubscriber, error) {
	cfg := wsConfig{
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
		pingInterval:      20 * time.Second,
		readTimeout:       60 * time.Second,
		writeTimeout:      10 * time.Second,
		subscribeTimeout:  30 * time.Second,
		streamBuffer:      1024,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &ProgramSubscriber{
		endpoint: endpoint,
		cfg:      cfg,
		routes:   make(map[int64]*programStream),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn.Store(conn)

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *ProgramSubscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.readTimeout))
	})
	return conn, nil
}

// SubscribeProgram streams changes of every account owned by filter.ProgramID.
// The channel is buffered; a slow reader stalls the connection rather than
// losing updates.
func (c *ProgramSubscriber) SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error) {
	stream := &programStream{filter: filter, out: make(chan AccountNotification, c.cfg.streamBuffer)}
	if err := c.subscribe(ctx, stream); err != nil {
		return nil, err
	}
	return stream.out, nil
}

// subscribe sends programSubscribe for stream and waits for the server to
// confirm it. The read loop routes the stream on confirmation, so no
// notification that follows it is missed.
func (c *ProgramSubscriber) subscribe(ctx context.Context, stream *programStream) error {
	reply := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrWSClosed
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = &pendingSub{stream: stream, reply: reply}
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	err := c.write(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "programSubscribe",
		Params: []interface{}{
			stream.filter.ProgramID,
			map[string]string{"encoding": "base64", "commitment": "confirmed"},
		},
	})
	if err != nil {
		forget()
		return fmt.Errorf("write programSubscribe: %w", err)
	}

	timer := time.NewTimer(c.cfg.subscribeTimeout)
	defer timer.Stop()
	select {
	case err := <-reply:
		return err
	case <-timer.C:
		forget()
		return fmt.Errorf("programSubscribe: no confirmation after %s", c.cfg.subscribeTimeout)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-c.done:
		return ErrWSClosed
	}
}

func (c *ProgramSubscriber) write(v interface{}) error {
	conn := c.conn.Load()
	if conn == nil {
		return errors.New("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// Close stops the client and closes every stream.
func (c *ProgramSubscriber) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	if conn := c.conn.Load(); conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.writeTimeout))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.wg.Wait()

	// The read loop has exited, nothing sends on the streams any more.
	c.mu.Lock()
	for _, s := range c.streams {
		close(s.out)
	}
	c.streams = nil
	c.mu.Unlock()
	return nil
}

func (c *ProgramSubscriber) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readLoop dispatches messages and redials when the connection fails.
func (c *ProgramSubscriber) readLoop() {
	defer c.wg.Done()

	for {
		conn := c.conn.Load()
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.readTimeout))
		_, message, err := conn.ReadMessage()
		if err == nil {
			c.dispatch(message)
			continue
		}
		if c.isClosed() {
			return
		}

		c.cfg.logger.Warn("websocket read failed, redialing", zap.Error(err))
		if !c.redial() {
			return
		}
		c.wg.Add(1)
		go c.resubscribe()
	}
}

// redial replaces the connection, backing off between attempts. It reports
// false when the client closed first.
func (c *ProgramSubscriber) redial() bool {
	if old := c.conn.Load(); old != nil {
		old.Close()
	}
	c.failPending(errReconnected)

	delay := c.cfg.reconnectDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err == nil {
			c.conn.Store(conn)
			// Close may have run between the dial and the store.
			if c.isClosed() {
				conn.Close()
				return false
			}
			c.cfg.logger.Info("websocket reconnected", zap.String("endpoint", c.endpoint))
			return true
		}

		c.cfg.logger.Warn("websocket redial failed", zap.Duration("retry_in", delay), zap.Error(err))
		delay *= 2
		if delay > c.cfg.maxReconnectDelay {
			delay = c.cfg.maxReconnectDelay
		}
	}
}

func (c *ProgramSubscriber) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		p.reply <- err
		delete(c.pending, id)
	}
	// Subscription ids belong to the old connection.
	c.routes = make(map[int64]*programStream)
}

// resubscribe subscribes every stream on a fresh connection. If one fails
// the connection is dropped so the read loop redials and tries again.
func (c *ProgramSubscriber) resubscribe() {
	defer c.wg.Done()

	c.mu.Lock()
	streams := append([]*programStream(nil), c.streams...)
	c.mu.Unlock()

	for _, s := range streams {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.subscribeTimeout)
		err := c.subscribe(ctx, s)
		cancel()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrWSClosed) || errors.Is(err, errReconnected) {
			return
		}
		c.cfg.logger.Error("resubscribe failed, dropping connection",
			zap.String("program", s.filter.ProgramID), zap.Error(err))
		if conn := c.conn.Load(); conn != nil {
			conn.Close()
		}
		return
	}
}

func (c *ProgramSubscriber) dispatch(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.cfg.logger.Warn("undecodable websocket message", zap.Error(err))
		return
	}

	switch {
	case msg.ID != nil:
		c.confirm(*msg.ID, msg)
	case msg.Method == "programNotification" && msg.Params != nil:
		c.deliver(msg.Params)
	}
}

// confirm completes a pending subscribe and routes its stream.
func (c *ProgramSubscriber) confirm(id uint64, msg wsMessage) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)

	var err error
	var subID int64
	switch {
	case msg.Error != nil:
		err = msg.Error
	case json.Unmarshal(msg.Result, &subID) != nil:
		err = fmt.Errorf("programSubscribe: unexpected result %s", msg.Result)
	default:
		c.routes[subID] = p.stream
		// Kept from the first confirmation on, so a redial that follows
		// resubscribes it.
		if !p.stream.kept {
			p.stream.kept = true
			c.streams = append(c.streams, p.stream)
		}
	}
	c.mu.Unlock()

	p.reply <- err
}

func (c *ProgramSubscriber) deliver(params *wsProgramNotification) {
	c.mu.Lock()
	stream := c.routes[params.Subscription]
	c.mu.Unlock()
	if stream == nil {
		return
	}

	value := params.Result.Value
	update := AccountNotification{
		Pubkey:  value.Pubkey,
		Slot:    params.Result.Context.Slot,
		Account: value.Account.info(),
	}
	select {
	case stream.out <- update:
	case <-c.done:
	}
}

func (c *ProgramSubscriber) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if conn := c.conn.Load(); conn != nil {
				// A failed ping surfaces as a read error.
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.writeTimeout))
			}
		}
	}
}

// wsMessage is any frame the server sends: a reply carries an id, a
// notification carries a method.
type wsMessage struct {
	ID     *uint64                `json:"id"`
	Result json.RawMessage        `json:"result"`
	Error  *rpcError              `json:"error"`
	Method string                 `json:"method"`
	Params *wsProgramNotification `json:"params"`
}

type wsProgramNotification struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Pubkey  string              `json:"pubkey"`
			Account getAccountInfoValue `json:"account"`
		} `json:"value"`
	} `json:"result"`
}
