package signaling

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/logger"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	// ErrRequestFailed is the cause of errors returned when the server
	// responds with an error.
	ErrRequestFailed = errors.New("request failed")
	// ErrClosed is the cause of errors returned by requests made on, or
	// pending while, a closed client.
	ErrClosed = errors.New("signaling client closed")
)

const (
	readLimit           = 1 << 20
	notificationsBuffer = 16
)

// Client sends requests and notifications and receives notifications over
// a websocket.
type Client struct {
	log  logger.Logger
	conn *websocket.Conn

	nextID uint32

	mu      sync.Mutex
	pending map[uint32]chan Message
	closed  bool

	notifications chan Message

	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// Dial connects to the signaling server at url.
func Dial(ctx context.Context, log logger.Logger, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "dial %s", url)
	}

	return NewClient(log, conn), nil
}

// NewClient takes ownership of conn and starts reading from it.
func NewClient(log logger.Logger, conn *websocket.Conn) *Client {
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		log:           log.WithNamespaceAppended("signaling"),
		conn:          conn,
		pending:       map[uint32]chan Message{},
		notifications: make(chan Message, notificationsBuffer),
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	go c.readLoop(ctx)

	return c
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()

		c.closed = true

		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}

		c.mu.Unlock()

		close(c.notifications)
		close(c.done)
	}()

	for {
		var msg Message

		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			if isClosedRead(err) {
				c.log.Debug("Read loop done", nil)
			} else {
				c.log.Error("Read", errors.Trace(err), nil)
			}

			return
		}

		c.log.Trace("Recv", logger.Ctx{
			"method": msg.Method,
			"id":     msg.ID,
		})

		switch {
		case msg.Response:
			c.handleResponse(msg)
		case msg.Notification:
			select {
			case c.notifications <- msg:
			case <-ctx.Done():
				return
			}
		case msg.Request:
			c.handleRequest(ctx, msg)
		default:
			c.log.Warn("Invalid message", logger.Ctx{
				"id": msg.ID,
			})
		}
	}
}

// isClosedRead reports whether a read failed because either side closed the
// connection. nhooyr wraps context errors with %w.
func isClosedRead(err error) bool {
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure || stderrors.Is(err, context.Canceled)
}

func (c *Client) handleResponse(msg Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.log.Warn("Response to unknown request", logger.Ctx{
			"id": msg.ID,
		})

		return
	}

	ch <- msg
}

// handleRequest rejects server requests since none are supported.
func (c *Client) handleRequest(ctx context.Context, msg Message) {
	c.log.Warn("Unsupported request", logger.Ctx{
		"method": msg.Method,
	})

	if err := wsjson.Write(ctx, c.conn, NewErrorResponse(msg, http.StatusNotImplemented, "unsupported method")); err != nil {
		c.log.Error("Write error response", errors.Trace(err), nil)
	}
}

// Request sends a request and waits for the response. When result is not
// nil the response data is decoded into it.
func (c *Client) Request(ctx context.Context, method string, data interface{}, result interface{}) error {
	id := atomic.AddUint32(&c.nextID, 1)

	req, err := NewRequest(id, method, data)
	if err != nil {
		return errors.Annotatef(err, "request %s", method)
	}

	ch := make(chan Message, 1)

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return errors.Annotatef(ErrClosed, "request %s", method)
	}

	c.pending[id] = ch

	c.mu.Unlock()

	removePending := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	c.log.Trace("Request", logger.Ctx{
		"method": method,
		"id":     id,
	})

	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		removePending()

		return errors.Annotatef(err, "request %s: write", method)
	}

	var res Message

	select {
	case r, ok := <-ch:
		if !ok {
			return errors.Annotatef(ErrClosed, "request %s", method)
		}

		res = r
	case <-ctx.Done():
		removePending()

		return errors.Annotatef(ctx.Err(), "request %s", method)
	}

	if !res.OK {
		return errors.Annotatef(ErrRequestFailed, "request %s: %d %s", method, res.ErrorCode, res.ErrorReason)
	}

	if result == nil || len(res.Data) == 0 {
		return nil
	}

	return errors.Trace(res.DecodeData(result))
}

// Notify sends a notification. Notifications are not acknowledged.
func (c *Client) Notify(ctx context.Context, method string, data interface{}) error {
	msg, err := NewNotification(method, data)
	if err != nil {
		return errors.Annotatef(err, "notify %s", method)
	}

	return errors.Annotatef(wsjson.Write(ctx, c.conn, msg), "notify %s", method)
}

// Notifications returns server notifications. The channel is closed when
// the connection closes.
func (c *Client) Notifications() <-chan Message {
	return c.notifications
}

// Close closes the connection and waits for the read loop to return.
// Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		<-c.done
	})

	return errors.Annotate(err, "close signaling connection")
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}
