package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groupclip/groupclip/internal/remote"
)

const heartbeatInterval = 30 * time.Second

// Share is one incoming group share delivered by the change feed.
type Share struct {
	Content   string `json:"content"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Sender    string `json:"sender"`
	GroupID   string `json:"group_id"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Handler receives shares originated by other group members. Shares whose
// sender matches the local username never reach it.
type Handler func(Share)

// ErrorSink records subscription diagnostics.
type ErrorSink interface {
	LogError(source, message, details string)
}

type nopSink struct{}

func (nopSink) LogError(string, string, string) {}

// phxMessage is the Phoenix channel envelope used by the realtime feed.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// Subscriber maintains at most one realtime channel, keyed by group id.
// Subscribing to a new group tears the previous channel down first. Failed
// subscriptions are logged and not retried; the next group change or daemon
// restart re-subscribes.
type Subscriber struct {
	endpoint  remote.Endpoint
	localName func() string
	handler   Handler
	logger    *slog.Logger
	errors    ErrorSink

	mu      sync.Mutex
	current *channel
}

// NewSubscriber creates a Subscriber. localName is consulted per event so a
// username change applies without re-subscribing. sink may be nil.
func NewSubscriber(endpoint remote.Endpoint, localName func() string, handler Handler, sink ErrorSink) *Subscriber {
	if sink == nil {
		sink = nopSink{}
	}
	return &Subscriber{
		endpoint:  endpoint,
		localName: localName,
		handler:   handler,
		logger:    slog.Default(),
		errors:    sink,
	}
}

// socketURL derives the websocket endpoint from the store's base URL.
func (s *Subscriber) socketURL() (string, error) {
	u, err := url.Parse(s.endpoint.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", s.endpoint.APIKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe opens the change feed for groupID, replacing any active channel.
// The server filters inserts to the group; no client-side group filtering
// happens beyond echo suppression.
func (s *Subscriber) Subscribe(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.close()
		s.current = nil
	}
	if groupID == "" {
		return nil
	}

	wsURL, err := s.socketURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		s.errors.LogError("subscription", "websocket dial failed", err.Error())
		return fmt.Errorf("dialing realtime socket: %w", err)
	}

	ch := &channel{
		conn:    conn,
		topic:   "realtime:group-" + groupID,
		done:    make(chan struct{}),
		sub:     s,
		groupID: groupID,
	}
	if err := ch.join(); err != nil {
		conn.Close()
		s.errors.LogError("subscription", "channel join failed", err.Error())
		return fmt.Errorf("joining group channel: %w", err)
	}

	s.current = ch
	go ch.readLoop()
	go ch.heartbeatLoop()

	s.logger.Info("subscribed to group feed", "group", groupID)
	return nil
}

// Close tears down the active channel, if any.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.close()
		s.current = nil
	}
}

// channel is one joined Phoenix topic on one websocket connection.
type channel struct {
	conn    *websocket.Conn
	topic   string
	groupID string
	sub     *Subscriber

	refMu sync.Mutex
	ref   int

	closeOnce sync.Once
	done      chan struct{}
}

func (c *channel) nextRef() string {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	c.ref++
	return strconv.Itoa(c.ref)
}

type joinConfig struct {
	Config struct {
		PostgresChanges []postgresChange `json:"postgres_changes"`
	} `json:"config"`
}

type postgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter"`
}

func (c *channel) join() error {
	var cfg joinConfig
	cfg.Config.PostgresChanges = []postgresChange{{
		Event:  "INSERT",
		Schema: "public",
		Table:  remote.SharesTable,
		Filter: "group_id=eq." + c.groupID,
	}}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.send(phxMessage{Topic: c.topic, Event: "phx_join", Payload: payload, Ref: c.nextRef()})
}

func (c *channel) send(msg phxMessage) error {
	return c.conn.WriteJSON(msg)
}

func (c *channel) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *channel) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			hb := phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: c.nextRef()}
			if err := c.send(hb); err != nil {
				c.sub.logger.Warn("heartbeat failed", "group", c.groupID, "error", err)
				return
			}
		}
	}
}

func (c *channel) readLoop() {
	for {
		var msg phxMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
				// Deliberate teardown.
			default:
				c.sub.logger.Warn("realtime feed closed", "group", c.groupID, "error", err)
				c.sub.errors.LogError("subscription", "realtime feed closed", err.Error())
			}
			return
		}
		c.sub.handleMessage(msg)
	}
}

// changePayload is the payload shape of a postgres_changes event.
type changePayload struct {
	Data struct {
		Type   string `json:"type"`
		Record struct {
			Content   string `json:"content"`
			URL       string `json:"url"`
			Title     string `json:"title"`
			Sender    string `json:"sender"`
			GroupID   string `json:"group_id"`
			Timestamp string `json:"timestamp"`
		} `json:"record"`
	} `json:"data"`
}

func (s *Subscriber) handleMessage(msg phxMessage) {
	if msg.Event != "postgres_changes" {
		return
	}

	var payload changePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Warn("undecodable change event", "error", err)
		return
	}
	rec := payload.Data.Record
	if rec.Content == "" && rec.Sender == "" {
		return
	}

	// Suppress the echo of this client's own shares.
	if rec.Sender == s.localName() {
		return
	}

	s.handler(Share{
		Content:   rec.Content,
		URL:       rec.URL,
		Title:     rec.Title,
		Sender:    rec.Sender,
		GroupID:   rec.GroupID,
		Timestamp: remote.ParseTimestamp(rec.Timestamp),
	})
}
