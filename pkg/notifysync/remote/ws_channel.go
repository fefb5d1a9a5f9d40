package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"backoffice-notify/pkg/notifysync"

	"nhooyr.io/websocket"
)

const wsModule = "NotificationChannel"

type changeFrame struct {
	Event  string            `json:"event"`
	Record notifysync.Record `json:"record"`
}

// WSChannel subscribes to the server push channel. The server filters by the
// token's user.
type WSChannel struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     notifysync.Logger
}

var _ notifysync.Channel = (*WSChannel)(nil)

func NewWSChannel(baseURL, token string, httpClient *http.Client, log notifysync.Logger) *WSChannel {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if log == nil {
		log = notifysync.NopLogger()
	}
	return &WSChannel{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		logger:     log,
	}
}

// Subscribe dials the channel and delivers frames to handler until the
// subscription is cancelled, ctx ends or the connection drops.
func (c *WSChannel) Subscribe(ctx context.Context, userID string, handler notifysync.RowHandler) (notifysync.Subscription, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
	})
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.logger.Info(wsModule, "Subscribed to notification channel", map[string]interface{}{"user_id": userID})
	go sub.readLoop(subCtx, handler, c.logger)
	return sub, nil
}

func (c *WSChannel) endpoint() (string, error) {
	u, err := url.Parse(c.baseURL + "/api/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Unsubscribe is idempotent and does not wait for the close handshake.
func (s *wsSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func (s *wsSubscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the connection ended, nil after Unsubscribe.
func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSubscription) readLoop(ctx context.Context, handler notifysync.RowHandler, log notifysync.Logger) {
	defer close(s.done)
	defer s.conn.Close(websocket.StatusNormalClosure, "")

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				log.Warn(wsModule, "Notification channel disconnected", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame changeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn(wsModule, "Dropping malformed frame", map[string]interface{}{"error": err.Error()})
			continue
		}

		kind := notifysync.EventKind(frame.Event)
		switch kind {
		case notifysync.EventInsert, notifysync.EventUpdate:
			handler(notifysync.RowEvent{Kind: kind, Record: frame.Record})
		default:
			log.Debug(wsModule, "Ignoring frame", map[string]interface{}{"event": frame.Event})
		}
	}
}
