package polymarket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second

	reconnectMin = 1 * time.Second
	reconnectMax = 60 * time.Second
)

// Stream maintains a websocket subscription to the market's live activity
// feed and converts trade messages for the tracked wallets into raw
// TradeEvent candidates. The feed is a low-latency supplement to the poller:
// both funnel into the same dedup filter, so double delivery is harmless.
type Stream struct {
	url      string
	wallets  map[string]struct{}
	out      chan<- *domain.TradeEvent
	logger   ports.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	connMu sync.Mutex
	conn   *websocket.Conn
}

// StreamConfig holds configuration for the live trade stream.
type StreamConfig struct {
	URL     string   // Websocket endpoint
	Wallets []string // Source wallets to watch
	Out     chan<- *domain.TradeEvent
	Logger  ports.Logger
}

// NewStream creates a stream listener. Call Start to connect.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Logger == nil || cfg.Out == nil || cfg.URL == "" {
		return nil, ports.ErrConfigurationError
	}
	wallets := make(map[string]struct{}, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		wallets[strings.ToLower(w)] = struct{}{}
	}
	return &Stream{
		url:     cfg.URL,
		wallets: wallets,
		out:     cfg.Out,
		logger:  cfg.Logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start runs the connect/read/reconnect loop in the background.
func (s *Stream) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop shuts the stream down and waits for the read loop to exit. Closing
// the live connection unblocks a read in progress; without it Stop would
// wait out the full read deadline.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
}

// setConn tracks the active connection so Stop can interrupt its reads.
func (s *Stream) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *Stream) run(ctx context.Context) {
	defer s.wg.Done()

	retry := &backoff.Backoff{Min: reconnectMin, Max: reconnectMax, Jitter: true}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		conn, err := s.connect(ctx)
		if err != nil {
			d := retry.Duration()
			s.logger.Warn(ctx, "Trade stream connect failed, will retry", map[string]interface{}{
				"error": err.Error(), "delay": d.String()})
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(d):
			}
			continue
		}
		retry.Reset()
		s.setConn(conn)
		s.logger.Info(ctx, "Trade stream connected", map[string]interface{}{"url": s.url})

		if err := s.readLoop(ctx, conn); err != nil {
			s.logger.Warn(ctx, "Trade stream read error", map[string]interface{}{"error": err.Error()})
		}
		conn.Close()
		s.setConn(nil)
	}
}

// subscribeMessage asks the feed for trade activity on the tracked wallets.
type subscribeMessage struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Wallets []string `json:"wallets"`
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	wallets := make([]string, 0, len(s.wallets))
	for w := range s.wallets {
		wallets = append(wallets, w)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Channel: "activity", Wallets: wallets}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// streamMessage is one activity event from the feed. The trade payload uses
// the same field names as the Data API rows.
type streamMessage struct {
	Type  string      `json:"type"`
	Trade tradeRecord `json:"trade"`
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPingHandler(func(appData string) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug(ctx, "Trade stream: skipping undecodable message", map[string]interface{}{"error": err.Error()})
			continue
		}
		if msg.Type != "trade" || msg.Trade.TransactionHash == "" {
			continue
		}
		source := strings.ToLower(msg.Trade.ProxyWallet)
		if _, tracked := s.wallets[source]; !tracked {
			continue
		}

		ev := &domain.TradeEvent{
			SourceWallet: source,
			MarketID:     msg.Trade.Asset,
			MarketTitle:  msg.Trade.Title,
			Side:         domain.OrderSide(strings.ToUpper(msg.Trade.Side)),
			Size:         msg.Trade.Size,
			Price:        msg.Trade.Price,
			Volume:       decimal.NewFromFloat(msg.Trade.Size).Mul(decimal.NewFromFloat(msg.Trade.Price)),
			TxHash:       msg.Trade.TransactionHash,
			Timestamp:    time.Unix(msg.Trade.Timestamp, 0).UTC(),
		}
		select {
		case s.out <- ev:
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		}
	}
}
