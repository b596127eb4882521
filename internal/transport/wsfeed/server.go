// Package wsfeed раздаёт события Hub удалённым клиентам через WebSocket и
// предоставляет клиентский транспорт с переподключением.
package wsfeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Handler — HTTP-обработчик /feed. Параметр tables (через запятую) ограничивает таблицы.
type Handler struct {
	transport changefeed.Transport
	logger    *log.Entry
	metrics   *metrics.BarMetrics

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHandler создаёт обработчик поверх транспорта изменений (обычно Hub).
func NewHandler(transport changefeed.Transport, logger *log.Entry, m *metrics.BarMetrics) *Handler {
	if logger == nil {
		logger = log.WithField("component", "feed")
	}
	return &Handler{
		transport: transport,
		logger:    logger,
		metrics:   m,
		closed:    make(chan struct{}),
	}
}

// Close отключает всех клиентов; новые подключения сразу закрываются.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tables, err := parseTables(r.URL.Query().Get("tables"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c := &feedConn{
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		stop:   h.closed,
		logger: h.logger.WithField("remote", r.RemoteAddr),
	}

	// Подписка до upgrade: события, пришедшие во время рукопожатия, ждут в буфере send.
	handles := make([]changefeed.Handle, 0, len(tables))
	defer func() {
		for _, handle := range handles {
			handle.Close()
		}
	}()
	for _, table := range tables {
		handle, err := h.transport.Subscribe(table, nil, c.enqueue)
		if err != nil {
			c.logger.WithError(err).WithField("table", table).Warn("feed subscribe failed")
			http.Error(w, "feed is unavailable", http.StatusServiceUnavailable)
			return
		}
		handles = append(handles, handle)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("failed to upgrade feed connection")
		return
	}
	c.conn = conn

	h.metrics.AddFeedClients(1)
	defer h.metrics.AddFeedClients(-1)
	c.logger.WithField("tables", len(tables)).Debug("feed client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump()
	c.shutdown()
	<-writerDone
}

func parseTables(raw string) ([]domain.Table, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Tables(), nil
	}

	var tables []domain.Table
	seen := make(map[domain.Table]struct{})
	for _, part := range strings.Split(raw, ",") {
		table := domain.Table(strings.TrimSpace(part))
		if !table.Valid() {
			return nil, fmt.Errorf("unknown table %q", part)
		}
		if _, ok := seen[table]; ok {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	return tables, nil
}

// feedConn — одно WebSocket-подключение клиента ленты.
type feedConn struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	stop   <-chan struct{}
	once   sync.Once
	logger *log.Entry
}

// enqueue вызывается транспортом и не блокируется. Медленный клиент отключается:
// после переподключения он сделает resync, так что пропущенные события не теряются.
func (c *feedConn) enqueue(ev domain.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.WithError(err).Warn("failed to encode change event")
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("feed client is too slow, dropping connection")
		c.shutdown()
	}
}

func (c *feedConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *feedConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Клиент ничего не присылает; чтение нужно для control-фреймов и обнаружения закрытия.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("feed read failed")
			}
			return
		}
	}
}

func (c *feedConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.stop:
			c.writeClose(websocket.CloseGoingAway)
			c.shutdown()
			return
		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure)
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *feedConn) writeClose(code int) {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(writeWait),
	)
}
