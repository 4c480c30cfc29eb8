package notify

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/auth"
)

// ServerConfig tunes WebSocket connections.
type ServerConfig struct {
	// PingInterval is how often the server pings idle clients.
	PingInterval time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// MaxMessageSize caps inbound client frames.
	MaxMessageSize int64
	// AllowedOrigins restricts browser origins. Empty allows all.
	AllowedOrigins []string
}

func (c *ServerConfig) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4 << 10
	}
}

// Server upgrades HTTP requests to WebSocket connections speaking the room
// protocol.
type Server struct {
	hub      *Hub
	tokens   auth.TokenParser
	cfg      ServerConfig
	upgrader websocket.Upgrader
}

// NewServer creates a Server. Room joins are authorized with tokens.
func NewServer(hub *Hub, tokens auth.TokenParser, cfg ServerConfig) *Server {
	cfg.setDefaults()
	s := &Server{hub: hub, tokens: tokens, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	// A missing token yields an anonymous connection that cannot join rooms.
	var (
		id     auth.Identity
		authed bool
	)
	if tok := r.URL.Query().Get("token"); tok != "" {
		parsed, err := s.tokens.Parse(tok)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id, authed = parsed, true
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		lg.Debug("Upgrade failed", zap.Error(err))
		return
	}

	sub := s.hub.Subscribe()
	c := &client{
		srv:    s,
		conn:   conn,
		sub:    sub,
		id:     id,
		authed: authed,
		lg:     lg.With(zap.String("user_id", id.UserID)),
		out:    make(chan Event, 4),
		done:   make(chan struct{}),
	}
	lg.Debug("Client connected")

	go c.writePump()
	c.readPump()
}

type client struct {
	srv    *Server
	conn   *websocket.Conn
	sub    *Subscriber
	id     auth.Identity
	authed bool
	lg     *zap.Logger

	// out carries protocol replies that do not go through the hub.
	out  chan Event
	done chan struct{}
}

func (c *client) authorize(room Room) bool {
	if !c.authed {
		return false
	}
	if room.IsAdmin() {
		return c.id.IsAdmin()
	}
	return c.id.CanAccessCustomer(room.CustomerID())
}

func (c *client) readPump() {
	defer func() {
		c.srv.hub.LeaveAll(c.sub)
		close(c.done)
		_ = c.conn.Close()
		c.lg.Debug("Client disconnected")
	}()

	c.conn.SetReadLimit(c.srv.cfg.MaxMessageSize)
	deadline := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * c.srv.cfg.PingInterval))
	}
	_ = deadline()
	c.conn.SetPongHandler(func(string) error { return deadline() })

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.lg.Debug("Read failed", zap.Error(err))
			}
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg []byte) {
	cmd, err := DecodeCommand(msg)
	if err != nil {
		c.reply(ErrorEvent("malformed message"))
		return
	}
	switch cmd.Event {
	case EventJoinRoom:
		room, err := ParseRoom(cmd.Room)
		if err != nil {
			c.reply(ErrorEvent("invalid room"))
			return
		}
		if !c.authorize(room) {
			c.reply(ErrorEvent("forbidden"))
			return
		}
		c.srv.hub.Join(c.sub, room)
		c.lg.Debug("Joined room", zap.Stringer("room", room))
	case EventLeaveRoom:
		room, err := ParseRoom(cmd.Room)
		if err != nil {
			c.reply(ErrorEvent("invalid room"))
			return
		}
		c.srv.hub.Leave(c.sub, room)
	default:
		c.reply(ErrorEvent("unknown event"))
	}
}

func (c *client) reply(ev Event) {
	select {
	case c.out <- ev:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var ev Event
		select {
		case <-c.done:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case ev = <-c.out:
		case ev = <-c.sub.C():
		}
		if err := write(websocket.TextMessage, EncodeFrame(ev)); err != nil {
			c.lg.Debug("Write failed", zap.Error(err))
			return
		}
	}
}
