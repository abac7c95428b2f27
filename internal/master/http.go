package master

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/kinectl/internal/observability"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// NewHTTPHandler exposes the master over HTTP: status, block moves, emergency stop,
// raw commands and a WebSocket command channel.
func NewHTTPHandler(cfg Config, svc *Service) *gin.Engine {
	origins := normalizeOrigins(cfg.CorsOrigins)
	r := observability.NewEngine(cfg.ID, cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	h := &httpIngress{
		svc:     svc,
		timeout: cfg.ReplyTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigins(origins),
		},
	}
	if h.timeout <= 0 {
		h.timeout = DefaultIngressReplyTimeout
	}
	r.GET("/ready", h.ready)
	api := r.Group("/api")
	api.GET("/status", h.status)
	api.POST("/block", h.block)
	api.POST("/stop", h.stop)
	api.POST("/command", h.command)
	r.GET("/ws", h.ws)
	return r
}

type httpIngress struct {
	svc      *Service
	timeout  time.Duration
	upgrader websocket.Upgrader
}

func (h *httpIngress) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *httpIngress) ready(c *gin.Context) {
	if !h.svc.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *httpIngress) status(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()
	st, err := h.svc.Snapshot(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// block mirrors POST /api/block?num=&action=&duration= of the kiosk client.
func (h *httpIngress) block(c *gin.Context) {
	num, err := strconv.Atoi(strings.TrimSpace(c.Query("num")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(protocol.CodeInvalidBlock)})
		return
	}
	action, err := protocol.ParseAction(c.Query("action"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}
	msg := protocol.Block(num, action)
	if raw := strings.TrimSpace(c.Query("duration")); raw != "" && action != protocol.ActionStop {
		d, err := protocol.ParseDurationMillis(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
			return
		}
		msg.Duration = d
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	var reply string
	if err := h.svc.Do(ctx, func(ctl *Controller) {
		reply, _ = ctl.HandleMessage(msg)
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	h.writeReply(c, reply)
}

func (h *httpIngress) stop(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.svc.EmergencyStop(ctx, StopReasonIngress); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "reply": protocol.AckLine(protocol.All(protocol.ActionStop))})
}

func (h *httpIngress) command(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, protocol.MaxLineLen+1))
	if err != nil || len(body) > protocol.MaxLineLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command"})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	reply, ok, err := h.svc.Submit(ctx, strings.TrimSpace(string(body)))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized command"})
		return
	}
	h.writeReply(c, reply)
}

// writeReply maps an interpreter reply onto an HTTP status.
func (h *httpIngress) writeReply(c *gin.Context, reply string) {
	msg, err := protocol.Parse(reply)
	if err != nil || msg.Kind != protocol.KindErr {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "reply": reply})
		return
	}
	status := http.StatusBadRequest
	body := gin.H{"error": string(msg.Code), "reply": reply}
	if msg.Code == protocol.CodeCapacityExceeded {
		status = http.StatusConflict
		body["active"] = msg.Block
	}
	c.JSON(status, body)
}

// ws treats every text frame as one command line and answers in one frame.
func (h *httpIngress) ws(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(protocol.MaxLineLen)
	remote := conn.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("master.httpIngress.ws attached")

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Str("remote", remote).AnErr("err", err).Msg("master.httpIngress.ws detached")
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		reply, ok, err := h.svc.Submit(ctx, strings.TrimSpace(string(data)))
		cancel()
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
				time.Now().Add(time.Second))
			return
		}
		if !ok {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// allowOrigins accepts requests without an Origin header (non-browser clients) and
// browser requests from one of origins.
func allowOrigins(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(strings.ToLower(origin), "/")]
		return ok
	}
}
