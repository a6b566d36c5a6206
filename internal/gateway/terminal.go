// Package gateway is the thin websocket drain for the Terminal Bridge
// Fan-out (internal/bridge): a gin handler that upgrades a connection and
// pipes one session's byte stream to/from a single bridge subscriber.
// Routing, auth, and the JSON-over-websocket control-plane protocols a
// full dashboard would need are out of this kernel's scope; this handler
// only proves the bridge's output actually reaches a transport.
package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/bridge"
	"github.com/agentforge/agentforge/internal/platform/logger"
)

var terminalUpgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin allows same-origin and local-dashboard connections; a
// missing Origin header (non-browser client) is allowed through.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "https://localhost")
}

// NewTerminalHandler returns a gin handler for GET /ws/terminal/:session
// that attaches the caller to that session's Terminal Bridge as one more
// subscriber, relaying PTY output as binary websocket frames and relaying
// any bytes the client sends back as keystrokes.
func NewTerminalHandler(bridges *bridge.Manager, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	log = log.WithFields(zap.String("component", "terminal-ws"))

	return func(c *gin.Context) {
		sessionName := c.Param("session")
		if sessionName == "" {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		conn, err := terminalUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err), zap.String("session", sessionName))
			return
		}
		defer conn.Close()

		if cols, rows, ok := parseDims(c.Query("cols"), c.Query("rows")); ok {
			_ = bridges.Resize(sessionName, bridge.Resize{Cols: cols, Rows: rows})
		}

		sub := bridges.Subscribe(sessionName)
		defer bridges.Unsubscribe(sessionName, sub)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for data := range sub.Output {
				if err := conn.WriteMessage(gorillaws.BinaryMessage, data); err != nil {
					return
				}
			}
		}()

		ctx := c.Request.Context()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if msgType != gorillaws.BinaryMessage && msgType != gorillaws.TextMessage {
				continue
			}
			if err := bridges.SendInput(ctx, sessionName, data); err != nil {
				log.Warn("terminal input delivery failed", zap.Error(err), zap.String("session", sessionName))
			}
		}
		<-done
	}
}

func parseDims(colsStr, rowsStr string) (cols, rows int, ok bool) {
	if colsStr == "" || rowsStr == "" {
		return 0, 0, false
	}
	c, err1 := strconv.Atoi(colsStr)
	r, err2 := strconv.Atoi(rowsStr)
	if err1 != nil || err2 != nil || c <= 0 || r <= 0 {
		return 0, 0, false
	}
	return c, r, true
}
