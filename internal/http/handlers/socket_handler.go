// README: Websocket admission for the real-time channel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rxflow/internal/http/middleware"
	"rxflow/internal/modules/realtime"
)

type SocketHandler struct {
	registry *realtime.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewSocketHandler(registry *realtime.Registry, logger *zap.Logger) *SocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connect upgrades an authenticated request and blocks until the socket closes.
func (h *SocketHandler) Connect(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	uid := caller(c)
	h.logger.Info("socket connected", zap.String("user_id", uid.String()))
	realtime.NewConn(ws, uid, middleware.CallerRole(c)).Serve(h.registry)
	h.logger.Info("socket disconnected", zap.String("user_id", uid.String()))
}
