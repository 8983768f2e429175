package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/session"
)

// StatusSource reports the current session for the greeting message.
type StatusSource interface {
	Status() session.Status
}

// Server upgrades HTTP connections to notification WebSockets.
type Server struct {
	hub          *Hub
	status       StatusSource
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. allowedOrigin "*" accepts any origin.
func NewServer(hub *Hub, status StatusSource, allowedOrigin string, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		status:       status,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleWS is HTTP handler for /ws endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	client := NewClient(id, conn, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		s.logger.Info("client disconnected", zap.String("client_id", id))
	})

	greeting := StatusMessage(TypeConnected, s.status.Status())
	greeting.ClientID = id
	if data, err := json.Marshal(greeting); err == nil {
		client.Send(data)
	}

	s.hub.Add(client)
	s.logger.Info("client connected", zap.String("client_id", id), zap.String("remote_addr", r.RemoteAddr))

	go client.Start()
}
