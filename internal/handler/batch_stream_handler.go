package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
)

const defaultStreamPingInterval = 30 * time.Second

// BatchStreamHandler pushes batch status events to the owner over a websocket.
type BatchStreamHandler struct {
	events       service.BatchEventService
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewBatchStreamHandler constructs the handler. A non-positive pingInterval
// uses the default.
func NewBatchStreamHandler(events service.BatchEventService, pingInterval time.Duration, logger zerolog.Logger) *BatchStreamHandler {
	if pingInterval <= 0 {
		pingInterval = defaultStreamPingInterval
	}
	return &BatchStreamHandler{
		events:       events,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "batch_stream_handler").Logger(),
	}
}

// Register binds the websocket endpoint. It must be registered before any
// /:id route on the same group.
func (h *BatchStreamHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *BatchStreamHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	events, cleanup := h.events.Subscribe(userID)
	defer cleanup()

	logger := h.logger.With().Str("user_id", userID).Logger()
	logger.Info().Msg("batch stream connected")
	defer logger.Info().Msg("batch stream disconnected")

	// Client messages are ignored; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("failed to write batch event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Msg("batch stream ping failed")
				return
			}
		case <-closed:
			return
		}
	}
}
