package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/notify"
)

const (
	wsAuthTimeout = 10 * time.Second
	wsWriteWait   = 5 * time.Second
	wsPingEvery   = 30 * time.Second
)

// Subscriber is the slice of the redis client the notification stream needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// NotifyHandler streams a user's notification channel (upload progress, sheet exports)
// over a websocket. 第一帧必须是 {"type":"auth","token":...}。
type NotifyHandler struct {
	sub       Subscriber
	validator middleware.TokenValidator
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewNotifyHandler(sub Subscriber, validator middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *NotifyHandler {
	return &NotifyHandler{
		sub:       sub,
		validator: validator,
		logger:    logger,
		upgrader:  websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

// originChecker 未配置白名单时只允许同源。
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Stream upgrades the request, authenticates the first frame and forwards
// messages published on the user's channel until either side goes away.
func (h *NotifyHandler) Stream(c *gin.Context) {
	if h.sub == nil {
		Error(c, http.StatusServiceUnavailable, "notifications are unavailable")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))
	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", "error", err)
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	channel := notify.Channel(userID)
	pubsub := h.sub.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, "subscribe failed")
		log.Error("subscribe notification channel", "channel", channel, "error", err)
		return
	}
	if err := writeJSON(conn, gin.H{"type": notify.TypeSubscribed}); err != nil {
		return
	}

	// 认证之后客户端发来的内容一律丢弃，读循环只用于发现断开。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = forward(ctx, conn, pubsub.Channel())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("notification stream closed", "error", err)
}

func (h *NotifyHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("read auth message: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		closeWith(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, errors.New("first message is not an auth message")
	}
	claims, err := h.validator.ValidateToken(msg.Token)
	if err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return claims.UserID, nil
}

// forward 是唯一的数据帧写入方。
func forward(ctx context.Context, conn *websocket.Conn, messages <-chan *redis.Message) error {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("subscription closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
