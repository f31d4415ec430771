package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Leganyst/counseling-booking/internal/messaging"
)

// Лимитер за минуту простоя полностью восстанавливается, так что
// запись старше gateIdle можно удалить без потери состояния.
const gateIdle = 2 * time.Minute

// userGate - лимитер и мьютекс одного пользователя: сообщения пользователя
// обрабатываются строго по одному.
type userGate struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	// под webhookHandler.mu
	inflight int
	lastSeen time.Time
}

type webhookHandler struct {
	handler messaging.Handler
	limit   rate.Limit
	burst   int
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	gates     map[string]*userGate
	lastSweep time.Time
}

func newWebhookHandler(h messaging.Handler, perMinute int, log *zap.Logger) *webhookHandler {
	wh := &webhookHandler{
		handler: h,
		limit:   rate.Inf,
		log:     log,
		now:     time.Now,
		gates:   make(map[string]*userGate),
	}
	if perMinute > 0 {
		wh.limit = rate.Every(time.Minute / time.Duration(perMinute))
		wh.burst = perMinute
	}
	return wh
}

// acquire возвращает шлюз пользователя и помечает его занятым до release.
func (h *webhookHandler) acquire(userID string) *userGate {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if now.Sub(h.lastSweep) >= gateIdle {
		h.evictIdle(now)
		h.lastSweep = now
	}

	g, ok := h.gates[userID]
	if !ok {
		g = &userGate{limiter: rate.NewLimiter(h.limit, h.burst)}
		h.gates[userID] = g
	}
	g.inflight++
	g.lastSeen = now
	return g
}

func (h *webhookHandler) release(g *userGate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g.inflight--
	g.lastSeen = h.now()
}

// evictIdle удаляет свободные шлюзы, простаивающие дольше gateIdle. Вызывается под h.mu.
func (h *webhookHandler) evictIdle(now time.Time) {
	for id, g := range h.gates {
		if g.inflight == 0 && now.Sub(g.lastSeen) > gateIdle {
			delete(h.gates, id)
		}
	}
}

// POST /messages {"user_id": "...", "text": "...", "action_id": "..."}
func (h *webhookHandler) Receive(c *gin.Context) {
	var in struct {
		UserID   string `json:"user_id" binding:"required"`
		Text     string `json:"text"`
		ActionID string `json:"action_id"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.Text == "" && in.ActionID == "" {
		badRequest(c, "text or action_id is required")
		return
	}

	g := h.acquire(in.UserID)
	defer h.release(g)
	if !g.limiter.Allow() {
		h.log.Warn("inbound rate limit exceeded", zap.String("user_id", in.UserID))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	err := h.handler.Dispatch(c.Request.Context(), messaging.Inbound{
		UserID:   in.UserID,
		Text:     in.Text,
		ActionID: in.ActionID,
	})
	if err != nil {
		// пользователь уже получил ответ из диалога; ошибку видим только в логах
		h.log.Error("dispatch inbound message", zap.String("user_id", in.UserID), zap.Error(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.Status(http.StatusServiceUnavailable)
			return
		}
	}
	c.Status(http.StatusAccepted)
}
