package notificationshandler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/transport/http/api"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/shared"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Subscribers send nothing but control frames.
	maxInboundMessage = 512
)

type Handler struct {
	Dispatcher *notifications.Dispatcher
	upgrader   websocket.Upgrader
}

func NewHandler(dispatcher *notifications.Dispatcher, allowedOrigins []string) *Handler {
	h := &Handler{Dispatcher: dispatcher}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermNotificationsRead)).Get("/stream", h.handleStream)
		r.With(middleware.RequirePermission(auth.PermNotificationsRead)).Get("/{employeeID}", h.handleList)
	})
}

// handleList serves one page of a feed, newest first. role=ADMIN selects the broadcast feed.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	scope, ok := feedScope(user, employeeID, r.URL.Query().Get("role"))
	if !ok {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to read this feed", requestID)
		return
	}
	v := shared.NewValidator()
	page := v.Page(r.URL.Query(), notifications.DefaultFeedLimit, notifications.MaxFeedLimit)
	q := notifications.FeedQuery{
		AfterID:  v.Cursor(r.URL.Query(), "after"),
		BeforeID: v.Cursor(r.URL.Query(), "before"),
		Limit:    page.Limit,
	}
	if v.Reject(w, requestID) {
		return
	}

	var (
		items []notifications.Notification
		err   error
	)
	if scope == notifications.BroadcastScope {
		items, err = h.Dispatcher.AdminFeed(r.Context(), q)
	} else {
		items, err = h.Dispatcher.Feed(r.Context(), scope, q)
	}
	if err != nil {
		zap.L().Error("notification list failed", zap.String("scope", scope), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", requestID)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	api.Success(w, items, requestID)
}

// handleStream upgrades to a websocket and pushes the caller's feed as it is written.
// ?after= resumes from a cursor; ?scope=self lets an ADMIN follow their own feed instead of the broadcast.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	hub := h.Dispatcher.Hub()
	if hub == nil {
		api.Fail(w, http.StatusServiceUnavailable, "stream_unavailable", "notification stream is disabled", middleware.GetRequestID(r.Context()))
		return
	}
	scope := user.ID
	if user.IsAdmin() && r.URL.Query().Get("scope") != "self" {
		scope = notifications.BroadcastScope
	}

	v := shared.NewValidator()
	after := v.Cursor(r.URL.Query(), "after")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("notification stream upgrade failed", zap.String("actor", user.ID), zap.Error(err))
		return
	}
	sub := hub.Subscribe(scope, after)
	s := &stream{conn: conn, sub: sub, fetch: h.fetcher(scope)}
	defer s.close()

	zap.L().Info("notification stream opened", zap.String("actor", user.ID), zap.String("scope", scope))
	s.run(r.Context())
}

func (h *Handler) fetcher(scope string) func(ctx context.Context, after int64) ([]notifications.Notification, error) {
	return func(ctx context.Context, after int64) ([]notifications.Notification, error) {
		q := notifications.FeedQuery{AfterID: after, Limit: notifications.MaxFeedLimit}
		if scope == notifications.BroadcastScope {
			return h.Dispatcher.AdminFeed(ctx, q)
		}
		return h.Dispatcher.Feed(ctx, scope, q)
	}
}

type stream struct {
	conn  *websocket.Conn
	sub   *notifications.Subscription
	fetch func(ctx context.Context, after int64) ([]notifications.Notification, error)
}

func (s *stream) run(ctx context.Context) {
	done := make(chan struct{})
	go s.readPump(done)

	if err := s.resync(ctx); err != nil {
		return
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case n := <-s.sub.C():
			if s.sub.TakeLagged() {
				if err := s.resync(ctx); err != nil {
					return
				}
				continue
			}
			if n.ID <= s.sub.Cursor() {
				continue
			}
			if err := s.write(n); err != nil {
				return
			}
			s.sub.Advance(n.ID)
		case <-ticker.C:
			if s.sub.TakeLagged() {
				if err := s.resync(ctx); err != nil {
					return
				}
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// resync replays stored notifications above the cursor, oldest first. A subscriber that
// missed more than one page skips the older part; polling the feed recovers it.
func (s *stream) resync(ctx context.Context) error {
	items, err := s.fetch(ctx, s.sub.Cursor())
	if err != nil {
		zap.L().Warn("notification stream resync failed", zap.String("scope", s.sub.Scope()), zap.Error(err))
		return err
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ID <= s.sub.Cursor() {
			continue
		}
		if err := s.write(items[i]); err != nil {
			return err
		}
		s.sub.Advance(items[i].ID)
	}
	return nil
}

func (s *stream) write(n notifications.Notification) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(n)
}

func (s *stream) readPump(done chan<- struct{}) {
	defer close(done)
	s.conn.SetReadLimit(maxInboundMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("notification stream read failed", zap.String("scope", s.sub.Scope()), zap.Error(err))
			}
			return
		}
	}
}

func (s *stream) close() {
	s.sub.Close()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = s.conn.Close()
}

func feedScope(user identity.Caller, employeeID, role string) (string, bool) {
	if parsed, err := identity.ParseRole(role); err == nil && parsed == identity.RoleAdmin {
		return notifications.BroadcastScope, user.IsAdmin()
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" || employeeID == notifications.BroadcastScope {
		return "", false
	}
	return employeeID, user.CanView(employeeID)
}

// originChecker allows same-origin requests and any listed origin. "*" allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		return strings.EqualFold(host, r.Host)
	}
}
