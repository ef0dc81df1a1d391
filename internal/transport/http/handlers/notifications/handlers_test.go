package notificationshandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"hrassist/internal/domain/credential"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/transport/http/middleware"
)

type fixture struct {
	server     *httptest.Server
	store      *notifications.MemoryStore
	dispatcher *notifications.Dispatcher
	sessions   *credential.Sessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := notifications.NewMemoryStore()
	dispatcher := notifications.New(store, notifications.Options{Hub: notifications.NewHub()})
	sessions := credential.NewSessions("test-secret", time.Hour)

	router := chi.NewRouter()
	router.Use(middleware.Auth(sessions))
	NewHandler(dispatcher, nil).RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &fixture{server: server, store: store, dispatcher: dispatcher, sessions: sessions}
}

func (f *fixture) token(t *testing.T, id string, role identity.Role) string {
	t.Helper()
	token, _, err := f.sessions.Mint(identity.Identity{ID: id, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *fixture) notify(t *testing.T, scope, title string) notifications.Notification {
	t.Helper()
	n := f.store.Append(notifications.Notification{RecipientScope: scope, Kind: notifications.KindLeaveApproved, Title: title})
	f.dispatcher.Deliver(t.Context(), n)
	return n
}

func (f *fixture) get(t *testing.T, path, token string) (int, []notifications.Notification) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var env struct {
		Data []notifications.Notification `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env.Data
}

func TestFeedAccess(t *testing.T) {
	f := newFixture(t)
	f.notify(t, "1001", "first")
	f.notify(t, "1002", "other")
	f.notify(t, notifications.BroadcastScope, "new request")
	f.notify(t, "1001", "second")

	staff := f.token(t, "1001", identity.RoleStaff)
	admin := f.token(t, "hr", identity.RoleAdmin)

	tests := []struct {
		name   string
		path   string
		token  string
		want   int
		titles []string
	}{
		{name: "own feed newest first", path: "/notifications/1001", token: staff, want: http.StatusOK, titles: []string{"second", "first"}},
		{name: "cursor", path: "/notifications/1001?after=1", token: staff, want: http.StatusOK, titles: []string{"second"}},
		{name: "limit", path: "/notifications/1001?limit=1", token: staff, want: http.StatusOK, titles: []string{"second"}},
		{name: "page back", path: "/notifications/1001?before=4&limit=1", token: staff, want: http.StatusOK, titles: []string{"first"}},
		{name: "bad before", path: "/notifications/1001?before=x", token: staff, want: http.StatusBadRequest},
		{name: "someone else", path: "/notifications/1002", token: staff, want: http.StatusForbidden},
		{name: "staff asking for admin feed", path: "/notifications/1001?role=ADMIN", token: staff, want: http.StatusForbidden},
		{name: "admin feed", path: "/notifications/hr?role=hr", token: admin, want: http.StatusOK, titles: []string{"new request"}},
		{name: "admin reads employee feed", path: "/notifications/1002", token: admin, want: http.StatusOK, titles: []string{"other"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			status, items := f.get(t, tc.path, tc.token)
			if status != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, status)
			}
			if tc.want != http.StatusOK {
				return
			}
			var titles []string
			for _, n := range items {
				titles = append(titles, n.Title)
			}
			if strings.Join(titles, ",") != strings.Join(tc.titles, ",") {
				t.Fatalf("expected %v, got %v", tc.titles, titles)
			}
		})
	}
}

func dial(t *testing.T, f *fixture, query, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/notifications/stream" + query
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) notifications.Notification {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n notifications.Notification
	if err := conn.ReadJSON(&n); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	return n
}

func TestStreamReplaysThenPushes(t *testing.T) {
	f := newFixture(t)
	backlog := f.notify(t, "1001", "backlog")

	conn := dial(t, f, "", f.token(t, "1001", identity.RoleStaff))
	if got := readNotification(t, conn); got.ID != backlog.ID {
		t.Fatalf("expected backlog replay %d, got %d", backlog.ID, got.ID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.dispatcher.Hub().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.notify(t, "1002", "not mine")
	live := f.notify(t, "1001", "live")
	if got := readNotification(t, conn); got.ID != live.ID || got.Title != "live" {
		t.Fatalf("expected live notification %d, got %+v", live.ID, got)
	}
}

func TestStreamResumesFromCursor(t *testing.T) {
	f := newFixture(t)
	f.notify(t, notifications.BroadcastScope, "seen")
	unseen := f.notify(t, notifications.BroadcastScope, "unseen")

	conn := dial(t, f, "?after=1", f.token(t, "hr", identity.RoleAdmin))
	if got := readNotification(t, conn); got.ID != unseen.ID {
		t.Fatalf("expected to resume at %d, got %d", unseen.ID, got.ID)
	}
}

func TestStreamRequiresSession(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/notifications/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}
