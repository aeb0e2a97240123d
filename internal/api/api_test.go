package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"github.com/ivangillig/whatsapp-scheduler/internal/ws"
	"go.uber.org/zap"
)

type fakeConn struct {
	snapshot status.Snapshot
	logouts  int
}

func (f *fakeConn) Status() status.Snapshot  { return f.snapshot }
func (f *fakeConn) Logout(_ context.Context) { f.logouts++ }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testServer(t *testing.T, conn *fakeConn) (*httptest.Server, *store.DB, string) {
	t.Helper()
	db := testDB(t)
	logger, _ := zap.NewDevelopment()
	auth := NewAuth("test-secret", "admin", "hunter2", logger)
	hub := ws.NewHub(bus.New(), auth, "", logger)
	srv := NewServer(":0", "", db, conn, auth, hub, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	token, err := auth.GenerateToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	return ts, db, token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestLogin(t *testing.T) {
	ts, _, _ := testServer(t, &fakeConn{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", loginRequest{Username: "admin", Password: "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	decode(t, resp, &body)
	if !body.Success || body.Token == "" {
		t.Errorf("login response = %+v, want success with token", body)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, _, _ := testServer(t, &fakeConn{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", loginRequest{Username: "admin", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _, _ := testServer(t, &fakeConn{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/messages", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateAndListMessages(t *testing.T) {
	ts, _, token := testServer(t, &fakeConn{})

	when := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/messages", token, map[string]any{
		"contactJid":  "123@s.whatsapp.net",
		"contactName": "Alice",
		"message":     "happy birthday",
		"scheduledAt": when.Format(time.RFC3339),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}
	var created struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id"`
	}
	decode(t, resp, &created)
	if !created.Success || created.ID == 0 {
		t.Fatalf("create response = %+v", created)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/messages?status=pending", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var msgs []store.ScheduledMessage
	decode(t, resp, &msgs)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Body != "happy birthday" || msgs[0].ScheduledAt != when.UnixMilli() {
		t.Errorf("message = %+v, want the scheduled payload", msgs[0])
	}
}

func TestCreateMessageValidation(t *testing.T) {
	ts, _, token := testServer(t, &fakeConn{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/messages", token, map[string]any{
		"contactJid": "123@s.whatsapp.net",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create status = %d, want 400 for missing fields", resp.StatusCode)
	}
}

func TestDeleteMessage(t *testing.T) {
	ts, db, token := testServer(t, &fakeConn{})

	id, err := db.CreateScheduledMessage(&store.ScheduledMessage{
		ContactJID:  "123@s.whatsapp.net",
		Body:        "bye",
		ScheduledAt: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/messages/"+strconv.FormatInt(id, 10), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}

	msgs, err := db.ListScheduledMessages("")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m.ID == id {
			t.Error("message still present after delete")
		}
	}
}

func TestCreateContactNormalizesPhone(t *testing.T) {
	ts, db, token := testServer(t, &fakeConn{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/contacts", token, map[string]any{
		"phone": "+54 (911) 555-1234",
		"name":  "Alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create contact status = %d, want 200", resp.StatusCode)
	}

	contacts, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}
	if contacts[0].JID != "549115551234@s.whatsapp.net" {
		t.Errorf("jid = %q, want normalized digits with JID suffix", contacts[0].JID)
	}
}

func TestWhatsAppStatusAndLogout(t *testing.T) {
	conn := &fakeConn{snapshot: status.Snapshot{Connected: true, User: &status.Identity{JID: "1@s.whatsapp.net"}}}
	ts, _, token := testServer(t, conn)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/whatsapp/status", token, nil)
	var snap status.Snapshot
	decode(t, resp, &snap)
	if !snap.Connected || snap.User == nil {
		t.Errorf("status = %+v, want connected with user", snap)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/whatsapp/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}
	if conn.logouts != 1 {
		t.Errorf("logouts = %d, want 1", conn.logouts)
	}
}

func TestHealthIsPublic(t *testing.T) {
	ts, _, _ := testServer(t, &fakeConn{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200 without auth", resp.StatusCode)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	auth := NewAuth("secret", "admin", "pw", logger)

	token, err := auth.GenerateToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	username, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if username != "admin" {
		t.Errorf("username = %q, want admin", username)
	}

	other := NewAuth("different-secret", "admin", "pw", logger)
	if _, err := other.VerifyToken(token); err == nil {
		t.Error("token verified under a different secret")
	}
}

func TestPhoneToJID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+5491155551234", "5491155551234@s.whatsapp.net"},
		{"54 911 5555-1234", "5491155551234@s.whatsapp.net"},
		{"(54) 911-5555.1234", "5491155551234@s.whatsapp.net"},
	}
	for _, tt := range tests {
		if jid, _ := phoneToJID(tt.in); jid != tt.want {
			t.Errorf("phoneToJID(%q) = %q, want %q", tt.in, jid, tt.want)
		}
	}
}
