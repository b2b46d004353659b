package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestServer(t *testing.T, tokenCalls *int32, sent *map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/app_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "msg": "ok", "app_access_token": "t-123", "expire": 7200,
		})
	})
	mux.HandleFunc("/open-apis/im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t-123" {
			json.NewEncoder(w).Encode(map[string]interface{}{"code": 99991663, "msg": "invalid token"})
			return
		}
		if r.URL.Query().Get("receive_id_type") != "chat_id" {
			json.NewEncoder(w).Encode(map[string]interface{}{"code": 230001, "msg": "bad id type"})
			return
		}
		body := map[string]interface{}{}
		json.NewDecoder(r.Body).Decode(&body)
		*sent = body
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "msg": "ok", "data": map[string]string{"message_id": "om_1"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSendCard(t *testing.T) {
	var calls int32
	var sent map[string]interface{}
	srv := newTestServer(t, &calls, &sent)
	c := NewClient("app", "secret", srv.URL+"/open-apis/")

	card := NewQuoteAcceptedCard("RFQ-2026-0001", "client-001", "SO-2026-0001", "1200")
	for i := 0; i < 2; i++ {
		if err := c.SendCard(context.Background(), "oc_chat", card); err != nil {
			t.Fatalf("SendCard: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected token to be cached, got %d token calls", calls)
	}
	if sent["receive_id"] != "oc_chat" || sent["msg_type"] != "interactive" {
		t.Fatalf("unexpected message body: %v", sent)
	}

	var decoded InteractiveCard
	if err := json.Unmarshal([]byte(sent["content"].(string)), &decoded); err != nil {
		t.Fatalf("card content is not json: %v", err)
	}
	if decoded.Header.Template != TemplateGreen || len(decoded.Elements) != 3 {
		t.Fatalf("unexpected card: %+v", decoded)
	}
	if got := decoded.Elements[2].Fields[0].Text.Content; got != "**客户**\nclient-001" {
		t.Fatalf("fields should be sorted by key, first was %q", got)
	}
}

func TestSendCard_APIError(t *testing.T) {
	var calls int32
	var sent map[string]interface{}
	srv := newTestServer(t, &calls, &sent)
	c := NewClient("app", "secret", srv.URL+"/open-apis")

	err := c.SendUserCard(context.Background(), "ou_user", NewAlertCard("t", TemplateRed, "m", nil))
	if err == nil {
		t.Fatal("expected error for rejected receive_id_type")
	}
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	if c := NewClient("a", "b", ""); c.baseURL != DefaultBaseURL {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
}
