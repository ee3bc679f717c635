package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDeliver(t *testing.T) {
	var received SendRequest
	var path, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"123","wa_id":"123"}],"messages":[{"id":"wamid.out"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		AccessToken:   "test_token",
		PhoneNumberID: "PNID",
		APIVersion:    "v18.0",
		BaseURL:       server.URL + "/",
	})

	if err := client.Deliver(context.Background(), "123", "Hello from bot"); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if path != "/v18.0/PNID/messages" {
		t.Errorf("unexpected path %s", path)
	}
	if auth != "Bearer test_token" {
		t.Errorf("unexpected auth header %s", auth)
	}
	if received.MessagingProduct != "whatsapp" || received.RecipientType != "individual" || received.Type != "text" {
		t.Errorf("unexpected envelope %#v", received)
	}
	if received.To != "123" || received.Text.Body != "Hello from bot" || received.Text.PreviewURL {
		t.Errorf("unexpected text payload %#v", received)
	}
}

func TestClientSendTextReturnsMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`))
	}))
	defer server.Close()

	resp, err := NewClient(ClientConfig{BaseURL: server.URL, PhoneNumberID: "PNID"}).SendText(context.Background(), "123", "hi")
	if err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "wamid.out" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestClientDeliverErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"graph error body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
		}},
		{"non-json failure", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
		}},
		{"slow upstream", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(ClientConfig{BaseURL: server.URL, PhoneNumberID: "PNID", Timeout: 50 * time.Millisecond})
			err := client.Deliver(context.Background(), "123", "hi")
			if !errors.Is(err, ErrDelivery) {
				t.Fatalf("expected ErrDelivery, got %v", err)
			}
		})
	}
}
