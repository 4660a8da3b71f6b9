package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loquihq/loqui/pkg/realtime"
	"github.com/loquihq/loqui/pkg/realtime/openai"
)

func TestMintCredential(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions" {
			t.Errorf("path = %q, want /sessions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want bearer api key", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if body["voice"] != "sage" {
			t.Errorf("voice = %v, want sage", body["voice"])
		}
		if body["instructions"] != "be kind" {
			t.Errorf("instructions = %v, want 'be kind'", body["instructions"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"client_secret":{"value":"eph-123","expires_at":1700000000}}`)
	}))
	defer srv.Close()

	c := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	cred, err := c.MintCredential(context.Background(), realtime.SessionParams{
		Voice:        "sage",
		Instructions: "be kind",
	})
	if err != nil {
		t.Fatalf("MintCredential() error: %v", err)
	}
	if cred.Token != "eph-123" {
		t.Errorf("Token = %q, want eph-123", cred.Token)
	}
	if cred.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be set from expires_at")
	}
}

func TestMintCredential_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	c := openai.New("bad", openai.WithBaseURL(srv.URL))
	_, err := c.MintCredential(context.Background(), realtime.SessionParams{})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error = %v, want the API message included", err)
	}
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	const answer = "v=0\r\ns=remote answer\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer eph-123" {
			t.Errorf("Authorization = %q, want the ephemeral token", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/sdp" {
			t.Errorf("Content-Type = %q, want application/sdp", got)
		}
		offer, _ := io.ReadAll(r.Body)
		if !strings.HasPrefix(string(offer), "v=0") {
			t.Errorf("offer body = %q, want raw SDP", offer)
		}
		io.WriteString(w, answer)
	}))
	defer srv.Close()

	c := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	got, err := c.Negotiate(context.Background(), realtime.Credential{Token: "eph-123"}, "v=0\r\ns=offer\r\n")
	if err != nil {
		t.Fatalf("Negotiate() error: %v", err)
	}
	if got != answer {
		t.Errorf("answer = %q, want %q", got, answer)
	}
}

func TestNegotiate_EmptyCredential(t *testing.T) {
	t.Parallel()

	c := openai.New("sk-test")
	if _, err := c.Negotiate(context.Background(), realtime.Credential{}, "v=0"); err == nil {
		t.Fatal("expected error for empty credential")
	}
}
