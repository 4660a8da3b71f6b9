package rtc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/loquihq/loqui/pkg/audio/rtc"
)

// echoServer accepts one WebSocket connection, immediately pushes greeting
// messages, then echoes everything it receives.
func echoServer(t *testing.T, greetings ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		for _, g := range greetings {
			if err := conn.Write(ctx, websocket.MessageText, []byte(g)); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSControlChannel_DeliversEarlyMessages(t *testing.T) {
	t.Parallel()

	srv := echoServer(t, "early-1", "early-2")
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := rtc.DialControl(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("DialControl() error: %v", err)
	}
	defer ch.Close()

	got := make(chan string, 8)
	// Give the read loop a moment to buffer the greetings before the
	// handler registers; they must still arrive, in order.
	time.Sleep(100 * time.Millisecond)
	ch.OnMessage(func(data []byte) { got <- string(data) })

	for _, want := range []string{"early-1", "early-2"} {
		select {
		case msg := <-got:
			if msg != want {
				t.Fatalf("message = %q, want %q", msg, want)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for buffered message")
		}
	}
}

func TestWSControlChannel_SendAndEcho(t *testing.T) {
	t.Parallel()

	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := rtc.DialControl(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("DialControl() error: %v", err)
	}
	defer ch.Close()

	got := make(chan string, 1)
	ch.OnMessage(func(data []byte) { got <- string(data) })

	if err := ch.Send(ctx, []byte("ping")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case msg := <-got:
		if msg != "ping" {
			t.Fatalf("echo = %q, want %q", msg, "ping")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for echo")
	}
}

func TestWSControlChannel_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := rtc.DialControl(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("DialControl() error: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}
