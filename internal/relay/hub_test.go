package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/authsock/authsock/pkg/sock"
)

func startRelay(t *testing.T) (string, *Hub) {
	t.Helper()
	hub := NewHub(16)
	u := &sock.Upgrader{
		Upgrader: &websocket.Upgrader{},
		Authorizer: func(payload json.RawMessage) (any, error) {
			var subject string
			if err := json.Unmarshal(payload, &subject); err != nil {
				return nil, err
			}
			return subject, nil
		},
		OnSession: hub.Attach,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := u.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-sess.Done()
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dialRelay(t *testing.T, url, subject string) *sock.Client {
	t.Helper()
	client, err := sock.NewClient(url, sock.WithStaticCredentials(subject))
	require.NoError(t, err)
	return client
}

func awaitReady(t *testing.T, client *sock.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.AwaitReady(ctx))
}

func TestHubBroadcastsToOtherSessions(t *testing.T) {
	url, hub := startRelay(t)

	alice := dialRelay(t, url, "alice")
	bob := dialRelay(t, url, "bob")

	bobInbox := make(chan string, 4)
	bob.On("chat", func(ev *sock.Event) {
		var text string
		require.NoError(t, ev.Envelope.DecodeData(&text))
		bobInbox <- text
	})
	aliceInbox := make(chan string, 4)
	alice.On("chat", func(ev *sock.Event) {
		var text string
		require.NoError(t, ev.Envelope.DecodeData(&text))
		aliceInbox <- text
	})

	alice.Open()
	defer alice.Close()
	bob.Open()
	defer bob.Close()
	awaitReady(t, alice)
	awaitReady(t, bob)

	require.Eventually(t, func() bool { return hub.Count() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Send("chat", "hello bob", true))

	select {
	case got := <-bobInbox:
		require.Equal(t, "hello bob", got)
	case <-time.After(5 * time.Second):
		t.Fatal("bob never received the broadcast")
	}

	// The origin session is excluded from its own broadcast.
	select {
	case got := <-aliceInbox:
		t.Fatalf("alice received her own message: %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHubReplaysHistoryToNewcomer(t *testing.T) {
	url, hub := startRelay(t)

	alice := dialRelay(t, url, "alice")
	alice.Open()
	defer alice.Close()
	awaitReady(t, alice)

	require.NoError(t, alice.Send("chat", "first", true))
	require.NoError(t, alice.Send("chat", "second", true))

	require.Eventually(t, func() bool { return hub.recent.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	carol := dialRelay(t, url, "carol")
	carolInbox := make(chan string, 4)
	carol.On("chat", func(ev *sock.Event) {
		var text string
		require.NoError(t, ev.Envelope.DecodeData(&text))
		carolInbox <- text
	})
	carol.Open()
	defer carol.Close()
	awaitReady(t, carol)

	var got []string
	for len(got) < 2 {
		select {
		case text := <-carolInbox:
			got = append(got, text)
		case <-time.After(5 * time.Second):
			t.Fatalf("history replay incomplete, got %v", got)
		}
	}
	require.Equal(t, []string{"first", "second"}, got)
}

func TestHubDetachOnClose(t *testing.T) {
	url, hub := startRelay(t)

	alice := dialRelay(t, url, "alice")
	alice.Open()
	awaitReady(t, alice)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	alice.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
