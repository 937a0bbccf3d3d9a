package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantumflow/aichat/pkg/chat"
	"github.com/quantumflow/aichat/pkg/client"
	"github.com/quantumflow/aichat/pkg/gateway"
	"github.com/quantumflow/aichat/pkg/relay"
	"github.com/quantumflow/aichat/pkg/store"
)

type stubGateway struct {
	mu         sync.Mutex
	completeFn func(history []chat.Message, opts gateway.CompleteOptions) (chat.Message, error)
	generateFn func(prompt, size string) (chat.Message, error)
}

func (s *stubGateway) Complete(_ context.Context, history []chat.Message, opts gateway.CompleteOptions) (chat.Message, error) {
	s.mu.Lock()
	fn := s.completeFn
	s.mu.Unlock()
	if fn == nil {
		return chat.NewAssistantMessage("ok", "stub-model", nil), nil
	}
	return fn(history, opts)
}

func (s *stubGateway) GenerateImage(_ context.Context, prompt, size string) (chat.Message, error) {
	s.mu.Lock()
	fn := s.generateFn
	s.mu.Unlock()
	if fn == nil {
		return chat.NewImageMessage(prompt, "data:image/png;base64,xxxx", size), nil
	}
	return fn(prompt, size)
}

func newRelayServer(t *testing.T, gw gateway.Client) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New()
	rl := relay.New(context.Background(), st, gw, relay.Options{})
	srv := httptest.NewServer(rl.Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func dialClient(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitJoined(t *testing.T, c *client.Client) {
	t.Helper()
	select {
	case <-c.Joined():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for conversation-joined")
	}
}

func TestJoinMirrorsHistory(t *testing.T) {
	srv, st := newRelayServer(t, &stubGateway{})
	conv := st.GetOrCreate("conv-1", "alice")
	require.NoError(t, st.Append(conv.ID, chat.NewUserMessage("earlier")))

	c := dialClient(t, srv)
	require.NoError(t, c.Join("conv-1", "alice"))
	waitJoined(t, c)

	require.Equal(t, "conv-1", c.ConversationID())
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "earlier", msgs[0].Content)
}

func TestJoinWithoutIDAdoptsServerAssigned(t *testing.T) {
	srv, _ := newRelayServer(t, &stubGateway{})

	c := dialClient(t, srv)
	require.NoError(t, c.Join("", "alice"))
	waitJoined(t, c)

	require.NotEmpty(t, c.ConversationID())
	require.Empty(t, c.Messages())
}

func TestSendMessageMirrorsExchange(t *testing.T) {
	gw := &stubGateway{completeFn: func(history []chat.Message, _ gateway.CompleteOptions) (chat.Message, error) {
		return chat.NewAssistantMessage("hi there", "stub-model", nil), nil
	}}
	srv, _ := newRelayServer(t, gw)

	c := dialClient(t, srv)
	require.NoError(t, c.Join("", "alice"))
	waitJoined(t, c)
	require.NoError(t, c.SendMessage("hello"))

	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2 && !c.IsTyping()
	}, 2*time.Second, 10*time.Millisecond)

	msgs := c.Messages()
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, chat.RoleAssistant, msgs[1].Role)
	require.Equal(t, "hi there", msgs[1].Content)
	_, hasErr := c.LastError()
	require.False(t, hasErr)
}

func TestSendMessageBeforeJoinFails(t *testing.T) {
	srv, _ := newRelayServer(t, &stubGateway{})
	c := dialClient(t, srv)

	require.Error(t, c.SendMessage("hello"))
}

func TestGenerateImageMirrorsResult(t *testing.T) {
	srv, _ := newRelayServer(t, &stubGateway{})

	c := dialClient(t, srv)
	require.NoError(t, c.Join("", "alice"))
	waitJoined(t, c)
	require.NoError(t, c.GenerateImage("a cat", ""))

	require.Eventually(t, func() bool {
		_, ok := c.LastImage()
		return ok && !c.IsGeneratingImage() && len(c.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	img, ok := c.LastImage()
	require.True(t, ok)
	require.True(t, img.IsImage())
	require.Equal(t, "a cat", img.Prompt)
	require.Contains(t, img.Image, "data:image/png;base64,")
}

func TestGatewayFailureSetsLastError(t *testing.T) {
	gw := &stubGateway{completeFn: func([]chat.Message, gateway.CompleteOptions) (chat.Message, error) {
		return chat.Message{}, gateway.ErrEmptyResponse
	}}
	srv, _ := newRelayServer(t, gw)

	c := dialClient(t, srv)
	require.NoError(t, c.Join("", "alice"))
	waitJoined(t, c)
	require.NoError(t, c.SendMessage("hello"))

	require.Eventually(t, func() bool {
		_, ok := c.LastError()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	errPayload, ok := c.LastError()
	require.True(t, ok)
	require.Equal(t, "Failed to generate AI response", errPayload.Message)
	require.False(t, c.IsTyping())
}

func TestSendMessageClearsStaleError(t *testing.T) {
	gw := &stubGateway{completeFn: func([]chat.Message, gateway.CompleteOptions) (chat.Message, error) {
		return chat.Message{}, gateway.ErrEmptyResponse
	}}
	srv, _ := newRelayServer(t, gw)

	c := dialClient(t, srv)
	require.NoError(t, c.Join("", "alice"))
	waitJoined(t, c)
	require.NoError(t, c.SendMessage("first"))
	require.Eventually(t, func() bool {
		_, ok := c.LastError()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	gw.mu.Lock()
	gw.completeFn = nil
	gw.mu.Unlock()
	require.NoError(t, c.SendMessage("second"))

	require.Eventually(t, func() bool {
		_, ok := c.LastError()
		msgs := c.Messages()
		return !ok && len(msgs) > 0 && msgs[len(msgs)-1].Role == chat.RoleAssistant
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRequestConversationsPopulatesSummaries(t *testing.T) {
	srv, st := newRelayServer(t, &stubGateway{})
	st.GetOrCreate("conv-1", "alice")
	st.GetOrCreate("conv-2", "bob")

	c := dialClient(t, srv)
	require.NoError(t, c.RequestConversations())

	require.Eventually(t, func() bool {
		return len(c.Summaries()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseStopsMirrorLoop(t *testing.T) {
	srv, _ := newRelayServer(t, &stubGateway{})
	c := dialClient(t, srv)

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("mirror loop did not exit after close")
	}
}
