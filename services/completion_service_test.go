package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatdesk/config"
	"chatdesk/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path          string
	Authorization string
	ContentType   string
	Body          map[string]interface{}
}

// completionServer answers every request with status and body and records
// what it received.
func completionServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Authorization = r.Header.Get("Authorization")
		captured.ContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

type transportCase struct {
	name string
	new  func(srv *httptest.Server) Completer
}

var transports = []transportCase{
	{"resty", func(srv *httptest.Server) Completer {
		return NewRestyCompleter(srv.URL+"/chat/completions", "test-key", 0)
	}},
	{"openai", func(srv *httptest.Server) Completer {
		return NewOpenAICompleter(srv.URL, "test-key", 0)
	}},
}

var (
	testHistory = []models.Message{
		{Role: models.RoleAssistant, Content: InitialGreeting},
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, Content: "earlier reply"},
	}
	testNewMessage = models.Message{Role: models.RoleUser, Content: "Hi"}
)

func TestSendChatSuccess(t *testing.T) {
	for _, tr := range transports {
		t.Run(tr.name, func(t *testing.T) {
			srv, got := completionServer(t, http.StatusOK,
				`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"}}]}`)

			reply, err := tr.new(srv).SendChat(context.Background(), testHistory, testNewMessage, "deepseek/deepseek-chat")
			require.NoError(t, err)
			assert.Equal(t, "Hello!", reply)

			assert.Equal(t, "/chat/completions", got.Path)
			assert.Equal(t, "Bearer test-key", got.Authorization)
			assert.Contains(t, got.ContentType, "application/json")
			assert.Equal(t, "deepseek/deepseek-chat", got.Body["model"])

			msgs, ok := got.Body["messages"].([]interface{})
			require.True(t, ok)
			require.Len(t, msgs, 4)
			last := msgs[3].(map[string]interface{})
			assert.Equal(t, "user", last["role"])
			assert.Equal(t, "Hi", last["content"])
			first := msgs[0].(map[string]interface{})
			assert.Equal(t, "assistant", first["role"])
			assert.Equal(t, InitialGreeting, first["content"])
		})
	}
}

func TestSendChatNoResponseFallback(t *testing.T) {
	bodies := map[string]string{
		"no choices":    `{"choices":[]}`,
		"empty content": `{"choices":[{"message":{"role":"assistant","content":""}}]}`,
		"empty object":  `{}`,
	}
	for _, tr := range transports {
		for name, body := range bodies {
			t.Run(tr.name+"/"+name, func(t *testing.T) {
				srv, _ := completionServer(t, http.StatusOK, body)
				reply, err := tr.new(srv).SendChat(context.Background(), nil, testNewMessage, "m")
				require.NoError(t, err)
				assert.Equal(t, NoResponseText, reply)
			})
		}
	}
}

func TestSendChatRemoteErrorMessage(t *testing.T) {
	for _, tr := range transports {
		t.Run(tr.name, func(t *testing.T) {
			srv, _ := completionServer(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`)

			_, err := tr.new(srv).SendChat(context.Background(), nil, testNewMessage, "m")
			require.Error(t, err)

			var ce *CompletionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "rate limited", ce.Message)
			assert.Equal(t, http.StatusTooManyRequests, ce.StatusCode)
		})
	}
}

func TestSendChatGenericStatusError(t *testing.T) {
	for _, tr := range transports {
		t.Run(tr.name, func(t *testing.T) {
			srv, _ := completionServer(t, http.StatusBadGateway, `upstream exploded`)

			_, err := tr.new(srv).SendChat(context.Background(), nil, testNewMessage, "m")
			var ce *CompletionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "Request failed with status code 502", ce.Message)
		})
	}
}

func TestRestySendChatMalformedBody(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK, `<html>not json</html>`)

	_, err := NewRestyCompleter(srv.URL, "k", 0).SendChat(context.Background(), nil, testNewMessage, "m")
	var ce *CompletionError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Message, "malformed response body")
}

func TestRestySendChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRestyCompleter(url, "k", 0).SendChat(context.Background(), nil, testNewMessage, "m")
	var ce *CompletionError
	require.True(t, errors.As(err, &ce))
	assert.NotEmpty(t, ce.Message)
	assert.Zero(t, ce.StatusCode)
	assert.NotNil(t, errors.Unwrap(ce))
}

func TestBuildMessagesKeepsOrder(t *testing.T) {
	msgs := buildMessages(testHistory, testNewMessage)
	require.Len(t, msgs, 4)
	for i, m := range testHistory {
		assert.Equal(t, string(m.Role), msgs[i].Role)
		assert.Equal(t, m.Content, msgs[i].Content)
	}
	assert.Equal(t, "Hi", msgs[3].Content)
}

func TestNewCompleterSelectsTransport(t *testing.T) {
	cfg := &config.Config{APIURL: "https://example.test/api/v1/chat/completions", Transport: "resty"}
	assert.IsType(t, &RestyCompleter{}, NewCompleter(cfg))

	cfg.Transport = "openai"
	assert.IsType(t, &OpenAICompleter{}, NewCompleter(cfg))
}
