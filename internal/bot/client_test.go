package bot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facebot/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.BotConfig{APIURL: srv.URL + "/", Token: "123:abc"})
}

func TestClient_SendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("chat_id"))
		assert.Equal(t, "hello", r.PostForm.Get("text"))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	require.NoError(t, c.SendMessage(context.Background(), 42, "hello"))
}

func TestClient_SendPhotoURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendPhoto", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://gw.example.com/face/a.jpg", r.PostForm.Get("photo"))
		assert.Equal(t, "[a.jpg]\n\nwho?", r.PostForm.Get("caption"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.SendPhotoURL(context.Background(), 42, "https://gw.example.com/face/a.jpg", "[a.jpg]\n\nwho?"))
}

func TestClient_SendPhotoBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "42", r.FormValue("chat_id"))
		assert.Equal(t, "cap", r.FormValue("caption"))

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "a.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.SendPhotoBytes(context.Background(), 42, "a.jpg", []byte("jpeg-bytes"), "cap"))
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	err := c.SendMessage(context.Background(), 42, "hello")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Bad Request: chat not found", apiErr.Description)
	assert.Equal(t, "sendMessage", apiErr.Method)
}
