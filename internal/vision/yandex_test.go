package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

func newTestYandex(url string) *YandexDetector {
	return NewYandexDetector(config.VisionConfig{
		Endpoint: url,
		APIKey:   "secret-key",
		Timeout:  5 * time.Second,
	})
}

func TestYandexDetector_Detect(t *testing.T) {
	image := []byte("fake-jpeg-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Api-Key secret-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req analyzeRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.AnalyzeSpecs, 1)
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), req.AnalyzeSpecs[0].Content)
		assert.Equal(t, []analyzeFeature{{Type: "FACE_DETECTION"}}, req.AnalyzeSpecs[0].Features)

		_, _ = w.Write([]byte(`{"results":[{"results":[{"faceDetection":{"faces":[
			{"boundingBox":{"vertices":[{"x":"10","y":"20"},{"x":"10","y":"80"},{"x":"60","y":"80"},{"x":"60","y":"20"}]}},
			{"boundingBox":{"vertices":[{"y":5},{"x":0,"y":45},{"x":40,"y":45},{"x":40,"y":5}]}}
		]}}]}]}`))
	}))
	defer srv.Close()

	polygons, err := newTestYandex(srv.URL).Detect(context.Background(), image)
	require.NoError(t, err)
	require.Len(t, polygons, 2)
	assert.Equal(t, models.Polygon{{X: 10, Y: 20}, {X: 10, Y: 80}, {X: 60, Y: 80}, {X: 60, Y: 20}}, polygons[0])
	assert.Equal(t, models.Vertex{X: 0, Y: 5}, polygons[1][0])
}

func TestYandexDetector_NoFaces(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "empty detection", status: http.StatusOK, body: `{"results":[{"results":[{"faceDetection":{}}]}]}`},
		{name: "missing detection", status: http.StatusOK, body: `{"results":[{"results":[{"error":{"code":3}}]}]}`},
		{name: "no results", status: http.StatusOK, body: `{}`},
		{name: "garbage body", status: http.StatusOK, body: `<html>`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"code":16,"message":"Unknown api key"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			polygons, err := newTestYandex(srv.URL).Detect(context.Background(), []byte("img"))
			require.NoError(t, err)
			assert.Empty(t, polygons)
		})
	}
}

func TestYandexDetector_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestYandex(url).Detect(context.Background(), []byte("img"))
	assert.ErrorContains(t, err, "call vision api")
}

func TestCoord_Unmarshal(t *testing.T) {
	var v struct {
		A coord `json:"a"`
		B coord `json:"b"`
		C coord `json:"c"`
		D coord `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"42","b":17,"d":null}`), &v))
	assert.Equal(t, coord(42), v.A)
	assert.Equal(t, coord(17), v.B)
	assert.Equal(t, coord(0), v.C)
	assert.Equal(t, coord(0), v.D)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"x1"}`), &v))
}

func TestNewDetector_UnknownProvider(t *testing.T) {
	_, err := NewDetector(context.Background(), config.VisionConfig{Provider: "opencv"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	d, err := NewDetector(context.Background(), config.VisionConfig{Provider: "yandex"})
	require.NoError(t, err)
	assert.IsType(t, &YandexDetector{}, d)
}
