package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
)

const faceDetectionFeature = "FACE_DETECTION"

// YandexDetector calls the Yandex Vision batchAnalyze endpoint.
type YandexDetector struct {
	endpoint string
	apiKey   string
	folderID string
	client   *http.Client
}

func NewYandexDetector(cfg config.VisionConfig) *YandexDetector {
	return &YandexDetector{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		folderID: cfg.FolderID,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeFeature struct {
	Type string `json:"type"`
}

type analyzeSpec struct {
	Content  string           `json:"content"`
	Features []analyzeFeature `json:"features"`
}

type analyzeRequest struct {
	FolderID     string        `json:"folderId,omitempty"`
	AnalyzeSpecs []analyzeSpec `json:"analyze_specs"`
}

// coord is a vertex coordinate. The API encodes int64 values as JSON strings
// and omits zero values entirely.
type coord int

func (c *coord) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parse coordinate %q: %w", s, err)
		}
		*c = coord(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = coord(n)
	return nil
}

type analyzeResponse struct {
	Results []struct {
		Results []struct {
			FaceDetection *struct {
				Faces []struct {
					BoundingBox struct {
						Vertices []struct {
							X coord `json:"x"`
							Y coord `json:"y"`
						} `json:"vertices"`
					} `json:"boundingBox"`
				} `json:"faces"`
			} `json:"faceDetection"`
		} `json:"results"`
	} `json:"results"`
}

// Detect sends the image to the vision service. A rejected request or a
// response without detection results yields no faces and no error; only
// transport failures are returned.
func (d *YandexDetector) Detect(ctx context.Context, image []byte) ([]models.Polygon, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(analyzeRequest{
		FolderID: d.folderID,
		AnalyzeSpecs: []analyzeSpec{{
			Content:  base64.StdEncoding.EncodeToString(image),
			Features: []analyzeFeature{{Type: faceDetectionFeature}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call vision api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vision response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("vision api rejected request", "status", resp.StatusCode, "body", truncate(raw, 512))
		return nil, nil
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("failed to decode vision response", "error", err)
		return nil, nil
	}
	if len(parsed.Results) == 0 || len(parsed.Results[0].Results) == 0 ||
		parsed.Results[0].Results[0].FaceDetection == nil {
		slog.Warn("vision response has no face detection result", "body", truncate(raw, 512))
		return nil, nil
	}

	faces := parsed.Results[0].Results[0].FaceDetection.Faces
	polygons := make([]models.Polygon, 0, len(faces))
	for _, f := range faces {
		poly := make(models.Polygon, 0, len(f.BoundingBox.Vertices))
		for _, v := range f.BoundingBox.Vertices {
			poly = append(poly, models.Vertex{X: int(v.X), Y: int(v.Y)})
		}
		polygons = append(polygons, poly)
	}

	slog.Debug("faces detected", "count", len(polygons))
	return polygons, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
