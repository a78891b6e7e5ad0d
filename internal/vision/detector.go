package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

var ErrUnknownProvider = errors.New("unknown vision provider")

// Detector finds faces in an encoded image and returns one polygon per face,
// in image pixel coordinates.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]models.Polygon, error)
}

// NewDetector builds the detector selected by cfg.Provider.
func NewDetector(ctx context.Context, cfg config.VisionConfig) (Detector, error) {
	switch cfg.Provider {
	case "", "yandex":
		return NewYandexDetector(cfg), nil
	case "rekognition":
		d, err := NewRekognitionDetector(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
