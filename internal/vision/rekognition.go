package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	_ "golang.org/x/image/webp"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

const errCodeInvalidParameter = "InvalidParameterException"

type rekognitionAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// RekognitionDetector detects faces with AWS Rekognition DetectFaces.
type RekognitionDetector struct {
	api rekognitionAPI
}

// NewRekognitionDetector uses the AWS default credential chain.
func NewRekognitionDetector(ctx context.Context, cfg config.VisionConfig) (*RekognitionDetector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &RekognitionDetector{api: rekognition.NewFromConfig(awsCfg)}, nil
}

func (d *RekognitionDetector) Detect(ctx context.Context, img []byte) ([]models.Polygon, error) {
	bounds, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}

	out, err := d.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == errCodeInvalidParameter {
			slog.Warn("rekognition rejected image", "error", apiErr.ErrorMessage())
			return nil, nil
		}
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	polygons := make([]models.Polygon, 0, len(out.FaceDetails))
	for _, detail := range out.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		polygons = append(polygons, boxToPolygon(detail.BoundingBox, bounds.Width, bounds.Height))
	}
	return polygons, nil
}

// boxToPolygon converts a ratio-based bounding box into the four pixel corners,
// clamped to the image.
func boxToPolygon(box *types.BoundingBox, width, height int) models.Polygon {
	left := scale(aws.ToFloat32(box.Left), width)
	top := scale(aws.ToFloat32(box.Top), height)
	right := scale(aws.ToFloat32(box.Left)+aws.ToFloat32(box.Width), width)
	bottom := scale(aws.ToFloat32(box.Top)+aws.ToFloat32(box.Height), height)

	return models.Polygon{
		{X: left, Y: top},
		{X: left, Y: bottom},
		{X: right, Y: bottom},
		{X: right, Y: top},
	}
}

func scale(ratio float32, size int) int {
	v := int(math.Round(float64(ratio) * float64(size)))
	return max(0, min(v, size))
}
