package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

var ErrNoObjects = errors.New("event carries no object references")

// ObjectRef points at one uploaded photo.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// queueEnvelope is the serverless trigger payload: one entry per storage event.
type queueEnvelope struct {
	Messages []struct {
		Details struct {
			BucketID string `json:"bucket_id"`
			ObjectID string `json:"object_id"`
		} `json:"details"`
	} `json:"messages"`
}

// ParseStorageEvent extracts object references from an S3/MinIO notification
// or from a serverless queue envelope.
func ParseStorageEvent(body []byte) ([]ObjectRef, error) {
	var s3 events.S3Event
	if err := json.Unmarshal(body, &s3); err != nil {
		return nil, fmt.Errorf("decode storage event: %w", err)
	}
	if len(s3.Records) > 0 {
		refs := make([]ObjectRef, 0, len(s3.Records))
		for _, rec := range s3.Records {
			key, err := url.QueryUnescape(rec.S3.Object.Key)
			if err != nil {
				return nil, fmt.Errorf("decode object key %q: %w", rec.S3.Object.Key, err)
			}
			refs = append(refs, ObjectRef{Bucket: rec.S3.Bucket.Name, Key: key})
		}
		return refs, nil
	}

	var env queueEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode storage event: %w", err)
	}
	refs := make([]ObjectRef, 0, len(env.Messages))
	for _, m := range env.Messages {
		if m.Details.ObjectID == "" {
			continue
		}
		refs = append(refs, ObjectRef{Bucket: m.Details.BucketID, Key: m.Details.ObjectID})
	}
	if len(refs) == 0 {
		return nil, ErrNoObjects
	}
	return refs, nil
}
