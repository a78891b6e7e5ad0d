package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStorageEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []ObjectRef
		wantErr error
	}{
		{
			name: "s3 notification",
			body: `{"Records":[{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"photos"},"object":{"key":"party+2024%2Fimg+1.jpg","size":1024}}}]}`,
			want: []ObjectRef{{Bucket: "photos", Key: "party 2024/img 1.jpg"}},
		},
		{
			name: "serverless queue envelope",
			body: `{"messages":[{"event_metadata":{"event_type":"yandex.cloud.events.storage.ObjectCreate"},"details":{"bucket_id":"photos","object_id":"img-1.jpg"}},{"details":{"bucket_id":"photos","object_id":"img-2.jpg"}}]}`,
			want: []ObjectRef{{Bucket: "photos", Key: "img-1.jpg"}, {Bucket: "photos", Key: "img-2.jpg"}},
		},
		{
			name:    "nothing to process",
			body:    `{"messages":[]}`,
			wantErr: ErrNoObjects,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStorageEvent([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStorageEvent_Malformed(t *testing.T) {
	_, err := ParseStorageEvent([]byte(`not json`))
	assert.ErrorContains(t, err, "decode storage event")
}
