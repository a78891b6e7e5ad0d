package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceRecord is one row of the face table: a stored face crop, the photo it was
// cut from, and the person name once a user has supplied it.
type FaceRecord struct {
	ID              uuid.UUID `json:"id" db:"row_id"`
	FaceID          string    `json:"face_id" db:"face_id"`
	OriginalPhotoID string    `json:"original_photo_id" db:"original_photo_id"`
	PersonName      *string   `json:"person_name,omitempty" db:"person_name"`
}

// Labeled reports whether a person name has been recorded for the face.
func (f *FaceRecord) Labeled() bool {
	return f.PersonName != nil
}

// PersonPhoto is one distinct (original photo, person) pair of a name search.
type PersonPhoto struct {
	OriginalPhotoID string `json:"original_photo_id" db:"original_photo_id"`
	PersonName      string `json:"person_name" db:"person_name"`
}

// Vertex is a polygon corner in image pixel coordinates.
type Vertex struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Polygon is the boundary of one detected face.
type Polygon []Vertex

// FaceTask is the message published to the queue for the face-cut worker.
type FaceTask struct {
	OriginalPhotoID string  `json:"original_photo_id"`
	Polygon         Polygon `json:"face_polygon"`
}

type FaceEventType string

const (
	FaceEventCropped FaceEventType = "face_cropped"
	FaceEventLabeled FaceEventType = "face_labeled"
)

// FaceEvent is published after a face is stored or labeled.
type FaceEvent struct {
	Type            FaceEventType `json:"type"`
	FaceID          string        `json:"face_id"`
	OriginalPhotoID string        `json:"original_photo_id"`
	PersonName      string        `json:"person_name,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}
