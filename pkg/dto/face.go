package dto

import "github.com/google/uuid"

type FaceResponse struct {
	ID              uuid.UUID `json:"id"`
	FaceID          string    `json:"face_id"`
	OriginalPhotoID string    `json:"original_photo_id"`
	PersonName      *string   `json:"person_name"`
	FaceURL         string    `json:"face_url"`
}

type PersonPhotoResponse struct {
	OriginalPhotoID string `json:"original_photo_id"`
	PhotoURL        string `json:"photo_url"`
}

type PersonPhotosResponse struct {
	PersonName string                `json:"person_name"`
	Photos     []PersonPhotoResponse `json:"photos"`
}

type LabelFaceRequest struct {
	PersonName string `json:"person_name" binding:"required"`
}

type IngestResponse struct {
	Objects        int `json:"objects"`
	TasksPublished int `json:"tasks_published"`
}

// WSEvent is a WebSocket message for real-time face events.
type WSEvent struct {
	Type            string `json:"type"` // face_cropped, face_labeled
	FaceID          string `json:"face_id"`
	OriginalPhotoID string `json:"original_photo_id"`
	PersonName      string `json:"person_name,omitempty"`
	FaceURL         string `json:"face_url,omitempty"`
	Timestamp       string `json:"timestamp"`
}
