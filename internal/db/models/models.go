package models

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"` // admin, viewer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transcript is a stored transcription text and its corrected form.
type Transcript struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Text          string     `json:"text"`
	CorrectedText string     `json:"corrected_text,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CorrectedAt   *time.Time `json:"corrected_at,omitempty"`
}
