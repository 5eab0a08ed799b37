package models

import "time"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Source string

const (
	SourceCamera Source = "camera"
	SourceUpload Source = "upload"
	SourceRemote Source = "remote"
)

// ScanPayload is the raw result of one decode event.
type ScanPayload struct {
	Text      string    `json:"text"`
	Corners   []Point   `json:"corners,omitempty"`
	Source    Source    `json:"source"`
	DecodedAt time.Time `json:"decodedAt"`
}
