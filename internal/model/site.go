package model

import "time"

// JobSite is a job location a worker can clock in against. The geofence
// definition is owned here and read-only to the clock pipeline.
type JobSite struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Address    string             `json:"address,omitempty"`
	Geofence   GeofenceDefinition `json:"geofence"`
	ShiftStart *time.Time         `json:"shift_start,omitempty"` // grace-window anchor; nil = no grace
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
