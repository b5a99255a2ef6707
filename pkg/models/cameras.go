package models

import (
	"fmt"
	"time"
)

// Camera statuses
const (
	CameraOnline  = "online"
	CameraOffline = "offline"
)

// Direction families a camera can cover
const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"
	DirectionLeft     = "left"
	DirectionRight    = "right"
	DirectionIdle     = "idle"
)

// DirectionFamilies lists every valid camera direction family.
var DirectionFamilies = []string{
	DirectionForward,
	DirectionBackward,
	DirectionLeft,
	DirectionRight,
	DirectionIdle,
}

// Camera represents an IP camera known to the routing model.
type Camera struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Status     string     `json:"status"`
	Directions []string   `json:"directions"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// IsOnline reports whether the camera is currently reachable.
func (c *Camera) IsOnline() bool {
	return c.Status == CameraOnline
}

// CoversDirection reports whether the camera watches the given direction family.
func (c *Camera) CoversDirection(direction string) bool {
	for _, d := range c.Directions {
		if d == direction {
			return true
		}
	}
	return false
}

// AngleRange binds a half-open interval of degrees [MinAngle, MaxAngle) to a
// set of cameras.
type AngleRange struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MinAngle  float64  `json:"min_angle"`
	MaxAngle  float64  `json:"max_angle"`
	Enabled   bool     `json:"enabled"`
	CameraIDs []string `json:"camera_ids"`
}

// Validate enforces 0 <= min < max <= 360. Wrap-around ranges are rejected at
// creation time so the resolver never has to handle them.
func (r *AngleRange) Validate() error {
	if r.MinAngle < 0 || r.MinAngle >= 360 {
		return fmt.Errorf("min_angle %.2f out of range [0, 360)", r.MinAngle)
	}
	if r.MaxAngle <= 0 || r.MaxAngle > 360 {
		return fmt.Errorf("max_angle %.2f out of range (0, 360]", r.MaxAngle)
	}
	if r.MinAngle >= r.MaxAngle {
		return fmt.Errorf("min_angle %.2f must be below max_angle %.2f", r.MinAngle, r.MaxAngle)
	}
	return nil
}

// Contains reports whether the normalized angle falls inside [MinAngle, MaxAngle).
func (r *AngleRange) Contains(angle float64) bool {
	return angle >= r.MinAngle && angle < r.MaxAngle
}
