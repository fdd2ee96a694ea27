// internal/models/viewer.go
package models

// Viewer is the authenticated caller as reported by the session provider.
type Viewer struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Office string `json:"office,omitempty"`
}

// SeesEverything reports whether the viewer is exempt from redaction.
func (v Viewer) SeesEverything() bool {
	return v.Role == RoleAdmin || v.Role == RoleManager
}
