// internal/models/template.go
package models

import "time"

// Template is one registered certificate template file.
type Template struct {
	ID          int       `json:"id"`
	FileName    string    `json:"fileName"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}
