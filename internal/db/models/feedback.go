// Package models - feedback.go defines the user feedback model.
package models

import "time"

// Feedback is a single free-form submission from the feedback widget. UserID
// is set when the submitter was signed in and nil for anonymous submissions
// or accounts that have since been deleted. Name and Email are whatever the
// submitter typed, not verified identity.
type Feedback struct {
	ID        string
	UserID    *string
	Name      string
	Email     string
	Message   string
	Source    string
	IsRead    bool
	CreatedAt time.Time
}
