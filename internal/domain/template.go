package domain

import "time"

// EmailTemplate holds the subject and body content for a campaign.
// Content is copied into each DeliveryTask at queue time, so editing a
// template never alters pending or sent history.
type EmailTemplate struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
