// Package queue defines message payloads exchanged over the message broker
// and the consumer that delivers them.
package queue

// Notification is published whenever a booking transition concerns a user.
// It mirrors the payload accepted by the auth service's push endpoint so the
// consumer can forward it unchanged.
type Notification struct {
	UserID    string            `json:"userId"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt string            `json:"createdAt,omitempty"`
}
