// Package transport declares the outbound delivery contracts the engine
// consumes. Concrete HTTP clients live in the subpackages; tests swap in
// fakes.
package transport

import "context"

// Email is one rendered transactional message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers one email. The engine treats the outcome as opaque and
// never retries; provider-side retry policy is not this module's concern.
type Mailer interface {
	Send(ctx context.Context, m Email) error
}

// InAppEvent is one in-app notification for a recipient.
type InAppEvent struct {
	// RecipientKey identifies the subscriber on the in-app provider side
	// (the user id in our case).
	RecipientKey string
	// TransactionID dedups redelivery on the provider side within a run.
	TransactionID string
	Payload InAppPayload
}

type InAppPayload struct {
	TaskID    string `json:"task_id"`
	TaskTitle string `json:"task_title"`
	Status    string `json:"status"`
	Link      string `json:"link"`
}

// InAppNotifier delivers a batch of in-app events in one call.
type InAppNotifier interface {
	TriggerBulk(ctx context.Context, events []InAppEvent) error
}

// UnsubscribeChecker looks up a recipient's notification preference.
type UnsubscribeChecker interface {
	IsUnsubscribed(ctx context.Context, email, category, orgID string) (bool, error)
}
