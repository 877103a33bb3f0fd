// Package queue moves distribution jobs through RabbitMQ.
package queue

import "time"

// DistributionRequestedQueue is the durable queue carrying
// DistributionRequestedEvent messages.
const DistributionRequestedQueue = "distribution.requested"

// DistributionRequestedEvent is published once per queued distribution.
// The consumer reloads the row, so the event only carries identifiers.
type DistributionRequestedEvent struct {
	DistributionID string    `json:"distribution_id"`
	ImageID        string    `json:"image_id"`
	UserID         string    `json:"user_id"`
	Platform       string    `json:"platform"`
	RequestedAt    time.Time `json:"requested_at"`
}
