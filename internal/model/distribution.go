package model

import "time"

// DistributionStatus tracks a publish request to a third-party platform.
type DistributionStatus string

const (
	DistributionQueued    DistributionStatus = "queued"
	DistributionPublished DistributionStatus = "published"
	DistributionFailed    DistributionStatus = "failed"
)

// Distribution is one image pushed to one platform.
type Distribution struct {
	ID         string             `json:"id"`
	ImageID    string             `json:"imageId"`
	UserID     string             `json:"userId"`
	Platform   string             `json:"platform"`
	Status     DistributionStatus `json:"status"`
	ExternalID *string            `json:"externalId"`
	LastError  *string            `json:"lastError"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}
