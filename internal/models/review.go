package models

import "time"

// ReviewStatus is the lifecycle state of a withheld reply
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ReviewItem is a reply held back for a human to approve or reject
type ReviewItem struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Status      ReviewStatus  `json:"status"`
	Contact     string        `json:"contact"`
	Message     string        `json:"message"`
	Reply       string        `json:"reply"`
	Issues      []SafetyIssue `json:"issues"`
	EditedReply string        `json:"edited_reply,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
}

// ReviewStats counts review items by status
type ReviewStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}
