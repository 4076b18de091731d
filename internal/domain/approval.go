package domain

import "time"

// ApprovalStage distinguishes the two human review rounds.
type ApprovalStage string

const (
	StageInitial ApprovalStage = "initial"
	StageFinal   ApprovalStage = "final"
)

// ApprovalStatus is the outcome of one review round.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimeout  ApprovalStatus = "timeout"
)

// ApprovalEvent records a review request posted to the chat channel and its
// eventual decision. The approval timeout is measured from CreatedAt.
type ApprovalEvent struct {
	ID         string         `json:"id"`
	MarketID   string         `json:"market_id"`
	Stage      ApprovalStage  `json:"stage"`
	Status     ApprovalStatus `json:"status"`
	MessageID  string         `json:"message_id"`
	Reason     string         `json:"reason,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}
