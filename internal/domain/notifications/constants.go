package notifications

import "time"

// BroadcastScope addresses every administrator rather than one identity.
const BroadcastScope = "ADMIN_BROADCAST"

const (
	KindLeaveSubmitted = "leave_submitted"
	KindLeaveApproved  = "leave_approved"
	KindLeaveRejected  = "leave_rejected"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

type Notification struct {
	ID             int64     `json:"id"`
	RecipientScope string    `json:"recipientScope"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FeedQuery pages a feed newest first. AfterID > 0 restricts the page to ids above it,
// which is how pollers and stream subscribers resume from their cursor. BeforeID > 0
// restricts it to ids below, so a client pages back past the newest MaxFeedLimit items
// by passing the smallest id it holds.
type FeedQuery struct {
	AfterID  int64
	BeforeID int64
	Limit    int
}

func (q FeedQuery) normalized() FeedQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultFeedLimit
	}
	if q.Limit > MaxFeedLimit {
		q.Limit = MaxFeedLimit
	}
	if q.AfterID < 0 {
		q.AfterID = 0
	}
	if q.BeforeID < 0 {
		q.BeforeID = 0
	}
	return q
}
