package event

import (
	"github.com/google/uuid"
)

// Notice is an immutable notification emitted for each committed transition,
// consumed by external indexing and reporting collaborators. Timestamps are
// epoch microseconds from the originating command.
type Notice interface {
	// NoticeType returns the snake_case discriminator used for routing
	NoticeType() string
}

type OrderCreated struct {
	OrderID     int64     `json:"order_id"`
	Seller      uuid.UUID `json:"seller"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Timestamp   int64     `json:"timestamp"`
}

func (OrderCreated) NoticeType() string { return "order_created" }

type OrderFunded struct {
	OrderID   int64     `json:"order_id"`
	Buyer     uuid.UUID `json:"buyer"`
	Amount    int64     `json:"amount"`
	Timestamp int64     `json:"timestamp"`
}

func (OrderFunded) NoticeType() string { return "order_funded" }

type OrderConfirmed struct {
	OrderID      int64     `json:"order_id"`
	Seller       uuid.UUID `json:"seller"`
	SellerAmount int64     `json:"seller_amount"`
	Timestamp    int64     `json:"timestamp"`
}

func (OrderConfirmed) NoticeType() string { return "order_confirmed" }

type OrderCancelled struct {
	OrderID   int64     `json:"order_id"`
	By        uuid.UUID `json:"by"`
	Timestamp int64     `json:"timestamp"`
}

func (OrderCancelled) NoticeType() string { return "order_cancelled" }

type DisputeRaised struct {
	DisputeID int64     `json:"dispute_id"`
	OrderID   int64     `json:"order_id"`
	Disputer  uuid.UUID `json:"disputer"`
	Reason    string    `json:"reason"`
	Timestamp int64     `json:"timestamp"`
}

func (DisputeRaised) NoticeType() string { return "dispute_raised" }

type EvidenceSubmitted struct {
	DisputeID    int64     `json:"dispute_id"`
	Submitter    uuid.UUID `json:"submitter"`
	EvidenceHash string    `json:"evidence_hash"`
	Timestamp    int64     `json:"timestamp"`
}

func (EvidenceSubmitted) NoticeType() string { return "evidence_submitted" }

type DisputeUnderReview struct {
	DisputeID  int64     `json:"dispute_id"`
	Arbitrator uuid.UUID `json:"arbitrator"`
	Timestamp  int64     `json:"timestamp"`
}

func (DisputeUnderReview) NoticeType() string { return "dispute_under_review" }

type DisputeResolved struct {
	DisputeID         int64     `json:"dispute_id"`
	OrderID           int64     `json:"order_id"`
	Winner            string    `json:"winner"` // "Buyer" or "Seller"
	WinnerParticipant uuid.UUID `json:"winner_participant"`
	Resolution        string    `json:"resolution"`
	Timestamp         int64     `json:"timestamp"`
}

func (DisputeResolved) NoticeType() string { return "dispute_resolved" }

type DisputeCancelled struct {
	DisputeID int64 `json:"dispute_id"`
	OrderID   int64 `json:"order_id"`
	Timestamp int64 `json:"timestamp"`
}

func (DisputeCancelled) NoticeType() string { return "dispute_cancelled" }

type ReputationUpdated struct {
	Participant uuid.UUID `json:"participant"`
	OldScore    int64     `json:"old_score"`
	NewScore    int64     `json:"new_score"`
	Reason      string    `json:"reason"`
}

func (ReputationUpdated) NoticeType() string { return "reputation_updated" }

type FundsDeposited struct {
	Participant uuid.UUID `json:"participant"`
	Amount      int64     `json:"amount"`
	Timestamp   int64     `json:"timestamp"`
}

func (FundsDeposited) NoticeType() string { return "funds_deposited" }

type FundsWithdrawn struct {
	Participant uuid.UUID `json:"participant"`
	Amount      int64     `json:"amount"`
	Timestamp   int64     `json:"timestamp"`
}

func (FundsWithdrawn) NoticeType() string { return "funds_withdrawn" }

type PolicyUpdated struct {
	FeeBps            int64     `json:"fee_bps"`
	DisputeFeeMinimum int64     `json:"dispute_fee_minimum"`
	FeeRecipient      uuid.UUID `json:"fee_recipient"`
	Timestamp         int64     `json:"timestamp"`
}

func (PolicyUpdated) NoticeType() string { return "policy_updated" }

type ArbitratorUpdated struct {
	Arbitrator uuid.UUID `json:"arbitrator"`
	Granted    bool      `json:"granted"`
	Timestamp  int64     `json:"timestamp"`
}

func (ArbitratorUpdated) NoticeType() string { return "arbitrator_updated" }

type VerificationUpdated struct {
	Participant uuid.UUID `json:"participant"`
	Verified    bool      `json:"verified"`
	Timestamp   int64     `json:"timestamp"`
}

func (VerificationUpdated) NoticeType() string { return "verification_updated" }
