package state

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ReputationParams bounds and tunes the reputation tracker
type ReputationParams struct {
	StartScore            int64 // Assigned on first touch
	MinScore              int64
	MaxScore              int64
	SuccessDelta          int64 // Credit for a confirmed order or dispute win
	FailureDelta          int64 // Penalty for a dispute loss (negative)
	EligibilityThreshold  int64 // Minimum score to create orders
	VerificationThreshold int64 // Minimum score to grant the verified flag
}

// Policy holds the admin-updatable settlement parameters
type Policy struct {
	FeeBps            int64
	FeeRecipient      uuid.UUID
	DisputeFeeMinimum int64
	Owner             uuid.UUID
	Arbitrators       map[uuid.UUID]bool
	Reputation        ReputationParams
	Version           int64
}

// Default reputation params (MVP)
var DefaultReputationParams = ReputationParams{
	StartScore:            0,
	MinScore:              -100,
	MaxScore:              1000,
	SuccessDelta:          10,
	FailureDelta:          -25,
	EligibilityThreshold:  0,
	VerificationThreshold: 100,
}

// PolicyManager manages the settlement policy
type PolicyManager struct {
	policy *Policy
}

func NewPolicyManager(policy *Policy) *PolicyManager {
	if policy.Arbitrators == nil {
		policy.Arbitrators = make(map[uuid.UUID]bool)
	}
	return &PolicyManager{policy: policy}
}

func (pm *PolicyManager) GetPolicy() *Policy {
	return pm.policy
}

func (pm *PolicyManager) IsOwner(party uuid.UUID) bool {
	return party == pm.policy.Owner
}

func (pm *PolicyManager) IsArbitrator(party uuid.UUID) bool {
	return pm.policy.Arbitrators[party]
}

// ValidatePolicy checks that policy parameters are within valid ranges.
// fee_bps capped at 1000 (10%), dispute_fee_minimum >= 0, fee_recipient
// and owner must be set, min_score < max_score, start_score within bounds.
func ValidatePolicy(policy *Policy) error {
	if policy.FeeBps < 0 || policy.FeeBps > 1000 {
		return fmt.Errorf("fee_bps must be in [0, 1000], got %d", policy.FeeBps)
	}
	if policy.DisputeFeeMinimum < 0 {
		return fmt.Errorf("dispute_fee_minimum must be >= 0, got %d", policy.DisputeFeeMinimum)
	}
	if policy.FeeRecipient == uuid.Nil {
		return fmt.Errorf("fee_recipient must be set")
	}
	if policy.Owner == uuid.Nil {
		return fmt.Errorf("owner must be set")
	}
	rp := policy.Reputation
	if rp.MinScore >= rp.MaxScore {
		return fmt.Errorf("min_score (%d) must be < max_score (%d)", rp.MinScore, rp.MaxScore)
	}
	if rp.StartScore < rp.MinScore || rp.StartScore > rp.MaxScore {
		return fmt.Errorf("start_score (%d) must be within [%d, %d]", rp.StartScore, rp.MinScore, rp.MaxScore)
	}
	return nil
}

// UpdatePolicy applies owner-approved fee parameter changes
func (pm *PolicyManager) UpdatePolicy(feeBps int64, disputeFeeMinimum int64, feeRecipient uuid.UUID) error {
	updated := *pm.policy
	updated.FeeBps = feeBps
	updated.DisputeFeeMinimum = disputeFeeMinimum
	updated.FeeRecipient = feeRecipient

	if err := ValidatePolicy(&updated); err != nil {
		return fmt.Errorf("invalid policy update: %w", err)
	}

	pm.policy.FeeBps = feeBps
	pm.policy.DisputeFeeMinimum = disputeFeeMinimum
	pm.policy.FeeRecipient = feeRecipient
	pm.policy.Version++

	return nil
}

// SetArbitrator grants or revokes arbitration capability
func (pm *PolicyManager) SetArbitrator(arbitrator uuid.UUID, granted bool) error {
	if arbitrator == uuid.Nil {
		return fmt.Errorf("arbitrator must be set")
	}

	if granted {
		pm.policy.Arbitrators[arbitrator] = true
	} else {
		delete(pm.policy.Arbitrators, arbitrator)
	}
	pm.policy.Version++

	return nil
}

// RestorePolicy replaces the policy wholesale (used for snapshot restore)
func (pm *PolicyManager) RestorePolicy(policy *Policy) {
	if policy.Arbitrators == nil {
		policy.Arbitrators = make(map[uuid.UUID]bool)
	}
	pm.policy = policy
}

// CanonicalBytes returns deterministic serialization for hashing.
// Arbitrators are included in sorted UUID-string order.
func (p *Policy) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)

	buf = appendInt64LE(buf, p.FeeBps)
	buf = append(buf, p.FeeRecipient[:]...)
	buf = appendInt64LE(buf, p.DisputeFeeMinimum)
	buf = append(buf, p.Owner[:]...)

	arbitrators := make([]string, 0, len(p.Arbitrators))
	for id := range p.Arbitrators {
		arbitrators = append(arbitrators, id.String())
	}
	sort.Strings(arbitrators)

	buf = appendInt64LE(buf, int64(len(arbitrators)))
	for _, id := range arbitrators {
		buf = append(buf, []byte(id)...)
	}

	buf = appendInt64LE(buf, p.Reputation.StartScore)
	buf = appendInt64LE(buf, p.Reputation.MinScore)
	buf = appendInt64LE(buf, p.Reputation.MaxScore)
	buf = appendInt64LE(buf, p.Reputation.SuccessDelta)
	buf = appendInt64LE(buf, p.Reputation.FailureDelta)
	buf = appendInt64LE(buf, p.Reputation.EligibilityThreshold)
	buf = appendInt64LE(buf, p.Reputation.VerificationThreshold)

	return buf
}
