package state

import (
	"fmt"

	"github.com/google/uuid"
)

// Reputation tracks a participant's trade-outcome history
type Reputation struct {
	Participant      uuid.UUID
	Score            int64
	SuccessfulOrders int64
	FailedOrders     int64
	TotalOrders      int64
	IsVerified       bool
	History          []ReputationEntry
	Version          int64
}

// ReputationEntry is one immutable score change record
type ReputationEntry struct {
	OldScore  int64
	NewScore  int64
	Delta     int64
	Reason    string
	Sequence  int64
	Timestamp int64
}

// ReputationManager manages per-participant scores. Records are created
// lazily on first touch at the configured starting score.
type ReputationManager struct {
	records       map[uuid.UUID]*Reputation
	policyManager *PolicyManager
}

func NewReputationManager(pm *PolicyManager) *ReputationManager {
	return &ReputationManager{
		records:       make(map[uuid.UUID]*Reputation),
		policyManager: pm,
	}
}

// GetReputation returns existing record or nil
func (rm *ReputationManager) GetReputation(participant uuid.UUID) *Reputation {
	return rm.records[participant]
}

func (rm *ReputationManager) getOrCreate(participant uuid.UUID) *Reputation {
	rep := rm.records[participant]

	if rep == nil {
		rep = &Reputation{
			Participant: participant,
			Score:       rm.params().StartScore,
		}
		rm.records[participant] = rep
	}

	return rep
}

func (rm *ReputationManager) params() ReputationParams {
	return rm.policyManager.GetPolicy().Reputation
}

// UpdateReputation is the sole score-changing entry point. It applies the
// delta, clamps to the configured bounds and appends a history entry.
func (rm *ReputationManager) UpdateReputation(participant uuid.UUID, delta int64, reason string, sequence int64, timestamp int64) ReputationEntry {
	rep := rm.getOrCreate(participant)
	params := rm.params()

	oldScore := rep.Score
	newScore := oldScore + delta

	if newScore < params.MinScore {
		newScore = params.MinScore
	}
	if newScore > params.MaxScore {
		newScore = params.MaxScore
	}

	entry := ReputationEntry{
		OldScore:  oldScore,
		NewScore:  newScore,
		Delta:     delta,
		Reason:    reason,
		Sequence:  sequence,
		Timestamp: timestamp,
	}

	rep.Score = newScore
	rep.History = append(rep.History, entry)
	rep.Version++

	return entry
}

// RecordOrderSuccess credits a participant for a confirmed order
func (rm *ReputationManager) RecordOrderSuccess(participant uuid.UUID, reason string, sequence int64, timestamp int64) ReputationEntry {
	rep := rm.getOrCreate(participant)
	rep.SuccessfulOrders++
	rep.TotalOrders++

	return rm.UpdateReputation(participant, rm.params().SuccessDelta, reason, sequence, timestamp)
}

// RecordDisputeWin credits the winning side of a resolved dispute
func (rm *ReputationManager) RecordDisputeWin(participant uuid.UUID, reason string, sequence int64, timestamp int64) ReputationEntry {
	rep := rm.getOrCreate(participant)
	rep.SuccessfulOrders++
	rep.TotalOrders++

	return rm.UpdateReputation(participant, rm.params().SuccessDelta, reason, sequence, timestamp)
}

// RecordDisputeLoss penalizes the losing side of a resolved dispute
func (rm *ReputationManager) RecordDisputeLoss(participant uuid.UUID, reason string, sequence int64, timestamp int64) ReputationEntry {
	rep := rm.getOrCreate(participant)
	rep.FailedOrders++
	rep.TotalOrders++

	return rm.UpdateReputation(participant, rm.params().FailureDelta, reason, sequence, timestamp)
}

// IsEligibleToSell gates order creation. Participants with no history are
// provisionally trusted; otherwise the score must clear the threshold.
func (rm *ReputationManager) IsEligibleToSell(participant uuid.UUID) bool {
	rep := rm.records[participant]
	if rep == nil {
		return true
	}
	return rep.Score >= rm.params().EligibilityThreshold
}

// SetVerification grants or revokes the verified flag. Granting requires
// the score to clear the verification threshold; revocation is unconditional.
func (rm *ReputationManager) SetVerification(participant uuid.UUID, verified bool) error {
	rep := rm.getOrCreate(participant)

	if verified && rep.Score < rm.params().VerificationThreshold {
		return fmt.Errorf("score %d below verification threshold %d",
			rep.Score, rm.params().VerificationThreshold)
	}

	rep.IsVerified = verified
	rep.Version++

	return nil
}

// GetAllReputations returns all records (for snapshot creation)
func (rm *ReputationManager) GetAllReputations() []*Reputation {
	result := make([]*Reputation, 0, len(rm.records))
	for _, rep := range rm.records {
		result = append(result, rep)
	}
	return result
}

// SetReputation directly sets a record (used for snapshot restore)
func (rm *ReputationManager) SetReputation(rep *Reputation) {
	rm.records[rep.Participant] = rep
}

// CanonicalBytes returns deterministic serialization for hashing
func (r *Reputation) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)

	// participant (16 bytes UUID binary)
	buf = append(buf, r.Participant[:]...)

	// score (8 bytes LE)
	buf = appendInt64LE(buf, r.Score)

	// counters (8 bytes LE each)
	buf = appendInt64LE(buf, r.SuccessfulOrders)
	buf = appendInt64LE(buf, r.FailedOrders)
	buf = appendInt64LE(buf, r.TotalOrders)

	// is_verified (1 byte)
	if r.IsVerified {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	// history length (8 bytes LE)
	buf = appendInt64LE(buf, int64(len(r.History)))

	return buf
}
