package authz

import (
	"EscrowLedger/internal/fault"
	"EscrowLedger/internal/state"
	"fmt"

	"github.com/google/uuid"
)

// Eligibility gate modes, selected by configuration
const (
	GateModeOpen       = "open"
	GateModeReputation = "reputation"
	GateModeAllowList  = "allowlist"
)

// EligibilityGate decides whether a participant may create orders.
// Only order creation consults the gate.
type EligibilityGate interface {
	IsEligible(participant uuid.UUID) error
}

// OpenGate admits everyone
type OpenGate struct{}

func (OpenGate) IsEligible(participant uuid.UUID) error {
	return nil
}

// ReputationGate admits participants whose score clears the configured
// threshold; participants with no history are provisionally trusted.
type ReputationGate struct {
	tracker *state.ReputationManager
}

func NewReputationGate(tracker *state.ReputationManager) *ReputationGate {
	return &ReputationGate{tracker: tracker}
}

func (g *ReputationGate) IsEligible(participant uuid.UUID) error {
	if !g.tracker.IsEligibleToSell(participant) {
		return fault.Eligibilityf("order.create", "participant %s reputation below selling threshold", participant)
	}
	return nil
}

// AllowListGate admits only an explicit set of participants
type AllowListGate struct {
	allowed map[uuid.UUID]bool
}

func NewAllowListGate(participants []uuid.UUID) *AllowListGate {
	allowed := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		allowed[p] = true
	}
	return &AllowListGate{allowed: allowed}
}

func (g *AllowListGate) IsEligible(participant uuid.UUID) error {
	if !g.allowed[participant] {
		return fault.Eligibilityf("order.create", "participant %s is not on the allow list", participant)
	}
	return nil
}

// NewEligibilityGate builds the gate named by mode
func NewEligibilityGate(mode string, tracker *state.ReputationManager, allowList []uuid.UUID) (EligibilityGate, error) {
	switch mode {
	case GateModeOpen, "":
		return OpenGate{}, nil
	case GateModeReputation:
		return NewReputationGate(tracker), nil
	case GateModeAllowList:
		return NewAllowListGate(allowList), nil
	default:
		return nil, fmt.Errorf("unknown eligibility mode: %q", mode)
	}
}
