package authz

import (
	"EscrowLedger/internal/fault"
	"EscrowLedger/internal/state"

	"github.com/google/uuid"
)

// Action identifies a capability-gated operation
type Action int32

const (
	ActionConfirmReceipt Action = iota
	ActionCancelOrder
	ActionRaiseDispute
	ActionSubmitEvidence
	ActionReviewDispute
	ActionResolveDispute
	ActionCancelDispute
	ActionUpdatePolicy
	ActionUpdateArbitrator
	ActionSetVerification
)

func (a Action) String() string {
	switch a {
	case ActionConfirmReceipt:
		return "order.confirm"
	case ActionCancelOrder:
		return "order.cancel"
	case ActionRaiseDispute:
		return "dispute.raise"
	case ActionSubmitEvidence:
		return "dispute.evidence"
	case ActionReviewDispute:
		return "dispute.review"
	case ActionResolveDispute:
		return "dispute.resolve"
	case ActionCancelDispute:
		return "dispute.cancel"
	case ActionUpdatePolicy:
		return "policy.update"
	case ActionUpdateArbitrator:
		return "policy.arbitrator"
	case ActionSetVerification:
		return "policy.verification"
	default:
		return "unknown"
	}
}

// Subject carries the entities an action operates on. Admin actions
// have no subject.
type Subject struct {
	Order   *state.Order
	Dispute *state.Dispute
}

// Authorizer decides whether a caller holds the capability for an action.
// Consulted at the top of every command handler, before any mutation.
type Authorizer interface {
	CanPerform(caller uuid.UUID, action Action, subject Subject) error
}

// RoleAuthorizer resolves capabilities from order roles and policy roles:
// buyer, seller, order participant, arbitrator, owner.
type RoleAuthorizer struct {
	policy *state.PolicyManager
}

func NewRoleAuthorizer(policy *state.PolicyManager) *RoleAuthorizer {
	return &RoleAuthorizer{policy: policy}
}

func (a *RoleAuthorizer) CanPerform(caller uuid.UUID, action Action, subject Subject) error {
	switch action {
	case ActionConfirmReceipt:
		if subject.Order == nil || subject.Order.Buyer == nil || caller != *subject.Order.Buyer {
			return fault.Authorizationf(action.String(), "caller %s is not the buyer", caller)
		}

	case ActionCancelOrder:
		if subject.Order == nil || caller != subject.Order.Seller {
			return fault.Authorizationf(action.String(), "caller %s is not the seller", caller)
		}

	case ActionRaiseDispute, ActionSubmitEvidence:
		if subject.Order == nil || !subject.Order.IsParticipant(caller) {
			return fault.Authorizationf(action.String(), "caller %s is not an order participant", caller)
		}

	case ActionReviewDispute, ActionResolveDispute:
		if !a.policy.IsArbitrator(caller) {
			return fault.Authorizationf(action.String(), "caller %s is not an authorized arbitrator", caller)
		}

	case ActionCancelDispute, ActionUpdatePolicy, ActionUpdateArbitrator, ActionSetVerification:
		if !a.policy.IsOwner(caller) {
			return fault.Authorizationf(action.String(), "caller %s is not the owner", caller)
		}

	default:
		return fault.Authorizationf(action.String(), "unknown action")
	}

	return nil
}
