package authz_test

import (
	"EscrowLedger/internal/authz"
	"EscrowLedger/internal/fault"
	"EscrowLedger/internal/state"
	"testing"

	"github.com/google/uuid"
)

var (
	testOwner      = uuid.MustParse("550e8400-e29b-41d4-a716-446655440001")
	testArbitrator = uuid.MustParse("550e8400-e29b-41d4-a716-446655440002")
)

func newTestAuthorizer() *authz.RoleAuthorizer {
	pm := state.NewPolicyManager(&state.Policy{
		FeeBps:       250,
		FeeRecipient: uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Owner:        testOwner,
		Arbitrators:  map[uuid.UUID]bool{testArbitrator: true},
		Reputation:   state.DefaultReputationParams,
	})
	return authz.NewRoleAuthorizer(pm)
}

func testOrder(seller, buyer uuid.UUID) *state.Order {
	return &state.Order{
		OrderID: 1,
		Seller:  seller,
		Buyer:   &buyer,
		Amount:  100,
		Status:  state.OrderStatusFunded,
	}
}

// ============================================================================
// Test: RoleAuthorizer
// ============================================================================

func TestAuthorizer_BuyerOnlyConfirm(t *testing.T) {
	a := newTestAuthorizer()
	seller := uuid.New()
	buyer := uuid.New()
	order := testOrder(seller, buyer)

	err := a.CanPerform(buyer, authz.ActionConfirmReceipt, authz.Subject{Order: order})
	if err != nil {
		t.Errorf("buyer should confirm: %v", err)
	}

	err = a.CanPerform(seller, authz.ActionConfirmReceipt, authz.Subject{Order: order})
	if err == nil {
		t.Error("seller should not confirm")
	}
	if fault.ClassOf(err) != fault.ClassAuthorization {
		t.Errorf("error class: got %s, want Authorization", fault.ClassOf(err))
	}
}

func TestAuthorizer_SellerOnlyCancel(t *testing.T) {
	a := newTestAuthorizer()
	seller := uuid.New()
	buyer := uuid.New()
	order := testOrder(seller, buyer)

	if err := a.CanPerform(seller, authz.ActionCancelOrder, authz.Subject{Order: order}); err != nil {
		t.Errorf("seller should cancel: %v", err)
	}
	if err := a.CanPerform(buyer, authz.ActionCancelOrder, authz.Subject{Order: order}); err == nil {
		t.Error("buyer should not cancel")
	}
}

func TestAuthorizer_ParticipantOnlyDispute(t *testing.T) {
	a := newTestAuthorizer()
	seller := uuid.New()
	buyer := uuid.New()
	stranger := uuid.New()
	order := testOrder(seller, buyer)

	for _, party := range []uuid.UUID{seller, buyer} {
		if err := a.CanPerform(party, authz.ActionRaiseDispute, authz.Subject{Order: order}); err != nil {
			t.Errorf("participant should raise dispute: %v", err)
		}
	}
	if err := a.CanPerform(stranger, authz.ActionRaiseDispute, authz.Subject{Order: order}); err == nil {
		t.Error("stranger should not raise dispute")
	}
	if err := a.CanPerform(stranger, authz.ActionSubmitEvidence, authz.Subject{Order: order}); err == nil {
		t.Error("stranger should not submit evidence")
	}
}

func TestAuthorizer_ArbitratorOnlyResolve(t *testing.T) {
	a := newTestAuthorizer()
	order := testOrder(uuid.New(), uuid.New())

	if err := a.CanPerform(testArbitrator, authz.ActionResolveDispute, authz.Subject{Order: order}); err != nil {
		t.Errorf("arbitrator should resolve: %v", err)
	}
	if err := a.CanPerform(testOwner, authz.ActionResolveDispute, authz.Subject{Order: order}); err == nil {
		t.Error("owner is not an arbitrator")
	}
	if err := a.CanPerform(testArbitrator, authz.ActionReviewDispute, authz.Subject{Order: order}); err != nil {
		t.Errorf("arbitrator should review: %v", err)
	}
}

func TestAuthorizer_OwnerOnlyAdmin(t *testing.T) {
	a := newTestAuthorizer()

	adminActions := []authz.Action{
		authz.ActionCancelDispute,
		authz.ActionUpdatePolicy,
		authz.ActionUpdateArbitrator,
		authz.ActionSetVerification,
	}

	for _, action := range adminActions {
		if err := a.CanPerform(testOwner, action, authz.Subject{}); err != nil {
			t.Errorf("%s: owner should be permitted: %v", action, err)
		}
		if err := a.CanPerform(testArbitrator, action, authz.Subject{}); err == nil {
			t.Errorf("%s: arbitrator should be denied", action)
		}
	}
}

// ============================================================================
// Test: Eligibility Gates
// ============================================================================

func TestEligibility_OpenGate(t *testing.T) {
	gate, err := authz.NewEligibilityGate(authz.GateModeOpen, nil, nil)
	if err != nil {
		t.Fatalf("gate construction failed: %v", err)
	}

	if err := gate.IsEligible(uuid.New()); err != nil {
		t.Errorf("open gate should admit everyone: %v", err)
	}
}

func TestEligibility_ReputationGate(t *testing.T) {
	pm := state.NewPolicyManager(&state.Policy{
		FeeBps:       250,
		FeeRecipient: uuid.New(),
		Owner:        uuid.New(),
		Reputation:   state.DefaultReputationParams,
	})
	tracker := state.NewReputationManager(pm)

	gate, err := authz.NewEligibilityGate(authz.GateModeReputation, tracker, nil)
	if err != nil {
		t.Fatalf("gate construction failed: %v", err)
	}

	fresh := uuid.New()
	if err := gate.IsEligible(fresh); err != nil {
		t.Errorf("first-time seller should be provisionally trusted: %v", err)
	}

	penalized := uuid.New()
	tracker.RecordDisputeLoss(penalized, "lost", 1, 1000)

	err = gate.IsEligible(penalized)
	if err == nil {
		t.Error("penalized seller should be ineligible")
	}
	if fault.ClassOf(err) != fault.ClassEligibility {
		t.Errorf("error class: got %s, want Eligibility", fault.ClassOf(err))
	}
}

func TestEligibility_AllowListGate(t *testing.T) {
	member := uuid.New()

	gate, err := authz.NewEligibilityGate(authz.GateModeAllowList, nil, []uuid.UUID{member})
	if err != nil {
		t.Fatalf("gate construction failed: %v", err)
	}

	if err := gate.IsEligible(member); err != nil {
		t.Errorf("listed participant should be eligible: %v", err)
	}
	if err := gate.IsEligible(uuid.New()); err == nil {
		t.Error("unlisted participant should be ineligible")
	}
}

func TestEligibility_UnknownMode(t *testing.T) {
	_, err := authz.NewEligibilityGate("vip", nil, nil)
	if err == nil {
		t.Error("unknown mode should be rejected")
	}
}
