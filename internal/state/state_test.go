package state_test

import (
	"EscrowLedger/internal/event"
	"EscrowLedger/internal/state"
	"testing"

	"github.com/google/uuid"
)

func newTestPolicyManager() *state.PolicyManager {
	return state.NewPolicyManager(&state.Policy{
		FeeBps:            250,
		FeeRecipient:      uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		DisputeFeeMinimum: 10,
		Owner:             uuid.MustParse("550e8400-e29b-41d4-a716-446655440001"),
		Arbitrators:       map[uuid.UUID]bool{},
		Reputation:        state.DefaultReputationParams,
	})
}

// ============================================================================
// Test: Order Status Transitions
// ============================================================================

func TestOrderStatus_ValidTransitions(t *testing.T) {
	cases := []struct {
		from state.OrderStatus
		to   state.OrderStatus
		want bool
	}{
		{state.OrderStatusCreated, state.OrderStatusFunded, true},
		{state.OrderStatusCreated, state.OrderStatusCancelled, true},
		{state.OrderStatusCreated, state.OrderStatusConfirmed, false},
		{state.OrderStatusFunded, state.OrderStatusConfirmed, true},
		{state.OrderStatusFunded, state.OrderStatusDisputed, true},
		{state.OrderStatusFunded, state.OrderStatusCancelled, false},
		{state.OrderStatusConfirmed, state.OrderStatusDisputed, true},
		{state.OrderStatusDisputed, state.OrderStatusResolved, true},
		{state.OrderStatusDisputed, state.OrderStatusFunded, true},
		{state.OrderStatusResolved, state.OrderStatusDisputed, false},
		{state.OrderStatusCancelled, state.OrderStatusFunded, false},
	}

	for _, tc := range cases {
		got := tc.from.CanTransitionTo(tc.to)
		if got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOrderStatus_TerminalStates(t *testing.T) {
	if !state.OrderStatusResolved.IsTerminal() {
		t.Error("Resolved should be terminal")
	}
	if !state.OrderStatusCancelled.IsTerminal() {
		t.Error("Cancelled should be terminal")
	}
	if state.OrderStatusDisputed.IsTerminal() {
		t.Error("Disputed should not be terminal")
	}
}

// ============================================================================
// Test: OrderManager
// ============================================================================

func TestOrderManager_SequentialIDs(t *testing.T) {
	om := state.NewOrderManager()
	seller := uuid.New()

	first := om.CreateOrder(seller, 100, 250, "widget", 1)
	second := om.CreateOrder(seller, 200, 250, "gadget", 2)

	if first.OrderID != 1 {
		t.Errorf("first order id: got %d, want 1", first.OrderID)
	}
	if second.OrderID != 2 {
		t.Errorf("second order id: got %d, want 2", second.OrderID)
	}
	if om.NextOrderID() != 3 {
		t.Errorf("next order id: got %d, want 3", om.NextOrderID())
	}
}

func TestOrderManager_TotalEscrowHeld(t *testing.T) {
	om := state.NewOrderManager()
	seller := uuid.New()

	om.CreateOrder(seller, 100, 250, "a", 1)
	om.CreateOrder(seller, 50, 250, "b", 2)

	if held := om.TotalEscrowHeld(); held != 150 {
		t.Errorf("total escrow held: got %d, want 150", held)
	}

	// Funding doubles the first order's custody
	order := om.GetOrder(1)
	order.EscrowHeld = 2 * order.Amount
	order.Status = state.OrderStatusFunded

	if held := om.TotalEscrowHeld(); held != 250 {
		t.Errorf("total escrow held after funding: got %d, want 250", held)
	}
}

func TestOrder_IsParticipant(t *testing.T) {
	seller := uuid.New()
	buyer := uuid.New()
	stranger := uuid.New()

	om := state.NewOrderManager()
	order := om.CreateOrder(seller, 100, 250, "widget", 1)

	if !order.IsParticipant(seller) {
		t.Error("seller should be a participant")
	}
	if order.IsParticipant(buyer) {
		t.Error("buyer not set yet")
	}

	order.Buyer = &buyer
	if !order.IsParticipant(buyer) {
		t.Error("buyer should be a participant once set")
	}
	if order.IsParticipant(stranger) {
		t.Error("stranger should not be a participant")
	}
}

// ============================================================================
// Test: DisputeManager
// ============================================================================

func fundedOrder(om *state.OrderManager, seller, buyer uuid.UUID, amount int64) *state.Order {
	order := om.CreateOrder(seller, amount, 250, "widget", 1)
	order.Buyer = &buyer
	order.Status = state.OrderStatusFunded
	order.EscrowHeld = 2 * amount
	return order
}

func TestDisputeManager_RaiseDispute(t *testing.T) {
	om := state.NewOrderManager()
	dm := state.NewDisputeManager(om)

	seller := uuid.New()
	buyer := uuid.New()
	order := fundedOrder(om, seller, buyer, 100)

	dispute, err := dm.RaiseDispute(order.OrderID, buyer, seller, "not received", "hash1", 10, 5, 1000)
	if err != nil {
		t.Fatalf("raise dispute failed: %v", err)
	}

	if dispute.DisputeID != 1 {
		t.Errorf("dispute id: got %d, want 1", dispute.DisputeID)
	}
	if order.Status != state.OrderStatusDisputed {
		t.Errorf("order status: got %s, want Disputed", order.Status)
	}
	if order.DisputeID == nil || *order.DisputeID != dispute.DisputeID {
		t.Error("order should reference the active dispute")
	}
	if dispute.PriorOrderStatus != state.OrderStatusFunded {
		t.Errorf("prior status: got %s, want Funded", dispute.PriorOrderStatus)
	}
	if len(dispute.Evidence) != 1 {
		t.Fatalf("evidence entries: got %d, want 1", len(dispute.Evidence))
	}
	if first := dispute.Evidence[0]; first.Hash != "hash1" || first.Note != "not received" {
		t.Errorf("first entry should carry the raise hash and reason, got %+v", first)
	}
}

func TestDisputeManager_SecondDisputeRejected(t *testing.T) {
	om := state.NewOrderManager()
	dm := state.NewDisputeManager(om)

	seller := uuid.New()
	buyer := uuid.New()
	order := fundedOrder(om, seller, buyer, 100)

	_, err := dm.RaiseDispute(order.OrderID, buyer, seller, "not received", "hash1", 10, 5, 1000)
	if err != nil {
		t.Fatalf("first dispute failed: %v", err)
	}

	_, err = dm.RaiseDispute(order.OrderID, seller, buyer, "counter", "hash2", 10, 6, 1001)
	if err == nil {
		t.Error("second active dispute should be rejected")
	}
}

func TestDisputeManager_ResolveDispute(t *testing.T) {
	om := state.NewOrderManager()
	dm := state.NewDisputeManager(om)

	seller := uuid.New()
	buyer := uuid.New()
	order := fundedOrder(om, seller, buyer, 100)

	dispute, _ := dm.RaiseDispute(order.OrderID, buyer, seller, "not received", "hash1", 10, 5, 1000)

	err := dm.ResolveDispute(dispute.DisputeID, event.WinnerBuyer, "buyer proved non-delivery", 7)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if dispute.Status != state.DisputeStatusResolved {
		t.Errorf("dispute status: got %s, want Resolved", dispute.Status)
	}
	if dispute.Winner != event.WinnerBuyer {
		t.Errorf("winner: got %s, want Buyer", dispute.Winner)
	}
	if order.Status != state.OrderStatusResolved {
		t.Errorf("order status: got %s, want Resolved", order.Status)
	}
	if order.EscrowHeld != 0 {
		t.Errorf("escrow held at terminal status: got %d, want 0", order.EscrowHeld)
	}
	if order.DisputeID != nil {
		t.Error("dispute reference should be cleared")
	}

	// Resolved disputes are immutable
	err = dm.AddEvidence(dispute.DisputeID, state.Evidence{Submitter: seller, Hash: "late"})
	if err == nil {
		t.Error("evidence after resolution should be rejected")
	}
	err = dm.ResolveDispute(dispute.DisputeID, event.WinnerSeller, "flip", 8)
	if err == nil {
		t.Error("re-resolution should be rejected")
	}
}

func TestDisputeManager_CancelRestoresPriorStatus(t *testing.T) {
	om := state.NewOrderManager()
	dm := state.NewDisputeManager(om)

	seller := uuid.New()
	buyer := uuid.New()
	order := fundedOrder(om, seller, buyer, 100)

	dispute, _ := dm.RaiseDispute(order.OrderID, buyer, seller, "not received", "hash1", 10, 5, 1000)

	err := dm.CancelDispute(dispute.DisputeID, 8)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if dispute.Status != state.DisputeStatusCancelled {
		t.Errorf("dispute status: got %s, want Cancelled", dispute.Status)
	}
	if order.Status != state.OrderStatusFunded {
		t.Errorf("order status: got %s, want Funded", order.Status)
	}
	if order.EscrowHeld != 200 {
		t.Errorf("escrow held: got %d, want 200", order.EscrowHeld)
	}

	// Order is recoverable for re-dispute
	_, err = dm.RaiseDispute(order.OrderID, seller, buyer, "retry", "hash2", 10, 9, 1002)
	if err != nil {
		t.Errorf("re-dispute after cancellation should succeed: %v", err)
	}
}

func TestDisputeManager_TotalFeeHeld(t *testing.T) {
	om := state.NewOrderManager()
	dm := state.NewDisputeManager(om)

	seller := uuid.New()
	buyer := uuid.New()
	order := fundedOrder(om, seller, buyer, 100)

	dispute, _ := dm.RaiseDispute(order.OrderID, buyer, seller, "not received", "hash1", 25, 5, 1000)

	if held := dm.TotalFeeHeld(); held != 25 {
		t.Errorf("fee held: got %d, want 25", held)
	}

	dm.ResolveDispute(dispute.DisputeID, event.WinnerBuyer, "done", 7)

	if held := dm.TotalFeeHeld(); held != 0 {
		t.Errorf("fee held after resolution: got %d, want 0", held)
	}
}

// ============================================================================
// Test: ReputationManager
// ============================================================================

func TestReputation_LazyInitialization(t *testing.T) {
	rm := state.NewReputationManager(newTestPolicyManager())
	participant := uuid.New()

	if rep := rm.GetReputation(participant); rep != nil {
		t.Error("no record should exist before first touch")
	}

	entry := rm.UpdateReputation(participant, 5, "test", 1, 1000)
	if entry.OldScore != 0 {
		t.Errorf("old score: got %d, want start score 0", entry.OldScore)
	}
	if entry.NewScore != 5 {
		t.Errorf("new score: got %d, want 5", entry.NewScore)
	}

	rep := rm.GetReputation(participant)
	if rep == nil {
		t.Fatal("record should exist after first touch")
	}
	if len(rep.History) != 1 {
		t.Errorf("history entries: got %d, want 1", len(rep.History))
	}
}

func TestReputation_ClampedToBounds(t *testing.T) {
	rm := state.NewReputationManager(newTestPolicyManager())
	participant := uuid.New()

	// Repeated penalties cannot drive score below the floor
	for i := 0; i < 10; i++ {
		rm.UpdateReputation(participant, -50, "penalty", int64(i), 1000)
	}
	if score := rm.GetReputation(participant).Score; score != -100 {
		t.Errorf("score floor: got %d, want -100", score)
	}

	// Repeated credits cannot exceed the ceiling
	for i := 0; i < 100; i++ {
		rm.UpdateReputation(participant, 50, "credit", int64(10+i), 1000)
	}
	if score := rm.GetReputation(participant).Score; score != 1000 {
		t.Errorf("score ceiling: got %d, want 1000", score)
	}
}

func TestReputation_EligibilityGate(t *testing.T) {
	rm := state.NewReputationManager(newTestPolicyManager())
	participant := uuid.New()

	// First-time sellers are provisionally trusted
	if !rm.IsEligibleToSell(participant) {
		t.Error("participant with no history should be eligible")
	}

	rm.RecordDisputeLoss(participant, "dispute lost", 1, 1000)

	if rm.IsEligibleToSell(participant) {
		t.Error("participant below threshold should be ineligible")
	}

	// Recover above the threshold
	rm.RecordOrderSuccess(participant, "order confirmed", 2, 1001)
	rm.RecordOrderSuccess(participant, "order confirmed", 3, 1002)
	rm.RecordOrderSuccess(participant, "order confirmed", 4, 1003)

	if !rm.IsEligibleToSell(participant) {
		t.Error("participant at threshold should be eligible again")
	}
}

func TestReputation_Counters(t *testing.T) {
	rm := state.NewReputationManager(newTestPolicyManager())
	participant := uuid.New()

	rm.RecordOrderSuccess(participant, "confirmed", 1, 1000)
	rm.RecordDisputeWin(participant, "won", 2, 1001)
	rm.RecordDisputeLoss(participant, "lost", 3, 1002)

	rep := rm.GetReputation(participant)
	if rep.SuccessfulOrders != 2 {
		t.Errorf("successful orders: got %d, want 2", rep.SuccessfulOrders)
	}
	if rep.FailedOrders != 1 {
		t.Errorf("failed orders: got %d, want 1", rep.FailedOrders)
	}
	if rep.TotalOrders != 3 {
		t.Errorf("total orders: got %d, want 3", rep.TotalOrders)
	}
}

func TestReputation_VerificationThreshold(t *testing.T) {
	rm := state.NewReputationManager(newTestPolicyManager())
	participant := uuid.New()

	err := rm.SetVerification(participant, true)
	if err == nil {
		t.Error("verification below threshold should be rejected")
	}

	// Clear the threshold (default 100, success delta 10)
	for i := 0; i < 10; i++ {
		rm.RecordOrderSuccess(participant, "confirmed", int64(i), 1000)
	}

	if err := rm.SetVerification(participant, true); err != nil {
		t.Errorf("verification at threshold should succeed: %v", err)
	}
	if !rm.GetReputation(participant).IsVerified {
		t.Error("verified flag should be set")
	}

	// Revocation is unconditional
	if err := rm.SetVerification(participant, false); err != nil {
		t.Errorf("revocation should succeed: %v", err)
	}
	if rm.GetReputation(participant).IsVerified {
		t.Error("verified flag should be cleared")
	}
}

// ============================================================================
// Test: PolicyManager
// ============================================================================

func TestPolicyManager_UpdateValidation(t *testing.T) {
	pm := newTestPolicyManager()
	recipient := pm.GetPolicy().FeeRecipient

	// fee_bps above 1000 rejected
	err := pm.UpdatePolicy(1001, 10, recipient)
	if err == nil {
		t.Error("fee_bps above cap should be rejected")
	}

	// negative dispute fee minimum rejected
	err = pm.UpdatePolicy(250, -1, recipient)
	if err == nil {
		t.Error("negative dispute_fee_minimum should be rejected")
	}

	// valid update applies
	err = pm.UpdatePolicy(500, 20, recipient)
	if err != nil {
		t.Fatalf("valid update failed: %v", err)
	}
	if pm.GetPolicy().FeeBps != 500 {
		t.Errorf("fee_bps: got %d, want 500", pm.GetPolicy().FeeBps)
	}
	if pm.GetPolicy().DisputeFeeMinimum != 20 {
		t.Errorf("dispute_fee_minimum: got %d, want 20", pm.GetPolicy().DisputeFeeMinimum)
	}
}

func TestPolicyManager_Arbitrators(t *testing.T) {
	pm := newTestPolicyManager()
	arbitrator := uuid.New()

	if pm.IsArbitrator(arbitrator) {
		t.Error("arbitrator not granted yet")
	}

	if err := pm.SetArbitrator(arbitrator, true); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if !pm.IsArbitrator(arbitrator) {
		t.Error("arbitrator should be granted")
	}

	if err := pm.SetArbitrator(arbitrator, false); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if pm.IsArbitrator(arbitrator) {
		t.Error("arbitrator should be revoked")
	}
}

// ============================================================================
// Test: Canonical Serialization
// ============================================================================

func TestOrder_CanonicalBytesDeterministic(t *testing.T) {
	seller := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	buyer := uuid.MustParse("550e8400-e29b-41d4-a716-446655440001")

	build := func() *state.Order {
		disputeID := int64(3)
		return &state.Order{
			OrderID:    1,
			Seller:     seller,
			Buyer:      &buyer,
			Amount:     100,
			FeeBps:     250,
			Status:     state.OrderStatusDisputed,
			EscrowHeld: 200,
			DisputeID:  &disputeID,
		}
	}

	a := build().CanonicalBytes()
	b := build().CanonicalBytes()

	if len(a) == 0 {
		t.Fatal("canonical bytes should not be empty")
	}
	if string(a) != string(b) {
		t.Error("canonical serialization should be deterministic")
	}

	// Status change must alter the bytes
	changed := build()
	changed.Status = state.OrderStatusResolved
	if string(a) == string(changed.CanonicalBytes()) {
		t.Error("status change should alter canonical bytes")
	}
}
