package ledger_test

import (
	"EscrowLedger/internal/ledger"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_ParticipantPath(t *testing.T) {
	participant := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewParticipantAccountKey(participant)

	path := key.AccountPath()
	expected := "participant:550e8400-e29b-41d4-a716-446655440000:available"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_OrderEscrowPath(t *testing.T) {
	key := ledger.NewOrderEscrowKey(42)

	path := key.AccountPath()
	if path != "custody:order:42" {
		t.Errorf("got %q, want %q", path, "custody:order:42")
	}
	if key.EntityInt64() != 42 {
		t.Errorf("entity id: got %d, want 42", key.EntityInt64())
	}
}

func TestAccountKey_DisputeFeePath(t *testing.T) {
	key := ledger.NewDisputeFeeKey(7)

	path := key.AccountPath()
	if path != "custody:dispute:7:fee" {
		t.Errorf("got %q, want %q", path, "custody:dispute:7:fee")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalFundingKey()

	path := key.AccountPath()
	if path != "external:funding" {
		t.Errorf("got %q, want %q", path, "external:funding")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.NewParticipantAccountKey(uuid.New()),
		ledger.NewOrderEscrowKey(1),
		ledger.NewOrderEscrowKey(12345),
		ledger.NewDisputeFeeKey(99),
		ledger.NewExternalFundingKey(),
	}

	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q) failed: %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("round trip mismatch for %q", key.AccountPath())
		}
	}
}

func TestParseAccountPath_Unknown(t *testing.T) {
	_, err := ledger.ParseAccountPath("system:fees:USDT")
	if err == nil {
		t.Error("expected error for unrecognized path")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	participant := uuid.New()

	balance := bt.GetAvailable(participant)
	if balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	participant := uuid.New()

	// Simulate deposit: debit participant:available, credit external:funding
	j := ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewParticipantAccountKey(participant),
		CreditAccount: ledger.NewExternalFundingKey(),
		Amount:        1_000_000,
	}

	bt.ApplyJournal(j)

	available := bt.GetAvailable(participant)
	if available != 1_000_000 {
		t.Errorf("available: got %d, want 1_000_000", available)
	}
}

func TestBalanceTracker_CustodyHeld(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	seller := uuid.New()

	// Deposit then escrow
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewParticipantAccountKey(seller),
		CreditAccount: ledger.NewExternalFundingKey(),
		Amount:        1_000,
	})
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewOrderEscrowKey(1),
		CreditAccount: ledger.NewParticipantAccountKey(seller),
		Amount:        400,
	})

	if held := bt.ComputeCustodyHeld(); held != 400 {
		t.Errorf("custody held: got %d, want 400", held)
	}
	if bt.GetOrderEscrow(1) != 400 {
		t.Errorf("order escrow: got %d, want 400", bt.GetOrderEscrow(1))
	}
	if bt.GetAvailable(seller) != 600 {
		t.Errorf("available: got %d, want 600", bt.GetAvailable(seller))
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	participant := uuid.New()

	// Deposit
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewParticipantAccountKey(participant),
		CreditAccount: ledger.NewExternalFundingKey(),
		Amount:        1_000_000,
	})

	// Move into custody
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewOrderEscrowKey(3),
		CreditAccount: ledger.NewParticipantAccountKey(participant),
		Amount:        300_000,
	})

	if total := bt.ComputeGlobalBalance(); total != 0 {
		t.Errorf("global balance should be zero, got %d", total)
	}
}

func TestBalanceTracker_ValidateSufficientAvailable(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	participant := uuid.New()

	// No balance — should fail
	err := bt.ValidateSufficientAvailable(participant, 100)
	if err == nil {
		t.Error("expected error for insufficient balance")
	}

	// Add balance
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewParticipantAccountKey(participant),
		CreditAccount: ledger.NewExternalFundingKey(),
		Amount:        1_000,
	})

	// Now should pass
	err = bt.ValidateSufficientAvailable(participant, 1_000)
	if err != nil {
		t.Errorf("should have sufficient balance: %v", err)
	}

	// Asking for more should fail
	err = bt.ValidateSufficientAvailable(participant, 1_001)
	if err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_SnapshotAndRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	participant := uuid.New()

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewParticipantAccountKey(participant),
		CreditAccount: ledger.NewExternalFundingKey(),
		Amount:        999,
	})

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k] = 0
	}
	if bt.GetAvailable(participant) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}

	// Restore into a fresh tracker
	restored := ledger.NewBalanceTracker()
	restored.Restore(bt.Snapshot())
	if restored.GetAvailable(participant) != 999 {
		t.Error("restored tracker should carry the original balance")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewParticipantAccountKey(uuid.New()),
				CreditAccount: ledger.NewExternalFundingKey(),
				Amount:        0,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	sameAccount := ledger.NewParticipantAccountKey(uuid.New())

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				Amount:        100,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  ledger.NewParticipantAccountKey(uuid.New()),
				CreditAccount: ledger.NewExternalFundingKey(),
				Amount:        100,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func depositInto(bt *ledger.BalanceTracker, participant uuid.UUID, amount int64) {
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewParticipantAccountKey(participant),
		CreditAccount: ledger.NewExternalFundingKey(),
		Amount:        amount,
	})
}

func TestGenerator_OrderEscrow_InsufficientFunds(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)

	_, err := jg.GenerateOrderEscrow(uuid.New(), 1, "ref", 100, 1000)
	if err == nil {
		t.Error("expected pre-check failure for unfunded seller")
	}
}

func TestGenerator_OrderSettlement_Legs(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)

	seller := uuid.New()
	buyer := uuid.New()
	feeRecipient := uuid.New()

	depositInto(bt, seller, 100)
	depositInto(bt, buyer, 100)

	escrow, err := jg.GenerateOrderEscrow(seller, 1, "create", 100, 1000)
	if err != nil {
		t.Fatalf("escrow: %v", err)
	}
	if err := bt.ApplyBatch(escrow); err != nil {
		t.Fatalf("apply escrow: %v", err)
	}

	funding, err := jg.GenerateOrderFunding(buyer, 1, "fund", 100, 1001)
	if err != nil {
		t.Fatalf("funding: %v", err)
	}
	if err := bt.ApplyBatch(funding); err != nil {
		t.Fatalf("apply funding: %v", err)
	}

	// 2×amount pool held
	if held := bt.GetOrderEscrow(1); held != 200 {
		t.Fatalf("pool: got %d, want 200", held)
	}

	settlement, err := jg.GenerateOrderSettlement(1, seller, feeRecipient, 100, 2, "confirm", 1002)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if len(settlement.Journals) != 3 {
		t.Fatalf("expected 3 settlement legs, got %d", len(settlement.Journals))
	}
	if err := bt.ApplyBatch(settlement); err != nil {
		t.Fatalf("apply settlement: %v", err)
	}

	// Seller nets payment minus fee plus stake return
	if got := bt.GetAvailable(seller); got != 198 {
		t.Errorf("seller available: got %d, want 198", got)
	}
	if got := bt.GetAvailable(feeRecipient); got != 2 {
		t.Errorf("fee recipient available: got %d, want 2", got)
	}
	if held := bt.GetOrderEscrow(1); held != 0 {
		t.Errorf("pool should be empty, got %d", held)
	}
	if total := bt.ComputeGlobalBalance(); total != 0 {
		t.Errorf("global balance should be zero, got %d", total)
	}
}

func TestGenerator_OrderSettlement_ZeroFeeOmitsLeg(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)

	seller := uuid.New()
	buyer := uuid.New()
	depositInto(bt, seller, 50)
	depositInto(bt, buyer, 50)

	escrow, _ := jg.GenerateOrderEscrow(seller, 2, "create", 50, 1000)
	bt.ApplyBatch(escrow)
	funding, _ := jg.GenerateOrderFunding(buyer, 2, "fund", 50, 1001)
	bt.ApplyBatch(funding)

	settlement, err := jg.GenerateOrderSettlement(2, seller, uuid.New(), 50, 0, "confirm", 1002)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if len(settlement.Journals) != 2 {
		t.Errorf("zero fee should omit the fee leg: got %d legs", len(settlement.Journals))
	}
}

func TestGenerator_DisputeResolution_Legs(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)

	seller := uuid.New()
	buyer := uuid.New()
	feeRecipient := uuid.New()

	depositInto(bt, seller, 100)
	depositInto(bt, buyer, 110)

	escrow, _ := jg.GenerateOrderEscrow(seller, 9, "create", 100, 1000)
	bt.ApplyBatch(escrow)
	funding, _ := jg.GenerateOrderFunding(buyer, 9, "fund", 100, 1001)
	bt.ApplyBatch(funding)
	hold, _ := jg.GenerateDisputeFeeHold(buyer, 4, 10, "raise", 1002)
	bt.ApplyBatch(hold)

	// Buyer wins: pool 200, fee 5, dispute fee 10 refunded
	resolution, err := jg.GenerateDisputeResolution(9, 4, buyer, buyer, feeRecipient, 200, 5, 10, "resolve", 1003)
	if err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if len(resolution.Journals) != 3 {
		t.Fatalf("expected 3 resolution legs, got %d", len(resolution.Journals))
	}
	if err := bt.ApplyBatch(resolution); err != nil {
		t.Fatalf("apply resolution: %v", err)
	}

	// Buyer: 110 − 100 payment − 10 fee + 195 award + 10 refund = 205
	if got := bt.GetAvailable(buyer); got != 205 {
		t.Errorf("buyer available: got %d, want 205", got)
	}
	if got := bt.GetAvailable(feeRecipient); got != 5 {
		t.Errorf("fee recipient: got %d, want 5", got)
	}
	if held := bt.ComputeCustodyHeld(); held != 0 {
		t.Errorf("custody should be empty, got %d", held)
	}
}

func TestGenerator_DisputeResolution_PoolMismatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)

	// Nothing escrowed — claiming a 200 pool must fail
	_, err := jg.GenerateDisputeResolution(1, 1, uuid.New(), uuid.New(), uuid.New(), 200, 5, 10, "resolve", 1000)
	if err == nil {
		t.Error("expected pre-check failure for missing pool")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_CustodyConservation(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	// Empty ledger conserves trivially
	if err := v.ValidateCustodyConservation(0); err != nil {
		t.Errorf("empty ledger: %v", err)
	}

	seller := uuid.New()
	depositInto(bt, seller, 500)
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewOrderEscrowKey(1),
		CreditAccount: ledger.NewParticipantAccountKey(seller),
		Amount:        500,
	})

	if err := v.ValidateCustodyConservation(500); err != nil {
		t.Errorf("custody should match entity state: %v", err)
	}
	if err := v.ValidateCustodyConservation(400); err == nil {
		t.Error("expected conservation mismatch")
	}
}

func TestInvariantValidator_OrderEscrow(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateOrderEscrow(1, 0); err != nil {
		t.Errorf("untouched order escrow should be zero: %v", err)
	}
	if err := v.ValidateOrderEscrow(1, 100); err == nil {
		t.Error("expected mismatch for empty escrow")
	}
}

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	depositInto(bt, uuid.New(), 1_000_000)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}
