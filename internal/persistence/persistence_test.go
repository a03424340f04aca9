package persistence_test

import (
	"EscrowLedger/internal/core"
	"EscrowLedger/internal/event"
	"EscrowLedger/internal/ledger"
	"EscrowLedger/internal/observability"
	"EscrowLedger/internal/persistence"
	"EscrowLedger/internal/state"
	"EscrowLedger/internal/testutil"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustMigrate(t *testing.T, db *sql.DB) {
	t.Helper()
	logger := observability.NewLogger("test")
	if err := persistence.NewMigrator(db, "../../migrations", logger).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// ============================================================================
// Test: Snapshot Conversion (pure)
// ============================================================================

func testSnapshotState() *core.SnapshotState {
	seller := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	buyer := uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
	arbitrator := uuid.MustParse("770e8400-e29b-41d4-a716-446655440002")
	owner := uuid.MustParse("880e8400-e29b-41d4-a716-446655440003")
	feeRecipient := uuid.MustParse("990e8400-e29b-41d4-a716-446655440004")

	var stateHash [32]byte
	for i := range stateHash {
		stateHash[i] = byte(i)
	}

	disputeID := int64(3)

	return &core.SnapshotState{
		Sequence:  42,
		StateHash: stateHash,
		Balances: map[ledger.AccountKey]int64{
			ledger.NewParticipantAccountKey(seller): 10_000,
			ledger.NewParticipantAccountKey(buyer):  4_500,
			ledger.NewOrderEscrowKey(7):             2_000,
			ledger.NewDisputeFeeKey(3):              500,
			ledger.NewExternalFundingKey():          -17_000,
		},
		Orders: []*state.Order{
			{
				OrderID:     7,
				Seller:      seller,
				Buyer:       &buyer,
				Amount:      2_000,
				FeeBps:      250,
				Description: "vintage camera lens",
				Status:      state.OrderStatusDisputed,
				EscrowHeld:  2_000,
				DisputeID:   &disputeID,
				CreatedSeq:  10,
				UpdatedSeq:  30,
				Version:     3,
			},
		},
		Disputes: []*state.Dispute{
			{
				DisputeID:        3,
				OrderID:          7,
				Disputer:         buyer,
				Respondent:       seller,
				Reason:           "item not as described",
				Status:           state.DisputeStatusUnderReview,
				FeeHeld:          500,
				PriorOrderStatus: state.OrderStatusFunded,
				Winner:           event.WinnerNone,
				Evidence: []state.Evidence{
					{Submitter: buyer, Hash: "sha256:9f2ab0", Note: "photos", Sequence: 31, Timestamp: 1_700_000_100_000_000},
				},
				RaisedSeq: 30,
				Version:   2,
			},
		},
		Reputations: []*state.Reputation{
			{
				Participant:      seller,
				Score:            120,
				SuccessfulOrders: 12,
				FailedOrders:     1,
				TotalOrders:      13,
				IsVerified:       true,
				History: []state.ReputationEntry{
					{OldScore: 110, NewScore: 120, Delta: 10, Reason: "order_confirmed", Sequence: 28, Timestamp: 1_700_000_000_000_000},
				},
				Version: 13,
			},
		},
		Policy: &state.Policy{
			FeeBps:            250,
			FeeRecipient:      feeRecipient,
			DisputeFeeMinimum: 500,
			Owner:             owner,
			Arbitrators:       map[uuid.UUID]bool{arbitrator: true},
			Reputation:        state.DefaultReputationParams,
			Version:           2,
		},
		NextOrderID:     8,
		NextDisputeID:   4,
		SequenceState:   map[string]int64{"funds": 15, "orders": 12, "disputes": 6},
		IdempotencyKeys: []string{"Deposit:dep-1", "OrderCreate:ord-1"},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	original := testSnapshotState()

	snapData := persistence.SnapshotFromCore(original, time.Unix(1_700_000_200, 0).UTC())

	// Through the same JSON encoding storage uses.
	encoded, err := json.Marshal(snapData)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded persistence.SnapshotData
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored, err := decoded.ToCore()
	if err != nil {
		t.Fatalf("ToCore: %v", err)
	}

	if restored.Sequence != original.Sequence {
		t.Errorf("sequence: got %d, want %d", restored.Sequence, original.Sequence)
	}
	if restored.StateHash != original.StateHash {
		t.Errorf("state hash: got %x, want %x", restored.StateHash, original.StateHash)
	}

	if len(restored.Balances) != len(original.Balances) {
		t.Fatalf("balances: got %d entries, want %d", len(restored.Balances), len(original.Balances))
	}
	for key, want := range original.Balances {
		if got := restored.Balances[key]; got != want {
			t.Errorf("balance %s: got %d, want %d", key.AccountPath(), got, want)
		}
	}

	if len(restored.Orders) != 1 {
		t.Fatalf("orders: got %d, want 1", len(restored.Orders))
	}
	order := restored.Orders[0]
	wantOrder := original.Orders[0]
	if order.OrderID != wantOrder.OrderID || order.Status != wantOrder.Status || order.EscrowHeld != wantOrder.EscrowHeld {
		t.Errorf("order mismatch: got %+v, want %+v", order, wantOrder)
	}
	if order.Buyer == nil || *order.Buyer != *wantOrder.Buyer {
		t.Error("order buyer not preserved")
	}
	if order.DisputeID == nil || *order.DisputeID != *wantOrder.DisputeID {
		t.Error("order dispute link not preserved")
	}

	if len(restored.Disputes) != 1 {
		t.Fatalf("disputes: got %d, want 1", len(restored.Disputes))
	}
	dispute := restored.Disputes[0]
	wantDispute := original.Disputes[0]
	if dispute.Status != wantDispute.Status || dispute.FeeHeld != wantDispute.FeeHeld {
		t.Errorf("dispute mismatch: got %+v, want %+v", dispute, wantDispute)
	}
	if dispute.PriorOrderStatus != state.OrderStatusFunded {
		t.Errorf("prior order status: got %v, want %v", dispute.PriorOrderStatus, state.OrderStatusFunded)
	}
	if len(dispute.Evidence) != 1 || dispute.Evidence[0].Hash != "sha256:9f2ab0" {
		t.Errorf("evidence not preserved: %+v", dispute.Evidence)
	}

	if len(restored.Reputations) != 1 {
		t.Fatalf("reputations: got %d, want 1", len(restored.Reputations))
	}
	rep := restored.Reputations[0]
	if rep.Score != 120 || !rep.IsVerified || len(rep.History) != 1 {
		t.Errorf("reputation mismatch: %+v", rep)
	}

	if restored.Policy == nil {
		t.Fatal("policy missing after round trip")
	}
	if restored.Policy.FeeBps != 250 || restored.Policy.Version != 2 {
		t.Errorf("policy mismatch: %+v", restored.Policy)
	}
	if restored.Policy.Arbitrators[original.Policy.Owner] {
		t.Error("owner should not be an arbitrator")
	}
	if len(restored.Policy.Arbitrators) != 1 {
		t.Errorf("arbitrators: got %d, want 1", len(restored.Policy.Arbitrators))
	}
	if restored.Policy.Reputation != state.DefaultReputationParams {
		t.Errorf("reputation params mismatch: %+v", restored.Policy.Reputation)
	}

	if restored.NextOrderID != 8 || restored.NextDisputeID != 4 {
		t.Errorf("id counters: got (%d, %d), want (8, 4)", restored.NextOrderID, restored.NextDisputeID)
	}
	if restored.SequenceState["orders"] != 12 {
		t.Errorf("sequence state: got %d, want 12", restored.SequenceState["orders"])
	}
	if len(restored.IdempotencyKeys) != 2 {
		t.Errorf("idempotency keys: got %d, want 2", len(restored.IdempotencyKeys))
	}
}

func TestSnapshotToCore_RejectsBadStateHash(t *testing.T) {
	snap := &persistence.SnapshotData{
		Sequence:  1,
		StateHash: []byte{0x01, 0x02, 0x03},
	}
	if _, err := snap.ToCore(); err == nil {
		t.Fatal("expected error for truncated state hash")
	}
}

func TestSnapshotToCore_RejectsBadAccountPath(t *testing.T) {
	hash := make([]byte, 32)
	snap := &persistence.SnapshotData{
		Sequence:  1,
		StateHash: hash,
		Balances:  map[string]int64{"participant:not-a-uuid:available": 100},
	}
	if _, err := snap.ToCore(); err == nil {
		t.Fatal("expected error for malformed account path")
	}
}

// ============================================================================
// Test: Event Log Writer (integration)
// ============================================================================

func testEventRow(seq int64) persistence.EventRow {
	var stateHash, prevHash [32]byte
	stateHash[0] = byte(seq + 1)
	prevHash[0] = byte(seq)

	return persistence.EventRow{
		Sequence:       seq,
		EventType:      "Deposit",
		IdempotencyKey: fmt.Sprintf("dep-%d", seq),
		Stream:         event.StreamFunds,
		Payload:        []byte(fmt.Sprintf(`{"amount": %d}`, (seq+1)*100)),
		StateHash:      stateHash[:],
		PrevHash:       prevHash[:],
		Timestamp:      time.Unix(1_700_000_000+seq, 0).UTC(),
		SourceSequence: seq + 1,
	}
}

func writeBatch(t *testing.T, db *sql.DB, writer *persistence.EventLogWriter, events []persistence.EventRow, journals []persistence.JournalRow) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, events); err != nil {
		tx.Rollback()
		t.Fatalf("write events: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		tx.Rollback()
		t.Fatalf("write journals: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestEventLogWriter_BatchInsertIdempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	mustMigrate(t, db)

	writer := persistence.NewEventLogWriter(db)

	events := []persistence.EventRow{testEventRow(0), testEventRow(1), testEventRow(2)}
	journals := []persistence.JournalRow{
		{
			JournalID:     uuid.New().String(),
			BatchID:       uuid.New().String(),
			EventRef:      "dep-0",
			Sequence:      0,
			DebitAccount:  ledger.NewParticipantAccountKey(uuid.New()).AccountPath(),
			CreditAccount: ledger.NewExternalFundingKey().AccountPath(),
			Amount:        100,
			JournalType:   0,
			Timestamp:     1_700_000_000_000_000,
		},
	}

	writeBatch(t, db, writer, events, journals)

	// Redelivered batch: every row conflicts, nothing changes.
	writeBatch(t, db, writer, events, journals)

	var eventCount, journalCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM event_log.events`).Scan(&eventCount); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM event_log.journals`).Scan(&journalCount); err != nil {
		t.Fatalf("count journals: %v", err)
	}

	if eventCount != 3 {
		t.Errorf("events: got %d rows, want 3", eventCount)
	}
	if journalCount != 1 {
		t.Errorf("journals: got %d rows, want 1", journalCount)
	}
}

func TestEventLog_PagingAndLatestSequence(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	mustMigrate(t, db)

	ctx := context.Background()
	writer := persistence.NewEventLogWriter(db)
	snapMgr := persistence.NewSnapshotManager(db, nil)

	var events []persistence.EventRow
	for seq := int64(0); seq < 5; seq++ {
		events = append(events, testEventRow(seq))
	}
	writeBatch(t, db, writer, events, nil)

	page, err := snapMgr.LoadEventsFrom(ctx, 0, 3)
	if err != nil {
		t.Fatalf("load first page: %v", err)
	}
	if len(page) != 3 || page[0].Sequence != 0 || page[2].Sequence != 2 {
		t.Fatalf("first page wrong: %+v", page)
	}
	if !bytes.Equal(page[1].Payload, []byte(`{"amount": 200}`)) {
		t.Errorf("payload not preserved: %s", page[1].Payload)
	}
	if page[1].Stream != event.StreamFunds {
		t.Errorf("stream: got %q, want %q", page[1].Stream, event.StreamFunds)
	}

	page, err = snapMgr.LoadEventsFrom(ctx, 3, 3)
	if err != nil {
		t.Fatalf("load second page: %v", err)
	}
	if len(page) != 2 || page[0].Sequence != 3 || page[1].Sequence != 4 {
		t.Fatalf("second page wrong: %+v", page)
	}

	latest, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if latest != 4 {
		t.Errorf("latest sequence: got %d, want 4", latest)
	}
}

// ============================================================================
// Test: DB Idempotency Checker (integration)
// ============================================================================

func TestPostgresIdempotencyChecker(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	mustMigrate(t, db)

	writer := persistence.NewEventLogWriter(db)
	writeBatch(t, db, writer, []persistence.EventRow{testEventRow(0)}, nil)

	checker := persistence.NewPostgresIdempotencyChecker(db)

	dup, err := checker.IsDuplicate("Deposit", "dep-0")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("existing key should be a duplicate")
	}

	dup, err = checker.IsDuplicate("Deposit", "dep-999")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("unknown key should not be a duplicate")
	}

	// Same key under a different command type is a different identity.
	dup, err = checker.IsDuplicate("Withdraw", "dep-0")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("key should be scoped by event type")
	}
}

// ============================================================================
// Test: Snapshot Manager (integration)
// ============================================================================

func TestSnapshotManager_VerifiedOnlyRestore(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	mustMigrate(t, db)

	ctx := context.Background()
	snapMgr := persistence.NewSnapshotManager(db, nil)

	first := persistence.SnapshotFromCore(testSnapshotState(), time.Now().UTC())
	first.Sequence = 10

	if err := snapMgr.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// Unverified snapshots must never be restored.
	loaded, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if loaded != nil {
		t.Fatal("unverified snapshot was returned")
	}

	if err := snapMgr.MarkVerified(ctx, 10); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	loaded, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if loaded == nil || loaded.Sequence != 10 {
		t.Fatalf("verified snapshot not returned: %+v", loaded)
	}

	// A newer unverified snapshot must not shadow the verified one.
	second := persistence.SnapshotFromCore(testSnapshotState(), time.Now().UTC())
	second.Sequence = 20
	if err := snapMgr.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("save second snapshot: %v", err)
	}

	loaded, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if loaded == nil || loaded.Sequence != 10 {
		t.Fatalf("expected sequence 10, got %+v", loaded)
	}

	if err := snapMgr.MarkVerified(ctx, 20); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	loaded, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if loaded == nil || loaded.Sequence != 20 {
		t.Fatalf("expected sequence 20, got %+v", loaded)
	}

	// The restored snapshot converts back into engine state.
	restored, err := loaded.ToCore()
	if err != nil {
		t.Fatalf("ToCore: %v", err)
	}
	if len(restored.Orders) != 1 || restored.Orders[0].OrderID != 7 {
		t.Errorf("restored orders wrong: %+v", restored.Orders)
	}
}

// ============================================================================
// Test: Persistence Worker (integration)
// ============================================================================

func TestPersistenceWorker_FlushesAllOnClose(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	mustMigrate(t, db)

	input := make(chan persistence.Record, 64)
	worker := persistence.NewPersistenceWorker(db, input, 4, 5*time.Millisecond, observability.NewLogger("test"), nil)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(context.Background())
	}()

	// 10 events with a batch size of 4: two full batches plus a remainder
	// that the close path must land if the timer has not.
	for seq := int64(0); seq < 10; seq++ {
		input <- persistence.Record{EventRow: testEventRow(seq)}
	}
	close(input)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit after channel close")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM event_log.events`).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 10 {
		t.Errorf("events: got %d rows, want 10", count)
	}
}
