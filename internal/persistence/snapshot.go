package persistence

import (
	"EscrowLedger/internal/core"
	"EscrowLedger/internal/event"
	"EscrowLedger/internal/ledger"
	"EscrowLedger/internal/observability"
	"EscrowLedger/internal/state"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// A snapshot captures everything the engine holds in memory: balances,
// orders, disputes, reputations, policy, sequence counters, recent
// idempotency keys, and the state hash chain tip.
type SnapshotManager struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// SnapshotData is the JSON-serializable form of core.SnapshotState.
// Account keys are stored as account paths, enums as raw values.
type SnapshotData struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	Balances        map[string]int64 `json:"balances"` // AccountPath -> balance
	Orders          []OrderSnap      `json:"orders"`
	Disputes        []DisputeSnap    `json:"disputes"`
	Reputations     []ReputationSnap `json:"reputations"`
	Policy          *PolicySnap      `json:"policy"`
	NextOrderID     int64            `json:"next_order_id"`
	NextDisputeID   int64            `json:"next_dispute_id"`
	SequenceState   map[string]int64 `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string         `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time        `json:"created_at"`
}

// OrderSnap is a serializable order.
type OrderSnap struct {
	OrderID     int64      `json:"order_id"`
	Seller      uuid.UUID  `json:"seller"`
	Buyer       *uuid.UUID `json:"buyer,omitempty"`
	Amount      int64      `json:"amount"`
	FeeBps      int64      `json:"fee_bps"`
	Description string     `json:"description"`
	Status      int32      `json:"status"`
	EscrowHeld  int64      `json:"escrow_held"`
	DisputeID   *int64     `json:"dispute_id,omitempty"`
	CreatedSeq  int64      `json:"created_seq"`
	UpdatedSeq  int64      `json:"updated_seq"`
	Version     int64      `json:"version"`
}

// DisputeSnap is a serializable dispute including its evidence trail.
type DisputeSnap struct {
	DisputeID        int64          `json:"dispute_id"`
	OrderID          int64          `json:"order_id"`
	Disputer         uuid.UUID      `json:"disputer"`
	Respondent       uuid.UUID      `json:"respondent"`
	Reason           string         `json:"reason"`
	Status           int32          `json:"status"`
	FeeHeld          int64          `json:"fee_held"`
	PriorOrderStatus int32          `json:"prior_order_status"`
	Winner           int32          `json:"winner"`
	Resolution       string         `json:"resolution,omitempty"`
	Evidence         []EvidenceSnap `json:"evidence"`
	RaisedSeq        int64          `json:"raised_seq"`
	ClosedSeq        int64          `json:"closed_seq"`
	Version          int64          `json:"version"`
}

// EvidenceSnap is one serializable evidence entry.
type EvidenceSnap struct {
	Submitter uuid.UUID `json:"submitter"`
	Hash      string    `json:"hash"`
	Note      string    `json:"note,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

// ReputationSnap is a serializable reputation record with its history.
type ReputationSnap struct {
	Participant      uuid.UUID             `json:"participant"`
	Score            int64                 `json:"score"`
	SuccessfulOrders int64                 `json:"successful_orders"`
	FailedOrders     int64                 `json:"failed_orders"`
	TotalOrders      int64                 `json:"total_orders"`
	IsVerified       bool                  `json:"is_verified"`
	History          []ReputationEntrySnap `json:"history"`
	Version          int64                 `json:"version"`
}

// ReputationEntrySnap is one serializable score change record.
type ReputationEntrySnap struct {
	OldScore  int64  `json:"old_score"`
	NewScore  int64  `json:"new_score"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// PolicySnap is the serializable settlement policy.
type PolicySnap struct {
	FeeBps            int64                `json:"fee_bps"`
	FeeRecipient      uuid.UUID            `json:"fee_recipient"`
	DisputeFeeMinimum int64                `json:"dispute_fee_minimum"`
	Owner             uuid.UUID            `json:"owner"`
	Arbitrators       []uuid.UUID          `json:"arbitrators"`
	Reputation        ReputationParamsSnap `json:"reputation"`
	Version           int64                `json:"version"`
}

// ReputationParamsSnap is the serializable reputation tuning.
type ReputationParamsSnap struct {
	StartScore            int64 `json:"start_score"`
	MinScore              int64 `json:"min_score"`
	MaxScore              int64 `json:"max_score"`
	SuccessDelta          int64 `json:"success_delta"`
	FailureDelta          int64 `json:"failure_delta"`
	EligibilityThreshold  int64 `json:"eligibility_threshold"`
	VerificationThreshold int64 `json:"verification_threshold"`
}

func NewSnapshotManager(db *sql.DB, metrics *observability.Metrics) *SnapshotManager {
	return &SnapshotManager{db: db, metrics: metrics}
}

// SnapshotFromCore converts engine state into the storable form.
func SnapshotFromCore(cs *core.SnapshotState, createdAt time.Time) *SnapshotData {
	balances := make(map[string]int64, len(cs.Balances))
	for key, balance := range cs.Balances {
		balances[key.AccountPath()] = balance
	}

	orders := make([]OrderSnap, 0, len(cs.Orders))
	for _, o := range cs.Orders {
		orders = append(orders, OrderSnap{
			OrderID:     o.OrderID,
			Seller:      o.Seller,
			Buyer:       o.Buyer,
			Amount:      o.Amount,
			FeeBps:      o.FeeBps,
			Description: o.Description,
			Status:      int32(o.Status),
			EscrowHeld:  o.EscrowHeld,
			DisputeID:   o.DisputeID,
			CreatedSeq:  o.CreatedSeq,
			UpdatedSeq:  o.UpdatedSeq,
			Version:     o.Version,
		})
	}

	disputes := make([]DisputeSnap, 0, len(cs.Disputes))
	for _, d := range cs.Disputes {
		evidence := make([]EvidenceSnap, 0, len(d.Evidence))
		for _, ev := range d.Evidence {
			evidence = append(evidence, EvidenceSnap{
				Submitter: ev.Submitter,
				Hash:      ev.Hash,
				Note:      ev.Note,
				Sequence:  ev.Sequence,
				Timestamp: ev.Timestamp,
			})
		}
		disputes = append(disputes, DisputeSnap{
			DisputeID:        d.DisputeID,
			OrderID:          d.OrderID,
			Disputer:         d.Disputer,
			Respondent:       d.Respondent,
			Reason:           d.Reason,
			Status:           int32(d.Status),
			FeeHeld:          d.FeeHeld,
			PriorOrderStatus: int32(d.PriorOrderStatus),
			Winner:           int32(d.Winner),
			Resolution:       d.Resolution,
			Evidence:         evidence,
			RaisedSeq:        d.RaisedSeq,
			ClosedSeq:        d.ClosedSeq,
			Version:          d.Version,
		})
	}

	reputations := make([]ReputationSnap, 0, len(cs.Reputations))
	for _, r := range cs.Reputations {
		history := make([]ReputationEntrySnap, 0, len(r.History))
		for _, entry := range r.History {
			history = append(history, ReputationEntrySnap{
				OldScore:  entry.OldScore,
				NewScore:  entry.NewScore,
				Delta:     entry.Delta,
				Reason:    entry.Reason,
				Sequence:  entry.Sequence,
				Timestamp: entry.Timestamp,
			})
		}
		reputations = append(reputations, ReputationSnap{
			Participant:      r.Participant,
			Score:            r.Score,
			SuccessfulOrders: r.SuccessfulOrders,
			FailedOrders:     r.FailedOrders,
			TotalOrders:      r.TotalOrders,
			IsVerified:       r.IsVerified,
			History:          history,
			Version:          r.Version,
		})
	}

	var policy *PolicySnap
	if cs.Policy != nil {
		arbitrators := make([]uuid.UUID, 0, len(cs.Policy.Arbitrators))
		for id := range cs.Policy.Arbitrators {
			arbitrators = append(arbitrators, id)
		}
		rp := cs.Policy.Reputation
		policy = &PolicySnap{
			FeeBps:            cs.Policy.FeeBps,
			FeeRecipient:      cs.Policy.FeeRecipient,
			DisputeFeeMinimum: cs.Policy.DisputeFeeMinimum,
			Owner:             cs.Policy.Owner,
			Arbitrators:       arbitrators,
			Reputation: ReputationParamsSnap{
				StartScore:            rp.StartScore,
				MinScore:              rp.MinScore,
				MaxScore:              rp.MaxScore,
				SuccessDelta:          rp.SuccessDelta,
				FailureDelta:          rp.FailureDelta,
				EligibilityThreshold:  rp.EligibilityThreshold,
				VerificationThreshold: rp.VerificationThreshold,
			},
			Version: cs.Policy.Version,
		}
	}

	stateHash := make([]byte, len(cs.StateHash))
	copy(stateHash, cs.StateHash[:])

	return &SnapshotData{
		Sequence:        cs.Sequence,
		StateHash:       stateHash,
		Balances:        balances,
		Orders:          orders,
		Disputes:        disputes,
		Reputations:     reputations,
		Policy:          policy,
		NextOrderID:     cs.NextOrderID,
		NextDisputeID:   cs.NextDisputeID,
		SequenceState:   cs.SequenceState,
		IdempotencyKeys: cs.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
}

// ToCore converts a stored snapshot back into engine state.
func (sd *SnapshotData) ToCore() (*core.SnapshotState, error) {
	if len(sd.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot state hash has %d bytes, want 32", len(sd.StateHash))
	}

	balances := make(map[ledger.AccountKey]int64, len(sd.Balances))
	for path, balance := range sd.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("restore balances: %w", err)
		}
		balances[key] = balance
	}

	orders := make([]*state.Order, 0, len(sd.Orders))
	for _, o := range sd.Orders {
		orders = append(orders, &state.Order{
			OrderID:     o.OrderID,
			Seller:      o.Seller,
			Buyer:       o.Buyer,
			Amount:      o.Amount,
			FeeBps:      o.FeeBps,
			Description: o.Description,
			Status:      state.OrderStatus(o.Status),
			EscrowHeld:  o.EscrowHeld,
			DisputeID:   o.DisputeID,
			CreatedSeq:  o.CreatedSeq,
			UpdatedSeq:  o.UpdatedSeq,
			Version:     o.Version,
		})
	}

	disputes := make([]*state.Dispute, 0, len(sd.Disputes))
	for _, d := range sd.Disputes {
		evidence := make([]state.Evidence, 0, len(d.Evidence))
		for _, ev := range d.Evidence {
			evidence = append(evidence, state.Evidence{
				Submitter: ev.Submitter,
				Hash:      ev.Hash,
				Note:      ev.Note,
				Sequence:  ev.Sequence,
				Timestamp: ev.Timestamp,
			})
		}
		disputes = append(disputes, &state.Dispute{
			DisputeID:        d.DisputeID,
			OrderID:          d.OrderID,
			Disputer:         d.Disputer,
			Respondent:       d.Respondent,
			Reason:           d.Reason,
			Status:           state.DisputeStatus(d.Status),
			FeeHeld:          d.FeeHeld,
			PriorOrderStatus: state.OrderStatus(d.PriorOrderStatus),
			Winner:           event.Winner(d.Winner),
			Resolution:       d.Resolution,
			Evidence:         evidence,
			RaisedSeq:        d.RaisedSeq,
			ClosedSeq:        d.ClosedSeq,
			Version:          d.Version,
		})
	}

	reputations := make([]*state.Reputation, 0, len(sd.Reputations))
	for _, r := range sd.Reputations {
		history := make([]state.ReputationEntry, 0, len(r.History))
		for _, entry := range r.History {
			history = append(history, state.ReputationEntry{
				OldScore:  entry.OldScore,
				NewScore:  entry.NewScore,
				Delta:     entry.Delta,
				Reason:    entry.Reason,
				Sequence:  entry.Sequence,
				Timestamp: entry.Timestamp,
			})
		}
		reputations = append(reputations, &state.Reputation{
			Participant:      r.Participant,
			Score:            r.Score,
			SuccessfulOrders: r.SuccessfulOrders,
			FailedOrders:     r.FailedOrders,
			TotalOrders:      r.TotalOrders,
			IsVerified:       r.IsVerified,
			History:          history,
			Version:          r.Version,
		})
	}

	var policy *state.Policy
	if sd.Policy != nil {
		arbitrators := make(map[uuid.UUID]bool, len(sd.Policy.Arbitrators))
		for _, id := range sd.Policy.Arbitrators {
			arbitrators[id] = true
		}
		rp := sd.Policy.Reputation
		policy = &state.Policy{
			FeeBps:            sd.Policy.FeeBps,
			FeeRecipient:      sd.Policy.FeeRecipient,
			DisputeFeeMinimum: sd.Policy.DisputeFeeMinimum,
			Owner:             sd.Policy.Owner,
			Arbitrators:       arbitrators,
			Reputation: state.ReputationParams{
				StartScore:            rp.StartScore,
				MinScore:              rp.MinScore,
				MaxScore:              rp.MaxScore,
				SuccessDelta:          rp.SuccessDelta,
				FailureDelta:          rp.FailureDelta,
				EligibilityThreshold:  rp.EligibilityThreshold,
				VerificationThreshold: rp.VerificationThreshold,
			},
			Version: sd.Policy.Version,
		}
	}

	var stateHash [32]byte
	copy(stateHash[:], sd.StateHash)

	return &core.SnapshotState{
		Sequence:        sd.Sequence,
		StateHash:       stateHash,
		Balances:        balances,
		Orders:          orders,
		Disputes:        disputes,
		Reputations:     reputations,
		Policy:          policy,
		NextOrderID:     sd.NextOrderID,
		NextDisputeID:   sd.NextDisputeID,
		SequenceState:   sd.SequenceState,
		IdempotencyKeys: sd.IdempotencyKeys,
	}, nil
}

// SaveSnapshot persists a snapshot, initially unverified. The caller marks
// it verified once the post-save integrity check passes, so a restart never
// restores from a half-written snapshot.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	start := time.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	// An overwrite drops verified until the caller re-verifies, so a crash
	// mid-save can never leave stale data marked restorable.
	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = FALSE
	`, snapshotID, snap.Sequence, string(data), snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)
	if err != nil {
		return err
	}

	if sm.metrics != nil {
		sm.metrics.SnapshotTaken.Inc()
		sm.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		sm.metrics.SnapshotSizeBytes.Set(float64(sizeBytes))
		sm.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}

	return nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on
// a cold start. Warm restart restores it and replays events after it.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot, cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after its integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads a page of events starting at fromSequence, for
// replay on warm restart (from snapshot) or cold restart (from zero).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, stream, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Stream,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
