package ingestion

import (
	"EscrowLedger/internal/event"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParseEventType maps a stored event type discriminator back to its enum
// value. Inverse of event.EventType.String(); the event log stores the
// string form.
func ParseEventType(s string) (event.EventType, error) {
	switch s {
	case "Deposit":
		return event.EventTypeDeposit, nil
	case "Withdraw":
		return event.EventTypeWithdraw, nil
	case "OrderCreate":
		return event.EventTypeOrderCreate, nil
	case "OrderFund":
		return event.EventTypeOrderFund, nil
	case "OrderConfirm":
		return event.EventTypeOrderConfirm, nil
	case "OrderCancel":
		return event.EventTypeOrderCancel, nil
	case "DisputeRaise":
		return event.EventTypeDisputeRaise, nil
	case "EvidenceSubmit":
		return event.EventTypeEvidenceSubmit, nil
	case "DisputeReview":
		return event.EventTypeDisputeReview, nil
	case "DisputeResolve":
		return event.EventTypeDisputeResolve, nil
	case "DisputeCancel":
		return event.EventTypeDisputeCancel, nil
	case "PolicyUpdate":
		return event.EventTypePolicyUpdate, nil
	case "ArbitratorUpdate":
		return event.EventTypeArbitratorUpdate, nil
	case "VerificationSet":
		return event.EventTypeVerificationSet, nil
	default:
		return event.EventTypeUnknown, fmt.Errorf("unknown event type: %q", s)
	}
}

// subjectCommands maps the group.action tokens of a command subject to the
// event type. Subjects follow escrow.commands.{group}.{action} with optional
// trailing tokens for upstream partitioning.
var subjectCommands = map[string]event.EventType{
	"funds.deposit":      event.EventTypeDeposit,
	"funds.withdraw":     event.EventTypeWithdraw,
	"orders.create":      event.EventTypeOrderCreate,
	"orders.fund":        event.EventTypeOrderFund,
	"orders.confirm":     event.EventTypeOrderConfirm,
	"orders.cancel":      event.EventTypeOrderCancel,
	"disputes.raise":     event.EventTypeDisputeRaise,
	"disputes.evidence":  event.EventTypeEvidenceSubmit,
	"disputes.review":    event.EventTypeDisputeReview,
	"disputes.resolve":   event.EventTypeDisputeResolve,
	"disputes.cancel":    event.EventTypeDisputeCancel,
	"admin.policy":       event.EventTypePolicyUpdate,
	"admin.arbitrator":   event.EventTypeArbitratorUpdate,
	"admin.verification": event.EventTypeVerificationSet,
}

// EventTypeForSubject resolves the command type encoded in a NATS subject.
func EventTypeForSubject(subject string) (event.EventType, error) {
	tokens := strings.Split(subject, ".")
	if len(tokens) < 4 || tokens[0] != "escrow" || tokens[1] != "commands" {
		return event.EventTypeUnknown, fmt.Errorf("unrecognized command subject: %q", subject)
	}
	et, ok := subjectCommands[tokens[2]+"."+tokens[3]]
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("unrecognized command subject: %q", subject)
	}
	return et, nil
}

// ParseRawEvent converts wire JSON into a typed command. The same codec
// decodes inbound NATS payloads and event log rows during replay.
func ParseRawEvent(eventType event.EventType, data []byte) (event.Event, error) {
	switch eventType {
	case event.EventTypeDeposit:
		return parseDeposit(data)
	case event.EventTypeWithdraw:
		return parseWithdraw(data)
	case event.EventTypeOrderCreate:
		return parseOrderCreate(data)
	case event.EventTypeOrderFund:
		return parseOrderFund(data)
	case event.EventTypeOrderConfirm:
		return parseOrderConfirm(data)
	case event.EventTypeOrderCancel:
		return parseOrderCancel(data)
	case event.EventTypeDisputeRaise:
		return parseDisputeRaise(data)
	case event.EventTypeEvidenceSubmit:
		return parseEvidenceSubmit(data)
	case event.EventTypeDisputeReview:
		return parseDisputeReview(data)
	case event.EventTypeDisputeResolve:
		return parseDisputeResolve(data)
	case event.EventTypeDisputeCancel:
		return parseDisputeCancel(data)
	case event.EventTypePolicyUpdate:
		return parsePolicyUpdate(data)
	case event.EventTypeArbitratorUpdate:
		return parseArbitratorUpdate(data)
	case event.EventTypeVerificationSet:
		return parseVerificationSet(data)
	default:
		return nil, fmt.Errorf("unknown event type: %v", eventType)
	}
}

// MarshalEvent renders a typed command to its wire JSON. The event log
// stores this form; replay feeds it back through ParseRawEvent.
func MarshalEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		return json.Marshal(transferJSON{
			TransferID:  e.TransferID.String(),
			Participant: e.Participant.String(),
			Amount:      e.Amount,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.Withdraw:
		return json.Marshal(transferJSON{
			TransferID:  e.TransferID.String(),
			Participant: e.Participant.String(),
			Amount:      e.Amount,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.OrderCreate:
		return json.Marshal(orderCreateJSON{
			CommandID:   e.CommandID.String(),
			Seller:      e.Seller.String(),
			Amount:      e.Amount,
			Description: e.Description,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.OrderFund:
		return json.Marshal(orderFundJSON{
			CommandID:   e.CommandID.String(),
			OrderID:     e.OrderID,
			Buyer:       e.Buyer.String(),
			Payment:     e.Payment,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.OrderConfirm:
		return json.Marshal(orderActionJSON{
			CommandID:   e.CommandID.String(),
			OrderID:     e.OrderID,
			Caller:      e.Caller.String(),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.OrderCancel:
		return json.Marshal(orderActionJSON{
			CommandID:   e.CommandID.String(),
			OrderID:     e.OrderID,
			Caller:      e.Caller.String(),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.DisputeRaise:
		return json.Marshal(disputeRaiseJSON{
			CommandID:    e.CommandID.String(),
			OrderID:      e.OrderID,
			Disputer:     e.Disputer.String(),
			Reason:       e.Reason,
			EvidenceHash: e.EvidenceHash,
			Fee:          e.Fee,
			Sequence:     e.Sequence,
			TimestampUs:  e.Timestamp.UnixMicro(),
		})
	case *event.EvidenceSubmit:
		return json.Marshal(evidenceSubmitJSON{
			CommandID:    e.CommandID.String(),
			DisputeID:    e.DisputeID,
			Caller:       e.Caller.String(),
			EvidenceHash: e.EvidenceHash,
			Note:         e.Note,
			Sequence:     e.Sequence,
			TimestampUs:  e.Timestamp.UnixMicro(),
		})
	case *event.DisputeReview:
		return json.Marshal(disputeReviewJSON{
			CommandID:   e.CommandID.String(),
			DisputeID:   e.DisputeID,
			Arbitrator:  e.Arbitrator.String(),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.DisputeResolve:
		return json.Marshal(disputeResolveJSON{
			CommandID:   e.CommandID.String(),
			DisputeID:   e.DisputeID,
			Arbitrator:  e.Arbitrator.String(),
			Winner:      winnerWire(e.Winner),
			Resolution:  e.Resolution,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.DisputeCancel:
		return json.Marshal(disputeCancelJSON{
			CommandID:   e.CommandID.String(),
			DisputeID:   e.DisputeID,
			Caller:      e.Caller.String(),
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.PolicyUpdate:
		return json.Marshal(policyUpdateJSON{
			CommandID:         e.CommandID.String(),
			Caller:            e.Caller.String(),
			FeeBps:            e.FeeBps,
			DisputeFeeMinimum: e.DisputeFeeMinimum,
			FeeRecipient:      e.FeeRecipient.String(),
			Sequence:          e.Sequence,
			TimestampUs:       e.Timestamp.UnixMicro(),
		})
	case *event.ArbitratorUpdate:
		return json.Marshal(arbitratorUpdateJSON{
			CommandID:   e.CommandID.String(),
			Caller:      e.Caller.String(),
			Arbitrator:  e.Arbitrator.String(),
			Granted:     e.Granted,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	case *event.VerificationSet:
		return json.Marshal(verificationSetJSON{
			CommandID:   e.CommandID.String(),
			Caller:      e.Caller.String(),
			Participant: e.Participant.String(),
			Verified:    e.Verified,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp.UnixMicro(),
		})
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS and stored in
// the event log. Field names use snake_case to match upstream producers.

type transferJSON struct {
	TransferID  string `json:"transfer_id"`
	Participant string `json:"participant_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant_id: %w", err)
	}
	return &event.Deposit{
		TransferID:  transferID,
		Participant: participant,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdraw(data []byte) (*event.Withdraw, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant_id: %w", err)
	}
	return &event.Withdraw{
		TransferID:  transferID,
		Participant: participant,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type orderCreateJSON struct {
	CommandID   string `json:"command_id"`
	Seller      string `json:"seller_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOrderCreate(data []byte) (*event.OrderCreate, error) {
	var j orderCreateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderCreate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	seller, err := uuid.Parse(j.Seller)
	if err != nil {
		return nil, fmt.Errorf("parse seller_id: %w", err)
	}
	return &event.OrderCreate{
		CommandID:   commandID,
		Seller:      seller,
		Amount:      j.Amount,
		Description: j.Description,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type orderFundJSON struct {
	CommandID   string `json:"command_id"`
	OrderID     int64  `json:"order_id"`
	Buyer       string `json:"buyer_id"`
	Payment     int64  `json:"payment"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOrderFund(data []byte) (*event.OrderFund, error) {
	var j orderFundJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderFund: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer_id: %w", err)
	}
	return &event.OrderFund{
		CommandID: commandID,
		OrderID:   j.OrderID,
		Buyer:     buyer,
		Payment:   j.Payment,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

// orderActionJSON covers OrderConfirm and OrderCancel: both carry only the
// order reference and the caller.
type orderActionJSON struct {
	CommandID   string `json:"command_id"`
	OrderID     int64  `json:"order_id"`
	Caller      string `json:"caller_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOrderConfirm(data []byte) (*event.OrderConfirm, error) {
	var j orderActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderConfirm: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.OrderConfirm{
		CommandID: commandID,
		OrderID:   j.OrderID,
		Caller:    caller,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseOrderCancel(data []byte) (*event.OrderCancel, error) {
	var j orderActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderCancel: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.OrderCancel{
		CommandID: commandID,
		OrderID:   j.OrderID,
		Caller:    caller,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type disputeRaiseJSON struct {
	CommandID    string `json:"command_id"`
	OrderID      int64  `json:"order_id"`
	Disputer     string `json:"disputer_id"`
	Reason       string `json:"reason"`
	EvidenceHash string `json:"evidence_hash"`
	Fee          int64  `json:"fee"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseDisputeRaise(data []byte) (*event.DisputeRaise, error) {
	var j disputeRaiseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DisputeRaise: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	disputer, err := uuid.Parse(j.Disputer)
	if err != nil {
		return nil, fmt.Errorf("parse disputer_id: %w", err)
	}
	return &event.DisputeRaise{
		CommandID:    commandID,
		OrderID:      j.OrderID,
		Disputer:     disputer,
		Reason:       j.Reason,
		EvidenceHash: j.EvidenceHash,
		Fee:          j.Fee,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type evidenceSubmitJSON struct {
	CommandID    string `json:"command_id"`
	DisputeID    int64  `json:"dispute_id"`
	Caller       string `json:"caller_id"`
	EvidenceHash string `json:"evidence_hash"`
	Note         string `json:"note"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseEvidenceSubmit(data []byte) (*event.EvidenceSubmit, error) {
	var j evidenceSubmitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse EvidenceSubmit: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.EvidenceSubmit{
		CommandID:    commandID,
		DisputeID:    j.DisputeID,
		Caller:       caller,
		EvidenceHash: j.EvidenceHash,
		Note:         j.Note,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type disputeReviewJSON struct {
	CommandID   string `json:"command_id"`
	DisputeID   int64  `json:"dispute_id"`
	Arbitrator  string `json:"arbitrator_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDisputeReview(data []byte) (*event.DisputeReview, error) {
	var j disputeReviewJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DisputeReview: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	arbitrator, err := uuid.Parse(j.Arbitrator)
	if err != nil {
		return nil, fmt.Errorf("parse arbitrator_id: %w", err)
	}
	return &event.DisputeReview{
		CommandID:  commandID,
		DisputeID:  j.DisputeID,
		Arbitrator: arbitrator,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type disputeResolveJSON struct {
	CommandID   string `json:"command_id"`
	DisputeID   int64  `json:"dispute_id"`
	Arbitrator  string `json:"arbitrator_id"`
	Winner      string `json:"winner"` // "buyer" or "seller"
	Resolution  string `json:"resolution"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDisputeResolve(data []byte) (*event.DisputeResolve, error) {
	var j disputeResolveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DisputeResolve: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	arbitrator, err := uuid.Parse(j.Arbitrator)
	if err != nil {
		return nil, fmt.Errorf("parse arbitrator_id: %w", err)
	}
	winner, err := parseWinner(j.Winner)
	if err != nil {
		return nil, fmt.Errorf("parse winner: %w", err)
	}
	return &event.DisputeResolve{
		CommandID:  commandID,
		DisputeID:  j.DisputeID,
		Arbitrator: arbitrator,
		Winner:     winner,
		Resolution: j.Resolution,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type disputeCancelJSON struct {
	CommandID   string `json:"command_id"`
	DisputeID   int64  `json:"dispute_id"`
	Caller      string `json:"caller_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDisputeCancel(data []byte) (*event.DisputeCancel, error) {
	var j disputeCancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DisputeCancel: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.DisputeCancel{
		CommandID: commandID,
		DisputeID: j.DisputeID,
		Caller:    caller,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type policyUpdateJSON struct {
	CommandID         string `json:"command_id"`
	Caller            string `json:"caller_id"`
	FeeBps            int64  `json:"fee_bps"`
	DisputeFeeMinimum int64  `json:"dispute_fee_minimum"`
	FeeRecipient      string `json:"fee_recipient_id"`
	Sequence          int64  `json:"sequence"`
	TimestampUs       int64  `json:"timestamp_us"`
}

func parsePolicyUpdate(data []byte) (*event.PolicyUpdate, error) {
	var j policyUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyUpdate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	feeRecipient, err := uuid.Parse(j.FeeRecipient)
	if err != nil {
		return nil, fmt.Errorf("parse fee_recipient_id: %w", err)
	}
	return &event.PolicyUpdate{
		CommandID:         commandID,
		Caller:            caller,
		FeeBps:            j.FeeBps,
		DisputeFeeMinimum: j.DisputeFeeMinimum,
		FeeRecipient:      feeRecipient,
		Sequence:          j.Sequence,
		Timestamp:         time.UnixMicro(j.TimestampUs),
	}, nil
}

type arbitratorUpdateJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller_id"`
	Arbitrator  string `json:"arbitrator_id"`
	Granted     bool   `json:"granted"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseArbitratorUpdate(data []byte) (*event.ArbitratorUpdate, error) {
	var j arbitratorUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ArbitratorUpdate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	arbitrator, err := uuid.Parse(j.Arbitrator)
	if err != nil {
		return nil, fmt.Errorf("parse arbitrator_id: %w", err)
	}
	return &event.ArbitratorUpdate{
		CommandID:  commandID,
		Caller:     caller,
		Arbitrator: arbitrator,
		Granted:    j.Granted,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type verificationSetJSON struct {
	CommandID   string `json:"command_id"`
	Caller      string `json:"caller_id"`
	Participant string `json:"participant_id"`
	Verified    bool   `json:"verified"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseVerificationSet(data []byte) (*event.VerificationSet, error) {
	var j verificationSetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VerificationSet: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant_id: %w", err)
	}
	return &event.VerificationSet{
		CommandID:   commandID,
		Caller:      caller,
		Participant: participant,
		Verified:    j.Verified,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

// parseWinner decodes the wire winner token. "none" decodes without error;
// the core rejects unresolved winners so the rejection is counted there.
func parseWinner(s string) (event.Winner, error) {
	switch s {
	case "buyer":
		return event.WinnerBuyer, nil
	case "seller":
		return event.WinnerSeller, nil
	case "none", "":
		return event.WinnerNone, nil
	default:
		return event.WinnerNone, fmt.Errorf("unknown winner %q", s)
	}
}

func winnerWire(w event.Winner) string {
	switch w {
	case event.WinnerBuyer:
		return "buyer"
	case event.WinnerSeller:
		return "seller"
	default:
		return "none"
	}
}
