package ledger

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeParticipant AccountScope = iota
	AccountScopeCustody
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Participant sub-types
	SubTypeAvailable AccountSubType = iota

	// Custody sub-types
	SubTypeOrderEscrow
	SubTypeDisputeFee

	// External sub-types
	SubTypeExternalFunding
)

// AccountKey is the in-memory key for balance tracking (18 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for participants, big-endian id for custody accounts
	SubType  AccountSubType
}

// NewParticipantAccountKey creates the available-funds key for a participant
func NewParticipantAccountKey(participant uuid.UUID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeParticipant,
		EntityID: participant,
		SubType:  SubTypeAvailable,
	}
}

// NewOrderEscrowKey creates the custody key holding one order's deposits
func NewOrderEscrowKey(orderID int64) AccountKey {
	return AccountKey{
		Scope:    AccountScopeCustody,
		EntityID: int64EntityID(orderID),
		SubType:  SubTypeOrderEscrow,
	}
}

// NewDisputeFeeKey creates the custody key holding one dispute's fee
func NewDisputeFeeKey(disputeID int64) AccountKey {
	return AccountKey{
		Scope:    AccountScopeCustody,
		EntityID: int64EntityID(disputeID),
		SubType:  SubTypeDisputeFee,
	}
}

// NewExternalFundingKey creates the boundary account for deposits and withdrawals
func NewExternalFundingKey() AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalFunding,
	}
}

func int64EntityID(id int64) [16]byte {
	var entityID [16]byte
	binary.BigEndian.PutUint64(entityID[8:], uint64(id))
	return entityID
}

// EntityInt64 recovers the order/dispute id from a custody key
func (k AccountKey) EntityInt64() int64 {
	return int64(binary.BigEndian.Uint64(k.EntityID[8:]))
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeParticipant:
		pid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("participant:%s:available", pid.String())
	case AccountScopeCustody:
		switch k.SubType {
		case SubTypeOrderEscrow:
			return fmt.Sprintf("custody:order:%d", k.EntityInt64())
		case SubTypeDisputeFee:
			return fmt.Sprintf("custody:dispute:%d:fee", k.EntityInt64())
		}
	case AccountScopeExternal:
		return "external:funding"
	}
	return "unknown"
}

// ParseAccountPath converts a stored account path back into a key.
// Used when restoring balances from a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) == 3 && parts[0] == "participant" && parts[2] == "available":
		pid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		return NewParticipantAccountKey(pid), nil

	case len(parts) == 3 && parts[0] == "custody" && parts[1] == "order":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		return NewOrderEscrowKey(id), nil

	case len(parts) == 4 && parts[0] == "custody" && parts[1] == "dispute" && parts[3] == "fee":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		return NewDisputeFeeKey(id), nil

	case len(parts) == 2 && parts[0] == "external" && parts[1] == "funding":
		return NewExternalFundingKey(), nil
	}

	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}
