package ledger

import (
	"fmt"
)

// Status is the canonical application status. The ledger encodes it as a small
// integer and the document store as a string; the two codecs below are the only
// places those raw encodings appear. Everything else branches on this type.
type Status uint8

const (
	StatusNone Status = iota
	StatusPending
	StatusApproved
	StatusRejected
	StatusWithdrawn
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// IsTerminal reports whether no further transition is possible. Approved is the
// only terminal state: Rejected and Withdrawn permit resubmission.
func (s Status) IsTerminal() bool { return s == StatusApproved }

// CanTransitionTo reports whether the state machine permits moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusNone:
		return next == StatusPending
	case StatusPending:
		return next == StatusApproved || next == StatusRejected || next == StatusWithdrawn
	case StatusRejected, StatusWithdrawn:
		return next == StatusPending
	default:
		return false
	}
}

// StatusFromChain decodes the ledger's integer encoding.
func StatusFromChain(raw uint8) (Status, error) {
	if raw > uint8(StatusWithdrawn) {
		return StatusNone, fmt.Errorf("unknown on-chain status %d", raw)
	}
	return Status(raw), nil
}

// ChainValue encodes for the ledger.
func (s Status) ChainValue() uint8 { return uint8(s) }

// StatusFromStore decodes the document store's string encoding.
func StatusFromStore(raw string) (Status, error) {
	switch raw {
	case "none":
		return StatusNone, nil
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "withdrawn":
		return StatusWithdrawn, nil
	default:
		return StatusNone, fmt.Errorf("unknown stored status %q", raw)
	}
}

// StoreValue encodes for the document store.
func (s Status) StoreValue() string { return s.String() }
