package models

import "brickvault/internal/ledger"

// ReconcileOutcome classifies a ledger / document-store comparison. The
// comparison only reports; it never resolves a disagreement on its own.
type ReconcileOutcome string

const (
	// ReconcileConsistent means both stores agree (including "no record anywhere").
	ReconcileConsistent ReconcileOutcome = "consistent"

	// ReconcileUnsyncedPendingNoChainRecord means the document store holds a
	// Pending record but the ledger has no matching entry: the submission's
	// ledger transaction was never confirmed.
	ReconcileUnsyncedPendingNoChainRecord ReconcileOutcome = "unsynced_pending_no_chain_record"

	// ReconcileStatusMismatch means both stores hold records that disagree.
	ReconcileStatusMismatch ReconcileOutcome = "status_mismatch"
)

// ReconcileReport is the full comparison result for one applicant.
type ReconcileReport struct {
	Outcome       ReconcileOutcome `json:"outcome"`
	OffChain      ledger.Status    `json:"-"`
	OnChain       ledger.Status    `json:"-"`
	ApplicationID string           `json:"application_id,omitempty"`
}
