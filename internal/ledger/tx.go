package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"brickvault/pkg/platform/sentinel"
)

// TxOutcome is the terminal state of a submitted ledger transaction.
type TxOutcome uint8

const (
	TxConfirmed TxOutcome = iota
	TxReverted
	TxTimedOut
)

func (o TxOutcome) String() string {
	switch o {
	case TxConfirmed:
		return "confirmed"
	case TxReverted:
		return "reverted"
	case TxTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Receipt captures the confirmation facts callers care about.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// TxResult is the resolved value of a PendingTx.
type TxResult struct {
	Outcome      TxOutcome
	Receipt      *Receipt
	RevertReason string
}

// PendingTx is the future returned by every ledger write. The write call
// returns immediately; callers Wait (or select on Done) until the transaction
// is confirmed, reverted, or timed out. A submitted transaction cannot be
// retracted from this layer.
type PendingTx struct {
	hash common.Hash

	once   sync.Once
	done   chan struct{}
	result TxResult
}

// NewPendingTx starts an unresolved future for the given transaction hash.
func NewPendingTx(hash common.Hash) *PendingTx {
	return &PendingTx{hash: hash, done: make(chan struct{})}
}

// Hash returns the submitted transaction hash.
func (p *PendingTx) Hash() common.Hash { return p.hash }

// Resolve settles the future. Only the adapter that created the PendingTx
// calls this, exactly once; later calls are ignored.
func (p *PendingTx) Resolve(result TxResult) {
	p.once.Do(func() {
		p.result = result
		close(p.done)
	})
}

// Done is closed once the transaction reaches a terminal state.
func (p *PendingTx) Done() <-chan struct{} { return p.done }

// Wait blocks until the transaction resolves or ctx is cancelled.
func (p *PendingTx) Wait(ctx context.Context) (TxResult, error) {
	select {
	case <-ctx.Done():
		return TxResult{}, ctx.Err()
	case <-p.done:
		return p.result, nil
	}
}

// AwaitConfirmed waits for the transaction and translates non-confirmation
// into sentinel errors for services to map onto the domain taxonomy.
func AwaitConfirmed(ctx context.Context, p *PendingTx) (*Receipt, error) {
	result, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}
	switch result.Outcome {
	case TxConfirmed:
		return result.Receipt, nil
	case TxReverted:
		return nil, fmt.Errorf("tx %s: %s: %w", p.hash, result.RevertReason, sentinel.ErrReverted)
	case TxTimedOut:
		return nil, fmt.Errorf("tx %s never confirmed: %w", p.hash, sentinel.ErrTimedOut)
	default:
		return nil, fmt.Errorf("tx %s: unknown outcome", p.hash)
	}
}
