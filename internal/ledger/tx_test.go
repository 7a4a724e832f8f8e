package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brickvault/pkg/platform/sentinel"
)

func TestPendingTxResolveOnce(t *testing.T) {
	tx := NewPendingTx(common.HexToHash("0x01"))
	tx.Resolve(TxResult{Outcome: TxConfirmed, Receipt: &Receipt{BlockNumber: 7}})
	tx.Resolve(TxResult{Outcome: TxReverted, RevertReason: "late"})

	result, err := tx.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TxConfirmed, result.Outcome)
	assert.EqualValues(t, 7, result.Receipt.BlockNumber)
}

func TestPendingTxWaitHonorsContext(t *testing.T) {
	tx := NewPendingTx(common.HexToHash("0x02"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tx.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitConfirmedTranslatesOutcomes(t *testing.T) {
	t.Run("confirmed yields the receipt", func(t *testing.T) {
		tx := NewPendingTx(common.HexToHash("0x03"))
		tx.Resolve(TxResult{Outcome: TxConfirmed, Receipt: &Receipt{BlockNumber: 12}})

		receipt, err := AwaitConfirmed(context.Background(), tx)
		require.NoError(t, err)
		assert.EqualValues(t, 12, receipt.BlockNumber)
	})

	t.Run("reverted yields ErrReverted with the reason", func(t *testing.T) {
		tx := NewPendingTx(common.HexToHash("0x04"))
		tx.Resolve(TxResult{Outcome: TxReverted, RevertReason: "guarantee fund insufficient"})

		_, err := AwaitConfirmed(context.Background(), tx)
		require.ErrorIs(t, err, sentinel.ErrReverted)
		assert.Contains(t, err.Error(), "guarantee fund insufficient")
	})

	t.Run("timed out yields ErrTimedOut", func(t *testing.T) {
		tx := NewPendingTx(common.HexToHash("0x05"))
		tx.Resolve(TxResult{Outcome: TxTimedOut})

		_, err := AwaitConfirmed(context.Background(), tx)
		assert.ErrorIs(t, err, sentinel.ErrTimedOut)
	})
}
