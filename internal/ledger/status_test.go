package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusNone, StatusPending, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusWithdrawn, true},
		{StatusRejected, StatusPending, true},
		{StatusWithdrawn, StatusPending, true},

		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusWithdrawn, false},
		{StatusNone, StatusApproved, false},
		{StatusNone, StatusRejected, false},
		{StatusRejected, StatusApproved, false},
		{StatusWithdrawn, StatusApproved, false},
		{StatusPending, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusApproved.IsTerminal())
	for _, s := range []Status{StatusNone, StatusPending, StatusRejected, StatusWithdrawn} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestStatusChainCodec(t *testing.T) {
	for _, s := range []Status{StatusNone, StatusPending, StatusApproved, StatusRejected, StatusWithdrawn} {
		decoded, err := StatusFromChain(s.ChainValue())
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}

	_, err := StatusFromChain(5)
	assert.Error(t, err)
}

func TestStatusStoreCodec(t *testing.T) {
	for _, s := range []Status{StatusNone, StatusPending, StatusApproved, StatusRejected, StatusWithdrawn} {
		decoded, err := StatusFromStore(s.StoreValue())
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}

	_, err := StatusFromStore("PENDING")
	assert.Error(t, err, "store encoding is lowercase only")
	_, err = StatusFromStore("")
	assert.Error(t, err)
}
