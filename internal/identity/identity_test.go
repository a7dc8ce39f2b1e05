package identity

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func TestStatic(t *testing.T) {
	owner, err := Static{Address: alice}.Owner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	_, err = Static{}.Owner(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOpenProviderSession(t *testing.T) {
	p := NewOpenProvider(time.Minute)
	ctx := WithOwner(context.Background(), alice)

	_, err := p.Owner(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = p.Connect(context.Background(), alice, "")
	require.NoError(t, err)

	owner, err := p.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	p.Disconnect(alice)
	_, err = p.Owner(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOpenProviderExpiry(t *testing.T) {
	p := NewOpenProvider(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	_, err := p.Connect(context.Background(), alice, "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = p.Owner(WithOwner(context.Background(), alice))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOwnerMissingFromContext(t *testing.T) {
	p := NewOpenProvider(time.Minute)
	_, err := p.Owner(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = p.Connect(context.Background(), common.Address{}, "")
	assert.ErrorIs(t, err, ErrNotConnected)
}
