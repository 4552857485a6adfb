package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gestionjm/internal/core"
	"gestionjm/internal/records/memory"
)

func newProvider(t *testing.T) (*Provider, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewProvider(store, WithCost(bcrypt.MinCost)), store
}

var defaults = map[core.UserID]string{
	core.Mariano:    "1234",
	core.Gabriela:   "4321",
	core.JuanMartin: "1111",
}

func TestValidatePin(t *testing.T) {
	for _, pin := range []string{"0000", "1234", "9999"} {
		assert.NoError(t, ValidatePin(pin), pin)
	}
	for _, pin := range []string{"", "123", "12345", "12a4", " 123", "１２３４"} {
		assert.ErrorIs(t, ValidatePin(pin), ErrInvalidPin, pin)
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)
	require.NoError(t, p.EnsureDefaults(ctx, defaults))

	u, err := p.Authenticate(ctx, core.Gabriela, "4321")
	require.NoError(t, err)
	assert.Equal(t, core.Gabriela, u.ID)
	assert.True(t, u.CanManageTransfers)

	_, err = p.Authenticate(ctx, core.Gabriela, "1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Authenticate(ctx, "nadie", "1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureDefaultsKeepsChangedPins(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)
	require.NoError(t, p.EnsureDefaults(ctx, defaults))
	require.NoError(t, p.ChangePin(ctx, core.JuanMartin, "1111", "2468"))

	require.NoError(t, p.EnsureDefaults(ctx, defaults))

	_, err := p.Authenticate(ctx, core.JuanMartin, "2468")
	assert.NoError(t, err)
	_, err = p.Authenticate(ctx, core.JuanMartin, "1111")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureDefaultsSkipsUsersWithoutDefault(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)
	require.NoError(t, p.EnsureDefaults(ctx, map[core.UserID]string{core.Mariano: "1234"}))

	_, err := store.GetPinHash(ctx, core.Gabriela)
	assert.Error(t, err)
}

func TestChangePin(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)
	require.NoError(t, p.EnsureDefaults(ctx, defaults))

	assert.ErrorIs(t, p.ChangePin(ctx, core.Mariano, "0000", "5678"), ErrInvalidCredentials)
	assert.ErrorIs(t, p.ChangePin(ctx, core.Mariano, "1234", "56789"), ErrInvalidPin)

	require.NoError(t, p.ChangePin(ctx, core.Mariano, "1234", "5678"))
	_, err := p.Authenticate(ctx, core.Mariano, "5678")
	assert.NoError(t, err)
}

func TestSetPinUnknownUser(t *testing.T) {
	p, _ := newProvider(t)
	assert.ErrorIs(t, p.SetPin(context.Background(), "otro", "1234"), core.ErrUnknownUser)
}
