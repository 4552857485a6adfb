// Package identity resolves a caller to one of the three household users.
//
// PINs are four digits stored as bcrypt hashes. This keeps casual readers
// of the database out, nothing more; a four digit space is trivially
// searchable.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"gestionjm/internal/core"
	"gestionjm/internal/records"
)

const PinLength = 4

var (
	ErrInvalidCredentials = errors.New("invalid user or PIN")
	ErrInvalidPin         = errors.New("PIN must be exactly 4 digits")
)

type Provider struct {
	pins   records.PinRepository
	cost   int
	logger *slog.Logger
}

type Option func(*Provider)

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(pins records.PinRepository, opts ...Option) *Provider {
	p := &Provider{pins: pins, cost: bcrypt.DefaultCost, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidatePin accepts exactly four ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) != PinLength {
		return ErrInvalidPin
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPin
		}
	}
	return nil
}

// EnsureDefaults stores the given PIN for every user that has none yet.
// Users that already changed their PIN are left alone.
func (p *Provider) EnsureDefaults(ctx context.Context, defaults map[core.UserID]string) error {
	for _, u := range core.Users() {
		_, err := p.pins.GetPinHash(ctx, u.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, records.ErrNotFound) {
			return fmt.Errorf("check pin for %s: %w", u.ID, err)
		}
		pin, ok := defaults[u.ID]
		if !ok {
			continue
		}
		if err := p.SetPin(ctx, u.ID, pin); err != nil {
			return fmt.Errorf("seed pin for %s: %w", u.ID, err)
		}
		p.logger.InfoContext(ctx, "Seeded default PIN", "user", u.ID)
	}
	return nil
}

// Authenticate returns the user when pin matches the stored hash.
func (p *Provider) Authenticate(ctx context.Context, id core.UserID, pin string) (core.User, error) {
	user, ok := core.LookupUser(id)
	if !ok {
		return core.User{}, ErrInvalidCredentials
	}
	hash, err := p.pins.GetPinHash(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load pin hash: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePin replaces a user's PIN after checking the current one.
func (p *Provider) ChangePin(ctx context.Context, id core.UserID, current, next string) error {
	if _, err := p.Authenticate(ctx, id, current); err != nil {
		return err
	}
	if err := p.SetPin(ctx, id, next); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "PIN changed", "user", id)
	return nil
}

// SetPin stores a new PIN without checking the old one.
func (p *Provider) SetPin(ctx context.Context, id core.UserID, pin string) error {
	if _, ok := core.LookupUser(id); !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownUser, id)
	}
	if err := ValidatePin(pin); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), p.cost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	return p.pins.SetPinHash(ctx, id, string(hash))
}
