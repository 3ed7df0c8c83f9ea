package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/wishroom/internal/models"
	"gopkg.in/yaml.v3"
)

// maxStoredWishLength is the longest wish text the schema accepts.
const maxStoredWishLength = 250

// Policy holds the quota and timeout settings of the engine.
type Policy struct {
	// MaxRoomsPerAccount caps created plus joined rooms per account.
	MaxRoomsPerAccount int `yaml:"max_rooms_per_account"`

	MaxWishLength     int `yaml:"max_wish_length"`
	MaxRoomNameLength int `yaml:"max_room_name_length"`

	// CodeAttempts bounds how many random codes are tried per room.
	CodeAttempts int `yaml:"code_attempts"`

	// OperationTimeout applies to every user-facing operation.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	Tiers map[models.Tier]models.TierLimits `yaml:"tiers"`
}

// DefaultPolicy returns the built-in limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxRoomsPerAccount: 3,
		MaxWishLength:      maxStoredWishLength,
		MaxRoomNameLength:  64,
		CodeAttempts:       20,
		OperationTimeout:   3 * time.Second,
		Tiers: map[models.Tier]models.TierLimits{
			models.TierFree: {MaxParticipants: 5, MaxWishesPerMember: 1},
			models.TierPro:  {MaxParticipants: 10, MaxWishesPerMember: 5},
		},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML over the defaults and validates the result.
// Tier entries in the document replace the default entry for that tier.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var overlay Policy
	if err := dec.Decode(&overlay); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	if overlay.MaxRoomsPerAccount != 0 {
		p.MaxRoomsPerAccount = overlay.MaxRoomsPerAccount
	}
	if overlay.MaxWishLength != 0 {
		p.MaxWishLength = overlay.MaxWishLength
	}
	if overlay.MaxRoomNameLength != 0 {
		p.MaxRoomNameLength = overlay.MaxRoomNameLength
	}
	if overlay.CodeAttempts != 0 {
		p.CodeAttempts = overlay.CodeAttempts
	}
	if overlay.OperationTimeout != 0 {
		p.OperationTimeout = overlay.OperationTimeout
	}
	for tier, limits := range overlay.Tiers {
		p.Tiers[tier] = limits
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	if p.MaxRoomsPerAccount < 1 {
		return fmt.Errorf("max_rooms_per_account must be at least 1")
	}
	if p.MaxWishLength < 1 || p.MaxWishLength > maxStoredWishLength {
		return fmt.Errorf("max_wish_length must be between 1 and %d", maxStoredWishLength)
	}
	if p.MaxRoomNameLength < 1 {
		return fmt.Errorf("max_room_name_length must be at least 1")
	}
	if p.CodeAttempts < 1 {
		return fmt.Errorf("code_attempts must be at least 1")
	}
	if p.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout must be positive")
	}
	for _, tier := range []models.Tier{models.TierFree, models.TierPro} {
		limits, ok := p.Tiers[tier]
		if !ok {
			return fmt.Errorf("limits for tier %q are missing", tier)
		}
		if limits.MaxParticipants < 1 || limits.MaxWishesPerMember < 1 {
			return fmt.Errorf("limits for tier %q must be positive", tier)
		}
	}
	for tier := range p.Tiers {
		if _, err := models.ParseTier(string(tier)); err != nil {
			return err
		}
	}
	return nil
}

// Limits returns the limits for a tier.
func (p Policy) Limits(tier models.Tier) (models.TierLimits, error) {
	limits, ok := p.Tiers[tier]
	if !ok {
		return models.TierLimits{}, fmt.Errorf("unknown tier %q", tier)
	}
	return limits, nil
}
