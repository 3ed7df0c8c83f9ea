package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Account represents a chat user known to the engine.
// Accounts are keyed by the numeric identity assigned by the chat platform
// and are created on first contact.
type Account struct {
	AccountID  uuid.UUID `json:"account_id"`  // UUIDv7
	ExternalID int64     `json:"external_id"` // chat platform user id, unique

	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	IsAdmin   bool `json:"is_admin"`
	IsPremium bool `json:"is_premium"`

	// CurrentRoomID is the default room context, nil when unset.
	CurrentRoomID *uuid.UUID `json:"current_room_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the first name, falling back to the username and then
// a generic label built from the external id.
func (a *Account) DisplayName() string {
	switch {
	case a.FirstName != "":
		return a.FirstName
	case a.Username != "":
		return a.Username
	default:
		return "Participant " + strconv.FormatInt(a.ExternalID, 10)
	}
}

// AccountSummary is the public view of a room member.
type AccountSummary struct {
	AccountID  uuid.UUID `json:"account_id"`
	ExternalID int64     `json:"external_id"`
	Username   string    `json:"username,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
}

// Summary returns the public view of the account.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		AccountID:  a.AccountID,
		ExternalID: a.ExternalID,
		Username:   a.Username,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
	}
}

// DisplayName mirrors Account.DisplayName for summaries.
func (s AccountSummary) DisplayName() string {
	a := Account{ExternalID: s.ExternalID, Username: s.Username, FirstName: s.FirstName}
	return a.DisplayName()
}
