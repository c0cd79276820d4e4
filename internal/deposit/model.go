package deposit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateToken indicates a request with the same idempotency token already exists.
	ErrDuplicateToken = errors.New("deposit token already used")
	// ErrAlreadyTerminal is returned when resolving a request that is no longer pending.
	ErrAlreadyTerminal = errors.New("deposit request already resolved")
	// ErrNotFound is returned when a deposit request does not exist.
	ErrNotFound = errors.New("deposit request not found")
	// ErrInvalidRequest covers caller mistakes such as non-positive amounts.
	ErrInvalidRequest = errors.New("invalid deposit request")
)

// Channel is the payment rail a deposit arrives through.
type Channel string

const (
	ChannelBank    Channel = "bank"
	ChannelEWallet Channel = "ewallet"
	ChannelCard    Channel = "card"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelBank, ChannelEWallet, ChannelCard:
		return true
	}
	return false
}

// Status of a deposit request. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Detail is the channel-specific part of a request. Exactly one concrete type exists per
// channel.
type Detail interface {
	Channel() Channel
}

// BankDetail is what the bank notification told us about a transfer.
type BankDetail struct {
	Reference string `json:"reference"`
	Memo      string `json:"memo"`
}

func (BankDetail) Channel() Channel { return ChannelBank }

type EWalletDetail struct {
	Reference string `json:"reference"`
	Memo      string `json:"memo"`
}

func (EWalletDetail) Channel() Channel { return ChannelEWallet }

// CardDetail describes a scratch card. The PIN is kept only as a bcrypt hash plus its last
// two characters for support lookups.
type CardDetail struct {
	Provider         string `json:"provider"`
	Serial           string `json:"serial"`
	PINHash          string `json:"pin_hash"`
	PINHint          string `json:"pin_hint"`
	FaceValue        int64  `json:"face_value"`
	PartnerRequestID string `json:"partner_request_id"`
	LastStatus       int    `json:"last_status"`
	LastMessage      string `json:"last_message,omitempty"`
	// ReportedValue is the value the partner says it charged, zero until it reports one.
	ReportedValue    int64  `json:"reported_value,omitempty"`
}

func (CardDetail) Channel() Channel { return ChannelCard }

// Request is one funding attempt.
type Request struct {
	ID             string
	AccountID      string
	Amount         int64
	Channel        Channel
	Token          string
	Detail         Detail
	Status         Status
	CreditedAmount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// Terminal reports whether the request can no longer change status.
func (r Request) Terminal() bool { return r.Status != StatusPending }

// Card returns the card detail when the request is a card deposit.
func (r Request) Card() (CardDetail, bool) {
	d, ok := r.Detail.(CardDetail)
	return d, ok
}

// LedgerReference is the reference its credit is booked under, making the credit unique.
func (r Request) LedgerReference() string { return "deposit:" + r.ID }

func encodeDetail(d Detail) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func decodeDetail(ch Channel, raw []byte) (Detail, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch ch {
	case ChannelBank:
		var d BankDetail
		err := json.Unmarshal(raw, &d)
		return d, err
	case ChannelEWallet:
		var d EWalletDetail
		err := json.Unmarshal(raw, &d)
		return d, err
	case ChannelCard:
		var d CardDetail
		err := json.Unmarshal(raw, &d)
		return d, err
	}
	return nil, fmt.Errorf("unknown channel %q", ch)
}
