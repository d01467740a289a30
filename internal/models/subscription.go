package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusGrace     Status = "grace"
	StatusCancelled Status = "cancelled"
)

// SweepStatuses are the states the periodic sweep needs to look at.
var SweepStatuses = []Status{StatusTrial, StatusActive, StatusExpired, StatusGrace}

type PaymentStatus string

const (
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
)

// VerificationMethod tells how a payment was located on chain.
type VerificationMethod string

const (
	MethodTransactionID VerificationMethod = "transaction_id"
	MethodAddressScan   VerificationMethod = "address_scan"
)

// Subscription is the single premium subscription of a user.
type Subscription struct {
	// ID is the unique identifier of the subscription.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// UserID is the owner. Exactly one subscription exists per user.
	UserID string `json:"user_id" gorm:"column:user_id;uniqueIndex;not null"`
	// Status is the current lifecycle state.
	Status Status `json:"status" gorm:"column:status;index;not null"`
	// StartDate and EndDate bound the current paid period.
	StartDate time.Time `json:"start_date" gorm:"column:start_date"`
	EndDate   time.Time `json:"end_date" gorm:"column:end_date;index"`
	// NextPaymentDue is EndDate + 1 day, informational.
	NextPaymentDue time.Time `json:"next_payment_due" gorm:"column:next_payment_due"`
	// GracePeriodEnd is set only while Status is grace.
	GracePeriodEnd *time.Time `json:"grace_period_end,omitempty" gorm:"column:grace_period_end"`
	// AutoRenewal is cleared on cancellation.
	AutoRenewal bool `json:"auto_renewal" gorm:"column:auto_renewal"`
	// CancellationDate is set on cancel and cleared on reactivation.
	CancellationDate *time.Time `json:"cancellation_date,omitempty" gorm:"column:cancellation_date"`
	// Version is bumped on every successful write and guards concurrent updates.
	Version   int64     `json:"version" gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	// PaymentHistory is append-only and ordered by payment date.
	PaymentHistory []Payment `json:"payment_history" gorm:"foreignKey:SubscriptionID;constraint:OnDelete:RESTRICT"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Clone returns a deep copy so transitions never touch the caller's record.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.GracePeriodEnd = cloneTime(s.GracePeriodEnd)
	c.CancellationDate = cloneTime(s.CancellationDate)
	if s.PaymentHistory != nil {
		c.PaymentHistory = make([]Payment, len(s.PaymentHistory))
		for i := range s.PaymentHistory {
			c.PaymentHistory[i] = s.PaymentHistory[i].clone()
		}
	}
	return &c
}

// HasPayment reports whether the history already contains the idempotency key.
func (s *Subscription) HasPayment(transactionHash string) bool {
	for i := range s.PaymentHistory {
		if s.PaymentHistory[i].TransactionHash == transactionHash {
			return true
		}
	}
	return false
}

// Payment is an immutable record of a verified on-chain transfer.
type Payment struct {
	ID             int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	SubscriptionID int64 `json:"subscription_id" gorm:"column:subscription_id;index;not null"`
	// UserID is denormalized so ownership of a hash can be answered without a join.
	UserID string `json:"user_id" gorm:"column:user_id;index;not null"`
	// TransactionHash is the network-qualified idempotency key (see PaymentKey).
	TransactionHash string `json:"transaction_hash" gorm:"column:transaction_hash;uniqueIndex;not null"`
	// ChainTxHash is the hash as reported by the explorer.
	ChainTxHash        string             `json:"chain_tx_hash" gorm:"column:chain_tx_hash"`
	Amount             decimal.Decimal    `json:"amount" gorm:"column:amount;type:numeric(38,18);not null"`
	Network            Network            `json:"network" gorm:"column:network;index;not null"`
	PaymentDate        time.Time          `json:"payment_date" gorm:"column:payment_date"`
	Status             PaymentStatus      `json:"status" gorm:"column:status;not null"`
	VerificationMethod VerificationMethod `json:"verification_method" gorm:"column:verification_method"`
	Confirmations      int64              `json:"confirmations" gorm:"column:confirmations"`
	FromAddress        string             `json:"from_address,omitempty" gorm:"column:from_address"`
	// RawPayload keeps the normalized explorer answer for audits.
	RawPayload datatypes.JSON `json:"-" gorm:"column:raw_payload"`
	CreatedAt  time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p Payment) clone() Payment {
	c := p
	if p.RawPayload != nil {
		c.RawPayload = append(datatypes.JSON(nil), p.RawPayload...)
	}
	return c
}

// NewPaymentFromResult builds a confirmed payment from a successful verification.
func NewPaymentFromResult(userID string, res *VerificationResult) *Payment {
	return &Payment{
		UserID:             userID,
		TransactionHash:    PaymentKey(res.Network, res.TransactionHash),
		ChainTxHash:        res.TransactionHash,
		Amount:             res.Amount,
		Network:            res.Network,
		PaymentDate:        res.Timestamp,
		Status:             PaymentConfirmed,
		VerificationMethod: res.Method,
		Confirmations:      res.Confirmations,
		FromAddress:        res.From,
		RawPayload:         datatypes.JSON(res.Raw),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
