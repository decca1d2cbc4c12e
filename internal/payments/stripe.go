// Package payments handles balance top-ups through Stripe Checkout.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"multichat/internal/ledger"
	"multichat/internal/logging"
	"multichat/internal/metrics"
	"multichat/pkg/models"
)

// Deposit bounds in USD.
const (
	MinDepositUSD = 1.00
	MaxDepositUSD = 1000.00
)

var (
	ErrNotConfigured  = errors.New("payments: stripe is not configured")
	ErrInvalidAmount  = fmt.Errorf("payments: deposit amount must be between $%.2f and $%.2f", MinDepositUSD, MaxDepositUSD)
	ErrInvalidWebhook = errors.New("payments: invalid webhook signature")
)

// CheckoutResult is returned after creating a checkout session.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// DepositResult describes a credited deposit.
type DepositResult struct {
	UserID       uint    `json:"user_id"`
	Amount       float64 `json:"amount"`
	BalanceAfter float64 `json:"balance_after"`
	SessionID    string  `json:"session_id"`
	Duplicate    bool    `json:"duplicate"`
}

// Service creates checkout sessions and credits balances from webhooks.
type Service struct {
	db            *gorm.DB
	ledger        *ledger.Service
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewService creates a payments service. Setting the key configures the
// global Stripe client, matching how the SDK is meant to be used.
func NewService(gdb *gorm.DB, lg *ledger.Service, secretKey, webhookSecret, successURL, cancelURL string) *Service {
	if secretKey != "" {
		stripe.Key = secretKey
	}
	return &Service{
		db:            gdb,
		ledger:        lg,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

// IsConfigured reports whether a usable Stripe key is set.
func (s *Service) IsConfigured() bool {
	return s.secretKey != "" && s.secretKey != "sk_test_xxx"
}

// CreateDepositSession starts a one-time Checkout payment that tops up
// the user's balance on completion.
func (s *Service) CreateDepositSession(ctx context.Context, user *models.User, amountUSD float64) (*CheckoutResult, error) {
	if !s.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if amountUSD < MinDepositUSD || amountUSD > MaxDepositUSD {
		return nil, ErrInvalidAmount
	}

	cents := int64(amountUSD*100 + 0.5)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(cents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("MultiChat balance top-up"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		CustomerEmail:     stripe.String(user.Email),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(user.ID), 10)),
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(uint64(user.ID), 10),
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	logging.L().Info("created deposit checkout session",
		zap.Uint("user_id", user.ID),
		zap.String("session_id", sess.ID),
		zap.Float64("amount", amountUSD))

	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// HandleWebhook verifies and processes a Stripe webhook. Completed
// checkout sessions credit the referenced user's balance; other event
// types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*DepositResult, error) {
	var event stripe.Event
	var err error

	if s.webhookSecret != "" {
		event, err = webhook.ConstructEvent(payload, signature, s.webhookSecret)
		if err != nil {
			logging.L().Warn("webhook signature verification failed", zap.Error(err))
			return nil, ErrInvalidWebhook
		}
	} else {
		// Development mode without a webhook secret.
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to parse webhook: %w", err)
		}
	}

	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	return s.creditSession(ctx, &sess)
}

func (s *Service) creditSession(ctx context.Context, sess *stripe.CheckoutSession) (*DepositResult, error) {
	userRef := sess.ClientReferenceID
	if userRef == "" {
		userRef = sess.Metadata["user_id"]
	}
	userID, err := strconv.ParseUint(userRef, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkout session %s has no valid user reference", sess.ID)
	}

	amount := float64(sess.AmountTotal) / 100
	if amount <= 0 {
		return nil, fmt.Errorf("checkout session %s has non-positive amount", sess.ID)
	}

	// Stripe retries webhooks, so the same session must only credit once.
	description := fmt.Sprintf("stripe checkout %s", sess.ID)
	var existing int64
	err = s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND type = ? AND description = ?", uint(userID), models.TxDeposit, description).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		logging.L().Info("ignoring already-credited checkout session", zap.String("session_id", sess.ID))
		return &DepositResult{UserID: uint(userID), Amount: amount, SessionID: sess.ID, Duplicate: true}, nil
	}

	tx, err := s.ledger.AdjustBalance(ctx, uint(userID), amount, models.TxDeposit, description)
	if err != nil {
		return nil, fmt.Errorf("failed to credit deposit: %w", err)
	}
	metrics.Get().RecordDeposit(amount)

	logging.L().Info("credited deposit",
		zap.Uint("user_id", uint(userID)),
		zap.Float64("amount", amount),
		zap.String("session_id", sess.ID))

	return &DepositResult{
		UserID:       uint(userID),
		Amount:       amount,
		BalanceAfter: tx.BalanceAfter,
		SessionID:    sess.ID,
		Duplicate:    false,
	}, nil
}
