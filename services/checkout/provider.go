package checkout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/fee"
)

var (
	// errors
	ErrInvalidSignature = errors.New("invalid signature")
	errInvalidAmount    = errors.New("order amount must be positive")
)

// HMACProvider is a checkout vendor whose callbacks are signed with the merchant secret:
// signature = hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
type HMACProvider struct {
	keyID  string
	secret []byte
	logger core.Logger
}

var _ fee.Checkout = (*HMACProvider)(nil)

func NewHMACProvider(conf *core.Config, logger core.Logger) *HMACProvider {
	return &HMACProvider{
		keyID:  conf.Checkout.KeyID,
		secret: []byte(conf.Checkout.KeySecret),
		logger: logger,
	}
}

// KeyID is the public merchant key handed to the checkout widget.
func (p *HMACProvider) KeyID() string { return p.keyID }

func (p *HMACProvider) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", errInvalidAmount
	}
	id := "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if p.logger != nil {
		p.logger.Info("checkout order created", map[string]interface{}{
			"order_id": id,
			"amount":   amount.StringFixed(2),
			"currency": currency,
			"receipt":  receipt,
		})
	}
	return id, nil
}

func (p *HMACProvider) VerifySignature(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(p.secret, orderID, paymentID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 0 {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature the vendor attaches to a successful checkout callback.
func Sign(secret []byte, orderID, paymentID string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}
