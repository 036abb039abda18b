package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/core"
)

func TestHMACProvider_CreateOrder(t *testing.T) {
	p := NewHMACProvider(core.NewTestConfig(), nil)

	id, err := p.CreateOrder(context.Background(), decimal.NewFromInt(1500), "INR", "r1", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "order_"))

	id2, err := p.CreateOrder(context.Background(), decimal.NewFromInt(1500), "INR", "r1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	_, err = p.CreateOrder(context.Background(), decimal.Zero, "INR", "r1", nil)
	assert.Error(t, err)
}

func TestHMACProvider_VerifySignature(t *testing.T) {
	conf := core.NewTestConfig()
	p := NewHMACProvider(conf, nil)
	valid := Sign([]byte(conf.Checkout.KeySecret), "order_1", "pay_1")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		wantErr   bool
	}{
		{name: "valid", orderID: "order_1", paymentID: "pay_1", signature: valid},
		{name: "valid upper case", orderID: "order_1", paymentID: "pay_1", signature: strings.ToUpper(valid)},
		{name: "other payment", orderID: "order_1", paymentID: "pay_2", signature: valid, wantErr: true},
		{name: "other order", orderID: "order_2", paymentID: "pay_1", signature: valid, wantErr: true},
		{name: "other secret", orderID: "order_1", paymentID: "pay_1", signature: Sign([]byte("nope"), "order_1", "pay_1"), wantErr: true},
		{name: "blank", orderID: "order_1", paymentID: "pay_1", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.VerifySignature(tc.orderID, tc.paymentID, tc.signature)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
