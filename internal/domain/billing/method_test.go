package billing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodTypeOf(t *testing.T) {
	tests := []struct {
		name   string
		method MethodInfo
		want   PaymentMethodType
	}{
		{"card", CardMethod{Number: "1234"}, PaymentMethodTypeCard},
		{"easy pay", EasyPayMethod{Provider: "KAKAOPAY"}, PaymentMethodTypeEasyPay},
		{"mobile", MobileMethod{Phone: "010"}, PaymentMethodTypeMobile},
		{"unknown", UnknownMethod{Type: "PaymentMethodTransfer"}, PaymentMethodTypeUnknown},
		{"nil", nil, PaymentMethodTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MethodTypeOf(tt.method))
		})
	}
}

func TestCardLast4(t *testing.T) {
	tests := []struct {
		number string
		want   string
	}{
		{"5365-****-****-1234", "1234"},
		{"53651234****5678", "5678"},
		{"4321", "4321"},
		{"****-****-****-****", ""},
		{"12", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.want, CardLast4(tt.number))
		})
	}
}

func TestNewPaymentMethod(t *testing.T) {
	userID := uuid.New()

	card, err := NewPaymentMethod(userID, "billing-key-1", CardMethod{Number: "5365-****-****-1234", Brand: "MASTER"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodTypeCard, card.Type)
	assert.Equal(t, "1234", card.CardLast4)
	assert.Equal(t, "MASTER", card.CardBrand)
	assert.True(t, card.Active)
	assert.False(t, card.Default)

	wallet, err := NewPaymentMethod(userID, "billing-key-2", EasyPayMethod{Provider: "NAVERPAY"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodTypeEasyPay, wallet.Type)
	assert.Empty(t, wallet.CardLast4)

	_, err = NewPaymentMethod(userID, "", CardMethod{}, testNow)
	assert.Error(t, err)
	_, err = NewPaymentMethod(uuid.Nil, "key", CardMethod{}, testNow)
	assert.Error(t, err)
}

func TestPaymentMethod_DefaultAndDeactivate(t *testing.T) {
	pm, err := NewPaymentMethod(uuid.New(), "billing-key-1", CardMethod{Number: "1111"}, testNow)
	require.NoError(t, err)

	require.NoError(t, pm.MarkDefault(testNow))
	assert.True(t, pm.Default)

	pm.Deactivate(testNow)
	assert.False(t, pm.Active)
	assert.False(t, pm.Default)
	assert.Error(t, pm.MarkDefault(testNow))
}

func TestBillingKeyInfo_PrimaryMethod(t *testing.T) {
	var nilInfo *BillingKeyInfo
	assert.Equal(t, UnknownMethod{}, nilInfo.PrimaryMethod())
	assert.Equal(t, UnknownMethod{}, (&BillingKeyInfo{}).PrimaryMethod())

	info := &BillingKeyInfo{Methods: []MethodInfo{CardMethod{Number: "1"}, EasyPayMethod{}}}
	assert.Equal(t, CardMethod{Number: "1"}, info.PrimaryMethod())
}

func TestPaymentDetail_FailureMessage(t *testing.T) {
	var nilDetail *PaymentDetail
	assert.Equal(t, "payment failed", nilDetail.FailureMessage())
	assert.Equal(t, "payment failed", (&PaymentDetail{}).FailureMessage())
	assert.Equal(t, "pg said no", (&PaymentDetail{PGMessage: "pg said no"}).FailureMessage())
	assert.Equal(t, "insufficient funds", (&PaymentDetail{FailureReason: "insufficient funds", PGMessage: "pg said no"}).FailureMessage())
}
