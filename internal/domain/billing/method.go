package billing

// PaymentMethodType classifies how a payment was made
type PaymentMethodType string

const (
	PaymentMethodTypeCard    PaymentMethodType = "CARD"
	PaymentMethodTypeEasyPay PaymentMethodType = "EASY_PAY"
	PaymentMethodTypeMobile  PaymentMethodType = "MOBILE"
	PaymentMethodTypeUnknown PaymentMethodType = "UNKNOWN"
)

// String returns the string representation of PaymentMethodType
func (t PaymentMethodType) String() string {
	return string(t)
}

// MethodInfo is the provider's description of a payment instrument.
// The set of variants is closed: CardMethod, EasyPayMethod, MobileMethod and UnknownMethod.
type MethodInfo interface {
	isMethodInfo()
}

// CardMethod is a credit or debit card
type CardMethod struct {
	Number string // masked by the provider, e.g. "5365-****-****-1234"
	Brand  string
	Issuer string
}

// EasyPayMethod is a wallet such as KakaoPay or NaverPay
type EasyPayMethod struct {
	Provider string
}

// MobileMethod is carrier billing
type MobileMethod struct {
	Phone string
}

// UnknownMethod is any method type this service does not model
type UnknownMethod struct {
	Type string
}

func (CardMethod) isMethodInfo()    {}
func (EasyPayMethod) isMethodInfo() {}
func (MobileMethod) isMethodInfo()  {}
func (UnknownMethod) isMethodInfo() {}

// MethodTypeOf maps a provider method variant to its PaymentMethodType
func MethodTypeOf(m MethodInfo) PaymentMethodType {
	switch m.(type) {
	case CardMethod:
		return PaymentMethodTypeCard
	case EasyPayMethod:
		return PaymentMethodTypeEasyPay
	case MobileMethod:
		return PaymentMethodTypeMobile
	default:
		return PaymentMethodTypeUnknown
	}
}

// CardLast4 extracts the trailing four digits of a (possibly masked) card number
func CardLast4(number string) string {
	digits := make([]rune, 0, 4)
	r := []rune(number)
	for i := len(r) - 1; i >= 0 && len(digits) < 4; i-- {
		if r[i] >= '0' && r[i] <= '9' {
			digits = append(digits, r[i])
		} else if r[i] == '*' {
			break
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string([]rune{digits[3], digits[2], digits[1], digits[0]})
}
