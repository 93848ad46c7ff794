package pricer

import (
	"errors"
)

// Reason identifies why a pricing attempt was rejected. Reasons are carried
// onto the resulting fallback-priced record for observability.
type Reason string

const (
	ReasonNoBuyListings          Reason = "no buy listings were found"
	ReasonNoSellListings         Reason = "no sell listings were found"
	ReasonNotEnoughBuy           Reason = "not enough buy listings were found"
	ReasonNotEnoughSell          Reason = "not enough sell listings were found"
	ReasonExternalUnavailable    Reason = "failed to get external price"
	ReasonBuyAboveSell           Reason = "buy price is higher than the sell price"
	ReasonBuyEqualsSell          Reason = "buy price is the same as the sell price"
	ReasonBuyZero                Reason = "buy price cannot be zero"
	ReasonSellZero               Reason = "sell price cannot be zero"
	ReasonBuyNegative            Reason = "buy price cannot be negative"
	ReasonSellNegative           Reason = "sell price cannot be negative"
	ReasonEqualAfterConversion   Reason = "buy price equals the sell price after conversion"
	ReasonCrossedAfterConversion Reason = "buy price is higher than the sell price after conversion"
	ReasonBuyingTooHigh          Reason = "pricer is buying for too much"
	ReasonSellingTooLow          Reason = "pricer is selling for too little"
	ReasonKeyFallbackEnforced    Reason = "key price is forced to fallback"
)

// Failure is a typed pricing rejection. The caller inspects the reason and
// routes to the external fallback quote; it is never fatal.
type Failure struct {
	Reason Reason
}

func (f *Failure) Error() string {
	return string(f.Reason)
}

func fail(reason Reason) error {
	return &Failure{Reason: reason}
}

// FailureReason extracts the reason from a pricing error. Returns the error
// text for non-Failure errors so the fallback field is always populated.
func FailureReason(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return string(f.Reason)
	}
	return err.Error()
}
