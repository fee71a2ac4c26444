package internal

import (
	"context"
	"fmt"

	"payone/entity"
)

// Card form field identifiers, matching the hosted credit card form.
const (
	FieldCardType        = "cardtype"
	FieldCardPan         = "cardpan"
	FieldCardExpireMonth = "cardexpiremonth"
	FieldCardExpireYear  = "cardexpireyear"
	FieldCardCvc         = "cardcvc2"

	// Hidden fields carried back to the merchant on resubmission. Only the
	// pseudo card number is ever persisted.
	FieldPseudoCardPan    = "pseudocardpan"
	FieldTruncatedCardPan = "truncatedcardpan"
	FieldPaymentErrors    = "payment_errors"
	FieldPaymentErrorCode = "payment_errorcode"
)

// fieldErrorCodes routes client API error codes to the form field that caused
// them. Codes outside the table address the form as a whole. The table is
// fixed by the processor's client API reference and may be extended.
var fieldErrorCodes = map[string]string{
	"1076": FieldCardType,
	"1078": FieldCardPan,
	"1079": FieldCardCvc,
}

// CardDetails is the card data entered by the shopper. It exists only for the
// duration of the tokenization round-trip and is discarded afterwards; the
// merchant side never stores it.
type CardDetails struct {
	CardType    string
	Pan         string
	ExpireMonth string
	ExpireYear  string
	Cvc         string
}

// TokenizerClient exchanges card data for a pseudo card number at the
// processor's tokenization endpoint.
type TokenizerClient interface {
	CheckCard(ctx context.Context, request map[string]string) (*entity.TokenizationResult, error)
}

// CardForm models the browser-side tokenization flow: the default submit is
// intercepted, the submit control is disabled while one asynchronous
// tokenization round-trip is pending, and the registered continuation
// resubmits the form with the hidden fields populated - the pseudo card
// number on success, the error code and message otherwise.
type CardForm struct {
	request  map[string]string
	hidden   map[string]string
	client   TokenizerClient
	resubmit func(hidden map[string]string)

	attached       bool
	submitDisabled bool
}

// NewCardForm creates a form bound to the pre-signed static merchant
// parameters. The request map comes from ApiClient.TokenizationRequest.
func NewCardForm(client TokenizerClient, request map[string]string) *CardForm {
	return &CardForm{
		request: request,
		hidden: map[string]string{
			FieldPseudoCardPan:    "",
			FieldTruncatedCardPan: "",
			FieldPaymentErrors:    "",
			FieldPaymentErrorCode: "",
		},
		client: client,
	}
}

// Attach registers the resubmission continuation. Attaching twice is a no-op,
// mirroring the single-initialization guard of the browser widget.
func (f *CardForm) Attach(resubmit func(hidden map[string]string)) {
	if f.attached {
		return
	}
	f.attached = true
	f.resubmit = resubmit
}

// Submit intercepts the form submission: the submit control is disabled
// immediately so a second click cannot fire a duplicate tokenization request,
// the static parameters are merged with the card fields and the tokenization
// call is issued. The continuation fires exactly once with the populated
// hidden fields.
func (f *CardForm) Submit(ctx context.Context, card CardDetails) error {
	if !f.attached {
		return fmt.Errorf("card form not attached")
	}
	if f.submitDisabled {
		return fmt.Errorf("tokenization already pending")
	}
	f.submitDisabled = true

	request := make(map[string]string, len(f.request)+5)
	for key, value := range f.request {
		request[key] = value
	}
	request[FieldCardType] = card.CardType
	request[FieldCardPan] = card.Pan
	request[FieldCardExpireMonth] = card.ExpireMonth
	request[FieldCardExpireYear] = card.ExpireYear
	request[FieldCardCvc] = card.Cvc

	result, err := f.client.CheckCard(ctx, request)
	if err != nil {
		f.submitDisabled = false
		return err
	}

	f.HandleResponse(result)
	return nil
}

// HandleResponse is the single-shot tokenization callback. On VALID the
// hidden pseudo card number is set and the error fields cleared; on any other
// status the error fields are set and the token fields cleared. The form is
// resubmitted either way - error display is deferred to server-side
// validation of the resubmission.
func (f *CardForm) HandleResponse(result *entity.TokenizationResult) {
	if result.Status == entity.StatusValid {
		f.hidden[FieldPseudoCardPan] = result.Pseudocardpan
		f.hidden[FieldTruncatedCardPan] = result.Truncatedcardpan
		f.hidden[FieldPaymentErrors] = ""
		f.hidden[FieldPaymentErrorCode] = ""
	} else {
		f.hidden[FieldPseudoCardPan] = ""
		f.hidden[FieldTruncatedCardPan] = ""
		f.hidden[FieldPaymentErrors] = result.CustomerMessage
		f.hidden[FieldPaymentErrorCode] = result.ErrorCode
	}
	f.resubmit(f.hidden)
}

// ValidateResubmission applies the error-code routing table to a resubmitted
// form. It returns nil when the tokenization succeeded and a field-addressed
// *ValidationError otherwise.
func ValidateResubmission(values map[string]string) *ValidationError {
	message := values[FieldPaymentErrors]
	if message == "" {
		return nil
	}
	code := values[FieldPaymentErrorCode]
	return &ValidationError{
		Field:   fieldErrorCodes[code],
		Code:    code,
		Message: message,
	}
}
