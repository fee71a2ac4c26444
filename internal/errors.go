package internal

import "fmt"

// GatewayError carries a non-success processor answer. It is logged with the
// technical code and message while only CustomerMessage may be surfaced to
// the shopper. Gateway errors are never retried automatically.
type GatewayError struct {
	Code            string
	Message         string
	CustomerMessage string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// ValidationError is a field-level rejection of submitted card data. An empty
// Field addresses the form as a whole.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("card data rejected (code %s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("field %s rejected (code %s): %s", e.Field, e.Code, e.Message)
}

// AccessFault signals that a return/cancel callback arrived for an order
// whose configured gateway has no redirect capability. This indicates
// misconfiguration or tampering and is not recoverable.
type AccessFault struct {
	OrderId   string
	GatewayId string
}

func (e *AccessFault) Error() string {
	return fmt.Sprintf("gateway %q of order %s does not support redirect payments", e.GatewayId, e.OrderId)
}
