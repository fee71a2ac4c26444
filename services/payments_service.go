package services

import (
	"context"

	"payone/entity"
)

// Gateway is the capability every payment gateway plugin exposes.
type Gateway interface {
	Id() string
	Preauthorize(ctx context.Context, order *entity.Order) (*entity.Response, error)
	Capture(ctx context.Context, order *entity.Order) (*entity.Response, error)
}

// RedirectGateway marks gateways that send the shopper off-site and handle
// the processor's return/cancel callbacks. The return and cancel endpoints
// refuse orders whose gateway does not implement it.
type RedirectGateway interface {
	Gateway
	OnReturn(ctx context.Context, order *entity.Order, remoteState string) error
	OnCancel(ctx context.Context, order *entity.Order, status, customerMessage string) error
}

// CheckoutFlow navigates the host framework's multi-step checkout. The
// redirect round-trip always happens at the payment step, so next/previous
// are relative to it.
type CheckoutFlow interface {
	NextStepId(ctx context.Context, orderId string) (string, error)
	PreviousStepId(ctx context.Context, orderId string) (string, error)
	// PaneStepId returns the step carrying the named checkout pane, or ""
	// when no step carries it.
	PaneStepId(ctx context.Context, orderId, paneId string) (string, error)
	StepUrl(orderId, stepId string) string
}
