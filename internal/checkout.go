package internal

import (
	"context"
	"fmt"

	"payone/config"
)

// StaticCheckoutFlow is a configuration-driven implementation of
// services.CheckoutFlow for shops with a fixed step sequence. Hosts with a
// dynamic checkout provide their own implementation; the gateway only relies
// on the interface.
type StaticCheckoutFlow struct {
	baseUrl     string
	paymentStep string
	steps       []config.CheckoutStep
}

func NewStaticCheckoutFlow(conf *config.Config) *StaticCheckoutFlow {
	return &StaticCheckoutFlow{
		baseUrl:     conf.Checkout.BaseUrl,
		paymentStep: conf.Checkout.PaymentStep,
		steps:       conf.Checkout.Steps,
	}
}

func (f *StaticCheckoutFlow) paymentIndex() int {
	for i, step := range f.steps {
		if step.Id == f.paymentStep {
			return i
		}
	}
	return -1
}

func (f *StaticCheckoutFlow) NextStepId(_ context.Context, orderId string) (string, error) {
	index := f.paymentIndex()
	if index < 0 || index+1 >= len(f.steps) {
		return "", fmt.Errorf("no step after %q for order %s", f.paymentStep, orderId)
	}
	return f.steps[index+1].Id, nil
}

func (f *StaticCheckoutFlow) PreviousStepId(_ context.Context, orderId string) (string, error) {
	index := f.paymentIndex()
	if index <= 0 {
		return "", fmt.Errorf("no step before %q for order %s", f.paymentStep, orderId)
	}
	return f.steps[index-1].Id, nil
}

func (f *StaticCheckoutFlow) PaneStepId(_ context.Context, _ string, paneId string) (string, error) {
	for _, step := range f.steps {
		for _, pane := range step.Panes {
			if pane == paneId {
				return step.Id, nil
			}
		}
	}
	return "", nil
}

func (f *StaticCheckoutFlow) StepUrl(orderId, stepId string) string {
	return fmt.Sprintf("%s/checkout/%s/%s", f.baseUrl, orderId, stepId)
}
