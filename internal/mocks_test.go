package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"payone/entity"
	"payone/services"
)

var errNotFound = errors.New("not found")

// fakeDatabase is an in-memory services.Database for unit tests.
type fakeDatabase struct {
	mu        sync.Mutex
	orders    map[string]*entity.Order
	states    map[string]map[string]*entity.WalletState
	remoteIds map[string]string
	payments  []*entity.Payment
	methods   []*entity.PaymentMethod
	responses []*entity.Response
	logs      []services.Data

	failSetState bool
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		orders:    make(map[string]*entity.Order),
		states:    make(map[string]map[string]*entity.WalletState),
		remoteIds: make(map[string]string),
	}
}

func remoteKey(customerId, gatewayId string) string {
	return customerId + "|" + gatewayId
}

func (d *fakeDatabase) WriteLogMessage(data services.Data) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append(d.logs, data)
	return nil
}

func (d *fakeDatabase) GetOrder(_ context.Context, orderId string) (*entity.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	order, ok := d.orders[orderId]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderId, errNotFound)
	}
	return order, nil
}

func (d *fakeDatabase) GetWalletState(_ context.Context, orderId, key string) (*entity.WalletState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.states[orderId][key]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (d *fakeDatabase) SetWalletState(_ context.Context, orderId, key string, state *entity.WalletState) error {
	if d.failSetState {
		return errors.New("store unavailable")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.states[orderId] == nil {
		d.states[orderId] = make(map[string]*entity.WalletState)
	}
	copied := *state
	d.states[orderId][key] = &copied
	return nil
}

func (d *fakeDatabase) MarkCaptured(_ context.Context, orderId, key, txid string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.states[orderId][key]
	if !ok || state.Txid != txid || state.Captured {
		return false, nil
	}
	state.Captured = true
	state.State = entity.WalletCaptured
	return true, nil
}

func (d *fakeDatabase) GetRemoteCustomerId(_ context.Context, customerId, gatewayId string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remoteIds[remoteKey(customerId, gatewayId)], nil
}

func (d *fakeDatabase) SetRemoteCustomerId(_ context.Context, customerId, gatewayId, remoteId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remoteIds[remoteKey(customerId, gatewayId)] = remoteId
	return nil
}

func (d *fakeDatabase) SavePayment(_ context.Context, payment *entity.Payment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payments = append(d.payments, payment)
	return nil
}

func (d *fakeDatabase) GetPaymentMethod(_ context.Context, userId string) (*entity.PaymentMethod, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, method := range d.methods {
		if method.UserId == userId {
			return method, nil
		}
	}
	return nil, errNotFound
}

func (d *fakeDatabase) SavePaymentMethod(_ context.Context, paymentMethod *entity.PaymentMethod) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.methods = append(d.methods, paymentMethod)
	return nil
}

func (d *fakeDatabase) SaveGatewayResponse(_ context.Context, response *entity.Response) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append(d.responses, response)
	return nil
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string)        {}
func (nopLogger) Info(string)         {}
func (nopLogger) Warn(string)         {}
func (nopLogger) Error(string, error) {}

// fakeCheckout is a scripted services.CheckoutFlow.
type fakeCheckout struct {
	next     string
	previous string
	paneStep string
}

func (f *fakeCheckout) NextStepId(context.Context, string) (string, error) {
	if f.next == "" {
		return "", errors.New("no next step")
	}
	return f.next, nil
}

func (f *fakeCheckout) PreviousStepId(context.Context, string) (string, error) {
	if f.previous == "" {
		return "", errors.New("no previous step")
	}
	return f.previous, nil
}

func (f *fakeCheckout) PaneStepId(context.Context, string, string) (string, error) {
	return f.paneStep, nil
}

func (f *fakeCheckout) StepUrl(orderId, stepId string) string {
	return "http://shop.test/checkout/" + orderId + "/" + stepId
}

// fakeGateway has no redirect capability; used to exercise the access fault.
type fakeGateway struct {
	id           string
	response     *entity.Response
	err          error
	preauthCalls int
	captureCalls int
}

func (g *fakeGateway) Id() string {
	return g.id
}

func (g *fakeGateway) Preauthorize(context.Context, *entity.Order) (*entity.Response, error) {
	g.preauthCalls++
	return g.response, g.err
}

func (g *fakeGateway) Capture(context.Context, *entity.Order) (*entity.Response, error) {
	g.captureCalls++
	return g.response, g.err
}

// fakeRedirectGateway adds scripted return/cancel handling on top.
type fakeRedirectGateway struct {
	fakeGateway
	returnErr   error
	cancelErr   error
	returnCalls int
	cancelCalls int
	remoteState string
}

func (g *fakeRedirectGateway) OnReturn(_ context.Context, _ *entity.Order, remoteState string) error {
	g.returnCalls++
	g.remoteState = remoteState
	return g.returnErr
}

func (g *fakeRedirectGateway) OnCancel(context.Context, *entity.Order, string, string) error {
	g.cancelCalls++
	return g.cancelErr
}
