package internal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"payone/config"
	"payone/entity"
	"payone/services"
)

const (
	// walletDataKey is the namespace of the data blob kept on the order
	// across the redirect round-trip.
	walletDataKey = "payone_wallet"

	clearingTypeWallet = "wlt"
	walletTypePaypal   = "PPE"

	paymentStateAuthorization = "authorization"
)

// Wallet is the off-site redirect payment gateway for the processor's
// e-wallet channel. It drives the order through
// preauthorize -> redirect -> return/cancel -> capture, persisting the
// correlation state on the order between the steps.
// Per-order locking allows concurrent callbacks for different orders while
// serializing operations on the same order.
type Wallet struct {
	conf     *config.Config
	api      *ApiClient
	database services.Database
	logger   services.LogHandler
	locks    sync.Map // map[string]*sync.Mutex for per-order locking
	now      func() time.Time
}

func NewWallet(conf *config.Config, api *ApiClient) *Wallet {
	return &Wallet{
		conf:  conf,
		api:   api,
		locks: sync.Map{},
		now:   time.Now,
	}
}

func (w *Wallet) SetDatabase(database services.Database) {
	w.database = database
}

func (w *Wallet) SetLogger(logger services.LogHandler) {
	w.logger = logger
}

func (w *Wallet) Id() string {
	return walletDataKey
}

// lockOrder acquires the lock for a specific order to prevent concurrent
// modifications, e.g. when the processor delivers the return callback twice.
func (w *Wallet) lockOrder(id string) *sync.Mutex {
	value, _ := w.locks.LoadOrStore(id, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex
}

// unlockOrder releases the lock and removes the mutex from the map to prevent
// unbounded growth.
func (w *Wallet) unlockOrder(id string, mutex *sync.Mutex) {
	mutex.Unlock()
	w.locks.Delete(id)
}

// Preauthorize reserves the order total with the processor. On a REDIRECT
// answer the txid/userid pair is persisted on the order before the caller may
// issue any redirect instruction; on any other outcome the order state stays
// untouched.
func (w *Wallet) Preauthorize(ctx context.Context, order *entity.Order) (*entity.Response, error) {
	mutex := w.lockOrder(order.Id)
	defer w.unlockOrder(order.Id, mutex)

	if w.conf.Payone.Key == "" || w.conf.Payone.MerchantId == "" || w.conf.Payone.PortalId == "" {
		return nil, fmt.Errorf("merchant not configured")
	}
	if w.database == nil {
		return nil, fmt.Errorf("database not set")
	}

	amount, err := order.Total.MinorUnits()
	if err != nil {
		return nil, fmt.Errorf("order %s amount: %w", order.Id, err)
	}

	params := w.api.ClientParameters(requestPreauthorization)
	params["aid"] = w.conf.Payone.SubAccountId
	params["clearingtype"] = clearingTypeWallet
	// The processor rejects duplicate references, so every attempt gets a
	// fresh one.
	params["reference"] = fmt.Sprintf("%s_%d", order.Id, w.now().Unix())
	params["amount"] = strconv.FormatInt(amount, 10)
	params["currency"] = order.Total.CurrencyCode

	customer := order.Customer
	if customer != nil && customer.Authenticated {
		remoteId, err := w.database.GetRemoteCustomerId(ctx, customer.Id, w.Id())
		if err != nil {
			w.logger.Error("get remote customer id", err)
		} else if remoteId != "" {
			params["userid"] = remoteId
		}
	}

	params["successurl"] = w.callbackUrl(order, "return")
	params["backurl"] = w.callbackUrl(order, "cancel")
	params["errorurl"] = w.callbackUrl(order, "cancel")
	params[hashField] = w.api.Sign(params)

	// Address, email and wallet type are appended after the hash; the
	// processor does not include them in the signature.
	if address := order.BillingAddress; address != nil {
		params["firstname"] = address.GivenName
		params["lastname"] = address.FamilyName
		params["company"] = address.Organization
		params["street"] = address.AddressLine1
		params["addressaddition"] = address.AddressLine2
		params["zip"] = address.PostalCode
		params["city"] = address.Locality
		params["country"] = address.CountryCode
	}
	if customer != nil && customer.Email != "" {
		params["email"] = customer.Email
	}
	params["wallettype"] = walletTypePaypal

	response, err := w.api.Post(ctx, params, true)
	if err != nil {
		var gatewayErr *GatewayError
		if errors.As(err, &gatewayErr) {
			w.logger.Error(fmt.Sprintf("preauthorization failed for order %s: %s [%s]",
				order.Id, gatewayErr.Message, gatewayErr.Code), nil)
		}
		return nil, err
	}

	w.saveGatewayResponse(ctx, response)

	if response.Status == entity.StatusRedirect {
		state := &entity.WalletState{
			State:  entity.WalletRedirected,
			Txid:   response.Txid,
			Userid: response.Userid,
		}
		if err = w.database.SetWalletState(ctx, order.Id, walletDataKey, state); err != nil {
			return nil, fmt.Errorf("persist wallet state for order %s: %w", order.Id, err)
		}
		w.logger.Info(fmt.Sprintf("order %s preauthorized: txid %s", order.Id, secret(response.Txid)))

		if customer != nil && customer.Authenticated && response.Userid != "" {
			if err = w.database.SetRemoteCustomerId(ctx, customer.Id, w.Id(), response.Userid); err != nil {
				w.logger.Error("save remote customer id", err)
			}
		}
	}

	return response, nil
}

// Capture finalizes a previously authorized reservation. The transaction id
// comes from the wallet state persisted at preauthorization time.
func (w *Wallet) Capture(ctx context.Context, order *entity.Order) (*entity.Response, error) {
	state, err := w.database.GetWalletState(ctx, order.Id, walletDataKey)
	if err != nil {
		return nil, fmt.Errorf("get wallet state for order %s: %w", order.Id, err)
	}
	if state == nil || state.Txid == "" {
		return nil, fmt.Errorf("no pending wallet transaction for order %s", order.Id)
	}
	return w.capture(ctx, order, state.Txid)
}

func (w *Wallet) capture(ctx context.Context, order *entity.Order, txid string) (*entity.Response, error) {
	amount, err := order.Total.MinorUnits()
	if err != nil {
		return nil, fmt.Errorf("order %s amount: %w", order.Id, err)
	}

	params := w.api.ServerParameters(requestCapture)
	params["amount"] = strconv.FormatInt(amount, 10)
	params["currency"] = order.Total.CurrencyCode
	params["txid"] = txid

	response, err := w.api.Post(ctx, params, false)
	if err != nil {
		return nil, err
	}
	w.saveGatewayResponse(ctx, response)
	return response, nil
}

// OnReturn handles the processor's return callback: capture the reserved
// funds, hand a Payment record to the host framework and mark the wallet
// state captured. Repeated callbacks for an already captured transaction are
// a no-op success, not a duplicate charge.
func (w *Wallet) OnReturn(ctx context.Context, order *entity.Order, remoteState string) error {
	mutex := w.lockOrder(order.Id)
	defer w.unlockOrder(order.Id, mutex)

	state, err := w.database.GetWalletState(ctx, order.Id, walletDataKey)
	if err != nil {
		return fmt.Errorf("get wallet state for order %s: %w", order.Id, err)
	}
	if state == nil || state.Txid == "" {
		return fmt.Errorf("no pending wallet transaction for order %s", order.Id)
	}
	if state.Captured {
		w.logger.Warn(fmt.Sprintf("order %s already captured, ignoring repeated return", order.Id))
		return nil
	}

	if _, err = w.capture(ctx, order, state.Txid); err != nil {
		state.State = entity.WalletCaptureFailed
		if e := w.database.SetWalletState(ctx, order.Id, walletDataKey, state); e != nil {
			w.logger.Error("persist wallet state", e)
		}
		return err
	}

	payment := &entity.Payment{
		Id:           uuid.NewString(),
		State:        paymentStateAuthorization,
		Amount:       order.Total,
		GatewayId:    w.Id(),
		OrderId:      order.Id,
		RemoteId:     state.Txid,
		RemoteState:  remoteState,
		Test:         w.conf.Payone.Mode == "test",
		AuthorizedAt: w.now(),
	}
	if err = w.database.SavePayment(ctx, payment); err != nil {
		return fmt.Errorf("save payment for order %s: %w", order.Id, err)
	}

	claimed, err := w.database.MarkCaptured(ctx, order.Id, walletDataKey, state.Txid)
	if err != nil {
		return fmt.Errorf("mark order %s captured: %w", order.Id, err)
	}
	if !claimed {
		w.logger.Warn(fmt.Sprintf("order %s was captured concurrently", order.Id))
	}
	w.logger.Info(fmt.Sprintf("order %s captured: txid %s", order.Id, secret(state.Txid)))
	return nil
}

// OnCancel handles the processor's cancel callback. An ERROR status carries a
// message for the shopper, returned as *GatewayError; a plain abort returns
// nil. The wallet state moves to cancelled either way, keeping txid for audit.
func (w *Wallet) OnCancel(ctx context.Context, order *entity.Order, status, customerMessage string) error {
	mutex := w.lockOrder(order.Id)
	defer w.unlockOrder(order.Id, mutex)

	state, err := w.database.GetWalletState(ctx, order.Id, walletDataKey)
	if err != nil {
		w.logger.Error("get wallet state", err)
	}
	if state != nil && !state.Captured {
		state.State = entity.WalletCancelled
		if err = w.database.SetWalletState(ctx, order.Id, walletDataKey, state); err != nil {
			w.logger.Error("persist wallet state", err)
		}
	}

	if status == entity.StatusError {
		w.logger.Warn(fmt.Sprintf("order %s cancelled with error: %s", order.Id, customerMessage))
		return &GatewayError{Code: status, CustomerMessage: customerMessage}
	}
	w.logger.Info(fmt.Sprintf("order %s cancelled by shopper", order.Id))
	return nil
}

func (w *Wallet) callbackUrl(order *entity.Order, kind string) string {
	return fmt.Sprintf("%s/checkout/%s/%s", w.conf.Checkout.BaseUrl, order.Id, kind)
}

func (w *Wallet) saveGatewayResponse(ctx context.Context, response *entity.Response) {
	if err := w.database.SaveGatewayResponse(ctx, response); err != nil {
		w.logger.Error("save gateway response", err)
	}
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
