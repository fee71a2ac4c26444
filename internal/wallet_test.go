package internal

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payone/entity"
)

func testOrder() *entity.Order {
	return &entity.Order{
		Id:        "100",
		Total:     entity.Price{Number: "49.00", CurrencyCode: "EUR"},
		GatewayId: walletDataKey,
		Customer: &entity.Customer{
			Id:            "7",
			Email:         "shopper@example.com",
			Authenticated: true,
		},
		BillingAddress: &entity.Address{
			GivenName:    "Erika",
			FamilyName:   "Mustermann",
			AddressLine1: "Heidestrasse 17",
			PostalCode:   "51147",
			Locality:     "Koeln",
			CountryCode:  "DE",
		},
	}
}

func newTestWallet(t *testing.T, stub *processorStub) (*Wallet, *fakeDatabase) {
	t.Helper()
	ts := httptest.NewServer(stub.handler())
	t.Cleanup(ts.Close)

	conf := testConfig(ts.URL, ts.URL)
	wallet := NewWallet(conf, NewApiClient(conf))
	wallet.SetLogger(nopLogger{})
	database := newFakeDatabase()
	wallet.SetDatabase(database)
	wallet.now = func() time.Time { return time.Unix(1700000000, 0) }
	return wallet, database
}

// unsigned fields appended after the hash, excluded from signing.
var unsignedFields = []string{
	"firstname", "lastname", "company", "street", "addressaddition",
	"zip", "city", "country", "email", "wallettype",
}

func TestWalletPreauthorizeRedirect(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345","userid":"118","redirecturl":"https://processor.example/r"}`}
	wallet, database := newTestWallet(t, stub)

	response, err := wallet.Preauthorize(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRedirect, response.Status)
	assert.Equal(t, "https://processor.example/r", response.RedirectUrl)

	// The txid/userid pair is on the order before any redirect happens.
	state, err := database.GetWalletState(context.Background(), "100", walletDataKey)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, entity.WalletRedirected, state.State)
	assert.Equal(t, "220012345", state.Txid)
	assert.Equal(t, "118", state.Userid)
	assert.False(t, state.Captured)

	// The processor account reference is remembered for the customer.
	remoteId, err := database.GetRemoteCustomerId(context.Background(), "7", walletDataKey)
	require.NoError(t, err)
	assert.Equal(t, "118", remoteId)
}

func TestWalletPreauthorizeParameters(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345"}`}
	wallet, _ := newTestWallet(t, stub)

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	require.NoError(t, err)

	form := stub.request(0)
	assert.Equal(t, "preauthorization", form.Get("request"))
	assert.Equal(t, "wlt", form.Get("clearingtype"))
	assert.Equal(t, "PPE", form.Get("wallettype"))
	assert.Equal(t, "4900", form.Get("amount"))
	assert.Equal(t, "EUR", form.Get("currency"))
	assert.Equal(t, "100_1700000000", form.Get("reference"))
	assert.Equal(t, "https://shop.example.com/checkout/100/return", form.Get("successurl"))
	assert.Equal(t, "https://shop.example.com/checkout/100/cancel", form.Get("backurl"))
	assert.Equal(t, "https://shop.example.com/checkout/100/cancel", form.Get("errorurl"))

	assert.Equal(t, "Erika", form.Get("firstname"))
	assert.Equal(t, "Mustermann", form.Get("lastname"))
	assert.Equal(t, "51147", form.Get("zip"))
	assert.Equal(t, "DE", form.Get("country"))
	assert.Equal(t, "shopper@example.com", form.Get("email"))
}

func TestWalletPreauthorizeHashCoversSignedFieldsOnly(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345"}`}
	wallet, _ := newTestWallet(t, stub)

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	require.NoError(t, err)

	form := stub.request(0)
	signed := make(map[string]string)
	for key := range form {
		signed[key] = form.Get(key)
	}
	delete(signed, hashField)
	for _, field := range unsignedFields {
		delete(signed, field)
	}
	assert.Equal(t, Sign(signed, "secret"), form.Get(hashField))
}

func TestWalletPreauthorizeSendsKnownCustomerId(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345"}`}
	wallet, database := newTestWallet(t, stub)
	require.NoError(t, database.SetRemoteCustomerId(context.Background(), "7", walletDataKey, "118"))

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "118", stub.request(0).Get("userid"))
}

func TestWalletPreauthorizeAnonymousCustomerHasNoUserid(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345"}`}
	wallet, database := newTestWallet(t, stub)

	order := testOrder()
	order.Customer.Authenticated = false

	_, err := wallet.Preauthorize(context.Background(), order)
	require.NoError(t, err)
	assert.Empty(t, stub.request(0).Get("userid"))

	// Nothing gets remembered for an anonymous checkout either.
	remoteId, err := database.GetRemoteCustomerId(context.Background(), "7", walletDataKey)
	require.NoError(t, err)
	assert.Empty(t, remoteId)
}

func TestWalletPreauthorizeUniqueReferencePerAttempt(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345"}`}
	wallet, _ := newTestWallet(t, stub)

	clock := int64(1700000000)
	wallet.now = func() time.Time {
		clock++
		return time.Unix(clock, 0)
	}

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	require.NoError(t, err)
	_, err = wallet.Preauthorize(context.Background(), testOrder())
	require.NoError(t, err)

	assert.NotEqual(t, stub.request(0).Get("reference"), stub.request(1).Get("reference"))
}

func TestWalletPreauthorizeErrorLeavesOrderUntouched(t *testing.T) {
	stub := &processorStub{body: `{"status":"ERROR","errorcode":"925","errormessage":"declined","customermessage":"Payment declined."}`}
	wallet, database := newTestWallet(t, stub)

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	var gatewayErr *GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, "Payment declined.", gatewayErr.CustomerMessage)

	state, err := database.GetWalletState(context.Background(), "100", walletDataKey)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestWalletPreauthorizeFailsWhenStateCannotPersist(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT","txid":"220012345"}`}
	wallet, database := newTestWallet(t, stub)
	database.failSetState = true

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	assert.Error(t, err)
}

func TestWalletPreauthorizeRequiresMerchantConfig(t *testing.T) {
	stub := &processorStub{body: `{"status":"REDIRECT"}`}
	wallet, _ := newTestWallet(t, stub)
	wallet.conf.Payone.Key = ""

	_, err := wallet.Preauthorize(context.Background(), testOrder())
	assert.Error(t, err)
	assert.Zero(t, stub.count())
}

func TestWalletOnReturnCaptures(t *testing.T) {
	stub := &processorStub{body: "status=APPROVED\ntxid=220012345\n"}
	wallet, database := newTestWallet(t, stub)
	seedRedirected(t, database)

	require.NoError(t, wallet.OnReturn(context.Background(), testOrder(), "paid"))

	form := stub.request(0)
	assert.Equal(t, "capture", form.Get("request"))
	assert.Equal(t, "220012345", form.Get("txid"))
	assert.Equal(t, "4900", form.Get("amount"))
	assert.Equal(t, ServerKeyDigest("secret"), form.Get("key"))

	state, err := database.GetWalletState(context.Background(), "100", walletDataKey)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, entity.WalletCaptured, state.State)
	assert.True(t, state.Captured)

	require.Len(t, database.payments, 1)
	payment := database.payments[0]
	assert.Equal(t, "authorization", payment.State)
	assert.Equal(t, "220012345", payment.RemoteId)
	assert.Equal(t, "paid", payment.RemoteState)
	assert.Equal(t, walletDataKey, payment.GatewayId)
	assert.Equal(t, "100", payment.OrderId)
	assert.True(t, payment.Test)
	assert.NotEmpty(t, payment.Id)
}

func TestWalletOnReturnIsIdempotent(t *testing.T) {
	stub := &processorStub{body: "status=APPROVED\ntxid=220012345\n"}
	wallet, database := newTestWallet(t, stub)
	seedRedirected(t, database)

	require.NoError(t, wallet.OnReturn(context.Background(), testOrder(), "paid"))
	require.NoError(t, wallet.OnReturn(context.Background(), testOrder(), "paid"))

	// The repeated callback never reaches the processor again.
	assert.Equal(t, 1, stub.count())
	assert.Len(t, database.payments, 1)
}

func TestWalletOnReturnCaptureFailure(t *testing.T) {
	stub := &processorStub{body: `{"status":"ERROR","errorcode":"918","errormessage":"capture failed"}`}
	wallet, database := newTestWallet(t, stub)
	seedRedirected(t, database)

	err := wallet.OnReturn(context.Background(), testOrder(), "paid")
	require.Error(t, err)

	state, stateErr := database.GetWalletState(context.Background(), "100", walletDataKey)
	require.NoError(t, stateErr)
	require.NotNil(t, state)
	assert.Equal(t, entity.WalletCaptureFailed, state.State)
	assert.False(t, state.Captured)
	assert.Empty(t, database.payments)
}

func TestWalletOnReturnWithoutPendingTransaction(t *testing.T) {
	stub := &processorStub{body: "status=APPROVED\n"}
	wallet, _ := newTestWallet(t, stub)

	err := wallet.OnReturn(context.Background(), testOrder(), "paid")
	assert.Error(t, err)
	assert.Zero(t, stub.count())
}

func TestWalletOnCancelByShopper(t *testing.T) {
	stub := &processorStub{}
	wallet, database := newTestWallet(t, stub)
	seedRedirected(t, database)

	require.NoError(t, wallet.OnCancel(context.Background(), testOrder(), "", ""))

	state, err := database.GetWalletState(context.Background(), "100", walletDataKey)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, entity.WalletCancelled, state.State)
	// The txid survives the cancellation for audit.
	assert.Equal(t, "220012345", state.Txid)
}

func TestWalletOnCancelWithError(t *testing.T) {
	stub := &processorStub{}
	wallet, database := newTestWallet(t, stub)
	seedRedirected(t, database)

	err := wallet.OnCancel(context.Background(), testOrder(), entity.StatusError, "Payment failed, please retry.")
	var gatewayErr *GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, "Payment failed, please retry.", gatewayErr.CustomerMessage)
}

func TestWalletCaptureWithoutState(t *testing.T) {
	stub := &processorStub{}
	wallet, _ := newTestWallet(t, stub)

	_, err := wallet.Capture(context.Background(), testOrder())
	assert.Error(t, err)
	assert.Zero(t, stub.count())
}

func seedRedirected(t *testing.T, database *fakeDatabase) {
	t.Helper()
	err := database.SetWalletState(context.Background(), "100", walletDataKey, &entity.WalletState{
		State:  entity.WalletRedirected,
		Txid:   "220012345",
		Userid: "118",
	})
	require.NoError(t, err)
}

func TestSecretMasking(t *testing.T) {
	assert.Equal(t, "22001***", secret("220012345"))
	assert.Equal(t, "***", secret("abc"))
	assert.Equal(t, "?", secret(""))
}
