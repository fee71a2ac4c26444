package services

import (
	"context"

	"payone/entity"
)

// Database persists gateway state on behalf of the payment plugin. Orders
// themselves are owned by the host commerce framework; the store only reads
// them and keeps opaque namespaced data blobs attached to them.
type Database interface {
	WriteLogMessage(data Data) error

	GetOrder(ctx context.Context, orderId string) (*entity.Order, error)

	// Namespaced order data, persisted across the redirect round-trip.
	GetWalletState(ctx context.Context, orderId, key string) (*entity.WalletState, error)
	SetWalletState(ctx context.Context, orderId, key string, state *entity.WalletState) error
	// MarkCaptured flips the captured flag with a compare-and-set on
	// (txid, captured=false). Returns false when another callback already
	// claimed the capture.
	MarkCaptured(ctx context.Context, orderId, key, txid string) (bool, error)

	GetRemoteCustomerId(ctx context.Context, customerId, gatewayId string) (string, error)
	SetRemoteCustomerId(ctx context.Context, customerId, gatewayId, remoteId string) error

	SavePayment(ctx context.Context, payment *entity.Payment) error

	GetPaymentMethod(ctx context.Context, userId string) (*entity.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, paymentMethod *entity.PaymentMethod) error

	SaveGatewayResponse(ctx context.Context, response *entity.Response) error
}

type Data interface {
	DataType() string
}
