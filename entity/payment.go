package entity

import "time"

// Redirect payment lifecycle states persisted in the order data blob.
const (
	WalletInit             = "init"
	WalletPreauthRequested = "preauth_requested"
	WalletRedirected       = "redirected"
	WalletPreauthFailed    = "preauth_failed"
	WalletReturned         = "returned"
	WalletCancelled        = "cancelled"
	WalletCaptured         = "captured"
	WalletCaptureFailed    = "capture_failed"
)

// WalletState is the correlation state persisted on the order between the
// preauthorization redirect and the return/cancel callback. Txid and Userid
// are assigned by the processor. Captured guards against double capture when
// the return callback fires more than once.
type WalletState struct {
	State    string `json:"state" bson:"state"`
	Txid     string `json:"txid" bson:"txid"`
	Userid   string `json:"userid" bson:"userid"`
	Captured bool   `json:"captured" bson:"captured"`
}

// Payment is the record handed to the host payment framework after a
// successful capture. The gateway constructs it and requests persistence;
// it does not own its further lifecycle.
type Payment struct {
	Id           string    `json:"payment_id" bson:"payment_id"`
	State        string    `json:"state" bson:"state"`
	Amount       Price     `json:"amount" bson:"amount"`
	GatewayId    string    `json:"gateway_id" bson:"gateway_id"`
	OrderId      string    `json:"order_id" bson:"order_id"`
	RemoteId     string    `json:"remote_id" bson:"remote_id"`
	RemoteState  string    `json:"remote_state" bson:"remote_state"`
	Test         bool      `json:"test" bson:"test"`
	AuthorizedAt time.Time `json:"authorized_at" bson:"authorized_at"`
}

// PaymentMethod is a stored card reference. Identifier holds the processor's
// pseudo card number; the real PAN never reaches this side of the boundary.
type PaymentMethod struct {
	UserId      string `json:"user_id" bson:"user_id"`
	Identifier  string `json:"identifier" bson:"identifier"`
	Truncated   string `json:"truncated" bson:"truncated"`
	CardType    string `json:"card_type" bson:"card_type"`
	ExpireMonth string `json:"expire_month" bson:"expire_month"`
	ExpireYear  string `json:"expire_year" bson:"expire_year"`
}

// RemoteCustomer maps an authenticated customer to the processor-assigned
// wallet userid so subsequent orders reuse the registration.
type RemoteCustomer struct {
	CustomerId string `json:"customer_id" bson:"customer_id"`
	GatewayId  string `json:"gateway_id" bson:"gateway_id"`
	RemoteId   string `json:"remote_id" bson:"remote_id"`
}
