// Package entity defines data models for the payment gateway service.
package entity

// Address holds the billing address fields forwarded to the gateway with a
// preauthorization request. All fields are optional.
type Address struct {
	GivenName    string `json:"given_name" bson:"given_name"`
	FamilyName   string `json:"family_name" bson:"family_name"`
	Organization string `json:"organization" bson:"organization"`
	AddressLine1 string `json:"address_line1" bson:"address_line1"`
	AddressLine2 string `json:"address_line2" bson:"address_line2"`
	PostalCode   string `json:"postal_code" bson:"postal_code"`
	Locality     string `json:"locality" bson:"locality"`
	CountryCode  string `json:"country_code" bson:"country_code"`
}

// Customer identifies the shopper placing the order. Anonymous checkouts have
// Authenticated set to false and no remote customer id is ever stored for them.
type Customer struct {
	Id            string `json:"customer_id" bson:"customer_id"`
	Email         string `json:"email" bson:"email"`
	Authenticated bool   `json:"authenticated" bson:"authenticated"`
}

// Order is the checkout order as owned by the host commerce framework. The
// gateway only reads it and attaches namespaced data blobs through the order
// store; it never mutates the order itself.
type Order struct {
	Id             string    `json:"order_id" bson:"order_id"`
	Total          Price     `json:"total" bson:"total"`
	GatewayId      string    `json:"gateway_id" bson:"gateway_id"`
	Customer       *Customer `json:"customer,omitempty" bson:"customer,omitempty"`
	BillingAddress *Address  `json:"billing_address,omitempty" bson:"billing_address,omitempty"`
}
