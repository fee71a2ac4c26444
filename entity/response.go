package entity

// Statuses returned by the gateway API.
const (
	StatusRedirect = "REDIRECT"
	StatusApproved = "APPROVED"
	StatusError    = "ERROR"
	StatusValid    = "VALID"
)

// Response is the parsed gateway answer to a preauthorization or capture
// request. The gateway returns either JSON or key=value lines depending on
// the endpoint; both are normalized into this structure.
type Response struct {
	Status          string `json:"status" bson:"status"`
	Txid            string `json:"txid" bson:"txid"`
	Userid          string `json:"userid" bson:"userid"`
	RedirectUrl     string `json:"redirecturl" bson:"redirecturl"`
	ErrorCode       string `json:"errorcode" bson:"errorcode"`
	ErrorMessage    string `json:"errormessage" bson:"errormessage"`
	CustomerMessage string `json:"customermessage" bson:"customermessage"`
}

// TokenizationResult is the client API answer to a creditcardcheck request.
// Only the pseudo card number may ever be persisted.
type TokenizationResult struct {
	Status           string `json:"status"`
	Pseudocardpan    string `json:"pseudocardpan"`
	Truncatedcardpan string `json:"truncatedcardpan"`
	ErrorCode        string `json:"errorcode"`
	CustomerMessage  string `json:"customermessage"`
}
