package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"payone/config"
	"payone/entity"
	"payone/services"
)

// Request types understood by the gateway API.
const (
	requestCreditCardCheck  = "creditcardcheck"
	requestPreauthorization = "preauthorization"
	requestCapture          = "capture"
)

const apiVersion = "3.10"

// ApiClient builds signed requests for the gateway and parses its responses.
// Two endpoint classes exist: the client API (lower trust, tokenization and
// preauthorization with a signed hash) and the server API (capture and other
// merchant operations, authenticated with the key digest).
type ApiClient struct {
	conf   *config.Config
	logger services.LogHandler
	http   *resty.Client
}

func NewApiClient(conf *config.Config) *ApiClient {
	return &ApiClient{
		conf: conf,
		http: resty.New().SetTimeout(30 * time.Second),
	}
}

func (c *ApiClient) SetLogger(logger services.LogHandler) {
	c.logger = logger
}

// ClientParameters returns the standard parameter set for a client API
// request. Operation-specific fields and the hash are added by the caller.
func (c *ApiClient) ClientParameters(requestType string) map[string]string {
	return map[string]string{
		"request":      requestType,
		"responsetype": "JSON",
		"mode":         c.conf.Payone.Mode,
		"mid":          c.conf.Payone.MerchantId,
		"portalid":     c.conf.Payone.PortalId,
		"encoding":     "UTF-8",
	}
}

// ServerParameters returns the standard parameter set for a server API
// request. The key field carries the digest of the shared secret.
func (c *ApiClient) ServerParameters(requestType string) map[string]string {
	return map[string]string{
		"request":     requestType,
		"mid":         c.conf.Payone.MerchantId,
		"portalid":    c.conf.Payone.PortalId,
		"key":         ServerKeyDigest(c.conf.Payone.Key),
		"api_version": apiVersion,
		"mode":        c.conf.Payone.Mode,
		"encoding":    "UTF-8",
	}
}

// Sign computes the request hash over params with the configured secret.
func (c *ApiClient) Sign(params map[string]string) string {
	return Sign(params, c.conf.Payone.Key)
}

// TokenizationRequest builds the pre-signed static merchant parameters handed
// to the browser form. Card fields are merged in client-side and are not part
// of the hash.
func (c *ApiClient) TokenizationRequest() map[string]string {
	params := c.ClientParameters(requestCreditCardCheck)
	params["aid"] = c.conf.Payone.SubAccountId
	params["storecarddata"] = "yes"
	params[hashField] = c.Sign(params)
	return params
}

// CheckCard exchanges card data for a pseudo card number at the client API
// tokenization endpoint. The request must carry the pre-signed parameters
// from TokenizationRequest plus the card fields.
func (c *ApiClient) CheckCard(ctx context.Context, request map[string]string) (*entity.TokenizationResult, error) {
	resp, err := c.http.R().SetContext(ctx).SetFormData(request).Post(c.conf.Payone.ClientApiUrl)
	if err != nil {
		return nil, fmt.Errorf("post creditcardcheck: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("creditcardcheck http status %d", resp.StatusCode())
	}
	var result entity.TokenizationResult
	if err = json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("parse creditcardcheck response: %v", err)
	}
	return &result, nil
}

// Post sends a form-encoded request to the gateway and parses the answer.
// A non-success status is returned as *GatewayError so callers can branch on
// the processor code explicitly.
func (c *ApiClient) Post(ctx context.Context, params map[string]string, useClientEndpoint bool) (*entity.Response, error) {
	endpoint := c.conf.Payone.ServerApiUrl
	if useClientEndpoint {
		endpoint = c.conf.Payone.ClientApiUrl
	}

	resp, err := c.http.R().SetContext(ctx).SetFormData(params).Post(endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gateway request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("post gateway request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("gateway http status %d", resp.StatusCode())
	}

	response, err := parseResponse(resp.Body())
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Debug(fmt.Sprintf("gateway response: status %s; txid %s", response.Status, secret(response.Txid)))
	}
	if response.Status == entity.StatusError {
		return nil, &GatewayError{
			Code:            response.ErrorCode,
			Message:         response.ErrorMessage,
			CustomerMessage: response.CustomerMessage,
		}
	}
	return response, nil
}

// parseResponse normalizes both answer formats of the gateway: JSON from the
// client API and key=value lines from the server API.
func parseResponse(body []byte) (*entity.Response, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, fmt.Errorf("empty gateway response")
	}

	if strings.HasPrefix(text, "{") {
		var response entity.Response
		if err := json.Unmarshal([]byte(text), &response); err != nil {
			return nil, fmt.Errorf("parse gateway response: %v", err)
		}
		return &response, nil
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		fields[strings.ToLower(key)] = value
	}
	if fields["status"] == "" {
		return nil, fmt.Errorf("unrecognized gateway response: %s", text)
	}
	return &entity.Response{
		Status:          fields["status"],
		Txid:            fields["txid"],
		Userid:          fields["userid"],
		RedirectUrl:     fields["redirecturl"],
		ErrorCode:       fields["errorcode"],
		ErrorMessage:    fields["errormessage"],
		CustomerMessage: fields["customermessage"],
	}, nil
}
