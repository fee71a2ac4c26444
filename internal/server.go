package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"payone/config"
	"payone/entity"
	"payone/services"
)

const (
	payCheckout      = "/checkout/:order_id/pay"
	returnCheckout   = "/checkout/:order_id/return"
	cancelCheckout   = "/checkout/:order_id/cancel"
	addPaymentMethod = "/checkout/:order_id/payment-method"
)

// paneIDPaymentInformation is the checkout pane the cancel handler rewinds
// to, so the shopper lands back on the payment entry step.
const paneIDPaymentInformation = "payment_information"

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	gateways   map[string]services.Gateway
	checkout   services.CheckoutFlow
	database   services.Database
	logger     services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf:     conf,
		gateways: make(map[string]services.Gateway),
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(payCheckout, s.payOrder)
	router.GET(returnCheckout, s.returnCheckout)
	router.POST(cancelCheckout, s.cancelCheckout)
	router.POST(addPaymentMethod, s.addPaymentMethod)
	router.GET(addPaymentMethod, s.getPaymentMethod)
}

func (s *Server) RegisterGateway(gateway services.Gateway) {
	s.gateways[gateway.Id()] = gateway
}

func (s *Server) SetCheckout(checkout services.CheckoutFlow) {
	s.checkout = checkout
}

func (s *Server) SetDatabase(database services.Database) {
	s.database = database
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

// loadOrder resolves the order referenced by the route. A missing order is a
// client error, not a fault.
func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params, reqID string) *entity.Order {
	orderId := ps.ByName("order_id")
	if orderId == "" {
		s.logger.Warn(fmt.Sprintf("[%s] empty order id", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}
	order, err := s.database.GetOrder(r.Context(), orderId)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] unknown order %s: %v", reqID, orderId, err))
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	return order
}

// redirectGateway enforces the redirect capability precondition shared by the
// return and cancel endpoints. A gateway without the capability is an access
// fault: the callback is refused and no processor call is made.
func (s *Server) redirectGateway(w http.ResponseWriter, order *entity.Order, reqID string) services.RedirectGateway {
	gateway, ok := s.gateways[order.GatewayId]
	if !ok {
		s.logger.Warn(fmt.Sprintf("[%s] unknown gateway %q for order %s", reqID, order.GatewayId, order.Id))
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	redirect, ok := gateway.(services.RedirectGateway)
	if !ok {
		fault := &AccessFault{OrderId: order.Id, GatewayId: order.GatewayId}
		s.logger.Error(fmt.Sprintf("[%s] callback refused", reqID), fault)
		w.WriteHeader(http.StatusForbidden)
		return nil
	}
	return redirect
}

// payOrder triggers the preauthorization when checkout reaches the payment
// step. A REDIRECT answer sends the shopper to the processor's hosted page;
// anything else rewinds checkout without touching order state.
func (s *Server) payOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	order := s.loadOrder(w, r, ps, reqID)
	if order == nil {
		return
	}
	gateway, ok := s.gateways[order.GatewayId]
	if !ok {
		s.logger.Warn(fmt.Sprintf("[%s] unknown gateway %q for order %s", reqID, order.GatewayId, order.Id))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	response, err := gateway.Preauthorize(ctx, order)
	if err != nil || response.Status != entity.StatusRedirect {
		if err != nil {
			s.logger.Error(fmt.Sprintf("[%s] preauthorize order %s", reqID, order.Id), err)
		} else {
			s.logger.Warn(fmt.Sprintf("[%s] unexpected preauthorization status %s for order %s", reqID, response.Status, order.Id))
		}
		s.rewindCheckout(ctx, w, r, order, reqID)
		return
	}

	http.Redirect(w, r, response.RedirectUrl, http.StatusSeeOther)
}

// returnCheckout handles the processor's redirect back after a successful
// authorization: capture, then advance checkout. A failed capture surfaces
// the error and rewinds instead.
func (s *Server) returnCheckout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	order := s.loadOrder(w, r, ps, reqID)
	if order == nil {
		return
	}
	gateway := s.redirectGateway(w, order, reqID)
	if gateway == nil {
		return
	}

	query := r.URL.Query()
	if s.conf.Payone.VerifyResponseHash {
		fields := make(map[string]string, len(query))
		for key := range query {
			fields[key] = query.Get(key)
		}
		if !VerifyHash(fields, s.conf.Payone.Key, query.Get(hashField)) {
			s.logger.Warn(fmt.Sprintf("[%s] return for order %s: response hash mismatch", reqID, order.Id))
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	remoteState := query.Get("payment_status")
	if err := gateway.OnReturn(ctx, order, remoteState); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] return for order %s", reqID, order.Id), err)
		s.rewindCheckout(ctx, w, r, order, reqID)
		return
	}

	step, err := s.checkout.NextStepId(ctx, order.Id)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] next checkout step for order %s", reqID, order.Id), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, s.checkout.StepUrl(order.Id, step), http.StatusSeeOther)
}

// cancelCheckout handles the processor's cancel callback and rewinds checkout
// to the step carrying the payment information pane, falling back to the
// general previous step.
func (s *Server) cancelCheckout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	order := s.loadOrder(w, r, ps, reqID)
	if order == nil {
		return
	}
	gateway := s.redirectGateway(w, order, reqID)
	if gateway == nil {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] cancel for order %s: parse form: %v", reqID, order.Id, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	status := r.PostFormValue("status")
	customerMessage := r.PostFormValue("customermessage")

	if err := gateway.OnCancel(ctx, order, status, customerMessage); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] cancel for order %s", reqID, order.Id), err)
	}

	step, err := s.checkout.PaneStepId(ctx, order.Id, paneIDPaymentInformation)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] pane step for order %s", reqID, order.Id), err)
	}
	if step == "" {
		step, err = s.checkout.PreviousStepId(ctx, order.Id)
		if err != nil {
			s.logger.Error(fmt.Sprintf("[%s] previous checkout step for order %s", reqID, order.Id), err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	http.Redirect(w, r, s.checkout.StepUrl(order.Id, step), http.StatusSeeOther)
}

// addPaymentMethod accepts the resubmitted tokenization form. Field-level
// errors from the client API are routed to the offending form field; a valid
// resubmission stores the pseudo card number as the payment method.
func (s *Server) addPaymentMethod(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	order := s.loadOrder(w, r, ps, reqID)
	if order == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] payment method for order %s: parse form: %v", reqID, order.Id, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	values := map[string]string{
		FieldPaymentErrors:    r.PostFormValue(FieldPaymentErrors),
		FieldPaymentErrorCode: r.PostFormValue(FieldPaymentErrorCode),
	}
	if validationErr := ValidateResubmission(values); validationErr != nil {
		s.logger.Warn(fmt.Sprintf("[%s] card data rejected for order %s: %v", reqID, order.Id, validationErr))
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"field":   validationErr.Field,
			"code":    validationErr.Code,
			"message": validationErr.Message,
		})
		return
	}

	pseudoCardPan := r.PostFormValue(FieldPseudoCardPan)
	if pseudoCardPan == "" {
		s.logger.Warn(fmt.Sprintf("[%s] missing pseudo card number for order %s", reqID, order.Id))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if order.Customer == nil {
		s.logger.Warn(fmt.Sprintf("[%s] order %s has no customer", reqID, order.Id))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	method := &entity.PaymentMethod{
		UserId:      order.Customer.Id,
		Identifier:  pseudoCardPan,
		Truncated:   r.PostFormValue(FieldTruncatedCardPan),
		CardType:    r.PostFormValue(FieldCardType),
		ExpireMonth: r.PostFormValue(FieldCardExpireMonth),
		ExpireYear:  r.PostFormValue(FieldCardExpireYear),
	}
	if err := s.database.SavePaymentMethod(ctx, method); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] save payment method for order %s", reqID, order.Id), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.logger.Info(fmt.Sprintf("[%s] payment method %s saved for order %s", reqID, secret(pseudoCardPan), order.Id))
	w.WriteHeader(http.StatusCreated)
}

// getPaymentMethod returns the stored card reference of the order's customer.
// The pseudo card number stays server-side; only display data goes out.
func (s *Server) getPaymentMethod(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	order := s.loadOrder(w, r, ps, reqID)
	if order == nil {
		return
	}
	if order.Customer == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	method, err := s.database.GetPaymentMethod(ctx, order.Customer.Id)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] no payment method for order %s: %v", reqID, order.Id, err))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"truncated":    method.Truncated,
		"card_type":    method.CardType,
		"expire_month": method.ExpireMonth,
		"expire_year":  method.ExpireYear,
	})
}

func (s *Server) rewindCheckout(ctx context.Context, w http.ResponseWriter, r *http.Request, order *entity.Order, reqID string) {
	step, err := s.checkout.PreviousStepId(ctx, order.Id)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] previous checkout step for order %s", reqID, order.Id), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, s.checkout.StepUrl(order.Id, step), http.StatusSeeOther)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response body", err)
	}
}
