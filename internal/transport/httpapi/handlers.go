// Package httpapi — HTTP-интерфейс сервиса фулфилмента поверх chi.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/order"
)

// Handler связывает HTTP-маршруты с сервисом заказов.
type Handler struct {
	service     *order.Service
	idempotency domain.IdempotencyRepository
	logger      *log.Entry
}

// NewHandler создаёт HTTP-handler. idempotency может быть nil: тогда
// заголовок Idempotency-Key игнорируется.
func NewHandler(service *order.Service, idempotency domain.IdempotencyRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handler{
		service:     service,
		idempotency: idempotency,
		logger:      logger,
	}
}

type addressDTO struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a addressDTO) toDomain() domain.Address {
	return domain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func addressFromDomain(a domain.Address) addressDTO {
	return addressDTO{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type createOrderItemDTO struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type createOrderRequest struct {
	UserID          string               `json:"user_id"`
	Items           []createOrderItemDTO `json:"items"`
	ShippingMethod  string               `json:"shipping_method"`
	PaymentMethod   string               `json:"payment_method"`
	ShippingAddress addressDTO           `json:"shipping_address"`
	BillingAddress  *addressDTO          `json:"billing_address,omitempty"`
	DiscountMinor   int64                `json:"discount_minor"`
	Notes           string               `json:"notes,omitempty"`
}

type orderItemResponse struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Image          string `json:"image,omitempty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Qty            int32  `json:"qty"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

type historyEntryResponse struct {
	Status   string `json:"status"`
	Actor    string `json:"actor,omitempty"`
	Note     string `json:"note,omitempty"`
	Occurred string `json:"occurred_at"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	Number          string                 `json:"number"`
	UserID          string                 `json:"user_id"`
	Status          string                 `json:"status"`
	Items           []orderItemResponse    `json:"items"`
	SubtotalMinor   int64                  `json:"subtotal_minor"`
	ShippingMinor   int64                  `json:"shipping_minor"`
	TaxMinor        int64                  `json:"tax_minor"`
	DiscountMinor   int64                  `json:"discount_minor"`
	TotalMinor      int64                  `json:"total_minor"`
	PaymentMethod   string                 `json:"payment_method"`
	PaymentStatus   string                 `json:"payment_status"`
	ShippingMethod  string                 `json:"shipping_method"`
	ShippingAddress addressDTO             `json:"shipping_address"`
	BillingAddress  *addressDTO            `json:"billing_address,omitempty"`
	TrackingNumber  string                 `json:"tracking_number,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	StatusHistory   []historyEntryResponse `json:"status_history"`
	Version         int64                  `json:"version"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

func orderToResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Image:          item.Image,
			UnitPriceMinor: item.UnitPriceMinor,
			Qty:            item.Qty,
			SubtotalMinor:  item.SubtotalMinor,
		})
	}

	history := make([]historyEntryResponse, 0, len(o.StatusHistory))
	for _, entry := range o.StatusHistory {
		history = append(history, historyEntryResponse{
			Status:   string(entry.Status),
			Actor:    entry.Actor,
			Note:     entry.Note,
			Occurred: entry.Occurred.Format(timeFormat),
		})
	}

	resp := orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Items:           items,
		SubtotalMinor:   o.SubtotalMinor,
		ShippingMinor:   o.ShippingMinor,
		TaxMinor:        o.TaxMinor,
		DiscountMinor:   o.DiscountMinor,
		TotalMinor:      o.TotalMinor,
		PaymentMethod:   string(o.PaymentMethod),
		PaymentStatus:   string(o.PaymentStatus),
		ShippingMethod:  string(o.ShippingMethod),
		ShippingAddress: addressFromDomain(o.ShippingAddress),
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		StatusHistory:   history,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt.Format(timeFormat),
		UpdatedAt:       o.UpdatedAt.Format(timeFormat),
	}
	if !o.BillingAddress.Empty() {
		billing := addressFromDomain(o.BillingAddress)
		resp.BillingAddress = &billing
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

type errorBody struct {
	Kind    string            `json:"kind"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.NewValidation("invalid_json", "request body is not valid JSON"))
		return
	}

	input := order.CreateOrderInput{
		UserID:          req.UserID,
		ShippingMethod:  domain.ShippingMethod(req.ShippingMethod),
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress.toDomain(),
		DiscountMinor:   req.DiscountMinor,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, order.CreateOrderItem{
			ProductID: item.ProductID,
			Qty:       item.Qty,
		})
	}
	if req.BillingAddress != nil {
		input.BillingAddress = req.BillingAddress.toDomain()
	}

	created, err := h.service.CreateOrder(input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, orderToResponse(created))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	got, err := h.service.GetOrder(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(got))
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	got, err := h.service.GetOrderByNumber(chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(got))
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.OrderStatus(raw)
		filter.Status = &status
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")

	orders, err := h.service.ListUserOrders(chi.URLParam(r, "userID"), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		items = append(items, orderToResponse(o))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": items})
}

type transitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
	Note   string `json:"note,omitempty"`
}

func (h *Handler) transitionStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.NewValidation("invalid_json", "request body is not valid JSON"))
		return
	}

	updated, err := h.service.TransitionStatus(
		chi.URLParam(r, "orderID"),
		domain.OrderStatus(req.Status),
		req.Actor,
		req.Note,
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(updated))
}

type cancelRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, domain.NewValidation("invalid_json", "request body is not valid JSON"))
			return
		}
	}

	cancelled, err := h.service.CancelOrder(chi.URLParam(r, "orderID"), req.Actor, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(cancelled))
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

func (h *Handler) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.NewValidation("invalid_json", "request body is not valid JSON"))
		return
	}

	updated, err := h.service.SetPaymentStatus(
		chi.URLParam(r, "orderID"),
		domain.PaymentStatus(req.PaymentStatus),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(updated))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}

// writeError отображает kind доменной ошибки в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		domainErr = domain.NewInternal("internal", "internal error", err)
	}

	status := http.StatusInternalServerError
	switch domainErr.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}

	h.writeJSON(w, status, errorResponse{Error: errorBody{
		Kind:    string(domainErr.Kind),
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Details: domainErr.Details,
	}})
}

func queryInt(r *http.Request, name string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || value < 0 {
		return 0
	}
	return value
}
