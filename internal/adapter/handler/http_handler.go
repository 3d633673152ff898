package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/plantcart/plantcart/internal/core/domain"
	"github.com/plantcart/plantcart/internal/core/service"
)

type HTTPHandler struct {
	orderService *service.OrderService
	coordinator  *service.Coordinator
}

func NewHTTPHandler(orderService *service.OrderService, coordinator *service.Coordinator) *HTTPHandler {
	return &HTTPHandler{orderService: orderService, coordinator: coordinator}
}

type lineItemPayload struct {
	ProductID int     `json:"product_id"`
	Name      string  `json:"name"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Size      string  `json:"selected_size"`
	Color     string  `json:"selected_color"`
}

type placeOrderHTTPRequest struct {
	RequestID       string            `json:"request_id"`
	User            string            `json:"user"`
	Name            string            `json:"name"`
	Phone           string            `json:"phone"`
	SparePhone      string            `json:"spare_phone"`
	Items           []lineItemPayload `json:"items"`
	DeliveryAddress string            `json:"delivery_address"`
	PaymentMethod   string            `json:"payment_method"`
	PaymentStatus   string            `json:"payment_status"`
}

type orderHTTPResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *orderPayload `json:"order,omitempty"`
	User    *userPayload  `json:"user,omitempty"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user"`
	Items           []lineItemPayload     `json:"items"`
	Total           float64               `json:"total"`
	Status          string                `json:"status"`
	PaymentMethod   string                `json:"payment_method"`
	PaymentStatus   string                `json:"payment_status"`
	DeliveryAddress string                `json:"delivery_address"`
	DeliveryDate    time.Time             `json:"delivery_date"`
	TrackingNumber  string                `json:"tracking_number"`
	TrackingSteps   []trackingStepPayload `json:"tracking_steps"`
	CreatedAt       time.Time             `json:"created_at"`
}

type trackingStepPayload struct {
	Step      string     `json:"step"`
	Completed bool       `json:"completed"`
	Date      *time.Time `json:"date"`
}

type userPayload struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	OrderIDs []string `json:"orders"`
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req placeOrderHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, orderHTTPResponse{
			Success: false,
			Message: "invalid request body",
		})
		return
	}

	if req.User == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, orderHTTPResponse{
			Success: false,
			Message: "missing required fields",
		})
		return
	}

	items := make([]domain.OrderLineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.OrderLineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Size:      domain.PotSize(it.Size),
			Color:     it.Color,
		}
	}

	order, err := h.orderService.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		RequestID:       req.RequestID,
		UserID:          req.User,
		CustomerName:    req.Name,
		Phone:           req.Phone,
		SparePhone:      req.SparePhone,
		Items:           items,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
	})
	if err != nil {
		status, message := rejectionStatus(err)
		writeJSON(w, status, orderHTTPResponse{Success: false, Message: message})
		return
	}

	resp := orderHTTPResponse{
		Success: true,
		Message: "order placed successfully and inventory updated",
		Order:   toOrderPayload(order),
	}
	if user, err := h.orderService.User(r.Context(), order.UserID); err == nil && user != nil {
		resp.User = &userPayload{ID: user.ID, Name: user.Name, Email: user.Email, OrderIDs: user.OrderIDs}
	}

	writeJSON(w, http.StatusCreated, resp)
}

func rejectionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidUser):
		return http.StatusBadRequest, "invalid user ID"
	case errors.Is(err, service.ErrInvalidSize):
		return http.StatusBadRequest, "invalid size"
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid quantity"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, service.ErrLockTimeout):
		return http.StatusConflict, "inventory busy, try again"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "inventory store unavailable"
	}
	return http.StatusInternalServerError, "server error while placing order"
}

type precheckHTTPRequest struct {
	ProductID int    `json:"product_id"`
	Size      string `json:"selected_size"`
	Color     string `json:"selected_color"`
	Quantity  int    `json:"quantity"`
}

type precheckHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PrecheckStock answers whether a variant currently has enough stock, used
// by the storefront before payment capture. It reserves nothing.
func (h *HTTPHandler) PrecheckStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req precheckHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, precheckHTTPResponse{Success: false, Message: "invalid request body"})
		return
	}

	key := domain.InventoryKey{ProductID: req.ProductID, Size: domain.PotSize(req.Size), Color: req.Color}
	ok, err := h.coordinator.PrecheckStock(r.Context(), key, req.Quantity)
	if err != nil {
		status, message := rejectionStatus(err)
		writeJSON(w, status, precheckHTTPResponse{Success: false, Message: message})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, precheckHTTPResponse{
			Success: false,
			Message: "not enough stock for requested variant",
		})
		return
	}

	writeJSON(w, http.StatusOK, precheckHTTPResponse{Success: true})
}

// Orders returns the orders named by the comma-separated ids query
// parameter, newest first.
func (h *HTTPHandler) Orders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = splitIDs(raw)
	}

	orders, err := h.orderService.OrdersByIDs(r.Context(), ids)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, orderHTTPResponse{
			Success: false,
			Message: "server error while fetching orders",
		})
		return
	}

	writeJSON(w, http.StatusOK, toOrderPayloads(orders))
}

// IncompleteOrders lists orders with a pending tracking step, consumed by
// the fulfillment tooling.
func (h *HTTPHandler) IncompleteOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orders, err := h.orderService.IncompleteOrders(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, orderHTTPResponse{
			Success: false,
			Message: "server error while fetching orders",
		})
		return
	}

	writeJSON(w, http.StatusOK, toOrderPayloads(orders))
}

type updateTrackingHTTPRequest struct {
	OrderID       string                `json:"order_id"`
	TrackingSteps []trackingStepPayload `json:"tracking_steps"`
}

func (h *HTTPHandler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateTrackingHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, orderHTTPResponse{Success: false, Message: "invalid request body"})
		return
	}

	steps := make([]domain.TrackingStep, len(req.TrackingSteps))
	for i, st := range req.TrackingSteps {
		steps[i] = domain.TrackingStep{Step: st.Step, Completed: st.Completed, Date: st.Date}
	}

	if err := h.orderService.UpdateTrackingSteps(r.Context(), req.OrderID, steps); err != nil {
		status := http.StatusInternalServerError
		message := "server error while updating tracking"
		if errors.Is(err, domain.ErrOrderNotFound) {
			status = http.StatusNotFound
			message = "order not found"
		}
		writeJSON(w, status, orderHTTPResponse{Success: false, Message: message})
		return
	}

	writeJSON(w, http.StatusOK, orderHTTPResponse{Success: true, Message: "tracking updated"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toOrderPayloads(orders []domain.Order) []*orderPayload {
	out := make([]*orderPayload, len(orders))
	for i := range orders {
		out[i] = toOrderPayload(&orders[i])
	}
	return out
}

func toOrderPayload(o *domain.Order) *orderPayload {
	items := make([]lineItemPayload, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemPayload{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Size:      string(it.Size),
			Color:     it.Color,
		}
	}
	steps := make([]trackingStepPayload, len(o.TrackingSteps))
	for i, st := range o.TrackingSteps {
		steps[i] = trackingStepPayload{Step: st.Step, Completed: st.Completed, Date: st.Date}
	}
	return &orderPayload{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		Total:           o.Total,
		Status:          string(o.Status),
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryDate:    o.DeliveryDate,
		TrackingNumber:  o.TrackingNumber,
		TrackingSteps:   steps,
		CreatedAt:       o.CreatedAt,
	}
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
