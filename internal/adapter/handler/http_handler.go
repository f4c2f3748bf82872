package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/milk-route/internal/core/cart"
	"github.com/rl1809/milk-route/internal/core/catalog"
	"github.com/rl1809/milk-route/internal/core/domain"
	"github.com/rl1809/milk-route/internal/core/ledger"
	"github.com/rl1809/milk-route/internal/core/money"
	"github.com/rl1809/milk-route/internal/core/service"
	"github.com/rl1809/milk-route/internal/metrics"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	ledgerService *service.LedgerService
	carts         *cart.Registry
	catalog       *catalog.Catalog
	metrics       *metrics.ServerMetrics
	logger        *zap.Logger
	timeout       time.Duration
}

func NewHTTPHandler(ledgerService *service.LedgerService, carts *cart.Registry, cat *catalog.Catalog, m *metrics.ServerMetrics, logger *zap.Logger, timeout time.Duration) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		ledgerService: ledgerService,
		carts:         carts,
		catalog:       cat,
		metrics:       m,
		logger:        logger,
		timeout:       timeout,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/products", h.instrument("list_products", h.ListProducts)).Methods("GET")

	// Shops
	api.HandleFunc("/shops", h.instrument("list_shops", h.ListShops)).Methods("GET")
	api.HandleFunc("/shops/{id}/balance", h.instrument("shop_balance", h.ShopBalance)).Methods("GET")
	api.HandleFunc("/shops/{id}/notes", h.instrument("list_notes", h.ListNotes)).Methods("GET")
	api.HandleFunc("/shops/{id}/notes", h.instrument("add_note", h.AddNote)).Methods("POST")
	api.HandleFunc("/summary", h.instrument("summary", h.Summary)).Methods("GET")

	// Carts
	api.HandleFunc("/carts", h.instrument("open_cart", h.OpenCart)).Methods("POST")
	api.HandleFunc("/carts/{id}", h.instrument("get_cart", h.GetCart)).Methods("GET")
	api.HandleFunc("/carts/{id}", h.instrument("discard_cart", h.DiscardCart)).Methods("DELETE")
	api.HandleFunc("/carts/{id}/lines", h.instrument("clear_cart", h.ClearCart)).Methods("DELETE")
	api.HandleFunc("/carts/{id}/lines/{productId}", h.instrument("set_quantity", h.SetQuantity)).Methods("PUT")
	api.HandleFunc("/carts/{id}/lines/{productId}/increment", h.instrument("increment", h.Increment)).Methods("POST")
	api.HandleFunc("/carts/{id}/lines/{productId}/decrement", h.instrument("decrement", h.Decrement)).Methods("POST")
	api.HandleFunc("/carts/{id}/save", h.instrument("save_delivery", h.SaveDelivery)).Methods("POST")

	api.HandleFunc("/payments", h.instrument("save_payment", h.SavePayment)).Methods("POST")
}

// --- request / response shapes ---

type ProductJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
}

type LineJSON struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type CartJSON struct {
	ID          string     `json:"id"`
	Lines       []LineJSON `json:"lines"`
	Subtotal    string     `json:"subtotal"`
	GrandTotal  string     `json:"grand_total"`
	SavePending bool       `json:"save_pending"`
}

type ShopStatusJSON struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	RouteOrder      int    `json:"route_order"`
	DeliveredOnDate string `json:"delivered_on_date"`
	Pending         string `json:"pending"`
}

type BalanceJSON struct {
	ShopID  string `json:"shop_id"`
	Pending string `json:"pending"`
}

type SummaryJSON struct {
	Date               string `json:"date"`
	Delivered          string `json:"delivered"`
	Collected          string `json:"collected"`
	PendingTotal       string `json:"pending_total"`
	CompletedShopCount int    `json:"completed_shop_count"`
	ShopCount          int    `json:"shop_count"`
}

type NoteJSON struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shop_id"`
	Date      string    `json:"date"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type SaveCartRequest struct {
	ShopID string `json:"shop_id"`
	Date   string `json:"date"`
}

type PaymentRequest struct {
	ShopID string `json:"shop_id"`
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type DeltaRequest struct {
	Delta int `json:"delta"`
}

type NoteRequest struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

type DeliveryResponse struct {
	RecordID      string     `json:"record_id"`
	ShopID        string     `json:"shop_id"`
	ShopName      string     `json:"shop_name"`
	Date          string     `json:"date"`
	Lines         []LineJSON `json:"lines"`
	Total         string     `json:"total"`
	PendingBefore string     `json:"pending_before"`
	PendingAfter  string     `json:"pending_after"`
	Receipt       string     `json:"receipt"`
}

type PaymentResponse struct {
	RecordID      string `json:"record_id"`
	ShopID        string `json:"shop_id"`
	ShopName      string `json:"shop_name"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	PendingBefore string `json:"pending_before"`
	PendingAfter  string `json:"pending_after"`
	Receipt       string `json:"receipt"`
}

// --- handlers ---

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.catalog.List()
	out := make([]ProductJSON, len(products))
	for i, p := range products {
		out[i] = ProductJSON{ID: p.ID, Name: p.Name, UnitPrice: money.Format(p.UnitPrice)}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListShops handles GET /api/shops?date=&sort=route|pending&pending=true
func (h *HTTPHandler) ListShops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := dateOrToday(q.Get("date"))

	opts := ledger.StatusOptions{Sort: ledger.SortByRoute}
	switch q.Get("sort") {
	case "", string(ledger.SortByRoute):
	case string(ledger.SortByPending):
		opts.Sort = ledger.SortByPending
	default:
		writeErr(w, http.StatusBadRequest, "sort must be route or pending")
		return
	}
	if v := q.Get("pending"); v != "" {
		pendingOnly, err := strconv.ParseBool(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "pending must be a boolean")
			return
		}
		opts.PendingOnly = pendingOnly
	}

	statuses, err := h.ledgerService.ShopStatuses(r.Context(), date, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ShopStatusJSON, len(statuses))
	for i, s := range statuses {
		out[i] = ShopStatusJSON{
			ID:              s.Shop.ID,
			Name:            s.Shop.Name,
			RouteOrder:      s.Shop.RouteOrder,
			DeliveredOnDate: money.Format(s.DeliveredOnDate),
			Pending:         money.Format(s.Pending),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ShopBalance(w http.ResponseWriter, r *http.Request) {
	shopID := mux.Vars(r)["id"]
	balance, err := h.ledgerService.Balance(r.Context(), shopID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceJSON{ShopID: shopID, Pending: money.Format(balance)})
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	date := dateOrToday(r.URL.Query().Get("date"))
	s, err := h.ledgerService.Summary(r.Context(), date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryJSON{
		Date:               s.Date,
		Delivered:          money.Format(s.Delivered),
		Collected:          money.Format(s.Collected),
		PendingTotal:       money.Format(s.PendingTotal),
		CompletedShopCount: s.CompletedShopCount,
		ShopCount:          s.ShopCount,
	})
}

func (h *HTTPHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	filter := domain.RecordFilter{ShopID: mux.Vars(r)["id"], Date: r.URL.Query().Get("date")}
	notes, err := h.ledgerService.Notes(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]NoteJSON, len(notes))
	for i, n := range notes {
		out[i] = noteJSON(n)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	note, err := h.ledgerService.AddNote(r.Context(), mux.Vars(r)["id"], dateOrToday(req.Date), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, noteJSON(note))
}

func (h *HTTPHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	c := h.carts.Open()
	writeJSON(w, http.StatusCreated, cartJSON(c))
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cartJSON(c))
}

func (h *HTTPHandler) DiscardCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Discard(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	c.Clear()
	writeJSON(w, http.StatusOK, cartJSON(c))
}

// SetQuantity handles PUT /api/carts/{id}/lines/{productId}. Zero removes the line.
func (h *HTTPHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.mutate(w, r, "quantity", req.Quantity, (*cart.Cart).SetQuantity)
}

func (h *HTTPHandler) Increment(w http.ResponseWriter, r *http.Request) {
	delta, ok := decodeDelta(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, "delta", delta, (*cart.Cart).Increment)
}

func (h *HTTPHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	delta, ok := decodeDelta(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, "delta", delta, (*cart.Cart).Decrement)
}

func (h *HTTPHandler) SaveDelivery(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req SaveCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.ledgerService.SaveDelivery(r.Context(), service.DeliveryRequest{
		RequestID: r.Header.Get(idempotencyHeader),
		ShopID:    req.ShopID,
		Date:      dateOrToday(req.Date),
		Cart:      c,
	})
	h.countSave("delivery", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DeliveryResponse{
		RecordID:      res.Record.ID,
		ShopID:        res.Record.ShopID,
		ShopName:      res.ShopName,
		Date:          res.Record.Date,
		Lines:         linesJSON(res.Lines),
		Total:         money.Format(res.Record.TotalAmount),
		PendingBefore: money.Format(res.PendingBefore),
		PendingAfter:  money.Format(res.PendingAfter),
		Receipt:       res.Receipt,
	})
}

func (h *HTTPHandler) SavePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	amount, err := money.Parse("amount", req.Amount)
	if err != nil {
		h.countSave("payment", err)
		h.writeError(w, err)
		return
	}

	res, err := h.ledgerService.SavePayment(r.Context(), service.PaymentRequest{
		RequestID: r.Header.Get(idempotencyHeader),
		ShopID:    req.ShopID,
		Date:      dateOrToday(req.Date),
		Amount:    amount,
	})
	h.countSave("payment", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentResponse{
		RecordID:      res.Record.ID,
		ShopID:        res.Record.ShopID,
		ShopName:      res.ShopName,
		Date:          res.Record.Date,
		Amount:        money.Format(res.Record.Amount),
		PendingBefore: money.Format(res.PendingBefore),
		PendingAfter:  money.Format(res.PendingAfter),
		Receipt:       res.Receipt,
	})
}

// --- helpers ---

func (h *HTTPHandler) cart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	c, err := h.carts.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *HTTPHandler) mutate(w http.ResponseWriter, r *http.Request, field string, n int, op func(*cart.Cart, string, int) bool) {
	if err := cart.ValidateQuantity(field, n); err != nil {
		h.writeError(w, err)
		return
	}
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	if !op(c, mux.Vars(r)["productId"], n) {
		h.writeError(w, domain.ErrUnknownProduct)
		return
	}
	writeJSON(w, http.StatusOK, cartJSON(c))
}

func decodeDelta(w http.ResponseWriter, r *http.Request) (int, bool) {
	req := DeltaRequest{Delta: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return 0, false
		}
	}
	return req.Delta, true
}

// instrument applies the request timeout and records request metrics under name.
func (h *HTTPHandler) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if h.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		if h.metrics != nil {
			h.metrics.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			h.metrics.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
		}
	}
}

func (h *HTTPHandler) countSave(kind string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsStore(err):
		outcome = "store_error"
	default:
		outcome = "rejected"
	}
	h.metrics.Saves.WithLabelValues(kind, outcome).Inc()
}

// writeError maps service errors to HTTP statuses.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		status, message = http.StatusBadRequest, validation.Error()
	case errors.Is(err, domain.ErrShopNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrUnknownProduct):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrSaveInProgress):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrDuplicateRequest):
		status, message = http.StatusConflict, "duplicate request"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "request timed out"
	case domain.IsStore(err):
		status, message = http.StatusBadGateway, "record store unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeErr(w, status, message)
}

func cartJSON(c *cart.Cart) CartJSON {
	lines, totals := c.View()
	return CartJSON{
		ID:          c.ID,
		Lines:       linesJSON(lines),
		Subtotal:    money.Format(totals.Subtotal),
		GrandTotal:  money.Format(totals.GrandTotal),
		SavePending: c.SavePending(),
	}
}

func linesJSON(lines []domain.CartLine) []LineJSON {
	out := make([]LineJSON, len(lines))
	for i, l := range lines {
		out[i] = LineJSON{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: money.Format(l.UnitPrice),
			Quantity:  l.Quantity,
			LineTotal: money.Format(money.LineTotal(l.Quantity, l.UnitPrice)),
		}
	}
	return out
}

func noteJSON(n domain.Note) NoteJSON {
	return NoteJSON{ID: n.ID, ShopID: n.ShopID, Date: n.Date, Content: n.Content, CreatedAt: n.CreatedAt}
}

func dateOrToday(date string) string {
	if date == "" {
		return time.Now().Format(domain.DateLayout)
	}
	return date
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
