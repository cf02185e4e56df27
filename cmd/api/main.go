package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kovacs/go-autoparts-store/internal/cache"
	"github.com/kovacs/go-autoparts-store/internal/config"
	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/kovacs/go-autoparts-store/internal/store"
	"github.com/kovacs/go-autoparts-store/internal/stream"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := stream.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, 256)
	producer.Start(ctx)
	defer producer.Close()

	statusCache := cache.NewStatusCache(cfg.Redis.Addr, cfg.Redis.StatusTTL)
	defer statusCache.Close()

	// Reservations expire lazily on every touch point; this sweep reclaims
	// holds on products nobody touches again.
	go sweepReservations(ctx, db, cfg.Reservation.SweepInterval)

	app := &application{
		db:          db,
		producer:    producer,
		statusCache: statusCache,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}

func sweepReservations(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleared, err := store.RemoveExpiredReservations(ctx, db)
			if err != nil {
				log.Printf("Reservation sweep: %v", err)
				continue
			}
			if cleared > 0 {
				log.Printf("Reservation sweep: cleared %d expired hold(s)", cleared)
			}
		}
	}
}

type application struct {
	db          *sql.DB
	producer    *stream.Producer
	statusCache *cache.StatusCache
}

func (app *application) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/cart", app.handleGetCart)
	r.Put("/cart/line", app.handlePutCartLine)
	r.Delete("/cart/line", app.handleDeleteCartLine)
	r.Post("/cart/reservation", app.handleRenewReservation)
	r.Post("/checkout", app.handleCheckout)

	r.Post("/users", app.handleCreateUser)
	r.Get("/users", app.handleListUsers)
	r.Get("/users/{id}", app.handleGetUser)
	r.Post("/users/{id}/addresses", app.handleCreateAddress)
	r.Get("/users/{id}/addresses", app.handleListAddresses)
	r.Get("/users/{id}/addresses/{addressId}", app.handleGetAddress)

	r.Get("/products", app.handleListProducts)
	r.Post("/products", app.handleCreateProduct)
	r.Get("/products/{id}", app.handleGetProduct)
	r.Put("/products/{id}", app.handleUpdateProduct)
	r.Get("/products/{id}/movements", app.handleListMovements)

	r.Get("/orders", app.handleListOrders)
	r.Get("/orders/{id}", app.handleGetOrder)
	r.Get("/orders/{id}/status", app.handleGetOrderStatus)

	r.Post("/admin/products/{id}/stock", app.handleAdjustStock)
	r.Post("/admin/products/{id}/active", app.handleSetProductActive)
	r.Get("/admin/products/low-stock", app.handleLowStock)
	r.Post("/admin/orders/{id}/payment", app.handleSetPaymentStatus)
	r.Post("/admin/orders/{id}/tracking", app.handleAttachTracking)
	r.Post("/admin/orders/{id}/delivered", app.handleMarkDelivered)
	r.Post("/admin/orders/{id}/cancel", app.handleCancelOrder)
	r.Post("/admin/orders/{id}/refund", app.handleRefundOrder)
	r.Post("/admin/coupons", app.handleCreateCoupon)
	r.Get("/admin/coupons", app.handleListCoupons)

	return r
}

// userID reads the shopper identity from the X-User-ID header; session
// mechanics live in front of this service.
func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return id, err == nil && id > 0
}

func urlID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (app *application) handleGetCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-User-ID header")
		return
	}

	lines, err := store.GetCart(r.Context(), app.db, uid)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if lines == nil {
		lines = []models.CartLine{}
	}

	respondJSON(w, http.StatusOK, lines)
}

func (app *application) handlePutCartLine(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-User-ID header")
		return
	}

	var req struct {
		ProductID int64    `json:"product_id"`
		Quantity  int      `json:"quantity"`
		Price     *float64 `json:"price,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Quantity == 0 {
		if err := store.RemoveCartLine(r.Context(), app.db, uid, req.ProductID); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	addReq := store.AddCartLineRequest{
		UserID:    uid,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}
	if req.Price != nil {
		price := decimal.NewFromFloat(*req.Price)
		addReq.UnitPrice = &price
	}

	line, err := store.AddOrSetCartLine(r.Context(), app.db, addReq)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, line)
}

func (app *application) handleDeleteCartLine(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-User-ID header")
		return
	}

	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil || productID < 1 {
		respondError(w, http.StatusBadRequest, "Invalid productId")
		return
	}

	if err := store.RemoveCartLine(r.Context(), app.db, uid, productID); err != nil {
		respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) handleCheckout(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-User-ID header")
		return
	}

	var req struct {
		ShippingAddressID int64    `json:"shipping_address_id"`
		BillingAddressID  int64    `json:"billing_address_id"`
		CouponCode        string   `json:"coupon_code,omitempty"`
		ShippingCost      float64  `json:"shipping_cost"`
		Tax               float64  `json:"tax"`
		Total             *float64 `json:"total,omitempty"`
		PaymentStatus     string   `json:"payment_status,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	commitReq := store.CommitOrderRequest{
		UserID:            uid,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		CouponCode:        req.CouponCode,
		ShippingCost:      decimal.NewFromFloat(req.ShippingCost),
		Tax:               decimal.NewFromFloat(req.Tax),
		PaymentStatus:     req.PaymentStatus,
	}
	if req.Total != nil {
		total := decimal.NewFromFloat(*req.Total)
		commitReq.ClientTotal = &total
	}

	order, err := store.CommitOrder(r.Context(), app.db, commitReq)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	app.producer.PublishOrderPlaced(order)
	app.statusCache.Set(r.Context(), order.ID, order.Status)

	respondJSON(w, http.StatusCreated, order)
}

// handleRenewReservation re-arms the shopper's hold on a last-unit product
// without touching the line quantity, so a long-lived checkout page can keep
// its claim alive.
func (app *application) handleRenewReservation(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-User-ID header")
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	expiresAt, err := store.CreateOrUpdateReservation(r.Context(), app.db, uid, req.ProductID, req.Quantity)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	resp := map[string]interface{}{"reserved": !expiresAt.IsZero()}
	if !expiresAt.IsZero() {
		resp["expires_at"] = expiresAt
	}
	respondJSON(w, http.StatusOK, resp)
}

func (app *application) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.CreateUser(r.Context(), app.db, req.Email, req.Name)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (app *application) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := store.GetUser(r.Context(), app.db, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (app *application) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListUsers(r.Context(), app.db, page, pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	uid, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	address, err := store.CreateAddress(r.Context(), app.db, &models.Address{
		UserID:     uid,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, address)
}

func (app *application) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	uid, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	addresses, err := store.ListAddresses(r.Context(), app.db, uid)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, addresses)
}

func (app *application) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	uid, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	addressID, err := strconv.ParseInt(chi.URLParam(r, "addressId"), 10, 64)
	if err != nil || addressID < 1 {
		respondError(w, http.StatusBadRequest, "Invalid address ID")
		return
	}

	address, err := store.GetAddress(r.Context(), app.db, addressID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	// Another user's address is indistinguishable from a missing one.
	if address.UserID != uid {
		respondStoreError(w, database.ErrAddressNotFound)
		return
	}

	respondJSON(w, http.StatusOK, address)
}

func (app *application) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListProducts(r.Context(), app.db, page, pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU         string  `json:"sku"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Stock       int     `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.CreateProduct(r.Context(), app.db, req.SKU, req.Name, req.Description,
		decimal.NewFromFloat(req.Price), req.Stock)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (app *application) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := store.GetProduct(r.Context(), app.db, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (app *application) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.UpdateProduct(r.Context(), app.db, id, req.Name, req.Description,
		decimal.NewFromFloat(req.Price))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (app *application) handleListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	page, pageSize := pageParams(r)

	result, err := store.ListMovements(r.Context(), app.db, id, page, pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleListOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid X-User-ID header")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	result, err := store.ListOrdersCursor(r.Context(), app.db, uid, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.GetOrder(r.Context(), app.db, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	app.statusCache.Set(r.Context(), order.ID, order.Status)

	respondJSON(w, http.StatusOK, order)
}

// handleGetOrderStatus serves the storefront's status poll. The cache is
// consulted first so a hot order page doesn't resolve against Postgres on
// every refresh; misses fall through to the resolver and repopulate it.
func (app *application) handleGetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if status, ok := app.statusCache.Get(r.Context(), id); ok {
		respondJSON(w, http.StatusOK, map[string]interface{}{"order_id": id, "status": status})
		return
	}

	order, err := store.GetOrder(r.Context(), app.db, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	app.statusCache.Set(r.Context(), order.ID, order.Status)

	respondJSON(w, http.StatusOK, map[string]interface{}{"order_id": order.ID, "status": order.Status})
}

func (app *application) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Delta  int    `json:"delta"`
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	movementType := req.Type
	switch movementType {
	case models.MovementPurchase, models.MovementAdjustment:
	case "":
		movementType = models.MovementAdjustment
	default:
		respondError(w, http.StatusBadRequest, "Type must be PURCHASE or ADJUSTMENT")
		return
	}

	movement, err := store.AdjustStock(r.Context(), app.db, id, req.Delta, movementType, req.Reason)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	app.producer.PublishMovement(movement)

	respondJSON(w, http.StatusCreated, movement)
}

func (app *application) handleSetProductActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.SetProductActive(r.Context(), app.db, id, req.Active)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (app *application) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.Atoi(r.URL.Query().Get("threshold"))
	if err != nil || threshold < 0 {
		threshold = 5
	}

	products, err := store.ListLowStockProducts(r.Context(), app.db, threshold)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, products)
}

func (app *application) orderMutation(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, orderID int64) (*models.Order, error)) {
	id, ok := urlID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := fn(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	app.statusCache.Invalidate(r.Context(), order.ID)

	respondJSON(w, http.StatusOK, order)
}

func (app *application) handleSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	switch req.PaymentStatus {
	case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusFailed:
	default:
		respondError(w, http.StatusBadRequest, "Invalid payment_status")
		return
	}

	app.orderMutation(w, r, func(ctx context.Context, orderID int64) (*models.Order, error) {
		return store.SetPaymentStatus(ctx, app.db, orderID, req.PaymentStatus)
	})
}

func (app *application) handleAttachTracking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackingNumber == "" {
		respondError(w, http.StatusBadRequest, "Invalid tracking_number")
		return
	}

	app.orderMutation(w, r, func(ctx context.Context, orderID int64) (*models.Order, error) {
		return store.AttachTracking(ctx, app.db, orderID, req.TrackingNumber)
	})
}

func (app *application) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	app.orderMutation(w, r, func(ctx context.Context, orderID int64) (*models.Order, error) {
		return store.MarkDelivered(ctx, app.db, orderID)
	})
}

func (app *application) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	app.orderMutation(w, r, func(ctx context.Context, orderID int64) (*models.Order, error) {
		return store.CancelOrder(ctx, app.db, orderID)
	})
}

func (app *application) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	app.orderMutation(w, r, func(ctx context.Context, orderID int64) (*models.Order, error) {
		return store.RefundOrder(ctx, app.db, orderID)
	})
}

func (app *application) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code            string  `json:"code"`
		DiscountPercent float64 `json:"discount_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	coupon, err := store.CreateCoupon(r.Context(), app.db, req.Code,
		decimal.NewFromFloat(req.DiscountPercent))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, coupon)
}

func (app *application) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := store.ListCoupons(r.Context(), app.db)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, coupons)
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// respondStoreError maps the store error taxonomy onto HTTP statuses:
// validation failures are 400, losing a race to another shopper is 409,
// anything unexpected is a retryable 500.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrReservationConflict),
		errors.Is(err, database.ErrReservationExpired):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrEmptyCart),
		errors.Is(err, database.ErrInvalidAddress),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidCoupon),
		errors.Is(err, database.ErrCouponAlreadyUsed),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrProductUnavailable):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrAddressNotFound),
		errors.Is(err, database.ErrCouponNotFound),
		errors.Is(err, database.ErrCartLineNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
