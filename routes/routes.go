// routes/routes.go
package routes

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-freshmart/controllers"
	"go-freshmart/middleware"
	"go-freshmart/utils"
)

// objectID matches a hex ObjectID path segment.
const objectID = "{id:[0-9a-fA-F]{24}}"

// Controllers groups the handlers mounted by RegisterRoutes.
type Controllers struct {
	Orders        *controllers.OrderController
	Subscriptions *controllers.SubscriptionController
	Stores        *controllers.StoreController
}

// RegisterRoutes sets up all the routes for the application. auth resolves
// the caller and admin restricts a route to administrators.
func RegisterRoutes(router *mux.Router, c Controllers, auth, admin mux.MiddlewareFunc) {
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, r, http.StatusNotFound, "not_found", "route not found")
	})

	// Public routes
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/stores/active", c.Stores.GetActiveStore).Methods(http.MethodGet)

	// Protected routes
	protected := router.NewRoute().Subrouter()
	protected.Use(auth)

	// Order routes
	protected.HandleFunc("/orders", c.Orders.CreateOrder).Methods(http.MethodPost)
	protected.HandleFunc("/orders", c.Orders.GetOrders).Methods(http.MethodGet)
	protected.HandleFunc("/orders/"+objectID, c.Orders.GetOrder).Methods(http.MethodGet)
	protected.HandleFunc("/orders/"+objectID+"/cancel", c.Orders.CancelOrder).Methods(http.MethodPost)
	protected.HandleFunc("/orders/"+objectID+"/payment/verify", c.Orders.VerifyPayment).Methods(http.MethodPost)

	// Subscription routes
	protected.HandleFunc("/subscriptions", c.Subscriptions.GetSubscriptions).Methods(http.MethodGet)
	protected.HandleFunc("/subscriptions/"+objectID, c.Subscriptions.GetSubscription).Methods(http.MethodGet)
	protected.HandleFunc("/subscriptions/"+objectID+"/pause", c.Subscriptions.PauseSubscription).Methods(http.MethodPost)
	protected.HandleFunc("/subscriptions/"+objectID+"/resume", c.Subscriptions.ResumeSubscription).Methods(http.MethodPost)
	protected.HandleFunc("/subscriptions/"+objectID+"/cancel", c.Subscriptions.CancelSubscription).Methods(http.MethodPost)

	// Admin routes
	adminRoutes := router.NewRoute().Subrouter()
	adminRoutes.Use(auth, admin)
	adminRoutes.HandleFunc("/orders/"+objectID+"/status", c.Orders.UpdateOrderStatus).Methods(http.MethodPatch)
	adminRoutes.HandleFunc("/orders/"+objectID+"/payment/settle", c.Orders.SettlePayment).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/orders/"+objectID+"/payment/fail", c.Orders.FailPayment).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/subscriptions", c.Subscriptions.CreateSubscription).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/subscriptions/due", c.Subscriptions.GetDueSubscriptions).Methods(http.MethodGet)
	adminRoutes.HandleFunc("/subscriptions/stats", c.Subscriptions.GetSubscriptionStats).Methods(http.MethodGet)
	adminRoutes.HandleFunc("/subscriptions/sweep", c.Subscriptions.SweepSubscriptions).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/subscriptions/"+objectID, c.Subscriptions.UpdateSubscription).Methods(http.MethodPut)
	adminRoutes.HandleFunc("/subscriptions/"+objectID+"/deliveries", c.Subscriptions.CompleteDelivery).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/stores/"+objectID+"/activate", c.Stores.ActivateStore).Methods(http.MethodPost)
}

// Handler wraps the router with the request-scoped middleware. It sits outside
// the router so unmatched routes are tagged and logged as well.
func Handler(router *mux.Router, logger *zap.Logger, timeout time.Duration) http.Handler {
	return chimw.RequestID(
		middleware.RequestLogger(logger)(
			chimw.Recoverer(
				middleware.Timeout(timeout)(router),
			),
		),
	)
}
