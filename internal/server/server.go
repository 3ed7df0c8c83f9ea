package server

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/auth"
	"github.com/wolfeidau/wishroom/internal/delivery"
	httpx "github.com/wolfeidau/wishroom/internal/http"
	"github.com/wolfeidau/wishroom/internal/logger"
	"github.com/wolfeidau/wishroom/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DeliveryRunner triggers an immediate delivery run.
type DeliveryRunner interface {
	RunOnce(ctx context.Context) (*delivery.RunReport, error)
}

// Options configures the HTTP handler.
type Options struct {
	// Authenticate verifies the caller and stores an auth.Principal in the
	// request context. Required.
	Authenticate func(http.Handler) http.Handler

	CORSOrigins []string
	TrustProxy  bool
	Tracing     bool
}

// Server exposes the engine over a JSON HTTP API.
type Server struct {
	engine     *service.Engine
	deliveries DeliveryRunner
}

// NewServer creates a new server for the engine
func NewServer(engine *service.Engine) *Server {
	return &Server{engine: engine}
}

// WithDeliveryRunner enables POST /v1/deliveries/run.
func (s *Server) WithDeliveryRunner(runner DeliveryRunner) *Server {
	s.deliveries = runner
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger, opts Options) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/v1/", opts.Authenticate(s.apiRoutes()))

	var handler http.Handler = mux
	handler = gzhttp.GzipHandler(handler)
	handler = withCORS(opts.CORSOrigins, handler)
	if opts.Tracing {
		handler = otelhttp.NewHandler(handler, "wishroom")
	}
	handler = logger.HTTPRequests(log)(handler)
	handler = httpx.ClientIPMiddleware(opts.TrustProxy)(handler)
	handler = httpx.RequestIDMiddleware()(handler)

	return handler
}

func (s *Server) apiRoutes() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, perm auth.Permission, h http.HandlerFunc) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if err := auth.RequirePermission(r.Context(), perm); err != nil {
				writeError(w, r, err)
				return
			}
			h(w, r)
		})
	}

	route("PUT /v1/accounts/{externalID}", auth.PermAccountsWrite, s.upsertAccount)
	route("GET /v1/accounts/{externalID}", auth.PermAccountsRead, s.getAccount)
	route("GET /v1/accounts/{externalID}/rooms", auth.PermAccountsRead, s.listRooms)
	route("PUT /v1/accounts/{externalID}/current-room", auth.PermRoomsJoin, s.switchRoom)

	route("POST /v1/rooms", auth.PermRoomsCreate, s.createRoom)
	route("GET /v1/rooms/{roomID}", auth.PermRoomsRead, s.getRoom)
	route("GET /v1/room-codes/{code}", auth.PermRoomsRead, s.getRoomByCode)
	route("POST /v1/rooms/join", auth.PermRoomsJoin, s.joinRoom)
	route("POST /v1/rooms/{roomID}/leave", auth.PermRoomsJoin, s.leaveRoom)
	route("POST /v1/rooms/{roomID}/activity", auth.PermRoomsJoin, s.touchActivity)
	route("DELETE /v1/rooms/{roomID}", auth.PermRoomsDelete, s.deleteRoom)
	route("PUT /v1/rooms/{roomID}/active", auth.PermRoomsDelete, s.setRoomActive)
	route("GET /v1/rooms/{roomID}/members", auth.PermRoomsRead, s.listMembers)
	route("PUT /v1/rooms/{roomID}/tier", auth.PermBillingTier, s.setTier)

	route("POST /v1/rooms/{roomID}/wishes", auth.PermWishesWrite, s.addWish)
	route("GET /v1/rooms/{roomID}/wishes", auth.PermWishesRead, s.listWishes)
	route("PATCH /v1/wishes/{wishID}", auth.PermWishesWrite, s.editWish)
	route("DELETE /v1/wishes/{wishID}", auth.PermWishesWrite, s.deleteWish)

	if s.deliveries != nil {
		route("POST /v1/deliveries/run", auth.PermDeliveriesRun, s.runDeliveries)
	}

	return mux
}

// withCORS adds CORS support to the API handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
		ExposedHeaders: []string{httpx.RequestIDHeader},
	})
	return middleware.Handler(h)
}
