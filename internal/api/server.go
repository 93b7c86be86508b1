// Package api exposes the HTTP surface of the monitoring backend.
// Handlers validate the request first and only then touch the store;
// store failures surface as a generic 500 so query internals never
// leak to clients.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"flowmon/internal/config"
	"flowmon/internal/db"
	"flowmon/internal/geo"
	"flowmon/internal/websocket"
	"flowmon/pkg/models"
)

// Store is the database surface the handlers consume.
type Store interface {
	AllFlows(ctx context.Context) ([]models.FlowRecord, error)
	FlowByUUID(ctx context.Context, uuid string) (*models.FlowRecord, error)
	FlowsByIP(ctx context.Context, ip string) ([]models.FlowRecord, error)
	FlowsSince(ctx context.Context, days int) ([]models.FlowRecord, error)
	FlowsSinceByIP(ctx context.Context, days int, ip string) ([]models.FlowRecord, error)

	AllAlerts(ctx context.Context) ([]models.AlertRecord, error)
	UnhandledAlerts(ctx context.Context) ([]models.AlertRecord, error)
	MarkAlertHandled(ctx context.Context, uuid string) (bool, error)

	GoodMalCount(ctx context.Context) (models.GoodMalCount, error)
	GoodMalCountSince(ctx context.Context, days int) (models.GoodMalCount, error)
	ProtocolCounts(ctx context.Context) ([]models.ProtocolCount, error)
	IPCounts(ctx context.Context) ([]models.IPCount, error)
	IPCountsSince(ctx context.Context, days int) ([]models.IPCount, error)
	HostFlowCounts(ctx context.Context, days int) ([]models.HostFlowCount, error)
	HostMalCounts(ctx context.Context, days int) ([]models.HostFlowCount, error)
	HourlyHistogram(ctx context.Context) ([]models.HourBucket, error)
	LocationGraph(ctx context.Context, location string) ([]models.LocationBucket, error)
	AttackSummary(ctx context.Context, location string, since time.Time, window time.Duration) ([]models.AttackSummary, error)
	TopTalkers(ctx context.Context, lookback time.Duration, limit int) ([]db.TopTalkerRow, error)

	AllHosts(ctx context.Context) ([]models.Host, error)
	HostByIP(ctx context.Context, ip string) (*models.Host, error)
	HostNameByIP(ctx context.Context, ip string) (string, error)
	HostNamesByBuilding(ctx context.Context, building string) ([]string, error)
	Buildings(ctx context.Context) ([]string, error)
	HostStatusByLocation(ctx context.Context) ([]models.LocationStatus, error)
	InsertHost(ctx context.Context, h models.Host) (int64, error)
	SetHostStatus(ctx context.Context, ip string, status int) (bool, error)
	SearchHistory(ctx context.Context, f db.HistoryFilter) ([]models.HistoryRow, error)

	Labels(ctx context.Context) ([]models.Label, error)
	LabelNameByID(ctx context.Context, id int) (string, error)
	Protocols(ctx context.Context) ([]models.Protocol, error)

	InsertTrafficSample(ctx context.Context, bytes int64, intervalSeconds int) error
	TrafficHourSum(ctx context.Context) (models.TrafficSum, error)
	RegisterDevice(ctx context.Context, deviceName, token string) error
}

// Resolver maps an address to its display identity.
type Resolver interface {
	Resolve(ip, knownName string) geo.Identity
}

// Notifier pushes a message to registered devices.
type Notifier interface {
	Send(ctx context.Context, title, body string) bool
}

type Server struct {
	cfg    *config.Config
	log    *logrus.Logger
	server *http.Server
}

func NewServer(cfg *config.Config, store Store, resolver Resolver, notifier Notifier, ws *websocket.Handler, log *logrus.Logger) *Server {
	h := NewHandler(cfg, store, resolver, notifier, log)

	r := mux.NewRouter()

	// The live feed holds its connection open, so it stays outside the
	// request-timeout middleware.
	r.HandleFunc("/ws", ws.ServeWS).Methods(http.MethodGet)

	rest := r.PathPrefix("/").Subrouter()
	rest.Use(timeoutMiddleware(cfg.Timeout))
	h.registerRoutes(rest)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{cfg: cfg, log: log, server: server}
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		s.log.WithField("addr", s.cfg.ServerAddr).Info("http server listening")
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server error")
		}
	}()

	<-ctx.Done()
	s.log.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func timeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
