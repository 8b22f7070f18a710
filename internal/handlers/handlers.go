package handlers

import (
	"time"

	"github.com/gorilla/mux"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/database"
	"media-optimizer/internal/quota"
	"media-optimizer/internal/remote"
	"media-optimizer/internal/scheduler"
	"media-optimizer/internal/startup"
	"media-optimizer/internal/tracker"
)

type Handlers struct {
	config     *startup.Config
	db         *database.Database
	detector   *capability.Detector
	tracker    *tracker.Tracker
	gate       *quota.Gate
	reconciler *remote.Reconciler
	bulk       *scheduler.BulkScheduler
	startTime  time.Time
}

func New(config *startup.Config, db *database.Database, detector *capability.Detector,
	tr *tracker.Tracker, gate *quota.Gate, reconciler *remote.Reconciler,
	bulk *scheduler.BulkScheduler) *Handlers {
	return &Handlers{
		config:     config,
		db:         db,
		detector:   detector,
		tracker:    tr,
		gate:       gate,
		reconciler: reconciler,
		bulk:       bulk,
		startTime:  time.Now(),
	}
}

// RegisterRoutes wires all handlers onto the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	r.HandleFunc("/webhook/conversion", h.ConversionWebhook).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/convert/bulk", h.TriggerBulkRun).Methods("POST")
}
