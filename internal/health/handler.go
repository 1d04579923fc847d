package health

import (
	"context"
	"net/http"
	"time"

	httputil "appointease/pkg/http"
	"appointease/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const readyTimeout = 2 * time.Second

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Locks    string `json:"locks,omitempty"`
}

// HealthHandler serves liveness and readiness. Either client may be nil when
// the matching backend runs in memory.
type HealthHandler struct {
	mongoClient *mongo.Client
	redisClient *redis.Client
	log         *logger.Logger
}

func NewHealthHandler(mongoClient *mongo.Client, redisClient *redis.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		mongoClient: mongoClient,
		redisClient: redisClient,
		log:         log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Database: "memory", Locks: "memory"}
	status := http.StatusOK

	if h.mongoClient != nil {
		resp.Database = "ok"
		if err := h.mongoClient.Ping(ctx, nil); err != nil {
			h.log.Error("Database health check failed", "error", err, "path", r.URL.Path)
			resp.Database = "error"
			status = http.StatusServiceUnavailable
		}
	}
	if h.redisClient != nil {
		resp.Locks = "ok"
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			h.log.Error("Lock store health check failed", "error", err, "path", r.URL.Path)
			resp.Locks = "error"
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		resp.Status = "unavailable"
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
