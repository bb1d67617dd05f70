package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"

	"github.com/jmylchreest/jobctl/pkg/httpclient"
)

// EngineStatus is the part of the engine client the health check reads.
type EngineStatus interface {
	BaseURL() string
	CircuitEnabled() bool
	CircuitState() httpclient.CircuitState
}

// WatchStatus is the part of the watch schedule the health check reads.
type WatchStatus interface {
	NextRun() time.Time
}

// HealthHandler serves /health, /livez and /readyz. Dependencies left unset
// report not_configured.
type HealthHandler struct {
	version string
	started time.Time
	engine  EngineStatus
	watch   WatchStatus
	db      *gorm.DB
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, started: time.Now()}
}

func (h *HealthHandler) WithEngine(engine EngineStatus) *HealthHandler {
	h.engine = engine
	return h
}

func (h *HealthHandler) WithWatch(watch WatchStatus) *HealthHandler {
	h.watch = watch
	return h
}

func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

type (
	HealthInput  struct{}
	LivezInput   struct{}
	ReadyzInput  struct{}
	HealthOutput struct{ Body HealthResponse }
	LivezOutput  struct{ Body LivezResponse }
	ReadyzOutput struct{ Body ReadyzResponse }
)

func (h *HealthHandler) Register(api huma.API) {
	system := []string{"System"}

	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Dependency status, uptime and host resource usage",
		Tags:        system,
	}, h.GetHealth)
	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        system,
	}, h.GetLivez)
	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      http.MethodGet,
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "not_ready while the database is unreachable or the engine circuit is open",
		Tags:        system,
	}, h.GetReadyz)
}

// dependencies is one round of dependency checks.
type dependencies struct {
	db     DatabaseHealth
	engine EngineHealth
}

func (d dependencies) checks() map[string]string {
	return map[string]string{"database": d.db.Status, "engine": d.engine.Status}
}

func (h *HealthHandler) check(ctx context.Context) dependencies {
	return dependencies{db: h.databaseHealth(ctx), engine: h.engineHealth()}
}

// GetHealth is degraded, never failed: the process itself is serving.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.started)
	deps := h.check(ctx)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Components:    HealthComponents{Database: deps.db, Engine: deps.engine},
		Checks:        deps.checks(),
	}
	if deps.db.Status == "error" || deps.engine.Status == "degraded" {
		resp.Status = "degraded"
	}
	if h.watch != nil {
		resp.Components.Watch = &WatchHealth{}
		if next := h.watch.NextRun(); !next.IsZero() {
			resp.Components.Watch.NextRun = &next
		}
	}
	resp.CPUInfo, resp.Memory = hostUsage(ctx)

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) GetLivez(context.Context, *LivezInput) (*LivezOutput, error) {
	return &LivezOutput{Body: LivezResponse{Status: "ok"}}, nil
}

// GetReadyz is ready only when every dependency is configured and ok.
func (h *HealthHandler) GetReadyz(ctx context.Context, _ *ReadyzInput) (*ReadyzOutput, error) {
	checks := h.check(ctx).checks()
	status := "ready"
	for _, s := range checks {
		if s != "ok" {
			status = "not_ready"
			break
		}
	}
	return &ReadyzOutput{Body: ReadyzResponse{Status: status, Components: checks}}, nil
}

func (h *HealthHandler) engineHealth() EngineHealth {
	if h.engine == nil {
		return EngineHealth{Status: "not_configured"}
	}
	eh := EngineHealth{Status: "ok", BaseURL: h.engine.BaseURL(), CircuitState: "disabled"}
	if !h.engine.CircuitEnabled() {
		return eh
	}
	state := h.engine.CircuitState()
	eh.CircuitState = state.String()
	if state == httpclient.CircuitOpen {
		eh.Status = "degraded"
	}
	return eh
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "not_configured"}
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error"}
	}

	start := time.Now()
	pingErr := sqlDB.PingContext(ctx)
	elapsed := time.Since(start)

	stats := sqlDB.Stats()
	dh := DatabaseHealth{
		Status:             "ok",
		ResponseTimeMS:     float64(elapsed.Microseconds()) / 1000,
		ConnectionPoolSize: stats.MaxOpenConnections,
		ActiveConnections:  stats.InUse,
		IdleConnections:    stats.Idle,
	}
	if pingErr != nil {
		dh.Status = "error"
	}
	if stats.MaxOpenConnections > 0 {
		dh.PoolUtilizationPercent = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}
	return dh
}
