package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/meridianfund/meridian/internal/database"
)

// SystemHandlers serves process and host health endpoints.
type SystemHandlers struct {
	databases   map[string]*database.DB
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates the system handler set.
func NewSystemHandlers(databases map[string]*database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases:   databases,
		startupTime: time.Now(),
		log:         log.With().Str("component", "system_handlers").Logger(),
	}
}

type healthView struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Goroutines    int               `json:"goroutines"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	Databases     map[string]string `json:"databases"`
}

// GetHealth handles GET /api/system/health. Database failures degrade the
// overall status but the endpoint itself always answers.
func (h *SystemHandlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	view := healthView{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Databases:     make(map[string]string, len(h.databases)),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		view.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		view.MemoryPercent = vm.UsedPercent
	}

	for name, db := range h.databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Database health check failed")
			view.Databases[name] = "unhealthy"
			view.Status = "degraded"
		} else {
			view.Databases[name] = "ok"
		}
	}

	status := http.StatusOK
	if view.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, view)
}
