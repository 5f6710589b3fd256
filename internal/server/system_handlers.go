package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/agentrace/agentrace/internal/database"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	databases   map[string]*database.DB
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(databases map[string]*database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases:   databases,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth returns system resource usage and database status
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
	}

	// CPU usage over a short sample window
	if cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(cpuPercents) > 0 {
		response["cpu_percent"] = cpuPercents[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	// Memory usage
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		response["memory_percent"] = vm.UsedPercent
		response["memory_used_mb"] = vm.Used / 1024 / 1024
		response["memory_total_mb"] = vm.Total / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	// Database quick checks
	dbStatus := make(map[string]string, len(h.databases))
	healthy := true
	for name, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			dbStatus[name] = "error: " + err.Error()
			healthy = false
		} else {
			dbStatus[name] = "ok"
		}
	}
	response["databases"] = dbStatus

	status := http.StatusOK
	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}
