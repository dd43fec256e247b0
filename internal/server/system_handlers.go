package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/aristath/stocktracker/internal/database"
	"github.com/aristath/stocktracker/internal/domain"
	"github.com/aristath/stocktracker/internal/scheduler"
)

const (
	refreshJobName = "portfolio_refresh"
	backupJobName  = "backup"
)

// CacheAdmin reports on and evicts cached fundamentals
type CacheAdmin interface {
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, symbol string) error
}

// RequestCounter reports how many provider requests were issued
type RequestCounter interface {
	RequestCount() int64
}

// JobRunner runs and describes scheduled jobs
type JobRunner interface {
	RunNow(name string) error
	NextRun(name string) time.Time
	Jobs() []string
}

// SubscriberCounter reports connected event stream clients
type SubscriberCounter interface {
	SubscriberCount() int
}

// SystemHandlers handles system-wide monitoring and job trigger requests
type SystemHandlers struct {
	log         zerolog.Logger
	startedAt   time.Time
	databases   []*database.DB
	cache       CacheAdmin
	provider    RequestCounter
	jobs        JobRunner
	subscribers SubscriberCounter
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	databases []*database.DB,
	cache CacheAdmin,
	provider RequestCounter,
	jobs JobRunner,
	subscribers SubscriberCounter,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startedAt:   time.Now(),
		databases:   databases,
		cache:       cache,
		provider:    provider,
		jobs:        jobs,
		subscribers: subscribers,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status           string   `json:"status"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	CPUPercent       float64  `json:"cpu_percent"`
	MemoryPercent    float64  `json:"memory_percent"`
	ProcessRSSMB     float64  `json:"process_rss_mb"`
	CachedSymbols    int64    `json:"cached_symbols"`
	ProviderRequests int64    `json:"provider_requests"`
	EventSubscribers int      `json:"event_subscribers"`
	Databases        []DBInfo `json:"databases"`
	LastChecked      string   `json:"last_checked"`
}

// DBInfo represents database information
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
}

// JobInfo describes a registered job
type JobInfo struct {
	Name    string `json:"name"`
	NextRun string `json:"next_run,omitempty"`
}

// HandleSystemStatus returns uptime, resource usage and cache statistics
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		ProcessRSSMB:  h.getProcessRSS(),
		Databases:     make([]DBInfo, 0, len(h.databases)),
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	if h.cache != nil {
		count, err := h.cache.Count(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count cached symbols")
			response.Status = "degraded"
		}
		response.CachedSymbols = count
	}
	if h.provider != nil {
		response.ProviderRequests = h.provider.RequestCount()
	}
	if h.subscribers != nil {
		response.EventSubscribers = h.subscribers.SubscriberCount()
	}

	for _, db := range h.databases {
		stats, err := db.GetStats(ctx)
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			response.Status = "degraded"
			continue
		}
		response.Databases = append(response.Databases, DBInfo{
			Name:      db.Name(),
			Path:      db.Path(),
			SizeMB:    float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus lists registered jobs with their next run time
// GET /api/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	names := h.jobs.Jobs()
	sort.Strings(names)

	jobs := make([]JobInfo, 0, len(names))
	for _, name := range names {
		info := JobInfo{Name: name}
		if next := h.jobs.NextRun(name); !next.IsZero() {
			info.NextRun = next.Format(time.RFC3339)
		}
		jobs = append(jobs, info)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// HandleTriggerRefresh runs the portfolio refresh sweep immediately
// POST /api/jobs/refresh
func (h *SystemHandlers) HandleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Msg("Manual portfolio refresh triggered")
	h.runJob(w, refreshJobName, "Portfolio refresh completed")
}

// HandleTriggerBackup uploads a backup immediately
// POST /api/jobs/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Msg("Manual backup triggered")
	h.runJob(w, backupJobName, "Backup completed")
}

func (h *SystemHandlers) runJob(w http.ResponseWriter, name, successMessage string) {
	err := h.jobs.RunNow(name)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": successMessage,
		})
	case errors.Is(err, scheduler.ErrJobNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Job " + name + " is not registered",
		})
	case errors.Is(err, scheduler.ErrJobRunning):
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "error",
			"message": "Job " + name + " is already running",
		})
	default:
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Internal Server Error",
		})
	}
}

// HandleEvictCache removes one symbol from the fundamentals cache so the next
// add fetches it from the provider again. Evicting an uncached symbol is not an error.
// DELETE /api/cache/{symbol}
func (h *SystemHandlers) HandleEvictCache(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "symbol is required",
		})
		return
	}

	if err := h.cache.Delete(r.Context(), symbol); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to evict cached fundamentals")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Internal Server Error",
		})
		return
	}

	h.log.Info().Str("symbol", symbol).Msg("Evicted cached fundamentals")
	w.WriteHeader(http.StatusNoContent)
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) to avoid blocking the request for long
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// getProcessRSS returns the resident memory of this process in MB
func (h *SystemHandlers) getProcessRSS() float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to inspect process")
		return 0
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get process memory")
		return 0
	}
	return float64(memInfo.RSS) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
