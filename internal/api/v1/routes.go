// Package v1 provides the REST API handlers for store sync management.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merchantiq/storesync/internal/api/common"
	"github.com/merchantiq/storesync/internal/jobs"
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/scheduler"
	"github.com/merchantiq/storesync/internal/stores"
	pkgsync "github.com/merchantiq/storesync/internal/sync"
	"github.com/merchantiq/storesync/internal/versions"
)

// RegisterStoreRequest is the body for registering a store.
type RegisterStoreRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	AccessToken string `json:"accessToken"`
}

// ReconnectRequest is the body for completing a credential reconnection.
type ReconnectRequest struct {
	AccessToken string `json:"accessToken"`
}

// TriggerSyncRequest is the body for triggering a manual sync.
type TriggerSyncRequest struct {
	StoreID string `json:"storeId"`
}

// JobResponse is the wire form of one sync job snapshot.
type JobResponse struct {
	StoreID    string     `json:"storeId"`
	Priority   string     `json:"priority"`
	Status     string     `json:"status"`
	RetryCount int        `json:"retryCount"`
	NextRunAt  time.Time  `json:"nextRunAt"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func newJobResponse(job *jobs.SyncJob) JobResponse {
	return JobResponse{
		StoreID:    job.StoreID,
		Priority:   string(job.Priority),
		Status:     string(job.Status),
		RetryCount: job.RetryCount,
		NextRunAt:  job.NextRunAt,
		LastRunAt:  job.LastRunAt,
		LastError:  job.LastError,
		UpdatedAt:  job.UpdatedAt,
	}
}

// JobListResponse wraps all job snapshots.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// LockResponse is the wire form of one active lock.
type LockResponse struct {
	ResourceKey    string    `json:"resourceKey"`
	HolderID       string    `json:"holderId"`
	OperationClass string    `json:"operationClass"`
	AcquiredAt     time.Time `json:"acquiredAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// LockListResponse wraps all active locks.
type LockListResponse struct {
	Locks []LockResponse `json:"locks"`
	Count int            `json:"count"`
}

// SyncRunResponse is the structured result of one sync run. The manual
// trigger endpoint always returns this shape, success or not.
type SyncRunResponse struct {
	Success      bool           `json:"success"`
	StoreID      string         `json:"storeId"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  time.Time      `json:"completedAt"`
	SyncedCounts map[string]int `json:"syncedCounts,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func newSyncRunResponse(result *pkgsync.Result) SyncRunResponse {
	resp := SyncRunResponse{
		Success:     result.Success,
		StoreID:     result.StoreID,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
	}
	if len(result.Entities) > 0 {
		resp.SyncedCounts = make(map[string]int, len(result.Entities))
		for _, entity := range result.Entities {
			resp.SyncedCounts[string(entity.Entity)] = entity.Indexed
		}
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp
}

// ConflictResponse reports an operation rejected because the store is
// locked. The busy lock is not a failure of the job itself.
type ConflictResponse struct {
	Success   bool       `json:"success"`
	Error     string     `json:"error"`
	StoreID   string     `json:"storeId"`
	HeldBy    string     `json:"heldBy,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Routes handles HTTP requests for sync management endpoints.
type Routes struct {
	scheduler scheduler.Scheduler
	locks     *locks.Manager
}

// NewRoutes creates a new Routes instance with the given collaborators.
func NewRoutes(sched scheduler.Scheduler, lockManager *locks.Manager) *Routes {
	return &Routes{
		scheduler: sched,
		locks:     lockManager,
	}
}

// Router creates and configures the HTTP router for sync management endpoints.
func Router(sched scheduler.Scheduler, lockManager *locks.Manager) http.Handler {
	routes := NewRoutes(sched, lockManager)

	r := chi.NewRouter()

	r.Route("/stores", func(r chi.Router) {
		r.Post("/", routes.registerStore)
		r.Delete("/{storeID}", routes.removeStore)
		r.Post("/{storeID}/reconnect", routes.completeReconnection)
	})
	r.Route("/sync", func(r chi.Router) {
		r.Post("/trigger", routes.triggerSync)
		r.Get("/jobs", routes.listJobs)
		r.Get("/jobs/{storeID}", routes.getJob)
	})
	r.Get("/locks", routes.listLocks)

	return r
}

// registerStore handles POST /api/v1/stores
//
// @Summary		Register a store
// @Description	Register a store for syncing and seed its sync job
// @Tags		stores
// @Accept		json
// @Produce		json
// @Param		request	body		RegisterStoreRequest	true	"Store to register"
// @Success		201		{object}	JobResponse
// @Failure		400		{object}	map[string]string	"Bad request"
// @Router		/api/v1/stores [post]
func (routes *Routes) registerStore(w http.ResponseWriter, r *http.Request) {
	var req RegisterStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.ID) == "" {
		common.WriteErrorResponse(w, "Store id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Platform) == "" {
		common.WriteErrorResponse(w, "Store platform is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		common.WriteErrorResponse(w, "Store access token is required", http.StatusBadRequest)
		return
	}

	job, err := routes.scheduler.RegisterStore(r.Context(), &stores.Store{
		ID:          req.ID,
		Name:        req.Name,
		Platform:    req.Platform,
		AccessToken: req.AccessToken,
		Active:      true,
	})
	if err != nil {
		slog.Error("failed to register store", "store_id", req.ID, "error", err)
		common.WriteErrorResponse(w, "Failed to register store", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, newJobResponse(job), http.StatusCreated)
}

// removeStore handles DELETE /api/v1/stores/{storeID}
//
// @Summary		Remove a store
// @Description	Drop the store's sync job, clear its locks, and deactivate it
// @Tags		stores
// @Produce		json
// @Param		storeID	path	string	true	"Store ID"
// @Success		204	"No content"
// @Failure		400	{object}	map[string]string	"Bad request"
// @Router		/api/v1/stores/{storeID} [delete]
func (routes *Routes) removeStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := common.GetAndValidateURLParam(r, "storeID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Removal is idempotent so a failed teardown can be retried; an
	// absent store is not an error.
	if err := routes.scheduler.RemoveStore(r.Context(), storeID); err != nil {
		slog.Error("failed to remove store", "store_id", storeID, "error", err)
		common.WriteErrorResponse(w, "Failed to remove store", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// completeReconnection handles POST /api/v1/stores/{storeID}/reconnect
//
// @Summary		Complete a credential reconnection
// @Description	Store the fresh access token and re-arm the store's sync job
// @Tags		stores
// @Accept		json
// @Produce		json
// @Param		storeID	path		string				true	"Store ID"
// @Param		request	body		ReconnectRequest	true	"Fresh credential"
// @Success		200		{object}	JobResponse
// @Failure		400		{object}	map[string]string	"Bad request"
// @Failure		404		{object}	map[string]string	"Store not found"
// @Failure		409		{object}	ConflictResponse	"Store is locked"
// @Router		/api/v1/stores/{storeID}/reconnect [post]
func (routes *Routes) completeReconnection(w http.ResponseWriter, r *http.Request) {
	storeID, err := common.GetAndValidateURLParam(r, "storeID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ReconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		common.WriteErrorResponse(w, "Access token is required", http.StatusBadRequest)
		return
	}

	job, err := routes.scheduler.CompleteReconnection(r.Context(), storeID, req.AccessToken)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			common.WriteErrorResponse(w, "Store not found", http.StatusNotFound)
			return
		}
		if locks.IsConflict(err) {
			writeConflict(w, storeID, err)
			return
		}
		slog.Error("failed to complete reconnection", "store_id", storeID, "error", err)
		common.WriteErrorResponse(w, "Failed to complete reconnection", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, newJobResponse(job), http.StatusOK)
}

// triggerSync handles POST /api/v1/sync/trigger
//
// @Summary		Trigger a manual sync
// @Description	Run one sync for the store immediately. A store already locked
// @Description	returns 409 without touching the job's retry bookkeeping.
// @Tags		sync
// @Accept		json
// @Produce		json
// @Param		request	body		TriggerSyncRequest	true	"Store to sync"
// @Success		200		{object}	SyncRunResponse		"Run result, success or not"
// @Failure		400		{object}	map[string]string	"Bad request"
// @Failure		404		{object}	map[string]string	"Store not found"
// @Failure		409		{object}	ConflictResponse	"Store is locked"
// @Router		/api/v1/sync/trigger [post]
func (routes *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req TriggerSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.StoreID) == "" {
		common.WriteErrorResponse(w, "storeId is required", http.StatusBadRequest)
		return
	}

	result, err := routes.scheduler.TriggerSync(r.Context(), req.StoreID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, stores.ErrNotFound) {
			common.WriteErrorResponse(w, "Store not found", http.StatusNotFound)
			return
		}
		if locks.IsConflict(err) {
			writeConflict(w, req.StoreID, err)
			return
		}
		slog.Error("failed to run manual sync", "store_id", req.StoreID, "error", err)
		common.WriteErrorResponse(w, "Failed to run sync", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, newSyncRunResponse(result), http.StatusOK)
}

// listJobs handles GET /api/v1/sync/jobs
//
// @Summary		List sync jobs
// @Description	Get every store's sync job snapshot
// @Tags		sync
// @Produce		json
// @Success		200	{object}	JobListResponse
// @Router		/api/v1/sync/jobs [get]
func (routes *Routes) listJobs(w http.ResponseWriter, r *http.Request) {
	snapshots, err := routes.scheduler.Status(r.Context())
	if err != nil {
		slog.Error("failed to list sync jobs", "error", err)
		common.WriteErrorResponse(w, "Failed to list sync jobs", http.StatusInternalServerError)
		return
	}

	result := JobListResponse{
		Jobs:  make([]JobResponse, 0, len(snapshots)),
		Count: len(snapshots),
	}
	for i := range snapshots {
		result.Jobs = append(result.Jobs, newJobResponse(&snapshots[i]))
	}

	common.WriteJSONResponse(w, result, http.StatusOK)
}

// getJob handles GET /api/v1/sync/jobs/{storeID}
//
// @Summary		Get one sync job
// @Description	Get the sync job snapshot for one store
// @Tags		sync
// @Produce		json
// @Param		storeID	path		string	true	"Store ID"
// @Success		200		{object}	JobResponse
// @Failure		404		{object}	map[string]string	"Job not found"
// @Router		/api/v1/sync/jobs/{storeID} [get]
func (routes *Routes) getJob(w http.ResponseWriter, r *http.Request) {
	storeID, err := common.GetAndValidateURLParam(r, "storeID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := routes.scheduler.StatusFor(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			common.WriteErrorResponse(w, "Sync job not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get sync job", "store_id", storeID, "error", err)
		common.WriteErrorResponse(w, "Failed to get sync job", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, newJobResponse(job), http.StatusOK)
}

// listLocks handles GET /api/v1/locks
//
// @Summary		List active locks
// @Description	Get every unexpired store lock
// @Tags		locks
// @Produce		json
// @Success		200	{object}	LockListResponse
// @Router		/api/v1/locks [get]
func (routes *Routes) listLocks(w http.ResponseWriter, r *http.Request) {
	held, err := routes.locks.ActiveLocks(r.Context())
	if err != nil {
		slog.Error("failed to list locks", "error", err)
		common.WriteErrorResponse(w, "Failed to list locks", http.StatusInternalServerError)
		return
	}

	result := LockListResponse{
		Locks: make([]LockResponse, 0, len(held)),
		Count: len(held),
	}
	for _, lock := range held {
		result.Locks = append(result.Locks, LockResponse{
			ResourceKey:    lock.ResourceKey,
			HolderID:       lock.HolderID,
			OperationClass: string(lock.OperationClass),
			AcquiredAt:     lock.AcquiredAt,
			ExpiresAt:      lock.ExpiresAt,
		})
	}

	common.WriteJSONResponse(w, result, http.StatusOK)
}

// writeConflict reports a locked store, naming the holder's operation
// class and the lock expiry when known.
func writeConflict(w http.ResponseWriter, storeID string, err error) {
	resp := ConflictResponse{
		Success: false,
		Error:   err.Error(),
		StoreID: storeID,
	}
	var conflict *locks.ConflictError
	if errors.As(err, &conflict) {
		resp.HeldBy = string(conflict.OperationClass)
		if !conflict.ExpiresAt.IsZero() {
			expiresAt := conflict.ExpiresAt
			resp.ExpiresAt = &expiresAt
		}
	}
	common.WriteJSONResponse(w, resp, http.StatusConflict)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(sched scheduler.Scheduler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(sched))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
//
// @Summary		Health check
// @Description	Check if the sync service is healthy
// @Tags		system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router		/health [get]
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
//
// @Summary		Readiness check
// @Description	Check if the sync service can reach its job store
// @Tags		system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Failure		503	{object}	map[string]string
// @Router		/readiness [get]
func readinessHandler(sched scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := sched.Status(r.Context()); err != nil {
			common.WriteErrorResponse(w, "Scheduler not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
//
// @Summary		Version information
// @Description	Get version information about the sync service
// @Tags		system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router		/version [get]
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	common.WriteJSONResponse(w, response, http.StatusOK)
}
