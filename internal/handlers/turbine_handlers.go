package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"turbine-platform/internal/models"
	"turbine-platform/internal/repository"
	"turbine-platform/internal/services"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

// TurbineHandler handles turbine API endpoints
type TurbineHandler struct {
	readingService *services.ReadingService
	statsService   *services.StatisticsService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewTurbineHandler creates a new turbine handler
func NewTurbineHandler(
	readingService *services.ReadingService,
	statsService *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *TurbineHandler {
	return &TurbineHandler{
		readingService: readingService,
		statsService:   statsService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// Route templates, also used as metric labels
const (
	routeStats       = "/api/turbines/stats"
	routeTurbineDay  = "/api/turbines/{turbine_id}/stats/{date}"
	routeReadings    = "/api/readings/{classification}"
	routeMalformed   = "/api/malformed"
	routeRuns        = "/api/runs"
	routeRun         = "/api/runs/{run_id}"
	routeHealthCheck = "/health"
)

// GetStatistics handles GET /api/turbines/stats
func (h *TurbineHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe(routeStats, time.Now())

	page, limit, offset := parsePagination(r)
	filter := repository.StatisticsFilter{
		Limit:  limit,
		Offset: offset,
	}

	query := r.URL.Query()
	if runID := query.Get("run_id"); runID != "" {
		filter.RunID = &runID
	}
	if turbineID := query.Get("turbine_id"); turbineID != "" {
		filter.TurbineID = &turbineID
	}

	var err error
	if filter.StartDate, filter.EndDate, err = parseDateRange(r); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	statistics, total, err := h.statsService.GetStatistics(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", routeStats)
		h.sendError(w, r, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(routeStats, "GET", "200")
	h.sendJSON(w, paginate(statistics, total, page, limit), http.StatusOK)
}

// GetTurbineDay handles GET /api/turbines/{turbine_id}/stats/{date}
func (h *TurbineHandler) GetTurbineDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe(routeTurbineDay, time.Now())

	vars := mux.Vars(r)
	date, err := services.ParseEventDate(vars["date"])
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := h.statsService.GetTurbineDay(ctx, vars["turbine_id"], date)
	if err != nil {
		h.handleLookupError(w, r, routeTurbineDay, "failed to retrieve statistics", err)
		return
	}

	h.metrics.RecordAPIRequest(routeTurbineDay, "GET", "200")
	h.sendJSON(w, stats, http.StatusOK)
}

// GetReadings handles GET /api/readings/{classification}
func (h *TurbineHandler) GetReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe(routeReadings, time.Now())

	classification := models.Classification(mux.Vars(r)["classification"])
	if !classification.Valid() {
		h.sendError(w, r, "classification must be one of normal, anomalous, unresolved", http.StatusBadRequest)
		return
	}

	page, limit, offset := parsePagination(r)
	filter := repository.ReadingFilter{
		Limit:  limit,
		Offset: offset,
	}

	query := r.URL.Query()
	if runID := query.Get("run_id"); runID != "" {
		filter.RunID = &runID
	}
	if turbineID := query.Get("turbine_id"); turbineID != "" {
		filter.TurbineID = &turbineID
	}

	var err error
	if filter.StartDate, filter.EndDate, err = parseDateRange(r); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	readings, total, err := h.readingService.GetReadings(ctx, classification, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_READINGS_ERROR] Failed to get readings", logging.Fields{
			"classification": classification,
			"filter":         filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", routeReadings)
		h.sendError(w, r, "failed to retrieve readings", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(routeReadings, "GET", "200")
	h.sendJSON(w, paginate(readings, total, page, limit), http.StatusOK)
}

// GetMalformed handles GET /api/malformed
func (h *TurbineHandler) GetMalformed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe(routeMalformed, time.Now())

	page, limit, offset := parsePagination(r)
	filter := repository.MalformedFilter{
		Limit:  limit,
		Offset: offset,
	}

	query := r.URL.Query()
	if runID := query.Get("run_id"); runID != "" {
		filter.RunID = &runID
	}
	if reason := query.Get("reason"); reason != "" {
		mr := models.MalformedReason(reason)
		switch mr {
		case models.ReasonMissingTurbineID, models.ReasonMissingTimestamp, models.ReasonUnparseableTimestamp:
		default:
			h.sendError(w, r, "unknown malformed reason: "+reason, http.StatusBadRequest)
			return
		}
		filter.Reason = &mr
	}

	malformed, total, err := h.readingService.GetMalformed(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_MALFORMED_ERROR] Failed to get malformed readings", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", routeMalformed)
		h.sendError(w, r, "failed to retrieve malformed readings", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(routeMalformed, "GET", "200")
	h.sendJSON(w, paginate(malformed, total, page, limit), http.StatusOK)
}

// ListRuns handles GET /api/runs
func (h *TurbineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe(routeRuns, time.Now())

	page, limit, offset := parsePagination(r)

	runs, total, err := h.readingService.ListRuns(ctx, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_RUNS_ERROR] Failed to list runs", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", routeRuns)
		h.sendError(w, r, "failed to retrieve runs", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(routeRuns, "GET", "200")
	h.sendJSON(w, paginate(runs, total, page, limit), http.StatusOK)
}

// GetRun handles GET /api/runs/{run_id}
func (h *TurbineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe(routeRun, time.Now())

	run, err := h.readingService.GetRun(ctx, mux.Vars(r)["run_id"])
	if err != nil {
		h.handleLookupError(w, r, routeRun, "failed to retrieve run", err)
		return
	}

	h.metrics.RecordAPIRequest(routeRun, "GET", "200")
	h.sendJSON(w, run, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *TurbineHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.readingService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Database health check failed", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["database"] = err.Error()
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *TurbineHandler) handleLookupError(w http.ResponseWriter, r *http.Request, route, message string, err error) {
	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	}

	h.logger.Error(r.Context(), "[API_LOOKUP_ERROR] "+message, logging.Fields{
		"route": route,
	}, err)
	h.metrics.RecordAPIError("internal_error", route)
	h.sendError(w, r, message, http.StatusInternalServerError)
}

func (h *TurbineHandler) observe(route string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// sendJSON sends a JSON response
func (h *TurbineHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *TurbineHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	route := r.URL.Path
	if current := mux.CurrentRoute(r); current != nil {
		if tpl, err := current.GetPathTemplate(); err == nil {
			route = tpl
		}
	}
	h.metrics.RecordAPIRequest(route, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all turbine API routes
func (h *TurbineHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(routeStats, h.GetStatistics).Methods("GET")
	router.HandleFunc(routeTurbineDay, h.GetTurbineDay).Methods("GET")
	router.HandleFunc(routeReadings, h.GetReadings).Methods("GET")
	router.HandleFunc(routeMalformed, h.GetMalformed).Methods("GET")
	router.HandleFunc(routeRuns, h.ListRuns).Methods("GET")
	router.HandleFunc(routeRun, h.GetRun).Methods("GET")
	router.HandleFunc(routeHealthCheck, h.HealthCheck).Methods("GET")
}

// parsePagination reads page and limit, defaulting to 1 and 100
func parsePagination(r *http.Request) (page, limit, offset int) {
	page = 1
	limit = 100

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	return page, limit, (page - 1) * limit
}

func parseDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	var start, end *time.Time

	if s := r.URL.Query().Get("start_date"); s != "" {
		d, err := time.Parse(models.EventDateLayout, s)
		if err != nil {
			return nil, nil, errors.New("invalid start_date format, expected YYYY-MM-DD")
		}
		start = &d
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		d, err := time.Parse(models.EventDateLayout, s)
		if err != nil {
			return nil, nil, errors.New("invalid end_date format, expected YYYY-MM-DD")
		}
		end = &d
	}

	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, errors.New("end_date must not be before start_date")
	}

	return start, end, nil
}

func paginate(data interface{}, total, page, limit int) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}
