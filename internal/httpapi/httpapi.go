package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/logging"
	"shiftrecon/backend/internal/metrics"
	"shiftrecon/backend/internal/service"
	"shiftrecon/backend/internal/store"
	"shiftrecon/backend/internal/xid"
)

const currentShiftAlias = "current"

var validate = validator.New()

type API struct {
	service       *service.Analyzer
	auth          *AuthManager
	metrics       *metrics.Metrics
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrf          *csrfSigner
	log           *logrus.Entry
}

func New(svc *service.Analyzer, auth *AuthManager, m *metrics.Metrics, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		metrics:       m,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrf:          newCSRFSigner(),
		log:           logging.For("httpapi"),
	}
}

// attemptLimiter is a per-key sliding window over recent attempts.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	attempts map[string][]time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	if window == 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    max(limit, 1),
		window:   window,
		attempts: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key. When the window is full it reports how
// long until the oldest attempt expires.
func (l *attemptLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.attempts[key][:0]
	for _, at := range l.attempts[key] {
		if now.Sub(at) < l.window {
			recent = append(recent, at)
		}
	}
	if len(recent) >= l.limit {
		l.attempts[key] = recent
		return false, l.window - now.Sub(recent[0])
	}
	l.attempts[key] = append(recent, now)
	return true, 0
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/shift-analysis", a.requireAuth(a.handleAnalysisList, domain.RoleManager, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/shift-analysis/", a.requireAuth(a.handleAnalysis, domain.RoleManager, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/shift-forms/", a.requireAuth(a.handleShiftForms, domain.RoleStaff, domain.RoleManager, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if ok, wait := a.loginLimiter.Allow(clientKey(r)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.csrf.Issue(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF requires X-CSRF-Token on POST, PUT and PATCH.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.csrf.Valid(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

// handleAnalysisList serves GET /api/v1/shift-analysis?from=&to=.
func (a *API) handleAnalysisList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	summaries, err := a.service.ListAnalyses(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": summaries})
}

// handleAnalysis serves /api/v1/shift-analysis/{date}: GET reads the stored
// analysis, POST recomputes it.
func (a *API) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	date, ok := shiftDateFromPath(r.URL.Path, "/api/v1/shift-analysis/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := a.service.GetShiftAnalysis(r.Context(), date)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodPost:
		record, err := a.service.GenerateShiftAnalysis(r.Context(), date)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleShiftForms serves PUT /api/v1/shift-forms/{date} and
// PATCH /api/v1/shift-forms/{date}/stock.
func (a *API) handleShiftForms(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/shift-forms/")
	isStock := strings.HasSuffix(rest, "/stock")
	rest = strings.TrimSuffix(rest, "/stock")
	date, ok := shiftDateFromPath(rest, "")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}

	if isStock {
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var patch domain.StockPatch
		if err := decodeAndValidate(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		stock, err := a.service.PatchStockCount(r.Context(), date, patch)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stock": stock})
		return
	}

	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var form domain.StaffShiftForm
	if err := decodeAndValidate(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	form.ShiftDate = date
	saved, err := a.service.SaveStaffForm(r.Context(), form)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"form": saved})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		user, err := a.auth.CreateUser(r.Context(), req)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errUserExists) || errors.Is(err, store.ErrInvalidInput) {
				status = http.StatusConflict
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

// writeServiceError maps service sentinels to status codes. A failed analysis
// run is reported as unavailable, never as an all-zero result.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDate), errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrAnalysisUnavailable), errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": service.ErrAnalysisUnavailable.Error()})
	case errors.Is(err, service.ErrUpstreamFetch):
		a.log.WithError(err).Warn("pos fetch failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": service.ErrAnalysisUnavailable.Error()})
	default:
		a.log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, err)
	}
}

// shiftDateFromPath extracts the single {date} segment after prefix. The
// "current" alias resolves to the running shift.
func shiftDateFromPath(path string, prefix string) (string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	if rest == currentShiftAlias {
		return "", true
	}
	return rest, true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := xid.FromHeader(r.Header.Get("X-Request-ID"), "req")
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		if a.checkCSRF(rec, r) {
			next.ServeHTTP(rec, r)
		}

		route := routeLabel(r.URL.Path)
		a.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status))
		a.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(startedAt).String(),
		}).Info("request")
	})
}

var knownRoutes = map[string]bool{
	"/healthz":                         true,
	"/metrics":                         true,
	"/api/v1/auth/login":               true,
	"/api/v1/auth/csrf-token":          true,
	"/api/v1/shift-analysis":           true,
	"/api/v1/shift-analysis/{date}":    true,
	"/api/v1/shift-forms/{date}":       true,
	"/api/v1/shift-forms/{date}/stock": true,
	"/api/v1/users":                    true,
}

// routeLabel maps a request path onto a fixed set of metric labels. Date
// segments collapse to {date}; anything unrouted becomes "other".
func routeLabel(path string) string {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	for i, part := range parts {
		if part == currentShiftAlias || store.ValidShiftDate(part) {
			parts[i] = "{date}"
		}
	}
	label := strings.Join(parts, "/")
	if !knownRoutes[label] {
		return "other"
	}
	return label
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func decodeAndValidate(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	var verrs validator.ValidationErrors
	if err := validate.Struct(dest); err != nil {
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
		}
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are meant for the caller.
	msg := err.Error()
	if status >= 500 {
		logging.For("httpapi").WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
