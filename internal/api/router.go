package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/digitwin/survey/internal/catalog"
	"github.com/digitwin/survey/internal/services"
)

// Router owns the REST surface. Handlers stay thin: decode, call a service,
// map the error, encode.
type Router struct {
	store      Store
	surveys    *services.SurveyService
	exports    *services.ExportService
	emails     *services.EmailService
	logger     *slog.Logger
	adminEmail string
}

func NewRouter(store Store, mailer services.Mailer, adminEmail string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:      store,
		surveys:    services.NewSurveyService(&storeAdapter{store: store}),
		exports:    services.NewExportService(),
		emails:     services.NewEmailService(mailer, logger),
		logger:     logger,
		adminEmail: adminEmail,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/surveys", rt.handleSurveys)            // POST
	mux.HandleFunc("/api/surveys/", rt.handleSurveyScoped)      // GET/POST subroutes
	mux.HandleFunc("/api/responses", rt.handleResponses)        // POST
	mux.HandleFunc("/api/questions", rt.handleQuestions)        // GET
	mux.HandleFunc("/api/admin/surveys", rt.handleAdminSurveys) // GET
	mux.HandleFunc("/api/admin/audit", rt.handleAdminAudit)     // GET
}

// POST /api/surveys {email} — create-or-return the survey for an email.
func (rt *Router) handleSurveys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rt.writeError(w, services.NewInvalidError("invalid JSON body"))
		return
	}
	sv, created, err := rt.surveys.StartSurvey(body.Email)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if created {
		surveysCreatedTotal.Inc()
		rt.audit(sv.Email, "survey.created", "")
	}
	rt.writeJSON(w, http.StatusOK, sv)
}

// GET /api/questions — the full catalog, grouped by section.
func (rt *Router) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"totalQuestions": catalog.Total(),
		"sections":       catalog.Sections(),
	})
}

// POST /api/responses — upsert one answer.
func (rt *Router) handleResponses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req services.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, services.NewInvalidError("invalid JSON body"))
		return
	}
	resp, err := rt.surveys.SaveResponse(req)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	responsesSavedTotal.Inc()
	rt.writeJSON(w, http.StatusOK, resp)
}

// handleSurveyScoped dispatches /api/surveys/{...} subroutes:
//
//	GET  /api/surveys/by-email/{email}
//	GET  /api/surveys/{id}/responses
//	POST /api/surveys/{id}/complete
//	GET  /api/surveys/{id}/download
//	GET  /api/surveys/{id}/export?format=markdown|html|pdf
//	POST /api/surveys/{id}/email
func (rt *Router) handleSurveyScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/surveys/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.NotFound(w, r)
		return
	}

	if parts[0] == "by-email" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		email, err := url.PathUnescape(parts[1])
		if err != nil {
			rt.writeError(w, services.NewInvalidError("invalid email"))
			return
		}
		rt.handleByEmail(w, email)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		rt.writeError(w, services.NewInvalidError("invalid survey id"))
		return
	}

	switch parts[1] {
	case "responses":
		rt.requireMethod(w, r, http.MethodGet, func() { rt.handleSurveyResponses(w, id) })
	case "complete":
		rt.requireMethod(w, r, http.MethodPost, func() { rt.handleComplete(w, id) })
	case "download":
		rt.requireMethod(w, r, http.MethodGet, func() { rt.handleExportFormat(w, id, services.FormatJSON) })
	case "export":
		format := services.ExportFormat(r.URL.Query().Get("format"))
		rt.requireMethod(w, r, http.MethodGet, func() { rt.handleExportFormat(w, id, format) })
	case "email":
		rt.requireMethod(w, r, http.MethodPost, func() { rt.handleEmail(w, r, id) })
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) requireMethod(w http.ResponseWriter, r *http.Request, method string, next func()) {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	next()
}

func (rt *Router) handleByEmail(w http.ResponseWriter, email string) {
	sv, rs, err := rt.surveys.GetByEmail(email)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"survey": sv, "responses": rs})
}

func (rt *Router) handleSurveyResponses(w http.ResponseWriter, id int64) {
	sv, rs, err := rt.surveys.Snapshot(id)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"survey":    sv,
		"responses": rs,
		"progress":  services.Progress(catalog.Questions(), rs),
	})
}

func (rt *Router) handleComplete(w http.ResponseWriter, id int64) {
	sv, err := rt.surveys.Complete(id)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	surveysCompletedTotal.Inc()
	rt.audit(sv.Email, "survey.completed", "")
	rt.writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleExportFormat(w http.ResponseWriter, id int64, format services.ExportFormat) {
	sv, rs, err := rt.surveys.Snapshot(id)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	res, err := rt.exports.Export(format, sv, rs)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	exportsTotal.WithLabelValues(string(format)).Inc()
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// handleEmail sends the results email. Delivery failure is degraded to a 200
// with sent=false: the answers are already saved, losing them over a mail
// outage would be worse.
func (rt *Router) handleEmail(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		RecipientEmail string             `json:"recipientEmail"`
		Questions      []catalog.Question `json:"questions,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rt.writeError(w, services.NewInvalidError("invalid JSON body"))
		return
	}
	sv, rs, err := rt.surveys.Snapshot(id)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	recipient := body.RecipientEmail
	if recipient == "" {
		recipient = sv.Email
	}
	if err := rt.emails.SendResults(recipient, sv, rs, body.Questions); err != nil {
		if se, ok := services.AsServiceError(err); ok && se.Code == services.ErrorInvalid {
			rt.writeError(w, err)
			return
		}
		emailsTotal.WithLabelValues("failed").Inc()
		rt.audit(sv.Email, "survey.email_failed", recipient)
		rt.writeJSON(w, http.StatusOK, map[string]any{
			"sent":    false,
			"message": "survey saved but the email could not be sent",
		})
		return
	}
	emailsTotal.WithLabelValues("sent").Inc()
	rt.audit(sv.Email, "survey.emailed", recipient)
	rt.writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// GET /api/admin/surveys — all surveys with progress, admin only.
func (rt *Router) handleAdminSurveys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.isAdmin(r) {
		rt.writeError(w, services.NewForbiddenError("admin access required"))
		return
	}
	svs, err := rt.surveys.ListSurveys()
	if err != nil {
		rt.writeError(w, err)
		return
	}
	type row struct {
		Survey   *services.Survey `json:"survey"`
		Progress services.Summary `json:"progress"`
	}
	rows := make([]row, 0, len(svs))
	for _, sv := range svs {
		rs, err := rt.store.ListResponses(sv.ID)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		answered := make([]*services.Response, 0, len(rs))
		for _, resp := range rs {
			answered = append(answered, toServiceResponse(resp))
		}
		rows = append(rows, row{Survey: sv, Progress: services.Progress(catalog.Questions(), answered)})
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"surveys": rows})
}

// GET /api/admin/audit — the audit trail, admin only.
func (rt *Router) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.isAdmin(r) {
		rt.writeError(w, services.NewForbiddenError("admin access required"))
		return
	}
	entries, err := rt.store.ListAudit()
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"audit": entries})
}

func (rt *Router) isAdmin(r *http.Request) bool {
	if rt.adminEmail == "" {
		return false
	}
	return strings.EqualFold(r.Header.Get("X-Admin-Email"), rt.adminEmail)
}

func (rt *Router) audit(actor, action, note string) {
	e := AuditEntry{Time: time.Now().UTC(), Actor: actor, Action: action, Note: note}
	if err := rt.store.AddAudit(e); err != nil {
		rt.logger.Error("append audit entry failed", "action", action, "error", err)
	}
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		}
		rt.writeJSON(w, status, map[string]string{"error": se.Message, "code": string(se.Code)})
		return
	}
	rt.logger.Error("request failed", "error", err)
	rt.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error", "code": "internal"})
}
