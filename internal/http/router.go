package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router wraps the standard library http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSyncRoutes wires the reconciliation API.
func (r *Router) RegisterSyncRoutes(h *SyncHandler) {
	// import staging
	r.Handle("/registry/api/v1/sync/imports", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.StageImport(w, req)
		case http.MethodGet:
			h.ListImports(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/registry/api/v1/sync/imports/fetch", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.FetchImport(w, req)
	})
	r.Handle("/registry/api/v1/sync/imports/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/registry/api/v1/sync/imports/")
		switch {
		case req.Method == http.MethodPost && strings.HasSuffix(rest, "/confirm"):
			h.ConfirmImport(w, req, strings.TrimSuffix(rest, "/confirm"))
		case req.Method == http.MethodDelete && rest != "" && !strings.Contains(rest, "/"):
			h.DiscardImport(w, req, rest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// sessions
	r.Handle("/registry/api/v1/sync/sessions", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListSessions(w, req)
	})
	r.Handle("/registry/api/v1/sync/sessions/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/registry/api/v1/sync/sessions/")
		switch {
		case req.Method == http.MethodGet && strings.HasSuffix(rest, "/export"):
			h.ExportSession(w, req, strings.TrimSuffix(rest, "/export"))
		case req.Method == http.MethodPost && strings.HasSuffix(rest, "/bulk-exchange"):
			h.BulkExchange(w, req, strings.TrimSuffix(rest, "/bulk-exchange"))
		case req.Method == http.MethodGet && rest != "" && !strings.Contains(rest, "/"):
			h.GetSession(w, req, rest)
		case req.Method == http.MethodDelete && rest != "" && !strings.Contains(rest, "/"):
			h.DeleteSession(w, req, rest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// records
	r.Handle("/registry/api/v1/sync/records/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/registry/api/v1/sync/records/")
		id, action, ok := splitRecordPath(rest)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case req.Method == http.MethodPost && action == "accept":
			h.AcceptRecord(w, req, id)
		case req.Method == http.MethodPost && action == "reject":
			h.RejectRecord(w, req, id)
		case req.Method == http.MethodPost && action == "update-share":
			h.UpdateShare(w, req, id)
		case req.Method == http.MethodPost && action == "transfer-contacts":
			h.TransferContacts(w, req, id)
		case req.Method == http.MethodPost && action == "exchange":
			h.Exchange(w, req, id)
		case req.Method == http.MethodGet && action == "candidates":
			h.Candidates(w, req, id)
		case req.Method == http.MethodGet && action == "audit":
			h.AuditTrail(w, req, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// splitRecordPath splits "{id}/{action}" and rejects deeper paths.
func splitRecordPath(rest string) (id, action string, ok bool) {
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
