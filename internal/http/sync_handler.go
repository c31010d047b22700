package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"svj-registry/internal/domain"
	"svj-registry/internal/ingest"
	"svj-registry/internal/repository"
	"svj-registry/internal/service"

	"go.uber.org/zap"
)

// maxUploadBytes caps snapshot uploads at 16 MiB.
const maxUploadBytes = 16 << 20

// SyncHandler serves the reconciliation API.
type SyncHandler struct {
	importSvc   service.ImportService
	syncSvc     service.SyncService
	exchangeSvc service.ExchangeService
	logger      *zap.Logger
}

func NewSyncHandler(
	importSvc service.ImportService,
	syncSvc service.SyncService,
	exchangeSvc service.ExchangeService,
	logger *zap.Logger,
) *SyncHandler {
	return &SyncHandler{
		importSvc:   importSvc,
		syncSvc:     syncSvc,
		exchangeSvc: exchangeSvc,
		logger:      logger,
	}
}

// actor resolves the acting operator from the request.
func actor(req *http.Request) string {
	if a := req.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "admin"
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// failWith maps service errors onto HTTP statuses.
func (h *SyncHandler) failWith(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrOwnerNotFound):
		writeFail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrOwnerInactive),
		errors.Is(err, repository.ErrConflict):
		writeFail(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrImportExpired):
		writeFail(w, http.StatusGone, err.Error())
	default:
		writeFail(w, http.StatusInternalServerError, err.Error())
	}
}

// ============================================
// Import staging
// ============================================

// StageImport accepts a multipart upload (field "file") plus form fields
// "name" and optional "delimiter".
func (h *SyncHandler) StageImport(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		writeFail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeFail(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	var delimiter rune
	if d := req.FormValue("delimiter"); d != "" {
		delimiter = rune(d[0])
	}
	name := req.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	resp, err := h.importSvc.Stage(req.Context(), service.StageRequest{
		Name:      name,
		Filename:  header.Filename,
		Data:      data,
		Delimiter: delimiter,
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) ListImports(w http.ResponseWriter, req *http.Request) {
	resp, err := h.importSvc.ListPending(req.Context())
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) FetchImport(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if body.URL == "" {
		writeFail(w, http.StatusBadRequest, "url is required")
		return
	}
	resp, err := h.importSvc.FetchRemote(req.Context(), service.FetchRemoteRequest{
		Name: body.Name,
		URL:  body.URL,
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) ConfirmImport(w http.ResponseWriter, req *http.Request, token string) {
	var body struct {
		Mapping map[string]string `json:"mapping"`
	}
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeFail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
			return
		}
	}
	mapping := ingest.RoleMap{}
	for role, header := range body.Mapping {
		mapping[ingest.Role(role)] = header
	}
	resp, err := h.importSvc.Confirm(req.Context(), service.ConfirmRequest{
		Token:   token,
		Mapping: mapping,
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) DiscardImport(w http.ResponseWriter, req *http.Request, token string) {
	if err := h.importSvc.Discard(req.Context(), service.DiscardRequest{Token: token}); err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, map[string]bool{"discarded": true})
}

// ============================================
// Sessions
// ============================================

func (h *SyncHandler) ListSessions(w http.ResponseWriter, req *http.Request) {
	resp, err := h.syncSvc.ListSessions(req.Context())
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) GetSession(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.syncSvc.GetSession(req.Context(), service.GetSessionRequest{
		SessionID: id,
		Status:    domain.SyncStatus(req.URL.Query().Get("status")),
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) DeleteSession(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.syncSvc.DeleteSession(req.Context(), service.DeleteSessionRequest{SessionID: id}); err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, map[string]bool{"deleted": true})
}

func (h *SyncHandler) ExportSession(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.syncSvc.ExportRows(req.Context(), service.ExportRequest{
		SessionID: id,
		Status:    domain.SyncStatus(req.URL.Query().Get("status")),
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	data, err := GenerateSessionExport(rows)
	if err != nil {
		h.failWith(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="sync_session_%d_%s.xlsx"`, id, time.Now().Format("20060102")))
	_, _ = w.Write(data)
}

func (h *SyncHandler) BulkExchange(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		EffectiveDate string `json:"effective_date"` // "2006-01-02", optional
	}
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeFail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
			return
		}
	}
	var effective time.Time
	if body.EffectiveDate != "" {
		effective, err = time.Parse("2006-01-02", body.EffectiveDate)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "invalid effective_date: "+err.Error())
			return
		}
	}
	resp, err := h.exchangeSvc.BulkExchange(req.Context(), service.BulkExchangeRequest{
		SessionID: id,
		Effective: effective,
		Actor:     actor(req),
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

// ============================================
// Records
// ============================================

func (h *SyncHandler) AcceptRecord(w http.ResponseWriter, req *http.Request, rawID string) {
	h.recordAction(w, req, rawID, h.syncSvc.AcceptRecord)
}

func (h *SyncHandler) RejectRecord(w http.ResponseWriter, req *http.Request, rawID string) {
	h.recordAction(w, req, rawID, h.syncSvc.RejectRecord)
}

func (h *SyncHandler) recordAction(
	w http.ResponseWriter,
	req *http.Request,
	rawID string,
	action func(ctx context.Context, req service.RecordRequest) error,
) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := action(req.Context(), service.RecordRequest{RecordID: id}); err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, map[string]bool{"resolved": true})
}

func (h *SyncHandler) UpdateShare(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.syncSvc.SelectiveUpdate(req.Context(), service.SelectiveUpdateRequest{
		RecordID: id,
		Actor:    actor(req),
	}); err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, map[string]bool{"updated": true})
}

func (h *SyncHandler) TransferContacts(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.syncSvc.TransferContacts(req.Context(), service.TransferContactsRequest{
		RecordID: id,
		Actor:    actor(req),
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) Exchange(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		NewOwnerID    int64  `json:"new_owner_id"`
		EffectiveDate string `json:"effective_date"` // "2006-01-02", optional
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if body.NewOwnerID <= 0 {
		writeFail(w, http.StatusBadRequest, "new_owner_id is required")
		return
	}
	var effective time.Time
	if body.EffectiveDate != "" {
		effective, err = time.Parse("2006-01-02", body.EffectiveDate)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "invalid effective_date: "+err.Error())
			return
		}
	}
	resp, err := h.exchangeSvc.Exchange(req.Context(), service.ExchangeRequest{
		RecordID:   id,
		NewOwnerID: body.NewOwnerID,
		Effective:  effective,
		Actor:      actor(req),
	})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) Candidates(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.exchangeSvc.SuggestCandidates(req.Context(), service.CandidatesRequest{RecordID: id})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}

func (h *SyncHandler) AuditTrail(w http.ResponseWriter, req *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.exchangeSvc.AuditTrail(req.Context(), service.AuditTrailRequest{RecordID: id})
	if err != nil {
		h.failWith(w, err)
		return
	}
	writeOk(w, resp)
}
