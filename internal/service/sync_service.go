package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"svj-registry/internal/domain"
	"svj-registry/internal/ingest"
	"svj-registry/internal/match"
	"svj-registry/internal/repository"

	"go.uber.org/zap"
)

// SyncService builds and manages reconciliation sessions.
type SyncService interface {
	BuildSession(ctx context.Context, req BuildSessionRequest) (*BuildSessionResponse, error)
	ListSessions(ctx context.Context) (*ListSessionsResponse, error)
	GetSession(ctx context.Context, req GetSessionRequest) (*GetSessionResponse, error)
	DeleteSession(ctx context.Context, req DeleteSessionRequest) error

	AcceptRecord(ctx context.Context, req RecordRequest) error
	RejectRecord(ctx context.Context, req RecordRequest) error
	SelectiveUpdate(ctx context.Context, req SelectiveUpdateRequest) error
	TransferContacts(ctx context.Context, req TransferContactsRequest) (*TransferContactsResponse, error)

	ExportRows(ctx context.Context, req ExportRequest) ([]*ExportRow, error)
}

type syncService struct {
	registry   repository.RegistryRepository
	syncRepo   repository.SyncRepository
	auditRepo  repository.AuditRepository
	classifier match.Classifier
	logger     *zap.Logger
}

func NewSyncService(
	registry repository.RegistryRepository,
	syncRepo repository.SyncRepository,
	auditRepo repository.AuditRepository,
	classifier match.Classifier,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		registry:   registry,
		syncRepo:   syncRepo,
		auditRepo:  auditRepo,
		classifier: classifier,
		logger:     logger,
	}
}

// ============================================
// Request/Response structs
// ============================================

type BuildSessionRequest struct {
	Name         string
	SourceFormat string
	Source       string // "csv" / "xlsx"
	Filename     string
	Headers      []string
	Rows         []ingest.Row
	Mapping      ingest.RoleMap
}

type BuildSessionResponse struct {
	SessionID int64                     `json:"session_id"`
	Total     int                       `json:"total"`
	Counts    map[domain.SyncStatus]int `json:"counts"`
}

type ListSessionsResponse struct {
	Items []*repository.SessionSummary `json:"items"`
}

type GetSessionRequest struct {
	SessionID int64
	Status    domain.SyncStatus // "" = all records
}

type GetSessionResponse struct {
	Session *domain.SyncSession       `json:"session"`
	Records []*domain.SyncRecord      `json:"records"`
	Counts  map[domain.SyncStatus]int `json:"counts"`
}

type DeleteSessionRequest struct {
	SessionID int64
}

type RecordRequest struct {
	RecordID int64
}

type SelectiveUpdateRequest struct {
	RecordID int64
	Actor    string
}

type TransferContactsRequest struct {
	RecordID int64
	Actor    string
}

type TransferContactsResponse struct {
	OwnerID int64  `json:"owner_id"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type ExportRequest struct {
	SessionID int64
	Status    domain.SyncStatus // "" = all records
}

// ExportRow is one line of the discrepancy export.
type ExportRow struct {
	Unit          string
	CurrentOwner  string
	ExternalOwner string
	CurrentShare  string
	ExternalShare string
	Status        domain.SyncStatus
}

// ============================================
// Session building
// ============================================

// BuildSession aligns every snapshot row against the registry, classifies
// the discrepancies and persists the whole batch as one session.
func (s *syncService) BuildSession(ctx context.Context, req BuildSessionRequest) (*BuildSessionResponse, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("session name is required")
	}

	records := make([]*domain.SyncRecord, 0, len(req.Rows))
	for _, row := range req.Rows {
		ident := row[req.Mapping[ingest.RoleUnit]]
		extOwner := externalOwnerName(row, req.Mapping)
		extShare := row[req.Mapping[ingest.RoleShare]]

		// A row carrying neither a unit nor an owner is noise.
		if ident == "" && extOwner == "" {
			continue
		}

		rec := &domain.SyncRecord{
			ExternalOwner: extOwner,
			ExternalShare: extShare,
		}

		unit, err := s.registry.FindUnitByIdentifier(ctx, ident)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve unit %q: %w", ident, err)
		}
		if unit != nil {
			rec.UnitID = sql.NullInt64{Int64: unit.ID, Valid: true}
			current, err := s.currentOwnership(ctx, unit.ID)
			if err != nil {
				return nil, err
			}
			rec.CurrentOwner = current.name
			rec.CurrentShare = current.share
		}

		rec.Status = s.classifier.Classify(rec.CurrentOwner, extOwner, rec.CurrentShare, extShare)

		// Keep the verbatim source row for selective transfer later.
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode source row: %w", err)
		}
		rec.ExternalRow = string(rowJSON)

		records = append(records, rec)
	}

	session := &domain.SyncSession{
		Name:         req.Name,
		SourceFormat: req.SourceFormat,
	}
	sessionID, err := s.syncRepo.CreateSession(ctx, session, records)
	if err != nil {
		s.logger.Error("Failed to create sync session", zap.Error(err))
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.auditRepo.AppendImportLog(ctx, &domain.ImportLogEntry{
		Source:   req.Source,
		Filename: req.Filename,
		Records:  len(records),
		Status:   "success",
		Details:  fmt.Sprintf("session_id=%d, source_format=%s", sessionID, req.SourceFormat),
	}); err != nil {
		// The session itself is committed; a lost import-log line is
		// logged, not fatal.
		s.logger.Error("Failed to append import log", zap.Error(err), zap.Int64("session_id", sessionID))
	}

	counts, err := s.syncRepo.StatusCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sync session created",
		zap.Int64("session_id", sessionID),
		zap.Int("records", len(records)),
		zap.String("source_format", req.SourceFormat))

	return &BuildSessionResponse{
		SessionID: sessionID,
		Total:     len(records),
		Counts:    counts,
	}, nil
}

type ownershipView struct {
	name  string
	share string
}

// currentOwnership joins the unit's active owners into one display name.
// Co-owned units concatenate names with ", "; the share is taken from the
// first active link.
func (s *syncService) currentOwnership(ctx context.Context, unitID int64) (ownershipView, error) {
	links, err := s.registry.ActiveOwnershipFor(ctx, unitID)
	if err != nil {
		return ownershipView{}, fmt.Errorf("failed to load ownership for unit %d: %w", unitID, err)
	}
	var view ownershipView
	for i, link := range links {
		owner, err := s.registry.FindOwner(ctx, link.OwnerID)
		if err != nil {
			return ownershipView{}, err
		}
		if owner == nil {
			continue
		}
		if view.name != "" {
			view.name += ", "
		}
		view.name += owner.DisplayName()
		if i == 0 {
			view.share = link.Share
		}
	}
	return view, nil
}

func externalOwnerName(row ingest.Row, mapping ingest.RoleMap) string {
	if h, ok := mapping[ingest.RoleOwner]; ok {
		return row[h]
	}
	last := row[mapping[ingest.RoleLastName]]
	first := row[mapping[ingest.RoleFirstName]]
	switch {
	case last != "" && first != "":
		return last + " " + first
	case last != "":
		return last
	default:
		return first
	}
}

// ============================================
// Session inspection
// ============================================

func (s *syncService) ListSessions(ctx context.Context) (*ListSessionsResponse, error) {
	items, err := s.syncRepo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	return &ListSessionsResponse{Items: items}, nil
}

func (s *syncService) GetSession(ctx context.Context, req GetSessionRequest) (*GetSessionResponse, error) {
	session, err := s.syncRepo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.syncRepo.ListRecords(ctx, req.SessionID, req.Status)
	if err != nil {
		return nil, err
	}
	counts, err := s.syncRepo.StatusCounts(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &GetSessionResponse{Session: session, Records: records, Counts: counts}, nil
}

func (s *syncService) DeleteSession(ctx context.Context, req DeleteSessionRequest) error {
	if err := s.syncRepo.DeleteSession(ctx, req.SessionID); err != nil {
		return err
	}
	s.logger.Info("Sync session deleted", zap.Int64("session_id", req.SessionID))
	return nil
}

// ============================================
// Record resolution
// ============================================

// AcceptRecord marks the record resolved without touching the registry:
// the operator confirms the registry is already correct.
func (s *syncService) AcceptRecord(ctx context.Context, req RecordRequest) error {
	return s.syncRepo.MarkResolved(ctx, req.RecordID)
}

func (s *syncService) RejectRecord(ctx context.Context, req RecordRequest) error {
	return s.syncRepo.MarkRejected(ctx, req.RecordID)
}

// SelectiveUpdate copies the external share onto the unit's active links
// without changing ownership.
func (s *syncService) SelectiveUpdate(ctx context.Context, req SelectiveUpdateRequest) error {
	rec, err := s.syncRepo.GetRecord(ctx, req.RecordID)
	if err != nil {
		return err
	}
	if !rec.UnitID.Valid {
		return fmt.Errorf("record %d has no resolved unit: %w", req.RecordID, repository.ErrNotFound)
	}
	if rec.ExternalShare == "" {
		return fmt.Errorf("record %d carries no external share", req.RecordID)
	}

	if err := s.registry.UpdateActiveShare(ctx, rec.UnitID.Int64, rec.ExternalShare); err != nil {
		return err
	}
	if err := s.syncRepo.MarkResolved(ctx, req.RecordID); err != nil {
		return err
	}
	return s.auditRepo.AppendAudit(ctx, &domain.AuditEntry{
		Actor:    req.Actor,
		Action:   domain.ActionBulkUpdate,
		Entity:   "OwnerUnit",
		RecordID: rec.UnitID,
		OldValue: fmt.Sprintf("share=%s", rec.CurrentShare),
		NewValue: fmt.Sprintf("share=%s", rec.ExternalShare),
	})
}

// TransferContacts copies the email/phone fields of the source row onto
// the unit's current owner.
func (s *syncService) TransferContacts(ctx context.Context, req TransferContactsRequest) (*TransferContactsResponse, error) {
	rec, err := s.syncRepo.GetRecord(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if !rec.UnitID.Valid {
		return nil, fmt.Errorf("record %d has no resolved unit: %w", req.RecordID, repository.ErrNotFound)
	}

	var row map[string]string
	if err := json.Unmarshal([]byte(rec.ExternalRow), &row); err != nil {
		return nil, fmt.Errorf("failed to decode source row of record %d: %w", req.RecordID, err)
	}
	email, phone := contactFields(row)
	if email == "" && phone == "" {
		return nil, fmt.Errorf("record %d carries no contact fields", req.RecordID)
	}

	links, err := s.registry.ActiveOwnershipFor(ctx, rec.UnitID.Int64)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("unit %d has no active owner: %w", rec.UnitID.Int64, repository.ErrNotFound)
	}
	ownerID := links[0].OwnerID

	if err := s.registry.UpdateOwnerContact(ctx, ownerID, email, phone); err != nil {
		return nil, err
	}
	if err := s.auditRepo.AppendAudit(ctx, &domain.AuditEntry{
		Actor:    req.Actor,
		Action:   domain.ActionContactTransfer,
		Entity:   "Owner",
		RecordID: sql.NullInt64{Int64: ownerID, Valid: true},
		NewValue: fmt.Sprintf("email=%s, phone=%s", email, phone),
	}); err != nil {
		return nil, err
	}
	return &TransferContactsResponse{OwnerID: ownerID, Email: email, Phone: phone}, nil
}

// contactFields picks up email and phone under the header variants seen
// in snapshot exports.
func contactFields(row map[string]string) (email, phone string) {
	for k, v := range row {
		if v == "" {
			continue
		}
		kl := strings.ToLower(strings.TrimSpace(k))
		switch {
		case containsAny(kl, "e-mail", "email"):
			if email == "" {
				email = v
			}
		case containsAny(kl, "telefon", "phone", "mobil"):
			if phone == "" {
				phone = v
			}
		}
	}
	return email, phone
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ============================================
// Export
// ============================================

func (s *syncService) ExportRows(ctx context.Context, req ExportRequest) ([]*ExportRow, error) {
	records, err := s.syncRepo.ListRecords(ctx, req.SessionID, req.Status)
	if err != nil {
		return nil, err
	}
	out := make([]*ExportRow, 0, len(records))
	for _, rec := range records {
		row := &ExportRow{
			CurrentOwner:  rec.CurrentOwner,
			ExternalOwner: rec.ExternalOwner,
			CurrentShare:  rec.CurrentShare,
			ExternalShare: rec.ExternalShare,
			Status:        rec.Status,
		}
		if rec.UnitID.Valid {
			unit, err := s.registry.GetUnit(ctx, rec.UnitID.Int64)
			if err != nil {
				return nil, err
			}
			row.Unit = strconv.Itoa(unit.UnitNumber)
		}
		out = append(out, row)
	}
	return out, nil
}
