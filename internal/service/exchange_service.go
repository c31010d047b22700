package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"svj-registry/internal/domain"
	"svj-registry/internal/match"
	"svj-registry/internal/repository"

	"go.uber.org/zap"
)

// maxCandidates caps the suggestion list per record.
const maxCandidates = 10

// ExchangeService executes owner exchanges against reconciliation
// records, one at a time or in bulk.
type ExchangeService interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error)
	SuggestCandidates(ctx context.Context, req CandidatesRequest) (*CandidatesResponse, error)
	BulkExchange(ctx context.Context, req BulkExchangeRequest) (*BulkExchangeResponse, error)
	AuditTrail(ctx context.Context, req AuditTrailRequest) (*AuditTrailResponse, error)
}

type exchangeService struct {
	registry   repository.RegistryRepository
	syncRepo   repository.SyncRepository
	auditRepo  repository.AuditRepository
	thresholds match.Thresholds
	logger     *zap.Logger
}

func NewExchangeService(
	registry repository.RegistryRepository,
	syncRepo repository.SyncRepository,
	auditRepo repository.AuditRepository,
	thresholds match.Thresholds,
	logger *zap.Logger,
) ExchangeService {
	return &exchangeService{
		registry:   registry,
		syncRepo:   syncRepo,
		auditRepo:  auditRepo,
		thresholds: thresholds,
		logger:     logger,
	}
}

// ============================================
// Request/Response structs
// ============================================

type ExchangeRequest struct {
	RecordID   int64
	NewOwnerID int64
	// Effective is the valid_to/valid_from boundary; zero = today.
	Effective time.Time
	Actor     string
}

type ExchangeResponse struct {
	ClosedOwnerIDs []int64 `json:"closed_owner_ids"`
	NewOwnerUnitID int64   `json:"new_owner_unit_id"`
}

type CandidatesRequest struct {
	RecordID int64
}

type Candidate struct {
	OwnerID int64   `json:"owner_id"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
}

type CandidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type BulkExchangeRequest struct {
	SessionID int64
	// Effective applies to every exchange in the batch; zero = today.
	Effective time.Time
	Actor     string
}

type BulkExchangeResponse struct {
	Examined  int `json:"examined"`
	Exchanged int `json:"exchanged"`
	Failed    int `json:"failed"`
}

type AuditTrailRequest struct {
	RecordID int64
}

type AuditTrailResponse struct {
	Entries []*domain.AuditEntry `json:"entries"`
}

// ============================================
// Single exchange
// ============================================

func (s *exchangeService) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	rec, err := s.syncRepo.GetRecord(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if !rec.UnitID.Valid {
		return nil, fmt.Errorf("record %d has no resolved unit: %w", req.RecordID, repository.ErrNotFound)
	}

	// Fast-path validation for a clean error before the transaction; the
	// repository re-validates inside it.
	owner, err := s.registry.FindOwner(ctx, req.NewOwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("owner %d: %w", req.NewOwnerID, repository.ErrOwnerNotFound)
	}
	if !owner.IsActive {
		return nil, fmt.Errorf("owner %d: %w", req.NewOwnerID, repository.ErrOwnerInactive)
	}

	effective := req.Effective
	if effective.IsZero() {
		effective = today()
	}

	outcome, err := s.registry.PerformExchange(ctx, repository.Exchange{
		RecordID:   req.RecordID,
		UnitID:     rec.UnitID.Int64,
		NewOwnerID: req.NewOwnerID,
		Effective:  effective,
		Actor:      req.Actor,
	})
	if err != nil {
		s.logger.Error("Exchange failed",
			zap.Error(err),
			zap.Int64("record_id", req.RecordID),
			zap.Int64("new_owner_id", req.NewOwnerID))
		return nil, err
	}

	s.logger.Info("Owner exchanged",
		zap.Int64("record_id", req.RecordID),
		zap.Int64("unit_id", rec.UnitID.Int64),
		zap.Int64("new_owner_id", req.NewOwnerID),
		zap.Int64s("closed_owner_ids", outcome.ClosedOwnerIDs))

	return &ExchangeResponse{
		ClosedOwnerIDs: outcome.ClosedOwnerIDs,
		NewOwnerUnitID: outcome.NewOwnerUnitID,
	}, nil
}

// ============================================
// Candidate suggestion
// ============================================

// SuggestCandidates ranks active owners by name similarity against the
// record's external owner, best first.
func (s *exchangeService) SuggestCandidates(ctx context.Context, req CandidatesRequest) (*CandidatesResponse, error) {
	rec, err := s.syncRepo.GetRecord(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	owners, err := s.registry.ListActiveOwners(ctx)
	if err != nil {
		return nil, err
	}

	target := match.Normalize(rec.ExternalOwner)
	candidates := []Candidate{}
	if target == "" {
		return &CandidatesResponse{Candidates: candidates}, nil
	}
	for _, owner := range owners {
		name := match.Normalize(owner.DisplayName())
		if name == "" {
			continue
		}
		score := match.Ratio(target, name)
		if score < s.thresholds.Suggest {
			continue
		}
		candidates = append(candidates, Candidate{
			OwnerID: owner.ID,
			Name:    owner.DisplayName(),
			Score:   score,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].OwnerID < candidates[j].OwnerID
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return &CandidatesResponse{Candidates: candidates}, nil
}

// ============================================
// Bulk exchange
// ============================================

// BulkExchange auto-exchanges every unresolved "different" record whose
// best active-owner match reaches the auto threshold. Records below the
// threshold are left untouched; per-record failures are counted, not
// propagated.
func (s *exchangeService) BulkExchange(ctx context.Context, req BulkExchangeRequest) (*BulkExchangeResponse, error) {
	if _, err := s.syncRepo.GetSession(ctx, req.SessionID); err != nil {
		return nil, err
	}
	records, err := s.syncRepo.ListUnresolved(ctx, req.SessionID, domain.StatusDifferent)
	if err != nil {
		return nil, err
	}

	// One owner scan serves the whole batch.
	owners, err := s.registry.ListActiveOwners(ctx)
	if err != nil {
		return nil, err
	}
	type scored struct {
		id   int64
		name string
	}
	normalized := make([]scored, 0, len(owners))
	for _, owner := range owners {
		name := match.Normalize(owner.DisplayName())
		if name == "" {
			continue
		}
		normalized = append(normalized, scored{id: owner.ID, name: name})
	}

	resp := &BulkExchangeResponse{Examined: len(records)}
	effective := req.Effective
	if effective.IsZero() {
		effective = today()
	}
	for _, rec := range records {
		if !rec.UnitID.Valid {
			continue
		}
		// An empty external name matches an empty owner name with ratio
		// 1.0; never auto-exchange on it.
		target := match.Normalize(rec.ExternalOwner)
		if target == "" {
			continue
		}
		var bestID int64
		var bestScore float64
		for _, owner := range normalized {
			if score := match.Ratio(target, owner.name); score > bestScore {
				bestScore = score
				bestID = owner.id
			}
		}
		if bestScore < s.thresholds.Auto {
			continue
		}

		_, err := s.registry.PerformExchange(ctx, repository.Exchange{
			RecordID:   rec.ID,
			UnitID:     rec.UnitID.Int64,
			NewOwnerID: bestID,
			Effective:  effective,
			Actor:      req.Actor,
			Note:       fmt.Sprintf("auto match score=%.2f", bestScore),
		})
		if err != nil {
			resp.Failed++
			s.logger.Error("Bulk exchange record failed",
				zap.Error(err),
				zap.Int64("record_id", rec.ID),
				zap.Int64("new_owner_id", bestID))
			continue
		}
		resp.Exchanged++
	}

	if resp.Exchanged > 0 {
		if err := s.auditRepo.AppendImportLog(ctx, &domain.ImportLogEntry{
			Source:  "exchange",
			Records: resp.Exchanged,
			Status:  bulkStatus(resp.Failed),
			Details: fmt.Sprintf("session_id=%d, examined=%d, failed=%d", req.SessionID, resp.Examined, resp.Failed),
		}); err != nil {
			s.logger.Error("Failed to append bulk exchange log", zap.Error(err))
		}
	}

	s.logger.Info("Bulk exchange finished",
		zap.Int64("session_id", req.SessionID),
		zap.Int("examined", resp.Examined),
		zap.Int("exchanged", resp.Exchanged),
		zap.Int("failed", resp.Failed))
	return resp, nil
}

// AuditTrail returns the exchange history of the record's unit, newest
// first.
func (s *exchangeService) AuditTrail(ctx context.Context, req AuditTrailRequest) (*AuditTrailResponse, error) {
	rec, err := s.syncRepo.GetRecord(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if !rec.UnitID.Valid {
		return nil, fmt.Errorf("record %d has no resolved unit: %w", req.RecordID, repository.ErrNotFound)
	}
	entries, err := s.auditRepo.ListAudit(ctx, "OwnerUnit", rec.UnitID.Int64)
	if err != nil {
		return nil, err
	}
	return &AuditTrailResponse{Entries: entries}, nil
}

func bulkStatus(failed int) string {
	if failed > 0 {
		return "partial"
	}
	return "success"
}

// today truncates now to the calendar date used as the exchange boundary.
func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
