package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"svj-registry/internal/ingest"
	"svj-registry/internal/store"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrImportExpired: the staged import is gone, either expired or already
// confirmed/discarded.
var ErrImportExpired = errors.New("pending import expired or not found")

const pendingKeyPrefix = "import:pending:"

// ImportService stages uploaded snapshots for confirmation. A staged
// import lives in the KV under a one-time token until the operator
// confirms the column mapping or the TTL runs out.
type ImportService interface {
	Stage(ctx context.Context, req StageRequest) (*StageResponse, error)
	FetchRemote(ctx context.Context, req FetchRemoteRequest) (*StageResponse, error)
	ListPending(ctx context.Context) (*ListPendingResponse, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*BuildSessionResponse, error)
	Discard(ctx context.Context, req DiscardRequest) error
}

type importService struct {
	kv      store.KV
	syncSvc SyncService
	client  *resty.Client
	ttl     time.Duration
	logger  *zap.Logger
}

func NewImportService(kv store.KV, syncSvc SyncService, ttl time.Duration, logger *zap.Logger) ImportService {
	return &importService{
		kv:      kv,
		syncSvc: syncSvc,
		client:  resty.New().SetTimeout(30 * time.Second),
		ttl:     ttl,
		logger:  logger,
	}
}

// ============================================
// Request/Response structs
// ============================================

type StageRequest struct {
	Name     string
	Filename string
	Data     []byte
	// Delimiter forces the CSV delimiter; 0 = autodetect. Ignored for
	// xlsx uploads.
	Delimiter rune
}

type StageResponse struct {
	Token        string         `json:"token"`
	SourceFormat string         `json:"source_format"`
	Headers      []string       `json:"headers"`
	Mapping      ingest.RoleMap `json:"mapping"`
	Sample       []ingest.Row   `json:"sample"`
	Total        int            `json:"total"`
}

type FetchRemoteRequest struct {
	Name string
	URL  string
}

type ConfirmRequest struct {
	Token string
	// Mapping overrides the detected column mapping; roles absent here
	// keep their detected header.
	Mapping ingest.RoleMap
}

type DiscardRequest struct {
	Token string
}

// PendingItem summarizes one staged import awaiting confirmation.
type PendingItem struct {
	Token        string `json:"token"`
	Name         string `json:"name"`
	Filename     string `json:"filename"`
	Source       string `json:"source"`
	SourceFormat string `json:"source_format"`
	Total        int    `json:"total"`
}

type ListPendingResponse struct {
	Imports []PendingItem `json:"imports"`
}

// pendingImport is the staged payload serialized into the KV.
type pendingImport struct {
	Name         string       `json:"name"`
	Filename     string       `json:"filename"`
	Source       string       `json:"source"`
	SourceFormat string       `json:"source_format"`
	Headers      []string     `json:"headers"`
	Rows         []ingest.Row `json:"rows"`
}

// ============================================
// Staging
// ============================================

func (s *importService) Stage(ctx context.Context, req StageRequest) (*StageResponse, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}

	var snap *ingest.Snapshot
	var err error
	source := "csv"
	if ingest.IsXLSX(req.Data) {
		source = "xlsx"
		snap, err = ingest.DecodeXLSX(req.Data)
	} else {
		snap, err = ingest.Decode(req.Data, req.Delimiter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	pending := pendingImport{
		Name:         req.Name,
		Filename:     req.Filename,
		Source:       source,
		SourceFormat: snap.SourceFormat,
		Headers:      snap.Headers,
		Rows:         snap.Rows,
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending import: %w", err)
	}

	token := uuid.NewString()
	if err := s.kv.Set(ctx, pendingKeyPrefix+token, string(payload), s.ttl); err != nil {
		return nil, fmt.Errorf("failed to stage import: %w", err)
	}

	s.logger.Info("Import staged",
		zap.String("token", token),
		zap.String("filename", req.Filename),
		zap.String("source", source),
		zap.Int("rows", snap.Total))

	return &StageResponse{
		Token:        token,
		SourceFormat: snap.SourceFormat,
		Headers:      snap.Headers,
		Mapping:      ingest.MapColumns(snap.Headers),
		Sample:       snap.Sample,
		Total:        snap.Total,
	}, nil
}

func (s *importService) FetchRemote(ctx context.Context, req FetchRemoteRequest) (*StageResponse, error) {
	resp, err := s.client.R().SetContext(ctx).Get(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: status %d", req.URL, resp.StatusCode())
	}
	return s.Stage(ctx, StageRequest{
		Name:     req.Name,
		Filename: req.URL,
		Data:     resp.Body(),
	})
}

// ListPending returns the staged imports still waiting for the operator.
func (s *importService) ListPending(ctx context.Context) (*ListPendingResponse, error) {
	keys, err := s.kv.ScanKeys(ctx, pendingKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending imports: %w", err)
	}

	items := []PendingItem{}
	for _, key := range keys {
		payload, err := s.kv.Get(ctx, key)
		if err != nil {
			// Expired between scan and read.
			if errors.Is(err, store.ErrMiss) {
				continue
			}
			return nil, fmt.Errorf("failed to load pending import: %w", err)
		}
		var pending pendingImport
		if err := json.Unmarshal([]byte(payload), &pending); err != nil {
			return nil, fmt.Errorf("failed to decode pending import: %w", err)
		}
		items = append(items, PendingItem{
			Token:        strings.TrimPrefix(key, pendingKeyPrefix),
			Name:         pending.Name,
			Filename:     pending.Filename,
			Source:       pending.Source,
			SourceFormat: pending.SourceFormat,
			Total:        len(pending.Rows),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Token < items[j].Token })
	return &ListPendingResponse{Imports: items}, nil
}

// ============================================
// Confirmation
// ============================================

func (s *importService) Confirm(ctx context.Context, req ConfirmRequest) (*BuildSessionResponse, error) {
	key := pendingKeyPrefix + req.Token
	payload, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, ErrImportExpired
		}
		return nil, fmt.Errorf("failed to load pending import: %w", err)
	}

	var pending pendingImport
	if err := json.Unmarshal([]byte(payload), &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending import: %w", err)
	}

	// One-shot token: drop the staged payload before building so a
	// repeated confirm cannot create a duplicate session.
	if err := s.kv.Del(ctx, key); err != nil {
		s.logger.Warn("Failed to drop staged import", zap.Error(err), zap.String("token", req.Token))
	}

	mapping := ingest.MapColumns(pending.Headers)
	for role, header := range req.Mapping {
		if header == "" {
			delete(mapping, role)
			continue
		}
		mapping[role] = header
	}

	return s.syncSvc.BuildSession(ctx, BuildSessionRequest{
		Name:         pending.Name,
		SourceFormat: pending.SourceFormat,
		Source:       pending.Source,
		Filename:     pending.Filename,
		Headers:      pending.Headers,
		Rows:         pending.Rows,
		Mapping:      mapping,
	})
}

func (s *importService) Discard(ctx context.Context, req DiscardRequest) error {
	return s.kv.Del(ctx, pendingKeyPrefix+req.Token)
}
