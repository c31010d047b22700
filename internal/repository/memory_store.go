package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"svj-registry/internal/domain"
)

// MemoryStore is the in-memory fallback used when no database is
// configured, and the backing store for the service tests. One struct
// implements all three repositories because PerformExchange spans the
// registry, sync and audit tables in a single atomic step.
type MemoryStore struct {
	mu sync.RWMutex

	owners     map[int64]*domain.Owner
	units      map[int64]*domain.Unit
	ownerUnits map[int64]*domain.OwnerUnit
	sessions   map[int64]*domain.SyncSession
	records    map[int64]*domain.SyncRecord
	audits     []*domain.AuditEntry
	imports    []*domain.ImportLogEntry

	nextOwnerID     int64
	nextUnitID      int64
	nextOwnerUnitID int64
	nextSessionID   int64
	nextRecordID    int64
	nextAuditID     int64
	nextImportID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:     make(map[int64]*domain.Owner),
		units:      make(map[int64]*domain.Unit),
		ownerUnits: make(map[int64]*domain.OwnerUnit),
		sessions:   make(map[int64]*domain.SyncSession),
		records:    make(map[int64]*domain.SyncRecord),
	}
}

var (
	_ RegistryRepository = (*MemoryStore)(nil)
	_ SyncRepository     = (*MemoryStore)(nil)
	_ AuditRepository    = (*MemoryStore)(nil)
)

// ============================================
// Seed helpers
// ============================================

// AddOwner stores a copy and returns the assigned id.
func (m *MemoryStore) AddOwner(o domain.Owner) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOwnerID++
	o.ID = m.nextOwnerID
	m.owners[o.ID] = &o
	return o.ID
}

func (m *MemoryStore) AddUnit(u domain.Unit) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUnitID++
	u.ID = m.nextUnitID
	m.units[u.ID] = &u
	return u.ID
}

func (m *MemoryStore) AddOwnerUnit(ou domain.OwnerUnit) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOwnerUnitID++
	ou.ID = m.nextOwnerUnitID
	m.ownerUnits[ou.ID] = &ou
	return ou.ID
}

// OwnershipHistory returns every link of the unit, active and closed,
// ordered by id.
func (m *MemoryStore) OwnershipHistory(unitID int64) []*domain.OwnerUnit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.OwnerUnit{}
	for _, ou := range m.ownerUnits {
		if ou.UnitID == unitID {
			cp := *ou
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================
// RegistryRepository
// ============================================

func (m *MemoryStore) FindUnitByIdentifier(ctx context.Context, identifier string) (*domain.Unit, error) {
	ident := strings.TrimSpace(identifier)
	if ident == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if n, err := strconv.Atoi(ident); err == nil {
		return m.unitByNumberLocked(n), nil
	}
	for _, u := range m.units {
		if strconv.Itoa(u.UnitNumber) == ident {
			cp := *u
			return &cp, nil
		}
	}
	if idx := strings.LastIndex(ident, "/"); idx >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(ident[idx+1:])); err == nil {
			return m.unitByNumberLocked(n), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) unitByNumberLocked(unitNumber int) *domain.Unit {
	var best *domain.Unit
	for _, u := range m.units {
		if u.UnitNumber != unitNumber {
			continue
		}
		if best == nil || u.ID < best.ID {
			best = u
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (m *MemoryStore) GetUnit(ctx context.Context, unitID int64) (*domain.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[unitID]
	if !ok {
		return nil, fmt.Errorf("unit %d: %w", unitID, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) FindOwner(ctx context.Context, ownerID int64) (*domain.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.owners[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListActiveOwners(ctx context.Context) ([]*domain.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Owner{}
	for _, o := range m.owners {
		if o.IsActive {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ActiveOwnershipFor(ctx context.Context, unitID int64) ([]*domain.OwnerUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeOwnershipLocked(unitID), nil
}

func (m *MemoryStore) activeOwnershipLocked(unitID int64) []*domain.OwnerUnit {
	out := []*domain.OwnerUnit{}
	for _, ou := range m.ownerUnits {
		if ou.UnitID == unitID && ou.Active() {
			cp := *ou
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) UpdateActiveShare(ctx context.Context, unitID int64, share string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ou := range m.ownerUnits {
		if ou.UnitID == unitID && ou.Active() {
			ou.Share = share
		}
	}
	return nil
}

func (m *MemoryStore) UpdateOwnerContact(ctx context.Context, ownerID int64, email, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[ownerID]
	if !ok {
		return fmt.Errorf("owner %d: %w", ownerID, ErrOwnerNotFound)
	}
	if email != "" {
		o.Email = sql.NullString{String: email, Valid: true}
	}
	if phone != "" {
		o.Phone = sql.NullString{String: phone, Valid: true}
	}
	return nil
}

func (m *MemoryStore) PerformExchange(ctx context.Context, ex Exchange) (*ExchangeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.owners[ex.NewOwnerID]
	if !ok {
		return nil, fmt.Errorf("owner %d: %w", ex.NewOwnerID, ErrOwnerNotFound)
	}
	if !owner.IsActive {
		return nil, fmt.Errorf("owner %d: %w", ex.NewOwnerID, ErrOwnerInactive)
	}
	if _, ok := m.units[ex.UnitID]; !ok {
		return nil, fmt.Errorf("unit %d: %w", ex.UnitID, ErrNotFound)
	}
	rec, ok := m.records[ex.RecordID]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", ex.RecordID, ErrNotFound)
	}

	// All preconditions hold; mutate under the single lock.
	var closedOwnerIDs []int64
	for _, ou := range m.activeOwnershipLocked(ex.UnitID) {
		link := m.ownerUnits[ou.ID]
		link.ValidTo = sql.NullTime{Time: ex.Effective, Valid: true}
		closedOwnerIDs = append(closedOwnerIDs, link.OwnerID)
	}

	m.nextOwnerUnitID++
	newLink := &domain.OwnerUnit{
		ID:        m.nextOwnerUnitID,
		OwnerID:   ex.NewOwnerID,
		UnitID:    ex.UnitID,
		ValidFrom: sql.NullTime{Time: ex.Effective, Valid: true},
	}
	m.ownerUnits[newLink.ID] = newLink

	rec.IsResolved = true

	oldValue := fmt.Sprintf("unit_id=%d, owners=[%s]", ex.UnitID, joinInt64(closedOwnerIDs))
	newValue := fmt.Sprintf("unit_id=%d, new_owner_id=%d, date=%s",
		ex.UnitID, ex.NewOwnerID, ex.Effective.Format("2006-01-02"))
	if ex.Note != "" {
		newValue += ", " + ex.Note
	}
	m.nextAuditID++
	m.audits = append(m.audits, &domain.AuditEntry{
		ID:        m.nextAuditID,
		Actor:     ex.Actor,
		Action:    domain.ActionExchange,
		Entity:    "OwnerUnit",
		RecordID:  sql.NullInt64{Int64: ex.UnitID, Valid: true},
		OldValue:  oldValue,
		NewValue:  newValue,
		CreatedAt: time.Now(),
	})

	return &ExchangeOutcome{
		ClosedOwnerIDs: closedOwnerIDs,
		NewOwnerUnitID: newLink.ID,
	}, nil
}

// ============================================
// SyncRepository
// ============================================

func (m *MemoryStore) CreateSession(ctx context.Context, session *domain.SyncSession, records []*domain.SyncRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSessionID++
	session.ID = m.nextSessionID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	cp := *session
	m.sessions[cp.ID] = &cp

	for _, rec := range records {
		m.nextRecordID++
		rec.ID = m.nextRecordID
		rec.SessionID = cp.ID
		rcp := *rec
		m.records[rcp.ID] = &rcp
	}
	return cp.ID, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]*SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*SessionSummary{}
	for _, s := range m.sessions {
		cp := *s
		summary := &SessionSummary{Session: &cp}
		for _, rec := range m.records {
			if rec.SessionID != s.ID {
				continue
			}
			summary.Total++
			if rec.Status == domain.StatusMatch {
				summary.Matches++
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Session, out[j].Session
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID int64) (*domain.SyncSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	delete(m.sessions, sessionID)
	for id, rec := range m.records {
		if rec.SessionID == sessionID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, sessionID int64, status domain.SyncStatus) ([]*domain.SyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterRecords(func(rec *domain.SyncRecord) bool {
		return rec.SessionID == sessionID && (status == "" || rec.Status == status)
	}), nil
}

func (m *MemoryStore) ListUnresolved(ctx context.Context, sessionID int64, status domain.SyncStatus) ([]*domain.SyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterRecords(func(rec *domain.SyncRecord) bool {
		return rec.SessionID == sessionID && rec.Status == status && !rec.IsResolved
	}), nil
}

func (m *MemoryStore) filterRecords(keep func(*domain.SyncRecord) bool) []*domain.SyncRecord {
	out := []*domain.SyncRecord{}
	for _, rec := range m.records {
		if keep(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) GetRecord(ctx context.Context, recordID int64) (*domain.SyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) MarkResolved(ctx context.Context, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	rec.IsResolved = true
	return nil
}

func (m *MemoryStore) MarkRejected(ctx context.Context, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	rec.Status = domain.StatusRejected
	rec.IsResolved = true
	return nil
}

func (m *MemoryStore) StatusCounts(ctx context.Context, sessionID int64) (map[domain.SyncStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[domain.SyncStatus]int{}
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

// ============================================
// AuditRepository
// ============================================

func (m *MemoryStore) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAuditID++
	e.ID = m.nextAuditID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	m.audits = append(m.audits, &cp)
	return nil
}

func (m *MemoryStore) AppendImportLog(ctx context.Context, e *domain.ImportLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextImportID++
	e.ID = m.nextImportID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	m.imports = append(m.imports, &cp)
	return nil
}

func (m *MemoryStore) ListAudit(ctx context.Context, entity string, recordID int64) ([]*domain.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.AuditEntry{}
	for _, e := range m.audits {
		if e.Entity == entity && e.RecordID.Valid && e.RecordID.Int64 == recordID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ImportLogs returns the recorded import summaries, oldest first.
func (m *MemoryStore) ImportLogs() []*domain.ImportLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ImportLogEntry, 0, len(m.imports))
	for _, e := range m.imports {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
