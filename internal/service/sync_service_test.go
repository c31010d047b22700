package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"svj-registry/internal/domain"
	"svj-registry/internal/ingest"
	"svj-registry/internal/match"
	"svj-registry/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedRegistry sets up two units with one active owner each.
func seedRegistry(t *testing.T) (*repository.MemoryStore, map[string]int64) {
	t.Helper()
	mem := repository.NewMemoryStore()
	ids := map[string]int64{}

	ids["novak"] = mem.AddOwner(domain.Owner{
		FirstName: "Jan", LastName: "Novák", OwnerType: "person", IsActive: true,
	})
	ids["svobodova"] = mem.AddOwner(domain.Owner{
		FirstName: "Marie", LastName: "Svobodová", OwnerType: "person", IsActive: true,
	})
	ids["unit1"] = mem.AddUnit(domain.Unit{UnitNumber: 1})
	ids["unit2"] = mem.AddUnit(domain.Unit{UnitNumber: 2})
	ids["link1"] = mem.AddOwnerUnit(domain.OwnerUnit{
		OwnerID: ids["novak"], UnitID: ids["unit1"], OwnershipType: "VL", Share: "1/2",
	})
	ids["link2"] = mem.AddOwnerUnit(domain.OwnerUnit{
		OwnerID: ids["svobodova"], UnitID: ids["unit2"], OwnershipType: "VL", Share: "1/2",
	})
	return mem, ids
}

func newSyncService(mem *repository.MemoryStore) SyncService {
	return NewSyncService(mem, mem, mem, match.NewClassifier(match.DefaultThresholds()), zap.NewNop())
}

func TestBuildSessionClassifiesRows(t *testing.T) {
	mem, _ := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	headers := []string{"Jednotka", "Vlastník", "Podíl"}
	resp, err := svc.BuildSession(ctx, BuildSessionRequest{
		Name:         "jaro 2026",
		SourceFormat: ingest.SourceFormatInternal,
		Source:       "csv",
		Filename:     "vlastnici.csv",
		Headers:      headers,
		Rows: []ingest.Row{
			{"Jednotka": "1098/1", "Vlastník": "Novák Jan", "Podíl": "1/2"},
			{"Jednotka": "2", "Vlastník": "Marie Svobodová", "Podíl": "1/2"},
			{"Jednotka": "999", "Vlastník": "Dvořák Petr", "Podíl": "1/1"},
			{"Jednotka": "", "Vlastník": "", "Podíl": ""},
		},
		Mapping: ingest.MapColumns(headers),
	})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total) // the all-empty row is dropped
	require.Equal(t, 1, resp.Counts[domain.StatusMatch])
	require.Equal(t, 1, resp.Counts[domain.StatusReordered])
	require.Equal(t, 1, resp.Counts[domain.StatusMissing])

	records, err := mem.ListRecords(ctx, resp.SessionID, "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// "1098/1" resolves to unit number 1 via the trailing segment.
	require.True(t, records[0].UnitID.Valid)
	require.Equal(t, domain.StatusMatch, records[0].Status)
	require.Equal(t, "Novák Jan", records[0].CurrentOwner)

	// Unknown unit: no current owner, classified missing.
	require.False(t, records[2].UnitID.Valid)
	require.Equal(t, domain.StatusMissing, records[2].Status)

	// The verbatim source row survives as JSON.
	var row map[string]string
	require.NoError(t, json.Unmarshal([]byte(records[1].ExternalRow), &row))
	require.Equal(t, "Marie Svobodová", row["Vlastník"])

	// The import is logged.
	logs := mem.ImportLogs()
	require.Len(t, logs, 1)
	require.Equal(t, "csv", logs[0].Source)
	require.Equal(t, 3, logs[0].Records)
}

func TestBuildSessionSeparateNameColumns(t *testing.T) {
	mem, _ := seedRegistry(t)
	svc := newSyncService(mem)

	headers := []string{"Jednotka", "Příjmení", "Jméno", "Podíl"}
	resp, err := svc.BuildSession(context.Background(), BuildSessionRequest{
		Name:    "split names",
		Source:  "csv",
		Headers: headers,
		Rows: []ingest.Row{
			{"Jednotka": "1", "Příjmení": "Novák", "Jméno": "Jan", "Podíl": "1/2"},
		},
		Mapping: ingest.MapColumns(headers),
	})
	require.NoError(t, err)

	records, err := mem.ListRecords(context.Background(), resp.SessionID, "")
	require.NoError(t, err)
	require.Equal(t, "Novák Jan", records[0].ExternalOwner)
	require.Equal(t, domain.StatusMatch, records[0].Status)
}

func TestAcceptAllLeavesOwnershipUntouched(t *testing.T) {
	mem, ids := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	headers := []string{"Jednotka", "Vlastník", "Podíl"}
	resp, err := svc.BuildSession(ctx, BuildSessionRequest{
		Name:    "noop",
		Source:  "csv",
		Headers: headers,
		Rows: []ingest.Row{
			{"Jednotka": "1", "Vlastník": "Novák Jan", "Podíl": "1/2"},
			{"Jednotka": "2", "Vlastník": "Svobodová Marie", "Podíl": "1/4"},
		},
		Mapping: ingest.MapColumns(headers),
	})
	require.NoError(t, err)

	records, err := mem.ListRecords(ctx, resp.SessionID, "")
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, svc.AcceptRecord(ctx, RecordRequest{RecordID: rec.ID}))
	}

	for _, unit := range []int64{ids["unit1"], ids["unit2"]} {
		history := mem.OwnershipHistory(unit)
		require.Len(t, history, 1)
		require.True(t, history[0].Active())
	}

	records, err = mem.ListRecords(ctx, resp.SessionID, "")
	require.NoError(t, err)
	for _, rec := range records {
		require.True(t, rec.IsResolved)
	}
}

func TestRejectRecord(t *testing.T) {
	mem, _ := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	headers := []string{"Jednotka", "Vlastník"}
	resp, err := svc.BuildSession(ctx, BuildSessionRequest{
		Name:    "reject",
		Source:  "csv",
		Headers: headers,
		Rows:    []ingest.Row{{"Jednotka": "1", "Vlastník": "Cizí Jméno"}},
		Mapping: ingest.MapColumns(headers),
	})
	require.NoError(t, err)

	records, err := mem.ListRecords(ctx, resp.SessionID, "")
	require.NoError(t, err)
	require.NoError(t, svc.RejectRecord(ctx, RecordRequest{RecordID: records[0].ID}))

	rec, err := mem.GetRecord(ctx, records[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, rec.Status)
	require.True(t, rec.IsResolved)
}

func TestSelectiveUpdateCopiesShare(t *testing.T) {
	mem, ids := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	session := &domain.SyncSession{Name: "shares"}
	_, err := mem.CreateSession(ctx, session, []*domain.SyncRecord{{
		UnitID:        sql.NullInt64{Int64: ids["unit1"], Valid: true},
		Status:        domain.StatusShareMismatch,
		CurrentOwner:  "Novák Jan",
		ExternalOwner: "Novák Jan",
		CurrentShare:  "1/2",
		ExternalShare: "1/4",
		ExternalRow:   "{}",
	}})
	require.NoError(t, err)

	records, err := mem.ListRecords(ctx, session.ID, "")
	require.NoError(t, err)
	require.NoError(t, svc.SelectiveUpdate(ctx, SelectiveUpdateRequest{
		RecordID: records[0].ID,
		Actor:    "board",
	}))

	links, err := mem.ActiveOwnershipFor(ctx, ids["unit1"])
	require.NoError(t, err)
	require.Equal(t, "1/4", links[0].Share)

	rec, err := mem.GetRecord(ctx, records[0].ID)
	require.NoError(t, err)
	require.True(t, rec.IsResolved)

	entries, err := mem.ListAudit(ctx, "OwnerUnit", ids["unit1"])
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.ActionBulkUpdate, entries[0].Action)
	require.Equal(t, "board", entries[0].Actor)
}

func TestTransferContacts(t *testing.T) {
	mem, ids := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	session := &domain.SyncSession{Name: "contacts"}
	_, err := mem.CreateSession(ctx, session, []*domain.SyncRecord{{
		UnitID:      sql.NullInt64{Int64: ids["unit1"], Valid: true},
		Status:      domain.StatusMatch,
		ExternalRow: `{"Jednotka":"1","E-mail":"jan.novak@example.cz","Telefon":"+420123456789"}`,
	}})
	require.NoError(t, err)

	records, err := mem.ListRecords(ctx, session.ID, "")
	require.NoError(t, err)
	resp, err := svc.TransferContacts(ctx, TransferContactsRequest{
		RecordID: records[0].ID,
		Actor:    "board",
	})
	require.NoError(t, err)
	require.Equal(t, ids["novak"], resp.OwnerID)

	owner, err := mem.FindOwner(ctx, ids["novak"])
	require.NoError(t, err)
	require.Equal(t, "jan.novak@example.cz", owner.Email.String)
	require.Equal(t, "+420123456789", owner.Phone.String)

	entries, err := mem.ListAudit(ctx, "Owner", ids["novak"])
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.ActionContactTransfer, entries[0].Action)
}

func TestDeleteSessionCascades(t *testing.T) {
	mem, _ := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	headers := []string{"Jednotka", "Vlastník"}
	resp, err := svc.BuildSession(ctx, BuildSessionRequest{
		Name:    "to delete",
		Source:  "csv",
		Headers: headers,
		Rows:    []ingest.Row{{"Jednotka": "1", "Vlastník": "Novák Jan"}},
		Mapping: ingest.MapColumns(headers),
	})
	require.NoError(t, err)

	records, err := mem.ListRecords(ctx, resp.SessionID, "")
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, svc.DeleteSession(ctx, DeleteSessionRequest{SessionID: resp.SessionID}))

	_, err = mem.GetSession(ctx, resp.SessionID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = mem.GetRecord(ctx, records[0].ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestExportRows(t *testing.T) {
	mem, _ := seedRegistry(t)
	svc := newSyncService(mem)
	ctx := context.Background()

	headers := []string{"Jednotka", "Vlastník", "Podíl"}
	resp, err := svc.BuildSession(ctx, BuildSessionRequest{
		Name:    "export",
		Source:  "csv",
		Headers: headers,
		Rows: []ingest.Row{
			{"Jednotka": "1", "Vlastník": "Novák Jan", "Podíl": "1/2"},
			{"Jednotka": "2", "Vlastník": "Úplně Jiný", "Podíl": "1/2"},
		},
		Mapping: ingest.MapColumns(headers),
	})
	require.NoError(t, err)

	rows, err := svc.ExportRows(ctx, ExportRequest{SessionID: resp.SessionID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "1", rows[0].Unit)
	require.Equal(t, "Novák Jan", rows[0].CurrentOwner)
	require.Equal(t, domain.StatusMatch, rows[0].Status)

	// Status filter narrows the export.
	filtered, err := svc.ExportRows(ctx, ExportRequest{
		SessionID: resp.SessionID,
		Status:    domain.StatusDifferent,
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "Úplně Jiný", filtered[0].ExternalOwner)
}
