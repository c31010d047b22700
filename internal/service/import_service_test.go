package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"svj-registry/internal/domain"
	"svj-registry/internal/ingest"
	"svj-registry/internal/store"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func newImportFixture(t *testing.T, ttl time.Duration) (ImportService, SyncService, *store.MemoryKV) {
	t.Helper()
	mem, _ := seedRegistry(t)
	kv := store.NewMemoryKV()
	syncSvc := newSyncService(mem)
	return NewImportService(kv, syncSvc, ttl, zap.NewNop()), syncSvc, kv
}

const sampleCSV = "Jednotka;Vlastník;Podíl\n1;Novák Jan;1/2\n2;Svobodová Marie;1/2\n"

func TestStageDetectsColumnsAndStoresPending(t *testing.T) {
	svc, _, kv := newImportFixture(t, time.Minute)
	ctx := context.Background()

	resp, err := svc.Stage(ctx, StageRequest{
		Name:     "jaro 2026",
		Filename: "vlastnici.csv",
		Data:     []byte(sampleCSV),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.Equal(t, []string{"Jednotka", "Vlastník", "Podíl"}, resp.Headers)
	require.Equal(t, "Vlastník", resp.Mapping[ingest.RoleOwner])
	require.Equal(t, 2, resp.Total)
	require.Len(t, resp.Sample, 2)

	// The payload is staged under the token.
	keys, err := kv.ScanKeys(ctx, "import:pending:*")
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestListPendingTracksStagedImports(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Minute)
	ctx := context.Background()

	first, err := svc.Stage(ctx, StageRequest{Name: "jaro 2026", Filename: "vlastnici.csv", Data: []byte(sampleCSV)})
	require.NoError(t, err)
	second, err := svc.Stage(ctx, StageRequest{Name: "podzim 2026", Filename: "vlastnici2.csv", Data: []byte(sampleCSV)})
	require.NoError(t, err)

	listed, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, listed.Imports, 2)
	tokens := []string{listed.Imports[0].Token, listed.Imports[1].Token}
	require.ElementsMatch(t, []string{first.Token, second.Token}, tokens)
	for _, item := range listed.Imports {
		require.Equal(t, 2, item.Total)
		require.Equal(t, "csv", item.Source)
	}

	// Discarded imports drop out of the listing.
	require.NoError(t, svc.Discard(ctx, DiscardRequest{Token: first.Token}))
	listed, err = svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, listed.Imports, 1)
	require.Equal(t, second.Token, listed.Imports[0].Token)
	require.Equal(t, "podzim 2026", listed.Imports[0].Name)
}

func TestStageRejectsEmptyUpload(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Minute)
	_, err := svc.Stage(context.Background(), StageRequest{Name: "x"})
	require.Error(t, err)
}

func TestConfirmBuildsSession(t *testing.T) {
	svc, syncSvc, _ := newImportFixture(t, time.Minute)
	ctx := context.Background()

	staged, err := svc.Stage(ctx, StageRequest{
		Name:     "jaro 2026",
		Filename: "vlastnici.csv",
		Data:     []byte(sampleCSV),
	})
	require.NoError(t, err)

	built, err := svc.Confirm(ctx, ConfirmRequest{Token: staged.Token})
	require.NoError(t, err)
	require.Equal(t, 2, built.Total)
	require.Equal(t, 2, built.Counts[domain.StatusMatch])

	sessions, err := syncSvc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions.Items, 1)
	require.Equal(t, "jaro 2026", sessions.Items[0].Session.Name)
	require.Equal(t, 2, sessions.Items[0].Matches)
}

func TestConfirmIsOneShot(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Minute)
	ctx := context.Background()

	staged, err := svc.Stage(ctx, StageRequest{Name: "x", Data: []byte(sampleCSV)})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, ConfirmRequest{Token: staged.Token})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, ConfirmRequest{Token: staged.Token})
	require.ErrorIs(t, err, ErrImportExpired)
}

func TestConfirmAfterDiscard(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Minute)
	ctx := context.Background()

	staged, err := svc.Stage(ctx, StageRequest{Name: "x", Data: []byte(sampleCSV)})
	require.NoError(t, err)
	require.NoError(t, svc.Discard(ctx, DiscardRequest{Token: staged.Token}))

	_, err = svc.Confirm(ctx, ConfirmRequest{Token: staged.Token})
	require.ErrorIs(t, err, ErrImportExpired)
}

func TestConfirmAfterTTLExpiry(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Millisecond)
	ctx := context.Background()

	staged, err := svc.Stage(ctx, StageRequest{Name: "x", Data: []byte(sampleCSV)})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.Confirm(ctx, ConfirmRequest{Token: staged.Token})
	require.ErrorIs(t, err, ErrImportExpired)
}

func TestConfirmUnknownToken(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Minute)
	_, err := svc.Confirm(context.Background(), ConfirmRequest{Token: "no-such-token"})
	require.ErrorIs(t, err, ErrImportExpired)
}

func TestConfirmWithMappingOverride(t *testing.T) {
	svc, syncSvc, _ := newImportFixture(t, time.Minute)
	ctx := context.Background()

	// Headers the detector cannot place.
	staged, err := svc.Stage(ctx, StageRequest{
		Name: "override",
		Data: []byte("SloupecA;SloupecB\n1;Novák Jan\n"),
	})
	require.NoError(t, err)
	require.Empty(t, staged.Mapping)

	built, err := svc.Confirm(ctx, ConfirmRequest{
		Token: staged.Token,
		Mapping: ingest.RoleMap{
			ingest.RoleUnit:  "SloupecA",
			ingest.RoleOwner: "SloupecB",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, built.Total)

	detail, err := syncSvc.GetSession(ctx, GetSessionRequest{SessionID: built.SessionID})
	require.NoError(t, err)
	require.Equal(t, "Novák Jan", detail.Records[0].ExternalOwner)
	require.True(t, detail.Records[0].UnitID.Valid)
}

func TestStageXLSX(t *testing.T) {
	svc, _, _ := newImportFixture(t, time.Minute)
	ctx := context.Background()

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Jednotka"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Vlastník"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "1"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Novák Jan"))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	resp, err := svc.Stage(ctx, StageRequest{
		Name:     "excel",
		Filename: "vlastnici.xlsx",
		Data:     buf.Bytes(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Jednotka", "Vlastník"}, resp.Headers)
	require.Equal(t, 1, resp.Total)
}
