package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"svj-registry/internal/domain"
	"svj-registry/internal/match"
	"svj-registry/internal/repository"
	"svj-registry/internal/service"
	"svj-registry/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryStore) {
	t.Helper()
	mem := repository.NewMemoryStore()
	mem.AddOwner(domain.Owner{FirstName: "Jan", LastName: "Novák", OwnerType: "person", IsActive: true})
	unitID := mem.AddUnit(domain.Unit{UnitNumber: 1})
	mem.AddOwnerUnit(domain.OwnerUnit{OwnerID: 1, UnitID: unitID, Share: "1/2"})

	logger := zap.NewNop()
	thresholds := match.DefaultThresholds()
	syncSvc := service.NewSyncService(mem, mem, mem, match.NewClassifier(thresholds), logger)
	importSvc := service.NewImportService(store.NewMemoryKV(), syncSvc, time.Minute, logger)
	exchangeSvc := service.NewExchangeService(mem, mem, mem, thresholds, logger)

	router := NewRouter(logger)
	router.RegisterSyncRoutes(NewSyncHandler(importSvc, syncSvc, exchangeSvc, logger))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, mem
}

func uploadCSV(t *testing.T, srv *httptest.Server, name, csv string) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "upload.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("name", name))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/registry/api/v1/sync/imports", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope Result[service.StageResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, ResultSuccess, envelope.Code)
	require.NotEmpty(t, envelope.Result.Token)
	return envelope.Result.Token
}

func confirmImport(t *testing.T, srv *httptest.Server, token string) int64 {
	t.Helper()
	resp, err := http.Post(
		srv.URL+"/registry/api/v1/sync/imports/"+token+"/confirm",
		"application/json",
		strings.NewReader("{}"),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope Result[service.BuildSessionResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, ResultSuccess, envelope.Code)
	return envelope.Result.SessionID
}

func TestImportConfirmFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	token := uploadCSV(t, srv, "jaro", "Jednotka;Vlastník;Podíl\n1;Novák Jan;1/2\n")
	sessionID := confirmImport(t, srv, token)
	require.Positive(t, sessionID)

	resp, err := http.Get(srv.URL + "/registry/api/v1/sync/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope Result[service.ListSessionsResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Result.Items, 1)
	require.Equal(t, "jaro", envelope.Result.Items[0].Session.Name)
	require.Equal(t, 1, envelope.Result.Items[0].Matches)
}

func TestListImportsShowsStaged(t *testing.T) {
	srv, _ := newTestServer(t)

	token := uploadCSV(t, srv, "jaro", "Jednotka;Vlastník;Podíl\n1;Novák Jan;1/2\n")

	resp, err := http.Get(srv.URL + "/registry/api/v1/sync/imports")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope Result[service.ListPendingResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, ResultSuccess, envelope.Code)
	require.Len(t, envelope.Result.Imports, 1)
	require.Equal(t, token, envelope.Result.Imports[0].Token)
	require.Equal(t, "jaro", envelope.Result.Imports[0].Name)
	require.Equal(t, 1, envelope.Result.Imports[0].Total)

	// Confirmation consumes the token and empties the listing.
	confirmImport(t, srv, token)
	resp, err = http.Get(srv.URL + "/registry/api/v1/sync/imports")
	require.NoError(t, err)
	defer resp.Body.Close()

	envelope = Result[service.ListPendingResponse]{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Empty(t, envelope.Result.Imports)
}

func TestConfirmExpiredTokenIsGone(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(
		srv.URL+"/registry/api/v1/sync/imports/no-such-token/confirm",
		"application/json",
		strings.NewReader("{}"),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestExchangeUnknownOwnerIsNotFound(t *testing.T) {
	srv, mem := newTestServer(t)

	token := uploadCSV(t, srv, "x", "Jednotka;Vlastník\n1;Cizí Člověk\n")
	sessionID := confirmImport(t, srv, token)

	records, err := mem.ListRecords(context.Background(), sessionID, "")
	require.NoError(t, err)
	require.Len(t, records, 1)

	resp, err := http.Post(
		srv.URL+"/registry/api/v1/sync/records/1/exchange",
		"application/json",
		strings.NewReader(`{"new_owner_id": 9999}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope Result[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, ResultError, envelope.Code)
}

func TestSessionExportIsWorkbook(t *testing.T) {
	srv, _ := newTestServer(t)

	token := uploadCSV(t, srv, "export", "Jednotka;Vlastník;Podíl\n1;Novák Jan;1/2\n")
	sessionID := confirmImport(t, srv, token)
	require.Equal(t, int64(1), sessionID)

	resp, err := http.Get(srv.URL + "/registry/api/v1/sync/sessions/1/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))

	magic := make([]byte, 4)
	_, err = io.ReadFull(resp.Body, magic)
	require.NoError(t, err)
	require.Equal(t, []byte{0x50, 0x4B, 0x03, 0x04}, magic)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/registry/api/v1/sync/imports", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUnknownRecordActionIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(
		srv.URL+"/registry/api/v1/sync/records/1/frobnicate",
		"application/json",
		strings.NewReader("{}"),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
