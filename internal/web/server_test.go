package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstr/pereval/internal/database"
	"github.com/fstr/pereval/internal/web/handlers"
)

func newTestServer(t *testing.T, allowedNet *net.IPNet) (*Server, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "web.db"), database.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))

	s := NewServer(db, "127.0.0.1:0", allowedNet, nil, handlers.VersionInfo{Version: "test"})
	t.Cleanup(s.SSEBroker().Stop)
	return s, db
}

func request(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func submission(email, title, submittedAt string) string {
	return `{
		"display_title": "pass",
		"official_title": "` + title + `",
		"alt_titles": "",
		"connects_description": "",
		"submitted_at": "` + submittedAt + `",
		"submitter": {"email": "` + email + `", "family_name": "Pupkin", "given_name": "Vasily", "phone": "+7 555"},
		"coordinate": {"latitude": 55.1234, "longitude": 37.5678, "elevation": 1000},
		"difficulty": {"winter": "1A", "summer": "1B", "autumn": "1A", "spring": ""},
		"images": [{"payload": "aGVsbG8=", "caption": "Saddle"}]
	}`
}

func createSubmission(t *testing.T, h http.Handler, body string) int64 {
	t.Helper()
	rec := request(t, h, http.MethodPost, "/submitData", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status  int     `json:"status"`
		Message *string `json:"message"`
		ID      *int64  `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 200, resp.Status)
	require.Nil(t, resp.Message)
	require.NotNil(t, resp.ID)
	return *resp.ID
}

func TestSubmitData_EndToEnd(t *testing.T) {
	s, db := newTestServer(t, nil)
	h := s.Handler()

	firstID := createSubmission(t, h, submission("a@x.com", "Pkhia", "2021-09-22 13:18:13"))
	secondID := createSubmission(t, h, submission("a@x.com", "Dyatlov", "2021-09-23 08:00:00"))
	assert.NotEqual(t, firstID, secondID)

	rec := request(t, h, http.MethodGet, "/submitData/"+itoa(firstID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"latitude":55.1234`)

	var pass database.PassRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pass))
	assert.Equal(t, "Pkhia", pass.OfficialTitle)
	assert.Equal(t, database.StatusNew, pass.Status)
	assert.Equal(t, int64(1000), pass.Coordinate.Elevation)
	assert.Equal(t, database.Difficulty{Winter: "1A", Summer: "1B", Autumn: "1A"}, pass.Difficulty)
	require.Len(t, pass.Images, 1)

	rec = request(t, h, http.MethodGet, "/submitData/?user__email=a@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var passes []database.PassRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &passes))
	require.Len(t, passes, 2)
	assert.Equal(t, secondID, passes[0].ID)
	assert.Equal(t, firstID, passes[1].ID)
	assert.Equal(t, passes[0].Submitter.ID, passes[1].Submitter.ID)

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Submitters)
}

func TestSubmitData_ValidationWritesNothing(t *testing.T) {
	s, db := newTestServer(t, nil)

	rec := request(t, s.Handler(), http.MethodPost, "/submitData/", submission("a@x.com", "", "2021-09-22 13:18:13"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status": 400, "message": "official_title: is required", "id": null, "error_kind": "validation"}`, rec.Body.String())

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Passes)
	assert.Zero(t, stats.Submitters)
}

func TestPatchSubmission_EndToEnd(t *testing.T) {
	s, db := newTestServer(t, nil)
	h := s.Handler()

	id := createSubmission(t, h, submission("a@x.com", "Pkhia", "2021-09-22 13:18:13"))

	rec := request(t, h, http.MethodPatch, "/submitData/"+itoa(id), `{
		"alt_titles": "Tri",
		"coordinate": {"latitude": "55.5"},
		"images": []
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted": 1, "message": "updated"}`, rec.Body.String())

	pass, err := db.GetPass(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Tri", pass.AltTitles)
	assert.Equal(t, "Pkhia", pass.OfficialTitle)
	assert.Equal(t, database.Decimal("55.5"), pass.Coordinate.Latitude)
	assert.Equal(t, database.Decimal("37.5678"), pass.Coordinate.Longitude)
	assert.Empty(t, pass.Images)

	require.NoError(t, db.SetPassStatus(context.Background(), id, database.StatusAccepted))

	rec = request(t, h, http.MethodPatch, "/submitData/"+itoa(id), `{"official_title": "Changed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":0`)

	pass, err = db.GetPass(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Pkhia", pass.OfficialTitle)

	rec = request(t, h, http.MethodPatch, "/submitData/9999", `{"official_title": "Changed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"accepted": 0, "message": "not found"}`, rec.Body.String())
}

func TestGetSubmission_NotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := request(t, s.Handler(), http.MethodGet, "/submitData/404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := request(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAllowSubnet_RejectsOutsiders(t *testing.T) {
	_, allowed, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	s, _ := newTestServer(t, allowed)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.168.1.10:5555"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
