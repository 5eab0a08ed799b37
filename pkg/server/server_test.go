package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-gate/pkg/approval"
	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/engine"
	"github.com/denysvitali/odi-gate/pkg/metrics"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/server"
	"github.com/denysvitali/odi-gate/pkg/storage/fs"
	"github.com/denysvitali/odi-gate/pkg/timer"
	"github.com/denysvitali/odi-gate/pkg/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeEngine struct {
	view engine.View
	err  error

	submitted []models.ScanPayload
	uploaded  []byte
	device    int
	calls     []string
}

func (f *fakeEngine) View() engine.View {
	return f.view
}

func (f *fakeEngine) Submit(_ context.Context, p models.ScanPayload) (engine.View, error) {
	f.calls = append(f.calls, "submit")
	f.submitted = append(f.submitted, p)
	return f.view, f.err
}

func (f *fakeEngine) SubmitImage(_ context.Context, r io.Reader) (engine.View, error) {
	f.calls = append(f.calls, "upload")
	b, err := io.ReadAll(r)
	if err != nil {
		return f.view, err
	}
	f.uploaded = b
	return f.view, f.err
}

func (f *fakeEngine) Approve(context.Context) (engine.View, error) {
	f.calls = append(f.calls, "approve")
	return f.view, f.err
}

func (f *fakeEngine) Decline() (engine.View, error) {
	f.calls = append(f.calls, "decline")
	return f.view, f.err
}

func (f *fakeEngine) Close() engine.View {
	f.calls = append(f.calls, "close")
	return f.view
}

func (f *fakeEngine) StartCamera(device int) (engine.View, error) {
	f.calls = append(f.calls, "start")
	f.device = device
	return f.view, f.err
}

func (f *fakeEngine) StopCamera() engine.View {
	f.calls = append(f.calls, "stop")
	return f.view
}

func do(t *testing.T, s *server.Server, method string, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func reviewing() engine.View {
	return engine.View{
		Status: engine.StatusReviewing,
		Session: &approval.Session{
			Id:       "b5e1c4f2-0d7e-4c55-9d8f-2f6d3f0f9a11",
			ScanType: approval.StateTimeInPending,
			Person:   &models.PersonRecord{Id: "VIS0007", FullName: "Reyes, Ana"},
		},
		CanApprove: true,
		CanDecline: true,
	}
}

func TestGetSession(t *testing.T) {
	eng := &fakeEngine{view: reviewing()}
	w := do(t, server.New(eng), http.MethodGet, "/api/v1/session", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var v engine.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, engine.StatusReviewing, v.Status)
	assert.True(t, v.CanApprove)
	assert.Equal(t, "VIS0007", v.Session.Person.Id)
}

func TestScan(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	eng := &fakeEngine{view: reviewing()}
	s := server.New(eng, server.WithClock(func() time.Time { return now }))

	body := `{"text":"{\"id\":\"VIS0007\"}","corners":[{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":10},{"x":0,"y":10}]}`
	w := do(t, s, http.MethodPost, "/api/v1/scans", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, eng.submitted, 1)
	assert.Equal(t, `{"id":"VIS0007"}`, eng.submitted[0].Text)
	assert.Len(t, eng.submitted[0].Corners, 4)
	assert.Equal(t, models.SourceRemote, eng.submitted[0].Source)
	assert.Equal(t, now, eng.submitted[0].DecodedAt)

	w = do(t, s, http.MethodPost, "/api/v1/scans", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: confidence 40", validator.ErrLowConfidence), http.StatusUnprocessableEntity},
		{validator.ErrInvalidPayload, http.StatusUnprocessableEntity},
		{engine.ErrNoSession, http.StatusNotFound},
		{engine.ErrSessionBusy, http.StatusConflict},
		{engine.ErrBusy, http.StatusConflict},
		{approval.ErrBanned, http.StatusConflict},
		{approval.ErrNotPending, http.StatusConflict},
		{fmt.Errorf("%w: Visitor already timed in", approval.ErrApprovalFailed), http.StatusBadGateway},
		{engine.ErrNoCamera, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			eng := &fakeEngine{view: reviewing(), err: tt.err}
			w := do(t, server.New(eng), http.MethodPost, "/api/v1/session/approve", nil, "")
			assert.Equal(t, tt.status, w.Code)

			var res struct {
				Error string      `json:"error"`
				State engine.View `json:"state"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, tt.err.Error(), res.Error)
			assert.Equal(t, engine.StatusReviewing, res.State.Status)
		})
	}
}

func TestSessionActions(t *testing.T) {
	eng := &fakeEngine{view: reviewing()}
	s := server.New(eng)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/session/decline", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/api/v1/session", nil, "").Code)
	assert.Equal(t, []string{"decline", "close"}, eng.calls)
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "credential.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestScanImage(t *testing.T) {
	eng := &fakeEngine{view: reviewing()}
	s := server.New(eng)

	body, ct := multipartBody(t, "file", []byte("image bytes"))
	w := do(t, s, http.MethodPost, "/api/v1/scans/image", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("image bytes"), eng.uploaded)

	body, ct = multipartBody(t, "photo", []byte("image bytes"))
	w = do(t, s, http.MethodPost, "/api/v1/scans/image", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanImage_Errors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{capture.ErrNoCode, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: detected text/plain", capture.ErrNotImage), http.StatusUnsupportedMediaType},
		{capture.ErrTooLarge, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		eng := &fakeEngine{view: engine.View{Status: engine.StatusIdle}, err: tt.err}
		body, ct := multipartBody(t, "file", []byte("data"))
		w := do(t, server.New(eng), http.MethodPost, "/api/v1/scans/image", body, ct)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}

func TestScanImage_TooLarge(t *testing.T) {
	eng := &fakeEngine{}
	body, ct := multipartBody(t, "file", make([]byte, capture.MaxUploadSize+1))
	w := do(t, server.New(eng), http.MethodPost, "/api/v1/scans/image", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, eng.uploaded)
}

func TestCamera(t *testing.T) {
	eng := &fakeEngine{view: engine.View{Status: engine.StatusScanning, CameraActive: true}}
	s := server.New(eng)

	w := do(t, s, http.MethodPost, "/api/v1/camera/start", strings.NewReader(`{"device":2}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, eng.device)

	w = do(t, s, http.MethodPost, "/api/v1/camera/start", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, eng.device)

	w = do(t, s, http.MethodPost, "/api/v1/camera/stop", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"start", "start", "stop"}, eng.calls)
}

func TestTimer(t *testing.T) {
	now := time.Date(2024, 5, 1, 11, 45, 0, 0, time.UTC)
	s := server.New(&fakeEngine{}, server.WithClock(func() time.Time { return now }))

	w := do(t, s, http.MethodGet, "/api/v1/timer?timeIn=2024-05-01T09:00:00Z", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var vt timer.VisitTimer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vt))
	assert.Equal(t, 15, vt.RemainingMinutes)
	assert.Equal(t, timer.TierUrgent, vt.Tier)

	w = do(t, s, http.MethodGet, "/api/v1/timer?timeIn=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	m := metrics.New()
	m.SessionFinished("declined")
	s := server.New(&fakeEngine{},
		server.WithMetrics(m),
		server.WithBackendHealth(func(context.Context) (bool, error) { return false, errors.New("connection refused") }),
	)

	w := do(t, s, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","backend":false}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `odi_gate_sessions_total{outcome="declined"} 1`)
}

func TestGetCapture(t *testing.T) {
	archive, err := fs.New(t.TempDir())
	require.NoError(t, err)
	id := uuid.NewString()
	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
	require.NoError(t, archive.Store(context.Background(), models.CaptureImage{
		Reader:    bytes.NewReader(gif),
		SessionId: id,
	}))

	s := server.New(&fakeEngine{}, server.WithArchive(archive))
	w := do(t, s, http.MethodGet, "/api/v1/captures/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, gif, w.Body.Bytes())

	w = do(t, s, http.MethodGet, "/api/v1/captures/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, server.New(&fakeEngine{}), http.MethodGet, "/api/v1/captures/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
