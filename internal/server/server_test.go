package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/cache"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/observation"
	"github.com/franckalain/livestockweight/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	items     []models.Observation
	listCalls int
	listErr   error
	created   []models.Observation
}

func (f *fakeSource) ListObservations(ctx context.Context, subjectID string, page, limit int) (*transport.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Observation, len(f.items))
	copy(out, f.items)
	return &transport.Page{Items: out, Total: len(out)}, nil
}

func (f *fakeSource) CreateObservation(ctx context.Context, obs models.Observation) (*models.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obs.ID = "created-1"
	f.created = append(f.created, obs)
	f.items = append(f.items, obs)
	return &obs, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeSubjects struct{}

func (fakeSubjects) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	return &models.Subject{ID: id, Name: "Daisy", RegisteredAt: "2024-01-01"}, nil
}

func (fakeSubjects) GetLineage(ctx context.Context, id string) (*models.Lineage, error) {
	return &models.Lineage{SubjectID: id}, nil
}

type fakeModel struct{}

func (fakeModel) Estimate(ctx context.Context, req models.EstimateRequest) (*models.Observation, error) {
	return &models.Observation{Timestamp: day0.AddDate(0, 0, 20), EstimatedWeightKg: 445, Confidence: 0.8}, nil
}

func newTestServer(t *testing.T, source *fakeSource) *Server {
	t.Helper()
	clk := clock.NewMock()
	store := cache.NewMemoryStore(1 << 20)
	observations := cache.NewObservationCache(store, clk, nil, 0)
	dashboard := cache.NewDashboardCache(store, clk, nil, 0)
	return New(Deps{
		Observations: observation.NewRepository(source, observations, dashboard, nil),
		Subjects:     fakeSubjects{},
		Model:        fakeModel{},
		Dashboard:    dashboard,
		Clock:        clk,
	}, false)
}

func history() *fakeSource {
	return &fakeSource{items: []models.Observation{
		{ID: "a", SubjectID: "cow-1", Timestamp: day0, EstimatedWeightKg: 400, Confidence: 0.9},
		{ID: "b", SubjectID: "cow-1", Timestamp: day0.AddDate(0, 0, 10), EstimatedWeightKg: 430, Confidence: 0.7},
	}}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, history()).Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
}

func TestAPI_Breeds(t *testing.T) {
	rec := get(t, newTestServer(t, history()).Handler(), "/api/breeds")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []models.Breed `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Items, 10)
}

func TestAPI_ListObservationsIsCached(t *testing.T) {
	source := history()
	h := newTestServer(t, source).Handler()

	for i := 0; i < 2; i++ {
		rec := get(t, h, "/api/subjects/cow-1/observations")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":2`)
	}
	assert.Equal(t, 1, source.calls())
}

func TestAPI_Trend(t *testing.T) {
	h := newTestServer(t, history()).Handler()

	rec := get(t, h, "/api/subjects/cow-1/observations/b/trend")
	require.Equal(t, http.StatusOK, rec.Code)

	var cmp struct {
		Results []struct {
			WeightDelta float64  `json:"weight_delta"`
			DailyGain   *float64 `json:"daily_gain"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	require.Len(t, cmp.Results, 1)
	assert.InDelta(t, 30.0, cmp.Results[0].WeightDelta, 1e-9)
	require.NotNil(t, cmp.Results[0].DailyGain)
	assert.InDelta(t, 3.0, *cmp.Results[0].DailyGain, 1e-9)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/subjects/cow-1/observations/zzz/trend").Code)
}

func TestAPI_CreateInvalidatesHistory(t *testing.T) {
	source := history()
	h := newTestServer(t, source).Handler()
	require.Equal(t, http.StatusOK, get(t, h, "/api/subjects/cow-1/observations").Code)

	body := `{"timestamp":"2024-03-21T00:00:00Z","estimated_weight_kg":445,"confidence":0.8}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/subjects/cow-1/observations", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"created-1"`)

	rec = get(t, h, "/api/subjects/cow-1/observations")
	assert.Contains(t, rec.Body.String(), `"total":3`)
	assert.Equal(t, 2, source.calls())
}

func TestAPI_CreateRejectsBadInput(t *testing.T) {
	h := newTestServer(t, history()).Handler()
	for _, body := range []string{`{`, `{"estimated_weight_kg":0}`, `{"subject_id":"other","estimated_weight_kg":10}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/subjects/cow-1/observations", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAPI_BackendErrorsMapToStatus(t *testing.T) {
	source := &fakeSource{listErr: &transport.Error{Status: 503, Class: transport.ClassServer}}
	h := newTestServer(t, source).Handler()
	assert.Equal(t, http.StatusBadGateway, get(t, h, "/api/subjects/cow-1/observations").Code)

	source.listErr = &transport.Error{Class: transport.ClassNetwork}
	assert.Equal(t, http.StatusGatewayTimeout, get(t, h, "/api/subjects/cow-1/dashboard").Code)
}

func TestAPI_DetailAndDashboard(t *testing.T) {
	h := newTestServer(t, history()).Handler()

	rec := get(t, h, "/api/subjects/cow-1/detail")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Daisy"`)
	assert.Contains(t, rec.Body.String(), `"kind":"registration"`)

	rec = get(t, h, "/api/subjects/cow-1/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"observation_count":2`)
	assert.Contains(t, rec.Body.String(), `"average_positive_gain":30`)
}

type wsMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": msgType, "data": data}))
}

// readUntil skips messages until one of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16; i++ {
		img.Set(i, i, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestWebSocket_CaptureFlow(t *testing.T) {
	source := history()
	conn := dial(t, newTestServer(t, source))

	readUntil(t, conn, "state")

	sendWS(t, conn, "get_breeds", nil)
	breedsMsg := readUntil(t, conn, "breeds")
	assert.Contains(t, string(breedsMsg.Data), `"angus"`)

	sendWS(t, conn, "select_breed", map[string]string{"breed": "angus"})
	var st models.WizardState
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "state").Data, &st))
	assert.Equal(t, models.StepSubjectAndCapture, st.Step)

	sendWS(t, conn, "select_subject", map[string]string{"subject_id": "cow-1"})
	readUntil(t, conn, "state")

	sendWS(t, conn, "set_image", map[string]string{"name": "cow.png", "content_type": "image/png", "image": pngBase64(t)})
	readUntil(t, conn, "state")

	sendWS(t, conn, "estimate", nil)
	result := readUntil(t, conn, "estimate_result")
	var estimate struct {
		Observation models.Observation `json:"observation"`
		Trend       *models.Comparison `json:"trend"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &estimate))
	assert.Equal(t, "cow-1", estimate.Observation.SubjectID)
	require.NotNil(t, estimate.Trend)
	assert.Len(t, estimate.Trend.Results, 2)

	sendWS(t, conn, "save", nil)
	saved := readUntil(t, conn, "saved")
	assert.Contains(t, string(saved.Data), `/subjects/cow-1/observations/created-1`)

	source.mu.Lock()
	assert.Len(t, source.created, 1)
	source.mu.Unlock()
}

func TestWebSocket_Errors(t *testing.T) {
	conn := dial(t, newTestServer(t, history()))
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "Invalid message format", readUntil(t, conn, "error").Message)

	sendWS(t, conn, "fly", nil)
	assert.Equal(t, "Unknown message type", readUntil(t, conn, "error").Message)

	sendWS(t, conn, "select_subject", map[string]string{"subject_id": "cow-1"})
	assert.NotEmpty(t, readUntil(t, conn, "error").Message)

	sendWS(t, conn, "get_trend", map[string]string{"subject_id": "cow-1", "observation_id": "nope"})
	assert.Equal(t, "Observation not found", readUntil(t, conn, "error").Message)
}
