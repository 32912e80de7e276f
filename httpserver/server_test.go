package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/audio/audiotest"
	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/emotion"
	"github.com/maastricht-university/edmo-emotion/logging"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

type fakeClassifier struct{}

func (fakeClassifier) Info() clients.ModelInfo {
	return clients.ModelInfo{
		ID:         "fake/ser",
		Backend:    config.BackendWavLM,
		Device:     "cpu",
		SampleRate: 16000,
		Labels:     []string{"ang", "hap", "neu", "sad", "contempt"},
	}
}

func (fakeClassifier) Classify(_ context.Context, w audio.Waveform) ([]emotion.RawPrediction, error) {
	return []emotion.RawPrediction{
		{Label: "neu", Score: 0.5},
		{Label: "hap", Score: 0.3},
		{Label: "contempt", Score: 0.15},
		{Label: "sad", Score: 0.05},
	}, nil
}

func testConfig() *config.Root {
	cfg := &config.Root{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 5050
	cfg.Server.UploadField = "file"
	cfg.Server.MaxUploadMB = 1
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logging.Discard()
	p := orchestrator.NewPipeline(audio.NewNormalizer(nil), fakeClassifier{}, logging.Component(log, "pipeline"))
	s, err := New(Options{Config: testConfig(), Pipeline: p, Logger: log})
	require.NoError(t, err)
	return s
}

func upload(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile(field, "clip.wav")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/classify", &b)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got clients.HealthResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "fake/ser", got.ID)
	assert.Equal(t, "cpu", got.Device)
	assert.Equal(t, 16000, got.SampleRate)
	assert.False(t, got.Transcoder)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestClassify_Success(t *testing.T) {
	s := newTestServer(t)
	wav := audiotest.ToneWAV(t, 440, 16000, 500*time.Millisecond)

	rec := serve(s, upload(t, "file", wav))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got [][]emotion.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	preds := got[0]
	require.Len(t, preds, 4)
	assert.Equal(t, emotion.Neutral, preds[0].Label)
	assert.Equal(t, emotion.Disgust, preds[2].Label)
	for i, p := range preds {
		assert.GreaterOrEqual(t, p.Score, 0.0)
		assert.LessOrEqual(t, p.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, preds[i-1].Score, p.Score)
		}
	}

	again := serve(s, upload(t, "file", wav))
	assert.JSONEq(t, rec.Body.String(), again.Body.String())
}

func TestClassify_EmptyFile(t *testing.T) {
	rec := serve(newTestServer(t), upload(t, "file", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Empty audio file.", errorBody(t, rec))
}

func TestClassify_EmptyBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/classify", http.NoBody)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Empty audio file.", errorBody(t, rec))

	req = httptest.NewRequest(http.MethodPost, "/classify", bytes.NewReader(nil))
	rec = serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Empty audio file.", errorBody(t, rec))
}

func TestClassify_Undecodable(t *testing.T) {
	rec := serve(newTestServer(t), upload(t, "file", []byte("this is not audio at all")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	msg := errorBody(t, rec)
	assert.Contains(t, msg, "Could not classify audio: ")
	assert.Contains(t, msg, "decode")
}

func TestClassify_MissingField(t *testing.T) {
	rec := serve(newTestServer(t), upload(t, "audio", []byte("RIFF")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorBody(t, rec), `"file"`)
}

func TestClassify_TooLarge(t *testing.T) {
	rec := serve(newTestServer(t), upload(t, "file", make([]byte, 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequestID_Propagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := serve(newTestServer(t), req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	serve(s, upload(t, "file", audiotest.ToneWAV(t, 440, 16000, 200*time.Millisecond)))
	serve(s, upload(t, "file", []byte("garbage")))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `emotion_classify_failures_total{stage="decode"} 1`)
	assert.Contains(t, body, `emotion_inference_duration_seconds_count{backend="wavlm"} 1`)
	assert.Contains(t, body, `emotion_http_requests_total{method="POST",route="/classify",status="200"} 1`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
