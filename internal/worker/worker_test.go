package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/usagerisk/internal/device"
	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/model"
	"github.com/xela07ax/usagerisk/internal/risk"
	"go.uber.org/zap"
)

type fixedDevice int

func (d fixedDevice) Select(context.Context) int { return int(d) }

func naiveArtifact(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "v1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "risk_gru.json")
	data, err := json.Marshal(model.Artifact{Kind: model.KindSeasonalNaive, Version: "v1"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func fourHourPolicy(t *testing.T) risk.Policy {
	t.Helper()
	p, err := risk.DefaultPolicy().WithThresholdHours(4)
	require.NoError(t, err)
	return p
}

// fiveHourDay — 24 часа по 750с, SNS и GAME через час: ровно 5 часов за сутки.
func fiveHourDay() []domain.UsageEvent {
	events := make([]domain.UsageEvent, 0, 24)
	for h := 0; h < 24; h++ {
		cat := "SNS"
		if h%2 == 1 {
			cat = "GAME"
		}
		events = append(events, domain.UsageEvent{
			StartTime:   fmt.Sprintf("2025-12-14 %02d:00:00", h),
			Category:    cat,
			PackageName: "com.example." + strings.ToLower(cat),
			DurationMs:  750_000,
		})
	}
	return events
}

func run(t *testing.T, opts Options, stdin string) map[string]any {
	t.Helper()
	t.Setenv(device.EnvVisibleDevices, "")
	if opts.Selector == nil {
		opts.Selector = fixedDevice(0)
	}
	opts.Logger = zap.NewNop()

	var out bytes.Buffer
	require.NoError(t, New(opts).Run(context.Background(), strings.NewReader(stdin), &out))

	// Ровно один объект и перевод строки в конце.
	require.True(t, strings.HasSuffix(out.String(), "\n"))
	require.Equal(t, 1, strings.Count(strings.TrimSpace(out.String()), "\n")+1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	return got
}

func TestRunEndToEndWithBaselineModel(t *testing.T) {
	uid := int64(42)
	req, err := json.Marshal(domain.InferenceRequest{
		Emotion: domain.EmotionBad,
		Status:  domain.StatusFree,
		SeqData: fiveHourDay(),
		UserID:  &uid,
	})
	require.NoError(t, err)

	got := run(t, Options{ModelPath: naiveArtifact(t), Policy: fourHourPolicy(t)}, string(req))

	var resp domain.InferenceResponse
	raw, _ := json.Marshal(got)
	require.NoError(t, json.Unmarshal(raw, &resp))

	require.Empty(t, resp.Error)
	require.True(t, resp.Complete())
	assert.Equal(t, int64(42), resp.UserID)
	assert.Equal(t, "2025-12-15", resp.AnalysisDate)
	assert.Equal(t, domain.LevelDanger, resp.RiskAnalysis.Level)
	assert.Equal(t, 72, resp.RiskAnalysis.Score)
	assert.Equal(t, "SNS", resp.RiskAnalysis.VulnerableCategory)
	assert.Equal(t, "BAD", resp.RiskAnalysis.Condition)
	assert.Equal(t, "00:00", resp.UsagePrediction.StartTime)
	assert.Equal(t, "01:00", resp.UsagePrediction.EndTime)
	assert.False(t, resp.PatternDetection.Detected)
	assert.Len(t, resp.HourlyForecast, 24)
	assert.InDelta(t, 5*3600, resp.TotalPredictedSeconds, 1e-6)
}

func TestRunAcceptsFractionalDurations(t *testing.T) {
	got := run(t, Options{ModelPath: naiveArtifact(t), Policy: risk.DefaultPolicy()},
		`{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":600000.0},`+
			`{"start_time":"2025-12-14 11:00:00","category":"GAME","duration_ms":1500.5}]}`)

	assert.NotContains(t, got, "error")
	assert.Equal(t, "2025-12-15", got["analysis_date"])
}

func TestRunDefaultsMissingMood(t *testing.T) {
	got := run(t, Options{ModelPath: naiveArtifact(t), Policy: risk.DefaultPolicy()},
		`{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":600000}]}`)

	require.NotContains(t, got, "error")
	assert.Equal(t, "NORMAL", got["risk_analysis"].(map[string]any)["condition"])
}

func TestNormalizeMood(t *testing.T) {
	tests := []struct {
		emotion    domain.Emotion
		status     domain.Status
		wantEmo    domain.Emotion
		wantStatus domain.Status
	}{
		{"", "", domain.EmotionNormal, domain.StatusFree},
		{"bad", "busy", domain.EmotionBad, domain.StatusBusy},
		{" GOOD ", "FREE", domain.EmotionGood, domain.StatusFree},
		{"ecstatic", "asleep", domain.EmotionNormal, domain.StatusFree},
	}
	for _, tt := range tests {
		e, s := normalizeMood(tt.emotion, tt.status)
		assert.Equal(t, tt.wantEmo, e, "emotion %q", tt.emotion)
		assert.Equal(t, tt.wantStatus, s, "status %q", tt.status)
	}
}

func TestRunProtocolErrors(t *testing.T) {
	modelPath := naiveArtifact(t)

	tests := []struct {
		name      string
		opts      Options
		stdin     string
		wantError string
	}{
		{name: "empty stdin", opts: Options{ModelPath: modelPath}, stdin: "  \n", wantError: MsgEmptyInput},
		{name: "no events", opts: Options{ModelPath: modelPath}, stdin: `{"emotion":"GOOD","status":"FREE","seq_data":[]}`, wantError: MsgInsufficientData},
		{name: "no usable time", opts: Options{ModelPath: modelPath}, stdin: `{"emotion":"GOOD","status":"FREE","seq_data":[{"category":"SNS","duration_ms":10}]}`, wantError: MsgInsufficientData},
		{name: "missing model file", opts: Options{ModelPath: filepath.Join(t.TempDir(), "nope.json")}, stdin: `{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":10}]}`, wantError: MsgModelNotFound},
		{name: "empty model root", opts: Options{ModelRoot: t.TempDir()}, stdin: `{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":10}]}`, wantError: MsgModelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Policy = risk.DefaultPolicy()
			got := run(t, tt.opts, tt.stdin)
			assert.Equal(t, map[string]any{"error": tt.wantError}, got)
		})
	}
}

func TestRunRuntimeErrorIsStructured(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "risk_gru.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"kind":"gru_seq2seq","input_dim":10,"hidden":2,"output_steps":24,"output_dim":3}`), 0o600))

	tests := []struct {
		name  string
		path  string
		stdin string
	}{
		{name: "malformed json", path: naiveArtifact(t), stdin: `{"seq_data": [`},
		{name: "bad artifact shape", path: broken, stdin: `{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":10}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, Options{ModelPath: tt.path, Policy: risk.DefaultPolicy()}, tt.stdin)
			assert.NotEmpty(t, got["error"])
			assert.Equal(t, map[string]any{"level": "ERROR", "score": float64(0)}, got["risk_analysis"])
		})
	}
}

type panickySelector struct{}

func (panickySelector) Select(context.Context) int { panic("driver exploded") }

func TestRunRecoversFromPanic(t *testing.T) {
	got := run(t, Options{ModelPath: naiveArtifact(t), Policy: risk.DefaultPolicy(), Selector: panickySelector{}}, `{}`)
	assert.Contains(t, got["error"], "driver exploded")
	assert.Equal(t, "ERROR", got["risk_analysis"].(map[string]any)["level"])
}

func TestRunAppliesDeviceBeforeRuntime(t *testing.T) {
	t.Setenv(device.EnvVisibleDevices, "")
	w := New(Options{ModelPath: naiveArtifact(t), Policy: risk.DefaultPolicy(), Selector: fixedDevice(3), Logger: zap.NewNop()})

	var out bytes.Buffer
	require.NoError(t, w.Run(context.Background(), strings.NewReader(`{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":10}]}`), &out))
	assert.Equal(t, "3", os.Getenv(device.EnvVisibleDevices))
	assert.Equal(t, "3", w.rt.Device())
}

func TestAnalysisDateFallbacks(t *testing.T) {
	got := run(t, Options{ModelPath: naiveArtifact(t), Policy: risk.DefaultPolicy()},
		`{"analysis_date":"2030-01-01","seq_data":[{"usage_date":"2025-12-14","category":"GAME","duration_ms":60000}]}`)
	// Вычисленная дата важнее переданной.
	assert.Equal(t, "2025-12-15", got["analysis_date"])
}

func TestCleanupIsIdempotent(t *testing.T) {
	w := New(Options{ModelPath: naiveArtifact(t), Policy: risk.DefaultPolicy(), Selector: fixedDevice(0)})
	t.Setenv(device.EnvVisibleDevices, "")

	var out bytes.Buffer
	require.NoError(t, w.Run(context.Background(), strings.NewReader(`{"seq_data":[{"start_time":"2025-12-14 10:00:00","category":"SNS","duration_ms":10}]}`), &out))
	w.Cleanup()
	w.Cleanup()

	assert.Nil(t, w.model)
	_, err := w.rt.Load(naiveArtifact(t))
	assert.Error(t, err, "runtime must be closed after cleanup")
}

func TestEmitWritesOnce(t *testing.T) {
	w := New(Options{})
	var out bytes.Buffer
	require.NoError(t, w.emit(&out, failure{Error: "first"}))
	require.NoError(t, w.emit(&out, failure{Error: "second"}))
	assert.Equal(t, "{\"error\":\"first\"}\n", out.String())
}

func TestWatchSignalsCleansUpAndExitsZero(t *testing.T) {
	w := New(Options{})
	codes := make(chan int, 1)
	w.exit = func(code int) { codes <- code }

	stop := w.WatchSignals()
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case code := <-codes:
		assert.Equal(t, 0, code)
	case <-time.After(3 * time.Second):
		t.Fatal("signal handler did not run")
	}

	// Повторная очистка после сигнала ничего не ломает.
	w.Cleanup()
}
