package server

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/workpack/internal/workload"
)

type staticResolver map[string]workload.PackInfo

func (r staticResolver) GetPacksInWorkload(workload.WorkloadID) []string { return nil }

func (r staticResolver) TryGetPackInfo(id string) (workload.PackInfo, bool) {
	pack, ok := r[id]
	return pack, ok
}

func newTestApp(t *testing.T, withMetrics bool) (*fiber.App, workload.PackInfo) {
	t.Helper()

	layout, err := workload.NewLayout(t.TempDir(), "")
	if err != nil {
		t.Fatalf("layout error: %v", err)
	}
	records := workload.NewFileRecordStore(layout)
	pack := workload.PackInfo{
		ID:      "Microsoft.NET.Sdk.Android",
		Version: "32.0.301",
		Kind:    workload.PackKindSdk,
		Path:    layout.DefaultPackPath("Microsoft.NET.Sdk.Android", "32.0.301", workload.PackKindSdk),
	}
	if err := os.MkdirAll(pack.Path, 0o755); err != nil {
		t.Fatalf("mkdir pack: %v", err)
	}
	for _, band := range []workload.SdkFeatureBand{"6.0.200", "6.0.100"} {
		if err := records.WritePackRecord(pack, band); err != nil {
			t.Fatalf("write pack record: %v", err)
		}
	}
	if err := records.WriteWorkloadRecord("android", "6.0.100"); err != nil {
		t.Fatalf("write workload record: %v", err)
	}
	if err := records.WriteWorkloadRecord("maui", "6.0.100"); err != nil {
		t.Fatalf("write workload record: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := AppOptions{
		Logger:     logger,
		Records:    records,
		Resolver:   staticResolver{pack.ID: pack},
		ListenPort: 5080,
	}
	if withMetrics {
		reg := prometheus.NewRegistry()
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "workpack_test_total", Help: "test"})
		reg.MustRegister(counter)
		counter.Inc()
		opts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	app, err := NewApp(opts)
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	return app, pack
}

func doGet(t *testing.T, app *fiber.App, path string) (int, []byte, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, resp.Header.Get("X-Request-ID")
}

func TestBandsRouteListsLiveBands(t *testing.T) {
	app, _ := newTestApp(t, false)

	status, body, reqID := doGet(t, app, "/-/bands")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, body)
	}
	if reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	var payload struct {
		Bands []struct {
			Band      string   `json:"band"`
			Workloads []string `json:"workloads"`
		} `json:"bands"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Bands) != 1 || payload.Bands[0].Band != "6.0.100" {
		t.Fatalf("unexpected bands: %s", body)
	}
	if strings.Join(payload.Bands[0].Workloads, ",") != "android,maui" {
		t.Fatalf("unexpected workloads: %v", payload.Bands[0].Workloads)
	}
}

func TestBandWorkloadsRoute(t *testing.T) {
	app, _ := newTestApp(t, false)

	status, body, _ := doGet(t, app, "/-/bands/6.0.200/workloads")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), `"workloads":[]`) {
		t.Fatalf("band without workloads should return an empty list, got %s", body)
	}

	status, _, _ = doGet(t, app, "/-/bands/../workloads")
	if status == fiber.StatusOK {
		t.Fatalf("dot segments must not be served")
	}
}

func TestPackRouteReportsBandsAndContent(t *testing.T) {
	app, pack := newTestApp(t, false)

	status, body, _ := doGet(t, app, "/-/packs/"+pack.ID+"/"+pack.Version)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, body)
	}
	var payload struct {
		Bands     []string `json:"bands"`
		Installed bool     `json:"installed"`
		Kind      string   `json:"kind"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(payload.Bands, ",") != "6.0.100,6.0.200" {
		t.Fatalf("unexpected bands: %v", payload.Bands)
	}
	if !payload.Installed || payload.Kind != "Sdk" {
		t.Fatalf("unexpected payload: %s", body)
	}

	status, _, _ = doGet(t, app, "/-/packs/Unknown/1.0.0")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown pack, got %d", status)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	app, _ := newTestApp(t, false)

	status, body, reqID := doGet(t, app, "/v2/")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", status)
	}
	var payload struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode body: %v (%s)", err, body)
	}
	if payload.Error != "route_not_found" {
		t.Fatalf("expected route_not_found error, got %s", body)
	}
	if reqID == "" || payload.RequestID != reqID {
		t.Fatalf("404 payload should echo X-Request-ID %q, got %q", reqID, payload.RequestID)
	}
}

func TestMetricsRoute(t *testing.T) {
	app, _ := newTestApp(t, true)
	status, body, _ := doGet(t, app, "/-/metrics")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), "workpack_test_total 1") {
		t.Fatalf("expected exposition output, got %s", body)
	}

	app, _ = newTestApp(t, false)
	status, _, _ = doGet(t, app, "/-/metrics")
	if status != fiber.StatusNotFound {
		t.Fatalf("metrics should be disabled, got %d", status)
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if _, err := NewApp(AppOptions{Logger: logger, ListenPort: 5080}); err == nil {
		t.Fatalf("missing record store should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Records: workload.NewFileRecordStore(workload.Layout{Root: t.TempDir()}), ListenPort: 0}); err == nil {
		t.Fatalf("invalid port should fail")
	}
}
