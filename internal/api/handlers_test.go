package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/v09-software/cubico/internal/config"
	"github.com/v09-software/cubico/internal/engine"
	"github.com/v09-software/cubico/internal/models"
)

func salesCube(t *testing.T) *engine.Cube {
	t.Helper()
	c := engine.New()
	for _, d := range []struct {
		name string
		dt   engine.DataType
	}{{"country", engine.Text}, {"region", engine.Text}, {"income", engine.Numeric}} {
		if err := c.AddDimension(d.name, d.dt); err != nil {
			t.Fatal(err)
		}
	}
	for _, r := range []engine.Record{
		{"AR", "north", 100},
		{"AR", "south", 300},
		{"US", "north", 50},
		{"UY", nil, 20},
	} {
		if err := c.AddRecord(r); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func newTestServer(t *testing.T, cube *engine.Cube) *echo.Echo {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit = 0
	cfg.Logging.Level = "off"
	return NewServer(cfg, NewHandler(cube, cfg.Query))
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestLoadingReturns503(t *testing.T) {
	e := newTestServer(t, nil)
	for _, target := range []string{"/api/dimensions", "/api/stats/income", "/api/export.arrow"} {
		if rec := do(e, http.MethodGet, target, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: expected 503, got %d", target, rec.Code)
		}
	}
}

func TestSetCubeMakesAPIReady(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit = 0
	h := NewHandler(nil, cfg.Query)
	e := NewServer(cfg, h)

	h.SetCube(salesCube(t))
	if rec := do(e, http.MethodGet, "/api/dimensions", ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after SetCube, got %d", rec.Code)
	}
}

func TestGetDimensions(t *testing.T) {
	e := newTestServer(t, salesCube(t))
	rec := do(e, http.MethodGet, "/api/dimensions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var dims []models.DimensionInfo
	decode(t, rec, &dims)
	if len(dims) != 3 {
		t.Fatalf("Expected 3 dimensions, got %d", len(dims))
	}
	if dims[1].Name != "region" || dims[1].NonNullCount != 3 || dims[1].Sum != nil {
		t.Errorf("Unexpected region info: %+v", dims[1])
	}
	income := dims[2]
	if income.Type != "numeric" || income.Sum == nil || *income.Sum != 470 || *income.Max != 300 {
		t.Errorf("Unexpected income info: %+v", income)
	}
}

func TestAddDimensionAndRecord(t *testing.T) {
	e := newTestServer(t, salesCube(t))

	if rec := do(e, http.MethodPost, "/api/dimensions", `{"name":"age","type":"numeric"}`); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if rec := do(e, http.MethodPost, "/api/dimensions", `{"name":"age","type":"numeric"}`); rec.Code != http.StatusConflict {
		t.Errorf("Duplicate dimension: expected 409, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/dimensions", `{"name":"x","type":"date"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Bad type: expected 400, got %d", rec.Code)
	}

	rec := do(e, http.MethodPost, "/api/records", `{"record":{"country":"BR","region":"east","income":75,"age":30}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var out map[string]int
	decode(t, rec, &out)
	if out["records"] != 5 {
		t.Errorf("Expected 5 records, got %d", out["records"])
	}

	if rec := do(e, http.MethodPost, "/api/records", `{"values":["BR","east"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Short record: expected 400, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/records", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Empty request: expected 400, got %d", rec.Code)
	}
}

func TestSlice(t *testing.T) {
	e := newTestServer(t, salesCube(t))

	rec := do(e, http.MethodPost, "/api/slice", `{"where":["income>=100"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var data models.CubeData
	decode(t, rec, &data)
	if data.Total != 2 || len(data.Records) != 2 {
		t.Fatalf("Expected 2 records, got total=%d page=%d", data.Total, len(data.Records))
	}

	rec = do(e, http.MethodPost, "/api/slice?limit=1&offset=1", `{"equals":{"country":"AR"}}`)
	data = models.CubeData{}
	decode(t, rec, &data)
	if data.Total != 2 || len(data.Records) != 1 || data.Records[0][1] != "south" {
		t.Errorf("Unexpected page: %+v", data)
	}

	rec = do(e, http.MethodPost, "/api/slice", `{"criteria":[{"dimension":"region","op":"!=","value":"north"}]}`)
	data = models.CubeData{}
	decode(t, rec, &data)
	if data.Total != 2 {
		t.Errorf("Expected AR/south and the absent region, got %d", data.Total)
	}

	if rec := do(e, http.MethodPost, "/api/slice", `{"where":["planet=mars"]}`); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown dimension: expected 404, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/slice", `{"where":`); rec.Code != http.StatusBadRequest {
		t.Errorf("Bad JSON: expected 400, got %d", rec.Code)
	}
}

func TestAggregate(t *testing.T) {
	e := newTestServer(t, salesCube(t))

	body := `{"group_by":["country"],"measures":[{"kind":"sum","dimension":"income"},{"kind":"count","dimension":"*","name":"n"}]}`
	rec := do(e, http.MethodPost, "/api/aggregate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var data models.CubeData
	decode(t, rec, &data)

	want := []string{"country", "sum_income", "n"}
	if strings.Join(data.Dimensions, ",") != strings.Join(want, ",") {
		t.Fatalf("Expected dimensions %v, got %v", want, data.Dimensions)
	}
	if data.Total != 3 {
		t.Fatalf("Expected 3 groups, got %d", data.Total)
	}
	ar := data.Records[0]
	if ar[0] != "AR" || ar[1] != 400.0 || ar[2] != 2.0 {
		t.Errorf("Unexpected AR group: %v", ar)
	}

	rec = do(e, http.MethodPost, "/api/aggregate", `{"where":["region=north"],"group_by":["region"],"measures":[{"kind":"avg","dimension":"income"}]}`)
	data = models.CubeData{}
	decode(t, rec, &data)
	if data.Total != 1 || data.Records[0][1] != 75.0 {
		t.Errorf("Unexpected filtered aggregate: %+v", data)
	}

	if rec := do(e, http.MethodPost, "/api/aggregate", `{"group_by":["country"],"measures":[{"kind":"median","dimension":"income"}]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Unknown kind: expected 400, got %d", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	e := newTestServer(t, salesCube(t))

	rec := do(e, http.MethodGet, "/api/stats/income", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var st models.StatsResponse
	decode(t, rec, &st)
	if st.Count != 4 || st.Sum == nil || *st.Sum != 470 || *st.Min != 20 || *st.Max != 300 || *st.Average != 117.5 {
		t.Errorf("Unexpected stats: %+v", st)
	}
	if st.Approximate || st.StdDev == nil || *st.StdDev <= 0 {
		t.Errorf("Expected exact positive std-dev, got %+v", st)
	}

	rec = do(e, http.MethodGet, "/api/stats/income?approximate=true", "")
	st = models.StatsResponse{}
	decode(t, rec, &st)
	if !st.Approximate {
		t.Error("Expected approximate stats")
	}

	if rec := do(e, http.MethodGet, "/api/stats/planet", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown dimension: expected 404, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/stats/region", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Text dimension: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	st = models.StatsResponse{}
	decode(t, rec, &st)
	if st.Type != "text" || st.Count != 3 || st.DistinctCount != 2 {
		t.Errorf("Unexpected text stats: %+v", st)
	}
	if st.Sum != nil || st.Average != nil || st.StdDev != nil {
		t.Errorf("Text stats must not carry numeric fields: %+v", st)
	}
	if strings.Contains(rec.Body.String(), "sum") {
		t.Errorf("numeric fields should be omitted, got %s", rec.Body)
	}
	if rec := do(e, http.MethodGet, "/api/stats/income?approximate=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Bad flag: expected 400, got %d", rec.Code)
	}
}

func TestGetCovariance(t *testing.T) {
	e := newTestServer(t, salesCube(t))

	rec := do(e, http.MethodGet, "/api/covariance?a=income&b=income", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var cov models.CovarianceResponse
	decode(t, rec, &cov)
	if cov.Covariance <= 0 {
		t.Errorf("Expected positive self-covariance, got %v", cov.Covariance)
	}

	if rec := do(e, http.MethodGet, "/api/covariance?a=income", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Missing b: expected 400, got %d", rec.Code)
	}
}

func TestExportArrow(t *testing.T) {
	e := newTestServer(t, salesCube(t))

	rec := do(e, http.MethodGet, "/api/export.arrow", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	r, err := ipc.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()

	var rows int64
	for r.Next() {
		rows += r.Record().NumRows()
	}
	if rows != 4 {
		t.Errorf("Expected 4 exported rows, got %d", rows)
	}
	if got := r.Schema().NumFields(); got != 3 {
		t.Errorf("Expected 3 fields, got %d", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestServer(t, salesCube(t))
	do(e, http.MethodPost, "/api/slice", `{}`)

	rec := do(e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cubico_operations_total") {
		t.Errorf("Expected cubico metrics, got %d", rec.Code)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Lvl{"debug": log.DEBUG, "WARN": log.WARN, "off": log.OFF, "nonsense": log.INFO}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
