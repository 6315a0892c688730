package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/v09-software/cubico/internal/config"
	"github.com/v09-software/cubico/internal/engine"
	"github.com/v09-software/cubico/internal/export"
	"github.com/v09-software/cubico/internal/metrics"
	"github.com/v09-software/cubico/internal/models"
)

// Handler serves one live cube. Writes take the exclusive lock; queries
// share the read lock.
type Handler struct {
	mu    sync.RWMutex
	cube  *engine.Cube
	query config.QueryConfig
}

func NewHandler(cube *engine.Cube, query config.QueryConfig) *Handler {
	h := &Handler{query: query}
	if cube != nil {
		h.SetCube(cube)
	}
	return h
}

// SetCube swaps in a freshly loaded cube.
func (h *Handler) SetCube(cube *engine.Cube) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cube = cube
	metrics.SetCubeSize(cube.NbrOfRecords(), cube.NbrOfDimensions())
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/dimensions", h.GetDimensions)
	g.POST("/dimensions", h.AddDimension)
	g.POST("/records", h.AddRecord)
	g.POST("/slice", h.Slice)
	g.POST("/aggregate", h.Aggregate)
	g.GET("/stats/:dimension", h.GetStats)
	g.GET("/covariance", h.GetCovariance)
	g.GET("/export.arrow", h.ExportArrow)
}

// --- HELPERS ---

var errLoading = echo.NewHTTPError(http.StatusServiceUnavailable, "dataset is still loading")

func (h *Handler) getPaginationParams(c echo.Context) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = h.query.DefaultLimit
	}
	if h.query.MaxLimit > 0 && limit > h.query.MaxLimit {
		limit = h.query.MaxLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// httpError maps engine validation failures to client errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, engine.ErrUnknownDimension):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrDuplicateDimension):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func buildCriteria(f models.Filter) ([]engine.Criterion, error) {
	var out []engine.Criterion
	for _, cr := range f.Criteria {
		out = append(out, engine.Where(cr.Dimension, engine.Operator(cr.Op), cr.Value))
	}
	for _, expr := range f.Where {
		cr, err := engine.ParseCriterion(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return append(out, engine.Equal(f.Equals)...), nil
}

func page(cube *engine.Cube, limit, offset int) models.CubeData {
	total := cube.NbrOfRecords()
	data := models.CubeData{
		Dimensions: cube.DimensionNames(),
		Records:    [][]any{},
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}
	end := min(offset+limit, total)
	for i := offset; i < end; i++ {
		data.Records = append(data.Records, []any(cube.Record(i)))
	}
	return data
}

// --- HANDLERS ---

func (h *Handler) GetDimensions(c echo.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cube == nil {
		return errLoading
	}

	dims := h.cube.Dimensions()
	out := make([]models.DimensionInfo, len(dims))
	for i, d := range dims {
		out[i] = models.DimensionInfo{
			Name:          d.Name,
			Type:          d.DataType.String(),
			Index:         d.Index,
			NonNullCount:  d.Stats.NonNullCount,
			DistinctCount: d.Stats.DistinctCount,
		}
		if d.DataType == engine.Numeric {
			sum, lo, hi := d.Stats.Sum, d.Stats.Min, d.Stats.Max
			out[i].Sum, out[i].Min, out[i].Max = &sum, &lo, &hi
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) AddDimension(c echo.Context) error {
	var req models.AddDimensionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	dt, err := engine.ParseDataType(req.Type)
	if err != nil {
		return httpError(err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cube == nil {
		return errLoading
	}
	if err := h.cube.AddDimension(req.Name, dt); err != nil {
		return httpError(err)
	}
	metrics.SetCubeSize(h.cube.NbrOfRecords(), h.cube.NbrOfDimensions())
	return c.JSON(http.StatusCreated, map[string]any{"name": req.Name, "index": h.cube.NbrOfDimensions() - 1})
}

func (h *Handler) AddRecord(c echo.Context) error {
	var req models.AddRecordRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	var shape any
	switch {
	case req.Values != nil && req.Record == nil:
		shape = req.Values
	case req.Record != nil && req.Values == nil:
		shape = req.Record
	default:
		return httpError(engine.ErrInvalidRecordShape)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cube == nil {
		return errLoading
	}
	start := time.Now()
	err := h.cube.Add(shape)
	metrics.Observe(metrics.OpInsert, start, err)
	if err != nil {
		return httpError(err)
	}
	metrics.SetCubeSize(h.cube.NbrOfRecords(), h.cube.NbrOfDimensions())
	return c.JSON(http.StatusCreated, map[string]int{"records": h.cube.NbrOfRecords()})
}

func (h *Handler) Slice(c echo.Context) error {
	var req models.Filter
	if err := c.Bind(&req); err != nil {
		return err
	}
	criteria, err := buildCriteria(req)
	if err != nil {
		return httpError(err)
	}
	limit, offset := h.getPaginationParams(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cube == nil {
		return errLoading
	}
	start := time.Now()
	out, err := h.cube.Slice(criteria...)
	metrics.Observe(metrics.OpSlice, start, err)
	if err != nil {
		return httpError(err)
	}
	metrics.ObserveResult(metrics.OpSlice, out.NbrOfRecords())
	return c.JSON(http.StatusOK, page(out, limit, offset))
}

func (h *Handler) Aggregate(c echo.Context) error {
	var req models.AggregateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	criteria, err := buildCriteria(req.Filter)
	if err != nil {
		return httpError(err)
	}
	measures := make([]engine.Measure, len(req.Measures))
	for i, m := range req.Measures {
		measure, err := engine.NewMeasure(m.Kind, m.Dimension)
		if err != nil {
			return httpError(err)
		}
		if m.Name != "" {
			measure = measure.As(m.Name)
		}
		measures[i] = measure
	}
	limit, offset := h.getPaginationParams(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cube == nil {
		return errLoading
	}
	start := time.Now()
	src := h.cube
	if len(criteria) > 0 {
		src, err = h.cube.Slice(criteria...)
	}
	var out *engine.Cube
	if err == nil {
		out, err = src.Aggregate(req.GroupBy, measures...)
	}
	metrics.Observe(metrics.OpAggregate, start, err)
	if err != nil {
		return httpError(err)
	}
	metrics.ObserveResult(metrics.OpAggregate, out.NbrOfRecords())
	return c.JSON(http.StatusOK, page(out, limit, offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	name := c.Param("dimension")
	approximate := h.query.Approximate
	if q := c.QueryParam("approximate"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "approximate must be a boolean")
		}
		approximate = v
	}

	// the exact std-dev is cached on the dimension, which is a write
	if approximate {
		h.mu.RLock()
		defer h.mu.RUnlock()
	} else {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	if h.cube == nil {
		return errLoading
	}

	start := time.Now()
	resp, err := stats(h.cube, name, approximate)
	metrics.Observe(metrics.OpStats, start, err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func stats(cube *engine.Cube, name string, approximate bool) (models.StatsResponse, error) {
	info, err := cube.Dimension(name)
	if err != nil {
		return models.StatsResponse{}, err
	}
	resp := models.StatsResponse{
		Dimension:     name,
		Type:          info.DataType.String(),
		Approximate:   approximate,
		Count:         info.Stats.NonNullCount,
		DistinctCount: info.Stats.DistinctCount,
	}
	if info.DataType != engine.Numeric {
		return resp, nil
	}

	sum, sumSq, lo, hi := info.Stats.Sum, info.Stats.SumOfSquares, info.Stats.Min, info.Stats.Max
	avg, _ := cube.Average(name)
	sd, err := cube.StdDev(name, approximate)
	if err != nil {
		return resp, err
	}
	variance, _ := cube.Variance(name, approximate)
	resp.Sum, resp.SumOfSquares, resp.Min, resp.Max = &sum, &sumSq, &lo, &hi
	resp.Average, resp.StdDev, resp.Variance = &avg, &sd, &variance
	return resp, nil
}

func (h *Handler) GetCovariance(c echo.Context) error {
	a, b := c.QueryParam("a"), c.QueryParam("b")
	if a == "" || b == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameters a and b are required")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cube == nil {
		return errLoading
	}
	start := time.Now()
	cov, err := h.cube.Covariance(a, b)
	metrics.Observe(metrics.OpStats, start, err)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, models.CovarianceResponse{A: a, B: b, Covariance: cov})
}

// ExportArrow streams the whole cube as an Arrow IPC stream.
func (h *Handler) ExportArrow(c echo.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cube == nil {
		return errLoading
	}
	start := time.Now()
	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.apache.arrow.stream")
	c.Response().WriteHeader(http.StatusOK)
	err := export.WriteIPC(c.Response(), h.cube, nil)
	metrics.Observe(metrics.OpExport, start, err)
	return err
}
