package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go.ngs.io/oceangrid/internal/adapter/interp"
	"go.ngs.io/oceangrid/internal/adapter/store/calculated"
	"go.ngs.io/oceangrid/internal/adapter/store/opener"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/expr"
	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/usecase"
)

// Handler handles HTTP requests for dataset queries.
type Handler struct {
	queryUC *usecase.QueryUseCase
	log     logrus.FieldLogger
}

// NewHandler creates a new HTTP handler.
func NewHandler(queryUC *usecase.QueryUseCase, log logrus.FieldLogger) *Handler {
	return &Handler{
		queryUC: queryUC,
		log:     log,
	}
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetDatasets handles GET /v1/datasets.
func (h *Handler) GetDatasets(c *gin.Context) {
	datasets := h.queryUC.Datasets()
	c.JSON(http.StatusOK, gin.H{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// GetVariables handles GET /v1/datasets/:id/variables.
func (h *Handler) GetVariables(c *gin.Context) {
	vars, err := h.queryUC.Variables(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"variables": vars,
		"count":     len(vars),
	})
}

// Query returns the handler for one query operation on
// /v1/datasets/:id/<operation>.
func (h *Handler) Query(op usecase.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := parseQuery(c, op)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		response, err := h.queryUC.Execute(c.Request.Context(), req)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("query failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// statusOf maps configuration and structural errors to 400, unknown
// datasets and variables to 404, and everything else to 500.
func statusOf(err error) int {
	for _, target := range []error{opener.ErrUnknownDataset, domain.ErrUnknownVariable} {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range []error{
		domain.ErrInvalidQuery,
		domain.ErrUnknownCoordinatePair,
		domain.ErrUnsupported,
		domain.ErrNoDepthAxis,
		domain.ErrTimeNotFound,
		expr.ErrSyntax,
		expr.ErrUnknownFunction,
		expr.ErrArity,
		expr.ErrDimensionMismatch,
		calculated.ErrCycle,
		interp.ErrUnknownMethod,
	} {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// parseQuery builds a request from the query string. Lists are comma
// separated; path vertices are "lat,lon" pairs separated by semicolons.
func parseQuery(c *gin.Context, op usecase.Operation) (usecase.QueryRequest, error) {
	req := usecase.QueryRequest{
		Operation: op,
		Dataset:   c.Param("id"),
		Variable:  c.Query("variable"),
	}

	var err error
	if req.Lat, err = parseFloats(c.Query("lat")); err != nil {
		return req, fmt.Errorf("invalid latitude: %v", err)
	}
	if req.Lon, err = parseFloats(c.Query("lon")); err != nil {
		return req, fmt.Errorf("invalid longitude: %v", err)
	}
	if req.Depths, err = parseFloats(c.Query("depths")); err != nil {
		return req, fmt.Errorf("invalid depths: %v", err)
	}

	switch depth := c.DefaultQuery("depth", "0"); strings.ToLower(depth) {
	case "all":
		req.AllDepths = true
	default:
		if req.Depth, err = domain.ParseDepth(depth); err != nil {
			return req, err
		}
	}

	if s := c.Query("time"); s != "" {
		if req.Start, err = time.Parse(time.RFC3339, s); err != nil {
			return req, fmt.Errorf("invalid time (expected RFC3339): %v", err)
		}
	}
	if s := c.Query("start"); s != "" {
		if req.Start, err = time.Parse(time.RFC3339, s); err != nil {
			return req, fmt.Errorf("invalid start time (expected RFC3339): %v", err)
		}
	}
	if s := c.Query("end"); s != "" {
		if req.End, err = time.Parse(time.RFC3339, s); err != nil {
			return req, fmt.Errorf("invalid end time (expected RFC3339): %v", err)
		}
	}
	req.Start, req.End = utc(req.Start), utc(req.End)

	if s := c.Query("path"); s != "" {
		if req.Path, err = parsePath(s); err != nil {
			return req, fmt.Errorf("invalid path: %v", err)
		}
	}
	if s := c.Query("samples"); s != "" {
		if req.Samples, err = strconv.Atoi(s); err != nil {
			return req, fmt.Errorf("invalid samples: %v", err)
		}
	}

	if op == usecase.OpSubset {
		box := []*float64{&req.South, &req.North, &req.West, &req.East}
		for i, name := range []string{"south", "north", "west", "east"} {
			s := c.Query(name)
			if s == "" {
				return req, fmt.Errorf("%s parameter is required", name)
			}
			if *box[i], err = strconv.ParseFloat(s, 64); err != nil {
				return req, fmt.Errorf("invalid %s: %v", name, err)
			}
		}
	}
	return req, nil
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parsePath(s string) ([]geo.LatLon, error) {
	var out []geo.LatLon
	for _, pair := range strings.Split(s, ";") {
		v, err := parseFloats(pair)
		if err != nil {
			return nil, err
		}
		if len(v) != 2 {
			return nil, fmt.Errorf("expected lat,lon but got %q", pair)
		}
		out = append(out, geo.LatLon{Lat: v[0], Lon: v[1]})
	}
	return out, nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
