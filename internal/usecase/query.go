package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.ngs.io/oceangrid/internal/adapter/store/opener"
	"go.ngs.io/oceangrid/internal/config"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/model"
)

// Request limits.
const (
	MaxPoints       = 1000
	MaxPathSamples  = 10000
	MaxTargetDepths = 500
	DefaultSamples  = 100
)

// Operation names a query kind.
type Operation string

const (
	OpPoint         Operation = "point"
	OpProfile       Operation = "profile"
	OpTimeseries    Operation = "timeseries"
	OpPath          Operation = "path"
	OpProfileDepths Operation = "profile-depths"
	OpArea          Operation = "area"
	OpSubset        Operation = "subset"
)

// QueryRequest encapsulates a data query against one dataset.
type QueryRequest struct {
	Operation Operation
	Dataset   string
	Variable  string

	// Locations (point, profile, timeseries, profile-depths) or area axes.
	Lat []float64
	Lon []float64

	// Path vertices and sample count.
	Path    []geo.LatLon
	Samples int

	// Depth selects a layer; AllDepths requests the whole water column
	// for timeseries, path and subset queries.
	Depth     domain.DepthSelector
	AllDepths bool
	Depths    []float64

	// Time range. End is only used by timeseries and subset queries.
	Start time.Time
	End   time.Time

	// Box for subset queries.
	South, North, West, East float64
}

// Validate checks if the request is valid.
func (r *QueryRequest) Validate() error {
	if r.Dataset == "" {
		return invalid("dataset must be provided")
	}
	if r.Variable == "" {
		return invalid("variable must be provided")
	}

	switch r.Operation {
	case OpPoint, OpProfile, OpTimeseries, OpProfileDepths:
		if len(r.Lat) == 0 || len(r.Lat) != len(r.Lon) {
			return invalid("lat and lon must be provided in pairs")
		}
		if len(r.Lat) > MaxPoints {
			return invalid("too many locations (%d) - at most %d", len(r.Lat), MaxPoints)
		}
		for i := range r.Lat {
			if err := validateLocation(r.Lat[i], r.Lon[i]); err != nil {
				return err
			}
		}
	case OpArea:
		if len(r.Lat) == 0 || len(r.Lon) == 0 {
			return invalid("lat and lon axes must be provided")
		}
		if len(r.Lat)*len(r.Lon) > MaxPoints*MaxPoints/10 {
			return invalid("area of %dx%d points is too large", len(r.Lat), len(r.Lon))
		}
	case OpPath:
		if len(r.Path) < 2 {
			return invalid("path needs at least two points")
		}
		for _, p := range r.Path {
			if err := validateLocation(p.Lat, p.Lon); err != nil {
				return err
			}
		}
		if r.Samples < 0 || r.Samples > MaxPathSamples {
			return invalid("samples must be between 0 and %d", MaxPathSamples)
		}
	case OpSubset:
		if r.South > r.North {
			return invalid("south must not be north of north")
		}
		if err := validateLocation(r.South, r.West); err != nil {
			return err
		}
		if err := validateLocation(r.North, r.East); err != nil {
			return err
		}
	default:
		return invalid("unknown operation %q", r.Operation)
	}

	if r.Operation == OpProfileDepths {
		if len(r.Depths) == 0 {
			return invalid("depths must be provided")
		}
		if len(r.Depths) > MaxTargetDepths {
			return invalid("too many target depths (%d) - at most %d", len(r.Depths), MaxTargetDepths)
		}
	}
	if !r.End.IsZero() && r.End.Before(r.Start) {
		return invalid("start time must not be after end time")
	}
	return nil
}

func validateLocation(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return invalid("latitude must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 360 {
		return invalid("longitude must be between -180 and 360")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Acquirer hands out shared model handles.
type Acquirer interface {
	Acquire(ctx context.Context, id string) (*opener.Handle, error)
}

// QueryUseCase orchestrates dataset queries.
type QueryUseCase struct {
	datasets []config.Dataset
	models   Acquirer
}

// NewQueryUseCase creates a new query use case.
func NewQueryUseCase(datasets []config.Dataset, models Acquirer) *QueryUseCase {
	return &QueryUseCase{datasets: datasets, models: models}
}

// Datasets lists the catalogue.
func (uc *QueryUseCase) Datasets() []DatasetInfo {
	out := make([]DatasetInfo, len(uc.datasets))
	for i, ds := range uc.datasets {
		out[i] = DatasetInfo{ID: ds.ID, Type: ds.Type}
	}
	return out
}

// Variables lists the variables of a dataset, calculated ones included.
func (uc *QueryUseCase) Variables(ctx context.Context, id string) ([]VariableInfo, error) {
	h, err := uc.models.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	vars := h.Variables().All()
	out := make([]VariableInfo, len(vars))
	for i, v := range vars {
		out[i] = newVariableInfo(v)
	}
	return out, nil
}

// Execute runs a query.
func (uc *QueryUseCase) Execute(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	h, err := uc.models.Acquire(ctx, req.Dataset)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	desc, ok := h.Variables().Get(req.Variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVariable, req.Variable)
	}
	resp := &QueryResponse{
		Dataset:   req.Dataset,
		Operation: req.Operation,
		Variable:  newVariableInfo(desc),
	}

	point := model.PointQuery{
		Lat:         req.Lat,
		Lon:         req.Lon,
		Depth:       req.Depth,
		Variable:    req.Variable,
		Start:       req.Start,
		ReturnDepth: true,
	}
	path := model.PathQuery{
		Points:   req.Path,
		Samples:  req.Samples,
		Depth:    req.Depth,
		Variable: req.Variable,
		Time:     req.Start,
	}
	if path.Samples == 0 {
		path.Samples = DefaultSamples
	}

	var res *model.Result
	switch req.Operation {
	case OpPoint:
		res, err = h.GetPoint(ctx, point)
	case OpProfile:
		res, err = h.GetProfile(ctx, point)
	case OpTimeseries:
		point.End = req.End
		if req.AllDepths {
			res, err = h.GetTimeseriesProfile(ctx, point)
		} else {
			res, err = h.GetTimeseriesPoint(ctx, point)
		}
	case OpProfileDepths:
		res, err = h.GetProfileDepths(ctx, point, req.Depths)
	case OpArea:
		res, err = h.GetArea(ctx, model.AreaQuery{
			Lat:      req.Lat,
			Lon:      req.Lon,
			Depth:    req.Depth,
			Variable: req.Variable,
			Time:     req.Start,
		})
	case OpPath:
		var pr *model.PathResult
		if req.AllDepths {
			pr, err = h.GetPathProfile(ctx, path)
		} else {
			pr, err = h.GetPath(ctx, path)
		}
		if err == nil {
			res = &pr.Result
			resp.Path = newPathInfo(pr.Path)
		}
	case OpSubset:
		var raw *model.RawResult
		raw, err = h.Subset(ctx, model.SubsetQuery{
			Variable:  req.Variable,
			South:     req.South,
			North:     req.North,
			West:      req.West,
			East:      req.East,
			Depth:     req.Depth,
			AllDepths: req.AllDepths,
			Start:     req.Start,
			End:       req.End,
		})
		if err == nil {
			resp.Values = NewSeries(raw.Values)
			resp.Lat = NewSeries(raw.Lat)
			resp.Lon = NewSeries(raw.Lon)
			resp.Times = formatTimes(raw.Times)
			return resp, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s/%s: %w", req.Dataset, req.Variable, err)
	}

	resp.Values = NewSeries(res.Values)
	if res.Depths != nil {
		resp.Depths = NewSeries(res.Depths)
	}
	resp.Times = formatTimes(res.Times)
	return resp, nil
}

func formatTimes(ts []time.Time) []string {
	if len(ts) == 0 {
		return nil
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.UTC().Format(time.RFC3339)
	}
	return out
}
