// Package opener turns catalogue entries into open model handles. Handles
// are shared per dataset, opened at most once concurrently, and closed
// when evicted from the bounded cache and no longer in use.
package opener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/adapter/store/calculated"
	"go.ngs.io/oceangrid/internal/adapter/store/netcdf"
	"go.ngs.io/oceangrid/internal/config"
	"go.ngs.io/oceangrid/internal/model"
)

// DefaultSize is the number of handles kept open.
const DefaultSize = 8

// ErrUnknownDataset indicates a dataset id missing from the catalogue.
var ErrUnknownDataset = errors.New("opener: unknown dataset")

// OpenFunc opens the raw dataset behind a catalogue entry.
type OpenFunc func(ds config.Dataset) (store.Dataset, error)

// OpenNetCDF opens catalogue entries as NetCDF files.
func OpenNetCDF(log logrus.FieldLogger) OpenFunc {
	return func(ds config.Dataset) (store.Dataset, error) {
		return netcdf.Open(ds.URL, netcdf.Options{
			TimeTolerance: ds.TimeTolerance,
			Logger:        log.WithField("dataset", ds.ID),
		})
	}
}

// Options configure an Opener.
type Options struct {
	Size   int
	Open   OpenFunc
	Model  model.Options
	Logger logrus.FieldLogger
}

type entry struct {
	m       model.Model
	refs    int
	evicted bool
	closed  bool
}

// Opener memoizes open handles by dataset id.
type Opener struct {
	catalogue map[string]config.Dataset
	open      OpenFunc
	modelOpts model.Options
	log       logrus.FieldLogger

	group singleflight.Group

	mu      sync.Mutex
	entries *lru.Cache
}

// New returns an Opener over the catalogue.
func New(datasets []config.Dataset, opts Options) *Opener {
	if opts.Size < 1 {
		opts.Size = DefaultSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Open == nil {
		opts.Open = OpenNetCDF(opts.Logger)
	}
	o := &Opener{
		catalogue: make(map[string]config.Dataset, len(datasets)),
		open:      opts.Open,
		modelOpts: opts.Model,
		log:       opts.Logger,
		entries:   lru.New(opts.Size),
	}
	for _, ds := range datasets {
		o.catalogue[ds.ID] = ds
	}
	o.entries.OnEvicted = func(key lru.Key, value interface{}) {
		e := value.(*entry)
		e.evicted = true
		if e.refs == 0 {
			o.closeEntry(key, e)
		}
	}
	return o
}

// Dataset returns the catalogue entry for id.
func (o *Opener) Dataset(id string) (config.Dataset, bool) {
	ds, ok := o.catalogue[id]
	return ds, ok
}

// Handle is a reference to a shared model. Close releases the reference;
// the model stays open while it is cached or referenced.
type Handle struct {
	model.Model
	once    sync.Once
	release func()
}

// Close releases the handle.
func (h *Handle) Close() error {
	h.once.Do(h.release)
	return nil
}

// Acquire returns a handle on dataset id, opening it if needed.
func (o *Opener) Acquire(ctx context.Context, id string) (*Handle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if h := o.cached(id); h != nil {
			return h, nil
		}
		_, err, _ := o.group.Do(id, func() (interface{}, error) {
			return nil, o.load(id)
		})
		if err != nil {
			return nil, err
		}
		// The entry may have been evicted before this caller took a
		// reference; retry.
	}
}

func (o *Opener) cached(id string) *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.entries.Get(id)
	if !ok {
		return nil
	}
	e := v.(*entry)
	e.refs++
	return &Handle{Model: e.m, release: func() { o.releaseEntry(id, e) }}
}

func (o *Opener) load(id string) error {
	o.mu.Lock()
	_, ok := o.entries.Get(id)
	o.mu.Unlock()
	if ok {
		return nil
	}

	ds, ok := o.catalogue[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	m, err := o.build(ds)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.entries.Add(id, &entry{m: m})
	o.mu.Unlock()
	return nil
}

// build opens ds and wraps it in its calculated variables and grid adapter.
func (o *Opener) build(ds config.Dataset) (model.Model, error) {
	raw, err := o.open(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", ds.ID, err)
	}
	log := o.log.WithField("dataset", ds.ID)
	wrapped := calculated.New(raw, ds.Variables, calculated.WithLogger(log))

	opts := o.modelOpts
	opts.Logger = log
	if ds.Method != "" {
		opts.Method = ds.Method
	}
	if ds.Neighbours > 0 {
		opts.Neighbours = ds.Neighbours
	}

	kind := ds.Type
	if kind == "" {
		kind = Detect(raw)
	}
	log.WithFields(logrus.Fields{"url": ds.URL, "type": kind}).Info("opened dataset")
	if kind == config.KindMesh {
		return model.NewMesh(wrapped, opts), nil
	}
	return model.NewStructured(wrapped, opts), nil
}

// Detect guesses the grid kind of ds: sigma layers with bathymetry on nodes
// indicate a mesh.
func Detect(ds store.Dataset) string {
	if ds.HasVariable("siglay") && ds.HasVariable("h") && ds.HasCoord("lat") && ds.HasCoord("lon") {
		return config.KindMesh
	}
	return config.KindStructured
}

func (o *Opener) releaseEntry(id string, e *entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.evicted {
		o.closeEntry(id, e)
	}
}

// closeEntry closes e. The caller holds o.mu.
func (o *Opener) closeEntry(key lru.Key, e *entry) {
	if e.closed {
		return
	}
	e.closed = true
	if err := e.m.Close(); err != nil {
		o.log.WithError(err).WithField("dataset", key).Warn("failed to close dataset")
		return
	}
	o.log.WithField("dataset", key).Debug("closed dataset")
}

// Close evicts every cached handle. Handles still referenced are closed
// when released.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries.Clear()
	return nil
}
