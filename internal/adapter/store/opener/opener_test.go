package opener

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/adapter/store/calculated"
	"go.ngs.io/oceangrid/internal/adapter/store/memory"
	"go.ngs.io/oceangrid/internal/config"
	"go.ngs.io/oceangrid/internal/model"
	"go.ngs.io/oceangrid/internal/ndarray"
)

type fakeOpen struct {
	opens atomic.Int32
	mu    sync.Mutex
	sets  map[string]*memory.Dataset
}

func (f *fakeOpen) open(ds config.Dataset) (store.Dataset, error) {
	f.opens.Add(1)
	d := memory.New().
		Add("sossheig", ndarray.Full([]string{"y", "x"}, []int{2, 2}, 0.25), map[string]any{"units": "m"})
	f.mu.Lock()
	if f.sets == nil {
		f.sets = make(map[string]*memory.Dataset)
	}
	f.sets[ds.ID] = d
	f.mu.Unlock()
	return d, nil
}

func (f *fakeOpen) closed(id string) bool {
	f.mu.Lock()
	d := f.sets[id]
	f.mu.Unlock()
	_, err := d.Variable("sossheig")
	return err != nil
}

func catalogue() []config.Dataset {
	return []config.Dataset{
		{ID: "a", URL: "a.nc", Variables: map[string]calculated.Definition{
			"ssh_cm": {Equation: "sossheig * 100", Units: "cm"},
		}},
		{ID: "b", URL: "b.nc", Type: config.KindMesh},
		{ID: "c", URL: "c.nc"},
	}
}

func TestAcquire_SharesHandles(t *testing.T) {
	f := &fakeOpen{}
	o := New(catalogue(), Options{Open: f.open})

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := o.Acquire(context.Background(), "a")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.opens.Load())
	for _, h := range handles {
		assert.Same(t, handles[0].Model, h.Model)
		require.NoError(t, h.Close())
	}
}

func TestAcquire_WrapsCalculatedAndKind(t *testing.T) {
	f := &fakeOpen{}
	o := New(catalogue(), Options{Open: f.open})

	h, err := o.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer h.Close()
	_, ok := h.Model.(*model.Structured)
	assert.True(t, ok)
	assert.True(t, h.Variables().Contains("ssh_cm"))

	mesh, err := o.Acquire(context.Background(), "b")
	require.NoError(t, err)
	defer mesh.Close()
	_, ok = mesh.Model.(*model.Mesh)
	assert.True(t, ok)
}

func TestAcquire_UnknownDataset(t *testing.T) {
	o := New(catalogue(), Options{Open: (&fakeOpen{}).open})
	_, err := o.Acquire(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownDataset)
}

func TestEviction_WaitsForRelease(t *testing.T) {
	f := &fakeOpen{}
	o := New(catalogue(), Options{Size: 1, Open: f.open})

	a, err := o.Acquire(context.Background(), "a")
	require.NoError(t, err)

	c, err := o.Acquire(context.Background(), "c")
	require.NoError(t, err)
	// "a" is evicted but still referenced.
	assert.False(t, f.closed("a"))

	require.NoError(t, a.Close())
	assert.True(t, f.closed("a"))
	// Double close releases once.
	require.NoError(t, a.Close())

	require.NoError(t, c.Close())
	assert.False(t, f.closed("c"))
	require.NoError(t, o.Close())
	assert.True(t, f.closed("c"))
}

func TestDetect(t *testing.T) {
	mesh := memory.New().
		Add("lat", ndarray.Vector("node", []float64{1}), nil).
		Add("lon", ndarray.Vector("node", []float64{1}), nil).
		Add("h", ndarray.Vector("node", []float64{1}), nil).
		Add("siglay", ndarray.Full([]string{"siglay", "node"}, []int{2, 1}, -0.5), nil)
	assert.Equal(t, config.KindMesh, Detect(mesh))
	assert.Equal(t, config.KindStructured, Detect(memory.New()))
}
