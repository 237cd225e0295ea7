package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/adapter/store/memory"
	"go.ngs.io/oceangrid/internal/ndarray"
)

func eval(t *testing.T, equation string) float64 {
	t.Helper()
	e, err := Compile(equation, DefaultRegistry())
	require.NoError(t, err)
	out, err := e.Evaluate(Context{Source: memory.New()})
	require.NoError(t, err)
	require.True(t, out.IsScalar())
	return out.Value()
}

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		equation string
		want     float64
	}{
		{"2 + 3 ^ 4", 83},
		{"(2 + 3) ^ 4", 625},
		{"2 ^ 3 ^ 2", 512},
		{"-2 ^ 2", 4},
		{"2 * -3", -6},
		{"10 - 4 - 3", 3},
		{"12 / 3 / 2", 2},
		{"1 + 2 * 3", 7},
		{"1.5e2 + .5", 150.5},
		{"2 ^ -1", 0.5},
		{"- (1 + 2)", -3},
		{"pi", math.Pi},
		{"2 * e", 2 * math.E},
		{"sqrt(16) + abs(-2)", 6},
		{"pow(2, 10)", 1024},
		{"max(1, 7, 3)", 7},
		{"atan2(1, 1) * 4", math.Pi},
		{"log10(1000)", 3},
		{"ln(e)", 1},
	}
	for _, tt := range tests {
		t.Run(tt.equation, func(t *testing.T) {
			assert.InDelta(t, tt.want, eval(t, tt.equation), 1e-12)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		equation string
		want     error
	}{
		{"2 +", ErrSyntax},
		{"(1 + 2", ErrSyntax},
		{"1 2", ErrSyntax},
		{"3 $ 4", ErrSyntax},
		{"sqrt", ErrSyntax},
		{"frobnicate(1)", ErrUnknownFunction},
		{"pow(1)", ErrArity},
		{"magnitude(1, 2, 3)", ErrArity},
		{"sin(1,)", ErrSyntax},
	}
	for _, tt := range tests {
		_, err := Compile(tt.equation, DefaultRegistry())
		assert.ErrorIs(t, err, tt.want, tt.equation)
	}
}

func TestCompile_RecordsVariables(t *testing.T) {
	e, err := Compile("magnitude(vozocrtx, vomecrty) + vozocrtx * pi", DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"vozocrtx", "vomecrty"}, e.Variables())
	assert.Equal(t, "(magnitude(vozocrtx, vomecrty) + (vozocrtx * 3.141592653589793))", e.Tree())
}

func fixture() *memory.Dataset {
	temp := ndarray.New([]string{"time", "depth", "y", "x"}, []int{2, 3, 2, 2})
	for i := range temp.Data {
		temp.Data[i] = 270 + float64(i)
	}
	salt := ndarray.New([]string{"time", "depth", "y", "x"}, []int{2, 3, 2, 2})
	for i := range salt.Data {
		salt.Data[i] = 35
	}
	ssh := ndarray.New([]string{"time", "y", "x"}, []int{2, 2, 2})
	for i := range ssh.Data {
		ssh.Data[i] = float64(i) / 10
	}
	other := ndarray.New([]string{"time", "z", "y", "x"}, []int{2, 3, 2, 2})
	return memory.New().
		Add("votemper", temp, nil).
		Add("vosaline", salt, nil).
		Add("sossheig", ssh, nil).
		Add("odd", other, nil)
}

func TestEvaluate_IndexMapsDimensionsByName(t *testing.T) {
	e, err := Compile("votemper - 273.15 + sossheig", DefaultRegistry())
	require.NoError(t, err)

	dims, err := e.InferDims(fixture())
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "depth", "y", "x"}, dims.Names)
	assert.False(t, dims.Ambiguous)

	out, err := e.Evaluate(Context{
		Source: fixture(),
		Dims:   dims.Names,
		Index:  []ndarray.Range{ndarray.Index(1), ndarray.Span(0, 2), ndarray.Index(1), ndarray.All(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"depth", "x"}, out.Dims)
	assert.Equal(t, []int{2, 2}, out.Shape)
	// votemper[1,1,1,0] = 270 + 12 + 4 + 2 + 0, sossheig[1,1,0] = 0.6
	assert.InDelta(t, 270+18-273.15+0.6, out.At(1, 0), 1e-9)
}

func TestEvaluate_Deterministic(t *testing.T) {
	e, err := Compile("density(votemper - 273.15, vosaline) * sqrt(abs(sossheig))", DefaultRegistry())
	require.NoError(t, err)
	ctx := Context{Source: fixture()}
	first, err := e.Evaluate(ctx)
	require.NoError(t, err)
	second, err := e.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Dims, second.Dims)
	assert.Equal(t, first.Data, second.Data)
}

func TestEvaluate_AmbiguousDimensionsAreMasked(t *testing.T) {
	e, err := Compile("votemper + odd", DefaultRegistry())
	require.NoError(t, err)

	dims, err := e.InferDims(fixture())
	require.NoError(t, err)
	assert.True(t, dims.Ambiguous)

	out, err := e.Evaluate(Context{Source: fixture()})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2, 2}, out.Shape)
	for _, v := range out.Data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEvaluate_DimensionAbsentFromIndex(t *testing.T) {
	e, err := Compile("votemper * 2", DefaultRegistry())
	require.NoError(t, err)
	_, err = e.Evaluate(Context{
		Source: fixture(),
		Dims:   []string{"time", "y", "x"},
		Index:  []ndarray.Range{ndarray.Index(0), ndarray.Index(0), ndarray.Index(0)},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEvaluate_MissingVariablePropagatesNaN(t *testing.T) {
	temp := ndarray.Vector("x", []float64{1, math.NaN(), 3})
	ds := memory.New().Add("t", temp, nil)
	e, err := Compile("t * 2 + 1", DefaultRegistry())
	require.NoError(t, err)
	out, err := e.Evaluate(Context{Source: ds})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.Data[0])
	assert.True(t, math.IsNaN(out.Data[1]))

	mean, err := Compile("mean(t)", DefaultRegistry())
	require.NoError(t, err)
	out, err = mean.Evaluate(Context{Source: ds})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.Value())
}

func TestRegistry_RejectsDuplicatesAndConstants(t *testing.T) {
	one := unary("one", func(float64) float64 { return 1 })
	_, err := NewRegistry(one, one)
	assert.Error(t, err)

	_, err = NewRegistry(unary("pi", math.Sin))
	assert.Error(t, err)

	r, err := DefaultRegistry().With(one)
	require.NoError(t, err)
	_, ok := r.Lookup("one")
	assert.True(t, ok)
	_, ok = DefaultRegistry().Lookup("one")
	assert.False(t, ok)
}
