package layer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/interaction"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/style"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

type fit struct {
	bound orb.Bound
	opts  FitOptions
}

// fakeEngine hit-tests by pixel X: hits[x] is the feature ID under it.
type fakeEngine struct {
	mu       sync.Mutex
	sources  map[string]*feature.Collection
	styles   map[feature.ID]style.Spec
	cursor   string
	handlers map[interaction.Kind][]*Handler
	fits     []fit
	hits     map[float64]feature.ID
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sources:  map[string]*feature.Collection{},
		styles:   map[feature.ID]style.Spec{},
		handlers: map[interaction.Kind][]*Handler{},
		hits:     map[float64]feature.ID{},
	}
}

func (e *fakeEngine) AddLayer(name string, src *feature.Collection, fn style.Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[name] = src
}

func (e *fakeEngine) RemoveLayer(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sources, name)
}

func (e *fakeEngine) FeatureAt(layer string, ev MapEvent) *feature.Feature {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.hits[ev.Pixel.X]
	if !ok {
		return nil
	}
	f, _ := e.sources[layer].Lookup(id)
	return f
}

func (e *fakeEngine) SetStyle(f *feature.Feature, s style.Spec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.styles[f.ID] = s
}

func (e *fakeEngine) SetCursor(c string) { e.cursor = c }

func (e *fakeEngine) On(kind interaction.Kind, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	hp := &h
	e.handlers[kind] = append(e.handlers[kind], hp)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		hs := e.handlers[kind]
		for i, x := range hs {
			if x == hp {
				e.handlers[kind] = append(hs[:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (e *fakeEngine) Fit(b orb.Bound, opts FitOptions) {
	e.fits = append(e.fits, fit{b, opts})
}

func (e *fakeEngine) emit(kind interaction.Kind, x float64) {
	e.mu.Lock()
	hs := append([]*Handler(nil), e.handlers[kind]...)
	e.mu.Unlock()
	for _, h := range hs {
		(*h)(MapEvent{Kind: kind, Pixel: popup.Point{X: x, Y: 5}})
	}
}

type fakePopup struct {
	content *popup.Content
}

func (p *fakePopup) Show(c popup.Content) { p.content = &c }
func (p *fakePopup) Hide()                { p.content = nil }

const plotsJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"1","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"properties":{"id":1,"landuse":"RESIDENTIAL"}},
 {"type":"Feature","id":"2","geometry":{"type":"Polygon","coordinates":[[[2,2],[4,2],[4,4],[2,4],[2,2]]]},"properties":{"id":2,"landuse":"COMMERCIAL"}}
]}`

func staticFetcher(t *testing.T, body string) Fetcher {
	return FetcherFunc(func(ctx context.Context, req wfs.Request) (*geojson.FeatureCollection, error) {
		fc, err := geojson.UnmarshalFeatureCollection([]byte(body))
		require.NoError(t, err)
		return fc, nil
	})
}

func mustConfig(t *testing.T, o Options) Config {
	t.Helper()
	cfg, err := o.Normalize()
	require.NoError(t, err)
	return cfg
}

func TestLoadFitsOncePerLoad(t *testing.T) {
	engine := newFakeEngine()
	var ready int
	c := New(mustConfig(t, Options{Name: "plots", ZoomToLayer: true}), wfs.Request{}, Deps{
		Engine:  engine,
		Fetcher: staticFetcher(t, plotsJSON),
		OnReady: func(context.Context, *feature.Collection) { ready++ },
	})

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, Ready, c.Status())
	assert.Equal(t, 1, ready)
	require.Len(t, engine.fits, 1)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}, engine.fits[0].bound)
	assert.Equal(t, DefaultZoomDuration, engine.fits[0].opts.Duration)
	assert.Equal(t, float64(DefaultMaxZoom), engine.fits[0].opts.MaxZoom)

	extra, err := geojson.UnmarshalFeatureCollection([]byte(`{"type":"FeatureCollection","features":[
	 {"type":"Feature","id":"3","geometry":{"type":"Point","coordinates":[9,9]},"properties":{}}]}`))
	require.NoError(t, err)
	require.NoError(t, c.AddFeatures(extra))
	assert.Equal(t, 3, c.Source().Len())
	assert.Len(t, engine.fits, 1, "feature mutation must not refit")

	require.NoError(t, c.Load(context.Background()))
	assert.Len(t, engine.fits, 2)
}

func TestLoadFailureCallsOnError(t *testing.T) {
	engine := newFakeEngine()
	boom := &wfs.FetchError{URL: "http://wfs", Payload: "layer not found"}
	var errs []error
	var ready int
	c := New(mustConfig(t, Options{Name: "plots", ZoomToLayer: true}), wfs.Request{}, Deps{
		Engine: engine,
		Fetcher: FetcherFunc(func(context.Context, wfs.Request) (*geojson.FeatureCollection, error) {
			return nil, boom
		}),
		OnReady: func(context.Context, *feature.Collection) { ready++ },
		OnError: func(err error) { errs = append(errs, err) },
	})

	err := c.Load(context.Background())
	var fe *wfs.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Failed, c.Status())
	assert.Equal(t, []error{boom}, errs)
	assert.Zero(t, ready)
	assert.Empty(t, engine.fits)
	assert.Empty(t, engine.sources)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	engine := newFakeEngine()
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex

	slow := `{"type":"FeatureCollection","features":[
	 {"type":"Feature","id":"old","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`

	fetcher := FetcherFunc(func(ctx context.Context, req wfs.Request) (*geojson.FeatureCollection, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		body := plotsJSON
		if n == 1 {
			close(started)
			<-release
			body = slow
		}
		return geojson.UnmarshalFeatureCollection([]byte(body))
	})

	var errs []error
	c := New(mustConfig(t, Options{Name: "plots"}), wfs.Request{}, Deps{
		Engine:  engine,
		Fetcher: fetcher,
		OnError: func(err error) { errs = append(errs, err) },
	})

	first := make(chan error, 1)
	go func() { first <- c.Load(context.Background()) }()
	<-started

	require.NoError(t, c.Load(context.Background()))
	close(release)

	assert.ErrorIs(t, <-first, ErrSuperseded)
	assert.Empty(t, errs)
	_, ok := c.Source().Lookup("old")
	assert.False(t, ok, "stale response must not replace the newer source")
	assert.Equal(t, 2, c.Source().Len())
}

func TestClickSelectAndZoomToFeature(t *testing.T) {
	engine := newFakeEngine()
	engine.hits[10] = "1"
	engine.hits[20] = "2"
	pop := &fakePopup{}

	cfg := mustConfig(t, Options{
		Name:          "plots",
		ZoomToFeature: true,
		PopupFields:   []string{"id"},
		PopupTrigger:  popup.TriggerClick,
		Classify: map[string]style.Colors{
			"RESIDENTIAL": {Fill: "rgba(0, 255, 0, 0.5)", Boundary: "green"},
			"COMMERCIAL":  {Fill: "rgba(255, 0, 0, 0.5)", Boundary: "red"},
		},
	})
	c := New(cfg, wfs.Request{}, Deps{Engine: engine, Popup: pop, Fetcher: staticFetcher(t, plotsJSON)})

	engine.emit(interaction.Click, 10)
	assert.Empty(t, engine.styles, "events before Ready are ignored")

	require.NoError(t, c.Load(context.Background()))
	src := c.Source()
	one, _ := src.Lookup("1")
	two, _ := src.Lookup("2")

	engine.emit(interaction.Click, 10)
	assert.Equal(t, c.Resolver().Resolve(one, false, true), engine.styles["1"])
	require.NotNil(t, pop.content)
	assert.Contains(t, pop.content.HTML, "Id:</strong> 1")
	require.Len(t, engine.fits, 1)
	assert.Equal(t, one.Bound(), engine.fits[0].bound)

	engine.emit(interaction.Click, 20)
	assert.Equal(t, c.Resolver().Base(one), engine.styles["1"])
	assert.Equal(t, "green", engine.styles["1"].Boundary)
	assert.Equal(t, c.Resolver().Resolve(two, false, true), engine.styles["2"])
	assert.Len(t, engine.fits, 2)

	engine.emit(interaction.Click, 99)
	assert.Equal(t, c.Resolver().Base(one), engine.styles["1"])
	assert.Equal(t, c.Resolver().Base(two), engine.styles["2"])
	assert.Nil(t, pop.content)
	assert.Len(t, engine.fits, 2, "empty click does not zoom")

	state, hovered, selected := c.Interaction()
	assert.Equal(t, interaction.Idle, state)
	assert.Nil(t, hovered)
	assert.Nil(t, selected)
}

func TestZoomToFeatureWithoutSelection(t *testing.T) {
	engine := newFakeEngine()
	engine.hits[10] = "1"
	c := New(mustConfig(t, Options{Name: "plots", ZoomToFeature: true}), wfs.Request{}, Deps{
		Engine: engine, Fetcher: staticFetcher(t, plotsJSON),
	})
	require.NoError(t, c.Load(context.Background()))

	engine.emit(interaction.Click, 10)
	assert.Len(t, engine.fits, 1)
	assert.Empty(t, engine.styles, "hover trigger without selectOnClick does not select")
}

func TestHoverThroughEngine(t *testing.T) {
	engine := newFakeEngine()
	engine.hits[10] = "1"
	c := New(mustConfig(t, Options{Name: "plots", Cursor: "crosshair"}), wfs.Request{}, Deps{
		Engine: engine, Fetcher: staticFetcher(t, plotsJSON),
	})
	require.NoError(t, c.Load(context.Background()))
	one, _ := c.Source().Lookup("1")

	engine.emit(interaction.PointerMove, 10)
	assert.Equal(t, c.Resolver().Resolve(one, true, false), engine.styles["1"])
	assert.Equal(t, "crosshair", engine.cursor)

	engine.emit(interaction.PointerMove, 0)
	assert.Equal(t, c.Resolver().Base(one), engine.styles["1"])
	assert.Equal(t, interaction.DefaultCursor, engine.cursor)
}

func TestCloseDetaches(t *testing.T) {
	engine := newFakeEngine()
	engine.hits[10] = "1"
	c := New(mustConfig(t, Options{Name: "plots", ZoomToFeature: true}), wfs.Request{}, Deps{
		Engine: engine, Fetcher: staticFetcher(t, plotsJSON),
	})
	require.NoError(t, c.Load(context.Background()))
	c.Close()

	assert.Empty(t, engine.handlers[interaction.PointerMove])
	assert.Empty(t, engine.handlers[interaction.Click])
	assert.Empty(t, engine.sources)
	assert.Equal(t, Idle, c.Status())

	err := c.AddFeatures(&geojson.FeatureCollection{})
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, errors.Is(err, ErrSuperseded))
}

func TestFailedReloadResetsInteraction(t *testing.T) {
	engine := newFakeEngine()
	engine.hits[10] = "1"
	engine.hits[20] = "2"
	pop := &fakePopup{}

	var fail bool
	fetcher := FetcherFunc(func(ctx context.Context, req wfs.Request) (*geojson.FeatureCollection, error) {
		if fail {
			return nil, &wfs.FetchError{URL: "http://wfs", Status: 503}
		}
		return geojson.UnmarshalFeatureCollection([]byte(plotsJSON))
	})
	cfg := mustConfig(t, Options{Name: "plots", PopupFields: []string{"id"}, PopupTrigger: popup.TriggerClick})
	c := New(cfg, wfs.Request{}, Deps{Engine: engine, Popup: pop, Fetcher: fetcher})
	require.NoError(t, c.Load(context.Background()))
	one, _ := c.Source().Lookup("1")
	two, _ := c.Source().Lookup("2")

	engine.emit(interaction.Click, 10)
	require.NotNil(t, pop.content)
	assert.Equal(t, c.Resolver().Resolve(one, false, true), engine.styles["1"])

	fail = true
	var fe *wfs.FetchError
	require.ErrorAs(t, c.Load(context.Background()), &fe)
	assert.Equal(t, Failed, c.Status())
	assert.Nil(t, pop.content, "failed reload hides the popup")
	assert.Equal(t, c.Resolver().Base(one), engine.styles["1"])
	state, _, selected := c.Interaction()
	assert.Equal(t, interaction.Idle, state)
	assert.Nil(t, selected)

	engine.emit(interaction.Click, 20)
	assert.Equal(t, c.Resolver().Resolve(two, false, true), engine.styles["2"], "previous source stays interactive")
	require.NotNil(t, pop.content)

	engine.emit(interaction.Click, 99)
	assert.Nil(t, pop.content)
	assert.Equal(t, c.Resolver().Base(two), engine.styles["2"])
	state, _, selected = c.Interaction()
	assert.Equal(t, interaction.Idle, state)
	assert.Nil(t, selected)
}

func TestFetchThenCommit(t *testing.T) {
	engine := newFakeEngine()
	engine.hits[10] = "1"
	c := New(mustConfig(t, Options{Name: "plots", ZoomToLayer: true}), wfs.Request{}, Deps{
		Engine: engine, Fetcher: staticFetcher(t, plotsJSON),
	})
	require.NoError(t, c.Load(context.Background()))

	p := c.Fetch(context.Background())
	assert.Equal(t, Loading, c.Status())
	engine.emit(interaction.PointerMove, 10)
	assert.Contains(t, engine.styles, feature.ID("1"), "events are handled while a reload is pending")
	assert.Len(t, engine.fits, 1)

	require.NoError(t, c.Commit(context.Background(), p))
	assert.Equal(t, Ready, c.Status())
	assert.Len(t, engine.fits, 2)

	stale := c.Fetch(context.Background())
	require.NoError(t, c.Load(context.Background()))
	assert.ErrorIs(t, c.Commit(context.Background(), stale), ErrSuperseded)
	assert.Len(t, engine.fits, 3)
}
