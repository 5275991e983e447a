package popup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-wfs/internal/feature"
)

func plot() *feature.Feature {
	return &feature.Feature{
		ID:         "1",
		Properties: map[string]any{"id": float64(1), "landuse": "RESIDENTIAL", "owner": "<Ada & Co>"},
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(Options{Fields: []string{" id ", "", "landuse"}})
	require.NoError(t, err)
	assert.Equal(t, TriggerHover, cfg.Trigger())
	assert.Equal(t, []string{"id", "landuse"}, cfg.Fields())

	_, err = NewConfig(Options{Trigger: "dblclick"})
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestPresentDefaultTemplate(t *testing.T) {
	cfg, err := NewConfig(Options{Fields: []string{"id", "landuse"}, Trigger: TriggerClick})
	require.NoError(t, err)

	c, ok := Present(plot(), cfg, Point{X: 100, Y: 40})
	require.True(t, ok)
	assert.Equal(t, "<p><strong>Id:</strong> 1</p><p><strong>Landuse:</strong> RESIDENTIAL</p>", c.HTML)
	assert.Equal(t, Point{X: 115, Y: 55}, c.Anchor)
}

func TestPresentEscapesValues(t *testing.T) {
	cfg, err := NewConfig(Options{Fields: []string{"owner"}})
	require.NoError(t, err)
	c, ok := Present(plot(), cfg, Point{})
	require.True(t, ok)
	assert.Equal(t, "<p><strong>Owner:</strong> &lt;Ada &amp; Co&gt;</p>", c.HTML)
}

func TestPresentHidden(t *testing.T) {
	withFields, err := NewConfig(Options{Fields: []string{"id"}})
	require.NoError(t, err)
	_, ok := Present(nil, withFields, Point{})
	assert.False(t, ok)

	noFields, err := NewConfig(Options{Template: func(*feature.Feature) string { return "x" }})
	require.NoError(t, err)
	_, ok = Present(plot(), noFields, Point{})
	assert.False(t, ok)
}

func TestTemplateFunctionReadsAnyAttribute(t *testing.T) {
	cfg, err := NewConfig(Options{
		Fields:   []string{"id"},
		Template: func(f *feature.Feature) string { return "owner=" + f.String("owner") },
	})
	require.NoError(t, err)
	c, ok := Present(plot(), cfg, Point{})
	require.True(t, ok)
	assert.Equal(t, "owner=<Ada & Co>", c.HTML)
}

func TestTemplateText(t *testing.T) {
	cfg, err := NewConfig(Options{
		Fields:       []string{"id"},
		TemplateText: `<div class="popup-content">{{.landuse}} / {{.owner}}</div>`,
	})
	require.NoError(t, err)
	c, ok := Present(plot(), cfg, Point{})
	require.True(t, ok)
	assert.Equal(t, `<div class="popup-content">RESIDENTIAL / &lt;Ada &amp; Co&gt;</div>`, c.HTML)

	_, err = NewConfig(Options{TemplateText: "{{.broken"})
	assert.Error(t, err)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Landuse", Label("landuse"))
	assert.Equal(t, "Id", Label("id"))
	assert.Equal(t, "PlotNo", Label("plotNo"))
}
