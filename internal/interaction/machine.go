// Package interaction decides, for every pointer event, which feature is
// hovered, which is selected, what each must look like and what popup is
// shown.
//
// A Machine handles one event to completion before the next. It is not
// safe for concurrent use; the owner serialises events.
package interaction

import (
	"fmt"
	"iter"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/style"
)

// Kind is the kind of pointer event.
type Kind int

const (
	PointerMove Kind = iota
	Click
)

func (k Kind) String() string {
	switch k {
	case PointerMove:
		return "pointermove"
	case Click:
		return "singleclick"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the engine event names.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "pointermove", "hover":
		return PointerMove, nil
	case "singleclick", "click":
		return Click, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is a pointer event with the feature under the cursor already
// resolved by the rendering engine. Feature is nil over empty map.
type Event struct {
	Kind       Kind
	Feature    *feature.Feature
	Pixel      popup.Point
	Coordinate orb.Point
}

// State summarises the machine.
type State int

const (
	Idle State = iota
	Hovering
	Selected
	HoveringSelected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Hovering:
		return "hovering"
	case Selected:
		return "selected"
	case HoveringSelected:
		return "hovering_selected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source is the feature set events are checked against.
type Source interface {
	Contains(f *feature.Feature) bool
	All() iter.Seq[*feature.Feature]
}

// Surface is what the machine drives: per-feature styles, the popup
// element and the map cursor.
type Surface interface {
	SetStyle(f *feature.Feature, s style.Spec)
	ShowPopup(c popup.Content)
	HidePopup()
	SetCursor(cursor string)
}

// DefaultCursor is the cursor over empty map.
const DefaultCursor = "default"

// Config configures a Machine.
type Config struct {
	Resolver style.Resolver
	Popup    popup.Config
	// Cursor is shown while a feature is hovered.
	Cursor string
	// SelectOnClick enables click selection while the popup trigger is
	// hover. Click selection is always on for the click trigger.
	SelectOnClick bool
}

// Machine owns the hovered and selected features of one layer.
type Machine struct {
	cfg     Config
	source  Source
	surface Surface
	log     *zap.Logger

	hovered  *feature.Feature
	selected *feature.Feature

	// applied is the last style written per feature; writes of an equal
	// style are skipped.
	applied map[*feature.Feature]style.Spec
}

// New creates a machine in the Idle state.
func New(cfg Config, source Source, surface Surface, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Cursor == "" {
		cfg.Cursor = "pointer"
	}
	return &Machine{
		cfg:     cfg,
		source:  source,
		surface: surface,
		log:     log,
		applied: make(map[*feature.Feature]style.Spec),
	}
}

// Hovered returns the hovered feature, or nil.
func (m *Machine) Hovered() *feature.Feature { return m.hovered }

// Selected returns the selected feature, or nil.
func (m *Machine) Selected() *feature.Feature { return m.selected }

// State reports the current state.
func (m *Machine) State() State {
	switch {
	case m.hovered != nil && m.selected != nil:
		return HoveringSelected
	case m.selected != nil:
		return Selected
	case m.hovered != nil:
		return Hovering
	default:
		return Idle
	}
}

// ClickEnabled reports whether click events change the selection.
func (m *Machine) ClickEnabled() bool {
	return m.cfg.SelectOnClick || m.cfg.Popup.Trigger() == popup.TriggerClick
}

// HandleEvent applies one event. It never fails: stale features are
// treated as empty map and a panic while handling resets the machine.
func (m *Machine) HandleEvent(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("interaction handler panicked, resetting",
				zap.Stringer("event", ev.Kind),
				zap.Any("panic", r))
			m.Reset()
		}
	}()

	if ev.Feature != nil && !m.source.Contains(ev.Feature) {
		m.log.Debug("stale feature reference",
			zap.Stringer("event", ev.Kind),
			zap.String("feature", string(ev.Feature.ID)))
		ev.Feature = nil
	}

	switch ev.Kind {
	case PointerMove:
		m.pointerMove(ev)
	case Click:
		if m.ClickEnabled() {
			m.click(ev)
		}
	}
}

func (m *Machine) pointerMove(ev Event) {
	f := ev.Feature
	if f == m.hovered {
		return
	}

	if prev := m.hovered; prev != nil && m.source.Contains(prev) {
		if prev == m.selected {
			m.apply(prev, false, true)
		} else {
			m.apply(prev, false, false)
		}
	}
	if f != nil && f != m.selected {
		m.apply(f, true, false)
	}
	m.hovered = f

	if f != nil {
		m.surface.SetCursor(m.cfg.Cursor)
	} else {
		m.surface.SetCursor(DefaultCursor)
	}

	if m.cfg.Popup.Trigger() == popup.TriggerHover {
		m.showOrHide(f, ev.Pixel)
	}
}

func (m *Machine) click(ev Event) {
	f := ev.Feature
	if f != nil && f == m.selected {
		return
	}

	if prev := m.selected; prev != nil && prev != f && m.source.Contains(prev) {
		m.apply(prev, false, false)
	}

	if f == nil {
		m.selected = nil
		m.hovered = nil
		m.surface.HidePopup()
		for each := range m.source.All() {
			m.apply(each, false, false)
		}
		return
	}

	m.apply(f, false, true)
	m.selected = f
	if m.cfg.Popup.Trigger() == popup.TriggerClick {
		m.showOrHide(f, ev.Pixel)
	}
}

func (m *Machine) showOrHide(f *feature.Feature, pixel popup.Point) {
	if c, ok := popup.Present(f, m.cfg.Popup, pixel); ok {
		m.surface.ShowPopup(c)
		return
	}
	m.surface.HidePopup()
}

func (m *Machine) apply(f *feature.Feature, hovered, selected bool) {
	spec := m.cfg.Resolver.Resolve(f, hovered, selected)
	if last, ok := m.applied[f]; ok && last == spec {
		return
	}
	m.applied[f] = spec
	m.surface.SetStyle(f, spec)
}

// Reset returns to Idle: nothing highlighted, popup hidden, default
// cursor.
func (m *Machine) Reset() {
	m.hovered = nil
	m.selected = nil
	m.surface.HidePopup()
	m.surface.SetCursor(DefaultCursor)
	for f := range m.source.All() {
		m.apply(f, false, false)
	}
}

// Rebind switches the machine to a new source, as after a reload. State
// is cleared without restyling the old features.
func (m *Machine) Rebind(source Source) {
	m.source = source
	m.hovered = nil
	m.selected = nil
	m.applied = make(map[*feature.Feature]style.Spec)
	m.surface.HidePopup()
	m.surface.SetCursor(DefaultCursor)
}
