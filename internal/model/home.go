package model

import (
	"encoding/json"
	"maps"
	"slices"
)

// Location is the geographic position configured for the home.
type Location struct {
	City      string
	Latitude  string
	Longitude string
}

// Weather is the current weather snapshot reported for the home.
type Weather struct {
	Condition          string
	Temperature        float64
	MinTemperature     float64
	MaxTemperature     float64
	Humidity           float64
	WindSpeed          float64
	WindDirection      float64
	VaporAmount        float64
	HasTemperature     bool
	HasWindSpeedReport bool
}

// Home is the installation singleton.
type Home struct {
	ID               string
	CurrentAPVersion string
	Connected        bool
	DutyCycle        float64
	Location         Location
	Weather          Weather

	// FunctionalHomes is keyed by solution name, e.g. INDOOR_CLIMATE.
	FunctionalHomes map[string]Attributes

	Attrs Attributes
}

// NewHome builds the Home from its full JSON payload.
func NewHome(raw []byte) (*Home, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return newHomeFromMap(m)
}

func newHomeFromMap(m map[string]any) (*Home, error) {
	if err := validateFull(KindHome, m); err != nil {
		return nil, err
	}
	h := &Home{Attrs: Attributes(deepCopyMap(m))}
	h.ID = h.Attrs.str("id")
	h.sync()
	return h, nil
}

// ApplyPatch merges a partial JSON payload into the home.
func (h *Home) ApplyPatch(raw []byte) error {
	m, err := decodeObject(raw)
	if err != nil {
		return err
	}
	if err := validatePatch(KindHome, m); err != nil {
		return err
	}
	if err := checkID(KindHome, h.ID, m); err != nil {
		return err
	}
	mergeInto(h.Attrs, m)
	h.sync()
	return nil
}

// sync re-derives the typed fields from Attrs.
func (h *Home) sync() {
	a := h.Attrs
	a["id"] = h.ID
	h.CurrentAPVersion = a.str("currentAPVersion")
	h.Connected, _ = a.Bool("connected")
	h.DutyCycle, _ = a.Float("dutyCycle")

	h.Location = Location{}
	if loc, ok := a.Object("location"); ok {
		h.Location = Location{
			City:      loc.str("city"),
			Latitude:  loc.str("latitude"),
			Longitude: loc.str("longitude"),
		}
	}

	h.Weather = Weather{}
	if w, ok := a.Object("weather"); ok {
		h.Weather.Condition = w.str("weatherCondition")
		h.Weather.Temperature, h.Weather.HasTemperature = w.Float("temperature")
		h.Weather.MinTemperature, _ = w.Float("minTemperature")
		h.Weather.MaxTemperature, _ = w.Float("maxTemperature")
		h.Weather.Humidity, _ = w.Float("humidity")
		h.Weather.WindSpeed, h.Weather.HasWindSpeedReport = w.Float("windSpeed")
		h.Weather.WindDirection, _ = w.Float("windDirection")
		h.Weather.VaporAmount, _ = w.Float("vaporAmount")
	}

	h.FunctionalHomes = make(map[string]Attributes)
	if fh, ok := a.Object("functionalHomes"); ok {
		for solution, v := range fh {
			if obj, ok := v.(map[string]any); ok {
				h.FunctionalHomes[solution] = Attributes(obj)
			}
		}
	}
}

// FunctionalHome returns the sub-object for a solution domain.
func (h *Home) FunctionalHome(solution string) (Attributes, bool) {
	fh, ok := h.FunctionalHomes[solution]
	return fh, ok
}

// Solutions returns the functional home solution names in sorted order.
func (h *Home) Solutions() []string {
	return slices.Sorted(maps.Keys(h.FunctionalHomes))
}

// EntityID returns the home id.
func (h *Home) EntityID() string { return h.ID }

// Clone returns a deep copy of the home.
func (h *Home) Clone() *Home {
	if h == nil {
		return nil
	}
	cpy := *h
	cpy.Attrs = h.Attrs.Clone()
	// FunctionalHomes must alias the copied Attrs, so derive it again.
	cpy.sync()
	return &cpy
}

// MarshalJSON encodes the home in the cloud's wire shape.
func (h *Home) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(h.Attrs))
}
