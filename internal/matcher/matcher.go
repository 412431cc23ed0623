// Package matcher indexes the template catalog by classification triple.
package matcher

import (
	"github.com/i474232898/weather-recommendation/internal/weather"
)

// Key is the composite classification key of a template.
type Key struct {
	Weather weather.WeatherType
	Temp    weather.TempCategory
	Precip  weather.PrecipCategory
}

// Index is an immutable lookup over one snapshot of the catalog.
type Index struct {
	templates map[Key]weather.Template
}

// NewIndex indexes templates. On duplicate keys the first template wins.
func NewIndex(templates []weather.Template) *Index {
	idx := &Index{templates: make(map[Key]weather.Template, len(templates))}
	for _, t := range templates {
		key := Key{Weather: t.Weather, Temp: t.TempCategory, Precip: t.PrecipCategory}
		if _, exists := idx.templates[key]; exists {
			continue
		}
		idx.templates[key] = t
	}
	return idx
}

// Len reports how many distinct keys are indexed.
func (i *Index) Len() int {
	return len(i.templates)
}

// Match returns the template for the exact key, else relaxes precipitation
// towards LIGHT and then NONE while keeping weather and temperature.
func (i *Index) Match(w weather.WeatherType, temp weather.TempCategory, precip weather.PrecipCategory) (weather.Template, bool) {
	for _, p := range fallbackChain(precip) {
		if t, ok := i.templates[Key{Weather: w, Temp: temp, Precip: p}]; ok {
			return t, true
		}
	}
	return weather.Template{}, false
}

func fallbackChain(precip weather.PrecipCategory) []weather.PrecipCategory {
	chain := []weather.PrecipCategory{precip}
	for _, p := range []weather.PrecipCategory{weather.PrecipLight, weather.PrecipNone} {
		if p != precip {
			chain = append(chain, p)
		}
	}
	return chain
}
