package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

func tpl(id int64, w weather.WeatherType, temp weather.TempCategory, precip weather.PrecipCategory) weather.Template {
	return weather.Template{ID: id, Weather: w, TempCategory: temp, PrecipCategory: precip}
}

func TestMatch_Fallback(t *testing.T) {
	idx := NewIndex([]weather.Template{
		tpl(1, weather.WeatherClear, weather.TempMild, weather.PrecipNone),
		tpl(2, weather.WeatherClear, weather.TempMild, weather.PrecipLight),
	})

	got, ok := idx.Match(weather.WeatherClear, weather.TempMild, weather.PrecipHeavy)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.ID)

	_, ok = idx.Match(weather.WeatherCloudy, weather.TempMild, weather.PrecipHeavy)
	assert.False(t, ok)
}

func TestMatch_ExactAndNoneFallback(t *testing.T) {
	idx := NewIndex([]weather.Template{
		tpl(1, weather.WeatherSnow, weather.TempChilly, weather.PrecipNone),
		tpl(3, weather.WeatherSnow, weather.TempChilly, weather.PrecipHeavy),
	})

	got, ok := idx.Match(weather.WeatherSnow, weather.TempChilly, weather.PrecipHeavy)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.ID)

	// LIGHT is missing, so LIGHT falls straight to NONE
	got, ok = idx.Match(weather.WeatherSnow, weather.TempChilly, weather.PrecipLight)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)

	// temperature is never relaxed
	_, ok = idx.Match(weather.WeatherSnow, weather.TempCool, weather.PrecipNone)
	assert.False(t, ok)
}

func TestNewIndex_FirstWins(t *testing.T) {
	idx := NewIndex([]weather.Template{
		tpl(7, weather.WeatherClear, weather.TempHot, weather.PrecipNone),
		tpl(8, weather.WeatherClear, weather.TempHot, weather.PrecipNone),
	})

	assert.Equal(t, 1, idx.Len())
	got, ok := idx.Match(weather.WeatherClear, weather.TempHot, weather.PrecipNone)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.ID)
}

func TestFallbackChain(t *testing.T) {
	assert.Equal(t, []weather.PrecipCategory{weather.PrecipHeavy, weather.PrecipLight, weather.PrecipNone}, fallbackChain(weather.PrecipHeavy))
	assert.Equal(t, []weather.PrecipCategory{weather.PrecipLight, weather.PrecipNone}, fallbackChain(weather.PrecipLight))
	assert.Equal(t, []weather.PrecipCategory{weather.PrecipNone, weather.PrecipLight}, fallbackChain(weather.PrecipNone))
}
