// Package classifier reduces raw forecast rows for one region and date to a
// (WeatherType, TempCategory, PrecipCategory) classification.
package classifier

import (
	"sort"
	"time"

	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

// Source names the raw data kind a Result was derived from.
type Source string

const (
	SourceShortTerm  Source = "SHORT_TERM"
	SourceMediumTerm Source = "MEDIUM_TERM"
)

// Result is the classification of one region and date. Valid is false when no row was available.
type Result struct {
	WeatherType       weather.WeatherType    `json:"weatherType"`
	TempCategory      weather.TempCategory   `json:"tempCategory"`
	PrecipCategory    weather.PrecipCategory `json:"precipCategory"`
	Temperature       float64                `json:"temperature"`
	PrecipProbability float64                `json:"precipProbability"`
	PrecipAmount      float64                `json:"precipAmount"`
	Source            Source                 `json:"source"`
	Valid             bool                   `json:"valid"`
}

// timeScores ranks forecast hours; noon is the most representative of the day.
var timeScores = map[string]int{
	"1200": 100,
	"1500": 90,
	"1800": 85,
	"0900": 80,
	"2100": 75,
	"0600": 70,
}

const defaultTimeScore = 50

func timeScore(fcstTime string) int {
	if s, ok := timeScores[fcstTime]; ok {
		return s
	}
	return defaultTimeScore
}

// Classifier applies configured thresholds. It holds no mutable state.
type Classifier struct {
	cfg config.Classification
}

func New(cfg config.Classification) *Classifier {
	return &Classifier{cfg: cfg}
}

// ClassifyShortTerm picks the representative short-term row for date and classifies it.
func (c *Classifier) ClassifyShortTerm(rows []weather.ShortTermForecast, date time.Time) Result {
	if len(rows) == 0 {
		return Result{}
	}

	rep, ok := representativeShortTerm(rows, date)
	if !ok {
		rep = rows[0]
	}

	return Result{
		WeatherType:       shortTermWeatherType(rep),
		TempCategory:      c.ClassifyTemp(rep.Tmp),
		PrecipCategory:    c.ClassifyPrecip(rep.Pop, rep.Pcp),
		Temperature:       rep.Tmp,
		PrecipProbability: rep.Pop,
		PrecipAmount:      rep.Pcp,
		Source:            SourceShortTerm,
		Valid:             true,
	}
}

// ClassifyMediumTerm picks the latest-published medium-term row for date and classifies it.
func (c *Classifier) ClassifyMediumTerm(rows []weather.MediumTermForecast, date time.Time) Result {
	if len(rows) == 0 {
		return Result{}
	}

	rep, ok := representativeMediumTerm(rows, date)
	if !ok {
		rep = rows[0]
	}

	return Result{
		WeatherType:       mediumTermWeatherType(rep.Sky),
		TempCategory:      c.ClassifyTempRange(rep.MinTmp, rep.MaxTmp),
		PrecipCategory:    c.ClassifyPrecip(rep.Pop, 0),
		Temperature:       (rep.MinTmp + rep.MaxTmp) / 2,
		PrecipProbability: rep.Pop,
		Source:            SourceMediumTerm,
		Valid:             true,
	}
}

// ClassifyTemp buckets a temperature. Lower boundaries are inclusive for COOL only.
func (c *Classifier) ClassifyTemp(t float64) weather.TempCategory {
	switch {
	case t < c.cfg.ChillyCoolBoundary:
		return weather.TempChilly
	case t <= c.cfg.CoolMildBoundary:
		return weather.TempCool
	case t <= c.cfg.MildHotBoundary:
		return weather.TempMild
	default:
		return weather.TempHot
	}
}

// ClassifyTempRange is HOT whenever the maximum is hot, otherwise the midpoint decides.
func (c *Classifier) ClassifyTempRange(minTmp, maxTmp float64) weather.TempCategory {
	if maxTmp > c.cfg.MildHotBoundary {
		return weather.TempHot
	}
	return c.ClassifyTemp((minTmp + maxTmp) / 2)
}

// ClassifyPrecip lets the amount dominate the probability.
func (c *Classifier) ClassifyPrecip(pop, pcp float64) weather.PrecipCategory {
	switch {
	case pcp >= c.cfg.HeavyAmountThreshold:
		return weather.PrecipHeavy
	case pcp >= c.cfg.LightAmountThreshold:
		return weather.PrecipLight
	case pop >= c.cfg.LightHeavyProbability:
		return weather.PrecipHeavy
	case pop >= c.cfg.NoneLightProbability:
		return weather.PrecipLight
	default:
		return weather.PrecipNone
	}
}

func representativeShortTerm(rows []weather.ShortTermForecast, date time.Time) (weather.ShortTermForecast, bool) {
	var candidates []weather.ShortTermForecast
	for _, r := range rows {
		if r.FcstDate.Equal(date) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return weather.ShortTermForecast{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.BaseDate.Equal(b.BaseDate) {
			return a.BaseDate.After(b.BaseDate)
		}
		if a.BaseTime != b.BaseTime {
			return a.BaseTime > b.BaseTime
		}
		return timeScore(a.FcstTime) > timeScore(b.FcstTime)
	})
	return candidates[0], true
}

func representativeMediumTerm(rows []weather.MediumTermForecast, date time.Time) (weather.MediumTermForecast, bool) {
	var candidates []weather.MediumTermForecast
	for _, r := range rows {
		if r.Tmef.Equal(date) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return weather.MediumTermForecast{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Tmfc.After(candidates[j].Tmfc)
	})
	return candidates[0], true
}

func shortTermWeatherType(r weather.ShortTermForecast) weather.WeatherType {
	switch {
	case r.Pty == weather.PrecipitationSnow || r.Pty == weather.PrecipitationRainSnow:
		return weather.WeatherSnow
	case r.Sky == weather.SkyClear:
		return weather.WeatherClear
	default:
		return weather.WeatherCloudy
	}
}

func mediumTermWeatherType(sky weather.SkyCondition) weather.WeatherType {
	switch sky {
	case weather.SkyClear:
		return weather.WeatherClear
	case weather.SkySnow:
		return weather.WeatherSnow
	default:
		return weather.WeatherCloudy
	}
}
