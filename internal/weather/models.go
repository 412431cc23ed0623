package weather

import (
	"time"
)

// SkyCondition is the normalized sky state reported by the provider.
type SkyCondition string

const (
	SkyClear        SkyCondition = "CLEAR"
	SkyPartlyCloudy SkyCondition = "PARTLY_CLOUDY"
	SkyOvercast     SkyCondition = "OVERCAST"
	SkySnow         SkyCondition = "SNOW"
	SkyUnknown      SkyCondition = "UNKNOWN"
)

// PrecipitationType is the normalized short-term precipitation form (PTY).
type PrecipitationType string

const (
	PrecipitationNone     PrecipitationType = "NONE"
	PrecipitationRain     PrecipitationType = "RAIN"
	PrecipitationRainSnow PrecipitationType = "RAIN_SNOW"
	PrecipitationSnow     PrecipitationType = "SNOW"
	PrecipitationUnknown  PrecipitationType = "UNKNOWN"
)

// WeatherType is the coarse weather bucket used for template matching.
type WeatherType string

const (
	WeatherClear  WeatherType = "CLEAR"
	WeatherCloudy WeatherType = "CLOUDY"
	WeatherSnow   WeatherType = "SNOW"
)

// WeatherTypes lists every WeatherType in catalog order.
var WeatherTypes = []WeatherType{WeatherClear, WeatherCloudy, WeatherSnow}

// TempCategory is the perceived temperature bucket.
type TempCategory string

const (
	TempChilly TempCategory = "CHILLY"
	TempCool   TempCategory = "COOL"
	TempMild   TempCategory = "MILD"
	TempHot    TempCategory = "HOT"
)

// TempCategories lists every TempCategory in catalog order.
var TempCategories = []TempCategory{TempChilly, TempCool, TempMild, TempHot}

// PrecipCategory is the precipitation intensity bucket.
type PrecipCategory string

const (
	PrecipNone  PrecipCategory = "NONE"
	PrecipLight PrecipCategory = "LIGHT"
	PrecipHeavy PrecipCategory = "HEAVY"
)

// PrecipCategories lists every PrecipCategory in catalog order.
var PrecipCategories = []PrecipCategory{PrecipNone, PrecipLight, PrecipHeavy}

// Grid is a cell of the provider's spatial grid.
type Grid struct {
	X int `json:"nx"`
	Y int `json:"ny"`
}

// RegionCode groups the medium-term provider codes shared by one or more regions.
type RegionCode struct {
	ID          int64  `json:"id"`
	LandRegCode string `json:"landRegCode"`
	TempRegCode string `json:"tempRegCode"`
	Name        string `json:"name"`
}

// Region is a tracked place with its grid cell and medium-term codes.
type Region struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	GridX        int        `json:"gridX"`
	GridY        int        `json:"gridY"`
	RegionCodeID int64      `json:"regionCodeId"`
	RegionCode   RegionCode `json:"regionCode"`
}

// Grid returns the region's provider grid cell.
func (r Region) Grid() Grid {
	return Grid{X: r.GridX, Y: r.GridY}
}

// ShortTermKey is the natural key of a short-term row.
type ShortTermKey struct {
	RegionID int64
	BaseDate time.Time
	BaseTime string
	FcstDate time.Time
	FcstTime string
}

// ShortTermForecast is one hourly short-term forecast row.
type ShortTermForecast struct {
	RegionID int64             `json:"regionId"`
	BaseDate time.Time         `json:"baseDate"`
	BaseTime string            `json:"baseTime"`
	FcstDate time.Time         `json:"fcstDate"`
	FcstTime string            `json:"fcstTime"`
	Tmp      float64           `json:"tmp"`
	Sky      SkyCondition      `json:"sky"`
	Pop      float64           `json:"pop"`
	Pty      PrecipitationType `json:"pty"`
	Pcp      float64           `json:"pcp"`
}

// Key returns the row's natural key.
func (f ShortTermForecast) Key() ShortTermKey {
	return ShortTermKey{
		RegionID: f.RegionID,
		BaseDate: f.BaseDate,
		BaseTime: f.BaseTime,
		FcstDate: f.FcstDate,
		FcstTime: f.FcstTime,
	}
}

// MediumTermKey is the natural key of a medium-term row.
type MediumTermKey struct {
	RegionID int64
	Tmfc     time.Time
	Tmef     time.Time
}

// MediumTermForecast is one daily medium-term forecast row.
// Tmfc is the publish date and Tmef the effective date.
type MediumTermForecast struct {
	RegionID int64        `json:"regionId"`
	Tmfc     time.Time    `json:"tmfc"`
	Tmef     time.Time    `json:"tmef"`
	Sky      SkyCondition `json:"sky"`
	Pop      float64      `json:"pop"`
	MinTmp   float64      `json:"minTmp"`
	MaxTmp   float64      `json:"maxTmp"`
}

// Key returns the row's natural key.
func (f MediumTermForecast) Key() MediumTermKey {
	return MediumTermKey{RegionID: f.RegionID, Tmfc: f.Tmfc, Tmef: f.Tmef}
}

// Template is a recommendation message keyed by a classification triple.
type Template struct {
	ID             int64          `json:"id"`
	Weather        WeatherType    `json:"weather"`
	TempCategory   TempCategory   `json:"tempCategory"`
	PrecipCategory PrecipCategory `json:"precipCategory"`
	Message        string         `json:"message"`
	Emoji          string         `json:"emoji"`
	Keywords       []string       `json:"keywords"`
}

// Recommendation is the daily recommendation for one region and date.
type Recommendation struct {
	ID           int64     `json:"id"`
	RegionID     int64     `json:"regionId"`
	RegionName   string    `json:"regionName,omitempty"`
	ForecastDate time.Time `json:"forecastDate"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Template     Template  `json:"template"`
}
