package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// RegionCode is the persisted medium-term code pair.
type RegionCode struct {
	ID          int64  `gorm:"primaryKey"`
	LandRegCode string `gorm:"size:16;not null;uniqueIndex"`
	TempRegCode string `gorm:"size:16;not null;uniqueIndex"`
	Name        string `gorm:"size:100;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Region is a tracked place. Soft-deleted regions are inactive.
type Region struct {
	ID           int64   `gorm:"primaryKey"`
	Name         string  `gorm:"size:100;not null;uniqueIndex"`
	Latitude     float64 `gorm:"type:decimal(9,6);not null"`
	Longitude    float64 `gorm:"type:decimal(9,6);not null"`
	GridX        int     `gorm:"not null"`
	GridY        int     `gorm:"not null"`
	RegionCodeID int64   `gorm:"not null;index"`
	RegionCode   RegionCode
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// ShortTermForecast is a raw hourly row.
type ShortTermForecast struct {
	ID        int64     `gorm:"primaryKey"`
	RegionID  int64     `gorm:"not null;uniqueIndex:uk_short_term_key,priority:1"`
	BaseDate  time.Time `gorm:"not null;uniqueIndex:uk_short_term_key,priority:2;index"`
	BaseTime  string    `gorm:"size:4;not null;uniqueIndex:uk_short_term_key,priority:3"`
	FcstDate  time.Time `gorm:"not null;uniqueIndex:uk_short_term_key,priority:4"`
	FcstTime  string    `gorm:"size:4;not null;uniqueIndex:uk_short_term_key,priority:5"`
	Tmp       float64
	Sky       string `gorm:"size:20"`
	Pop       float64
	Pty       string `gorm:"size:20"`
	Pcp       float64
	CreatedAt time.Time
}

// MediumTermForecast is a raw daily row.
type MediumTermForecast struct {
	ID        int64     `gorm:"primaryKey"`
	RegionID  int64     `gorm:"not null;uniqueIndex:uk_medium_term_key,priority:1"`
	Tmfc      time.Time `gorm:"not null;uniqueIndex:uk_medium_term_key,priority:2;index"`
	Tmef      time.Time `gorm:"not null;uniqueIndex:uk_medium_term_key,priority:3"`
	Sky       string    `gorm:"size:20"`
	Pop       float64
	MinTmp    float64
	MaxTmp    float64
	CreatedAt time.Time
}

// Keyword is a tag attached to templates.
type Keyword struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"size:50;not null;uniqueIndex"`
}

// WeatherTemplate is one cell of the recommendation catalog.
type WeatherTemplate struct {
	ID             int64     `gorm:"primaryKey"`
	Weather        string    `gorm:"size:20;not null;uniqueIndex:uk_template_key,priority:1"`
	TempCategory   string    `gorm:"size:20;not null;uniqueIndex:uk_template_key,priority:2"`
	PrecipCategory string    `gorm:"size:20;not null;uniqueIndex:uk_template_key,priority:3"`
	Message        string    `gorm:"size:500;not null"`
	Emoji          string    `gorm:"size:20"`
	Keywords       []Keyword `gorm:"many2many:template_keyword"`
}

// DailyRecommendation links a region and date to a template.
type DailyRecommendation struct {
	ID                int64     `gorm:"primaryKey"`
	RegionID          int64     `gorm:"not null;uniqueIndex:uk_recommendation_key,priority:1"`
	ForecastDate      time.Time `gorm:"not null;uniqueIndex:uk_recommendation_key,priority:2;index"`
	WeatherTemplateID int64     `gorm:"not null"`
	WeatherTemplate   WeatherTemplate
	Region            Region
	UpdatedAt         time.Time
}

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&RegionCode{},
		&Region{},
		&ShortTermForecast{},
		&MediumTermForecast{},
		&Keyword{},
		&WeatherTemplate{},
		&DailyRecommendation{},
	}
}

func (m RegionCode) toDomain() weather.RegionCode {
	return weather.RegionCode{
		ID:          m.ID,
		LandRegCode: m.LandRegCode,
		TempRegCode: m.TempRegCode,
		Name:        m.Name,
	}
}

func (m Region) toDomain() weather.Region {
	return weather.Region{
		ID:           m.ID,
		Name:         m.Name,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		GridX:        m.GridX,
		GridY:        m.GridY,
		RegionCodeID: m.RegionCodeID,
		RegionCode:   m.RegionCode.toDomain(),
	}
}

func (m ShortTermForecast) toDomain() weather.ShortTermForecast {
	return weather.ShortTermForecast{
		RegionID: m.RegionID,
		BaseDate: m.BaseDate.UTC(),
		BaseTime: m.BaseTime,
		FcstDate: m.FcstDate.UTC(),
		FcstTime: m.FcstTime,
		Tmp:      m.Tmp,
		Sky:      weather.SkyCondition(m.Sky),
		Pop:      m.Pop,
		Pty:      weather.PrecipitationType(m.Pty),
		Pcp:      m.Pcp,
	}
}

func shortTermFromDomain(f weather.ShortTermForecast) ShortTermForecast {
	return ShortTermForecast{
		RegionID: f.RegionID,
		BaseDate: f.BaseDate,
		BaseTime: f.BaseTime,
		FcstDate: f.FcstDate,
		FcstTime: f.FcstTime,
		Tmp:      f.Tmp,
		Sky:      string(f.Sky),
		Pop:      f.Pop,
		Pty:      string(f.Pty),
		Pcp:      f.Pcp,
	}
}

func (m MediumTermForecast) toDomain() weather.MediumTermForecast {
	return weather.MediumTermForecast{
		RegionID: m.RegionID,
		Tmfc:     m.Tmfc.UTC(),
		Tmef:     m.Tmef.UTC(),
		Sky:      weather.SkyCondition(m.Sky),
		Pop:      m.Pop,
		MinTmp:   m.MinTmp,
		MaxTmp:   m.MaxTmp,
	}
}

func mediumTermFromDomain(f weather.MediumTermForecast) MediumTermForecast {
	return MediumTermForecast{
		RegionID: f.RegionID,
		Tmfc:     f.Tmfc,
		Tmef:     f.Tmef,
		Sky:      string(f.Sky),
		Pop:      f.Pop,
		MinTmp:   f.MinTmp,
		MaxTmp:   f.MaxTmp,
	}
}

func (m WeatherTemplate) toDomain() weather.Template {
	keywords := make([]string, 0, len(m.Keywords))
	for _, k := range m.Keywords {
		keywords = append(keywords, k.Name)
	}
	return weather.Template{
		ID:             m.ID,
		Weather:        weather.WeatherType(m.Weather),
		TempCategory:   weather.TempCategory(m.TempCategory),
		PrecipCategory: weather.PrecipCategory(m.PrecipCategory),
		Message:        m.Message,
		Emoji:          m.Emoji,
		Keywords:       keywords,
	}
}

func (m DailyRecommendation) toDomain() weather.Recommendation {
	return weather.Recommendation{
		ID:           m.ID,
		RegionID:     m.RegionID,
		RegionName:   m.Region.Name,
		ForecastDate: m.ForecastDate.UTC(),
		UpdatedAt:    m.UpdatedAt,
		Template:     m.WeatherTemplate.toDomain(),
	}
}
