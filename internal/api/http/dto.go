package httpapi

import (
	"time"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

type shortTermSyncBody struct {
	RegionIDs   []int64 `json:"regionIds" validate:"omitempty,dive,gt=0"`
	BaseDate    string  `json:"baseDate" validate:"omitempty,len=8,numeric"`
	BaseTime    string  `json:"baseTime" validate:"omitempty,oneof=0200 0500 0800 1100 1400 1700 2000 2300"`
	ForceUpdate bool    `json:"forceUpdate"`
}

type mediumTermSyncBody struct {
	RegionIDs   []int64 `json:"regionIds" validate:"omitempty,dive,gt=0"`
	Tmfc        string  `json:"tmfc" validate:"omitempty,len=8,numeric"`
	ForceUpdate bool    `json:"forceUpdate"`
}

type generateBody struct {
	RegionIDs       []int64 `json:"regionIds" validate:"omitempty,dive,gt=0"`
	StartDate       string  `json:"startDate"`
	EndDate         string  `json:"endDate"`
	ForceRegenerate bool    `json:"forceRegenerate"`
}

type cleanupBody struct {
	RetentionDays   int  `json:"retentionDays" validate:"min=1,max=365"`
	ShortTerm       bool `json:"shortTerm"`
	MediumTerm      bool `json:"mediumTerm"`
	Recommendations bool `json:"recommendations"`
	DryRun          bool `json:"dryRun"`
}

type recommendationResponse struct {
	RegionID       int64                  `json:"regionId"`
	RegionName     string                 `json:"regionName"`
	Date           string                 `json:"date"`
	Weather        weather.WeatherType    `json:"weather"`
	TempCategory   weather.TempCategory   `json:"tempCategory"`
	PrecipCategory weather.PrecipCategory `json:"precipCategory"`
	Message        string                 `json:"message"`
	Emoji          string                 `json:"emoji"`
	Keywords       []string               `json:"keywords"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

func toRecommendationResponse(r weather.Recommendation) recommendationResponse {
	keywords := r.Template.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return recommendationResponse{
		RegionID:       r.RegionID,
		RegionName:     r.RegionName,
		Date:           r.ForecastDate.Format(time.DateOnly),
		Weather:        r.Template.Weather,
		TempCategory:   r.Template.TempCategory,
		PrecipCategory: r.Template.PrecipCategory,
		Message:        r.Template.Message,
		Emoji:          r.Template.Emoji,
		Keywords:       keywords,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toRecommendationResponses(recs []weather.Recommendation) []recommendationResponse {
	out := make([]recommendationResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRecommendationResponse(r))
	}
	return out
}
