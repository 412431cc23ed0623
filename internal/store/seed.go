package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

var weatherPhrases = map[weather.WeatherType]string{
	weather.WeatherClear:  "맑은 하늘이 이어지는 날이에요.",
	weather.WeatherCloudy: "구름이 많은 흐린 날이에요.",
	weather.WeatherSnow:   "눈 소식이 있는 날이에요.",
}

var tempPhrases = map[weather.TempCategory]string{
	weather.TempChilly: "쌀쌀하니 두꺼운 외투를 챙기세요.",
	weather.TempCool:   "선선하니 가벼운 겉옷이 좋아요.",
	weather.TempMild:   "포근해서 야외 활동하기 좋아요.",
	weather.TempHot:    "더우니 수분 보충을 잊지 마세요.",
}

var precipPhrases = map[weather.PrecipCategory]string{
	weather.PrecipNone:  "",
	weather.PrecipLight: "약한 비나 눈 가능성이 있어 작은 우산을 챙기세요.",
	weather.PrecipHeavy: "많은 비나 눈이 예상되니 외출 시 주의하세요.",
}

var weatherEmoji = map[weather.WeatherType]string{
	weather.WeatherClear:  "☀️",
	weather.WeatherCloudy: "☁️",
	weather.WeatherSnow:   "❄️",
}

var precipEmoji = map[weather.PrecipCategory]string{
	weather.PrecipLight: "🌂",
	weather.PrecipHeavy: "☔",
}

var weatherKeywords = map[weather.WeatherType]string{
	weather.WeatherClear:  "맑음",
	weather.WeatherCloudy: "흐림",
	weather.WeatherSnow:   "눈",
}

var tempKeywords = map[weather.TempCategory]string{
	weather.TempChilly: "쌀쌀함",
	weather.TempCool:   "선선함",
	weather.TempMild:   "포근함",
	weather.TempHot:    "더위",
}

var precipKeywords = map[weather.PrecipCategory]string{
	weather.PrecipLight: "우산",
	weather.PrecipHeavy: "폭우주의",
}

// DefaultTemplates builds the full weather x temperature x precipitation catalog.
func DefaultTemplates() []weather.Template {
	templates := make([]weather.Template, 0, len(weather.WeatherTypes)*len(weather.TempCategories)*len(weather.PrecipCategories))
	for _, w := range weather.WeatherTypes {
		for _, t := range weather.TempCategories {
			for _, p := range weather.PrecipCategories {
				message := weatherPhrases[w] + " " + tempPhrases[t]
				if phrase := precipPhrases[p]; phrase != "" {
					message += " " + phrase
				}

				keywords := []string{weatherKeywords[w], tempKeywords[t]}
				if k, ok := precipKeywords[p]; ok {
					keywords = append(keywords, k)
				}

				templates = append(templates, weather.Template{
					Weather:        w,
					TempCategory:   t,
					PrecipCategory: p,
					Message:        message,
					Emoji:          weatherEmoji[w] + precipEmoji[p],
					Keywords:       keywords,
				})
			}
		}
	}
	return templates
}

// SeedTemplates fills the template catalog when it is empty and reports how many templates were created.
func SeedTemplates(ctx context.Context, db *gorm.DB) (int, error) {
	var created int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&WeatherTemplate{}).Count(&existing).Error; err != nil {
			return fmt.Errorf("count templates: %w", err)
		}
		if existing > 0 {
			return nil
		}

		for _, t := range DefaultTemplates() {
			if _, err := createTemplate(tx, t); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
