package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// TemplateRepository reads the recommendation template catalog.
type TemplateRepository struct {
	db *gorm.DB
}

var _ weather.TemplateStore = (*TemplateRepository)(nil)

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) AllWithKeywords(ctx context.Context) ([]weather.Template, error) {
	var rows []WeatherTemplate
	if err := r.db.WithContext(ctx).Preload("Keywords").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	out := make([]weather.Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// createTemplate stores a template and attaches its keywords, creating missing keywords by name.
func createTemplate(tx *gorm.DB, t weather.Template) (WeatherTemplate, error) {
	keywords, err := ensureKeywords(tx, t.Keywords)
	if err != nil {
		return WeatherTemplate{}, err
	}

	row := WeatherTemplate{
		Weather:        string(t.Weather),
		TempCategory:   string(t.TempCategory),
		PrecipCategory: string(t.PrecipCategory),
		Message:        t.Message,
		Emoji:          t.Emoji,
		Keywords:       keywords,
	}
	if err := tx.Omit("Keywords.*").Create(&row).Error; err != nil {
		return WeatherTemplate{}, fmt.Errorf("create template %s/%s/%s: %w",
			t.Weather, t.TempCategory, t.PrecipCategory, err)
	}
	return row, nil
}

func ensureKeywords(tx *gorm.DB, names []string) ([]Keyword, error) {
	if len(names) == 0 {
		return nil, nil
	}

	rows := make([]Keyword, 0, len(names))
	for _, name := range names {
		rows = append(rows, Keyword{Name: name})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("create keywords: %w", err)
	}

	var keywords []Keyword
	if err := tx.Where("name IN ?", names).Find(&keywords).Error; err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	return keywords, nil
}
