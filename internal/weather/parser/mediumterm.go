package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

const (
	blockStart = "#START7777"
	blockEnd   = "#7777END"

	landMinFields = 11
	landSkyCol    = 6
	landRnStCol   = 10

	tempMinFields = 8
	tempMinCol    = 6
	tempMaxCol    = 7

	// Effective dates lie this many days after the publish date.
	minLeadDays = 3
	maxLeadDays = 10
)

// landRow is one line of the medium-term land forecast.
type landRow struct {
	tmfc, tmef string
	sky        string
	rnSt       string
}

// tempRow is one line of the medium-term temperature forecast.
type tempRow struct {
	tmfc, tmef string
	min, max   string
}

// DroppedRow describes a joined medium-term row rejected during parsing.
type DroppedRow struct {
	Tmfc   string
	Tmef   string
	Reason string
}

// MediumTermParse is the outcome of joining the land and temperature feeds.
type MediumTermParse struct {
	Rows    []weather.MediumTermForecast
	Dropped []DroppedRow
}

// ParseMediumTerm joins the land and temperature text feeds by (tmfc, tmef).
// A row is emitted only when both sides exist and pop, min and max are numeric and
// within range; everything else lands in Dropped. RegionID is left unset.
func ParseMediumTerm(land, temp []byte) (MediumTermParse, error) {
	landLines, err := extractBlock(land)
	if err != nil {
		return MediumTermParse{}, fmt.Errorf("land: %w", err)
	}
	tempLines, err := extractBlock(temp)
	if err != nil {
		return MediumTermParse{}, fmt.Errorf("temperature: %w", err)
	}

	var result MediumTermParse

	var lands []landRow
	for _, fields := range landLines {
		if len(fields) < landMinFields {
			result.Dropped = append(result.Dropped, DroppedRow{
				Reason: fmt.Sprintf("land line has %d fields, want >= %d", len(fields), landMinFields),
			})
			continue
		}
		lands = append(lands, landRow{
			tmfc: fields[1],
			tmef: fields[2],
			sky:  fields[landSkyCol],
			rnSt: fields[landRnStCol],
		})
	}

	temps := make(map[string]tempRow)
	for _, fields := range tempLines {
		if len(fields) < tempMinFields {
			result.Dropped = append(result.Dropped, DroppedRow{
				Reason: fmt.Sprintf("temperature line has %d fields, want >= %d", len(fields), tempMinFields),
			})
			continue
		}
		row := tempRow{tmfc: fields[1], tmef: fields[2], min: fields[tempMinCol], max: fields[tempMaxCol]}
		key := row.tmfc + "_" + row.tmef
		if _, dup := temps[key]; !dup {
			temps[key] = row
		}
	}

	seen := make(map[weather.MediumTermKey]bool)
	for _, l := range lands {
		t, ok := temps[l.tmfc+"_"+l.tmef]
		if !ok {
			continue
		}

		row, reason := buildMediumTermRow(l, t)
		if reason != "" {
			result.Dropped = append(result.Dropped, DroppedRow{Tmfc: l.tmfc, Tmef: l.tmef, Reason: reason})
			continue
		}
		if seen[row.Key()] {
			continue
		}
		seen[row.Key()] = true
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func buildMediumTermRow(l landRow, t tempRow) (weather.MediumTermForecast, string) {
	tmfc, err := parseTimestampDate(l.tmfc)
	if err != nil {
		return weather.MediumTermForecast{}, err.Error()
	}
	tmef, err := parseTimestampDate(l.tmef)
	if err != nil {
		return weather.MediumTermForecast{}, err.Error()
	}
	lead := common.DaysBetween(tmfc, tmef)
	if lead < minLeadDays || lead > maxLeadDays {
		return weather.MediumTermForecast{}, fmt.Sprintf("tmef is %d days after tmfc", lead)
	}

	pop, err := strconv.ParseFloat(l.rnSt, 64)
	if err != nil {
		return weather.MediumTermForecast{}, fmt.Sprintf("pop %q is not numeric", l.rnSt)
	}
	if pop < 0 || pop > 100 {
		return weather.MediumTermForecast{}, fmt.Sprintf("pop %v out of range", pop)
	}

	minTmp, err := parseTemperature(t.min)
	if err != nil {
		return weather.MediumTermForecast{}, "min " + err.Error()
	}
	maxTmp, err := parseTemperature(t.max)
	if err != nil {
		return weather.MediumTermForecast{}, "max " + err.Error()
	}

	return weather.MediumTermForecast{
		Tmfc:   tmfc,
		Tmef:   tmef,
		Sky:    MapMediumTermSky(l.sky),
		Pop:    pop,
		MinTmp: minTmp,
		MaxTmp: maxTmp,
	}, ""
}

func parseTemperature(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("temperature %q is not numeric", s)
	}
	if v < -50 || v > 50 {
		return 0, fmt.Errorf("temperature %v out of range", v)
	}
	return v, nil
}

// parseTimestampDate keeps the yyyyMMdd part of a yyyyMMddHHmm timestamp.
func parseTimestampDate(s string) (time.Time, error) {
	if len(s) != 12 {
		return time.Time{}, fmt.Errorf("timestamp %q is not yyyyMMddHHmm", s)
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not numeric", s)
	}
	return common.ParseYMD(s[:8])
}

// MapMediumTermSky maps the land forecast sky code.
func MapMediumTermSky(code string) weather.SkyCondition {
	switch code {
	case "WB01":
		return weather.SkyClear
	case "WB03":
		return weather.SkyPartlyCloudy
	case "WB04":
		return weather.SkyOvercast
	case "WB12", "WB13":
		return weather.SkySnow
	default:
		return weather.SkyUnknown
	}
}

// extractBlock returns the whitespace-split data lines between the block delimiters.
func extractBlock(body []byte) ([][]string, error) {
	text := string(body)
	start := strings.Index(text, blockStart)
	if start < 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrParse, blockStart)
	}
	text = text[start+len(blockStart):]
	end := strings.Index(text, blockEnd)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrParse, blockEnd)
	}

	var lines [][]string
	for _, line := range strings.Split(text[:end], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, strings.Fields(line))
	}
	return lines, nil
}
