package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

const resultCodeOK = "00"

// pcpNone is the provider's literal for "no precipitation".
const pcpNone = "강수없음"

var requiredCategories = []string{"TMP", "SKY", "POP", "PTY", "PCP"}

type shortTermResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items struct {
				Item []shortTermItem `json:"item"`
			} `json:"items"`
			TotalCount int `json:"totalCount"`
		} `json:"body"`
	} `json:"response"`
}

type shortTermItem struct {
	BaseDate  string `json:"baseDate"`
	BaseTime  string `json:"baseTime"`
	Category  string `json:"category"`
	FcstDate  string `json:"fcstDate"`
	FcstTime  string `json:"fcstTime"`
	FcstValue string `json:"fcstValue"`
	Nx        int    `json:"nx"`
	Ny        int    `json:"ny"`
}

type slotKey struct {
	baseDate, baseTime, fcstDate, fcstTime string
}

// ParseShortTerm converts the short-term forecast JSON into one row per forecast slot.
// Slots missing any of TMP, SKY, POP, PTY, PCP or carrying unparsable TMP/POP are dropped.
// Rows are returned in provider order of first appearance; RegionID is left unset.
func ParseShortTerm(body []byte) ([]weather.ShortTermForecast, error) {
	var payload shortTermResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: short-term json: %v", ErrParse, err)
	}

	header := payload.Response.Header
	if header.ResultCode != resultCodeOK {
		return nil, fmt.Errorf("%w: short-term resultCode %q: %s", ErrParse, header.ResultCode, header.ResultMsg)
	}

	var order []slotKey
	slots := make(map[slotKey]map[string]string)
	for _, item := range payload.Response.Body.Items.Item {
		key := slotKey{item.BaseDate, item.BaseTime, item.FcstDate, item.FcstTime}
		values, ok := slots[key]
		if !ok {
			values = make(map[string]string, len(requiredCategories))
			slots[key] = values
			order = append(order, key)
		}
		values[item.Category] = item.FcstValue
	}

	rows := make([]weather.ShortTermForecast, 0, len(order))
	for _, key := range order {
		row, ok := buildShortTermRow(key, slots[key])
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func buildShortTermRow(key slotKey, values map[string]string) (weather.ShortTermForecast, bool) {
	for _, c := range requiredCategories {
		if _, ok := values[c]; !ok {
			return weather.ShortTermForecast{}, false
		}
	}

	baseDate, err := common.ParseYMD(key.baseDate)
	if err != nil {
		return weather.ShortTermForecast{}, false
	}
	fcstDate, err := common.ParseYMD(key.fcstDate)
	if err != nil {
		return weather.ShortTermForecast{}, false
	}
	tmp, err := strconv.ParseFloat(strings.TrimSpace(values["TMP"]), 64)
	if err != nil {
		return weather.ShortTermForecast{}, false
	}
	pop, err := strconv.ParseFloat(strings.TrimSpace(values["POP"]), 64)
	if err != nil {
		return weather.ShortTermForecast{}, false
	}

	return weather.ShortTermForecast{
		BaseDate: baseDate,
		BaseTime: key.baseTime,
		FcstDate: fcstDate,
		FcstTime: key.fcstTime,
		Tmp:      tmp,
		Sky:      MapShortTermSky(values["SKY"]),
		Pop:      pop,
		Pty:      MapPrecipitationType(values["PTY"]),
		Pcp:      ParsePrecipitationAmount(values["PCP"]),
	}, true
}

// MapShortTermSky maps the SKY code.
func MapShortTermSky(code string) weather.SkyCondition {
	switch strings.TrimSpace(code) {
	case "1":
		return weather.SkyClear
	case "3":
		return weather.SkyPartlyCloudy
	case "4":
		return weather.SkyOvercast
	default:
		return weather.SkyUnknown
	}
}

// MapPrecipitationType maps the PTY code.
func MapPrecipitationType(code string) weather.PrecipitationType {
	switch strings.TrimSpace(code) {
	case "0":
		return weather.PrecipitationNone
	case "1":
		return weather.PrecipitationRain
	case "2":
		return weather.PrecipitationRainSnow
	case "3":
		return weather.PrecipitationSnow
	default:
		return weather.PrecipitationUnknown
	}
}

// ParsePrecipitationAmount reads PCP values such as "강수없음", "1.0mm" or "30.0~50.0mm".
// Non-numeric characters are stripped; anything unparsable is 0.
func ParsePrecipitationAmount(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" || value == pcpNone {
		return 0
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		return -1
	}, value)

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}
