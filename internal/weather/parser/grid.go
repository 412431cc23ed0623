package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// ErrParse marks a provider body that cannot be interpreted.
var ErrParse = errors.New("parse failure")

// ParseGrid reads the grid conversion response. The body carries a header line
// and a data line of numeric tokens LON, LAT, X, Y; the grid cell is (X, Y).
func ParseGrid(body []byte) (weather.Grid, error) {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var nums []float64
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		}) {
			n, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				nums = nil
				break
			}
			nums = append(nums, n)
		}
		if len(nums) < 4 {
			continue
		}

		x, y := nums[2], nums[3]
		if x != math.Trunc(x) || y != math.Trunc(y) || x <= 0 || y <= 0 {
			return weather.Grid{}, fmt.Errorf("%w: grid values %v,%v are not positive integers", ErrParse, x, y)
		}
		return weather.Grid{X: int(x), Y: int(y)}, nil
	}
	return weather.Grid{}, fmt.Errorf("%w: no grid data line in response", ErrParse)
}
