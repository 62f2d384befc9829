package chart

import (
	"bytes"
	"time"

	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	lineColor       = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	fillColor       = drawing.Color{R: 0, G: 122, B: 255, A: 25}
)

// Render draws a PNG line chart of recorded prices. At least two points are
// required.
func Render(title string, points []types.PricePoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, errors.Errorf("need at least 2 price points, got %d", len(points))
	}

	xs := make([]time.Time, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		xs = append(xs, p.Timestamp)
		v, _ := p.Price.Float64()
		ys = append(ys, v)
	}

	minPrice, maxPrice := getMinMax(ys)
	padding := (maxPrice - minPrice) * 0.1
	if padding == 0 {
		padding = maxPrice * 0.01
	}
	if padding == 0 {
		padding = 1
	}

	axisStyle := chart.Style{FontColor: textColor, StrokeColor: textColor}
	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: textColor},
		Width:      1200,
		Height:     500,
		Background: chart.Style{FillColor: backgroundColor, Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20}},
		Canvas:     chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("02-Jan 15:04"),
		},
		YAxis: chart.YAxis{
			Style: axisStyle,
			Range: &chart.ContinuousRange{Min: minPrice - padding, Max: maxPrice + padding},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return helpers.FormatPriceUS(decimal.NewFromFloat(f))
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: lineColor,
					StrokeWidth: 2,
					FillColor:   fillColor,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "render chart")
	}
	return buf.Bytes(), nil
}

func getMinMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 1
	}

	min, max = values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
