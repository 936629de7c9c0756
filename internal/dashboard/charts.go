package dashboard

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var metricTitles = map[Metric]string{
	MetricMessWaste:   "Mess waste (kg)",
	MetricHostelWaste: "Hostel waste (kg)",
	MetricPerCapita:   "Per capita mess waste (kg/student)",
}

func trendChart(t Trend) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Waste trend", Subtitle: metricTitles[t.Metric]}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: metricTitles[t.Metric]}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(t.Dates)

	for _, s := range t.Series {
		// align on the shared date axis; days without data stay empty
		values := make(map[string]float64, len(s.Points))
		for _, p := range s.Points {
			values[p.Date] = p.Value
		}
		data := make([]opts.LineData, len(t.Dates))
		for i, d := range t.Dates {
			if v, ok := values[d]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries("Facility "+s.FacilityCode, data,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
		)
	}
	return line
}

func categoryChart(c Categories) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Waste by category"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)
	items := []opts.PieData{
		{Name: "Student waste", Value: c.Mess.StudentWaste},
		{Name: "Counter waste", Value: c.Mess.CounterWaste},
		{Name: "Vegetable peels", Value: c.Mess.VegetablePeels},
		{Name: "Mess dry waste", Value: c.Mess.DryWaste},
		{Name: "Hostel dry waste", Value: c.Hostel.DryWaste},
		{Name: "Hostel wet waste", Value: c.Hostel.WetWaste},
		{Name: "E-waste", Value: c.Hostel.EWaste},
		{Name: "Biomedical waste", Value: c.Hostel.BiomedicalWaste},
		{Name: "Hazardous waste", Value: c.Hostel.HazardousWaste},
	}
	pie.AddSeries("Category", items,
		charts.WithPieChartOpts(opts.PieChart{Radius: []string{"40%", "70%"}}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c} kg"}),
	)
	return pie
}

// RenderCharts writes a standalone HTML page with the trend and category charts.
func RenderCharts(w io.Writer, t Trend, c Categories) error {
	page := components.NewPage()
	page.PageTitle = "Waste dashboard"
	page.AddCharts(trendChart(t), categoryChart(c))
	return page.Render(w)
}
