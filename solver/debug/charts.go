package debug

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// Charts 曲线绘制
type Charts struct {
	*Record
}

func legend() opts.Legend {
	return opts.Legend{
		Type:   "scroll",
		Orient: "vertical",
		Right:  "10",
		Top:    "20",
		Bottom: "20",
	}
}

// Render 生成网页: 分支连接图与记录曲线
func (c *Charts) Render(w io.Writer) error {
	tree := charts.NewGraph()
	tree.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "形态分支",
			Subtitle: "分支父子连接图",
		}),
		charts.WithLegendOpts(legend()),
	)
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "记录曲线",
			Subtitle: fmt.Sprintf("仿真 %s, dt=%g ms", c.RunID, c.Dt),
		}),
		charts.WithLegendOpts(legend()),
		charts.WithXAxisOpts(opts.XAxis{
			Name:        "ms",
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(false),
	)
	// 分支连接
	{
		nodes := make([]opts.GraphNode, len(c.Branches))
		links := make([]opts.GraphLink, 0, len(c.Branches))
		categories := map[string]int{}
		var cats []*opts.GraphCategory
		for i, b := range c.Branches {
			cat, ok := categories[b.Type]
			if !ok {
				cat = len(cats)
				categories[b.Type] = cat
				cats = append(cats, &opts.GraphCategory{Name: b.Type})
			}
			nodes[i] = opts.GraphNode{
				Name:     fmt.Sprintf("Branch(%d)", b.Index),
				Category: cat,
				Value:    float32(b.Length),
				Tooltip:  &opts.Tooltip{Show: opts.Bool(true)},
			}
		}
		for _, b := range c.Branches {
			if b.Parent < 0 {
				continue
			}
			links = append(links, opts.GraphLink{
				Source: nodes[b.Parent].Name,
				Target: nodes[b.Index].Name,
				Value:  float32(b.Ncomp),
			})
		}
		tree.AddSeries("分支列表", nodes, links,
			charts.WithGraphChartOpts(opts.GraphChart{
				Categories:         cats,
				Roam:               opts.Bool(true),
				Force:              &opts.GraphForce{Repulsion: 80},
				EdgeLabel:          &opts.EdgeLabel{Show: opts.Bool(true)},
				FocusNodeAdjacency: opts.Bool(true),
			}))
	}
	// 记录曲线
	{
		line.SetXAxis(c.Time)
		for i, trace := range c.Traces {
			items := make([]opts.LineData, len(trace))
			for k, v := range trace {
				items[k] = opts.LineData{Value: v}
			}
			line.AddSeries(c.Labels[i], items)
		}
	}
	page := components.NewPage()
	page.AddCharts(tree, line)
	return page.Render(w)
}

// Handler 发布到网页面
func (c *Charts) Handler(w http.ResponseWriter, _ *http.Request) {
	if err := c.Render(w); err != nil {
		slog.Error("网页生成失败", "err", err)
	}
}
