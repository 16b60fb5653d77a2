package debug

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot 静态图片输出
type Plot struct {
	*Record
	Format        string    // png、svg 或 pdf
	Width, Height vg.Length // 0 使用默认尺寸
}

// Render 绘制全部记录曲线
func (p *Plot) Render(w io.Writer) error {
	pl := plot.New()
	pl.Title.Text = "仿真记录 " + p.RunID
	pl.X.Label.Text = "t (ms)"
	pl.Y.Label.Text = "value"
	for i, trace := range p.Traces {
		xys := make(plotter.XYs, len(trace))
		for k, v := range trace {
			xys[k].X = p.Time[k]
			xys[k].Y = v
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("记录 %s 无法绘制: %w", p.Labels[i], err)
		}
		l.Color = plotutil.Color(i)
		pl.Add(l)
		pl.Legend.Add(p.Labels[i], l)
	}
	width, height := p.Width, p.Height
	if width == 0 {
		width = 8 * vg.Inch
	}
	if height == 0 {
		height = 4 * vg.Inch
	}
	format := p.Format
	if format == "" {
		format = "png"
	}
	wt, err := pl.WriterTo(width, height, format)
	if err != nil {
		return fmt.Errorf("图片格式 %s: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}
