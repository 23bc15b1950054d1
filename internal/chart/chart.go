// Package chart 将每日统计序列渲染为 PNG 折线图。
package chart

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/blogpulse/internal/stats"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 320

	marginLeft   = 56
	marginRight  = 16
	marginTop    = 28
	marginBottom = 36
	gridLines    = 4
	lineWidth    = 2.0
)

var (
	background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	gridColor  = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	textColor  = color.RGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
	viewsColor = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}
	usersColor = color.RGBA{R: 0x10, G: 0xb9, B: 0x81, A: 0xff}
)

// ErrTooSmall 表示画布尺寸不足以容纳坐标轴。
var ErrTooSmall = errors.New("chart: canvas too small")

// Options 控制画布尺寸，零值使用默认尺寸。
type Options struct {
	Width  int
	Height int
}

type point struct {
	x, y float32
}

// Render 绘制浏览量与访客数两条折线并编码为 PNG。缺失的日期会断开对应折线。
func Render(w io.Writer, series []stats.Record, opts Options) error {
	img, err := Draw(series, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Draw 返回绘制好的图像。
func Draw(series []stats.Record, opts Options) (*image.RGBA, error) {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if width <= marginLeft+marginRight+10 || height <= marginTop+marginBottom+10 {
		return nil, ErrTooSmall
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	plot := image.Rect(marginLeft, marginTop, width-marginRight, height-marginBottom)
	top := niceCeiling(maxValue(series))

	for i := 0; i <= gridLines; i++ {
		y := plot.Max.Y - i*plot.Dy()/gridLines
		fillRect(img, image.Rect(plot.Min.X, y, plot.Max.X, y+1), gridColor)
		label := strconv.FormatInt(top*int64(i)/gridLines, 10)
		drawText(img, label, marginLeft-8-textWidth(label), y+4)
	}

	drawText(img, "views", plot.Min.X, marginTop-10)
	fillRect(img, image.Rect(plot.Min.X+textWidth("views")+4, marginTop-16, plot.Min.X+textWidth("views")+16, marginTop-12), viewsColor)
	legendX := plot.Min.X + textWidth("views") + 32
	drawText(img, "visitors", legendX, marginTop-10)
	fillRect(img, image.Rect(legendX+textWidth("visitors")+4, marginTop-16, legendX+textWidth("visitors")+16, marginTop-12), usersColor)

	if len(series) == 0 {
		msg := "no data"
		drawText(img, msg, plot.Min.X+(plot.Dx()-textWidth(msg))/2, plot.Min.Y+plot.Dy()/2)
		return img, nil
	}

	drawText(img, series[0].Date, plot.Min.X, height-12)
	if len(series) > 1 {
		last := series[len(series)-1].Date
		drawText(img, last, plot.Max.X-textWidth(last), height-12)
	}

	drawSeries(img, plot, series, top, stats.MetricViews, viewsColor)
	drawSeries(img, plot, series, top, stats.MetricVisitors, usersColor)
	return img, nil
}

func drawSeries(img *image.RGBA, plot image.Rectangle, series []stats.Record, top int64, metric stats.Metric, c color.Color) {
	step := float32(0)
	if len(series) > 1 {
		step = float32(plot.Dx()) / float32(len(series)-1)
	}

	var segment []point
	flush := func() {
		strokePolyline(img, segment, c)
		segment = segment[:0]
	}
	for i, record := range series {
		v, ok := record.Value(metric)
		if !ok {
			flush()
			continue
		}
		x := float32(plot.Min.X) + step*float32(i)
		if len(series) == 1 {
			x = float32(plot.Min.X + plot.Dx()/2)
		}
		y := float32(plot.Max.Y) - float32(plot.Dy())*float32(v)/float32(top)
		segment = append(segment, point{x: x, y: y})
	}
	flush()
}

// strokePolyline 用矢量光栅化器把折线的每一段填充为有宽度的四边形，单点画成小方块。
func strokePolyline(img *image.RGBA, pts []point, c color.Color) {
	if len(pts) == 0 {
		return
	}
	b := img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	half := float32(lineWidth / 2)

	if len(pts) == 1 {
		p := pts[0]
		r.MoveTo(p.x-2, p.y-2)
		r.LineTo(p.x+2, p.y-2)
		r.LineTo(p.x+2, p.y+2)
		r.LineTo(p.x-2, p.y+2)
		r.ClosePath()
	}
	for i := 1; i < len(pts); i++ {
		p, q := pts[i-1], pts[i]
		dx, dy := q.x-p.x, q.y-p.y
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*half, dx/length*half
		r.MoveTo(p.x+nx, p.y+ny)
		r.LineTo(q.x+nx, q.y+ny)
		r.LineTo(q.x-nx, q.y-ny)
		r.LineTo(p.x-nx, p.y-ny)
		r.ClosePath()
	}
	r.Draw(img, b, image.NewUniform(c), image.Point{})
}

func drawText(img *image.RGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func textWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Round()
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func maxValue(series []stats.Record) int64 {
	var top int64
	for _, record := range series {
		for _, metric := range stats.Metrics {
			if v, ok := record.Value(metric); ok && v > top {
				top = v
			}
		}
	}
	return top
}

// niceCeiling 将最大值向上取整到 1、2、5 乘以 10 的幂，保证网格刻度是整数。
func niceCeiling(v int64) int64 {
	if v <= 0 {
		return gridLines
	}
	magnitude := int64(1)
	for magnitude*10 <= v {
		magnitude *= 10
	}
	for _, m := range []int64{1, 2, 5, 10} {
		if candidate := m * magnitude; candidate >= v {
			if candidate%gridLines != 0 && candidate < gridLines*10 {
				return ((candidate + gridLines - 1) / gridLines) * gridLines
			}
			return candidate
		}
	}
	return 10 * magnitude
}
