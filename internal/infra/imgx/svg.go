package imgx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/John-Robertt/assetprep/internal/domain"
)

// maxSide 限制单边像素数，避免恶意/错误的 width 属性撑爆内存。
const maxSide = 16384

// Rasterizer 把 SVG 文档栅格化为位图。
//
// 实现约束：
// - 输出尺寸由文档自身决定（不接受缩放参数）
// - 透明区域必须保留 alpha
// - 输入非法时返回 conversion_failed
type Rasterizer interface {
	Rasterize(svg []byte) (image.Image, error)
}

// OksvgRasterizer 是基于 srwiley/oksvg + rasterx 的默认实现。
type OksvgRasterizer struct{}

var _ Rasterizer = OksvgRasterizer{}

func (OksvgRasterizer) Rasterize(svg []byte) (image.Image, error) {
	size, err := ParseSVGSize(svg)
	if err != nil {
		return nil, err
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, domain.ConversionError("rasterize", "", err)
	}
	// 没有 viewBox 时，用 width/height 作为用户坐标系，否则 SetTarget 会除零。
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		icon.ViewBox.W, icon.ViewBox.H = size.W, size.H
	}

	w, h := size.Pixels()
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return dst, nil
}

// SVGSize 是文档的固有尺寸（用户单位，约定 1 单位 = 1 像素）。
type SVGSize struct {
	W, H float64
}

// Pixels 向上取整为整数像素。
func (s SVGSize) Pixels() (int, int) {
	return int(math.Ceil(s.W)), int(math.Ceil(s.H))
}

// ParseSVGSize 严格校验 SVG 是良构 XML，并读取根元素的固有尺寸。
//
// 规则：
// - 根元素必须是 <svg>
// - 优先 width/height（无单位或 px）；否则回退 viewBox 的宽高
// - 两者都拿不到，或尺寸越界 => conversion_failed
func ParseSVGSize(svg []byte) (SVGSize, error) {
	if len(bytes.TrimSpace(svg)) == 0 {
		return SVGSize{}, domain.ConversionError("parse_svg", "", errors.New("SVG 为空"))
	}

	dec := xml.NewDecoder(bytes.NewReader(svg))
	var (
		root  *xml.StartElement
		depth int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return SVGSize{}, domain.ConversionError("parse_svg", "", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root == nil {
				se := t.Copy()
				root = &se
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if root == nil {
		return SVGSize{}, domain.ConversionError("parse_svg", "", errors.New("缺少根元素"))
	}
	if depth != 0 {
		return SVGSize{}, domain.ConversionError("parse_svg", "", errors.New("元素未闭合"))
	}
	if !strings.EqualFold(root.Name.Local, "svg") {
		return SVGSize{}, domain.ConversionError("parse_svg", "", fmt.Errorf("根元素不是 <svg>：<%s>", root.Name.Local))
	}

	var (
		width, height float64
		vbW, vbH      float64
	)
	for _, a := range root.Attr {
		switch a.Name.Local {
		case "width":
			width = parseLength(a.Value)
		case "height":
			height = parseLength(a.Value)
		case "viewBox":
			vbW, vbH = parseViewBox(a.Value)
		}
	}

	size := SVGSize{W: width, H: height}
	if size.W <= 0 || size.H <= 0 {
		size = SVGSize{W: vbW, H: vbH}
	}
	if size.W <= 0 || size.H <= 0 {
		return SVGSize{}, domain.ConversionError("parse_svg", "", errors.New("无法确定 SVG 尺寸（缺少 width/height 与 viewBox）"))
	}
	if w, h := size.Pixels(); w > maxSide || h > maxSide {
		return SVGSize{}, domain.ConversionError("parse_svg", "", fmt.Errorf("SVG 尺寸过大：%dx%d", w, h))
	}
	return size, nil
}

// parseLength 只接受无单位或 px；百分比/em 等相对单位返回 0（交给 viewBox）。
func parseLength(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "px")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseViewBox(s string) (float64, float64) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return 0, 0
	}
	w := parseLength(fields[2])
	h := parseLength(fields[3])
	return w, h
}
