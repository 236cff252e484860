package imgx

import (
	"image/color"
	"testing"

	"github.com/John-Robertt/assetprep/internal/domain"
)

// 左半边不透明红色，右半边完全透明。
const halfRedSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20">
  <rect x="0" y="0" width="20" height="20" fill="#ff0000"/>
</svg>`

func TestOksvgRasterizer_SizeAndAlpha(t *testing.T) {
	img, err := OksvgRasterizer{}.Rasterize([]byte(halfRedSVG))
	if err != nil {
		t.Fatalf("Rasterize 失败：%v", err)
	}
	b := img.Bounds()
	if b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("尺寸应由文档决定：got=%dx%d want=40x20", b.Dx(), b.Dy())
	}

	left := color.NRGBAModel.Convert(img.At(5, 10)).(color.NRGBA)
	if left.A != 255 || left.R < 200 {
		t.Fatalf("左半边应为不透明红色，实际 %v", left)
	}
	right := color.NRGBAModel.Convert(img.At(35, 10)).(color.NRGBA)
	if right.A == 255 {
		t.Fatalf("右半边应保留透明度，实际 %v", right)
	}
}

func TestOksvgRasterizer_ViewBoxOnly(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 8"><rect width="16" height="8" fill="blue"/></svg>`
	img, err := OksvgRasterizer{}.Rasterize([]byte(svg))
	if err != nil {
		t.Fatalf("Rasterize 失败：%v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Fatalf("尺寸应回退到 viewBox：got=%dx%d", b.Dx(), b.Dy())
	}
}

func TestOksvgRasterizer_WidthHeightOnly(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="12" height="6"><rect width="12" height="6" fill="blue"/></svg>`
	img, err := OksvgRasterizer{}.Rasterize([]byte(svg))
	if err != nil {
		t.Fatalf("Rasterize 失败：%v", err)
	}
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 6 {
		t.Fatalf("尺寸不符合预期：got=%dx%d", b.Dx(), b.Dy())
	}
}

func TestParseSVGSize_Malformed(t *testing.T) {
	cases := []string{
		"",
		"not xml at all",
		`<svg width="10" height="10">`,  // 未闭合
		`<html><body>404</body></html>`, // 根元素不是 svg
		`<svg xmlns="http://www.w3.org/2000/svg"/>`, // 无尺寸
		`<svg width="100000" height="10"/>`,         // 尺寸越界
	}
	for _, c := range cases {
		_, err := ParseSVGSize([]byte(c))
		if domain.ErrorCode(err) != domain.ErrCodeConversionFailed {
			t.Fatalf("输入 %q 期望 conversion_failed，实际：%v", c, err)
		}
	}
}

func TestParseSVGSize_PercentFallsBackToViewBox(t *testing.T) {
	s, err := ParseSVGSize([]byte(`<svg width="100%" height="100%" viewBox="0,0,30,10"/>`))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s.W != 30 || s.H != 10 {
		t.Fatalf("期望 30x10，实际 %+v", s)
	}
}
