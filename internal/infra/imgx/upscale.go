package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/John-Robertt/assetprep/internal/domain"
)

// ErrInvalidScale 表示 scale<=0。
var ErrInvalidScale = errors.New("scale 必须是正整数")

// Upscale 以整数倍最近邻放大 src。
//
// 约束：
// - scale<=0 => invalid_parameter（在解码之前检查，不产生任何输出）
// - 无法解码 => conversion_failed
// - 输出统一为 NRGBA（非预乘 alpha），像素 (x,y) 取自源像素 (x/scale, y/scale)，不做任何混合
func Upscale(src []byte, scale int) (*image.NRGBA, error) {
	if scale <= 0 {
		return nil, domain.InvalidParameter("upscale", fmt.Errorf("%w：%d", ErrInvalidScale, scale))
	}
	if len(src) == 0 {
		return nil, domain.ConversionError("decode", "", errors.New("输入为空"))
	}

	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, domain.ConversionError("decode", "", err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, domain.ConversionError("decode", "", errors.New("图片尺寸无效"))
	}

	// 统一到带 alpha 的色彩模式（调色板/灰度/RGB 都会被转换）。
	normalized := imaging.Clone(img)

	w, h := b.Dx()*scale, b.Dy()*scale
	if w/scale != b.Dx() || h/scale != b.Dy() {
		return nil, domain.InvalidParameter("upscale", fmt.Errorf("放大后尺寸溢出：%dx%d * %d", b.Dx(), b.Dy(), scale))
	}
	if scale == 1 {
		return normalized, nil
	}
	return imaging.Resize(normalized, w, h, imaging.NearestNeighbor), nil
}
