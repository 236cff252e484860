package imgx

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/John-Robertt/assetprep/internal/domain"
)

// EncodePNG 把 img 编码为 PNG（唯一支持的输出格式）。
func EncodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, domain.ConversionError("encode", "", err)
	}
	return out.Bytes(), nil
}
