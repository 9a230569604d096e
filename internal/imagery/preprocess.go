package imagery

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	// Register decoders for frame payloads.
	_ "image/jpeg"
	_ "image/png"

	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
)

// maxTargetSize guards against absurd resize requests.
const maxTargetSize = 4096

// Preprocess decodes a frame, resizes it to targetSize x targetSize with
// bilinear interpolation and normalizes each channel to [-1, 1]. The
// frame stays owned by the caller.
func Preprocess(frm *frame.Frame, targetSize int) (*Tensor, error) {
	return preprocess(frm, image.Rectangle{}, targetSize)
}

// PreprocessRegion crops the frame to the given pixel rectangle before
// resizing, for region-scoped classification. The crop is clamped to the
// frame bounds.
func PreprocessRegion(frm *frame.Frame, crop image.Rectangle, targetSize int) (*Tensor, error) {
	if crop.Empty() {
		return nil, errors.Newf("empty crop rectangle").
			Component("imagery").
			Category(errors.CategoryValidation).
			Build()
	}
	return preprocess(frm, crop, targetSize)
}

func preprocess(frm *frame.Frame, crop image.Rectangle, targetSize int) (*Tensor, error) {
	if targetSize <= 0 || targetSize > maxTargetSize {
		return nil, errors.Newf("target size %d out of range", targetSize).
			Component("imagery").
			Category(errors.CategoryValidation).
			Build()
	}

	data := frm.Data()
	if len(data) == 0 {
		return nil, errors.Newf("frame has been released").
			Component("imagery").
			Category(errors.CategoryPreprocess).
			Build()
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(fmt.Errorf("decoding frame: %w", err)).
			Component("imagery").
			Category(errors.CategoryPreprocess).
			Context("source", frm.Source).
			Context("bytes", len(data)).
			Build()
	}

	src := img.Bounds()
	if !crop.Empty() {
		src = crop.Intersect(src)
		if src.Empty() {
			return nil, errors.Newf("crop rectangle lies outside the frame").
				Component("imagery").
				Category(errors.CategoryPreprocess).
				Context("crop", crop.String()).
				Context("frame", img.Bounds().String()).
				Build()
		}
	}

	scaled := image.NewRGBA(image.Rect(0, 0, targetSize, targetSize))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, src, draw.Src, nil)

	tensor := newTensor(targetSize)
	buf := tensor.Data()

	// NHWC layout, channel values mapped v/127.5 - 1.
	i := 0
	for y := 0; y < targetSize; y++ {
		row := scaled.Pix[y*scaled.Stride : y*scaled.Stride+targetSize*4]
		for x := 0; x < targetSize; x++ {
			buf[i] = float32(row[x*4])/127.5 - 1
			buf[i+1] = float32(row[x*4+1])/127.5 - 1
			buf[i+2] = float32(row[x*4+2])/127.5 - 1
			i += 3
		}
	}

	return tensor, nil
}
