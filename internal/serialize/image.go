package serialize

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

const pngDataURIPrefix = "data:image/png;base64,"

// ImageAdapter renders image.Image values as PNG data URIs
type ImageAdapter struct{}

func (ImageAdapter) Name() string { return "image" }
func (ImageAdapter) Available() bool { return true }

func (ImageAdapter) CanHandle(v any) bool {
	_, ok := v.(image.Image)
	return ok
}

func (ImageAdapter) Serialize(v any, _ Options) (any, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, v.(image.Image)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return pngDataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
