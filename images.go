package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

const (
	maxImageBytes  = 10 << 20
	maxImageSide   = 1600
	maxImagePixels = 40_000_000
)

// ImageSpec is a requested image. Exactly one of Data, URL and Prompt is set.
type ImageSpec struct {
	Page    int    `json:"page"`
	Caption string `json:"caption,omitempty"`
	Data    string `json:"data,omitempty"` // base64, optionally a data: URL
	URL     string `json:"url,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

func (s ImageSpec) validate() error {
	n := 0
	for _, v := range []string{s.Data, s.URL, s.Prompt} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	if n != 1 {
		return errors.New("image needs exactly one of data, url, prompt")
	}
	if s.URL != "" && !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("image url %q is not http(s)", s.URL)
	}
	return nil
}

type imageResolver struct {
	http      *http.Client
	generator ImageGenerator
}

func newImageResolver(generator ImageGenerator) *imageResolver {
	return &imageResolver{
		http:      &http.Client{Timeout: 10 * time.Second},
		generator: generator,
	}
}

// resolve fetches, decodes and normalises every spec. Results keep the
// order of specs.
func (r *imageResolver) resolve(ctx context.Context, specs []ImageSpec) ([]ImageAsset, error) {
	out := make([]ImageAsset, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			raw, err := r.fetch(gctx, spec)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			asset, err := normalizeImage(raw)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			asset.Key = fmt.Sprintf("img%d", i+1)
			asset.Page = spec.Page
			asset.Caption = strings.TrimSpace(spec.Caption)
			out[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *imageResolver) fetch(ctx context.Context, spec ImageSpec) ([]byte, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	switch {
	case spec.Data != "":
		return decodeImageData(spec.Data)
	case spec.URL != "":
		return r.download(ctx, spec.URL)
	default:
		if r.generator == nil {
			return nil, errors.New("image generation is not configured")
		}
		return r.generator.Generate(ctx, spec.Prompt)
	}
}

func decodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			data = data[i+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}

func (r *imageResolver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}

// normalizeImage decodes any supported format, caps the long side at
// maxImageSide and re-encodes as PNG.
func normalizeImage(raw []byte) (ImageAsset, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return ImageAsset{}, fmt.Errorf("%w: decode image: %v", ErrInvalidRequest, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxImagePixels {
		return ImageAsset{}, fmt.Errorf("%w: image is %dx%d, over the %d pixel limit", ErrInvalidRequest, cfg.Width, cfg.Height, maxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return ImageAsset{}, fmt.Errorf("decode image: %w", err)
	}
	img = downscale(img, maxImageSide)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ImageAsset{}, fmt.Errorf("encode png: %w", err)
	}
	b := img.Bounds()
	return ImageAsset{Width: b.Dx(), Height: b.Dy(), PNG: buf.Bytes()}, nil
}

func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	if w >= h {
		h = h * maxSide / w
		w = maxSide
	} else {
		w = w * maxSide / h
		h = maxSide
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
