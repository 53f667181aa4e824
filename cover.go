package main

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	coverWidth  = 1600
	coverHeight = 900
)

var coverPalettes = [][2]color.NRGBA{
	{{R: 20, G: 45, B: 90, A: 255}, {R: 47, G: 85, B: 151, A: 255}},
	{{R: 16, G: 64, B: 72, A: 255}, {R: 32, G: 128, B: 128, A: 255}},
	{{R: 58, G: 32, B: 84, A: 255}, {R: 110, G: 64, B: 160, A: 255}},
	{{R: 40, G: 40, B: 48, A: 255}, {R: 96, G: 100, B: 118, A: 255}},
}

// renderCoverImage draws abstract cover art seeded by the title, so the same
// title always gets the same picture. The subtitle is set on the art when a
// TTF font is available; the built-in bitmap font only labels the corner.
func renderCoverImage(title, subtitle, fontPath string) (ImageAsset, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(title))
	seed := h.Sum64()
	palette := coverPalettes[seed%uint64(len(coverPalettes))]

	dc := gg.NewContext(coverWidth, coverHeight)
	grad := gg.NewLinearGradient(0, 0, coverWidth, coverHeight)
	grad.AddColorStop(0, palette[0])
	grad.AddColorStop(1, palette[1])
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, coverWidth, coverHeight)
	dc.Fill()

	// concentric arcs
	cx := float64(coverWidth) * (0.55 + float64(seed%30)/100)
	cy := float64(coverHeight) * (0.35 + float64((seed>>8)%40)/100)
	dc.SetLineWidth(3)
	for i := 0; i < 9; i++ {
		r := 90 + float64(i)*70
		dc.SetRGBA(1, 1, 1, 0.22-float64(i)*0.02)
		start := float64((seed>>(i+4))%360) * math.Pi / 180
		dc.DrawArc(cx, cy, r, start, start+math.Pi*1.3)
		dc.Stroke()
	}
	for i := 0; i < 24; i++ {
		x := float64((seed>>(i%48))%coverWidth) + float64(i*37)
		y := float64((seed>>((i+7)%48))%coverHeight) + float64(i*11)
		dc.SetRGBA(1, 1, 1, 0.12)
		dc.DrawCircle(math.Mod(x, coverWidth), math.Mod(y, coverHeight), 4+float64(i%5)*2)
		dc.Fill()
	}

	label := strings.ToUpper(strings.TrimSpace(subtitle))
	if label == "" {
		label = strings.ToUpper(strings.TrimSpace(title))
	}
	if face, err := coverFontFace(fontPath, 54); err == nil && face != nil {
		dc.SetFontFace(face)
		dc.SetRGB(1, 1, 1)
		dc.DrawStringWrapped(label, 100, coverHeight-260, 0, 0, coverWidth-200, 1.3, gg.AlignLeft)
	} else {
		dc.SetFontFace(basicfont.Face7x13)
		dc.SetRGBA(1, 1, 1, 0.8)
		if len(label) > 80 {
			label = label[:80]
		}
		dc.DrawString(label, 40, coverHeight-40)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return ImageAsset{}, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return ImageAsset{Key: "cover", Width: coverWidth, Height: coverHeight, PNG: buf.Bytes()}, nil
}

func coverFontFace(path string, size float64) (font.Face, error) {
	if path == "" {
		return nil, nil
	}
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone}), nil
}
