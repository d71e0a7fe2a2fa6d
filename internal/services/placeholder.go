package services

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/nkosei/brightpath-backend/internal/logger"
)

const (
	placeholderWidth  = 1280
	placeholderHeight = 720
)

// PlaceholderVisual renders a deterministic slide card for indices whose
// image generation failed, so decks stay visually complete without blocking
// on image success.
type PlaceholderVisual struct {
	log  *logger.Logger
	face font.Face
}

func NewPlaceholderVisual(log *logger.Logger) (*PlaceholderVisual, error) {
	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse placeholder font: %w", err)
	}
	face := truetype.NewFace(parsed, &truetype.Options{Size: 52})
	return &PlaceholderVisual{
		log:  log.With("service", "PlaceholderVisual"),
		face: face,
	}, nil
}

// Render produces a PNG card with the slide title centered on a flat
// background. Output is deterministic for a given title.
func (p *PlaceholderVisual) Render(title string) ([]byte, error) {
	dc := gg.NewContext(placeholderWidth, placeholderHeight)

	dc.SetRGB(0.13, 0.16, 0.23)
	dc.Clear()

	dc.SetRGB(0.23, 0.51, 0.96)
	dc.DrawRectangle(0, float64(placeholderHeight)-14, float64(placeholderWidth), 14)
	dc.Fill()

	dc.SetFontFace(p.face)
	dc.SetRGB(0.95, 0.96, 0.98)
	if title == "" {
		title = "Slide"
	}
	dc.DrawStringWrapped(
		title,
		float64(placeholderWidth)/2, float64(placeholderHeight)/2,
		0.5, 0.5,
		float64(placeholderWidth)-160,
		1.4,
		gg.AlignCenter,
	)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode placeholder png: %w", err)
	}
	return buf.Bytes(), nil
}
