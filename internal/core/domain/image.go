package domain

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

// SourceImage is a validated input image sitting on local disk. The pixel
// data stays in the file; only dimensions are read up front.
type SourceImage struct {
	Path   string
	Stem   string
	Width  int
	Height int
}

// LoadSourceImage checks that path holds a decodable JPEG or PNG and records
// its dimensions.
func LoadSourceImage(path string) (*SourceImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, ErrUnsupportedImageType
	}

	name := filepath.Base(path)
	return &SourceImage{
		Path:   path,
		Stem:   strings.TrimSuffix(name, filepath.Ext(name)),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
