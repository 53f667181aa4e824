package main

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

type TextStyle struct {
	Size        float64 `yaml:"size"`
	LineHeight  float64 `yaml:"line_height"`
	SpaceBefore float64 `yaml:"space_before"`
	SpaceAfter  float64 `yaml:"space_after"`
	Indent      float64 `yaml:"indent"`
	Bold        bool    `yaml:"bold"`
}

// Profile is the page geometry and typography of one export format.
// All lengths are in points.
type Profile struct {
	Name         string  `yaml:"-"`
	PageWidth    float64 `yaml:"page_width"`
	PageHeight   float64 `yaml:"page_height"`
	MarginTop    float64 `yaml:"margin_top"`
	MarginBottom float64 `yaml:"margin_bottom"`
	MarginLeft   float64 `yaml:"margin_left"`
	MarginRight  float64 `yaml:"margin_right"`

	Body     TextStyle `yaml:"body"`
	H1       TextStyle `yaml:"h1"`
	H2       TextStyle `yaml:"h2"`
	H3       TextStyle `yaml:"h3"`
	Bullet   TextStyle `yaml:"bullet"`
	Caption  TextStyle `yaml:"caption"`
	TOC      TextStyle `yaml:"toc"`
	Title    TextStyle `yaml:"title"`
	Subtitle TextStyle `yaml:"subtitle"`

	ImageMaxHeightRatio float64 `yaml:"image_max_height_ratio"`
	ImageSpacing        float64 `yaml:"image_spacing"`

	// AvgCharWidth is the advance of an average glyph as a fraction of the
	// font size. Used by formats that have no real font metrics at layout time.
	AvgCharWidth float64 `yaml:"avg_char_width"`
}

func (p Profile) style(kind BlockKind, level int) TextStyle {
	switch kind {
	case BlockHeading:
		switch level {
		case 1:
			return p.H1
		case 2:
			return p.H2
		default:
			return p.H3
		}
	case BlockBullet, BlockNumbered:
		return p.Bullet
	default:
		return p.Body
	}
}

// itemStyle recovers the text style a laid-out item was measured with.
func (p Profile) itemStyle(it Item) TextStyle {
	switch it.Role {
	case RoleHeading:
		return p.style(BlockHeading, it.Level)
	case RoleBullet:
		return p.Bullet
	case RoleCaption:
		return p.Caption
	case RoleTOC:
		return p.TOC
	case RoleTitle:
		return p.Title
	case RoleSubtitle:
		return p.Subtitle
	default:
		return p.Body
	}
}

const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatPPTX = "pptx"
)

var exportFormats = []string{FormatPDF, FormatDOCX, FormatPPTX}

func pdfProfile() Profile {
	return Profile{
		Name:       FormatPDF,
		PageWidth:  595.28,
		PageHeight: 841.89,
		MarginTop:  56, MarginBottom: 56, MarginLeft: 56, MarginRight: 56,
		Body:     TextStyle{Size: 11, LineHeight: 1.45, SpaceAfter: 8},
		H1:       TextStyle{Size: 20, LineHeight: 1.25, SpaceBefore: 12, SpaceAfter: 10, Bold: true},
		H2:       TextStyle{Size: 15, LineHeight: 1.3, SpaceBefore: 12, SpaceAfter: 6, Bold: true},
		H3:       TextStyle{Size: 12.5, LineHeight: 1.3, SpaceBefore: 8, SpaceAfter: 4, Bold: true},
		Bullet:   TextStyle{Size: 11, LineHeight: 1.45, SpaceAfter: 3, Indent: 18},
		Caption:  TextStyle{Size: 9, LineHeight: 1.3},
		TOC:      TextStyle{Size: 11, LineHeight: 1.8},
		Title:    TextStyle{Size: 28, LineHeight: 1.2, Bold: true},
		Subtitle: TextStyle{Size: 14, LineHeight: 1.4},

		ImageMaxHeightRatio: 0.5,
		ImageSpacing:        10,
	}
}

func docxProfile() Profile {
	return Profile{
		Name:       FormatDOCX,
		PageWidth:  612,
		PageHeight: 792,
		MarginTop:  72, MarginBottom: 72, MarginLeft: 72, MarginRight: 72,
		Body:     TextStyle{Size: 11, LineHeight: 1.5, SpaceAfter: 8},
		H1:       TextStyle{Size: 20, LineHeight: 1.3, SpaceBefore: 12, SpaceAfter: 8, Bold: true},
		H2:       TextStyle{Size: 16, LineHeight: 1.3, SpaceBefore: 10, SpaceAfter: 6, Bold: true},
		H3:       TextStyle{Size: 13, LineHeight: 1.3, SpaceBefore: 8, SpaceAfter: 4, Bold: true},
		Bullet:   TextStyle{Size: 11, LineHeight: 1.5, SpaceAfter: 4, Indent: 18},
		Caption:  TextStyle{Size: 9, LineHeight: 1.3},
		TOC:      TextStyle{Size: 11, LineHeight: 1.8},
		Title:    TextStyle{Size: 28, LineHeight: 1.2, Bold: true},
		Subtitle: TextStyle{Size: 14, LineHeight: 1.4},

		ImageMaxHeightRatio: 0.5,
		ImageSpacing:        10,
		AvgCharWidth:        0.5,
	}
}

func pptxProfile() Profile {
	return Profile{
		Name:       FormatPPTX,
		PageWidth:  720,
		PageHeight: 405,
		MarginTop:  36, MarginBottom: 36, MarginLeft: 40, MarginRight: 40,
		Body:     TextStyle{Size: 14, LineHeight: 1.3, SpaceAfter: 6},
		H1:       TextStyle{Size: 28, LineHeight: 1.15, SpaceAfter: 8, Bold: true},
		H2:       TextStyle{Size: 22, LineHeight: 1.15, SpaceBefore: 6, SpaceAfter: 6, Bold: true},
		H3:       TextStyle{Size: 17, LineHeight: 1.2, SpaceBefore: 4, SpaceAfter: 4, Bold: true},
		Bullet:   TextStyle{Size: 14, LineHeight: 1.3, SpaceAfter: 4, Indent: 22},
		Caption:  TextStyle{Size: 10, LineHeight: 1.2},
		TOC:      TextStyle{Size: 14, LineHeight: 1.5},
		Title:    TextStyle{Size: 36, LineHeight: 1.15, Bold: true},
		Subtitle: TextStyle{Size: 18, LineHeight: 1.3},

		ImageMaxHeightRatio: 0.7,
		ImageSpacing:        8,
		AvgCharWidth:        0.55,
	}
}

// Profiles holds the active profile per export format.
type Profiles map[string]Profile

func defaultProfiles() Profiles {
	return Profiles{
		FormatPDF:  pdfProfile(),
		FormatDOCX: docxProfile(),
		FormatPPTX: pptxProfile(),
	}
}

// loadProfiles applies YAML overrides on top of the defaults. Keys are
// format names; fields left out keep their default value.
func loadProfiles(path string) (Profiles, error) {
	profiles := defaultProfiles()
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout profiles: %w", err)
	}
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse layout profiles: %w", err)
	}
	for name, node := range nodes {
		name = strings.ToLower(name)
		p, ok := profiles[name]
		if !ok {
			return nil, fmt.Errorf("layout profiles: unknown format %q", name)
		}
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("layout profile %s: %w", name, err)
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("layout profile %s: %w", name, err)
		}
		profiles[name] = p
	}
	return profiles, nil
}

func (p Profile) validate() error {
	if p.PageWidth-p.MarginLeft-p.MarginRight < 72 {
		return fmt.Errorf("content width too small")
	}
	if p.PageHeight-p.MarginTop-p.MarginBottom < 72 {
		return fmt.Errorf("content height too small")
	}
	for _, s := range []TextStyle{p.Body, p.H1, p.H2, p.H3, p.Bullet, p.Caption, p.TOC, p.Title, p.Subtitle} {
		if s.Size <= 0 || s.LineHeight <= 0 {
			return fmt.Errorf("font size and line height must be positive")
		}
	}
	return nil
}

// averageMeasurer charges every rune the same advance. Word's own metrics are
// unknown when the DOCX is written, so this errs wide.
type averageMeasurer struct {
	em float64
}

func (m averageMeasurer) Width(text string, size float64, bold bool) float64 {
	w := float64(utf8.RuneCountInString(text)) * size * m.em
	if bold {
		w *= 1.08
	}
	return w
}

// classMeasurer weights runes by rough glyph class. Slide text boxes are
// narrow so the cheaper average over-wraps short lines.
type classMeasurer struct {
	em float64
}

func (m classMeasurer) Width(text string, size float64, bold bool) float64 {
	units := 0.0
	for _, r := range text {
		switch {
		case strings.ContainsRune("iljtf.,;:'!|I ", r):
			units += 0.55
		case strings.ContainsRune("mwMW@", r):
			units += 1.5
		case r >= 'A' && r <= 'Z':
			units += 1.2
		case r > 0x2E80:
			units += 1.8
		default:
			units++
		}
	}
	w := units * size * m.em
	if bold {
		w *= 1.1
	}
	return w
}
