package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type ColorMode string

const (
	ColorModeColor     ColorMode = "color"
	ColorModeGrayscale ColorMode = "grayscale"
	ColorModeBW        ColorMode = "bw"
)

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

type Quality string

const (
	QualityDraft  Quality = "draft"
	QualityNormal Quality = "normal"
	QualityHigh   Quality = "high"
)

type DuplexMode string

const (
	DuplexNone      DuplexMode = "none"
	DuplexLongEdge  DuplexMode = "long_edge"
	DuplexShortEdge DuplexMode = "short_edge"
)

type FitMode string

const (
	FitNone   FitMode = "none"
	FitPage   FitMode = "fit"
	FitCustom FitMode = "custom"
)

type SplitMode string

const (
	SplitSingle SplitMode = "single"
	SplitPages  SplitMode = "pages"
	SplitRange  SplitMode = "range"
)

type Margins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

type SplitConfig struct {
	Mode  SplitMode `json:"mode"`
	Range string    `json:"range"`
}

type PrintSettings struct {
	Copies             int          `json:"copies"`
	ColorMode          ColorMode    `json:"color_mode"`
	PaperSize          string       `json:"paper_size"`
	Orientation        Orientation  `json:"orientation"`
	Quality            Quality      `json:"quality"`
	Duplex             DuplexMode   `json:"duplex"`
	PageRange          string       `json:"page_range,omitempty"`
	FitMode            FitMode      `json:"fit_to_page"`
	CustomScale        int          `json:"custom_scale,omitempty"`
	Margins            Margins      `json:"margins"`
	CenterHorizontally bool         `json:"center_horizontally"`
	CenterVertically   bool         `json:"center_vertically"`
	Split              *SplitConfig `json:"split,omitempty"`
}

type DocumentSettings struct {
	TargetFormat string       `json:"target_format,omitempty"`
	ColorMode    ColorMode    `json:"color_mode,omitempty"`
	Brightness   int          `json:"brightness"`
	Contrast     int          `json:"contrast"`
	Split        *SplitConfig `json:"split,omitempty"`
}

// IsNoop reports whether running the Document Processor would change nothing.
func (ds DocumentSettings) IsNoop() bool {
	return ds.TargetFormat == "" && ds.ColorMode == "" &&
		ds.Brightness == 0 && ds.Contrast == 0 && ds.Split == nil
}

// RawPrintSettings carries user-supplied values before validation. Pointer
// fields distinguish "absent" from zero values.
type RawPrintSettings struct {
	Copies             *int     `json:"copies"`
	ColorMode          string   `json:"color_mode"`
	PaperSize          string   `json:"paper_size"`
	Orientation        string   `json:"orientation"`
	Quality            string   `json:"quality"`
	Duplex             string   `json:"duplex"`
	PageRange          string   `json:"page_range"`
	FitToPage          string   `json:"fit_to_page"`
	CustomScale        *int     `json:"custom_scale"`
	Margins            *Margins `json:"margins"`
	CenterHorizontally *bool    `json:"center_horizontally"`
	CenterVertically   *bool    `json:"center_vertically"`
	SplitMode          string   `json:"split_mode"`
	SplitRange         string   `json:"split_range"`
}

type RawDocumentSettings struct {
	TargetFormat string `json:"target_format"`
	ColorMode    string `json:"color_mode"`
	Brightness   *int   `json:"brightness"`
	Contrast     *int   `json:"contrast"`
	SplitMode    string `json:"split_mode"`
	SplitRange   string `json:"split_range"`
}

// Limits are the configurable numeric bounds the Resolver enforces.
// Out-of-range values are rejected, never clamped.
type Limits struct {
	MaxCopies     int
	ScaleMin      int
	ScaleMax      int
	BrightnessMin int
	BrightnessMax int
	ContrastMin   int
	ContrastMax   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxCopies:     999,
		ScaleMin:      1,
		ScaleMax:      500,
		BrightnessMin: -100,
		BrightnessMax: 100,
		ContrastMin:   -100,
		ContrastMax:   100,
	}
}

var pageRangeRe = regexp.MustCompile(`^\d+(-\d+)?(,\s*\d+(-\d+)?)*$`)

var paperSizes = map[string]bool{
	"A3": true, "A4": true, "A5": true,
	"Letter": true, "Legal": true, "Tabloid": true,
}

type Resolver struct {
	limits Limits
}

func NewResolver(limits Limits) *Resolver {
	if limits.MaxCopies == 0 {
		limits = DefaultLimits()
	}
	return &Resolver{limits: limits}
}

// Resolve validates and normalizes raw submission settings into canonical
// print and document-processing configurations.
func (r *Resolver) Resolve(raw RawPrintSettings, rawDoc RawDocumentSettings) (PrintSettings, DocumentSettings, error) {
	var zero PrintSettings
	var zeroDoc DocumentSettings

	ps := PrintSettings{
		Copies:      1,
		ColorMode:   ColorModeColor,
		PaperSize:   "A4",
		Orientation: OrientationPortrait,
		Quality:     QualityNormal,
		Duplex:      DuplexNone,
		FitMode:     FitNone,
		Margins:     Margins{Top: 0.5, Bottom: 0.5, Left: 0.5, Right: 0.5},
	}

	if raw.Copies != nil {
		if *raw.Copies < 1 {
			return zero, zeroDoc, &ValidationError{Field: "copies", Reason: "must be at least 1"}
		}
		if *raw.Copies > r.limits.MaxCopies {
			return zero, zeroDoc, &ValidationError{Field: "copies", Reason: fmt.Sprintf("must be at most %d", r.limits.MaxCopies)}
		}
		ps.Copies = *raw.Copies
	}

	if raw.ColorMode != "" {
		switch ColorMode(raw.ColorMode) {
		case ColorModeColor, ColorModeGrayscale, ColorModeBW:
			ps.ColorMode = ColorMode(raw.ColorMode)
		default:
			return zero, zeroDoc, &ValidationError{Field: "color_mode", Reason: "invalid color mode: " + raw.ColorMode}
		}
	}

	if raw.PaperSize != "" {
		if !paperSizes[raw.PaperSize] {
			return zero, zeroDoc, &ValidationError{Field: "paper_size", Reason: "invalid paper size: " + raw.PaperSize}
		}
		ps.PaperSize = raw.PaperSize
	}

	if raw.Orientation != "" {
		switch Orientation(raw.Orientation) {
		case OrientationPortrait, OrientationLandscape:
			ps.Orientation = Orientation(raw.Orientation)
		default:
			return zero, zeroDoc, &ValidationError{Field: "orientation", Reason: "invalid orientation: " + raw.Orientation}
		}
	}

	if raw.Quality != "" {
		switch Quality(raw.Quality) {
		case QualityDraft, QualityNormal, QualityHigh:
			ps.Quality = Quality(raw.Quality)
		default:
			return zero, zeroDoc, &ValidationError{Field: "quality", Reason: "invalid quality: " + raw.Quality}
		}
	}

	if raw.Duplex != "" {
		switch DuplexMode(raw.Duplex) {
		case DuplexNone, DuplexLongEdge, DuplexShortEdge:
			ps.Duplex = DuplexMode(raw.Duplex)
		default:
			return zero, zeroDoc, &ValidationError{Field: "duplex", Reason: "invalid duplex mode: " + raw.Duplex}
		}
	}

	if raw.PageRange != "" {
		if err := ValidatePageRange(raw.PageRange); err != nil {
			return zero, zeroDoc, err
		}
		ps.PageRange = raw.PageRange
	}

	if raw.FitToPage != "" {
		switch FitMode(raw.FitToPage) {
		case FitNone, FitPage, FitCustom:
			ps.FitMode = FitMode(raw.FitToPage)
		default:
			return zero, zeroDoc, &ValidationError{Field: "fit_to_page", Reason: "invalid fit mode: " + raw.FitToPage}
		}
	}

	if ps.FitMode == FitCustom {
		if raw.CustomScale == nil {
			return zero, zeroDoc, &ValidationError{Field: "custom_scale", Reason: "required when fit_to_page is custom"}
		}
		scale := *raw.CustomScale
		if scale < r.limits.ScaleMin || scale > r.limits.ScaleMax {
			return zero, zeroDoc, &ValidationError{
				Field:  "custom_scale",
				Reason: fmt.Sprintf("must be between %d and %d", r.limits.ScaleMin, r.limits.ScaleMax),
			}
		}
		ps.CustomScale = scale
	}

	if raw.Margins != nil {
		m := *raw.Margins
		if m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0 {
			return zero, zeroDoc, &ValidationError{Field: "margins", Reason: "must be non-negative"}
		}
		ps.Margins = m
	}

	if raw.CenterHorizontally != nil {
		ps.CenterHorizontally = *raw.CenterHorizontally
	}
	if raw.CenterVertically != nil {
		ps.CenterVertically = *raw.CenterVertically
	}

	if raw.SplitMode != "" {
		split, err := resolveSplit(raw.SplitMode, raw.SplitRange)
		if err != nil {
			return zero, zeroDoc, err
		}
		ps.Split = split
	}

	ds, err := r.resolveDocument(rawDoc)
	if err != nil {
		return zero, zeroDoc, err
	}

	return ps, ds, nil
}

func (r *Resolver) resolveDocument(raw RawDocumentSettings) (DocumentSettings, error) {
	var zero DocumentSettings
	var ds DocumentSettings

	if raw.TargetFormat != "" {
		switch strings.ToLower(raw.TargetFormat) {
		case "pdf", "png", "jpeg":
			ds.TargetFormat = strings.ToLower(raw.TargetFormat)
		default:
			return zero, &ValidationError{Field: "document.target_format", Reason: "unsupported format: " + raw.TargetFormat}
		}
	}

	if raw.ColorMode != "" {
		switch ColorMode(raw.ColorMode) {
		case ColorModeColor, ColorModeGrayscale, ColorModeBW:
			ds.ColorMode = ColorMode(raw.ColorMode)
		default:
			return zero, &ValidationError{Field: "document.color_mode", Reason: "invalid color mode: " + raw.ColorMode}
		}
	}

	if raw.Brightness != nil {
		if *raw.Brightness < r.limits.BrightnessMin || *raw.Brightness > r.limits.BrightnessMax {
			return zero, &ValidationError{
				Field:  "document.brightness",
				Reason: fmt.Sprintf("must be between %d and %d", r.limits.BrightnessMin, r.limits.BrightnessMax),
			}
		}
		ds.Brightness = *raw.Brightness
	}

	if raw.Contrast != nil {
		if *raw.Contrast < r.limits.ContrastMin || *raw.Contrast > r.limits.ContrastMax {
			return zero, &ValidationError{
				Field:  "document.contrast",
				Reason: fmt.Sprintf("must be between %d and %d", r.limits.ContrastMin, r.limits.ContrastMax),
			}
		}
		ds.Contrast = *raw.Contrast
	}

	if raw.SplitMode != "" {
		split, err := resolveSplit(raw.SplitMode, raw.SplitRange)
		if err != nil {
			return zero, err
		}
		ds.Split = split
	}

	return ds, nil
}

func resolveSplit(mode, rng string) (*SplitConfig, error) {
	switch SplitMode(mode) {
	case SplitSingle:
		// single-document output always covers the whole source
		return &SplitConfig{Mode: SplitSingle, Range: "all"}, nil
	case SplitPages:
		return &SplitConfig{Mode: SplitPages, Range: "all"}, nil
	case SplitRange:
		if rng == "" {
			return nil, &ValidationError{Field: "split_range", Reason: "required when split_mode is range"}
		}
		if err := ValidatePageRange(rng); err != nil {
			return nil, &ValidationError{Field: "split_range", Reason: "invalid page range"}
		}
		return &SplitConfig{Mode: SplitRange, Range: rng}, nil
	default:
		return nil, &ValidationError{Field: "split_mode", Reason: "invalid split mode: " + mode}
	}
}

// ValidatePageRange accepts "all", "odd", "even" or an explicit range list
// such as "1-5,8,10-12": comma-separated tokens, each a single positive
// integer or an ascending pair.
func ValidatePageRange(s string) error {
	switch s {
	case "all", "odd", "even":
		return nil
	}

	if !pageRangeRe.MatchString(s) {
		return &ValidationError{Field: "page_range", Reason: "invalid page range"}
	}

	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		first, second, found := strings.Cut(token, "-")
		lo, err := strconv.Atoi(first)
		if err != nil || lo < 1 {
			return &ValidationError{Field: "page_range", Reason: "invalid page range"}
		}
		if found {
			hi, err := strconv.Atoi(second)
			if err != nil || hi < lo {
				return &ValidationError{Field: "page_range", Reason: "invalid page range"}
			}
		}
	}
	return nil
}
