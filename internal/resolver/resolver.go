// Package resolver normalizes raw market listings: it classifies a market as
// binary or multi-option, picks exactly one banner, and assigns one icon per
// distinct option while keeping the event banner out of option slots.
//
// Resolution is a pure function of its input. It performs no I/O and keeps no
// state, so the same RawMarket always yields the same NormalizedMarket.
package resolver

// OptionImage is one option label with its icon URL.
type OptionImage struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// OptionImages is an ordered label to URL mapping. Order follows the option
// declaration order of the source record.
type OptionImages []OptionImage

// Get returns the URL assigned to label.
func (o OptionImages) Get(label string) (string, bool) {
	for _, oi := range o {
		if oi.Label == label {
			return oi.URL, true
		}
	}
	return "", false
}

// Labels returns the option labels in order.
func (o OptionImages) Labels() []string {
	out := make([]string, len(o))
	for i, oi := range o {
		out[i] = oi.Label
	}
	return out
}

// NormalizedMarket is the resolved view of a RawMarket that later pipeline
// stages consume. Exactly one of IsBinary and IsMultipleOption is true.
type NormalizedMarket struct {
	IsBinary         bool         `json:"is_binary"`
	IsMultipleOption bool         `json:"is_multiple_option"`
	Options          []string     `json:"options"`
	BannerImage      string       `json:"banner_image,omitempty"`
	BannerIcon       string       `json:"banner_icon,omitempty"`
	OptionImages     OptionImages `json:"option_images"`
}

// Kind returns the market kind.
func (n NormalizedMarket) Kind() Kind {
	if n.IsMultipleOption {
		return KindMultiple
	}
	return KindBinary
}

// Resolve normalizes raw with the default rule table. placeholderIcon is used
// for options that end up with no usable image.
func Resolve(raw RawMarket, placeholderIcon string) NormalizedMarket {
	return DefaultRules().Resolve(raw, placeholderIcon)
}

// Resolve normalizes raw using r.
func (r Rules) Resolve(raw RawMarket, placeholderIcon string) NormalizedMarket {
	c := classify(raw)
	banner, icon := resolveBanner(raw, c.kind)

	out := NormalizedMarket{
		IsBinary:         c.kind == KindBinary,
		IsMultipleOption: c.kind == KindMultiple,
		BannerImage:      banner,
		BannerIcon:       icon,
		OptionImages:     OptionImages{},
	}

	if c.kind == KindBinary {
		out.Options = c.options
		return out
	}

	primary, secondary := r.collect(raw)
	entities := dedupe(append(primary, secondary...), banner, icon)
	out.OptionImages = r.assignIcons(entities, banner, placeholderIcon, hasAlternativeImage(raw, banner))

	out.Options = out.OptionImages.Labels()
	if len(out.Options) == 0 && raw.Outcomes.Parsed {
		out.Options = nonEmpty(raw.Outcomes.Labels)
	}
	return out
}

// resolveBanner applies the banner precedence. Binary markets use the
// market's own image; multi-option markets prefer the first event's image
// and fall back to the market image.
func resolveBanner(raw RawMarket, kind Kind) (image, icon string) {
	if kind == KindBinary {
		return validOrEmpty(raw.Image), validOrEmpty(raw.Icon)
	}
	if len(raw.Events) > 0 {
		image = validOrEmpty(raw.Events[0].Image)
		icon = validOrEmpty(raw.Events[0].Icon)
	}
	if image == "" {
		image = validOrEmpty(raw.Image)
	}
	if icon == "" {
		icon = validOrEmpty(raw.Icon)
	}
	return image, icon
}
