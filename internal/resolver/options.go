package resolver

import "strings"

// candidate is one (label, icon) pair harvested from the raw record.
type candidate struct {
	label    string
	icon     string
	question bool // label was extracted from an option-market question
}

// entity is a deduplicated option: one real-world team, person or bucket.
type entity struct {
	label    string
	question bool
	icons    []string
}

func (e *entity) hasIcon(icon string) bool {
	for _, i := range e.icons {
		if i == icon {
			return true
		}
	}
	return false
}

// collect gathers candidates from events[0].outcomes and option_markets. The
// first returned slice is the source whose order the output follows.
func (r Rules) collect(raw RawMarket) (primary, secondary []candidate) {
	var fromOutcomes []candidate
	if len(raw.Events) > 0 {
		for _, o := range raw.Events[0].Outcomes {
			label := o.Label()
			if label == "" {
				continue
			}
			icon := validOrEmpty(o.Icon)
			if icon == "" {
				icon = validOrEmpty(o.Image)
			}
			fromOutcomes = append(fromOutcomes, candidate{label: label, icon: icon})
		}
	}

	var fromMarkets []candidate
	for _, om := range raw.OptionMarkets {
		label := r.EntityFromQuestion(om.Question)
		if label == "" {
			label = strings.TrimSpace(om.ID)
		}
		if label == "" {
			continue
		}
		fromMarkets = append(fromMarkets, candidate{label: label, icon: validOrEmpty(om.Icon), question: true})
	}

	if len(fromOutcomes) > 0 {
		return fromOutcomes, fromMarkets
	}
	return fromMarkets, nil
}

// dedupe folds candidates that name the same entity. Two candidates collide
// when one normalized label contains the other, or when they carry the same
// icon. The banner image and banner icon never count as a shared icon, since
// upstream leaks both onto unrelated options.
func dedupe(cands []candidate, banner, bannerIcon string) []*entity {
	var out []*entity
	for _, c := range cands {
		distinctive := c.icon != "" && c.icon != banner && c.icon != bannerIcon
		var match *entity
		for _, e := range out {
			if sameEntity(e.label, c.label) || (distinctive && e.hasIcon(c.icon)) {
				match = e
				break
			}
		}

		if match == nil {
			e := &entity{label: c.label, question: c.question}
			if c.icon != "" {
				e.icons = append(e.icons, c.icon)
			}
			out = append(out, e)
			continue
		}

		if preferLabel(c, match) {
			match.label = c.label
			match.question = c.question
		}
		if c.icon != "" && !match.hasIcon(c.icon) {
			match.icons = append(match.icons, c.icon)
		}
	}
	return out
}

// preferLabel reports whether c's label should replace e's. The bare name
// ("Real Madrid") beats the question form ("Real Madrid win La Liga").
func preferLabel(c candidate, e *entity) bool {
	nc, ne := normalize(c.label), normalize(e.label)
	if nc == ne {
		return false
	}
	if containsPhrase(ne, nc) {
		return true
	}
	if containsPhrase(nc, ne) {
		return false
	}
	return e.question && !c.question
}

// assignIcons picks one icon per entity.
//
// An entity's own non-banner icon always wins. Generic buckets without one
// borrow the first neighbour's own icon, then fall back to the placeholder;
// they never receive the banner. Specific entities without one get the
// placeholder, unless the banner is the only image in the whole record.
func (r Rules) assignIcons(entities []*entity, banner, placeholder string, alternative bool) OptionImages {
	assigned := make([]string, len(entities))
	own := make([]bool, len(entities))
	for i, e := range entities {
		for _, icon := range e.icons {
			if icon != banner {
				assigned[i] = icon
				own[i] = true
				break
			}
		}
	}

	for i, e := range entities {
		if own[i] {
			continue
		}
		if r.IsGeneric(e.label) {
			assigned[i] = placeholder
			for j := range entities {
				if j != i && own[j] {
					assigned[i] = assigned[j]
					break
				}
			}
			continue
		}
		if banner != "" && !alternative {
			assigned[i] = banner
			continue
		}
		assigned[i] = placeholder
	}

	out := make(OptionImages, len(entities))
	for i, e := range entities {
		out[i] = OptionImage{Label: e.label, URL: assigned[i]}
	}
	return out
}

// hasAlternativeImage reports whether the record holds any valid image other
// than the banner.
func hasAlternativeImage(raw RawMarket, banner string) bool {
	alt := func(s string) bool {
		return ValidURL(s) && s != banner
	}
	if alt(raw.Image) || alt(raw.Icon) {
		return true
	}
	for _, ev := range raw.Events {
		if alt(ev.Image) || alt(ev.Icon) {
			return true
		}
		for _, o := range ev.Outcomes {
			if alt(o.Icon) || alt(o.Image) {
				return true
			}
		}
	}
	for _, om := range raw.OptionMarkets {
		if alt(om.Icon) {
			return true
		}
	}
	return false
}
