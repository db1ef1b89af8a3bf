// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"

	"github.com/wneessen/arrival-alarm/internal/geo"
)

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"naturalTime":   p.naturalTime,
		"floatFormat":   p.floatFormat,
		"distance":      geo.FormatDistance,
		"speed":         speed,
		"compass":       compass,
		"phaseIcon":     phaseIcon,
		"iconWithSpace": IconWithSpace,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

// loc translates a phase name or one of the default template labels.
func (p *Presenter) loc(val string) string {
	return p.localizer.Get(val)
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

func speed(kmh *float64) string {
	if kmh == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f km/h", *kmh)
}

// compass returns the principal wind for a bearing in degrees.
func compass(bearing float64) string {
	idx := int(math.Round(math.Mod(bearing+360, 360)/45)) % len(compassPoints)
	return compassPoints[idx]
}

// phaseIcon accepts a phase name as found in TemplateContext.Phase.
func phaseIcon(name string) string {
	for p, icon := range PhaseIcons {
		if p.String() == name {
			return icon
		}
	}
	if name == "arrived" {
		return ArrivedIcon
	}
	return ""
}

// IconWithSpace appends padding to an icon based on its display width.
func IconWithSpace(icon string) string {
	width := runewidth.StringWidth(icon)
	return fmt.Sprintf("%s%s", icon, strings.Repeat(" ", width+1))
}
