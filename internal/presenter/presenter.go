// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders tracking events into the texts shown in the status bar and in notifications.
package presenter

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"

	"github.com/wneessen/arrival-alarm/internal/config"
	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/i18n"
)

// TemplateContext is the data all templates are executed with.
type TemplateContext struct {
	TargetName string
	TargetKey  string
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	Distance   float64
	Bearing    float64
	// Phase is the lower-case phase name.
	Phase     string
	PhaseIcon string
	// SpeedKmh is nil while the speed is unknown.
	SpeedKmh  *float64
	Directive string
	UpdatedAt time.Time
	Arrived   bool
	Stopped   bool
}

// Output is what one render produces.
type Output struct {
	Text    string
	Tooltip string
	Class   string
}

type Presenter struct {
	text      *template.Template
	tooltip   *template.Template
	arrival   *template.Template
	humanizer *humanize.Humanizer
	localizer *spreak.Localizer
}

// New parses the configured templates. Times and messages are localized for conf.Locale, or for the
// locale of the environment if none is configured.
func New(conf *config.Config) (*Presenter, error) {
	localizer, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}
	collection := humanize.MustNew(humanize.WithLocale(de.New()))
	pres := &Presenter{
		humanizer: collection.CreateHumanizer(i18n.Tag(conf.Locale)),
		localizer: localizer,
	}

	if pres.text, err = pres.parse("text", conf.Templates.Text); err != nil {
		return nil, err
	}
	if pres.tooltip, err = pres.parse("tooltip", conf.Templates.Tooltip); err != nil {
		return nil, err
	}
	if pres.arrival, err = pres.parse("arrival", conf.Templates.Arrival); err != nil {
		return nil, err
	}
	return pres, nil
}

func (p *Presenter) parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Funcs(p.templateFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tpl, nil
}

// BuildContext converts a session event into a template context.
func (p *Presenter) BuildContext(e geobus.Event) TemplateContext {
	ctx := TemplateContext{
		TargetName: e.Target.Name,
		TargetKey:  e.Key,
		Latitude:   e.Fix.Lat,
		Longitude:  e.Fix.Lon,
		Accuracy:   e.Fix.Accuracy,
		Distance:   e.Distance,
		Bearing:    e.Bearing,
		Phase:      e.Phase.String(),
		PhaseIcon:  PhaseIcons[e.Phase],
		SpeedKmh:   e.SpeedKmh,
		Directive:  e.Directive.String(),
		UpdatedAt:  e.At,
		Arrived:    e.Kind == geobus.KindArrived,
		Stopped:    e.Kind == geobus.KindStopped,
	}
	if ctx.TargetName == "" {
		ctx.TargetName = e.Key
	}
	if ctx.Arrived {
		ctx.PhaseIcon = ArrivedIcon
	}
	return ctx
}

// Render executes the text and tooltip templates. The class is the phase name, "arrived" once the alarm
// fired or "stopped" after the session was cancelled.
func (p *Presenter) Render(ctx TemplateContext) (Output, error) {
	text, err := execute(p.text, ctx)
	if err != nil {
		return Output{}, err
	}
	tooltip, err := execute(p.tooltip, ctx)
	if err != nil {
		return Output{}, err
	}
	class := ctx.Phase
	switch {
	case ctx.Arrived:
		class = "arrived"
	case ctx.Stopped:
		class = "stopped"
	}
	return Output{Text: text, Tooltip: tooltip, Class: class}, nil
}

// RenderArrival executes the arrival notification template.
func (p *Presenter) RenderArrival(ctx TemplateContext) (string, error) {
	return execute(p.arrival, ctx)
}

func execute(tpl *template.Template, ctx TemplateContext) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
