// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package replay implements a scripted position source that plays back a recorded track.
//
// A track file holds one fix per line in the form "lat,lon,unix_millis[,accuracy]". Empty lines and
// lines starting with # are ignored.
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/polling"
	"github.com/wneessen/arrival-alarm/internal/source"
	"github.com/wneessen/arrival-alarm/internal/tracking"
)

const name = "replay"

var ErrNoFixes = errors.New("track contains no fixes")

// Replayer plays a track back in its recorded timing, divided by the speedup factor. A speedup of zero or
// less replays without any delay. Every directive the engine requests is recorded.
type Replayer struct {
	fixes   []geo.Fix
	speedup float64

	mu         sync.Mutex
	directives []polling.Directive
}

// New returns a Replayer for fixes.
func New(fixes []geo.Fix, speedup float64) (*Replayer, error) {
	if len(fixes) == 0 {
		return nil, ErrNoFixes
	}
	return &Replayer{fixes: fixes, speedup: speedup}, nil
}

// NewFromFile loads the track at path.
func NewFromFile(path string, speedup float64) (*Replayer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track file %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	fixes, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse track file %q: %w", path, err)
	}
	return New(fixes, speedup)
}

// Parse reads a track from r.
func Parse(r io.Reader) ([]geo.Fix, error) {
	var fixes []geo.Fix
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fix, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		fixes = append(fixes, fix)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}
	if len(fixes) == 0 {
		return nil, ErrNoFixes
	}
	return fixes, nil
}

func parseLine(line string) (geo.Fix, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return geo.Fix{}, fmt.Errorf("expected 3 or 4 fields, got %d", len(fields))
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return geo.Fix{}, fmt.Errorf("failed to parse field %d: %w", i+1, err)
		}
		values[i] = val
	}
	fix := geo.Fix{
		Point:  geo.Point{Lat: values[0], Lon: values[1]},
		At:     time.UnixMilli(int64(values[2])).UTC(),
		Source: name,
	}
	if len(values) == 4 {
		fix.Accuracy = values[3]
	}
	return fix, fix.Validate()
}

func (r *Replayer) Name() string {
	return name
}

// Directives returns every directive requested so far, starting with the one of the first subscription.
func (r *Replayer) Directives() []polling.Directive {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]polling.Directive(nil), r.directives...)
}

// Subscribe starts playback. The fix channel is closed after the last fix.
func (r *Replayer) Subscribe(ctx context.Context, d polling.Directive) (tracking.Subscription, error) {
	if d.IsZero() {
		return nil, source.ErrInvalidDirective
	}
	r.record(d)
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		replayer: r,
		gate:     source.NewGate(d),
		fixes:    make(chan geo.Fix),
		cancel:   cancel,
	}
	go sub.play(ctx)
	return sub, nil
}

func (r *Replayer) record(d polling.Directive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directives = append(r.directives, d)
}

func (r *Replayer) delay(prev, cur geo.Fix) time.Duration {
	if r.speedup <= 0 {
		return 0
	}
	elapsed := cur.At.Sub(prev.At)
	if elapsed <= 0 {
		return 0
	}
	return time.Duration(float64(elapsed) / r.speedup)
}

type subscription struct {
	replayer *Replayer
	gate     *source.Gate
	fixes    chan geo.Fix
	cancel   context.CancelFunc
	once     sync.Once
}

func (s *subscription) Fixes() <-chan geo.Fix {
	return s.fixes
}

func (s *subscription) Reconfigure(d polling.Directive) error {
	if d.IsZero() {
		return source.ErrInvalidDirective
	}
	s.replayer.record(d)
	s.gate.Set(d)
	return nil
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func (s *subscription) play(ctx context.Context) {
	defer close(s.fixes)
	for i, fix := range s.replayer.fixes {
		if i > 0 {
			if wait := s.replayer.delay(s.replayer.fixes[i-1], fix); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
		if !s.gate.Allow(fix) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case s.fixes <- fix:
		}
	}
}
