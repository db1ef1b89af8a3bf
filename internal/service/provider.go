// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"strings"

	"github.com/wneessen/arrival-alarm/internal/http"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/notify"
	"github.com/wneessen/arrival-alarm/internal/source"
	"github.com/wneessen/arrival-alarm/internal/source/gpsd"
	"github.com/wneessen/arrival-alarm/internal/source/gpspoll"
	"github.com/wneessen/arrival-alarm/internal/source/ichnaea"
	"github.com/wneessen/arrival-alarm/internal/source/replay"
	"github.com/wneessen/arrival-alarm/internal/tracking"
)

func (s *Service) selectSource() (tracking.Source, error) {
	conf := s.config.Source
	switch strings.ToLower(conf.Type) {
	case "gpsd":
		return gpsd.New(conf.Host, conf.Port, s.logger), nil
	case "gpspoll":
		return source.NewPoller(gpspoll.New(conf.Host, conf.Port), conf.FastInterval, conf.Timeout, s.logger), nil
	case "ichnaea":
		locator, err := ichnaea.New(http.New(s.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create ICHNAEA locator: %w", err)
		}
		return source.NewPoller(locator, conf.FastInterval, conf.Timeout, s.logger), nil
	case "replay":
		replayer, err := replay.NewFromFile(conf.Replay.File, conf.Replay.Speedup)
		if err != nil {
			return nil, fmt.Errorf("failed to load replay track: %w", err)
		}
		return replayer, nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", conf.Type)
	}
}

// selectNotifier returns nil if notifications are disabled or no session bus is available.
func (s *Service) selectNotifier() Notifier {
	if s.config.Notify.Disable {
		return nil
	}
	notifier, err := notify.New(s.config.Notify.AppName)
	if err != nil {
		s.logger.Warn("desktop notifications unavailable", logger.Err(err))
		return nil
	}
	return notifier
}
