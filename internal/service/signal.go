// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/arrival-alarm/internal/logger"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals reacts to the user signals. USR1 disarms a running alarm or re-arms it for the configured
// target, USR2 logs the current tracking state.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.toggleAlarm(ctx)
			case syscall.SIGUSR2:
				s.logStatus()
			}
		}
	}
}

func (s *Service) toggleAlarm(ctx context.Context) {
	if s.armed() {
		s.manager.Cancel(s.target.Key())
		s.logger.Info("alarm disarmed", slog.String("target", s.target.Key()))
		return
	}
	if err := s.arm(ctx); err != nil {
		s.logger.Error("failed to arm alarm", logger.Err(err))
		return
	}
	s.logger.Info("alarm armed", slog.String("target", s.target.Key()))
}

func (s *Service) logStatus() {
	session, ok := s.manager.Get(s.target.Key())
	if !ok {
		s.logger.Info("no tracking session", slog.String("target", s.target.Key()))
		return
	}
	attrs := []any{
		slog.String("target", s.target.Key()),
		slog.String("session", session.ID()),
		slog.String("state", session.State().String()),
		slog.String("phase", session.Phase().String()),
		slog.String("directive", session.Directive().String()),
	}
	if fix, ok := session.LastFix(); ok {
		attrs = append(attrs, slog.Float64("latitude", fix.Lat), slog.Float64("longitude", fix.Lon))
	}
	s.logger.Info("current tracking state", attrs...)
}
