// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wneessen/arrival-alarm/internal/config"
	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/history"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/metrics"
	"github.com/wneessen/arrival-alarm/internal/notify"
	"github.com/wneessen/arrival-alarm/internal/presenter"
	"github.com/wneessen/arrival-alarm/internal/tracking"
)

const (
	eventBufferSize = 32
	// arrivalTimeout keeps the arrival notification on screen until it is dismissed.
	arrivalTimeout = int32(0)
)

type outputData struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

// Notifier shows desktop notifications.
type Notifier interface {
	Notify(msg notify.Notification) (uint32, error)
}

type Service struct {
	SignalSrc signalSource

	config    *config.Config
	bus       *geobus.GeoBus
	logger    *logger.Logger
	manager   *tracking.Manager
	metrics   *metrics.Collector
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	source    tracking.Source
	target    geo.Target
	notifier  Notifier
	output    io.Writer

	wakeupDelay time.Duration

	outputLock sync.Mutex
	eventLock  sync.RWMutex
	latest     *geobus.Event
}

// New prepares the service for conf. Connections to the history store and the notification daemon are
// opened once the service runs.
func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Discard()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	pres, err := presenter.New(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		bus:       geobus.New(log),
		logger:    log,
		metrics:   collector,
		presenter: pres,
		scheduler: scheduler,
		output:    os.Stdout,
		target: geo.Target{
			ID:     conf.Target.ID,
			Name:   conf.Target.Name,
			Point:  geo.Point{Lat: conf.Target.Lat, Lon: conf.Target.Lon},
			Radius: conf.Target.Radius,
		},
		wakeupDelay: networkWakeupDelay,
	}
	if err = service.target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	service.source, err = service.selectSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create position source: %w", err)
	}
	trackConf, err := tracking.NewConfig(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking config: %w", err)
	}
	service.manager, err = tracking.NewManager(service.source, service.bus, trackConf, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking manager: %w", err)
	}
	return service, nil
}

// Run arms the alarm for the configured target and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	store, err := history.New(ctx, s.config)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	if s.notifier == nil {
		s.notifier = s.selectNotifier()
	}

	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput, "alarm_output_job"); err != nil {
		s.closeStore(store)
		return err
	}
	s.scheduler.Start()

	// The recorder keeps running until the sessions are shut down.
	recCtx, recCancel := context.WithCancel(context.WithoutCancel(ctx))
	recDone := make(chan struct{})
	if store != nil {
		recorder := history.NewRecorder(store, s.logger)
		events, unsubRec := recorder.Subscribe(s.bus)
		defer unsubRec()
		go func() {
			defer close(recDone)
			recorder.Run(recCtx, events)
		}()
	} else {
		close(recDone)
	}

	if s.config.Metrics.Listen != "" {
		events, unsubMetrics := s.metrics.Subscribe(s.bus)
		defer unsubMetrics()
		go s.metrics.Run(ctx, events)
		go s.metrics.Serve(ctx, s.config.Metrics.Listen, s.logger)
	}

	sub, unsub := s.bus.Subscribe(s.target.Key(), eventBufferSize)
	go s.processEvents(ctx, sub)

	stop := func() {
		s.manager.Shutdown()
		unsub()
		recCancel()
		<-recDone
		s.closeStore(store)
	}

	if err = s.arm(ctx); err != nil {
		stop()
		_ = s.scheduler.Shutdown()
		return err
	}

	go s.monitorSleepResume(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	<-ctx.Done()
	stop()
	return s.scheduler.Shutdown()
}

// arm starts a session for the configured target. Sessions are stopped explicitly on shutdown, so
// they do not inherit the cancellation of ctx.
func (s *Service) arm(ctx context.Context) error {
	if _, err := s.manager.Start(context.WithoutCancel(ctx), s.target, nil); err != nil {
		return fmt.Errorf("failed to start tracking session: %w", err)
	}
	return nil
}

// armed reports whether a session is tracking the configured target.
func (s *Service) armed() bool {
	session, ok := s.manager.Get(s.target.Key())
	return ok && !session.State().Terminal()
}

func (s *Service) closeStore(store history.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		s.logger.Error("failed to close history store", logger.Err(err))
	}
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// processEvents keeps the latest session event and refreshes the output for every event received.
func (s *Service) processEvents(ctx context.Context, sub <-chan geobus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			s.logger.Debug("received tracking event", slog.String("kind", e.Kind.String()),
				slog.String("phase", e.Phase.String()), slog.Float64("distance", e.Distance))
			s.eventLock.Lock()
			s.latest = &e
			s.eventLock.Unlock()

			s.printOutput(ctx)
			if e.Kind == geobus.KindArrived {
				s.notifyArrival(e)
			}
		}
	}
}

// printOutput writes the latest tracking state as a waybar JSON line.
func (s *Service) printOutput(context.Context) {
	s.eventLock.RLock()
	latest := s.latest
	s.eventLock.RUnlock()
	if latest == nil {
		return
	}

	out, err := s.presenter.Render(s.presenter.BuildContext(*latest))
	if err != nil {
		s.logger.Error("failed to render output", logger.Err(err))
		return
	}
	output := outputData{Text: out.Text, Tooltip: out.Tooltip, Class: out.Class}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode output data", logger.Err(err))
	}
}

func (s *Service) notifyArrival(e geobus.Event) {
	ctx := s.presenter.BuildContext(e)
	body, err := s.presenter.RenderArrival(ctx)
	if err != nil {
		s.logger.Error("failed to render arrival message", logger.Err(err))
		return
	}
	s.logger.Info("arrived at target", slog.String("target", ctx.TargetName),
		slog.Float64("distance", e.Distance), slog.String("session", e.SessionID))
	if s.notifier == nil {
		return
	}
	msg := notify.Notification{
		Summary: ctx.TargetName,
		Body:    body,
		Icon:    "mark-location",
		Urgency: notify.UrgencyCritical,
		Timeout: arrivalTimeout,
	}
	if _, err = s.notifier.Notify(msg); err != nil {
		s.logger.Error("failed to send arrival notification", logger.Err(err))
	}
}
