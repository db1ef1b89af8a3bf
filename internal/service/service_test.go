// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wneessen/arrival-alarm/internal/config"
	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/notify"
	"github.com/wneessen/arrival-alarm/internal/phase"
	"github.com/wneessen/arrival-alarm/internal/source"
	"github.com/wneessen/arrival-alarm/internal/source/gpsd"
	"github.com/wneessen/arrival-alarm/internal/source/replay"
)

const testTrack = "../../testdata/track.csv"

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.target.Key() != "cityhall" {
			t.Errorf("expected target key cityhall, got %s", serv.target.Key())
		}
	})
	t.Run("new service with nil logger succeeds", func(t *testing.T) {
		conf := testConf(t, 6000)
		serv, err := New(conf, nil)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.logger == nil {
			t.Error("expected logger to be set")
		}
	})
	tests := []struct {
		name      string
		configure func(*config.Config)
		wantErr   string
	}{
		{
			"unsupported source type",
			func(c *config.Config) { c.Source.Type = "invalid" },
			"unsupported source type: invalid",
		},
		{
			"missing replay track",
			func(c *config.Config) { c.Source.Replay.File = "../../testdata/missing.csv" },
			"failed to load replay track",
		},
		{
			"invalid text template",
			func(c *config.Config) { c.Templates.Text = "{{invalid" },
			"failed to create presenter",
		},
		{
			"invalid target radius",
			func(c *config.Config) { c.Target.Radius = 0 },
			"invalid target",
		},
		{
			"invalid tracking bands",
			func(c *config.Config) { c.Tracking.Bands.Target = 5000 },
			"failed to create tracking config",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conf := testConf(t, 6000)
			tc.configure(conf)
			_, err := New(conf, logger.NewLogger(slog.LevelError, io.Discard))
			if err == nil {
				t.Fatal("expected service creation to fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error to contain %q, got %q", tc.wantErr, err)
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	t.Run("alarm fires and the history is recorded", func(t *testing.T) {
		server := miniredis.RunT(t)
		conf := testConf(t, 6000)
		conf.History.Backend = "redis"
		conf.History.Redis.Addr = server.Addr()
		serv, err := New(conf, logger.NewLogger(slog.LevelError, io.Discard))
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		notifier := &fakeNotifier{}
		serv.output = buf
		serv.notifier = notifier

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		errCh := make(chan error, 1)
		go func() { errCh <- serv.Run(ctx) }()

		deadline := time.After(time.Second * 5)
		for notifier.count() == 0 {
			select {
			case <-deadline:
				t.Fatal("timed out waiting for the arrival notification")
			case <-time.After(time.Millisecond * 10):
			}
		}
		cancel()
		select {
		case err = <-errCh:
			if err != nil {
				t.Fatalf("service returned an error: %s", err)
			}
		case <-time.After(time.Second * 5):
			t.Fatal("timed out waiting for the service to shut down")
		}

		if !strings.Contains(buf.String(), `"class":"arrived"`) {
			t.Errorf("expected arrived output, got %q", buf.String())
		}
		msg := notifier.first()
		if msg.Summary != "City Hall" || msg.Urgency != notify.UrgencyCritical {
			t.Errorf("unexpected notification: %+v", msg)
		}
		if !strings.Contains(msg.Body, "Arrived at City Hall") {
			t.Errorf("unexpected notification body: %q", msg.Body)
		}
		entries, err := server.List("arrival-alarm:history:cityhall")
		if err != nil {
			t.Fatalf("failed to read history: %s", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected started and arrived history entries, got %d", len(entries))
		}
	})
	t.Run("run fails with unreachable history store", func(t *testing.T) {
		server := miniredis.RunT(t)
		addr := server.Addr()
		server.Close()
		conf := testConf(t, 6000)
		conf.History.Backend = "redis"
		conf.History.Redis.Addr = addr
		serv, err := New(conf, logger.NewLogger(slog.LevelError, io.Discard))
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		err = serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		if !strings.Contains(err.Error(), "failed to open history store") {
			t.Errorf("unexpected error: %s", err)
		}
	})
}

func TestService_printOutput(t *testing.T) {
	t.Run("nothing is printed without an event", func(t *testing.T) {
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printOutput(t.Context())
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})
	t.Run("latest event is printed as JSON", func(t *testing.T) {
		t.Setenv("ARRIVALALARM_TEMPLATES_TEXT", "{{.Phase}}")
		t.Setenv("ARRIVALALARM_TEMPLATES_TOOLTIP", "{{.TargetName}}")
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.latest = &geobus.Event{Kind: geobus.KindUpdate, Key: "cityhall", Target: serv.target,
			Phase: phase.Approach}
		serv.printOutput(t.Context())

		var output outputData
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Text != "approach" || output.Tooltip != "City Hall" || output.Class != "approach" {
			t.Errorf("unexpected output: %+v", output)
		}
	})
	t.Run("write errors are logged", func(t *testing.T) {
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.output = failWriter{}
		serv.latest = &geobus.Event{Kind: geobus.KindUpdate, Key: "cityhall", Target: serv.target}
		serv.printOutput(t.Context())
		if !strings.Contains(logBuf.String(), "failed to encode output data") {
			t.Errorf("expected encode error in log, got %q", logBuf.String())
		}
	})
}

func TestService_notifyArrival(t *testing.T) {
	t.Run("arrival is notified", func(t *testing.T) {
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		notifier := &fakeNotifier{}
		serv.notifier = notifier
		serv.notifyArrival(arrivedEvent(serv))
		if notifier.count() != 1 {
			t.Fatalf("expected one notification, got %d", notifier.count())
		}
		if msg := notifier.first(); msg.Timeout != arrivalTimeout {
			t.Errorf("expected persistent notification, got timeout %d", msg.Timeout)
		}
	})
	t.Run("notifier errors are logged", func(t *testing.T) {
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.notifier = &fakeNotifier{fail: true}
		serv.notifyArrival(arrivedEvent(serv))
		if !strings.Contains(logBuf.String(), "failed to send arrival notification") {
			t.Errorf("expected notification error in log, got %q", logBuf.String())
		}
	})
	t.Run("missing notifier is fine", func(t *testing.T) {
		serv, err := testService(t, 6000)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.notifyArrival(arrivedEvent(serv))
	})
}

func TestService_selectSource(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		check      func(t *testing.T, src any)
	}{
		{"gpsd", "gpsd", func(t *testing.T, src any) {
			if _, ok := src.(*gpsd.Watcher); !ok {
				t.Errorf("expected gpsd watcher, got %T", src)
			}
		}},
		{"gpspoll", "gpspoll", func(t *testing.T, src any) {
			poller, ok := src.(*source.Poller)
			if !ok {
				t.Fatalf("expected poller, got %T", src)
			}
			if !strings.Contains(poller.Name(), "gpspoll") {
				t.Errorf("unexpected poller name: %s", poller.Name())
			}
		}},
		{"replay", "replay", func(t *testing.T, src any) {
			if _, ok := src.(*replay.Replayer); !ok {
				t.Errorf("expected replayer, got %T", src)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conf := testConf(t, 6000)
			conf.Source.Type = tc.sourceType
			serv, err := New(conf, logger.NewLogger(slog.LevelError, io.Discard))
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			tc.check(t, serv.source)
		})
	}
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal toggles the alarm", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv, err := testService(t, 1)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		defer serv.manager.Shutdown()
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR1
		waitFor(t, serv.armed, "alarm to be armed")
		sigChan <- syscall.SIGUSR1
		waitFor(t, func() bool { return !serv.armed() }, "alarm to be disarmed")
	})
	t.Run("USR2 signal logs the tracking state", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv, err := testService(t, 1)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		defer serv.manager.Shutdown()
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		if err = serv.arm(ctx); err != nil {
			t.Fatalf("failed to arm alarm: %s", err)
		}
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR2
		waitFor(t, func() bool { return strings.Contains(buf.String(), `msg="current tracking state"`) },
			"tracking state to be logged")
		if !strings.Contains(buf.String(), "target=cityhall") {
			t.Errorf("expected target in log, got %q", buf.String())
		}
	})
	t.Run("USR2 without session", func(t *testing.T) {
		serv, err := testService(t, 1)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		serv.logStatus()
		if !strings.Contains(buf.String(), `msg="no tracking session"`) {
			t.Errorf("expected missing session in log, got %q", buf.String())
		}
	})
}

func TestService_handleResumeEvent(t *testing.T) {
	t.Run("resume resyncs the sessions", func(t *testing.T) {
		serv, err := testService(t, 1)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		defer serv.manager.Shutdown()
		serv.wakeupDelay = 0
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelDebug, buf)
		if err = serv.arm(t.Context()); err != nil {
			t.Fatalf("failed to arm alarm: %s", err)
		}

		var lastResume int64
		serv.handleResumeEvent(t.Context(), &lastResume)
		if lastResume == 0 {
			t.Error("expected resume time to be stored")
		}
		if !strings.Contains(buf.String(), "resyncing tracking sessions") {
			t.Errorf("expected resync in log, got %q", buf.String())
		}

		// A second resume within the debounce window is ignored.
		buf.Reset()
		serv.handleResumeEvent(t.Context(), &lastResume)
		if strings.Contains(buf.String(), "resyncing tracking sessions") {
			t.Error("expected second resume to be debounced")
		}
	})
}

func testConf(t *testing.T, speedup float64) *config.Config {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to create config: %s", err)
	}
	conf.Locale = "en"
	conf.Target.ID = "cityhall"
	conf.Target.Name = "City Hall"
	conf.Target.Lat = 37.5665
	conf.Target.Lon = 126.9780
	conf.Target.Radius = 100
	conf.Source.Type = "replay"
	conf.Source.Replay.File = testTrack
	conf.Source.Replay.Speedup = speedup
	conf.Notify.Disable = true
	return conf
}

func testService(t *testing.T, speedup float64) (*Service, error) {
	t.Helper()
	return New(testConf(t, speedup), logger.NewLogger(slog.LevelError, io.Discard))
}

func arrivedEvent(serv *Service) geobus.Event {
	return geobus.Event{
		Kind:      geobus.KindArrived,
		Key:       serv.target.Key(),
		SessionID: "session-1",
		Target:    serv.target,
		Fix:       geo.Fix{Point: geo.Point{Lat: 37.5670, Lon: 126.9780}, Accuracy: 8},
		Distance:  55.6,
		Phase:     phase.Target,
		At:        time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.After(time.Second * 3)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond * 5):
		}
	}
}

type (
	failWriter   struct{}
	fakeNotifier struct {
		mu   sync.Mutex
		msgs []notify.Notification
		fail bool
	}
	syncBuffer struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (f failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("failed to write") }

func (n *fakeNotifier) Notify(msg notify.Notification) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return 0, errors.New("intentionally failing")
	}
	n.msgs = append(n.msgs, msg)
	return uint32(len(n.msgs)), nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func (n *fakeNotifier) first() notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return notify.Notification{}
	}
	return n.msgs[0]
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}
