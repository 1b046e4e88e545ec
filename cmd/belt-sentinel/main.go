// Command belt-sentinel monitors a wearable safety belt, classifies each
// sample into a safety state, and dispatches fall alerts to caregivers
// over the remote API or the GSM modem.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/belt-sentinel/internal/alert"
	"github.com/sweeney/belt-sentinel/internal/config"
	"github.com/sweeney/belt-sentinel/internal/gpio"
	"github.com/sweeney/belt-sentinel/internal/journal"
	"github.com/sweeney/belt-sentinel/internal/logging"
	"github.com/sweeney/belt-sentinel/internal/logic"
	"github.com/sweeney/belt-sentinel/internal/modem"
	"github.com/sweeney/belt-sentinel/internal/mqtt"
	"github.com/sweeney/belt-sentinel/internal/sensor"
	"github.com/sweeney/belt-sentinel/internal/status"
	"github.com/sweeney/belt-sentinel/internal/web"
	"github.com/sweeney/belt-sentinel/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (empty: defaults + env)")
	poll := flag.Duration("poll", 200*time.Millisecond, "Sample polling interval")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":80", "HTTP address for status page and sample ingest (empty to disable)")
	pinButton := flag.Int("pin-button", gpio.DefaultPinButton, "BCM pin number for the acknowledge button")
	pinBuzzer := flag.Int("pin-buzzer", gpio.DefaultPinBuzzer, "BCM pin number for the buzzer")
	printConfig := flag.Bool("print-config", false, "Print effective config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	if err := run(cfg, *poll, *heartbeat, *httpAddr, *pinButton, *pinBuzzer); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, poll, heartbeat time.Duration, httpAddr string, pinButton, pinBuzzer int) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "belt-sentinel")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Journal first so every later dispatch attempt lands in it.
	jstore, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jstore.Close()

	// Surface alerts the previous run never delivered. Forensics only;
	// episodes are never resumed across a restart.
	if undelivered, err := jstore.UndeliveredEpisodes(ctx); err != nil {
		logger.Warn("journal query failed", zap.Error(err))
	} else if len(undelivered) > 0 {
		logger.Warn("previous run left undelivered alerts",
			zap.Strings("episode_ids", undelivered))
	}

	channels, channelCleanup, err := buildChannels(cfg, logger)
	if err != nil {
		return err
	}
	defer channelCleanup()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:         poll.Milliseconds(),
		CooldownMs:     cfg.Dispatch.Cooldown.Std().Milliseconds(),
		EscalationMs:   cfg.Dispatch.EscalationWindow.Std().Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPPort:       httpAddr,
		RemoteURL:      cfg.Remote.URL,
		ModemRecipient: cfg.Modem.Recipient,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sink := multiSink{tracker, journalSink{store: jstore, logger: logger}}
	dispatcher := alert.NewDispatcher(channels, alert.Config{
		MinRetryInterval: cfg.Dispatch.Cooldown.Std(),
		SendTimeout:      cfg.Dispatch.SendTimeout.Std(),
	}, sink, logger)
	go dispatcher.Run(ctx)

	escalation := alert.NewEscalationTimer(cfg.Dispatch.EscalationWindow.Std())
	monitor := logic.NewMonitor(cfg.Device.ID, cfg.LogicThresholds())
	store := sensor.NewIngestStore(cfg.Device.StaleAfter.Std())

	button, err := gpio.NewRealButton(pinButton)
	if err != nil {
		// An unreadable button degrades to web-only acknowledgment.
		logger.Warn("acknowledge button unavailable", zap.Error(err))
		button = nil
	}
	if button != nil {
		defer button.Close()
	}
	buzzer, err := gpio.NewRealBuzzer(pinBuzzer)
	if err != nil {
		logger.Warn("buzzer unavailable", zap.Error(err))
		buzzer = nil
	}
	if buzzer != nil {
		defer buzzer.Close()
	}

	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	defer publisher.Close()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	}

	ackCh := make(chan string, 4)
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, store, func() {
			select {
			case ackCh <- "web":
			default:
			}
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http server listening", zap.String("addr", httpAddr))
	}

	logger.Info("started",
		zap.Duration("poll", poll),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Strings("channels", cfg.Dispatch.Channels),
		zap.Duration("cooldown", cfg.Dispatch.Cooldown.Std()),
		zap.Duration("escalation_window", cfg.Dispatch.EscalationWindow.Std()),
	)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		src:        store,
		monitor:    monitor,
		dispatcher: dispatcher,
		escalation: escalation,
		button:     buttonOrNil(button),
		buzzer:     buzzerOrNil(buzzer),
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		journal:    jstore,
		channels:   channels,
		logger:     logger,
		heartbeat:  heartbeat,
		now:        time.Now,
	}, ticker.C, sigCh, ackCh)
}

// buttonOrNil converts a typed nil into a nil interface.
func buttonOrNil(b *gpio.RealButton) gpio.Button {
	if b == nil {
		return nil
	}
	return b
}

func buzzerOrNil(z *gpio.RealBuzzer) gpio.Buzzer {
	if z == nil {
		return nil
	}
	return z
}

// buildChannels assembles the notification channels in the configured try
// order. A channel with no endpoint configured is left out; its Available
// would always be false anyway.
func buildChannels(cfg *config.Config, logger *zap.Logger) ([]alert.Channel, func(), error) {
	var channels []alert.Channel
	cleanup := func() {}

	for _, name := range cfg.Dispatch.Channels {
		switch name {
		case webhook.ChannelName:
			if cfg.Remote.URL == "" {
				logger.Warn("remote channel disabled: no URL configured")
				continue
			}
			channels = append(channels, webhook.New(webhook.Config{
				URL:       cfg.Remote.URL,
				Timeout:   cfg.Remote.Timeout.Std(),
				AuthToken: cfg.Remote.AuthToken,
			}, logger))

		case modem.ChannelName:
			if cfg.Modem.Recipient == "" {
				logger.Warn("modem channel disabled: no recipient configured")
				continue
			}
			port, err := modem.Open(cfg.Modem.Device, cfg.Modem.Baud)
			if err != nil {
				// Boot without the modem rather than not at all; the channel
				// stays out of the rotation until the next restart.
				logger.Warn("modem channel disabled: cannot open port",
					zap.String("device", cfg.Modem.Device), zap.Error(err))
				continue
			}
			prev := cleanup
			cleanup = func() { port.Close(); prev() }
			channels = append(channels, modem.New(port, cfg.Modem.Recipient, logger))
		}
	}

	if len(channels) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("no notification channel configured: set remote.url or modem.recipient")
	}
	return channels, cleanup, nil
}

// loopDeps carries everything the loop touches, so tests can run it with
// fakes and a hand-cranked clock.
type loopDeps struct {
	src        sensor.Source
	monitor    *logic.Monitor
	dispatcher *alert.Dispatcher
	escalation *alert.EscalationTimer
	button     gpio.Button // nil when no hardware button
	buzzer     gpio.Buzzer // nil when no hardware buzzer
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	journal    *journal.Store // nil disables persistence
	channels   []alert.Channel
	logger     *zap.Logger
	heartbeat  time.Duration
	now        func() time.Time
}

func runLoop(d loopDeps, tick <-chan time.Time, sig <-chan os.Signal, ack <-chan string) error {
	lastHeartbeat := d.now()
	buttonWasDown := false

	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.logger.Info("shutting down", zap.String("signal", signalName))

			event := mqtt.SystemEvent{
				Timestamp: d.now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}
			event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", signalName)
			if err := d.publisher.PublishSystem(event); err != nil {
				d.logger.Warn("failed to publish shutdown event", zap.Error(err))
			}
			return nil

		case <-tick:
			t := d.now()

			// Web acknowledgments arrive between ticks; handle them on the
			// same cadence as the button so ordering stays single-threaded.
			select {
			case source := <-ack:
				d.acknowledge(source)
			default:
			}

			if d.button != nil {
				down, err := d.button.Pressed()
				if err != nil {
					d.logger.Warn("button read error", zap.Error(err))
				} else {
					// Rising edge only; a held button is one acknowledgment.
					if down && !buttonWasDown {
						d.acknowledge("button")
					}
					buttonWasDown = down
				}
			}

			sample, err := d.src.Read()
			if err != nil {
				d.logger.Warn("sample read error", zap.Error(err))
				continue
			}

			prev := d.monitor.State()
			res := d.monitor.Process(sample)
			if res.State != prev {
				d.publishTransition(prev, res.State, t)
			}

			for _, event := range res.Alerts {
				d.recordEvent(event)
				outcome, queued := d.dispatcher.Enqueue(event)
				d.logger.Info("alert raised",
					zap.String("kind", string(event.Kind)),
					zap.String("episode_id", event.EpisodeID),
					zap.String("dispatch", string(outcome)),
				)
				// The countdown starts whenever a fall notification goes out,
				// not only when it succeeds: an undelivered alert is exactly
				// the case that must escalate.
				if event.Kind == logic.KindFall && queued {
					d.escalation.Arm(event, t)
				}
			}
			for _, id := range res.ClosedEpisodes {
				d.dispatcher.CloseEpisode(id)
			}

			if emergency := d.escalation.CheckDeadline(t); emergency != nil {
				d.logger.Error("escalation window expired",
					zap.String("episode_id", emergency.EpisodeID))
				d.recordEvent(*emergency)
				d.dispatcher.Enqueue(*emergency)
			}

			if d.buzzer != nil {
				if err := d.buzzer.Set(res.State == logic.StateFallConfirmed); err != nil {
					d.logger.Warn("buzzer error", zap.Error(err))
				}
			}

			d.updateTracker(sample.Time)

			if d.heartbeat > 0 && t.Sub(lastHeartbeat) >= d.heartbeat {
				lastHeartbeat = t
				d.publishHeartbeat(t)
			}
		}
	}
}

// acknowledge is the wearer's "I'm OK": stop the countdown, force the
// state back to NORMAL, close open episodes, silence the buzzer.
func (d loopDeps) acknowledge(source string) {
	acked := d.escalation.Acknowledge()
	d.escalation.Reset()

	prev := d.monitor.State()
	closed := d.monitor.Reset()
	for _, id := range closed {
		d.dispatcher.CloseEpisode(id)
	}
	if prev != logic.StateNormal {
		d.publishTransition(prev, logic.StateNormal, d.now())
	}
	if d.buzzer != nil {
		if err := d.buzzer.Set(false); err != nil {
			d.logger.Warn("buzzer error", zap.Error(err))
		}
	}

	d.logger.Info("wearer acknowledged",
		zap.String("source", source),
		zap.String("previous_state", string(prev)),
		zap.Bool("countdown_stopped", acked),
		zap.Strings("closed_episodes", closed),
	)
	d.updateTracker(time.Time{})
}

func (d loopDeps) publishTransition(from, to logic.SafetyState, t time.Time) {
	episodeID := ""
	if ep := d.monitor.FallEpisode(); ep != nil {
		episodeID = ep.ID
	}
	d.logger.Info("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("episode_id", episodeID),
	)
	if err := d.publisher.Publish(mqtt.TransitionEvent{
		Timestamp: t,
		From:      from,
		To:        to,
		EpisodeID: episodeID,
		DeviceID:  d.monitor.DeviceID(),
	}); err != nil {
		d.logger.Warn("transition publish error", zap.Error(err))
	}
}

func (d loopDeps) publishHeartbeat(t time.Time) {
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	d.updateTracker(time.Time{})

	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.logger.Warn("heartbeat publish error", zap.Error(err))
	}
}

// updateTracker pushes the loop-side view into the status tracker.
// A zero lastSampleAt means no new sample this call.
func (d loopDeps) updateTracker(lastSampleAt time.Time) {
	episodeID := ""
	if ep := d.monitor.FallEpisode(); ep != nil {
		episodeID = ep.ID
	}
	d.tracker.Update(d.monitor.State(), episodeID, d.monitor.CountsSnapshot(), lastSampleAt)
	d.tracker.SetEscalation(d.escalation.State(), d.escalation.Deadline())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}

	remote, modemOK := false, false
	for _, ch := range d.channels {
		switch ch.Name() {
		case webhook.ChannelName:
			remote = ch.Available()
		case modem.ChannelName:
			modemOK = ch.Available()
		}
	}
	d.tracker.SetChannelHealth(remote, modemOK)
}

// journalSink persists dispatch attempts; a write failure is logged and
// otherwise ignored so telemetry trouble never blocks alerting.
type journalSink struct {
	store  *journal.Store
	logger *zap.Logger
}

func (j journalSink) RecordAttempt(a alert.Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.store.RecordAttempt(ctx, a); err != nil {
		j.logger.Warn("journal attempt write failed", zap.Error(err))
	}
}

// multiSink fans one attempt out to several sinks.
type multiSink []alert.AttemptSink

func (m multiSink) RecordAttempt(a alert.Attempt) {
	for _, s := range m {
		s.RecordAttempt(a)
	}
}

// recordEvent journals an alert event if the journal is open.
func (d loopDeps) recordEvent(event logic.AlertEvent) {
	if d.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.journal.RecordEvent(ctx, event); err != nil {
		d.logger.Warn("journal event write failed", zap.Error(err))
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
