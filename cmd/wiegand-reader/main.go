// Command wiegand-reader decodes a Wiegand bus on two GPIO lines and publishes
// raw frames to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/wiegand-reader/internal/config"
	"github.com/sweeney/wiegand-reader/internal/diag"
	"github.com/sweeney/wiegand-reader/internal/edge"
	"github.com/sweeney/wiegand-reader/internal/mqtt"
	"github.com/sweeney/wiegand-reader/internal/reader"
	"github.com/sweeney/wiegand-reader/internal/status"
	"github.com/sweeney/wiegand-reader/internal/web"
	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

// diagCapacity bounds the decoder's diagnostic backlog.
const diagCapacity = 64

func main() {
	cfg, dump, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, dump); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags layers the config file and then any explicitly set flags over
// the defaults, and validates the result.
func parseFlags(fs *flag.FlagSet, args []string) (*config.Config, bool, error) {
	def := config.Default()
	fl := config.Default()

	path := fs.String("config", "", "YAML config file (optional)")
	dump := fs.Bool("dump", false, "Wait for one frame, print it and exit")
	fs.StringVar(&fl.GPIO.Backend, "backend", def.GPIO.Backend, `Edge source: "gpiocdev" or "periph"`)
	fs.StringVar(&fl.GPIO.Chip, "chip", def.GPIO.Chip, "GPIO chip name (gpiocdev backend)")
	fs.IntVar(&fl.GPIO.D0, "d0", def.GPIO.D0, "Line carrying 0-bits (DATA0)")
	fs.IntVar(&fl.GPIO.D1, "d1", def.GPIO.D1, "Line carrying 1-bits (DATA1)")
	interval := fs.Uint("max-bit-interval", uint(def.Decoder.MaxBitIntervalUs), "Silence in microseconds that ends a frame")
	fs.DurationVar(&fl.Poll, "poll", def.Poll, "Frame polling interval")
	fs.DurationVar(&fl.Heartbeat, "heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&fl.MQTT.Broker, "broker", def.MQTT.Broker, "MQTT broker address")
	fs.StringVar(&fl.MQTT.ClientID, "client-id", def.MQTT.ClientID, "MQTT client ID, also used in topics")
	fs.StringVar(&fl.MQTT.TopicPrefix, "topic-prefix", def.MQTT.TopicPrefix, "MQTT topic prefix")
	fs.StringVar(&fl.HTTP.Addr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if uint64(*interval) > math.MaxUint32 {
		return nil, false, fmt.Errorf("invalid -max-bit-interval %d: must not exceed %d", *interval, uint32(math.MaxUint32))
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, false, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.GPIO.Backend = fl.GPIO.Backend
		case "chip":
			cfg.GPIO.Chip = fl.GPIO.Chip
		case "d0":
			cfg.GPIO.D0 = fl.GPIO.D0
		case "d1":
			cfg.GPIO.D1 = fl.GPIO.D1
		case "max-bit-interval":
			cfg.Decoder.MaxBitIntervalUs = uint32(*interval)
		case "poll":
			cfg.Poll = fl.Poll
		case "heartbeat":
			cfg.Heartbeat = fl.Heartbeat
		case "broker":
			cfg.MQTT.Broker = fl.MQTT.Broker
		case "client-id":
			cfg.MQTT.ClientID = fl.MQTT.ClientID
		case "topic-prefix":
			cfg.MQTT.TopicPrefix = fl.MQTT.TopicPrefix
		case "http":
			cfg.HTTP.Addr = fl.HTTP.Addr
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, *dump, nil
}

func openSource(cfg *config.Config, registry *edge.Registry) (edge.Source, error) {
	switch cfg.GPIO.Backend {
	case config.BackendPeriph:
		src, err := edge.NewPeriphSource(registry)
		if err != nil {
			return nil, fmt.Errorf("init periph: %w", err)
		}
		return src, nil
	default:
		src, err := edge.NewChipSource(cfg.GPIO.Chip, registry)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.GPIO.Chip, err)
		}
		return src, nil
	}
}

func run(cfg *config.Config, dump bool) error {
	src, err := openSource(cfg, edge.NewRegistry())
	if err != nil {
		return err
	}
	defer src.Close()

	sink := diag.NewLogSink(log.Default(), diagCapacity)
	defer sink.Close()

	dec := wiegand.New(cfg.GPIO.D0, cfg.GPIO.D1, src, wiegand.NewSystemClock(),
		wiegand.WithMaxBitInterval(cfg.Decoder.MaxBitIntervalUs),
		wiegand.WithSink(sink),
	)
	if err := dec.Begin(); err != nil {
		return fmt.Errorf("start decoder: %w", err)
	}
	low, high := dec.Lines()
	log.Printf("decoder on %s, frames end after %v of silence",
		describeLines(src.Capabilities(), low, high), cfg.MaxBitInterval())

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)

	// Dump mode
	if dump {
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		log.Printf("waiting for a frame")
		return dumpOne(dec, ticker.C, sigCh)
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:          cfg.GPIO.Backend,
		D0:               cfg.GPIO.D0,
		D1:               cfg.GPIO.D1,
		PollMs:           cfg.Poll.Milliseconds(),
		MaxBitIntervalUs: dec.MaxBitInterval(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
	})
	tracker.Update(dec.Status(), reader.Counts{}, nil)
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	publishSystem(publisher, tracker, "STARTUP", "", time.Now())

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: backend=%s d0=%d d1=%d poll=%v interval=%dus broker=%s heartbeat=%v",
		cfg.GPIO.Backend, cfg.GPIO.D0, cfg.GPIO.D1, cfg.Poll, cfg.Decoder.MaxBitIntervalUs, cfg.MQTT.Broker, cfg.Heartbeat)

	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	return runLoop(dec, publisher, publisher, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

// describeLines names the data lines the way the platform labels them.
func describeLines(caps edge.Capabilities, d0, d1 int) string {
	name := func(line int) string {
		if c, ok := caps[line]; ok && c.Name != "" {
			return fmt.Sprintf("%d (%s)", line, c.Name)
		}
		return fmt.Sprint(line)
	}
	return fmt.Sprintf("d0=%s d1=%s", name(d0), name(d1))
}

// capture is the part of *wiegand.Decoder the run loop drives.
type capture interface {
	reader.FrameSource
	Suspend()
	Resume()
}

func runLoop(dec capture, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	monitor := reader.NewMonitor(dec, now())
	suspended := false

	refresh := func() {
		if tracker == nil {
			return
		}
		tracker.Update(monitor.CurrentStatus(), monitor.CountsSnapshot(), monitor.LastFrame())
		tracker.SetSuspended(suspended)
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			switch s {
			case syscall.SIGUSR1:
				if suspended {
					continue
				}
				dec.Suspend()
				suspended = true
				log.Printf("capture suspended")
				refresh()
				publishSystem(publisher, tracker, "SUSPENDED", "", now())
				continue
			case syscall.SIGUSR2:
				if !suspended {
					continue
				}
				dec.Resume()
				suspended = false
				log.Printf("capture resumed")
				refresh()
				publishSystem(publisher, tracker, "RESUMED", "", now())
				continue
			}

			log.Printf("received %v, shutting down", s)
			refresh()
			publishSystem(publisher, tracker, "SHUTDOWN", signalName(s), now())
			return nil

		case <-tick:
			t := now()

			for _, event := range monitor.Process(t) {
				logEvent(event)
				if err := publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			if hb := monitor.CheckHeartbeat(t, heartbeat); hb != nil {
				log.Printf("heartbeat: uptime=%v frames=%d errors=%d overruns=%d",
					hb.Uptime, hb.Counts.Frames, hb.Counts.Errors, hb.Counts.Overruns)
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
				}
				refresh()
				publishSystem(publisher, tracker, "HEARTBEAT", "", hb.Timestamp)
			}

			// Update status tracker for HTTP consumers
			refresh()
		}
	}
}

// publishSystem sends a system event carrying the tracker's status snapshot.
// Failures are logged only.
func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, name, reason string, t time.Time) {
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     name,
		Reason:    reason,
		Retained:  name != "HEARTBEAT",
	}
	if tracker != nil {
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), name, reason)
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", name, err)
		return
	}
	log.Printf("published %s event", name)
}

func logEvent(e reader.Event) {
	switch e.Type {
	case reader.EventFrame:
		log.Printf("frame: %d bits hex=%s elapsed=%dus", e.BitCount, e.Hex, e.ElapsedMicros)
	case reader.EventOverrun:
		log.Printf("overrun: %d unread frame(s) dropped", e.Dropped)
	default:
		log.Printf("event: %s", e.Type)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// dumper is the part of *wiegand.Decoder dump mode needs.
type dumper interface {
	TryFinishFrame() bool
	Status() wiegand.State
	Frame() wiegand.Frame
	Dump()
}

// dumpOne polls until a frame completes or the decoder errors, then writes it
// to the diagnostic log and stdout.
func dumpOne(dec dumper, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			return fmt.Errorf("interrupted by %v before a frame arrived", s)
		case <-tick:
			if dec.TryFinishFrame() {
				dec.Dump()
				f := dec.Frame()
				fmt.Printf("%d bits: %s (0x%s) in %dus\n", f.BitCount, f.BitString(), f.Hex(), f.TotalMicros)
				return nil
			}
			if dec.Status() == wiegand.Error {
				dec.Dump()
				return errors.New("decoder error while waiting for a frame")
			}
		}
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
