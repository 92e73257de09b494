// Command moisture-sensor samples soil-moisture probes on GPIO pins and
// streams the readings to a unix socket or a message broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"github.com/womat/debug"

	"github.com/sweeney/moisture-sensor/internal/config"
	"github.com/sweeney/moisture-sensor/internal/format"
	"github.com/sweeney/moisture-sensor/internal/gpio"
	"github.com/sweeney/moisture-sensor/internal/pipeline"
	"github.com/sweeney/moisture-sensor/internal/sampler"
	"github.com/sweeney/moisture-sensor/internal/shutdown"
	"github.com/sweeney/moisture-sensor/internal/sink"
	"github.com/sweeney/moisture-sensor/internal/status"
	"github.com/sweeney/moisture-sensor/internal/web"
)

const (
	appName         = "moisture-sensor"
	defaultEnvFile  = "/run/pi-helper.env"
	defaultExchange = "moisture"
)

// options holds the global command line flags.
type options struct {
	configPath string
	interval   time.Duration
	device     string
	driver     string
	chip       string
	pullSettle time.Duration
	logLevel   string
	httpAddr   string
	envFile    string
}

// runner is the publish loop of a sink.
type runner interface {
	Run(ctx context.Context, feed sink.Feed) error
}

// sinkSpec describes the selected sink. open is called after the sensors
// are initialized; the returned close func may be nil.
type sinkSpec struct {
	kind     string
	target   string
	exchange string
	encoding format.Encoding
	open     func(rec sink.Recorder) (runner, func() error, error)
}

// openDevice opens the GPIO backend selected by the flags.
var openDevice = func(o options) (gpio.Device, error) {
	switch o.driver {
	case "", "mmap":
		return gpio.Open(o.device, gpio.WithPullSettle(o.pullSettle))
	case "cdev":
		return gpio.OpenChip(o.chip)
	}
	return nil, fmt.Errorf("unknown gpio driver %q (want mmap or cdev)", o.driver)
}

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	if err := newApp().Run(os.Args); err != nil {
		debug.FatalLog.Print(err)
		return
	}
	exitCode = 0
}

func newApp() *cli.App {
	var o options
	var intervalSecs int

	app := &cli.App{
		Name:  appName,
		Usage: "stream soil-moisture samples to a unix socket or a message broker",
		UsageText: appName + " --config <file> [global options] socket|amqp|mqtt [options]" +
			"\n\nEXAMPLE:" +
			"\n\tstream raw samples to a local socket" +
			"\n\t\t" + appName + " -c /etc/moisture.toml socket --path /run/moisture.sock",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &o.configPath, Required: true, Usage: "load sensor configuration from `FILE` (.toml, .yaml)"},
			&cli.IntFlag{Name: "interval", Aliases: []string{"i"}, Destination: &intervalSecs, Value: 1, Usage: "default sample interval in `SECONDS`"},
			&cli.StringFlag{Name: "gpio", Destination: &o.device, Value: gpio.DefaultDevice, Usage: "GPIO memory `DEVICE` (mmap driver)"},
			&cli.StringFlag{Name: "driver", Destination: &o.driver, Value: "mmap", Usage: "GPIO `DRIVER` (mmap|cdev)"},
			&cli.StringFlag{Name: "chip", Destination: &o.chip, Value: gpio.DefaultChip, Usage: "GPIO `CHIP` (cdev driver)"},
			&cli.DurationFlag{Name: "pull-settle", Destination: &o.pullSettle, Value: gpio.DefaultPullSettle, Usage: "settle `TIME` around pull resistor changes"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &o.logLevel, Value: "standard", Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
			&cli.StringFlag{Name: "http", Destination: &o.httpAddr, Usage: "HTTP status `ADDR` (empty to disable)"},
			&cli.StringFlag{Name: "env-file", Destination: &o.envFile, Value: defaultEnvFile, Usage: "pi-helper network `FILE`"},
		},
		Before: func(*cli.Context) error {
			if intervalSecs < 1 {
				return fmt.Errorf("invalid interval %d: must be at least 1 second", intervalSecs)
			}
			o.interval = time.Duration(intervalSecs) * time.Second
			return setLogLevel(o.logLevel)
		},
		Commands: []*cli.Command{
			socketCommand(&o),
			amqpCommand(&o),
			mqttCommand(&o),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	return app
}

func socketCommand(o *options) *cli.Command {
	var path, encoding string
	return &cli.Command{
		Name:  "socket",
		Usage: "stream samples to clients of a unix socket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Destination: &path, Required: true, Usage: "socket `PATH`"},
			&cli.StringFlag{Name: "encoding", Destination: &encoding, Value: string(format.Raw), Usage: "payload `ENCODING` (raw|json|text)"},
		},
		Action: func(c *cli.Context) error {
			enc, err := format.ParseEncoding(encoding)
			if err != nil {
				return err
			}
			return run(c.Context, *o, sinkSpec{
				kind:     "socket",
				target:   path,
				encoding: enc,
				open: func(rec sink.Recorder) (runner, func() error, error) {
					return newSocketSink(path, o.interval, rec), nil, nil
				},
			})
		},
	}
}

// newSocketSink bounds each write by the sample interval, so a client that
// stops reading fails like a disconnected one.
func newSocketSink(path string, interval time.Duration, rec sink.Recorder) *sink.SocketSink {
	return &sink.SocketSink{Path: path, WriteTimeout: interval, Recorder: rec}
}

func amqpCommand(o *options) *cli.Command {
	var cfg sink.AMQPConfig
	var encoding string
	return &cli.Command{
		Name:  "amqp",
		Usage: "publish samples to a RabbitMQ exchange",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Destination: &cfg.Host, Required: true, Usage: "broker `HOST:PORT` or amqp:// URL"},
			&cli.StringFlag{Name: "exchange", Aliases: []string{"e"}, Destination: &cfg.Exchange, Required: true, Usage: "`EXCHANGE` to publish to"},
			&cli.StringFlag{Name: "encoding", Destination: &encoding, Value: string(format.JSON), Usage: "payload `ENCODING` (raw|json|text)"},
			&cli.BoolFlag{Name: "persistent", Destination: &cfg.Persistent, Usage: "publish with persistent delivery mode"},
			&cli.StringFlag{Name: "content-type", Destination: &cfg.ContentType, Usage: "message content `TYPE` (default: derived from encoding)"},
			&cli.BoolFlag{Name: "timestamp", Destination: &cfg.Timestamp, Usage: "stamp messages with the publish time"},
		},
		Action: func(c *cli.Context) error {
			enc, err := format.ParseEncoding(encoding)
			if err != nil {
				return err
			}
			if cfg.ContentType == "" {
				cfg.ContentType = format.New(enc, "", "").ContentType()
			}
			return run(c.Context, *o, sinkSpec{
				kind:     "amqp",
				target:   cfg.Host,
				exchange: cfg.Exchange,
				encoding: enc,
				open: func(rec sink.Recorder) (runner, func() error, error) {
					pub, err := sink.DialAMQP(cfg)
					if err != nil {
						return nil, nil, err
					}
					return &sink.QueueSink{Publisher: pub, Recorder: rec}, pub.Close, nil
				},
			})
		},
	}
}

func mqttCommand(o *options) *cli.Command {
	cfg := sink.MQTTConfig{ClientID: appName}
	var encoding string
	var qos int
	return &cli.Command{
		Name:  "mqtt",
		Usage: "publish samples to an MQTT broker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "broker", Destination: &cfg.Broker, Required: true, Usage: "broker `URL`, e.g. tcp://127.0.0.1:1883"},
			&cli.StringFlag{Name: "exchange", Aliases: []string{"e"}, Destination: &cfg.Exchange, Value: defaultExchange, Usage: "topic `PREFIX`; samples go to <PREFIX>/sensor"},
			&cli.StringFlag{Name: "encoding", Destination: &encoding, Value: string(format.JSON), Usage: "payload `ENCODING` (raw|json|text)"},
			&cli.IntFlag{Name: "qos", Destination: &qos, Value: 0, Usage: "publish `QOS` (0|1|2)"},
		},
		Action: func(c *cli.Context) error {
			enc, err := format.ParseEncoding(encoding)
			if err != nil {
				return err
			}
			if qos < 0 || qos > 2 {
				return fmt.Errorf("invalid qos %d", qos)
			}
			cfg.QoS = byte(qos)
			return run(c.Context, *o, sinkSpec{
				kind:     "mqtt",
				target:   cfg.Broker,
				exchange: cfg.Topic(),
				encoding: enc,
				open: func(rec sink.Recorder) (runner, func() error, error) {
					pub, err := sink.DialMQTT(cfg)
					if err != nil {
						return nil, nil, err
					}
					return &sink.QueueSink{Publisher: pub, Recorder: rec}, pub.Close, nil
				},
			})
		},
	}
}

func setLogLevel(level string) error {
	switch level {
	case "trace", "full":
		debug.SetDebug(os.Stderr, debug.Full)
	case "debug":
		debug.SetDebug(os.Stderr, debug.Warning|debug.Info|debug.Error|debug.Fatal|debug.Debug)
	case "standard", "":
		debug.SetDebug(os.Stderr, debug.Standard)
	default:
		return fmt.Errorf("unknown log level %q (want standard, debug or trace)", level)
	}
	return nil
}

// run loads the configuration, prepares the sensors and runs the sink until
// ctx is done, a shutdown signal arrives or the sink fails. The sensors are
// cleared and the device closed on every path out.
func run(ctx context.Context, o options, spec sinkSpec) (err error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	debug.InfoLog.Printf("loaded %d sensor(s) from %s", len(cfg.Sensors), o.configPath)

	dev, err := openDevice(o)
	if err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close gpio: %w", cerr))
		}
	}()
	pins := gpio.NewLocked(dev)

	tracker := status.NewTracker(time.Now(), status.Config{
		Sink:       spec.kind,
		Target:     spec.target,
		Exchange:   spec.exchange,
		Encoding:   string(spec.encoding),
		Driver:     o.driver,
		Device:     deviceName(o),
		IntervalMs: o.interval.Milliseconds(),
		HTTPAddr:   o.httpAddr,
	})

	// Signals are caught from here on; every path below clears the sensors.
	sig := shutdown.New()
	stop := sig.Notify(os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := sig.Context(ctx)
	defer cancel()

	sources, err := initSources(cfg, pins, o.interval, spec.encoding, tracker)
	if err != nil {
		return err
	}
	stream := pipeline.New(sources, tracker)
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		debug.InfoLog.Printf("sensors cleared")
	}()

	loadEnvFile(o.envFile)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		if _, err := srv.Start(); err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
	}

	if sig.Triggered() {
		debug.InfoLog.Printf("shutdown requested during startup")
		return nil
	}

	sk, closeSink, err := spec.open(tracker)
	if err != nil {
		return fmt.Errorf("open %s sink: %w", spec.kind, err)
	}
	if closeSink != nil {
		defer func() {
			if cerr := closeSink(); cerr != nil {
				debug.ErrorLog.Printf("close %s sink: %v", spec.kind, cerr)
			}
		}()
	}

	debug.InfoLog.Printf("started: sink=%s target=%s encoding=%s interval=%v", spec.kind, spec.target, spec.encoding, o.interval)
	return sk.Run(ctx, stream)
}

// initSources initializes one sampler per configured sensor. If any Init
// fails, every sensor touched so far is cleared again.
func initSources(cfg *config.Config, pins *gpio.Locked, interval time.Duration, enc format.Encoding, tracker *status.Tracker) ([]pipeline.Source, error) {
	var sources []pipeline.Source
	for _, sc := range cfg.Sensors {
		iv := sc.Interval
		if iv == 0 {
			iv = interval
		}
		smp := sampler.New(sc.Probe(), pins, iv)
		if err := smp.Init(); err != nil {
			errs := []error{fmt.Errorf("sensor %s: %w", sc.ID, err)}
			if cerr := smp.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
			for _, src := range sources {
				if cerr := src.Sampler.Close(); cerr != nil {
					errs = append(errs, cerr)
				}
			}
			return nil, errors.Join(errs...)
		}
		tracker.AddSensor(sc.ID, sc.Type, int(sc.Power), int(sc.Sense))
		debug.InfoLog.Printf("sensor %s: %s pwr=%d val=%d settle=%v interval=%v polarity=%s",
			sc.ID, sc.Type, sc.Power, sc.Sense, sc.Settle, iv, sc.Polarity)
		sources = append(sources, pipeline.Source{
			Sampler: smp,
			Format:  format.New(enc, sc.ID, sc.Type),
		})
	}
	return sources, nil
}

func deviceName(o options) string {
	if o.driver == "cdev" {
		return o.chip
	}
	return o.device
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

// loadEnvFile merges the pi-helper env file into the environment.
// Variables already set win.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			debug.DebugLog.Printf("env file %s not found", path)
			return
		}
		debug.ErrorLog.Printf("load env file %s: %v", path, err)
	}
}

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
