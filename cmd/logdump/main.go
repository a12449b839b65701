// Command logdump talks to a LOCUS-capable GPS module from a development
// host over a USB serial adapter: query the logger, start and stop it, and
// dump the recorded points to CSV.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
	"gopkg.in/yaml.v2"

	"tracklog-go/errcode"
	"tracklog-go/gps"
	"tracklog-go/hal"
	"tracklog-go/x/conv"
)

var (
	configPath = flag.String("config", "", "YAML config path (optional)")
	device     = flag.String("device", "", "serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "baud rate (overrides config)")
	output     = flag.String("output", "", "CSV output path for dump (overrides config)")
)

// Config mirrors the YAML file. Flags override anything set here.
type Config struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	Output string `yaml:"output"`
}

func defaultConfig() Config {
	return Config{
		Device: "/dev/ttyUSB0",
		Baud:   9600,
		Output: "points.csv",
	}
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", *configPath, err)
		}
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *baud != 0 {
		cfg.Baud = *baud
	}
	if *output != "" {
		cfg.Output = *output
	}
	return cfg, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: logdump [flags] <command>")
	fmt.Fprintln(os.Stderr, "commands: status | start | stop | erase | dump | interval <secs> | restart")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		fatal(fmt.Errorf("open %s: %w", cfg.Device, err))
	}
	defer port.Close()

	drv := gps.New(&serialTransport{port: port}, newWallClock(), false)

	switch cmd := flag.Arg(0); cmd {
	case "status":
		st, err := drv.LoggerStatus()
		if err != nil {
			fatal(err)
		}
		state := "stopped"
		if st.On {
			state = "logging"
		}
		fmt.Printf("logger %s, interval %ds, %d records, flash %s full\n",
			state, st.Interval, st.RecordCount, st.PercentFull)
	case "start":
		run(drv.StartLogging)
	case "stop":
		run(drv.StopLogging)
	case "erase":
		run(drv.EraseLogs)
	case "restart":
		run(drv.HotRestart)
	case "interval":
		if flag.NArg() < 2 {
			usage()
			os.Exit(2)
		}
		secs, ok := conv.ParseU32([]byte(flag.Arg(1)))
		if !ok || secs == 0 {
			fatal(fmt.Errorf("bad interval %q", flag.Arg(1)))
		}
		run(func() error { return drv.ConfigureLogInterval(secs) })
	case "dump":
		if err := dump(drv, cfg.Output); err != nil {
			fatal(err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func run(op func() error) {
	if err := op(); err != nil {
		fatal(err)
	}
	fmt.Println("ok")
}

func dump(drv *gps.Driver, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := fmt.Fprintln(out, "timestamp,fix,lat,lon,height_m"); err != nil {
		return err
	}

	count := 0
	err = drv.ReadLogs(func(estimate int, p gps.LoggedPoint) {
		count++
		fmt.Fprintf(out, "%d,%d,%.6f,%.6f,%d\n", p.Timestamp, p.Fix, p.Lat, p.Lon, p.Height)
		fmt.Fprintf(os.Stderr, "\r%d points (of at most %d)", count, estimate)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d points to %s\n", count, path)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// -----------------------------------------------------------------------------
// hal bindings for the host
// -----------------------------------------------------------------------------

// serialTransport adapts a tarm port. The port's ReadTimeout makes Read
// return without data instead of blocking, which is exactly TryRecv.
type serialTransport struct {
	port *serial.Port
}

func (t *serialTransport) Send(p []byte) error {
	if len(p) == 0 {
		return errcode.InvalidParams
	}
	if _, err := t.port.Write(p); err != nil {
		return &errcode.E{C: errcode.Disconnected, Op: "serial.write", Err: err}
	}
	return nil
}

func (t *serialTransport) TryRecv(p []byte) (int, error) {
	n, err := t.port.Read(p)
	if err == io.EOF {
		return n, nil // read timeout, no data
	}
	return n, err
}

type wallClock struct {
	epoch time.Time
}

func newWallClock() *wallClock { return &wallClock{epoch: time.Now()} }

func (c *wallClock) Now() hal.Ticks {
	return hal.Ticks(time.Since(c.epoch).Microseconds())
}

func (c *wallClock) DelayUntil(t hal.Ticks) {
	now := c.Now()
	if t <= now {
		return
	}
	time.Sleep(time.Duration(t-now) * time.Microsecond)
}
