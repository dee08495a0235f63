// Package tempctl talks to a USB-attached temperature controller over
// a serial line: set a target temperature, poll the actual one.
package tempctl

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/fault-injection-lab/dramhammer/process"
)

// Config carries the serial device and line-filtering knobs.
type Config struct {
	Device       string
	IgnorePrefix byte
	OptLogger    *log.Logger
}

func (c Config) ignorePrefix() byte {
	if c.IgnorePrefix == 0 {
		return '#'
	}
	return c.IgnorePrefix
}

func (c Config) logger() *log.Logger {
	if c.OptLogger != nil {
		return c.OptLogger
	}
	return log.Default()
}

// Controller is a connected temperature controller.
type Controller struct {
	cfg    Config
	port   serial.Port
	proc   *process.Process
	target int64
}

// ConnectOrExit is the fatal-on-error counterpart of Connect.
func ConnectOrExit(cfg Config) *Controller {
	c, err := Connect(cfg)
	if err != nil {
		log.Fatalln(fmt.Errorf("failed to connect to temperature controller - %w", err))
	}
	return c
}

// Connect opens the configured serial device at the controller's
// fixed line settings.
func Connect(cfg Config) (*Controller, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %q - %w", cfg.Device, err)
	}

	return &Controller{
		cfg:  cfg,
		port: port,
		proc: process.FromReadWriteCloser(port),
	}, nil
}

func (c *Controller) Close() error {
	return c.port.Close()
}

// SetTargetTemperature sends the target temperature in Celsius.
func (c *Controller) SetTargetTemperature(target int64) error {
	c.target = target

	cmd := fmt.Sprintf("setTargetTemp;%d\n", target)
	if err := c.proc.WriteLine([]byte(strings.TrimSuffix(cmd, "\n"))); err != nil {
		return fmt.Errorf("failed to send target temperature - %w", err)
	}

	c.cfg.logger().Printf("using target temperature %d degrees C", target)
	return nil
}

// TargetTemperature returns the last temperature sent via
// SetTargetTemperature.
func (c *Controller) TargetTemperature() int64 {
	return c.target
}

// ActualTemperature asks the controller for its current reading and
// parses the reply, skipping any comment lines starting with the
// configured ignore prefix.
func (c *Controller) ActualTemperature() (int64, error) {
	if err := c.proc.WriteLine([]byte("getActualTemp;")); err != nil {
		return 0, fmt.Errorf("failed to request actual temperature - %w", err)
	}

	line, err := c.readSignificantLine()
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(string(line)), 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse temperature reply %q - %w", line, err)
	}

	return int64(f), nil
}

func (c *Controller) readSignificantLine() ([]byte, error) {
	for {
		line, err := c.proc.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("failed to read from temperature controller - %w", err)
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == c.cfg.ignorePrefix() {
			c.cfg.logger().Printf("ignoring comment line: %s", line)
			continue
		}

		return line, nil
	}
}

// WaitForTemperature polls ActualTemperature until it reports target,
// the timeout elapses, or cancel is closed. It returns false on
// timeout, true on reaching the target.
func WaitForTemperature(c *Controller, target int64, timeout time.Duration, cancel <-chan struct{}) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		actual, err := c.ActualTemperature()
		if err != nil {
			return false, err
		}
		if actual == target {
			return true, nil
		}

		select {
		case <-cancel:
			return false, nil
		default:
		}

		if timeout > 0 && time.Now().After(deadline) {
			return false, nil
		}

		time.Sleep(time.Second)
	}
}
