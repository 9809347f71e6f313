package config

import (
	"fmt"
	"io"
	"os"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	I2C        I2CConfig       `yaml:"i2c"`
	Gpio       GpioConfig      `yaml:"gpio"`
	Platform   PlatformConfig  `yaml:"platform"`
	SourceCaps []uint32        `yaml:"sourcecaps"`
	SinkCaps   []uint32        `yaml:"sinkcaps"`
	Flag       FlagConfig      `yaml:"-"`
	Debug      DebugConfig     `yaml:"debug"`
	Webserver  WebserverConfig `yaml:"webserver"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
}

// I2CConfig locates the chip's two register spaces on the bus.
type I2CConfig struct {
	Bus      string `yaml:"bus"`
	Addr     uint16 `yaml:"addr"`
	TCPCAddr uint16 `yaml:"tcpcaddr"`
}

// GpioConfig defines the BCM pin numbers of the chip's control lines.
type GpioConfig struct {
	CableDet           int    `yaml:"cabledet"`
	CableDetTerminator string `yaml:"cabledetterminator"`
	Interrupt          int    `yaml:"interrupt"`
	IntTerminator      string `yaml:"interruptterminator"`
	Enable             int    `yaml:"enable"`
	Reset              int    `yaml:"reset"`
	VBus               int    `yaml:"vbus"`
	VConn              int    `yaml:"vconn"`
	Hpd                int    `yaml:"hpd"`
}

// PlatformConfig locates the sysfs entries of the collaborating
// kernel drivers.
type PlatformConfig struct {
	PowerSupply string `yaml:"powersupply"`
	RoleSwitch  string `yaml:"roleswitch"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Version    bool
	Debug      string
	ConfigFile string
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	Topic      string `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		I2C: I2CConfig{
			Bus:      "",
			Addr:     0x28,
			TCPCAddr: 0x2c,
		},
		Gpio: GpioConfig{
			CableDetTerminator: "none",
			IntTerminator:      "pullup",
		},
		Platform: PlatformConfig{
			PowerSupply: "/sys/class/power_supply/usb",
			RoleSwitch:  "/sys/class/usb_role/usb0-role-switch/role",
		},
		// 5V 500mA source, 5V 3A sink
		SourceCaps: []uint32{0x36019032},
		SinkCaps:   []uint32{0x0001912c},
		Flag:       FlagConfig{},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"status":  true,
				"reset":   true,
			},
		},
		MQTT: MQTTConfig{
			Connection: "tcp:127.0.0.1:1883",
			Topic:      "/usbc/port"},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	return c.validateCaps()
}

// validateCaps bounds the capability sets. More than one sink
// capability is accepted here; the app warns about it, because the
// firmware silently substitutes a hardcoded battery PDO in that case.
func (c *Config) validateCaps() error {
	if n := len(c.SourceCaps); n < 1 || n > 8 {
		return fmt.Errorf("sourcecaps must have 1 to 8 entries, got %d", n)
	}
	if n := len(c.SinkCaps); n < 1 || n > 8 {
		return fmt.Errorf("sinkcaps must have 1 to 8 entries, got %d", n)
	}
	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
