package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testYaml = `
i2c:
  bus: "/dev/i2c-1"
  addr: 0x28
  tcpcaddr: 0x2c
gpio:
  cabledet: 17
  interrupt: 27
  enable: 22
  reset: 23
  vbus: 24
  vconn: 25
sourcecaps: [0x36019032]
sinkcaps: [0x0001912c, 0x0001912c]
webserver:
  url: http://0.0.0.0:4000
  webservices:
    version: true
    health: true
    status: true
    reset: false
mqtt:
  connection: tcp:broker:1883
  topic: /usbc/port0
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anxd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	c := NewConfig()
	c.Flag.ConfigFile = writeConfig(t, testYaml)

	if err := c.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig = %v", err)
	}

	if c.I2C.Bus != "/dev/i2c-1" || c.I2C.Addr != 0x28 || c.I2C.TCPCAddr != 0x2c {
		t.Errorf("i2c config = %+v", c.I2C)
	}
	if c.Gpio.CableDet != 17 || c.Gpio.Interrupt != 27 {
		t.Errorf("gpio config = %+v", c.Gpio)
	}
	if len(c.SourceCaps) != 1 || c.SourceCaps[0] != 0x36019032 {
		t.Errorf("sourcecaps = %#x", c.SourceCaps)
	}
	if len(c.SinkCaps) != 2 {
		t.Errorf("sinkcaps = %#x", c.SinkCaps)
	}
	if c.Webserver.Webservices["reset"] {
		t.Errorf("reset webservice enabled despite config")
	}
	if c.MQTT.Topic != "/usbc/port0" {
		t.Errorf("mqtt topic = %q", c.MQTT.Topic)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	c := NewConfig()
	c.Flag.ConfigFile = writeConfig(t, "i2c:\n  bus: /dev/i2c-0\n")

	if err := c.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig = %v", err)
	}

	if c.I2C.Addr != 0x28 || c.I2C.TCPCAddr != 0x2c {
		t.Errorf("default addresses not kept: %+v", c.I2C)
	}
	if len(c.SourceCaps) != 1 || len(c.SinkCaps) != 1 {
		t.Errorf("default capability sets not kept")
	}
	if c.Platform.PowerSupply == "" || c.Platform.RoleSwitch == "" {
		t.Errorf("default platform paths not kept: %+v", c.Platform)
	}
}

func TestLoadConfigRejectsEmptyCaps(t *testing.T) {
	c := NewConfig()
	c.Flag.ConfigFile = writeConfig(t, "sourcecaps: []\n")

	if err := c.LoadConfig(); err == nil {
		t.Fatalf("LoadConfig accepted an empty sourcecaps set")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	c := NewConfig()
	c.Flag.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := c.LoadConfig(); err == nil {
		t.Fatalf("LoadConfig succeeded on a missing file")
	}
}
