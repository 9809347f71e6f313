package app

import (
	"fmt"
	"net/url"
	"time"

	"anxd/pkg/anx7688"
	"anxd/pkg/app/config"
	"anxd/pkg/mqtt"
	"anxd/pkg/pdo"
	"anxd/pkg/platform"
	"anxd/pkg/raspberry"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// supplyPollInterval is how often the upstream power supply is checked
// for charger-detection changes. Userspace has no notifier chain, so
// the state is polled and changes are detected by diffing.
const supplyPollInterval = 2 * time.Second

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// chip is the handler to the gpio character device
	chip *raspberry.Chip

	// cable and irq are the watched input lines of the bridge chip
	cable *raspberry.Line
	irq   *raspberry.Line

	// bus is the i2c bus the bridge chip hangs on
	bus i2c.BusCloser

	// ctrl drives the bridge chip's connection lifecycle
	ctrl *anx7688.Controller

	// restart signals application restart
	restart chan struct{}
	// shutdown signals application shutdown
	shutdown chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(),
		mqtt: mqtt.New(),

		restart:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}, err
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()
	go app.watchCable()
	go app.watchInterrupt()
	go app.pollSupply()

	return app.ctrl.Start()
}

// init initializes the application.
func (app *App) init() (err error) {
	if len(app.config.SinkCaps) > 1 {
		debug.WarningLog.Printf("%d sink capabilities configured, firmware substitutes its own set beyond the first", len(app.config.SinkCaps))
	}

	if app.chip, err = raspberry.Open(); err != nil {
		debug.ErrorLog.Printf("can't open gpio: %v", err)
		return err
	}

	if app.cable, err = app.chip.NewLine(app.config.Gpio.CableDet, app.config.Gpio.CableDetTerminator); err != nil {
		debug.ErrorLog.Printf("can't open cable detect line: %v", err)
		return err
	}

	if app.irq, err = app.chip.NewLine(app.config.Gpio.Interrupt, app.config.Gpio.IntTerminator); err != nil {
		debug.ErrorLog.Printf("can't open interrupt line: %v", err)
		return err
	}

	deps, err := app.wireDeps()
	if err != nil {
		return err
	}

	app.ctrl = anx7688.New(anx7688.Config{
		SrcCaps: toPDOs(app.config.SourceCaps),
		SnkCaps: toPDOs(app.config.SinkCaps),
	}, deps)

	if err = app.ctrl.Probe(); err != nil {
		debug.ErrorLog.Printf("can't probe chip: %v", err)
		return err
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initRoutes and initDefaultRoutes should be always called last because it may access things like app.api
	// which must be initialized before in initAPI()
	app.initDefaultRoutes()

	return nil
}

// wireDeps opens the i2c bus, the output pins and the sysfs
// collaborators and bundles them for the controller.
func (app *App) wireDeps() (anx7688.Deps, error) {
	var deps anx7688.Deps

	if _, err := host.Init(); err != nil {
		return deps, fmt.Errorf("can't initialize host: %w", err)
	}

	bus, err := i2creg.Open(app.config.I2C.Bus)
	if err != nil {
		return deps, fmt.Errorf("can't open i2c bus %q: %w", app.config.I2C.Bus, err)
	}
	app.bus = bus

	deps.Main = &i2c.Dev{Bus: bus, Addr: app.config.I2C.Addr}
	deps.TCPC = &i2c.Dev{Bus: bus, Addr: app.config.I2C.TCPCAddr}

	if deps.EnablePin, err = raspberry.NewOutputPin(app.config.Gpio.Enable, false); err != nil {
		return deps, err
	}
	if deps.ResetPin, err = raspberry.NewOutputPin(app.config.Gpio.Reset, true); err != nil {
		return deps, err
	}

	vbusPin, err := raspberry.NewOutputPin(app.config.Gpio.VBus, false)
	if err != nil {
		return deps, err
	}
	vconnPin, err := raspberry.NewOutputPin(app.config.Gpio.VConn, false)
	if err != nil {
		return deps, err
	}
	deps.VBus = platform.NewGpioRegulator(vbusPin, "vbus")
	deps.VConn = platform.NewGpioRegulator(vconnPin, "vconn")

	if app.config.Gpio.Hpd != 0 {
		hpdPin, err := raspberry.NewOutputPin(app.config.Gpio.Hpd, false)
		if err != nil {
			return deps, err
		}
		deps.HPD = platform.NewGpioHotPlug(hpdPin)
	} else {
		deps.HPD = platform.LogHotPlug{}
	}

	deps.Supply = platform.NewPowerSupply(app.config.Platform.PowerSupply)
	deps.RoleSw = platform.NewRoleSwitch(app.config.Platform.RoleSwitch)
	deps.CableDet = app.cable
	deps.Notify = app.publishState

	return deps, nil
}

// watchCable forwards cable detect edges to the controller.
func (app *App) watchCable() {
	for e := range app.cable.C {
		debug.TraceLog.Printf("cable detect edge %v", e.Type)
		app.ctrl.OnCableEdge()
	}
}

// watchInterrupt drains the chip's interrupt line. The line is active
// low, but the handler sorts spurious status interrupts out itself, so
// every edge is forwarded.
func (app *App) watchInterrupt() {
	for range app.irq.C {
		app.ctrl.HandleStatusInterrupt()
	}
}

// pollSupply periodically asks the controller to reconcile against the
// upstream power supply.
func (app *App) pollSupply() {
	for range time.Tick(supplyPollInterval) {
		app.ctrl.NotifySupplyChange()
	}
}

// publishState sends every port state change to the mqtt broker.
func (app *App) publishState(s anx7688.PortState) {
	debug.DebugLog.Printf("port state: %+v", s)
	app.mqtt.PublishJSON(app.config.MQTT.Topic, s)
}

func toPDOs(raw []uint32) []pdo.PDO {
	out := make([]pdo.PDO, len(raw))
	for i, v := range raw {
		out[i] = pdo.PDO(v)
	}
	return out
}

// Restart returns the read only restart channel.
// Restart is used to be able to react on application restart. (see cmd/main.go)
func (app *App) Restart() <-chan struct{} {
	return app.restart
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/main.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

func (app *App) Close() error {
	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}

	if app.ctrl != nil {
		_ = app.ctrl.Close()
	}
	if app.cable != nil {
		_ = app.cable.Close()
	}
	if app.irq != nil {
		_ = app.irq.Close()
	}
	if app.bus != nil {
		_ = app.bus.Close()
	}
	if app.chip != nil {
		_ = app.chip.Close()
	}
	_ = raspberry.CloseMem()
	return nil
}
