package app

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleStatus is the get port status web handler.
func (app *App) HandleStatus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request status")

		return ctx.JSON(fiber.Map{
			"state": app.ctrl.State(),
			"port":  app.ctrl.PortState(),
		})
	}
}

// HandleReset clears a stuck chip, including the sticky firmware-load
// failure, and schedules a fresh cable evaluation.
func (app *App) HandleReset() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request reset")

		app.ctrl.Reset()
		ctx.Status(http.StatusOK)
		return ctx.JSON(fiber.Map{"state": app.ctrl.State()})
	}
}
