package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/studyrelay/core/welcome"
)

type welcomeAPI struct {
	service *welcome.Service
}

func registerWelcomeAPI(g *echo.Group, svc *welcome.Service) {
	api := welcomeAPI{service: svc}
	g.POST("/welcome-email", api.send)
}

func (api welcomeAPI) send(ctx echo.Context) error {
	var nw welcome.NewWelcome
	if err := ctx.Bind(&nw); err != nil {
		return err
	}
	if err := api.service.Send(ctx.Request().Context(), nw); err != nil {
		return err
	}
	return ctx.JSON(http.StatusAccepted, echo.Map{"status": "queued"})
}
