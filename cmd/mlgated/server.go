package main

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/mlgate/cmd/mlgated/handlers"
	"github.com/opst/mlgate/pkg/auth"
	"github.com/opst/mlgate/pkg/retrain"
	"github.com/opst/mlgate/pkg/utils/echoutil"
)

// largest request body accepted.
const bodyLimit = "1M"

type Dependencies struct {
	Logger        echo.Logger
	Authenticator handlers.Authenticator
	Authorizer    handlers.Authorizer
	Models        handlers.ModelReloader
	Retrain       retrain.Requester
}

func BuildServer(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	if deps.Logger != nil {
		e.Logger = deps.Logger
	}
	e.HTTPErrorHandler = echoutil.ErrorHandler(e)

	e.Use(echoutil.LogHandlerFunc)
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))

	admin := handlers.RequireRole(deps.Authorizer, auth.Admin)
	user := handlers.RequireRole(deps.Authorizer, auth.User)

	e.GET("/", handlers.HealthHandler(deps.Models))
	e.POST("/auth/token", handlers.LoginHandler(deps.Authenticator))

	e.POST("/predict", handlers.PredictHandler(deps.Models), admin)
	e.POST("/retrain", handlers.RetrainHandler(deps.Retrain), admin)

	e.GET("/model", handlers.GetModelHandler(deps.Models), user)
	e.POST("/model/reload", handlers.ReloadModelHandler(deps.Models), admin)

	return e
}
