package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/mlgate/pkg/api/types/errors"
	apiretrain "github.com/opst/mlgate/pkg/api/types/retrain"
	kcs "github.com/opst/mlgate/pkg/configs/server"
	"github.com/opst/mlgate/pkg/retrain"
)

// RetrainHandler accepts a retrain request, and responds 202 before the orchestrator is reached.
//
// It should be behind RequireRole.
func RetrainHandler(trigger retrain.Requester) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := IdentityOf(c)
		if !ok {
			return apierr.InternalServerError(errors.New("retrain handler is not guarded"))
		}

		ack, err := trigger.Request(
			c.Request().Context(), id.Subject, c.Request().Header.Get(apiretrain.HeaderIdempotencyKey),
		)
		if err != nil {
			switch {
			case errors.Is(err, kcs.ErrConfiguration):
				return apierr.Misconfigured(err)
			case errors.Is(err, retrain.ErrTrigger):
				return apierr.ServiceUnavailable("retraining cannot be accepted now. retry later.", err)
			default:
				return apierr.InternalServerError(err)
			}
		}

		return c.JSON(http.StatusAccepted, apiretrain.Accepted{
			Status: apiretrain.StatusAccepted,
			RunID:  ack.RunID,
		})
	}
}
