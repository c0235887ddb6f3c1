package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/mlgate/pkg/api/types/errors"
	apipredict "github.com/opst/mlgate/pkg/api/types/predict"
	"github.com/opst/mlgate/pkg/model"
)

// ModelSource provides the model in service.
type ModelSource interface {
	Current() *model.Handle
}

func PredictHandler(models ModelSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := apipredict.Request{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return apierr.BadRequest(
				`request body should be {"features": [...] or {...}, "probability": true|false}`, err,
			)
		}
		if req.Features == nil {
			return apierr.BadRequest(`"features" is required.`, nil)
		}

		var features model.Features = model.Positional(req.Features.Positional)
		if req.Features.Named != nil {
			features = model.Named(req.Features.Named)
		}

		pred, err := models.Current().Predict(features, req.Probability)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrServiceUnavailable):
				return apierr.ServiceUnavailable("no model is loaded. retry later.", err)
			case errors.Is(err, model.ErrSchemaMismatch):
				return apierr.BadRequest(err.Error(), err)
			default:
				// model.ErrPrediction too. Its cause is for logs only.
				return apierr.InternalServerError(err)
			}
		}

		resp := apipredict.Response{Prediction: pred.Label}
		if req.Probability {
			resp.Probabilities = make(map[string]float64, len(pred.Probabilities))
			for _, p := range pred.Probabilities {
				resp.Probabilities[strconv.FormatInt(p.Class, 10)] = p.Probability
			}
		}
		return c.JSON(http.StatusOK, resp)
	}
}
