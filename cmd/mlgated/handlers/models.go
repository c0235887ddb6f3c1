package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apihealth "github.com/opst/mlgate/pkg/api/types/health"
	apimodels "github.com/opst/mlgate/pkg/api/types/models"
	"github.com/opst/mlgate/pkg/api/types/rfctime"
	"github.com/opst/mlgate/pkg/model"
)

// ModelReloader is a ModelSource which can re-resolve the model.
type ModelReloader interface {
	ModelSource
	Refresh(ctx context.Context) (*model.Handle, bool)
}

func HealthHandler(models ModelSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, apihealth.Status{
			Status:      apihealth.StatusOK,
			ModelLoaded: models.Current().Loaded(),
		})
	}
}

func GetModelHandler(models ModelSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, composeDetail(models.Current()))
	}
}

// longest time to resolve the model on reload.
const ReloadTimeout = 30 * time.Second

// ReloadModelHandler resolves the model again, and responds the model in service after that.
//
// Resolution continues even if the client goes away, up to ReloadTimeout.
func ReloadModelHandler(models ModelReloader) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), ReloadTimeout)
		defer cancel()

		h, _ := models.Refresh(ctx)
		return c.JSON(http.StatusOK, composeDetail(h))
	}
}

func composeDetail(h *model.Handle) apimodels.Detail {
	names := h.FeatureNames()
	if names == nil {
		names = []string{}
	}
	return apimodels.Detail{
		Provenance:   h.Provenance().String(),
		Version:      h.Version(),
		FeatureNames: names,
		ResolvedAt:   rfctime.RFC3339(h.ResolvedAt()),
	}
}
