package handlers_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	httptestutil "github.com/opst/mlgate/internal/testutils/http"
	apipredict "github.com/opst/mlgate/pkg/api/types/predict"
	"github.com/opst/mlgate/pkg/cmp"
	"github.com/opst/mlgate/pkg/model"

	"github.com/opst/mlgate/cmd/mlgated/handlers"
)

func TestPredictHandler(t *testing.T) {
	type when struct {
		handle *model.Handle
		body   string
	}
	type then struct {
		code int

		// for 200
		body apipredict.Response

		// for errors
		reason string
		advice string
	}

	theory := func(w when, th then) func(*testing.T) {
		return func(t *testing.T) {
			e := echo.New()
			c, rec := httptestutil.PostJSON(e, "/predict", w.body)
			run(e, handlers.PredictHandler(&fixedModel{handle: w.handle}), c)

			if rec.Code != th.code {
				t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
			}
			if th.code != http.StatusOK {
				got := errorBody(t, rec)
				if got.Message.Reason != th.reason {
					t.Errorf("reason = %q, want %q", got.Message.Reason, th.reason)
				}
				if !strings.Contains(got.Message.Advice, th.advice) {
					t.Errorf("advice = %q, want containing %q", got.Message.Advice, th.advice)
				}
				return
			}

			got := apipredict.Response{}
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Prediction != th.body.Prediction {
				t.Errorf("prediction = %d, want %d", got.Prediction, th.body.Prediction)
			}
			if !cmp.MapEq(got.Probabilities, th.body.Probabilities) {
				t.Errorf("probabilities = %v, want %v", got.Probabilities, th.body.Probabilities)
			}
		}
	}

	t.Run("when positional features match, it responds the label", theory(
		when{handle: loaded(), body: `{"features": [1, 2]}`},
		then{code: http.StatusOK, body: apipredict.Response{Prediction: 1}},
	))
	t.Run("when named features match, it responds the label", theory(
		when{handle: loaded(), body: `{"features": {"b": -3, "a": 1}}`},
		then{code: http.StatusOK, body: apipredict.Response{Prediction: 0}},
	))
	t.Run("when probability is requested, it responds probabilities keyed by class", theory(
		when{handle: loaded(), body: `{"features": [1, 2], "probability": true}`},
		then{
			code: http.StatusOK,
			body: apipredict.Response{
				Prediction:    1,
				Probabilities: map[string]float64{"0": 0.25, "1": 0.75},
			},
		},
	))
	t.Run("when too few features are given, it responds 400 naming the missing one", theory(
		when{handle: loaded(), body: `{"features": [1]}`},
		then{code: http.StatusBadRequest, reason: "bad request", advice: `"b"`},
	))
	t.Run("when too many features are given, it responds 400", theory(
		when{handle: loaded(), body: `{"features": [1, 2, 3]}`},
		then{code: http.StatusBadRequest, reason: "bad request", advice: "position 2"},
	))
	t.Run("when a named feature is unknown, it responds 400 naming it", theory(
		when{handle: loaded(), body: `{"features": {"a": 1, "b": 2, "c": 3}}`},
		then{code: http.StatusBadRequest, reason: "bad request", advice: `"c"`},
	))
	t.Run("when features is missing, it responds 400", theory(
		when{handle: loaded(), body: `{"probability": true}`},
		then{code: http.StatusBadRequest, reason: "bad request", advice: "features"},
	))
	t.Run("when body is not JSON, it responds 400", theory(
		when{handle: loaded(), body: `features=1,2`},
		then{code: http.StatusBadRequest, reason: "bad request"},
	))
	t.Run("when no model is loaded, it responds 503", theory(
		when{handle: model.Unavailable(resolvedAt), body: `{"features": [1, 2]}`},
		then{code: http.StatusServiceUnavailable, reason: "service unavailable temporarily"},
	))
	t.Run("when the model fails, it responds 500 without the cause", theory(
		when{
			handle: model.NewHandle(failingPredictor{}, []string{"a"}, model.ProvenanceLocalFallback, "x", resolvedAt),
			body:   `{"features": [1]}`,
		},
		then{code: http.StatusInternalServerError, reason: "unexpected error"},
	))
}
