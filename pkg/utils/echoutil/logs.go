package echoutil

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc is a middleware logging each request and its response.
//
// Request bodies are not logged: they can carry passwords.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL.Path
		BEGIN := time.Now()
		c.Logger().Infof(
			"< request @[%s] %s %s", BEGIN.Format(time.RFC3339Nano), meth, path,
		)

		var err error

		defer func() {
			END := time.Now()
			status := c.Response().Status
			var herr *echo.HTTPError
			if errors.As(err, &herr) {
				// not committed yet. HTTPErrorHandler will write it.
				status = herr.Code
			}
			c.Logger().Infof(
				"> response @[%s] status = %d (for request @[%s] %s %s) in %v / error = %v",
				END.Format(time.RFC3339Nano), status, BEGIN.Format(time.RFC3339Nano), meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

// ErrorHandler returns echo.HTTPErrorHandler which logs the cause of errors, then responds.
//
// Causes are kept in HTTPError.Internal and never sent to clients.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var herr *echo.HTTPError
		if errors.As(err, &herr) {
			if herr.Code >= 500 {
				c.Logger().Errorf("%s %s: %d: %+v", c.Request().Method, c.Request().URL.Path, herr.Code, herr.Internal)
			} else if herr.Internal != nil {
				c.Logger().Debugf("%s %s: %d: %+v", c.Request().Method, c.Request().URL.Path, herr.Code, herr.Internal)
			}
		} else {
			c.Logger().Errorf("%s %s: unhandled error: %+v", c.Request().Method, c.Request().URL.Path, err)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

// ParseLevel converts the name of log level.
//
// Unknown names are reported with ok = false, and then WARN is returned.
func ParseLevel(loglevel string) (lvl log.Lvl, ok bool) {
	switch strings.ToLower(loglevel) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn", "":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	default:
		return log.WARN, false
	}
}

func SetLevel(e *echo.Echo, loglevel string) {
	SetLoggerLevel(e.Logger, loglevel)
}

func SetLoggerLevel(logger echo.Logger, loglevel string) {
	lvl, ok := ParseLevel(loglevel)
	logger.SetLevel(lvl)
	if !ok {
		logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
