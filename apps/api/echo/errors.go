package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught,
// whatever the error it is wrapped in.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}
		var opaque bool // never detail the error to the caller, even in debug mode

		switch origErr := errors.Cause(err).(type) {
		case *reqauth.AuthError:
			code = http.StatusUnauthorized
			message = reqauth.UnauthorizedMessage
			opaque = true
			logger.Info("signed request rejected", map[string]interface{}{
				"reason": origErr.Reason,
				"ip":     ctx.RealIP(),
			}, ctx.Request())
		case *reqauth.ConfigError:
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			opaque = true
			logger.Error(reqauth.MisconfiguredMessage, origErr, map[string]interface{}{"reason": origErr.Reason}, ctx.Request())
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), ctx.Request())
		}

		// shutting down once the response is out; a store config error may carry it too
		if core.IsShutdown(err) {
			defer signalShutdown()
		}

		if ctx.Echo().Debug && !opaque {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
