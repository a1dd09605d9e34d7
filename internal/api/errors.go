package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrDrainInProgress:
		return http.StatusConflict
	case apperrors.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// httpErrorHandler renders AppErrors and echo errors as ErrorResponse.
func httpErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var status int
		var body ErrorResponse

		var herr *echo.HTTPError
		var aerr *apperrors.AppError
		switch {
		case errors.As(err, &herr):
			status = herr.Code
			body = ErrorResponse{Code: codeForStatus(status), Message: http.StatusText(status)}
			if msg, ok := herr.Message.(string); ok {
				body.Message = msg
			}
		case errors.As(err, &aerr):
			code := apperrors.CodeOf(err)
			status = statusFor(code)
			body = ErrorResponse{Code: string(code), Message: aerr.Message}
		default:
			status = http.StatusInternalServerError
			body = ErrorResponse{Code: string(apperrors.ErrInternal), Message: http.StatusText(status)}
		}

		if status >= http.StatusInternalServerError {
			logger.ErrorWithCode("Request failed", body.Code, err,
				map[string]interface{}{
					"method": c.Request().Method,
					"path":   c.Path(),
				})
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("Failed to write error response", err)
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return string(apperrors.ErrInvalid)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return string(apperrors.ErrNotFound)
	case http.StatusConflict:
		return string(apperrors.ErrDrainInProgress)
	default:
		return string(apperrors.ErrInternal)
	}
}
