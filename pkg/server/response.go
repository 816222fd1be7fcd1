package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chazu/stepwise/pkg/repo"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// apiError carries the HTTP status and code for a handler failure.
type apiError struct {
	Status int
	Code   string
	Err    error
}

func (e *apiError) Error() string { return e.Err.Error() }
func (e *apiError) Unwrap() error { return e.Err }

func badRequest(err error) error {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Err: err}
}

// respondErr maps err onto the error envelope. Unrecognised errors are
// logged by the caller and reported without detail.
func respondErr(c *gin.Context, err error) {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		RespondError(c, ae.Status, ae.Code, ae.Err)
	case errors.Is(err, repo.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", errors.New("project not found"))
	default:
		RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
