package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cipherdrop/cipherdrop/internal/common"
)

// errorResponse is the envelope every failed request resolves to. The
// reason is a small closed set of strings; details stay in the logs.
type errorResponse struct {
	Reason string `json:"reason"`
}

// fail translates a domain error to an HTTP status and the {reason}
// envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	status, reason := statusReason(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Reason: reason})
}

func statusReason(err error) (int, string) {
	var fieldMissing *common.FieldMissingError
	var fileUpload *common.FileUploadError

	switch {
	case errors.As(err, &fieldMissing):
		return http.StatusBadRequest, fieldMissing.Error()
	case errors.As(err, &fileUpload):
		return http.StatusBadRequest, fileUpload.Error()
	case errors.Is(err, common.ErrorInvalidExpiry):
		return http.StatusBadRequest, common.ErrorInvalidExpiry.Error()
	case errors.Is(err, common.ErrorInvalidChallenge):
		return http.StatusUnauthorized, common.ErrorInvalidChallenge.Error()
	case errors.Is(err, common.ErrorUpdateToken):
		return http.StatusUnauthorized, common.ErrorUpdateToken.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, common.ErrorNotFound.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
