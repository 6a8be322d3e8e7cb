package httpapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
	"github.com/cipherdrop/cipherdrop/internal/server/services"
)

// Handler holds the dependencies of the file endpoints.
type Handler struct {
	svc        *services.FileService
	limitBytes int64
	logger     logging.Logger
}

func NewHandler(svc *services.FileService, cfg *config.Config, logger logging.Logger) *Handler {
	return &Handler{
		svc:        svc,
		limitBytes: int64(cfg.SingleFileLimitMB) * 1024 * 1024,
		logger:     logger,
	}
}

type uploadResponse struct {
	AccessToken string `json:"access_token"`
	UpdateToken string `json:"update_token"`
}

type fetchResponse struct {
	FileURL string `json:"file_url"`
}

type expiryRequest struct {
	Expiry int64 `json:"expiry"`
}

type challengeResponse struct {
	Salt      string `json:"salt"`
	IV        string `json:"iv"`
	Challenge string `json:"challenge"`
}

type verifyRequest struct {
	Challenge string `json:"challenge"`
}

type verifyResponse struct {
	FileNameData string `json:"file_name_data"`
}

func (h *Handler) Status(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Upload accepts the six multipart fields and registers the file.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limitBytes)

	form, err := c.MultipartForm()
	if err != nil {
		h.fail(c, &common.FileUploadError{Reason: "reading multipart body failed"})
		return
	}

	up, err := parseUpload(form)
	if err != nil {
		h.fail(c, err)
		return
	}

	file, err := h.svc.Upload(c.Request.Context(), up)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		AccessToken: file.AccessToken,
		UpdateToken: file.UpdateToken,
	})
}

// parseUpload converts the raw form into a complete upload, failing on
// the first missing field.
func parseUpload(form *multipart.Form) (*services.Upload, error) {
	field := func(name string) (string, error) {
		vals := form.Value[name]
		if len(vals) == 0 {
			return "", &common.FieldMissingError{Field: name}
		}
		return vals[0], nil
	}

	up := &services.Upload{}
	var err error
	if up.IV, err = field("iv"); err != nil {
		return nil, err
	}
	if up.Salt, err = field("salt"); err != nil {
		return nil, err
	}
	if up.FileData, err = fileField(form, "file_data"); err != nil {
		return nil, err
	}
	if up.FileNameData, err = field("file_name_data"); err != nil {
		return nil, err
	}
	if up.ChallengeData, err = field("challenge_data"); err != nil {
		return nil, err
	}
	if up.ChallengeHash, err = field("challenge_hash"); err != nil {
		return nil, err
	}
	return up, nil
}

// fileField reads file_data whether it arrived as a file part or a plain
// value.
func fileField(form *multipart.Form, name string) ([]byte, error) {
	if headers := form.File[name]; len(headers) > 0 {
		part, err := headers[0].Open()
		if err != nil {
			return nil, &common.FileUploadError{Reason: "opening file part failed"}
		}
		defer part.Close()
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, &common.FileUploadError{Reason: "reading file part failed"}
		}
		return data, nil
	}
	if vals := form.Value[name]; len(vals) > 0 {
		return []byte(vals[0]), nil
	}
	return nil, &common.FieldMissingError{Field: name}
}

// Fetch authorizes with the challenge hash as bearer token and returns
// either the backend URL or the raw ciphertext.
func (h *Handler) Fetch(c *gin.Context) {
	bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		h.fail(c, common.ErrorInvalidChallenge)
		return
	}

	result, err := h.svc.Fetch(c.Request.Context(), c.Param("access_token"), bearer)
	if err != nil {
		h.fail(c, err)
		return
	}

	if result.URL != nil {
		c.JSON(http.StatusOK, fetchResponse{FileURL: *result.URL})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", result.Data)
}

func (h *Handler) Delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("access_token"), c.Query("update_token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ExtendExpiry(c *gin.Context) {
	var req expiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, common.ErrorInvalidExpiry)
		return
	}

	err := h.svc.ExtendExpiry(c.Request.Context(), c.Param("access_token"),
		c.Query("update_token"), req.Expiry)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetChallenge(c *gin.Context) {
	challenge, err := h.svc.GetChallenge(c.Request.Context(), c.Param("access_token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, challengeResponse{
		Salt:      challenge.Salt,
		IV:        challenge.IV,
		Challenge: challenge.ChallengeData,
	})
}

func (h *Handler) VerifyChallenge(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, common.ErrorInvalidChallenge)
		return
	}

	fileNameData, err := h.svc.VerifyChallenge(c.Request.Context(), c.Param("access_token"), req.Challenge)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{FileNameData: fileNameData})
}
