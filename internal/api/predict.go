package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/cozy-creator/lesion-server/internal/services/resultcache"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const imageField = "image"

type PredictRequest struct {
	Image string `json:"image"`
}

type predictResponse struct {
	Success bool `json:"success"`
	*predictor.Result
}

// requestError is a rejected upload; it never reaches the predictor.
type requestError struct {
	status int
	key    predictor.MessageKey
	err    error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%s: %v", e.key, e.err)
}

func Predict(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	locale := app.Predictor().Locale()
	maxBytes := app.Config().MaxUploadBytes
	start := time.Now()

	data, err := readImage(c, maxBytes)
	if err != nil {
		var reqErr *requestError
		if !errors.As(err, &reqErr) {
			reqErr = &requestError{status: http.StatusBadRequest, key: predictor.MsgImageMissing, err: err}
		}

		message := predictor.Message(locale, reqErr.key)
		if reqErr.key == predictor.MsgFileTooLarge {
			message = fmt.Sprintf(message, maxBytes>>20)
		}

		app.Logger.Warn("rejected prediction request",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		observe(app, string(reqErr.key), start)
		errorResponse(c, reqErr.status, message)
		return
	}

	key := resultcache.Key(data)
	if result, ok := app.ResultCache().Get(key); ok {
		if m := app.Metrics(); m != nil {
			m.CacheHit()
		}
		observe(app, "ok", start)
		c.JSON(http.StatusOK, predictResponse{Success: true, Result: result})
		return
	}

	result, err := app.Predictor().Predict(c.Request.Context(), data)
	if err != nil {
		var perr *predictor.Error
		if !errors.As(err, &perr) {
			perr = (&predictor.Error{Kind: predictor.KindInferenceFailure, Err: err}).Localize(locale)
		}

		app.Logger.Error("prediction failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("kind", string(perr.Kind)),
			zap.Error(err),
		)
		observe(app, string(perr.Kind), start)
		errorResponse(c, statusFor(perr.Kind), perr.Message)
		return
	}

	app.ResultCache().Add(key, result)
	observe(app, "ok", start)
	c.JSON(http.StatusOK, predictResponse{Success: true, Result: result})
}

// readImage accepts either a multipart upload in the "image" field or a JSON
// body whose "image" is a base64 data URI.
func readImage(c *gin.Context, maxBytes int64) ([]byte, error) {
	if c.Request.ContentLength > maxBytes {
		return nil, tooLarge(fmt.Errorf("content length %d exceeds %d", c.Request.ContentLength, maxBytes))
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	switch c.ContentType() {
	case gin.MIMEMultipartPOSTForm:
		return readMultipart(c)
	case gin.MIMEJSON:
		var req PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if isTooLarge(err) {
				return nil, tooLarge(err)
			}
			return nil, missing(err)
		}
		if req.Image == "" {
			return nil, missing(errors.New("empty image field"))
		}
		return []byte(req.Image), nil
	default:
		return nil, missing(fmt.Errorf("unsupported content type %q", c.ContentType()))
	}
}

func readMultipart(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile(imageField)
	if err != nil {
		if isTooLarge(err) {
			return nil, tooLarge(err)
		}
		// A part submitted with an empty filename is parsed as a plain value.
		if form := c.Request.MultipartForm; form != nil && len(form.Value[imageField]) > 0 {
			return nil, &requestError{status: http.StatusBadRequest, key: predictor.MsgNoFileSelected, err: err}
		}
		return nil, missing(err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, missing(fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, missing(fmt.Errorf("failed to read file: %w", err))
	}
	if len(data) == 0 {
		return nil, &requestError{status: http.StatusBadRequest, key: predictor.MsgNoFileSelected, err: errors.New("empty file")}
	}

	return data, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func tooLarge(err error) error {
	return &requestError{status: http.StatusRequestEntityTooLarge, key: predictor.MsgFileTooLarge, err: err}
}

func missing(err error) error {
	return &requestError{status: http.StatusBadRequest, key: predictor.MsgImageMissing, err: err}
}

func statusFor(kind predictor.Kind) int {
	if kind == predictor.KindDecodeFailure {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func observe(app *app.App, outcome string, start time.Time) {
	if m := app.Metrics(); m != nil {
		m.ObservePrediction(outcome, time.Since(start))
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
