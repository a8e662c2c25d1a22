package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/wheat-api/internal/imaging"
	"github.com/Brownie44l1/wheat-api/internal/model"
)

// Predictor classifies a preprocessed image tensor.
type Predictor interface {
	Predict(input []float32, topK int) ([]model.Prediction, error)
}

// Info is the static service description reported by /ping.
type Info struct {
	Device    string
	ModelPath string
}

// Limits bounds the size of an accepted upload.
type Limits struct {
	UploadBytes int64
	ImagePixels int64
}

type Handler struct {
	predictor Predictor
	info      Info
	limits    Limits
}

func NewHandler(predictor Predictor, info Info, limits Limits) *Handler {
	return &Handler{
		predictor: predictor,
		info:      info,
		limits:    limits,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ping", h.Ping)
	r.GET("/health", h.Ping)
	r.POST("/predict", h.Predict)
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"device":     h.info.Device,
		"model_path": h.info.ModelPath,
	})
}

func (h *Handler) Predict(c *gin.Context) {
	if c.Request.ContentLength > h.limits.UploadBytes {
		writeError(c, errTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.UploadBytes)

	topK, err := parseTopK(c)
	if err != nil {
		writeError(c, err)
		return
	}

	data, filename, contentType, err := readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ct, err := imaging.ContentType(contentType, data)
	if err != nil {
		writeError(c, err)
		return
	}

	img, format, err := imaging.Decode(data, h.limits.ImagePixels)
	if err != nil {
		log.WithField("file", filename).Debugf("decode failed: %v", err)
		writeError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"file":         filename,
		"bytes":        len(data),
		"content_type": ct,
		"format":       format,
		"width":        img.Bounds().Dx(),
		"height":       img.Bounds().Dy(),
	}).Debug("received image")

	input, err := imaging.Preprocess(img)
	if err != nil {
		log.Errorf("Error applying transforms: %v", err)
		writeError(c, err)
		return
	}

	predictions, err := h.predictor.Predict(input, topK)
	if err != nil {
		log.Errorf("Prediction error: %v", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.PredictionResponse{Predictions: predictions})
}

// parseTopK reads the top_k query parameter, defaulting to 1 and clamping to
// a minimum of 1.
func parseTopK(c *gin.Context) (int, error) {
	raw := c.Query("top_k")
	if raw == "" {
		return 1, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: top_k must be an integer, got %q", errBadRequest, raw)
	}
	if k < 1 {
		k = 1
	}
	return k, nil
}

// readUpload returns the uploaded bytes from the "file" field, falling back
// to "image".
func readUpload(c *gin.Context) ([]byte, string, string, error) {
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		header, err = c.FormFile("image")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", "", errTooLarge
		}
		return nil, "", "", fmt.Errorf("%w: no file provided, use 'file' as the form field name", errBadRequest)
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "", fmt.Errorf("read upload: %w", err)
	}
	return data, header.Filename, header.Header.Get("Content-Type"), nil
}
