package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/wheat-api/internal/imaging"
)

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("upload too large")
)

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, imaging.ErrNotImage):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Please upload an image file."})

	case errors.Is(err, imaging.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid image file."})

	case errors.Is(err, errBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

	case errors.Is(err, errTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": err.Error()})

	case errors.Is(err, imaging.ErrTransform):
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Transform error: " + cause(err, imaging.ErrTransform)})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Prediction failed"})
	}
}

// cause strips the sentinel's own text from an error wrapped as
// "<sentinel>: <cause>".
func cause(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
