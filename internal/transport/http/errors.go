package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
	"github.com/nickflorez-ai/arla-engine/internal/sor/postgres"
)

// writeError maps a domain error to an HTTP status and JSON body (spec §6:
// "argument errors map to 400, not-found to 404, everything else to 500").
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, postgres.ErrProposalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, queuebuilder.ErrUnknownFormFieldKey), errors.Is(err, queuebuilder.ErrAnswerShapeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("transport/http: unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
