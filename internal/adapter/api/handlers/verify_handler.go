package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/verify"
)

// Verifier runs the verification pipeline for a single report.
type Verifier interface {
	VerifyReport(ctx context.Context, reportID string) (verify.Outcome, error)
}

type VerifyResponse struct {
	ReportID string              `json:"report_id"`
	Status   string              `json:"status"`
	Audit    *domain.AuditRecord `json:"audit,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// VerifyReport triggers a synchronous verification run for the report named
// in the path. A run already holding the report's lock maps to 409.
func VerifyReport(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		reportID := c.Param("id")
		if reportID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "report id is required"})
			return
		}

		outcome, err := verifier.VerifyReport(c.Request.Context(), reportID)
		if err != nil {
			switch {
			case errors.Is(err, verify.ErrRunInProgress):
				c.JSON(http.StatusConflict, ErrorResponse{Error: "verification already in progress for this report"})
			case errors.Is(err, domain.ErrReportNotFound):
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "report not found"})
			default:
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			}
			return
		}

		resp := VerifyResponse{
			ReportID: reportID,
			Status:   string(outcome.Status),
		}
		if outcome.Result != nil {
			record := outcome.Result.ToAuditRecord()
			resp.Audit = &record
		}
		c.JSON(http.StatusOK, resp)
	}
}
