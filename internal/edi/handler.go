package edi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler provides stateless HTTP endpoints over the EDI codec: validation,
// 837P preview encoding, and 835 parsing. Persistence-backed flows live in
// the claims and remittance domains.
type Handler struct {
	sender SenderConfig
}

// NewHandler creates an EDI handler bound to the configured trading-partner
// identifiers.
func NewHandler(sender SenderConfig) *Handler {
	return &Handler{sender: sender}
}

// RegisterRoutes registers EDI endpoints on the provided route group.
//
//	POST /api/v1/edi/claims/validate - Run claim validation only
//	POST /api/v1/edi/claims/encode   - Validate and encode an 837P
//	POST /api/v1/edi/era/parse       - Parse an 835 document (no persistence)
//	POST /api/v1/edi/era/report      - Parse an 835 and return its posting report
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/edi/claims/validate", h.ValidateClaim)
	g.POST("/edi/claims/encode", h.EncodeClaim)
	g.POST("/edi/era/parse", h.ParseERA)
	g.POST("/edi/era/report", h.ERAReport)
}

// ValidateClaim handles POST /api/v1/edi/claims/validate.
func (h *Handler) ValidateClaim(c echo.Context) error {
	var req ClaimSubmission
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return c.JSON(http.StatusOK, ValidateClaim(req))
}

// EncodeClaim handles POST /api/v1/edi/claims/encode. Validation failures
// are returned as a 422 with the structured result; they are data, not
// transport errors.
func (h *Handler) EncodeClaim(c echo.Context) error {
	var req ClaimSubmission
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	validation := ValidateClaim(req)
	if !validation.Valid {
		return c.JSON(http.StatusUnprocessableEntity, EncodeResult{
			Success:  false,
			Errors:   validation.Errors,
			Warnings: validation.Warnings,
		})
	}

	result := Encode837P(req, h.sender)
	result.Warnings = append(validation.Warnings, result.Warnings...)
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// ParseERA handles POST /api/v1/edi/era/parse. The request body is raw 835
// text.
func (h *Handler) ParseERA(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	result := Parse835(raw)
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// ERAReport handles POST /api/v1/edi/era/report.
func (h *Handler) ERAReport(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	result := Parse835(raw)
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, BuildPostingReport(result.Remittance))
}

func readBody(c echo.Context) (string, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) == 0 {
		return "", echo.NewHTTPError(http.StatusBadRequest, "request body is empty")
	}
	return string(body), nil
}
