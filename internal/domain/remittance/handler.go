package remittance

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))

	g.POST("/remittances", h.Ingest)
	g.GET("/remittances", h.List)
	g.GET("/remittances/:id", h.Get)
	g.POST("/remittances/:id/post", h.Post)
	g.POST("/remittances/:id/rematch", h.Rematch)
	g.GET("/remittances/:id/report", h.Report)
	g.GET("/remittances/:id/denials", h.Denials)
	g.GET("/remittances/:id/underpayments", h.Underpayments)
}

func orgID(c echo.Context) (uuid.UUID, error) {
	raw := auth.OrgIDFromContext(c)
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing organization")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid organization id")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// Ingest accepts a raw 835 document as the request body. Clearinghouses
// deliver these as plain text files, so no JSON wrapper.
func (h *Handler) Ingest(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading request body")
	}
	if len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty request body")
	}

	rem, err := h.svc.Ingest(c.Request().Context(), org, raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusCreated, rem)
}

func (h *Handler) List(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRemittances(c.Request().Context(), org, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rem, err := h.svc.GetRemittance(c.Request().Context(), org, id)
	if err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "remittance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rem)
}

type postRequest struct {
	LineItemIDs                 []uuid.UUID `json:"line_item_ids"`
	PostAdjustments             *bool       `json:"post_adjustments"`
	CreatePatientResponsibility *bool       `json:"create_patient_responsibility"`
}

// Post applies the remittance to the ledger. The body is optional; omitted
// fields fall back to posting everything with both policies on.
func (h *Handler) Post(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req postRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid posting options")
	}
	opts := DefaultPostOptions()
	opts.LineItemIDs = req.LineItemIDs
	if req.PostAdjustments != nil {
		opts.PostAdjustments = *req.PostAdjustments
	}
	if req.CreatePatientResponsibility != nil {
		opts.CreatePatientResponsibility = *req.CreatePatientResponsibility
	}

	summary, err := h.svc.PostRemittance(c.Request().Context(), org, id, opts)
	if err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "remittance not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Rematch(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rem, err := h.svc.Rematch(c.Request().Context(), org, id)
	if err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "remittance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rem)
}

func (h *Handler) Report(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	report, err := h.svc.PostingReport(c.Request().Context(), org, id)
	if err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "remittance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Denials(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	flags, err := h.svc.Denials(c.Request().Context(), org, id)
	if err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "remittance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, flags)
}

func (h *Handler) Underpayments(c echo.Context) error {
	org, err := orgID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	flags, err := h.svc.Underpayments(c.Request().Context(), org, id)
	if err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "remittance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, flags)
}
