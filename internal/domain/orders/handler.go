package orders

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
	"github.com/labflow/labflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	both := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleLab))
	both.GET("/lab-orders", h.ListOrders)
	both.GET("/lab-orders/:id", h.GetOrder)
	both.GET("/lab-orders/:id/status-history", h.StatusHistory)
	both.POST("/lab-orders/:id/cancel", h.CancelOrder)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/lab-orders", h.CreateOrder)

	lab := api.Group("", auth.RequireRole(auth.RoleLab))
	lab.POST("/lab-orders/:id/results", h.EnterResults)
}

func actorFrom(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated identity")
	}
	return id, nil
}

func (h *Handler) CreateOrder(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var in CreateOrderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")

	o, err := h.svc.CreateOrder(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := Filter{
		Status:   c.QueryParam("status"),
		Priority: c.QueryParam("priority"),
		Search:   c.QueryParam("search"),
	}

	list, total, err := h.svc.ListOrders(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetOrder(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := h.svc.GetOrder(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type enterResultsRequest struct {
	// Results is keyed by the catalog test id of each test on the order.
	Results     map[string]ResultInput `json:"results"`
	ResultNotes *string                `json:"result_notes"`
}

func (h *Handler) EnterResults(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req enterResultsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results := make(map[uuid.UUID]ResultInput, len(req.Results))
	for key, in := range req.Results {
		testID, err := uuid.Parse(key)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "results must be keyed by test id")
		}
		results[testID] = in
	}

	o, err := h.svc.EnterResults(c.Request().Context(), actor, id, results, req.ResultNotes)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type cancelRequest struct {
	Reason *string `json:"reason"`
}

func (h *Handler) CancelOrder(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	o, err := h.svc.CancelOrder(c.Request().Context(), actor, id, req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) StatusHistory(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	history, err := h.svc.StatusHistory(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, history)
}
