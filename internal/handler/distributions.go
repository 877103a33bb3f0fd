package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/platform"
	"github.com/iliyamo/photo-monetization/internal/service"
)

// DistributionHandler serves the platform catalog and per-image
// distribution requests.
type DistributionHandler struct {
	dists   *service.DistributionService
	catalog *platform.Catalog
}

func NewDistributionHandler(dists *service.DistributionService, catalog *platform.Catalog) *DistributionHandler {
	return &DistributionHandler{dists: dists, catalog: catalog}
}

type distributeReq struct {
	Platforms []string `json:"platforms" validate:"required,min=1,dive,required"`
}

// Platforms lists the distribution targets. The response does not depend
// on the caller.
func (h *DistributionHandler) Platforms(c echo.Context) error {
	return respond(c, http.StatusOK, echo.Map{"platforms": h.catalog.List()})
}

// Request queues the image for each listed platform. Publishing happens
// asynchronously; the response carries the queued records.
func (h *DistributionHandler) Request(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	var req distributeReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	ds, err := h.dists.Request(ctx, u.ID, c.Param("id"), req.Platforms)
	if err != nil {
		return err
	}
	return respond(c, http.StatusAccepted, echo.Map{"distributions": ds})
}

func (h *DistributionHandler) List(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	ds, err := h.dists.List(ctx, u.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"distributions": ds})
}
