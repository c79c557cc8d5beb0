package handlers

import (
	"github.com/fasthttp/router"
	"github.com/lamstech/quickcards/internal/model"
	xhttp "github.com/lamstech/quickcards/pkg/http"
)

type CatalogHandler struct {
	catalog *model.Catalog
}

func RegisterCatalogRoutes(e *router.Group, h *CatalogHandler) {
	e.GET("/services", h.ListServices)
	e.GET("/services/{id}", h.GetService)
}

func NewCatalogHandler(catalog *model.Catalog) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
	}
}

func (h *CatalogHandler) ListServices(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, 200, map[string]any{"items": h.catalog.Services()})
}

func (h *CatalogHandler) GetService(ctx *xhttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)

	svc, err := h.catalog.Service(id)
	if err != nil {
		writeError(ctx, 404, err.Error())
		return
	}
	writeJSON(ctx, 200, svc)
}
