package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shopping-assistant-backend/internal/upstream"
)

const catalogTimeout = 20 * time.Second

func (s *Server) catalog(w http.ResponseWriter) Catalog {
	if s.deps.Catalog == nil {
		s.writeError(w, http.StatusServiceUnavailable, "product catalog not configured")
		return nil
	}
	return s.deps.Catalog
}

// GET /api/products?name=<product_name>
func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	c := s.catalog(w)
	if c == nil {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), catalogTimeout)
	defer cancel()
	products, err := c.ProductsByName(ctx, name)
	if err != nil {
		s.logger.Warn("fetch products", zap.String("name", name), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to fetch products")
		return
	}
	if products == nil {
		products = []upstream.Product{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": products, "total": len(products)})
}

// GET /api/products/{id}
func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	c := s.catalog(w)
	if c == nil {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), catalogTimeout)
	defer cancel()
	p, err := c.Product(ctx, id)
	if err != nil {
		s.logger.Warn("fetch product", zap.Int("id", id), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to fetch product")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// GET /api/options/{column}
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	c := s.catalog(w)
	if c == nil {
		return
	}
	column := chi.URLParam(r, "column")
	ctx, cancel := context.WithTimeout(r.Context(), catalogTimeout)
	defer cancel()
	options, err := c.Options(ctx, column)
	if err != nil {
		s.logger.Warn("fetch options", zap.String("column", column), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to fetch options")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"column": column, "options": options})
}
