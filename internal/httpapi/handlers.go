package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/union-data/internal/cursor"
	"github.com/rickgao/union-data/internal/merge"
	"github.com/rickgao/union-data/internal/model"
	"github.com/rickgao/union-data/internal/version"
)

const healthTimeout = 2 * time.Second

var knownChains = map[model.Blockchain]bool{
	model.Ethereum: true,
	model.Polygon:  true,
	model.Flow:     true,
	model.Tezos:    true,
	model.Solana:   true,
}

// parsePage reads continuation, size, sort and blockchains.
func parsePage(c *gin.Context) (merge.Request, error) {
	req := merge.Request{Cursor: c.Query("continuation")}

	if raw := c.Query("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return req, fmt.Errorf("size must be a positive integer, got %q", raw)
		}
		req.Size = size
	}

	order, err := model.ParseSortOrder(c.Query("sort"))
	if err != nil {
		return req, err
	}
	req.Sort = order

	for _, v := range c.QueryArray("blockchains") {
		for _, name := range strings.Split(v, ",") {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if !knownChains[model.Blockchain(name)] {
				return req, fmt.Errorf("unknown blockchain %q", name)
			}
			req.Shards = append(req.Shards, name)
		}
	}
	return req, nil
}

// listPage runs one merged page and renders it under field.
func listPage[T model.Entity](s *Server, c *gin.Context, eng *merge.Engine[T], field string, enrich func(context.Context, []T) error) {
	req, err := parsePage(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	res, err := eng.Page(ctx, req)
	if err != nil {
		var malformed *cursor.MalformedCursorError
		switch {
		case errors.As(err, &malformed):
			respondError(c, http.StatusBadRequest, CodeBadCursor, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respondError(c, http.StatusServiceUnavailable, CodeUnavailable, err)
		default:
			s.logger.Error("page failed", "field", field, "error", err)
			respondError(c, http.StatusInternalServerError, CodeInternal, err)
		}
		return
	}

	entities := res.Entities
	if entities == nil {
		entities = []T{}
	}
	if enrich != nil && s.deps.Aggregates != nil && len(entities) > 0 {
		// stale enrichment beats a failed page
		if err := enrich(ctx, entities); err != nil {
			s.logger.Warn("aggregate enrichment failed", "field", field, "error", err)
		}
	}

	body := gin.H{
		"total": len(entities),
		field:   entities,
	}
	if res.Cursor != "" {
		body["continuation"] = res.Cursor
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listItems(c *gin.Context) {
	listPage(s, c, s.deps.Items, "items", s.enrichItems)
}

func (s *Server) listOwnerships(c *gin.Context) {
	listPage(s, c, s.deps.Ownerships, "ownerships", s.enrichOwnerships)
}

func (s *Server) listCollections(c *gin.Context) {
	listPage(s, c, s.deps.Collections, "collections", s.enrichCollections)
}

func (s *Server) listActivities(c *gin.Context) {
	listPage[model.Activity](s, c, s.deps.Activities, "activities", nil)
}

func (s *Server) getAggregate(c *gin.Context) {
	kind, err := model.ParseAggregateKind(c.Param("kind"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	entity, err := model.ParseEntityID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	if kind == model.KindOwnership {
		if _, _, ok := model.SplitOwnershipID(entity); !ok {
			respondError(c, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("ownership id %q has no owner segment", entity))
			return
		}
	}

	id := model.AggregateID{Kind: kind, ID: entity}
	agg, err := s.deps.Aggregates.Get(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("aggregate lookup failed", "id", id, "error", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	if agg == nil {
		respondError(c, http.StatusNotFound, CodeNotFound, fmt.Errorf("aggregate %s not found", id))
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (s *Server) health(c *gin.Context) {
	checks := make(map[string]string, len(s.deps.Checks))
	healthy := true
	for name, check := range s.deps.Checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
