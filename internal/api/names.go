package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/ledger"
	"github.com/namechain-protocol/namechain/internal/miner"
	"github.com/namechain-protocol/namechain/pkg/blob"
)

// NamesHandler exposes name resolution, availability checks, and claim
// submission.
type NamesHandler struct {
	ledger  *ledger.Ledger
	miner   *miner.Miner
	nodeKey blob.Bytes
	logger  *zap.Logger
}

// NewNamesHandler creates a new NamesHandler. nodeKey is the default
// claimant for availability checks.
func NewNamesHandler(l *ledger.Ledger, m *miner.Miner, nodeKey blob.Bytes, logger *zap.Logger) *NamesHandler {
	return &NamesHandler{ledger: l, miner: m, nodeKey: nodeKey, logger: logger}
}

// Register mounts the name and claim routes on the given router group.
func (h *NamesHandler) Register(rg *gin.RouterGroup) {
	n := rg.Group("/names")
	{
		n.GET("/:name", h.Resolve)
		n.GET("/:name/availability", h.Availability)
	}
	c := rg.Group("/claims")
	{
		c.POST("", h.SubmitClaim)
		c.GET("", h.ListClaims)
		c.GET("/:id", h.ClaimStatus)
	}
}

// Resolve handles GET /names/:name: the latest claim recorded for a name.
func (h *NamesHandler) Resolve(c *gin.Context) {
	name := c.Param("name")

	tx, err := h.ledger.Resolve(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, ledger.ErrNameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "name not found"})
			return
		}
		h.logger.Error("resolve name", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve name"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  name,
		"claim": tx,
	})
}

// Availability handles GET /names/:name/availability. The claimant key
// defaults to the node's own key; an explicit pub_key query overrides it.
func (h *NamesHandler) Availability(c *gin.Context) {
	name := c.Param("name")

	claimant := h.nodeKey
	if hexKey := c.Query("pub_key"); hexKey != "" {
		key, err := blob.FromHex(hexKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pub_key must be a hex string"})
			return
		}
		claimant = key
	}

	available, err := h.ledger.IsDomainAvailable(c.Request.Context(), name, claimant)
	if err != nil {
		h.logger.Error("availability check", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check availability"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":      name,
		"pub_key":   claimant.String(),
		"available": available,
	})
}

type claimRequest struct {
	Name   string `json:"name" binding:"required"`
	Method string `json:"method"`
	Data   string `json:"data"`
}

// SubmitClaim handles POST /claims: queue a claim for mining. Responds 202
// with the job; callers poll GET /claims/:id for the outcome.
func (h *NamesHandler) SubmitClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	job, err := h.miner.Enqueue(c.Request.Context(), req.Name, req.Method, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, miner.ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, miner.ErrNameUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, miner.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("enqueue claim", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue claim"})
		}
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// ListClaims handles GET /claims: all known jobs in submission order.
func (h *NamesHandler) ListClaims(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"claims": h.miner.Jobs()})
}

// ClaimStatus handles GET /claims/:id.
func (h *NamesHandler) ClaimStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	job, err := h.miner.Job(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
