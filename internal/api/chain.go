// Package api exposes the node's HTTP surface: chain inspection, name
// resolution and availability, and claim submission.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/ledger"
)

// ChainHandler exposes read-only endpoints for the chain itself.
type ChainHandler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(l *ledger.Ledger, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{ledger: l, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	c := rg.Group("/chain")
	{
		c.GET("", h.Overview)
		c.GET("/verify", h.Verify)
		c.GET("/blocks/:index", h.GetBlock)
	}
}

// Overview handles GET /chain: chain metadata and the current tip.
func (h *ChainHandler) Overview(c *gin.Context) {
	tipHash := ""
	if tip := h.ledger.Tip(); tip != nil {
		tipHash = tip.Hash.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"chain_name":    h.ledger.ChainName(),
		"version_flags": h.ledger.VersionFlags(),
		"height":        h.ledger.Height(),
		"tip_hash":      tipHash,
	})
}

// Verify handles GET /chain/verify: walks the stored chain and reports
// integrity.
func (h *ChainHandler) Verify(c *gin.Context) {
	if err := h.ledger.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetBlock handles GET /chain/blocks/:index.
func (h *ChainHandler) GetBlock(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil || index == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a positive integer"})
		return
	}

	block, err := h.ledger.Block(c.Request.Context(), index)
	if err != nil {
		if errors.Is(err, ledger.ErrBlockNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
			return
		}
		h.logger.Error("read block", zap.Uint64("index", index), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read block"})
		return
	}
	c.JSON(http.StatusOK, block)
}
