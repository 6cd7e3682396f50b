package handler

import (
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/prizzzz/leaseIQ/pkg/logger"
	"github.com/prizzzz/leaseIQ/scoring"
	"github.com/prizzzz/leaseIQ/service"
)

const depreciationInfo = "Calculated using integrated LeaseIQ Engine."

// VehicleDecoder resolves a VIN to make, model and year.
type VehicleDecoder interface {
	Decode(ctx context.Context, vin string) (service.VehicleInfo, error)
}

type MarketHandler struct {
	decoder    VehicleDecoder
	market     scoring.MarketPricer
	creditTier int
}

func NewMarketHandler(decoder VehicleDecoder, market scoring.MarketPricer, creditTier int) *MarketHandler {
	if market == nil {
		market = scoring.NewEstimator()
	}
	if creditTier <= 0 {
		creditTier = scoring.ReferenceCreditTier
	}
	return &MarketHandler{decoder: decoder, market: market, creditTier: creditTier}
}

type MarketResponse struct {
	Vehicle service.VehicleInfo `json:"vehicle"`
	scoring.MarketComparison
	DepreciationInfo string `json:"depreciation_info"`
}

// Info compares the optional contract_price with the estimated market value
// of the decoded vehicle.
func (h *MarketHandler) Info(c *gin.Context) {
	vin := strings.TrimSpace(c.Param("vin"))

	contractPrice := 0.0
	if raw := c.Query("contract_price"); raw != "" {
		v, err := cast.ToFloat64E(raw)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "contract_price must be a number"})
			return
		}
		contractPrice = v
	}

	ctx := c.Request.Context()
	vehicle, err := h.decoder.Decode(ctx, vin)
	if err != nil {
		logger.Warn(ctx, "vin decode failed", "vin", vin, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "VIN lookup failed"})
		return
	}
	if vehicle.Empty() {
		c.JSON(http.StatusNotFound, gin.H{"error": "VIN " + vin + " not found or invalid."})
		return
	}

	price := h.market.EstimatePrice(vehicle.Year, vehicle.Make, vehicle.Model, h.creditTier)
	c.JSON(http.StatusOK, MarketResponse{
		Vehicle:          vehicle,
		MarketComparison: scoring.Compare(contractPrice, price),
		DepreciationInfo: depreciationInfo,
	})
}
