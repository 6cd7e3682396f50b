package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prizzzz/leaseIQ/middleware"
	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/logger"
	"github.com/prizzzz/leaseIQ/scoring"
	"github.com/prizzzz/leaseIQ/service"
)

const ocrUnreadable = "OCR failed to read the document. Ensure the PDF contains text."

type ContractHandler struct {
	pipeline   *service.Pipeline
	repo       service.ContractRepository
	extractor  *service.Extractor
	negotiator *service.Negotiator
	maxUpload  int64
}

func NewContractHandler(pipeline *service.Pipeline, repo service.ContractRepository, extractor *service.Extractor, negotiator *service.Negotiator, maxUploadMB int64) *ContractHandler {
	return &ContractHandler{
		pipeline:   pipeline,
		repo:       repo,
		extractor:  extractor,
		negotiator: negotiator,
		maxUpload:  maxUploadMB << 20,
	}
}

// ContractSummary is the extracted data with the locked score, as shown on the summary panel.
type ContractSummary struct {
	model.ContractData
	Fairness model.FairnessResult  `json:"fairness"`
	Strategy model.ScoringStrategy `json:"strategy"`
}

type UploadResponse struct {
	Status   string          `json:"status"`
	FileID   string          `json:"file_id"`
	Filename string          `json:"filename"`
	Data     ContractSummary `json:"data"`
}

// AnalysisResponse carries the on-demand risk review. Fairness is always the
// locked score; Assessment is the strict risk/fee evaluation of this review.
type AnalysisResponse struct {
	FileID       string                   `json:"file_id"`
	RiskFactors  []model.RiskFactor       `json:"risk_factors"`
	PriceFactors model.PriceFactors       `json:"price_factors"`
	HiddenFees   []model.HiddenFee        `json:"hidden_fees"`
	JunkFees     []string                 `json:"junk_fees"`
	Fairness     model.FairnessResult     `json:"fairness"`
	Assessment   scoring.RiskFeeBreakdown `json:"assessment"`
}

type NegotiationRequest struct {
	Message string                `json:"message" binding:"required"`
	History []service.ChatMessage `json:"history"`
}

func summarize(c *model.Contract) ContractSummary {
	s := ContractSummary{Strategy: c.Strategy}
	if c.Data != nil {
		s.ContractData = *c.Data
	}
	if s.JunkFees == nil {
		s.JunkFees = []string{}
	}
	if c.Fairness != nil {
		s.Fairness = *c.Fairness
	}
	return s
}

// Upload runs an uploaded PDF through OCR, extraction and scoring and
// returns the locked result.
func (h *ContractHandler) Upload(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are supported."})
		return
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if detected := http.DetectContentType(data); !strings.Contains(detected, "pdf") && detected != "application/octet-stream" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
		return
	}

	ctx := c.Request.Context()
	contract, err := h.pipeline.Analyze(ctx, service.Upload{
		Tenant:      tenant,
		Filename:    header.Filename,
		ContentType: "application/pdf",
		Data:        data,
	})
	if err != nil {
		resp := gin.H{"error": "Internal processing error: " + err.Error()}
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrTextTooShort) {
			resp["error"] = ocrUnreadable
			status = http.StatusUnprocessableEntity
		}
		if contract != nil {
			resp["file_id"] = contract.ID
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Status:   "success",
		FileID:   contract.ID,
		Filename: contract.Filename,
		Data:     summarize(contract),
	})
}

// find resolves :id as a contract id or filename within the caller's tenant
// and writes the error response when it cannot.
func (h *ContractHandler) find(c *gin.Context) (*model.Contract, bool) {
	contract, err := h.repo.GetByIDOrFilename(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil, false
	case err != nil:
		logger.Error(c.Request.Context(), "failed to load contract", "key", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return nil, false
	}
	return contract, true
}

// findLocked is find for operations that need the locked analysis.
func (h *ContractHandler) findLocked(c *gin.Context) (*model.Contract, bool) {
	contract, ok := h.find(c)
	if !ok {
		return nil, false
	}
	if !contract.Locked() {
		c.JSON(http.StatusConflict, gin.H{"error": "Contract analysis is not complete", "status": contract.Status})
		return nil, false
	}
	return contract, true
}

// List returns all contracts for the current tenant
func (h *ContractHandler) List(c *gin.Context) {
	contracts, err := h.repo.ListByTenant(c.Request.Context(), middleware.GetTenant(c))
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list contracts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contracts"})
		return
	}

	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		item := gin.H{
			"id":         contract.ID,
			"filename":   contract.Filename,
			"status":     contract.Status,
			"created_at": contract.CreatedAt.Format(time.RFC3339),
			"updated_at": contract.UpdatedAt.Format(time.RFC3339),
		}
		if contract.Fairness != nil {
			item["score"] = contract.Fairness.Score
			item["rating"] = contract.Fairness.Rating
		}
		result[i] = item
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract with its extracted data and locked score
func (h *ContractHandler) Get(c *gin.Context) {
	contract, ok := h.find(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, contract)
}

// GetStatus returns the processing status of a contract
func (h *ContractHandler) GetStatus(c *gin.Context) {
	contract, ok := h.find(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        contract.ID,
		"status":    contract.Status,
		"error_msg": contract.ErrorMsg,
	})
}

// Delete deletes a contract
func (h *ContractHandler) Delete(c *gin.Context) {
	contract, ok := h.find(c)
	if !ok {
		return
	}

	if err := h.pipeline.Delete(c.Request.Context(), contract); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		logger.Error(c.Request.Context(), "failed to delete contract", "contract_id", contract.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contract"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// Analyze runs the risk review on the stored text. The locked fairness score
// is returned unchanged next to the strict assessment of this review.
func (h *ContractHandler) Analyze(c *gin.Context) {
	contract, ok := h.findLocked(c)
	if !ok {
		return
	}
	ctx := logger.WithContract(c.Request.Context(), contract.ID)

	analysis, err := h.extractor.AnalyzeRisks(ctx, contract.Text)
	if err != nil {
		logger.Error(ctx, "risk analysis failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Deep Analysis failed: " + err.Error()})
		return
	}

	d := summarize(contract).ContractData
	prices := model.PriceFactorsFromContract(d, false)
	if prices.EstimatedTotalCost <= 0 {
		prices = analysis.PriceFactors
		prices.FillEstimatedTotal(d)
	}

	junk := d.JunkFees
	if len(junk) == 0 && analysis.JunkFees != nil {
		junk = analysis.JunkFees
	}
	risks := analysis.RiskFactors
	if risks == nil {
		risks = []model.RiskFactor{}
	}
	fees := analysis.HiddenFees
	if fees == nil {
		fees = []model.HiddenFee{}
	}

	assessment := scoring.ScoreRiskFee(scoring.RiskFeeInput{
		RiskFactors:  risks,
		HiddenFees:   fees,
		PriceFactors: prices,
		JunkFees:     junk,
	})
	logger.Info(ctx, "risk analysis completed",
		"risk_factors", len(risks), "hidden_fees", len(fees),
		"locked_score", contract.Fairness.Score, "strict_score", assessment.Score)

	c.JSON(http.StatusOK, AnalysisResponse{
		FileID:       contract.ID,
		RiskFactors:  risks,
		PriceFactors: prices,
		HiddenFees:   fees,
		JunkFees:     junk,
		Fairness:     *contract.Fairness,
		Assessment:   assessment,
	})
}

// Chat drafts a negotiation email grounded on the locked score.
func (h *ContractHandler) Chat(c *gin.Context) {
	var req NegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	contract, ok := h.findLocked(c)
	if !ok {
		return
	}
	ctx := logger.WithContract(c.Request.Context(), contract.ID)

	var junk []string
	if contract.Data != nil {
		junk = contract.Data.JunkFees
	}
	reply, err := h.negotiator.DraftEmail(ctx, contract, service.DraftRequest{
		Message:    req.Message,
		History:    req.History,
		HiddenFees: model.HiddenFeesFromJunk(junk),
	})
	if err != nil {
		logger.Error(ctx, "negotiation draft failed", "error", err)
		c.JSON(http.StatusBadGateway, reply)
		return
	}
	c.JSON(http.StatusOK, reply)
}
