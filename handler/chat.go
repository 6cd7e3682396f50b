package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prizzzz/leaseIQ/middleware"
	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/logger"
	"github.com/prizzzz/leaseIQ/service"
)

// ChatHandler serves the streamed expert chat and the dealer simulator.
type ChatHandler struct {
	repo       service.ContractRepository
	negotiator *service.Negotiator
}

func NewChatHandler(repo service.ContractRepository, negotiator *service.Negotiator) *ChatHandler {
	return &ChatHandler{repo: repo, negotiator: negotiator}
}

type ChatRequest struct {
	Message  string `json:"message" binding:"required"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Intent   string `json:"intent"`
}

type SimulatorRequest struct {
	Message  string `json:"message" binding:"required"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Persona  string `json:"persona"`
}

// ContractKey picks the id or filename a chat refers to. Browser clients
// send "null" and "undefined" for no contract.
func ContractKey(fileID, filename string) string {
	for _, key := range []string{fileID, filename} {
		switch key {
		case "", "null", "undefined":
			continue
		}
		return key
	}
	return ""
}

func (h *ChatHandler) lookup(c *gin.Context, key string) (*model.Contract, error) {
	if key == "" {
		return nil, nil
	}
	return h.repo.GetByIDOrFilename(c.Request.Context(), middleware.GetTenant(c), key)
}

func startStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// Chat streams the expert's answer. A missing contract only drops the
// document context.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ctx := c.Request.Context()

	key := ContractKey(req.FileID, req.Filename)
	contract, err := h.lookup(c, key)
	if err != nil {
		logger.Warn(ctx, "chat context not loaded", "key", key, "error", err)
	}
	if contract != nil {
		ctx = logger.WithContract(ctx, contract.ID)
	}

	startStream(c)
	if err := h.negotiator.StreamChat(ctx, req.Message, service.ParseIntent(req.Intent), service.ContractContext(contract), c.Writer); err != nil {
		c.Error(err)
	}
}

// Simulator streams a dealer's reply for the referenced contract.
func (h *ChatHandler) Simulator(c *gin.Context) {
	var req SimulatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ctx := c.Request.Context()

	contract, err := h.lookup(c, ContractKey(req.FileID, req.Filename))
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return
	case err != nil:
		logger.Error(ctx, "failed to load contract", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return
	}

	var data model.ContractData
	if contract != nil {
		ctx = logger.WithContract(ctx, contract.ID)
		if contract.Data != nil {
			data = *contract.Data
		}
	}

	startStream(c)
	if err := h.negotiator.StreamSimulator(ctx, req.Message, data, service.ParsePersona(req.Persona), c.Writer); err != nil {
		c.Error(err)
	}
}
