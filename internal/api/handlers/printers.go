package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rebinmas/printserver/internal/db"
	"github.com/rebinmas/printserver/internal/printer"
)

type CreatePrinterRequest struct {
	Name     string `json:"name" binding:"required"`
	Address  string `json:"address" binding:"required"`
	AgentURL string `json:"agent_url"`
}

type UpdatePrinterRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	AgentURL string `json:"agent_url"`
}

type PrinterHandler struct {
	manager *printer.Manager
}

func NewPrinterHandler(manager *printer.Manager) *PrinterHandler {
	return &PrinterHandler{manager: manager}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"printers": h.manager.List()})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	p, err := h.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) GetPrinterStatus(c *gin.Context) {
	id := c.Param("id")
	detail, err := h.manager.DetailedStatus(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, printer.ErrPrinterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		case errors.Is(err, printer.ErrConnectionFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query printer"})
		}
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &db.Printer{
		Name:     req.Name,
		Address:  req.Address,
		AgentURL: req.AgentURL,
	}

	if err := h.manager.Register(c.Request.Context(), p); err != nil {
		if errors.Is(err, printer.ErrPrinterAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "printer with this address already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register printer"})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Address != "" {
		p.Address = req.Address
	}
	if req.AgentURL != "" {
		p.AgentURL = req.AgentURL
	}

	if err := h.manager.Update(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update printer"})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	if err := h.manager.Remove(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, printer.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete printer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "printer deleted"})
}
