package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/flowbit/invoice-agent/pkg/adapter"
	"github.com/flowbit/invoice-agent/pkg/engine"
	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/usecase/review"
	"github.com/flowbit/invoice-agent/pkg/utils/logging"
	"github.com/gin-gonic/gin"
)

// Server exposes the decision engine and the teaching/feedback surface
// over HTTP. Invoices are the loaded dataset; processing one uses the rest
// of the set as history for duplicate detection.
type Server struct {
	invoices []*model.Invoice
	store    *memory.Store
	engine   *engine.Engine
	review   *review.UseCase
	exporter adapter.BigQuery
}

// Option is a functional option for Server
type Option func(*Server)

// WithExporter attaches an optional analytics sink for processing results.
func WithExporter(exporter adapter.BigQuery) Option {
	return func(s *Server) {
		s.exporter = exporter
	}
}

// New creates a new Server instance
func New(invoices []*model.Invoice, store *memory.Store, eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		invoices: invoices,
		store:    store,
		engine:   eng,
		review:   review.New(store, review.WithOutput(io.Discard)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/invoices", s.listInvoices)
	api.POST("/process/:id", s.processInvoice)
	api.POST("/learn", s.learn)
	api.GET("/memory", s.listMemory)
	api.POST("/reset", s.resetMemory)
	api.POST("/resolve", s.resolve)

	return r
}

func (s *Server) listInvoices(c *gin.Context) {
	c.JSON(http.StatusOK, s.invoices)
}

func (s *Server) findInvoice(id model.InvoiceID) (*model.Invoice, []*model.Invoice, error) {
	var found *model.Invoice
	history := make([]*model.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if inv.ID == id {
			found = inv
			continue
		}
		history = append(history, inv)
	}
	if found == nil {
		return nil, nil, model.ErrInvoiceNotFound
	}
	return found, history, nil
}

func (s *Server) processInvoice(c *gin.Context) {
	id := model.InvoiceID(c.Param("id"))

	invoice, history, err := s.findInvoice(id)
	if err != nil {
		if errors.Is(err, model.ErrInvoiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	result, err := s.engine.Process(ctx, invoice, history)
	if err != nil {
		logging.From(ctx).Error("processing failed", "invoiceId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	if s.exporter != nil {
		if err := s.exporter.InsertResult(ctx, result, invoice.Vendor); err != nil {
			// Export is analytics-only; the decision still stands.
			logging.From(ctx).Warn("failed to export result", "invoiceId", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

type learnRequest struct {
	VendorName    string            `json:"vendorName" binding:"required"`
	Type          model.MemoryType  `json:"type" binding:"required"`
	Key           string            `json:"key" binding:"required"`
	Value         model.MemoryValue `json:"value"`
	WasSuccessful *bool             `json:"wasSuccessful"`
}

func (s *Server) learn(c *gin.Context) {
	var req learnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wasSuccessful := true
	if req.WasSuccessful != nil {
		wasSuccessful = *req.WasSuccessful
	}

	entry, err := s.store.Learn(c.Request.Context(), req.VendorName, req.Type, req.Key, req.Value, wasSuccessful)
	if err != nil {
		if errors.Is(err, model.ErrInvalidMemoryType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Learned: " + req.Key + " -> " + req.Value.String() + " for " + req.VendorName,
		"entry":   entry,
	})
}

func (s *Server) listMemory(c *gin.Context) {
	entries, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) resetMemory(c *gin.Context) {
	if err := s.store.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Transient memory wiped."})
}

type resolveRequest struct {
	VendorName       string           `json:"vendorName" binding:"required"`
	AppliedMemoryIDs []model.MemoryID `json:"appliedMemoryIds"`
	Approved         *bool            `json:"approved" binding:"required"`
}

func (s *Server) resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.review.Resolve(c.Request.Context(), req.VendorName, req.AppliedMemoryIDs, *req.Approved); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
