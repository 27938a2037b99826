package server

import (
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/densematrix/resumeforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

const headerCreemSignature = "creem-signature"

func (s *Server) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.List())
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req paymentdomain.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.SuccessURL) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.paymentSvc.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleCreemWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	signature := strings.TrimSpace(c.GetHeader(headerCreemSignature))
	if err := s.paymentSvc.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
