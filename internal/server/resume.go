package server

import (
	"net/http"
	"strings"

	entitlementdomain "github.com/densematrix/resumeforge/internal/entitlement/domain"
	"github.com/densematrix/resumeforge/internal/generation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const headerDeviceID = "X-Device-ID"

type generateResponse struct {
	Content         string `json:"content"`
	TokensRemaining int64  `json:"tokens_remaining"`
	Source          string `json:"source"`
}

type tokenStatusResponse struct {
	TokensRemaining int64 `json:"tokens_remaining"`
	DailyUsed       int64 `json:"daily_used"`
	DailyLimit      int64 `json:"daily_limit"`
	CanGenerate     bool  `json:"can_generate"`
}

func (s *Server) deviceID(c *gin.Context) (string, bool) {
	deviceID := strings.TrimSpace(c.GetHeader(headerDeviceID))
	if deviceID == "" {
		AbortWithError(c, entitlementdomain.ErrInvalidDevice)
		return "", false
	}
	c.Set("device_id", deviceID)
	return deviceID, true
}

func (s *Server) GenerateResume(c *gin.Context) {
	deviceID, ok := s.deviceID(c)
	if !ok {
		return
	}

	var req generation.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.JobTitle) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	content, err := s.generateWithMetering(c, deviceID, "generate", func() (string, error) {
		return s.generationSvc.GenerateResume(c.Request.Context(), req)
	})
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, content)
}

func (s *Server) GenerateCoverLetter(c *gin.Context) {
	deviceID, ok := s.deviceID(c)
	if !ok {
		return
	}

	var req generation.CoverLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		strings.TrimSpace(req.JobTitle) == "" || strings.TrimSpace(req.Company) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	content, err := s.generateWithMetering(c, deviceID, "cover_letter", func() (string, error) {
		return s.generationSvc.GenerateCoverLetter(c.Request.Context(), req)
	})
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, content)
}

// generateWithMetering runs the eligibility check, the generation call, and
// the consume in order. Generation happens between check and consume, so the
// tier actually charged is the one available at consume time.
func (s *Server) generateWithMetering(c *gin.Context, deviceID, function string, generate func() (string, error)) (*generateResponse, error) {
	ctx := c.Request.Context()

	decision, err := s.entitlementSvc.Evaluate(ctx, deviceID)
	if err != nil {
		AbortWithError(c, err)
		return nil, err
	}
	if !decision.Eligible {
		AbortWithError(c, entitlementdomain.ErrQuotaExhausted)
		return nil, entitlementdomain.ErrQuotaExhausted
	}

	content, err := generate()
	if err != nil {
		AbortWithError(c, err)
		return nil, err
	}

	tier, err := s.entitlementSvc.Consume(ctx, deviceID)
	if err != nil {
		// The quota moved between check and consume. The content was already
		// produced, so round in the user's favor and serve it uncharged.
		if tier == entitlementdomain.TierExhausted {
			s.log.Info("consume raced to exhaustion, serving uncharged",
				zap.String("device_id", deviceID))
			tier = entitlementdomain.TierFree
		} else {
			AbortWithError(c, err)
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordGeneration(function)
		s.metrics.RecordConsumption(string(tier))
	}

	after, err := s.entitlementSvc.Evaluate(ctx, deviceID)
	if err != nil {
		AbortWithError(c, err)
		return nil, err
	}

	return &generateResponse{
		Content:         content,
		TokensRemaining: after.TokensRemaining,
		Source:          string(tier),
	}, nil
}

func (s *Server) TokenStatus(c *gin.Context) {
	deviceID, ok := s.deviceID(c)
	if !ok {
		return
	}

	decision, err := s.entitlementSvc.Evaluate(c.Request.Context(), deviceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenStatusResponse{
		TokensRemaining: decision.TokensRemaining,
		DailyUsed:       decision.DailyUsed,
		DailyLimit:      decision.DailyLimit,
		CanGenerate:     decision.Eligible,
	})
}
