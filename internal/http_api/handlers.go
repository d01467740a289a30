package http_api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/models"
)

// VerifyRequest is the JSON body of the verify and reactivate endpoints.
type VerifyRequest struct {
	Network        string          `json:"network" binding:"required,network"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	TransactionID  string          `json:"transaction_id" binding:"required"`
}

// VerifyResponse is returned when a payment was credited or had already been credited.
type VerifyResponse struct {
	Success        bool                       `json:"success"`
	AlreadyApplied bool                       `json:"already_applied"`
	Subscription   *models.Subscription       `json:"subscription"`
	Verification   *models.VerificationResult `json:"verification,omitempty"`
}

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// registerValidators adds the `network` binding tag to gin's validator.
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}
		validatorsErr = registerNetworkValidation(v)
	})
	return validatorsErr
}

func registerNetworkValidation(v *validator.Validate) error {
	if err := v.RegisterValidation("network", func(fl validator.FieldLevel) bool {
		_, err := models.ParseNetwork(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("failed to register network validation: %w", err)
	}
	return nil
}

func (s *HTTPServer) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// verifyPayment is a handler for the /verify endpoint.
func (s *HTTPServer) verifyPayment(c *gin.Context) {
	in, ok := s.bindVerify(c)
	if !ok {
		return
	}

	res, err := s.manager.VerifyAndApply(c.Request.Context(), in)
	s.respondApply(c, in, res, err)
}

// reactivateSubscription verifies a fresh payment for a cancelled subscription.
func (s *HTTPServer) reactivateSubscription(c *gin.Context) {
	in, ok := s.bindVerify(c)
	if !ok {
		return
	}

	res, err := s.manager.VerifyAndReactivate(c.Request.Context(), in)
	s.respondApply(c, in, res, err)
}

func (s *HTTPServer) bindVerify(c *gin.Context) (models.VerifyInput, bool) {
	var req VerifyRequest

	// Parse and validate JSON request body
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		code := models.CodeValidation
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "network" {
					code = models.CodeNetworkUnsupported
				}
			}
		}
		s.writeError(c, models.NewError(code, "", "Invalid request body: "+err.Error(), nil))
		return models.VerifyInput{}, false
	}

	network, _ := models.ParseNetwork(req.Network)
	return models.VerifyInput{
		UserID:         c.Param("userId"),
		Network:        network,
		ExpectedAmount: req.ExpectedAmount,
		TransactionID:  strings.TrimSpace(req.TransactionID),
	}, true
}

func (s *HTTPServer) respondApply(c *gin.Context, in models.VerifyInput, res *models.ApplyResult, err error) {
	if err != nil {
		s.logger.Infow("Payment not applied",
			"user_id", in.UserID,
			"network", in.Network,
			"tx", in.TransactionID,
			"error", err,
			"request_id", c.GetString("request_id"))
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		Success:        true,
		AlreadyApplied: res.AlreadyApplied,
		Subscription:   res.Subscription,
		Verification:   res.Verification,
	})
}

// subscriptionStatus returns the entitlement projection of the user's subscription.
func (s *HTTPServer) subscriptionStatus(c *gin.Context) {
	ent, err := s.manager.CheckSubscriptionStatus(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (s *HTTPServer) getSubscription(c *gin.Context) {
	sub, err := s.manager.GetUserSubscription(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *HTTPServer) cancelSubscription(c *gin.Context) {
	sub, err := s.manager.CancelSubscription(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Infow("Subscription cancelled via API", "user_id", sub.UserID, "request_id", c.GetString("request_id"))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"subscription": sub,
	})
}

func (s *HTTPServer) subscriptionStats(c *gin.Context) {
	stats, err := s.manager.GetSubscriptionStats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// runMonthlyCheck triggers the periodic sweep on demand.
func (s *HTTPServer) runMonthlyCheck(c *gin.Context) {
	res, err := s.manager.ProcessMonthlyChecks(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}

// writeError renders err with the status its code maps to.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	e := models.AsError(err)
	status := statusFor(e)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("Request failed", "path", c.FullPath(), "error", err, "request_id", c.GetString("request_id"))
	}

	body := gin.H{
		"success": false,
		"code":    e.Code,
		"error":   e.Message,
	}
	if e.Reason != "" {
		body["reason"] = e.Reason
	}
	if e.Retryable() {
		body["retryable"] = true
	}
	c.JSON(status, body)
}

func statusFor(e *models.Error) int {
	switch e.Code {
	case models.CodeValidation, models.CodeNetworkUnsupported:
		return http.StatusBadRequest
	case models.CodeVerificationNotFound, models.CodeVerificationFailed:
		return http.StatusUnprocessableEntity
	case models.CodeAPIError:
		return http.StatusBadGateway
	case models.CodeAlreadyApplied:
		return http.StatusOK
	case models.CodePaymentClaimed, models.CodeInvalidTransition:
		return http.StatusConflict
	case models.CodeSubscriptionNotFound:
		return http.StatusNotFound
	case models.CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
