package handlers

import (
	"net/http"
	"strconv"
	"time"

	"gw-lending/internal/api/middleware"
	"gw-lending/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultReceiptLimit = 50

// ReceiptHandler квитанции об оплате вне сети и их проверка операторами
type ReceiptHandler struct {
	service       *service.LendingService
	jwtMiddleware *middleware.JWTMiddleware
	tokenTTL      time.Duration
	logger        *logrus.Logger
}

// NewReceiptHandler создает новый обработчик квитанций
func NewReceiptHandler(service *service.LendingService, jwtMiddleware *middleware.JWTMiddleware, tokenTTL time.Duration, logger *logrus.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		service:       service,
		jwtMiddleware: jwtMiddleware,
		tokenTTL:      tokenTTL,
		logger:        logger,
	}
}

// SubmitReceiptRequest квитанция от владельца позиции
type SubmitReceiptRequest struct {
	Amount   string `json:"amount" binding:"required"`
	ImageRef string `json:"image_ref" binding:"required"`
}

// RegisterRequest запрос на регистрацию оператора
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest запрос на авторизацию оператора
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RejectRequest причина отказа
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Submit регистрирует квитанцию по позиции
// @Summary Submit payment receipt
// @Tags receipts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Position ID"
// @Param request body SubmitReceiptRequest true "Receipt data"
// @Success 201 {object} storages.Receipt
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/positions/{id}/receipts [post]
func (h *ReceiptHandler) Submit(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}

	var req SubmitReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount)
	if !ok {
		return
	}

	receipt, err := h.service.SubmitReceipt(c.Request.Context(), id, amount, req.ImageRef)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// Mine квитанции владельца со статусом проверки
// @Summary List own receipts
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Param position query int false "Position ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/receipts [get]
func (h *ReceiptHandler) Mine(c *gin.Context) {
	var id int64
	if raw := c.Query("position"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid position id", "field": "position"})
			return
		}
		id = n
	}
	h.ownerReceipts(c, id)
}

// PositionReceipts квитанции по одной позиции
// @Summary List position receipts
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Param id path int true "Position ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/positions/{id}/receipts [get]
func (h *ReceiptHandler) PositionReceipts(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}
	h.ownerReceipts(c, id)
}

func (h *ReceiptHandler) ownerReceipts(c *gin.Context, id int64) {
	receipts, err := h.service.OwnerReceipts(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// Register регистрирует оператора. Доступно только вошедшему оператору,
// первый создается из REVIEWER_ADMIN_* при старте.
// @Summary Register a reviewer
// @Tags reviewers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/reviewers/register [post]
func (h *ReceiptHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	reviewer, err := h.service.RegisterReviewer(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if by, err := middleware.GetUsername(c); err == nil {
		h.logger.Infof("Reviewer %s registered by %s", reviewer.Username, by)
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Reviewer registered successfully",
		"id":       reviewer.ID,
		"username": reviewer.Username,
	})
}

// Login авторизует оператора
// @Summary Login reviewer
// @Tags reviewers
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/reviewers/login [post]
func (h *ReceiptHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	reviewer, err := h.service.AuthenticateReviewer(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := h.jwtMiddleware.GenerateReviewerToken(reviewer.ID, reviewer.Username, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// List квитанции по статусу
// @Summary List receipts
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Param status query string false "submitted, under_review, verified, rejected"
// @Param limit query int false "Max receipts"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/review/receipts [get]
func (h *ReceiptHandler) List(c *gin.Context) {
	limit := defaultReceiptLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "field": "limit"})
			return
		}
		limit = n
	}

	receipts, err := h.service.ListReceipts(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// StartReview берет квитанцию в проверку
// @Summary Start receipt review
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} storages.Receipt
// @Failure 409 {object} map[string]string
// @Router /api/v1/review/receipts/{id}/start [post]
func (h *ReceiptHandler) StartReview(c *gin.Context) {
	reviewer, ok := h.reviewer(c)
	if !ok {
		return
	}

	receipt, err := h.service.StartReview(c.Request.Context(), c.Param("id"), reviewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// Verify подтверждает квитанцию и уменьшает долг
// @Summary Verify receipt
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} storages.Receipt
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/review/receipts/{id}/verify [post]
func (h *ReceiptHandler) Verify(c *gin.Context) {
	reviewer, ok := h.reviewer(c)
	if !ok {
		return
	}

	receipt, err := h.service.VerifyReceipt(c.Request.Context(), c.Param("id"), reviewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// Reject отклоняет квитанцию
// @Summary Reject receipt
// @Tags receipts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Receipt ID"
// @Param request body RejectRequest true "Reject reason"
// @Success 200 {object} storages.Receipt
// @Failure 400 {object} map[string]string
// @Router /api/v1/review/receipts/{id}/reject [post]
func (h *ReceiptHandler) Reject(c *gin.Context) {
	reviewer, ok := h.reviewer(c)
	if !ok {
		return
	}

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	receipt, err := h.service.RejectReceipt(c.Request.Context(), c.Param("id"), reviewer, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *ReceiptHandler) reviewer(c *gin.Context) (string, bool) {
	username, err := middleware.GetUsername(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return username, true
}
