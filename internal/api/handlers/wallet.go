package handlers

import (
	"net/http"
	"time"

	"gw-lending/internal/api/middleware"
	"gw-lending/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WalletHandler подключение кошелька, балансы и разрешения
type WalletHandler struct {
	service       *service.LendingService
	sessions      Sessions
	jwtMiddleware *middleware.JWTMiddleware
	tokenTTL      time.Duration
	logger        *logrus.Logger
}

// NewWalletHandler создает новый обработчик кошелька
func NewWalletHandler(service *service.LendingService, sessions Sessions, jwtMiddleware *middleware.JWTMiddleware, tokenTTL time.Duration, logger *logrus.Logger) *WalletHandler {
	return &WalletHandler{
		service:       service,
		sessions:      sessions,
		jwtMiddleware: jwtMiddleware,
		tokenTTL:      tokenTTL,
		logger:        logger,
	}
}

// ConnectRequest запрос на подключение кошелька
type ConnectRequest struct {
	Address    string `json:"address" binding:"required"`
	Passphrase string `json:"passphrase"`
}

// ApproveRequest запрос на разрешение списания
type ApproveRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Spender string `json:"spender"`
}

// Connect открывает сессию кошелька и выдает токен на ее срок
// @Summary Connect wallet
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body ConnectRequest true "Wallet address and keystore passphrase"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/connect [post]
func (h *WalletHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address", "field": "address"})
		return
	}
	address := common.HexToAddress(req.Address)

	expiresAt, err := h.sessions.Connect(c.Request.Context(), address, req.Passphrase)
	if err != nil {
		h.logger.Warnf("Failed to connect wallet %s: %v", address.Hex(), err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to connect wallet"})
		return
	}

	ttl := h.tokenTTL
	if untilExpiry := time.Until(expiresAt); untilExpiry < ttl {
		ttl = untilExpiry
	}
	token, err := h.jwtMiddleware.GenerateWalletToken(address, ttl)
	if err != nil {
		h.sessions.Disconnect(address)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"address":    address.Hex(),
		"expires_at": expiresAt,
	})
}

// Disconnect закрывает сессию кошелька
// @Summary Disconnect wallet
// @Tags wallet
// @Security BearerAuth
// @Success 204
// @Router /api/v1/disconnect [post]
func (h *WalletHandler) Disconnect(c *gin.Context) {
	owner, err := middleware.GetOwner(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	h.sessions.Disconnect(owner)
	c.Status(http.StatusNoContent)
}

// GetBalance баланс залога в контракте и токена в кошельке
// @Summary Get collateral and wallet balance
// @Tags wallet
// @Security BearerAuth
// @Produce json
// @Param refresh query bool false "Bypass balance cache"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/v1/balance [get]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()
	owner, err := h.sessions.Owner(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var view service.BalanceView
	if c.Query("refresh") == "true" {
		view, err = h.service.Refresh(ctx, owner)
	} else {
		view, err = h.service.CollateralBalance(ctx, owner)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := gin.H{
		"asset":      h.service.Collateral().Symbol,
		"collateral": view,
	}
	// баланс кошелька вспомогательный, его ошибка не ломает ответ
	if wallet, err := h.service.WalletBalance(ctx, owner, ""); err == nil {
		response["wallet"] = wallet
	} else {
		h.logger.Warnf("Failed to read wallet balance for %s: %v", owner.Hex(), err)
	}

	c.JSON(http.StatusOK, response)
}

// GetAllowance нужна ли approve перед переводом суммы
// @Summary Check allowance
// @Tags wallet
// @Security BearerAuth
// @Produce json
// @Param amount query string true "Collateral amount"
// @Param spender query string false "Spender address, lending contract by default"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/allowance [get]
func (h *WalletHandler) GetAllowance(c *gin.Context) {
	ctx := c.Request.Context()
	owner, err := h.sessions.Owner(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	amount, ok := bindAmount(c, c.Query("amount"))
	if !ok {
		return
	}
	spender, ok := h.spender(c, c.Query("spender"))
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"spender":        spender.Hex(),
		"amount":         amount,
		"needs_approval": h.service.NeedsApproval(ctx, amount, owner, spender),
	})
}

// Approve разрешает spender списать сумму залога
// @Summary Approve collateral spending
// @Tags wallet
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ApproveRequest true "Approve data"
// @Param wait query bool false "Wait for confirmation"
// @Success 202 {object} operation.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/v1/approve [post]
func (h *WalletHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	amount, ok := bindAmount(c, req.Amount)
	if !ok {
		return
	}
	spender, ok := h.spender(c, req.Spender)
	if !ok {
		return
	}

	op, err := h.service.Approve(c.Request.Context(), amount, spender)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOperation(c, h.logger, op)
}

// spender адрес из запроса или контракт кредитования
func (h *WalletHandler) spender(c *gin.Context, raw string) (common.Address, bool) {
	if raw == "" {
		return h.service.Contract(), true
	}
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid spender address", "field": "spender"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
