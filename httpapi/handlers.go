package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexhub/nexauth"
	"github.com/nexhub/nexauth/token"
)

const refreshCookieName = "refresh_token"

type handler struct {
	engine *nexauth.Engine
	cfg    Config
}

type registerRequest struct {
	FirstName string `json:"firstname" binding:"required"`
	LastName  string `json:"lastname" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, nexauth.BadRequest("Invalid registration payload"))
		return
	}

	result, err := h.engine.Register(c.Request.Context(), nexauth.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful. Check your email to verify your account.",
		"data":    gin.H{"userId": result.UserID, "email": result.Email},
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, nexauth.BadRequest("Email and password are required"))
		return
	}

	result, err := h.engine.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.TwoFactorRequired {
		c.JSON(http.StatusOK, gin.H{
			"message":         "2FA verification required",
			"pending2FAToken": result.Pending2FAToken,
		})
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Login successful",
		"accessToken": result.AccessToken,
	})
}

func (h *handler) verifyEmail(c *gin.Context) {
	pair, err := h.engine.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Email verified",
		"accessToken": pair.AccessToken,
	})
}

type resetRequestPayload struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *handler) requestPasswordReset(c *gin.Context) {
	var req resetRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, nexauth.BadRequest("Email is required"))
		return
	}

	if err := h.engine.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset link sent"})
}

type resetPasswordPayload struct {
	Email    string `json:"email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *handler) resetPassword(c *gin.Context) {
	raw, err := bearerFrom(c, "Authorization")
	if err != nil {
		respondError(c, err)
		return
	}

	var req resetPasswordPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, nexauth.BadRequest("Password is required"))
		return
	}

	if err := h.engine.ResetPassword(c.Request.Context(), raw, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

func (h *handler) refresh(c *gin.Context) {
	raw, err := c.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		respondError(c, nexauth.Unauthorized("Refresh token missing"))
		return
	}

	access, err := h.engine.RefreshAccessToken(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Token refreshed",
		"accessToken": access,
	})
}

func (h *handler) setup2FA(c *gin.Context) {
	raw, err := bearerFrom(c, "Authorization")
	if err != nil {
		respondError(c, err)
		return
	}

	setup, err := h.engine.Setup2FA(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "2FA setup generated. Store the recovery codes now; they are shown only once.",
		"data": gin.H{
			"otpAuthURL":    setup.OTPAuthURL,
			"recoveryCodes": setup.RecoveryCodes,
		},
	})
}

type verify2FARequest struct {
	TwoFACode    string `json:"twoFACode"`
	RecoveryCode string `json:"recoveryCode"`
}

func (h *handler) verify2FA(c *gin.Context) {
	raw, err := bearerFrom(c, "Authorization")
	if err != nil {
		respondError(c, err)
		return
	}

	var req verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, nexauth.BadRequest("Invalid 2FA payload"))
		return
	}

	pair, err := h.engine.Verify2FA(c.Request.Context(), raw, req.TwoFACode, req.RecoveryCode)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message":     "2FA verification successful",
		"accessToken": pair.AccessToken,
	})
}

func (h *handler) initiate2FA(c *gin.Context) {
	raw, err := bearerFrom(c, "X-Access-Token")
	if err != nil {
		respondError(c, err)
		return
	}

	pending, err := h.engine.Initiate2FA(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "2FA initiation successful",
		"pending2FAToken": pending,
	})
}

func (h *handler) deinit2FA(c *gin.Context) {
	raw, err := bearerFrom(c, "X-Access-Token")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.engine.Deinit2FA(c.Request.Context(), raw); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "2FA disabled"})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.engine.MetricsSnapshot()})
}

// bearerFrom parses "Bearer <token>" out of the named header. Header
// problems are 400s; whether the token itself is acceptable is decided
// by the engine.
func bearerFrom(c *gin.Context, header string) (string, error) {
	raw, err := token.ReadBearer(c.GetHeader(header))
	if err != nil {
		return "", nexauth.BadRequest("Invalid " + header + " header")
	}
	return raw, nil
}

func (h *handler) setRefreshCookie(c *gin.Context, refreshToken string) {
	maxAge := int(h.engine.Configuration().Token.RefreshTTL.Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, refreshToken, maxAge, "/auth", h.cfg.CookieDomain, h.cfg.ProductionMode, true)
}

func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(nexauth.StatusOf(err), gin.H{
		"message": nexauth.MessageOf(err),
	})
}
