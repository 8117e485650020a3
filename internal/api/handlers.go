package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"url-shortener/internal/auth"
	"url-shortener/internal/config"
	"url-shortener/internal/shortener"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueueStatus reports the state of the click queue for /status.
type QueueStatus interface {
	GetStatus() map[string]interface{}
}

// Pinger checks backing storage for /status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API. Queue and DB are optional.
type Handler struct {
	Links  *shortener.Service
	Auth   *auth.Service
	Queue  QueueStatus
	DB     Pinger
	Config *config.Config
	Logger *zap.SugaredLogger
}

// CreateLinkRequest is the request body for POST /api/links.
type CreateLinkRequest struct {
	URL       string `json:"url" binding:"required,url"`
	ShortCode string `json:"short_code"`
}

// UpdateLinkRequest is the request body for PATCH /api/links/:id. Absent
// fields are left unchanged.
type UpdateLinkRequest struct {
	URL       *string `json:"url" binding:"omitempty,url"`
	ShortCode *string `json:"short_code"`
}

// LinkResponse is the JSON form of a link.
type LinkResponse struct {
	ID          string    `json:"id"`
	ShortCode   string    `json:"short_code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ClickCount  int64     `json:"click_count"`
}

// reservedCodes are top-level paths that a short code would be shadowed by.
var reservedCodes = []string{"api", "health", "status"}

// CreateLink allocates a short code for the authenticated account.
// It responds 201 for a new link and 200 when an existing link is reused.
func (h *Handler) CreateLink(c *gin.Context) {
	account, _ := CurrentAccount(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if !h.checkDomain(c, req.URL) {
		return
	}
	if slices.Contains(reservedCodes, strings.ToLower(req.ShortCode)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Short code '%s' is reserved.", req.ShortCode)})
		return
	}

	link, created, err := h.Links.Allocate(c.Request.Context(), account.ID, req.URL, req.ShortCode)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.Logger.Infow("Created short link", "short_code", link.ShortCode, "account_id", account.ID)
	}
	c.JSON(status, h.toResponse(c, link))
}

// ListLinks returns the account's links, filtered by ?search= and ordered by ?sort=.
func (h *Handler) ListLinks(c *gin.Context) {
	account, _ := CurrentAccount(c)

	links, err := h.Links.List(c.Request.Context(), account.ID, shortener.ListOptions{
		Search: c.Query("search"),
		Sort:   c.DefaultQuery("sort", shortener.SortNewest),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]LinkResponse, 0, len(links))
	for i := range links {
		resp = append(resp, h.toResponse(c, &links[i]))
	}
	c.JSON(http.StatusOK, gin.H{"links": resp})
}

// UpdateLink changes the short code and/or destination of an owned link.
func (h *Handler) UpdateLink(c *gin.Context) {
	account, _ := CurrentAccount(c)
	id := c.Param("id")

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.URL == nil && req.ShortCode == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if req.URL != nil && !h.checkDomain(c, *req.URL) {
		return
	}
	if req.ShortCode != nil && slices.Contains(reservedCodes, strings.ToLower(*req.ShortCode)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Short code '%s' is reserved.", *req.ShortCode)})
		return
	}

	var (
		link *shortener.Link
		err  error
	)
	if req.ShortCode != nil {
		if link, err = h.Links.UpdateCode(c.Request.Context(), account.ID, id, *req.ShortCode); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if req.URL != nil {
		if link, err = h.Links.UpdateURL(c.Request.Context(), account.ID, id, *req.URL); err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, h.toResponse(c, link))
}

// DeleteLink removes an owned link.
func (h *Handler) DeleteLink(c *gin.Context) {
	account, _ := CurrentAccount(c)

	if err := h.Links.Delete(c.Request.Context(), account.ID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListClicks returns the recorded clicks of an owned link.
func (h *Handler) ListClicks(c *gin.Context) {
	account, _ := CurrentAccount(c)

	clicks, err := h.Links.Clicks(c.Request.Context(), account.ID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clicks": clicks})
}

// Redirect resolves a short code and redirects to its destination.
func (h *Handler) Redirect(c *gin.Context) {
	shortCode := c.Param("shortCode")
	if shortCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Short code parameter is missing"})
		return
	}

	target, err := h.Links.Resolve(c.Request.Context(), shortCode, shortener.Visit{
		UserAgent: c.GetHeader("User-Agent"),
		Referrer:  c.GetHeader("Referer"),
	})
	if err != nil {
		if errors.Is(err, shortener.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Short code not found"})
			return
		}
		h.Logger.Errorw("Error resolving short code", "short_code", shortCode, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Redirect(http.StatusFound, target)
}

// HealthCheck provides a simple health check endpoint.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// Status reports storage reachability and click queue state.
func (h *Handler) Status(c *gin.Context) {
	body := gin.H{"status": "UP", "timestamp": time.Now().UTC()}
	code := http.StatusOK

	if h.DB != nil {
		if err := h.DB.Ping(c.Request.Context()); err != nil {
			h.Logger.Warnw("Database ping failed", "error", err)
			body["status"] = "DEGRADED"
			body["database"] = "DOWN"
			code = http.StatusServiceUnavailable
		} else {
			body["database"] = "UP"
		}
	}
	if h.Queue != nil {
		body["click_queue"] = h.Queue.GetStatus()
	}
	c.JSON(code, body)
}

// checkDomain enforces ALLOWED_DOMAINS and writes the error response itself.
func (h *Handler) checkDomain(c *gin.Context, rawURL string) bool {
	allowed := h.Config.AllowedDomainList()
	if len(allowed) == 0 {
		return true
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL format: " + err.Error()})
		return false
	}
	hostname := parsedURL.Hostname()

	foundMatch := slices.IndexFunc(allowed, func(allowedDomain string) bool {
		return strings.EqualFold(allowedDomain, hostname)
	}) != -1
	if !foundMatch {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("Domain '%s' is not allowed for shortening.", hostname)})
		return false
	}
	return true
}

func (h *Handler) toResponse(c *gin.Context, link *shortener.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL(c) + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
		ClickCount:  link.ClickCount,
	}
}

// baseURL is BASE_URL when configured, else the origin of the current request.
func (h *Handler) baseURL(c *gin.Context) string {
	if h.Config.BaseURL != "" {
		return h.Config.BaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shortener.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case errors.Is(err, shortener.ErrCodeTaken), errors.Is(err, shortener.ErrUniquenessViolation):
		c.JSON(http.StatusConflict, gin.H{"error": "This short code is already taken. Please choose another."})
	case errors.Is(err, shortener.ErrInvalidCode), errors.Is(err, shortener.ErrEmptyURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, shortener.ErrNoOwner):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, shortener.ErrAllocationExhausted):
		h.Logger.Errorw("Short code allocation exhausted", "path", c.FullPath())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to generate a unique short code after multiple attempts"})
	default:
		h.Logger.Errorw("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
