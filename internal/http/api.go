package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"persondb/internal/auth"
	"persondb/internal/domain"
	"persondb/internal/service"
	"persondb/internal/stats"
	"persondb/internal/storage"
)

const personIDKey = "personID"

// Snapshots is the subset of the snapshot exporter the API exposes.
type Snapshots interface {
	Export(ctx context.Context) (string, error)
	Restore(ctx context.Context, key string) (service.ImportResult, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
	Prune(ctx context.Context) (int, error)
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	persons    service.PersonService
	snapshots  Snapshots
	stats      *stats.Collector
	jwtSecret  []byte
	tokenTTL   time.Duration
	adminToken string
	logger     *logrus.Logger
}

type Options struct {
	JWTSecret  string
	TokenTTL   time.Duration
	AdminToken string
	Logger     *logrus.Logger
	// Stats backs GET /api/admin/stats. Nil disables the route.
	Stats *stats.Collector
}

// NewHandler builds the API. snapshots may be nil when no bucket is configured.
func NewHandler(persons service.PersonService, snapshots Snapshots, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Handler{
		persons:    persons,
		snapshots:  snapshots,
		stats:      opts.Stats,
		jwtSecret:  []byte(opts.JWTSecret),
		tokenTTL:   opts.TokenTTL,
		adminToken: strings.TrimSpace(opts.AdminToken),
		logger:     opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/persons", h.createPerson)
		api.POST("/login", h.login)
		api.GET("/health", h.health)

		own := api.Group("/persons/:id", h.requireToken())
		own.GET("", h.getPerson)
		own.PATCH("", h.updatePerson)
		own.DELETE("", h.deletePerson)

		admin := api.Group("/admin", h.requireAdmin())
		admin.GET("/stats", h.operationStats)
		admin.DELETE("/stats", h.resetStats)

		snaps := admin.Group("/snapshots", h.requireSnapshots())
		snaps.GET("", h.listSnapshots)
		snaps.POST("", h.createSnapshot)
		snaps.POST("/restore", h.restoreSnapshot)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Admin-Token")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requireToken accepts a bearer token whose subject is the :id being accessed.
func (h *Handler) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		subject, err := auth.PersonIDFromToken(strings.TrimSpace(token), h.jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
			return
		}
		if id != subject {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not grant access to this person"})
			return
		}

		c.Set(personIDKey, id)
		c.Next()
	}
}

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			return
		}
		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

func (h *Handler) requireSnapshots() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.snapshots == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot storage not configured"})
			return
		}
		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	n, err := h.persons.Count(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": "ok", "persons": n})
}

type createPersonRequest struct {
	Login       string `json:"login"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Metadata    string `json:"metadata"`
}

// updatePersonRequest fields left out of the body stay unchanged.
type updatePersonRequest struct {
	Login       *string `json:"login"`
	Password    *string `json:"password"`
	DisplayName *string `json:"display_name"`
	Metadata    *string `json:"metadata"`
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type restoreRequest struct {
	Key string `json:"key"`
}

type PersonResponse struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Metadata    string `json:"metadata"`
}

type TokenResponse struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type OperationStatsResponse struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	Errors    int64   `json:"errors"`
	AverageMS float64 `json:"average_ms"`
	MaxMS     float64 `json:"max_ms"`
}

type SnapshotResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) createPerson(c *gin.Context) {
	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.persons.Create(c.Request.Context(), domain.Person{
		Login:       req.Login,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.persons.Authenticate(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	expiresAt := time.Now().Add(h.tokenTTL)
	token, err := auth.GenerateToken(id, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		ID:        id.String(),
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) getPerson(c *gin.Context) {
	id := c.MustGet(personIDKey).(uuid.UUID)

	person, err := h.persons.Read(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, personToResponse(id, person))
}

func (h *Handler) updatePerson(c *gin.Context) {
	id := c.MustGet(personIDKey).(uuid.UUID)

	var req updatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := domain.PersonPatch{
		Login:       req.Login,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Metadata:    req.Metadata,
	}
	if err := h.persons.Update(c.Request.Context(), id, patch); err != nil {
		h.writeError(c, err)
		return
	}

	person, err := h.persons.Read(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, personToResponse(id, person))
}

func (h *Handler) deletePerson(c *gin.Context) {
	id := c.MustGet(personIDKey).(uuid.UUID)

	if err := h.persons.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}

func (h *Handler) operationStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats not enabled"})
		return
	}

	snapshot := h.stats.Snapshot()
	resp := make([]OperationStatsResponse, len(snapshot))
	for i, s := range snapshot {
		resp[i] = OperationStatsResponse{
			Operation: s.Operation,
			Count:     s.Count,
			Errors:    s.Errors,
			AverageMS: millis(s.Average),
			MaxMS:     millis(s.Max),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) resetStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats not enabled"})
		return
	}
	h.stats.Reset()
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSnapshots(c *gin.Context) {
	objects, err := h.snapshots.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]SnapshotResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createSnapshot(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	key, err := h.snapshots.Export(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"key": key}
	if removed, err := h.snapshots.Prune(ctx); err != nil {
		h.logger.WithError(err).Warn("prune snapshots")
		resp["warnings"] = []string{"prune snapshots: " + err.Error()}
	} else if removed > 0 {
		resp["pruned"] = removed
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) restoreSnapshot(c *gin.Context) {
	var req restoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	res, err := h.snapshots.Restore(ctx, strings.TrimSpace(req.Key))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": res.Imported, "skipped": res.Skipped})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func personToResponse(id uuid.UUID, p domain.Person) PersonResponse {
	return PersonResponse{
		ID:          id.String(),
		Login:       p.Login,
		DisplayName: p.DisplayName,
		Metadata:    p.Metadata,
	}
}

func objectToResponse(obj storage.ObjectInfo) SnapshotResponse {
	resp := SnapshotResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
