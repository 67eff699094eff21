// Package stubapi is a local stand-in for the story and auth backends. It
// lets the CLI and manual tests run without the real service: jobs report
// "processing" for a few fetches and then complete with fabricated scenes.
package stubapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"story-client/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configure the stub's behaviour.
type Options struct {
	// CompleteAfter is how many status fetches a job answers "processing"
	// before turning completed.
	CompleteAfter int
	// JWTSecret signs the tokens issued by the stub auth endpoints.
	JWTSecret string
	// AccessTokenTTL for issued tokens.
	AccessTokenTTL time.Duration
}

type job struct {
	id        string
	prompt    string
	createdAt time.Time
	fetches   int
	failed    bool
}

// Server holds the stub's in-memory state.
type Server struct {
	opts   Options
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates a stub server.
func New(opts Options, logger *zap.Logger) *Server {
	if opts.CompleteAfter <= 0 {
		opts.CompleteAfter = 3
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "stub-secret"
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 15 * time.Minute
	}
	return &Server{
		opts:   opts,
		logger: logger.Named("StubAPI"),
		jobs:   make(map[string]*job),
	}
}

// Router builds the gin engine with all stub routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	router.POST("/stories/generate", s.handleGenerate)
	router.GET("/stories/fetch/:story_id", s.handleFetch)
	router.GET("/stories/user/:credential", s.handleList)
	router.DELETE("/stories/user/:credential/story/:story_id", s.handleDelete)

	router.POST("/auth/verify-token", s.handleVerifyToken)
	router.POST("/auth/refresh-token", s.handleRefreshToken)

	return router
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req struct {
		Credential string `json:"credential"`
		Prompt     string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "prompt must not be empty"})
		return
	}

	j := &job{
		id:        uuid.NewString(),
		prompt:    req.Prompt,
		createdAt: time.Now().UTC(),
		// Промпт со словом "fail" дает проваленную задачу — для ручной
		// проверки путей ошибок
		failed: strings.Contains(strings.ToLower(req.Prompt), "fail"),
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.logger.Info("Stub job accepted", zap.String("jobID", j.id))
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"story_id": j.id,
		"status":   string(models.StatusProcessing),
	})
}

func (s *Server) handleFetch(c *gin.Context) {
	id := c.Param("story_id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		j.fetches++
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "story not found"})
		return
	}

	if j.failed && j.fetches >= s.opts.CompleteAfter {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": string(models.StatusFailed), "message": "generation failed"})
		return
	}
	if j.fetches < s.opts.CompleteAfter {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": string(models.StatusProcessing)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "story": s.fabricateRecord(j)})
}

func (s *Server) handleList(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid 'limit' parameter"})
			return
		}
		limit = parsed
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid 'offset' parameter"})
			return
		}
		offset = parsed
	}

	s.mu.Lock()
	all := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j)
	}
	s.mu.Unlock()

	// Новые истории первыми, как в клиентском списке
	sort.Slice(all, func(i, k int) bool { return all[i].createdAt.After(all[k].createdAt) })

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	records := make([]models.StoryRecord, 0, end-offset)
	for _, j := range all[offset:end] {
		records = append(records, *s.fabricateRecord(j))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"stories":     records,
		"has_more":    end < total,
		"total_count": total,
	})
}

func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("story_id")

	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "story not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleVerifyToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	_, err := jwt.Parse(req.Token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.opts.JWTSecret), nil
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "valid": err == nil})
}

func (s *Server) handleRefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	// Заглушка принимает любой непустой refresh token, кроме явного маркера
	if req.RefreshToken == "expired" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "refresh token expired"})
		return
	}

	access, err := s.issueToken(s.opts.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to sign token"})
		return
	}
	refresh, err := s.issueToken(7 * 24 * time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to sign token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (s *Server) issueToken(ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "stub-auth",
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.opts.JWTSecret))
}

// fabricateRecord builds a deterministic four-scene story for a job.
func (s *Server) fabricateRecord(j *job) *models.StoryRecord {
	const sceneCount = 4
	const sceneDuration = 12.5

	scenes := make([]models.Scene, 0, sceneCount)
	for i := 1; i <= sceneCount; i++ {
		scenes = append(scenes, models.Scene{
			Index:             i,
			Text:              fmt.Sprintf("Scene %d of the story about %q.", i, j.prompt),
			VisualDescription: fmt.Sprintf("Illustration %d for %q", i, j.prompt),
			AudioURL:          fmt.Sprintf("https://stub.local/audio/%s/%d.mp3", j.id, i),
			ImageURL:          fmt.Sprintf("https://stub.local/images/%s/%d.png", j.id, i),
			StartOffset:       float64(i-1) * sceneDuration,
			Duration:          sceneDuration,
		})
	}

	title := j.prompt
	if len(title) > 40 {
		title = title[:40]
	}
	return &models.StoryRecord{
		ID:            j.id,
		Title:         "A story about " + title,
		Status:        models.StatusCompleted,
		Scenes:        scenes,
		TotalDuration: sceneDuration * sceneCount,
		TotalScenes:   sceneCount,
		Thumbnail:     scenes[0].ImageURL,
		CreatedAt:     j.createdAt,
	}
}
