// Package server exposes classification, history and reports over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tokasu/internal/classify"
	"tokasu/internal/domain"
	"tokasu/internal/evidence"
	"tokasu/internal/report"
)

type Classifier interface {
	Submit(ctx context.Context, reporter domain.Reporter, sub evidence.Submission) (classify.Outcome, error)
	Remaining(ctx context.Context, userID string) (int, error)
	Limit() int
}

type IncidentReader interface {
	ListByReporter(ctx context.Context, userID string) ([]domain.IncidentRecord, error)
	ListAll(ctx context.Context) ([]domain.IncidentRecord, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.IncidentRecord, error)
	Get(ctx context.Context, userID, id string) (domain.IncidentRecord, error)
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	// Renderers keyed by the ?format= value. "html" is the default format.
	Renderers map[string]report.Renderer
	Location  *time.Location
}

type Server struct {
	classifier Classifier
	incidents  IncidentReader
	renderers  map[string]report.Renderer
	loc        *time.Location
	engine     *gin.Engine
}

func New(classifier Classifier, incidents IncidentReader, opts Options) *Server {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		classifier: classifier,
		incidents:  incidents,
		renderers:  opts.Renderers,
		loc:        loc,
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api", JWTAuth([]byte(opts.JWTSecret)))
	api.GET("/criteria", s.criteria)
	api.GET("/quota", s.quota)
	api.POST("/incidents/classify", s.classify)
	api.GET("/incidents", s.listOwn)
	api.GET("/incidents/:id/report", s.report)

	admin := api.Group("/admin", RequireAdmin())
	admin.GET("/incidents", s.listAll)
	admin.GET("/stats", s.stats)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Println("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) criteria(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"axes":       domain.Axes(),
		"categories": domain.Categories(),
		"tiers":      domain.Tiers(),
	})
}

func (s *Server) quota(c *gin.Context) {
	reporter := reporterFrom(c)
	remaining, err := s.classifier.Remaining(c.Request.Context(), reporter.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": s.classifier.Limit(), "remaining": remaining})
}

func (s *Server) listOwn(c *gin.Context) {
	reporter := reporterFrom(c)
	records, err := s.incidents.ListByReporter(c.Request.Context(), reporter.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": newestFirst(records)})
}

func (s *Server) listAll(c *gin.Context) {
	records, err := s.incidents.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": newestFirst(records)})
}

func newestFirst(records []domain.IncidentRecord) []domain.IncidentRecord {
	out := make([]domain.IncidentRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	sortByDateDesc(out)
	return out
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrEmptyInput), errors.Is(err, domain.ErrMissingReporter):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrQuotaExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSubmissionInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrIncidentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrIncompleteRecord):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("server error path=%s err=%v", c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
