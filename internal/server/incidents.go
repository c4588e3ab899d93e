package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tokasu/internal/classify"
	"tokasu/internal/domain"
	"tokasu/internal/evidence"
	"tokasu/internal/incident"
	"tokasu/internal/report"
)

type skippedFileView struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type classifyResponse struct {
	Result         *domain.ClassificationResult `json:"result,omitempty"`
	Tier           *domain.Tier                 `json:"tier,omitempty"`
	Incident       *domain.IncidentRecord       `json:"incident,omitempty"`
	Saved          bool                         `json:"saved"`
	Fallback       bool                         `json:"fallback"`
	FallbackReason string                       `json:"fallbackReason,omitempty"`
	Remaining      int                          `json:"remaining"`
	State          classify.State               `json:"state"`
	SkippedFiles   []skippedFileView            `json:"skippedFiles,omitempty"`
	Error          string                       `json:"error,omitempty"`
}

// classify accepts a multipart form with description, category, repeated
// checked=axis:index fields and repeated files.
func (s *Server) classify(c *gin.Context) {
	ctx := c.Request.Context()
	reporter := reporterFrom(c)

	category := strings.TrimSpace(c.PostForm("category"))
	if category != "" && !domain.IsKnownCategory(category) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown category %q", category)})
		return
	}

	comp := evidence.NewComposer()
	comp.AppendText(c.PostForm("description"))
	for _, raw := range c.PostFormArray("checked") {
		ref, err := domain.ParseItemRef(raw)
		if err == nil {
			err = comp.Check(ref)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var files []evidence.File
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["files"] {
			files = append(files, evidence.File{
				Name: fh.Filename,
				Open: func() (io.ReadCloser, error) { return fh.Open() },
			})
		}
	}
	ingest, err := comp.IngestFiles(ctx, files)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
		return
	}

	resp := classifyResponse{}
	for _, sk := range ingest.Skipped {
		resp.SkippedFiles = append(resp.SkippedFiles, skippedFileView{Name: sk.Name, Error: sk.Err.Error()})
	}

	out, err := s.classifier.Submit(ctx, reporter, comp.Snapshot(category))
	resp.State = out.State()
	resp.Fallback = out.Fallback
	resp.FallbackReason = out.FallbackReason
	resp.Remaining = out.Remaining
	if out.State() == classify.StateDone || errors.Is(err, domain.ErrPersistenceFailed) {
		result := out.Result
		tier := result.Tier()
		resp.Result = &result
		resp.Tier = &tier
	}

	switch {
	case err == nil:
		rec := out.Record
		resp.Incident = &rec
		resp.Saved = true
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, domain.ErrPersistenceFailed):
		// The unsaved classification is still returned.
		resp.Error = err.Error()
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, domain.ErrQuotaExhausted):
		resp.Error = err.Error()
		c.JSON(http.StatusTooManyRequests, resp)
	default:
		writeError(c, err)
	}
}

func (s *Server) report(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "html"))
	renderer, ok := s.renderers[format]
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported report format %q", format)})
		return
	}

	ownerID := reporterFrom(c).ID
	if other := c.Query("reporter"); other != "" && c.GetString(ctxRole) == roleAdmin {
		ownerID = other
	}
	rec, err := s.incidents.Get(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := renderer.Render(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Printf("report served id=%s format=%s size=%d", rec.ID, format, len(data))

	contentType := "text/html; charset=utf-8"
	if renderer.Extension() == "pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename*=UTF-8''%s", url.PathEscape(report.Filename(rec, renderer.Extension()))))
	c.Data(http.StatusOK, contentType, data)
}

// stats summarizes incidents in [from, to). Both bounds are optional
// YYYY-MM-DD dates in the configured timezone.
func (s *Server) stats(c *gin.Context) {
	from, err := s.parseDay(c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := s.parseDay(c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var records []domain.IncidentRecord
	if from.IsZero() && to.IsZero() {
		records, err = s.incidents.ListAll(c.Request.Context())
	} else {
		if to.IsZero() {
			to = time.Now().Add(time.Second)
		}
		records, err = s.incidents.ListByDateRange(c.Request.Context(), from, to)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, incident.Summarize(records))
}

func (s *Server) parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", v)
	}
	return t, nil
}

func sortByDateDesc(records []domain.IncidentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})
}
