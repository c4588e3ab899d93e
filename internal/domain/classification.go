package domain

import "time"

// Unclassified is stored as the category when the reporter did not pick one.
const Unclassified = "未分類"

// Result sources.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

type ClassificationRequest struct {
	Description  string
	Category     string
	CheckedItems []string
}

// ClassificationResult is the validated structured output of either the
// external classifier or the local fallback.
type ClassificationResult struct {
	Severity       int    `json:"severity"`
	IsHarassment   bool   `json:"isKasuhara"`
	Summary        string `json:"summary"`
	Analysis       string `json:"analysis"`
	Recommendation string `json:"recommendation"`
	LegalRisk      string `json:"legalRisk"`
	ResponseFlow   string `json:"responseFlow"`
	Source         string `json:"source"`
}

func (r ClassificationResult) Tier() Tier {
	return Classify(r.Severity)
}

type FileKind string

const (
	FileKindText  FileKind = "text"
	FileKindAudio FileKind = "audio"
)

type FileMeta struct {
	Name string   `json:"name"`
	Kind FileKind `json:"type"`
	Size int64    `json:"size"`
}

// IncidentRecord is immutable once appended to the incident store.
type IncidentRecord struct {
	ID              string               `json:"id"`
	Date            time.Time            `json:"date"`
	ReporterID      string               `json:"reporterId"`
	ReporterName    string               `json:"reporter"`
	Category        string               `json:"type"`
	Description     string               `json:"description"`
	CheckedCriteria []string             `json:"checkedCriteria"`
	AttachedFiles   []FileMeta           `json:"attachedFiles"`
	Severity        int                  `json:"severity"`
	IsClassified    bool                 `json:"aiJudgment"`
	Result          ClassificationResult `json:"aiResult"`
}

// Complete reports whether the record carries everything a persisted
// incident must have.
func (r IncidentRecord) Complete() bool {
	if r.ID == "" || r.ReporterID == "" || r.Date.IsZero() || !r.IsClassified {
		return false
	}
	if r.Severity < 0 || r.Severity > 100 || r.Severity != r.Result.Severity {
		return false
	}
	return r.Result.Source != ""
}

type Reporter struct {
	ID   string
	Name string
}

type IncidentStats struct {
	Total          int               `json:"total"`
	Harassment     int               `json:"harassment"`
	Fallback       int               `json:"fallback"`
	MeanSeverity   float64           `json:"meanSeverity"`
	MedianSeverity float64           `json:"medianSeverity"`
	P90Severity    float64           `json:"p90Severity"`
	HighOrAbove    int               `json:"highOrAbove"`
	ByTier         map[TierLevel]int `json:"byTier"`
	ByCategory     map[string]int    `json:"byCategory"`
}
