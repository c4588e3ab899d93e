package llm

import "tokasu/internal/domain"

const (
	fallbackPointsPerItem = 15
	fallbackHarassmentMin = 40
	fallbackOrgResponse   = 60
	fallbackLabel         = "【簡易判定】"
)

// Fallback estimates severity from the number of checked rubric items when
// the classifier is unreachable or its output is unusable. The description
// is deliberately not consulted.
func Fallback(checkedCount int) ClassificationResult {
	if checkedCount < 0 {
		checkedCount = 0
	}
	severity := checkedCount * fallbackPointsPerItem
	if severity > 100 {
		severity = 100
	}
	harassment := severity >= fallbackHarassmentMin

	summary := "通常クレーム範囲"
	if harassment {
		summary = "カスハラ可能性あり"
	}
	recommendation := "通常対応。"
	if severity >= fallbackOrgResponse {
		recommendation = "組織対応に移行。"
	}

	return ClassificationResult{
		Severity:       severity,
		IsHarassment:   harassment,
		Summary:        fallbackLabel + summary,
		Analysis:       fallbackLabel + "AI接続不可。チェック項目数による簡易判定です。",
		Recommendation: fallbackLabel + recommendation,
		LegalRisk:      fallbackLabel + "法的リスクの評価にはAI判定が必要です。",
		ResponseFlow:   fallbackLabel + "一次対応→上位者報告→組織対応",
		Source:         domain.SourceFallback,
	}
}
