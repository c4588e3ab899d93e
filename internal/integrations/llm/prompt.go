package llm

import (
	"strings"
)

const promptPreamble = "あなたはカスタマーハラスメント判定の専門AIです。東京都カスタマー・ハラスメント防止条例に基づき判定してください。"

const promptSchema = `以下のJSON形式のみで回答:
{"severity":0-100,"isKasuhara":true/false,"summary":"50字以内","analysis":"200字以内","recommendation":"150字以内","legalRisk":"100字以内","responseFlow":"100字以内"}`

// BuildPrompt renders the single-turn classification prompt.
func BuildPrompt(req ClassificationRequest) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n【状況説明】\n")
	b.WriteString(req.Description)
	b.WriteString("\n\n")
	if c := strings.TrimSpace(req.Category); c != "" {
		b.WriteString("【行為類型】")
		b.WriteString(c)
		b.WriteString("\n")
	}
	if len(req.CheckedItems) > 0 {
		b.WriteString("【チェック済み基準】\n")
		for _, item := range req.CheckedItems {
			b.WriteString("・")
			b.WriteString(item)
			b.WriteString("\n")
		}
	}
	b.WriteString(promptSchema)
	return b.String()
}
