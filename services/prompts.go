package services

import (
	"fmt"
	"strings"

	"defect-dashboard/models"
)

// PromptInput carries what both prompt variants embed about one part.
type PromptInput struct {
	PartNumber   string
	PartName     string
	Customer     string
	MajorDefects string

	TrendSummary string
	KindSummary  string

	TodayQuantity  int
	TodayDefects   int
	TodayBreakdown string
}

// TodayRatePercent is the day's defect rate in percent.
func (in PromptInput) TodayRatePercent() float64 {
	return rate(in.TodayDefects, in.TodayQuantity) * 100
}

const promptOutputRules = `以下の形式で **必ず** 出力してください（形式厳守）：

【評価】昨日の品質状態の一言評価（1行）
【判断】過去傾向と照らして「偶発か再発兆候か」の判断（1行）
【対策】製造がすぐ実施すべき対策（1〜2行）

【出力ルール】
- 必ず【評価】【判断】【対策】のラベルから始めること
- 各項目は1〜2行で完結すること
- 見出し・タイトル・品番の繰り返しは禁止
- **や##などのMarkdown装飾は禁止
- 「製造部各位」「品質報告」などの挨拶文は禁止
- 合計3〜6行以内に収めること`

// BuildWorstPrompt builds the prompt for a registered worst part, naming
// the term the registry belongs to and its known defect modes.
func BuildWorstPrompt(term models.TermInfo, in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "以下は、当社（精密加工部品メーカー）における「%d期ワースト品番」の\n", term.Number)
	fmt.Fprintf(&b, "過去3年データと昨日の不具合データです。（対象期: %s）\n\n", TermLabel(term))
	writePromptBody(&b, in, true)
	return b.String()
}

// BuildGeneralPrompt builds the prompt for any other part.
func BuildGeneralPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("以下は、当社（精密加工部品メーカー）における対象品番の\n")
	b.WriteString("過去3年データと昨日の不具合データです。\n\n")
	writePromptBody(&b, in, false)
	return b.String()
}

func writePromptBody(b *strings.Builder, in PromptInput, withMajor bool) {
	breakdown := in.TodayBreakdown
	if breakdown == "" {
		breakdown = noBreakdown
	}

	b.WriteString("目的：製造がすぐ行動できる **短く要点だけのコメント** を作ること。\n")
	b.WriteString("必ず **3〜6行以内** にまとめること。長文は禁止。\n\n")
	b.WriteString("---\n【対象】\n")
	fmt.Fprintf(b, "品番: %s\n品名: %s\n客先: %s\n", in.PartNumber, in.PartName, in.Customer)
	if withMajor {
		fmt.Fprintf(b, "主な不具合: %s\n", in.MajorDefects)
	}
	fmt.Fprintf(b, "\n【過去3年の傾向】\n%s\n", in.TrendSummary)
	fmt.Fprintf(b, "\n【不具合区分サマリ】\n%s\n", in.KindSummary)
	b.WriteString("\n【昨日の不具合】\n")
	fmt.Fprintf(b, "検査数=%d, 不良数=%d, 不良率=%.2f%%\n", in.TodayQuantity, in.TodayDefects, in.TodayRatePercent())
	fmt.Fprintf(b, "昨日の不具合: %s\n---\n\n", breakdown)
	b.WriteString(promptOutputRules)
}
