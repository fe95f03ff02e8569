package builder

import (
	"strings"

	"resume-builder-go/internal/generator"
)

// DecisionKind 审阅环节的决策类别
type DecisionKind int

const (
	// DecisionAccept 采用当前保留的内容
	DecisionAccept DecisionKind = iota
	// DecisionManual 用户选择自己手写
	DecisionManual
	// DecisionRegenerate 按指定风格重新生成
	DecisionRegenerate
)

// ReviewDecision 封闭的审阅决策。模糊匹配只发生在ParseReviewDecision中，
// 状态机核心对该类型做穷尽分支。
type ReviewDecision struct {
	Kind  DecisionKind
	Style generator.Style
}

// ParseReviewDecision 将用户的自由文本映射为审阅决策。
// 匹配是大小写不敏感的子串匹配，以兼容客户端传来的自由文本：
// accept/use → 采用；manual/own → 手写；detailed → 详细风格；
// concise/shorter → 简洁风格；impressive/fancy → 华丽风格；
// 其他任何输入 → 按专业风格重新生成。
func ParseReviewDecision(input string) ReviewDecision {
	lower := strings.ToLower(strings.TrimSpace(input))

	switch {
	case strings.Contains(lower, "accept"), strings.Contains(lower, "use"):
		return ReviewDecision{Kind: DecisionAccept}
	case strings.Contains(lower, "manual"), strings.Contains(lower, "own"):
		return ReviewDecision{Kind: DecisionManual}
	default:
		return ReviewDecision{Kind: DecisionRegenerate, Style: ParseStyle(lower)}
	}
}

// ParseStyle 将自由文本映射为生成风格，无匹配关键字时回退为专业风格
func ParseStyle(input string) generator.Style {
	lower := strings.ToLower(strings.TrimSpace(input))

	switch {
	case strings.Contains(lower, "detailed"):
		return generator.StyleDetailed
	case strings.Contains(lower, "concise"), strings.Contains(lower, "shorter"):
		return generator.StyleConcise
	case strings.Contains(lower, "impressive"), strings.Contains(lower, "fancy"):
		return generator.StyleFancy
	default:
		return generator.StyleProfessional
	}
}

// isAffirmative 判断用户输入是否表示"是"。仅明确的肯定回答算作是，
// 其他任何输入都按"否"处理以推进流程。
func isAffirmative(input string) bool {
	lower := strings.ToLower(strings.TrimSpace(input))
	return lower == "yes" || lower == "y" || lower == "yeah" || lower == "yep" || lower == "sure"
}
