package builder

import (
	"context"
	"fmt"
	"strings"

	"resume-builder-go/internal/constants"
	"resume-builder-go/internal/generator"
	"resume-builder-go/internal/logger"
)

// ContentGenerator 状态机依赖的内容生成能力。生成失败在状态机内部
// 回退处理，绝不中断对话流程。
type ContentGenerator interface {
	GenerateBullet(ctx context.Context, jobTitle string, description string, style generator.Style) (string, error)
	GenerateSummary(ctx context.Context, input generator.SummaryInput) (string, error)
}

// Machine 简历构建器的状态机核心。除调用内容生成器外不产生副作用：
// 所有状态变更通过返回的DataDelta表达，由控制器合并与持久化。
type Machine struct {
	gen ContentGenerator

	// 单步重新生成次数上限，超出后强制采用当前保留的内容
	maxRegenAttempts int
}

// MachineOption 配置状态机
type MachineOption func(*Machine)

// WithMaxRegenAttempts 设置审阅环节的重新生成次数上限
func WithMaxRegenAttempts(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.maxRegenAttempts = n
		}
	}
}

// NewMachine 创建状态机
func NewMachine(gen ContentGenerator, options ...MachineOption) *Machine {
	m := &Machine{
		gen:              gen,
		maxRegenAttempts: constants.DefaultMaxRegenAttempts,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// WelcomePrompt 新会话的欢迎语，对应name步骤的提问
func (m *Machine) WelcomePrompt() StepResult {
	return StepResult{
		NextStep:  StepName,
		Response:  "Hi! I'm your resume assistant. Let's build your resume together, one question at a time. First things first: what's your full name?",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepName),
	}
}

// Process 执行一次状态转移。输入为当前步骤、用户输入和已收集数据，
// 输出转移结果；不修改传入的data。
func (m *Machine) Process(ctx context.Context, step Step, input string, data CollectedData) StepResult {
	input = strings.TrimSpace(input)
	if data == nil {
		data = CollectedData{}
	}

	switch step {
	case StepName:
		return m.handleName(input)
	case StepEmail:
		return m.handleEmail(input)
	case StepPhone:
		return m.handlePhone(input)
	case StepLocation:
		return m.handleLocation(input)
	case StepEducationSchool:
		return m.handleEducationSchool(input)
	case StepEducationDegree:
		return m.handleEducationDegree(input)
	case StepEducationYear:
		return m.handleEducationYear(input, data)
	case StepJobTitle:
		return m.handleJobTitle(input)
	case StepJobCompany:
		return m.handleJobCompany(input)
	case StepJobDates:
		return m.handleJobDates(input)
	case StepJobDescription:
		return m.handleJobDescription(ctx, input, data)
	case StepBulletReview:
		return m.handleBulletReview(ctx, input, data)
	case StepManualBullet:
		return m.handleManualBullet(input, data)
	case StepMoreBullets:
		return m.handleMoreBullets(input, data)
	case StepMoreExperience:
		return m.handleMoreExperience(input)
	case StepSkills:
		return m.handleSkills(input)
	case StepSummaryStyle:
		return m.handleSummaryStyle(ctx, input, data)
	case StepSummaryReview:
		return m.handleSummaryReview(ctx, input, data)
	case StepManualSummary:
		return m.handleManualSummary(input)
	case StepComplete:
		return StepResult{
			NextStep:  StepComplete,
			Response:  "Your resume is ready! Review the preview and complete the session whenever you're happy with it.",
			InputHint: InputHintText,
			Progress:  ProgressFor(StepComplete),
		}
	default:
		// 不应出现的步骤值：记录错误并原地停留，不做任何数据变更
		logger.Error().Str("step", string(step)).Msg("状态机收到无法识别的步骤")
		return StepResult{
			NextStep:  step,
			Response:  "Sorry, something went wrong on our side. Please try again.",
			InputHint: InputHintText,
			Progress:  ProgressFor(step),
		}
	}
}

func (m *Machine) handleName(input string) StepResult {
	greeting := "Nice to meet you! What's your email address?"
	if input != "" {
		first := strings.Fields(input)[0]
		greeting = fmt.Sprintf("Nice to meet you, %s! What's your email address?", first)
	}
	return StepResult{
		NextStep:  StepEmail,
		DataDelta: CollectedData{keyName: input},
		Response:  greeting,
		InputHint: InputHintText,
		Progress:  ProgressFor(StepEmail),
	}
}

func (m *Machine) handleEmail(input string) StepResult {
	return StepResult{
		NextStep:  StepPhone,
		DataDelta: CollectedData{keyEmail: input},
		Response:  `Got it. What's your phone number? (Type "skip" if you'd rather not share it.)`,
		InputHint: InputHintText,
		Progress:  ProgressFor(StepPhone),
	}
}

func (m *Machine) handlePhone(input string) StepResult {
	phone := input
	if strings.EqualFold(input, "skip") {
		phone = ""
	}
	return StepResult{
		NextStep:  StepLocation,
		DataDelta: CollectedData{keyPhone: phone},
		Response:  "Where are you located? (City and state or country)",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepLocation),
	}
}

func (m *Machine) handleLocation(input string) StepResult {
	return StepResult{
		NextStep:  StepEducationSchool,
		DataDelta: CollectedData{keyLocation: input},
		Response:  "Let's add your education. What school did you attend?",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepEducationSchool),
	}
}

func (m *Machine) handleEducationSchool(input string) StepResult {
	return StepResult{
		NextStep:  StepEducationDegree,
		DataDelta: CollectedData{keyCurrentEducation: CollectedData{keySchool: input}},
		Response:  "What degree or program did you study?",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepEducationDegree),
	}
}

func (m *Machine) handleEducationDegree(input string) StepResult {
	return StepResult{
		NextStep:  StepEducationYear,
		DataDelta: CollectedData{keyCurrentEducation: CollectedData{keyDegree: input}},
		Response:  "What year did you graduate (or expect to graduate)?",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepEducationYear),
	}
}

// handleEducationYear 固化临时教育记录：追加到education列表并清除持有者
func (m *Machine) handleEducationYear(input string, data CollectedData) StepResult {
	current := data.Map(keyCurrentEducation)
	entry := CollectedData{
		keySchool:         current.String(keySchool),
		keyDegree:         current.String(keyDegree),
		keyGraduationYear: input,
	}
	education := appendToList(data.List(keyEducation), map[string]interface{}(entry))

	return StepResult{
		NextStep: StepJobTitle,
		DataDelta: CollectedData{
			keyEducation:        education,
			keyCurrentEducation: nil,
		},
		Response:  "Now let's talk about your work experience. What was your job title?",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepJobTitle),
	}
}

func (m *Machine) handleJobTitle(input string) StepResult {
	return StepResult{
		NextStep:  StepJobCompany,
		DataDelta: CollectedData{keyCurrentJob: CollectedData{keyTitle: input}},
		Response:  "What company did you work for?",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepJobCompany),
	}
}

func (m *Machine) handleJobCompany(input string) StepResult {
	return StepResult{
		NextStep:  StepJobDates,
		DataDelta: CollectedData{keyCurrentJob: CollectedData{keyCompany: input}},
		Response:  "When did you work there? (e.g. 2019 - 2022)",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepJobDates),
	}
}

func (m *Machine) handleJobDates(input string) StepResult {
	return StepResult{
		NextStep:  StepJobDescription,
		DataDelta: CollectedData{keyCurrentJob: CollectedData{keyDates: input}},
		Response:  "Tell me about something you did in this role, and I'll turn it into a polished bullet point for your resume.",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepJobDescription),
	}
}

// handleJobDescription 调用生成器产出一条亮点，临时保留待用户审阅。
// 生成失败时直接以用户原始描述作为保留内容，流程照常推进。
func (m *Machine) handleJobDescription(ctx context.Context, input string, data CollectedData) StepResult {
	currentJob := data.Map(keyCurrentJob)
	jobTitle := currentJob.String(keyTitle)

	bullet, err := m.gen.GenerateBullet(ctx, jobTitle, input, generator.StyleProfessional)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("生成简历亮点失败，回退为原始描述")
		bullet = input
	}

	return StepResult{
		NextStep: StepBulletReview,
		DataDelta: CollectedData{
			keyCurrentJob: CollectedData{
				keyDescription:   input,
				keyPendingBullet: bullet,
			},
			keyBulletAttempts: 0,
		},
		Response:  reviewBulletPrompt(bullet),
		InputHint: InputHintChoice,
		Options:   reviewOptions(),
		Progress:  ProgressFor(StepBulletReview),
	}
}

// handleBulletReview 五路决策：采用、手写或按风格重新生成。
// 重新生成有次数上限，达到上限后强制采用当前保留的亮点。
func (m *Machine) handleBulletReview(ctx context.Context, input string, data CollectedData) StepResult {
	currentJob := data.Map(keyCurrentJob)
	pending := currentJob.String(keyPendingBullet)
	decision := ParseReviewDecision(input)

	switch decision.Kind {
	case DecisionAccept:
		return m.acceptBullet(data, pending, "")
	case DecisionManual:
		return StepResult{
			NextStep:  StepManualBullet,
			Response:  "No problem. Write the bullet point exactly as you'd like it to appear.",
			InputHint: InputHintText,
			Progress:  ProgressFor(StepManualBullet),
		}
	default:
		attempts := data.Int(keyBulletAttempts) + 1
		if attempts > m.maxRegenAttempts {
			logger.Ctx(ctx).Warn().Int("attempts", attempts).Msg("达到亮点重新生成次数上限，强制采用")
			return m.acceptBullet(data, pending, "We've tried quite a few versions, so I've kept this one. ")
		}

		regenerated, err := m.gen.GenerateBullet(ctx, currentJob.String(keyTitle), currentJob.String(keyDescription), decision.Style)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("重新生成简历亮点失败，保留当前版本")
			regenerated = pending
		}

		return StepResult{
			NextStep: StepBulletReview,
			DataDelta: CollectedData{
				keyCurrentJob:     CollectedData{keyPendingBullet: regenerated},
				keyBulletAttempts: attempts,
			},
			Response:  reviewBulletPrompt(regenerated),
			InputHint: InputHintChoice,
			Options:   reviewOptions(),
			Progress:  ProgressFor(StepBulletReview),
		}
	}
}

// acceptBullet 将保留的亮点追加到当前工作的亮点列表
func (m *Machine) acceptBullet(data CollectedData, bullet string, prefix string) StepResult {
	currentJob := data.Map(keyCurrentJob)
	bullets := appendToList(currentJob.List(keyBullets), bullet)

	return StepResult{
		NextStep: StepMoreBullets,
		DataDelta: CollectedData{
			keyCurrentJob: CollectedData{
				keyBullets:       bullets,
				keyPendingBullet: nil,
			},
			keyBulletAttempts: nil,
		},
		Response:  prefix + "Added! Want to add another accomplishment for this job?",
		InputHint: InputHintChoice,
		Options:   yesNoOptions(),
		Progress:  ProgressFor(StepMoreBullets),
	}
}

// handleManualBullet 用户手写的亮点原样追加
func (m *Machine) handleManualBullet(input string, data CollectedData) StepResult {
	currentJob := data.Map(keyCurrentJob)
	bullets := appendToList(currentJob.List(keyBullets), input)

	return StepResult{
		NextStep: StepMoreBullets,
		DataDelta: CollectedData{
			keyCurrentJob: CollectedData{
				keyBullets:       bullets,
				keyPendingBullet: nil,
			},
			keyBulletAttempts: nil,
		},
		Response:  "Added! Want to add another accomplishment for this job?",
		InputHint: InputHintChoice,
		Options:   yesNoOptions(),
		Progress:  ProgressFor(StepMoreBullets),
	}
}

// handleMoreBullets 是→回到job_description继续补充；否→固化当前工作记录
func (m *Machine) handleMoreBullets(input string, data CollectedData) StepResult {
	if isAffirmative(input) {
		return StepResult{
			NextStep:  StepJobDescription,
			Response:  "Tell me about another accomplishment in this role.",
			InputHint: InputHintText,
			Progress:  ProgressFor(StepMoreBullets),
		}
	}

	currentJob := data.Map(keyCurrentJob)
	entry := CollectedData{
		keyTitle:   currentJob.String(keyTitle),
		keyCompany: currentJob.String(keyCompany),
		keyDates:   currentJob.String(keyDates),
		keyBullets: currentJob.List(keyBullets),
	}
	if entry[keyBullets] == nil {
		entry[keyBullets] = []interface{}{}
	}
	experience := appendToList(data.List(keyExperience), map[string]interface{}(entry))

	return StepResult{
		NextStep: StepMoreExperience,
		DataDelta: CollectedData{
			keyExperience: experience,
			keyCurrentJob: nil,
		},
		Response:  "This job is done. Want to add another job?",
		InputHint: InputHintChoice,
		Options:   yesNoOptions(),
		Progress:  ProgressFor(StepMoreExperience),
	}
}

func (m *Machine) handleMoreExperience(input string) StepResult {
	if isAffirmative(input) {
		return StepResult{
			NextStep:  StepJobTitle,
			Response:  "What was your job title at this job?",
			InputHint: InputHintText,
			Progress:  ProgressFor(StepMoreExperience),
		}
	}
	return StepResult{
		NextStep:  StepSkills,
		Response:  "Almost done! List your skills, separated by commas.",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepSkills),
	}
}

// handleSkills 逗号分割、去除空白、丢弃空项
func (m *Machine) handleSkills(input string) StepResult {
	parts := strings.Split(input, ",")
	skills := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			skills = append(skills, trimmed)
		}
	}

	return StepResult{
		NextStep:  StepSummaryStyle,
		DataDelta: CollectedData{keySkills: skills},
		Response:  "Last step: the professional summary at the top of your resume. Pick a style and I'll draft it for you, or write your own.",
		InputHint: InputHintChoice,
		Options:   summaryStyleOptions(),
		Progress:  ProgressFor(StepSummaryStyle),
	}
}

// handleSummaryStyle 按所选风格生成候选总结；manual选项转入手写。
// 生成失败时回退为基于技能的模板总结。
func (m *Machine) handleSummaryStyle(ctx context.Context, input string, data CollectedData) StepResult {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "manual") || strings.Contains(lower, "own") {
		return StepResult{
			NextStep:  StepManualSummary,
			Response:  "Write your summary exactly as you'd like it to appear.",
			InputHint: InputHintText,
			Progress:  ProgressFor(StepManualSummary),
		}
	}

	summaryInput := buildSummaryInput(data, ParseStyle(input))
	summary, err := m.gen.GenerateSummary(ctx, summaryInput)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("生成个人总结失败，回退为模板总结")
		summary = generator.FallbackSummary(summaryInput)
	}

	return StepResult{
		NextStep: StepSummaryReview,
		DataDelta: CollectedData{
			keyCurrentSummary:  summary,
			keySummaryAttempts: 0,
		},
		Response:  reviewSummaryPrompt(summary),
		InputHint: InputHintChoice,
		Options:   reviewOptions(),
		Progress:  ProgressFor(StepSummaryReview),
	}
}

// handleSummaryReview 与bullet_review相同的五路决策模式
func (m *Machine) handleSummaryReview(ctx context.Context, input string, data CollectedData) StepResult {
	pending := data.String(keyCurrentSummary)
	decision := ParseReviewDecision(input)

	switch decision.Kind {
	case DecisionAccept:
		return m.acceptSummary(pending, "")
	case DecisionManual:
		return StepResult{
			NextStep:  StepManualSummary,
			Response:  "Write your summary exactly as you'd like it to appear.",
			InputHint: InputHintText,
			Progress:  ProgressFor(StepManualSummary),
		}
	default:
		attempts := data.Int(keySummaryAttempts) + 1
		if attempts > m.maxRegenAttempts {
			logger.Ctx(ctx).Warn().Int("attempts", attempts).Msg("达到总结重新生成次数上限，强制采用")
			return m.acceptSummary(pending, "We've tried quite a few versions, so I've kept this one. ")
		}

		summaryInput := buildSummaryInput(data, decision.Style)
		regenerated, err := m.gen.GenerateSummary(ctx, summaryInput)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("重新生成个人总结失败，保留当前版本")
			regenerated = pending
		}

		return StepResult{
			NextStep: StepSummaryReview,
			DataDelta: CollectedData{
				keyCurrentSummary:  regenerated,
				keySummaryAttempts: attempts,
			},
			Response:  reviewSummaryPrompt(regenerated),
			InputHint: InputHintChoice,
			Options:   reviewOptions(),
			Progress:  ProgressFor(StepSummaryReview),
		}
	}
}

// acceptSummary 将保留的总结提交为最终summary
func (m *Machine) acceptSummary(summary string, prefix string) StepResult {
	return StepResult{
		NextStep: StepComplete,
		DataDelta: CollectedData{
			keySummary:         summary,
			keyCurrentSummary:  nil,
			keySummaryAttempts: nil,
		},
		Response:  prefix + "That's everything! Your resume is ready. Complete the session to save it.",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepComplete),
	}
}

func (m *Machine) handleManualSummary(input string) StepResult {
	return StepResult{
		NextStep: StepComplete,
		DataDelta: CollectedData{
			keySummary:         input,
			keyCurrentSummary:  nil,
			keySummaryAttempts: nil,
		},
		Response:  "That's everything! Your resume is ready. Complete the session to save it.",
		InputHint: InputHintText,
		Progress:  ProgressFor(StepComplete),
	}
}

// buildSummaryInput 从已收集的数据组装总结生成的上下文
func buildSummaryInput(data CollectedData, style generator.Style) generator.SummaryInput {
	input := generator.SummaryInput{
		Name:   data.String(keyName),
		Skills: data.StringList(keySkills),
		Style:  style,
	}

	for _, item := range data.List(keyExperience) {
		if job, ok := asMap(item); ok {
			input.Experiences = append(input.Experiences, generator.ExperienceBrief{
				Title:   job.String(keyTitle),
				Company: job.String(keyCompany),
			})
		}
	}
	for _, item := range data.List(keyEducation) {
		if edu, ok := asMap(item); ok {
			input.Education = append(input.Education, generator.EducationBrief{
				School: edu.String(keySchool),
				Degree: edu.String(keyDegree),
			})
		}
	}

	return input
}

func reviewBulletPrompt(bullet string) string {
	return fmt.Sprintf("Here's what I came up with:\n\n\"%s\"\n\nUse it as is, write your own, or ask for a different style.", bullet)
}

func reviewSummaryPrompt(summary string) string {
	return fmt.Sprintf("Here's your summary:\n\n\"%s\"\n\nUse it as is, write your own, or ask for a different style.", summary)
}

func reviewOptions() []ChoiceOption {
	return []ChoiceOption{
		{Value: "use", Label: "Use it"},
		{Value: "own", Label: "Write my own"},
		{Value: "detailed", Label: "More detailed"},
		{Value: "concise", Label: "More concise"},
		{Value: "impressive", Label: "More impressive"},
	}
}

func summaryStyleOptions() []ChoiceOption {
	return []ChoiceOption{
		{Value: "professional", Label: "Professional"},
		{Value: "detailed", Label: "Detailed"},
		{Value: "concise", Label: "Concise"},
		{Value: "impressive", Label: "Impressive"},
		{Value: "manual", Label: "Write my own"},
	}
}

func yesNoOptions() []ChoiceOption {
	return []ChoiceOption{
		{Value: "yes", Label: "Yes"},
		{Value: "no", Label: "No"},
	}
}
