package builder

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"resume-builder-go/internal/generator"
	"resume-builder-go/internal/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator 测试用内容生成器，按脚本依次返回预设内容
type scriptedGenerator struct {
	bullets    []string
	bulletErr  error
	summaries  []string
	summaryErr error

	bulletCalls  int
	summaryCalls int
	lastStyle    generator.Style
}

func (s *scriptedGenerator) GenerateBullet(ctx context.Context, jobTitle, description string, style generator.Style) (string, error) {
	s.bulletCalls++
	s.lastStyle = style
	if s.bulletErr != nil {
		return "", s.bulletErr
	}
	if len(s.bullets) == 0 {
		return "Scripted bullet", nil
	}
	b := s.bullets[0]
	if len(s.bullets) > 1 {
		s.bullets = s.bullets[1:]
	}
	return b, nil
}

func (s *scriptedGenerator) GenerateSummary(ctx context.Context, input generator.SummaryInput) (string, error) {
	s.summaryCalls++
	s.lastStyle = input.Style
	if s.summaryErr != nil {
		return "", s.summaryErr
	}
	if len(s.summaries) == 0 {
		return "Scripted summary", nil
	}
	sum := s.summaries[0]
	if len(s.summaries) > 1 {
		s.summaries = s.summaries[1:]
	}
	return sum, nil
}

// advance 模拟控制器的单步推进：执行转移并把delta合并进data
func advance(t *testing.T, m *Machine, step Step, input string, data CollectedData) (StepResult, CollectedData) {
	t.Helper()
	result := m.Process(context.Background(), step, input, data)
	return result, DeepMerge(data, result.DataDelta)
}

func TestWelcomePrompt(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	welcome := m.WelcomePrompt()

	assert.Equal(t, StepName, welcome.NextStep)
	assert.Contains(t, welcome.Response, "full name")
	assert.Equal(t, InputHintText, welcome.InputHint)
	assert.Equal(t, ProgressFor(StepName), welcome.Progress)
}

func TestContactSteps(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{}

	result, data := advance(t, m, StepName, "Jane Doe", data)
	assert.Equal(t, StepEmail, result.NextStep)
	assert.Contains(t, result.Response, "Jane", "问候应使用名字的第一个词")
	assert.Equal(t, "Jane Doe", data.String("name"))

	result, data = advance(t, m, StepEmail, "jane@example.com", data)
	assert.Equal(t, StepPhone, result.NextStep)
	assert.Equal(t, "jane@example.com", data.String("email"))

	result, data = advance(t, m, StepPhone, "555-0100", data)
	assert.Equal(t, StepLocation, result.NextStep)
	assert.Equal(t, "555-0100", data.String("phone"))

	result, data = advance(t, m, StepLocation, "Austin, TX", data)
	assert.Equal(t, StepEducationSchool, result.NextStep)
	assert.Equal(t, "Austin, TX", data.String("location"))
}

func TestPhoneSkipSentinel(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})

	for _, input := range []string{"skip", "SKIP", "Skip"} {
		result, data := advance(t, m, StepPhone, input, CollectedData{})
		assert.Equal(t, StepLocation, result.NextStep)
		phone, present := data["phone"]
		assert.True(t, present, "跳过时phone键仍应写入")
		assert.Equal(t, "", phone, "跳过时phone应为空串")
	}
}

func TestEducationFlow(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{}

	_, data = advance(t, m, StepEducationSchool, "State University", data)
	assert.Equal(t, "State University", data.Map("currentEducation").String("school"))

	_, data = advance(t, m, StepEducationDegree, "BS Computer Science", data)
	assert.Equal(t, "BS Computer Science", data.Map("currentEducation").String("degree"))

	result, data := advance(t, m, StepEducationYear, "2020", data)
	assert.Equal(t, StepJobTitle, result.NextStep)

	education := data.List("education")
	require.Len(t, education, 1, "毕业年份确认后教育记录应固化")
	entry, ok := asMap(education[0])
	require.True(t, ok)
	assert.Equal(t, "State University", entry.String("school"))
	assert.Equal(t, "BS Computer Science", entry.String("degree"))
	assert.Equal(t, "2020", entry.String("graduationYear"))

	_, holderPresent := data["currentEducation"]
	assert.False(t, holderPresent, "固化后临时持有记录应被清除")
}

func TestJobDescriptionGeneratesBullet(t *testing.T) {
	gen := &scriptedGenerator{bullets: []string{"Led migration of legacy services to Go, cutting latency by 40%"}}
	m := NewMachine(gen)
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer"}}

	result, data := advance(t, m, StepJobDescription, "moved old services to go and made them faster", data)

	assert.Equal(t, StepBulletReview, result.NextStep)
	assert.Equal(t, InputHintChoice, result.InputHint)
	assert.NotEmpty(t, result.Options, "审阅步骤应提供选项")
	assert.Equal(t, generator.StyleProfessional, gen.lastStyle, "初次生成应使用专业风格")

	job := data.Map("currentJob")
	assert.Equal(t, "moved old services to go and made them faster", job.String("description"))
	assert.Contains(t, job.String("pendingBullet"), "Led migration")
	assert.Equal(t, 0, data.Int("bulletAttempts"))
}

func TestJobDescriptionFallsBackOnGenerationFailure(t *testing.T) {
	gen := &scriptedGenerator{bulletErr: errors.New("model unavailable")}
	m := NewMachine(gen)
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer"}}

	result, data := advance(t, m, StepJobDescription, "built the billing system", data)

	assert.Equal(t, StepBulletReview, result.NextStep, "生成失败不应中断流程")
	assert.Equal(t, "built the billing system", data.Map("currentJob").String("pendingBullet"), "失败时应以原始描述作为保留内容")
}

func TestGenerationFailureEmitsWarning(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = zerolog.New(&buf)
	t.Cleanup(func() { logger.Logger = prev })

	gen := &scriptedGenerator{bulletErr: errors.New("model unavailable")}
	m := NewMachine(gen)
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer"}}

	result, _ := advance(t, m, StepJobDescription, "built the billing system", data)

	require.Equal(t, StepBulletReview, result.NextStep)
	assert.Contains(t, buf.String(), "生成简历亮点失败", "降级路径应产生告警日志而不是被静默丢弃")
	assert.Contains(t, buf.String(), "model unavailable")
}

func TestBulletReviewRegenerateThenAccept(t *testing.T) {
	gen := &scriptedGenerator{bullets: []string{"First version", "Second version"}}
	m := NewMachine(gen)
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer"}}

	_, data = advance(t, m, StepJobDescription, "did things", data)
	require.Equal(t, "First version", data.Map("currentJob").String("pendingBullet"))

	result, data := advance(t, m, StepBulletReview, "more detailed", data)
	assert.Equal(t, StepBulletReview, result.NextStep, "重新生成后应回到审阅步骤")
	assert.Equal(t, generator.StyleDetailed, gen.lastStyle)
	assert.Equal(t, "Second version", data.Map("currentJob").String("pendingBullet"))
	assert.Equal(t, 1, data.Int("bulletAttempts"))

	result, data = advance(t, m, StepBulletReview, "use it", data)
	assert.Equal(t, StepMoreBullets, result.NextStep)

	bullets := data.Map("currentJob").List("bullets")
	require.Len(t, bullets, 1)
	assert.Equal(t, "Second version", bullets[0], "采用的应是重新生成后的版本")

	_, pendingPresent := data.Map("currentJob")["pendingBullet"]
	assert.False(t, pendingPresent, "采用后保留内容应被清除")
	_, attemptsPresent := data["bulletAttempts"]
	assert.False(t, attemptsPresent, "采用后计数器应被清除")
}

func TestBulletRegenCapForcesAccept(t *testing.T) {
	gen := &scriptedGenerator{bullets: []string{"Only version"}}
	m := NewMachine(gen, WithMaxRegenAttempts(2))
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer"}}

	_, data = advance(t, m, StepJobDescription, "did things", data)

	var result StepResult
	result, data = advance(t, m, StepBulletReview, "regenerate", data)
	require.Equal(t, StepBulletReview, result.NextStep)
	result, data = advance(t, m, StepBulletReview, "regenerate", data)
	require.Equal(t, StepBulletReview, result.NextStep)

	// 第三次超出上限，强制采用
	result, data = advance(t, m, StepBulletReview, "regenerate", data)
	assert.Equal(t, StepMoreBullets, result.NextStep, "超出上限应强制采用并推进")
	assert.Contains(t, result.Response, "tried quite a few versions", "强制采用时应有说明前缀")
	require.Len(t, data.Map("currentJob").List("bullets"), 1)
}

func TestManualBullet(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer", "pendingBullet": "draft"}}

	result, data := advance(t, m, StepBulletReview, "I'll write my own", data)
	assert.Equal(t, StepManualBullet, result.NextStep)

	result, data = advance(t, m, StepManualBullet, "Exactly my words.", data)
	assert.Equal(t, StepMoreBullets, result.NextStep)

	bullets := data.Map("currentJob").List("bullets")
	require.Len(t, bullets, 1)
	assert.Equal(t, "Exactly my words.", bullets[0], "手写内容应原样保留")
}

func TestMoreBulletsLoopAndFinalize(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{
		"currentJob": CollectedData{
			"title":   "Engineer",
			"company": "Acme",
			"dates":   "2019 - 2022",
			"bullets": []interface{}{"Did a thing"},
		},
	}

	// 肯定回答回到描述步骤继续补充
	result, data := advance(t, m, StepMoreBullets, "yes", data)
	assert.Equal(t, StepJobDescription, result.NextStep)
	_, jobPresent := data["currentJob"]
	assert.True(t, jobPresent, "继续补充时工作记录不应固化")

	// 否定回答固化整条工作记录
	result, data = advance(t, m, StepMoreBullets, "no", data)
	assert.Equal(t, StepMoreExperience, result.NextStep)

	experience := data.List("experience")
	require.Len(t, experience, 1)
	entry, ok := asMap(experience[0])
	require.True(t, ok)
	assert.Equal(t, "Engineer", entry.String("title"))
	assert.Equal(t, "Acme", entry.String("company"))
	assert.Equal(t, "2019 - 2022", entry.String("dates"))
	require.Len(t, entry.List("bullets"), 1)

	_, jobPresent = data["currentJob"]
	assert.False(t, jobPresent, "固化后临时工作记录应被清除")
}

func TestMoreBulletsFinalizesWithEmptyBulletList(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{"currentJob": CollectedData{"title": "Engineer"}}

	_, data = advance(t, m, StepMoreBullets, "no", data)

	experience := data.List("experience")
	require.Len(t, experience, 1)
	entry, ok := asMap(experience[0])
	require.True(t, ok)
	assert.NotNil(t, entry["bullets"], "无亮点时bullets应为空列表而非nil")
	assert.Empty(t, entry.List("bullets"))
}

func TestMoreExperienceBranches(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})

	result, _ := advance(t, m, StepMoreExperience, "yes", CollectedData{})
	assert.Equal(t, StepJobTitle, result.NextStep)

	result, _ = advance(t, m, StepMoreExperience, "no thanks", CollectedData{})
	assert.Equal(t, StepSkills, result.NextStep)
}

func TestSkillsParsing(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})

	_, data := advance(t, m, StepSkills, " Go ,  Python,,SQL , ", CollectedData{})

	skills := data.StringList("skills")
	assert.Equal(t, []string{"Go", "Python", "SQL"}, skills, "技能应去除空白并丢弃空项")
}

func TestSummaryStyleGeneratesAndReviews(t *testing.T) {
	gen := &scriptedGenerator{summaries: []string{"A crafted summary."}}
	m := NewMachine(gen)
	data := CollectedData{
		"name":   "Jane Doe",
		"skills": []interface{}{"Go", "SQL"},
		"experience": []interface{}{
			map[string]interface{}{"title": "Engineer", "company": "Acme"},
		},
	}

	result, data := advance(t, m, StepSummaryStyle, "impressive", data)

	assert.Equal(t, StepSummaryReview, result.NextStep)
	assert.Equal(t, generator.StyleFancy, gen.lastStyle)
	assert.Equal(t, "A crafted summary.", data.String("currentSummary"))
	assert.Equal(t, 0, data.Int("summaryAttempts"))
}

func TestSummaryStyleFallsBackOnFailure(t *testing.T) {
	gen := &scriptedGenerator{summaryErr: errors.New("model unavailable")}
	m := NewMachine(gen)
	data := CollectedData{
		"skills": []interface{}{"Go", "SQL", "Docker", "K8s"},
		"experience": []interface{}{
			map[string]interface{}{"title": "Engineer", "company": "Acme"},
		},
	}

	result, data := advance(t, m, StepSummaryStyle, "professional", data)

	assert.Equal(t, StepSummaryReview, result.NextStep, "生成失败不应中断流程")
	summary := data.String("currentSummary")
	assert.Contains(t, summary, "Experienced engineer", "回退总结应引用第一份工作的职位")
	assert.Contains(t, summary, "Go, SQL, Docker", "回退总结最多引用前3项技能")
	assert.NotContains(t, summary, "K8s")
}

func TestSummaryReviewAcceptCommits(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{"currentSummary": "Pending summary", "summaryAttempts": 1}

	result, data := advance(t, m, StepSummaryReview, "use it", data)

	assert.Equal(t, StepComplete, result.NextStep)
	assert.Equal(t, ProgressFor(StepComplete), result.Progress)
	assert.Equal(t, "Pending summary", data.String("summary"))

	_, currentPresent := data["currentSummary"]
	assert.False(t, currentPresent, "提交后临时总结应被清除")
	_, attemptsPresent := data["summaryAttempts"]
	assert.False(t, attemptsPresent, "提交后计数器应被清除")
}

func TestSummaryRegenCapForcesAccept(t *testing.T) {
	gen := &scriptedGenerator{summaries: []string{"Candidate summary"}}
	m := NewMachine(gen, WithMaxRegenAttempts(1))
	data := CollectedData{"currentSummary": "Candidate summary", "summaryAttempts": 0}

	var result StepResult
	result, data = advance(t, m, StepSummaryReview, "regenerate", data)
	require.Equal(t, StepSummaryReview, result.NextStep)

	result, data = advance(t, m, StepSummaryReview, "regenerate", data)
	assert.Equal(t, StepComplete, result.NextStep, "超出上限应强制采用")
	assert.Contains(t, result.Response, "tried quite a few versions")
	assert.Equal(t, "Candidate summary", data.String("summary"))
}

func TestManualSummary(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})

	result, _ := advance(t, m, StepSummaryStyle, "I'd rather write my own", CollectedData{})
	assert.Equal(t, StepManualSummary, result.NextStep)

	result, data := advance(t, m, StepManualSummary, "My own words.", CollectedData{})
	assert.Equal(t, StepComplete, result.NextStep)
	assert.Equal(t, "My own words.", data.String("summary"))
}

func TestUnknownStepStaysPut(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})
	data := CollectedData{"name": "Jane"}

	result := m.Process(context.Background(), Step("bogus"), "anything", data)

	assert.Equal(t, Step("bogus"), result.NextStep, "无法识别的步骤应原地停留")
	assert.Empty(t, result.DataDelta, "无法识别的步骤不应产生数据变更")
}

func TestCompleteStepIsTerminal(t *testing.T) {
	m := NewMachine(&scriptedGenerator{})

	result := m.Process(context.Background(), StepComplete, "anything", CollectedData{})

	assert.Equal(t, StepComplete, result.NextStep)
	assert.Equal(t, 100, result.Progress)
}
