// Package builder 实现对话式简历构建器：按步骤收集信息的状态机、
// 会话控制器以及将收集数据固化为简历的终结器。
package builder

import (
	"time"
)

// Step 状态机中的一个命名步骤
type Step string

const (
	StepName            Step = "name"
	StepEmail           Step = "email"
	StepPhone           Step = "phone"
	StepLocation        Step = "location"
	StepEducationSchool Step = "education_school"
	StepEducationDegree Step = "education_degree"
	StepEducationYear   Step = "education_year"
	StepJobTitle        Step = "job_title"
	StepJobCompany      Step = "job_company"
	StepJobDates        Step = "job_dates"
	StepJobDescription  Step = "job_description"
	StepBulletReview    Step = "bullet_review"
	StepManualBullet    Step = "manual_bullet"
	StepMoreBullets     Step = "more_bullets"
	StepMoreExperience  Step = "more_experience"
	StepSkills          Step = "skills"
	StepSummaryStyle    Step = "summary_style"
	StepSummaryReview   Step = "summary_review"
	StepManualSummary   Step = "manual_summary"
	StepComplete        Step = "complete"
)

// CollectedData 逐步累积的简历数据。字段随步骤完成被添加或覆盖，
// 临时持有子记录（currentEducation/currentJob/currentSummary）在
// 固化进对应列表后被清除。
type CollectedData map[string]interface{}

// CollectedData 中使用的键
const (
	keyName             = "name"
	keyEmail            = "email"
	keyPhone            = "phone"
	keyLocation         = "location"
	keyEducation        = "education"
	keyExperience       = "experience"
	keySkills           = "skills"
	keySummary          = "summary"
	keyCurrentEducation = "currentEducation"
	keyCurrentJob       = "currentJob"
	keyCurrentSummary   = "currentSummary"
	keyBulletAttempts   = "bulletAttempts"
	keySummaryAttempts  = "summaryAttempts"

	keySchool         = "school"
	keyDegree         = "degree"
	keyGraduationYear = "graduationYear"
	keyTitle          = "title"
	keyCompany        = "company"
	keyDates          = "dates"
	keyBullets        = "bullets"
	keyDescription    = "description"
	keyPendingBullet  = "pendingBullet"
)

// BuilderSession 一个用户进行中的对话式简历构建交互
type BuilderSession struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Step      Step          `json:"step"`
	Data      CollectedData `json:"data"`
	Progress  int           `json:"progress"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ChoiceOption 提供给客户端的选择项
type ChoiceOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// 输入提示类型，指导客户端渲染输入控件
const (
	InputHintText   = "text"
	InputHintChoice = "choice"
)

// StepResult 状态机单次转移的输出
type StepResult struct {
	NextStep  Step
	DataDelta CollectedData
	Response  string
	InputHint string
	Options   []ChoiceOption
	Progress  int
}

// Contact 简历联系方式
type Contact struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

// ExperienceEntry 规范化后的工作经历条目
type ExperienceEntry struct {
	Title   string   `json:"title"`
	Company string   `json:"company"`
	Dates   string   `json:"dates"`
	Bullets []string `json:"bullets"`
}

// EducationEntry 规范化后的教育经历条目
type EducationEntry struct {
	School         string `json:"school"`
	Degree         string `json:"degree"`
	GraduationYear string `json:"graduationYear"`
}

// Resume 终结器的输出，交由简历存储层持久化
type Resume struct {
	ID         string            `json:"id"`
	OwnerID    string            `json:"owner_id"`
	Name       string            `json:"name"`
	Contact    Contact           `json:"contact"`
	Summary    string            `json:"summary"`
	Experience []ExperienceEntry `json:"experience"`
	Education  []EducationEntry  `json:"education"`
	Skills     []string          `json:"skills"`
	IsPrimary  bool              `json:"is_primary"`
}

// progressSchedule 每个步骤的固定进度值。循环回访的步骤不会把进度拉低，
// 控制器始终取已达到进度与新进度的较大者。
var progressSchedule = map[Step]int{
	StepName:            5,
	StepEmail:           10,
	StepPhone:           15,
	StepLocation:        20,
	StepEducationSchool: 25,
	StepEducationDegree: 28,
	StepEducationYear:   32,
	StepJobTitle:        35,
	StepJobCompany:      40,
	StepJobDates:        45,
	StepJobDescription:  50,
	StepBulletReview:    55,
	StepManualBullet:    55,
	StepMoreBullets:     60,
	StepMoreExperience:  65,
	StepSkills:          75,
	StepSummaryStyle:    80,
	StepSummaryReview:   88,
	StepManualSummary:   88,
	StepComplete:        100,
}

// ProgressFor 返回步骤对应的固定进度值，未知步骤返回0
func ProgressFor(step Step) int {
	return progressSchedule[step]
}
