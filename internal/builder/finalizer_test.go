package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeEmptyData(t *testing.T) {
	resume := Finalize("owner-1", nil)

	assert.Equal(t, "owner-1", resume.OwnerID)
	assert.Equal(t, "My Resume", resume.Name, "缺失姓名时应使用默认简历名")
	assert.Equal(t, "", resume.Contact.Name)
	assert.NotNil(t, resume.Skills, "技能应为空列表而非nil")
	assert.Empty(t, resume.Skills)
	assert.Empty(t, resume.Experience)
	assert.Empty(t, resume.Education)
}

func TestFinalizeNamedResume(t *testing.T) {
	resume := Finalize("owner-1", CollectedData{"name": "Jane Doe"})

	assert.Equal(t, "Jane Doe's Resume", resume.Name)
	assert.Equal(t, "Jane Doe", resume.Contact.Name)
}

func TestFinalizeNormalizesCollectedData(t *testing.T) {
	// JSON反序列化后的形态：嵌套map和[]interface{}
	data := CollectedData{
		"name":     "Jane Doe",
		"email":    "jane@example.com",
		"phone":    "",
		"location": "Austin, TX",
		"summary":  "Engineer with backend experience.",
		"experience": []interface{}{
			map[string]interface{}{
				"title":   "Engineer",
				"company": "Acme",
				"dates":   "2019 - 2022",
				"bullets": []interface{}{"Did a thing", "Did another"},
			},
			map[string]interface{}{
				"title": "Intern",
			},
		},
		"education": []interface{}{
			map[string]interface{}{
				"school":         "State University",
				"degree":         "BS",
				"graduationYear": "2019",
			},
		},
		"skills": []interface{}{"Go", "SQL"},
	}

	resume := Finalize("owner-1", data)

	assert.Equal(t, "jane@example.com", resume.Contact.Email)
	assert.Equal(t, "", resume.Contact.Phone)
	assert.Equal(t, "Engineer with backend experience.", resume.Summary)

	require.Len(t, resume.Experience, 2)
	assert.Equal(t, "Engineer", resume.Experience[0].Title)
	assert.Equal(t, []string{"Did a thing", "Did another"}, resume.Experience[0].Bullets)
	assert.NotNil(t, resume.Experience[1].Bullets, "缺失的亮点列表应补为空列表")
	assert.Empty(t, resume.Experience[1].Bullets)

	require.Len(t, resume.Education, 1)
	assert.Equal(t, "State University", resume.Education[0].School)
	assert.Equal(t, "2019", resume.Education[0].GraduationYear)

	assert.Equal(t, []string{"Go", "SQL"}, resume.Skills)
}

func TestFinalizeIgnoresTransientHolders(t *testing.T) {
	data := CollectedData{
		"name":            "Jane",
		"currentJob":      map[string]interface{}{"title": "Half-entered"},
		"currentSummary":  "draft",
		"bulletAttempts":  float64(2),
		"summaryAttempts": 1,
	}

	resume := Finalize("owner-1", data)

	assert.Empty(t, resume.Experience, "临时持有记录不应进入简历")
	assert.Equal(t, "", resume.Summary, "未提交的候选总结不应进入简历")
}

func TestFinalizeSkipsMalformedListItems(t *testing.T) {
	data := CollectedData{
		"experience": []interface{}{"not a map", 42},
		"education":  []interface{}{nil},
	}

	resume := Finalize("owner-1", data)

	assert.Empty(t, resume.Experience, "非记录形态的条目应被跳过")
	assert.Empty(t, resume.Education)
}
