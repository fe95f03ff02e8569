package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepMergeScalarOverwrite(t *testing.T) {
	dst := CollectedData{"name": "Jane", "email": "old@example.com"}
	delta := CollectedData{"email": "new@example.com"}

	merged := DeepMerge(dst, delta)

	assert.Equal(t, "Jane", merged.String("name"), "未触及的键应保持原值")
	assert.Equal(t, "new@example.com", merged.String("email"), "标量值应被直接覆盖")
}

func TestDeepMergeArrayReplacedWholesale(t *testing.T) {
	dst := CollectedData{"skills": []interface{}{"Go", "Python", "SQL"}}
	delta := CollectedData{"skills": []interface{}{"Rust"}}

	merged := DeepMerge(dst, delta)

	require.Len(t, merged.List("skills"), 1, "数组应整体替换而不是拼接")
	assert.Equal(t, "Rust", merged.List("skills")[0])
}

func TestDeepMergeNestedMapRecursion(t *testing.T) {
	dst := CollectedData{
		"currentJob": map[string]interface{}{"title": "Engineer", "company": "Acme"},
	}
	delta := CollectedData{
		"currentJob": CollectedData{"dates": "2019 - 2022"},
	}

	merged := DeepMerge(dst, delta)

	job := merged.Map("currentJob")
	require.NotNil(t, job, "嵌套记录不应丢失")
	assert.Equal(t, "Engineer", job.String("title"), "递归合并应保留已有键")
	assert.Equal(t, "Acme", job.String("company"))
	assert.Equal(t, "2019 - 2022", job.String("dates"), "递归合并应写入新键")
}

func TestDeepMergeNilDeletesKey(t *testing.T) {
	dst := CollectedData{
		"currentJob":     map[string]interface{}{"title": "Engineer"},
		"bulletAttempts": 3,
	}
	delta := CollectedData{"currentJob": nil, "bulletAttempts": nil}

	merged := DeepMerge(dst, delta)

	_, hasJob := merged["currentJob"]
	_, hasAttempts := merged["bulletAttempts"]
	assert.False(t, hasJob, "显式nil应删除临时持有记录")
	assert.False(t, hasAttempts, "显式nil应删除计数器")
}

func TestDeepMergeIdempotent(t *testing.T) {
	delta := CollectedData{
		"name":   "Jane",
		"skills": []interface{}{"Go"},
		"currentEducation": CollectedData{
			"school": "State University",
		},
	}

	once := DeepMerge(CollectedData{}, delta)
	twice := DeepMerge(once, delta)

	assert.Equal(t, map[string]interface{}(once), map[string]interface{}(twice), "重复合并同一delta应是幂等的")
}

func TestDeepMergeNilDst(t *testing.T) {
	merged := DeepMerge(nil, CollectedData{"name": "Jane"})

	require.NotNil(t, merged)
	assert.Equal(t, "Jane", merged.String("name"))
}
