package builder

import (
	"fmt"
)

// Finalize 将收集到的数据规范化为一份待持久化的简历。
// 缺失字段一律补为空字符串或空列表，临时持有记录不会进入简历。
func Finalize(ownerID string, data CollectedData) *Resume {
	if data == nil {
		data = CollectedData{}
	}

	name := data.String(keyName)
	resumeName := "My Resume"
	if name != "" {
		resumeName = fmt.Sprintf("%s's Resume", name)
	}

	resume := &Resume{
		OwnerID: ownerID,
		Name:    resumeName,
		Contact: Contact{
			Name:     name,
			Email:    data.String(keyEmail),
			Phone:    data.String(keyPhone),
			Location: data.String(keyLocation),
		},
		Summary:    data.String(keySummary),
		Experience: normalizeExperience(data.List(keyExperience)),
		Education:  normalizeEducation(data.List(keyEducation)),
		Skills:     data.StringList(keySkills),
	}

	if resume.Skills == nil {
		resume.Skills = []string{}
	}

	return resume
}

func normalizeExperience(raw []interface{}) []ExperienceEntry {
	entries := make([]ExperienceEntry, 0, len(raw))
	for _, item := range raw {
		job, ok := asMap(item)
		if !ok {
			continue
		}
		entry := ExperienceEntry{
			Title:   job.String(keyTitle),
			Company: job.String(keyCompany),
			Dates:   job.String(keyDates),
			Bullets: job.StringList(keyBullets),
		}
		if entry.Bullets == nil {
			entry.Bullets = []string{}
		}
		entries = append(entries, entry)
	}
	return entries
}

func normalizeEducation(raw []interface{}) []EducationEntry {
	entries := make([]EducationEntry, 0, len(raw))
	for _, item := range raw {
		edu, ok := asMap(item)
		if !ok {
			continue
		}
		entries = append(entries, EducationEntry{
			School:         edu.String(keySchool),
			Degree:         edu.String(keyDegree),
			GraduationYear: edu.String(keyGraduationYear),
		})
	}
	return entries
}
