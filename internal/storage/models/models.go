// Package models 定义简历构建器的数据库模型。
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Resume 简历主表。构建器完成的会话固化为一条记录，
// 此后与普通简历一样可编辑、可删除。
type Resume struct {
	ResumeID       string         `gorm:"type:char(36);primaryKey"`
	OwnerID        string         `gorm:"type:varchar(64);not null;index:idx_resumes_owner_id"`
	ResumeName     string         `gorm:"type:varchar(255);not null"`
	ContactJSON    datatypes.JSON `gorm:"type:json"`
	Summary        string         `gorm:"type:text"`
	ExperienceJSON datatypes.JSON `gorm:"type:json"`
	EducationJSON  datatypes.JSON `gorm:"type:json"`
	SkillsJSON     datatypes.JSON `gorm:"type:json"`
	IsPrimary      bool           `gorm:"not null;default:false;index:idx_resumes_owner_primary"`
	Source         string         `gorm:"type:varchar(50);default:'builder'"`
	CreatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Resume) TableName() string {
	return "resumes"
}
