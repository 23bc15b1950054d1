package db

import (
	"time"

	"gorm.io/datatypes"
)

// BlogStat 记录博客每日的浏览量与访客数，date 为自然主键，每个日期至多一行。
// Views 与 Visitors 为空表示对应指标尚未采集。
type BlogStat struct {
	ID                uint           `gorm:"primaryKey"`
	Date              string         `gorm:"size:10;uniqueIndex;not null"`
	Views             *int64         `gorm:"column:views"`
	Visitors          *int64         `gorm:"column:visitors"`
	RawPayloadArchive datatypes.JSON `gorm:"column:raw_payload_archive"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定自定义表名。
func (BlogStat) TableName() string {
	return "blog_stats"
}
