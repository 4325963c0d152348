package diary

import "time"

// EmotionRecord 对应 MariaDB 的 analysis_result 表，每个用户每天最多一行。
// (user_code, record_date) 上的唯一键保证并发 upsert 不会产生重复记录。
type EmotionRecord struct {
	AnalysisCode uint      `gorm:"column:analysis_code;primaryKey;autoIncrement" json:"analysisCode"`
	UserCode     int64     `gorm:"column:user_code;not null;uniqueIndex:uk_user_day" json:"userCode"`
	RecordDate   string    `gorm:"column:record_date;type:date;not null;uniqueIndex:uk_user_day" json:"recordDate"`
	EmotionScore float64   `gorm:"column:emotion_score" json:"emotionScore"`
	EmotionName  string    `gorm:"column:emotion_name;size:25" json:"emotionName"`
	Summary      *string   `gorm:"column:summary;size:3000" json:"summary,omitempty"`
	CreateAt     time.Time `gorm:"column:create_at" json:"createAt"`
}

// TableName 指定既有表名。
func (EmotionRecord) TableName() string {
	return "analysis_result"
}

// DateLayout 是 record_date 列使用的日期格式。
const DateLayout = "2006-01-02"
