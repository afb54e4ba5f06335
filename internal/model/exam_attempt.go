package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// swagger:model ExamAttempt
type ExamAttempt struct {
	RecordBase
	ExamID    string `gorm:"index;type:varchar(36);not null" json:"examId"`
	CourseID  string `gorm:"index;type:varchar(36);not null" json:"courseId"`
	StudentID uint   `gorm:"index;not null" json:"studentId"`
	// 未完成时为 "学生:考试"，完成或过期后置空；唯一索引即“每个学生每场考试至多一个进行中的尝试”
	ActiveKey        *string           `gorm:"uniqueIndex;size:80" json:"-"`
	QuestionOrder    []int             `gorm:"serializer:json;type:text" json:"questionOrder"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          *time.Time        `json:"endTime,omitempty"`
	Answers          RawAnswers        `gorm:"type:text" json:"answers,omitempty"`
	Completed        bool              `gorm:"default:false;index" json:"completed"`
	Status           AttemptStatus     `gorm:"size:20;default:'in_progress'" json:"status"`
	Score            int               `gorm:"default:0" json:"score"`
	TimeTakenSeconds int               `gorm:"default:0" json:"timeTakenSeconds"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

func AttemptActiveKey(studentID uint, examID string) string {
	return fmt.Sprintf("%d:%s", studentID, examID)
}

// Deadline 服务端截止时间：开始时间 + 时长 + 宽限
func (a *ExamAttempt) Deadline(durationMinutes int, grace time.Duration) time.Time {
	return a.StartTime.Add(time.Duration(durationMinutes)*time.Minute + grace)
}

// RawAnswers 学生提交的原始答案数组，按呈现顺序原样保存
type RawAnswers []json.RawMessage

func (a RawAnswers) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal([]json.RawMessage(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *RawAnswers) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported answers column type %T", value)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = raw
	return nil
}
