package model

import (
	"time"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ExamQuestion 单道选择题；CorrectAnswers 为规范顺序下的正确选项下标集合
type ExamQuestion struct {
	Text           string    `json:"text"`
	Options        []string  `json:"options"`
	CorrectAnswers AnswerSet `json:"correctAnswers"`
	Explanation    string    `json:"explanation,omitempty"`
}

// swagger:model Exam
type Exam struct {
	RecordBase
	CourseID string `gorm:"index;type:varchar(36);not null" json:"courseId"`
	// 未归档时等于 CourseID，归档后置空；唯一索引保证每门课只有一份有效考试
	ActiveCourseKey     *string        `gorm:"uniqueIndex;type:varchar(36)" json:"-"`
	Title               string         `gorm:"size:255;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	Questions           []ExamQuestion `gorm:"serializer:json;type:text" json:"questions"`
	Duration            int            `gorm:"not null" json:"duration"` // 分钟
	PassingScore        int            `gorm:"not null" json:"passingScore"`
	ActivationThreshold int            `gorm:"not null;default:0" json:"activationThreshold"`
	Status              ExamStatus     `gorm:"size:20;default:'draft'" json:"status"`
	ApprovalStatus      ApprovalStatus `gorm:"size:20;index;default:'pending'" json:"approvalStatus"`
	RejectionReason     string         `gorm:"type:text" json:"rejectionReason,omitempty"`
	CreatedBy           uint           `gorm:"index" json:"createdBy"`
	ReviewedBy          *uint          `json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time     `json:"reviewedAt,omitempty"`
	Archived            bool           `gorm:"default:false" json:"archived"`
	ArchivedAt          *time.Time     `json:"archivedAt,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

func (e *Exam) QuestionCount() int {
	return len(e.Questions)
}

// Selectable 可被学生参加：未归档且审核状态为 approved 或 pending
func (e *Exam) Selectable() bool {
	return !e.Archived && (e.ApprovalStatus == ApprovalApproved || e.ApprovalStatus == ApprovalPending)
}
