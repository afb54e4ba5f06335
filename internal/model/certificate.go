package model

import "time"

// swagger:model Certificate
// 每个 (学生, 课程) 至多一张证书
type Certificate struct {
	RecordBase
	CertificateID string    `gorm:"uniqueIndex;size:40;not null" json:"certificateId"`
	StudentID     uint      `gorm:"uniqueIndex:idx_cert_student_course;not null" json:"studentId"`
	CourseID      string    `gorm:"uniqueIndex:idx_cert_student_course;type:varchar(36);not null" json:"courseId"`
	ExamID        string    `gorm:"type:varchar(36)" json:"examId"`
	ExamScore     int       `json:"examScore"`
	Percentage    int       `json:"percentage"`
	IssueDate     time.Time `json:"issueDate"`
	CompletedAt   time.Time `json:"completedAt"` // 首次签发时确定，升级不改
	MentorName    string    `gorm:"size:100" json:"mentorName"`
	StudentName   string    `gorm:"size:100" json:"studentName"`
	CourseTitle   string    `gorm:"size:255" json:"courseTitle"`
}

func (Certificate) TableName() string {
	return "certificates"
}
