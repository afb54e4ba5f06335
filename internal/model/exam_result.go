package model

type ResultStatus string

const (
	ResultPass ResultStatus = "Pass"
	ResultFail ResultStatus = "Fail"
)

// ExamResult 一次评分的审计记录，只追加不修改
type ExamResult struct {
	RecordBase
	StudentID uint         `gorm:"index:idx_result_student_exam;not null" json:"studentId"`
	ExamID    string       `gorm:"index:idx_result_student_exam;type:varchar(36);not null" json:"examId"`
	CourseID  string       `gorm:"index;type:varchar(36);not null" json:"courseId"`
	AttemptID string       `gorm:"uniqueIndex;type:varchar(36);not null" json:"attemptId"`
	Score     int          `json:"score"`
	Status    ResultStatus `gorm:"size:10;index" json:"status"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}
