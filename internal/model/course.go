package model

// Course 课程（由课程服务维护，本服务只读）
type Course struct {
	UUIDBase
	Title string `gorm:"size:255;not null" json:"title"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseMentor 课程导师，Position 越小越靠前
type CourseMentor struct {
	BaseModel
	CourseID string `gorm:"index;type:varchar(36)" json:"courseId"`
	MentorID uint   `gorm:"index" json:"mentorId"`
	Name     string `gorm:"size:100" json:"name"`
	Position int    `gorm:"default:0" json:"position"`
}

func (CourseMentor) TableName() string {
	return "course_mentors"
}

// CourseProgress 学生课程进度（百分比）
type CourseProgress struct {
	BaseModel
	StudentID uint    `gorm:"uniqueIndex:idx_progress_student_course" json:"studentId"`
	CourseID  string  `gorm:"uniqueIndex:idx_progress_student_course;type:varchar(36)" json:"courseId"`
	Percent   float64 `gorm:"default:0" json:"percent"`
}

func (CourseProgress) TableName() string {
	return "course_progress"
}
