package model

// CourseInfo 课程元数据快照：标题与按顺序排列的导师姓名
type CourseInfo struct {
	ID          string
	Title       string
	MentorNames []string
}

// StudentInfo 学生身份快照；StudentCode 可能为空
type StudentInfo struct {
	ID          uint
	Name        string
	StudentCode string
}
