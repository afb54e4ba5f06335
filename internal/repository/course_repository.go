package repository

import (
	"context"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"

	"gorm.io/gorm"
)

// CourseRepository 课程与导师的只读视图
type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) FindCourse(ctx context.Context, courseID string) (*model.CourseInfo, error) {
	course, err := first[model.Course](r.DB.WithContext(ctx).Where("id = ?", courseID))
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, util.ErrCourseNotFound
	}

	var mentors []model.CourseMentor
	if err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC, id ASC").
		Find(&mentors).Error; err != nil {
		return nil, err
	}

	info := &model.CourseInfo{ID: course.ID, Title: course.Title}
	for _, m := range mentors {
		info.MentorNames = append(info.MentorNames, m.Name)
	}
	return info, nil
}
