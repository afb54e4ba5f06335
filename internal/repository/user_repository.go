package repository

import (
	"context"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB  *gorm.DB
	Seq Sequencer
}

func NewUserRepository(db *gorm.DB, seq Sequencer) *UserRepository {
	return &UserRepository{DB: db, Seq: seq}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return first[model.User](r.DB.WithContext(ctx).Where("id = ?", id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return first[model.User](r.DB.WithContext(ctx).Where("email = ?", email))
}

// FindStudent 学生身份快照，供证书编号与证书上的姓名使用
func (r *UserRepository) FindStudent(ctx context.Context, studentID uint) (*model.StudentInfo, error) {
	user, err := r.FindByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, util.ErrUserNotFound
	}
	info := &model.StudentInfo{ID: user.ID, Name: user.Name}
	if user.StudentCode != nil {
		info.StudentCode = *user.StudentCode
	}
	return info, nil
}

// AssignStudentCode 为尚无学号的学生分配学号。编号来自原子序列，
// 不再用“当前用户数 + 1”的方式，避免并发注册拿到相同编号
func (r *UserRepository) AssignStudentCode(ctx context.Context, userID uint) (string, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", util.ErrUserNotFound
	}
	if user.StudentCode != nil && *user.StudentCode != "" {
		return *user.StudentCode, nil
	}

	n, err := r.Seq.Next(ctx, "student_code")
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("STU%04d", n)

	res := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND student_code IS NULL", userID).
		Update("student_code", code)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		// 并发分配时以已写入的为准
		user, err = r.FindByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if user.StudentCode != nil {
			return *user.StudentCode, nil
		}
	}
	return code, nil
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).Update("last_login", time.Now()).Error
}
