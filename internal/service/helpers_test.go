package service

import (
	"context"
	"encoding/json"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/pkg/database"
	"learnhub_backend/pkg/lock"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testCourseID = "c0ffee00-0000-4000-8000-00000000ab12"
	teacherID    = uint(900)
	adminID      = uint(901)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db       *gorm.DB
	clock    *fakeClock
	policy   *PolicyHolder
	archive  string
	exams    *ExamService
	elig     *EligibilityService
	attempts *AttemptService
	certs    *CertificateService
	progress *repository.ProgressRepository
	users    *repository.UserRepository
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// 内存库每个连接是独立的库，只能用一个连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clock := newFakeClock()
	policy := NewPolicyHolder(PolicyFromConfig(config.ExamConfig{
		EnforceExpiry:       true,
		ExpiryGraceSeconds:  60,
		SweepIntervalSecond: 60,
		ArchiveCertificates: true,
	}))
	archiveDir := t.TempDir()

	examRepo := repository.NewExamRepository(db)
	attemptRepo := repository.NewExamAttemptRepository(db)
	resultRepo := repository.NewExamResultRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	userRepo := repository.NewUserRepository(db, repository.NewDBSequencer(db))
	locker := lock.NewMemoryLocker()

	archive := NewCertificateArchive(&LocalStorageProvider{Config: &config.StorageConfig{LocalPath: archiveDir}})

	exams := NewExamService(examRepo, attemptRepo, courseRepo)
	exams.Now = clock.Now
	certs := NewCertificateService(db, certRepo, courseRepo, userRepo, archive, locker, policy)
	certs.Now = clock.Now
	attempts := NewAttemptService(db, examRepo, attemptRepo, resultRepo, certRepo, certs, locker, policy)
	attempts.Now = clock.Now

	f := &fixture{
		db:       db,
		clock:    clock,
		policy:   policy,
		archive:  archiveDir,
		exams:    exams,
		elig:     NewEligibilityService(examRepo, attemptRepo, resultRepo, certRepo, progressRepo),
		attempts: attempts,
		certs:    certs,
		progress: progressRepo,
		users:    userRepo,
	}
	f.seedCourse(t, testCourseID, "Go Concurrency", "Ada Mentor")
	return f
}

func (f *fixture) seedCourse(t *testing.T, courseID, title string, mentors ...string) {
	t.Helper()
	if err := f.db.Create(&model.Course{UUIDBase: model.UUIDBase{ID: courseID}, Title: title}).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}
	for i, name := range mentors {
		m := &model.CourseMentor{CourseID: courseID, MentorID: uint(100 + i), Name: name, Position: i}
		if err := f.db.Create(m).Error; err != nil {
			t.Fatalf("seed mentor: %v", err)
		}
	}
}

// seedStudent 创建学生并设置课程进度；code 为空时不分配学号
func (f *fixture) seedStudent(t *testing.T, name, code string, progress float64) uint {
	t.Helper()
	u := &model.User{
		Name:     name,
		Email:    fmt.Sprintf("%s-%d@example.com", name, time.Now().UnixNano()),
		Password: "x",
		Role:     model.Student,
	}
	if code != "" {
		u.StudentCode = &code
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	if err := f.progress.Upsert(context.Background(), u.ID, testCourseID, progress); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	return u.ID
}

func intPtr(v int) *int { return &v }

// singleChoiceQuestions n 道单选题，第 i 题正确答案为 i%4
func singleChoiceQuestions(n int) []ExamQuestionReq {
	qs := make([]ExamQuestionReq, n)
	for i := range qs {
		qs[i] = ExamQuestionReq{
			Text:           fmt.Sprintf("Question %d", i+1),
			Options:        []string{"A", "B", "C", "D"},
			CorrectAnswers: json.RawMessage(fmt.Sprintf("%d", i%4)),
		}
	}
	return qs
}

func (f *fixture) createApprovedExam(t *testing.T, questions, passing, threshold int) *model.Exam {
	t.Helper()
	ctx := context.Background()
	exam, err := f.exams.CreateExam(ctx, teacherID, CreateExamReq{
		CourseID:            testCourseID,
		Title:               "Final exam",
		Duration:            30,
		PassingScore:        intPtr(passing),
		ActivationThreshold: intPtr(threshold),
		Questions:           singleChoiceQuestions(questions),
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	exam, err = f.exams.ApproveExam(ctx, exam.ID, adminID)
	if err != nil {
		t.Fatalf("approve exam: %v", err)
	}
	return exam
}

// answersFor 按呈现顺序构造答案，canonical 下标在 correct 中的题答对，其余答错
func answersFor(exam *model.Exam, order []int, correct map[int]bool) []json.RawMessage {
	raw := make([]json.RawMessage, len(order))
	for pos, idx := range order {
		right := exam.Questions[idx].CorrectAnswers[0]
		answer := right
		if !correct[idx] {
			answer = (right + 1) % len(exam.Questions[idx].Options)
		}
		raw[pos] = json.RawMessage(fmt.Sprintf("%d", answer))
	}
	return raw
}

func firstN(n int) map[int]bool {
	m := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		m[i] = true
	}
	return m
}

func countRows(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
