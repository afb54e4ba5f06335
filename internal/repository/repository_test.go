package repository

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/database"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestDBSequencerIsMonotonic(t *testing.T) {
	db := openTestDB(t)
	seq := NewDBSequencer(db)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, "student_code")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i := int64(1); i <= 10; i++ {
		if !seen[i] {
			t.Fatalf("sequence value %d missing, got %v", i, seen)
		}
	}

	other, err := seq.Next(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	if other != 1 {
		t.Fatalf("independent sequences should start at 1, got %d", other)
	}
}

func TestAssignStudentCode(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db, NewDBSequencer(db))
	ctx := context.Background()

	alice := &model.User{Name: "Alice", Email: "a@example.com", Password: "x", Role: model.Student}
	second := &model.User{Name: "Bob", Email: "b@example.com", Password: "x", Role: model.Student}
	for _, u := range []*model.User{alice, second} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	code, err := users.AssignStudentCode(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if code != "STU0001" {
		t.Fatalf("expected STU0001, got %s", code)
	}

	again, err := users.AssignStudentCode(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again != code {
		t.Fatalf("code should be stable, got %s then %s", code, again)
	}

	code2, err := users.AssignStudentCode(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if code2 != "STU0002" {
		t.Fatalf("expected STU0002, got %s", code2)
	}

	info, err := users.FindStudent(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "Bob" || info.StudentCode != "STU0002" {
		t.Fatalf("unexpected student info %+v", info)
	}

	if _, err := users.FindStudent(ctx, 9999); !errors.Is(err, util.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFindCourseOrdersMentors(t *testing.T) {
	db := openTestDB(t)
	courses := NewCourseRepository(db)
	ctx := context.Background()

	course := model.Course{Title: "Go 并发编程"}
	course.ID = "c0ffee00-0000-4000-8000-00000000ab12"
	if err := db.Create(&course).Error; err != nil {
		t.Fatal(err)
	}
	for _, m := range []model.CourseMentor{
		{CourseID: course.ID, Name: "Second", Position: 2},
		{CourseID: course.ID, Name: "First", Position: 1},
	} {
		m := m
		if err := db.Create(&m).Error; err != nil {
			t.Fatal(err)
		}
	}

	info, err := courses.FindCourse(ctx, course.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.MentorNames) != 2 || info.MentorNames[0] != "First" {
		t.Fatalf("unexpected mentors %v", info.MentorNames)
	}

	if _, err := courses.FindCourse(ctx, "missing"); !errors.Is(err, util.ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestProgressDefaultsToZero(t *testing.T) {
	db := openTestDB(t)
	progress := NewProgressRepository(db)
	ctx := context.Background()

	p, err := progress.CourseProgress(ctx, 7, "course")
	if err != nil || p != 0 {
		t.Fatalf("expected 0, nil; got %v, %v", p, err)
	}

	if err := progress.Upsert(ctx, 7, "course", 55); err != nil {
		t.Fatal(err)
	}
	if err := progress.Upsert(ctx, 7, "course", 85.5); err != nil {
		t.Fatal(err)
	}
	p, err = progress.CourseProgress(ctx, 7, "course")
	if err != nil || p != 85.5 {
		t.Fatalf("expected 85.5, got %v, %v", p, err)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if IsDuplicateKey(nil) {
		t.Fatal("nil is not a duplicate")
	}
	if !IsDuplicateKey(gorm.ErrDuplicatedKey) {
		t.Fatal("gorm.ErrDuplicatedKey should be detected")
	}
	if !IsDuplicateKey(errors.New("UNIQUE constraint failed: certificates.certificate_id")) {
		t.Fatal("sqlite message should be detected")
	}
	if IsDuplicateKey(errors.New("no such table")) {
		t.Fatal("unrelated error detected as duplicate")
	}
}
