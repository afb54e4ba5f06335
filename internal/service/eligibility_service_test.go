package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"testing"
)

func TestEligibilityBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.createApprovedExam(t, 4, 70, 85)
	student := f.seedStudent(t, "uma", "STU0200", 50)

	d, err := f.elig.CheckEligibility(context.Background(), student, testCourseID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Eligible || d.Terminal || d.Reason != ReasonInsufficientProgress {
		t.Fatalf("decision = %+v", d)
	}
	if d.Progress == nil || *d.Progress != 50 || d.Threshold == nil || *d.Threshold != 85 {
		t.Fatalf("progress/threshold = %v/%v", d.Progress, d.Threshold)
	}
	if n := countRows(t, f.db, &model.ExamAttempt{}, "student_id = ?", student); n != 0 {
		t.Fatalf("attempts created: %d", n)
	}
}

func TestEligibilityMissingProgressCountsAsZero(t *testing.T) {
	f := newFixture(t)
	f.createApprovedExam(t, 2, 70, 10)
	u := &model.User{Name: "vic", Email: "vic@example.com", Password: "x", Role: model.Student}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, err := f.elig.CheckEligibility(context.Background(), u.ID, testCourseID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Reason != ReasonInsufficientProgress || *d.Progress != 0 {
		t.Fatalf("decision = %+v", d)
	}
}

func TestEligibilityEligibleSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createApprovedExam(t, 3, 90, 50)
	student := f.seedStudent(t, "walt", "STU0201", 50)

	// 一次未通过的历史尝试
	h, _ := f.attempts.StartAttempt(ctx, student, exam.ID)
	if _, err := f.attempts.SubmitAttempt(ctx, h.AttemptID, student, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	d, err := f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Eligible || d.Exam == nil {
		t.Fatalf("decision = %+v", d)
	}
	want := ExamSummary{
		ID:                  exam.ID,
		Title:               "Final exam",
		Duration:            30,
		PassingScore:        90,
		ActivationThreshold: 50,
		QuestionCount:       3,
		PreviousAttempts:    1,
	}
	if *d.Exam != want {
		t.Fatalf("summary = %+v, want %+v", *d.Exam, want)
	}
}

func TestEligibilityExamSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.seedStudent(t, "xena", "STU0202", 100)

	if _, err := f.elig.CheckEligibility(ctx, student, testCourseID); !errors.Is(err, util.ErrExamNotFound) {
		t.Fatalf("no exam: err = %v", err)
	}

	pending, err := f.exams.CreateExam(ctx, teacherID, CreateExamReq{
		CourseID:     testCourseID,
		Title:        "Draft exam",
		Duration:     20,
		PassingScore: intPtr(60),
		Questions:    singleChoiceQuestions(2),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err := f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil {
		t.Fatalf("check pending: %v", err)
	}
	if !d.Eligible || d.Exam.ID != pending.ID || !d.Exam.PendingApproval {
		t.Fatalf("pending decision = %+v", d)
	}

	if _, err := f.exams.RejectExam(ctx, pending.ID, adminID, "needs work"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.elig.CheckEligibility(ctx, student, testCourseID); !errors.Is(err, util.ErrExamNotFound) {
		t.Fatalf("rejected exam selected: err = %v", err)
	}

	if _, err := f.exams.ArchiveExam(ctx, pending.ID, teacherID, model.Teacher); err != nil {
		t.Fatalf("archive: %v", err)
	}
	approved := f.createApprovedExam(t, 2, 60, 0)
	d, err = f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil {
		t.Fatalf("check approved: %v", err)
	}
	if d.Exam.ID != approved.ID || d.Exam.PendingApproval {
		t.Fatalf("approved decision = %+v", d.Exam)
	}
}

func TestEligibilityPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createApprovedExam(t, 2, 50, 0)
	student := f.seedStudent(t, "yuri", "STU0203", 100)

	h, _ := f.attempts.StartAttempt(ctx, student, exam.ID)
	res, err := f.attempts.SubmitAttempt(ctx, h.AttemptID, student, answersFor(exam, h.PresentationOrder, firstN(2)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// 遗留一个未完成尝试：直接写库模拟另一份考试上的旧会话
	key := "orphan"
	orphan := &model.ExamAttempt{ExamID: "old-exam", CourseID: testCourseID, StudentID: student, ActiveKey: &key, QuestionOrder: []int{0}}
	if err := f.db.Create(orphan).Error; err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	d, err := f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Reason != ReasonAlreadyCertified || !d.Terminal || d.CertificateID != res.CertificateID {
		t.Fatalf("decision = %+v", d)
	}
	if n := countRows(t, f.db, &model.ExamAttempt{}, "id = ?", orphan.ID); n != 0 {
		t.Fatalf("orphaned attempt kept")
	}

	if err := f.certs.RevokeCertificate(ctx, res.CertificateID, adminID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	d, err = f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil {
		t.Fatalf("check after revoke: %v", err)
	}
	if d.Reason != ReasonAlreadyPassed || d.Score == nil || *d.Score != 100 {
		t.Fatalf("decision after revoke = %+v", d)
	}
}

func TestRevocationReadmitsForReplacementExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.createApprovedExam(t, 2, 50, 0)
	student := f.seedStudent(t, "zoe", "STU0204", 100)

	h, _ := f.attempts.StartAttempt(ctx, student, old.ID)
	res, err := f.attempts.SubmitAttempt(ctx, h.AttemptID, student, answersFor(old, h.PresentationOrder, firstN(2)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.exams.ArchiveExam(ctx, old.ID, adminID, model.Admin); err != nil {
		t.Fatalf("archive: %v", err)
	}
	replacement := f.createApprovedExam(t, 3, 60, 0)

	if _, err := f.attempts.StartAttempt(ctx, student, replacement.ID); !errors.Is(err, util.ErrAlreadyCertified) {
		t.Fatalf("start while certified: err = %v", err)
	}
	if err := f.certs.RevokeCertificate(ctx, res.CertificateID, adminID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	d, err := f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil || !d.Eligible || d.Exam.ID != replacement.ID {
		t.Fatalf("decision after revoke = %+v, %v", d, err)
	}
	if _, err := f.attempts.StartAttempt(ctx, student, replacement.ID); err != nil {
		t.Fatalf("start after revoke: %v", err)
	}
}
