package service

import (
	"context"
	"encoding/json"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildCertificateID(t *testing.T) {
	issued := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		courseID  string
		code      string
		studentID uint
		want      string
	}{
		{"student code", "c0ffee00-0000-4000-8000-00000000ab12", "STU0042", 1, "AB12260042"},
		{"internal id padded", "course-xyz9", "", 7, "XYZ9260007"},
		{"internal id suffix", "course-xyz9", "", 123456, "XYZ9263456"},
		{"short ids", "ab", "S1", 3, "AB26S1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildCertificateID(tc.courseID, tc.code, tc.studentID, issued); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestIssueOrUpgradeKeepsBestScore(t *testing.T) {
	cases := []struct {
		name   string
		scores []int
		want   int
	}{
		{"increasing", []int{70, 85}, 85},
		{"decreasing", []int{85, 70}, 85},
		{"equal", []int{80, 80}, 80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			exam := f.createApprovedExam(t, 2, 50, 0)
			student := f.seedStudent(t, "pat", "STU0042", 100)

			var certID string
			for i, score := range tc.scores {
				out, err := f.certs.IssueOrUpgrade(ctx, student, testCourseID, exam.ID, score)
				if err != nil {
					t.Fatalf("issue %d: %v", score, err)
				}
				if i == 0 {
					certID = out.Certificate.CertificateID
					if out.Action != CertificateIssued {
						t.Fatalf("first action = %s", out.Action)
					}
				} else if out.Certificate.CertificateID != certID {
					t.Fatalf("certificate id changed: %s -> %s", certID, out.Certificate.CertificateID)
				}
			}

			if n := countRows(t, f.db, &model.Certificate{}, "student_id = ? AND course_id = ?", student, testCourseID); n != 1 {
				t.Fatalf("certificate rows = %d, want 1", n)
			}
			cert, err := f.certs.GetCertificate(ctx, certID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if cert.ExamScore != tc.want || cert.Percentage != tc.want {
				t.Fatalf("examScore = %d, percentage = %d, want %d", cert.ExamScore, cert.Percentage, tc.want)
			}
		})
	}
}

func TestEndToEndCertification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createApprovedExam(t, 4, 70, 85)
	student := f.seedStudent(t, "quinn", "STU0042", 90)

	decision, err := f.elig.CheckEligibility(ctx, student, testCourseID)
	if err != nil || !decision.Eligible {
		t.Fatalf("eligibility: %+v, %v", decision, err)
	}

	h, err := f.attempts.StartAttempt(ctx, student, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(10 * time.Minute)
	res, err := f.attempts.SubmitAttempt(ctx, h.AttemptID, student, answersFor(exam, h.PresentationOrder, firstN(3)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 75 || res.Status != model.ResultPass {
		t.Fatalf("result = %+v", res)
	}
	if res.CertificateID != "AB12260042" || res.CertificateAction != CertificateIssued {
		t.Fatalf("certificate = %s (%s)", res.CertificateID, res.CertificateAction)
	}

	cert, err := f.certs.GetCertificate(ctx, res.CertificateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cert.ExamScore != 75 || cert.MentorName != "Ada Mentor" || cert.StudentName != "quinn" || cert.CourseTitle != "Go Concurrency" {
		t.Fatalf("certificate = %+v", cert)
	}
	completedAt, issuedAt := cert.CompletedAt, cert.IssueDate
	if !completedAt.Equal(issuedAt) {
		t.Fatalf("completedAt %v != issueDate %v on first issue", completedAt, issuedAt)
	}

	f.clock.Advance(24 * time.Hour)
	out, err := f.certs.IssueOrUpgrade(ctx, student, testCourseID, exam.ID, 90)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if out.Action != CertificateUpgraded {
		t.Fatalf("action = %s", out.Action)
	}
	cert, _ = f.certs.GetCertificate(ctx, res.CertificateID)
	if cert.ExamScore != 90 {
		t.Fatalf("examScore = %d, want 90", cert.ExamScore)
	}
	if !cert.CompletedAt.Equal(completedAt) {
		t.Fatalf("completedAt changed: %v -> %v", completedAt, cert.CompletedAt)
	}
	if !cert.IssueDate.After(issuedAt) {
		t.Fatalf("issueDate not refreshed: %v", cert.IssueDate)
	}

	// 证书存档发布到存储，供 PDF 渲染方读取
	body, err := os.ReadFile(filepath.Join(f.archive, "certificates", res.CertificateID+".json"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	var archived model.Certificate
	if err := json.Unmarshal(body, &archived); err != nil {
		t.Fatalf("archive json: %v", err)
	}
	if archived.ExamScore != 90 {
		t.Fatalf("archived score = %d, want 90", archived.ExamScore)
	}
}

func TestCertificateDefaultMentor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCourse(t, "course-no-mentor-0007", "Solo Course")
	student := f.seedStudent(t, "rita", "", 100)

	out, err := f.certs.IssueOrUpgrade(ctx, student, "course-no-mentor-0007", "exam-x", 88)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if out.Certificate.MentorName != "LearnHub Academy" {
		t.Fatalf("mentor = %q", out.Certificate.MentorName)
	}
	// 没有学号时用内部 ID 补零
	want := BuildCertificateID("course-no-mentor-0007", "", student, f.clock.Now())
	if out.Certificate.CertificateID != want {
		t.Fatalf("certificate id = %s, want %s", out.Certificate.CertificateID, want)
	}
}

func TestCertificateIDCollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// 两个学号后四位相同的学生
	a := f.seedStudent(t, "sam", "A-0042", 100)
	b := f.seedStudent(t, "sue", "B-0042", 100)

	first, err := f.certs.IssueOrUpgrade(ctx, a, testCourseID, "exam-1", 80)
	if err != nil {
		t.Fatalf("issue a: %v", err)
	}
	second, err := f.certs.IssueOrUpgrade(ctx, b, testCourseID, "exam-1", 80)
	if err != nil {
		t.Fatalf("issue b: %v", err)
	}
	if first.Certificate.CertificateID != "AB12260042" || second.Certificate.CertificateID != "AB12260042-2" {
		t.Fatalf("ids = %s, %s", first.Certificate.CertificateID, second.Certificate.CertificateID)
	}
}

func TestRevokeCertificate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.seedStudent(t, "tom", "STU0100", 100)

	out, err := f.certs.IssueOrUpgrade(ctx, student, testCourseID, "exam-1", 75)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id := out.Certificate.CertificateID
	if err := f.certs.RevokeCertificate(ctx, id, adminID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := f.certs.GetCertificate(ctx, id); !errors.Is(err, util.ErrCertificateNotFound) {
		t.Fatalf("get after revoke: err = %v", err)
	}
	if err := f.certs.RevokeCertificate(ctx, id, adminID); !errors.Is(err, util.ErrCertificateNotFound) {
		t.Fatalf("second revoke: err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.archive, "certificates", id+".json")); !os.IsNotExist(err) {
		t.Fatalf("archive not removed: %v", err)
	}

	// 撤销后重新签发是全新的证书
	again, err := f.certs.IssueOrUpgrade(ctx, student, testCourseID, "exam-2", 60)
	if err != nil || again.Action != CertificateIssued || again.Certificate.ExamScore != 60 {
		t.Fatalf("reissue: %+v, %v", again, err)
	}
}
