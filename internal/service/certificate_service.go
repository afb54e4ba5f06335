package service

import (
	"context"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/lock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CertificateAction string

const (
	CertificateIssued    CertificateAction = "issued"
	CertificateUpgraded  CertificateAction = "upgraded"
	CertificateUnchanged CertificateAction = "unchanged"
)

// 证书编号冲突（不同学生/课程生成了同一编号）时追加序号的上限
const maxCertificateIDSuffix = 50

type CertificateService struct {
	DB       *gorm.DB
	Repo     *repository.CertificateRepository
	Courses  CourseDirectory
	Students StudentDirectory
	Archive  *CertificateArchive
	Locker   lock.Locker
	Policy   *PolicyHolder
	Now      func() time.Time
}

func NewCertificateService(
	db *gorm.DB,
	repo *repository.CertificateRepository,
	courses CourseDirectory,
	students StudentDirectory,
	archive *CertificateArchive,
	locker lock.Locker,
	policy *PolicyHolder,
) *CertificateService {
	return &CertificateService{
		DB:       db,
		Repo:     repo,
		Courses:  courses,
		Students: students,
		Archive:  archive,
		Locker:   locker,
		Policy:   policy,
		Now:      time.Now,
	}
}

// IssueInput 签发所需的全部数据；协作方查询在事务外完成
type IssueInput struct {
	StudentID uint
	CourseID  string
	ExamID    string
	Score     int
	Student   *model.StudentInfo
	Course    *model.CourseInfo
}

type IssueOutcome struct {
	Certificate *model.Certificate
	Action      CertificateAction
}

// BuildCertificateID 课程 ID 后四位（大写）+ 两位年份 + 学号后四位；没有学号时用内部 ID
func BuildCertificateID(courseID, studentCode string, studentID uint, issuedAt time.Time) string {
	studentPart := util.LastN(studentCode, 4)
	if studentPart == "" {
		studentPart = util.LastN(fmt.Sprintf("%04d", studentID), 4)
	}
	return fmt.Sprintf("%s%02d%s", strings.ToUpper(util.LastN(courseID, 4)), issuedAt.Year()%100, studentPart)
}

func LockKey(studentID uint, courseID string) string {
	return fmt.Sprintf("exam:%d:%s", studentID, courseID)
}

func (s *CertificateService) mentorName(course *model.CourseInfo) string {
	if course != nil {
		for _, name := range course.MentorNames {
			if strings.TrimSpace(name) != "" {
				return name
			}
		}
	}
	return s.Policy.Get().DefaultMentorName
}

// PrepareIssue 查询学生与课程快照
func (s *CertificateService) PrepareIssue(ctx context.Context, studentID uint, courseID, examID string, score int) (IssueInput, error) {
	student, err := s.Students.FindStudent(ctx, studentID)
	if err != nil {
		return IssueInput{}, err
	}
	course, err := s.Courses.FindCourse(ctx, courseID)
	if err != nil {
		return IssueInput{}, err
	}
	return IssueInput{
		StudentID: studentID,
		CourseID:  courseID,
		ExamID:    examID,
		Score:     score,
		Student:   student,
		Course:    course,
	}, nil
}

// IssueOrUpgradeTx 在调用方事务内签发或升级证书。
// 调用方应持有 (学生, 课程) 锁；即便没有，唯一索引冲突也会落到条件升级上
func (s *CertificateService) IssueOrUpgradeTx(ctx context.Context, tx *gorm.DB, in IssueInput) (*IssueOutcome, error) {
	repo := s.Repo.WithTx(tx)
	now := s.Now()

	existing, err := repo.FindByStudentCourse(ctx, in.StudentID, in.CourseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.upgrade(ctx, repo, existing, in, now)
	}

	studentCode, studentName := "", ""
	if in.Student != nil {
		studentCode, studentName = in.Student.StudentCode, in.Student.Name
	}
	courseTitle := ""
	if in.Course != nil {
		courseTitle = in.Course.Title
	}
	baseID := BuildCertificateID(in.CourseID, studentCode, in.StudentID, now)

	for n := 1; n <= maxCertificateIDSuffix; n++ {
		certID := baseID
		if n > 1 {
			certID = fmt.Sprintf("%s-%d", baseID, n)
		}
		taken, err := repo.CertificateIDTaken(ctx, certID)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		cert := &model.Certificate{
			CertificateID: certID,
			StudentID:     in.StudentID,
			CourseID:      in.CourseID,
			ExamID:        in.ExamID,
			ExamScore:     in.Score,
			Percentage:    in.Score,
			IssueDate:     now,
			CompletedAt:   now,
			MentorName:    s.mentorName(in.Course),
			StudentName:   studentName,
			CourseTitle:   courseTitle,
		}

		// 插入失败要回滚到保存点，否则 postgres 会使整个事务失效
		if err := tx.SavePoint("cert_insert").Error; err != nil {
			return nil, err
		}
		err = repo.Create(ctx, cert)
		if err == nil {
			return &IssueOutcome{Certificate: cert, Action: CertificateIssued}, nil
		}
		if !repository.IsDuplicateKey(err) {
			return nil, err
		}
		if rbErr := tx.RollbackTo("cert_insert").Error; rbErr != nil {
			return nil, rbErr
		}

		// 冲突可能来自同一 (学生, 课程) 的并发签发，此时按升级处理
		winner, err := repo.FindByStudentCourse(ctx, in.StudentID, in.CourseID)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return s.upgrade(ctx, repo, winner, in, now)
		}
	}
	return nil, fmt.Errorf("no free certificate id for base %s", baseID)
}

func (s *CertificateService) upgrade(ctx context.Context, repo *repository.CertificateRepository, existing *model.Certificate, in IssueInput, now time.Time) (*IssueOutcome, error) {
	if in.Score <= existing.ExamScore {
		return &IssueOutcome{Certificate: existing, Action: CertificateUnchanged}, nil
	}
	ok, err := repo.UpgradeScore(ctx, in.StudentID, in.CourseID, in.ExamID, in.Score, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 被更高分的并发请求抢先
		return &IssueOutcome{Certificate: existing, Action: CertificateUnchanged}, nil
	}
	updated, err := repo.FindByStudentCourse(ctx, in.StudentID, in.CourseID)
	if err != nil {
		return nil, err
	}
	return &IssueOutcome{Certificate: updated, Action: CertificateUpgraded}, nil
}

// IssueOrUpgrade 独立调用入口：加锁、单独事务、提交后发布证书存档
func (s *CertificateService) IssueOrUpgrade(ctx context.Context, studentID uint, courseID, examID string, score int) (outcome *IssueOutcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "CertificateService.IssueOrUpgrade",
		attribute.Int("student.id", int(studentID)),
		attribute.String("course.id", courseID))
	defer func() { tracing.EndSpan(span, err) }()

	in, err := s.PrepareIssue(ctx, studentID, courseID, examID, score)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, LockKey(studentID, courseID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = s.IssueOrUpgradeTx(ctx, tx, in)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.AfterCommit(ctx, outcome)
	return outcome, nil
}

// AfterCommit 记录指标与日志，并尽力发布证书存档；发布失败不影响已提交的结果
func (s *CertificateService) AfterCommit(ctx context.Context, outcome *IssueOutcome) {
	if outcome == nil || outcome.Certificate == nil {
		return
	}
	cert := outcome.Certificate
	monitoring.Certificates.WithLabelValues(string(outcome.Action)).Inc()
	logger.Log.Info("Certificate "+string(outcome.Action),
		zap.String("certificate_id", cert.CertificateID),
		zap.Uint("student_id", cert.StudentID),
		zap.String("course_id", cert.CourseID),
		zap.Int("exam_score", cert.ExamScore))

	if outcome.Action == CertificateUnchanged || s.Archive == nil || !s.Policy.Get().ArchiveCertificates {
		return
	}
	if _, err := s.Archive.Publish(ctx, cert); err != nil {
		logger.Log.Warn("Failed to publish certificate archive",
			zap.String("certificate_id", cert.CertificateID), zap.Error(err))
	}
}

func (s *CertificateService) GetCertificate(ctx context.Context, certificateID string) (*model.Certificate, error) {
	cert, err := s.Repo.FindByCertificateID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, util.ErrCertificateNotFound
	}
	return cert, nil
}

func (s *CertificateService) ListForStudent(ctx context.Context, studentID uint) ([]model.Certificate, error) {
	return s.Repo.ListByStudent(ctx, studentID)
}

// RevokeCertificate 管理员撤销证书；撤销后学生重新具备考试资格
func (s *CertificateService) RevokeCertificate(ctx context.Context, certificateID string, adminID uint) error {
	cert, err := s.GetCertificate(ctx, certificateID)
	if err != nil {
		return err
	}

	unlock, err := s.Locker.Lock(ctx, LockKey(cert.StudentID, cert.CourseID))
	if err != nil {
		return err
	}
	defer unlock()

	n, err := s.Repo.DeleteByCertificateID(ctx, certificateID)
	if err != nil {
		return err
	}
	if n == 0 {
		return util.ErrCertificateNotFound
	}

	monitoring.Certificates.WithLabelValues("revoked").Inc()
	logger.Log.Info("Certificate revoked",
		zap.String("certificate_id", certificateID),
		zap.Uint("student_id", cert.StudentID),
		zap.String("course_id", cert.CourseID),
		zap.Uint("admin_id", adminID))

	if s.Archive != nil {
		if err := s.Archive.Remove(ctx, certificateID); err != nil {
			logger.Log.Warn("Failed to remove certificate archive",
				zap.String("certificate_id", certificateID), zap.Error(err))
		}
	}
	return nil
}
