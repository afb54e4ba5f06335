package service

import (
	"context"
	"encoding/json"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/lock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 200

type AttemptService struct {
	DB          *gorm.DB
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.ExamAttemptRepository
	ResultRepo  *repository.ExamResultRepository
	CertRepo    *repository.CertificateRepository
	Certs       *CertificateService
	Locker      lock.Locker
	Policy      *PolicyHolder
	Now         func() time.Time
	IntN        func(int) int
	// SweepBatch 过期巡检每页行数
	SweepBatch int
}

func NewAttemptService(
	db *gorm.DB,
	examRepo *repository.ExamRepository,
	attemptRepo *repository.ExamAttemptRepository,
	resultRepo *repository.ExamResultRepository,
	certRepo *repository.CertificateRepository,
	certs *CertificateService,
	locker lock.Locker,
	policy *PolicyHolder,
) *AttemptService {
	return &AttemptService{
		DB:          db,
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		ResultRepo:  resultRepo,
		CertRepo:    certRepo,
		Certs:       certs,
		Locker:      locker,
		Policy:      policy,
		Now:         time.Now,
		IntN:        rand.IntN,
		SweepBatch:  sweepBatchSize,
	}
}

// PresentedQuestion 发给学生的题目，不含正确答案
type PresentedQuestion struct {
	Position int      `json:"position"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
}

type AttemptHandle struct {
	AttemptID           string              `json:"attemptId"`
	ExamID              string              `json:"examId"`
	CourseID            string              `json:"courseId"`
	PresentationOrder   []int               `json:"presentationOrder"`
	StartTime           time.Time           `json:"startTime"`
	ExpiresAt           *time.Time          `json:"expiresAt,omitempty"`
	Resumed             bool                `json:"resumed"`
	Title               string              `json:"title"`
	Duration            int                 `json:"duration"`
	PassingScore        int                 `json:"passingScore"`
	ActivationThreshold int                 `json:"activationThreshold"`
	QuestionCount       int                 `json:"questionCount"`
	Questions           []PresentedQuestion `json:"questions"`
}

type GradeResult struct {
	AttemptID         string             `json:"attemptId"`
	Message           string             `json:"message"`
	Score             int                `json:"score"`
	Status            model.ResultStatus `json:"status"`
	PassingScore      int                `json:"passingScore"`
	CorrectCount      int                `json:"correctCount"`
	TotalQuestions    int                `json:"totalQuestions"`
	TimeTakenSeconds  int                `json:"timeTakenSeconds"`
	CertificateID     string             `json:"certificateId,omitempty"`
	CertificateAction CertificateAction  `json:"certificateAction,omitempty"`
	CertificateScore  *int               `json:"certificateScore,omitempty"`
}

func (s *AttemptService) expired(attempt *model.ExamAttempt, exam *model.Exam, now time.Time) bool {
	p := s.Policy.Get()
	return p.EnforceExpiry && now.After(attempt.Deadline(exam.Duration, p.ExpiryGrace))
}

func (s *AttemptService) buildHandle(attempt *model.ExamAttempt, exam *model.Exam, resumed bool) *AttemptHandle {
	h := &AttemptHandle{
		AttemptID:           attempt.ID,
		ExamID:              exam.ID,
		CourseID:            exam.CourseID,
		PresentationOrder:   attempt.QuestionOrder,
		StartTime:           attempt.StartTime,
		Resumed:             resumed,
		Title:               exam.Title,
		Duration:            exam.Duration,
		PassingScore:        exam.PassingScore,
		ActivationThreshold: exam.ActivationThreshold,
		QuestionCount:       exam.QuestionCount(),
		Questions:           make([]PresentedQuestion, 0, len(attempt.QuestionOrder)),
	}
	if p := s.Policy.Get(); p.EnforceExpiry {
		deadline := attempt.Deadline(exam.Duration, p.ExpiryGrace)
		h.ExpiresAt = &deadline
	}
	for pos, idx := range attempt.QuestionOrder {
		if idx < 0 || idx >= len(exam.Questions) {
			continue
		}
		q := exam.Questions[idx]
		h.Questions = append(h.Questions, PresentedQuestion{Position: pos, Text: q.Text, Options: q.Options})
	}
	return h
}

// StartAttempt 开始或恢复一次考试。资格检查与开始考试是两次请求，这里重新校验证书与通过记录
func (s *AttemptService) StartAttempt(ctx context.Context, studentID uint, examID string) (handle *AttemptHandle, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.StartAttempt",
		attribute.Int("student.id", int(studentID)),
		attribute.String("exam.id", examID))
	defer func() { tracing.EndSpan(span, err) }()

	exam, err := s.ExamRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}

	unlock, err := s.Locker.Lock(ctx, LockKey(studentID, exam.CourseID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 证书优先于考试状态判断：已归档/驳回的考试上也要清理残留尝试并返回 403
	cert, err := s.CertRepo.FindByStudentCourse(ctx, studentID, exam.CourseID)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		if _, err := s.AttemptRepo.DeleteIncompleteByExam(ctx, studentID, exam.ID); err != nil {
			return nil, err
		}
		return nil, withDetails(util.ErrAlreadyCertified, map[string]interface{}{
			"certificateId": cert.CertificateID,
			"score":         cert.ExamScore,
		})
	}

	if !exam.Selectable() || exam.QuestionCount() == 0 {
		return nil, util.ErrExamNotAvailable
	}

	pass, err := s.ResultRepo.FindPass(ctx, studentID, exam.ID)
	if err != nil {
		return nil, err
	}
	if pass != nil {
		return nil, withDetails(util.ErrAlreadyPassed, map[string]interface{}{"score": pass.Score})
	}

	now := s.Now()
	active, err := s.AttemptRepo.FindActive(ctx, studentID, exam.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		// 题目被替换过的旧尝试不能继续，作废后重新生成
		if !s.expired(active, exam, now) && ValidateOrder(active.QuestionOrder, exam.QuestionCount()) == nil {
			return s.resume(active, exam), nil
		}
		if err := s.expire(ctx, active.ID, studentID, exam.ID, now); err != nil {
			return nil, err
		}
	}

	key := model.AttemptActiveKey(studentID, exam.ID)
	attempt := &model.ExamAttempt{
		ExamID:        exam.ID,
		CourseID:      exam.CourseID,
		StudentID:     studentID,
		ActiveKey:     &key,
		QuestionOrder: ShuffledOrder(exam.QuestionCount(), s.IntN),
		StartTime:     now,
		Status:        model.AttemptInProgress,
	}
	if err := s.AttemptRepo.Create(ctx, attempt); err != nil {
		if !repository.IsDuplicateKey(err) {
			return nil, err
		}
		// 另一实例抢先创建，恢复它的尝试
		winner, findErr := s.AttemptRepo.FindActive(ctx, studentID, exam.ID)
		if findErr != nil {
			return nil, findErr
		}
		if winner == nil {
			return nil, err
		}
		if err := ValidateOrder(winner.QuestionOrder, exam.QuestionCount()); err != nil {
			return nil, err
		}
		return s.resume(winner, exam), nil
	}

	monitoring.AttemptsStarted.WithLabelValues("new").Inc()
	logger.Log.Info("Exam attempt created",
		zap.String("attempt_id", attempt.ID),
		zap.String("exam_id", exam.ID),
		zap.Uint("student_id", studentID))
	return s.buildHandle(attempt, exam, false), nil
}

func (s *AttemptService) resume(attempt *model.ExamAttempt, exam *model.Exam) *AttemptHandle {
	monitoring.AttemptsStarted.WithLabelValues("resumed").Inc()
	logger.Log.Info("Exam attempt resumed",
		zap.String("attempt_id", attempt.ID),
		zap.String("exam_id", exam.ID),
		zap.Uint("student_id", attempt.StudentID))
	return s.buildHandle(attempt, exam, true)
}

func (s *AttemptService) expire(ctx context.Context, attemptID string, studentID uint, examID string, now time.Time) error {
	ok, err := s.AttemptRepo.MarkExpired(ctx, attemptID, now)
	if err != nil {
		return err
	}
	if ok {
		monitoring.AttemptsExpired.Inc()
		logger.Log.Info("Exam attempt expired",
			zap.String("attempt_id", attemptID),
			zap.String("exam_id", examID),
			zap.Uint("student_id", studentID))
	}
	return nil
}

// SubmitAttempt 交卷评分。标记完成、写评分记录、签发证书在同一事务中，任一步失败全部回滚
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID string, studentID uint, answers []json.RawMessage) (result *GradeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.SubmitAttempt",
		attribute.Int("student.id", int(studentID)),
		attribute.String("attempt.id", attemptID))
	defer func() { tracing.EndSpan(span, err) }()

	attempt, err := s.AttemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, s.missingAttempt(ctx, s.CertRepo, studentID)
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrNotAttemptOwner
	}
	if attempt.Completed {
		return nil, util.ErrAttemptAlreadySubmitted
	}
	if attempt.Status == model.AttemptExpired {
		return nil, util.ErrAttemptExpired
	}

	exam, err := s.ExamRepo.FindByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}

	now := s.Now()
	if s.expired(attempt, exam, now) {
		if err := s.expire(ctx, attempt.ID, studentID, exam.ID, now); err != nil {
			return nil, err
		}
		return nil, withDetails(util.ErrAttemptExpired, map[string]interface{}{
			"deadline": attempt.Deadline(exam.Duration, s.Policy.Get().ExpiryGrace),
		})
	}

	grade, err := GradeAnswers(exam.Questions, attempt.QuestionOrder, answers, exam.PassingScore)
	if err != nil {
		// 不按错位的题目评分；作废该尝试，学生重新开始
		if expErr := s.expire(ctx, attempt.ID, studentID, exam.ID, now); expErr != nil {
			return nil, expErr
		}
		logger.Log.Warn("Exam attempt no longer matches exam questions",
			zap.String("attempt_id", attempt.ID),
			zap.String("exam_id", exam.ID),
			zap.Error(err))
		return nil, err
	}

	var issue IssueInput
	if grade.Status == model.ResultPass {
		issue, err = s.Certs.PrepareIssue(ctx, studentID, exam.CourseID, exam.ID, grade.Score)
		if err != nil {
			return nil, err
		}
	}

	unlock, err := s.Locker.Lock(ctx, LockKey(studentID, exam.CourseID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	endTime := now
	attempt.EndTime = &endTime
	attempt.Answers = model.RawAnswers(answers)
	attempt.Score = grade.Score
	attempt.TimeTakenSeconds = int(now.Sub(attempt.StartTime).Seconds())
	if attempt.TimeTakenSeconds < 0 {
		attempt.TimeTakenSeconds = 0
	}

	var outcome *IssueOutcome
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := s.AttemptRepo.WithTx(tx)
		ok, err := attempts.CompleteSubmission(ctx, attempt)
		if err != nil {
			return err
		}
		if !ok {
			return s.submitConflict(ctx, tx, attempts, attempt.ID, studentID)
		}

		if err := s.ResultRepo.WithTx(tx).Create(ctx, &model.ExamResult{
			StudentID: studentID,
			ExamID:    exam.ID,
			CourseID:  exam.CourseID,
			AttemptID: attempt.ID,
			Score:     grade.Score,
			Status:    grade.Status,
		}); err != nil {
			if repository.IsDuplicateKey(err) {
				return util.ErrAttemptAlreadySubmitted
			}
			return err
		}

		if grade.Status == model.ResultPass {
			outcome, err = s.Certs.IssueOrUpgradeTx(ctx, tx, issue)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.Submissions.WithLabelValues(string(grade.Status)).Inc()
	monitoring.SubmissionScore.Observe(float64(grade.Score))
	logger.Log.Info("Exam attempt graded",
		zap.String("attempt_id", attempt.ID),
		zap.String("exam_id", exam.ID),
		zap.Uint("student_id", studentID),
		zap.Int("score", grade.Score),
		zap.String("status", string(grade.Status)))
	s.Certs.AfterCommit(ctx, outcome)

	result = &GradeResult{
		AttemptID:        attempt.ID,
		Score:            grade.Score,
		Status:           grade.Status,
		PassingScore:     exam.PassingScore,
		CorrectCount:     grade.Correct,
		TotalQuestions:   grade.Total,
		TimeTakenSeconds: attempt.TimeTakenSeconds,
	}
	if grade.Status == model.ResultPass {
		result.Message = "Congratulations! You passed the exam."
	} else {
		result.Message = "You did not reach the passing score. Keep studying and try again."
	}
	if outcome != nil && outcome.Certificate != nil {
		certScore := outcome.Certificate.ExamScore
		result.CertificateID = outcome.Certificate.CertificateID
		result.CertificateAction = outcome.Action
		result.CertificateScore = &certScore
	}
	return result, nil
}

// missingAttempt 尝试不存在：已获证书的学生拿到的是被清理掉的旧会话
func (s *AttemptService) missingAttempt(ctx context.Context, certs *repository.CertificateRepository, studentID uint) error {
	certified, err := certs.ExistsForStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if certified {
		return util.ErrStaleSessionCertified
	}
	return util.ErrAttemptNotFound
}

// submitConflict 条件更新未命中时重新读取尝试，区分已交卷、已过期与已被清理
func (s *AttemptService) submitConflict(ctx context.Context, tx *gorm.DB, attempts *repository.ExamAttemptRepository, attemptID string, studentID uint) error {
	current, err := attempts.FindByID(ctx, attemptID)
	if err != nil {
		return err
	}
	switch {
	case current == nil:
		return s.missingAttempt(ctx, s.CertRepo.WithTx(tx), studentID)
	case current.Status == model.AttemptExpired:
		return util.ErrAttemptExpired
	default:
		return util.ErrAttemptAlreadySubmitted
	}
}

// ListResults 学生在某场考试下的历次评分
func (s *AttemptService) ListResults(ctx context.Context, studentID uint, examID string) ([]model.ExamResult, error) {
	return s.ResultRepo.ListByStudentExam(ctx, studentID, examID)
}

// ExpireStale 后台巡检：把超过时长与宽限的进行中尝试标记为过期
func (s *AttemptService) ExpireStale(ctx context.Context) (int, error) {
	p := s.Policy.Get()
	if !p.EnforceExpiry {
		return 0, nil
	}
	now := s.Now()
	batch := s.SweepBatch
	if batch <= 0 {
		batch = sweepBatchSize
	}
	// 考试时长至少一分钟，开始时间晚于 now - grace 的尝试不可能过期。
	// 各考试时长不同，未到期的长考试不能挡住后面已到期的尝试，所以逐页扫完
	expired := 0
	var cursor *repository.StaleAttemptRow
	for {
		rows, err := s.AttemptRepo.ListInProgressStartedBefore(ctx, now.Add(-p.ExpiryGrace), cursor, batch)
		if err != nil {
			return expired, err
		}
		for _, row := range rows {
			deadline := row.StartTime.Add(time.Duration(row.Duration)*time.Minute + p.ExpiryGrace)
			if !now.After(deadline) {
				continue
			}
			ok, err := s.AttemptRepo.MarkExpired(ctx, row.ID, now)
			if err != nil {
				return expired, err
			}
			if ok {
				expired++
				monitoring.AttemptsExpired.Inc()
			}
		}
		if len(rows) < batch {
			break
		}
		last := rows[len(rows)-1]
		cursor = &last
		if err := ctx.Err(); err != nil {
			return expired, err
		}
	}
	if expired > 0 {
		logger.Log.Info("Expired stale exam attempts", zap.Int("count", expired))
	}
	return expired, nil
}
