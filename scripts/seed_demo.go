// 初始化演示数据：课程、导师、教师/管理员/学生账号、课程进度以及一份已审核通过的结业考试
//
// 用法: go run scripts/seed_demo.go [-file scripts/demo_seed.yaml]
//
// 运行结束后打印各账号的 JWT，可直接用于调用接口。

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/database"
	"learnhub_backend/pkg/logger"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type seedAccount struct {
	Name     string  `yaml:"name"`
	Email    string  `yaml:"email"`
	Password string  `yaml:"password"`
	Progress float64 `yaml:"progress"`
}

type seedQuestion struct {
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
	Correct []int    `yaml:"correct"`
}

type seedFile struct {
	Course struct {
		ID      string   `yaml:"id"`
		Title   string   `yaml:"title"`
		Mentors []string `yaml:"mentors"`
	} `yaml:"course"`
	Teacher  seedAccount   `yaml:"teacher"`
	Admin    seedAccount   `yaml:"admin"`
	Students []seedAccount `yaml:"students"`
	Exam     struct {
		Title               string         `yaml:"title"`
		Description         string         `yaml:"description"`
		Duration            int            `yaml:"duration"`
		PassingScore        int            `yaml:"passing_score"`
		ActivationThreshold int            `yaml:"activation_threshold"`
		Questions           []seedQuestion `yaml:"questions"`
	} `yaml:"exam"`
}

func main() {
	file := flag.String("file", "scripts/demo_seed.yaml", "演示数据文件")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("无法读取演示数据: %v", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		log.Fatalf("解析演示数据失败: %v", err)
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db, repository.NewDBSequencer(db))
	progress := repository.NewProgressRepository(db)

	if err := seedCourse(db, &seed); err != nil {
		log.Fatalf("写入课程失败: %v", err)
	}

	teacher := ensureUser(ctx, users, seed.Teacher, model.Teacher)
	admin := ensureUser(ctx, users, seed.Admin, model.Admin)
	printToken(cfg, teacher)
	printToken(cfg, admin)

	for _, acc := range seed.Students {
		student := ensureUser(ctx, users, acc, model.Student)
		code, err := users.AssignStudentCode(ctx, student.ID)
		if err != nil {
			log.Fatalf("分配学号失败: %v", err)
		}
		if err := progress.Upsert(ctx, student.ID, seed.Course.ID, acc.Progress); err != nil {
			log.Fatalf("写入课程进度失败: %v", err)
		}
		log.Printf("学生 %s 学号 %s 进度 %.1f%%", student.Email, code, acc.Progress)
		printToken(cfg, student)
	}

	seedExam(ctx, db, &seed, teacher.ID, admin.ID)
	log.Println("完成！")
}

func seedCourse(db *gorm.DB, seed *seedFile) error {
	course := model.Course{Title: seed.Course.Title}
	course.ID = seed.Course.ID
	if err := db.Where("id = ?", course.ID).FirstOrCreate(&course).Error; err != nil {
		return err
	}

	var count int64
	db.Model(&model.CourseMentor{}).Where("course_id = ?", course.ID).Count(&count)
	if count > 0 {
		return nil
	}
	for i, name := range seed.Course.Mentors {
		mentor := model.CourseMentor{CourseID: course.ID, Name: name, Position: i}
		if err := db.Create(&mentor).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureUser(ctx context.Context, users *repository.UserRepository, acc seedAccount, role model.UserRole) *model.User {
	existing, err := users.FindByEmail(ctx, acc.Email)
	if err != nil {
		log.Fatalf("查询用户 %s 失败: %v", acc.Email, err)
	}
	if existing != nil {
		return existing
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("密码加密失败: %v", err)
	}
	user := &model.User{Name: acc.Name, Email: acc.Email, Password: string(hashed), Role: role}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("创建用户 %s 失败: %v", acc.Email, err)
	}
	return user
}

func seedExam(ctx context.Context, db *gorm.DB, seed *seedFile, teacherID, adminID uint) {
	exams := service.NewExamService(repository.NewExamRepository(db), repository.NewExamAttemptRepository(db), repository.NewCourseRepository(db))

	questions := make([]service.ExamQuestionReq, 0, len(seed.Exam.Questions))
	for _, q := range seed.Exam.Questions {
		raw, _ := json.Marshal(q.Correct)
		questions = append(questions, service.ExamQuestionReq{Text: q.Text, Options: q.Options, CorrectAnswers: raw})
	}

	passing := seed.Exam.PassingScore
	threshold := seed.Exam.ActivationThreshold
	exam, err := exams.CreateExam(ctx, teacherID, service.CreateExamReq{
		CourseID:            seed.Course.ID,
		Title:               seed.Exam.Title,
		Description:         seed.Exam.Description,
		Duration:            seed.Exam.Duration,
		PassingScore:        &passing,
		ActivationThreshold: &threshold,
		Status:              string(model.ExamPublished),
		Questions:           questions,
	})
	if errors.Is(err, util.ErrDuplicateExam) {
		log.Println("课程已有有效考试，跳过")
		return
	}
	if err != nil {
		log.Fatalf("创建考试失败: %v", err)
	}

	if _, err := exams.ApproveExam(ctx, exam.ID, adminID); err != nil {
		log.Fatalf("审核考试失败: %v", err)
	}
	log.Printf("考试 %s 已创建并审核通过", exam.ID)
}

func printToken(cfg *config.Config, user *model.User) {
	token, err := util.GenerateJWT(user, cfg.JWT.Secret, cfg.JWT.ExpireTime)
	if err != nil {
		log.Fatalf("生成 JWT 失败: %v", err)
	}
	log.Printf("[%s] %s token: %s", user.Role, user.Email, token)
}
