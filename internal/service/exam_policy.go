package service

import (
	"learnhub_backend/internal/config"
	"sync/atomic"
	"time"
)

// ExamPolicy 考试运行时策略，来自配置文件 exam 段
type ExamPolicy struct {
	EnforceExpiry       bool
	ExpiryGrace         time.Duration
	SweepInterval       time.Duration
	DefaultMentorName   string
	LockTTL             time.Duration
	ArchiveCertificates bool
}

func PolicyFromConfig(cfg config.ExamConfig) ExamPolicy {
	p := ExamPolicy{
		EnforceExpiry:       cfg.EnforceExpiry,
		ExpiryGrace:         time.Duration(cfg.ExpiryGraceSeconds) * time.Second,
		SweepInterval:       time.Duration(cfg.SweepIntervalSecond) * time.Second,
		DefaultMentorName:   cfg.DefaultMentorName,
		LockTTL:             time.Duration(cfg.LockTTLSeconds) * time.Second,
		ArchiveCertificates: cfg.ArchiveCertificates,
	}
	if p.DefaultMentorName == "" {
		p.DefaultMentorName = "LearnHub Academy"
	}
	if p.SweepInterval <= 0 {
		p.SweepInterval = time.Minute
	}
	if p.LockTTL <= 0 {
		p.LockTTL = 15 * time.Second
	}
	return p
}

// PolicyHolder 支持配置热更新，读写无锁
type PolicyHolder struct {
	v atomic.Value
}

func NewPolicyHolder(p ExamPolicy) *PolicyHolder {
	h := &PolicyHolder{}
	h.v.Store(p)
	return h
}

func (h *PolicyHolder) Get() ExamPolicy {
	return h.v.Load().(ExamPolicy)
}

func (h *PolicyHolder) Set(p ExamPolicy) {
	h.v.Store(p)
}
