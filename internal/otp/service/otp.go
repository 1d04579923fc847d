package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"appointease/internal/events"
	otperrors "appointease/internal/otp/errors"
	"appointease/internal/otp/repository"
	"appointease/pkg/clock"
	"appointease/pkg/config"
	apperrors "appointease/pkg/errors"
	"appointease/pkg/logger"
	"appointease/pkg/metrics"
	"appointease/pkg/model"
	"appointease/pkg/sanitizer"
	"appointease/pkg/validation"

	"golang.org/x/crypto/bcrypt"
)

// DemoCode is issued instead of a random code in demo mode.
const DemoCode = "123456"

type OtpService interface {
	Issue(ctx context.Context, req *model.OtpIssueRequest) (*model.OtpIssueResponse, error)
	// Verify fails closed: any problem, including storage errors, is a mismatch.
	Verify(ctx context.Context, req *model.OtpVerifyRequest) bool
}

type otpService struct {
	repo        repository.ChallengeRepository
	publisher   events.Publisher
	validator   *validation.Validator
	clock       clock.Clock
	metrics     metrics.Recorder
	log         *logger.Logger
	length      int
	ttl         time.Duration
	maxAttempts int
	timeout     time.Duration
	hashCost    int
	demo        bool
}

func NewOtpService(
	repo repository.ChallengeRepository,
	publisher events.Publisher,
	cfg *config.Config,
	clk clock.Clock,
	rec metrics.Recorder,
) OtpService {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &otpService{
		repo:        repo,
		publisher:   publisher,
		validator:   validation.New(),
		clock:       clk,
		metrics:     rec,
		log:         cfg.Log,
		length:      cfg.OTPLength,
		ttl:         cfg.OTPTTL,
		maxAttempts: cfg.OTPMaxAttempts,
		timeout:     cfg.OTPTimeout,
		hashCost:    cfg.OTPHashCost,
		demo:        cfg.OTPDemoMode,
	}
}

func (s *otpService) Issue(ctx context.Context, req *model.OtpIssueRequest) (*model.OtpIssueResponse, error) {
	req.Email = sanitizer.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, verrs.AppError("Invalid verification request")
		}
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	code := DemoCode
	if !s.demo {
		var err error
		if code, err = generateCode(s.length); err != nil {
			s.metrics.RecordOTP("issue", "error")
			return nil, apperrors.Internal("Failed to generate verification code", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		s.metrics.RecordOTP("issue", "error")
		return nil, apperrors.Internal("Failed to generate verification code", err)
	}

	// millisecond precision survives a BSON round trip, Consume matches on it
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	challenge := &model.OtpChallenge{
		Email:     req.Email,
		CodeHash:  hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Put(ctx, challenge); err != nil {
		s.metrics.RecordOTP("issue", "error")
		s.log.Error("Failed to store verification code", "email", req.Email, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Timeout("Verification code could not be issued in time")
		}
		return nil, apperrors.Internal("Failed to issue verification code", err)
	}

	s.publisher.Publish(ctx, model.Event{
		Type:       model.EventOtpIssued,
		OccurredAt: now,
		Email:      req.Email,
		Code:       code,
		ExpiresAt:  challenge.ExpiresAt,
	})
	s.metrics.RecordOTP("issue", "ok")
	s.log.Info("Verification code issued", "email", req.Email, "expires_at", challenge.ExpiresAt)

	resp := &model.OtpIssueResponse{
		Success:   true,
		Message:   "Verification code sent",
		ExpiresAt: challenge.ExpiresAt,
	}
	if s.demo {
		resp.Code = code
	}
	return resp, nil
}

func (s *otpService) Verify(ctx context.Context, req *model.OtpVerifyRequest) bool {
	ok, reason := s.verify(ctx, req)
	if ok {
		s.metrics.RecordOTP("verify", "ok")
		s.log.Info("Verification code accepted", "email", req.Email)
		return true
	}
	s.metrics.RecordOTP("verify", reason)
	s.log.Warn("Verification code rejected", "email", req.Email, "reason", reason)
	return false
}

func (s *otpService) verify(ctx context.Context, req *model.OtpVerifyRequest) (bool, string) {
	req.Email = sanitizer.NormalizeEmail(req.Email)
	req.Code = sanitizer.NormalizeToken(req.Code)
	if err := s.validator.Struct(req); err != nil {
		return false, "invalid"
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	challenge, err := s.repo.IncrementAttempts(ctx, req.Email)
	if err != nil {
		if errors.Is(err, otperrors.ErrNotFound) {
			return false, "unknown"
		}
		s.log.Error("Failed to load verification code", "email", req.Email, "error", err)
		return false, "error"
	}

	if challenge.Expired(s.clock.Now()) {
		if err := s.repo.Delete(ctx, req.Email); err != nil {
			s.log.Warn("Failed to delete expired verification code", "email", req.Email, "error", err)
		}
		return false, "expired"
	}
	if challenge.Attempts > s.maxAttempts {
		return false, "exhausted"
	}
	if bcrypt.CompareHashAndPassword(challenge.CodeHash, []byte(req.Code)) != nil {
		return false, "mismatch"
	}

	consumed, err := s.repo.Consume(ctx, req.Email, challenge.IssuedAt)
	if err != nil {
		s.log.Error("Failed to consume verification code", "email", req.Email, "error", err)
		return false, "error"
	}
	if !consumed {
		return false, "used"
	}
	return true, ""
}

// generateCode returns a zero-padded random decimal code of length digits.
func generateCode(length int) (string, error) {
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
