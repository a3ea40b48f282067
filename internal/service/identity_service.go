package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"

	"monositi/internal/auth"
	"monositi/internal/config"
	"monositi/internal/domain"
	"monositi/internal/logging"
	"monositi/internal/metrics"
	"monositi/internal/models"

	"github.com/rs/zerolog"
)

const (
	codeKeyPrefix    = "otp:code:"
	requestKeyPrefix = "otp:req:"
	failKeyPrefix    = "otp:fail:"

	defaultSendTimeout = 10 * time.Second
)

// Session is the result of a successful code verification.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// IdentityService resolves phone numbers to users through one-time codes and
// issues session tokens.
type IdentityService struct {
	users       domain.UserRepository
	codes       domain.CodeStore
	sender      domain.CodeSender
	tokens      *auth.TokenManager
	cfg         config.AuthConfig
	sendTimeout time.Duration
	logger      *zerolog.Logger
}

func NewIdentityService(users domain.UserRepository, codes domain.CodeStore, sender domain.CodeSender, tokens *auth.TokenManager, cfg config.AuthConfig, sendTimeout time.Duration, logger *zerolog.Logger) *IdentityService {
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = 5
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &IdentityService{
		users:       users,
		codes:       codes,
		sender:      sender,
		tokens:      tokens,
		cfg:         cfg,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// NormalizePhone strips spaces and dashes and checks the number is 10 to 15
// digits with an optional leading plus.
func NormalizePhone(raw string) (string, error) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 10 || len(digits) > 15 {
		return "", domain.Validation("phone must have 10 to 15 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", domain.Validation("phone must contain digits only")
		}
	}
	return phone, nil
}

// RequestCode stores a fresh code for phone, replacing any outstanding one,
// and then tries to deliver it. Delivery failures are logged and do not fail
// the request because the stored code stays usable.
func (s *IdentityService) RequestCode(ctx context.Context, rawPhone string) error {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return err
	}

	if s.cfg.OTPRequestLimit > 0 {
		allowed, err := s.codes.CheckRateLimit(ctx, requestKeyPrefix+phone, s.cfg.OTPRequestLimit, s.cfg.OTPRequestWindow)
		if err != nil {
			return domain.Upstream("code store unavailable", err)
		}
		if !allowed {
			metrics.IncOTP("throttled")
			return domain.RateLimited("too many code requests, try again later")
		}
	}

	code, err := generateCode(s.cfg.OTPLength)
	if err != nil {
		return domain.Upstream("failed to generate code", err)
	}

	if err := s.codes.Put(ctx, codeKeyPrefix+phone, s.digest(phone, code), s.cfg.OTPTTL); err != nil {
		return domain.Upstream("code store unavailable", err)
	}
	if err := s.codes.Delete(ctx, failKeyPrefix+phone); err != nil {
		s.logger.Warn().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("Failed to reset attempt counter")
	}
	metrics.IncOTP("issued")

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, phone, code); err != nil {
		metrics.IncOTP("delivery_failed")
		s.logger.Error().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("Failed to deliver one-time code")
	}
	return nil
}

// VerifyCode consumes the outstanding code for phone and returns a session for
// the matching user, creating a minimal tenant record on first login.
func (s *IdentityService) VerifyCode(ctx context.Context, rawPhone, code string) (*Session, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.Validation("code is required")
	}

	ok, err := s.codes.TakeIfValid(ctx, codeKeyPrefix+phone, s.digest(phone, code))
	if err != nil {
		return nil, domain.Upstream("code store unavailable", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, phone)
	}
	if err := s.codes.Delete(ctx, failKeyPrefix+phone); err != nil {
		s.logger.Warn().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("Failed to reset attempt counter")
	}
	metrics.IncOTP("verified")

	user, err := s.loadOrCreate(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.Forbidden("account is deactivated")
	}

	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, domain.Upstream("failed to issue session", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("Session issued")
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// ResolveSession validates a bearer token and returns the current user. The
// role comes from the store, not from the token.
func (s *IdentityService) ResolveSession(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, domain.Unauthenticated("missing session token")
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, domain.Unauthenticated("session expired")
		}
		return nil, domain.Unauthenticated("invalid session token")
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthenticated("session user no longer exists")
		}
		return nil, domain.StoreError(err, "user")
	}
	if !user.IsActive {
		return nil, domain.Unauthenticated("account is deactivated")
	}
	return user, nil
}

func (s *IdentityService) recordFailure(ctx context.Context, phone string) error {
	metrics.IncOTP("rejected")
	allowed, err := s.codes.CheckRateLimit(ctx, failKeyPrefix+phone, s.cfg.OTPMaxAttempts-1, s.cfg.OTPTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("Failed to count verification attempt")
		return domain.InvalidCode()
	}
	if allowed {
		return domain.InvalidCode()
	}
	if err := s.codes.Delete(ctx, codeKeyPrefix+phone); err != nil {
		s.logger.Warn().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("Failed to burn code")
	}
	s.logger.Warn().Str("phone", logging.MaskPhone(phone)).Msg("Too many verification attempts, code burned")
	return domain.RateLimited("too many attempts, request a new code")
}

func (s *IdentityService) loadOrCreate(ctx context.Context, phone string) (*models.User, error) {
	user, err := s.users.GetUserByPhone(ctx, phone)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.StoreError(err, "user")
	}

	user = &models.User{
		Phone:              phone,
		Role:               models.RoleTenant,
		VerificationStatus: models.VerificationPending,
		IsActive:           true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent first login for the same phone.
		if errors.Is(err, domain.ErrDuplicate) {
			existing, getErr := s.users.GetUserByPhone(ctx, phone)
			if getErr != nil {
				return nil, domain.StoreError(getErr, "user")
			}
			return existing, nil
		}
		return nil, domain.StoreError(err, "user")
	}
	s.logger.Info().Int64("user_id", user.ID).Str("phone", logging.MaskPhone(phone)).Msg("User created on first login")
	return user, nil
}

// digest keys the stored value to the phone so a leaked store entry does not
// reveal the code.
func (s *IdentityService) digest(phone, code string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.JWTSecret))
	mac.Write([]byte(phone + ":" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
