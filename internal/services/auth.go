package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/envutil"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/repos"
	"github.com/yungbote/chatbridge-backend/internal/requestdata"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	Register(ctx context.Context, user *types.User) (*TokenPair, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context) (*TokenPair, error)
	Logout(ctx context.Context) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	AccessTTL() time.Duration
}

type authService struct {
	db         *gorm.DB
	log        *logger.Logger
	users      repos.UserRepo
	tokens     repos.UserTokenRepo
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, tokens repos.UserTokenRepo) (AuthService, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	return &authService{
		db:         db,
		log:        baseLog.With("service", "AuthService"),
		users:      users,
		tokens:     tokens,
		jwtSecret:  []byte(secret),
		accessTTL:  time.Duration(envutil.Int("JWT_ACCESS_TTL_MINUTES", 60)) * time.Minute,
		refreshTTL: time.Duration(envutil.Int("JWT_REFRESH_TTL_HOURS", 24*7)) * time.Hour,
	}, nil
}

func (s *authService) AccessTTL() time.Duration { return s.accessTTL }

func (s *authService) Register(ctx context.Context, user *types.User) (*TokenPair, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.Password == "" {
		return nil, apierr.InvalidRequest(fmt.Errorf("email and password are required"))
	}
	exists, err := s.users.EmailExists(ctx, nil, user.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierr.New(http.StatusConflict, "email_taken", fmt.Errorf("email %s is already registered", user.Email))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user.Password = string(hashed)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.users.Create(ctx, tx, []*types.User{user}); err != nil {
			return err
		}
		var issueErr error
		pair, issueErr = s.issueTokens(ctx, tx, user.ID)
		return issueErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := s.users.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("invalid credentials"))
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("invalid credentials"))
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rotate: one active token pair per user.
		if err := s.tokens.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{user.ID}); err != nil {
			return err
		}
		var issueErr error
		pair, issueErr = s.issueTokens(ctx, tx, user.ID)
		return issueErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *authService) Refresh(ctx context.Context) (*TokenPair, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.RefreshToken == "" {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("missing refresh token"))
	}
	rows, err := s.tokens.GetByRefreshTokens(ctx, nil, []string{rd.RefreshToken})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("invalid refresh token"))
	}
	row := rows[0]
	if _, err := s.parseToken(rd.RefreshToken); err != nil {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("expired refresh token"))
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tokens.FullDeleteByIDs(ctx, tx, []uuid.UUID{row.ID}); err != nil {
			return err
		}
		var issueErr error
		pair, issueErr = s.issueTokens(ctx, tx, row.UserID)
		return issueErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *authService) Logout(ctx context.Context) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
	}
	return s.tokens.FullDeleteByUserIDs(ctx, nil, []uuid.UUID{rd.UserID})
}

// SetContextFromToken validates an access token and installs the
// principal on the context.
func (s *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return ctx, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("invalid token"))
	}
	rows, err := s.tokens.GetByAccessTokens(ctx, nil, []string{tokenString})
	if err != nil {
		return ctx, err
	}
	if len(rows) == 0 {
		return ctx, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("token revoked"))
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ctx, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("malformed token subject"))
	}
	rd := &requestdata.RequestData{
		TokenString:  tokenString,
		RefreshToken: rows[0].RefreshToken,
		UserID:       userID,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (s *authService) issueTokens(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*TokenPair, error) {
	access, err := s.signToken(userID, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(userID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	row := &types.UserToken{
		ID:           uuid.New(),
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().UTC().Add(s.accessTTL),
	}
	if _, err := s.tokens.Create(ctx, tx, []*types.UserToken{row}); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *authService) signToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := JWTClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *authService) parseToken(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
