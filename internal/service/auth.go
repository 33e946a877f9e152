package service

import (
	"context"

	"social_messaging/internal/config"
	"social_messaging/internal/domain"
	"social_messaging/internal/repository"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/jwt"
	"social_messaging/pkg/logger"
)

// AuthService проверяет сессионный токен и возвращает личность пользователя.
// Выпуск токенов живет во внешнем сервисе авторизации; здесь только валидация.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	if tokenString == "" {
		return nil, apperrors.ErrUnauthorized
	}

	claims, err := jwt.Parse(tokenString, s.jwtCfg.Secret)
	if err != nil {
		if err == jwt.ErrTokenExpired {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.ErrUnauthorized
	}

	return user, nil
}
