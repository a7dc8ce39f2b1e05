package service

import (
	"context"
	"errors"
	"fmt"

	"gw-lending/internal/storages"

	"golang.org/x/crypto/bcrypt"
)

// RegisterReviewer регистрирует оператора проверки квитанций
func (s *LendingService) RegisterReviewer(ctx context.Context, username, email, password string) (*storages.Reviewer, error) {
	// Проверяем, не заняты ли имя и email
	if existing, err := s.storage.GetReviewerByUsername(ctx, username); err == nil && existing != nil {
		return nil, fmt.Errorf("username %s: %w", username, ErrReviewerExists)
	}
	if existing, err := s.storage.GetReviewerByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("email %s: %w", email, ErrReviewerExists)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Errorf("Failed to hash password: %v", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	reviewer := &storages.Reviewer{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}
	if err := s.storage.CreateReviewer(ctx, reviewer); err != nil {
		if errors.Is(err, storages.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", username, ErrReviewerExists)
		}
		return nil, fmt.Errorf("failed to create reviewer: %w", err)
	}

	s.logger.Infof("Reviewer registered successfully: %s", username)
	return reviewer, nil
}

// AuthenticateReviewer проверяет имя и пароль оператора
func (s *LendingService) AuthenticateReviewer(ctx context.Context, username, password string) (*storages.Reviewer, error) {
	reviewer, err := s.storage.GetReviewerByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(reviewer.PasswordHash), []byte(password)); err != nil {
		s.logger.Warnf("Failed authentication attempt for reviewer: %s", username)
		return nil, ErrInvalidCredentials
	}

	s.logger.Infof("Reviewer authenticated successfully: %s", username)
	return reviewer, nil
}

// EnsureReviewer создает первого проверяющего при старте. Если имя уже
// занято, ничего не меняет: пароль существующей записи не перезаписывается.
func (s *LendingService) EnsureReviewer(ctx context.Context, username, email, password string) (bool, error) {
	if _, err := s.storage.GetReviewerByUsername(ctx, username); err == nil {
		return false, nil
	}
	if _, err := s.RegisterReviewer(ctx, username, email, password); err != nil {
		if errors.Is(err, ErrReviewerExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
