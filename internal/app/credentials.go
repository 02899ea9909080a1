package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reconbook/api/internal/search"
	"reconbook/api/internal/store"
	"reconbook/api/internal/util"
)

// CredentialInput is used for both create and update; nil fields are absent.
type CredentialInput struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Host     *string `json:"host"`
	Service  *string `json:"service"`
	Notes    *string `json:"notes"`
	Content  *string `json:"content"`
}

func (s *Service) ListCredentials(ctx context.Context) ([]store.Credential, error) {
	credentials, err := s.records.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	for i := range credentials {
		if credentials[i], err = s.openCredential(credentials[i]); err != nil {
			return nil, err
		}
	}
	return credentials, nil
}

func (s *Service) GetCredential(ctx context.Context, id string) (store.Credential, error) {
	credential, err := s.records.GetCredential(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return store.Credential{}, notFoundError("Credential not found")
	}
	if err != nil {
		return store.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return s.openCredential(credential)
}

// SaveNote backs the single free-text credentials pad: it rewrites the
// content of the oldest credential, or creates one if there is none.
func (s *Service) SaveNote(ctx context.Context, content string) (store.Credential, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Credential{}, validationError("Content is required")
	}

	now := s.timestamp()
	existing, err := s.records.FirstCredential(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		credential := store.Credential{ID: util.NewID("cred"), Content: content, CreatedAt: now, UpdatedAt: now}
		return s.insertCredential(ctx, credential)
	case err != nil:
		return store.Credential{}, fmt.Errorf("load first credential: %w", err)
	}

	credential, err := s.openCredential(existing)
	if err != nil {
		return store.Credential{}, err
	}
	credential.Content = content
	credential.UpdatedAt = now
	return s.updateCredential(ctx, credential)
}

// CreateCredential stores a structured credential. Blank content is derived
// as username:password@host:service.
func (s *Service) CreateCredential(ctx context.Context, input CredentialInput) (store.Credential, error) {
	now := s.timestamp()
	credential := store.Credential{
		ID:        util.NewID("cred"),
		Username:  trimmed(input.Username),
		Password:  trimmed(input.Password),
		Host:      trimmed(input.Host),
		Service:   trimmed(input.Service),
		Notes:     trimmed(input.Notes),
		Content:   trimmed(input.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if credential.Content == "" {
		if credential.Username == "" && credential.Password == "" && credential.Host == "" && credential.Service == "" {
			return store.Credential{}, validationError("Content is required")
		}
		credential.Content = fmt.Sprintf("%s:%s@%s:%s", credential.Username, credential.Password, credential.Host, credential.Service)
	}
	return s.insertCredential(ctx, credential)
}

// UpdateCredential applies only the supplied fields.
func (s *Service) UpdateCredential(ctx context.Context, id string, input CredentialInput) (store.Credential, error) {
	credential, err := s.GetCredential(ctx, id)
	if err != nil {
		return store.Credential{}, err
	}
	if input.Content != nil && strings.TrimSpace(*input.Content) == "" {
		return store.Credential{}, validationError("Content is required")
	}
	applyTrimmed(&credential.Username, input.Username)
	applyTrimmed(&credential.Password, input.Password)
	applyTrimmed(&credential.Host, input.Host)
	applyTrimmed(&credential.Service, input.Service)
	applyTrimmed(&credential.Notes, input.Notes)
	applyTrimmed(&credential.Content, input.Content)
	credential.UpdatedAt = s.timestamp()
	return s.updateCredential(ctx, credential)
}

func (s *Service) DeleteCredential(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.records.DeleteCredential(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("Credential not found")
	}
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.search.DeleteCredential(id)
	return nil
}

func (s *Service) insertCredential(ctx context.Context, credential store.Credential) (store.Credential, error) {
	sealed, err := s.sealCredential(credential)
	if err != nil {
		return store.Credential{}, err
	}
	if err := s.records.InsertCredential(ctx, sealed); err != nil {
		return store.Credential{}, fmt.Errorf("insert credential: %w", err)
	}
	s.search.IndexCredential(search.CredentialRecordFrom(credential))
	return credential, nil
}

func (s *Service) updateCredential(ctx context.Context, credential store.Credential) (store.Credential, error) {
	sealed, err := s.sealCredential(credential)
	if err != nil {
		return store.Credential{}, err
	}
	err = s.records.UpdateCredential(ctx, sealed)
	if errors.Is(err, store.ErrNotFound) {
		return store.Credential{}, notFoundError("Credential not found")
	}
	if err != nil {
		return store.Credential{}, fmt.Errorf("update credential: %w", err)
	}
	s.search.IndexCredential(search.CredentialRecordFrom(credential))
	return credential, nil
}

func (s *Service) sealCredential(credential store.Credential) (store.Credential, error) {
	var err error
	if credential.Password, err = s.vault.Seal(credential.Password); err != nil {
		return store.Credential{}, fmt.Errorf("seal password: %w", err)
	}
	if credential.Content, err = s.vault.Seal(credential.Content); err != nil {
		return store.Credential{}, fmt.Errorf("seal content: %w", err)
	}
	return credential, nil
}

func (s *Service) openCredential(credential store.Credential) (store.Credential, error) {
	var err error
	if credential.Password, err = s.vault.Open(credential.Password); err != nil {
		return store.Credential{}, fmt.Errorf("open password of %s: %w", credential.ID, err)
	}
	if credential.Content, err = s.vault.Open(credential.Content); err != nil {
		return store.Credential{}, fmt.Errorf("open content of %s: %w", credential.ID, err)
	}
	return credential, nil
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func applyTrimmed(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}
