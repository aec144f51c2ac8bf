package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"custodia.org/internal/ids"
	"custodia.org/internal/rbac"
	"custodia.org/internal/vault"
)

const (
	maxTitleLen   = 200
	maxContentLen = 32 << 20
)

// Service coordinates permission checks, metadata, blob storage, and the
// vault engine for all asset kinds. The permission gate always runs before
// any lookup: a caller without the right token learns nothing about whether
// a record exists.
type Service struct {
	store  Store
	blobs  BlobStorage
	engine *vault.Engine
	perms  *rbac.Evaluator
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService wires the asset service. All dependencies are required.
func NewService(store Store, blobs BlobStorage, engine *vault.Engine, perms *rbac.Evaluator, opts ...Option) (*Service, error) {
	if store == nil || blobs == nil || engine == nil || perms == nil {
		return nil, errors.New("asset: store, blobs, engine, and evaluator are required")
	}
	s := &Service{
		store:  store,
		blobs:  blobs,
		engine: engine,
		perms:  perms,
		now:    time.Now,
		newID:  ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, action rbac.Action, kind rbac.Resource) error {
	if err := actor.validate(); err != nil {
		return err
	}
	if !rbac.ValidResource(kind) {
		return ErrInvalidInput
	}
	if !s.perms.HasPermission(ctx, actor.RoleID, rbac.Token(action, kind)) {
		return ErrForbidden
	}
	return nil
}

// CreateInput is the payload for a new asset.
type CreateInput struct {
	Kind        rbac.Resource
	Title       string
	Description string
	MimeType    string
	Content     []byte
}

func (in *CreateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.MimeType = strings.TrimSpace(in.MimeType)
	if in.Title == "" || len(in.Title) > maxTitleLen {
		return ErrInvalidInput
	}
	if in.MimeType == "" || strings.Contains(in.MimeType, "|") {
		return ErrInvalidInput
	}
	if len(in.Content) == 0 || len(in.Content) > maxContentLen {
		return ErrInvalidInput
	}
	return nil
}

// Create stores a new asset of the given kind. Confidential content is
// sealed before anything touches storage; plain content is stored with a
// sha256 checksum so later reads can detect corruption.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Record, error) {
	if err := s.authorize(ctx, actor, rbac.ActionCreate, in.Kind); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &Record{
		ID:          s.newID(),
		Kind:        in.Kind,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		MimeType:    in.MimeType,
		Checksum:    checksum(in.Content),
		CreatedBy:   actor.PrincipalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored := in.Content
	if rec.Confidential() {
		env, err := s.engine.Encrypt(in.Content, rec.ID, rec.MimeType, vault.DefaultKeyVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDependency, err)
		}
		rec.Nonce = env.Nonce
		rec.Tag = env.Tag
		rec.KeyVersion = env.KeyVersion
		stored = env.Ciphertext
	}

	if err := s.blobs.Put(ctx, rec.ID, stored); err != nil {
		return nil, err
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		// Orphaned blobs are harmless without their metadata row; clean up
		// opportunistically and surface the store error.
		_ = s.blobs.Delete(ctx, rec.ID)
		return nil, err
	}
	return rec, nil
}

// Fetch returns the record and its content. Confidential content is
// unsealed; a record of a different kind than requested reads as absent.
func (s *Service) Fetch(ctx context.Context, actor Actor, kind rbac.Resource, id string) (*Record, []byte, error) {
	if err := s.authorize(ctx, actor, rbac.ActionView, kind); err != nil {
		return nil, nil, err
	}
	rec, err := s.visibleRecord(ctx, kind, id)
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.blobs.Get(ctx, rec.ID)
	if err != nil {
		return nil, nil, err
	}

	content := stored
	if rec.Confidential() {
		content, err = s.engine.Decrypt(vault.Envelope{
			Ciphertext: stored,
			Nonce:      rec.Nonce,
			Tag:        rec.Tag,
			KeyVersion: rec.KeyVersion,
		}, rec.ID, rec.MimeType)
		if err != nil {
			return nil, nil, err
		}
	}
	if checksum(content) != rec.Checksum {
		return nil, nil, fmt.Errorf("%w: content checksum mismatch", ErrDependency)
	}
	return rec, content, nil
}

// Describe returns the record metadata without touching content.
func (s *Service) Describe(ctx context.Context, actor Actor, kind rbac.Resource, id string) (*Record, error) {
	if err := s.authorize(ctx, actor, rbac.ActionView, kind); err != nil {
		return nil, err
	}
	return s.visibleRecord(ctx, kind, id)
}

// UpdateInput carries the mutable fields. Nil means "leave unchanged".
type UpdateInput struct {
	Title       *string
	Description *string
	MimeType    *string
	Content     []byte
}

// Update applies metadata and content changes. Confidential content is
// re-sealed with the key version already recorded on the asset; the version
// never resets on update. A mime-type change on a confidential record
// re-seals as well, because the mime type is bound into the seal.
func (s *Service) Update(ctx context.Context, actor Actor, kind rbac.Resource, id string, in UpdateInput) (*Record, error) {
	if err := s.authorize(ctx, actor, rbac.ActionUpdate, kind); err != nil {
		return nil, err
	}
	rec, err := s.visibleRecord(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > maxTitleLen {
			return nil, ErrInvalidInput
		}
		rec.Title = title
	}
	if in.Description != nil {
		rec.Description = strings.TrimSpace(*in.Description)
	}

	newMime := rec.MimeType
	if in.MimeType != nil {
		newMime = strings.TrimSpace(*in.MimeType)
		if newMime == "" || strings.Contains(newMime, "|") {
			return nil, ErrInvalidInput
		}
	}
	if len(in.Content) > maxContentLen {
		return nil, ErrInvalidInput
	}

	content := in.Content
	reseal := rec.Confidential() && (len(content) > 0 || newMime != rec.MimeType)
	if reseal && len(content) == 0 {
		// Mime type changed without new content: unseal under the old
		// binding so the content can be re-sealed under the new one.
		stored, err := s.blobs.Get(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		content, err = s.engine.Decrypt(vault.Envelope{
			Ciphertext: stored,
			Nonce:      rec.Nonce,
			Tag:        rec.Tag,
			KeyVersion: rec.KeyVersion,
		}, rec.ID, rec.MimeType)
		if err != nil {
			return nil, err
		}
	}
	rec.MimeType = newMime

	var prior []byte
	if len(content) > 0 {
		// Keep the previous bytes so a failed metadata write can be rolled
		// back. The stored nonce and tag must always match the blob.
		prior, err = s.blobs.Get(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Checksum = checksum(content)
		stored := content
		if rec.Confidential() {
			env, err := s.engine.Encrypt(content, rec.ID, rec.MimeType, rec.KeyVersion)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDependency, err)
			}
			rec.Nonce = env.Nonce
			rec.Tag = env.Tag
			rec.KeyVersion = env.KeyVersion
			stored = env.Ciphertext
		}
		if err := s.blobs.Put(ctx, rec.ID, stored); err != nil {
			return nil, err
		}
	}

	rec.UpdatedBy = actor.PrincipalID
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		if prior != nil {
			// The record still carries the old seal; put the old bytes back
			// so it stays readable.
			_ = s.blobs.Put(ctx, rec.ID, prior)
		}
		return nil, err
	}
	return rec, nil
}

// Delete soft-deletes the record. Content stays in blob storage; the record
// simply stops being visible.
func (s *Service) Delete(ctx context.Context, actor Actor, kind rbac.Resource, id string) error {
	if err := s.authorize(ctx, actor, rbac.ActionDelete, kind); err != nil {
		return err
	}
	if _, err := s.visibleRecord(ctx, kind, id); err != nil {
		return err
	}
	return s.store.SoftDeleteRecord(ctx, id, actor.PrincipalID, s.now().UTC())
}

// List returns live records of one kind, newest first.
func (s *Service) List(ctx context.Context, actor Actor, kind rbac.Resource, limit, offset int) ([]*Record, error) {
	if err := s.authorize(ctx, actor, rbac.ActionView, kind); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListRecords(ctx, kind, limit, offset)
}

// visibleRecord loads a record and hides soft-deleted records and kind
// mismatches behind the same not-found answer.
func (s *Service) visibleRecord(ctx context.Context, kind rbac.Resource, id string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	rec, err := s.store.RecordByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted() || rec.Kind != kind {
		return nil, ErrNotFound
	}
	return rec, nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
