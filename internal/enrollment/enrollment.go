// Package enrollment registers a new animal from its photos: the first photo
// is checked biometrically, a description is generated when none is given,
// every photo is stored and the animal is registered with the resulting hash
// and photo keys. Stored photos are removed again if registration fails.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"herdbook/internal/ai"
	"herdbook/internal/core"
	"herdbook/internal/photos"
	"io"
	"log/slog"
	"strings"
)

var (
	// ErrNoPhotos is returned when a request carries no photo.
	ErrNoPhotos = errors.New("enrollment: at least one photo is required")
	// ErrBiometricRejected is returned when the first photo fails biometric validation.
	ErrBiometricRejected = errors.New("enrollment: photo rejected by biometric validation")
)

// Registrar is the slice of the transition engine enrollment needs.
type Registrar interface {
	RegisterAnimal(ctx context.Context, input core.AnimalInput) (core.Animal, core.Result, error)
	NextSerialNumber(ctx context.Context, species string) string
}

// Validator checks a photo and returns its biometric hash.
type Validator interface {
	Validate(ctx context.Context, image []byte) ai.Validation
}

// Describer produces a free-text description of an animal photo.
type Describer interface {
	Describe(ctx context.Context, image []byte, species string) string
}

// Photo is one uploaded image.
type Photo struct {
	Data []byte
}

// Request describes an animal to enroll.
type Request struct {
	OwnerID      string
	Species      string
	SerialNumber string
	Description  string
	Photos       []Photo
}

// Result is a completed enrollment.
type Result struct {
	Animal     core.Animal
	Validation ai.Validation
	PhotoInfo  []photos.Info
	Rules      core.Result
}

// Service runs the enrollment flow.
type Service struct {
	registrar Registrar
	store     photos.Store
	validator Validator
	describer Describer
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for compensation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs an enrollment Service. validator and describer are usually
// the same *ai.Client.
func New(registrar Registrar, store photos.Store, validator Validator, describer Describer, opts ...Option) *Service {
	s := &Service{
		registrar: registrar,
		store:     store,
		validator: validator,
		describer: describer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll validates, stores and registers. The returned error wraps
// ErrNoPhotos, ErrBiometricRejected, photos.ErrNotImage or the engine error.
func (s *Service) Enroll(ctx context.Context, req Request) (Result, error) {
	if len(req.Photos) == 0 {
		return Result{}, ErrNoPhotos
	}
	for i, p := range req.Photos {
		if _, err := photos.DetectImage(p.Data); err != nil {
			return Result{}, fmt.Errorf("photo %d: %w", i, err)
		}
	}

	validation := s.validator.Validate(ctx, req.Photos[0].Data)
	if !validation.Valid {
		reason := validation.Reason
		if reason == "" {
			reason = "no identifiable animal"
		}
		return Result{Validation: validation}, fmt.Errorf("%w: %s", ErrBiometricRejected, reason)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = s.describer.Describe(ctx, req.Photos[0].Data, req.Species)
	}

	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		serial = s.registrar.NextSerialNumber(ctx, req.Species)
	}

	stored := make([]photos.Info, 0, len(req.Photos))
	for i, p := range req.Photos {
		info, err := photos.PutImage(ctx, s.store, serial, i, p.Data, map[string]string{
			"owner_id": req.OwnerID,
			"species":  req.Species,
		})
		if err != nil {
			s.compensate(ctx, serial, stored)
			return Result{Validation: validation}, fmt.Errorf("store photo %d: %w", i, err)
		}
		stored = append(stored, info)
	}

	keys := make([]string, len(stored))
	for i, info := range stored {
		keys[i] = info.Key
	}
	animal, rules, err := s.registrar.RegisterAnimal(ctx, core.AnimalInput{
		OwnerID:       req.OwnerID,
		Species:       req.Species,
		SerialNumber:  serial,
		Description:   description,
		Photos:        keys,
		BiometricHash: validation.Hash,
	})
	if err != nil {
		s.compensate(ctx, serial, stored)
		return Result{Validation: validation, Rules: rules}, err
	}
	return Result{Animal: animal, Validation: validation, PhotoInfo: stored, Rules: rules}, nil
}

func (s *Service) compensate(ctx context.Context, serial string, stored []photos.Info) {
	for _, info := range stored {
		if _, err := s.store.Delete(context.WithoutCancel(ctx), info.Key); err != nil {
			s.logger.Error("photo cleanup failed", "serial", serial, "key", info.Key, "error", err)
		}
	}
	if len(stored) > 0 {
		s.logger.Warn("enrollment rolled back stored photos", "serial", serial, "count", len(stored))
	}
}
