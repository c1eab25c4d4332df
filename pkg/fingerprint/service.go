// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package fingerprint

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/jeremyhahn/go-biosecure/pkg/correlation"
	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/crypto/rand"
	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/metrics"
	"github.com/jeremyhahn/go-biosecure/pkg/platform"
	"github.com/jeremyhahn/go-biosecure/pkg/restriction"
)

const (
	// challengeSize is the number of random bytes in a ceremony challenge.
	challengeSize = 32

	// simulatedIDSize is the number of random bytes in a simulated
	// credential identifier.
	simulatedIDSize = 32
)

// Service registers and authenticates users with the platform credential
// capability, falling back to a simulated credential when the capability
// is absent, restricted or fails.
type Service struct {
	config     *Config
	provider   platform.Provider
	detector   *restriction.Detector
	store      *credstore.Store
	verifier   *Verifier
	random     rand.Resolver
	logger     *logging.Logger
	configured bool
}

// ServiceParams contains dependencies for creating a Service.
type ServiceParams struct {
	// Config is the service configuration (required).
	Config *Config

	// Provider is the platform capability. A nil Provider behaves as an
	// environment without the capability.
	Provider platform.Provider

	// Store persists the credential directory (required).
	Store *credstore.Store

	// Verifier checks native responses. When nil and Config.Verify is set,
	// one is built from Config.
	Verifier *Verifier

	// Random supplies challenges and simulated identifiers. Defaults to
	// crypto/rand.
	Random rand.Resolver

	// Logger defaults to a discarding logger.
	Logger *logging.Logger
}

// NewService creates a Service from params.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	verifier := params.Verifier
	if verifier == nil && params.Config.Verify {
		v, err := NewVerifier(params.Config)
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	random := params.Random
	if random == nil {
		random = rand.Software()
	}
	logger := params.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Service{
		config:     params.Config,
		provider:   params.Provider,
		detector:   restriction.New(params.Provider, logger),
		store:      params.Store,
		verifier:   verifier,
		random:     random,
		logger:     logger,
		configured: true,
	}, nil
}

// Register creates a credential for user. It returns true once the user
// is registered, by the native path when possible and the simulated path
// otherwise. Only ErrInvalidInput, ErrAlreadyRegistered and storage or
// context failures are returned, unless strict mode is enabled.
func (s *Service) Register(ctx context.Context, user string) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}
	start := time.Now()
	path, err := s.register(ctx, user)
	s.observe(metrics.OpRegister, path, err, start)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) register(ctx context.Context, user string) (string, error) {
	const op = "register"

	if user == "" {
		return metrics.PathNone, NewError(op, ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return metrics.PathNone, NewError(op, err)
	}
	dir := s.store.Load(ctx)
	if _, ok := dir[user]; ok {
		return metrics.PathNone, NewError(op, ErrAlreadyRegistered)
	}

	if condition := s.detector.Check(ctx); condition != restriction.ConditionNone {
		if s.config.Strict {
			return metrics.PathNone, NewError(op, fmt.Errorf("%w: %s", ErrNativeUnavailable, condition.Reason()))
		}
		s.log(ctx).Info("native registration unavailable, using simulated credential",
			"user", user, "condition", string(condition))
		metrics.RecordFallback(metrics.OpRegister, string(condition))
	} else {
		record, err := s.registerNative(ctx, user)
		if err == nil {
			return metrics.PathNative, s.persist(ctx, op, dir, user, record)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return metrics.PathNative, NewError(op, ctxErr)
		}
		if s.config.Strict {
			return metrics.PathNative, &NativeError{Op: op, Err: err}
		}
		s.logNativeFailure(ctx, op, user, err)
		metrics.RecordFallback(metrics.OpRegister, failureReason(err))
	}

	record, err := s.simulatedRecord()
	if err != nil {
		return metrics.PathSimulated, NewError(op, err)
	}
	return metrics.PathSimulated, s.persist(ctx, op, dir, user, record)
}

func (s *Service) registerNative(ctx context.Context, user string) (*credstore.NativeRecord, error) {
	challenge, err := s.random.Rand(challengeSize)
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	opts := s.creationOptions(user, challenge)

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	parsed, err := s.provider.Create(ctx, opts)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, platform.NewError(platform.NameUnknown, "no credential returned")
	}
	if s.verifier != nil {
		if _, err := s.verifier.VerifyRegistration(user, opts, parsed); err != nil {
			return nil, err
		}
	}

	transports := make([]string, 0, len(parsed.Response.Transports))
	for _, t := range parsed.Response.Transports {
		transports = append(transports, string(t))
	}
	return &credstore.NativeRecord{
		Credential: credstore.Credential{
			ID:             parsed.ID,
			RawID:          parsed.RawID,
			PublicMaterial: parsed.Raw.AttestationResponse.AttestationObject,
			CreatedAt:      time.Now().UTC(),
		},
		Transports: transports,
	}, nil
}

func (s *Service) creationOptions(user string, challenge []byte) *protocol.PublicKeyCredentialCreationOptions {
	return &protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: s.config.RPDisplayName},
			ID:               s.config.RPID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: user},
			DisplayName:      user,
			ID:               protocol.URLEncodedBase64(user),
		},
		Challenge: challenge,
		Parameters: []protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
		},
		Timeout: int(s.config.Timeout.Milliseconds()),
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        s.config.userVerification(),
		},
		Attestation: s.config.attestation(),
	}
}

// simulatedRecord draws one random string that serves as both the raw
// identifier and the public material.
func (s *Service) simulatedRecord() (*credstore.SimulatedRecord, error) {
	raw, err := s.random.Rand(simulatedIDSize)
	if err != nil {
		return nil, fmt.Errorf("generate simulated credential: %w", err)
	}
	return &credstore.SimulatedRecord{
		Credential: credstore.Credential{
			ID:             base64.StdEncoding.EncodeToString(raw),
			RawID:          raw,
			PublicMaterial: raw,
			CreatedAt:      time.Now().UTC(),
		},
	}, nil
}

func (s *Service) persist(ctx context.Context, op string, dir credstore.Directory, user string, record credstore.Record) error {
	dir[user] = record
	if err := s.store.Save(ctx, dir); err != nil {
		return NewError(op, err)
	}
	s.log(ctx).Info("user registered", "user", user, "method", string(record.Method()))
	observeDirectory(dir)
	return nil
}

// Authenticate checks the credential of user. Simulated credentials, and
// native credentials that cannot be exercised, authenticate by existence.
func (s *Service) Authenticate(ctx context.Context, user string) (bool, error) {
	if _, err := s.AuthenticateMethod(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// AuthenticateMethod is Authenticate reporting how the user was checked.
// MethodNative means a platform ceremony succeeded; MethodSimulated means
// the user passed on record existence alone, whatever method registered it.
func (s *Service) AuthenticateMethod(ctx context.Context, user string) (credstore.Method, error) {
	if !s.configured {
		return "", ErrNotConfigured
	}
	start := time.Now()
	path, err := s.authenticate(ctx, user)
	s.observe(metrics.OpAuthenticate, path, err, start)
	if err != nil {
		return "", err
	}
	if path == metrics.PathNative {
		return credstore.MethodNative, nil
	}
	return credstore.MethodSimulated, nil
}

func (s *Service) authenticate(ctx context.Context, user string) (string, error) {
	const op = "authenticate"

	if user == "" {
		return metrics.PathNone, NewError(op, ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return metrics.PathNone, NewError(op, err)
	}
	record, ok := s.store.Load(ctx)[user]
	if !ok {
		return metrics.PathNone, NewError(op, ErrNotRegistered)
	}

	native, ok := record.(*credstore.NativeRecord)
	if !ok {
		if s.config.Strict {
			return metrics.PathSimulated, NewError(op, ErrSimulatedRecord)
		}
		return metrics.PathSimulated, nil
	}

	if condition := s.detector.Check(ctx); condition != restriction.ConditionNone {
		if s.config.Strict {
			return metrics.PathNone, NewError(op, fmt.Errorf("%w: %s", ErrNativeUnavailable, condition.Reason()))
		}
		s.log(ctx).Info("native authentication unavailable, using simulated check",
			"user", user, "condition", string(condition))
		metrics.RecordFallback(metrics.OpAuthenticate, string(condition))
		return metrics.PathSimulated, nil
	}

	err := s.authenticateNative(ctx, user, native)
	if err == nil {
		s.log(ctx).Info("user authenticated", "user", user, "method", string(native.Method()))
		return metrics.PathNative, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return metrics.PathNative, NewError(op, ctxErr)
	}
	if s.config.Strict {
		return metrics.PathNative, &NativeError{Op: op, Err: err}
	}
	s.logNativeFailure(ctx, op, user, err)
	metrics.RecordFallback(metrics.OpAuthenticate, failureReason(err))
	return metrics.PathSimulated, nil
}

func (s *Service) authenticateNative(ctx context.Context, user string, record *credstore.NativeRecord) error {
	challenge, err := s.random.Rand(challengeSize)
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}
	opts := s.requestOptions(record, challenge)

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	parsed, err := s.provider.Get(ctx, opts)
	if err != nil {
		return err
	}
	if parsed == nil {
		return platform.NewError(platform.NameUnknown, "no assertion returned")
	}
	if s.verifier != nil {
		return s.verifier.VerifyAssertion(user, record, opts, parsed)
	}
	return nil
}

func (s *Service) requestOptions(record *credstore.NativeRecord, challenge []byte) *protocol.PublicKeyCredentialRequestOptions {
	return &protocol.PublicKeyCredentialRequestOptions{
		Challenge:      challenge,
		Timeout:        int(s.config.Timeout.Milliseconds()),
		RelyingPartyID: s.config.RPID,
		AllowedCredentials: []protocol.CredentialDescriptor{
			{
				Type:         protocol.PublicKeyCredentialType,
				CredentialID: record.RawID,
				Transport:    []protocol.AuthenticatorTransport{protocol.Internal},
			},
		},
		UserVerification: s.config.userVerification(),
	}
}

// IsAvailable reports whether fingerprint registration can be offered.
func (s *Service) IsAvailable(ctx context.Context) bool {
	return s.detector.IsAvailable(ctx)
}

// IsRestricted reports whether the native capability must not be used.
func (s *Service) IsRestricted(ctx context.Context) bool {
	return s.detector.IsRestricted(ctx)
}

// RestrictionReason explains a restriction. ok is false when unrestricted.
func (s *Service) RestrictionReason(ctx context.Context) (reason string, ok bool) {
	return s.detector.RestrictionReason(ctx)
}

// Status returns the detector answers in one snapshot.
func (s *Service) Status(ctx context.Context) restriction.Status {
	return s.detector.Status(ctx)
}

// Lookup returns the stored credential of user.
func (s *Service) Lookup(ctx context.Context, user string) (credstore.Record, error) {
	if user == "" {
		return nil, NewError("lookup", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewError("lookup", err)
	}
	record, ok := s.store.Get(ctx, user)
	if !ok {
		return nil, NewError("lookup", ErrNotRegistered)
	}
	return record, nil
}

// List returns the registered identifiers in sorted order.
func (s *Service) List(ctx context.Context) []string {
	return s.store.List(ctx)
}

// Unregister removes the credential of user.
func (s *Service) Unregister(ctx context.Context, user string) error {
	start := time.Now()
	err := s.unregister(ctx, user)
	s.observe(metrics.OpUnregister, metrics.PathNone, err, start)
	if err != nil {
		return err
	}
	s.log(ctx).Info("user unregistered", "user", user)
	return nil
}

func (s *Service) unregister(ctx context.Context, user string) error {
	const op = "unregister"

	if user == "" {
		return NewError(op, ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return NewError(op, err)
	}
	dir := s.store.Load(ctx)
	if _, ok := dir[user]; !ok {
		return NewError(op, ErrNotRegistered)
	}
	delete(dir, user)
	if err := s.store.Save(ctx, dir); err != nil {
		return NewError(op, err)
	}
	observeDirectory(dir)
	return nil
}

func (s *Service) logNativeFailure(ctx context.Context, op, user string, err error) {
	name := failureReason(err)
	s.log(ctx).Warn("native ceremony failed, using simulated credential",
		"op", op, "user", user, "class", name, "reason", describeFailure(name), "error", err)
}

// log returns the service logger tagged with the request correlation ID.
func (s *Service) log(ctx context.Context) *logging.Logger {
	return correlation.Logger(ctx, s.logger)
}

func (s *Service) observe(op, path string, err error, start time.Time) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(op, path, status, time.Since(start).Seconds())
}

func failureReason(err error) string {
	if errors.Is(err, ErrVerificationFailed) {
		return "VerificationError"
	}
	return platform.Classify(err)
}

func describeFailure(name string) string {
	if name == "VerificationError" {
		return "The relying party rejected the platform response"
	}
	return platform.Describe(name)
}

func observeDirectory(dir credstore.Directory) {
	var native, simulated int
	for _, r := range dir {
		if r.IsSimulated() {
			simulated++
		} else {
			native++
		}
	}
	metrics.SetRegisteredUsers(string(credstore.MethodNative), native)
	metrics.SetRegisteredUsers(string(credstore.MethodSimulated), simulated)
}
