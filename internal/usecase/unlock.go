package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-unlock/internal/imageprocessor"
	"github.com/example/face-unlock/internal/logging"
	"github.com/example/face-unlock/internal/metrics"
	"github.com/example/face-unlock/internal/profile"
	"github.com/example/face-unlock/internal/retry"
	"github.com/example/face-unlock/internal/signature"
)

var (
	// ErrInvalidImage is returned when a capture cannot be decoded.
	ErrInvalidImage = imageprocessor.ErrInvalidImage
	// ErrNoProfilesRegistered is returned when authenticating against an empty store.
	ErrNoProfilesRegistered = errors.New("no faces registered")
	// ErrProfileNotFound is returned for lookups of unknown names.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrResultNotFound is returned when no cached outcome exists for a request.
	ErrResultNotFound = errors.New("result not found")
)

// ProfileStore is the subset of profile.Store used by the use case.
type ProfileStore interface {
	Upsert(ctx context.Context, p profile.Profile) error
	All() []profile.Profile
	Get(name string) (profile.Profile, bool)
	Len() int
}

// Extractor turns decoded images into fingerprints.
type Extractor interface {
	FromImage(img image.Image) signature.Fingerprint
}

// Scorer compares two fingerprints.
type Scorer interface {
	Score(a, b signature.Fingerprint) (bool, float64)
}

// ImageStore keeps registration captures. A capture is staged first and only
// replaces the live file once its profile is persisted.
type ImageStore interface {
	Stage(name string, img image.Image) (staged, final string, err error)
	Commit(staged, final string) error
	Discard(staged string) error
}

// TokenIssuer signs a session token for an unlocked identity.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// MetricsSource exposes aggregated counters.
type MetricsSource interface {
	Summary() metrics.Summary
}

// MatchResult is the decision of one authentication.
type MatchResult struct {
	Identity   string        `json:"name,omitempty"`
	Similarity float64       `json:"confidence"`
	Elapsed    time.Duration `json:"-"`
}

// Matched reports whether an identity was recognized.
func (m MatchResult) Matched() bool { return m.Identity != "" }

// AuthOutcome is returned by Authenticate.
type AuthOutcome struct {
	RequestID      string
	Match          MatchResult
	Message        string
	Token          string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
}

// ProfileSummary is the public listing of a profile.
type ProfileSummary struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DuplicateReport lists profiles sharing a capture's content hash.
type DuplicateReport struct {
	Profile    ProfileSummary
	Hash       string
	Duplicates []ProfileSummary
}

type cachedOutcome struct {
	RequestID  string    `json:"request_id"`
	Identity   string    `json:"name,omitempty"`
	Similarity float64   `json:"confidence"`
	ElapsedMs  float64   `json:"elapsed_ms"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// Dependencies groups the collaborators of UnlockUseCase.
type Dependencies struct {
	Store     ProfileStore
	Images    ImageStore
	Extractor Extractor
	Scorer    Scorer
	Recorder  metrics.Recorder
	Metrics   MetricsSource
	Cache     Cache
	Tokens    TokenIssuer
	ResultTTL time.Duration
}

// UnlockUseCase registers faces and authenticates captures against them.
type UnlockUseCase struct {
	store     ProfileStore
	images    ImageStore
	extractor Extractor
	scorer    Scorer
	recorder  metrics.Recorder
	metrics   MetricsSource
	cache     Cache
	tokens    TokenIssuer
	resultTTL time.Duration
	logger    *zap.Logger
	retry     retry.Policy
	now       func() time.Time
}

// NewUnlockUseCase constructs a new use case instance.
func NewUnlockUseCase(deps Dependencies, logger *zap.Logger) *UnlockUseCase {
	uc := &UnlockUseCase{
		store:     deps.Store,
		images:    deps.Images,
		extractor: deps.Extractor,
		scorer:    deps.Scorer,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		cache:     deps.Cache,
		tokens:    deps.Tokens,
		resultTTL: deps.ResultTTL,
		logger:    logger.Named("unlock_usecase"),
		retry:     retry.DefaultPolicy,
		now:       time.Now,
	}
	if uc.recorder == nil {
		uc.recorder = metrics.Nop{}
	}
	if uc.cache == nil {
		uc.cache = NewMemoryCache()
	}
	if uc.resultTTL <= 0 {
		uc.resultTTL = 5 * time.Minute
	}
	return uc
}

// Register fingerprints a capture and stores it under name, overwriting any
// earlier profile with that name.
func (uc *UnlockUseCase) Register(ctx context.Context, name string, raw []byte) (profile.Profile, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.register", requestID)

	name, err := profile.NormalizeName(name)
	if err != nil {
		return profile.Profile{}, logging.NewOperationError("usecase.register", requestID, err)
	}

	img, _, err := imageprocessor.Decode(raw)
	if err != nil {
		opLogger.Info("registration rejected", zap.String("name", name), zap.Error(err))
		return profile.Profile{}, logging.NewOperationError("usecase.decode_image", requestID, err)
	}
	fp := uc.extractor.FromImage(img)

	staged, path, err := uc.images.Stage(name, img)
	if err != nil {
		opLogger.Error("failed to store capture", zap.String("name", name), zap.Error(err))
		return profile.Profile{}, logging.NewOperationError("usecase.save_image", requestID, err)
	}

	_, replaced := uc.store.Get(name)
	p := profile.Profile{
		Name:        name,
		Fingerprint: fp,
		ImagePath:   path,
		CreatedAt:   uc.now().UTC(),
	}
	if err := uc.store.Upsert(ctx, p); err != nil {
		if rmErr := uc.images.Discard(staged); rmErr != nil {
			opLogger.Warn("failed to discard staged capture", zap.String("path", staged), zap.Error(rmErr))
		}
		opLogger.Error("failed to persist profile", zap.String("name", name), zap.Error(err))
		return profile.Profile{}, logging.NewOperationError("usecase.upsert_profile", requestID, err)
	}

	// The profile is already durable; a failed rename only leaves the
	// previous capture file in place.
	if err := uc.images.Commit(staged, path); err != nil {
		opLogger.Error("failed to publish capture", zap.String("path", path), zap.Error(err))
		if rmErr := uc.images.Discard(staged); rmErr != nil {
			opLogger.Warn("failed to discard staged capture", zap.String("path", staged), zap.Error(rmErr))
		}
	}

	opLogger.Info("profile registered",
		zap.String("name", name),
		zap.Bool("overwritten", replaced),
		zap.String("content_hash", fp.ContentHash),
	)
	return p, nil
}

// Authenticate scores a capture against every registered profile. A capture
// that matches nobody is a successful call with an unmatched result.
func (uc *UnlockUseCase) Authenticate(ctx context.Context, raw []byte) (*AuthOutcome, error) {
	requestID := uuid.NewString()
	start := uc.now()
	uc.recorder.RecordAttempt()

	result, err := uc.match(requestID, raw)
	result.Elapsed = uc.now().Sub(start)

	opLogger := logging.WithOperation(uc.logger, "usecase.authenticate", requestID)
	if err != nil {
		uc.recorder.RecordOutcome(false, result.Elapsed)
		opLogger.Info("authentication failed", zap.Error(err), zap.Duration("elapsed", result.Elapsed))
		return nil, err
	}

	outcome := &AuthOutcome{
		RequestID: requestID,
		Match:     result,
		CreatedAt: start.UTC(),
	}
	if result.Matched() {
		outcome.Message = fmt.Sprintf("welcome, %s!", result.Identity)
		if uc.tokens != nil {
			token, expires, err := uc.tokens.Issue(result.Identity)
			if err != nil {
				wrapped := logging.NewOperationError("usecase.issue_token", requestID, err)
				uc.recorder.RecordOutcome(false, result.Elapsed)
				opLogger.Error("failed to issue session token", zap.Error(wrapped))
				return nil, wrapped
			}
			outcome.Token = token
			outcome.TokenExpiresAt = expires
		}
	} else {
		outcome.Message = "face not recognized"
	}
	uc.recorder.RecordOutcome(result.Matched(), result.Elapsed)

	opLogger.Info("authentication finished",
		zap.Bool("recognized", result.Matched()),
		zap.String("name", result.Identity),
		zap.Float64("similarity", result.Similarity),
		zap.Duration("elapsed", result.Elapsed),
	)

	uc.cacheOutcome(ctx, outcome)
	return outcome, nil
}

// match runs extraction and the linear scan. The best matching profile wins;
// on equal similarity the earlier profile in store order is kept.
func (uc *UnlockUseCase) match(requestID string, raw []byte) (MatchResult, error) {
	profiles := uc.store.All()
	if len(profiles) == 0 {
		return MatchResult{}, logging.NewOperationError("usecase.authenticate", requestID, ErrNoProfilesRegistered)
	}

	img, _, err := imageprocessor.Decode(raw)
	if err != nil {
		return MatchResult{}, logging.NewOperationError("usecase.decode_image", requestID, err)
	}
	captured := uc.extractor.FromImage(img)

	var (
		result  MatchResult
		bestSim = -1.0
		topSim  float64
	)
	for _, p := range profiles {
		ok, sim := uc.scorer.Score(captured, p.Fingerprint)
		if sim > topSim {
			topSim = sim
		}
		if ok && sim > bestSim {
			bestSim = sim
			result.Identity = p.Name
			result.Similarity = sim
		}
	}
	if !result.Matched() {
		result.Similarity = topSim
	}
	return result, nil
}

func (uc *UnlockUseCase) cacheOutcome(ctx context.Context, outcome *AuthOutcome) {
	payload := cachedOutcome{
		RequestID:  outcome.RequestID,
		Identity:   outcome.Match.Identity,
		Similarity: outcome.Match.Similarity,
		ElapsedMs:  float64(outcome.Match.Elapsed) / float64(time.Millisecond),
		Message:    outcome.Message,
		CreatedAt:  outcome.CreatedAt,
	}
	serialized, err := json.Marshal(payload)
	if err == nil {
		err = retry.Do(ctx, uc.logger, uc.retry, "cache.set.result", outcome.RequestID, func() error {
			return uc.cache.Set(ctx, resultKey(outcome.RequestID), string(serialized), uc.resultTTL)
		})
	}
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.cache_result", outcome.RequestID).Warn("failed to cache authentication result", zap.Error(err))
	}
}

// GetResult retrieves a cached authentication outcome. Tokens are never cached.
func (uc *UnlockUseCase) GetResult(ctx context.Context, requestID string) (*AuthOutcome, error) {
	var cached string
	err := retry.Do(ctx, uc.logger, uc.retry, "cache.get.result", requestID, func() error {
		value, err := uc.cache.Get(ctx, resultKey(requestID))
		if err != nil {
			return err
		}
		cached = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}

	var payload cachedOutcome
	if err := json.Unmarshal([]byte(cached), &payload); err != nil {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		return nil, ErrResultNotFound
	}
	return &AuthOutcome{
		RequestID: payload.RequestID,
		Match: MatchResult{
			Identity:   payload.Identity,
			Similarity: payload.Similarity,
			Elapsed:    time.Duration(payload.ElapsedMs * float64(time.Millisecond)),
		},
		Message:   payload.Message,
		CreatedAt: payload.CreatedAt,
	}, nil
}

// ListProfiles returns every registered name in registration order.
func (uc *UnlockUseCase) ListProfiles() []ProfileSummary {
	all := uc.store.All()
	out := make([]ProfileSummary, 0, len(all))
	for _, p := range all {
		out = append(out, summarize(p))
	}
	return out
}

// GetDuplicateReport lists other profiles whose capture normalizes to the
// same pixels as name's.
func (uc *UnlockUseCase) GetDuplicateReport(name string) (*DuplicateReport, error) {
	target, ok := uc.store.Get(name)
	if !ok {
		return nil, ErrProfileNotFound
	}
	report := &DuplicateReport{
		Profile:    summarize(target),
		Hash:       target.Fingerprint.ContentHash,
		Duplicates: []ProfileSummary{},
	}
	for _, p := range uc.store.All() {
		if p.Name != target.Name && p.Fingerprint.ContentHash == target.Fingerprint.ContentHash {
			report.Duplicates = append(report.Duplicates, summarize(p))
		}
	}
	return report, nil
}

// MetricsSummary returns the running authentication counters.
func (uc *UnlockUseCase) MetricsSummary() metrics.Summary {
	if uc.metrics == nil {
		return metrics.Summary{}
	}
	return uc.metrics.Summary()
}

// ProfileCount returns the number of registered profiles.
func (uc *UnlockUseCase) ProfileCount() int {
	return uc.store.Len()
}

func summarize(p profile.Profile) ProfileSummary {
	return ProfileSummary{Name: p.Name, CreatedAt: p.CreatedAt}
}

func resultKey(requestID string) string {
	return fmt.Sprintf("authentication:%s", requestID)
}
