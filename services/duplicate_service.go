package services

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/models"
	"github.com/apocaliptyx/scenario-dedup/shared"
)

const duplicateServiceName = "DuplicateService"

// Custom counters exposed through the metrics endpoint
const (
	MetricCheckDuplicates   = "check_duplicates"
	MetricExactMatch        = "exact_match"
	MetricHashCollision     = "hash_collision"
	MetricHashLookupFailed  = "hash_lookup_failed"
	MetricCorpusUnavailable = "corpus_unavailable"
	MetricDuplicateVerdict  = "duplicate_verdict"
	MetricSuggestions       = "suggestions"
	MetricHashBackfill      = "hash_backfill"
)

// backfillMaxFailureRate opens the backfill circuit once more than half of the
// rows fail, which in practice means the store itself is down.
const backfillMaxFailureRate = 0.5

// DuplicateService detects duplicate scenarios and maintains content hashes
type DuplicateService struct {
	store          ScenarioStore
	engine         *SimilarityEngine
	cache          SampleCache
	config         shared.DetectorConfig
	serviceMetrics *shared.ServiceMetrics
	logger         *logrus.Entry

	// sampleGeneration advances on every invalidation. A sample loaded under
	// an older generation is not written back to the cache.
	sampleMutex      sync.Mutex
	sampleGeneration uint64
}

// NewDuplicateService creates the detector. cache may be nil to disable
// suggestion sample caching.
func NewDuplicateService(store ScenarioStore, config shared.DetectorConfig, cache SampleCache) *DuplicateService {
	return &DuplicateService{
		store:          store,
		engine:         NewSimilarityEngine(ThresholdsFromConfig(config)),
		cache:          cache,
		config:         config,
		serviceMetrics: shared.NewServiceMetrics(duplicateServiceName),
		logger:         logrus.WithField("component", duplicateServiceName),
	}
}

// GetServiceMetrics returns the current service metrics
func (s *DuplicateService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}

// CheckForDuplicates classifies a candidate scenario against the stored corpus.
// A confirmed content hash match short-circuits as an exact duplicate; otherwise
// every non-cancelled scenario is scored. Repository failures never surface as
// errors: the result is a non-duplicate with CorpusUnavailable set.
func (s *DuplicateService) CheckForDuplicates(ctx context.Context, title, description, excludeID string) *models.DuplicateCheckResult {
	startTime := time.Now()
	s.serviceMetrics.IncrementCustomCounter(MetricCheckDuplicates)

	contentHash := ContentHash(title, description)
	result := &models.DuplicateCheckResult{
		ContentHash:      contentHash,
		SimilarScenarios: []models.SimilarScenario{},
	}

	if exact := s.findExactMatches(ctx, contentHash, title, description, excludeID); len(exact) > 0 {
		result.IsDuplicate = true
		result.ExactMatch = true
		for _, scenario := range exact {
			result.SimilarScenarios = append(result.SimilarScenarios, models.NewSimilarScenario(scenario, 100))
		}

		s.serviceMetrics.IncrementCustomCounter(MetricExactMatch)
		s.serviceMetrics.IncrementCustomCounter(MetricDuplicateVerdict)
		s.serviceMetrics.RecordRequest(true, time.Since(startTime))
		return result
	}

	repoCtx, cancel := s.withRepositoryTimeout(ctx)
	candidates, err := s.store.FindActive(repoCtx, excludeID, 0)
	cancel()
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation":    "CheckForDuplicates",
			"content_hash": contentHash,
			"error":        err,
		}).Warn("Comparison corpus unavailable, allowing scenario")

		result.CorpusUnavailable = true
		s.serviceMetrics.IncrementCustomCounter(MetricCorpusUnavailable)
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return result
	}

	thresholds := s.engine.Thresholds()
	for _, candidate := range candidates {
		score := s.engine.CandidateScore(title, description, candidate.Title, candidate.Description)
		if thresholds.IsIncluded(score) {
			result.SimilarScenarios = append(result.SimilarScenarios, models.NewSimilarScenario(candidate, score))
		}
	}

	result.SimilarScenarios = topBySimilarity(result.SimilarScenarios, s.config.MaxResults)
	if len(result.SimilarScenarios) > 0 && thresholds.IsDuplicate(result.SimilarScenarios[0].Similarity) {
		result.IsDuplicate = true
		s.serviceMetrics.IncrementCustomCounter(MetricDuplicateVerdict)
	}

	s.logger.WithFields(logrus.Fields{
		"candidates":   len(candidates),
		"similar":      len(result.SimilarScenarios),
		"is_duplicate": result.IsDuplicate,
		"duration":     time.Since(startTime),
	}).Debug("Duplicate check completed")

	s.serviceMetrics.RecordRequest(true, time.Since(startTime))
	return result
}

// findExactMatches returns hash matches whose trimmed, lowercased content equals
// the candidate. A failed lookup counts as no match.
func (s *DuplicateService) findExactMatches(ctx context.Context, contentHash, title, description, excludeID string) []models.StoredScenario {
	repoCtx, cancel := s.withRepositoryTimeout(ctx)
	defer cancel()

	matches, err := s.store.FindByHash(repoCtx, contentHash, excludeID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation":    "FindByHash",
			"content_hash": contentHash,
			"error":        err,
		}).Warn("Content hash lookup failed, falling back to similarity scoring")
		s.serviceMetrics.IncrementCustomCounter(MetricHashLookupFailed)
		return nil
	}

	confirmed := make([]models.StoredScenario, 0, len(matches))
	for _, match := range matches {
		if sameContent(title, description, match.Title, match.Description) {
			confirmed = append(confirmed, match)
		}
	}

	if collisions := len(matches) - len(confirmed); collisions > 0 {
		s.logger.WithFields(logrus.Fields{
			"content_hash": contentHash,
			"collisions":   collisions,
		}).Info("Content hash collision ignored")
		s.serviceMetrics.AddToCustomCounter(MetricHashCollision, int64(collisions))
	}

	return confirmed
}

// GetSuggestions returns up to MaxResults stored scenarios whose titles resemble
// a partially typed title. Short input and repository failures yield an empty list.
func (s *DuplicateService) GetSuggestions(ctx context.Context, partialTitle string) []models.SimilarScenario {
	suggestions := []models.SimilarScenario{}
	if utf8.RuneCountInString(partialTitle) < s.config.MinSuggestionLength {
		return suggestions
	}

	startTime := time.Now()
	s.serviceMetrics.IncrementCustomCounter(MetricSuggestions)

	sample, err := s.loadSuggestionSample(ctx)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation": "GetSuggestions",
			"error":     err,
		}).Warn("Suggestion sample unavailable")
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return suggestions
	}

	thresholds := s.engine.Thresholds()
	for _, scenario := range sample {
		score := s.engine.SuggestionScore(partialTitle, scenario.Title)
		if thresholds.IsSuggested(score) {
			suggestions = append(suggestions, models.NewSimilarScenario(scenario, score))
		}
	}

	s.serviceMetrics.RecordRequest(true, time.Since(startTime))
	return topBySimilarity(suggestions, s.config.MaxResults)
}

func (s *DuplicateService) loadSuggestionSample(ctx context.Context) ([]models.StoredScenario, error) {
	if s.cache != nil {
		if sample, ok := s.cache.GetSample(ctx); ok {
			return sample, nil
		}
	}

	generation := s.currentSampleGeneration()

	repoCtx, cancel := s.withRepositoryTimeout(ctx)
	defer cancel()

	sample, err := s.store.FindActive(repoCtx, "", s.config.SuggestionSampleSize)
	if err != nil {
		return nil, err
	}

	s.cacheSample(ctx, generation, sample)
	return sample, nil
}

func (s *DuplicateService) currentSampleGeneration() uint64 {
	s.sampleMutex.Lock()
	defer s.sampleMutex.Unlock()
	return s.sampleGeneration
}

// cacheSample stores the sample unless a write invalidated the cache after it was loaded
func (s *DuplicateService) cacheSample(ctx context.Context, generation uint64, sample []models.StoredScenario) {
	if s.cache == nil {
		return
	}

	s.sampleMutex.Lock()
	defer s.sampleMutex.Unlock()

	if generation != s.sampleGeneration {
		s.logger.WithField("operation", "GetSuggestions").Debug("Discarding suggestion sample loaded before invalidation")
		return
	}
	s.cache.SetSample(ctx, sample)
}

// UpdateContentHash computes and stores the hash of a scenario and marks it checked
func (s *DuplicateService) UpdateContentHash(ctx context.Context, id, title, description string) (string, error) {
	if id == "" {
		return "", shared.NewValidationError("scenario id is required", duplicateServiceName, "UpdateContentHash")
	}

	contentHash := ContentHash(title, description)
	checked := true

	repoCtx, cancel := s.withRepositoryTimeout(ctx)
	defer cancel()

	err := s.store.UpdateByID(repoCtx, id, models.ScenarioUpdate{
		ContentHash:      &contentHash,
		DuplicateChecked: &checked,
	})
	if err != nil {
		return "", shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeUpdateFailed,
			duplicateServiceName, "UpdateContentHash", shared.IsRetryableError(err))
	}

	s.invalidateSample(ctx)
	s.logger.WithFields(logrus.Fields{
		"scenario_id":  id,
		"content_hash": contentHash,
	}).Info("Content hash updated")

	return contentHash, nil
}

// MarkAsDuplicate links a scenario to its original and cancels it
func (s *DuplicateService) MarkAsDuplicate(ctx context.Context, id, originalID string) error {
	if id == "" || originalID == "" {
		return shared.NewValidationError("scenario id and original id are required", duplicateServiceName, "MarkAsDuplicate")
	}
	if id == originalID {
		return shared.NewValidationError("a scenario cannot duplicate itself", duplicateServiceName, "MarkAsDuplicate")
	}

	status := models.ScenarioStatusCancelled

	repoCtx, cancel := s.withRepositoryTimeout(ctx)
	defer cancel()

	err := s.store.UpdateByID(repoCtx, id, models.ScenarioUpdate{
		DuplicateOf: &originalID,
		Status:      &status,
	})
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeUpdateFailed,
			duplicateServiceName, "MarkAsDuplicate", shared.IsRetryableError(err))
	}

	s.invalidateSample(ctx)
	s.logger.WithFields(logrus.Fields{
		"scenario_id": id,
		"original_id": originalID,
	}).Info("Scenario marked as duplicate")

	return nil
}

// UpdateAllHashes backfills content hashes for every scenario missing one and
// returns how many were written. Row failures are logged and skipped; rerunning
// only touches rows that still lack a hash.
func (s *DuplicateService) UpdateAllHashes(ctx context.Context) (int, error) {
	startTime := time.Now()

	repoCtx, cancel := s.withRepositoryTimeout(ctx)
	pending, err := s.store.FindMissingHash(repoCtx)
	cancel()
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeQueryFailed,
			duplicateServiceName, "UpdateAllHashes", shared.IsRetryableError(err))
	}

	isolation := shared.NewErrorIsolationHandler(duplicateServiceName, backfillMaxFailureRate)
	batch := isolation.ProcessBatchWithIsolation(len(pending), func(i int) error {
		scenario := pending[i]
		contentHash := ContentHash(scenario.Title, scenario.Description)

		rowCtx, rowCancel := s.withRepositoryTimeout(ctx)
		defer rowCancel()

		if err := s.store.UpdateByID(rowCtx, scenario.ID, models.ScenarioUpdate{ContentHash: &contentHash}); err != nil {
			s.logger.WithFields(logrus.Fields{
				"scenario_id": scenario.ID,
				"error":       err,
			}).Warn("Failed to backfill content hash")
			return err
		}
		return nil
	})

	if batch.Succeeded > 0 {
		s.invalidateSample(ctx)
	}
	s.serviceMetrics.AddToCustomCounter(MetricHashBackfill, int64(batch.Succeeded))
	s.serviceMetrics.RecordRequest(batch.Failed == 0 && batch.Skipped == 0, time.Since(startTime))

	fields := logrus.Fields{
		"pending":  len(pending),
		"updated":  batch.Succeeded,
		"failed":   batch.Failed,
		"skipped":  batch.Skipped,
		"duration": batch.ProcessingTime,
	}
	if batch.ErrorSummary != "" {
		s.logger.WithFields(fields).Warn(batch.ErrorSummary)
	} else {
		s.logger.WithFields(fields).Info("Content hash backfill completed")
	}

	return batch.Succeeded, nil
}

func (s *DuplicateService) invalidateSample(ctx context.Context) {
	s.sampleMutex.Lock()
	defer s.sampleMutex.Unlock()

	s.sampleGeneration++
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *DuplicateService) withRepositoryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RepositoryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.RepositoryTimeout)
}

// topBySimilarity sorts descending by similarity and keeps at most limit entries.
// Equal scores keep their input order.
func topBySimilarity(scenarios []models.SimilarScenario, limit int) []models.SimilarScenario {
	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarios[i].Similarity > scenarios[j].Similarity
	})
	if limit > 0 && len(scenarios) > limit {
		scenarios = scenarios[:limit]
	}
	return scenarios
}
