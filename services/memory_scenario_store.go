package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/apocaliptyx/scenario-dedup/models"
	"github.com/apocaliptyx/scenario-dedup/shared"
)

// MemoryScenarioStore is an in-process ScenarioStore. It backs tests and local
// runs without DATABASE_URL.
type MemoryScenarioStore struct {
	mutex     sync.RWMutex
	order     []string
	scenarios map[string]models.StoredScenario
}

// NewMemoryScenarioStore creates a store seeded with the given scenarios
func NewMemoryScenarioStore(seed ...models.StoredScenario) *MemoryScenarioStore {
	store := &MemoryScenarioStore{
		scenarios: make(map[string]models.StoredScenario),
	}
	for _, scenario := range seed {
		store.Put(scenario)
	}
	return store
}

// Put inserts or replaces a scenario. A new id is appended to the insertion order.
func (m *MemoryScenarioStore) Put(scenario models.StoredScenario) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Own the key so a caller's buffer-backed string cannot alias it
	scenario.ID = strings.Clone(scenario.ID)
	if _, exists := m.scenarios[scenario.ID]; !exists {
		m.order = append(m.order, scenario.ID)
	}
	m.scenarios[scenario.ID] = cloneScenario(scenario)
}

// Get returns a copy of one scenario
func (m *MemoryScenarioStore) Get(id string) (models.StoredScenario, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	scenario, ok := m.scenarios[id]
	if !ok {
		return models.StoredScenario{}, false
	}
	return cloneScenario(scenario), true
}

func (m *MemoryScenarioStore) FindByHash(ctx context.Context, hash, excludeID string) ([]models.StoredScenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeQueryFailed, scenarioStoreServiceName, "FindByHash", false)
	}

	return m.filter(excludeID, func(s models.StoredScenario) bool {
		return s.ContentHash != nil && *s.ContentHash == hash
	}), nil
}

func (m *MemoryScenarioStore) FindActive(ctx context.Context, excludeID string, limit int) ([]models.StoredScenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeQueryFailed, scenarioStoreServiceName, "FindActive", false)
	}

	results := m.filter(excludeID, func(s models.StoredScenario) bool {
		return !s.IsCancelled()
	})

	// Newest first, ties keep insertion order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryScenarioStore) FindMissingHash(ctx context.Context) ([]models.StoredScenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeQueryFailed, scenarioStoreServiceName, "FindMissingHash", false)
	}

	return m.filter("", func(s models.StoredScenario) bool {
		return s.ContentHash == nil
	}), nil
}

func (m *MemoryScenarioStore) UpdateByID(ctx context.Context, id string, update models.ScenarioUpdate) error {
	if err := ctx.Err(); err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeUpdateFailed, scenarioStoreServiceName, "UpdateByID", false)
	}
	if update.IsEmpty() {
		return shared.NewValidationError("update contains no fields", scenarioStoreServiceName, "UpdateByID")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	scenario, ok := m.scenarios[id]
	if !ok {
		return shared.NewNotFoundError(fmt.Sprintf("scenario %s not found", id), scenarioStoreServiceName, "UpdateByID")
	}

	if update.ContentHash != nil {
		scenario.ContentHash = stringPtr(*update.ContentHash)
	}
	if update.DuplicateChecked != nil {
		scenario.DuplicateChecked = *update.DuplicateChecked
	}
	if update.DuplicateOf != nil {
		scenario.DuplicateOf = stringPtr(*update.DuplicateOf)
	}
	if update.Status != nil {
		scenario.Status = *update.Status
	}

	// Assigning rewrites the map key, so write back through the stored id
	m.scenarios[scenario.ID] = scenario
	return nil
}

func (m *MemoryScenarioStore) filter(excludeID string, keep func(models.StoredScenario) bool) []models.StoredScenario {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	results := make([]models.StoredScenario, 0)
	for _, id := range m.order {
		if excludeID != "" && id == excludeID {
			continue
		}
		scenario, ok := m.scenarios[id]
		if !ok || !keep(scenario) {
			continue
		}
		results = append(results, cloneScenario(scenario))
	}
	return results
}

// cloneScenario copies the pointer fields so callers cannot mutate stored state
func cloneScenario(s models.StoredScenario) models.StoredScenario {
	if s.ContentHash != nil {
		s.ContentHash = stringPtr(*s.ContentHash)
	}
	if s.DuplicateOf != nil {
		s.DuplicateOf = stringPtr(*s.DuplicateOf)
	}
	if s.HolderUsername != nil {
		s.HolderUsername = stringPtr(*s.HolderUsername)
	}
	if s.CurrentPrice != nil {
		price := *s.CurrentPrice
		s.CurrentPrice = &price
	}
	return s
}

func stringPtr(s string) *string {
	return &s
}
