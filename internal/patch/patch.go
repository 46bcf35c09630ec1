// Package patch implements campaign hot-patching: a published campaign
// can receive an RFC 6902 JSON Patch document, and any journey paused
// or about to be created against that campaign picks up the patched
// workflow the next time its IR is (re)compiled. Adapted from the
// teacher's orchestrator materializer, which applies a chain of
// patches to a base workflow document the same way.
package patch

import (
	"encoding/json"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/journeyengine/internal/journey"
)

// entry is one patch in a campaign's chain, in application order.
type entry struct {
	seq        int
	operations json.RawMessage
}

// Store holds the patch chain for every campaign that has received
// one. Campaigns never patched have no entry and materialize to
// themselves unchanged.
type Store struct {
	mu     sync.RWMutex
	chains map[string][]entry
}

// New returns an empty patch Store.
func New() *Store {
	return &Store{chains: make(map[string][]entry)}
}

// Add validates operations against the campaign's current materialized
// form and, if it applies cleanly, appends it to the chain. Returns a
// *journey.WorkflowError if the patch cannot be decoded or does not
// apply.
func (s *Store) Add(base *journey.Campaign, operations json.RawMessage) error {
	materialized, err := s.Materialize(base)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(materialized)
	if err != nil {
		return fmt.Errorf("patch: marshalling campaign %q: %w", base.CampaignID, err)
	}
	if _, err := applyOne(doc, operations); err != nil {
		return &journey.WorkflowError{CampaignID: base.CampaignID, Reason: fmt.Sprintf("patch does not apply: %v", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[base.CampaignID]
	s.chains[base.CampaignID] = append(chain, entry{seq: len(chain) + 1, operations: operations})
	return nil
}

// Clear drops every patch registered for a campaign, reverting it to
// its published base the next time it is materialized.
func (s *Store) Clear(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, campaignID)
}

// Materialize applies every patch registered for base.CampaignID, in
// sequence, and unmarshals the result into a fresh Campaign. base
// itself is never mutated.
func (s *Store) Materialize(base *journey.Campaign) (*journey.Campaign, error) {
	s.mu.RLock()
	chain := append([]entry(nil), s.chains[base.CampaignID]...)
	s.mu.RUnlock()

	if len(chain) == 0 {
		return base, nil
	}

	current, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("patch: marshalling base campaign %q: %w", base.CampaignID, err)
	}

	for _, e := range chain {
		current, err = applyOne(current, e.operations)
		if err != nil {
			return nil, fmt.Errorf("patch: applying patch seq %d to campaign %q: %w", e.seq, base.CampaignID, err)
		}
	}

	var materialized journey.Campaign
	if err := json.Unmarshal(current, &materialized); err != nil {
		return nil, fmt.Errorf("patch: unmarshalling materialized campaign %q: %w", base.CampaignID, err)
	}
	return &materialized, nil
}

func applyOne(doc []byte, operations json.RawMessage) ([]byte, error) {
	ops, err := jsonpatch.DecodePatch(operations)
	if err != nil {
		return nil, fmt.Errorf("decoding patch operations: %w", err)
	}
	result, err := ops.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("applying patch operations: %w", err)
	}
	return result, nil
}

