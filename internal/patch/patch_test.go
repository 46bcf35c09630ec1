package patch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/journeyengine/internal/journey"
)

func testCampaign() *journey.Campaign {
	return &journey.Campaign{
		CampaignID:       "camp_1",
		Name:             "original",
		Version:          1,
		EntryNodeID:      "exit",
		FrequencyPolicy:  journey.FrequencyOnce,
		FrequencyInterval: 3600,
		Workflow: map[string]journey.NodeDef{
			"exit": {ID: "exit", Kind: journey.KindExit},
		},
	}
}

func TestStore_MaterializeWithNoPatchesReturnsBaseUnchanged(t *testing.T) {
	s := New()
	base := testCampaign()

	got, err := s.Materialize(base)
	require.NoError(t, err)
	require.Same(t, base, got)
}

func TestStore_AddThenMaterializeAppliesPatch(t *testing.T) {
	s := New()
	base := testCampaign()

	op := []byte(`[{"op":"replace","path":"/name","value":"patched"}]`)
	require.NoError(t, s.Add(base, op))

	got, err := s.Materialize(base)
	require.NoError(t, err)
	require.Equal(t, "patched", got.Name)
	require.Equal(t, "original", base.Name, "base must not be mutated")
}

func TestStore_PatchChainAppliesInOrder(t *testing.T) {
	s := New()
	base := testCampaign()

	require.NoError(t, s.Add(base, []byte(`[{"op":"replace","path":"/frequency_policy","value":"every_rematch"}]`)))
	require.NoError(t, s.Add(base, []byte(`[{"op":"replace","path":"/frequency_interval","value":7200}]`)))

	got, err := s.Materialize(base)
	require.NoError(t, err)
	require.Equal(t, journey.FrequencyEveryRematch, got.FrequencyPolicy)
	require.EqualValues(t, 7200, got.FrequencyInterval)
}

func TestStore_AddRejectsPatchThatDoesNotApply(t *testing.T) {
	s := New()
	base := testCampaign()

	op := []byte(`[{"op":"test","path":"/name","value":"not-the-actual-name"}]`)
	err := s.Add(base, op)
	require.Error(t, err)

	var wfErr *journey.WorkflowError
	require.ErrorAs(t, err, &wfErr)
}

func TestStore_AddRejectsMalformedPatchDocument(t *testing.T) {
	s := New()
	base := testCampaign()

	err := s.Add(base, []byte(`not json`))
	require.Error(t, err)
}

func TestStore_ClearRevertsToUnpatchedBase(t *testing.T) {
	s := New()
	base := testCampaign()
	require.NoError(t, s.Add(base, []byte(`[{"op":"replace","path":"/name","value":"patched"}]`)))

	s.Clear(base.CampaignID)

	got, err := s.Materialize(base)
	require.NoError(t, err)
	require.Equal(t, "original", got.Name)
}

func TestStore_AddingNodeViaPatch(t *testing.T) {
	s := New()
	base := testCampaign()

	op := []byte(`[
		{"op":"add","path":"/workflow/extra","value":{"id":"extra","kind":"exit"}},
		{"op":"replace","path":"/entry_node_id","value":"extra"}
	]`)
	require.NoError(t, s.Add(base, op))

	got, err := s.Materialize(base)
	require.NoError(t, err)
	require.Equal(t, "extra", got.EntryNodeID)
	require.Contains(t, got.Workflow, "extra")
}
