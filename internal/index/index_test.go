package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/model"
)

func TestPutMaintainsCapabilityIndex(t *testing.T) {
	idx := New()
	a := &model.AgentRegistration{
		ID: "a1", Name: "a1", Namespace: "default",
		Capabilities: []model.Capability{{Name: "read_file"}, {Name: "write_file"}},
	}
	idx.Put(a)

	assert.Contains(t, idx.ByCapability("read_file"), "a1")
	assert.Contains(t, idx.ByCapability("write_file"), "a1")
	assert.Contains(t, idx.ByNamespace("default"), "a1")
}

func TestPutReplacesPreviousCapabilities(t *testing.T) {
	idx := New()
	idx.Put(&model.AgentRegistration{ID: "a1", Name: "a1", Namespace: "default",
		Capabilities: []model.Capability{{Name: "old"}}})
	idx.Put(&model.AgentRegistration{ID: "a1", Name: "a1", Namespace: "default",
		Capabilities: []model.Capability{{Name: "new"}}})

	assert.Empty(t, idx.ByCapability("old"))
	assert.Contains(t, idx.ByCapability("new"), "a1")
}

func TestRemoveClearsAllIndexes(t *testing.T) {
	idx := New()
	idx.Put(&model.AgentRegistration{ID: "a1", Name: "a1", Namespace: "ns1",
		Capabilities: []model.Capability{{Name: "cap"}}})
	idx.Remove("a1")

	assert.Nil(t, idx.Get("a1"))
	assert.Empty(t, idx.ByCapability("cap"))
	assert.Empty(t, idx.ByNamespace("ns1"))
	assert.Equal(t, 0, idx.Len())
}

func TestGetReturnsIndependentClone(t *testing.T) {
	idx := New()
	idx.Put(&model.AgentRegistration{ID: "a1", Name: "a1", Namespace: "default", Labels: map[string]string{"k": "v"}})

	got := idx.Get("a1")
	require.NotNil(t, got)
	got.Labels["k"] = "mutated"

	got2 := idx.Get("a1")
	assert.Equal(t, "v", got2.Labels["k"], "mutating a returned clone must not affect the index")
}
