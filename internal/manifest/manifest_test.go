package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Manifest {
	m := New()
	m.Add(
		Entry{Kind: KindPUMA, StateFIPS: 6, URL: "u1", Path: "p1"},
		Entry{Kind: KindPUMA, StateFIPS: 1, URL: "u2", Path: "p2"},
		Entry{Kind: KindRoad, StateFIPS: 6, CountyID: "06001", Year: 2019, URL: "u3", Path: "p3"},
		Entry{Kind: KindRoad, StateFIPS: 6, CountyID: "06003", Year: 2019, URL: "u4", Path: "p4"},
		Entry{Kind: KindRoad, StateFIPS: 6, CountyID: "06001", Year: 2018, URL: "u5", Path: "p5"},
	)
	return m
}

func TestLookup(t *testing.T) {
	m := sample()

	assert.Len(t, m.Lookup(KindPUMA, 6, 0), 1)
	assert.Len(t, m.Lookup(KindPUMA, 0, 0), 2)
	assert.Len(t, m.Lookup(KindRoad, 6, 2019), 2)
	assert.Empty(t, m.Lookup(KindBlock, 6, 0))
	assert.Equal(t, []int{1, 6}, m.States(KindPUMA))
}

func TestAddReplacesSameKey(t *testing.T) {
	m := sample()
	m.Add(Entry{Kind: KindPUMA, StateFIPS: 6, URL: "new", Path: "p1"})

	assert.Equal(t, 5, m.Len())
	got := m.Lookup(KindPUMA, 6, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].URL)
	assert.Equal(t, StatusPending, got[0].Status)
}

func TestAddKeepsStatusOfUnchangedEntry(t *testing.T) {
	m := sample()
	e := m.Lookup(KindPUMA, 6, 0)[0]
	m.Mark(e.Key(), nil)

	e.Status = ""
	m.Add(e)
	assert.Equal(t, StatusFetched, m.Lookup(KindPUMA, 6, 0)[0].Status)
}

func TestMark(t *testing.T) {
	m := sample()
	e := m.Lookup(KindPUMA, 6, 0)[0]

	m.Mark(e.Key(), errors.New("http 404"))
	got := m.Lookup(KindPUMA, 6, 0)[0]
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "http 404", got.Error)

	m.Mark(e.Key(), nil)
	got = m.Lookup(KindPUMA, 6, 0)[0]
	assert.Equal(t, StatusFetched, got.Status)
	assert.Empty(t, got.Error)

	m.Mark("missing", nil)
}

func TestSaveLoad(t *testing.T) {
	m := sample()
	m.Mark(m.Entries()[0].Key(), nil)
	path := filepath.Join(t.TempDir(), "data", "manifest.yaml")

	require.NoError(t, m.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, m.Entries(), loaded.Entries())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
