package main

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/labels"
)

type fakeDiscoverer struct {
	results [][]runtimeContainer
	errs    []error
	calls   int
	onList  func()
}

func (f *fakeDiscoverer) ListContainers(ctx context.Context) ([]runtimeContainer, error) {
	i := f.calls
	f.calls++
	if f.onList != nil {
		f.onList()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.results) {
		return f.results[len(f.results)-1], nil
	}
	return f.results[i], nil
}

func rc(id, name string, labels map[string]string) runtimeContainer {
	return runtimeContainer{ID: id, Names: []string{"/" + name}, Labels: labels}
}

func TestSnapshotUnchangedLiveSetHasNoDuplicates(t *testing.T) {
	live := []runtimeContainer{rc("a", "x", nil), rc("b", "y", nil), rc("a", "x", nil)}
	r := newRegistry(&fakeDiscoverer{results: [][]runtimeContainer{live}}, "", nil)

	for i := 0; i < 3; i++ {
		got, err := r.snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []container{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}, got)
	}
}

func TestSnapshotCarriesVanishedContainerForOneCycle(t *testing.T) {
	d := &fakeDiscoverer{results: [][]runtimeContainer{
		{rc("a", "x", nil), rc("b", "y", nil)},
		{rc("a", "x", nil)},
		{rc("a", "x", nil), rc("c", "z", nil)},
	}}
	r := newRegistry(d, "", nil)

	first, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "x"}, {"b", "y"}}, first)

	second, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "x"}, {"b", "y"}}, second)

	third, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "x"}, {"c", "z"}}, third)
}

func TestSnapshotRenamedContainerIsKeptUnderBothNames(t *testing.T) {
	d := &fakeDiscoverer{results: [][]runtimeContainer{
		{rc("a", "old", nil)},
		{rc("a", "new", nil)},
	}}
	r := newRegistry(d, "", nil)
	_, err := r.snapshot(context.Background())
	require.NoError(t, err)

	got, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "new"}, {"a", "old"}}, got)
}

func TestSnapshotResolvesNames(t *testing.T) {
	d := &fakeDiscoverer{results: [][]runtimeContainer{{
		rc("a", "web-1", map[string]string{"instance": "web"}),
		rc("b", "db-1", map[string]string{"instance": ""}),
		rc("c", "cache-1", nil),
	}}}
	r := newRegistry(d, "instance", nil)

	got, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "web"}, {"b", "db-1"}, {"c", "cache-1"}}, got)
}

func TestSnapshotNameWithoutLabelConfigured(t *testing.T) {
	d := &fakeDiscoverer{results: [][]runtimeContainer{{
		rc("a", "web-1", map[string]string{"instance": "web"}),
		{ID: "b"},
	}}}
	r := newRegistry(d, "", nil)

	got, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "web-1"}, {"b", ""}}, got)
}

func TestSnapshotAppliesSelector(t *testing.T) {
	selector, err := labels.Parse("app=web,!nolog")
	require.NoError(t, err)
	d := &fakeDiscoverer{results: [][]runtimeContainer{{
		rc("a", "web-1", map[string]string{"app": "web"}),
		rc("b", "web-2", map[string]string{"app": "web", "nolog": "true"}),
		rc("c", "db-1", map[string]string{"app": "db"}),
	}}}
	r := newRegistry(d, "", selector)

	got, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []container{{"a", "web-1"}}, got)
}

func TestSnapshotPropagatesDiscoveryError(t *testing.T) {
	boom := errors.New("daemon is down")
	d := &fakeDiscoverer{
		results: [][]runtimeContainer{{rc("a", "x", nil)}, {rc("a", "x", nil)}},
		errs:    []error{nil, boom},
	}
	r := newRegistry(d, "", nil)
	_, err := r.snapshot(context.Background())
	require.NoError(t, err)

	_, err = r.snapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, boom, errors.Cause(err))
	assert.Equal(t, []container{{"a", "x"}}, r.previous)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}
