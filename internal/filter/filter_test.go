package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/types"
)

func spec(kind types.Kind, name string, labels map[string]string) types.EntitySpec {
	return types.EntitySpec{Kind: kind, Identity: types.Identity{Name: name}, Labels: labels}
}

func TestShouldReconcileKind(t *testing.T) {
	f := New(nil, nil, nil)
	assert.True(t, f.ShouldReconcileKind(types.KindHost))

	f = New([]types.Kind{types.KindCommand}, nil, nil)
	assert.True(t, f.ShouldReconcileKind(types.KindHost))
	assert.False(t, f.ShouldReconcileKind(types.KindCommand))
}

func TestShouldInclude(t *testing.T) {
	tests := []struct {
		name    string
		exclude []types.Kind
		include map[string]string
		skip    map[string]string
		labels  map[string]string
		want    bool
	}{
		{"no filters", nil, nil, nil, map[string]string{"env": "prod"}, true},
		{"include match", nil, map[string]string{"env": "prod"}, nil, map[string]string{"env": "prod", "team": "ops"}, true},
		{"include mismatch", nil, map[string]string{"env": "prod"}, nil, map[string]string{"env": "staging"}, false},
		{"include needs all", nil, map[string]string{"env": "prod", "team": "ops"}, nil, map[string]string{"env": "prod"}, false},
		{"include nil labels", nil, map[string]string{"env": "prod"}, nil, nil, false},
		{"exclude match", nil, nil, map[string]string{"skip": "true"}, map[string]string{"skip": "true"}, false},
		{"exclude any", nil, nil, map[string]string{"skip": "true", "ignore": "yes"}, map[string]string{"ignore": "yes"}, false},
		{"exclude no match", nil, nil, map[string]string{"skip": "true"}, map[string]string{"env": "prod"}, true},
		{"include and exclude", nil, map[string]string{"env": "prod"}, map[string]string{"skip": "true"}, map[string]string{"env": "prod", "skip": "true"}, false},
		{"excluded kind", []types.Kind{types.KindHost}, nil, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.exclude, tt.include, tt.skip)
			assert.Equal(t, tt.want, f.ShouldInclude(spec(types.KindHost, "web01", tt.labels)))
		})
	}
}

func TestFilterSpecs(t *testing.T) {
	f := New(nil, map[string]string{"env": "prod"}, nil)
	specs := []types.EntitySpec{
		spec(types.KindHost, "a", map[string]string{"env": "prod"}),
		spec(types.KindHost, "b", map[string]string{"env": "staging"}),
		spec(types.KindCommand, "c", map[string]string{"env": "prod"}),
	}

	filtered := f.FilterSpecs(specs)
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].Name)
	assert.Equal(t, "c", filtered[1].Name)

	assert.Len(t, New(nil, nil, nil).FilterSpecs(specs), 3)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, New(nil, nil, nil).IsEmpty())
	assert.False(t, New([]types.Kind{types.KindHost}, nil, nil).IsEmpty())
	assert.False(t, New(nil, map[string]string{"env": "prod"}, nil).IsEmpty())
	assert.False(t, New(nil, nil, map[string]string{"skip": "true"}).IsEmpty())
}

func TestParseSelector(t *testing.T) {
	labels, err := ParseSelector("env=prod, team = ops")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "prod", "team": "ops"}, labels)

	labels, err = ParseSelector("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseSelector("env")
	assert.Error(t, err)
	_, err = ParseSelector("=prod")
	assert.Error(t, err)
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"Host", "command"})
	require.NoError(t, err)
	assert.Equal(t, []types.Kind{types.KindHost, types.KindCommand}, kinds)

	_, err = ParseKinds([]string{"router"})
	assert.Error(t, err)
}
