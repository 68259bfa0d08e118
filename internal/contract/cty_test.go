package contract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestToCtyValue_DynamicContainers(t *testing.T) {
	t.Parallel()
	val, err := ToCtyValue(map[string]any{
		"name": "tile",
		"size": 3,
		"tags": []any{"a", true},
	})
	require.NoError(t, err)
	require.True(t, val.Type().IsObjectType())
	require.Equal(t, cty.StringVal("tile"), val.GetAttr("name"))
	require.True(t, val.GetAttr("tags").Type().IsTupleType())
}

func TestFromCtyValue(t *testing.T) {
	t.Parallel()
	val := cty.ObjectVal(map[string]cty.Value{
		"count": cty.NumberIntVal(3),
		"ratio": cty.NumberFloatVal(0.5),
		"names": cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
		"ok":    cty.True,
		"none":  cty.NullVal(cty.String),
	})

	got, err := FromCtyValue(val)
	require.NoError(t, err)

	want := map[string]any{
		"count": 3,
		"ratio": 0.5,
		"names": []any{"a", "b"},
		"ok":    true,
		"none":  nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromCtyValue() mismatch (-want +got):\n%s", diff)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	require.Equal(t, KindString, KindOf(cty.String))
	require.Equal(t, KindFloat, KindOf(cty.Number))
	require.Equal(t, KindList, KindOf(cty.List(cty.String)))
	require.Equal(t, KindDict, KindOf(cty.Map(cty.Bool)))
	require.Equal(t, KindAny, KindOf(cty.DynamicPseudoType))
	require.Equal(t, KindAny, KindOf(cty.NilType))
}

func TestArgSpec_HasType(t *testing.T) {
	t.Parallel()
	assert.False(t, String("name").HasType())
	assert.False(t, Any("v").WithType(cty.DynamicPseudoType).HasType())
	assert.True(t, List("tags").WithType(cty.List(cty.String)).HasType())
	assert.Equal(t, "list of string", List("tags").WithType(cty.List(cty.String)).expected())
	assert.Equal(t, "string", String("name").expected())
}
