package component

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/errs"
)

type loc struct{ path string }

var locType = reflect.TypeOf((*loc)(nil))

// sizer is a storage-like implementation whose GetSize result is
// controlled by the test.
type sizer struct {
	result any
	calls  *int
}

func (s *sizer) GetSize(ctx context.Context, l *loc) (any, error) {
	*s.calls++
	return s.result, nil
}

func (s *sizer) Record(v any, labels map[string]any, more ...any) int {
	*s.calls++
	return len(more)
}

func storageInterface(t *testing.T) *RegisteredInterface {
	t.Helper()
	iface, err := NewInterface("Storage", nil, map[string]any{"scheme": "file"},
		contract.MustMethod("GetSize", contract.Object("location", locType)).Returning(contract.Returns(contract.KindInt).WithDefault(nil)),
		contract.MustMethod("Record", contract.Int("value"), contract.Rest("more", contract.KindAny), contract.Keywords("labels", contract.KindString)).Returning(contract.Returns(contract.KindInt)),
	)
	require.NoError(t, err)
	ri, err := Register(iface, "storage", KVP, WithRegistryKeys("type"))
	require.NoError(t, err)
	return ri
}

func implement(t *testing.T, ri *RegisteredInterface, result any, level ValidationLevel) (*Instance, *int) {
	t.Helper()
	calls := new(int)
	d, err := Implement(Implementation{
		ID:             "storage.test",
		Interface:      ri,
		Type:           reflect.TypeOf((*sizer)(nil)),
		New:            func(Env) (any, error) { return &sizer{result: result, calls: calls}, nil },
		RegistryValues: map[string]string{"type": "test"},
	}, Levels{Global: level})
	require.NoError(t, err)
	inst, err := d.Instantiate(nil)
	require.NoError(t, err)
	return inst, calls
}

func TestInstance_ReturnMismatch(t *testing.T) {
	t.Parallel()
	ri := storageInterface(t)

	t.Run("fail rejects a string size", func(t *testing.T) {
		t.Parallel()
		inst, _ := implement(t, ri, "12", Fail)

		_, err := inst.Call(context.Background(), "GetSize", &loc{path: "/tmp"})

		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrTypeMismatch)
		assert.Contains(t, err.Error(), "return value: expected int or nil, got string")
	})

	t.Run("trust passes it through", func(t *testing.T) {
		t.Parallel()
		inst, _ := implement(t, ri, "12", Trust)

		out, err := inst.Call(context.Background(), "GetSize", &loc{path: "/tmp"})

		require.NoError(t, err)
		assert.Equal(t, "12", out)
	})

	t.Run("warn logs and passes it through", func(t *testing.T) {
		t.Parallel()
		inst, _ := implement(t, ri, "12", Warn)

		out, err := inst.Call(context.Background(), "GetSize", &loc{path: "/tmp"})

		require.NoError(t, err)
		assert.Equal(t, "12", out)
	})

	t.Run("fail accepts nil", func(t *testing.T) {
		t.Parallel()
		inst, _ := implement(t, ri, nil, Fail)

		out, err := inst.Call(context.Background(), "GetSize", &loc{path: "/tmp"})

		require.NoError(t, err)
		assert.Nil(t, out)
	})
}

func TestInstance_ArgumentMismatchSideEffects(t *testing.T) {
	t.Parallel()
	ri := storageInterface(t)

	t.Run("fail aborts before the implementation runs", func(t *testing.T) {
		t.Parallel()
		inst, calls := implement(t, ri, nil, Fail)

		_, err := inst.Call(context.Background(), "Record", "not a number")

		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrTypeMismatch)
		assert.Equal(t, 0, *calls)
	})

	t.Run("trust runs the implementation", func(t *testing.T) {
		t.Parallel()
		inst, calls := implement(t, ri, nil, Trust)

		_, err := inst.Call(context.Background(), "Record", "not a number")

		require.NoError(t, err)
		assert.Equal(t, 1, *calls)
	})
}

func TestInstance_BindsRestAndKeywords(t *testing.T) {
	t.Parallel()
	inst, calls := implement(t, storageInterface(t), nil, Fail)

	out, err := inst.CallWithKeywords(context.Background(), "Record",
		map[string]any{"unit": "px"}, 1, "a", "b")

	require.NoError(t, err)
	assert.Equal(t, 2, out)
	assert.Equal(t, 1, *calls)

	_, err = inst.CallWithKeywords(context.Background(), "Record", map[string]any{"value": 2}, 1)
	assert.ErrorIs(t, err, errs.ErrTypeMismatch)
}

func TestInstance_UnknownMethod(t *testing.T) {
	t.Parallel()
	inst, _ := implement(t, storageInterface(t), nil, Trust)

	_, err := inst.Call(context.Background(), "Delete")

	assert.ErrorIs(t, err, errs.ErrUnknownMethod)
	assert.True(t, errs.IsLookup(err))
}

type incomplete struct{}

func (incomplete) Record(v string) int { return 0 }

func TestImplement_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	ri := storageInterface(t)

	_, err := Implement(Implementation{
		ID:             "storage.broken",
		Interface:      ri,
		Type:           reflect.TypeOf(incomplete{}),
		New:            func(Env) (any, error) { return incomplete{}, nil },
		RegistryValues: map[string]string{"kind": "x"},
	}, Levels{})

	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrContract)
	msg := err.Error()
	assert.Contains(t, msg, `registry values [kind] do not match the registry keys [type]`)
	assert.Contains(t, msg, "does not define method GetSize")
	assert.Contains(t, msg, "Record")
}

func TestImplement_BindingRequirements(t *testing.T) {
	t.Parallel()
	empty := MustInterface("Empty", nil, nil)
	newFn := func(Env) (any, error) { return incomplete{}, nil }

	tests := []struct {
		name    string
		binding BindingMethod
		impl    Implementation
		wantErr string
	}{
		{
			name:    "factory without factory ids",
			binding: Factory,
			impl:    Implementation{ID: "a"},
			wantErr: "requires factory ids",
		},
		{
			name:    "testing without Test method",
			binding: Testing,
			impl:    Implementation{ID: "a"},
			wantErr: "requires a Test(map[string]any) bool method",
		},
		{
			name:    "registry values on direct",
			binding: Direct,
			impl:    Implementation{ID: "a", RegistryValues: map[string]string{"type": "x"}},
			wantErr: "only valid for kvp interfaces",
		},
		{
			name:    "direct",
			binding: Direct,
			impl:    Implementation{ID: "a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.impl.Interface = MustRegister(empty, "empty", tt.binding)
			tt.impl.Type = reflect.TypeOf(incomplete{})
			tt.impl.New = newFn

			d, err := Implement(tt.impl, Levels{})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d.Enabled())
			assert.Equal(t, "a", d.Name)
		})
	}
}

func TestLevels_Effective(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Trust, Levels{}.Effective())
	assert.Equal(t, Warn, Levels{Global: Warn}.Effective())
	assert.Equal(t, Fail, Levels{Interface: Fail, Global: Warn}.Effective())
	assert.Equal(t, Trust, Levels{Implementation: Trust, Interface: Fail, Global: Warn}.Effective())
}

func TestParseValidationLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]ValidationLevel{"": LevelUnset, "TRUST": Trust, "warn": Warn, " fail ": Fail} {
		got, err := ParseValidationLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseValidationLevel("strict")
	assert.Error(t, err)
}

func TestInterface_Inheritance(t *testing.T) {
	t.Parallel()
	base := MustInterface("Location", nil, map[string]any{"scheme": "any", "root": "/"},
		contract.MustMethod("Path").Returning(contract.Returns(contract.KindString)),
		contract.MustMethod("Exists").Returning(contract.Returns(contract.KindBool)),
	)
	child := MustInterface("LocalPath", []*Interface{base}, map[string]any{"scheme": "file"},
		contract.MustMethod("Exists", contract.Bool("follow")).Returning(contract.Returns(contract.KindBool)),
	)

	assert.Equal(t, map[string]any{"scheme": "file", "root": "/"}, child.Config())
	m, ok := child.Method("Exists")
	require.True(t, ok)
	assert.Len(t, m.Args, 1)
	_, ok = child.Method("Path")
	assert.True(t, ok)
	assert.True(t, child.Extends(base))
	assert.False(t, base.Extends(child))

	_, err := NewInterface("Dup", nil, nil, contract.MustMethod("A"), contract.MustMethod("A"))
	assert.ErrorIs(t, err, errs.ErrContract)
}

func TestRegister_KeysMatchBinding(t *testing.T) {
	t.Parallel()
	iface := MustInterface("Empty", nil, nil)

	_, err := Register(iface, "x", KVP)
	assert.ErrorContains(t, err, "kvp binding requires registry keys")
	_, err = Register(iface, "x", Direct, WithRegistryKeys("type"))
	assert.ErrorContains(t, err, "only valid for kvp binding")
	_, err = Register(iface, "x", KVP, WithRegistryKeys("type", "type"))
	assert.ErrorContains(t, err, "declared more than once")
	_, err = Register(iface, "x", "magic")
	assert.ErrorContains(t, err, "unknown binding method")
}

func TestDescriptor_CloneHasIndependentFlag(t *testing.T) {
	t.Parallel()
	inst, _ := implement(t, storageInterface(t), nil, Trust)
	d := inst.Descriptor()

	c := d.Clone()
	c.SetEnabled(false)

	assert.True(t, d.Enabled())
	assert.False(t, c.Enabled())
	assert.Equal(t, d.RegistryValues, c.RegistryValues)
}

// counter narrows numeric arguments to small Go types.
type counter struct{ received []any }

func (c *counter) Small(v int8) int     { c.received = append(c.received, v); return int(v) }
func (c *counter) Count(n uint) int     { c.received = append(c.received, n); return int(n) }
func (c *counter) Whole(n int) int      { c.received = append(c.received, n); return n }
func (c *counter) Ratio(f float32) bool { c.received = append(c.received, f); return f > 0 }

func counterInstance(t *testing.T, level ValidationLevel) (*Instance, *counter) {
	t.Helper()
	iface, err := NewInterface("Counter", nil, nil,
		contract.MustMethod("Small", contract.Int("v")).Returning(contract.Returns(contract.KindInt)),
		contract.MustMethod("Count", contract.Int("n")).Returning(contract.Returns(contract.KindInt)),
		contract.MustMethod("Whole", contract.Int("n")).Returning(contract.Returns(contract.KindInt)),
		contract.MustMethod("Ratio", contract.Float("f")).Returning(contract.Returns(contract.KindBool)),
	)
	require.NoError(t, err)
	ri, err := Register(iface, "counter", Direct)
	require.NoError(t, err)
	c := &counter{}
	d, err := Implement(Implementation{
		ID:        "counter.test",
		Interface: ri,
		Type:      reflect.TypeOf(c),
		New:       func(Env) (any, error) { return c, nil },
	}, Levels{Global: level})
	require.NoError(t, err)
	inst, err := d.Instantiate(nil)
	require.NoError(t, err)
	return inst, c
}

func TestInstance_NumericArgumentsAreNotCorrupted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		arg    any
		want   any
	}{
		{name: "int overflows int8", method: "Small", arg: 300},
		{name: "negative int to uint", method: "Count", arg: -1},
		{name: "fraction to int", method: "Whole", arg: 3.9},
		{name: "float64 overflows float32", method: "Ratio", arg: 1e300},
		{name: "int fits int8", method: "Small", arg: 100, want: 100},
		{name: "positive int to uint", method: "Count", arg: 7, want: 7},
	}

	for _, level := range []ValidationLevel{Trust, Warn, Fail} {
		for _, tc := range tests {
			t.Run(level.String()+"/"+tc.name, func(t *testing.T) {
				t.Parallel()
				inst, c := counterInstance(t, level)

				out, err := inst.Call(context.Background(), tc.method, tc.arg)

				if tc.want == nil {
					require.Error(t, err)
					assert.ErrorIs(t, err, errs.ErrTypeMismatch)
					assert.Empty(t, c.received)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tc.want, out)
				assert.Len(t, c.received, 1)
			})
		}
	}
}
