package namelist

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyChangeEvalBool(t *testing.T) {
	doc, err := ParseBytes([]byte(inputOrgSource), "INPUT_ORG")
	require.NoError(t, err)

	before := string(doc.Serialize())

	err = Apply(doc, []Op{{
		Kind:  OpChange,
		File:  "INPUT_ORG",
		Block: "runctl",
		Param: "lreproduce",
		Type:  TypeEval,
		Value: "True",
	}})
	require.NoError(t, err)

	b, _ := doc.Block("runctl", 1)
	v, ok := b.Get("lreproduce")
	require.True(t, ok)
	assert.Equal(t, KindBool, v.Kind)
	assert.True(t, v.Bool)

	after := string(doc.Serialize())
	assert.Contains(t, after, "lreproduce = .true.")

	// Everything outside the patched block is byte-identical.
	tuningBefore := before[indexOf(t, before, "&tuning"):]
	tuningAfter := after[indexOf(t, after, "&tuning"):]
	assert.Equal(t, tuningBefore, tuningAfter)
}

func TestApplyEmptyKindDefaultsToChange(t *testing.T) {
	doc, err := ParseBytes([]byte(inputOrgSource), "INPUT_ORG")
	require.NoError(t, err)

	// Setup files normally omit op: for change patches.
	err = Apply(doc, []Op{{
		File:  "INPUT_ORG",
		Block: "runctl",
		Param: "dt",
		Type:  TypeFloat,
		Value: "90.0",
	}})
	require.NoError(t, err)

	b, _ := doc.Block("runctl", 1)
	v, ok := b.Get("dt")
	require.True(t, ok)
	assert.Equal(t, KindFloat, v.Kind)
	assert.Equal(t, 90.0, v.Float)

	err = Apply(doc, []Op{{Kind: "replace", Block: "runctl", Param: "dt", Value: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown patch operation "replace"`)
}

func TestApplyChangeMissingTarget(t *testing.T) {
	doc, err := ParseBytes([]byte(inputOrgSource), "INPUT_ORG")
	require.NoError(t, err)

	err = Apply(doc, []Op{{
		Kind:  OpChange,
		File:  "INPUT_ORG",
		Block: "ioctl",
		Param: "ngribout",
		Type:  TypeInt,
		Value: "3",
	}})
	var tnf *TargetNotFoundError
	require.Error(t, err)
	require.True(t, errors.As(err, &tnf))
	assert.Equal(t, "ioctl", tnf.Block)
	assert.Equal(t, 1, tnf.Instance)

	// Second instance of a once-present block is also a miss.
	err = Apply(doc, []Op{{Kind: OpChange, Block: "runctl", Instance: 2, Param: "dt", Type: TypeFloat, Value: "30"}})
	require.True(t, errors.As(err, &tnf))
}

func TestApplyDeleteIdempotent(t *testing.T) {
	doc, err := ParseBytes([]byte(inputOrgSource), "INPUT_ORG")
	require.NoError(t, err)

	del := Op{Kind: OpDelete, File: "INPUT_ORG", Block: "runctl", Param: "hstart"}
	require.NoError(t, Apply(doc, []Op{del}))
	once := string(doc.Serialize())
	assert.NotContains(t, once, "hstart")

	require.NoError(t, Apply(doc, []Op{del}))
	assert.Equal(t, once, string(doc.Serialize()))

	// Deleting from an absent block is silent too.
	require.NoError(t, Apply(doc, []Op{{Kind: OpDelete, Block: "nosuch", Param: "x"}}))
}

func TestApplyInstanceTargeting(t *testing.T) {
	doc, err := ParseBytes([]byte(inputIOSource), "INPUT_IO")
	require.NoError(t, err)

	err = Apply(doc, []Op{{
		Kind:     OpChange,
		Block:    "gribout",
		Instance: 2,
		Param:    "lwrite_const",
		Type:     TypeBool,
		Value:    "false",
	}})
	require.NoError(t, err)

	out := string(doc.Serialize())
	// First gribout block stays raw.
	assert.Contains(t, out, "&gribout\n    hcomb=0.0, 744.0, 1.0,\n    lwrite_const=.TRUE.,\n")
	// Second is re-rendered with the new parameter appended.
	assert.Contains(t, out, "lwrite_const = .false.")
}

func TestCoerceTable(t *testing.T) {
	tests := []struct {
		typ  ValueType
		text string
		want Value
	}{
		{TypeString, "hello", StringValue("hello")},
		{"", "2020010100", StringValue("2020010100")},
		{TypeInt, "42", IntValue(42)},
		{TypeFloat, "2.5", FloatValue(2.5)},
		{TypeBool, "Yes", BoolValue(true)},
		{TypeBool, ".FALSE.", BoolValue(false)},
		{TypeEval, "True", BoolValue(true)},
		{TypeEval, "7", IntValue(7)},
		{TypeEval, "0.25", FloatValue(0.25)},
		{TypeEval, "'quoted'", StringValue("quoted")},
		{TypeEval, "1, 2, 3", ListValue(IntValue(1), IntValue(2), IntValue(3))},
		{TypeEval, "plain", StringValue("plain")},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.typ, tt.text)
		require.NoError(t, err, "%s %q", tt.typ, tt.text)
		assert.Equal(t, tt.want, got, "%s %q", tt.typ, tt.text)
	}

	_, err := Coerce(TypeInt, "not-a-number")
	assert.Error(t, err)
	_, err = Coerce(TypeBool, "maybe")
	assert.Error(t, err)
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	idx := strings.Index(s, sub)
	require.GreaterOrEqual(t, idx, 0, "substring %q not found", sub)
	return idx
}
