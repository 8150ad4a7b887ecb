package prompt

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		answer  string
		want    any
		wantErr bool
	}{
		{"identifier", Input{Kind: KindIdentifier}, " Widget ", "Widget", false},
		{"bad identifier", Input{Kind: KindIdentifier}, "9lives", nil, true},
		{"flag yes", Input{Kind: KindFlag}, "Y", true, false},
		{"flag no", Input{Kind: KindFlag}, "0", false, false},
		{"flag default", Input{Kind: KindFlag, Default: "yes"}, "", true, false},
		{"flag garbage", Input{Kind: KindFlag}, "maybe", nil, true},
		{"choice", Input{Kind: KindChoice, Choices: []string{"thin", "thick"}}, "thick", "thick", false},
		{"choice default", Input{Kind: KindChoice, Choices: []string{"thin", "thick"}, Default: "thin"}, "", "thin", false},
		{"choice unknown", Input{Kind: KindChoice, Choices: []string{"thin"}}, "fat", nil, true},
		{"int", Input{Kind: KindInt}, "3", 3, false},
		{"int bad", Input{Kind: KindInt}, "three", nil, true},
		{"text", Input{Kind: KindText}, "draw shapes", "draw shapes", false},
		{"text empty", Input{Kind: KindText}, "  ", nil, true},
		{"text optional", Input{Kind: KindText, Optional: true}, "", "", false},
		{"type auto", Input{Kind: KindType}, "", "auto", false},
		{"type", Input{Kind: KindType}, "const T&", "const T&", false},
		{"unknown kind", Input{Kind: "color"}, "red", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Parse(tt.answer)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.answer, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.answer, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.answer, diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	ok := Input{Name: "abstraction", Kind: KindChoice, Query: "Enter class abstraction", Choices: []string{"thin", "thick", "verythick"}, Default: "thin"}
	require.NoError(t, ok.Validate())

	bad := []Input{
		{Name: "class name", Kind: KindText, Query: "q"},
		{Name: "x", Kind: "color", Query: "q"},
		{Name: "x", Kind: KindText},
		{Name: "x", Kind: KindChoice, Query: "q"},
		{Name: "x", Kind: KindChoice, Query: "q", Choices: []string{"a", "a"}},
		{Name: "x", Kind: KindInt, Query: "q", Choices: []string{"1"}},
		{Name: "x", Kind: KindInt, Query: "q", Default: "many"},
	}
	for _, in := range bad {
		require.Error(t, in.Validate(), "%+v", in)
	}
}

func TestLabel(t *testing.T) {
	in := Input{Kind: KindFlag, Query: "Does the class acquire a resource", Ref: "ECPP.13"}
	require.Equal(t, "Does the class acquire a resource (y/n) [ref: ECPP.13]", in.Label())
	in = Input{Kind: KindChoice, Query: "Class type", Choices: []string{"concrete", "hierarchy"}}
	require.Equal(t, "Class type (concrete, hierarchy)", in.Label())
}

func TestCollect(t *testing.T) {
	inputs := []Input{
		{Name: "classname", Kind: KindIdentifier, Query: "Enter class name"},
		{Name: "type", Kind: KindChoice, Query: "Class type", Choices: []string{"concrete", "hierarchy"}, Default: "concrete"},
		{Name: "raii", Kind: KindFlag, Query: "RAII", Default: "n", When: "type == 'concrete'"},
		{Name: "base", Kind: KindFlag, Query: "Base class", When: "type == 'hierarchy'"},
	}
	var asked []string
	cond := func(in Input, answers map[string]any) (bool, error) {
		asked = append(asked, in.Name)
		return in.Name == "raii" && answers["type"] == "concrete", nil
	}
	got, err := Collect(Answers{"classname": "Widget", "raii": "y"}, inputs, cond)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"classname": "Widget", "type": "concrete", "raii": true}, got)
	require.Equal(t, []string{"raii", "base"}, asked)
}

func TestCollectErrors(t *testing.T) {
	inputs := []Input{{Name: "count", Kind: KindInt, Query: "How many"}}
	_, err := Collect(Answers{"count": "lots"}, inputs, nil)
	require.ErrorContains(t, err, `input "count"`)

	inputs[0].When = "yes"
	boom := errors.New("boom")
	_, err = Collect(Answers{}, inputs, func(Input, map[string]any) (bool, error) { return false, boom })
	require.ErrorIs(t, err, boom)
}
