// Package prompt asks the typed questions of a recipe, either on a terminal
// or from a prepared set of answers.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	v "github.com/neurodesk/recpp/pkg/validator"

	"github.com/manifoldco/promptui"
)

type Kind string

const (
	KindIdentifier Kind = "identifier"
	KindFlag       Kind = "flag"
	KindChoice     Kind = "choice"
	KindInt        Kind = "int"
	KindText       Kind = "text"
	// KindType is a C++ type; an empty answer means auto.
	KindType Kind = "type"
)

var kinds = []Kind{KindIdentifier, KindFlag, KindChoice, KindInt, KindText, KindType}

var (
	flagTrue  = []string{"1", "y", "yes", "true"}
	flagFalse = []string{"0", "n", "no", "false"}
)

// Input is one question of a recipe. The parsed answer is bound to Name in
// the render context.
type Input struct {
	Name    string   `yaml:"name"`
	Kind    Kind     `yaml:"kind"`
	Query   string   `yaml:"query"`
	Ref     string   `yaml:"ref,omitempty"`
	Default string   `yaml:"default,omitempty"`
	Choices []string `yaml:"choices,omitempty"`
	// Optional lets a text input be left empty.
	Optional bool `yaml:"optional,omitempty"`
	// When is a condition over the answers so far; the input is skipped
	// when it is false.
	When string `yaml:"when,omitempty"`
}

func (in Input) Validate() error {
	errs := []error{
		v.Identifier(in.Name, "input name"),
		v.MatchesAllowed(in.Kind, kinds, fmt.Sprintf("kind of input %q", in.Name)),
		v.NotEmpty(in.Query, fmt.Sprintf("query of input %q", in.Name)),
	}
	if in.Kind == KindChoice {
		if len(in.Choices) == 0 {
			errs = append(errs, fmt.Errorf("choice input %q has no choices", in.Name))
		}
		errs = append(errs, v.NoDuplicates(in.Choices, fmt.Sprintf("choices of input %q", in.Name)))
	} else if len(in.Choices) > 0 {
		errs = append(errs, fmt.Errorf("input %q of kind %s cannot have choices", in.Name, in.Kind))
	}
	if in.Default != "" {
		if _, err := in.Parse(in.Default); err != nil {
			errs = append(errs, fmt.Errorf("default of input %q: %w", in.Name, err))
		}
	}
	return v.All(errs...)
}

// Label is the question as shown to the user.
func (in Input) Label() string {
	label := in.Query
	switch in.Kind {
	case KindFlag:
		label += " (y/n)"
	case KindType:
		label += " (default: auto)"
	case KindChoice:
		label += " (" + strings.Join(in.Choices, ", ") + ")"
	}
	if in.Ref != "" {
		label += " [ref: " + in.Ref + "]"
	}
	return label
}

// Parse converts a raw answer. An empty answer selects the default.
func (in Input) Parse(answer string) (any, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = in.Default
	}
	switch in.Kind {
	case KindIdentifier:
		if err := v.Identifier(answer, in.Name); err != nil {
			return nil, fmt.Errorf("expecting a C++ identifier: %w", err)
		}
		return answer, nil
	case KindFlag:
		s := strings.ToLower(answer)
		switch {
		case slices.Contains(flagTrue, s):
			return true, nil
		case slices.Contains(flagFalse, s):
			return false, nil
		}
		return nil, fmt.Errorf("expecting one of %s", strings.Join(append(slices.Clone(flagTrue), flagFalse...), "/"))
	case KindChoice:
		if !slices.Contains(in.Choices, answer) {
			return nil, fmt.Errorf("expecting one of %s", strings.Join(in.Choices, "/"))
		}
		return answer, nil
	case KindInt:
		n, err := strconv.Atoi(answer)
		if err != nil {
			return nil, fmt.Errorf("expecting an integer, got %q", answer)
		}
		return n, nil
	case KindText:
		if answer == "" && !in.Optional {
			return nil, errors.New("expecting a non empty answer")
		}
		return answer, nil
	case KindType:
		if answer == "" {
			return "auto", nil
		}
		return answer, nil
	}
	return nil, fmt.Errorf("unknown input kind %q", in.Kind)
}

// Asker returns the parsed answer to an input.
type Asker interface {
	Ask(in Input) (any, error)
}

// Answers answers from a prepared map of raw answers keyed by input name.
// Missing answers fall back to the input default.
type Answers map[string]string

func (a Answers) Ask(in Input) (any, error) {
	val, err := in.Parse(a[in.Name])
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}
	return val, nil
}

// Terminal asks on an interactive terminal. Nil streams use the process
// stdin and stdout.
type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

func (t Terminal) Ask(in Input) (any, error) {
	switch in.Kind {
	case KindChoice:
		sel := promptui.Select{
			Label:     in.Label(),
			Items:     in.Choices,
			CursorPos: max(slices.Index(in.Choices, in.Default), 0),
			Stdin:     t.Stdin,
			Stdout:    t.Stdout,
		}
		_, choice, err := sel.Run()
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		return choice, nil
	case KindFlag:
		p := promptui.Prompt{
			Label:     in.Query,
			IsConfirm: true,
			Default:   flagDefault(in),
			Stdin:     t.Stdin,
			Stdout:    t.Stdout,
		}
		_, err := p.Run()
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		return true, nil
	}
	p := promptui.Prompt{
		Label:   in.Label(),
		Default: in.Default,
		Validate: func(s string) error {
			_, err := in.Parse(s)
			return err
		},
		Stdin:  t.Stdin,
		Stdout: t.Stdout,
	}
	answer, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}
	return in.Parse(answer)
}

func flagDefault(in Input) string {
	val, _ := in.Parse(in.Default)
	if b, _ := val.(bool); b {
		return "y"
	}
	return "n"
}

// Collect asks every input whose condition holds, in order, and returns
// the answers by name. cond may be nil; it sees the answers so far.
func Collect(a Asker, inputs []Input, cond func(in Input, answers map[string]any) (bool, error)) (map[string]any, error) {
	answers := map[string]any{}
	for _, in := range inputs {
		if cond != nil && in.When != "" {
			ok, err := cond(in, answers)
			if err != nil {
				return nil, fmt.Errorf("condition of input %q: %w", in.Name, err)
			}
			if !ok {
				continue
			}
		}
		val, err := a.Ask(in)
		if err != nil {
			return nil, err
		}
		answers[in.Name] = val
	}
	return answers, nil
}
