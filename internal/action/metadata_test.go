package action

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStringListYAML(t *testing.T) {
	var m Metadata
	data := `
description: Plans things
parameter_descriptions: User query
examples:
  - first
  - second
`
	if err := yaml.Unmarshal([]byte(data), &m); err != nil {
		t.Fatal(err)
	}
	if len(m.ParameterDescriptions) != 1 || m.ParameterDescriptions[0] != "User query" {
		t.Errorf("parameter descriptions = %q", m.ParameterDescriptions)
	}
	if len(m.Examples) != 2 {
		t.Errorf("examples = %q", m.Examples)
	}
}

func TestStringListYAMLRejectsMapping(t *testing.T) {
	var m Metadata
	err := yaml.Unmarshal([]byte("examples:\n  a: b\n"), &m)
	if err == nil {
		t.Fatal("expected error for mapping")
	}
}

func TestStringListJSON(t *testing.T) {
	var m Metadata
	if err := json.Unmarshal([]byte(`{"parameter_descriptions":"one","examples":["a","b"]}`), &m); err != nil {
		t.Fatal(err)
	}
	if len(m.ParameterDescriptions) != 1 || len(m.Examples) != 2 {
		t.Errorf("metadata = %+v", m)
	}
	if err := json.Unmarshal([]byte(`{"examples":42}`), &m); err == nil {
		t.Error("expected error for number")
	}
}

func TestLines(t *testing.T) {
	if got := Lines("one"); len(got) != 1 || got[0] != "one" {
		t.Errorf("Lines(string) = %q", got)
	}
	if got := Lines([]string{"a", "b"}); len(got) != 2 {
		t.Errorf("Lines(slice) = %q", got)
	}
	if got := Lines(3); got != nil {
		t.Errorf("Lines(int) = %q", got)
	}
}

func TestSingleStringDescriptionBuildsLikeList(t *testing.T) {
	params := []Parameter{{Name: "q", Type: "string"}}
	fromString, err := Build("A", params, Metadata{Description: "d", ParameterDescriptions: Lines("Query")})
	if err != nil {
		t.Fatal(err)
	}
	fromList, err := Build("A", params, Metadata{Description: "d", ParameterDescriptions: Lines([]string{"Query"})})
	if err != nil {
		t.Fatal(err)
	}
	if fromString != fromList {
		t.Error("single string and one-element list should render identically")
	}
}

func TestResultMessage(t *testing.T) {
	ok := Success("PlanningAction", Arguments{"q": "x"}, "1. step")
	if ok.Message() != "PlanningAction returned:\n1. step" {
		t.Errorf("message = %q", ok.Message())
	}
	failed := Failure("PlanningAction", Arguments{"q": "x", "a": 1}, errors.New("backend down"))
	msg := failed.Message()
	if !strings.Contains(msg, "PlanningAction(a=1, q=x)") || !strings.Contains(msg, "backend down") {
		t.Errorf("message = %q", msg)
	}
	var execErr *ExecutionError
	if !errors.As(failed.Err(), &execErr) || execErr.Action != "PlanningAction" {
		t.Errorf("Err() = %v", failed.Err())
	}
}

func TestFailureWithNilError(t *testing.T) {
	res := Failure("X", nil, nil)
	if res.ErrorMessage == "" || res.OK() {
		t.Errorf("result = %+v", res)
	}
}
