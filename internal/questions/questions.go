// Package questions loads the interview intake: the ordered question list plus
// the role context it was generated for.
package questions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Question is immutable once loaded. Its ordinal is its position in Intake.Questions.
type Question struct {
	Text string `yaml:"question" json:"question" validate:"required"`
}

// UnmarshalYAML accepts either a mapping with a question key or a bare string.
func (q *Question) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		q.Text = value.Value
		return nil
	}
	type plain Question
	return value.Decode((*plain)(q))
}

// UnmarshalJSON accepts either {"question": "..."} or a bare string.
func (q *Question) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &q.Text)
	}
	type plain Question
	return json.Unmarshal(data, (*plain)(q))
}

// Intake is what the questionnaire collaborator supplies before an interview.
type Intake struct {
	JobRole         string     `yaml:"job_role" json:"jobRole"`
	Company         string     `yaml:"company" json:"company"`
	QuestionType    string     `yaml:"question_type" json:"questionType"`
	ExperienceLevel string     `yaml:"experience_level" json:"experienceLevel"`
	Category        string     `yaml:"category" json:"category"`
	Questions       []Question `yaml:"questions" json:"questions" validate:"required,min=1,dive"`
}

// Format selects the intake file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var validate = validator.New()

// Load reads an intake file. Files ending in .json are parsed as the question
// generator's JSON response; everything else as YAML.
func Load(path string) (*Intake, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intake %s: %w", path, err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	return Parse(data, format)
}

func Parse(data []byte, format Format) (*Intake, error) {
	var intake Intake
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &intake); err != nil {
			return nil, fmt.Errorf("parse intake json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &intake); err != nil {
			return nil, fmt.Errorf("parse intake yaml: %w", err)
		}
	}

	for i := range intake.Questions {
		intake.Questions[i].Text = strings.TrimSpace(intake.Questions[i].Text)
	}
	if err := validate.Struct(&intake); err != nil {
		return nil, fmt.Errorf("invalid intake: %w", describe(err))
	}
	return &intake, nil
}

// Texts returns the question texts in order.
func (in *Intake) Texts() []string {
	out := make([]string, len(in.Questions))
	for i, q := range in.Questions {
		out[i] = q.Text
	}
	return out
}

func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Questions":
		return fmt.Errorf("at least one question is required")
	case fe.Field() == "Text":
		return fmt.Errorf("%s is empty", strings.TrimPrefix(fe.Namespace(), "Intake."))
	}
	return err
}
