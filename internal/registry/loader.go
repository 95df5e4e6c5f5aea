package registry

import (
	"io/fs"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
)

// questionDefaults holds fallback values merged into a Question whenever the
// document itself leaves them unset, the same "merge built-in + user" shape
// as the teacher's pkg/config/merge.go (dario.cat/mergo.Merge without
// WithOverride, which fills only zero-valued fields, so explicit document
// values always win).
type questionDefaults struct {
	Flexibility domain.Flexibility `yaml:"flexibility"`
}

const defaultsFileName = "_defaults.yaml"

// loadSections reads every sections/*.yaml document.
func loadSections(root string) ([]domain.Section, error) {
	dir := filepath.Join(root, "sections")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &LoadError{File: dir, Err: err}
	}

	var sections []domain.Section
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{File: path, Err: err}
		}
		var section domain.Section
		if err := yaml.Unmarshal(data, &section); err != nil {
			return nil, &LoadError{File: path, Err: err}
		}
		if section.ID == "" {
			return nil, &ValidationError{File: path, Field: "id", Err: ErrMissingRequiredField}
		}
		sections = append(sections, section)
	}
	return sections, nil
}

// loadQuestionDefaults reads the optional questions/_defaults.yaml file.
func loadQuestionDefaults(root string) (*questionDefaults, error) {
	path := filepath.Join(root, "questions", defaultsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &questionDefaults{Flexibility: domain.FlexibilityExact}, nil
		}
		return nil, &LoadError{File: path, Err: err}
	}
	var defaults questionDefaults
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, &LoadError{File: path, Err: err}
	}
	if defaults.Flexibility == "" {
		defaults.Flexibility = domain.FlexibilityExact
	}
	return &defaults, nil
}

// loadQuestions walks questions/**/*.yaml recursively, skipping the
// defaults file, merging each document over questionDefaults.
func loadQuestions(root string, defaults *questionDefaults) ([]*domain.Question, error) {
	dir := filepath.Join(root, "questions")
	var questions []*domain.Question

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !isYAML(d.Name()) || d.Name() == defaultsFileName {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return &LoadError{File: path, Err: readErr}
		}

		var question domain.Question
		if err := yaml.Unmarshal(data, &question); err != nil {
			return &LoadError{File: path, Err: err}
		}
		question.SourcePath = path

		if err := mergo.Merge(&question, domain.Question{Flexibility: defaults.Flexibility}); err != nil {
			return &LoadError{File: path, Err: err}
		}

		if question.ID == "" {
			return &ValidationError{File: path, Field: "id", Err: ErrMissingRequiredField}
		}
		if question.Section == "" {
			return &ValidationError{File: path, Field: "section", Err: ErrMissingRequiredField}
		}
		if question.Level == "" {
			return &ValidationError{File: path, Field: "level", Err: ErrMissingRequiredField}
		}

		question.AlwaysApplicable = question.Criteria == ""
		questions = append(questions, &question)
		return nil
	})
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			return nil, le
		}
		if ve, ok := err.(*ValidationError); ok {
			return nil, ve
		}
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &LoadError{File: dir, Err: err}
	}
	return questions, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
