// Package catalog holds the fixed DigiTwin question table. The catalog is
// loaded once from an embedded YAML file and never changes for the lifetime
// of the process; slice order defines the navigation order of the survey.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var questionsYAML []byte

// Question is a single catalog entry. MinWords and MinAudioSeconds are the
// requirement thresholds for the two answer variants; zero means the variant
// has no minimum. Requirement carries the human-readable summary shown next
// to the prompt.
type Question struct {
	ID              string `yaml:"id" json:"id"`
	Section         string `yaml:"section" json:"section"`
	Prompt          string `yaml:"prompt" json:"prompt"`
	Purpose         string `yaml:"purpose" json:"purpose"`
	Requirement     string `yaml:"requirement" json:"requirement"`
	MinWords        int    `yaml:"min_words" json:"minWords,omitempty"`
	MinAudioSeconds int    `yaml:"min_audio_seconds" json:"minAudioSeconds,omitempty"`
}

// Section groups consecutive questions for the progress sidebar. Sections
// keep the insertion order of the catalog file.
type Section struct {
	Name      string
	Questions []Question
}

var (
	loadOnce  sync.Once
	loadErr   error
	questions []Question
	byID      map[string]Question
	sections  []Section
)

// Load parses the embedded catalog. It is safe to call from multiple
// goroutines; only the first call does work. Accessors call it implicitly,
// so explicit use is only needed to surface the error at startup.
func Load() error {
	loadOnce.Do(func() { loadErr = parse(questionsYAML) })
	return loadErr
}

func parse(data []byte) error {
	var qs []Question
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return fmt.Errorf("parse question catalog: %w", err)
	}
	if len(qs) == 0 {
		return fmt.Errorf("question catalog is empty")
	}
	ids := make(map[string]Question, len(qs))
	var secs []Section
	for i, q := range qs {
		if q.ID == "" || q.Prompt == "" || q.Section == "" {
			return fmt.Errorf("question %d: id, section and prompt are required", i)
		}
		if _, dup := ids[q.ID]; dup {
			return fmt.Errorf("question %q: duplicate id", q.ID)
		}
		if q.MinWords < 0 || q.MinAudioSeconds < 0 {
			return fmt.Errorf("question %q: negative requirement threshold", q.ID)
		}
		ids[q.ID] = q
		if len(secs) == 0 || secs[len(secs)-1].Name != q.Section {
			secs = append(secs, Section{Name: q.Section})
		}
		secs[len(secs)-1].Questions = append(secs[len(secs)-1].Questions, q)
	}
	questions = qs
	byID = ids
	sections = secs
	return nil
}

func ensure() {
	if err := Load(); err != nil {
		// The catalog is compiled into the binary; a parse failure is a
		// build defect, not a runtime condition.
		panic(err)
	}
}

// Questions returns the full ordered catalog.
func Questions() []Question {
	ensure()
	return append([]Question(nil), questions...)
}

// ByID looks up one question.
func ByID(id string) (Question, bool) {
	ensure()
	q, ok := byID[id]
	return q, ok
}

// Sections returns the section grouping in catalog order.
func Sections() []Section {
	ensure()
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = Section{Name: s.Name, Questions: append([]Question(nil), s.Questions...)}
	}
	return out
}

// Total returns the number of questions in the catalog.
func Total() int {
	ensure()
	return len(questions)
}
