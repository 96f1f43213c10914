package services

import (
	"math"

	"github.com/digitwin/survey/internal/catalog"
)

// SectionProgress is the answered/size pair for one catalog section.
type SectionProgress struct {
	Name     string `json:"name"`
	Answered int    `json:"answered"`
	Size     int    `json:"size"`
}

// Summary aggregates answered counts across the catalog.
type Summary struct {
	Answered int               `json:"answeredQuestions"`
	Total    int               `json:"totalQuestions"`
	Percent  int               `json:"completionPercentage"`
	Sections []SectionProgress `json:"sections,omitempty"`
}

// ProgressPercent rounds half up, so 44 of 87 reads as 51.
func ProgressPercent(answered, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(answered) / float64(total)))
}

// Progress projects stored responses onto the question list. Responses for
// unknown question ids are ignored.
func Progress(questions []catalog.Question, responses []*Response) Summary {
	answered := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		if r != nil {
			answered[r.QuestionID] = struct{}{}
		}
	}
	return summarize(questions, answered)
}

func summarize(questions []catalog.Question, answered map[string]struct{}) Summary {
	sum := Summary{Total: len(questions)}
	idx := map[string]int{}
	for _, q := range questions {
		i, ok := idx[q.Section]
		if !ok {
			i = len(sum.Sections)
			idx[q.Section] = i
			sum.Sections = append(sum.Sections, SectionProgress{Name: q.Section})
		}
		sum.Sections[i].Size++
		if _, hit := answered[q.ID]; hit {
			sum.Sections[i].Answered++
			sum.Answered++
		}
	}
	sum.Percent = ProgressPercent(sum.Answered, sum.Total)
	return sum
}
