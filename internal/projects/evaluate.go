package projects

import "fmt"

// Evaluation is the rule-based quality score of a project's output.
type Evaluation struct {
	Overall      float64  `json:"overall_score"`
	Completeness float64  `json:"completeness"`
	Consistency  float64  `json:"consistency"`
	Issues       []string `json:"issues"`
	Suggestions  []string `json:"suggestions"`
}

// Evaluate scores a project from its files alone. Completeness weighs
// prompts .25, images .5 and video .25; consistency is how closely the
// image count matches the scene count. Overall is their mean.
func (s *Store) Evaluate(name string, target float64) (*Evaluation, error) {
	sc, err := s.scan(name)
	if err != nil {
		return nil, err
	}
	images := len(sc.scenes)
	scenes := sc.promptScenes
	if scenes == 0 {
		scenes = sc.totalScenes
	}

	ev := &Evaluation{Consistency: 1, Issues: []string{}, Suggestions: []string{}}
	if sc.hasPrompts {
		ev.Completeness += 0.25
	}
	if images > 0 {
		ev.Completeness += 0.5
	}
	if len(sc.videos) > 0 {
		ev.Completeness += 0.25
	}
	if scenes > 0 && images != scenes {
		if images < scenes {
			ev.Consistency = float64(images) / float64(scenes)
		} else {
			ev.Consistency = float64(scenes) / float64(images)
		}
	}
	ev.Overall = ev.Completeness*0.5 + ev.Consistency*0.5

	if !sc.hasPrompts {
		ev.Issues = append(ev.Issues, "scene prompts missing")
	}
	switch {
	case images == 0:
		ev.Issues = append(ev.Issues, "no images generated")
		ev.Suggestions = append(ev.Suggestions, "generate images")
	case scenes > 0 && images != scenes:
		ev.Issues = append(ev.Issues, fmt.Sprintf("image count (%d) does not match scene count (%d)", images, scenes))
		ev.Suggestions = append(ev.Suggestions, "regenerate missing images")
	case ev.Overall < target:
		ev.Suggestions = append(ev.Suggestions, "review image quality")
	default:
		ev.Suggestions = append(ev.Suggestions, "images complete")
	}
	if len(sc.videos) == 0 {
		ev.Issues = append(ev.Issues, "final video not composed")
	}
	return ev, nil
}
