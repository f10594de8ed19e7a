package projects

import (
	"fmt"
	"time"

	"github.com/example/reelforge/internal/models"
)

// Report is what bootstrap inspection hands back to the agent.
type Report struct {
	Project         string        `json:"project_name"`
	StepsCompleted  []models.Step `json:"steps_completed"`
	CurrentStep     string        `json:"current_step"`
	NextAction      models.Tool   `json:"next_action"`
	Issues          []string      `json:"issues"`
	TotalScenes     int           `json:"total_scenes"`
	CompletedScenes int           `json:"completed_scenes"`
	MissingScenes   []int         `json:"missing_scenes,omitempty"`
	Progress        int           `json:"progress"`
	State           string        `json:"state"`
	VideoPath       string        `json:"video_path,omitempty"`
	ModifiedAt      time.Time     `json:"modified_time"`
}

// Inspect reports which pipeline steps have durable output. Only the
// in-order prefix counts as completed: a video sitting next to an
// incomplete image set does not mark images done.
func (s *Store) Inspect(name string) (*Report, error) {
	sc, err := s.scan(name)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Project:         name,
		TotalScenes:     sc.totalScenes,
		CompletedScenes: len(sc.scenes),
		MissingScenes:   sc.missingScenes(),
		ModifiedAt:      sc.modified,
		Issues:          []string{},
	}

	present := map[models.Step]bool{
		models.StepAudio:   sc.hasAudio,
		models.StepPrompts: sc.hasPrompts,
		models.StepImages:  sc.imagesComplete(),
		models.StepVideo:   len(sc.videos) > 0,
	}
	for _, st := range models.Pipeline {
		if !present[st] {
			break
		}
		r.StepsCompleted = append(r.StepsCompleted, st)
	}
	if r.StepsCompleted == nil {
		r.StepsCompleted = []models.Step{}
	}
	r.NextAction = models.NextTool(r.StepsCompleted)

	switch n := len(r.StepsCompleted); {
	case n == 0:
		r.CurrentStep = "not started"
	default:
		r.CurrentStep = string(r.StepsCompleted[n-1])
	}

	if !sc.hasAudio {
		r.Issues = append(r.Issues, "audio and subtitles missing")
	}
	if sc.hasAudio && !sc.hasPrompts {
		r.Issues = append(r.Issues, "scene prompts missing")
	}
	if len(r.MissingScenes) > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d of %d scene images missing", len(r.MissingScenes), sc.totalScenes))
	}
	if present[models.StepVideo] && len(r.StepsCompleted) < len(models.Pipeline) {
		r.Issues = append(r.Issues, "video exists but earlier steps are incomplete")
	}

	r.Progress = inspectProgress(sc, present)
	switch {
	case r.Progress == 100:
		r.State = "completed"
		if v, err := s.LatestVideo(name); err == nil {
			r.VideoPath = v
		}
	case r.Progress > 0:
		r.State = "incomplete"
	default:
		r.State = "empty"
	}
	return r, nil
}

func inspectProgress(sc *scan, present map[models.Step]bool) int {
	switch {
	case present[models.StepVideo]:
		return 100
	case len(sc.scenes) > 0:
		if sc.totalScenes > 0 {
			done := len(sc.scenes)
			if done > sc.totalScenes {
				done = sc.totalScenes
			}
			return 50 + 30*done/sc.totalScenes
		}
		return 50
	case present[models.StepPrompts]:
		return 30
	case present[models.StepAudio]:
		return 10
	}
	return 0
}
