package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/reelforge/internal/models"
)

var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is the caller-supplied part of a new task.
type Submission struct {
	Mode        string `json:"mode"`
	ProjectName string `json:"project_name"`
	NovelText   string `json:"novel_text"`
	Timbre      string `json:"timbre"`
	// QualityTarget is nil when the caller leaves it to the server default.
	QualityTarget *float64 `json:"quality_target"`
	MaxAttempts   int      `json:"max_attempts"`
	Resume        bool     `json:"resume"`
}

// Defaults fill fields a submission leaves unset.
type Defaults struct {
	QualityTarget float64
	MaxAttempts   int
}

// NewTask validates sub and builds a pending task with a fresh id.
func NewTask(sub Submission, def Defaults, now time.Time) (*models.Task, error) {
	mode, err := models.ParseMode(strings.ToLower(strings.TrimSpace(sub.Mode)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	project := strings.TrimSpace(sub.ProjectName)
	if project == "" || strings.ContainsAny(project, `/\`) || project == "." || project == ".." {
		return nil, fmt.Errorf("%w: bad project name %q", ErrInvalidSubmission, sub.ProjectName)
	}
	if strings.TrimSpace(sub.NovelText) == "" && !sub.Resume {
		return nil, fmt.Errorf("%w: novel_text is required unless resuming", ErrInvalidSubmission)
	}
	if sub.Resume && mode != models.ModeAgent {
		return nil, fmt.Errorf("%w: resume needs agent mode", ErrInvalidSubmission)
	}
	q := def.QualityTarget
	if sub.QualityTarget != nil {
		q = *sub.QualityTarget
	}
	if q < 0 || q > 1 {
		return nil, fmt.Errorf("%w: quality_target %.2f outside [0,1]", ErrInvalidSubmission, q)
	}
	attempts := sub.MaxAttempts
	if attempts <= 0 {
		attempts = def.MaxAttempts
	}
	return &models.Task{
		ID:            uuid.NewString(),
		Mode:          mode,
		ProjectName:   project,
		NovelText:     sub.NovelText,
		Timbre:        sub.Timbre,
		QualityTarget: q,
		MaxAttempts:   attempts,
		Resume:        sub.Resume,
		Status:        models.StatusPending,
		CurrentStep:   "queued",
		CreatedAt:     now,
		ToolStatus:    models.NewToolStatusTable(),
	}, nil
}
