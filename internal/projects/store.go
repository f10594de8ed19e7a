// Package projects reads the durable on-disk state of a generation project:
//
//	<root>/<name>/Audio/Subtitles.json
//	<root>/<name>/Prompts.json
//	<root>/<name>/Imgs/scene_N.png
//	<root>/<name>/Videos/*.mp4
//	<root>/<name>/agent.log
package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("project not found")
	ErrInvalidName = errors.New("invalid project name")
)

type Store struct {
	Root string

	logMu sync.Mutex
}

func NewStore(root string) *Store { return &Store{Root: root} }

// Dir returns the project directory. Names may not escape Root.
func (s *Store) Dir(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.Root, name), nil
}

func (s *Store) existingDir(name string) (string, error) {
	dir, err := s.Dir(name)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return dir, nil
}

// Names lists project directories under Root, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// LatestVideo returns the most recently modified mp4 in the project.
func (s *Store) LatestVideo(name string) (string, error) {
	dir, err := s.existingDir(name)
	if err != nil {
		return "", err
	}
	videos, _ := filepath.Glob(filepath.Join(dir, "Videos", "*.mp4"))
	var (
		best    string
		bestMod time.Time
	)
	for _, v := range videos {
		fi, err := os.Stat(v)
		if err != nil {
			continue
		}
		if best == "" || fi.ModTime().After(bestMod) {
			best, bestMod = v, fi.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: no video in %s", ErrNotFound, name)
	}
	return best, nil
}

// AppendAgentLog appends one line to <project>/agent.log, creating the
// project directory if needed.
func (s *Store) AppendAgentLog(name string, ts time.Time, category, message string) error {
	dir, err := s.Dir(name)
	if err != nil {
		return err
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "agent.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[%s] %s: %s\n", ts.Format("2006-01-02 15:04:05"), category, message)
	return err
}

// scan collects the raw facts both Inspect and Evaluate work from.
type scan struct {
	dir          string
	hasAudio     bool
	hasPrompts   bool
	totalScenes  int
	promptScenes int
	scenes       []int
	videos       []string
	modified     time.Time
}

func (s *Store) scan(name string) (*scan, error) {
	dir, err := s.existingDir(name)
	if err != nil {
		return nil, err
	}
	sc := &scan{dir: dir}
	if fi, err := os.Stat(dir); err == nil {
		sc.modified = fi.ModTime()
	}

	var subs struct {
		TotalSentences int   `json:"total_sentences"`
		Subtitles      []any `json:"subtitles"`
	}
	if ok, _ := readJSON(filepath.Join(dir, "Audio", "Subtitles.json"), &subs); ok {
		sc.hasAudio = true
		sc.totalScenes = subs.TotalSentences
		if sc.totalScenes == 0 {
			sc.totalScenes = len(subs.Subtitles)
		}
	}

	var prompts struct {
		ScenePrompts []any `json:"scene_prompts"`
	}
	if ok, _ := readJSON(filepath.Join(dir, "Prompts.json"), &prompts); ok {
		sc.hasPrompts = true
		sc.promptScenes = len(prompts.ScenePrompts)
		if sc.totalScenes == 0 {
			sc.totalScenes = sc.promptScenes
		}
	}

	imgs, _ := filepath.Glob(filepath.Join(dir, "Imgs", "scene_*.png"))
	for _, p := range imgs {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		if n, err := strconv.Atoi(strings.TrimPrefix(base, "scene_")); err == nil {
			sc.scenes = append(sc.scenes, n)
		}
	}
	sort.Ints(sc.scenes)

	sc.videos, _ = filepath.Glob(filepath.Join(dir, "Videos", "*.mp4"))
	return sc, nil
}

// readJSON reports whether path exists; a malformed file still counts as
// present, only its counts are lost.
func readJSON(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, v)
}

func (sc *scan) missingScenes() []int {
	have := make(map[int]bool, len(sc.scenes))
	for _, n := range sc.scenes {
		have[n] = true
	}
	var out []int
	for i := 1; i <= sc.totalScenes; i++ {
		if !have[i] {
			out = append(out, i)
		}
	}
	return out
}

func (sc *scan) imagesComplete() bool {
	return len(sc.scenes) > 0 && (sc.totalScenes == 0 || len(sc.missingScenes()) == 0)
}
