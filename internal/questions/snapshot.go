package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/normalize"
)

// ErrInvalidSnapshotName is returned for names that are not snapshot files.
var ErrInvalidSnapshotName = errors.New("invalid snapshot name")

var snapshotName = regexp.MustCompile(`^questions_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}(_\d+)?\.json$`)

// SnapshotStore writes every generation run to its own timestamped file.
type SnapshotStore struct {
	dir string
	now func() time.Time
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir, now: time.Now}
}

func (s *SnapshotStore) Dir() string { return s.dir }

// Save writes questions_<date>_<time>.json and returns its name. An existing
// file is never overwritten; a numeric suffix is added instead.
func (s *SnapshotStore) Save(questions []models.GeneratedQuestion) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	if questions == nil {
		questions = []models.GeneratedQuestion{}
	}

	now := s.now()
	data, err := json.MarshalIndent(models.QuestionSnapshot{
		GeneratedAt: normalize.ISO(now, now),
		Count:       len(questions),
		Questions:   questions,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	base := "questions_" + now.UTC().Format("2006-01-02_15-04-05")
	for n := 0; ; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create snapshot: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write snapshot: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close snapshot: %w", err)
		}
		return name, nil
	}
}

// List returns snapshot names, newest first. A missing directory is empty.
func (s *SnapshotStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && snapshotName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return snapshotKey(names[i]) > snapshotKey(names[j]) })
	return names, nil
}

const stampedLen = len("questions_2006-01-02_15-04-05")

// snapshotKey orders collision suffixes numerically after the base name.
func snapshotKey(name string) string {
	stem := strings.TrimSuffix(name, ".json")
	n := 0
	if len(stem) > stampedLen {
		n, _ = strconv.Atoi(stem[stampedLen+1:])
	}
	return fmt.Sprintf("%s_%08d", stem[:stampedLen], n)
}

func (s *SnapshotStore) Load(name string) (*models.QuestionSnapshot, error) {
	if !snapshotName.MatchString(name) {
		return nil, ErrInvalidSnapshotName
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap models.QuestionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", name, err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Delete(name string) error {
	if !snapshotName.MatchString(name) {
		return ErrInvalidSnapshotName
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
