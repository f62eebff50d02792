package awards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/awebisam/chemezy/internal/storage"
)

// SeedTemplate is the YAML form of an award template definition.
type SeedTemplate struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Criteria    struct {
		Kind           string  `yaml:"kind"`
		Threshold      float64 `yaml:"threshold"`
		MinSubmissions int     `yaml:"min_submissions"`
	} `yaml:"criteria"`
	Tiers []struct {
		Threshold float64 `yaml:"threshold"`
		Name      string  `yaml:"name"`
	} `yaml:"tiers"`
	Points int64 `yaml:"points"`
}

// SeedFile is the top-level seed document.
type SeedFile struct {
	Templates []SeedTemplate `yaml:"templates"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

func (s *SeedTemplate) toTemplate() (*storage.AwardTemplate, error) {
	if s.Name == "" {
		return nil, errors.New("template name is required")
	}
	category := storage.Category(s.Category)
	if !category.Valid() {
		return nil, fmt.Errorf("template %q: invalid category %q", s.Name, s.Category)
	}
	if len(s.Tiers) == 0 {
		return nil, fmt.Errorf("template %q: at least one tier is required", s.Name)
	}
	tiers := make([]storage.TierSpec, len(s.Tiers))
	for i, t := range s.Tiers {
		if i > 0 && t.Threshold <= tiers[i-1].Threshold {
			return nil, fmt.Errorf("template %q: tier thresholds must ascend", s.Name)
		}
		tiers[i] = storage.TierSpec{Threshold: t.Threshold, Name: t.Name}
	}
	return &storage.AwardTemplate{
		Name:        s.Name,
		Description: s.Description,
		Category:    category,
		Criteria: storage.CriteriaSpec{
			Kind:           s.Criteria.Kind,
			Threshold:      s.Criteria.Threshold,
			MinSubmissions: s.Criteria.MinSubmissions,
		},
		Tiers:  tiers,
		Points: s.Points,
		Active: true,
	}, nil
}

// Seeder loads award templates from a YAML file into storage and can
// watch the file for changes.
type Seeder struct {
	store  storage.Storage
	logger *slog.Logger
	path   string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSeeder creates a Seeder for the given file path.
func NewSeeder(store storage.Storage, path string, logger *slog.Logger) *Seeder {
	return &Seeder{
		store:  store,
		logger: logger.With(slog.String("component", "award_seeder")),
		path:   path,
	}
}

// Apply loads the seed file and creates any templates that do not exist
// yet. Existing templates (matched by name) are updated when the seed
// definition differs, so edits to the file take effect without manual
// intervention. Per-template failures are collected, not fatal.
func (s *Seeder) Apply(ctx context.Context) error {
	seed, err := LoadSeedFile(s.path)
	if err != nil {
		return err
	}

	var errs []error
	created, updated := 0, 0
	for i := range seed.Templates {
		tmpl, err := seed.Templates[i].toTemplate()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		existing, err := s.store.GetTemplateByName(ctx, tmpl.Name)
		if errors.Is(err, storage.ErrTemplateNotFound) {
			if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
				if errors.Is(err, storage.ErrTemplateExists) {
					continue
				}
				errs = append(errs, fmt.Errorf("create template %q: %w", tmpl.Name, err))
			} else {
				created++
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("lookup template %q: %w", tmpl.Name, err))
			continue
		}

		if templateMatchesSeed(existing, tmpl) {
			continue
		}
		tmpl.ID = existing.ID
		tmpl.CreatedBy = existing.CreatedBy
		if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
			errs = append(errs, fmt.Errorf("update template %q: %w", tmpl.Name, err))
			continue
		}
		updated++
	}

	s.logger.Info("award templates seeded",
		slog.String("path", s.path),
		slog.Int("created", created),
		slog.Int("updated", updated),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

func templateMatchesSeed(existing, seeded *storage.AwardTemplate) bool {
	if existing.Description != seeded.Description ||
		existing.Category != seeded.Category ||
		existing.Criteria != seeded.Criteria ||
		existing.Points != seeded.Points ||
		existing.Active != seeded.Active ||
		len(existing.Tiers) != len(seeded.Tiers) {
		return false
	}
	for i := range existing.Tiers {
		if existing.Tiers[i] != seeded.Tiers[i] {
			return false
		}
	}
	return true
}

// Watch re-applies the seed file whenever it is written. Editors often
// replace files on save, so the parent directory is watched and events
// filtered by name.
func (s *Seeder) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop(ctx)
	return nil
}

// Close stops the watcher.
func (s *Seeder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	s.watcher = nil
	return err
}

func (s *Seeder) watchLoop(ctx context.Context) {
	defer close(s.done)

	// Debounce timer coalesces the burst of events an editor save emits.
	var pending *time.Timer
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, func() {
				if err := s.Apply(ctx); err != nil {
					s.logger.Error("seed reload failed",
						slog.String("path", s.path),
						slog.String("error", err.Error()),
					)
				}
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("seed watcher error", slog.String("error", err.Error()))
		}
	}
}
