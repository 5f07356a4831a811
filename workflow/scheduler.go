package workflow

import (
	"context"
	"os"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Default schedules: learning and discovery nightly off-hours, taxonomy
// weekly. Overridable per deployment via env.
const (
	defaultLearningCron  = "0 2 * * *"
	defaultDiscoveryCron = "30 2 * * *"
	defaultTaxonomyCron  = "0 3 * * 0"
)

// Scheduler owns the background maintenance jobs: pattern learning,
// relationship discovery and taxonomy rebuilds. Reconciliation sessions are
// request-driven and never scheduled here.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the jobs and launches the cron loop. Job panics must not
// take the service down, so every job body recovers through the runner.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name   string
		envVar string
		spec   string
		run    func(ctx context.Context)
	}{
		{"pattern_learning", "LEARNING_CRON", defaultLearningCron, s.runLearning},
		{"relationship_discovery", "DISCOVERY_CRON", defaultDiscoveryCron, s.runDiscovery},
		{"taxonomy_rebuild", "TAXONOMY_CRON", defaultTaxonomyCron, s.runTaxonomy},
	}
	for _, job := range jobs {
		spec := os.Getenv(job.envVar)
		if spec == "" {
			spec = job.spec
		}
		name, run := job.name, job.run
		_, err := s.cron.AddFunc(spec, func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithFields(logrus.Fields{
						"module": "scheduler",
						"job":    name,
						"panic":  r,
					}).Error("scheduled job panicked")
				}
			}()
			run(context.Background())
		})
		if err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"module": "scheduler",
			"job":    name,
			"spec":   spec,
		}).Info("scheduled job registered")
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runLearning(ctx context.Context) {
	consumed, err := RunPatternLearning(ctx, s.logger)
	if err != nil {
		config.LogError(s.logger, "scheduler", "runLearning", "pattern learning run", consumed, err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"module":   "scheduler",
		"job":      "pattern_learning",
		"consumed": consumed,
	}).Info("pattern learning run finished")
}

func (s *Scheduler) runDiscovery(ctx context.Context) {
	s.forEachProperty(ctx, "runDiscovery", func(propertyId string) error {
		_, err := RunRelationshipDiscovery(ctx, s.logger, propertyId)
		return err
	})
}

func (s *Scheduler) runTaxonomy(ctx context.Context) {
	s.forEachProperty(ctx, "runTaxonomy", func(propertyId string) error {
		return RebuildAccountTaxonomy(ctx, s.logger, propertyId)
	})
}

// forEachProperty fans a job over every property with line-item history. One
// property failing does not stop the rest.
func (s *Scheduler) forEachProperty(ctx context.Context, funcName string, fn func(propertyId string) error) {
	db := config.GetDB()
	var propertyIds []string
	err := db.WithContext(ctx).Model(&models.LineItem{}).
		Distinct("property_id").Order("property_id").
		Pluck("property_id", &propertyIds).Error
	if err != nil {
		config.LogError(s.logger, "scheduler", funcName, "listing properties", nil, err)
		return
	}
	for _, propertyId := range propertyIds {
		if err := fn(propertyId); err != nil {
			config.LogError(s.logger, "scheduler", funcName, "property job failed", propertyId, err)
		}
	}
}
