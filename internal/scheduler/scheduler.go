// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	names   []string
	jobs    map[string]Job
	running bool
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]Job),
	}
}

// Add registers job under name with a standard five-field cron spec
// evaluated in UTC. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		log.Printf("⏸️ job %s disabled", name)
		return nil
	}
	if job == nil {
		return fmt.Errorf("job %s: nil func", name)
	}
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("job %s: bad schedule %q: %w", name, spec, err)
	}
	s.mu.Lock()
	s.names = append(s.names, name)
	s.jobs[name] = job
	s.mu.Unlock()
	log.Printf("📅 job %s scheduled at %q UTC", name, spec)
	return nil
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return job(s.ctx)
}

func (s *Scheduler) run(name string, job Job) {
	started := time.Now()
	log.Printf("🕘 running job %s", name)
	if err := job(s.ctx); err != nil {
		log.WithError(err).WithField("job", name).Error("❌ scheduled job failed")
		return
	}
	log.WithFields(log.Fields{"job": name, "took": time.Since(started).String()}).Info("✅ scheduled job done")
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	log.Printf("📅 Scheduler started with %d job(s)", len(s.names))
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.cancel()
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	log.Println("📅 Scheduler stopped")
}

// IsRunning reports whether the scheduler is started and has jobs.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && len(s.names) > 0
}

// Jobs lists registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}
