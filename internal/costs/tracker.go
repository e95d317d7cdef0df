package costs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clearpath-media/cp-whisperx/internal/lockfile"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/storage"
)

const logLockFilename = ".costs.lock"

// Tracker meters external-service usage for one user. Entries are appended
// to costs/{YYYY-MM}.json; the read-append-replace cycle is serialized by an
// advisory file lock so concurrent jobs never lose entries.
type Tracker struct {
	costsDir string
	pricing  Table
	userID   int
	jobID    string
	budget   models.Budget
	logger   *slog.Logger
	now      func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithJobID stamps every logged entry with the job id.
func WithJobID(jobID string) TrackerOption {
	return func(t *Tracker) { t.jobID = jobID }
}

// WithBudget binds the user's budget so LogUsage can emit alerts inline.
func WithBudget(budget models.Budget) TrackerOption {
	return func(t *Tracker) { t.budget = budget }
}

// WithTrackerLogger sets the tracker logger.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// WithClock overrides the tracker clock.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker writing under costsDir for the given user.
func NewTracker(costsDir string, pricing Table, userID int, opts ...TrackerOption) (*Tracker, error) {
	if err := os.MkdirAll(costsDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating costs directory: %w", err)
	}
	t := &Tracker{
		costsDir: costsDir,
		pricing:  pricing,
		userID:   userID,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// LogUsage prices one call, appends it to the current monthly log and returns
// the computed cost. Unpriced (service, model) pairs are recorded at zero
// cost with a warning so the token counts are not lost.
func (t *Tracker) LogUsage(service, model string, tokensIn, tokensOut int, stage string, metadata map[string]any) (float64, error) {
	cost, priced := t.pricing.Cost(service, model, tokensIn, tokensOut)
	if !priced {
		t.logger.Warn("no pricing for service/model, recording zero cost",
			slog.String("service", service),
			slog.String("model", model),
		)
	}

	ts := t.now().UTC()
	entry := models.CostEntry{
		ID:           ulid.MustNew(ulid.Timestamp(ts), rand.New(rand.NewSource(ts.UnixNano()))).String(),
		Timestamp:    ts,
		UserID:       t.userID,
		JobID:        t.jobID,
		Service:      service,
		Model:        model,
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		TokensTotal:  tokensIn + tokensOut,
		CostUsd:      cost,
		Stage:        stage,
		Metadata:     metadata,
	}

	if err := t.append(entry); err != nil {
		return 0, err
	}

	if alerts, err := t.CheckBudgetAlerts(t.budget); err == nil {
		for _, alert := range alerts {
			t.logger.Warn("budget alert", slog.String("alert", alert))
		}
	}
	return cost, nil
}

// GetJobCost sums the spend attributed to jobID across every monthly log,
// so jobs straddling a month boundary report their full total. An empty
// jobID means the tracker's bound job.
func (t *Tracker) GetJobCost(jobID string) (float64, error) {
	if jobID == "" {
		jobID = t.jobID
	}
	months, err := t.months()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, month := range months {
		log, err := t.readMonth(month)
		if err != nil {
			return 0, err
		}
		for _, e := range log.Entries {
			if e.JobID == jobID {
				total += e.CostUsd
			}
		}
	}
	return total, nil
}

// GetMonthlyCost sums the tracker user's spend for a month (YYYY-MM).
// An empty month means the current month.
func (t *Tracker) GetMonthlyCost(month string) (float64, error) {
	if month == "" {
		month = t.currentMonth()
	}
	log, err := t.readMonth(month)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, e := range log.Entries {
		if e.UserID == t.userID {
			total += e.CostUsd
		}
	}
	return total, nil
}

// GetStageCosts breaks a job's spend down by stage name across every
// monthly log. Entries without a stage aggregate under "unattributed".
func (t *Tracker) GetStageCosts(jobID string) (map[string]float64, error) {
	months, err := t.months()
	if err != nil {
		return nil, err
	}
	byStage := make(map[string]float64)
	for _, month := range months {
		log, err := t.readMonth(month)
		if err != nil {
			return nil, err
		}
		for _, e := range log.Entries {
			if e.JobID != jobID {
				continue
			}
			stage := e.Stage
			if stage == "" {
				stage = "unattributed"
			}
			byStage[stage] += e.CostUsd
		}
	}
	return byStage, nil
}

// GetMonthlySummary aggregates the tracker user's spend for a month.
func (t *Tracker) GetMonthlySummary(month string) (*models.MonthlySummary, error) {
	if month == "" {
		month = t.currentMonth()
	}
	log, err := t.readMonth(month)
	if err != nil {
		return nil, err
	}

	summary := &models.MonthlySummary{
		Month:     month,
		ByService: make(map[string]float64),
		ByModel:   make(map[string]float64),
	}
	jobs := make(map[string]struct{})
	for _, e := range log.Entries {
		if e.UserID != t.userID {
			continue
		}
		summary.TotalCost += e.CostUsd
		summary.TotalTokens += e.TokensTotal
		summary.TotalCalls++
		summary.ByService[e.Service] += e.CostUsd
		summary.ByModel[e.Model] += e.CostUsd
		if e.JobID != "" {
			jobs[e.JobID] = struct{}{}
		}
	}
	summary.UniqueJobs = len(jobs)
	if summary.UniqueJobs > 0 {
		summary.AvgCostPerJob = summary.TotalCost / float64(summary.UniqueJobs)
	}
	return summary, nil
}

// CheckBudgetAlerts returns human-readable alerts for the current month:
// one when spend crosses the profile's alert threshold and one when it
// reaches the monthly limit. A zero limit disables budget checks.
func (t *Tracker) CheckBudgetAlerts(budget models.Budget) ([]string, error) {
	if budget.MonthlyLimitUsd <= 0 {
		return nil, nil
	}
	spent, err := t.GetMonthlyCost("")
	if err != nil {
		return nil, err
	}

	var alerts []string
	percent := spent / budget.MonthlyLimitUsd * 100
	if budget.AlertThresholdPercent > 0 && percent >= float64(budget.AlertThresholdPercent) && percent < 100 {
		alerts = append(alerts, fmt.Sprintf(
			"WARNING: monthly spend $%.2f is %.0f%% of the $%.2f budget",
			spent, percent, budget.MonthlyLimitUsd))
	}
	if percent >= 100 {
		alerts = append(alerts, fmt.Sprintf(
			"CRITICAL: monthly budget exceeded, $%.2f spent of $%.2f limit",
			spent, budget.MonthlyLimitUsd))
	}
	return alerts, nil
}

// IsOverBudget reports whether the current month's spend has reached the
// monthly limit. A zero limit never blocks.
func (t *Tracker) IsOverBudget(budget models.Budget) (bool, error) {
	if budget.MonthlyLimitUsd <= 0 {
		return false, nil
	}
	spent, err := t.GetMonthlyCost("")
	if err != nil {
		return false, err
	}
	return spent >= budget.MonthlyLimitUsd, nil
}

// EstimateCost projects the cost of a call before making it.
func (t *Tracker) EstimateCost(service, model string, totalTokens int) float64 {
	return t.pricing.Estimate(service, model, totalTokens)
}

func (t *Tracker) currentMonth() string {
	return t.now().UTC().Format("2006-01")
}

var monthFileRe = regexp.MustCompile(`^(\d{4}-\d{2})\.json$`)

// months lists the months with a log file on disk, in name order.
func (t *Tracker) months() ([]string, error) {
	entries, err := os.ReadDir(t.costsDir)
	if err != nil {
		return nil, fmt.Errorf("listing cost logs: %w", err)
	}
	var months []string
	for _, entry := range entries {
		if m := monthFileRe.FindStringSubmatch(entry.Name()); m != nil {
			months = append(months, m[1])
		}
	}
	return months, nil
}

func (t *Tracker) monthPath(month string) string {
	return filepath.Join(t.costsDir, month+".json")
}

// readMonth loads a monthly log, returning an empty log for absent months.
func (t *Tracker) readMonth(month string) (*models.MonthlyLog, error) {
	data, err := os.ReadFile(t.monthPath(month))
	if errors.Is(err, os.ErrNotExist) {
		return &models.MonthlyLog{Metadata: models.MonthlyLogMetadata{Month: month}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cost log %s: %w", month, err)
	}

	var log models.MonthlyLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parsing cost log %s: %w", month, err)
	}
	return &log, nil
}

func (t *Tracker) append(entry models.CostEntry) error {
	lock, err := lockfile.Acquire(filepath.Join(t.costsDir, logLockFilename))
	if err != nil {
		return fmt.Errorf("locking cost log: %w", err)
	}
	defer lock.Release() //nolint:errcheck // release failure leaves a stale flock only

	month := entry.Timestamp.Format("2006-01")
	log, err := t.readMonth(month)
	if err != nil {
		return err
	}
	log.Entries = append(log.Entries, entry)
	log.Metadata.Month = month

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cost log: %w", err)
	}
	if err := storage.WriteFileAtomic(t.monthPath(month), data); err != nil {
		return fmt.Errorf("writing cost log %s: %w", month, err)
	}
	return nil
}
