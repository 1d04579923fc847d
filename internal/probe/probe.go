package probe

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"appointease/pkg/client"
	"appointease/pkg/model"
)

// Config describes one burst of concurrent bookings against a single slot.
type Config struct {
	BaseURL     string        `envconfig:"PROBE_BASE_URL" default:"http://localhost:8080"`
	Concurrency int           `envconfig:"PROBE_CONCURRENCY" default:"5"`
	EmployeeID  int64         `envconfig:"PROBE_EMPLOYEE_ID" default:"1"`
	ServiceID   int64         `envconfig:"PROBE_SERVICE_ID" default:"1"`
	Date        string        `envconfig:"PROBE_DATE"`
	Time        string        `envconfig:"PROBE_TIME" default:"10:00"`
	SharedKey   bool          `envconfig:"PROBE_SHARED_KEY"`
	Cleanup     bool          `envconfig:"PROBE_CLEANUP" default:"true"`
	Timeout     time.Duration `envconfig:"PROBE_TIMEOUT" default:"30s"`
}

// Report summarises a burst. Healthy reports exactly one committed booking
// and no suggestion pointing back at the contested slot.
type Report struct {
	Slot          model.Slot
	Attempts      int
	Committed     int
	Conflicted    int
	Replayed      int
	OtherStatus   map[int]int
	Errors        []string
	StrongIDs     []string
	BadSuggestion bool
	Unavailable   []string
	Duration      time.Duration
}

func (r *Report) Healthy() bool {
	distinct := map[string]bool{}
	for _, id := range r.StrongIDs {
		distinct[id] = true
	}
	return len(r.Errors) == 0 && len(distinct) == 1 && !r.BadSuggestion
}

func (r *Report) String() string {
	return fmt.Sprintf("slot=%s attempts=%d committed=%d conflicted=%d replayed=%d other=%v errors=%d strong_ids=%v unavailable=%v duration=%s healthy=%t",
		r.Slot.OccupancyKey(), r.Attempts, r.Committed, r.Conflicted, r.Replayed, r.OtherStatus,
		len(r.Errors), r.StrongIDs, r.Unavailable, r.Duration, r.Healthy())
}

type outcome struct {
	result *client.BookOutcome
	err    error
}

// Run fires cfg.Concurrency bookings at the same slot at once and checks the
// answers. With SharedKey every request carries the same idempotency key and
// payload, so all but one are expected to be replays.
func Run(ctx context.Context, api *client.AppointmentsClient, cfg Config) (*Report, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.Date == "" {
		return nil, fmt.Errorf("date is required")
	}

	slot := model.Slot{EmployeeID: cfg.EmployeeID, ServiceID: cfg.ServiceID, Date: cfg.Date, Time: cfg.Time}
	runID := time.Now().UTC().Format("20060102T150405.000")

	start := time.Now()
	outcomes := make([]outcome, cfg.Concurrency)
	ready := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, key := request(cfg, runID, i)
			<-ready
			res, err := api.Book(ctx, req, key)
			outcomes[i] = outcome{result: res, err: err}
		}(i)
	}
	close(ready)
	wg.Wait()

	report := &Report{
		Slot:        slot,
		Attempts:    cfg.Concurrency,
		OtherStatus: map[int]int{},
		Duration:    time.Since(start),
	}
	for _, o := range outcomes {
		report.add(slot, o)
	}
	sort.Strings(report.StrongIDs)

	availability, resp, err := api.Availability(ctx, &model.AvailabilityRequest{Date: slot.Date, EmployeeID: slot.EmployeeID})
	switch {
	case err != nil:
		report.Errors = append(report.Errors, "availability: "+err.Error())
	case availability == nil:
		report.Errors = append(report.Errors, fmt.Sprintf("availability: status %d: %s", resp.StatusCode, client.GetErrorMessage(resp)))
	default:
		report.Unavailable = availability.Unavailable
	}

	if cfg.Cleanup {
		for _, id := range distinct(report.StrongIDs) {
			if _, resp, err := api.Cancel(ctx, id); err != nil || resp.StatusCode != http.StatusOK {
				report.Errors = append(report.Errors, "cleanup of "+id+" failed")
			}
		}
	}
	return report, nil
}

func (r *Report) add(slot model.Slot, o outcome) {
	if o.err != nil {
		r.Errors = append(r.Errors, o.err.Error())
		return
	}
	res := o.result
	if res.Replayed {
		r.Replayed++
	}
	switch {
	case res.Booking != nil:
		r.Committed++
		r.StrongIDs = append(r.StrongIDs, res.Booking.StrongID)
	case res.Conflict != nil:
		r.Conflicted++
		for _, s := range res.Conflict.SuggestedSlots {
			if s.SameCell(slot) {
				r.BadSuggestion = true
			}
		}
	default:
		r.OtherStatus[res.StatusCode]++
	}
}

func request(cfg Config, runID string, i int) (*model.AppointmentRequest, string) {
	email := fmt.Sprintf("probe+%s-%d@example.com", runID, i)
	key := ""
	if cfg.SharedKey {
		email = fmt.Sprintf("probe+%s@example.com", runID)
		key = "probe-" + runID
	}
	return &model.AppointmentRequest{
		Name:       "Probe Client",
		Email:      email,
		Date:       cfg.Date,
		Time:       cfg.Time,
		ServiceID:  cfg.ServiceID,
		EmployeeID: cfg.EmployeeID,
	}, key
}

func distinct(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
