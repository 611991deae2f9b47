package harness

import (
	"context"
	"sync"

	"github.com/accelmark/opcheck/internal/cases"
)

// Summary aggregates a batch of case reports.
type Summary struct {
	Total        int           `json:"total"`
	Passed       int           `json:"passed"`
	Invalid      int           `json:"invalid"`
	Mismatched   int           `json:"mismatched"`
	DeviceErrors int           `json:"deviceErrors"`
	Errors       int           `json:"errors"`
	Reports      []*CaseReport `json:"reports"`
}

// Ok reports whether every case in the batch passed.
func (s *Summary) Ok() bool { return s.Passed == s.Total }

// RunAll fans cases out across workers. Each worker runs whole cases; a case
// never shares an executor or buffers with another worker. The only shared
// resource is the device backend, which handles its own scheduling.
func (r *Runner) RunAll(ctx context.Context, batch []*cases.Case, workers int) *Summary {
	if workers < 1 {
		workers = 1
	}
	reports := make([]*CaseReport, len(batch))

	type job struct {
		i int
		c *cases.Case
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				reports[j.i] = r.Run(ctx, j.c)
			}
		}()
	}
	for i, c := range batch {
		jobs <- job{i: i, c: c}
	}
	close(jobs)
	wg.Wait()

	s := &Summary{Total: len(batch), Reports: reports}
	for _, rep := range reports {
		switch rep.Status {
		case StatusPassed:
			s.Passed++
		case StatusInvalid:
			s.Invalid++
		case StatusMismatch:
			s.Mismatched++
		case StatusDeviceError:
			s.DeviceErrors++
		default:
			s.Errors++
		}
	}
	return s
}
