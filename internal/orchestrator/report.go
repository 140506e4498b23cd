package orchestrator

import (
	"sort"
	"time"

	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/oracle"
	"github.com/wesleyorama2/horde/internal/registry"
	"github.com/wesleyorama2/horde/internal/session"
)

// Report aggregates the outcomes of a run.
type Report struct {
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	// Started counts sessions launched; Finished those with an outcome.
	Started  int `json:"started"`
	Finished int `json:"finished"`
	Active   int `json:"active"`

	// States and Reasons count outcomes by terminal state and end reason.
	States  map[string]int `json:"states"`
	Reasons map[string]int `json:"reasons"`

	// Failures tallies failed steps across all sessions by kind.
	Failures map[string]int `json:"failures"`

	Steps     int `json:"steps"`
	Decisions int `json:"decisions"`

	Latency  *metrics.Snapshot  `json:"latency,omitempty"`
	Outcomes []*session.Outcome `json:"outcomes"`
}

func newReport(name string, startedAt time.Time, elapsed time.Duration, outcomes []*session.Outcome) *Report {
	r := &Report{
		Name:      name,
		StartedAt: startedAt,
		Duration:  elapsed,
		Finished:  len(outcomes),
		States:    make(map[string]int),
		Reasons:   make(map[string]int),
		Failures:  make(map[string]int),
		Outcomes:  outcomes,
	}
	for _, out := range outcomes {
		r.States[out.State.String()]++
		r.Reasons[out.Reason]++
		r.Steps += out.Steps
		r.Decisions += out.Decisions
		for kind, n := range out.Failures {
			r.Failures[kind] += n
		}
	}
	return r
}

// CompletionRate is the share of finished sessions that met their goal.
func (r *Report) CompletionRate() float64 {
	if r.Finished == 0 {
		return 0
	}
	return float64(r.States[session.Completed.String()]) / float64(r.Finished)
}

// AvgSteps is the mean number of executed steps per finished session.
func (r *Report) AvgSteps() float64 {
	if r.Finished == 0 {
		return 0
	}
	return float64(r.Steps) / float64(r.Finished)
}

// FailureKinds returns the failure kinds seen, most frequent first.
func (r *Report) FailureKinds() []string {
	kinds := make([]string, 0, len(r.Failures))
	for k := range r.Failures {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if r.Failures[kinds[i]] != r.Failures[kinds[j]] {
			return r.Failures[kinds[i]] > r.Failures[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}

// Catalogue turns route descriptions into what the oracle is shown.
func Catalogue(infos []registry.RouteInfo) []oracle.Route {
	routes := make([]oracle.Route, 0, len(infos))
	for _, info := range infos {
		routes = append(routes, oracle.Route{Name: info.Name, Endpoints: info.Endpoints})
	}
	return routes
}

// RegistryCatalogue describes every route of reg for the oracle.
func RegistryCatalogue(reg *registry.Registry) []oracle.Route {
	infos := make([]registry.RouteInfo, 0, reg.Len())
	for _, r := range reg.Routes() {
		infos = append(infos, r.Describe(false))
	}
	return Catalogue(infos)
}
