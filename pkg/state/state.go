package state

import (
	"time"

	"github.com/bft-labs/fabpanel/internal/domain"
)

// Part is the JSON view of one registered device.
type Part struct {
	ID            int       `json:"id"`
	Role          string    `json:"role"`
	Transport     string    `json:"transport"`
	Remote        string    `json:"remote"`
	State         string    `json:"state"`
	MaterialID    int       `json:"material_id"`
	MaterialEmpty bool      `json:"material_empty,omitempty"`
	JobID         string    `json:"job_id,omitempty"`
	JobTitle      string    `json:"job_title,omitempty"`
	Instructions  int       `json:"instructions,omitempty"`
	BenchmarkLeft int       `json:"benchmark_left,omitempty"`
	RetryCount    int       `json:"retry_count,omitempty"`
	Connected     bool      `json:"connected"`
	Faulted       bool      `json:"faulted"`
	Fault         string    `json:"fault,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// FromStatus converts an engine status record.
func FromStatus(st domain.PartStatus) Part {
	return Part{
		ID:            int(st.ID),
		Role:          st.Role.String(),
		Transport:     st.Transport.String(),
		Remote:        st.Remote,
		State:         st.State.String(),
		MaterialID:    st.MaterialID,
		MaterialEmpty: st.MaterialEmpty,
		JobID:         st.JobID,
		JobTitle:      st.JobTitle,
		Instructions:  st.Instructions,
		BenchmarkLeft: st.BenchmarkLeft,
		RetryCount:    st.RetryCount,
		Connected:     st.Connected,
		Faulted:       st.Faulted,
		Fault:         st.Fault,
		RegisteredAt:  st.RegisteredAt,
	}
}

// FromStatuses converts a whole snapshot, keeping its order.
func FromStatuses(sts []domain.PartStatus) []Part {
	out := make([]Part, len(sts))
	for i, st := range sts {
		out[i] = FromStatus(st)
	}
	return out
}

// Summary is the coarse fabricator status polled by dashboards.
type Summary struct {
	// Busy is true when no print head can take a job.
	Busy bool `json:"busy"`

	// MatEmpty is true while any material container is empty.
	MatEmpty bool `json:"matempty"`

	// CurrentJob is the title of the lowest-id active job, if any.
	CurrentJob string `json:"current_job"`
}

// Summarize derives the dashboard summary from a snapshot.
func Summarize(sts []domain.PartStatus) Summary {
	s := Summary{Busy: true}
	for _, st := range sts {
		switch st.Role {
		case domain.RolePrinthead:
			if st.Connected && !st.Faulted && st.State == domain.StateIdle {
				s.Busy = false
			}
			if s.CurrentJob == "" && st.JobTitle != "" {
				s.CurrentJob = st.JobTitle
			}
		case domain.RoleMaterial:
			if st.MaterialEmpty {
				s.MatEmpty = true
			}
		}
	}
	return s
}

// Snapshot is one frame of the live feed.
type Snapshot struct {
	Taken   time.Time `json:"taken"`
	Summary Summary   `json:"summary"`
	Parts   []Part    `json:"parts"`
}

// NewSnapshot builds a feed frame.
func NewSnapshot(taken time.Time, sts []domain.PartStatus) Snapshot {
	return Snapshot{
		Taken:   taken,
		Summary: Summarize(sts),
		Parts:   FromStatuses(sts),
	}
}
