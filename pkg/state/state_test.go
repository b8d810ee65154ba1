package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fabpanel/internal/domain"
)

func TestSummarize(t *testing.T) {
	idle := domain.PartStatus{ID: 1, Role: domain.RolePrinthead, State: domain.StateIdle, Connected: true}
	busy := domain.PartStatus{ID: 2, Role: domain.RolePrinthead, State: domain.StateExecuting, Connected: true, JobTitle: "cube"}
	faulted := domain.PartStatus{ID: 3, Role: domain.RolePrinthead, State: domain.StateIdle, Faulted: true}
	empty := domain.PartStatus{ID: 4, Role: domain.RoleMaterial, MaterialEmpty: true, Connected: true}

	tests := []struct {
		name  string
		parts []domain.PartStatus
		want  Summary
	}{
		{"no devices", nil, Summary{Busy: true}},
		{"idle head", []domain.PartStatus{idle}, Summary{}},
		{"all heads busy", []domain.PartStatus{busy, faulted}, Summary{Busy: true, CurrentJob: "cube"}},
		{"empty container", []domain.PartStatus{idle, busy, empty}, Summary{MatEmpty: true, CurrentJob: "cube"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.parts))
		})
	}
}

func TestSummary_JSONKeys(t *testing.T) {
	b, err := json.Marshal(Summary{Busy: true, MatEmpty: true, CurrentJob: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"busy":true,"matempty":true,"current_job":"x"}`, string(b))
}

func TestFromStatus(t *testing.T) {
	p := FromStatus(domain.PartStatus{
		ID:         7,
		Role:       domain.RolePrinthead,
		Transport:  domain.TransportDatagram,
		State:      domain.StatePaused,
		MaterialID: 2,
		JobTitle:   "gear",
		Connected:  true,
	})
	assert.Equal(t, 7, p.ID)
	assert.Equal(t, "printhead", p.Role)
	assert.Equal(t, "datagram", p.Transport)
	assert.Equal(t, "Paused", p.State)
	assert.Equal(t, "gear", p.JobTitle)
}
