package rca

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/eightd/internal/models"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name          string
		node          models.RootCause
		otherResolved bool
		wantStatus    models.ProblemStatus
		wantSet       bool
	}{
		{
			name:       "resolved node closes",
			node:       models.RootCause{IsRootCause: true, ActionPlan: "Replace sensor"},
			wantStatus: models.ProblemStatusClosed,
			wantSet:    true,
		},
		{
			name:          "resolved node closes even with others resolved",
			node:          models.RootCause{IsRootCause: true, ActionPlan: "Replace sensor"},
			otherResolved: true,
			wantStatus:    models.ProblemStatusClosed,
			wantSet:       true,
		},
		{
			name:       "root cause without plan reopens",
			node:       models.RootCause{IsRootCause: true},
			wantStatus: models.ProblemStatusOpen,
			wantSet:    true,
		},
		{
			name:       "whitespace plan counts as empty",
			node:       models.RootCause{IsRootCause: true, ActionPlan: " \t\n"},
			wantStatus: models.ProblemStatusOpen,
			wantSet:    true,
		},
		{
			name:       "plan without root cause flag reopens",
			node:       models.RootCause{ActionPlan: "Replace sensor"},
			wantStatus: models.ProblemStatusOpen,
			wantSet:    true,
		},
		{
			name:          "another resolved node keeps status",
			node:          models.RootCause{Description: "Operator missed alarm"},
			otherResolved: true,
			wantSet:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, set := DeriveStatus(&tt.node, tt.otherResolved)
			assert.Equal(t, tt.wantSet, set)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}
