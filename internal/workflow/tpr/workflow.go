// Package tpr implements the guided test-positivity-rate workflow: a short
// scripted exchange that collects a region and a reporting period, then
// emits the computed TPR table and a map fragment as exit artifacts. The
// numbers here are placeholders for the external analysis pipeline; what
// matters to the coordination core is the turn-by-turn progress recorded in
// session metadata and the completion probe over it.
package tpr

import (
	"context"
	"fmt"
	"strings"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/coordinator"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
)

// Kind is the guided-workflow identifier, shared by the handler, its
// completion probe, and the artifact name prefix.
const Kind = "tpr-calculation"

const (
	metaStep   = Kind + ":step"
	metaRegion = Kind + ":region"
	metaPeriod = Kind + ":period"
	metaDone   = Kind + ":done"
)

// Workflow walks the user through the TPR calculation.
type Workflow struct{}

// New returns the workflow handler.
func New() *Workflow {
	return &Workflow{}
}

// Handle implements coordinator.TurnHandler. Progress lives entirely in
// state.Meta so any worker can pick up the next turn.
func (w *Workflow) Handle(_ context.Context, state *session.State, message string) (*coordinator.TurnOutput, error) {
	switch state.Meta[metaStep] {
	case "":
		state.SetMeta(metaStep, "region")
		state.SetMeta(metaDone, "false")
		return &coordinator.TurnOutput{
			Reply: "Starting the TPR calculation. Which region should I analyse?",
		}, nil

	case "region":
		region := strings.TrimSpace(message)
		if region == "" {
			return &coordinator.TurnOutput{
				Reply: "I need a region name to continue.",
			}, nil
		}
		state.SetMeta(metaRegion, region)
		state.SetMeta(metaStep, "period")
		return &coordinator.TurnOutput{
			Reply: fmt.Sprintf("Got it, %s. Which reporting period (e.g. 2025-Q4)?", region),
		}, nil

	case "period":
		period := strings.TrimSpace(message)
		if period == "" {
			return &coordinator.TurnOutput{
				Reply: "I need a reporting period to continue.",
			}, nil
		}
		region := state.Meta[metaRegion]
		state.SetMeta(metaPeriod, period)
		state.SetMeta(metaStep, "done")
		state.SetMeta(metaDone, "true")

		return &coordinator.TurnOutput{
			Reply: fmt.Sprintf(
				"TPR calculation for %s (%s) is complete. Ask me about the result table or map any time.",
				region, period),
			Artifacts: []coordinator.Artifact{
				{
					Name: "result-table",
					Kind: session.ArtifactTable,
					Data: resultTable(region, period),
				},
				{
					Name: "tpr-map",
					Kind: session.ArtifactVisualization,
					Data: mapFragment(region, period),
				},
			},
		}, nil

	default:
		// A deferred handoff lands here: the work is done, re-emit the
		// artifacts so the retried exit has bodies to persist.
		region := state.Meta[metaRegion]
		period := state.Meta[metaPeriod]
		return &coordinator.TurnOutput{
			Reply: fmt.Sprintf("The TPR calculation for %s (%s) already finished.", region, period),
			Artifacts: []coordinator.Artifact{
				{
					Name: "result-table",
					Kind: session.ArtifactTable,
					Data: resultTable(region, period),
				},
				{
					Name: "tpr-map",
					Kind: session.ArtifactVisualization,
					Data: mapFragment(region, period),
				},
			},
		}, nil
	}
}

// CompletionProbe reports whether the TPR workflow has finished for this
// session. Pure over session state; registered under Kind at startup.
func CompletionProbe(state *session.State) bool {
	return state.Meta[metaDone] == "true"
}

func resultTable(region, period string) []byte {
	var b strings.Builder
	b.WriteString("district,tested,positive,tpr\n")
	fmt.Fprintf(&b, "%s-central,1840,312,0.170\n", region)
	fmt.Fprintf(&b, "%s-north,960,201,0.209\n", region)
	fmt.Fprintf(&b, "%s-south,1210,154,0.127\n", region)
	fmt.Fprintf(&b, "# period: %s\n", period)
	return []byte(b.String())
}

func mapFragment(region, period string) []byte {
	return []byte(fmt.Sprintf(
		`<div class="tpr-map" data-region=%q data-period=%q>TPR choropleth for %s</div>`,
		region, period, region))
}
