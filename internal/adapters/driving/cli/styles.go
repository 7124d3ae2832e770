package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// Colours follow the ANSI palette so they respect the terminal theme.
var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleBusy    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleHeading = lipgloss.NewStyle().Bold(true)
)

const stageWidth = 17

func stageStyle(stage domain.Stage) lipgloss.Style {
	switch stage {
	case domain.StageRegistered, domain.StageClassified:
		return styleOK
	case domain.StageFailedDegraded, domain.StagePausedAuth, domain.StageExtractingRetry:
		return styleWarn
	case domain.StageFailedPermanent:
		return styleFail
	default:
		return styleBusy
	}
}

// stageLabel renders a stage padded to a fixed column.
func stageLabel(stage any) string {
	s, _ := stage.(string)
	return stageStyle(domain.Stage(s)).Width(stageWidth).Render(s)
}
