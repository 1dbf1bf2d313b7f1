package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/prefs"
	"github.com/raphaelgruber/loglens/internal/ranking"
)

// floorStep is how far + and - move the similarity floor.
const floorStep = 5.0

// recordMsg carries a record opened from the list.
type recordMsg struct {
	rec *models.Record
	err error
}

// floorSavedMsg reports the result of storing the floor preference.
type floorSavedMsg struct {
	floor float64
	err   error
}

// browserModel is the bubbletea model for browsing ranked similar records.
type browserModel struct {
	ctx      context.Context
	recordID string
	ranker   *ranking.Ranker
	items    []ranking.Ranked
	cursor   int
	theme    Theme

	open    *models.Record
	loading bool
	status  string
	err     error
}

func newBrowserModel(ctx context.Context, recordID string, ranker *ranking.Ranker) browserModel {
	return browserModel{
		ctx:      ctx,
		recordID: recordID,
		ranker:   ranker,
		items:    ranker.Ranked(),
		theme:    defaultTheme,
	}
}

// Init has nothing to start; results are already fetched.
func (m browserModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and returns the updated model.
func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if m.open != nil || m.err != nil {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "esc", "backspace", "enter":
				m.open = nil
				m.err = nil
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "+", "=":
			m.setFloor(m.ranker.Floor() + floorStep)
		case "-", "_":
			m.setFloor(m.ranker.Floor() - floorStep)
		case "s":
			return m, saveFloorCmd(m.ctx, m.ranker.Floor())
		case "enter":
			if len(m.items) == 0 {
				return m, nil
			}
			m.loading = true
			return m, openRecordCmd(m.ctx, m.items[m.cursor].RecordID)
		}

	case recordMsg:
		m.loading = false
		m.open = msg.rec
		m.err = msg.err

	case floorSavedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("could not save floor: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("default floor set to %.0f%%", msg.floor)
		}
	}

	return m, nil
}

// setFloor re-ranks the fetched records at a new floor.
func (m *browserModel) setFloor(floor float64) {
	floor = max(0, min(100, floor))
	m.items = m.ranker.SetFloor(floor)
	m.status = ""
	if m.cursor >= len(m.items) {
		m.cursor = max(0, len(m.items)-1)
	}
}

// View renders the list or the opened record.
func (m browserModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m browserModel) renderContent() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("✗ %v", m.err)) + "\n\n")
		b.WriteString(m.theme.hintStyle().Render("esc back · q quit") + "\n")
		return b.String()
	}
	if m.open != nil {
		return m.renderRecord(m.open)
	}

	header := fmt.Sprintf("Similar to %s  floor %.0f%%  (%d of %d)", m.recordID, m.ranker.Floor(), len(m.items), m.ranker.Total())
	b.WriteString(m.theme.statusStyle().Render(header) + "\n\n")

	if len(m.items) == 0 {
		b.WriteString("  No records at or above the floor.\n")
	}
	for i, r := range m.items {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-36s %7s  %s", cursor, r.RecordID, r.String(), truncate(r.Candidate.Context, 36))
		switch {
		case r.IsPrimary:
			line = m.theme.primaryStyle().Render(line + "  ★ primary")
		case i == m.cursor:
			line = m.theme.completedStyle().Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.loading {
		b.WriteString(m.theme.hintStyle().Render("loading record...") + "\n")
	}
	if m.status != "" {
		b.WriteString(m.theme.hintStyle().Render(m.status) + "\n")
	}
	b.WriteString(m.theme.hintStyle().Render("↑/↓ move · +/- floor · s save floor · enter open · q quit") + "\n")
	return b.String()
}

func (m browserModel) renderRecord(rec *models.Record) string {
	var b strings.Builder
	b.WriteString(m.theme.statusStyle().Render("Record "+rec.ID) + "\n\n")
	fmt.Fprintf(&b, "  Visibility: %s\n", rec.Visibility)
	if rec.Filename != "" {
		fmt.Fprintf(&b, "  File: %s\n", rec.Filename)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(&b, "  Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Context != "" {
		fmt.Fprintf(&b, "  Context: %s\n", rec.Context)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&b, "\n  %s\n", rec.Summary)
	}
	if rec.DevFeedback != "" {
		fmt.Fprintf(&b, "\n  Developer feedback: %s\n", rec.DevFeedback)
	}
	b.WriteString("\n" + m.theme.hintStyle().Render("esc back · q quit") + "\n")
	return b.String()
}

// openRecordCmd loads a record in the background.
func openRecordCmd(ctx context.Context, id string) tea.Cmd {
	return func() tea.Msg {
		rec, err := apiClient.GetRecord(ctx, id)
		return recordMsg{rec: rec, err: err}
	}
}

// saveFloorCmd stores floor as the similarity_floor preference.
func saveFloorCmd(ctx context.Context, floor float64) tea.Cmd {
	return func() tea.Msg {
		err := prefStore.Set(ctx, prefs.SimilarityFloorKey, strconv.FormatFloat(floor, 'f', -1, 64))
		return floorSavedMsg{floor: floor, err: err}
	}
}

// RunSimilarBrowser runs the interactive similar-records browser.
func RunSimilarBrowser(ctx context.Context, recordID string, ranker *ranking.Ranker) error {
	p := tea.NewProgram(newBrowserModel(ctx, recordID, ranker))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("browser UI error: %w", err)
	}
	return nil
}
