package cli

import (
	"context"
	"errors"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/tracker"
)

// Theme holds the color scheme for the terminal UI.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	Primary    lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	Primary:    lipgloss.Color("#FFAF00"), // amber
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) primaryStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
}

// snapshotMsg carries a tracker state change.
type snapshotMsg tracker.Snapshot

// trackerClosedMsg is sent when the subscription channel closes.
type trackerClosedMsg struct{}

// submitDoneMsg carries the result of the upload.
type submitDoneMsg struct {
	jobID string
	err   error
}

// progressModel renders tracker state while a job is submitted and polled.
type progressModel struct {
	tracker  *tracker.Tracker
	updates  <-chan tracker.Snapshot
	submit   bool
	snap     tracker.Snapshot
	progress progress.Model
	theme    Theme
	done     bool
	detached bool
	err      error
}

// newProgressModel creates a progress model. If submit is set the model
// submits the tracker's selected file when it starts.
func newProgressModel(tr *tracker.Tracker, updates <-chan tracker.Snapshot, submit bool) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		tracker:  tr,
		updates:  updates,
		submit:   submit,
		snap:     tr.Snapshot(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts listening for snapshots and, if requested, submits.
func (m progressModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForSnapshot(m.updates), m.progress.Init()}
	if m.submit {
		cmds = append(cmds, submitCmd(m.tracker))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.snap.State == tracker.Polling {
				// Polling stops locally; the job keeps running on the server.
				m.detached = true
				m.done = true
				return m, tea.Quit
			}
			if msg.String() == "q" {
				// There is no job to leave running until the upload is accepted.
				return m, nil
			}
			m.tracker.Cancel()
			m.snap.State = tracker.Cancelled
			m.done = true
			return m, tea.Quit
		case "c":
			m.tracker.Cancel()
			return m, nil
		}

	case submitDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, tracker.ErrCancelled) {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case snapshotMsg:
		m.snap = tracker.Snapshot(msg)
		if m.snap.Terminal() || m.snap.State == tracker.Cancelled {
			m.done = true
			if m.snap.State == tracker.Failed {
				m.err = m.snap.LastError
			}
			return m, tea.Quit
		}
		return m, waitForSnapshot(m.updates)

	case trackerClosedMsg:
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	switch m.snap.State {
	case tracker.Idle, tracker.Uploaded, tracker.Submitting:
		name := ""
		if m.snap.Candidate != nil {
			name = m.snap.Candidate.Name
		}
		status := m.theme.statusStyle().Render("[uploading]")
		return fmt.Sprintf("%s %s\n%s\n", status, name, m.theme.hintStyle().Render("Press c to cancel"))
	}

	job := m.snap.ActiveJob
	if job == nil {
		job = m.snap.Job
	}
	if job == nil {
		return "Waiting for job status...\n"
	}

	// Status line with color
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", job.Status))
	progressBar := m.progress.ViewAs(job.ProgressPercent() / 100)
	line := fmt.Sprintf("%s %s %3.0f%%  job %s", status, progressBar, job.ProgressPercent(), job.ID)

	// Transient poll errors are shown without interrupting the display.
	var warn string
	if m.snap.LastError != nil {
		warn = m.theme.errorStyle().Render(fmt.Sprintf("retrying (%d): %v", m.snap.ConsecutiveErrors, m.snap.LastError)) + "\n"
	}

	hint := m.theme.hintStyle().Render("Press c to stop tracking, q to continue in background")
	return fmt.Sprintf("%s\n%s%s\n", line, warn, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	job := m.snap.Job

	if m.detached {
		running := m.snap.ActiveJob
		if running == nil {
			running = job
		}
		if running == nil {
			return m.theme.hintStyle().Render("\nStopped waiting for the job.\n")
		}
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'loglens watch %s' to follow it.\n",
			running.ID, running.ID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Job failed: %s", m.err)) + "\n"
	}

	if m.snap.State == tracker.Cancelled {
		if job == nil {
			return m.theme.hintStyle().Render("Upload cancelled.") + "\n"
		}
		return m.theme.hintStyle().Render("Stopped tracking.") + "\n"
	}

	if job != nil && job.RecordID != "" {
		return m.theme.completedStyle().Render("✓ Completed") +
			fmt.Sprintf("  record %s\n", job.RecordID)
	}
	return m.theme.completedStyle().Render("✓ Completed") + "\n"
}

// waitForSnapshot receives the next tracker snapshot.
func waitForSnapshot(updates <-chan tracker.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return trackerClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// submitCmd uploads the selected file.
// Runs in a separate goroutine (command) to avoid blocking Update().
func submitCmd(tr *tracker.Tracker) tea.Cmd {
	return func() tea.Msg {
		jobID, err := tr.Submit(context.Background())
		return submitDoneMsg{jobID: jobID, err: err}
	}
}

// RunJobProgress runs the interactive progress UI until the tracked job
// reaches a terminal state, the user stops tracking, or detaches.
// It returns the last tracker snapshot.
func RunJobProgress(tr *tracker.Tracker, submit bool) (tracker.Snapshot, error) {
	updates, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	model := newProgressModel(tr, updates, submit)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return tr.Snapshot(), fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok {
		return tr.Snapshot(), nil
	}
	if m.detached {
		return m.snap, nil
	}
	if m.err != nil {
		return m.snap, m.err
	}
	return m.snap, nil
}

// jobSummary renders a job for plain output.
func jobSummary(job *models.Job) string {
	if job == nil {
		return "no job"
	}
	s := fmt.Sprintf("job %s %s %3.0f%%", job.ID, job.Status, job.ProgressPercent())
	if job.RecordID != "" {
		s += " record " + job.RecordID
	}
	return s
}
