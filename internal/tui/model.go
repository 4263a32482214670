package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quicklabel/internal/model"
	"quicklabel/internal/replica"
	"quicklabel/internal/ws"
)

// prefetchAhead is how many upcoming images to keep warm.
const prefetchAhead = 3

type appModel struct {
	ctx   context.Context
	rep   *replica.Replica
	conn  *replica.Conn
	cache *replica.PrefetchCache
	api   *apiClient
	combo *replica.ComboDetector

	progress progress.Model
	width    int
	height   int

	showCommit bool
	preview    model.CommitPreview
	committing bool

	status string
}

type eventMsg replica.Event

type previewMsg struct {
	p   model.CommitPreview
	err error
}

type commitDoneMsg struct {
	res model.CommitResult
	err error
}

func newAppModel(ctx context.Context, rep *replica.Replica, conn *replica.Conn, cache *replica.PrefetchCache, api *apiClient) appModel {
	return appModel{
		ctx:      ctx,
		rep:      rep,
		conn:     conn,
		cache:    cache,
		api:      api,
		combo:    replica.NewComboDetector(0),
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m appModel) Init() tea.Cmd {
	return m.listen()
}

// listen waits for the next reconciled server event.
func (m appModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.conn.Events()
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(msg.Width-20, 50)
		return m, nil

	case eventMsg:
		switch msg.Type {
		case ws.TypeError:
			m.status = "server: " + msg.Message
		case ws.TypeUndoCompleted:
			m.status = msg.Message
		case "degraded":
			m.status = "connection lost, retrying"
		case "connected":
			m.status = "connected"
		}
		m.prefetchAround()
		return m, m.listen()

	case previewMsg:
		if msg.err != nil {
			m.status = "preview failed: " + msg.err.Error()
			return m, nil
		}
		m.preview = msg.p
		m.showCommit = true
		return m, nil

	case commitDoneMsg:
		m.committing = false
		m.showCommit = false
		if msg.err != nil {
			m.status = "commit failed: " + msg.err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("committed: %d moved, %d deleted, %d errors",
			msg.res.MovesApplied, msg.res.DeletesApplied, len(msg.res.Errors))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.showCommit {
		switch key {
		case "y", "enter":
			if !m.committing {
				m.committing = true
				return m, m.commit()
			}
			return m, nil
		case "n", "esc", "q":
			m.showCommit = false
			return m, nil
		}
		return m, nil
	}

	switch res := m.combo.Press(key); res {
	case replica.ComboFired:
		m.status = ""
		return m.navigate("first", 0)
	case replica.ComboPending:
		m.status = "g"
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "1", "2", "3", "4", "5", "6", "7", "8", "9", "0":
		idx := int(key[0] - '1')
		if key == "0" {
			idx = 9
		}
		return m.label(idx)

	case "d", "x":
		return m.del()

	case "u":
		if err := m.conn.Send(ws.TypeUndo, nil); err != nil {
			m.status = err.Error()
		}
		return m, nil

	case "j", "right", " ":
		return m.navigate("next", 0)
	case "k", "left":
		return m.navigate("previous", 0)
	case "G":
		return m.navigate("last", 0)

	case "c":
		return m, m.loadPreview()
	}
	return m, nil
}

func (m appModel) label(classIndex int) (tea.Model, tea.Cmd) {
	img, _, ok := m.rep.Current()
	if !ok {
		m.status = "no image selected"
		return m, nil
	}
	if classIndex >= len(m.rep.State().Classes) {
		m.status = fmt.Sprintf("no class %d", classIndex+1)
		return m, nil
	}
	m.rep.OptimisticLabel(img.ID, classIndex)
	if err := m.conn.Send(ws.TypeLabel, ws.LabelRequest{ImageID: img.ID, ClassIndex: classIndex}); err != nil {
		m.status = err.Error()
		return m, nil
	}
	return m.navigate("next", 0)
}

func (m appModel) del() (tea.Model, tea.Cmd) {
	img, _, ok := m.rep.Current()
	if !ok {
		m.status = "no image selected"
		return m, nil
	}
	m.rep.OptimisticDelete(img.ID)
	if err := m.conn.Send(ws.TypeDelete, ws.DeleteRequest{ImageID: img.ID}); err != nil {
		m.status = err.Error()
		return m, nil
	}
	return m.navigate("next", 0)
}

func (m appModel) navigate(direction string, index int) (tea.Model, tea.Cmd) {
	st := m.rep.State()
	target := st.CurrentIndex
	switch direction {
	case "next":
		target++
	case "previous":
		target--
	case "first":
		target = 0
	case "last":
		target = len(st.Images) - 1
	case "index":
		target = index
	}
	m.rep.OptimisticNavigate(target)
	if err := m.conn.Send(ws.TypeNavigate, ws.NavigateRequest{Direction: direction, Index: index}); err != nil {
		m.status = err.Error()
	}
	m.prefetchAround()
	return m, nil
}

func (m appModel) prefetchAround() {
	_, i, ok := m.rep.Current()
	if !ok {
		return
	}
	m.cache.Prefetch(m.ctx, replica.Around(m.rep.ImageIDs(), i, prefetchAhead))
}

func (m appModel) loadPreview() tea.Cmd {
	return func() tea.Msg {
		p, err := m.api.Preview(m.ctx)
		return previewMsg{p: p, err: err}
	}
}

func (m appModel) commit() tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.Commit(m.ctx)
		return commitDoneMsg{res: res, err: err}
	}
}

func (m appModel) View() string {
	st := m.rep.State()
	stats := m.rep.Stats()

	var b strings.Builder

	online := !m.rep.Degraded()
	header := titleStyle.Render("quicklabel") + "  " + connDot(online)
	if !online {
		header += " " + dangerStyle.Render("offline (read-only)")
	}
	b.WriteString(header + "\n\n")

	if len(st.Images) == 0 {
		b.WriteString(mutedStyle.Render("no images") + "\n")
	} else {
		img, i, ok := m.rep.Current()
		if ok {
			b.WriteString(m.imagePanel(img, i, len(st.Images)) + "\n")
		}
	}

	if stats.TotalImages > 0 {
		b.WriteString("\n" + m.progress.ViewAs(stats.ProgressPercent/100) + "\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf(
			"%d/%d labeled, %d deleted, %d pending",
			stats.LabeledCount, stats.TotalImages, stats.DeletedCount, len(st.StagedChanges))) + "\n")
	}

	b.WriteString("\n" + m.classLine(st.Classes, stats) + "\n")

	if m.status != "" {
		b.WriteString("\n" + warnStyle.Render(m.status) + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render("1-9/0 label · d delete · u undo · j/k move · gg/G ends · c commit · q quit"))

	if m.showCommit {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.commitModal())
	}
	return b.String()
}

func (m appModel) imagePanel(img model.Image, i, total int) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("image %d of %d", i+1, total))
	lines = append(lines, img.ID)

	switch {
	case img.MarkedForDeletion:
		lines = append(lines, dangerStyle.Render("marked for deletion"))
	case img.ClassName != nil:
		lines = append(lines, okStyle.Render("label: "+*img.ClassName))
	default:
		lines = append(lines, mutedStyle.Render("unlabeled"))
	}

	if m.cache.Has(img.ID) {
		lines = append(lines, mutedStyle.Render("prefetched"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m appModel) classLine(classes []string, stats model.Stats) string {
	parts := make([]string, len(classes))
	for i, c := range classes {
		key := fmt.Sprintf("%d", i+1)
		if i == 9 {
			key = "0"
		}
		parts[i] = fmt.Sprintf("[%s] %s (%d)", key, c, stats.PerClass[c])
	}
	return strings.Join(parts, "  ")
}

func (m appModel) commitModal() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Commit changes") + "\n\n")
	if m.preview.TotalChanges == 0 {
		b.WriteString(mutedStyle.Render("nothing to commit") + "\n")
	}
	for _, mv := range m.preview.Moves {
		b.WriteString(fmt.Sprintf("move   %s -> %s\n", mv.Source, mv.Destination))
	}
	for _, del := range m.preview.Deletes {
		b.WriteString(dangerStyle.Render(fmt.Sprintf("delete %s", del.Source)) + "\n")
	}
	for _, w := range m.preview.Warnings {
		b.WriteString(warnStyle.Render("! "+w) + "\n")
	}
	if m.committing {
		b.WriteString("\n" + mutedStyle.Render("committing..."))
	} else {
		b.WriteString("\n" + mutedStyle.Render("y confirm · n cancel"))
	}
	return modalStyle.Render(b.String())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
