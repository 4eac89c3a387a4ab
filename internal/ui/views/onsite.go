package views

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/observe"
	"github.com/dori/terrain/internal/timer"
	"github.com/dori/terrain/internal/ui/theme"
)

// actionTimeout bounds one remote write started from the keyboard
const actionTimeout = 15 * time.Second

// Controller is the open intervention the view drives
type Controller interface {
	Snapshot() *model.Intervention
	Profile() model.TechnicianProfile
	State() *observe.Value[*model.Intervention]
	Reading() *observe.Value[timer.Reading]
	Actions() []lifecycle.Action
	Breakdown() billing.Breakdown

	Play(ctx context.Context) (bool, error)
	Pause(ctx context.Context) (bool, error)
	Stop(ctx context.Context) (bool, error)
	RequestRevisit(ctx context.Context) (bool, error)
	Finish(ctx context.Context) (bool, error)

	AddMaterial(ctx context.Context, description string, price float64) (model.MaterialLine, error)
	RemoveMaterial(ctx context.Context, id string) (bool, error)
	AddOrder(ctx context.Context, name string) (model.OrderLine, error)
	RemoveOrder(ctx context.Context, id string) (bool, error)
	AdjustTravel(ctx context.Context, delta int) (int, error)
	AddManualSession(ctx context.Context, hours, minutes int) (model.TimeSession, bool, error)
	RemoveSession(ctx context.Context, s model.TimeSession) (bool, error)
	Resync(ctx context.Context) (bool, error)
}

// StateMsg carries a new intervention snapshot
type StateMsg struct {
	Intervention *model.Intervention
}

// ReadingMsg carries one timer display refresh
type ReadingMsg struct {
	Reading timer.Reading
}

// ActionDoneMsg reports the outcome of a keyboard action
type ActionDoneMsg struct {
	Label   string
	Changed bool
	Err     error
	// Session is set when a stop committed a work session
	Session *model.TimeSession
}

// Section is one of the editable lists
type Section int

const (
	SectionSessions Section = iota
	SectionMaterials
	SectionOrders
)

func (s Section) String() string {
	switch s {
	case SectionSessions:
		return "Time"
	case SectionMaterials:
		return "Materials"
	case SectionOrders:
		return "Orders"
	default:
		return "?"
	}
}

type inputKind int

const (
	inputNone inputKind = iota
	inputMaterial
	inputOrder
	inputSession
)

// OnsiteView shows the open intervention: timer, breakdown and lines
type OnsiteView struct {
	ctrl   Controller
	ctx    context.Context
	width  int
	height int

	inv       *model.Intervention
	profile   model.TechnicianProfile
	reading   timer.Reading
	breakdown billing.Breakdown
	actions   []lifecycle.Action

	section Section
	cursor  [3]int

	input     textinput.Model
	inputKind inputKind

	statusMsg string
	errorMsg  string
}

// NewOnsiteView creates the view for an opened controller
func NewOnsiteView(ctx context.Context, ctrl Controller) OnsiteView {
	ti := textinput.New()
	ti.CharLimit = 120
	ti.Width = 50

	v := OnsiteView{
		ctrl:    ctrl,
		ctx:     ctx,
		input:   ti,
		profile: ctrl.Profile(),
		reading: ctrl.Reading().Get(),
	}
	return v.refresh(ctrl.Snapshot())
}

// Init initializes the view
func (v OnsiteView) Init() tea.Cmd {
	return nil
}

// SetSize sets the view dimensions
func (v OnsiteView) SetSize(width, height int) OnsiteView {
	v.width = width
	v.height = height
	return v
}

// IsInputMode returns whether a text prompt is open
func (v OnsiteView) IsInputMode() bool {
	return v.inputKind != inputNone
}

// Intervention returns the last snapshot shown
func (v OnsiteView) Intervention() *model.Intervention {
	return v.inv
}

// Section returns the focused list
func (v OnsiteView) Section() Section {
	return v.section
}

func (v OnsiteView) refresh(inv *model.Intervention) OnsiteView {
	if inv != nil {
		v.inv = inv
	}
	v.breakdown = v.ctrl.Breakdown()
	v.actions = v.ctrl.Actions()
	for s := SectionSessions; s <= SectionOrders; s++ {
		if n := v.lineCount(s); v.cursor[s] >= n {
			v.cursor[s] = max(0, n-1)
		}
	}
	return v
}

// Update handles messages
func (v OnsiteView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		return v.refresh(msg.Intervention), nil

	case ReadingMsg:
		v.reading = msg.Reading
		v.breakdown = v.ctrl.Breakdown()
		return v, nil

	case ActionDoneMsg:
		switch {
		case msg.Err != nil:
			v.errorMsg = fmt.Sprintf("%s: %v", msg.Label, msg.Err)
		case !msg.Changed:
			v.statusMsg = fmt.Sprintf("%s: nothing to do", msg.Label)
		default:
			v.statusMsg = msg.Label
		}
		return v.refresh(v.ctrl.Snapshot()), nil

	case tea.KeyMsg:
		if v.IsInputMode() {
			return v.updateInput(msg)
		}
		v.statusMsg = ""
		v.errorMsg = ""
		return v.updateKeys(msg)
	}

	return v, nil
}

func (v OnsiteView) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s", " ":
		return v, v.do("Timer started", v.ctrl.Play)
	case "p":
		return v, v.do("Timer paused", v.ctrl.Pause)
	case "S":
		return v, v.stop()
	case "R":
		if v.inv != nil && v.inv.IsRunning() {
			v.errorMsg = "Stop the timer before asking for a revisit"
			return v, nil
		}
		return v, v.do("Revisit requested", v.ctrl.RequestRevisit)
	case "F":
		return v, v.do("Intervention finished", v.ctrl.Finish)
	case "ctrl+s":
		return v, v.do("Synced", v.ctrl.Resync)

	case "+", "=":
		return v, v.travel(1)
	case "-":
		return v, v.travel(-1)

	case "m":
		return v.prompt(inputMaterial, "Siphon 12.50")
	case "o":
		return v.prompt(inputOrder, "Part to order")
	case "a":
		return v.prompt(inputSession, "1:30")

	case "d", "delete":
		return v, v.deleteSelected()

	case "tab":
		v.section = (v.section + 1) % 3
		return v, nil
	case "j", "down":
		if v.cursor[v.section] < v.lineCount(v.section)-1 {
			v.cursor[v.section]++
		}
		return v, nil
	case "k", "up":
		if v.cursor[v.section] > 0 {
			v.cursor[v.section]--
		}
		return v, nil
	}
	return v, nil
}

func (v OnsiteView) prompt(kind inputKind, placeholder string) (tea.Model, tea.Cmd) {
	if v.inv != nil && !lifecycle.IsActive(v.inv.Status) {
		v.errorMsg = "The intervention is finished"
		return v, nil
	}
	v.inputKind = kind
	v.input.Placeholder = placeholder
	v.input.SetValue("")
	v.input.Focus()
	return v, textinput.Blink
}

func (v OnsiteView) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		v.inputKind = inputNone
		v.input.Blur()
		return v, nil
	case "enter":
		value := strings.TrimSpace(v.input.Value())
		kind := v.inputKind
		v.inputKind = inputNone
		v.input.Blur()
		if value == "" {
			return v, nil
		}
		cmd, err := v.submit(kind, value)
		if err != nil {
			v.errorMsg = err.Error()
			return v, nil
		}
		return v, cmd
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v OnsiteView) submit(kind inputKind, value string) (tea.Cmd, error) {
	ctrl := v.ctrl
	switch kind {
	case inputMaterial:
		desc, price, err := ParseMaterial(value)
		if err != nil {
			return nil, err
		}
		return v.do("Material added", func(ctx context.Context) (bool, error) {
			_, err := ctrl.AddMaterial(ctx, desc, price)
			return err == nil, err
		}), nil

	case inputOrder:
		return v.do("Order added", func(ctx context.Context) (bool, error) {
			_, err := ctrl.AddOrder(ctx, value)
			return err == nil, err
		}), nil

	case inputSession:
		h, m, err := ParseHoursMinutes(value)
		if err != nil {
			return nil, err
		}
		return v.do("Time added", func(ctx context.Context) (bool, error) {
			_, ok, err := ctrl.AddManualSession(ctx, h, m)
			return ok, err
		}), nil
	}
	return nil, nil
}

func (v OnsiteView) deleteSelected() tea.Cmd {
	if v.inv == nil {
		return nil
	}
	ctrl := v.ctrl
	i := v.cursor[v.section]

	switch v.section {
	case SectionSessions:
		if i >= len(v.inv.TimeSessions) {
			return nil
		}
		s := v.inv.TimeSessions[i]
		return v.do("Session removed", func(ctx context.Context) (bool, error) {
			return ctrl.RemoveSession(ctx, s)
		})

	case SectionMaterials:
		lines := billing.Materials(v.inv)
		if i >= len(lines) {
			return nil
		}
		line := lines[i]
		return v.do("Material removed", func(ctx context.Context) (bool, error) {
			if line.FromOrder {
				return ctrl.RemoveOrder(ctx, line.ID)
			}
			return ctrl.RemoveMaterial(ctx, line.ID)
		})

	case SectionOrders:
		orders := billing.PendingOrders(v.inv)
		if i >= len(orders) {
			return nil
		}
		id := orders[i].ID
		return v.do("Order removed", func(ctx context.Context) (bool, error) {
			return ctrl.RemoveOrder(ctx, id)
		})
	}
	return nil
}

func (v OnsiteView) travel(delta int) tea.Cmd {
	ctrl := v.ctrl
	return v.do("Travel updated", func(ctx context.Context) (bool, error) {
		_, err := ctrl.AdjustTravel(ctx, delta)
		return err == nil, err
	})
}

func (v OnsiteView) stop() tea.Cmd {
	ctrl := v.ctrl
	parent := v.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()

		before := 0
		if inv := ctrl.Snapshot(); inv != nil {
			before = len(inv.TimeSessions)
		}
		ok, err := ctrl.Stop(ctx)
		msg := ActionDoneMsg{Label: "Session saved", Changed: ok, Err: err}
		if ok && err == nil {
			if inv := ctrl.Snapshot(); inv != nil && len(inv.TimeSessions) > before {
				s := inv.TimeSessions[len(inv.TimeSessions)-1]
				msg.Session = &s
			}
		}
		return msg
	}
}

func (v OnsiteView) do(label string, op func(context.Context) (bool, error)) tea.Cmd {
	parent := v.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		ok, err := op(ctx)
		return ActionDoneMsg{Label: label, Changed: ok, Err: err}
	}
}

func (v OnsiteView) lineCount(s Section) int {
	if v.inv == nil {
		return 0
	}
	switch s {
	case SectionSessions:
		return len(v.inv.TimeSessions)
	case SectionMaterials:
		return len(billing.Materials(v.inv))
	case SectionOrders:
		return len(billing.PendingOrders(v.inv))
	}
	return 0
}

// ParseMaterial splits "description price" on the last space. The price
// accepts a decimal comma.
func ParseMaterial(s string) (string, float64, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, ' ')
	if i <= 0 {
		return "", 0, errors.New("expected a description followed by a price")
	}
	desc := strings.TrimSpace(s[:i])
	raw := strings.TrimSuffix(strings.TrimSpace(s[i+1:]), "€")
	price, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || price < 0 {
		return "", 0, fmt.Errorf("invalid price %q", s[i+1:])
	}
	return desc, price, nil
}

// ParseHoursMinutes reads "H:MM", "HhMM" or "Hh"
func ParseHoursMinutes(s string) (int, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	sep := strings.IndexAny(s, ":h")
	if sep < 0 {
		return 0, 0, fmt.Errorf("invalid duration %q, expected H:MM", s)
	}
	h, err := strconv.Atoi(s[:sep])
	if err != nil || h < 0 {
		return 0, 0, fmt.Errorf("invalid hours in %q", s)
	}
	m := 0
	if rest := s[sep+1:]; rest != "" {
		m, err = strconv.Atoi(rest)
		if err != nil || m < 0 || m > 59 {
			return 0, 0, fmt.Errorf("invalid minutes in %q", s)
		}
	}
	return h, m, nil
}

// View renders the view
func (v OnsiteView) View() string {
	if v.width == 0 || v.height == 0 {
		return "Loading..."
	}
	if v.inv == nil {
		return lipgloss.NewStyle().
			Foreground(theme.Current.Theme.Subtle).
			Width(v.width).
			Height(v.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("Intervention not loaded")
	}

	t := theme.Current.Theme
	styles := theme.Current.Styles
	width := min(100, v.width-2)

	var sections []string
	sections = append(sections, v.renderSite(width))
	sections = append(sections, "")

	left := v.renderTimer(width/2 - 1)
	right := v.renderBreakdown(width/2 - 1)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	sections = append(sections, "")

	sections = append(sections, v.renderLines(width))

	if v.IsInputMode() {
		label := map[inputKind]string{
			inputMaterial: "Material (description price)",
			inputOrder:    "Order",
			inputSession:  "Time worked (H:MM)",
		}[v.inputKind]
		sections = append(sections, "", styles.Label.Render(label), styles.InputFocused.Render(v.input.View()))
	}

	if v.errorMsg != "" {
		sections = append(sections, "", lipgloss.NewStyle().Foreground(t.Error).Render(v.errorMsg))
	} else if v.statusMsg != "" {
		sections = append(sections, "", lipgloss.NewStyle().Foreground(t.Info).Render(v.statusMsg))
	}

	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(sections, "\n"))
}

func (v OnsiteView) renderSite(width int) string {
	t := theme.Current.Theme
	styles := theme.Current.Styles

	addr := v.inv.Address.String()
	if addr == "" {
		addr = v.inv.ID
	}
	badge := lipgloss.NewStyle().
		Foreground(t.Background).
		Background(t.StatusColor(v.inv.Status)).
		Bold(true).
		Padding(0, 1).
		Render(v.inv.Status.Label())

	lines := []string{lipgloss.JoinHorizontal(lipgloss.Center, styles.Title.Render(addr), "  ", badge)}

	var meta []string
	if v.inv.PlannedAt != nil {
		visit := v.inv.PlannedAt.Format("Mon 2 Jan")
		if v.inv.ScheduledTime != "" {
			visit += " " + v.inv.ScheduledTime
		}
		meta = append(meta, "visit "+visit)
	}
	if v.inv.Assigned != "" {
		meta = append(meta, "assigned to "+v.inv.Assigned)
	}
	if len(meta) > 0 {
		lines = append(lines, styles.Subtitle.Render(strings.Join(meta, " · ")))
	}
	if !v.inv.Address.IsZero() {
		lines = append(lines, styles.Label.Render(v.profile.NavigationURL(v.inv.Address)))
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

func (v OnsiteView) renderTimer(width int) string {
	t := theme.Current.Theme

	var color lipgloss.Color
	var label string
	switch {
	case v.reading.Paused:
		color, label = t.StatusPaused, "PAUSED"
	case v.reading.Running:
		color, label = t.StatusRunning, "RUNNING"
	default:
		color, label = t.Subtle, "READY"
	}

	box := lipgloss.NewStyle().
		Bold(true).
		Foreground(color).
		Padding(1, 4).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Render(v.reading.WorkText)

	pause := lipgloss.NewStyle().Foreground(t.Subtle).
		Render(fmt.Sprintf("pause %s · total %s", v.reading.PauseText, v.reading.TotalText))

	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			lipgloss.NewStyle().Foreground(color).Bold(true).Render(label),
			box,
			pause,
		))
}

func (v OnsiteView) renderBreakdown(width int) string {
	styles := theme.Current.Styles

	row := func(label string, amount float64) string {
		l := styles.Label.Render(label)
		a := styles.Amount.Render(money(amount))
		gap := max(1, width-6-lipgloss.Width(l)-lipgloss.Width(a))
		return l + strings.Repeat(" ", gap) + a
	}

	travel := fmt.Sprintf("Travel (%d × %s)", v.inv.TravelCount, money(v.profile.TravelUnitFee))
	lines := []string{
		styles.PanelTitle.Render("Breakdown"),
		row("Time", v.breakdown.Time),
		row("Material", v.breakdown.Material),
		row(travel, v.breakdown.Travel),
		row("Total", v.breakdown.Total),
	}
	if v.inv.Status == model.StatusEnd || v.inv.Status == model.StatusBilled || v.inv.Status == model.StatusPaid {
		lines = append(lines, row("Invoiced", v.inv.TotalFinal))
	}
	return styles.Panel.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func (v OnsiteView) renderLines(width int) string {
	styles := theme.Current.Styles

	var tabs []string
	for s := SectionSessions; s <= SectionOrders; s++ {
		name := fmt.Sprintf("%s (%d)", s, v.lineCount(s))
		if s == v.section {
			tabs = append(tabs, styles.LineSelected.Render(name))
		} else {
			tabs = append(tabs, styles.LineMuted.Render(name))
		}
	}

	var rows []string
	switch v.section {
	case SectionSessions:
		for _, s := range v.inv.TimeSessions {
			rows = append(rows, fmt.Sprintf("%s  %s worked  %s pause  %10s",
				s.Date.Local().Format("02/01 15:04"), s.WorkDuration, s.PauseDuration, money(s.Price)))
		}
	case SectionMaterials:
		for _, m := range billing.Materials(v.inv) {
			desc := m.Description
			if m.FromOrder {
				desc += " (ordered)"
			}
			rows = append(rows, fmt.Sprintf("%-40s %10s", truncate(desc, 40), money(m.Price)))
		}
	case SectionOrders:
		for _, o := range billing.PendingOrders(v.inv) {
			rows = append(rows, fmt.Sprintf("%-40s %10s", truncate(o.Name, 40), "to order"))
		}
	}

	lines := []string{strings.Join(tabs, " ")}
	if len(rows) == 0 {
		lines = append(lines, styles.LineMuted.Render("nothing yet"))
	}
	for i, r := range rows {
		if i == v.cursor[v.section] {
			lines = append(lines, styles.LineSelected.Render(r))
		} else {
			lines = append(lines, styles.LineNormal.Render(r))
		}
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

// Actions returns the lifecycle actions available in the last snapshot
func (v OnsiteView) Actions() []lifecycle.Action {
	return v.actions
}

func money(v float64) string {
	return fmt.Sprintf("%.2f €", v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
