package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"structflow/internal/report"
	sflog "structflow/internal/structflow/log"
	"structflow/internal/structflow/styles"
	"structflow/internal/structs"
)

func newBrowseCmd(a *app) *cobra.Command {
	var reg string
	cmd := &cobra.Command{
		Use:   "browse FILE",
		Short: "Pick functions interactively and view their recovered structs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, a, args[0], reg)
		},
	}
	cmd.Flags().StringVarP(&reg, "reg", "r", "x0", "Register holding the struct pointer at function entry")
	return cmd
}

func runBrowse(cmd *cobra.Command, a *app, path, reg string) error {
	s, err := a.open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	// Log lines would tear the alternate screen.
	if a.log.Path == "" {
		a.log.SetOutput(io.Discard)
	}

	program := tea.NewProgram(
		newBrowseModel(s, reg),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	_, err = program.Run()
	return err
}

type viewMode int

const (
	viewFunctions viewMode = iota
	viewStruct
)

type funcItem struct {
	addr uint64
	name string
}

func (i funcItem) FilterValue() string { return fmt.Sprintf("%x %s", i.addr, i.name) }

type funcDelegate struct{}

func (d funcDelegate) Height() int                               { return 1 }
func (d funcDelegate) Spacing() int                              { return 0 }
func (d funcDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d funcDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(funcItem)
	if !ok {
		return
	}
	indicator := " "
	addrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	if index == m.Index() {
		indicator = ">"
		addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	}
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	fmt.Fprintf(w, " %s  %s  %s", indicator, addrStyle.Render(fmt.Sprintf("%x", i.addr)), nameStyle.Render(i.name))
}

// analysisMsg carries one finished analysis back to the model.
type analysisMsg struct {
	item    funcItem
	content string
	err     error
}

type browseModel struct {
	session  *session
	reg      string
	funcs    list.Model
	viewport viewport.Model
	spinner  spinner.Model
	mode     viewMode
	loading  *funcItem
	width    int
	height   int
}

func newBrowseModel(s *session, reg string) browseModel {
	items := make([]list.Item, 0, len(s.img.Symbols()))
	for _, sym := range s.img.Symbols() {
		items = append(items, funcItem{addr: sym.Addr, name: s.names.Demangle(sym.Name)})
	}
	funcs := list.New(items, funcDelegate{}, 80, 24)
	funcs.Title = "Functions"
	funcs.Styles.Title = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).MarginLeft(2)
	funcs.SetShowStatusBar(false)
	funcs.SetFilteringEnabled(true)

	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	return browseModel{
		session:  s,
		reg:      reg,
		funcs:    funcs,
		viewport: vp,
		spinner:  sp,
		width:    80,
		height:   24,
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

// analyzeCmd runs the data flow off the UI goroutine.
func (m browseModel) analyzeCmd(item funcItem) tea.Cmd {
	s, reg, width, color := m.session, m.reg, m.width, !m.session.app.cfg.NoColor
	return func() (msg tea.Msg) {
		defer sflog.RecoverPanic("browse analysis", func() {
			msg = analysisMsg{item: item, err: fmt.Errorf("analysis of %#x panicked", item.addr)}
		})
		content, err := renderFunction(s, item, reg, width, color)
		return analysisMsg{item: item, content: content, err: err}
	}
}

func renderFunction(s *session, item funcItem, reg string, width int, color bool) (string, error) {
	tf := targetFlags{funcs: []string{fmt.Sprintf("%#x", item.addr)}, reg: reg, delta: "0"}
	out, err := s.analyze(tf)
	if err != nil {
		return "", err
	}
	layout := structs.FromAccesses("struc", out.acc, uint64(s.app.cfg.MaxDelta))

	r, err := styles.MarkdownRenderer(width-2, color)
	if err != nil {
		return "", err
	}
	md := fmt.Sprintf("Entry `%s` holds the struct pointer in `%s`.\n\n", item.name, reg) + report.Markdown(layout, s.describe)
	rendered, err := r.Render(md)
	if err != nil {
		return "", err
	}

	code, err := s.code(tf)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(rendered)
	if err := report.Listing(&sb, code, structs.OperandRefs(out.acc, layout.Name), s.app.highlighter(), s.label); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case analysisMsg:
		m.loading = nil
		if msg.err != nil {
			m.viewport.SetContent(fmt.Sprintf("%s\n\n%v", msg.item.name, msg.err))
		} else {
			m.viewport.SetContent(msg.content)
		}
		m.viewport.GotoTop()
		m.mode = viewStruct
		return m, nil

	case spinner.TickMsg:
		if m.loading == nil {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - 2)
		m.funcs.SetWidth(msg.Width)
		m.funcs.SetHeight(msg.Height - 2)

	case tea.KeyMsg:
		if m.mode == viewFunctions && m.funcs.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if m.mode != viewFunctions || m.loading != nil {
				return m, nil
			}
			item, ok := m.funcs.SelectedItem().(funcItem)
			if !ok {
				return m, nil
			}
			m.loading = &item
			return m, tea.Batch(m.analyzeCmd(item), m.spinner.Tick)
		case "tab":
			if m.mode == viewFunctions {
				m.mode = viewStruct
			} else {
				m.mode = viewFunctions
			}
			return m, nil
		case "esc":
			if m.mode == viewStruct {
				m.mode = viewFunctions
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewStruct:
		m.viewport, cmd = m.viewport.Update(msg)
	default:
		m.funcs, cmd = m.funcs.Update(msg)
	}
	return m, cmd
}

func (m browseModel) View() string {
	var content string
	switch m.mode {
	case viewStruct:
		content = m.viewport.View()
	default:
		content = m.funcs.View()
	}

	menu := " Enter: analyze • Tab: struct • Q: quit "
	if m.mode == viewStruct {
		menu = " Esc: functions • Tab: functions • Q: quit "
	}
	if m.loading != nil {
		menu = fmt.Sprintf(" %s Analyzing %s... ", m.spinner.View(), m.loading.name)
	}
	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}
