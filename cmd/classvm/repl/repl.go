// Package repl implements the interactive Read-Eval-Print Loop for
// the class-script toolchain, built on the Charm stack (Bubble Tea,
// Bubbles, Lipgloss), the same way dr8co-kong's repl/repl.go drives
// its language's REPL instead of a bare bufio.Scanner loop.
//
// A class-script program has no top-level expressions — every
// statement lives inside a method body, and a method only runs when
// something invokes it on a constructed instance. The REPL therefore
// has two input modes instead of one:
//
//   - typing a complete "class Name { ... }" declaration loads (or
//     replaces) that class in the session and recompiles everything
//     defined so far;
//   - a leading ':' line is a meta-command that acts on already
//     loaded classes: ":new" constructs an instance and binds it to
//     a session variable, ":call" invokes a method on one.
package repl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kristofer/classvm/pkg/compiler"
	"github.com/kristofer/classvm/pkg/decl"
	"github.com/kristofer/classvm/pkg/source"
	"github.com/kristofer/classvm/pkg/vm"
)

const (
	// Prompt is shown while entering a new top-level class or command.
	Prompt = "class> "
	// ContPrompt is shown while a class declaration's braces are still unbalanced.
	ContPrompt = "   ..> "
)

// Options configures the REPL session.
type Options struct {
	Roots   []string // extra source roots consulted after session-entered classes
	NoColor bool
	Debug   bool
}

// Run starts the Bubble Tea program and blocks until the user exits.
func Run(opts Options) {
	p := tea.NewProgram(initialModel(opts))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running REPL:", err)
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	resultStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	faultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8700")).Bold(true)
	historyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// evalResultMsg is delivered once an evaluation completes. Compiling
// and running a class-script program is fast enough to do inline, but
// the message/Cmd shape follows dr8co-kong's async pattern anyway so
// a future embedder that wires a slow host call (a native method that
// blocks on I/O) doesn't have to restructure Update.
type evalResultMsg struct {
	output  string
	isError bool
	elapsed time.Duration
}

type historyEntry struct {
	input   string
	output  string
	isError bool
	elapsed time.Duration
}

// session holds everything that accumulates across REPL turns: every
// class source entered so far, the instances constructed via :new,
// and a counter for naming them.
type session struct {
	sources map[string]string
	roots   []string
	vars    map[string]boundInstance
	nextVar int
}

type boundInstance struct {
	class  string
	handle vm.Handle
}

func newSession(roots []string) *session {
	return &session{
		sources: make(map[string]string),
		roots:   roots,
		vars:    make(map[string]boundInstance),
	}
}

// loader resolves against session-entered sources first, falling back
// to the configured file roots — so a REPL session can still reference
// classes that live on disk without re-typing them.
type sessionLoader struct {
	sess  *session
	roots []string
}

func (l sessionLoader) Load(className string) (string, error) {
	if src, ok := l.sess.sources[className]; ok {
		return src, nil
	}
	return source.NewFileLoader(l.roots...).Load(className)
}

type model struct {
	scrollback viewport.Model
	input      textinput.Model
	history    []historyEntry
	spinner    spinner.Model
	sess       *session
	inputMode  bool // true while buffering an unbalanced class declaration
	buffer     string
	evaluating bool
	current    string
	opts       Options
}

func initialModel(opts Options) model {
	ti := textinput.New()
	ti.Placeholder = "class Foo { ... } or :new Foo 0 / :call $0 method 1 2"
	ti.Focus()
	ti.Width = 90
	ti.Prompt = Prompt

	s := spinner.New()
	s.Spinner = spinner.Dot

	vp := viewport.New(90, 20)
	vp.SetContent(helpText())

	return model{
		scrollback: vp,
		input:      ti,
		spinner:    s,
		sess:       newSession(opts.Roots),
		opts:       opts,
	}
}

// renderScrollback rebuilds the viewport's content from history and
// pins the view to the bottom, the way a terminal session follows new
// output.
func (m *model) renderScrollback() {
	var s strings.Builder
	for _, e := range m.history {
		for i, line := range strings.Split(e.input, "\n") {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(line)
			s.WriteString("\n")
		}
		if e.isError {
			style := errorStyle
			if strings.Contains(e.output, "fault") {
				style = faultStyle
			}
			s.WriteString(m.applyStyle(style, e.output))
		} else {
			s.WriteString(m.applyStyle(resultStyle, e.output))
		}
		if m.opts.Debug && e.elapsed > time.Millisecond {
			s.WriteString(m.applyStyle(historyStyle, fmt.Sprintf(" (%s)", e.elapsed)))
		}
		s.WriteString("\n\n")
	}
	m.scrollback.SetContent(s.String())
	m.scrollback.GotoBottom()
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func isBalanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && strings.Contains(s, "{")
}

// evalCmd runs one REPL turn: either a meta-command or a class
// declaration, against the accumulated session state.
func evalCmd(input string, sess *session) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		out, isErr := evaluate(input, sess)
		return evalResultMsg{output: out, isError: isErr, elapsed: time.Since(start)}
	}
}

func evaluate(input string, sess *session) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, ":") {
		return runMeta(trimmed, sess)
	}
	return loadClass(input, sess)
}

func loadClass(src string, sess *session) (string, bool) {
	cs, err := parseClassName(src)
	if err != nil {
		return fmt.Sprintf("parse error: %v", err), true
	}
	sess.sources[cs] = src

	entries := make([]string, 0, len(sess.sources))
	for name := range sess.sources {
		entries = append(entries, name)
	}
	loader := sessionLoader{sess: sess, roots: sess.roots}
	prog, err := decl.Resolve(loader, entries)
	if err != nil {
		delete(sess.sources, cs)
		return fmt.Sprintf("resolve error: %v", err), true
	}
	if err := compiler.CompileProgram(prog); err != nil {
		delete(sess.sources, cs)
		return fmt.Sprintf("compile error: %v", err), true
	}
	return fmt.Sprintf("loaded %s", cs), false
}

func runMeta(cmd string, sess *session) (string, bool) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":list":
		var names []string
		for n := range sess.sources {
			names = append(names, n)
		}
		return strings.Join(names, ", "), false
	case ":new":
		return doNew(fields[1:], sess)
	case ":call":
		return doCall(fields[1:], sess)
	case ":help":
		return helpText(), false
	default:
		return fmt.Sprintf("unknown command %q", fields[0]), true
	}
}

func doNew(args []string, sess *session) (string, bool) {
	if len(args) < 1 {
		return "usage: :new <Class> [ctorIdx] [args...]", true
	}
	className := args[0]
	ctorIdx := 0
	rest := args[1:]
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			ctorIdx = n
			rest = rest[1:]
		}
	}
	ctorArgs, err := parseInts(rest)
	if err != nil {
		return err.Error(), true
	}

	entries := make([]string, 0, len(sess.sources))
	for name := range sess.sources {
		entries = append(entries, name)
	}
	loader := sessionLoader{sess: sess, roots: sess.roots}
	prog, err := decl.Resolve(loader, entries)
	if err != nil {
		return fmt.Sprintf("resolve error: %v", err), true
	}
	if err := compiler.CompileProgram(prog); err != nil {
		return fmt.Sprintf("compile error: %v", err), true
	}

	machine := vm.New(prog.Registry, nil)
	h, err := machine.New(className, ctorIdx, ctorArgs)
	if err != nil {
		return fmt.Sprintf("construction error: %v", err), true
	}
	name := fmt.Sprintf("$%d", sess.nextVar)
	sess.nextVar++
	sess.vars[name] = boundInstance{class: className, handle: h}
	return fmt.Sprintf("%s = new %s", name, className), false
}

func doCall(args []string, sess *session) (string, bool) {
	if len(args) < 2 {
		return "usage: :call <$var> <method> [args...]", true
	}
	bound, ok := sess.vars[args[0]]
	if !ok {
		return fmt.Sprintf("no such instance %q", args[0]), true
	}
	method := args[1]
	callArgs, err := parseInts(args[2:])
	if err != nil {
		return err.Error(), true
	}

	entries := make([]string, 0, len(sess.sources))
	for name := range sess.sources {
		entries = append(entries, name)
	}
	loader := sessionLoader{sess: sess, roots: sess.roots}
	prog, err := decl.Resolve(loader, entries)
	if err != nil {
		return fmt.Sprintf("resolve error: %v", err), true
	}
	if err := compiler.CompileProgram(prog); err != nil {
		return fmt.Sprintf("compile error: %v", err), true
	}

	machine := vm.New(prog.Registry, nil)
	result, err := machine.Invoke(bound.handle, method, callArgs)
	if err != nil {
		return fmt.Sprintf("runtime fault: %v", err), true
	}
	return fmt.Sprintf("%d", result), false
}

func parseInts(args []string) ([]int32, error) {
	out := make([]int32, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad integer argument %q: %w", a, err)
		}
		out = append(out, int32(n))
	}
	return out, nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Enter a full class declaration to load it.\n")
	b.WriteString(":list                        show loaded classes\n")
	b.WriteString(":new <Class> [ctor] [args]   construct an instance, bind it to $N\n")
	b.WriteString(":call $N <method> [args]     invoke a method on a bound instance\n")
	b.WriteString(":help                        this text\n")
	return b.String()
}

func parseClassName(src string) (string, error) {
	idx := strings.Index(src, "class ")
	if idx < 0 {
		idx = strings.Index(src, "native class ")
		if idx < 0 {
			return "", fmt.Errorf("expected a class declaration")
		}
		idx += len("native class ")
	} else {
		idx += len("class ")
	}
	rest := strings.TrimSpace(src[idx:])
	end := strings.IndexAny(rest, " \t\n{")
	if end < 0 {
		return "", fmt.Errorf("unterminated class header")
	}
	return rest[:end], nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		m.evaluating = false
		m.history = append(m.history, historyEntry{
			input:   m.current,
			output:  msg.output,
			isError: msg.isError,
			elapsed: msg.elapsed,
		})
		m.current = ""
		m.renderScrollback()
		return m, nil

	case tea.WindowSizeMsg:
		m.scrollback.Width = msg.Width
		m.scrollback.Height = msg.Height - 6
		m.renderScrollback()
		return m, nil

	case tea.KeyMsg:
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")

			if m.inputMode {
				if line == "" {
					m.inputMode = false
					return m, nil
				}
				m.buffer += "\n" + line
				if isBalanced(m.buffer) {
					buf := m.buffer
					m.buffer = ""
					m.inputMode = false
					m.evaluating = true
					m.current = buf
					return m, evalCmd(buf, m.sess)
				}
				return m, nil
			}

			if line == "" {
				return m, nil
			}
			if !strings.HasPrefix(strings.TrimSpace(line), ":") && !isBalanced(line) {
				m.inputMode = true
				m.buffer = line
				return m, nil
			}

			m.evaluating = true
			m.current = line
			return m, evalCmd(line, m.sess)
		}
	}

	if !m.evaluating {
		m.input, cmd = m.input.Update(msg)
	}
	if m.evaluating {
		return m, m.spinner.Tick
	}
	return m, cmd
}

func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.opts.NoColor {
		return text
	}
	return style.Render(text)
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.applyStyle(titleStyle, " classvm REPL "))
	s.WriteString("\n\n")

	s.WriteString(m.scrollback.View())
	s.WriteString("\n")

	if m.evaluating {
		s.WriteString(m.applyStyle(promptStyle, Prompt))
		s.WriteString(m.current)
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" evaluating...\n\n")
	}

	if m.inputMode && !m.evaluating {
		s.WriteString(m.applyStyle(historyStyle, "unbalanced braces, continuing:\n"))
		s.WriteString(m.buffer)
		s.WriteString("\n")
	}

	if !m.evaluating {
		if m.inputMode {
			m.input.Prompt = m.applyStyle(promptStyle, ContPrompt)
		} else {
			m.input.Prompt = m.applyStyle(promptStyle, Prompt)
		}
		s.WriteString(m.input.View())
		s.WriteString("\n")
	}

	help := "Esc/Ctrl+C/Ctrl+D to exit. :help for REPL commands."
	if m.inputMode {
		help = "Enter an empty line to discard the buffered class, or keep typing."
	}
	s.WriteString(m.applyStyle(historyStyle, help))
	return s.String()
}
