// Package tui renders batch progress: a bar plus one line per worker with
// its current target. Plain mode (or a non-TTY) degrades to log lines.
package tui

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/batch"
)

const barWidth = 40

var (
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	workerStyle = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Progress displays batch progress. Use New, feed it batch events through
// Notify, and Close when the batch ends.
type Progress struct {
	program *tea.Program
	plain   bool
	total   int
	done    int
}

// New creates a progress display. total may be 0 for open-ended feeds
// (watch mode). Plain mode logs instead of drawing.
func New(total int, plain bool) *Progress {
	if plain || !stdoutIsTerminal() {
		return &Progress{plain: true, total: total}
	}
	p := &Progress{total: total}
	p.program = tea.NewProgram(newModel(total))
	go func() {
		if _, err := p.program.Run(); err != nil {
			log.Debug().Err(err).Msg("Progress TUI exited")
		}
	}()
	return p
}

// Notify consumes one batch event.
func (p *Progress) Notify(e batch.Event) {
	if p.plain {
		if e.Done {
			p.done++
			if e.Err != nil {
				log.Error().Str("tag", "ERROR").Str("url", e.URL).Err(e.Err).Int("done", p.done).Msg("Capture failed")
			} else {
				log.Info().Str("tag", "INFO").Str("url", e.URL).Int("done", p.done).Int("total", p.total).Msg("Capture finished")
			}
		}
		return
	}
	p.program.Send(e)
}

// Close tears the display down.
func (p *Progress) Close() {
	if p.program != nil {
		p.program.Quit()
		p.program.Wait()
	}
}

// model is the bubbletea state.
type model struct {
	total   int
	done    int
	failed  int
	start   time.Time
	current map[int]string // worker -> URL
}

func newModel(total int) model {
	return model{total: total, start: time.Now(), current: make(map[int]string)}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case batch.Event:
		if msg.Done {
			m.done++
			if msg.Err != nil {
				m.failed++
			}
			delete(m.current, msg.Worker)
		} else {
			m.current[msg.Worker] = msg.URL
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m model) View() string {
	var b strings.Builder

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	filled := int(barWidth * pct)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	elapsed := time.Since(m.start).Round(time.Second)

	header := fmt.Sprintf("[%s] %3.0f%% | %s (%d/%d)", barStyle.Render(bar), pct*100, elapsed, m.done, m.total)
	if m.total == 0 {
		header = fmt.Sprintf("[%s] %s (%d done)", barStyle.Render(bar), elapsed, m.done)
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteByte('\n')

	if m.failed > 0 {
		b.WriteString(errStyle.Render(fmt.Sprintf("%d failed", m.failed)))
		b.WriteByte('\n')
	}
	workers := make([]int, 0, len(m.current))
	for w := range m.current {
		workers = append(workers, w)
	}
	sort.Ints(workers)
	for _, worker := range workers {
		url := m.current[worker]
		if len(url) > 100 {
			url = url[:100] + "…"
		}
		b.WriteString(workerStyle.Render(fmt.Sprintf("[W-%d] %s", worker, url)))
		b.WriteByte('\n')
	}
	return b.String()
}

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
