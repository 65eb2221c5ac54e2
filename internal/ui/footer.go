package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/rivo/tview"
)

// StateSource is what the footer needs to know about playback.
type StateSource interface {
	State() player.State
	NowPlaying() player.NowPlaying
}

type StatusRenderer struct {
	source        StateSource
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer(source StateSource) *StatusRenderer {
	return &StatusRenderer{
		source:        source,
		maxAnimFrame:  4,
		ticksPerFrame: 8,
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	if s.source == nil {
		return s.renderIdle()
	}

	switch s.source.State() {
	case player.StatePlaying:
		return s.renderPlaying()
	case player.StatePaused:
		return s.renderPaused()
	case player.StateSwitching:
		return s.renderSwitching()
	case player.StateError:
		return "✗ ENGINE UNREACHABLE"
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select something to play"
	}
	return "○ IDLE │ Select something to play"
}

func (s *StatusRenderer) renderSwitching() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return fmt.Sprintf("%s SWITCHING", circles[s.animFrame])
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]
	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}
	return joinParts(s.withDetails(dot + " PLAYING"))
}

func (s *StatusRenderer) renderPaused() string {
	return joinParts(s.withDetails(PauseIcon + " PAUSED"))
}

func (s *StatusRenderer) withDetails(head string) []string {
	parts := []string{head}
	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if t := elapsedText(s.source.NowPlaying()); t != "" {
		parts = append(parts, t)
	}
	return parts
}

// elapsedText renders "position / duration", or just the position when the
// duration is unknown.
func elapsedText(np player.NowPlaying) string {
	if np.Empty() {
		return ""
	}
	pos := catalog.FormatSeconds(int(np.PositionSec))
	if np.DurationMs <= 0 {
		return pos
	}
	return pos + " / " + catalog.FormatSeconds(np.DurationMs/1000)
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.playback.State() {
	case player.StatePaused:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] resume", keyColor, keyColor)
	case player.StatePlaying, player.StateSwitching:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] pause  [%s]n/p[-] skip", keyColor, keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Enter[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	ui.mu.Lock()
	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}
	ui.mu.Unlock()

	return fmt.Sprintf(" %s  [%s]/[-] search  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fillRect(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fillRect(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fillRect(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := height / 2
	if helpHeight < 1 {
		helpHeight = 1
	}
	statusHeight := height - helpHeight

	ui.fillRect(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fillRect(screen, x, y+helpHeight, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)
	if statusHeight > 0 {
		tview.Print(screen, statusText, x, y+helpHeight+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		if width >= FooterBreakpoint {
			usedHeight := height
			if height > FooterHeightWide {
				usedHeight = FooterHeightWide
			}
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
