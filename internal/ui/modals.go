package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/cider-cli/internal/config"
	"github.com/rivo/tview"
)

func friendlyErrorMessage(errStr string) string {
	switch {
	case strings.Contains(errStr, "connection refused"):
		return "Cider is not responding.\nMake sure Cider is running with the RPC server enabled."
	case strings.Contains(errStr, "no such host"):
		return "Unable to resolve the Cider host.\nCheck the engine URL in your config."
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "Cider took too long to answer.\nIt may be busy or unreachable."
	case strings.Contains(errStr, "status 401"), strings.Contains(errStr, "status 403"):
		return "Cider rejected the request.\nCheck the API token in your config."
	case strings.Contains(errStr, "status 404"):
		return "Not found in Apple Music (404)."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) focusMain() {
	if ui.itemList != nil {
		ui.app.SetFocus(ui.itemList)
	}
}

func (ui *UI) showError(err error) {
	ui.showErrorModal(friendlyErrorMessage(err.Error()), nil)
}

// showErrorModal shows message; when retry is non-nil R re-runs it.
func (ui *UI) showErrorModal(message string, retry func()) {
	dismiss := func() {
		ui.pages.RemovePage("error-modal")
		ui.focusMain()
	}

	hint := "[::d]Press [::b]Esc[::d] to dismiss[::-]"
	if retry != nil {
		hint = "[::d]Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss[::-]"
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("\n[::b]Something went wrong[::-]\n\n%s", message))
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(hint)
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(0, 0, 1, 1, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Error ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	height := 10 + strings.Count(message, "\n")
	if height > 15 {
		height = 15
	}

	modal := centered(frame, 50, height)
	modal.SetBackgroundColor(ui.colors.background)
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			dismiss()
			return nil
		case tcell.KeyRune:
			if retry != nil && (event.Rune() == 'r' || event.Rune() == 'R') {
				dismiss()
				retry()
				return nil
			}
		}
		return event
	})

	ui.pages.AddPage("error-modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func centered(p tview.Primitive, width, height int) *tview.Flex {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
}

func helpText(keyColor, configPath string) string {
	k := func(key string) string { return fmt.Sprintf("[%s]%s[-]", keyColor, key) }

	sections := []struct {
		title string
		rows  [][2]string
	}{
		{"PLAYBACK", [][2]string{
			{k("Enter"), "Play or open selected item"},
			{k("Space"), "Pause / Resume"},
			{k("n") + " / " + k(">"), "Next track"},
			{k("p") + " / " + k("<"), "Previous track"},
			{k("←") + " / " + k("→"), "Seek 10s"},
		}},
		{"MODES", [][2]string{
			{k("s"), "Toggle shuffle"},
			{k("r"), "Cycle repeat"},
			{k("a"), "Toggle auto-play"},
		}},
		{"VOLUME", [][2]string{
			{k("+") + " / " + k("-"), "Volume up / down"},
			{k("m"), "Mute / Unmute"},
		}},
		{"BROWSE", [][2]string{
			{k("/"), "Search"},
			{k("1") + " " + k("2") + " " + k("3"), "For you, recent, playlists"},
			{k("Bksp") + " / " + k("h"), "Back"},
		}},
		{"APPLICATION", [][2]string{
			{k("?"), "Show this help"},
			{k("i"), "About " + config.AppName},
			{k("q") + " / " + k("Esc"), "Quit"},
		}},
	}

	var b strings.Builder
	b.WriteString("[::b]KEYBOARD SHORTCUTS[::-]\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "\n[%s]%s[-]\n", keyColor, s.title)
		for _, row := range s.rows {
			pad := 14 - tview.TaggedStringWidth(row[0])
			if pad < 1 {
				pad = 1
			}
			b.WriteString("  " + row[0] + strings.Repeat(" ", pad) + row[1] + "\n")
		}
	}
	fmt.Fprintf(&b, "\n[%s]CONFIG[-]: %s", keyColor, configPath)
	return b.String()
}

func (ui *UI) showHelpModal() {
	configPath, _ := config.GetConfigPath()
	ui.showInfoModal("Help", helpText(ui.colors.helpHotkey.String(), configPath))
}

func (ui *UI) showAboutModal() {
	linkColor := "skyblue"
	dimColor := "gray"

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%s]%s[-]

%s

Version: %s
Engine:  %s
Project: [%s:::%s]%s[-:::-]
License: MIT`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppDescription,
		config.AppVersion,
		ui.config.Engine.URL,
		linkColor, config.AppProjectURL, config.AppProjectURL)

	ui.showInfoModal("About", aboutText)
}

func (ui *UI) showInfoModal(title, message string) {
	dismiss := func() {
		ui.pages.RemovePage("modal")
		ui.focusMain()
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	height := strings.Count(message, "\n") + 10
	if height > 40 {
		height = 40
	}

	modal := centered(frame, 52, height)
	modal.SetBackgroundColor(ui.colors.background)
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		dismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("[::b]%s[::-]\n\n%s", title, message))
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.modalBackground)

	hint := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]")
	hint.SetTextColor(ui.colors.foreground)
	hint.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Connection Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(frame, 64, 1, true).
			AddItem(nil, 0, 1, false), 10, 1, true).
		AddItem(hint, 2, 0, false).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				if onRetry != nil {
					onRetry()
				}
				return nil
			case 'q', 'Q':
				if onQuit != nil {
					onQuit()
				}
				return nil
			}
		case tcell.KeyEscape:
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	ui.showInitialErrorScreen(
		"Unable to Reach Cider",
		friendlyErrorMessage(err.Error()),
		func() {
			ui.app.SetRoot(ui.loadingScreen, true)
			go ui.initAsync()
		},
		func() {
			ui.app.Stop()
		},
	)
}
