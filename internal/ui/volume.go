package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/cider-cli/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// volumeLevels splits the bar into filled and empty cells for a percentage.
func volumeLevels(volume, height int) (filled, empty int) {
	volume = config.ClampVolume(volume)
	filled = (volume * height) / 100
	return filled, height - filled
}

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	ui.mu.Lock()
	displayVolume := ui.currentVolume
	isMuted := ui.isMuted
	if isMuted {
		displayVolume = ui.config.Volume
	}
	ui.mu.Unlock()

	filledLines, emptyLines := volumeLevels(displayVolume, volumeBarHeight)

	barColor := ui.colors.highlight
	if isMuted {
		barColor = config.GetColor(ui.config.Theme.MutedVolume)
	}

	text := func(s string, color tcell.Color) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(s)
		tv.SetTextAlign(tview.AlignRight)
		tv.SetTextColor(color)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}

	line := func(cell string, color tcell.Color, label *tview.TextView) *tview.Flex {
		row := tview.NewFlex().SetDirection(tview.FlexColumn)
		row.SetBackgroundColor(ui.colors.background)
		if label == nil {
			label = text("    ", ui.colors.foreground)
		}
		row.AddItem(label, 4, 0, false)
		row.AddItem(text(cell, color), 0, 1, false)
		return row
	}

	percent := text(fmt.Sprintf("%d%%", displayVolume), barColor)
	if isMuted {
		percent.SetTextStyle(tcell.StyleDefault.
			Foreground(barColor).
			Background(ui.colors.background).
			Attributes(tcell.AttrStrikeThrough))
	}

	container.AddItem(text("   max", ui.colors.foreground), 1, 0, false)
	for i := 0; i < emptyLines; i++ {
		container.AddItem(line(" ░░", ui.colors.foreground, nil), 1, 0, false)
	}
	for i := 0; i < filledLines; i++ {
		var label *tview.TextView
		if i == 0 {
			label = percent
		}
		container.AddItem(line(" ██", barColor, label), 1, 0, false)
	}
	container.AddItem(text("   min", ui.colors.foreground), 1, 0, false)
	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	volumeContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	volumeContainer.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(volumeContainer)
	return volumeContainer
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

// pushVolume sends the volume to Cider off the UI goroutine.
func (ui *UI) pushVolume(percent int, persist bool) {
	go func() {
		if err := ui.playback.SetVolume(percent); err != nil {
			log.Warn().Err(err).Int("volume", percent).Msg("Failed to set volume")
			return
		}
		if persist {
			ui.SaveConfig()
		}
	}()
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		ui.statusRenderer.SetMuted(false)
		volume := ui.currentVolume
		ui.mu.Unlock()

		ui.pushVolume(volume, false)
		ui.updateVolumeDisplay()
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", volume)
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.pushVolume(volume, true)
	ui.updateVolumeDisplay()
	log.Debug().Msgf("Volume adjusted to %d%%", volume)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
	} else {
		ui.config.Volume = ui.currentVolume
		if ui.currentVolume == 0 {
			ui.config.Volume = config.DefaultVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
	}
	muted := ui.isMuted
	volume := ui.currentVolume
	ui.statusRenderer.SetMuted(muted)
	ui.mu.Unlock()

	log.Debug().Bool("muted", muted).Int("volume", volume).Msg("Mute toggled")
	ui.pushVolume(volume, true)
	ui.updateVolumeDisplay()
}
