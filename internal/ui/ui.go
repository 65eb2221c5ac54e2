package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/config"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/glebovdev/cider-cli/internal/service"
	"github.com/glebovdev/cider-cli/internal/transition"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep            = 5
	SeekStep              = 10.0
	HeaderHeight          = 3
	FooterHeightWide      = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow    = 6 // Narrow: 2 rows × 3 lines each
	CoverWidth            = 26
	CoverHeight           = 12
	PlayerPanelHeight     = 12
	FooterBreakpoint      = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime = 800 * time.Millisecond
	MinStatusDisplayTime  = 200 * time.Millisecond
	browseTimeout         = 15 * time.Second
	listLimit             = 50
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Browser loads the lists shown in the library browser.
type Browser interface {
	Search(ctx context.Context, term string, limit int) ([]catalog.Item, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]catalog.Item, error)
	LibraryPlaylists(ctx context.Context, limit int) ([]catalog.Item, error)
	Recommendations(ctx context.Context, limit int) ([]catalog.Item, error)
	AlbumTracks(ctx context.Context, albumID string) ([]catalog.Item, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]catalog.Item, error)
	ArtistTopTracks(ctx context.Context, artistID string) ([]catalog.Item, error)
	ArtistAlbums(ctx context.Context, artistID string) ([]catalog.Item, error)
}

type UI struct {
	app      *tview.Application
	playback *service.PlaybackService
	browser  Browser
	config   *config.Config

	stack *viewStack

	itemList      *tview.Table
	searchInput   *tview.InputField
	helpPanel     *tview.Box
	contentLayout *tview.Flex
	playerPanel   *tview.Flex
	trackView     *tview.TextView
	progressView  *tview.TextView
	modesView     *tview.TextView
	messageView   *tview.TextView
	coverPanel    *tview.Image
	volumeView    *tview.Flex
	mainLayout    *tview.Flex
	loadingScreen *tview.Flex
	loadingText   *tview.TextView
	progressBar   *tview.TextView
	pages         *tview.Pages

	stopUpdates     chan struct{}
	lastFooterWidth int // Track width to detect layout changes
	coverTrackID    string

	mu             sync.Mutex
	currentVolume  int
	isMuted        bool
	shuffle        player.ShuffleMode
	repeat         player.RepeatMode
	animationFrame int
	playingSpinner *PlayingSpinner
	statusRenderer *StatusRenderer

	colors struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		listHeaderBg     tcell.Color
		listHeaderFg     tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
		statusForeground tcell.Color
		modalBackground  tcell.Color
	}
}

func NewUI(playback *service.PlaybackService, browser Browser, cfg *config.Config) *UI {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ui := &UI{
		app:           tview.NewApplication(),
		playback:      playback,
		browser:       browser,
		config:        cfg,
		stack:         newViewStack(),
		stopUpdates:   make(chan struct{}),
		currentVolume: cfg.Volume,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.listHeaderBg = config.GetColor(cfg.Theme.ListHeaderBg)
	ui.colors.listHeaderFg = config.GetColor(cfg.Theme.ListHeaderFg)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.statusForeground = config.GetColor(cfg.Theme.StatusForeground)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	ui.statusRenderer = NewStatusRenderer(playback)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	ui.safeCloseChannel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.connectAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Connecting to Cider... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(renderProgressBar(0, 30))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

// renderProgressBar draws a percent-filled bar width cells wide.
func renderProgressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := (percent * width) / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := renderProgressBar(fromPercent, 30)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := renderProgressBar(p, 30); bar != lastBar {
			ui.app.QueueUpdateDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

func (ui *UI) connectAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	animDone := make(chan struct{})
	go func() {
		ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)
		close(animDone)
	}()

	volume, err := ui.playback.Volume()
	if err != nil {
		return errors.Wrapf(err, "failed to reach Cider at %s", ui.config.Engine.URL)
	}
	ui.mu.Lock()
	ui.currentVolume = volume
	ui.mu.Unlock()

	<-animDone

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Loading library... (2/3)")
	})

	home, err := ui.loadHome(ui.config.HomeView)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load home view")
		home = view{title: homeTitle(ui.config.HomeView)}
	}
	ui.stack.reset(home)
	ui.refreshModes()

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building interface... (3/3)")
	})

	ui.setupUI()

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.subscribe()

	ui.app.QueueUpdateDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.renderView()
		ui.updatePlayer(ui.playback.NowPlaying())
		ui.updateModes()
		ui.updateMessage(ui.playback.Status())
		if ui.config.HomeView == config.HomeSearch {
			ui.focusSearch()
		} else {
			ui.app.SetFocus(ui.itemList)
		}
	})

	ui.startPlayingAnimation()
	return nil
}

func (ui *UI) subscribe() {
	ui.playback.OnNowPlaying(func(np player.NowPlaying) {
		ui.app.QueueUpdateDraw(func() {
			ui.updatePlayer(np)
		})
	})
	ui.playback.OnPendingTrack(func(player.NowPlaying) {
		ui.app.QueueUpdateDraw(func() {
			ui.updatePlayer(ui.playback.NowPlaying())
		})
	})
	ui.playback.OnStatus(func(msg string) {
		ui.app.QueueUpdateDraw(func() {
			ui.updateMessage(msg)
		})
	})
	ui.playback.OnIndicator(func(transition.IndicatorState) {
		ui.app.QueueUpdateDraw(func() {
			ui.updatePlayingMarker()
		})
	})
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = ui.createPlayerPanel()
	ui.itemList = ui.createItemTable()
	ui.searchInput = ui.createSearchInput()
	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.searchInput, 1, 0, false).
		AddItem(ui.itemList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") {
			return event
		}
		if ui.app.GetFocus() == ui.searchInput {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	padded := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	padded.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(padded, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) newLabel(text string) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetText(text)
	tv.SetTextColor(ui.colors.foreground)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	return tv
}

func (ui *UI) newValue() *tview.TextView {
	tv := tview.NewTextView()
	tv.SetDynamicColors(true)
	tv.SetTextColor(ui.colors.highlight)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	tv.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))
	return tv
}

func (ui *UI) createPlayerPanel() *tview.Flex {
	ui.coverPanel = tview.NewImage()
	ui.coverPanel.SetBackgroundColor(ui.colors.background)
	ui.coverPanel.SetAlign(tview.AlignLeft, tview.AlignTop)
	ui.setCover(nil)

	ui.trackView = ui.newValue()
	ui.trackView.SetWrap(true)
	ui.progressView = ui.newValue()
	ui.modesView = ui.newValue()
	ui.messageView = ui.newValue()
	ui.messageView.SetTextColor(ui.colors.statusForeground)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.newLabel(" Now playing:"), 1, 0, false).
		AddItem(ui.trackView, 3, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.newLabel(" Modes:"), 1, 0, false).
		AddItem(ui.modesView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.messageView, 1, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createGraphicalVolumeBar()

	coverWrapper := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.coverPanel, CoverHeight, 0, false).
		AddItem(nil, 0, 1, false)
	coverWrapper.SetBackgroundColor(ui.colors.background)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(coverWrapper, CoverWidth, 0, false).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	panel := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	panel.SetBackgroundColor(ui.colors.background)

	return panel
}

// updatePlayer redraws the now-playing panel. Must run on the UI goroutine.
// While a track change is pending its catalog metadata is shown instead.
func (ui *UI) updatePlayer(np player.NowPlaying) {
	if ui.trackView == nil {
		return
	}
	if pending, ok := ui.playback.PendingTrack(); ok {
		np = pending
	}
	hl := ui.colors.highlight.String()

	if np.Empty() {
		ui.trackView.SetText(" Nothing playing")
		ui.progressView.SetText("")
	} else {
		ui.trackView.SetText(formatTrack(np, hl))
		ui.progressView.SetText(" " + formatProgress(np, 30))
	}

	if np.TrackID != ui.coverTrackID {
		ui.coverTrackID = np.TrackID
		ui.updateCover(np.ArtworkURL)
	}

	ui.updatePlayingMarker()
}

func formatTrack(np player.NowPlaying, color string) string {
	name := np.Name
	if name == "" {
		name = "Unknown Track"
	}
	lines := []string{fmt.Sprintf(" [%s]%s[-]", color, tview.Escape(name))}
	if np.Artist != "" {
		lines = append(lines, " "+tview.Escape(np.Artist))
	}
	if np.Album != "" {
		lines = append(lines, " [::d]"+tview.Escape(np.Album)+"[::-]")
	}
	return strings.Join(lines, "\n")
}

// formatProgress renders "m:ss ████░░ m:ss" for the current position.
func formatProgress(np player.NowPlaying, width int) string {
	s := np.Sample()
	elapsed := catalog.FormatSeconds(int(s.Position))
	if s.Duration <= 0 {
		return elapsed
	}
	percent := int(s.Progress() * 100)
	return fmt.Sprintf("%s %s %s", elapsed, renderProgressBar(percent, width), catalog.FormatSeconds(int(s.Duration)))
}

func (ui *UI) updateCover(artworkURL string) {
	if artworkURL == "" {
		ui.setCover(nil)
		return
	}
	go func() {
		img, err := ui.playback.LoadArtwork(artworkURL)
		if err != nil {
			log.Debug().Err(err).Msg("Failed to load artwork")
			img = nil
		}
		ui.app.QueueUpdateDraw(func() {
			ui.setCover(img)
		})
	}()
}

// setCover shows img, or a blank square in the background colour when nil.
func (ui *UI) setCover(img image.Image) {
	if img == nil {
		img = blankCover(ui.colors.background)
	}
	ui.coverPanel.SetImage(img)
}

func blankCover(bg tcell.Color) image.Image {
	r, g, b := bg.RGB()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}}, image.Point{}, draw.Src)
	return img
}

func (ui *UI) updateMessage(msg string) {
	if ui.messageView != nil {
		ui.messageView.SetText(" " + tview.Escape(msg))
	}
}

func (ui *UI) refreshModes() {
	shuffle, repeat := ui.playback.Modes()
	ui.mu.Lock()
	ui.shuffle = shuffle
	ui.repeat = repeat
	ui.mu.Unlock()
	ui.app.QueueUpdateDraw(func() {
		ui.updateModes()
	})
}

func (ui *UI) updateModes() {
	if ui.modesView == nil {
		return
	}
	ui.mu.Lock()
	text := formatModes(ui.shuffle, ui.repeat, ui.playback.AutoPlay(), ui.colors.helpHotkey.String())
	ui.mu.Unlock()
	ui.modesView.SetText(text)
}

func formatModes(shuffle player.ShuffleMode, repeat player.RepeatMode, autoPlay bool, color string) string {
	auto := "off"
	if autoPlay {
		auto = "on"
	}
	return fmt.Sprintf(" [%s]shuffle[-] %s  [%s]repeat[-] %s  [%s]auto-play[-] %s",
		color, shuffle, color, repeat, color, auto)
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}
	frameIndex := ui.animationFrame % len(ui.playingSpinner.Frames)
	return ui.playingSpinner.Frames[frameIndex]
}

func (ui *UI) startPlayingAnimation() {
	ui.mu.Lock()
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}
	stopCh := ui.stopUpdates
	fps := ui.playingSpinner.FPS
	ui.mu.Unlock()

	go func() {
		animationTicker := time.NewTicker(fps)
		defer animationTicker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-animationTicker.C:
				ui.mu.Lock()
				ui.animationFrame++
				ui.mu.Unlock()

				ui.statusRenderer.AdvanceAnimation()

				ui.app.QueueUpdateDraw(func() {
					ui.updatePlayingMarker()
				})
			}
		}
	}()
}

func (ui *UI) togglePlayPause() {
	go func() {
		if err := ui.playback.PlayPause(); err != nil {
			ui.app.QueueUpdateDraw(func() { ui.showError(err) })
		}
	}()
}

func (ui *UI) next() {
	go func() {
		if err := ui.playback.Next(); err != nil {
			log.Debug().Err(err).Msg("Next failed")
		}
	}()
}

func (ui *UI) previous() {
	go func() {
		if err := ui.playback.Previous(); err != nil {
			log.Debug().Err(err).Msg("Previous failed")
		}
	}()
}

func (ui *UI) seek(delta float64) {
	go func() {
		if err := ui.playback.SeekBy(delta); err != nil {
			log.Debug().Err(err).Msg("Seek failed")
		}
	}()
}

func (ui *UI) toggleShuffle() {
	go func() {
		if _, err := ui.playback.ToggleShuffle(); err != nil {
			log.Debug().Err(err).Msg("Toggle shuffle failed")
		}
		ui.refreshModes()
	}()
}

func (ui *UI) toggleRepeat() {
	go func() {
		if _, err := ui.playback.ToggleRepeat(); err != nil {
			log.Debug().Err(err).Msg("Toggle repeat failed")
		}
		ui.refreshModes()
	}()
}

func (ui *UI) toggleAutoPlay() {
	ui.playback.ToggleAutoPlay()
	ui.updateModes()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePlayPause()
			return nil
		case '>', 'n':
			ui.next()
			return nil
		case '<', 'p':
			ui.previous()
			return nil
		case 's':
			ui.toggleShuffle()
			return nil
		case 'r':
			ui.toggleRepeat()
			return nil
		case 'a':
			ui.toggleAutoPlay()
			return nil
		case '/':
			ui.focusSearch()
			return nil
		case '1':
			ui.openHome(config.HomeRecommendations)
			return nil
		case '2':
			ui.openHome(config.HomeRecent)
			return nil
		case '3':
			ui.openHome(config.HomePlaylists)
			return nil
		case 'h':
			ui.goBack()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'i', 'I':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		ui.goBack()
		return nil
	case tcell.KeyEscape:
		if !ui.goBack() {
			ui.stop()
		}
		return nil
	case tcell.KeyRight:
		ui.seek(SeekStep)
		return nil
	case tcell.KeyLeft:
		ui.seek(-SeekStep)
		return nil
	}
	return event
}
