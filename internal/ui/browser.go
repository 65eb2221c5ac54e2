package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/config"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/glebovdev/cider-cli/internal/queue"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

// view is one level of the browser: a titled list and where it came from.
type view struct {
	title  string
	items  []catalog.Item
	source queue.Source
	row    int
}

// isList reports whether songs in the view play as a queue.
func (v view) isList() bool {
	return v.source.Kind != queue.SourceSingle
}

// songsFrom returns the songs of the view and the position of the item at
// index among them, or -1 when that item is not a song.
func (v view) songsFrom(index int) ([]catalog.Item, int) {
	var songs []catalog.Item
	pos := -1
	for i, item := range v.items {
		if !item.Kind.IsSong() {
			continue
		}
		if i == index {
			pos = len(songs)
		}
		songs = append(songs, item)
	}
	return songs, pos
}

// viewStack is the drill-down history. The bottom entry is the home view and
// is never popped.
type viewStack struct {
	views []view
}

func newViewStack() *viewStack {
	return &viewStack{}
}

func (s *viewStack) reset(v view) {
	s.views = []view{v}
}

func (s *viewStack) push(v view) {
	s.views = append(s.views, v)
}

func (s *viewStack) pop() bool {
	if len(s.views) <= 1 {
		return false
	}
	s.views = s.views[:len(s.views)-1]
	return true
}

func (s *viewStack) top() *view {
	if len(s.views) == 0 {
		return nil
	}
	return &s.views[len(s.views)-1]
}

func (s *viewStack) depth() int {
	return len(s.views)
}

func (s *viewStack) breadcrumb() string {
	titles := make([]string, len(s.views))
	for i, v := range s.views {
		titles[i] = v.title
	}
	return strings.Join(titles, " › ")
}

func homeTitle(kind string) string {
	switch kind {
	case config.HomeRecent:
		return "Recently Played"
	case config.HomePlaylists:
		return "Playlists"
	case config.HomeSearch:
		return "Search"
	default:
		return "For You"
	}
}

func (ui *UI) loadHome(kind string) (view, error) {
	ctx, cancel := context.WithTimeout(context.Background(), browseTimeout)
	defer cancel()

	v := view{title: homeTitle(kind)}
	var err error
	switch kind {
	case config.HomeRecent:
		v.items, err = ui.browser.RecentlyPlayed(ctx, listLimit)
	case config.HomePlaylists:
		v.items, err = ui.browser.LibraryPlaylists(ctx, listLimit)
	case config.HomeSearch:
	default:
		v.items, err = ui.browser.Recommendations(ctx, listLimit)
	}
	return v, err
}

// openItem loads the contents of a container item as a new view.
func (ui *UI) openItem(item catalog.Item) (view, error) {
	ctx, cancel := context.WithTimeout(context.Background(), browseTimeout)
	defer cancel()

	v := view{
		title:  item.Label(false),
		source: queue.Source{ID: item.ID, Name: item.Name},
	}

	var err error
	switch item.Kind {
	case catalog.KindAlbum:
		v.source.Kind = queue.SourceAlbum
		v.items, err = ui.browser.AlbumTracks(ctx, item.ID)
	case catalog.KindPlaylist, catalog.KindLibraryPlaylist:
		v.source.Kind = queue.SourcePlaylist
		v.items, err = ui.browser.PlaylistTracks(ctx, item.ID)
	case catalog.KindArtist:
		v.source.Kind = queue.SourceTopTracks
		v.items, err = ui.browser.ArtistTopTracks(ctx, item.ID)
		if err == nil {
			albums, albumErr := ui.browser.ArtistAlbums(ctx, item.ID)
			if albumErr != nil {
				log.Debug().Err(albumErr).Str("artist", item.ID).Msg("Failed to load artist albums")
			}
			v.items = append(v.items, albums...)
		}
	default:
		return view{}, errors.Newf("cannot open %s", item.Kind)
	}
	return v, err
}

func (ui *UI) createItemTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	table.SetSelectionChangedFunc(func(row, column int) {
		if v := ui.stack.top(); v != nil && row > 0 {
			v.row = row
		}
	})

	table.SetSelectedFunc(func(row, column int) {
		ui.activate(row - 1)
	})

	table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'P' {
			row, _ := table.GetSelection()
			ui.playWhole(row - 1)
			return nil
		}
		return event
	})

	return table
}

func (ui *UI) headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(ui.colors.listHeaderFg).
		SetBackgroundColor(ui.colors.listHeaderBg).
		SetSelectable(false)
}

// renderView fills the table from the top of the stack. Must run on the UI
// goroutine.
func (ui *UI) renderView() {
	v := ui.stack.top()
	if v == nil || ui.itemList == nil {
		return
	}

	table := ui.itemList
	table.Clear()
	table.SetTitle(fmt.Sprintf(" %s (%d) ", ui.stack.breadcrumb(), len(v.items)))

	table.SetCell(0, 0, ui.headerCell(" ").SetMaxWidth(2))
	table.SetCell(0, 1, ui.headerCell(" ").SetMaxWidth(2))
	table.SetCell(0, 2, ui.headerCell("Name").SetExpansion(2))
	table.SetCell(0, 3, ui.headerCell("Album").SetExpansion(1))
	table.SetCell(0, 4, ui.headerCell("Time").SetAlign(tview.AlignRight))

	showArtist := !v.isList() || v.source.Kind == queue.SourcePlaylist
	for i, item := range v.items {
		ui.setItemRow(table, i+1, item, showArtist)
	}

	if len(v.items) == 0 {
		table.SetCell(1, 2, tview.NewTableCell("Nothing here").
			SetTextColor(ui.colors.foreground).
			SetSelectable(false))
		return
	}

	row := v.row
	if row < 1 || row > len(v.items) {
		row = 1
	}
	table.Select(row, 0)
	ui.updatePlayingMarker()
}

func (ui *UI) setItemRow(table *tview.Table, row int, item catalog.Item, showArtist bool) {
	color := ui.colors.foreground
	if item.Kind.IsSong() && !item.Playable {
		color = tcell.ColorDarkGray
	}

	table.SetCell(row, 0, tview.NewTableCell(item.Icon()).
		SetTextColor(color).
		SetMaxWidth(2))
	table.SetCell(row, 1, tview.NewTableCell(" ").
		SetTextColor(ui.colors.highlight).
		SetMaxWidth(2))
	table.SetCell(row, 2, tview.NewTableCell(tview.Escape(item.Label(showArtist))).
		SetTextColor(color).
		SetMaxWidth(48).
		SetExpansion(2))
	table.SetCell(row, 3, tview.NewTableCell(tview.Escape(item.Album)).
		SetTextColor(color).
		SetMaxWidth(30).
		SetExpansion(1))
	table.SetCell(row, 4, tview.NewTableCell(item.Duration()).
		SetTextColor(color).
		SetAlign(tview.AlignRight))
}

// matchesTrack reports whether an engine track id refers to item.
func matchesTrack(item catalog.Item, trackID string) bool {
	if trackID == "" {
		return false
	}
	return item.ID == trackID || (item.CatalogID != "" && item.CatalogID == trackID)
}

// updatePlayingMarker moves the play marker to the row of the now-playing
// track. Must run on the UI goroutine.
func (ui *UI) updatePlayingMarker() {
	v := ui.stack.top()
	if v == nil || ui.itemList == nil {
		return
	}

	trackID := ui.playback.NowPlayingID()
	marker := ui.getPlayingIndicator()
	if ui.playback.State() == player.StatePaused {
		marker = PauseIcon
	}

	for i, item := range v.items {
		cell := ui.itemList.GetCell(i+1, 1)
		if cell == nil {
			continue
		}
		if matchesTrack(item, trackID) {
			cell.SetText(marker)
		} else {
			cell.SetText(" ")
		}
	}
}

func (ui *UI) selectedItem(index int) (catalog.Item, *view, bool) {
	v := ui.stack.top()
	if v == nil || index < 0 || index >= len(v.items) {
		return catalog.Item{}, nil, false
	}
	return v.items[index], v, true
}

// activate handles Enter on a row: containers open, songs and stations play.
func (ui *UI) activate(index int) {
	item, v, ok := ui.selectedItem(index)
	if !ok {
		return
	}

	if item.Kind.IsContainer() {
		ui.drillInto(item)
		return
	}

	if item.Kind.IsSong() && v.isList() {
		songs, pos := v.songsFrom(index)
		source := v.source
		go func() {
			if err := ui.playback.PlayFromList(songs, pos, source); err != nil {
				log.Debug().Err(err).Msg("Play from list failed")
			}
		}()
		return
	}

	go func() {
		if err := ui.playback.PlaySelected(item); err != nil {
			log.Debug().Err(err).Str("id", item.ID).Msg("Play selected failed")
		}
	}()
}

// playWhole plays a container from its first track without opening it.
func (ui *UI) playWhole(index int) {
	item, _, ok := ui.selectedItem(index)
	if !ok || !item.Kind.IsContainer() {
		ui.activate(index)
		return
	}
	go func() {
		if err := ui.playback.PlaySelected(item); err != nil {
			ui.app.QueueUpdateDraw(func() { ui.showError(err) })
		}
	}()
}

func (ui *UI) drillInto(item catalog.Item) {
	ui.updateMessage("Loading " + item.Label(false) + "...")
	go func() {
		v, err := ui.openItem(item)
		ui.app.QueueUpdateDraw(func() {
			ui.updateMessage(ui.playback.Status())
			if err != nil {
				ui.showErrorModal(friendlyErrorMessage(err.Error()), func() { ui.drillInto(item) })
				return
			}
			ui.stack.push(v)
			ui.renderView()
		})
	}()
}

// goBack pops one level. It returns false at the home view.
func (ui *UI) goBack() bool {
	if !ui.stack.pop() {
		return false
	}
	ui.renderView()
	return true
}

func (ui *UI) openHome(kind string) {
	go func() {
		v, err := ui.loadHome(kind)
		ui.app.QueueUpdateDraw(func() {
			if err != nil {
				ui.showErrorModal(friendlyErrorMessage(err.Error()), func() { ui.openHome(kind) })
				return
			}
			ui.stack.reset(v)
			ui.renderView()
			ui.app.SetFocus(ui.itemList)
		})
	}()
}

func (ui *UI) createSearchInput() *tview.InputField {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetPlaceholder("press / to search Apple Music").
		SetFieldWidth(0)
	input.SetLabelColor(ui.colors.highlight)
	input.SetFieldBackgroundColor(ui.colors.background)
	input.SetFieldTextColor(ui.colors.foreground)
	input.SetPlaceholderTextColor(tcell.ColorDarkGray)
	input.SetBackgroundColor(ui.colors.background)

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			term := strings.TrimSpace(input.GetText())
			if term != "" {
				ui.search(term)
			}
			ui.app.SetFocus(ui.itemList)
		case tcell.KeyEscape:
			ui.app.SetFocus(ui.itemList)
		}
	})

	return input
}

func (ui *UI) focusSearch() {
	if ui.searchInput != nil {
		ui.app.SetFocus(ui.searchInput)
	}
}

func (ui *UI) search(term string) {
	ui.updateMessage("Searching...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), browseTimeout)
		defer cancel()

		items, err := ui.browser.Search(ctx, term, listLimit)
		ui.app.QueueUpdateDraw(func() {
			ui.updateMessage(ui.playback.Status())
			if err != nil {
				ui.showErrorModal(friendlyErrorMessage(err.Error()), func() { ui.search(term) })
				return
			}
			ui.stack.reset(view{title: fmt.Sprintf("Search %q", term), items: items})
			ui.renderView()
		})
	}()
}
