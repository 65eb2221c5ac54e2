// Package catalog defines the music items shown in the browser and the
// request layer that fetches them through the engine's Apple Music proxy.
package catalog

import (
	"strconv"
	"strings"
)

// Kind is the Apple Music resource type of an item.
type Kind string

const (
	KindSong            Kind = "songs"
	KindLibrarySong     Kind = "library-songs"
	KindAlbum           Kind = "albums"
	KindArtist          Kind = "artists"
	KindPlaylist        Kind = "playlists"
	KindLibraryPlaylist Kind = "library-playlists"
	KindStation         Kind = "stations"
)

// IsSong reports whether items of this kind can go into the play queue.
func (k Kind) IsSong() bool {
	return k == KindSong || k == KindLibrarySong
}

// IsContainer reports whether the item opens a list of other items.
func (k Kind) IsContainer() bool {
	switch k {
	case KindAlbum, KindArtist, KindPlaylist, KindLibraryPlaylist:
		return true
	}
	return false
}

const (
	librarySongPrefix     = "i."
	libraryPlaylistPrefix = "p."
	artworkSize           = 600
)

// IsLibraryID reports whether id addresses the user's library rather than the catalog.
func IsLibraryID(id string) bool {
	return strings.HasPrefix(id, librarySongPrefix)
}

// IsLibraryPlaylistID reports whether id is a library playlist id.
func IsLibraryPlaylistID(id string) bool {
	return strings.HasPrefix(id, libraryPlaylistPrefix)
}

// Item is a single browsable entry: a song, album, playlist, artist or station.
type Item struct {
	ID         string
	Kind       Kind
	Name       string
	Artist     string
	Album      string
	DurationMs int
	Playable   bool
	CatalogID  string // playParams.catalogId for library songs
	ArtworkURL string
}

// Icon returns the nerd-font glyph for the item's kind.
func (i Item) Icon() string {
	switch i.Kind {
	case KindSong, KindLibrarySong:
		return "󰝚"
	case KindAlbum:
		return "󰀥"
	case KindArtist:
		return "󱍞"
	case KindPlaylist, KindLibraryPlaylist:
		return "󰲸"
	case KindStation:
		return "󰐹"
	default:
		return "󰎈"
	}
}

// Label renders the item name. Artist names are only shown for songs in
// top-level lists; inside an album or playlist they are redundant.
func (i Item) Label(showArtist bool) string {
	name := i.Name
	if name == "" {
		name = unknownName(i.Kind, i.ID)
	}
	if i.Kind.IsSong() && showArtist && i.Artist != "" {
		return name + " - " + i.Artist
	}
	return name
}

// Duration formats DurationMs as m:ss.
func (i Item) Duration() string {
	if i.DurationMs <= 0 {
		return ""
	}
	return FormatSeconds(i.DurationMs / 1000)
}

// FormatSeconds formats a second count as m:ss.
func FormatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	secs := total % 60
	pad := ""
	if secs < 10 {
		pad = "0"
	}
	return strconv.Itoa(total/60) + ":" + pad + strconv.Itoa(secs)
}

func unknownName(kind Kind, id string) string {
	switch kind {
	case KindSong, KindLibrarySong:
		return "Unknown Track"
	case KindAlbum:
		return "Unknown Album"
	case KindArtist:
		return "Unknown Artist"
	case KindPlaylist, KindLibraryPlaylist:
		return "Unknown Playlist"
	case KindStation:
		return "Unknown Station"
	default:
		return id
	}
}

// ArtworkURL fills the {w}x{h} template Apple Music uses for artwork links.
func ArtworkURL(template string, size int) string {
	if template == "" {
		return ""
	}
	if size <= 0 {
		size = artworkSize
	}
	s := strconv.Itoa(size)
	return strings.NewReplacer("{w}", s, "{h}", s).Replace(template)
}
