package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fakeRequester struct {
	responses map[string]string
	err       error
	paths     []string
	keys      []string
}

func (f *fakeRequester) RunAMAPI(_ context.Context, path, key string) ([]byte, error) {
	f.paths = append(f.paths, path)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	for prefix, body := range f.responses {
		if strings.HasPrefix(path, prefix) {
			return []byte(body), nil
		}
	}
	return []byte(`{"data":{"data":[]}}`), nil
}

func TestParseItemPlayable(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected bool
	}{
		{
			name:     "duration and play params",
			body:     `{"data":{"data":[{"id":"1","type":"songs","attributes":{"name":"A","durationInMillis":1000,"playParams":{"id":"1","kind":"song"}}}]}}`,
			expected: true,
		},
		{
			name:     "zero duration",
			body:     `{"data":{"data":[{"id":"1","type":"songs","attributes":{"name":"A","durationInMillis":0,"playParams":{"id":"1"}}}]}}`,
			expected: false,
		},
		{
			name:     "missing play params",
			body:     `{"data":{"data":[{"id":"1","type":"songs","attributes":{"name":"A","durationInMillis":1000}}]}}`,
			expected: false,
		},
		{
			name:     "albums are always playable",
			body:     `{"data":{"data":[{"id":"1","type":"albums","attributes":{"name":"A"}}]}}`,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&fakeRequester{responses: map[string]string{"/v1/catalog/tw/songs/1": tt.body}}, "")
			item, err := c.TrackInfo(context.Background(), "1")
			if err != nil {
				t.Fatalf("TrackInfo() error = %v", err)
			}
			if item.Playable != tt.expected {
				t.Errorf("Playable = %v, want %v", item.Playable, tt.expected)
			}
		})
	}
}

func TestTrackInfoUsesKeyAndLibraryPath(t *testing.T) {
	f := &fakeRequester{responses: map[string]string{
		"/v1/me/library/songs/i.abc": `{"data":{"data":[{"id":"i.abc","type":"library-songs","attributes":{"name":"Lib","artistName":"X","durationInMillis":2000,"playParams":{"id":"i.abc","catalogId":"555"}}}]}}`,
	}}
	c := NewClient(f, "us")

	item, err := c.TrackInfo(context.Background(), "i.abc")
	if err != nil {
		t.Fatalf("TrackInfo() error = %v", err)
	}
	if item.Name != "Lib" || item.Artist != "X" || item.CatalogID != "555" {
		t.Errorf("unexpected item %+v", item)
	}
	if f.keys[0] != TrackInfoKey {
		t.Errorf("key = %q, want %q", f.keys[0], TrackInfoKey)
	}
}

func TestTrackInfoNotFound(t *testing.T) {
	c := NewClient(&fakeRequester{}, "")
	_, err := c.TrackInfo(context.Background(), "404")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("TrackInfo() error = %v, want ErrNotFound", err)
	}
}

func TestSearchOrderAndLimit(t *testing.T) {
	body := `{"data":{"results":{
		"songs":{"data":[{"id":"s1","type":"songs"},{"id":"s2","type":"songs"}]},
		"albums":{"data":[{"id":"al1","type":"albums"}]},
		"artists":{"data":[{"id":"ar1","type":"artists"}]}
	}}}`
	f := &fakeRequester{responses: map[string]string{"/v1/catalog/tw/search": body}}
	c := NewClient(f, "")

	items, err := c.Search(context.Background(), "daft punk", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []string{"ar1", "al1", "s1"}
	if len(items) != len(want) {
		t.Fatalf("Search() returned %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, id)
		}
	}
	if !strings.Contains(f.paths[0], "term=daft+punk") {
		t.Errorf("search term not escaped in %q", f.paths[0])
	}
}

func TestRecentlyPlayedDeduplicates(t *testing.T) {
	body := `{"data":{"data":[{"id":"a","type":"albums"},{"id":"b","type":"playlists"},{"id":"a","type":"albums"}]}}`
	c := NewClient(&fakeRequester{responses: map[string]string{"/v1/me/recent/played": body}}, "")

	items, err := c.RecentlyPlayed(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentlyPlayed() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("RecentlyPlayed() = %+v", items)
	}
}

func TestLibraryPlaylistsNewestFirst(t *testing.T) {
	body := `{"data":{"data":[
		{"id":"p.old","type":"library-playlists","attributes":{"name":"Old","lastModifiedDate":"2023-01-01T00:00:00Z"}},
		{"id":"p.new","type":"library-playlists","attributes":{"name":"New","lastModifiedDate":"2024-06-01T00:00:00Z"}},
		{"id":"p.none","type":"library-playlists","attributes":{"name":"None"}}
	]}}`
	c := NewClient(&fakeRequester{responses: map[string]string{"/v1/me/library/playlists": body}}, "")

	items, err := c.LibraryPlaylists(context.Background(), 50)
	if err != nil {
		t.Fatalf("LibraryPlaylists() error = %v", err)
	}

	want := []string{"p.new", "p.old", "p.none"}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, id)
		}
	}
}

func TestPlaylistTracksPaths(t *testing.T) {
	f := &fakeRequester{responses: map[string]string{
		"/v1/me/library/playlists/p.1/tracks": `{"data":{"data":[{"id":"i.1","type":"library-songs"}]}}`,
		"/v1/catalog/tw/playlists/pl.2":       `{"data":{"data":[{"id":"pl.2","type":"playlists","relationships":{"tracks":{"data":[{"id":"9","type":"songs"},{"id":"10","type":"songs"}]}}}]}}`,
	}}
	c := NewClient(f, "")

	lib, err := c.PlaylistTracks(context.Background(), "p.1")
	if err != nil || len(lib) != 1 || lib[0].ID != "i.1" {
		t.Errorf("library PlaylistTracks() = %+v, %v", lib, err)
	}

	cat, err := c.PlaylistTracks(context.Background(), "pl.2")
	if err != nil || len(cat) != 2 || cat[1].ID != "10" {
		t.Errorf("catalog PlaylistTracks() = %+v, %v", cat, err)
	}
}

func TestAlbumTracks(t *testing.T) {
	body := `{"data":{"data":[{"id":"al","type":"albums","relationships":{"tracks":{"data":[{"id":"t1","type":"songs"},{"id":"t2","type":"songs"}]}}}]}}`
	c := NewClient(&fakeRequester{responses: map[string]string{"/v1/catalog/tw/albums/al": body}}, "")

	items, err := c.AlbumTracks(context.Background(), "al")
	if err != nil {
		t.Fatalf("AlbumTracks() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "t1" {
		t.Errorf("AlbumTracks() = %+v", items)
	}
}

func TestResolveCatalogID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		body    string
		want    string
		wantErr error
	}{
		{name: "catalog id unchanged", id: "123", want: "123"},
		{
			name: "library id with catalogId",
			id:   "i.a",
			body: `{"data":{"data":[{"id":"i.a","attributes":{"playParams":{"id":"i.a","catalogId":"777"}}}]}}`,
			want: "777",
		},
		{
			name: "library id falls back to playParams id",
			id:   "i.a",
			body: `{"data":{"data":[{"id":"i.a","attributes":{"playParams":{"id":"888"}}}]}}`,
			want: "888",
		},
		{
			name:    "library id without play params",
			id:      "i.a",
			body:    `{"data":{"data":[{"id":"i.a","attributes":{}}]}}`,
			wantErr: ErrNoCatalogID,
		},
		{
			name:    "library song missing",
			id:      "i.a",
			body:    `{"data":{"data":[]}}`,
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRequester{responses: map[string]string{"/v1/me/library/songs/": tt.body}}
			got, err := NewClient(f, "").ResolveCatalogID(context.Background(), tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveCatalogID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveCatalogID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStationForSong(t *testing.T) {
	f := &fakeRequester{responses: map[string]string{
		"/v1/catalog/tw/songs/42/station": `{"data":{"data":[{"id":"ra.42","type":"stations"}]}}`,
	}}
	c := NewClient(f, "")

	id, err := c.StationForSong(context.Background(), "42")
	if err != nil {
		t.Fatalf("StationForSong() error = %v", err)
	}
	if id != "ra.42" {
		t.Errorf("StationForSong() = %q, want ra.42", id)
	}

	_, err = c.StationForSong(context.Background(), "43")
	if !errors.Is(err, ErrNoStation) {
		t.Errorf("StationForSong() error = %v, want ErrNoStation", err)
	}
}

func TestRequesterErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c := NewClient(&fakeRequester{err: boom}, "")

	if _, err := c.RecentlyPlayed(context.Background(), 5); !errors.Is(err, boom) {
		t.Errorf("RecentlyPlayed() error = %v, want wrapped boom", err)
	}
}

func TestRecommendationsBalance(t *testing.T) {
	body := `{"data":{"data":[
		{"id":"r1","relationships":{"contents":{"data":[
			{"id":"st1","type":"stations"},
			{"id":"pl1","type":"playlists"},{"id":"pl2","type":"playlists"},{"id":"pl3","type":"playlists"},{"id":"pl4","type":"playlists"},
			{"id":"al1","type":"albums"},{"id":"al2","type":"albums"}
		]}}},
		{"id":"r2","relationships":{"contents":{"data":[{"id":"pl1","type":"playlists"}]}}}
	]}}`
	c := NewClient(&fakeRequester{responses: map[string]string{"/v1/me/recommendations": body}}, "")

	items, err := c.Recommendations(context.Background(), 6)
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("Recommendations() returned %d items, want 6", len(items))
	}

	counts := map[Kind]int{}
	for _, it := range items {
		counts[it.Kind]++
	}
	// quotas for 6: stations 1, playlists 2, albums 3; albums only has 2,
	// so the spare slot goes to playlists.
	if counts[KindStation] != 1 || counts[KindPlaylist] != 3 || counts[KindAlbum] != 2 {
		t.Errorf("kind counts = %v", counts)
	}
}

func TestParseItemLogsUndecodableAttributes(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = prev }()

	f := &fakeRequester{responses: map[string]string{
		"/v1/catalog/tw/artists/9/songs": `{"data":{"data":[{"id":"1","type":"songs","attributes":{"name":"Odd","durationInMillis":"long","playParams":{"id":"1"}}}]}}`,
	}}
	c := NewClient(f, "")

	items, err := c.ArtistTopTracks(context.Background(), "9")
	if err != nil {
		t.Fatalf("ArtistTopTracks() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Name != "Odd" {
		t.Errorf("Name = %q, want the decodable fields kept", items[0].Name)
	}
	if items[0].Playable {
		t.Error("song without a usable duration must not be playable")
	}
	if !strings.Contains(buf.String(), "durationInMillis") {
		t.Errorf("decode error not logged, log = %q", buf.String())
	}
}
