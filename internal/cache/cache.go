// Package cache keeps downloaded cover artwork on disk.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached artwork is valid (30 days).
	DefaultExpiry = 30 * 24 * time.Hour
	// DefaultMaxBytes bounds the artwork directory size.
	DefaultMaxBytes = 64 << 20
	ArtworkSubdir   = "artwork"
	AppName         = "cider-cli"
)

// Cache stores artwork bytes exactly as downloaded, keyed by URL.
type Cache struct {
	baseDir  string
	expiry   time.Duration
	maxBytes int64
}

func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}
	return NewCacheAt(cacheDir), nil
}

func NewCacheAt(baseDir string) *Cache {
	return &Cache{
		baseDir:  baseDir,
		expiry:   DefaultExpiry,
		maxBytes: DefaultMaxBytes,
	}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user cache directory")
	}
	return filepath.Join(userCacheDir, AppName), nil
}

func (c *Cache) Dir() string { return c.baseDir }

func (c *Cache) artworkDir() string {
	return filepath.Join(c.baseDir, ArtworkSubdir)
}

func keyFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}

func (c *Cache) pathFor(url string) string {
	return filepath.Join(c.artworkDir(), keyFor(url))
}

// Get returns the cached bytes for url, or false when missing or expired.
func (c *Cache) Get(url string) ([]byte, bool) {
	path := c.pathFor(url)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("Failed to remove expired artwork")
		}
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// GetImage decodes the cached artwork for url. Returns nil if it is missing,
// expired or undecodable.
func (c *Cache) GetImage(url string) image.Image {
	data, ok := c.Get(url)
	if !ok {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("Failed to decode cached artwork")
		return nil
	}
	return img
}

// Put stores data for url, writing through a temp file so readers never see
// a partial entry.
func (c *Cache) Put(url string, data []byte) error {
	dir := c.artworkDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}

	tmp, err := os.CreateTemp(dir, ".artwork-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create cache file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write cache file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close cache file")
	}
	if err := os.Rename(tmpPath, c.pathFor(url)); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to store cache file")
	}
	return nil
}

// CleanExpired removes expired entries, then the oldest entries until the
// directory fits within the size limit.
func (c *Cache) CleanExpired() error {
	dir := c.artworkDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read cache directory")
	}

	type file struct {
		path string
		size int64
		mod  time.Time
	}

	now := time.Now()
	var kept []file
	var total int64
	var removed, failed int

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if now.Sub(info.ModTime()) > c.expiry {
			if err := os.Remove(path); err != nil {
				failed++
			} else {
				removed++
			}
			continue
		}
		kept = append(kept, file{path: path, size: info.Size(), mod: info.ModTime()})
		total += info.Size()
	}

	if total > c.maxBytes {
		sort.Slice(kept, func(i, j int) bool { return kept[i].mod.Before(kept[j].mod) })
		for _, f := range kept {
			if total <= c.maxBytes {
				break
			}
			if err := os.Remove(f.path); err != nil {
				failed++
				continue
			}
			total -= f.size
			removed++
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}
	return nil
}
