// Package filecache is the local store for downloaded upstream assets.
// Files are keyed by their upstream URL path with slashes folded to dashes,
// split into image and video directories under the data dir. Each store
// schedules an eviction sweep that drops the oldest files once a media
// type's directory exceeds its size cap.
package filecache

import (
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/monitor"
)

// Media types with separate cache directories and eviction budgets.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

const defaultMime = "image/jpeg"

// MimeFor returns the content type for a cached file name.
func MimeFor(name string) string {
	if mime, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return defaultMime
}

// evictMu serializes eviction per media type; a sweep already in flight
// absorbs the follow-up triggers.
var evictMu sync.Map

// Key folds an upstream asset path into a flat cache file name.
func Key(path string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "-")
}

// Dir returns the cache directory of a media type, creating it on first use.
func Dir(mediaType string) (string, error) {
	dir := filepath.Join(config.DataDir, "tmp", mediaType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create cache dir %s", dir)
	}
	return dir, nil
}

// PathFor resolves a cached file name inside the media type's directory.
// Names that escape the directory are rejected.
func PathFor(mediaType, name string) (string, error) {
	dir, err := Dir(mediaType)
	if err != nil {
		return "", err
	}
	name = filepath.Base(Key(name))
	if name == "" || name == "." || name == ".." {
		return "", errors.New("invalid cache file name")
	}
	return filepath.Join(dir, name), nil
}

// Lookup returns the local path of a cached asset, or "" when absent.
func Lookup(mediaType, path string) string {
	local, err := PathFor(mediaType, Key(path))
	if err != nil {
		return ""
	}
	if _, err := os.Stat(local); err != nil {
		return ""
	}
	return local
}

// Store streams body into the cache atomically and schedules an eviction
// sweep. Returns the local path of the stored file.
func Store(mediaType, path string, body io.Reader) (string, error) {
	local, err := PathFor(mediaType, Key(path))
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return "", errors.Wrap(err, "create cache temp file")
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrap(err, "write cache file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "close cache file")
	}
	if err := os.Rename(tmpName, local); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "publish cache file")
	}

	ScheduleEvict(mediaType)
	return local, nil
}

// ScheduleEvict runs an eviction sweep in the background unless one is
// already running for the media type.
func ScheduleEvict(mediaType string) {
	muAny, _ := evictMu.LoadOrStore(mediaType, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	if !mu.TryLock() {
		return
	}
	go func() {
		defer mu.Unlock()
		if err := Evict(mediaType); err != nil {
			logger.Logger.Error("cache eviction failed",
				zap.String("media_type", mediaType), zap.Error(err))
		}
	}()
}

// Evict removes the oldest files of a media type until the directory is
// back under its configured size cap.
func Evict(mediaType string) error {
	dir, err := Dir(mediaType)
	if err != nil {
		return err
	}
	err = evictDir(dir, int64(config.CacheLimitMB)*1024*1024)
	_, size := Stats(mediaType)
	monitor.SetCacheBytes(mediaType, size)
	return err
}

func evictDir(dir string, limit int64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read cache dir")
	}

	type fileInfo struct {
		path  string
		size  int64
		mtime int64
	}
	var files []fileInfo
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:  filepath.Join(dir, entry.Name()),
			size:  info.Size(),
			mtime: info.ModTime().UnixNano(),
		})
		total += info.Size()
	}

	if total <= limit {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime < files[j].mtime })

	before := total
	for _, f := range files {
		if total <= limit {
			break
		}
		if err := os.Remove(f.path); err != nil {
			logger.Logger.Warn("evict cache file failed",
				zap.String("path", f.path), zap.Error(err))
			continue
		}
		total -= f.size
	}

	logger.Logger.Info("cache evicted",
		zap.String("dir", dir),
		zap.Int64("before_bytes", before),
		zap.Int64("after_bytes", total))
	return nil
}

// ReadBase64AndDrop encodes a cached file as a data URI and deletes it.
// Inline responses use this so one-shot downloads do not pile up on disk.
func ReadBase64AndDrop(localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", errors.Wrap(err, "read cached file")
	}
	if err := os.Remove(localPath); err != nil {
		logger.Logger.Warn("drop cached file failed",
			zap.String("path", localPath), zap.Error(err))
	}
	return "data:" + MimeFor(localPath) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Entry describes one cached file for the admin listing.
type Entry struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	MtimeMs   int64  `json:"mtime_ms"`
	ViewURL   string `json:"view_url"`
}

// List returns a page of cached files, newest first.
func List(mediaType string, page, pageSize int) (total int, items []Entry, err error) {
	dir, err := Dir(mediaType)
	if err != nil {
		return 0, nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read cache dir")
	}

	all := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		all = append(all, Entry{
			Name:      entry.Name(),
			SizeBytes: info.Size(),
			MtimeMs:   info.ModTime().UnixMilli(),
			ViewURL:   "/v1/files/" + mediaType + "/" + entry.Name(),
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].MtimeMs > all[j].MtimeMs })

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1000
	}
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := min(start+pageSize, len(all))
	return len(all), all[start:end], nil
}

// Stats reports file count and total size for one media type.
func Stats(mediaType string) (count int, sizeBytes int64) {
	dir, err := Dir(mediaType)
	if err != nil {
		return 0, 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			count++
			sizeBytes += info.Size()
		}
	}
	return count, sizeBytes
}

// Remove deletes one cached file by name.
func Remove(mediaType, name string) bool {
	local, err := PathFor(mediaType, name)
	if err != nil {
		return false
	}
	return os.Remove(local) == nil
}

// Clear wipes every cached file of a media type and reports what was freed.
func Clear(mediaType string) (count int, freedBytes int64) {
	dir, err := Dir(mediaType)
	if err != nil {
		return 0, 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if os.Remove(filepath.Join(dir, entry.Name())) == nil {
			count++
			freedBytes += info.Size()
		}
	}
	return count, freedBytes
}
