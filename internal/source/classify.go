// SPDX-License-Identifier: MIT
package source

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Extensions of containers and audio formats worth streaming.
var mediaExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mkv": true, ".mov": true,
	".avi": true, ".flv": true, ".ts": true, ".m3u8": true, ".mpd": true,
	".mp3": true, ".m4a": true, ".aac": true, ".flac": true, ".wav": true,
	".ogg": true, ".oga": true, ".opus": true, ".wma": true, ".aiff": true,
}

// Hosts whose pages are known to carry a playable video.
var mediaHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"twitch.tv",
	"bilibili.com",
	"dailymotion.com",
	"soundcloud.com",
}

// IsLikelyMediaURL reports whether raw plausibly points at audio or video.
// It looks at scheme, host and extension only; it never fetches.
func IsLikelyMediaURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if p, ok := localPath(raw); ok {
		return mediaExtensions[strings.ToLower(filepath.Ext(p))]
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "rtmp", "rtsp":
	default:
		return false
	}

	if mediaExtensions[strings.ToLower(path.Ext(u.Path))] {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range mediaHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// localPath returns the filesystem path for file:// URLs and bare paths.
func localPath(raw string) (string, bool) {
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		return u.Path, true
	}
	if strings.Contains(raw, "://") || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "about:") {
		return "", false
	}
	return raw, true
}
