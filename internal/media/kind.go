package media

import (
	"path/filepath"
	"strings"
)

// Kind is the content bucket of a relayed attachment.
type Kind int

const (
	KindFile Kind = iota
	KindImage
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "file"
	}
}

// Ext is the extension used for downloads of this kind. Generic files keep their own.
func (k Kind) Ext() string {
	switch k {
	case KindImage:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	case KindAudio:
		return ".m4a"
	default:
		return ""
	}
}

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	videoExts = map[string]bool{".mp4": true, ".webm": true, ".ts": true}
	audioExts = map[string]bool{
		".m4a": true, ".wav": true, ".mp3": true, ".aac": true,
		".flac": true, ".ogg": true, ".opus": true,
	}
)

// Classify buckets a file name by extension. Unknown extensions are KindFile.
func Classify(filename string) Kind {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExts[ext]:
		return KindImage
	case videoExts[ext]:
		return KindVideo
	case audioExts[ext]:
		return KindAudio
	default:
		return KindFile
	}
}
