package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/domain"
)

// FormatFileInfo renders the probe result shown before confirmation.
func FormatFileInfo(f *domain.RemoteFile) string {
	return fmt.Sprintf("📤 File Info:\nName: %s\nSize: %s", f.Name, f.HumanSize())
}

// FormatProgress renders a progress message.
func FormatProgress(p Progress) string {
	var sb strings.Builder
	if p.Total > 0 {
		pct := p.Percent()
		sb.WriteString(fmt.Sprintf("Downloading: %.2f%%\n%s\n", pct, ProgressBar(pct, config.ProgressBarWidth)))
		sb.WriteString(fmt.Sprintf("%s of %s\n", humanize.IBytes(uint64(p.Downloaded)), humanize.IBytes(uint64(p.Total))))
	} else {
		sb.WriteString(fmt.Sprintf("Downloading...\n%s of Unknown\n", humanize.IBytes(uint64(p.Downloaded))))
	}
	sb.WriteString(fmt.Sprintf("Speed: %s/sec\n", humanize.IBytes(uint64(p.Speed))))
	if p.Total > 0 {
		sb.WriteString(fmt.Sprintf("Time left: %s", FormatTimeLeft(p.ETA)))
	} else {
		sb.WriteString(fmt.Sprintf("Elapsed: %s", FormatElapsed(p.Elapsed)))
	}
	return sb.String()
}

// ProgressBar draws pct (0..100) as width cells.
func ProgressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("▪", filled) + strings.Repeat("▫", width-filled) + "]"
}

// FormatTimeLeft shows seconds under a minute, fractional minutes above.
func FormatTimeLeft(d time.Duration) string {
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.0f sec", secs)
	}
	return fmt.Sprintf("%.1f min", secs/60)
}

// FormatElapsed renders whole minutes and seconds.
func FormatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d min %d sec", total/60, total%60)
}
