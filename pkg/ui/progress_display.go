package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay provides a clean, minimal byte-level progress display for
// checkpoint downloads
type ProgressDisplay struct {
	mu              sync.Mutex
	variant         string
	totalBytes      int64
	bytesDownloaded int64
	currentFile     string
	filesCompleted  int
	totalFiles      int
	startTime       time.Time
	lastUpdate      time.Time
	errors          int
	isDebug         bool
}

// NewProgressDisplay creates a new progress display for a variant download
func NewProgressDisplay(variant string, totalFiles int, totalBytes int64, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		variant:    variant,
		totalFiles: totalFiles,
		totalBytes: totalBytes,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		isDebug:    debug,
	}
}

// StartFile marks the start of a new file download
func (p *ProgressDisplay) StartFile(filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentFile = filename
	p.lastUpdate = time.Now()

	if p.isDebug {
		fmt.Printf("\n%s Downloading %s...\n", Magenta("→"), filename)
	}
}

// UpdateBytes updates the byte counter for the in-flight file
func (p *ProgressDisplay) UpdateBytes(done int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bytesDownloaded = done

	// repainting on every chunk floods the terminal
	if !p.isDebug && time.Since(p.lastUpdate) > 100*time.Millisecond {
		p.lastUpdate = time.Now()
		p.printProgress()
	}
}

// CompleteFile marks a file download as complete
func (p *ProgressDisplay) CompleteFile(filename string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesCompleted++
	p.currentFile = ""
	p.lastUpdate = time.Now()

	if p.isDebug {
		fmt.Printf("%s %s • %s\n", Green("✓"), filename, p.formatBytes(size))
	} else {
		p.printProgress()
	}
}

// FailFile marks a file download as failed
func (p *ProgressDisplay) FailFile(filename string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errors++
	p.lastUpdate = time.Now()

	if p.isDebug {
		fmt.Printf("\n%s Failed: %s - %v\n", Red("✗"), filename, err)
	} else {
		p.printProgress()
	}
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.bytesDownloaded) / elapsed.Seconds()

	barWidth := 20
	var filled int
	if p.totalBytes > 0 {
		filled = int(float64(p.bytesDownloaded) / float64(p.totalBytes) * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("\r%s [%s] %s/%s • %s/s • %s",
		Cyan(p.variant),
		bar,
		p.formatBytes(p.bytesDownloaded),
		p.formatBytes(p.totalBytes),
		p.formatBytes(int64(rate)),
		p.calculateETA(),
	)

	if p.currentFile != "" {
		line += fmt.Sprintf(" • %s", p.currentFile)
	}

	if p.errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.errors)))
	}

	fmt.Printf("\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete marks the entire download as complete
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)

	fmt.Printf("\n\n%s Downloaded %d file(s) for %s\n",
		Green("✓"),
		p.filesCompleted,
		p.variant,
	)

	fmt.Printf("  %s %s in %s (%s/s)\n",
		Dim("•"),
		p.formatBytes(p.bytesDownloaded),
		p.formatDuration(elapsed),
		p.formatBytes(int64(float64(p.bytesDownloaded)/elapsed.Seconds())),
	)

	if p.errors > 0 {
		fmt.Printf("  %s %d downloads failed\n", Dim("•"), p.errors)
	}
}

// calculateETA estimates time remaining
func (p *ProgressDisplay) calculateETA() string {
	if p.bytesDownloaded == 0 || p.totalBytes <= 0 {
		return "calculating..."
	}

	remaining := p.totalBytes - p.bytesDownloaded
	elapsed := time.Since(p.startTime)
	rate := float64(p.bytesDownloaded) / elapsed.Seconds()

	if rate == 0 {
		return "calculating..."
	}

	eta := time.Duration(float64(remaining)/rate) * time.Second
	return p.formatDuration(eta)
}

// formatDuration formats a duration in a human-readable way
func (p *ProgressDisplay) formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	} else {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatBytes formats bytes in a human-readable way
func (p *ProgressDisplay) formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// RateLimitWarning shows a rate limit warning
func (p *ProgressDisplay) RateLimitWarning(waitTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Printf("\n%s Rate limit reached. Waiting %s...\n",
		Yellow("⚠"),
		p.formatDuration(waitTime),
	)
}

// SetDownloadedBytes sets the initial byte count (for resume)
func (p *ProgressDisplay) SetDownloadedBytes(bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bytesDownloaded = bytes
}
