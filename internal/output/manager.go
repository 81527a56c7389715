package output

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

type downloadView struct {
	Key         string
	Title       string
	Status      types.Status
	Progress    float64
	Downloaded  int64
	Error       string
	StartTime   time.Time
	LastUpdated time.Time
	Index       int
}

// Manager renders live download progress to the terminal. It implements the
// scheduler's notifier contract, so it only ever observes record snapshots.
type Manager struct {
	mutex       sync.RWMutex
	views       map[string]*downloadView
	notices     []string
	numLines    int
	viewCount   int
	displayTick time.Duration
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		views:       make(map[string]*downloadView),
		displayTick: 300 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}
}

func (m *Manager) Progress(rec types.DownloadRecord, downloadedBytes int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	view := m.viewFor(rec)
	view.Status = rec.Status
	view.Progress = rec.Progress
	view.Downloaded = downloadedBytes
	view.LastUpdated = time.Now()
}

func (m *Manager) StatusChanged(rec types.DownloadRecord) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	view := m.viewFor(rec)
	view.Status = rec.Status
	view.Progress = rec.Progress
	view.Error = rec.ErrorMessage
	view.LastUpdated = time.Now()
}

func (m *Manager) Notice(message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.notices = append(m.notices, message)
}

func (m *Manager) viewFor(rec types.DownloadRecord) *downloadView {
	key := rec.Key()
	if view, exists := m.views[key]; exists {
		return view
	}
	title := rec.EpisodeTitle
	if title == "" {
		title = key
	}
	m.viewCount++
	view := &downloadView{
		Key:       key,
		Title:     title,
		StartTime: time.Now(),
		Index:     m.viewCount,
	}
	m.views[key] = view
	return view
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.showSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) statusIndicator(status types.Status) string {
	switch status {
	case types.StatusCompleted:
		return successStyle.Render(StyleSymbols["pass"])
	case types.StatusFailed:
		return errorStyle.Render(StyleSymbols["fail"])
	case types.StatusPaused:
		return warningStyle.Render(StyleSymbols["warning"])
	case types.StatusDownloading:
		return infoStyle.Render(StyleSymbols["arrow"])
	default:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
}

func (m *Manager) sortedViews() []*downloadView {
	views := make([]*downloadView, 0, len(m.views))
	for _, view := range m.views {
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Index < views[j].Index })
	return views
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	availableLines := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	for _, view := range m.sortedViews() {
		if lineCount >= availableLines {
			break
		}
		indicator := m.statusIndicator(view.Status)
		elapsed := view.LastUpdated.Sub(view.StartTime).Round(time.Second)
		line := fmt.Sprintf("  %s %s %s", indicator, debugStyle.Render(elapsed.String()), view.Title)
		fmt.Println(line)
		lineCount++
		if view.Status == types.StatusDownloading && lineCount < availableLines {
			speed := utils.FormatSpeed(view.Downloaded, elapsed.Seconds())
			fmt.Printf("      %s%s %s %s\n", ProgressBar(view.Progress, 30),
				streamStyle.Render(utils.FormatBytes(uint64(max(view.Downloaded, 0)))),
				StyleSymbols["bullet"], streamStyle.Render(speed))
			lineCount++
		}
		if view.Error != "" && lineCount < availableLines {
			fmt.Printf("      %s\n", errorStyle.Render(view.Error))
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) showSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Println()
	var completed, failed, paused int
	for _, view := range m.views {
		switch view.Status {
		case types.StatusCompleted:
			completed++
		case types.StatusFailed:
			failed++
		case types.StatusPaused:
			paused++
		}
	}
	fmt.Println("  " + successStyle.Render(fmt.Sprintf("Completed %d of %d", completed, len(m.views))))
	if failed > 0 {
		fmt.Println("  " + errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, len(m.views))))
	}
	if paused > 0 {
		fmt.Println("  " + warningStyle.Render(fmt.Sprintf("Paused %d of %d", paused, len(m.views))))
	}
	for _, notice := range m.notices {
		fmt.Println("  " + streamStyle.Render(notice))
	}
	fmt.Println()
}

// RenderRecords prints a static table of the record set, for the list
// command.
func RenderRecords(records []types.DownloadRecord) {
	if len(records) == 0 {
		PrintInfo("No downloads tracked")
		return
	}
	PrintHeader(fmt.Sprintf("  %-40s %-12s %8s %10s", "KEY", "STATUS", "PROG", "SIZE"))
	for _, rec := range records {
		size := "-"
		if rec.FileSizeBytes > 0 {
			size = utils.FormatBytes(uint64(rec.FileSizeBytes))
		}
		line := fmt.Sprintf("  %-40s %-12s %7.1f%% %10s", rec.Key(), rec.Status, rec.Progress*100, size)
		switch rec.Status {
		case types.StatusCompleted:
			fmt.Println(successStyle.Render(line))
		case types.StatusFailed:
			fmt.Println(errorStyle.Render(line))
		case types.StatusPaused:
			fmt.Println(warningStyle.Render(line))
		default:
			fmt.Println(pendingStyle.Render(line))
		}
		if rec.ErrorMessage != "" {
			fmt.Println(streamStyle.Render("      " + rec.ErrorMessage))
		}
		for _, sub := range rec.Subtitles {
			fmt.Println(streamStyle.Render(fmt.Sprintf("      %s [%s] %s", StyleSymbols["bullet"], sub.Language, sub.Label)))
		}
	}
	fmt.Println(strings.Repeat(" ", 2) + debugStyle.Render(fmt.Sprintf("%d record(s)", len(records))))
}
