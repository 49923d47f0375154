package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"imgpress/internal/events"
	"imgpress/internal/processor"
)

func TestModelTracksProgress(t *testing.T) {
	ch := make(chan events.Event)
	m := NewModel(ch, nil)

	for _, e := range []events.Event{
		events.Status("Preparing files..."),
		events.ProgressOf(4, 0, "Starting..."),
		events.FileStarted("a.png"),
		events.ProgressOf(4, 2, "b.jpg"),
		events.ProgressOf(4, 1, "a.png"),
	} {
		next, cmd := m.Update(eventMsg(e))
		if cmd == nil {
			t.Fatal("model stopped listening")
		}
		m = next.(Model)
	}

	if m.total != 4 || m.done != 2 {
		t.Fatalf("total/done = %d/%d", m.total, m.done)
	}
	if m.Ratio() != 0.5 {
		t.Fatalf("ratio = %v", m.Ratio())
	}
	if view := m.View(); !strings.Contains(view, "Files: 2/4") {
		t.Fatalf("view missing counts:\n%s", view)
	}
}

func TestCancelKeyInvokesCallbackOnce(t *testing.T) {
	calls := 0
	m := NewModel(make(chan events.Event), func() { calls++ })

	for range 2 {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		m = next.(Model)
	}
	if calls != 1 {
		t.Fatalf("cancel called %d times", calls)
	}
	if !m.canceling || !strings.Contains(m.View(), "Canceling") {
		t.Fatal("view does not show cancellation")
	}

	// Progress keeps flowing while the run drains.
	next, _ := m.Update(eventMsg(events.ProgressOf(10, 3, "x.png")))
	m = next.(Model)
	if m.done != 3 || !m.canceling {
		t.Fatalf("unexpected state after cancel: %+v", m)
	}
}

func TestClosedChannelQuits(t *testing.T) {
	ch := make(chan events.Event)
	close(ch)
	m := NewModel(ch, nil)

	msg := m.Init()()
	if _, ok := msg.(doneMsg); !ok {
		t.Fatalf("expected doneMsg, got %T", msg)
	}
	next, cmd := m.Update(msg)
	if cmd == nil || next.(Model).View() != "" {
		t.Fatal("model should quit with an empty view")
	}
}

func TestRatioClamped(t *testing.T) {
	m := Model{total: 2, done: 5}
	if m.Ratio() != 1 {
		t.Fatalf("ratio = %v", m.Ratio())
	}
	if (Model{}).Ratio() != 0 {
		t.Fatal("empty ratio should be 0")
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.50 KB",
		5 * 1024 * 1024: "5.00 MB",
		3 << 30:         "3.00 GB",
	}
	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestResultRows(t *testing.T) {
	res := processor.FinalResult{
		TotalFiles:     10,
		ProcessedFiles: 4,
		Canceled:       true,
		TotalOriginal:  4096,
		TotalOptimized: 3072,
		TotalSaved:     1024,
		TotalWebP:      2048,
		Duration:       1234567 * time.Microsecond,
	}
	rows := ResultRows(res)

	values := map[string]string{}
	for _, r := range rows {
		values[r.Label] = r.Value
	}
	if values["Files processed"] != "4/10 (canceled)" {
		t.Fatalf("files row = %q", values["Files processed"])
	}
	if values["Space saved"] != "1.00 KB (25.0%)" {
		t.Fatalf("saved row = %q", values["Space saved"])
	}
	if values["WebP output"] != "2.00 KB" {
		t.Fatalf("webp row = %q", values["WebP output"])
	}
	if _, ok := values["AVIF output"]; ok {
		t.Fatal("avif row should be omitted when nothing was written")
	}
	if values["Total time"] != "1.235s" {
		t.Fatalf("total time = %q", values["Total time"])
	}

	out := RenderSummary(rows)
	for _, r := range rows {
		if !strings.Contains(out, r.Label) {
			t.Fatalf("summary missing %q", r.Label)
		}
	}
}
