package history

import (
	"slices"
	"testing"

	"roomlog/cmd/identity/ids"
)

func TestDisplayWindow_HidePolicy(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 40)
	w := NewWindow()

	for _, m := range msgs[:19] {
		w.AppendNew(m)
	}
	if w.CheckNeedForReload() {
		t.Fatalf("CheckNeedForReload() at 19 = true")
	}
	if w.Visibility().Hidden {
		t.Fatalf("hidden at 19 messages")
	}

	w.AppendNew(msgs[19])
	if !w.CheckNeedForReload() {
		t.Fatalf("CheckNeedForReload() at 20 = false")
	}
	if got := w.Visibility(); got != (Visibility{Hidden: true, Index: 0, ID: msgs[0].ID}) {
		t.Fatalf("Visibility() at 20 = %+v", got)
	}
	if w.CheckNeedForReload() {
		t.Fatalf("second CheckNeedForReload() without mutation = true")
	}

	// drift below the threshold keeps the hide point
	for i, m := range msgs[20:24] {
		w.AppendNew(m)
		if w.CheckNeedForReload() {
			t.Fatalf("CheckNeedForReload() after %d more = true", i+1)
		}
		if got := w.Visibility(); got.Index != 0 || got.ID != msgs[0].ID {
			t.Fatalf("hide point moved to %+v", got)
		}
	}

	w.AppendNew(msgs[24])
	if !w.CheckNeedForReload() {
		t.Fatalf("CheckNeedForReload() at drift 5 = false")
	}
	if got := w.Visibility(); got != (Visibility{Hidden: true, Index: 5, ID: msgs[5].ID}) {
		t.Fatalf("Visibility() at 25 = %+v", got)
	}
	if start, end := w.VisibleRange(); start != w.Total()-VisibleTail || end != w.Total() {
		t.Fatalf("VisibleRange()=(%d,%d) want=(%d,%d)", start, end, w.Total()-VisibleTail, w.Total())
	}
}

func TestDisplayWindow_VisibleIteration(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 30)
	w := NewWindow()
	w.AppendMany(msgs)

	if got := slices.Collect(w.Visible()); len(got) != 30 {
		t.Fatalf("Visible() before reload len=%d want=30", len(got))
	}

	w.CheckNeedForReload()
	got := slices.Collect(w.Visible())
	if !slices.EqualFunc(got, msgs[10:], Message.Same) {
		t.Fatalf("Visible() does not honor the hidden prefix")
	}
	if len(w.Messages()) != 30 {
		t.Fatalf("Messages() dropped hidden messages")
	}

	n := 0
	for range w.Visible() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("Visible() ignored early stop")
	}
}

func TestDisplayWindow_Markers(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 3)
	w := NewWindow()
	if _, ok := w.Start(); ok {
		t.Fatalf("Start() on empty window ok=true")
	}

	w.AppendNew(msgs[0])
	start, _ := w.Start()
	last, _ := w.Last()
	if start.ID != msgs[0].ID || last.ID != msgs[0].ID {
		t.Fatalf("markers after first append = %+v %+v", start, last)
	}

	w.AppendMany(msgs[1:])
	last, _ = w.Last()
	if last != (Position{Index: 2, ID: msgs[2].ID}) {
		t.Fatalf("Last()=%+v", last)
	}
}

func TestDisplayWindow_Edit(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 5)

	for _, at := range []int{0, 2, 4} {
		w := NewWindow()
		w.AppendMany(msgs)

		edited := msgs[at].Edited("changed")
		if !w.Edit(edited) {
			t.Fatalf("Edit(msgs[%d])=false", at)
		}
		got, ok := w.Find(msgs[at].ID)
		if !ok || got.Text() != "changed" {
			t.Fatalf("Find(msgs[%d]) after edit=%q", at, got.Text())
		}
		if w.Total() != 5 {
			t.Fatalf("Edit changed Total() to %d", w.Total())
		}
	}

	w := NewWindow()
	if w.Edit(msgs[0]) {
		t.Fatalf("Edit on empty window = true")
	}
	w.AppendNew(msgs[0])
	if w.Edit(msgs[1]) {
		t.Fatalf("Edit(unknown) = true")
	}
}

func TestDisplayWindow_Remove(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 4)

	t.Run("sole", func(t *testing.T) {
		w := NewWindow()
		w.AppendNew(msgs[0])

		got, ok := w.Remove(msgs[0].ID)
		if !ok || got.ID != msgs[0].ID {
			t.Fatalf("Remove()=%s,%v", got.ID, ok)
		}
		if w.Total() != 0 {
			t.Fatalf("Total()=%d want=0", w.Total())
		}
		if _, ok := w.Start(); ok {
			t.Fatalf("Start() still set")
		}
		if _, ok := w.Last(); ok {
			t.Fatalf("Last() still set")
		}
	})

	t.Run("back", func(t *testing.T) {
		w := NewWindow()
		w.AppendMany(msgs)

		if _, ok := w.Remove(msgs[3].ID); !ok {
			t.Fatalf("Remove(back) ok=false")
		}
		last, _ := w.Last()
		if last != (Position{Index: 2, ID: msgs[2].ID}) {
			t.Fatalf("Last()=%+v want msgs[2]", last)
		}
	})

	t.Run("front", func(t *testing.T) {
		w := NewWindow()
		w.AppendMany(msgs)

		if _, ok := w.Remove(msgs[0].ID); !ok {
			t.Fatalf("Remove(front) ok=false")
		}
		start, _ := w.Start()
		if start.ID != msgs[1].ID {
			t.Fatalf("Start()=%s want=%s", start.ID, msgs[1].ID)
		}
	})

	t.Run("middle", func(t *testing.T) {
		w := NewWindow()
		w.AppendMany(msgs)

		if _, ok := w.Remove(msgs[2].ID); !ok {
			t.Fatalf("Remove(middle) ok=false")
		}
		want := []Message{msgs[0], msgs[1], msgs[3]}
		if !slices.EqualFunc(w.Messages(), want, Message.Same) {
			t.Fatalf("Messages() after middle removal")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		w := NewWindow()
		w.AppendMany(msgs[:2])

		_, ok := w.Remove(ids.MessageIDAt(fixtureEpoch, [10]byte{3}))
		if ok {
			t.Fatalf("Remove(unknown) ok=true")
		}
		if w.Total() != 2 {
			t.Fatalf("Total()=%d want=2", w.Total())
		}
	})
}

func TestDisplayWindow_RemoveKeepsHidePoint(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 30)
	w := NewWindow()
	w.AppendMany(msgs)
	w.CheckNeedForReload() // hidden at 10

	if _, ok := w.Remove(msgs[3].ID); !ok {
		t.Fatalf("Remove ok=false")
	}
	if got := w.Visibility(); got.Index != 9 || got.ID != msgs[10].ID {
		t.Fatalf("hide point after hidden removal = %+v want index 9 id msgs[10]", got)
	}

	if _, ok := w.Remove(msgs[10].ID); !ok {
		t.Fatalf("Remove ok=false")
	}
	if got := w.Visibility(); got.Index != 9 || got.ID != msgs[11].ID {
		t.Fatalf("hide point after removing it = %+v want index 9 id msgs[11]", got)
	}

	if _, ok := w.Remove(msgs[29].ID); !ok {
		t.Fatalf("Remove ok=false")
	}
	if got := w.Visibility(); got.Index != 9 {
		t.Fatalf("visible removal moved the hide point to %d", got.Index)
	}
}

func TestDisplayWindow_AppendOlderChunk(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 60)
	w := NewWindow()
	w.AppendMany(msgs[40:])
	if !w.CheckNeedForReload() {
		t.Fatalf("CheckNeedForReload() at 20 = false")
	}

	w.AppendOlderChunk(msgs[20:40])
	start, _ := w.Start()
	if start.ID != msgs[20].ID {
		t.Fatalf("Start()=%s want=%s", start.ID, msgs[20].ID)
	}
	if w.Total() != 40 {
		t.Fatalf("Total()=%d want=40", w.Total())
	}
	if got := w.Visibility(); got != (Visibility{Hidden: true, Index: 20, ID: msgs[40].ID}) {
		t.Fatalf("hide point not anchored: %+v", got)
	}
	if w.CheckNeedForReload() {
		t.Fatalf("prepending older content triggered a reload")
	}
	if !slices.EqualFunc(w.Messages(), msgs[20:], Message.Same) {
		t.Fatalf("AppendOlderChunk broke ordering")
	}

	w.Reveal()
	if start, end := w.VisibleRange(); start != 0 || end != 40 {
		t.Fatalf("VisibleRange() after Reveal=(%d,%d)", start, end)
	}

	w.AppendOlderChunk(nil)
	if w.Total() != 40 {
		t.Fatalf("AppendOlderChunk(nil) changed Total()")
	}
}

func TestDisplayWindow_ShrinkBelowTail(t *testing.T) {
	t.Parallel()

	msgs := sequentialMessages(t, testRoom(t), 21)
	w := NewWindow()
	w.AppendMany(msgs)
	w.CheckNeedForReload()

	w.Remove(msgs[20].ID)
	w.Remove(msgs[19].ID)
	if w.CheckNeedForReload() {
		t.Fatalf("CheckNeedForReload() below the tail = true")
	}
	if w.Visibility().Hidden {
		t.Fatalf("still hidden with %d messages", w.Total())
	}
}
