package history

import (
	"slices"
	"strings"
	"testing"

	"roomlog/cmd/identity/ids"
)

func chunkSizes(h *ChunkedHistory) []int {
	out := make([]int, 0, h.ChunkCount())
	for i := range h.ChunkCount() {
		c := h.Chunk(i)
		out = append(out, c.Count())
	}
	return out
}

func TestChunkedHistory_AppendPartitions(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 52)

	if got, want := chunkSizes(h), []int{20, 20, 12}; !slices.Equal(got, want) {
		t.Fatalf("chunk sizes=%v want=%v", got, want)
	}
	if h.Total() != 52 {
		t.Fatalf("Total()=%d want=52", h.Total())
	}
	if h.Display().Active {
		t.Fatalf("Append established a display window")
	}

	// ordering and capacity hold after every append
	var prev ids.MessageID
	n := 0
	for m := range h.All() {
		if n > 0 && m.ID.Compare(prev) < 0 {
			t.Fatalf("All() out of order at %d", n)
		}
		prev = m.ID
		n++
	}
	if n != len(msgs) {
		t.Fatalf("All() yielded %d want=%d", n, len(msgs))
	}
}

func TestChunkedHistory_Backward(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 23)

	var got []ids.MessageID
	for m := range h.Backward() {
		got = append(got, m.ID)
		if len(got) == 4 {
			break
		}
	}
	want := []ids.MessageID{msgs[22].ID, msgs[21].ID, msgs[20].ID, msgs[19].ID}
	if !slices.Equal(got, want) {
		t.Fatalf("Backward()=%v want=%v", got, want)
	}
}

func TestNewFromBatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n     int
		sizes []int
	}{
		{n: 0, sizes: []int{}},
		{n: 1, sizes: []int{1}},
		{n: 20, sizes: []int{20}},
		{n: 21, sizes: []int{20, 1}},
		{n: 52, sizes: []int{20, 20, 12}},
		{n: 80, sizes: []int{20, 20, 20, 20}},
	}

	for _, tc := range cases {
		room := testRoom(t)
		msgs := sequentialMessages(t, room, tc.n)
		h := NewFromBatch(room, batchOf(msgs))

		if got := chunkSizes(h); !slices.Equal(got, tc.sizes) {
			t.Fatalf("NewFromBatch(%d) sizes=%v want=%v", tc.n, got, tc.sizes)
		}
		if h.Total() != tc.n {
			t.Fatalf("NewFromBatch(%d) Total()=%d", tc.n, h.Total())
		}
		got := slices.Collect(h.All())
		if !slices.EqualFunc(got, msgs, Message.Same) {
			t.Fatalf("NewFromBatch(%d) not ordered by id", tc.n)
		}
	}
}

func TestNewFromMessage(t *testing.T) {
	t.Parallel()

	m := sequentialMessages(t, testRoom(t), 1)[0]
	h := NewFromMessage(m)

	if h.Total() != 1 || h.ChunkCount() != 1 {
		t.Fatalf("Total()=%d ChunkCount()=%d want 1,1", h.Total(), h.ChunkCount())
	}
	if h.RoomID() != m.RoomID {
		t.Fatalf("RoomID()=%s want=%s", h.RoomID(), m.RoomID)
	}
	if got := h.Display(); got != (Markers{}) {
		t.Fatalf("Display()=%+v want inactive at 0", got)
	}
}

func TestChunkedHistory_ChunkIndex(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 52)

	cases := []struct {
		at   int
		want int
	}{
		{at: 0, want: 0},
		{at: 1, want: 0},
		{at: 19, want: 0},
		{at: 20, want: 1},
		{at: 39, want: 1},
		{at: 40, want: 2},
		{at: 49, want: 2},
		{at: 51, want: 2},
	}
	for _, tc := range cases {
		if got := h.ChunkIndex(msgs[tc.at].ID); got != tc.want {
			t.Fatalf("ChunkIndex(msgs[%d])=%d want=%d", tc.at, got, tc.want)
		}
	}

	// younger than everything stored
	younger := sequentialMessages(t, h.RoomID(), 1)[0]
	younger.ID = ids.MessageIDAt(fixtureEpoch.AddDate(1, 0, 0), [10]byte{})
	if got := h.ChunkIndex(younger.ID); got != 0 {
		t.Fatalf("ChunkIndex(unknown younger)=%d want=0", got)
	}
	if got := New(h.RoomID()).ChunkIndex(msgs[0].ID); got != 0 {
		t.Fatalf("ChunkIndex on empty=%d want=0", got)
	}
}

func TestChunkedHistory_FetchSince(t *testing.T) {
	t.Parallel()

	cases := []struct {
		since     int
		wantLen   int
		wantFirst string
		wantMark  Markers
	}{
		{since: 0, wantLen: 51, wantFirst: "no: 2", wantMark: Markers{Active: true, Oldest: 0, Youngest: 2}},
		{since: 1, wantLen: 50, wantFirst: "no: 3", wantMark: Markers{Active: true, Oldest: 0, Youngest: 2}},
		{since: 18, wantLen: 33, wantFirst: "no: 20", wantMark: Markers{Active: true, Oldest: 0, Youngest: 2}},
		{since: 19, wantLen: 32, wantFirst: "no: 21", wantMark: Markers{Active: true, Oldest: 1, Youngest: 2}},
		{since: 20, wantLen: 31, wantFirst: "no: 22", wantMark: Markers{Active: true, Oldest: 1, Youngest: 2}},
		{since: 49, wantLen: 2, wantFirst: "no: 51", wantMark: Markers{Active: true, Oldest: 2, Youngest: 2}},
	}

	for _, tc := range cases {
		h, msgs := appended(t, 52)

		got := h.FetchSince(&msgs[tc.since].ID, false)
		if len(got) != tc.wantLen {
			t.Fatalf("FetchSince(msgs[%d]) len=%d want=%d", tc.since, len(got), tc.wantLen)
		}
		if !strings.HasSuffix(got[0].Text(), tc.wantFirst) {
			t.Fatalf("FetchSince(msgs[%d]) first=%q want suffix %q", tc.since, got[0].Text(), tc.wantFirst)
		}
		if !slices.EqualFunc(got, msgs[tc.since+1:], Message.Same) {
			t.Fatalf("FetchSince(msgs[%d]) is not the tail after the id", tc.since)
		}
		if d := h.Display(); d != tc.wantMark {
			t.Fatalf("FetchSince(msgs[%d]) markers=%+v want=%+v", tc.since, d, tc.wantMark)
		}
	}
}

func TestChunkedHistory_FetchSinceNothingNewer(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 52)
	if err := h.SetDisplay(2, 2); err != nil {
		t.Fatalf("SetDisplay: %v", err)
	}

	if got := h.FetchSince(&msgs[51].ID, false); len(got) != 0 {
		t.Fatalf("FetchSince(youngest) len=%d want=0", len(got))
	}
	if d := h.Display(); d != (Markers{Active: true, Oldest: 2, Youngest: 2}) {
		t.Fatalf("markers moved: %+v", d)
	}

	unknown := ids.MessageIDAt(fixtureEpoch.Add(-time1ms), [10]byte{1})
	if got := h.FetchSince(&unknown, true); len(got) != 0 {
		t.Fatalf("FetchSince(unknown) len=%d want=0", len(got))
	}
	if d := h.Display(); d != (Markers{Active: true, Oldest: 2, Youngest: 2}) {
		t.Fatalf("markers moved on unknown id: %+v", d)
	}
}

func TestChunkedHistory_FetchSinceBootstrap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n        int
		wantLen  int
		wantMark Markers
	}{
		{n: 0, wantLen: 0, wantMark: Markers{}},
		{n: 7, wantLen: 7, wantMark: Markers{Active: true, Oldest: 0, Youngest: 0}},
		{n: 52, wantLen: 32, wantMark: Markers{Active: true, Oldest: 1, Youngest: 2}},
		{n: 56, wantLen: 16, wantMark: Markers{Active: true, Oldest: 2, Youngest: 2}},
		{n: 60, wantLen: 20, wantMark: Markers{Active: true, Oldest: 2, Youngest: 2}},
	}

	for _, tc := range cases {
		h, msgs := appended(t, tc.n)

		got := h.FetchSince(nil, true)
		if len(got) != tc.wantLen {
			t.Fatalf("FetchSince(nil) n=%d len=%d want=%d", tc.n, len(got), tc.wantLen)
		}
		if !slices.EqualFunc(got, msgs[tc.n-tc.wantLen:], Message.Same) {
			t.Fatalf("FetchSince(nil) n=%d did not return the most recent content", tc.n)
		}
		if d := h.Display(); d != tc.wantMark {
			t.Fatalf("FetchSince(nil) n=%d markers=%+v want=%+v", tc.n, d, tc.wantMark)
		}
	}
}

func TestChunkedHistory_FetchSinceWithLimit(t *testing.T) {
	t.Parallel()

	// sparse last chunk: the cap keeps the last two chunks
	h, msgs := appended(t, 52)
	got := h.FetchSince(&msgs[3].ID, true)
	if !slices.EqualFunc(got, msgs[20:], Message.Same) {
		t.Fatalf("limited fetch len=%d want=%d", len(got), len(msgs[20:]))
	}
	if d := h.Display(); d != (Markers{Active: true, Oldest: 1, Youngest: 2}) {
		t.Fatalf("markers=%+v want=(1,2)", d)
	}

	// resume point inside the first capped chunk keeps its offset
	h, msgs = appended(t, 52)
	got = h.FetchSince(&msgs[24].ID, true)
	if !slices.EqualFunc(got, msgs[25:], Message.Same) {
		t.Fatalf("limited fetch from chunk 1 len=%d want=%d", len(got), len(msgs[25:]))
	}

	// full last chunk: only the last chunk is materialized
	h, msgs = appended(t, 60)
	got = h.FetchSince(&msgs[3].ID, true)
	if !slices.EqualFunc(got, msgs[40:], Message.Same) {
		t.Fatalf("limited fetch len=%d want=%d", len(got), len(msgs[40:]))
	}
	if d := h.Display(); d != (Markers{Active: true, Oldest: 2, Youngest: 2}) {
		t.Fatalf("markers=%+v want=(2,2)", d)
	}

	// remaining content inside one chunk is not capped
	h, msgs = appended(t, 52)
	got = h.FetchSince(&msgs[45].ID, true)
	if !slices.EqualFunc(got, msgs[46:], Message.Same) {
		t.Fatalf("single chunk fetch len=%d want=%d", len(got), len(msgs[46:]))
	}
}

func TestChunkedHistory_LoadOlderChunk(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 52)

	wantSizes := []int{12, 20, 20, 0}
	wantOldest := []int{2, 1, 0, 0}
	for i, want := range wantSizes {
		got := h.LoadOlderChunk()
		if len(got) != want {
			t.Fatalf("LoadOlderChunk() call %d len=%d want=%d", i+1, len(got), want)
		}
		if d := h.Display(); !d.Active || d.Oldest != wantOldest[i] || d.Youngest != 2 {
			t.Fatalf("LoadOlderChunk() call %d markers=%+v", i+1, d)
		}
	}
	if h.HasOlder() {
		t.Fatalf("HasOlder()=true with the oldest chunk on screen")
	}

	first := h.Chunk(0)
	if first.First() != msgs[0].ID {
		t.Fatalf("Chunk(0).First()=%s want=%s", first.First(), msgs[0].ID)
	}
}

func TestChunkedHistory_LoadOlderChunkEmpty(t *testing.T) {
	t.Parallel()

	h := New(testRoom(t))
	if got := h.LoadOlderChunk(); len(got) != 0 {
		t.Fatalf("LoadOlderChunk() len=%d want=0", len(got))
	}
	if d := h.Display(); d != (Markers{}) {
		t.Fatalf("markers=%+v want inactive", d)
	}
	if h.HasOlder() {
		t.Fatalf("HasOlder()=true on empty history")
	}
}

func TestChunkedHistory_SetDisplay(t *testing.T) {
	t.Parallel()

	h, _ := appended(t, 52)

	for _, bad := range [][2]int{{-1, 0}, {2, 1}, {0, 3}} {
		if err := h.SetDisplay(bad[0], bad[1]); !IsInvariant(err) {
			t.Fatalf("SetDisplay(%d,%d) err=%v want invariant", bad[0], bad[1], err)
		}
	}
	if h.Display().Active {
		t.Fatalf("rejected SetDisplay changed markers")
	}

	if err := h.SetDisplay(1, 2); err != nil {
		t.Fatalf("SetDisplay(1,2): %v", err)
	}
	if got := len(h.Displayed()); got != 32 {
		t.Fatalf("Displayed() len=%d want=32", got)
	}
	if !h.HasOlder() {
		t.Fatalf("HasOlder()=false with chunk 0 hidden")
	}

	h.ResetDisplay()
	if d := h.Display(); d != (Markers{}) {
		t.Fatalf("ResetDisplay markers=%+v", d)
	}
	if h.Displayed() != nil {
		t.Fatalf("Displayed() after reset is not empty")
	}
}

func TestChunkedHistory_RestoreDisplay(t *testing.T) {
	t.Parallel()

	h, _ := appended(t, 52) // 3 chunks

	cases := []struct {
		name string
		in   Markers
		want Markers
	}{
		{name: "inactive", in: Markers{Oldest: 1, Youngest: 2}, want: Markers{}},
		{name: "in range", in: Markers{Active: true, Oldest: 1, Youngest: 2}, want: Markers{Active: true, Oldest: 1, Youngest: 2}},
		{name: "youngest past end", in: Markers{Active: true, Oldest: 1, Youngest: 7}, want: Markers{Active: true, Oldest: 1, Youngest: 2}},
		{name: "oldest past youngest", in: Markers{Active: true, Oldest: 5, Youngest: 1}, want: Markers{Active: true, Oldest: 1, Youngest: 1}},
		{name: "negative", in: Markers{Active: true, Oldest: -3, Youngest: -1}, want: Markers{Active: true, Oldest: 0, Youngest: 0}},
	}
	for _, tc := range cases {
		h.RestoreDisplay(tc.in)
		if got := h.Display(); got != tc.want {
			t.Fatalf("%s: RestoreDisplay(%+v) markers=%+v want=%+v", tc.name, tc.in, got, tc.want)
		}
	}

	// two readers sharing one history keep independent markers
	h.RestoreDisplay(Markers{})
	h.FetchSince(nil, true)
	a := h.Display()
	h.LoadOlderChunk()
	h.LoadOlderChunk()
	b := h.Display()

	h.RestoreDisplay(a)
	if got := h.LoadOlderChunk(); len(got) != ChunkCapacity {
		t.Fatalf("LoadOlderChunk() from restored markers len=%d want=%d", len(got), ChunkCapacity)
	}
	h.RestoreDisplay(b)
	if h.HasOlder() {
		t.Fatalf("HasOlder()=true for reader at chunk 0")
	}

	empty := New(testRoom(t))
	empty.RestoreDisplay(Markers{Active: true})
	if empty.Display().Active {
		t.Fatalf("RestoreDisplay on empty history left markers active")
	}
}

func TestChunkedHistory_LastMessage(t *testing.T) {
	t.Parallel()

	if _, ok := New(testRoom(t)).LastMessage(); ok {
		t.Fatalf("LastMessage() on empty history ok=true")
	}

	h, msgs := appended(t, 41)
	got, ok := h.LastMessage()
	if !ok || got.ID != msgs[40].ID {
		t.Fatalf("LastMessage()=%s,%v want=%s", got.ID, ok, msgs[40].ID)
	}
}

func TestChunkedHistory_LoadYoungest(t *testing.T) {
	t.Parallel()

	room := testRoom(t)
	msgs := sequentialMessages(t, room, 41)
	h := NewFromBatch(room, batchOf(msgs[:40]))
	h.FetchSince(nil, true)

	h.Append(msgs[40])
	if d := h.Display(); d.Youngest != 1 {
		t.Fatalf("Append moved youngest marker to %d", d.Youngest)
	}

	got, ok := h.LoadYoungest()
	if !ok || got.ID != msgs[40].ID {
		t.Fatalf("LoadYoungest()=%s,%v want=%s", got.ID, ok, msgs[40].ID)
	}
	if d := h.Display(); d.Youngest != 2 {
		t.Fatalf("LoadYoungest youngest marker=%d want=2", d.Youngest)
	}
}

func TestChunkedHistory_FindRoundTrip(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 52)
	for i, m := range msgs {
		got, ok := h.Find(m.ID)
		if !ok || !got.Same(m) {
			t.Fatalf("Find(msgs[%d]) ok=%v", i, ok)
		}
	}

	unknown := ids.MessageIDAt(fixtureEpoch, [10]byte{9, 9, 9})
	if _, ok := h.Find(unknown); ok {
		t.Fatalf("Find(unknown) ok=true")
	}
}

func TestChunkedHistory_UpdateInPlace(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 80)
	old := msgs[15]
	edited := old.Edited("Really important message no: 16 (edited)")

	if !h.UpdateInPlace(edited) {
		t.Fatalf("UpdateInPlace returned false")
	}
	got, ok := h.Find(old.ID)
	if !ok || got.Text() != edited.Text() {
		t.Fatalf("Find after update=%q want=%q", got.Text(), edited.Text())
	}
	if got.Body.Edits != 1 {
		t.Fatalf("Edits=%d want=1", got.Body.Edits)
	}
	// the previous record is untouched
	if old.Text() != "Really important message no: 16" {
		t.Fatalf("shared body mutated: %q", old.Text())
	}
	if h.Total() != 80 {
		t.Fatalf("Total()=%d want=80", h.Total())
	}

	stranger := edited
	stranger.ID = ids.MessageIDAt(fixtureEpoch, [10]byte{7})
	if h.UpdateInPlace(stranger) {
		t.Fatalf("UpdateInPlace(unknown)=true")
	}
}

func TestChunkedHistory_Window(t *testing.T) {
	t.Parallel()

	h, msgs := appended(t, 52)
	if w := h.Window(); w.Total() != 0 {
		t.Fatalf("Window() without markers Total()=%d", w.Total())
	}

	h.FetchSince(nil, true)
	w := h.Window()
	if w.Total() != 32 {
		t.Fatalf("Window().Total()=%d want=32", w.Total())
	}
	vis := w.Visibility()
	if !vis.Hidden || vis.Index != 12 || vis.ID != msgs[32].ID {
		t.Fatalf("Window().Visibility()=%+v want hidden at 12", vis)
	}
	if got := w.VisibleMessages(); !slices.EqualFunc(got, msgs[32:], Message.Same) {
		t.Fatalf("visible window is not the last %d messages", VisibleTail)
	}

	// the derived view is detached from storage
	w.Remove(msgs[51].ID)
	if h.Total() != 52 {
		t.Fatalf("window removal reached the history")
	}
}
