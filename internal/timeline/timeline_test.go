package timeline

import (
	"testing"
	"time"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

func msg(id string, at time.Time, status models.MessageStatus) models.Message {
	return models.Message{
		ID:          id,
		SenderID:    "alice",
		ReceiverID:  "bob",
		Content:     "msg " + id,
		MessageType: models.TextMessage,
		Status:      status,
		CreatedAt:   at,
		Version:     1,
	}
}

var (
	may14 = time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	may10 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	may02 = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	apr20 = time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)
	jun01 = time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
)

// checkInvariant verifies no two groups share a monthYear and no id repeats.
func checkInvariant(t *testing.T, tl *Timeline) {
	t.Helper()
	seenGroups := make(map[string]bool)
	seenIDs := make(map[string]bool)
	for _, g := range tl.Groups() {
		if seenGroups[g.MonthYear] {
			t.Fatalf("duplicate group %q in timeline", g.MonthYear)
		}
		seenGroups[g.MonthYear] = true
		for _, m := range g.Messages {
			if seenIDs[m.ID] {
				t.Fatalf("duplicate message %q in timeline", m.ID)
			}
			seenIDs[m.ID] = true
		}
	}
}

func TestAppendOlderMergesIntoExistingGroup(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m1", may14, models.StatusSent), msg("m2", may10, models.StatusSent)}},
	})

	tl.AppendOlder([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m0", may02, models.StatusSent)}},
	})

	groups := tl.Groups()
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	wantOrder := []string{"m1", "m2", "m0"}
	for i, want := range wantOrder {
		if groups[0].Messages[i].ID != want {
			t.Errorf("message[%d] = %q, want %q", i, groups[0].Messages[i].ID, want)
		}
	}
	checkInvariant(t, tl)
}

func TestAppendOlderIdempotentUnderRetry(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m1", may14, models.StatusSent)}},
	})

	page := []models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m0", may02, models.StatusSent)}},
		{MonthYear: "2024-04", Messages: []models.Message{msg("a1", apr20, models.StatusSent)}},
	}
	tl.AppendOlder(page)
	tl.AppendOlder(page) // retry of the same page

	if tl.Len() != 3 {
		t.Errorf("Len = %d after duplicate merge, want 3", tl.Len())
	}
	groups := tl.Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[1].MonthYear != "2024-04" {
		t.Errorf("older group appended at position %q, want end of timeline", groups[1].MonthYear)
	}
	checkInvariant(t, tl)
}

func TestUpsertStatusChangeKeepsPosition(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{
			msg("m2", may14, models.StatusSent),
			msg("m1", may10, models.StatusDelivered),
		}},
	})

	updated := msg("m1", may10, models.StatusRead)
	updated.Version = 2
	if replaced := tl.Upsert(updated); !replaced {
		t.Error("Upsert of known id reported insert")
	}

	groups := tl.Groups()
	if groups[0].Messages[1].ID != "m1" {
		t.Errorf("m1 moved to position %q", groups[0].Messages[1].ID)
	}
	if groups[0].Messages[1].Status != models.StatusRead {
		t.Errorf("m1 status = %q, want read", groups[0].Messages[1].Status)
	}
	checkInvariant(t, tl)
}

func TestUpsertIgnoresStaleVersion(t *testing.T) {
	tl := New()
	current := msg("m1", may10, models.StatusRead)
	current.Version = 3
	tl.Replace([]models.MessageGroup{{MonthYear: "2024-05", Messages: []models.Message{current}}})

	stale := msg("m1", may10, models.StatusSent)
	stale.Version = 1
	tl.Upsert(stale)

	got, _ := tl.Get("m1")
	if got.Status != models.StatusRead || got.Version != 3 {
		t.Errorf("stale upsert overwrote message: %+v", got)
	}
}

func TestUpsertNewMessagePrependsGroup(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m1", may14, models.StatusSent)}},
	})

	// Same month: prepend within group.
	tl.Upsert(msg("m2", may14.Add(time.Hour), models.StatusSent))
	groups := tl.Groups()
	if groups[0].Messages[0].ID != "m2" {
		t.Errorf("newest message is %q, want m2 at head of group", groups[0].Messages[0].ID)
	}

	// New month: new group at the head of the timeline.
	tl.Upsert(msg("m3", jun01, models.StatusSent))
	groups = tl.Groups()
	if groups[0].MonthYear != "2024-06" {
		t.Errorf("head group = %q, want 2024-06", groups[0].MonthYear)
	}
	if groups[0].Messages[0].ID != "m3" {
		t.Errorf("head message = %q, want m3", groups[0].Messages[0].ID)
	}
	checkInvariant(t, tl)
}

func TestReplaceIDKeepsPosition(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{
			msg("m2", may14, models.StatusSent),
			msg("local-1", may10, models.StatusSending),
		}},
	})

	echo := msg("srv-9", may10, models.StatusSent)
	if !tl.ReplaceID("local-1", echo) {
		t.Fatal("ReplaceID did not find local message")
	}

	if _, ok := tl.Get("local-1"); ok {
		t.Error("local id still resolvable after echo replacement")
	}
	got, ok := tl.Get("srv-9")
	if !ok || got.Status != models.StatusSent {
		t.Errorf("echo lookup = %+v ok=%v", got, ok)
	}
	if tl.Groups()[0].Messages[1].ID != "srv-9" {
		t.Error("echo did not keep the local message position")
	}
	checkInvariant(t, tl)
}

func TestFlattenNewestToOldest(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m3", may14, models.StatusSent), msg("m2", may10, models.StatusSent)}},
		{MonthYear: "2024-04", Messages: []models.Message{msg("m1", apr20, models.StatusSent)}},
	})

	flat := tl.Flatten()
	want := []string{"m3", "m2", "m1"}
	if len(flat) != len(want) {
		t.Fatalf("Flatten returned %d messages, want %d", len(flat), len(want))
	}
	for i := range want {
		if flat[i].ID != want[i] {
			t.Errorf("flat[%d] = %q, want %q", i, flat[i].ID, want[i])
		}
	}

	oldest, ok := tl.Oldest()
	if !ok || oldest.ID != "m1" {
		t.Errorf("Oldest = %+v ok=%v, want m1", oldest, ok)
	}
}

func TestReplaceDropsWarmState(t *testing.T) {
	tl := New()
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-05", Messages: []models.Message{msg("m1", may14, models.StatusSent)}},
	})
	tl.Replace([]models.MessageGroup{
		{MonthYear: "2024-06", Messages: []models.Message{msg("x1", jun01, models.StatusSent)}},
	})

	if _, ok := tl.Get("m1"); ok {
		t.Error("message from previous snapshot survived Replace")
	}
	if tl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tl.Len())
	}
}
