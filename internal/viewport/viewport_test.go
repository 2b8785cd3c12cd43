package viewport

import "testing"

type fakeObserver struct {
	unobserved []string
}

func (o *fakeObserver) Observe(string)            {}
func (o *fakeObserver) Unobserve(messageID string) { o.unobserved = append(o.unobserved, messageID) }

type fakeActions struct {
	visible []string
}

func (a *fakeActions) OnVisible(messageID string) { a.visible = append(a.visible, messageID) }

func TestMarkVisibleDispatchesOnce(t *testing.T) {
	obs := &fakeObserver{}
	actions := &fakeActions{}
	d := NewDispatcher(obs, actions)

	d.MarkVisible("m1")
	d.MarkVisible("m1")
	d.MarkVisible("m2")

	if len(actions.visible) != 2 || actions.visible[0] != "m1" || actions.visible[1] != "m2" {
		t.Errorf("OnVisible calls = %v, want [m1 m2]", actions.visible)
	}
	if len(obs.unobserved) != 2 {
		t.Errorf("Unobserve calls = %v, want one per processed element", obs.unobserved)
	}
}

func TestResetAllowsReprocessing(t *testing.T) {
	actions := &fakeActions{}
	d := NewDispatcher(nil, actions)

	d.MarkVisible("m1")
	d.Reset()
	d.MarkVisible("m1")

	if len(actions.visible) != 2 {
		t.Errorf("OnVisible calls after Reset = %d, want 2", len(actions.visible))
	}
}
