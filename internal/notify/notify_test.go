package notify

import "testing"

type recording struct {
	name  string
	sink  *[]string
	level string
}

func (r *recording) Success(m string) { *r.sink = append(*r.sink, r.name+"/success:"+m) }
func (r *recording) Warning(m string) { *r.sink = append(*r.sink, r.name+"/warning:"+m) }
func (r *recording) Error(m string)   { *r.sink = append(*r.sink, r.name+"/error:"+m) }

func TestMultiFansOutInOrder(t *testing.T) {
	var got []string
	m := Multi{
		&recording{name: "a", sink: &got},
		&recording{name: "b", sink: &got},
	}

	m.Success("synced")
	m.Error("failed")

	want := []string{"a/success:synced", "b/success:synced", "a/error:failed", "b/error:failed"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d notifications, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestNopDiscards(t *testing.T) {
	var n Notifier = Nop{}
	n.Success("ignored")
	n.Warning("ignored")
	n.Error("ignored")
}
