package notify

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"none", LevelNone},
		{"failures", LevelFailures},
		{"all", LevelAll},
		{"FAILURES", LevelFailures},
		{"", LevelAll},
		{"garbage", LevelAll},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelGating(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		enabled bool
		emit    func(*Notifier)
		want    int
	}{
		{"all passes info", LevelAll, true, func(n *Notifier) { n.Infof("hi") }, 1},
		{"failures drops info", LevelFailures, true, func(n *Notifier) { n.Infof("hi") }, 0},
		{"failures passes failure", LevelFailures, true, func(n *Notifier) { n.Failuref("boom") }, 1},
		{"failures passes warning", LevelFailures, true, func(n *Notifier) { n.Warnf("careful") }, 1},
		{"none drops failure", LevelNone, true, func(n *Notifier) { n.Failuref("boom") }, 0},
		{"disabled drops all", LevelAll, false, func(n *Notifier) { n.Failuref("boom") }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(tt.level, tt.enabled)
			var got []Notification
			n.SetSink(func(note Notification) { got = append(got, note) })
			tt.emit(n)
			if len(got) != tt.want {
				t.Errorf("Expected %d notifications, got %d", tt.want, len(got))
			}
		})
	}
}

func TestWarnOnce(t *testing.T) {
	n := New(LevelAll, true)
	var got []Notification
	n.SetSink(func(note Notification) { got = append(got, note) })

	n.WarnOnce("auth", "token rejected")
	n.WarnOnce("auth", "token rejected")
	n.WarnOnce("auth", "token rejected")
	if len(got) != 1 {
		t.Fatalf("Expected a single notification, got %d", len(got))
	}

	// A different key is its own warning.
	n.WarnOnce("stream", "gave up reconnecting")
	if len(got) != 2 {
		t.Errorf("Expected second notification for new key, got %d", len(got))
	}
}
