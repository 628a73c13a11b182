package broker

import "testing"

func TestMessageIdentity(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "with id", msg: Message{ID: "abc", Topic: "raw_data", Partition: 2, Offset: 17}, want: "raw_data/2@17 id=abc"},
		{name: "without id", msg: Message{Topic: "raw_data", Offset: 3}, want: "raw_data/0@3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Identity(); got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}
