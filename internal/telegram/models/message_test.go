package models

import (
	"context"
	"io"
	"testing"
	"time"
)

type stubRef struct{}

func (stubRef) Identity() string                                { return "stub" }
func (stubRef) Size() int64                                     { return 0 }
func (stubRef) Open(ctx context.Context) (io.ReadCloser, error) { return nil, nil }

func TestSourceMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		caption string
		want    string
	}{
		{"text preferred", "body", "caption", "body"},
		{"caption fallback", "", "caption", "caption"},
		{"both empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &SourceMessage{Text: tt.text, Caption: tt.caption}
			if got := msg.Content(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSourceMessageHasMedia(t *testing.T) {
	tests := []struct {
		name string
		msg  SourceMessage
		want bool
	}{
		{"photo with ref", SourceMessage{Kind: MediaKindPhoto, Media: stubRef{}}, true},
		{"text message", SourceMessage{Kind: MediaKindText}, false},
		{"kind set but no ref", SourceMessage{Kind: MediaKindPhoto}, false},
		{"ref but text kind", SourceMessage{Kind: MediaKindText, Media: stubRef{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.HasMedia(); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTimeWindowContains(t *testing.T) {
	tests := []struct {
		name   string
		window TimeWindow
		minute int
		want   bool
	}{
		{"inside plain window", TimeWindow{StartMinute: 540, EndMinute: 1080}, 600, true},
		{"boundary inclusive", TimeWindow{StartMinute: 540, EndMinute: 1080}, 1080, true},
		{"outside plain window", TimeWindow{StartMinute: 540, EndMinute: 1080}, 1200, false},
		{"overnight late side", TimeWindow{StartMinute: 1320, EndMinute: 360}, 1400, true},
		{"overnight early side", TimeWindow{StartMinute: 1320, EndMinute: 360}, 120, true},
		{"overnight gap", TimeWindow{StartMinute: 1320, EndMinute: 360}, 720, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.minute); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTimeWindowAppliesOn(t *testing.T) {
	weekdaysOnly := TimeWindow{Weekdays: []int{1, 2, 3, 4, 5}}
	everyDay := TimeWindow{}

	if weekdaysOnly.AppliesOn(time.Saturday) {
		t.Fatalf("weekday window must not apply on Saturday")
	}
	if !weekdaysOnly.AppliesOn(time.Monday) {
		t.Fatalf("weekday window must apply on Monday")
	}
	if !everyDay.AppliesOn(time.Sunday) {
		t.Fatalf("empty weekday set must apply every day")
	}
}
