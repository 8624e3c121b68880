package forward

import "testing"

func TestNormalizeChannelID(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want int64
	}{
		{"native channel id", -1001234567890, 1234567890},
		{"plain negative group id", -987654321, 987654321},
		{"already normalized", 1234567890, 1234567890},
		{"zero", 0, 0},
		{"bare prefix collapses", -100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeChannelID(tt.id)
			if got != tt.want {
				t.Fatalf("NormalizeChannelID(%d) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}
}

func TestNativeChannelID(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want int64
	}{
		{"normalized id gains prefix", 1234567890, -1001234567890},
		{"small id", 42, -10042},
		{"negative id untouched", -1001234567890, -1001234567890},
		{"zero untouched", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NativeChannelID(tt.id)
			if got != tt.want {
				t.Fatalf("NativeChannelID(%d) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}
}

func TestChannelIDRoundTrip(t *testing.T) {
	ids := []int64{-1001234567890, -1009999999999, -100555}
	for _, id := range ids {
		got := NativeChannelID(NormalizeChannelID(id))
		if got != id {
			t.Fatalf("round trip of %d produced %d", id, got)
		}
	}
}
