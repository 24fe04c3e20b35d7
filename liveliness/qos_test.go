package liveliness

import (
	"errors"
	"testing"
	"time"
)

func TestKindOrdering(t *testing.T) {
	if !(Automatic < ManualByParticipant && ManualByParticipant < ManualByTopic) {
		t.Fatalf("kind ordering broken: %d %d %d", Automatic, ManualByParticipant, ManualByTopic)
	}
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"AUTOMATIC", Automatic, true},
		{"MANUAL_BY_PARTICIPANT", ManualByParticipant, true},
		{"MANUAL_BY_TOPIC", ManualByTopic, true},
		{"automatic", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseKind(%q) = %v, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseKind(%q) should fail", tc.in)
		}
	}
}

func TestCompatibility(t *testing.T) {
	cases := []struct {
		name      string
		offered   Offered
		requested Requested
		want      bool
	}{
		{
			name:      "equal kind and lease",
			offered:   Offered{Kind: Automatic, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond},
			requested: Requested{Kind: Automatic, LeaseDuration: 10 * time.Millisecond},
			want:      true,
		},
		{
			name:      "offered lease longer",
			offered:   Offered{Kind: Automatic, LeaseDuration: 11 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond},
			requested: Requested{Kind: Automatic, LeaseDuration: 10 * time.Millisecond},
			want:      false,
		},
		{
			name:      "stronger kind offered",
			offered:   Offered{Kind: ManualByTopic, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond},
			requested: Requested{Kind: Automatic, LeaseDuration: 10 * time.Millisecond},
			want:      true,
		},
		{
			name:      "weaker kind offered",
			offered:   Offered{Kind: Automatic, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond},
			requested: Requested{Kind: ManualByTopic, LeaseDuration: 10 * time.Millisecond},
			want:      false,
		},
		{
			name:      "infinite requested lease accepts any offer",
			offered:   Offered{Kind: ManualByParticipant, LeaseDuration: time.Second, AnnouncementPeriod: time.Millisecond},
			requested: Requested{Kind: ManualByParticipant, LeaseDuration: Infinite},
			want:      true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compatible(tc.offered, tc.requested); got != tc.want {
				t.Fatalf("Compatible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOfferedValidate(t *testing.T) {
	good := Offered{Kind: Automatic, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid QoS rejected: %v", err)
	}
	infinite := Offered{Kind: Automatic, LeaseDuration: Infinite, AnnouncementPeriod: Infinite}
	if err := infinite.Validate(); err != nil {
		t.Fatalf("infinite lease rejected: %v", err)
	}

	negative := Offered{Kind: Automatic, LeaseDuration: -time.Millisecond, AnnouncementPeriod: 0}
	if err := negative.Validate(); !errors.Is(err, ErrNegativeDuration) {
		t.Fatalf("negative lease: got %v", err)
	}
	tooLong := Offered{Kind: Automatic, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 10 * time.Millisecond}
	if err := tooLong.Validate(); !errors.Is(err, ErrAnnouncementTooLong) {
		t.Fatalf("announcement == lease: got %v", err)
	}
	if err := (Requested{LeaseDuration: -1}).Validate(); !errors.Is(err, ErrNegativeDuration) {
		t.Fatalf("negative requested lease accepted")
	}
}
