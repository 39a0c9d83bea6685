package lastfm

import (
	"context"
	"errors"
	"testing"

	"github.com/shkh/lastfm-go/lastfm"
)

func TestClient_RecordingID(t *testing.T) {
	tests := []struct {
		name    string
		mbid    string
		apiErr  error
		want    string
		wantErr error
	}{
		{
			name: "mbid returned",
			mbid: " mbid-123 ",
			want: "mbid-123",
		},
		{
			name:    "empty mbid",
			mbid:    "",
			wantErr: ErrNotFound,
		},
		{
			name:    "api error",
			apiErr:  errors.New("track not found"),
			wantErr: nil, // any error
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotParams map[string]any
			c := &Client{getInfo: func(p map[string]any) (lastfm.TrackGetInfo, error) {
				gotParams = p
				var info lastfm.TrackGetInfo
				info.Mbid = tt.mbid
				return info, tt.apiErr
			}}

			got, err := c.RecordingID(context.Background(), "The Beatles", "Hey Jude")

			if gotParams["artist"] != "The Beatles" || gotParams["track"] != "Hey Jude" {
				t.Errorf("params = %v", gotParams)
			}
			if tt.apiErr != nil {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RecordingID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_RecordingID_CancelledContext(t *testing.T) {
	called := false
	c := &Client{getInfo: func(map[string]any) (lastfm.TrackGetInfo, error) {
		called = true
		return lastfm.TrackGetInfo{}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.RecordingID(ctx, "a", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("api should not be called with a cancelled context")
	}
}
