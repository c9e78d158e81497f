package quality

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoPlayInfo is returned when the page has not published its quality list yet.
//
// It is expected during page load and callers should retry.
var ErrNoPlayInfo = errors.New("play info not available")

// PlayInfo is the part of the page-global window.__playinfo__ object that matters.
type PlayInfo struct {
	// Present is false when the object or its data field is missing.
	Present           bool      `json:"present"`
	AcceptQuality     []Quality `json:"accept_quality"`
	AcceptDescription []string  `json:"accept_description"`
}

// Source provides the play info published by the host page.
type Source interface {
	PlayInfo(ctx context.Context) (*PlayInfo, error)
}

// Available is the set of qualities offered for the current video.
type Available struct {
	Codes        []Quality `json:"codes"`
	Descriptions []string  `json:"descriptions"`
}

// Description returns the human readable label of a code, or the code itself.
func (a *Available) Description(q Quality) string {
	for i, code := range a.Codes {
		if code == q && i < len(a.Descriptions) && a.Descriptions[i] != "" {
			return a.Descriptions[i]
		}
	}
	return strconv.Itoa(int(q))
}

// Read fetches the available qualities from the source.
func Read(ctx context.Context, src Source) (*Available, error) {
	info, err := src.PlayInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read play info: %w", err)
	}
	if info == nil || !info.Present || len(info.AcceptQuality) == 0 {
		return nil, ErrNoPlayInfo
	}
	return &Available{
		Codes:        info.AcceptQuality,
		Descriptions: info.AcceptDescription,
	}, nil
}
