//go:build unit

package quality_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	info *quality.PlayInfo
	err  error
}

func (s *fakeSource) PlayInfo(context.Context) (*quality.PlayInfo, error) {
	return s.info, s.err
}

func TestRead(t *testing.T) {
	errTransport := errors.New("target closed")

	tests := []struct {
		source   *fakeSource
		expected *quality.Available
		isError  error
		title    string
	}{
		{
			source: &fakeSource{info: &quality.PlayInfo{
				Present:           true,
				AcceptQuality:     []quality.Quality{80, 64},
				AcceptDescription: []string{"高清 1080P", "高清 720P"},
			}},
			expected: &quality.Available{
				Codes:        []quality.Quality{80, 64},
				Descriptions: []string{"高清 1080P", "高清 720P"},
			},
			title: "Positive test",
		},
		{
			source:  &fakeSource{info: &quality.PlayInfo{Present: false}},
			isError: quality.ErrNoPlayInfo,
			title:   "Missing object",
		},
		{
			source:  &fakeSource{info: &quality.PlayInfo{Present: true, AcceptQuality: []quality.Quality{}}},
			isError: quality.ErrNoPlayInfo,
			title:   "Empty accept list",
		},
		{
			source:  &fakeSource{},
			isError: quality.ErrNoPlayInfo,
			title:   "Nil play info",
		},
		{
			source:  &fakeSource{err: errTransport},
			isError: errTransport,
			title:   "Source failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			// Act
			actual, err := quality.Read(context.Background(), tt.source)

			// Assert
			if tt.isError != nil {
				require.ErrorIs(t, err, tt.isError)
				require.Nil(t, actual)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.expected, actual)
			}
		})
	}
}

func TestAvailableDescription(t *testing.T) {
	a := &quality.Available{
		Codes:        []quality.Quality{116, 80, 64},
		Descriptions: []string{"高清 1080P60", ""},
	}

	require.Equal(t, "高清 1080P60", a.Description(116))
	require.Equal(t, "80", a.Description(80))
	require.Equal(t, "64", a.Description(64))
	require.Equal(t, "32", a.Description(32))
}
