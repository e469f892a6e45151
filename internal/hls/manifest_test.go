package hls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
https://cdn.example.com/hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1200000,RESOLUTION=854x480
/mid/index.m3u8
`

const mediaManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:7
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:10.0,Pilot
seg0.ts
#EXTINF:10.0,
seg1.ts

#EXTINF:4.5,
../shared/seg2.ts
#EXT-X-ENDLIST
`

func TestParseMasterPlaylist(t *testing.T) {
	p, err := Parse(strings.NewReader(masterManifest), "https://example.com/show/ep1/master.m3u8")
	require.NoError(t, err)

	assert.True(t, p.IsMaster())
	require.Len(t, p.Variants, 3)

	assert.Equal(t, "https://example.com/show/ep1/low/index.m3u8", p.Variants[0].URL)
	assert.Equal(t, "avc1.4d401e,mp4a.40.2", p.Variants[0].Codecs)
	assert.Equal(t, "https://cdn.example.com/hd/index.m3u8", p.Variants[1].URL)
	assert.Equal(t, "https://example.com/mid/index.m3u8", p.Variants[2].URL)

	best, ok := p.BestVariant()
	require.True(t, ok)
	assert.Equal(t, 2500000, best.Bandwidth)
	assert.Equal(t, "1280x720", best.Resolution)
}

func TestParseMediaPlaylist(t *testing.T) {
	p, err := Parse(strings.NewReader(mediaManifest), "https://example.com/show/ep1/index.m3u8")
	require.NoError(t, err)

	assert.False(t, p.IsMaster())
	assert.Equal(t, "3", p.Version)
	assert.Equal(t, 10.0, p.TargetDuration)
	assert.Equal(t, 7, p.MediaSequence)
	assert.Equal(t, "VOD", p.PlaylistType)
	assert.True(t, p.EndList)

	require.Len(t, p.Segments, 3)
	assert.Equal(t, "Pilot", p.Segments[0].Title)
	assert.Equal(t, "https://example.com/show/ep1/seg1.ts", p.Segments[1].URL)
	assert.Equal(t, "https://example.com/show/shared/seg2.ts", p.Segments[2].URL)
	assert.Equal(t, 2, p.Segments[2].Index)
	assert.InDelta(t, 24.5, p.TotalDuration(), 1e-9)

	_, ok := p.BestVariant()
	assert.False(t, ok)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"html", "<html><body>Not Found</body></html>"},
		{"no entries", "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-ENDLIST\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body), "https://example.com/index.m3u8")
			assert.Error(t, err)
		})
	}

	_, err := Parse(strings.NewReader("garbage"), "https://example.com/index.m3u8")
	assert.ErrorIs(t, err, ErrNotManifest)
}
