package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/justchokingaround/reel/internal/player"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu        sync.Mutex
	info      *player.StreamInfo
	segments  []string
	eos       bool
	detached  bool
	appendErr error
	block     chan struct{}
}

func (s *recordingSink) AttachBuffer(ctx context.Context, info player.StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = &info
	return nil
}

func (s *recordingSink) AppendSegment(ctx context.Context, data []byte) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.segments = append(s.segments, string(data))
	return nil
}

func (s *recordingSink) EndOfStream(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos = true
	return nil
}

func (s *recordingSink) DetachBuffer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
	return nil
}

func newStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=500000,RESOLUTION=640x360\nlow.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1920x1080\nhigh.m3u8\n")
	})
	mux.HandleFunc("/high.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:6.0,\nh0.ts\n#EXTINF:6.0,\nh1.ts\n#EXTINF:3.0,\nh2.ts\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/low.m3u8", func(w http.ResponseWriter, r *http.Request) {
		t.Error("low variant must not be requested")
	})
	mux.HandleFunc("/gap.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:6.0,\nh0.ts\n#EXTINF:6.0,\nmissing.ts\n#EXTINF:6.0,\nh2.ts\n#EXT-X-ENDLIST\n")
	})
	for _, name := range []string{"h0", "h1", "h2"} {
		mux.HandleFunc("/"+name+".ts", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, name)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	final  chan struct{}
	once   sync.Once
}

func newEventLog() *eventLog {
	return &eventLog{final: make(chan struct{})}
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	if ev.Kind == EventEndOfStream || (ev.Kind == EventError && ev.Fatal) {
		l.once.Do(func() { close(l.final) })
	}
}

func (l *eventLog) wait(t *testing.T) []Event {
	t.Helper()
	select {
	case <-l.final:
	case <-time.After(5 * time.Second):
		t.Fatal("demuxer did not finish")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func newTestDemuxer() *Demuxer {
	return NewDemuxer(NewClient(ClientConfig{Timeout: 2 * time.Second}), nil)
}

func TestDemuxerFeedsBestVariantInOrder(t *testing.T) {
	srv := newStreamServer(t)
	sink := &recordingSink{}
	events := newEventLog()

	d := newTestDemuxer()
	d.OnEvent(events.record)
	d.AttachMedia(sink)
	require.NoError(t, d.LoadSource(srv.URL+"/master.m3u8"))

	got := events.wait(t)
	d.Destroy()

	require.NotEmpty(t, got)
	assert.Equal(t, EventManifestParsed, got[0].Kind)
	assert.Equal(t, 15.0, got[0].Info.Duration)
	assert.Equal(t, 3000000, got[0].Info.Bandwidth)
	assert.Equal(t, "1920x1080", got[0].Info.Resolution)
	assert.Equal(t, EventEndOfStream, got[len(got)-1].Kind)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"h0", "h1", "h2"}, sink.segments)
	assert.True(t, sink.eos)
	assert.True(t, sink.detached)
}

func TestDemuxerManifestFailureIsFatal(t *testing.T) {
	srv := newStreamServer(t)
	sink := &recordingSink{}
	events := newEventLog()

	d := newTestDemuxer()
	d.OnEvent(events.record)
	d.AttachMedia(sink)
	require.NoError(t, d.LoadSource(srv.URL+"/nope.m3u8"))

	got := events.wait(t)
	d.Destroy()

	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Kind)
	assert.True(t, got[0].Fatal)

	var manifestErr *ManifestError
	require.True(t, errors.As(got[0].Err, &manifestErr))
	assert.Equal(t, srv.URL+"/nope.m3u8", manifestErr.URL)

	var statusErr *StatusError
	require.True(t, errors.As(got[0].Err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	assert.Nil(t, sink.info, "buffer must not be attached on manifest failure")
}

func TestDemuxerSkipsMissingSegment(t *testing.T) {
	srv := newStreamServer(t)
	sink := &recordingSink{}
	events := newEventLog()

	d := newTestDemuxer()
	d.OnEvent(events.record)
	d.AttachMedia(sink)
	require.NoError(t, d.LoadSource(srv.URL+"/gap.m3u8"))

	got := events.wait(t)
	d.Destroy()

	var nonFatal int
	for _, ev := range got {
		if ev.Kind == EventError {
			assert.False(t, ev.Fatal)
			assert.Equal(t, 1, ev.Fragment)
			nonFatal++
		}
	}
	assert.Equal(t, 1, nonFatal)
	assert.Equal(t, []string{"h0", "h2"}, sink.segments)
}

func TestDemuxerSinkFailureIsFatal(t *testing.T) {
	srv := newStreamServer(t)
	sink := &recordingSink{appendErr: errors.New("pipe closed")}
	events := newEventLog()

	d := newTestDemuxer()
	d.OnEvent(events.record)
	d.AttachMedia(sink)
	require.NoError(t, d.LoadSource(srv.URL+"/master.m3u8"))

	got := events.wait(t)
	d.Destroy()

	last := got[len(got)-1]
	assert.Equal(t, EventError, last.Kind)
	assert.True(t, last.Fatal)
	assert.ErrorContains(t, last.Err, "pipe closed")
}

func TestDemuxerDestroyStopsFeeding(t *testing.T) {
	srv := newStreamServer(t)
	sink := &recordingSink{block: make(chan struct{})}
	parsed := make(chan struct{})

	d := newTestDemuxer()
	var once sync.Once
	var afterDestroy []Event
	var destroyed bool
	var mu sync.Mutex
	d.OnEvent(func(ev Event) {
		mu.Lock()
		if destroyed {
			afterDestroy = append(afterDestroy, ev)
		}
		mu.Unlock()
		if ev.Kind == EventManifestParsed {
			once.Do(func() { close(parsed) })
		}
	})
	d.AttachMedia(sink)
	require.NoError(t, d.LoadSource(srv.URL+"/master.m3u8"))

	select {
	case <-parsed:
	case <-time.After(5 * time.Second):
		t.Fatal("manifest not parsed")
	}

	d.Destroy()
	mu.Lock()
	destroyed = true
	mu.Unlock()
	d.Destroy()

	assert.Empty(t, afterDestroy)
	assert.Empty(t, sink.segments)
	assert.True(t, sink.detached)
	assert.False(t, sink.eos)
	assert.ErrorIs(t, d.LoadSource(srv.URL+"/master.m3u8"), ErrDestroyed)
}

func TestDemuxerLoadSourceRequiresMedia(t *testing.T) {
	d := newTestDemuxer()
	assert.Error(t, d.LoadSource("http://127.0.0.1/x.m3u8"))
	d.Destroy()
}
