package mpv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diniamo/gopv"

	"github.com/justchokingaround/reel/internal/player"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// stdinTarget makes mpv read the stream from its standard input.
const stdinTarget = "-"

// errLoadFailed is reported when mpv drops back to idle before it ever
// learned the stream's duration.
var errLoadFailed = errors.New("mpv failed to load media")

// Options configures how the surface launches mpv.
type Options struct {
	Executable     string
	NativeHLS      bool
	LoadUserConfig bool
	Debug          bool
	PollInterval   time.Duration

	// HTTP options for the native path
	Headers   map[string]string
	Referer   string
	UserAgent string

	Title     string
	ExtraArgs []string
}

// Surface implements player.Surface (and player.BufferSink) on top of an mpv
// process controlled over JSON IPC. Media element events are synthesized by
// polling mpv properties.
type Surface struct {
	player.Binding
	events player.Emitter

	mu sync.RWMutex

	// mpv process and IPC
	client       *gopv.Client
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	ipcConfig    *IPCConfig
	clientClosed bool
	platform     Platform
	executable   string

	// State
	id         string
	launched   bool
	generation int
	props      properties
	ready      player.ReadyState
	bufferInfo *player.StreamInfo
	// set_property calls issued between launch and IPC connect, in issue order
	deferred []deferredProperty

	// Control
	cancel context.CancelFunc

	opts   Options
	logger *slog.Logger
}

// New creates an mpv surface. It fails if mpv cannot be found.
func New(opts Options, logger *slog.Logger) (*Surface, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}

	platform := DetectPlatform()
	executable, err := FindMPVExecutable(platform, opts.Executable)
	if err != nil {
		return nil, fmt.Errorf("mpv not found: %w", err)
	}

	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}

	return &Surface{
		id:         "mpv-" + suffix[:8],
		platform:   platform,
		executable: executable,
		opts:       opts,
		logger:     logger.With("surface", "mpv"),
	}, nil
}

func (s *Surface) ID() string {
	return s.id
}

// CanPlayNativeHLS reports whether manifests are handed to mpv directly.
// When disabled, the caller is expected to feed segments through the BufferSink.
func (s *Surface) CanPlayNativeHLS() bool {
	return s.opts.NativeHLS
}

func (s *Surface) Subscribe(kind player.EventKind, fn player.Listener) func() {
	return s.events.Subscribe(kind, fn)
}

// SetSource launches mpv on the given URL, paused, and returns once the
// process has started. Readiness is reported through loadedmetadata/loadeddata.
func (s *Surface) SetSource(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launchLocked(ctx, url, false)
}

// ClearSource stops mpv and releases the IPC endpoint.
func (s *Surface) ClearSource(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// AttachBuffer launches mpv reading from stdin; segments are written with AppendSegment.
func (s *Surface) AttachBuffer(ctx context.Context, info player.StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.launchLocked(ctx, stdinTarget, true); err != nil {
		return err
	}
	s.bufferInfo = &info
	return nil
}

// AppendSegment writes one media segment to mpv. It blocks while mpv applies backpressure.
func (s *Surface) AppendSegment(ctx context.Context, data []byte) error {
	s.mu.RLock()
	stdin := s.stdin
	s.mu.RUnlock()

	if stdin == nil {
		return fmt.Errorf("append segment: %w", player.ErrNotReady)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("append segment: %w", err)
	}
	return nil
}

// EndOfStream closes mpv's input so it sees EOF after the last segment.
func (s *Surface) EndOfStream(ctx context.Context) error {
	s.mu.Lock()
	stdin := s.stdin
	s.stdin = nil
	s.mu.Unlock()

	if stdin == nil {
		return nil
	}
	return stdin.Close()
}

// DetachBuffer stops mpv and drops the buffer.
func (s *Surface) DetachBuffer(ctx context.Context) error {
	return s.ClearSource(ctx)
}

// launchLocked must be called with the lock held
func (s *Surface) launchLocked(ctx context.Context, target string, fromStdin bool) error {
	if s.launched {
		if err := s.stopLocked(); err != nil {
			return fmt.Errorf("failed to stop existing playback: %w", err)
		}
	}

	ipcConfig, err := GetIPCConfig(s.platform)
	if err != nil {
		return fmt.Errorf("failed to generate IPC config: %w", err)
	}
	s.ipcConfig = ipcConfig

	cmd := exec.Command(s.executable, s.buildArgs(target)...)

	// Keep mpv away from the terminal the detail view is drawing on.
	cmd.Stdout = nil
	cmd.Stderr = nil
	if fromStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			s.cleanupIPC()
			return fmt.Errorf("failed to open mpv stdin: %w", err)
		}
		s.stdin = stdin
	} else {
		cmd.Stdin = nil
	}
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		s.stdin = nil
		s.cleanupIPC()
		return fmt.Errorf("failed to start %s: %w", s.executable, err)
	}

	s.cmd = cmd
	s.launched = true
	s.clientClosed = false
	s.generation++
	s.props = properties{}
	s.ready = player.HaveNothing
	s.bufferInfo = nil
	s.deferred = nil

	monitorCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.asyncInitialize(monitorCtx, s.generation, ipcConfig, cmd)

	s.logger.Debug("mpv launched", "target", target, "ipc", ipcConfig.Address, "stdin", fromStdin)
	return nil
}

// asyncInitialize connects to IPC and starts the monitors. Failures are
// reported as error events.
func (s *Surface) asyncInitialize(ctx context.Context, generation int, ipcConfig *IPCConfig, cmd *exec.Cmd) {
	go s.monitorProcess(generation, cmd)

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.waitForIPC(initCtx, ipcConfig); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(generation, fmt.Errorf("timeout waiting for mpv IPC at %s: %w", ipcConfig.Address, err))
		return
	}

	connStr := GetGopvConnectionString(ipcConfig)
	client, err := gopv.Connect(connStr, func(err error) {
		s.logger.Debug("mpv IPC error", "error", err)
	})
	if err != nil {
		s.fail(generation, fmt.Errorf("failed to connect to mpv IPC at %s: %w", connStr, err))
		return
	}

	s.mu.Lock()
	if s.generation != generation || !s.launched {
		s.mu.Unlock()
		_, _ = client.Request("quit")
		return
	}
	s.client = client
	deferred := s.deferred
	s.deferred = nil
	s.mu.Unlock()

	for _, p := range deferred {
		if _, err := client.Request("set_property", p.name, p.value); err != nil {
			s.logger.Warn("failed to apply deferred property", "property", p.name, "error", err)
		}
	}

	s.monitorProgress(ctx, generation)
}

func (s *Surface) fail(generation int, err error) {
	s.mu.Lock()
	if s.generation != generation || !s.launched {
		s.mu.Unlock()
		return
	}
	_ = s.stopLocked()
	s.mu.Unlock()

	s.logger.Error("mpv surface failed", "error", err)
	s.events.Emit(player.Event{Kind: player.EventError, Err: err})
}

// stopLocked stops playback without locking (must be called with lock held)
func (s *Surface) stopLocked() error {
	if !s.launched {
		return nil
	}
	s.launched = false

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}

	// gopv closes the client itself once the process is gone; calling Close
	// here as well panics on double close.
	if s.client != nil && !s.clientClosed {
		client := s.client
		s.clientClosed = true
		go func() {
			done := make(chan struct{})
			go func() {
				_, _ = client.Request("quit")
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(500 * time.Millisecond):
			}
		}()
	}
	s.client = nil

	// monitorProcess owns Wait().
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil

	s.cleanupIPC()
	s.props = properties{}
	s.ready = player.HaveNothing
	s.bufferInfo = nil
	s.deferred = nil
	return nil
}

func (s *Surface) cleanupIPC() {
	if s.ipcConfig != nil && s.ipcConfig.IsSocket {
		_ = os.Remove(s.ipcConfig.Address)
	}
	s.ipcConfig = nil
}

// Close stops mpv. The surface can be reused by setting a new source.
func (s *Surface) Close() error {
	return s.ClearSource(context.Background())
}

type deferredProperty struct {
	name  string
	value any
}

// deferProperty queues a property change. A property keeps the position of
// its first change and takes the value of its last, so a seek issued before
// play is still applied first.
func deferProperty(queue []deferredProperty, name string, value any) []deferredProperty {
	for i := range queue {
		if queue[i].name == name {
			queue[i].value = value
			return queue
		}
	}
	return append(queue, deferredProperty{name: name, value: value})
}

// setProperty sends a property change to mpv. While mpv is starting up the
// change is queued and applied in order once IPC is connected.
func (s *Surface) setProperty(name string, value any) error {
	s.mu.Lock()
	client := s.client
	if client == nil {
		defer s.mu.Unlock()
		if !s.launched {
			return fmt.Errorf("set %s: %w", name, player.ErrNotReady)
		}
		s.deferred = deferProperty(s.deferred, name, value)
		return nil
	}
	s.mu.Unlock()

	if _, err := client.Request("set_property", name, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func (s *Surface) Play(ctx context.Context) error {
	return s.setProperty("pause", false)
}

func (s *Surface) Pause(ctx context.Context) error {
	return s.setProperty("pause", true)
}

func (s *Surface) Seek(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	return s.setProperty("time-pos", seconds)
}

func (s *Surface) SetRate(ctx context.Context, rate float64) error {
	return s.setProperty("speed", rate)
}

// SetVolume maps 0.0-1.0 onto mpv's 0-100 volume scale.
func (s *Surface) SetVolume(ctx context.Context, volume float64) error {
	return s.setProperty("volume", volume*100)
}

func (s *Surface) SetMuted(ctx context.Context, muted bool) error {
	return s.setProperty("mute", muted)
}

func (s *Surface) RequestFullscreen(ctx context.Context) error {
	return s.setProperty("fullscreen", true)
}

func (s *Surface) ExitFullscreen(ctx context.Context) error {
	return s.setProperty("fullscreen", false)
}

func (s *Surface) IsFullscreen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.fullscreen
}

func (s *Surface) ReadyState() player.ReadyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Surface) CurrentTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.timePos
}

func (s *Surface) Duration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durationLocked()
}

func (s *Surface) durationLocked() float64 {
	if s.props.duration > 0 {
		return s.props.duration
	}
	if s.bufferInfo != nil {
		return s.bufferInfo.Duration
	}
	return 0
}

// monitorProgress polls mpv and turns property changes into surface events.
func (s *Surface) monitorProgress(ctx context.Context, generation int) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		client := s.client
		stale := s.generation != generation
		s.mu.RUnlock()
		if client == nil || stale {
			return
		}

		cur, err := readProperties(client)
		if err != nil {
			s.logger.Debug("mpv property poll failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.generation != generation {
			s.mu.Unlock()
			return
		}
		if cur.duration <= 0 && s.bufferInfo != nil {
			cur.duration = s.bufferInfo.Duration
		}
		events, ready := diffProperties(s.props, cur, s.ready)
		s.props = cur
		s.ready = ready
		s.mu.Unlock()

		failed := false
		for _, ev := range events {
			s.events.Emit(ev)
			failed = failed || ev.Kind == player.EventError
		}
		if failed {
			s.logger.Warn("mpv went idle before loading media")
			return
		}
	}
}

// monitorProcess waits for mpv to exit and reports unexpected exits.
func (s *Surface) monitorProcess(generation int, cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.RLock()
	expected := s.generation != generation || !s.launched
	s.mu.RUnlock()
	if expected {
		return
	}

	if err == nil {
		err = errors.New("mpv exited")
	}
	s.fail(generation, fmt.Errorf("mpv process exited unexpectedly: %w", err))
}

// waitForIPC waits for the IPC endpoint to accept connections
func (s *Surface) waitForIPC(ctx context.Context, ipcConfig *IPCConfig) error {
	timeoutDuration := 5 * time.Second
	if ipcConfig.Type == IPCTCP || ipcConfig.Type == IPCNamedPipe {
		timeoutDuration = 10 * time.Second
	}

	timeout := time.After(timeoutDuration)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("no IPC endpoint after %v", timeoutDuration)
		case <-ticker.C:
			switch {
			case ipcConfig.IsSocket:
				if _, err := os.Stat(ipcConfig.Address); err == nil {
					return nil
				}
			case ipcConfig.Type == IPCTCP:
				conn, err := net.DialTimeout("tcp", ipcConfig.Address, 200*time.Millisecond)
				if err == nil {
					_ = conn.Close()
					return nil
				}
			case ipcConfig.Type == IPCNamedPipe:
				if isPipeReady(ipcConfig.Address) {
					return nil
				}
			}
		}
	}
}

// buildArgs builds the command-line arguments for mpv
func (s *Surface) buildArgs(target string) []string {
	args := []string{
		GetMPVIPCArgument(s.ipcConfig),
		"--idle=yes",
		"--keep-open=yes", // hold the last frame so eof-reached can be observed
		"--pause=yes",     // playback starts on an explicit play command
		"--force-window=yes",
		"--no-ytdl",
	}

	if !s.opts.LoadUserConfig {
		args = append(args, "--no-config")
	}
	if !s.opts.Debug {
		args = append(args, "--msg-level=all=warn")
	}

	if target != stdinTarget {
		userAgent := s.opts.UserAgent
		if userAgent == "" {
			userAgent = defaultUserAgent
		}
		args = append(args, "--user-agent="+userAgent)

		if s.opts.Referer != "" {
			args = append(args, "--referrer="+s.opts.Referer)
		}

		var headers []string
		for key, value := range s.opts.Headers {
			if key == "User-Agent" || key == "Referer" {
				continue
			}
			headers = append(headers, fmt.Sprintf("%s: %s", key, value))
		}
		if len(headers) > 0 {
			sort.Strings(headers)
			args = append(args, "--http-header-fields="+strings.Join(headers, ","))
		}
	} else {
		args = append(args, "--cache=yes")
	}

	if s.opts.Title != "" {
		args = append(args, "--force-media-title="+s.opts.Title)
	}

	args = append(args, s.opts.ExtraArgs...)

	// target must be last
	return append(args, target)
}

// properties is one poll of the mpv state we care about.
type properties struct {
	timePos    float64
	hasTimePos bool
	duration   float64
	paused     bool
	seeking    bool
	eof        bool
	fullscreen bool
	idle       bool
}

func readProperties(client *gopv.Client) (properties, error) {
	var p properties
	var failures int

	if result, err := client.Request("get_property", "time-pos"); err == nil {
		if val, ok := result.(float64); ok {
			p.timePos = val
			p.hasTimePos = true
		}
	} else {
		failures++
		if runtime.GOOS == "windows" {
			return p, fmt.Errorf("windows IPC error getting time-pos: %w", err)
		}
	}

	if result, err := client.Request("get_property", "duration"); err == nil {
		if val, ok := result.(float64); ok {
			p.duration = val
		}
	} else {
		failures++
	}

	if result, err := client.Request("get_property", "pause"); err == nil {
		if val, ok := result.(bool); ok {
			p.paused = val
		}
	} else {
		failures++
	}

	if result, err := client.Request("get_property", "eof-reached"); err == nil {
		if val, ok := result.(bool); ok {
			p.eof = val
		}
	} else {
		failures++
	}

	if result, err := client.Request("get_property", "seeking"); err == nil {
		if val, ok := result.(bool); ok {
			p.seeking = val
		}
	}

	if result, err := client.Request("get_property", "fullscreen"); err == nil {
		if val, ok := result.(bool); ok {
			p.fullscreen = val
		}
	}

	if result, err := client.Request("get_property", "idle-active"); err == nil {
		if val, ok := result.(bool); ok {
			p.idle = val
		}
	}

	// Several core properties failing at once means the IPC connection is gone.
	if failures >= 3 {
		return p, fmt.Errorf("IPC connection failed (failed to get %d properties)", failures)
	}
	return p, nil
}

// diffProperties derives media events from two consecutive polls.
func diffProperties(prev, cur properties, ready player.ReadyState) ([]player.Event, player.ReadyState) {
	var events []player.Event
	ev := func(kind player.EventKind) player.Event {
		return player.Event{
			Kind:        kind,
			CurrentTime: cur.timePos,
			Duration:    cur.duration,
			Fullscreen:  cur.fullscreen,
		}
	}

	// mpv runs with --idle, so a stream it cannot open leaves it idle instead
	// of exiting. Two idle polls in a row rule out the startup window.
	if ready < player.HaveMetadata && cur.duration <= 0 && cur.idle && prev.idle {
		e := ev(player.EventError)
		e.Err = errLoadFailed
		return append(events, e), ready
	}

	if ready < player.HaveMetadata && cur.duration > 0 {
		ready = player.HaveMetadata
		events = append(events, ev(player.EventLoadedMetadata))
	}
	if ready >= player.HaveMetadata && ready < player.HaveCurrentData && cur.hasTimePos {
		ready = player.HaveCurrentData
		events = append(events, ev(player.EventLoadedData))
	}
	if ready >= player.HaveCurrentData && ready < player.HaveEnoughData && cur.hasTimePos && !cur.seeking {
		ready = player.HaveEnoughData
	}

	if cur.seeking && !prev.seeking {
		events = append(events, ev(player.EventSeeking))
	}
	if !cur.seeking && prev.seeking {
		events = append(events, ev(player.EventSeeked))
	}

	if cur.hasTimePos && (!prev.hasTimePos || cur.timePos != prev.timePos) {
		events = append(events, ev(player.EventTimeUpdate))
	}

	if ready >= player.HaveMetadata && prev.hasTimePos && cur.paused != prev.paused {
		if cur.paused {
			events = append(events, ev(player.EventPause))
		} else {
			events = append(events, ev(player.EventPlay))
		}
	}

	if cur.eof && !prev.eof {
		events = append(events, ev(player.EventEnded))
	}

	if cur.fullscreen != prev.fullscreen {
		events = append(events, ev(player.EventFullscreenChange))
	}

	return events, ready
}
