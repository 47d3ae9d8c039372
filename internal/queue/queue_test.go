// ABOUTME: Tests for the buffer queue bridge
// ABOUTME: Extraction into a store, queued playback states and direct playback
package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soundsystem-go/soundsystem/internal/audiotest"
	"github.com/soundsystem-go/soundsystem/internal/engine"
	"github.com/soundsystem-go/soundsystem/pkg/audio"
	"github.com/soundsystem-go/soundsystem/pkg/audio/decode"
	"github.com/soundsystem-go/soundsystem/pkg/audio/output"
	"github.com/soundsystem-go/soundsystem/pkg/audio/pcm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = audio.Format{Sample: audio.FormatI16, SampleRate: 48000, Channels: 2}

type recordingEvents struct {
	mu      sync.Mutex
	changes []bool
	endings int
	stops   int
}

func (e *recordingEvents) PlayingChanged(playing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, playing)
}

func (e *recordingEvents) EndOfTrack() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endings++
}

func (e *recordingEvents) TrackStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
}

func (e *recordingEvents) ends() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endings
}

func (e *recordingEvents) stopped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func isSilent(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func filledStore(t *testing.T, frames int) *pcm.Store {
	t.Helper()
	store, err := pcm.NewStore(testFormat, frames)
	require.NoError(t, err)
	data := make([]byte, testFormat.FramesToBytes(frames))
	for i := 0; i < len(data); i += 2 {
		audio.PutSample(data[i:], audio.FormatI16, 0.5)
	}
	require.NoError(t, store.Write(0, data))
	store.Finish()
	return store
}

// unknownLength hides the length of a source
type unknownLength struct {
	*audiotest.MockSource
}

func (unknownLength) Length() int { return -1 }

// failingSource fails after producing some audio
type failingSource struct {
	*audiotest.MockSource
	reads int
}

var errDecode = errors.New("corrupt frame")

func (f *failingSource) ReadSamples(dst []float32) (int, error) {
	f.reads++
	if f.reads > 2 {
		return 0, errDecode
	}
	return f.MockSource.ReadSamples(dst)
}

func newExtractor(t *testing.T, src decode.Source, format audio.Format) *decode.Extractor {
	t.Helper()
	ext, err := decode.NewExtractor(src, format, zerolog.Nop())
	require.NoError(t, err)
	return ext
}

func TestExtractionFillsStore(t *testing.T) {
	src := audiotest.NewConstantSource(44100, 1, 10000, 0.5)
	ext := newExtractor(t, src, audio.Format{Sample: audio.FormatI16, SampleRate: 44100, Channels: 2})

	done := make(chan error, 1)
	x, err := NewExtraction(ext, 1024, zerolog.Nop(), func(err error) { done <- err })
	require.NoError(t, err)
	require.Equal(t, 10000, x.Store().TotalFrames())
	require.NoError(t, x.Start(context.Background()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("extraction did not finish")
	}
	require.NoError(t, x.Wait(context.Background()))
	require.NoError(t, x.Close())

	store := x.Store()
	assert.True(t, store.Finished())
	assert.True(t, x.Finished())
	assert.Equal(t, 10000, store.TotalFrames())

	samples := store.Samples()
	require.Len(t, samples, 20000)
	want := audio.FloatToInt16(0.5)
	assert.Equal(t, want, samples[0])
	assert.Equal(t, want, samples[19999])
}

func TestExtractionResamplesIntoStore(t *testing.T) {
	src := audiotest.NewSineSource(24000, 2, 24000, 440)
	ext := newExtractor(t, src, testFormat)

	x, err := NewExtraction(ext, 0, zerolog.Nop(), nil)
	require.NoError(t, err)
	capacity := x.Store().TotalFrames()
	require.Equal(t, 48000, capacity)

	require.NoError(t, x.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, x.Wait(ctx))
	require.NoError(t, x.Close())

	total := x.Store().TotalFrames()
	assert.LessOrEqual(t, total, capacity)
	assert.Greater(t, total, capacity-100)
}

func TestExtractionReportsDecodeError(t *testing.T) {
	src := &failingSource{MockSource: audiotest.NewConstantSource(48000, 2, 100000, 0.5)}
	ext := newExtractor(t, src, testFormat)

	x, err := NewExtraction(ext, 512, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.NoError(t, x.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = x.Wait(ctx)
	assert.ErrorIs(t, err, errDecode)
	require.NoError(t, x.Close())

	// what was decoded stays playable
	assert.True(t, x.Store().Finished())
	assert.Greater(t, x.Store().TotalFrames(), 0)
	assert.Less(t, x.Store().TotalFrames(), 100000)
}

func TestExtractionNeedsLength(t *testing.T) {
	src := unknownLength{audiotest.NewConstantSource(48000, 2, 100, 0)}
	ext := newExtractor(t, src, testFormat)

	_, err := NewExtraction(ext, 0, zerolog.Nop(), nil)
	assert.ErrorIs(t, err, decode.ErrUnknownLength)
}

func newPlayback(t *testing.T) (*Playback, *audiotest.QueueBackend, *recordingEvents) {
	t.Helper()
	backend := audiotest.NewQueueBackend()
	events := &recordingEvents{}
	p := NewPlayback(backend, engine.Config{
		Format:         testFormat,
		FramesPerBurst: 192,
		Logger:         zerolog.Nop(),
		Events:         events,
	})
	t.Cleanup(func() { p.Close() })
	return p, backend, events
}

func TestPlaybackPrimesTwoBuffers(t *testing.T) {
	p, backend, _ := newPlayback(t)
	p.SetStore(filledStore(t, 10000))

	playing, err := p.Play(true)
	require.NoError(t, err)
	assert.True(t, playing)

	q := backend.Last()
	assert.Equal(t, output.PlayStatePlaying, q.PlayState())
	assert.Equal(t, 2, q.Queued())
	assert.Equal(t, 384, p.Cursor())

	out := audiotest.Drain(q, 192)
	assert.False(t, isSilent(out))
	assert.Equal(t, 2, q.Queued())
	assert.Equal(t, 576, p.Cursor())
}

func TestPlaybackStateMachine(t *testing.T) {
	p, backend, events := newPlayback(t)
	p.SetStore(filledStore(t, 10000))

	playing, err := p.Play(false)
	require.NoError(t, err)
	assert.False(t, playing)
	assert.Equal(t, output.PlayStateStopped, p.PlayState())

	_, err = p.Play(true)
	require.NoError(t, err)
	assert.Equal(t, output.PlayStatePlaying, p.PlayState())

	// play while playing pauses
	playing, err = p.Play(true)
	require.NoError(t, err)
	assert.False(t, playing)
	assert.Equal(t, output.PlayStatePaused, p.PlayState())

	q := backend.Last()
	cursor := p.Cursor()
	assert.True(t, isSilent(audiotest.Drain(q, 192)))
	assert.Equal(t, cursor, p.Cursor())

	// resume keeps the queued buffers
	playing, err = p.Play(true)
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, 2, q.Queued())
	assert.Equal(t, cursor, p.Cursor())

	require.NoError(t, p.Stop())
	assert.Equal(t, output.PlayStateStopped, p.PlayState())
	assert.Equal(t, 0, q.Queued())
	assert.Equal(t, 0, p.Cursor())
	assert.False(t, p.IsPlaying())
	assert.Equal(t, 1, events.stopped())

	_, err = p.Play(true)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Queued())
	assert.Equal(t, 384, p.Cursor())
	assert.Len(t, backend.Queues(), 1)
}

func TestPlaybackEndOfTrack(t *testing.T) {
	p, backend, events := newPlayback(t)
	p.SetStore(filledStore(t, 1000))

	_, err := p.Play(true)
	require.NoError(t, err)
	q := backend.Last()

	audible := 0
	for i := 0; i < 6; i++ {
		if !isSilent(audiotest.Drain(q, 192)) {
			audible++
		}
	}
	assert.Equal(t, 6, audible)

	require.Eventually(t, func() bool { return events.ends() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, output.PlayStateStopped, p.PlayState())
	assert.Equal(t, 0, p.Cursor())
	assert.False(t, p.IsPlaying())
	assert.True(t, isSilent(audiotest.Drain(q, 192)))

	// playing again starts from the top
	playing, err := p.Play(true)
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, 384, p.Cursor())
}

func TestPlaybackCloseIsIdempotent(t *testing.T) {
	p, backend, _ := newPlayback(t)
	require.NoError(t, p.Open())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := backend.Last().Read(make([]byte, 8))
	assert.Error(t, err)
	assert.False(t, p.IsPlaying())
}

func TestPlaybackOpenFailure(t *testing.T) {
	p, backend, _ := newPlayback(t)
	backend.FailNewQueue(output.ErrorUnavailable)

	playing, err := p.Play(true)
	assert.ErrorIs(t, err, output.ErrorUnavailable)
	assert.False(t, playing)
	assert.False(t, p.IsPlaying())
}

func TestDirectPlaysToEnd(t *testing.T) {
	backend := audiotest.NewQueueBackend()
	src := audiotest.NewConstantSource(48000, 2, 5000, 0.5)
	ext := newExtractor(t, src, testFormat)

	ended := make(chan error, 1)
	d, err := NewDirect(backend, ext, 1024, zerolog.Nop(), func(err error) { ended <- err })
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.Playing())

	q := backend.Last()
	require.Eventually(t, func() bool {
		audiotest.Drain(q, 512)
		select {
		case <-d.Done():
			return true
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)

	assert.NoError(t, <-ended)
	assert.False(t, d.Playing())
	assert.True(t, src.Closed())
}

func TestDirectCloseSkipsEnd(t *testing.T) {
	backend := audiotest.NewQueueBackend()
	src := audiotest.NewConstantSource(48000, 2, 500000, 0.5)
	ext := newExtractor(t, src, testFormat)

	called := false
	d, err := NewDirect(backend, ext, 1024, zerolog.Nop(), func(error) { called = true })
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	<-d.Done()
	assert.False(t, called)
	assert.False(t, d.Playing())
}
