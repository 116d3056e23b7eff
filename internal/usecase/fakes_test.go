package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"

	"github.com/qrave1/RoomScribe/internal/application/background"
	"github.com/qrave1/RoomScribe/internal/application/config"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/asr"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
	postrepo "github.com/qrave1/RoomScribe/internal/infra/adapters/postgres/repository"
)

var (
	errUpload  = errors.New("sink unavailable")
	errUpClose = errors.New("upstream closed")
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeWSRepo struct {
	mu      sync.Mutex
	sent    map[uuid.UUID][]events.Outgoing
	offline map[uuid.UUID]bool
}

func newFakeWSRepo() *fakeWSRepo {
	return &fakeWSRepo{
		sent:    make(map[uuid.UUID][]events.Outgoing),
		offline: make(map[uuid.UUID]bool),
	}
}

func (f *fakeWSRepo) Add(uuid.UUID, *websocket.Conn) {}
func (f *fakeWSRepo) Remove(uuid.UUID)               {}

func (f *fakeWSRepo) Has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.offline[id]
}

func (f *fakeWSRepo) Write(id uuid.UUID, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offline[id] {
		return false
	}

	msg, _ := payload.(events.Outgoing)
	f.sent[id] = append(f.sent[id], msg)

	return true
}

func (f *fakeWSRepo) messages(id uuid.UUID) []events.Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Outgoing(nil), f.sent[id]...)
}

func (f *fakeWSRepo) types(id uuid.UUID) []string {
	var types []string
	for _, msg := range f.messages(id) {
		types = append(types, msg.Type)
	}
	return types
}

func (f *fakeWSRepo) ofType(id uuid.UUID, eventType string) []events.Outgoing {
	var out []events.Outgoing
	for _, msg := range f.messages(id) {
		if msg.Type == eventType {
			out = append(out, msg)
		}
	}
	return out
}

type fakeStream struct {
	mu        sync.Mutex
	written   [][]byte
	closeSent bool
	writeErr  error
	// block, если задан, держит WriteAudio до закрытия канала
	block     chan struct{}

	captions  chan domain.Caption
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		captions: make(chan domain.Caption, 16),
		done:     make(chan struct{}),
	}
}

func (s *fakeStream) WriteAudio(data []byte) error {
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, data)

	return nil
}

func (s *fakeStream) Read() (domain.Caption, error) {
	select {
	case c := <-s.captions:
		return c, nil
	case <-s.done:
		return domain.Caption{}, errUpClose
	}
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSent = true
	return nil
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *fakeStream) writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

func (s *fakeStream) sentClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSent
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// fakeDialer hands out streams in order. With gate set, Dial blocks until the gate is closed.
type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	errs    []error
	calls   int
	gate    chan struct{}
	block   chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (asr.Stream, error) {
	d.mu.Lock()
	call := d.calls
	d.calls++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if call < len(d.errs) && d.errs[call] != nil {
		return nil, d.errs[call]
	}

	stream := newFakeStream()
	stream.block = d.block
	d.streams = append(d.streams, stream)

	return stream, nil
}

func (d *fakeDialer) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type uploadCall struct {
	data     []byte
	filename string
	subdir   string
}

type fakeUploader struct {
	mu       sync.Mutex
	failures int // -1 - всегда ошибка
	calls    []uploadCall
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, filename, subdir string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.calls = append(u.calls, uploadCall{data: data, filename: filename, subdir: subdir})

	if u.failures != 0 {
		if u.failures > 0 {
			u.failures--
		}
		return "", errUpload
	}

	return "https://cdn.test/" + subdir + "/" + filename, nil
}

func (u *fakeUploader) setFailures(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failures = n
}

func (u *fakeUploader) uploads() []uploadCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]uploadCall(nil), u.calls...)
}

type harness struct {
	clock    *fakeClock
	rooms    memory.RoomRegistry
	ws       *fakeWSRepo
	meetings *postrepo.MockMeetingRepository
	history  *postrepo.MockHistoryRepository
	uploader *fakeUploader
	dialer   *fakeDialer
	runner   *background.Runner

	audio         AudioBufferUsecase
	transcription TranscriptionUsecase
	recording     RecordingUsecase
	room          RoomUsecase
	signaling     SignalingUsecase
}

type harnessOptions struct {
	limits          domain.RecordingLimits
	checkpointEvery int
	recording       config.RecordingConfig
	dialer          *fakeDialer
	handshake       time.Duration
}

func defaultHarnessOptions() harnessOptions {
	return harnessOptions{
		limits:          domain.RecordingLimits{MaxBytes: 1 << 20, MaxDuration: time.Hour},
		checkpointEvery: 2,
		recording: config.RecordingConfig{
			UploadAttempts: 2,
			UploadBackoff:  time.Millisecond,
		},
	}
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		clock:    newFakeClock(),
		rooms:    memory.NewRoomRegistry(),
		ws:       newFakeWSRepo(),
		meetings: new(postrepo.MockMeetingRepository),
		history:  new(postrepo.MockHistoryRepository),
		uploader: &fakeUploader{},
		dialer:   opts.dialer,
		runner:   background.NewRunner(ctx, 8, time.Second),
	}

	var dialer asr.Dialer
	if opts.dialer != nil {
		dialer = opts.dialer
	}

	h.audio = NewAudioBufferUsecase(h.rooms, h.meetings, h.runner, opts.limits, opts.checkpointEvery, h.clock.Now)
	h.transcription = NewTranscriptionUsecase(ctx, dialer, opts.handshake, h.rooms, h.ws)
	h.recording = NewRecordingUsecase(
		ctx, h.audio, h.transcription, h.rooms, h.ws,
		h.meetings, h.history, h.uploader, h.runner,
		opts.recording, "recordings", h.clock.Now,
	)
	h.room = NewRoomUsecase(h.rooms, h.ws, h.meetings, h.runner, h.recording)
	h.signaling = NewSignalingUsecase(h.rooms, h.ws)

	t.Cleanup(func() {
		h.transcription.CloseAll()
		h.recording.Wait()
		h.runner.Wait()
	})

	return h
}

// allowMeetingWrites регистрирует успешные ответы репозиториев. Вызывать после
// специфичных ожиданий теста: testify берет первое подходящее.
func (h *harness) allowMeetingWrites() {
	h.meetings.On("EnsureActive", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.meetings.On("StartRecording", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.meetings.On("Checkpoint", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.meetings.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.meetings.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.meetings.On("GetByRoomID", mock.Anything, mock.Anything).Return(nil, postrepo.ErrMeetingNotFound).Maybe()
	h.history.On("Add", mock.Anything, mock.Anything).Return(nil).Maybe()
}

// hostRoom registers a host and returns its connection id.
func (h *harness) hostRoom(t *testing.T, roomID string, userID uuid.UUID) uuid.UUID {
	t.Helper()

	host := uuid.New()
	if err := h.room.RegisterHost(context.Background(), host, userID, roomID); err != nil {
		t.Fatalf("register host: %v", err)
	}

	return host
}

func (h *harness) joinGuest(t *testing.T, roomID string, host uuid.UUID) uuid.UUID {
	t.Helper()

	guest := uuid.New()
	ctx := context.Background()

	if err := h.room.RequestGuestJoin(ctx, guest, events.GuestJoinEvent{RoomID: roomID, DeviceName: "phone"}); err != nil {
		t.Fatalf("request join: %v", err)
	}
	if err := h.room.ApproveGuest(ctx, host, guest); err != nil {
		t.Fatalf("approve guest: %v", err)
	}

	return guest
}
