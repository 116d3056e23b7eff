package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/application/metric"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/domain/events"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/asr"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
)

// TranscriptionUsecase проксирует аудио комнаты в ASR и рассылает субтитры участникам.
// Ошибки ASR только логируются и не влияют на запись.
type TranscriptionUsecase interface {
	ForwardChunk(roomID string, data []byte)
	CloseRoom(roomID string)
	CloseAll()

	State(roomID string) domain.LinkState
}

// linkQueueSize - чанков в очереди к ASR, при переполнении поток закрывается
const linkQueueSize = 256

// transcriptionLink owns one upstream stream. Only the connect goroutine touches the stream.
type transcriptionLink struct {
	state  domain.LinkState
	out    chan []byte
	cancel context.CancelFunc

	mu sync.Mutex
}

type transcriptionUsecase struct {
	ctx              context.Context
	dialer           asr.Dialer
	handshakeTimeout time.Duration

	rooms  memory.RoomRegistry
	wsRepo memory.WebsocketConnectionRepository

	links map[string]*transcriptionLink
	mu    sync.Mutex

	wg sync.WaitGroup
}

// NewTranscriptionUsecase с nil dialer отключает расшифровку
func NewTranscriptionUsecase(
	ctx context.Context,
	dialer asr.Dialer,
	handshakeTimeout time.Duration,
	rooms memory.RoomRegistry,
	wsRepo memory.WebsocketConnectionRepository,
) TranscriptionUsecase {
	return &transcriptionUsecase{
		ctx:              ctx,
		dialer:           dialer,
		handshakeTimeout: handshakeTimeout,
		rooms:            rooms,
		wsRepo:           wsRepo,
		links:            make(map[string]*transcriptionLink),
	}
}

// ForwardChunk never blocks on the upstream. Chunks queued while connecting are sent in arrival order.
func (t *transcriptionUsecase) ForwardChunk(roomID string, data []byte) {
	if t.dialer == nil {
		return
	}

	// закрытая ссылка уже удалена из map, на второй попытке создается новая
	for range 2 {
		link := t.acquire(roomID)

		link.mu.Lock()
		if link.state == domain.LinkClosed {
			link.mu.Unlock()
			continue
		}

		select {
		case link.out <- data:
			link.mu.Unlock()
		default:
			link.mu.Unlock()

			slog.Warn(
				"asr queue is full, closing stream",
				slog.String(constant.RoomID, roomID),
				slog.Int(constant.ChunkCount, linkQueueSize),
			)
			t.closeLink(roomID, link)
		}

		return
	}
}

func (t *transcriptionUsecase) CloseRoom(roomID string) {
	t.mu.Lock()
	link, ok := t.links[roomID]
	t.mu.Unlock()

	if ok {
		t.closeLink(roomID, link)
	}
}

func (t *transcriptionUsecase) CloseAll() {
	t.mu.Lock()
	links := make(map[string]*transcriptionLink, len(t.links))
	for roomID, link := range t.links {
		links[roomID] = link
	}
	t.mu.Unlock()

	for roomID, link := range links {
		t.closeLink(roomID, link)
	}

	t.wg.Wait()
}

func (t *transcriptionUsecase) State(roomID string) domain.LinkState {
	t.mu.Lock()
	link, ok := t.links[roomID]
	t.mu.Unlock()

	if !ok {
		return domain.LinkAbsent
	}

	link.mu.Lock()
	defer link.mu.Unlock()

	return link.state
}

// acquire returns the current link for the room, creating it in Connecting state.
func (t *transcriptionUsecase) acquire(roomID string) *transcriptionLink {
	t.mu.Lock()
	defer t.mu.Unlock()

	if link, ok := t.links[roomID]; ok {
		return link
	}

	ctx, cancel := context.WithCancel(t.ctx)
	link := &transcriptionLink{
		state:  domain.LinkConnecting,
		out:    make(chan []byte, linkQueueSize),
		cancel: cancel,
	}
	t.links[roomID] = link

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.connect(ctx, roomID, link)
	}()

	return link
}

func (t *transcriptionUsecase) connect(ctx context.Context, roomID string, link *transcriptionLink) {
	dialCtx := ctx
	if t.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.handshakeTimeout)
		defer cancel()
	}

	stream, err := t.dialer.Dial(dialCtx)
	if err != nil {
		slog.Error(
			"connect to asr",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, roomID),
			slog.Int(constant.ChunkCount, len(link.out)),
		)
		t.closeLink(roomID, link)

		return
	}

	link.mu.Lock()
	if link.state != domain.LinkConnecting {
		link.mu.Unlock()
		_ = stream.Close()

		return
	}
	link.state = domain.LinkOpen
	link.mu.Unlock()

	slog.Info("asr stream opened", slog.String(constant.RoomID, roomID))

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(roomID, link, stream)
	}()

	t.writeLoop(ctx, roomID, link, stream)
}

// writeLoop единственный писатель в поток. Очередь, накопленная до открытия, уходит первой.
func (t *transcriptionUsecase) writeLoop(ctx context.Context, roomID string, link *transcriptionLink, stream asr.Stream) {
	for {
		select {
		case <-ctx.Done():
			_ = stream.CloseSend()
			if err := stream.Close(); err != nil {
				slog.Debug("close asr stream", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
			}

			return
		case chunk := <-link.out:
			if err := stream.WriteAudio(chunk); err != nil {
				slog.Warn(
					"write audio to asr",
					slog.Any(constant.Error, err),
					slog.String(constant.RoomID, roomID),
				)
				t.closeLink(roomID, link)
				_ = stream.Close()

				return
			}
		}
	}
}

func (t *transcriptionUsecase) readLoop(roomID string, link *transcriptionLink, stream asr.Stream) {
	for {
		caption, err := stream.Read()
		if err != nil {
			if t.State(roomID) == domain.LinkOpen {
				slog.Warn(
					"asr stream closed",
					slog.Any(constant.Error, err),
					slog.String(constant.RoomID, roomID),
				)
			}
			t.closeLink(roomID, link)

			return
		}

		if strings.TrimSpace(caption.Text) == "" {
			continue
		}

		metric.IncrementCaptions(caption.IsFinal)

		broadcast(t.wsRepo, t.rooms.Members(roomID), events.Out(events.CaptionEvent, caption))
	}
}

// closeLink is idempotent and never blocks on I/O. The writer sends the
// end-of-stream marker and closes the stream once the link context is cancelled.
func (t *transcriptionUsecase) closeLink(roomID string, link *transcriptionLink) {
	t.mu.Lock()
	if t.links[roomID] == link {
		delete(t.links, roomID)
	}
	t.mu.Unlock()

	link.mu.Lock()
	defer link.mu.Unlock()

	if !link.state.CanTransition(domain.LinkClosed) {
		return
	}

	link.state = domain.LinkClosed
	link.cancel()
}
