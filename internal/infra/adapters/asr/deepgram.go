package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qrave1/RoomScribe/internal/application/config"
	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/domain"
)

const writeWait = 10 * time.Second

var ErrStreamClosed = errors.New("asr stream closed")

// Dialer открывает один поток распознавания на комнату
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Stream - потоковое соединение с ASR. Запись и чтение можно вызывать из разных горутин.
type Stream interface {
	WriteAudio(data []byte) error
	// Read blocks until the next transcript event or a connection error.
	Read() (domain.Caption, error)
	// CloseSend sends the end-of-stream marker. The server flushes finals and closes.
	CloseSend() error
	Close() error
}

type deepgramDialer struct {
	cfg    config.ASRConfig
	dialer *websocket.Dialer
}

func NewDeepgramDialer(cfg config.ASRConfig) Dialer {
	return &deepgramDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

func (d *deepgramDialer) Dial(ctx context.Context) (Stream, error) {
	streamURL, err := d.streamURL()
	if err != nil {
		return nil, fmt.Errorf("build asr url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	if d.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := d.dialer.DialContext(ctx, streamURL, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial asr: status %d: %w", resp.StatusCode, err)
		}

		return nil, fmt.Errorf("dial asr: %w", err)
	}

	return &deepgramStream{conn: conn}, nil
}

func (d *deepgramDialer) streamURL() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("language", d.cfg.Language)
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")

	// без encoding сервис сам определяет контейнер (webm/opus из браузера)
	if d.cfg.Encoding != "" {
		q.Set("encoding", d.cfg.Encoding)
	}
	if d.cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

type deepgramStream struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func (s *deepgramStream) WriteAudio(data []byte) error {
	return s.write(websocket.BinaryMessage, data)
}

func (s *deepgramStream) CloseSend() error {
	return s.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

func (s *deepgramStream) Read() (domain.Caption, error) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return domain.Caption{}, err
		}

		caption, ok, err := ParseEvent(raw)
		if err != nil {
			// битый кадр не должен рвать поток субтитров
			slog.Warn("skip malformed asr event", slog.Any(constant.Error, err), slog.Int("size", len(raw)))
			continue
		}

		if ok {
			return caption, nil
		}
	}
}

func (s *deepgramStream) Close() error {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *deepgramStream) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return s.conn.WriteMessage(messageType, data)
}

type event struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// ParseEvent converts one upstream frame into a caption. ok is false for metadata
// and other events that carry no transcript.
func ParseEvent(raw []byte) (caption domain.Caption, ok bool, err error) {
	var e event
	if err = json.Unmarshal(raw, &e); err != nil {
		return domain.Caption{}, false, err
	}

	switch e.Type {
	case "Results", "":
	case "UtteranceEnd":
		return domain.Caption{IsFinal: true}, true, nil
	default:
		return domain.Caption{}, false, nil
	}

	if len(e.Channel.Alternatives) == 0 {
		return domain.Caption{}, false, nil
	}

	return domain.Caption{
		Text:    e.Channel.Alternatives[0].Transcript,
		IsFinal: e.IsFinal || e.SpeechFinal,
	}, true, nil
}
