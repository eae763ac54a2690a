package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/voicebridge/audio"
	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected 上游连接尚未就绪或已关闭
	ErrNotConnected = errors.New("session: provider connection is not open")
	// ErrClosed 会话已结束
	ErrClosed = errors.New("session: closed")
	// ErrAudioThrottled 输入音频帧超过速率限制被丢弃
	ErrAudioThrottled = errors.New("session: inbound audio rate exceeded")
	// ErrAlreadyRunning Run 被调用了两次
	ErrAlreadyRunning = errors.New("session: already running")
)

// Config 会话参数
type Config struct {
	// Session 在上游 ready 后发送的会话配置
	Session provider.SessionConfig
	// MaxBufferBytes 单次响应待解码输出音频上限，<=0 使用 audio.DefaultMaxBufferBytes
	MaxBufferBytes int
	// AudioFramesPerSecond 输入音频帧速率上限，<=0 不限制
	AudioFramesPerSecond float64
	AudioFrameBurst      int
	// OnStateChange 在锁外同步调用
	OnStateChange func(id string, from, to State)
}

// Session 一次客户端到 provider 的实时语音会话
type Session struct {
	id        string
	cfg       Config
	connector Connector
	logger    *zap.Logger
	limiter   *rate.Limiter
	createdAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan request
	done    chan struct{}
	started atomic.Bool

	mu       sync.RWMutex
	state    State
	provider string

	// 以下字段只由 Run 的 goroutine 访问
	conn       provider.RealtimeConn
	buffer     *audio.Buffer
	discarding bool
}

type requestKind int

const (
	requestAudio requestKind = iota
	requestCommit
)

type request struct {
	kind    requestKind
	samples []int16
	reply   chan error
}

type inbound struct {
	msg ClientMessage
	err error
}

type connectResult struct {
	conn provider.RealtimeConn
	err  error
}

// errClientGone 向客户端写入失败，会话按客户端断开处理
var errClientGone = errors.New("session: client connection lost")

// New 创建会话。调用 Run 之后才会建立上游连接。
func New(cfg Config, connector Connector, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        id,
		cfg:       cfg,
		connector: connector,
		logger:    logger.With(zap.String("component", "session"), zap.String("session_id", id)),
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan request),
		done:      make(chan struct{}),
		state:     StateInit,
		buffer:    audio.NewBuffer(cfg.MaxBufferBytes),
	}
	if cfg.AudioFramesPerSecond > 0 {
		burst := cfg.AudioFrameBurst
		if burst <= 0 {
			burst = int(cfg.AudioFramesPerSecond) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AudioFramesPerSecond), burst)
	}
	return s
}

// ID returns the opaque session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Provider 返回上游 provider id，连接建立前为空
func (s *Session) Provider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Done 在 Run 返回后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("session state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(s.id, from, to)
	}
}

// Run 建立上游连接并驱动会话直到任一端结束。
// 客户端断开或 ctx 取消时返回 nil；上游错误、断开或建连失败时返回对应错误。
// 返回前上游连接与 t 都已关闭。
func (s *Session) Run(ctx context.Context, t Transport) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	var wg sync.WaitGroup
	clientCh := make(chan inbound)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readClient(t, clientCh)
	}()

	s.setState(StateConnecting)
	connCh := make(chan connectResult, 1)
	go func() {
		conn, err := s.connector.Connect(s.ctx, s.cfg.Session)
		connCh <- connectResult{conn: conn, err: err}
	}()

	defer func() {
		s.cancel()
		if connCh != nil {
			go closePending(connCh)
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.buffer.Reset()
		cause := err
		if closeErr := t.Close(cause); closeErr != nil {
			s.logger.Debug("client transport close", zap.Error(closeErr))
		}
		wg.Wait()
		s.logger.Info("session ended", zap.Stringer("state", s.State()))
	}()

	var events <-chan provider.Event
	for {
		var stepErr error
		select {
		case <-s.ctx.Done():
			s.setState(StateClosed)
			return nil

		case res := <-connCh:
			connCh = nil
			if res.err != nil {
				if s.ctx.Err() != nil {
					s.setState(StateClosed)
					return nil
				}
				s.logger.Warn("upstream connect failed", zap.Error(res.err))
				s.setState(StateError)
				_ = s.emit(t, errorMessage(res.err.Error()))
				return res.err
			}
			s.attach(res.conn)
			events = res.conn.Events()

		case in := <-clientCh:
			if in.err != nil && !errors.Is(in.err, ErrMalformedMessage) {
				s.logger.Info("client disconnected", zap.Error(in.err))
				s.setState(StateClosed)
				return nil
			}
			stepErr = s.handleClient(t, in)

		case req := <-s.inbox:
			reqErr := s.handleRequest(req)
			req.reply <- reqErr
			if reqErr != nil && !isSoft(reqErr) {
				stepErr = s.fail(t, reqErr)
			}

		case ev, ok := <-events:
			if !ok {
				cause := s.conn.Err()
				if cause == nil {
					cause = types.NewError(types.KindNetwork, "provider closed the connection").WithProvider(s.conn.Provider())
				}
				return s.fail(t, cause)
			}
			stepErr = s.handleEvent(t, ev)
		}

		if stepErr != nil {
			if errors.Is(stepErr, errClientGone) {
				s.setState(StateClosed)
				return nil
			}
			return stepErr
		}
	}
}

func (s *Session) attach(conn provider.RealtimeConn) {
	s.conn = conn
	s.mu.Lock()
	s.provider = conn.Provider()
	s.mu.Unlock()
	s.logger = s.logger.With(zap.String("provider", conn.Provider()))
	s.logger.Info("upstream connected")
}

// closePending 关闭退出后才返回的连接
func closePending(ch <-chan connectResult) {
	if res := <-ch; res.conn != nil {
		_ = res.conn.Close()
	}
}

func (s *Session) readClient(t Transport, out chan<- inbound) {
	for {
		msg, err := t.Read(s.ctx)
		select {
		case out <- inbound{msg: msg, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, ErrMalformedMessage) {
			return
		}
	}
}

// emit 向客户端写一条消息，失败时返回 errClientGone
func (s *Session) emit(t Transport, msg ServerMessage) error {
	if err := t.Write(s.ctx, msg); err != nil {
		s.logger.Debug("client write failed", zap.String("type", msg.Type), zap.Error(err))
		return fmt.Errorf("%w: %v", errClientGone, err)
	}
	return nil
}

// fail 进入 ERROR，通知客户端，返回分类后的错误
func (s *Session) fail(t Transport, err error) error {
	classified := types.Classify(err, s.Provider())
	s.setState(StateError)
	s.logger.Warn("session failed",
		zap.String("kind", string(classified.Kind)),
		zap.Error(classified),
	)
	_ = s.emit(t, errorMessage(classified.Error()))
	return classified
}

func isSoft(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrAudioThrottled)
}

// ============================================================
// 客户端消息
// ============================================================

func (s *Session) handleClient(t Transport, in inbound) error {
	if in.err != nil {
		s.logger.Debug("malformed client message", zap.Error(in.err))
		return s.emit(t, errorMessage(in.err.Error()))
	}

	switch in.msg.Type {
	case TypeAudioInput:
		err := s.submit(in.msg.Data)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrNotConnected):
			s.logger.Debug("audio dropped before session configured", zap.Int("samples", len(in.msg.Data)))
			return nil
		case errors.Is(err, ErrAudioThrottled):
			s.logger.Warn("inbound audio frame dropped", zap.Int("samples", len(in.msg.Data)))
			return nil
		default:
			return s.fail(t, err)
		}

	case TypeCommitAudio:
		err := s.commit()
		if errors.Is(err, ErrNotConnected) {
			return s.emit(t, errorMessage(err.Error()))
		}
		if err != nil {
			return s.fail(t, err)
		}
		return nil

	default:
		return s.emit(t, errorMessage(fmt.Sprintf("unknown message type %q", in.msg.Type)))
	}
}

func (s *Session) handleRequest(req request) error {
	switch req.kind {
	case requestAudio:
		err := s.submit(req.samples)
		if errors.Is(err, ErrNotConnected) {
			return nil
		}
		return err
	case requestCommit:
		return s.commit()
	default:
		return fmt.Errorf("session: unknown request %d", req.kind)
	}
}

// submit 编码并转发一段输入音频
func (s *Session) submit(samples []int16) error {
	if !s.State().connected() {
		return ErrNotConnected
	}
	if len(samples) == 0 {
		return nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrAudioThrottled
	}
	return s.conn.AppendAudio(s.ctx, audio.EncodePCM16(samples))
}

// commit 提交输入缓冲并请求响应
func (s *Session) commit() error {
	if !s.State().connected() {
		return ErrNotConnected
	}
	if err := s.conn.Commit(s.ctx); err != nil {
		return err
	}
	if err := s.conn.RequestResponse(s.ctx); err != nil {
		return err
	}
	s.setState(StateProcessing)
	return nil
}

// ============================================================
// 上游事件
// ============================================================

func (s *Session) handleEvent(t Transport, ev provider.Event) error {
	switch ev.Type {
	case provider.EventReady:
		if s.State() != StateConnecting {
			s.logger.Debug("duplicate ready event ignored")
			return nil
		}
		if err := s.conn.Configure(s.ctx, s.cfg.Session); err != nil {
			return s.fail(t, err)
		}
		s.setState(StateConfigured)
		return s.emit(t, ServerMessage{Type: TypeConnected})

	case provider.EventConfigured:
		s.logger.Debug("session configuration acknowledged")
		return nil

	case provider.EventSpeechStarted:
		if st := s.State(); st == StateConfigured || st == StateIdle {
			s.setState(StateListening)
		}
		return s.emit(t, ServerMessage{Type: TypeSpeechStarted})

	case provider.EventSpeechStopped:
		if s.State() == StateListening {
			s.setState(StateProcessing)
		}
		return s.emit(t, ServerMessage{Type: TypeSpeechStopped})

	case provider.EventTranscriptInput:
		return s.emit(t, ServerMessage{Type: TypeTranscriptInput, Transcript: ev.Transcript})

	case provider.EventAudioDelta:
		return s.appendAudio(t, ev.Audio)

	case provider.EventAudioDone:
		return s.flushAudio(t)

	case provider.EventResponseDone:
		if s.buffer.Pending() {
			if err := s.flushAudio(t); err != nil {
				return err
			}
		}
		s.discarding = false
		s.setState(StateIdle)
		return s.emit(t, ServerMessage{Type: TypeResponseComplete})

	case provider.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "provider error"
		}
		kind := types.ClassifyMessage(ev.Code + " " + msg)
		return s.fail(t, types.NewError(kind, msg).WithProvider(s.Provider()))

	default:
		s.logger.Debug("unhandled provider event", zap.String("type", string(ev.Type)))
		return nil
	}
}

func (s *Session) appendAudio(t Transport, fragment string) error {
	if s.discarding {
		return nil
	}
	if s.State() != StateProcessing {
		s.setState(StateProcessing)
	}
	if err := s.buffer.Append(fragment); err != nil {
		s.buffer.Reset()
		s.discarding = true
		s.logger.Warn("output audio dropped", zap.Error(err))
		return s.emit(t, errorMessage("response audio exceeded the output buffer and was dropped"))
	}
	return nil
}

// flushAudio 解码全部待发片段并作为一条 audio_output 发出
func (s *Session) flushAudio(t Transport) error {
	s.setState(StateResponding)
	if !s.buffer.Pending() {
		return nil
	}

	frame, err := s.buffer.Flush()
	if err != nil {
		s.logger.Warn("output audio decode failed", zap.Int("fragments", frame.Fragments), zap.Error(err))
		return s.emit(t, errorMessage("provider sent malformed audio"))
	}
	if frame.OddByte {
		s.logger.Warn("output audio had a trailing half sample", zap.Int("fragments", frame.Fragments))
	}
	if len(frame.Samples) == 0 {
		return nil
	}
	return s.emit(t, ServerMessage{Type: TypeAudioOutput, Data: frame.Samples})
}

// ============================================================
// 外部调用
// ============================================================

// SubmitAudio 转发一段 PCM16 输入音频。
// 会话配置完成前调用会被静默丢弃并返回 nil；会话结束后返回 ErrClosed。
func (s *Session) SubmitAudio(ctx context.Context, samples []int16) error {
	st := s.State()
	if st.Terminal() {
		return ErrClosed
	}
	if !st.connected() {
		return nil
	}
	return s.enqueue(ctx, request{kind: requestAudio, samples: samples}, ErrClosed)
}

// CommitAndRespond 结束当前语句并请求 provider 生成响应。
// 没有可用的上游连接时返回 ErrNotConnected。
func (s *Session) CommitAndRespond(ctx context.Context) error {
	if !s.State().connected() {
		return ErrNotConnected
	}
	return s.enqueue(ctx, request{kind: requestCommit}, ErrNotConnected)
}

func (s *Session) enqueue(ctx context.Context, req request, closedErr error) error {
	req.reply = make(chan error, 1)
	select {
	case s.inbox <- req:
	case <-s.ctx.Done():
		return closedErr
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 结束会话并等待 Run 返回，可重复调用
func (s *Session) Close() error {
	s.cancel()
	if s.started.Load() {
		<-s.done
	}
	return nil
}
