package builder

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"resume-builder-go/internal/constants"
	"resume-builder-go/internal/logger"
)

// SessionStore 会话的持久化存储。存储层是权威状态，控制器不维护
// 进程内缓存，保证多实例部署下的一致性。
type SessionStore interface {
	// Get 返回会话，不存在时返回ErrSessionNotFound
	Get(ctx context.Context, id string) (*BuilderSession, error)
	// Put 全量覆盖写入会话并刷新过期时间
	Put(ctx context.Context, session *BuilderSession) error
	// Delete 删除会话
	Delete(ctx context.Context, id string) error
}

// SessionLocker 可选的跨实例会话锁。会话存储实现该接口时，控制器在
// 本地互斥之外再持有分布式锁，覆盖多实例部署下同一会话的并发请求。
type SessionLocker interface {
	// AcquireSessionLock 尝试获取会话锁，成功返回释放令牌，已被持有返回空串
	AcquireSessionLock(ctx context.Context, id string, expiration time.Duration) (string, error)
	// ReleaseSessionLock 用令牌释放会话锁，令牌不匹配时不释放
	ReleaseSessionLock(ctx context.Context, id string, token string) (bool, error)
}

// ResumeStore 简历的持久化存储
type ResumeStore interface {
	// CreateResume 持久化一份新简历并返回其ID。
	// 某所有者的第一份简历被标记为主简历，该策略由存储层在事务中保证。
	CreateResume(ctx context.Context, resume *Resume) (string, error)
}

// SessionArchiver 完成会话的快照归档，尽力而为
type SessionArchiver interface {
	ArchiveSession(ctx context.Context, session *BuilderSession) error
}

// EventPublisher 简历创建事件的发布方，尽力而为
type EventPublisher interface {
	PublishResumeCreated(ctx context.Context, resumeID string, ownerID string, resumeName string) error
}

// Controller 构建器会话控制器：对外提供start/message/complete三个操作，
// 内部对同一会话的请求做串行化。
type Controller struct {
	store   SessionStore
	machine *Machine
	resumes ResumeStore

	// 可选协作方
	archiver  SessionArchiver
	publisher EventPublisher

	locks sessionLocks
}

// ControllerOption 配置控制器的可选协作方
type ControllerOption func(*Controller)

// WithSessionArchiver 设置完成会话的归档器
func WithSessionArchiver(a SessionArchiver) ControllerOption {
	return func(c *Controller) {
		c.archiver = a
	}
}

// WithEventPublisher 设置简历创建事件的发布方
func WithEventPublisher(p EventPublisher) ControllerOption {
	return func(c *Controller) {
		c.publisher = p
	}
}

// NewController 创建控制器
func NewController(store SessionStore, machine *Machine, resumes ResumeStore, options ...ControllerOption) *Controller {
	c := &Controller{
		store:   store,
		machine: machine,
		resumes: resumes,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// StartResult start操作的返回载荷
type StartResult struct {
	SessionID string
	Step      Step
	Progress  int
	Response  string
	InputHint string
}

// MessageResult message操作的返回载荷，附带完整数据快照供客户端实时预览
type MessageResult struct {
	Step      Step
	Progress  int
	Response  string
	InputHint string
	Options   []ChoiceOption
	Snapshot  CollectedData
}

// CompleteResult complete操作的返回载荷
type CompleteResult struct {
	ResumeID   string
	ResumeName string
}

// Start 创建一个新会话，可选seed数据作为初始收集数据
func (c *Controller) Start(ctx context.Context, ownerID string, seed CollectedData) (*StartResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, &PersistenceError{Op: "generate_session_id", Err: err}
	}

	data := seed
	if data == nil {
		data = CollectedData{}
	}

	now := time.Now()
	session := &BuilderSession{
		ID:        id.String(),
		OwnerID:   ownerID,
		Step:      StepName,
		Data:      data,
		Progress:  ProgressFor(StepName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.Put(ctx, session); err != nil {
		return nil, &PersistenceError{Op: "put_session", Err: err}
	}

	welcome := c.machine.WelcomePrompt()
	logger.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("owner_id", ownerID).
		Msg("构建器会话已创建")

	return &StartResult{
		SessionID: session.ID,
		Step:      session.Step,
		Progress:  session.Progress,
		Response:  welcome.Response,
		InputHint: welcome.InputHint,
	}, nil
}

// Message 处理一条用户消息：加载会话、执行状态转移、合并数据并全量写回
func (c *Controller) Message(ctx context.Context, sessionID string, ownerID string, input string) (*MessageResult, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()
	release := c.lockSession(ctx, sessionID)
	defer release()

	session, err := c.load(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	result := c.machine.Process(ctx, session.Step, input, session.Data)

	session.Data = DeepMerge(session.Data, result.DataDelta)
	session.Step = result.NextStep
	// 进度单调不减：循环回访的步骤不会降低已达到的进度
	if result.Progress > session.Progress {
		session.Progress = result.Progress
	}
	session.UpdatedAt = time.Now()

	if err := c.store.Put(ctx, session); err != nil {
		return nil, &PersistenceError{Op: "put_session", Err: err}
	}

	return &MessageResult{
		Step:      session.Step,
		Progress:  session.Progress,
		Response:  result.Response,
		InputHint: result.InputHint,
		Options:   result.Options,
		Snapshot:  session.Data,
	}, nil
}

// Complete 固化会话为简历：持久化简历、归档快照、删除会话、发布事件。
// 归档与事件发布失败只记录日志，不影响操作结果。
func (c *Controller) Complete(ctx context.Context, sessionID string, ownerID string) (*CompleteResult, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()
	release := c.lockSession(ctx, sessionID)
	defer release()

	session, err := c.load(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	resume := Finalize(ownerID, session.Data)
	resumeID, err := c.resumes.CreateResume(ctx, resume)
	if err != nil {
		return nil, &PersistenceError{Op: "create_resume", Err: err}
	}

	if c.archiver != nil {
		if err := c.archiver.ArchiveSession(ctx, session); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("归档会话快照失败")
		}
	}

	if err := c.store.Delete(ctx, sessionID); err != nil {
		// 简历已创建，会话删除失败由TTL兜底回收
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("删除已完成会话失败")
	}

	if c.publisher != nil {
		if err := c.publisher.PublishResumeCreated(ctx, resumeID, ownerID, resume.Name); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resumeID).Msg("发布简历创建事件失败")
		}
	}

	logger.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("resume_id", resumeID).
		Msg("构建器会话已完成")

	return &CompleteResult{ResumeID: resumeID, ResumeName: resume.Name}, nil
}

// lockSession 在本地互斥之外尽力持有跨实例锁。获取失败只告警降级：
// 本实例内仍由本地互斥串行化，会话为全量覆盖写入，交错写不会撕裂记录。
func (c *Controller) lockSession(ctx context.Context, sessionID string) (release func()) {
	locker, ok := c.store.(SessionLocker)
	if !ok {
		return func() {}
	}

	token, err := locker.AcquireSessionLock(ctx, sessionID, constants.DefaultSessionLockTTL)
	if err != nil || token == "" {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("获取会话分布式锁失败，降级为本地串行化")
		return func() {}
	}

	return func() {
		if _, err := locker.ReleaseSessionLock(ctx, sessionID, token); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("释放会话分布式锁失败，等待其过期自动释放")
		}
	}
}

// load 加载会话并校验所有权
func (c *Controller) load(ctx context.Context, sessionID string, ownerID string) (*BuilderSession, error) {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return session, nil
}

// sessionLocks 按会话ID的互斥锁，串行化同一会话的并发请求
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (s *sessionLocks) lock(id string) (unlock func()) {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sessionLock)
	}
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
