package builder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResumeStore 测试用简历存储，记录收到的简历
type stubResumeStore struct {
	created []*Resume
	err     error
}

func (s *stubResumeStore) CreateResume(ctx context.Context, resume *Resume) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.created = append(s.created, resume)
	return fmt.Sprintf("resume-%d", len(s.created)), nil
}

// stubArchiver 测试用归档器
type stubArchiver struct {
	archived []*BuilderSession
	err      error
}

func (s *stubArchiver) ArchiveSession(ctx context.Context, session *BuilderSession) error {
	if s.err != nil {
		return s.err
	}
	s.archived = append(s.archived, session)
	return nil
}

// stubPublisher 测试用事件发布方
type stubPublisher struct {
	published []string
	err       error
}

func (s *stubPublisher) PublishResumeCreated(ctx context.Context, resumeID, ownerID, resumeName string) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, resumeID)
	return nil
}

// lockingSessionStore 记录分布式锁调用的会话存储
type lockingSessionStore struct {
	*MemorySessionStore
	acquires int
	releases int
	deny     bool
}

func (s *lockingSessionStore) AcquireSessionLock(ctx context.Context, id string, expiration time.Duration) (string, error) {
	s.acquires++
	if s.deny {
		return "", nil
	}
	return fmt.Sprintf("token-%d", s.acquires), nil
}

func (s *lockingSessionStore) ReleaseSessionLock(ctx context.Context, id string, token string) (bool, error) {
	s.releases++
	return true, nil
}

func newTestController(gen ContentGenerator, options ...ControllerOption) (*Controller, *MemorySessionStore, *stubResumeStore) {
	store := NewMemorySessionStore()
	resumes := &stubResumeStore{}
	c := NewController(store, NewMachine(gen), resumes, options...)
	return c, store, resumes
}

func TestControllerStart(t *testing.T) {
	c, store, _ := newTestController(&scriptedGenerator{})

	result, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, StepName, result.Step)
	assert.Equal(t, ProgressFor(StepName), result.Progress)
	assert.Contains(t, result.Response, "full name")
	assert.Equal(t, InputHintText, result.InputHint)
	assert.Equal(t, 1, store.Len(), "会话应已写入存储")

	stored, err := store.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", stored.OwnerID)
}

func TestControllerStartWithSeed(t *testing.T) {
	c, store, _ := newTestController(&scriptedGenerator{})

	seed := CollectedData{"name": "Jane Doe", "email": "jane@example.com"}
	result, err := c.Start(context.Background(), "owner-1", seed)
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", stored.Data.String("name"), "seed数据应作为初始收集数据")
	assert.Equal(t, "jane@example.com", stored.Data.String("email"))
}

func TestControllerMessageSessionNotFound(t *testing.T) {
	c, _, _ := newTestController(&scriptedGenerator{})

	_, err := c.Message(context.Background(), "missing", "owner-1", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestControllerOwnerMismatch(t *testing.T) {
	c, _, _ := newTestController(&scriptedGenerator{})

	start, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	_, err = c.Message(context.Background(), start.SessionID, "owner-2", "Jane")
	assert.ErrorIs(t, err, ErrUnauthorized, "非所有者不应能推进会话")

	_, err = c.Complete(context.Background(), start.SessionID, "owner-2")
	assert.ErrorIs(t, err, ErrUnauthorized, "非所有者不应能完成会话")
}

func TestControllerMessagePersistsAndSnapshots(t *testing.T) {
	c, store, _ := newTestController(&scriptedGenerator{})

	start, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	result, err := c.Message(context.Background(), start.SessionID, "owner-1", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, StepEmail, result.Step)
	assert.Equal(t, "Jane Doe", result.Snapshot.String("name"), "快照应包含本次合并后的数据")

	stored, err := store.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StepEmail, stored.Step, "状态转移应已持久化")
	assert.Equal(t, "Jane Doe", stored.Data.String("name"))
}

// TestControllerFullConversation Jane Doe从欢迎到完成的完整对话
func TestControllerFullConversation(t *testing.T) {
	gen := &scriptedGenerator{
		bullets:   []string{"Led migration of legacy services to Go, cutting latency by 40%"},
		summaries: []string{"Engineer with five years of backend experience."},
	}
	archiver := &stubArchiver{}
	publisher := &stubPublisher{}
	c, store, resumes := newTestController(gen, WithSessionArchiver(archiver), WithEventPublisher(publisher))

	ctx := context.Background()
	start, err := c.Start(ctx, "owner-1", nil)
	require.NoError(t, err)

	script := []struct {
		input    string
		wantStep Step
	}{
		{"Jane Doe", StepEmail},
		{"jane@example.com", StepPhone},
		{"skip", StepLocation},
		{"Austin, TX", StepEducationSchool},
		{"State University", StepEducationDegree},
		{"BS Computer Science", StepEducationYear},
		{"2020", StepJobTitle},
		{"Software Engineer", StepJobCompany},
		{"Acme Corp", StepJobDates},
		{"2020 - 2024", StepJobDescription},
		{"moved old services to go", StepBulletReview},
		{"use it", StepMoreBullets},
		{"no", StepMoreExperience},
		{"no", StepSkills},
		{"Go, SQL, Docker", StepSummaryStyle},
		{"professional", StepSummaryReview},
		{"use it", StepComplete},
	}

	progress := start.Progress
	for _, turn := range script {
		result, err := c.Message(ctx, start.SessionID, "owner-1", turn.input)
		require.NoError(t, err, "输入 %q 不应失败", turn.input)
		assert.Equal(t, turn.wantStep, result.Step, "输入 %q 后的步骤不符", turn.input)
		assert.GreaterOrEqual(t, result.Progress, progress, "进度应单调不减")
		progress = result.Progress
	}
	assert.Equal(t, 100, progress)

	complete, err := c.Complete(ctx, start.SessionID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "resume-1", complete.ResumeID)
	assert.Equal(t, "Jane Doe's Resume", complete.ResumeName)

	require.Len(t, resumes.created, 1)
	resume := resumes.created[0]
	assert.Equal(t, "owner-1", resume.OwnerID)
	assert.Equal(t, "jane@example.com", resume.Contact.Email)
	assert.Equal(t, "", resume.Contact.Phone, "跳过的电话应为空串")
	require.Len(t, resume.Experience, 1)
	assert.Equal(t, "Software Engineer", resume.Experience[0].Title)
	require.Len(t, resume.Experience[0].Bullets, 1)
	assert.Contains(t, resume.Experience[0].Bullets[0], "Led migration")
	require.Len(t, resume.Education, 1)
	assert.Equal(t, "State University", resume.Education[0].School)
	assert.Equal(t, []string{"Go", "SQL", "Docker"}, resume.Skills)
	assert.Equal(t, "Engineer with five years of backend experience.", resume.Summary)

	assert.Equal(t, 0, store.Len(), "完成后会话应被删除")
	require.Len(t, archiver.archived, 1, "完成后应归档会话快照")
	assert.Equal(t, []string{"resume-1"}, publisher.published, "完成后应发布简历创建事件")
}

func TestControllerCompleteResumeStoreFailure(t *testing.T) {
	store := NewMemorySessionStore()
	resumes := &stubResumeStore{err: errors.New("db down")}
	c := NewController(store, NewMachine(&scriptedGenerator{}), resumes)

	start, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), start.SessionID, "owner-1")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr, "简历写入失败应返回持久化错误")
	assert.Equal(t, "create_resume", perr.Op)
	assert.Equal(t, 1, store.Len(), "简历写入失败时会话不应被删除")
}

func TestControllerCompleteBestEffortCollaborators(t *testing.T) {
	archiver := &stubArchiver{err: errors.New("minio down")}
	publisher := &stubPublisher{err: errors.New("rabbitmq down")}
	c, store, resumes := newTestController(&scriptedGenerator{},
		WithSessionArchiver(archiver), WithEventPublisher(publisher))

	start, err := c.Start(context.Background(), "owner-1", CollectedData{"name": "Jane"})
	require.NoError(t, err)

	complete, err := c.Complete(context.Background(), start.SessionID, "owner-1")
	require.NoError(t, err, "归档与事件发布失败不应影响完成操作")
	assert.Equal(t, "Jane's Resume", complete.ResumeName)
	assert.Len(t, resumes.created, 1)
	assert.Equal(t, 0, store.Len(), "会话删除不受协作方失败影响")
}

func TestControllerCompleteEmptySession(t *testing.T) {
	c, store, resumes := newTestController(&scriptedGenerator{})

	start, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	complete, err := c.Complete(context.Background(), start.SessionID, "owner-1")
	require.NoError(t, err, "未收集任何数据的会话也可以完成")
	assert.Equal(t, "My Resume", complete.ResumeName, "缺失姓名时应使用默认简历名")

	require.Len(t, resumes.created, 1)
	assert.NotNil(t, resumes.created[0].Skills)
	assert.Empty(t, resumes.created[0].Skills)
	assert.Equal(t, 0, store.Len())
}

func TestControllerCompleteMissingSession(t *testing.T) {
	c, _, _ := newTestController(&scriptedGenerator{})

	_, err := c.Complete(context.Background(), "missing", "owner-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestControllerHoldsDistributedLock(t *testing.T) {
	store := &lockingSessionStore{MemorySessionStore: NewMemorySessionStore()}
	c := NewController(store, NewMachine(&scriptedGenerator{}), &stubResumeStore{})

	start, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	_, err = c.Message(context.Background(), start.SessionID, "owner-1", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, 1, store.acquires, "处理消息期间应持有分布式锁")
	assert.Equal(t, 1, store.releases, "处理结束后应释放分布式锁")

	_, err = c.Complete(context.Background(), start.SessionID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.acquires, "完成操作也应持有分布式锁")
	assert.Equal(t, 2, store.releases)
}

func TestControllerProceedsWhenDistributedLockDenied(t *testing.T) {
	store := &lockingSessionStore{MemorySessionStore: NewMemorySessionStore(), deny: true}
	c := NewController(store, NewMachine(&scriptedGenerator{}), &stubResumeStore{})

	start, err := c.Start(context.Background(), "owner-1", nil)
	require.NoError(t, err)

	result, err := c.Message(context.Background(), start.SessionID, "owner-1", "Jane Doe")
	require.NoError(t, err, "锁竞争失败应降级为本地串行化而不是拒绝请求")
	assert.Equal(t, StepEmail, result.Step)
	assert.Equal(t, 1, store.acquires)
	assert.Equal(t, 0, store.releases, "未获取到的锁不应释放")
}
