package duel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quiz_duel/internal/pubsub"
	"quiz_duel/internal/store"
)

// recordedDuel 測試用的對戰紀錄
type recordedDuel struct {
	record    DuelRecord
	roomID    string
	declined  bool
	finished  bool
	winnerID  uint
	scores    map[uint]int
	abandoned bool
}

// fakeRecorder 記憶體版的 DuelRecorder
type fakeRecorder struct {
	mu     sync.Mutex
	nextID uint
	duels  map[uint]*recordedDuel
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{duels: make(map[uint]*recordedDuel)}
}

func (r *fakeRecorder) CreateDuel(challengerID, opponentID uint, settings Settings, questions []Question) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.duels[r.nextID] = &recordedDuel{
		record: DuelRecord{
			ID:           r.nextID,
			ChallengerID: challengerID,
			OpponentID:   opponentID,
			Settings:     settings,
			Questions:    questions,
			Pending:      true,
		},
	}
	return r.nextID, nil
}

func (r *fakeRecorder) FindDuel(duelID uint) (*DuelRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.duels[duelID]
	if !ok {
		return nil, fmt.Errorf("duel %d not found", duelID)
	}
	record := d.record
	return &record, nil
}

func (r *fakeRecorder) AttachRoomCode(duelID uint, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.duels[duelID]; ok {
		d.roomID = roomID
	}
	return nil
}

func (r *fakeRecorder) MarkActive(duelID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.duels[duelID]; ok {
		d.record.Pending = false
	}
	return nil
}

func (r *fakeRecorder) MarkDeclined(duelID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.duels[duelID]; ok {
		d.record.Pending = false
		d.declined = true
	}
	return nil
}

func (r *fakeRecorder) FinishDuel(duelID uint, winnerID uint, scores map[uint]int, abandoned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.duels[duelID]; ok {
		d.finished = true
		d.winnerID = winnerID
		d.scores = scores
		d.abandoned = abandoned
	}
	return nil
}

func (r *fakeRecorder) get(duelID uint) recordedDuel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.duels[duelID]
}

// fakeQuestions 依設定生出固定答案的題目，正確選項永遠是 1
type fakeQuestions struct {
	mu    sync.Mutex
	calls int
}

const fakeCorrectIndex = 1

func (q *fakeQuestions) Snapshot(settings Settings) ([]Question, error) {
	q.mu.Lock()
	q.calls++
	q.mu.Unlock()

	questions := make([]Question, settings.QuestionCount)
	for i := range questions {
		questions[i] = Question{
			ID:           uint(i + 1),
			Content:      fmt.Sprintf("question %d", i+1),
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: fakeCorrectIndex,
		}
	}
	return questions, nil
}

// sentNotification 測試用的通知紀錄
type sentNotification struct {
	UserID  uint
	Message string
	Type    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(userID uint, message, notifType string, _ map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Message: message, Type: notifType})
}

func (n *fakeNotifier) byType(notifType string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []sentNotification
	for _, s := range n.sent {
		if s.Type == notifType {
			matched = append(matched, s)
		}
	}
	return matched
}

type fakeDirectory struct{}

func (fakeDirectory) Profile(userID uint) (Profile, error) {
	return Profile{
		ID:          userID,
		DisplayName: fmt.Sprintf("user-%d", userID),
		Level:       1,
	}, nil
}

// testEnv 一組完整的測試環境：假時鐘、記憶體儲存與廣播
type testEnv struct {
	manager  *Manager
	clock    *clockwork.FakeClock
	store    *store.LocalStore
	bus      *pubsub.LocalPubSub
	recorder *fakeRecorder
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewLocalStore()
	bus := pubsub.NewLocalPubSub()
	t.Cleanup(func() {
		_ = bus.Close()
		_ = st.Close()
	})

	clock := clockwork.NewFakeClock()
	recorder := newFakeRecorder()
	notifier := &fakeNotifier{}
	manager := NewManager(st, bus, clock, recorder, &fakeQuestions{}, notifier, fakeDirectory{}, zap.NewNop())

	return &testEnv{
		manager:  manager,
		clock:    clock,
		store:    st,
		bus:      bus,
		recorder: recorder,
		notifier: notifier,
	}
}

// eventEnvelope 解碼事件外殼，payload 留給各測試自行解讀
type eventEnvelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

func subscribe(t *testing.T, env *testEnv, channel string) pubsub.Subscription {
	t.Helper()
	sub, err := env.bus.Subscribe(context.Background(), channel)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// waitEvent 等待特定型別的事件，其餘事件略過
func waitEvent(t *testing.T, sub pubsub.Subscription, wantType string) eventEnvelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-sub.Messages():
			require.True(t, ok, "subscription closed while waiting for %s", wantType)
			var envlp eventEnvelope
			require.NoError(t, json.Unmarshal(msg, &envlp))
			if envlp.Type == wantType {
				return envlp
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", wantType)
		}
	}
}

func decodePayload(t *testing.T, envlp eventEnvelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(envlp.Payload, out))
}

// waitStatus 等房間到達指定狀態，計時器回呼在別的 goroutine 執行
func waitStatus(t *testing.T, env *testEnv, roomID string, status RoomStatus) *Room {
	t.Helper()
	var room *Room
	require.Eventually(t, func() bool {
		r, err := env.manager.GetRoom(context.Background(), roomID)
		if err != nil {
			return false
		}
		room = r
		return r.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return room
}

// waitQuestion 等題目指標推進到指定序號
func waitQuestion(t *testing.T, env *testEnv, roomID string, index int) *Room {
	t.Helper()
	var room *Room
	require.Eventually(t, func() bool {
		r, err := env.manager.GetRoom(context.Background(), roomID)
		if err != nil {
			return false
		}
		room = r
		return r.Status == RoomStatusActive && r.CurrentQuestion == index
	}, 2*time.Second, 5*time.Millisecond)
	return room
}

// startDuel 建房、加入並推進到 active，回傳進行中的房間
func startDuel(t *testing.T, env *testEnv, hostID, guestID uint, settings Settings) *Room {
	t.Helper()
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, hostID, settings)
	require.NoError(t, err)
	_, err = env.manager.JoinRoom(ctx, created.ID, guestID)
	require.NoError(t, err)

	env.clock.Advance(startDelay)
	return waitQuestion(t, env, created.ID, 0)
}

// playToCompletion 雙方每題都作答，把對戰打到終態
// host 全對、guest 全錯，勝方必為 host
func playToCompletion(t *testing.T, env *testEnv, hostID, guestID uint, questionCount int) *Room {
	t.Helper()
	ctx := context.Background()

	room := startDuel(t, env, hostID, guestID, Settings{QuestionCount: questionCount, TimeLimit: 30})
	for i := 0; i < questionCount; i++ {
		waitQuestion(t, env, room.ID, i)
		require.NoError(t, env.manager.SubmitAnswer(ctx, hostID, i, fakeCorrectIndex))
		require.NoError(t, env.manager.SubmitAnswer(ctx, guestID, i, fakeCorrectIndex+1))
		env.clock.Advance(displayDelay)
	}
	return waitStatus(t, env, room.ID, RoomStatusCompleted)
}
