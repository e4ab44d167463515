package duel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorePoints(t *testing.T) {
	// 答錯與跳過一律零分
	assert.Zero(t, scorePoints(false, 0, 15))
	assert.Zero(t, scorePoints(false, 20000, 15))

	// 秒答拿滿加成，壓線只剩基本分
	assert.Equal(t, basePoints+speedBonusMax, scorePoints(true, 0, 15))
	assert.Equal(t, basePoints, scorePoints(true, 15000, 15))
	assert.Equal(t, basePoints, scorePoints(true, 99999, 15))
}

func TestScorePointsMonotonic(t *testing.T) {
	// 延遲越高得分只會持平或下降
	prev := scorePoints(true, 0, 15)
	for latency := int64(500); latency <= 16000; latency += 500 {
		points := scorePoints(true, latency, 15)
		assert.LessOrEqual(t, points, prev, "latency %dms", latency)
		assert.GreaterOrEqual(t, points, basePoints)
		prev = points
	}
}

// 完整打完一場三題對戰：屏障、計分、推進、結算與回寫一次驗證
func TestFullSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := startDuel(t, env, 1, 2, Settings{QuestionCount: 3, TimeLimit: 30})
	roomSub := subscribe(t, env, ChannelRoom(room.ID))
	assert.Equal(t, RoomStatusActive, room.Status)

	for i := 0; i < 3; i++ {
		waitQuestion(t, env, room.ID, i)

		// 先到的一方不觸發結算，只會廣播對手已作答
		require.NoError(t, env.manager.SubmitAnswer(ctx, 1, i, fakeCorrectIndex))
		envlp := waitEvent(t, roomSub, EventOpponentAnswered)
		var answered OpponentAnsweredPayload
		decodePayload(t, envlp, &answered)
		assert.Equal(t, uint(1), answered.UserID)
		assert.Equal(t, i, answered.Index)

		// 第二份答案補齊屏障，回合立即結算
		require.NoError(t, env.manager.SubmitAnswer(ctx, 2, i, fakeCorrectIndex+1))
		envlp = waitEvent(t, roomSub, EventRoundResult)
		var result RoundResultPayload
		decodePayload(t, envlp, &result)
		assert.Equal(t, i, result.Index)
		assert.Equal(t, fakeCorrectIndex, result.CorrectIndex)
		assert.Equal(t, i == 2, result.LastRound)
		require.Len(t, result.Outcomes, 2)

		// 時鐘在回合內沒有前進，答對方每題都拿滿分
		want := (basePoints + speedBonusMax) * (i + 1)
		assert.Equal(t, want, result.Scores[1])
		assert.Zero(t, result.Scores[2])

		env.clock.Advance(displayDelay)
	}

	final := waitStatus(t, env, room.ID, RoomStatusCompleted)
	assert.Equal(t, 3*(basePoints+speedBonusMax), final.Scores[1])

	envlp := waitEvent(t, roomSub, EventSessionCompleted)
	var completed SessionCompletedPayload
	decodePayload(t, envlp, &completed)
	assert.Equal(t, uint(1), completed.WinnerID)
	assert.Equal(t, "finished", completed.Reason)

	// 結果回寫到持久化紀錄，雙方都收到站內通知
	recorded := env.recorder.get(room.DuelID)
	assert.True(t, recorded.finished)
	assert.Equal(t, uint(1), recorded.winnerID)
	assert.False(t, recorded.abandoned)
	assert.Len(t, env.notifier.byType("duel_completed"), 2)
}

func TestSubmitAnswerWrongIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	startDuel(t, env, 1, 2, Settings{QuestionCount: 3, TimeLimit: 30})

	err := env.manager.SubmitAnswer(ctx, 1, 1, fakeCorrectIndex)
	assert.ErrorIs(t, err, ErrWrongQuestion)
	err = env.manager.SubmitAnswer(ctx, 1, -1, fakeCorrectIndex)
	assert.ErrorIs(t, err, ErrWrongQuestion)
}

func TestSubmitAnswerDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	startDuel(t, env, 1, 2, Settings{QuestionCount: 2, TimeLimit: 30})

	require.NoError(t, env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex))
	err := env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex+1)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestSubmitAnswerNotParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	startDuel(t, env, 1, 2, Settings{QuestionCount: 2, TimeLimit: 30})

	// 第三者沒有玩家索引，直接查不到房間
	err := env.manager.SubmitAnswer(ctx, 3, 0, fakeCorrectIndex)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSubmitAnswerBeforeActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, 1, Settings{QuestionCount: 2})
	require.NoError(t, err)
	_, err = env.manager.JoinRoom(ctx, created.ID, 2)
	require.NoError(t, err)

	// 還在開賽倒數，不收答案
	err = env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex)
	assert.ErrorIs(t, err, ErrRoomNotActive)
}

func TestSubmitAnswerOutOfRangeChoiceCountsAsSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := startDuel(t, env, 1, 2, Settings{QuestionCount: 1, TimeLimit: 30})
	roomSub := subscribe(t, env, ChannelRoom(room.ID))

	require.NoError(t, env.manager.SubmitAnswer(ctx, 1, 0, 99))
	require.NoError(t, env.manager.SubmitAnswer(ctx, 2, 0, fakeCorrectIndex))

	envlp := waitEvent(t, roomSub, EventRoundResult)
	var result RoundResultPayload
	decodePayload(t, envlp, &result)
	for _, outcome := range result.Outcomes {
		if outcome.UserID == 1 {
			assert.Equal(t, ChoiceSkip, outcome.Choice)
			assert.False(t, outcome.Correct)
			assert.Zero(t, outcome.Points)
		}
	}
}

// 回合超時：缺席方以跳過計，對戰照常走完
func TestRoundTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := startDuel(t, env, 1, 2, Settings{QuestionCount: 1, TimeLimit: 10})
	roomSub := subscribe(t, env, ChannelRoom(room.ID))

	// 只有一方作答，另一方拖到時限加寬限用盡
	require.NoError(t, env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex))

	require.Eventually(t, func() bool {
		env.clock.Advance(time.Second)
		r, err := env.manager.GetRoom(ctx, room.ID)
		return err == nil && r.Status == RoomStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	envlp := waitEvent(t, roomSub, EventRoundResult)
	var result RoundResultPayload
	decodePayload(t, envlp, &result)
	for _, outcome := range result.Outcomes {
		if outcome.UserID == 2 {
			assert.Equal(t, ChoiceSkip, outcome.Choice)
			assert.Zero(t, outcome.Points)
		}
	}

	envlp = waitEvent(t, roomSub, EventSessionCompleted)
	var completed SessionCompletedPayload
	decodePayload(t, envlp, &completed)
	assert.Equal(t, uint(1), completed.WinnerID)
}

// 終態房間不再接受任何寫入
func TestCompletedRoomRejectsWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := playToCompletion(t, env, 1, 2, 1)

	err := env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex)
	assert.Error(t, err)

	// 分數維持結算時的值
	final, err := env.manager.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, basePoints+speedBonusMax, final.Scores[1])
	assert.Equal(t, RoomStatusCompleted, final.Status)
}

func TestTieHasNoWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := startDuel(t, env, 1, 2, Settings{QuestionCount: 1, TimeLimit: 30})
	roomSub := subscribe(t, env, ChannelRoom(room.ID))

	// 雙方同錯，同為零分
	require.NoError(t, env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex+1))
	require.NoError(t, env.manager.SubmitAnswer(ctx, 2, 0, fakeCorrectIndex+1))
	env.clock.Advance(displayDelay)

	envlp := waitEvent(t, roomSub, EventSessionCompleted)
	var completed SessionCompletedPayload
	decodePayload(t, envlp, &completed)
	assert.Zero(t, completed.WinnerID)
}

// 雙方的答案同時抵達屏障：兩份都入帳，回合只結算一次
func TestSubmitAnswerConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := startDuel(t, env, 1, 2, Settings{QuestionCount: 1, TimeLimit: 30})
	roomSub := subscribe(t, env, ChannelRoom(room.ID))

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = env.manager.SubmitAnswer(ctx, 1, 0, fakeCorrectIndex)
	}()
	go func() {
		defer wg.Done()
		results[1] = env.manager.SubmitAnswer(ctx, 2, 0, fakeCorrectIndex+1)
	}()
	wg.Wait()
	require.NoError(t, results[0])
	require.NoError(t, results[1])

	// 數房間頻道上的事件直到結算出現，round_result 必須恰好一次
	env.clock.Advance(displayDelay)
	roundResults := 0
	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case msg, ok := <-roomSub.Messages():
			require.True(t, ok)
			var envlp eventEnvelope
			require.NoError(t, json.Unmarshal(msg, &envlp))
			switch envlp.Type {
			case EventRoundResult:
				roundResults++
			case EventSessionCompleted:
				done = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for session completion")
		}
	}
	assert.Equal(t, 1, roundResults)

	final, err := env.manager.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, RoomStatusCompleted, final.Status)

	// 沒有任何一方的答案被蓋掉
	require.Contains(t, final.Answers[1], 0)
	require.Contains(t, final.Answers[2], 0)
	assert.Equal(t, fakeCorrectIndex, final.Answers[1][0].Choice)
	assert.Equal(t, fakeCorrectIndex+1, final.Answers[2][0].Choice)
	assert.Equal(t, basePoints+speedBonusMax, final.Scores[1])
	assert.Zero(t, final.Scores[2])
}

// 終態房間保留一段時間後整組回收
func TestRoomRetention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := playToCompletion(t, env, 1, 2, 1)

	// 保留期內還查得到結果
	_, err := env.manager.GetRoom(ctx, room.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		env.clock.Advance(retention)
		_, err := env.manager.GetRoom(ctx, room.ID)
		return errors.Is(err, ErrRoomNotFound)
	}, 5*time.Second, 5*time.Millisecond)
}
