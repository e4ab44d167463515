package duel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz_duel/internal/pubsub"
)

func TestCreateRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hostSub := subscribe(t, env, ChannelUser(1))

	room, err := env.manager.CreateRoom(ctx, 1, Settings{QuestionCount: 3, TimeLimit: 20})
	require.NoError(t, err)

	assert.Len(t, room.ID, roomCodeLength)
	assert.Equal(t, RoomStatusWaiting, room.Status)
	require.Len(t, room.Participants, 1)
	assert.Equal(t, RoleHost, room.Participants[0].Role)
	assert.Equal(t, uint(1), room.Participants[0].UserID)
	assert.Len(t, room.Questions, 3)
	assert.Equal(t, 0, room.Scores[1])

	envlp := waitEvent(t, hostSub, EventRoomCreated)
	assert.Equal(t, room.ID, envlp.RoomID)

	// 房主的索引已指向新房間
	roomID, err := env.manager.RoomOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, room.ID, roomID)
}

func TestCreateRoomDefaultSettings(t *testing.T) {
	env := newTestEnv(t)

	room, err := env.manager.CreateRoom(context.Background(), 1, Settings{})
	require.NoError(t, err)

	assert.Equal(t, defaultQuestionCount, room.Settings.QuestionCount)
	assert.Equal(t, defaultTimeLimit, room.Settings.TimeLimit)
	assert.Len(t, room.Questions, defaultQuestionCount)
}

func TestCreateRoomWhileInRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.CreateRoom(ctx, 1, Settings{})
	require.NoError(t, err)

	_, err = env.manager.CreateRoom(ctx, 1, Settings{})
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestJoinRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, 1, Settings{QuestionCount: 2})
	require.NoError(t, err)

	hostSub := subscribe(t, env, ChannelUser(1))
	guestSub := subscribe(t, env, ChannelUser(2))

	room, err := env.manager.JoinRoom(ctx, created.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, RoomStatusStarting, room.Status)
	require.Len(t, room.Participants, 2)
	assert.Equal(t, RoleGuest, room.Participants[1].Role)
	assert.NotZero(t, room.DuelID)

	// 開賽事件各自發到雙方的用戶頻道，帶完整題目但不含正確答案
	for _, sub := range []pubsub.Subscription{hostSub, guestSub} {
		envlp := waitEvent(t, sub, EventSessionStarted)
		var payload SessionStartedPayload
		decodePayload(t, envlp, &payload)
		assert.Equal(t, room.ID, payload.RoomID)
		assert.Len(t, payload.Questions, 2)
	}

	// 對戰紀錄已建立並附上房間代碼
	recorded := env.recorder.get(room.DuelID)
	assert.Equal(t, room.ID, recorded.roomID)
	assert.False(t, recorded.record.Pending)
}

func TestJoinRoomNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.JoinRoom(context.Background(), "ZZZZZZ", 2)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinRoomNotJoinable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, 1, Settings{})
	require.NoError(t, err)
	_, err = env.manager.JoinRoom(ctx, created.ID, 2)
	require.NoError(t, err)

	// 雙方到齊後房間就不再開放
	_, err = env.manager.JoinRoom(ctx, created.ID, 3)
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestJoinOwnRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, 1, Settings{})
	require.NoError(t, err)

	_, err = env.manager.JoinRoom(ctx, created.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestGetRoomNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.GetRoom(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDeleteRoomIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, 1, Settings{})
	require.NoError(t, err)

	require.NoError(t, env.manager.DeleteRoom(ctx, created.ID))
	require.NoError(t, env.manager.DeleteRoom(ctx, created.ID))

	_, err = env.manager.GetRoom(ctx, created.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// 玩家索引一併清除，可以再開新房
	_, err = env.manager.CreateRoom(ctx, 1, Settings{})
	assert.NoError(t, err)
}

// 同一個用戶同時開兩個房間：索引認領只讓一個成立
func TestCreateRoomConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.manager.CreateRoom(ctx, 1, Settings{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyInRoom)
		}
	}
	assert.Equal(t, 1, succeeded)

	// 輸掉認領的那間已回收，用戶只剩一個索引
	roomID, err := env.manager.RoomOf(ctx, 1)
	require.NoError(t, err)
	_, err = env.manager.GetRoom(ctx, roomID)
	assert.NoError(t, err)
}

// 同一個用戶的兩個加入請求同時到達：只有一個能進房
func TestJoinRoomConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateRoom(ctx, 1, Settings{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.manager.JoinRoom(ctx, created.ID, 2)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyInRoom)
		}
	}
	assert.Equal(t, 1, succeeded)

	room, err := env.manager.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, room.Participants, 2)
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, CodeNotFound, ErrorCode(ErrRoomNotFound))
	assert.Equal(t, CodeInvalidState, ErrorCode(ErrRoomNotJoinable))
	assert.Equal(t, CodeCapacity, ErrorCode(ErrRoomFull))
	assert.Equal(t, CodeUnauthorized, ErrorCode(ErrNotParticipant))
	assert.Equal(t, CodeConflict, ErrorCode(ErrAlreadyAnswered))
	assert.Equal(t, CodeInternal, ErrorCode(assert.AnError))
}
