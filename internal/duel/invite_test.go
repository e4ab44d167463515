package duel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	opponentSub := subscribe(t, env, ChannelUser(2))

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{QuestionCount: 3})
	require.NoError(t, err)
	require.NotZero(t, duelID)

	// 邀請發到受邀方的用戶頻道，帶挑戰方的公開資料
	envlp := waitEvent(t, opponentSub, EventDuelInvited)
	var payload DuelInvitedPayload
	decodePayload(t, envlp, &payload)
	assert.Equal(t, duelID, payload.DuelID)
	assert.Equal(t, uint(1), payload.Challenger.ID)
	assert.Equal(t, 3, payload.Settings.QuestionCount)

	// 題目快照在建立挑戰時就固定下來
	recorded := env.recorder.get(duelID)
	assert.Len(t, recorded.record.Questions, 3)
	assert.True(t, recorded.record.Pending)

	assert.Len(t, env.notifier.byType("duel_invite"), 1)
}

func TestAcceptChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{QuestionCount: 2})
	require.NoError(t, err)

	room, err := env.manager.AcceptChallenge(ctx, 2, duelID)
	require.NoError(t, err)

	// 雙方直接到齊，略過 waiting
	assert.Equal(t, RoomStatusStarting, room.Status)
	assert.Equal(t, duelID, room.DuelID)
	require.Len(t, room.Participants, 2)
	assert.Equal(t, RoleChallenger, room.Participants[0].Role)
	assert.Equal(t, uint(1), room.Participants[0].UserID)
	assert.Equal(t, RoleOpponent, room.Participants[1].Role)

	// 之後的開賽流程與代碼制完全相同
	env.clock.Advance(startDelay)
	waitQuestion(t, env, room.ID, 0)
}

func TestAcceptChallengeNotInvitee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{})
	require.NoError(t, err)

	_, err = env.manager.AcceptChallenge(ctx, 3, duelID)
	assert.ErrorIs(t, err, ErrNotInvitee)
}

func TestAcceptChallengeNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.AcceptChallenge(context.Background(), 2, 999)
	assert.ErrorIs(t, err, ErrDuelNotFound)
}

func TestAcceptChallengeAlreadyHandled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{})
	require.NoError(t, err)
	require.NoError(t, env.manager.DeclineChallenge(ctx, 2, duelID))

	_, err = env.manager.AcceptChallenge(ctx, 2, duelID)
	assert.ErrorIs(t, err, ErrChallengeNotPending)
}

func TestDeclineChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	challengerSub := subscribe(t, env, ChannelUser(1))

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{})
	require.NoError(t, err)
	require.NoError(t, env.manager.DeclineChallenge(ctx, 2, duelID))

	envlp := waitEvent(t, challengerSub, EventDuelDeclined)
	var payload DuelDeclinedPayload
	decodePayload(t, envlp, &payload)
	assert.Equal(t, duelID, payload.DuelID)
	assert.Equal(t, uint(2), payload.DeclinerID)

	assert.True(t, env.recorder.get(duelID).declined)
}

func TestDeclineChallengeNotInvitee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{})
	require.NoError(t, err)

	err = env.manager.DeclineChallenge(ctx, 3, duelID)
	assert.ErrorIs(t, err, ErrNotInvitee)
}

func TestAcceptChallengeWhileChallengerBusy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	duelID, err := env.manager.CreateChallenge(ctx, 1, 2, Settings{})
	require.NoError(t, err)

	// 挑戰方趁邀請未回應時開了別的房間
	_, err = env.manager.CreateRoom(ctx, 1, Settings{})
	require.NoError(t, err)

	_, err = env.manager.AcceptChallenge(ctx, 2, duelID)
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}
