package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newDeletionFixture(scope models.Scope, roster []models.ChannelMember) *DeletionManager {
	store := NewTimelineStore(scope)
	resolver := NewProvisionalResolver(store)
	tracker := NewStatusTracker(store)
	tracker.SetMembers(roster)
	for _, message := range []models.Message{
		textMessage("m_1", "u1", time.Second, "mine"),
		textMessage("m_2", "u2", 2*time.Second, "theirs"),
		textMessage("local:03", "u1", 3*time.Second, "pending"),
	} {
		_, _ = store.Upsert(message)
	}
	return NewDeletionManager("u1", store, resolver, tracker)
}

func TestDeletionPrepare(t *testing.T) {
	owner := []models.ChannelMember{{AccountID: "u1", PowerLevel: models.PowerLevelOwner}, {AccountID: "u2"}}
	regular := []models.ChannelMember{{AccountID: "u1"}, {AccountID: "u2"}}

	tests := []struct {
		name    string
		scope   models.Scope
		roster  []models.ChannelMember
		ids     []string
		mode    models.DeleteMode
		wantIDs []string
		wantErr error
	}{
		{
			name:    "own message for everyone",
			scope:   testScope,
			roster:  regular,
			ids:     []string{"m_1"},
			mode:    models.DeleteModeGlobal,
			wantIDs: []string{"m_1"},
		},
		{
			name:    "other message for everyone",
			scope:   testScope,
			roster:  regular,
			ids:     []string{"m_1", "m_2"},
			mode:    models.DeleteModeGlobal,
			wantErr: ErrForbidden,
		},
		{
			name:    "other message for me only",
			scope:   testScope,
			roster:  regular,
			ids:     []string{"m_2", "m_2"},
			mode:    models.DeleteModeLocal,
			wantIDs: []string{"m_2"},
		},
		{
			name:    "owner deletes for everyone",
			scope:   testScope,
			roster:  owner,
			ids:     []string{"m_2"},
			mode:    models.DeleteModeGlobal,
			wantIDs: []string{"m_2"},
		},
		{
			name:    "power level means nothing in direct conversations",
			scope:   models.DirectScope("u1", "u2"),
			roster:  owner,
			ids:     []string{"m_2"},
			mode:    models.DeleteModeGlobal,
			wantErr: ErrForbidden,
		},
		{
			name:    "provisional ids are left out",
			scope:   testScope,
			roster:  regular,
			ids:     []string{"local:03"},
			mode:    models.DeleteModeLocal,
			wantErr: ErrEmptySelection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newDeletionFixture(tt.scope, tt.roster)

			req, err := manager.Prepare(tt.ids, tt.mode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, req.IDs)
			assert.Equal(t, tt.mode, req.Mode)
			assert.Equal(t, tt.scope, req.Channel)
		})
	}

	_, err := newDeletionFixture(testScope, regular).Prepare([]string{"m_1"}, "everywhere")
	assert.Error(t, err)
}

func TestSelection(t *testing.T) {
	manager := newDeletionFixture(testScope, nil)

	assert.True(t, manager.Toggle("m_2"))
	assert.True(t, manager.Select("m_1"))
	assert.False(t, manager.Select("m_404"))
	assert.Equal(t, []string{"m_1", "m_2"}, manager.Selected())

	assert.False(t, manager.Toggle("m_2"))
	manager.Apply([]string{"m_1"})
	assert.Empty(t, manager.Selected())

	manager.Select("m_2")
	assert.Equal(t, []string{"m_2"}, manager.TakeSelection())
	assert.Empty(t, manager.Selected())
}

func TestDeleteScoped(t *testing.T) {
	h := newHarness(t, false)
	conversation := h.open(t, testScope, members("u1", "u2"), []models.Message{
		textMessage("m_1", "u1", time.Second, "mine"),
		textMessage("m_2", "u2", 2*time.Second, "theirs"),
	})

	err := conversation.DeleteScoped(context.Background(), []string{"m_2"}, models.DeleteModeGlobal)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Len(t, conversation.Messages(), 2)

	h.rest.EXPECT().
		DeleteMessages(gomock.Any(), models.DeleteMessagesRequest{
			Channel: testScope,
			IDs:     []string{"m_2"},
			Mode:    models.DeleteModeLocal,
		}).
		Return(nil).
		Times(1)
	require.NoError(t, conversation.DeleteScoped(context.Background(), []string{"m_2"}, models.DeleteModeLocal))
	assert.Equal(t, []string{"m_1"}, ids(conversation.Messages()))
}

func TestCommitSelectionClearsOnFailure(t *testing.T) {
	h := newHarness(t, false)
	conversation := h.open(t, testScope, nil, []models.Message{
		textMessage("m_1", "u1", time.Second, "a"),
		textMessage("m_2", "u1", 2*time.Second, "b"),
	})
	notices := collectNotices(t, conversation)

	conversation.Select("m_1")
	conversation.Toggle("m_2")
	require.Equal(t, []string{"m_1", "m_2"}, conversation.Selected())

	h.rest.EXPECT().
		DeleteMessages(gomock.Any(), gomock.Any()).
		Return(&APIError{Status: 500, Message: "boom"}).
		Times(1)

	err := conversation.CommitSelection(context.Background(), models.DeleteModeGlobal)
	assert.Error(t, err)
	assert.Empty(t, conversation.Selected())
	assert.Len(t, conversation.Messages(), 2)
	assert.Equal(t, NoticeFailed, (<-notices).Kind)

	assert.ErrorIs(t, conversation.CommitSelection(context.Background(), models.DeleteModeLocal), ErrEmptySelection)
}

func TestDeleteBroadcast(t *testing.T) {
	h := newHarness(t, false)
	conversation := h.open(t, testScope, nil, []models.Message{
		textMessage("m_1", "u2", time.Second, "a"),
		textMessage("m_2", "u2", 2*time.Second, "b"),
	})
	conversation.Select("m_1")

	h.realtime.push(testScope, models.EventMessageDelete, models.MessageDeleteEvent{
		EventChannel: models.EventChannel{Channel: testScope},
		IDs:          []string{"m_1"},
		Mode:         models.DeleteModeGlobal,
	})

	assert.Equal(t, []string{"m_2"}, ids(conversation.Messages()))
	assert.Empty(t, conversation.Selected())
}

func TestDeleteBroadcastByProvisionalID(t *testing.T) {
	h := newHarness(t, false)
	conversation := h.open(t, testScope, nil, nil)
	h.rest.EXPECT().
		CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req models.CreateMessageRequest) (models.Message, error) {
			return serverCopy("m_40", req), nil
		}).
		Times(1)

	message, ticket, err := conversation.Send(models.Draft{Text: "brb"})
	require.NoError(t, err)
	_, err = waitTicket(t, ticket)
	require.NoError(t, err)

	pushChunk(h, testScope, "m_40", 0, "half", false)
	pending := func() int {
		var count int
		require.NoError(t, conversation.do(func() { count = conversation.chunks.Pending() }))
		return count
	}
	require.Equal(t, 1, pending())

	h.realtime.push(testScope, models.EventMessageDelete, models.MessageDeleteEvent{
		EventChannel: models.EventChannel{Channel: testScope},
		IDs:          []string{message.ID},
		Mode:         models.DeleteModeGlobal,
	})

	assert.Empty(t, conversation.Messages())
	assert.Equal(t, 0, pending())
}

func TestDeleteTransportFailureKeepsEntries(t *testing.T) {
	h := newHarness(t, false)
	conversation := h.open(t, testScope, nil, []models.Message{
		textMessage("m_1", "u1", time.Second, "a"),
	})

	fault := &TransportError{Op: "delete messages", Err: errors.New("connection refused")}
	h.rest.EXPECT().DeleteMessages(gomock.Any(), gomock.Any()).Return(fault)

	err := conversation.DeleteScoped(context.Background(), []string{"m_1"}, models.DeleteModeGlobal)
	assert.True(t, IsTransportFault(err))
	assert.Len(t, conversation.Messages(), 1)
}
