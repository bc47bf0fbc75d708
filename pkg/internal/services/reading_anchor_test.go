package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services/mocks"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestReadingAnchors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rest := mocks.NewMockRestAPI(ctrl)
	anchors := NewReadingAnchors(rest)
	direct := models.DirectScope("u1", "u2")

	anchors.Set(testScope, "m_2", epoch.Add(2*time.Second))
	anchors.Set(testScope, "m_1", epoch.Add(time.Second))
	anchors.Set(direct, "local:01", epoch)

	id, ok := anchors.Pending(testScope)
	assert.True(t, ok)
	assert.Equal(t, "m_2", id)
	_, ok = anchors.Pending(direct)
	assert.False(t, ok)

	gomock.InOrder(
		rest.EXPECT().
			MarkRead(gomock.Any(), models.ReadAnchorRequest{Channel: testScope, MessageID: "m_2"}).
			Return(errors.New("gateway timeout")),
		rest.EXPECT().
			MarkRead(gomock.Any(), models.ReadAnchorRequest{Channel: testScope, MessageID: "m_3"}).
			Return(nil),
	)

	// A failed flush keeps the anchor for the next round.
	anchors.Flush(context.Background())
	id, ok = anchors.Pending(testScope)
	assert.True(t, ok)
	assert.Equal(t, "m_2", id)

	anchors.Set(testScope, "m_3", epoch.Add(3*time.Second))
	anchors.FlushScope(context.Background(), testScope)
	_, ok = anchors.Pending(testScope)
	assert.False(t, ok)

	anchors.Flush(context.Background())
}
