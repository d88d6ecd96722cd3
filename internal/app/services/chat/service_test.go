package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/chat"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/notification"
	"github.com/R3E-Network/agency_layer/internal/app/domain/tenant"
	"github.com/R3E-Network/agency_layer/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

type notes []notification.Notification

func (n *notes) Notify(_ context.Context, x notification.Notification) (notification.Notification, error) {
	*n = append(*n, x)
	return x, nil
}

func TestThreadBetweenSides(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, store, store, logger.NewNop())
	sent := &notes{}
	svc.AttachDependencies(sent)

	c, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Acme"})
	other, _ := store.CreateClient(ctx, client.Client{AgencyID: "a1", Name: "Globex"})
	portal, _ := store.CreateMember(ctx, tenant.Member{AgencyID: "a1", UserID: "cu1", Role: tenant.RoleClient, ClientID: c.ID, Active: true})

	staffCtx := actor.With(ctx, actor.Actor{UserID: "su1", Name: "Sam", Role: tenant.RoleMember})
	clientCtx := actor.With(ctx, actor.FromMember(portal))

	_, err := svc.Post(ctx, "a1", c.ID, "hi")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	_, err = svc.Post(staffCtx, "a1", c.ID, "   ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.Post(staffCtx, "a1", c.ID, strings.Repeat("é", MaxBodyLength+1))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.Post(staffCtx, "a1", "ghost", "hi")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	m1, err := svc.Post(staffCtx, "a1", c.ID, "Draft is ready")
	require.NoError(t, err)
	assert.True(t, m1.ReadByAgency)
	assert.False(t, m1.ReadByClient)
	assert.Equal(t, "Sam", m1.SenderName)
	require.Len(t, *sent, 1)
	assert.Equal(t, "cu1", (*sent)[0].RecipientID)

	m2, err := svc.Post(clientCtx, "a1", c.ID, "Looks great")
	require.NoError(t, err)
	assert.True(t, m2.ReadByClient)
	require.Len(t, *sent, 2)
	assert.True(t, (*sent)[1].Broadcast())

	_, err = svc.Post(clientCtx, "a1", other.ID, "peek")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound), "portal users cannot reach other threads")
	_, err = svc.Thread(clientCtx, "a1", other.ID, 0)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	thread, err := svc.Thread(clientCtx, "a1", c.ID, 0)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, m1.ID, thread[0].ID)

	_, err = svc.MarkRead(clientCtx, "a1", c.ID, chat.SideAgency)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	n, err := svc.MarkRead(clientCtx, "a1", c.ID, chat.SideClient)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = svc.MarkRead(staffCtx, "a1", c.ID, chat.SideAgency)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	p := preview(long)
	assert.Equal(t, 140, len([]rune(p)))
	assert.Equal(t, "short", preview("short"))
}
