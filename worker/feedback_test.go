package worker

import (
	"context"
	"testing"

	"dripcrm/models"
	"dripcrm/testutil"

	"github.com/stretchr/testify/require"
)

func TestBounceType(t *testing.T) {
	require.Equal(t, models.BounceSoft, BounceType("SOFT", "550"))
	require.Equal(t, models.BounceHard, BounceType("hard", "421"))
	require.Equal(t, models.BounceSoft, BounceType("", "452"))
	require.Equal(t, models.BounceHard, BounceType("", "550"))
	require.Equal(t, models.BounceHard, BounceType("", ""))
}

func TestFeedbackRecorderRequiresRecipient(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := NewFeedbackRecorder(db)

	_, err := r.Record(context.Background(), FeedbackEvent{Type: EventBounce, MessageID: "<unknown@agency.com>"})
	require.ErrorIs(t, err, ErrMissingRecipient)

	_, err = r.Record(context.Background(), FeedbackEvent{Type: EventClick, MessageID: "<unknown@agency.com>"})
	require.ErrorIs(t, err, ErrSendNotFound)

	_, err = r.Record(context.Background(), FeedbackEvent{Type: "delivered", Email: "pat@example.com"})
	require.Error(t, err)
}

func TestFeedbackRecorderUnsubscribeIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := NewFeedbackRecorder(db)

	for i := 0; i < 2; i++ {
		email, err := r.Record(context.Background(), FeedbackEvent{Type: EventUnsubscribe, Email: " Pat@Example.com "})
		require.NoError(t, err)
		require.Equal(t, "pat@example.com", email)
	}

	var count int64
	require.NoError(t, db.Model(&models.Unsubscribe{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
