package delivery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wishroom/internal/models"
)

func member(externalID int64, firstName string) *models.Member {
	return &models.Member{
		AccountSummary: models.AccountSummary{
			AccountID:  uuid.Must(uuid.NewV7()),
			ExternalID: externalID,
			FirstName:  firstName,
		},
		JoinedAt: time.Now(),
	}
}

func wish(author *models.Member, text string) *models.Wish {
	return &models.Wish{
		WishID:    uuid.Must(uuid.NewV7()),
		AccountID: author.AccountID,
		Text:      text,
	}
}

func TestPlan(t *testing.T) {
	ann, bob, cat := member(1, "Ann"), member(2, "Bob"), member(3, "")
	sled, skates, book := wish(ann, "sled"), wish(bob, "skates"), wish(bob, "book")

	room := &models.Room{RoomID: uuid.Must(uuid.NewV7()), Code: "ABC123", Name: "Family"}

	t.Run("excludes own wishes", func(t *testing.T) {
		plan := Plan(&models.RoomDeliveryState{
			Room:      room,
			Members:   []*models.Member{ann, bob, cat},
			Wishes:    []*models.Wish{sled, skates, book},
			Delivered: map[models.DeliveryKey]bool{},
		})
		require.Len(t, plan, 3)

		byRecipient := map[int64][]uuid.UUID{}
		for _, d := range plan {
			byRecipient[d.Recipient.ExternalID] = d.WishIDs()
		}
		require.Equal(t, []uuid.UUID{skates.WishID, book.WishID}, byRecipient[1])
		require.Equal(t, []uuid.UUID{sled.WishID}, byRecipient[2])
		require.Equal(t, []uuid.UUID{sled.WishID, skates.WishID, book.WishID}, byRecipient[3])
	})

	t.Run("skips delivered pairs", func(t *testing.T) {
		plan := Plan(&models.RoomDeliveryState{
			Room:    room,
			Members: []*models.Member{ann, bob},
			Wishes:  []*models.Wish{sled, skates},
			Delivered: map[models.DeliveryKey]bool{
				{WishID: sled.WishID, RecipientID: bob.AccountID}: true,
			},
		})
		require.Len(t, plan, 1)
		require.Equal(t, ann.AccountID, plan[0].Recipient.AccountID)
	})

	t.Run("skips wishes of departed members", func(t *testing.T) {
		plan := Plan(&models.RoomDeliveryState{
			Room:      room,
			Members:   []*models.Member{ann, cat},
			Wishes:    []*models.Wish{skates},
			Delivered: map[models.DeliveryKey]bool{},
		})
		require.Empty(t, plan)
	})

	t.Run("message", func(t *testing.T) {
		plan := Plan(&models.RoomDeliveryState{
			Room:      room,
			Members:   []*models.Member{ann, cat},
			Wishes:    []*models.Wish{sled},
			Delivered: map[models.DeliveryKey]bool{},
		})
		require.Len(t, plan, 1)

		msg := plan[0].Message(room)
		require.Equal(t, room.RoomID, msg.RoomID)
		require.Equal(t, "ABC123", msg.RoomCode)
		require.Equal(t, cat.AccountID, msg.RecipientAccountID)
		require.Equal(t, int64(3), msg.RecipientExternalID)
		require.Equal(t, []uuid.UUID{sled.WishID}, msg.WishIDs)
	})
}

func TestRender(t *testing.T) {
	room := &models.Room{Code: "ABC123", Name: "Family"}
	items := []Item{
		{Wish: &models.Wish{Text: "sled"}, Author: models.AccountSummary{ExternalID: 1, FirstName: "Ann"}},
		{Wish: &models.Wish{Text: "skates"}, Author: models.AccountSummary{ExternalID: 2, Username: "bob"}},
		{Wish: &models.Wish{Text: "book"}, Author: models.AccountSummary{ExternalID: 3}},
	}

	want := "🎄 Family (ABC123)\n" +
		"🎅 Ann wants for New Year: sled\n" +
		"🎅 bob wants for New Year: skates\n" +
		"🎅 Participant 3 wants for New Year: book"
	require.Equal(t, want, Render(room, items))
}
