package delivery

import (
	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
)

// Item is a wish together with its author.
type Item struct {
	Wish   *models.Wish
	Author models.AccountSummary
}

// Delivery is the set of wishes owed to one recipient.
type Delivery struct {
	Recipient *models.Member
	Items     []Item
}

// WishIDs returns the ids of the wishes in the delivery.
func (d *Delivery) WishIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.Items))
	for _, it := range d.Items {
		ids = append(ids, it.Wish.WishID)
	}
	return ids
}

// Message renders the delivery for the room.
func (d *Delivery) Message(room *models.Room) *models.Message {
	return &models.Message{
		RoomID:              room.RoomID,
		RoomCode:            room.Code,
		RecipientAccountID:  d.Recipient.AccountID,
		RecipientExternalID: d.Recipient.ExternalID,
		Text:                Render(room, d.Items),
		WishIDs:             d.WishIDs(),
	}
}

// Plan works out, for every member of the room, the wishes written by the
// other current members that have not been delivered to them yet. Members
// with nothing pending are left out. Wishes keep the order of state.Wishes.
func Plan(state *models.RoomDeliveryState) []*Delivery {
	authors := make(map[uuid.UUID]models.AccountSummary, len(state.Members))
	for _, m := range state.Members {
		authors[m.AccountID] = m.AccountSummary
	}

	var deliveries []*Delivery
	for _, recipient := range state.Members {
		d := &Delivery{Recipient: recipient}

		for _, w := range state.Wishes {
			if w.AccountID == recipient.AccountID {
				continue
			}
			author, ok := authors[w.AccountID]
			if !ok {
				continue
			}
			if state.Delivered[models.DeliveryKey{WishID: w.WishID, RecipientID: recipient.AccountID}] {
				continue
			}
			d.Items = append(d.Items, Item{Wish: w, Author: author})
		}

		if len(d.Items) > 0 {
			deliveries = append(deliveries, d)
		}
	}

	return deliveries
}
