package delivery

import (
	"fmt"
	"strings"

	"github.com/wolfeidau/wishroom/internal/models"
)

// Render formats the wishes for one recipient: a header naming the room and
// one line per wish.
func Render(room *models.Room, items []Item) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🎄 %s (%s)", room.Name, room.Code)
	for _, it := range items {
		fmt.Fprintf(&b, "\n🎅 %s wants for New Year: %s", it.Author.DisplayName(), it.Wish.Text)
	}

	return b.String()
}
