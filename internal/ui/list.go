package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/storydesk/internal/stories"
)

var _ list.Item = bookItem{}

// bookItem wraps [stories.Book] to implement [list.Item].
type bookItem struct {
	book stories.Book
}

func (i bookItem) FilterValue() string { return i.book.Title }
func (i bookItem) Title() string       { return i.book.Title }
func (i bookItem) Description() string {
	desc := fmt.Sprintf("%s • ★ %s • %d chapters", i.book.ReadTimeLabel(), i.book.Rating(), i.book.ContentCount)
	if len(i.book.Tags) > 0 {
		desc = fmt.Sprintf("%s • %s", desc, strings.Join(i.book.Tags, ", "))
	}
	return desc
}

func bookItems(books []stories.Book) []list.Item {
	items := make([]list.Item, len(books))
	for i, b := range books {
		items[i] = bookItem{book: b}
	}
	return items
}
